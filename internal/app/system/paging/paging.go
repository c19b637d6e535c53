// internal/app/system/paging/paging.go
package paging

import (
	"net/http"
	"strconv"

	"github.com/dalemusser/waffle/pantry/query"
)

// PageSize is the default number of rows in a listed page.
const PageSize = 50

// MaxPageSize caps ?limit.
const MaxPageSize = 200

// Page is a skip/limit window.
type Page struct {
	Limit int64
	Skip  int64
}

// Parse reads ?limit and ?skip. A missing or invalid limit is PageSize,
// values above MaxPageSize are clamped and a negative skip is 0.
func Parse(r *http.Request) Page {
	p := Page{Limit: PageSize}
	if n, err := strconv.ParseInt(query.Get(r, "limit"), 10, 64); err == nil && n > 0 {
		p.Limit = min(n, MaxPageSize)
	}
	if n, err := strconv.ParseInt(query.Get(r, "skip"), 10, 64); err == nil && n > 0 {
		p.Skip = n
	}
	return p
}
