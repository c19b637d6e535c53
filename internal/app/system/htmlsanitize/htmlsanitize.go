// Package htmlsanitize scrubs markup out of user-supplied text.
//
// Names and project text are rendered by the frontend, so nothing stored by
// the API is allowed to carry tags.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strict removes every element and attribute. It is safe for concurrent use.
var strict = bluemonday.StrictPolicy()

// StripTags removes all HTML and returns trimmed plain text.
// Entities produced by the policy are unescaped so "Tom & Jerry" survives.
func StripTags(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// StripAll applies StripTags to every element, returning a new slice.
func StripAll(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = StripTags(s)
	}
	return out
}
