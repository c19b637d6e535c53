// internal/app/system/limits/limits.go
package limits

// Request body size limits. Bodies past these are rejected before decoding.
const (
	// MaxAuthBody covers register, login and social assertions. A Google ID
	// token is about 1 KB; this leaves ample room.
	MaxAuthBody = 16 << 10 // 16 KB

	// MaxJSONBody is the default for every other JSON endpoint.
	MaxJSONBody = 1 << 20 // 1 MB
)
