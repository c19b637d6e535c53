// Package normalize canonicalizes user-supplied identity fields before they
// are compared or stored.
package normalize

import "strings"

// Email trims surrounding whitespace and lower-cases the address.
// Stored emails and lookup keys always go through this.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims surrounding whitespace and collapses inner runs of spaces.
// Case is preserved.
func Name(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Provider lower-cases a social provider name taken from a URL or config.
func Provider(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Tags trims, lower-cases and de-duplicates a tag list, dropping empties.
// Order of first appearance is kept.
func Tags(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
