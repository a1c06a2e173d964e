package session

import "github.com/oklog/ulid/v2"

// NewID returns a lexically sortable unique ID with the given prefix.
func NewID(prefix string) string {
	return prefix + ulid.Make().String()
}
