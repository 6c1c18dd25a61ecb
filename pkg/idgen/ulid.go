package idgen

import (
	"github.com/oklog/ulid/v2"
)

// MustSortableID returns a ULID: unique, lexicographically sortable by
// creation time. Used for event and command identifiers. The shared
// monotonic entropy source keeps IDs distinct even within the same
// millisecond.
func MustSortableID() string {
	return ulid.Make().String()
}
