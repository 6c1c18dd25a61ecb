package idgen

import (
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestMustSortableID(t *testing.T) {
	t.Run("ParsesAsULID", func(t *testing.T) {
		id := MustSortableID()
		if _, err := ulid.ParseStrict(id); err != nil {
			t.Fatalf("invalid ULID %q: %v", id, err)
		}
	})

	t.Run("UniqueInTightLoop", func(t *testing.T) {
		// Many IDs land in the same millisecond here; every one must
		// still be distinct or event_id uniqueness would break
		// mid-append.
		const n = 10000
		seen := make(map[string]struct{}, n)
		for i := 0; i < n; i++ {
			id := MustSortableID()
			if _, dup := seen[id]; dup {
				t.Fatalf("duplicate ULID %q after %d IDs", id, i)
			}
			seen[id] = struct{}{}
		}
	})

	t.Run("SortableByCreation", func(t *testing.T) {
		prev := MustSortableID()
		for i := 0; i < 100; i++ {
			next := MustSortableID()
			if next <= prev {
				t.Fatalf("ULID %q not greater than predecessor %q", next, prev)
			}
			prev = next
		}
	})
}
