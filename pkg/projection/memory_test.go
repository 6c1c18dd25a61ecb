package projection_test

import (
	"context"
	"testing"

	"github.com/plaenen/cartstore/pkg/domain"
	"github.com/plaenen/cartstore/pkg/projection"
)

func snapshotAt(userID string, version int64) *domain.CartState {
	state := domain.NewCartState(userID)
	state.Version = version
	state.Lines["7"] = domain.CartLine{ProductID: "7", Quantity: version, Currency: "USD"}
	return state
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	cache := projection.NewMemoryCache()

	t.Run("Miss", func(t *testing.T) {
		_, ok, err := cache.Get(ctx, "42")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if ok {
			t.Error("expected a miss")
		}
	})

	t.Run("PutAndGet", func(t *testing.T) {
		if err := cache.Put(ctx, projection.NewEntry(snapshotAt("42", 3))); err != nil {
			t.Fatalf("put: %v", err)
		}

		entry, ok, err := cache.Get(ctx, "42")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !ok || entry.CachedVersion != 3 {
			t.Fatalf("unexpected entry: %+v", entry)
		}
		if entry.Snapshot.Lines["7"].Quantity != 3 {
			t.Errorf("unexpected snapshot: %+v", entry.Snapshot)
		}
	})

	t.Run("StalePutIsNoOp", func(t *testing.T) {
		if err := cache.Put(ctx, projection.NewEntry(snapshotAt("42", 2))); err != nil {
			t.Fatalf("put: %v", err)
		}

		entry, ok, err := cache.Get(ctx, "42")
		if err != nil || !ok {
			t.Fatalf("get: ok=%v err=%v", ok, err)
		}
		if entry.CachedVersion != 3 {
			t.Errorf("stale put clobbered version: %d", entry.CachedVersion)
		}
	})

	t.Run("NewerPutWins", func(t *testing.T) {
		if err := cache.Put(ctx, projection.NewEntry(snapshotAt("42", 5))); err != nil {
			t.Fatalf("put: %v", err)
		}

		entry, _, err := cache.Get(ctx, "42")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if entry.CachedVersion != 5 {
			t.Errorf("expected version 5, got %d", entry.CachedVersion)
		}
	})

	t.Run("Invalidate", func(t *testing.T) {
		if err := cache.Invalidate(ctx, "42"); err != nil {
			t.Fatalf("invalidate: %v", err)
		}
		_, ok, err := cache.Get(ctx, "42")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if ok {
			t.Error("expected a miss after invalidation")
		}
	})

	t.Run("SnapshotsDoNotShareLineMaps", func(t *testing.T) {
		state := snapshotAt("43", 1)
		if err := cache.Put(ctx, projection.NewEntry(state)); err != nil {
			t.Fatalf("put: %v", err)
		}

		// Mutating the caller's state must not leak into the cache.
		state.Lines["7"] = domain.CartLine{ProductID: "7", Quantity: 99}

		entry, ok, err := cache.Get(ctx, "43")
		if err != nil || !ok {
			t.Fatalf("get: ok=%v err=%v", ok, err)
		}
		if entry.Snapshot.Lines["7"].Quantity != 1 {
			t.Errorf("cache shares state with caller: %+v", entry.Snapshot.Lines)
		}
	})
}
