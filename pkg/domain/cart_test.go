package domain_test

import (
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/plaenen/cartstore/pkg/domain"
)

func priced(id string, qty int64, price string) domain.ItemRequest {
	return domain.ItemRequest{
		ProductID: id,
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString(price),
		Currency:  "USD",
	}
}

// run validates cmd against state, applies the produced events, and
// returns them. It fails the test on any error.
func run(t *testing.T, state *domain.CartState, cmd domain.Command) []*domain.Event {
	t.Helper()
	events, err := domain.ValidateCommand(state, cmd, domain.EventMetadata{})
	if err != nil {
		t.Fatalf("validate %s: %v", cmd.Name(), err)
	}
	for _, evt := range events {
		if err := state.Apply(evt); err != nil {
			t.Fatalf("apply %s: %v", evt.Kind, err)
		}
	}
	return events
}

func TestFold(t *testing.T) {
	t.Run("EmptyStream", func(t *testing.T) {
		state, err := domain.Fold("42", nil)
		if err != nil {
			t.Fatalf("fold: %v", err)
		}
		if state.Version != 0 || state.Status != domain.StatusOpen || !state.IsEmpty() {
			t.Errorf("expected empty open cart at version 0, got %+v", state)
		}
	})

	t.Run("AddRemoveCheckout", func(t *testing.T) {
		state := domain.NewCartState("42")
		var history []*domain.Event

		history = append(history, run(t, state, domain.AddItems{
			UserID: "42",
			Items:  []domain.ItemRequest{priced("7", 2, "3.50"), priced("9", 1, "1.25")},
		})...)
		history = append(history, run(t, state, domain.RemoveItems{
			UserID: "42",
			Items:  []domain.ItemRequest{{ProductID: "7", Quantity: 1}},
		})...)
		history = append(history, run(t, state, domain.Checkout{UserID: "42"})...)

		folded, err := domain.Fold("42", history)
		if err != nil {
			t.Fatalf("fold: %v", err)
		}
		if folded.Status != domain.StatusCheckedOut {
			t.Errorf("expected checked-out cart, got %s", folded.Status)
		}
		if folded.Version != int64(len(history)) {
			t.Errorf("expected version %d, got %d", len(history), folded.Version)
		}
		if folded.Lines["7"].Quantity != 1 || folded.Lines["9"].Quantity != 1 {
			t.Errorf("unexpected lines: %+v", folded.Lines)
		}

		total, currency := folded.Total()
		if want := decimal.RequireFromString("4.75"); !total.Equal(want) {
			t.Errorf("expected total %s, got %s", want, total)
		}
		if currency != "USD" {
			t.Errorf("expected USD, got %s", currency)
		}
	})

	t.Run("RemovalDeletesZeroLine", func(t *testing.T) {
		state := domain.NewCartState("42")
		run(t, state, domain.AddItems{UserID: "42", Items: []domain.ItemRequest{priced("7", 2, "3.50")}})
		run(t, state, domain.RemoveItems{UserID: "42", Items: []domain.ItemRequest{{ProductID: "7", Quantity: 2}}})

		if _, present := state.Lines["7"]; present {
			t.Error("line with quantity 0 must be removed, not stored")
		}
	})

	t.Run("Idempotence", func(t *testing.T) {
		state := domain.NewCartState("42")
		history := run(t, state, domain.AddItems{
			UserID: "42",
			Items:  []domain.ItemRequest{priced("7", 2, "3.50"), priced("9", 1, "1.25")},
		})

		first, err := domain.Fold("42", history)
		if err != nil {
			t.Fatalf("fold: %v", err)
		}
		for i := 0; i < 5; i++ {
			again, err := domain.Fold("42", history)
			if err != nil {
				t.Fatalf("refold %d: %v", i, err)
			}
			if !reflect.DeepEqual(first, again) {
				t.Fatalf("refold %d diverged: %+v vs %+v", i, first, again)
			}
		}
	})

	t.Run("ReopenStartsFreshEpoch", func(t *testing.T) {
		state := domain.NewCartState("42")
		run(t, state, domain.AddItems{UserID: "42", Items: []domain.ItemRequest{priced("7", 1, "3.50")}})
		run(t, state, domain.Checkout{UserID: "42"})
		run(t, state, domain.Reopen{UserID: "42"})

		if state.Status != domain.StatusOpen || !state.IsEmpty() {
			t.Errorf("expected fresh open cart, got %+v", state)
		}
		if state.Epoch != 2 {
			t.Errorf("expected epoch 2, got %d", state.Epoch)
		}
	})
}

func TestFoldCorruption(t *testing.T) {
	event := func(kind domain.EventKind, version int64, payload any) *domain.Event {
		evt, err := domain.NewEvent("evt", "42", kind, version, payload, domain.EventMetadata{})
		if err != nil {
			t.Fatalf("new event: %v", err)
		}
		return evt
	}

	add := func(version int64, qty int64) *domain.Event {
		return event(domain.KindItemAdded, version, domain.ItemAddedPayload{
			ProductID: "7", Quantity: qty, UnitPrice: decimal.New(1, 0), Currency: "USD",
		})
	}

	cases := []struct {
		name   string
		events []*domain.Event
	}{
		{"SequenceGap", []*domain.Event{add(2, 1)}},
		{"NegativeQuantity", []*domain.Event{
			add(1, 1),
			event(domain.KindItemRemoved, 2, domain.ItemRemovedPayload{ProductID: "7", Quantity: 2}),
		}},
		{"RemovalOfUnknownProduct", []*domain.Event{
			event(domain.KindItemRemoved, 1, domain.ItemRemovedPayload{ProductID: "9", Quantity: 1}),
		}},
		{"EventAfterCheckout", []*domain.Event{
			add(1, 1),
			event(domain.KindCartCheckedOut, 2, domain.CartCheckedOutPayload{Total: decimal.New(1, 0), Currency: "USD"}),
			add(3, 1),
		}},
		{"ReopenWhileOpen", []*domain.Event{
			add(1, 1),
			event(domain.KindCartOpened, 2, domain.CartOpenedPayload{Epoch: 2}),
		}},
		{"NonPositiveAdd", []*domain.Event{add(1, 0)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := domain.Fold("42", tc.events)
			if !errors.Is(err, domain.ErrCorruptedStream) {
				t.Errorf("expected corruption error, got %v", err)
			}
			var corruption *domain.CorruptionError
			if !errors.As(err, &corruption) {
				t.Errorf("expected *CorruptionError, got %T", err)
			}
		})
	}
}

func TestValidateCommand(t *testing.T) {
	t.Run("AddToCheckedOutCart", func(t *testing.T) {
		state := domain.NewCartState("42")
		run(t, state, domain.AddItems{UserID: "42", Items: []domain.ItemRequest{priced("7", 1, "3.50")}})
		run(t, state, domain.Checkout{UserID: "42"})

		before := state.Version
		_, err := domain.ValidateCommand(state, domain.AddItems{
			UserID: "42",
			Items:  []domain.ItemRequest{priced("9", 1, "1.25")},
		}, domain.EventMetadata{})
		if !errors.Is(err, domain.ErrCartClosed) {
			t.Errorf("expected ErrCartClosed, got %v", err)
		}
		if state.Version != before {
			t.Errorf("version must be unchanged, got %d", state.Version)
		}
	})

	t.Run("RemoveMoreThanHeld", func(t *testing.T) {
		state := domain.NewCartState("42")
		run(t, state, domain.AddItems{UserID: "42", Items: []domain.ItemRequest{priced("7", 2, "3.50")}})

		_, err := domain.ValidateCommand(state, domain.RemoveItems{
			UserID: "42",
			Items:  []domain.ItemRequest{{ProductID: "7", Quantity: 3}},
		}, domain.EventMetadata{})
		if !errors.Is(err, domain.ErrInsufficientQuantity) {
			t.Errorf("expected ErrInsufficientQuantity, got %v", err)
		}

		var insufficient *domain.InsufficientQuantityError
		if !errors.As(err, &insufficient) {
			t.Fatalf("expected *InsufficientQuantityError, got %T", err)
		}
		if insufficient.Requested != 3 || insufficient.Held != 2 {
			t.Errorf("unexpected detail: %+v", insufficient)
		}
	})

	t.Run("CheckoutEmptyCart", func(t *testing.T) {
		state := domain.NewCartState("42")
		_, err := domain.ValidateCommand(state, domain.Checkout{UserID: "42"}, domain.EventMetadata{})
		if !errors.Is(err, domain.ErrEmptyCart) {
			t.Errorf("expected ErrEmptyCart, got %v", err)
		}
	})

	t.Run("ReopenOpenCart", func(t *testing.T) {
		state := domain.NewCartState("42")
		_, err := domain.ValidateCommand(state, domain.Reopen{UserID: "42"}, domain.EventMetadata{})
		if !errors.Is(err, domain.ErrCartOpen) {
			t.Errorf("expected ErrCartOpen, got %v", err)
		}
	})

	t.Run("EventVersionsAreConsecutive", func(t *testing.T) {
		state := domain.NewCartState("42")
		events, err := domain.ValidateCommand(state, domain.AddItems{
			UserID: "42",
			Items:  []domain.ItemRequest{priced("7", 2, "3.50"), priced("9", 1, "1.25")},
		}, domain.EventMetadata{})
		if err != nil {
			t.Fatalf("validate: %v", err)
		}
		for i, evt := range events {
			if want := int64(i + 1); evt.Version != want {
				t.Errorf("event %d: expected version %d, got %d", i, want, evt.Version)
			}
		}
	})
}

func TestCollectItems(t *testing.T) {
	items := domain.CollectItems([]string{"7", "7", "9"})
	want := []domain.ItemRequest{
		{ProductID: "7", Quantity: 2},
		{ProductID: "9", Quantity: 1},
	}
	if !reflect.DeepEqual(items, want) {
		t.Errorf("expected %+v, got %+v", want, items)
	}
}

func TestMain(m *testing.M) {
	domain.TimeFunc = func() time.Time {
		return time.Unix(1234567890, 0)
	}

	code := m.Run()

	domain.TimeFunc = time.Now
	os.Exit(code)
}
