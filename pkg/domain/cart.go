package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CartStatus is the lifecycle state of a cart epoch.
type CartStatus string

const (
	// StatusOpen accepts item and checkout commands.
	StatusOpen CartStatus = "OPEN"

	// StatusCheckedOut accepts no further mutation. Only a CartOpened
	// event beginning a new epoch may follow.
	StatusCheckedOut CartStatus = "CHECKED_OUT"
)

// CartLine is one product position in a cart. Quantity is always
// positive; a line whose quantity reaches zero is removed, never stored.
type CartLine struct {
	ProductID string          `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Currency  string          `json:"currency"`
}

// CartState is the materialized view of one user's cart. It is derived
// by folding the user's event stream and is never the source of truth.
type CartState struct {
	UserID string              `json:"user_id"`
	Lines  map[string]CartLine `json:"lines"`
	Status CartStatus          `json:"status"`

	// Version is the highest folded sequence number.
	Version int64 `json:"version"`

	// Epoch counts cart lifetimes for this user, starting at 1.
	// Reopening after checkout begins a new epoch.
	Epoch int64 `json:"epoch"`
}

// NewCartState returns the empty open cart at version 0. This is the
// fold seed and also what callers observe for a user with no events.
func NewCartState(userID string) *CartState {
	return &CartState{
		UserID: userID,
		Lines:  make(map[string]CartLine),
		Status: StatusOpen,
		Epoch:  1,
	}
}

// Clone returns a deep copy. Cached snapshots are cloned on the way in
// and out so concurrent readers never share line maps.
func (s *CartState) Clone() *CartState {
	lines := make(map[string]CartLine, len(s.Lines))
	for id, line := range s.Lines {
		lines[id] = line
	}
	cp := *s
	cp.Lines = lines
	return &cp
}

// IsEmpty reports whether the cart holds no lines.
func (s *CartState) IsEmpty() bool {
	return len(s.Lines) == 0
}

// Total returns the cart total and its currency. The currency is taken
// from the lines; a cart holds at most one currency.
func (s *CartState) Total() (decimal.Decimal, string) {
	total := decimal.Zero
	currency := ""
	for _, line := range s.Lines {
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(line.Quantity)))
		if currency == "" {
			currency = line.Currency
		}
	}
	return total, currency
}

// Fold reconstructs the cart state for userID by applying events in
// order onto the empty state. Folding the same sequence any number of
// times yields an identical state. A sequence that violates a cart
// invariant returns a CorruptionError; such events should never have
// been appended, so processing for the stream must stop.
func Fold(userID string, events []*Event) (*CartState, error) {
	state := NewCartState(userID)
	for _, evt := range events {
		if err := state.Apply(evt); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// Apply folds a single event onto the state in place.
func (s *CartState) Apply(evt *Event) error {
	if evt.StreamID != s.UserID {
		return &CorruptionError{
			StreamID: s.UserID,
			Version:  evt.Version,
			Reason:   fmt.Sprintf("event belongs to stream %s", evt.StreamID),
		}
	}
	if evt.Version != s.Version+1 {
		return &CorruptionError{
			StreamID: s.UserID,
			Version:  evt.Version,
			Reason:   fmt.Sprintf("sequence gap: expected %d", s.Version+1),
		}
	}
	if s.Status == StatusCheckedOut && evt.Kind != KindCartOpened {
		return &CorruptionError{
			StreamID: s.UserID,
			Version:  evt.Version,
			Reason:   fmt.Sprintf("%s after checkout", evt.Kind),
		}
	}

	switch evt.Kind {
	case KindCartOpened:
		if err := s.applyCartOpened(evt); err != nil {
			return err
		}
	case KindItemAdded:
		if err := s.applyItemAdded(evt); err != nil {
			return err
		}
	case KindItemRemoved:
		if err := s.applyItemRemoved(evt); err != nil {
			return err
		}
	case KindCartCheckedOut:
		if s.IsEmpty() {
			return &CorruptionError{
				StreamID: s.UserID,
				Version:  evt.Version,
				Reason:   "checkout of empty cart",
			}
		}
		s.Status = StatusCheckedOut
	default:
		return &CorruptionError{
			StreamID: s.UserID,
			Version:  evt.Version,
			Reason:   fmt.Sprintf("unknown event kind %q", evt.Kind),
		}
	}

	s.Version = evt.Version
	return nil
}

func (s *CartState) applyCartOpened(evt *Event) error {
	var payload CartOpenedPayload
	if err := evt.DecodePayload(&payload); err != nil {
		return &CorruptionError{StreamID: s.UserID, Version: evt.Version, Reason: err.Error()}
	}

	// Legal only as the first event of a stream or directly after a
	// checkout; an open cart is never reopened over.
	switch {
	case s.Version == 0:
		if payload.Epoch != 1 {
			return &CorruptionError{
				StreamID: s.UserID,
				Version:  evt.Version,
				Reason:   fmt.Sprintf("first epoch must be 1, got %d", payload.Epoch),
			}
		}
	case s.Status == StatusCheckedOut:
		if payload.Epoch != s.Epoch+1 {
			return &CorruptionError{
				StreamID: s.UserID,
				Version:  evt.Version,
				Reason:   fmt.Sprintf("epoch jump: expected %d, got %d", s.Epoch+1, payload.Epoch),
			}
		}
	default:
		return &CorruptionError{
			StreamID: s.UserID,
			Version:  evt.Version,
			Reason:   "cart reopened while open",
		}
	}

	s.Lines = make(map[string]CartLine)
	s.Status = StatusOpen
	s.Epoch = payload.Epoch
	return nil
}

func (s *CartState) applyItemAdded(evt *Event) error {
	var payload ItemAddedPayload
	if err := evt.DecodePayload(&payload); err != nil {
		return &CorruptionError{StreamID: s.UserID, Version: evt.Version, Reason: err.Error()}
	}
	if payload.Quantity <= 0 {
		return &CorruptionError{
			StreamID: s.UserID,
			Version:  evt.Version,
			Reason:   fmt.Sprintf("non-positive add of %d for product %s", payload.Quantity, payload.ProductID),
		}
	}

	line := s.Lines[payload.ProductID]
	line.ProductID = payload.ProductID
	line.Quantity += payload.Quantity
	line.UnitPrice = payload.UnitPrice
	line.Currency = payload.Currency
	s.Lines[payload.ProductID] = line
	return nil
}

func (s *CartState) applyItemRemoved(evt *Event) error {
	var payload ItemRemovedPayload
	if err := evt.DecodePayload(&payload); err != nil {
		return &CorruptionError{StreamID: s.UserID, Version: evt.Version, Reason: err.Error()}
	}
	if payload.Quantity <= 0 {
		return &CorruptionError{
			StreamID: s.UserID,
			Version:  evt.Version,
			Reason:   fmt.Sprintf("non-positive removal of %d for product %s", payload.Quantity, payload.ProductID),
		}
	}

	line, ok := s.Lines[payload.ProductID]
	if !ok || line.Quantity < payload.Quantity {
		return &CorruptionError{
			StreamID: s.UserID,
			Version:  evt.Version,
			Reason:   fmt.Sprintf("removal drives product %s quantity negative", payload.ProductID),
		}
	}

	line.Quantity -= payload.Quantity
	if line.Quantity == 0 {
		delete(s.Lines, payload.ProductID)
	} else {
		s.Lines[payload.ProductID] = line
	}
	return nil
}
