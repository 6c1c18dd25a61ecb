package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EventKind identifies the type of a cart domain event.
type EventKind string

const (
	// KindCartOpened begins a fresh cart epoch for a user, either as the
	// first event of a stream or immediately after a checkout.
	KindCartOpened EventKind = "cart.CartOpened"

	// KindItemAdded increases the quantity of one product line.
	KindItemAdded EventKind = "cart.ItemAdded"

	// KindItemRemoved decreases the quantity of one product line.
	KindItemRemoved EventKind = "cart.ItemRemoved"

	// KindCartCheckedOut closes the current cart epoch.
	KindCartCheckedOut EventKind = "cart.CartCheckedOut"
)

// Event is an immutable fact recorded on a user's cart stream.
// Once appended to an EventStore it is never mutated or deleted.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// StreamID is the user identifier owning the stream.
	StreamID string `json:"stream_id"`

	// Kind is the event type.
	Kind EventKind `json:"kind"`

	// Version is the sequence number of this event within its stream.
	// Sequence numbers are consecutive and start at 1.
	Version int64 `json:"version"`

	// Timestamp is when the event was created.
	Timestamp time.Time `json:"timestamp"`

	// Payload is the serialized event payload. Empty for kinds that
	// carry no payload.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Metadata carries contextual information about the event.
	Metadata EventMetadata `json:"metadata"`
}

// EventMetadata contains contextual information about an event.
type EventMetadata struct {
	// CommandID is the ID of the command that caused this event.
	CommandID string `json:"command_id,omitempty"`

	// CorrelationID is used to trace related events across streams.
	CorrelationID string `json:"correlation_id,omitempty"`

	// PrincipalID is the identifier of the principal who triggered this event.
	PrincipalID string `json:"principal_id,omitempty"`
}

// CartOpenedPayload is the payload of a CartOpened event.
type CartOpenedPayload struct {
	// Epoch is the cart lifetime this event begins, starting at 1.
	Epoch int64 `json:"epoch"`
}

// ItemAddedPayload is the payload of an ItemAdded event.
// Quantity is the positive delta applied to the product line.
// UnitPrice is the catalog price captured when the command was validated,
// so folds never depend on catalog availability after the fact.
type ItemAddedPayload struct {
	ProductID string          `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Currency  string          `json:"currency"`
}

// ItemRemovedPayload is the payload of an ItemRemoved event.
// Quantity is the positive delta subtracted from the product line.
type ItemRemovedPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// CartCheckedOutPayload is the payload of a CartCheckedOut event.
type CartCheckedOutPayload struct {
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
}

// NewEvent builds an event with a serialized payload. A nil payload
// produces an event with no payload bytes.
func NewEvent(id, streamID string, kind EventKind, version int64, payload any, metadata EventMetadata) (*Event, error) {
	evt := &Event{
		ID:        id,
		StreamID:  streamID,
		Kind:      kind,
		Version:   version,
		Timestamp: Now(),
		Metadata:  metadata,
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
		}
		evt.Payload = data
	}

	return evt, nil
}

// DecodePayload deserializes the event payload into target.
func (e *Event) DecodePayload(target any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.ID)
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Kind, err)
	}
	return nil
}

// TimeFunc returns the current time when events are created.
// It can be overridden for deterministic testing.
var TimeFunc = time.Now

// Now returns the current time using the configured TimeFunc.
func Now() time.Time {
	return TimeFunc()
}
