package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConcurrencyConflict is returned by an EventStore when the
	// expected version does not match the stream's current version.
	// It is transient and retried by the service layer.
	ErrConcurrencyConflict = errors.New("concurrency conflict: stream version mismatch")

	// ErrCartClosed is returned when a command would mutate a checked-out cart.
	ErrCartClosed = errors.New("cart is checked out")

	// ErrCartOpen is returned when a cart is reopened while still open.
	ErrCartOpen = errors.New("cart is already open")

	// ErrEmptyCart is returned when an empty cart is checked out.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrInsufficientQuantity is returned when a removal exceeds the held quantity.
	ErrInsufficientQuantity = errors.New("insufficient quantity")

	// ErrProductUnavailable is returned when the catalog reports a product
	// as unknown or out of stock.
	ErrProductUnavailable = errors.New("product unavailable")

	// ErrWriteContention is returned after conflict retries are exhausted.
	ErrWriteContention = errors.New("write contention: retries exhausted")

	// ErrCorruptedStream is returned when folding encounters an event
	// sequence that violates a cart invariant. It is fatal for the stream.
	ErrCorruptedStream = errors.New("corrupted event stream")
)

// InsufficientQuantityError reports a removal exceeding the held quantity.
type InsufficientQuantityError struct {
	ProductID string
	Requested int64
	Held      int64
}

func (e *InsufficientQuantityError) Error() string {
	return fmt.Sprintf("insufficient quantity of product %s: requested %d, held %d",
		e.ProductID, e.Requested, e.Held)
}

func (e *InsufficientQuantityError) Is(target error) bool {
	return target == ErrInsufficientQuantity
}

// ProductUnavailableError reports a product the catalog knows to be
// unknown or out of stock. It is a validation rejection, distinct from
// the catalog being unreachable.
type ProductUnavailableError struct {
	ProductID string
	Reason    string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s unavailable: %s", e.ProductID, e.Reason)
}

func (e *ProductUnavailableError) Is(target error) bool {
	return target == ErrProductUnavailable
}

// WriteContentionError reports that a command lost the optimistic
// concurrency race on every attempt.
type WriteContentionError struct {
	StreamID string
	Attempts int
}

func (e *WriteContentionError) Error() string {
	return fmt.Sprintf("write contention on stream %s after %d attempts", e.StreamID, e.Attempts)
}

func (e *WriteContentionError) Is(target error) bool {
	return target == ErrWriteContention
}

// CorruptionError reports an event sequence that can not be folded into a
// valid cart state. It indicates a write-path bug or log tampering, never
// a normal runtime condition, and stops processing for the stream.
type CorruptionError struct {
	StreamID string
	Version  int64
	Reason   string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupted stream %s at version %d: %s", e.StreamID, e.Version, e.Reason)
}

func (e *CorruptionError) Is(target error) bool {
	return target == ErrCorruptedStream
}

// IsValidation reports whether err is a semantic rejection of the
// caller's request. Validation errors are never retried.
func IsValidation(err error) bool {
	return errors.Is(err, ErrCartClosed) ||
		errors.Is(err, ErrCartOpen) ||
		errors.Is(err, ErrEmptyCart) ||
		errors.Is(err, ErrInsufficientQuantity) ||
		errors.Is(err, ErrProductUnavailable)
}
