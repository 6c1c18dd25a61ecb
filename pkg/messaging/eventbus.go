// Package messaging defines the after-commit event publication
// contract. Committed cart events are broadcast so read models outside
// this process can follow the log; publication is best-effort and never
// part of a command's success.
package messaging

import (
	"context"

	"github.com/plaenen/cartstore/pkg/domain"
)

// EventFilter selects events by kind. An empty filter matches all.
type EventFilter struct {
	Kinds []domain.EventKind
}

// EventHandler processes one published event. Returning an error makes
// the bus redeliver the event (at-least-once).
type EventHandler func(evt *domain.Event) error

// Subscription is an active event subscription.
type Subscription interface {
	Unsubscribe() error
}

// EventBus publishes committed events and delivers them to subscribers.
type EventBus interface {
	// Publish publishes events in order. Implementations deduplicate by
	// event ID, so republishing after a partial failure is safe.
	Publish(ctx context.Context, events []*domain.Event) error

	// Subscribe registers handler for events matching filter.
	Subscribe(filter EventFilter, handler EventHandler) (Subscription, error)

	// Close shuts down the bus and all subscriptions.
	Close() error
}
