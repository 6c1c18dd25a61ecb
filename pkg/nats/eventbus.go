// Package nats provides a NATS JetStream implementation of the
// messaging.EventBus contract, plus an embedded server for tests.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/plaenen/cartstore/pkg/domain"
	"github.com/plaenen/cartstore/pkg/idgen"
	"github.com/plaenen/cartstore/pkg/messaging"
)

// EventBus publishes cart events to NATS JetStream with at-least-once
// delivery and event-ID deduplication.
type EventBus struct {
	nc         *nats.Conn
	js         nats.JetStreamContext
	streamName string
	mu         sync.RWMutex
	subs       map[string]*nats.Subscription
}

// Config holds configuration for the NATS event bus.
type Config struct {
	// URL is the NATS server URL.
	URL string

	// StreamName is the JetStream stream name for cart events.
	StreamName string

	// StreamSubjects are the subjects the stream captures.
	StreamSubjects []string

	// MaxAge is how long to retain events in the stream.
	MaxAge time.Duration

	// MaxBytes is the maximum bytes the stream can store.
	MaxBytes int64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:            nats.DefaultURL,
		StreamName:     "CARTS",
		StreamSubjects: []string{"carts.>"},
		MaxAge:         7 * 24 * time.Hour,
		MaxBytes:       1024 * 1024 * 1024, // 1 GB
	}
}

// NewEventBus connects to NATS and ensures the cart event stream exists.
func NewEventBus(config Config) (*EventBus, error) {
	nc, err := nats.Connect(config.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	bus := &EventBus{
		nc:         nc,
		js:         js,
		streamName: config.StreamName,
		subs:       make(map[string]*nats.Subscription),
	}

	if err := bus.ensureStream(config); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return bus, nil
}

func (b *EventBus) ensureStream(config Config) error {
	streamConfig := &nats.StreamConfig{
		Name:      config.StreamName,
		Subjects:  config.StreamSubjects,
		Retention: nats.InterestPolicy,
		MaxAge:    config.MaxAge,
		MaxBytes:  config.MaxBytes,
		Storage:   nats.FileStorage,
		Replicas:  1,
	}

	stream, err := b.js.StreamInfo(config.StreamName)
	if err != nil {
		if _, err := b.js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		return nil
	}

	if stream.Config.MaxAge != config.MaxAge || stream.Config.MaxBytes != config.MaxBytes {
		if _, err := b.js.UpdateStream(streamConfig); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
	}
	return nil
}

func subjectFor(kind domain.EventKind) string {
	return fmt.Sprintf("carts.%s", kind)
}

// Publish implements messaging.EventBus.
func (b *EventBus) Publish(ctx context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, evt := range events {
		data, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("serialize event %s: %w", evt.ID, err)
		}

		// Event ID doubles as the JetStream message ID for dedup.
		_, err = b.js.Publish(subjectFor(evt.Kind), data, nats.MsgId(evt.ID), nats.Context(ctx))
		if err != nil {
			return fmt.Errorf("publish event %s: %w", evt.ID, err)
		}
	}
	return nil
}

// Subscribe implements messaging.EventBus.
func (b *EventBus) Subscribe(filter messaging.EventFilter, handler messaging.EventHandler) (messaging.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subject := buildSubject(filter)
	consumerName := fmt.Sprintf("consumer_%s", idgen.MustSortableID()[:8])

	sub, err := b.js.QueueSubscribe(
		subject,
		consumerName,
		func(msg *nats.Msg) {
			var evt domain.Event
			if err := json.Unmarshal(msg.Data, &evt); err != nil {
				msg.Nak()
				return
			}
			if len(filter.Kinds) > 0 && !matchesKinds(filter.Kinds, evt.Kind) {
				msg.Ack()
				return
			}
			if err := handler(&evt); err != nil {
				msg.Nak()
				return
			}
			msg.Ack()
		},
		nats.Durable(consumerName),
		nats.ManualAck(),
		nats.AckExplicit(),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	b.subs[consumerName] = sub
	return &subscription{bus: b, sub: sub, consumerName: consumerName}, nil
}

func buildSubject(filter messaging.EventFilter) string {
	if len(filter.Kinds) == 1 {
		return subjectFor(filter.Kinds[0])
	}
	// Multi-kind filters subscribe to all and filter in the handler.
	return "carts.>"
}

func matchesKinds(kinds []domain.EventKind, kind domain.EventKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Close implements messaging.EventBus.
func (b *EventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		sub.Unsubscribe()
	}
	b.nc.Close()
	return nil
}

type subscription struct {
	bus          *EventBus
	sub          *nats.Subscription
	consumerName string
}

func (s *subscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	delete(s.bus.subs, s.consumerName)
	return s.sub.Unsubscribe()
}
