// Package cartsvc implements the shopping cart command and query
// surface on top of the event store, product catalog, projection cache
// and event bus.
package cartsvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/plaenen/cartstore/pkg/catalog"
	"github.com/plaenen/cartstore/pkg/currency"
	"github.com/plaenen/cartstore/pkg/domain"
	"github.com/plaenen/cartstore/pkg/idgen"
	"github.com/plaenen/cartstore/pkg/messaging"
	"github.com/plaenen/cartstore/pkg/observability"
	"github.com/plaenen/cartstore/pkg/projection"
	"github.com/plaenen/cartstore/pkg/store"
)

// defaultMaxAttempts bounds optimistic concurrency retries per command.
const defaultMaxAttempts = 3

// Service coordinates cart commands: it resolves current state, asks
// the catalog, validates, appends with optimistic concurrency, then
// refreshes the cache and publishes committed events.
//
// The event store is the only source of truth. The cache is an
// optimization on the read path; disagreement with the store is always
// resolved in the store's favor.
type Service struct {
	store   store.EventStore
	catalog catalog.Client
	cache   projection.Cache
	bus     messaging.EventBus

	logger      *slog.Logger
	metrics     *observability.Metrics
	tracer      trace.Tracer
	maxAttempts int
}

// Option configures a Service.
type Option func(*Service)

// WithCache sets the projection cache. Without one every read replays
// the full stream.
func WithCache(c projection.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithEventBus sets the after-commit event bus. Publication is
// best-effort; command success never depends on it.
func WithEventBus(b messaging.EventBus) Option {
	return func(s *Service) { s.bus = b }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracer sets the tracer for command spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithMaxAttempts sets the optimistic concurrency retry budget.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// New creates a Service over the given event store and catalog client.
func New(es store.EventStore, cat catalog.Client, opts ...Option) (*Service, error) {
	if es == nil {
		return nil, errors.New("cartsvc: event store is required")
	}
	if cat == nil {
		return nil, errors.New("cartsvc: catalog client is required")
	}

	s := &Service{
		store:       es,
		catalog:     cat,
		logger:      slog.Default(),
		tracer:      noop.NewTracerProvider().Tracer("cartsvc"),
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = projection.NewMemoryCache()
	}
	return s, nil
}

// GetCart returns the user's current cart. A user with no events
// observes an empty open cart at version 0.
func (s *Service) GetCart(ctx context.Context, userID string) (*domain.CartState, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "cartsvc.GetCart",
		trace.WithAttributes(attribute.String("cart.user_id", userID)))
	defer span.End()

	return s.currentState(ctx, userID)
}

// AddItems adds the referenced products to the user's cart. Repeated
// product IDs accumulate quantity. Every distinct product is checked
// against the catalog before any event is written; a single unknown,
// out-of-stock or unreachable product rejects the whole command.
func (s *Service) AddItems(ctx context.Context, userID string, productIDs []string) (*domain.CartState, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if len(productIDs) == 0 {
		return nil, errors.New("no products given")
	}

	items := domain.CollectItems(productIDs)
	if err := validateProductIDs(items); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "cartsvc.AddItems",
		trace.WithAttributes(
			attribute.String("cart.user_id", userID),
			attribute.Int("cart.distinct_products", len(items)),
		))
	defer span.End()

	// Catalog checks run before any state is loaded and strictly before
	// the append, never inside the retry loop.
	items, err := s.resolveProducts(ctx, items)
	if err != nil {
		return nil, err
	}

	return s.execute(ctx, domain.AddItems{UserID: userID, Items: items})
}

// RemoveItems subtracts the referenced products from the user's cart.
// A removal that exceeds any held quantity rejects the whole command
// and leaves the stream untouched.
func (s *Service) RemoveItems(ctx context.Context, userID string, productIDs []string) (*domain.CartState, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if len(productIDs) == 0 {
		return nil, errors.New("no products given")
	}

	items := domain.CollectItems(productIDs)
	if err := validateProductIDs(items); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "cartsvc.RemoveItems",
		trace.WithAttributes(attribute.String("cart.user_id", userID)))
	defer span.End()

	return s.execute(ctx, domain.RemoveItems{UserID: userID, Items: items})
}

// Checkout closes the user's cart. The emitted event carries the cart
// total computed from the prices captured when the items were added.
func (s *Service) Checkout(ctx context.Context, userID string) (*domain.CartState, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "cartsvc.Checkout",
		trace.WithAttributes(attribute.String("cart.user_id", userID)))
	defer span.End()

	state, err := s.execute(ctx, domain.Checkout{UserID: userID})
	if err != nil {
		return nil, err
	}

	total, code := state.Total()
	s.logger.InfoContext(ctx, "cart checked out",
		slog.String("user_id", userID),
		slog.Int64("version", state.Version),
		slog.String("total", currency.Format(total, code)),
	)
	return state, nil
}

// Reopen starts a new cart epoch for a checked-out cart. The new epoch
// begins empty.
func (s *Service) Reopen(ctx context.Context, userID string) (*domain.CartState, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "cartsvc.Reopen",
		trace.WithAttributes(attribute.String("cart.user_id", userID)))
	defer span.End()

	return s.execute(ctx, domain.Reopen{UserID: userID})
}

// execute runs the load-validate-append cycle with optimistic
// concurrency retries. Validation rejections return immediately;
// version conflicts reload and retry up to the attempt budget.
func (s *Service) execute(ctx context.Context, cmd domain.Command) (*domain.CartState, error) {
	start := time.Now()
	userID := cmd.User()

	metadata := domain.EventMetadata{
		CommandID:     idgen.MustSortableID(),
		CorrelationID: uuid.NewString(),
		PrincipalID:   userID,
	}

	var state *domain.CartState
	var execErr error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		current, err := s.currentState(ctx, userID)
		if err != nil {
			execErr = err
			break
		}

		events, err := domain.ValidateCommand(current, cmd, metadata)
		if err != nil {
			execErr = err
			break
		}
		if len(events) == 0 {
			state = current
			break
		}

		appendStart := time.Now()
		newVersion, err := s.store.Append(ctx, userID, current.Version, events)
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			if s.metrics != nil {
				s.metrics.ConflictRetries.Add(ctx, 1)
			}
			s.logger.DebugContext(ctx, "concurrency conflict, retrying",
				slog.String("user_id", userID),
				slog.String("command", cmd.Name()),
				slog.Int("attempt", attempt),
			)
			execErr = &domain.WriteContentionError{StreamID: userID, Attempts: attempt}
			continue
		}
		if err != nil {
			execErr = fmt.Errorf("append events: %w", err)
			break
		}
		if s.metrics != nil {
			s.metrics.RecordAppend(ctx, time.Since(appendStart), len(events))
		}

		state, execErr = s.commit(ctx, current, events, newVersion)
		break
	}

	if s.metrics != nil {
		s.metrics.RecordCommand(ctx, cmd.Name(), time.Since(start), execErr)
	}
	if execErr != nil {
		level := slog.LevelWarn
		if domain.IsValidation(execErr) {
			level = slog.LevelInfo
		}
		s.logger.Log(ctx, level, "command rejected",
			slog.String("user_id", userID),
			slog.String("command", cmd.Name()),
			slog.String("error", execErr.Error()),
			slog.Duration("duration", time.Since(start)),
		)
		return nil, execErr
	}

	s.logger.DebugContext(ctx, "command applied",
		slog.String("user_id", userID),
		slog.String("command", cmd.Name()),
		slog.Int64("version", state.Version),
		slog.Duration("duration", time.Since(start)),
	)
	return state, nil
}

// commit folds the freshly appended events onto the pre-append state,
// refreshes the cache and publishes to the bus.
func (s *Service) commit(ctx context.Context, state *domain.CartState, events []*domain.Event, newVersion int64) (*domain.CartState, error) {
	next := state.Clone()
	for _, evt := range events {
		if err := next.Apply(evt); err != nil {
			// The store accepted events the fold rejects. Nothing in
			// the cache can be trusted for this stream anymore.
			_ = s.cache.Invalidate(ctx, state.UserID)
			return nil, err
		}
	}
	if next.Version != newVersion {
		_ = s.cache.Invalidate(ctx, state.UserID)
		return nil, &domain.CorruptionError{
			StreamID: state.UserID,
			Version:  newVersion,
			Reason:   fmt.Sprintf("folded version %d disagrees with store version %d", next.Version, newVersion),
		}
	}

	if err := s.cache.Put(ctx, projection.NewEntry(next)); err != nil {
		s.logger.WarnContext(ctx, "cache refresh failed",
			slog.String("user_id", state.UserID),
			slog.String("error", err.Error()),
		)
	}

	s.publish(ctx, events)
	return next, nil
}

// publish broadcasts committed events. Failure is logged, never
// surfaced: the write already succeeded.
func (s *Service) publish(ctx context.Context, events []*domain.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, events); err != nil {
		s.logger.WarnContext(ctx, "event publication failed",
			slog.String("stream_id", events[0].StreamID),
			slog.Int("events", len(events)),
			slog.String("error", err.Error()),
		)
		return
	}
	if s.metrics != nil {
		s.metrics.EventsPublished.Add(ctx, int64(len(events)))
	}
}

// currentState resolves the user's cart, preferring the cache and
// verifying it against the store's version before trusting it.
func (s *Service) currentState(ctx context.Context, userID string) (*domain.CartState, error) {
	entry, ok, err := s.cache.Get(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "cache read failed, replaying stream",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		ok = false
	}
	if s.metrics != nil {
		s.metrics.RecordCacheLookup(ctx, ok)
	}

	storeVersion, err := s.store.Version(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read stream version: %w", err)
	}

	if ok {
		switch {
		case entry.CachedVersion == storeVersion:
			return entry.Snapshot, nil

		case entry.CachedVersion < storeVersion:
			tail, err := s.store.LoadFrom(ctx, userID, entry.CachedVersion)
			if err != nil {
				return nil, fmt.Errorf("load stream tail: %w", err)
			}
			state := entry.Snapshot
			for _, evt := range tail {
				if err := state.Apply(evt); err != nil {
					// The cached snapshot disagrees with the log. Drop
					// it and rebuild from scratch.
					_ = s.cache.Invalidate(ctx, userID)
					return s.replay(ctx, userID)
				}
			}
			if err := s.cache.Put(ctx, projection.NewEntry(state)); err != nil {
				s.logger.WarnContext(ctx, "cache refresh failed",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
			}
			return state, nil

		default:
			// Cache claims a version the store has never written.
			s.logger.WarnContext(ctx, "cache ahead of event store, invalidating",
				slog.String("user_id", userID),
				slog.Int64("cached_version", entry.CachedVersion),
				slog.Int64("store_version", storeVersion),
			)
			_ = s.cache.Invalidate(ctx, userID)
		}
	}

	return s.replay(ctx, userID)
}

// replay rebuilds the cart by folding the full stream and caches the
// result.
func (s *Service) replay(ctx context.Context, userID string) (*domain.CartState, error) {
	events, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load stream: %w", err)
	}
	state, err := domain.Fold(userID, events)
	if err != nil {
		return nil, err
	}
	if len(events) > 0 {
		if err := s.cache.Put(ctx, projection.NewEntry(state)); err != nil {
			s.logger.WarnContext(ctx, "cache refresh failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}
	return state, nil
}

// resolveProducts asks the catalog about every distinct product and
// fills in the captured unit price and currency. Errors short-circuit:
// no partial add ever reaches the validation step.
func (s *Service) resolveProducts(ctx context.Context, items []domain.ItemRequest) ([]domain.ItemRequest, error) {
	resolved := make([]domain.ItemRequest, 0, len(items))
	for _, item := range items {
		start := time.Now()
		product, err := s.catalog.Lookup(ctx, item.ProductID)
		if s.metrics != nil {
			s.metrics.RecordCatalogLookup(ctx, time.Since(start), err)
		}
		if err != nil {
			if errors.Is(err, catalog.ErrUnavailable) {
				return nil, fmt.Errorf("product %s: %w", item.ProductID, err)
			}
			return nil, err
		}
		if !product.Exists {
			return nil, &domain.ProductUnavailableError{ProductID: item.ProductID, Reason: "unknown product"}
		}
		if !product.InStock {
			return nil, &domain.ProductUnavailableError{ProductID: item.ProductID, Reason: "out of stock"}
		}

		item.UnitPrice = product.UnitPrice
		item.Currency = product.Currency
		resolved = append(resolved, item)
	}
	return resolved, nil
}

func validateUserID(userID string) error {
	if govalidator.IsNull(userID) {
		return errors.New("user id is required")
	}
	if !govalidator.IsPrintableASCII(userID) {
		return fmt.Errorf("invalid user id %q", userID)
	}
	return nil
}

func validateProductIDs(items []domain.ItemRequest) error {
	for _, item := range items {
		if govalidator.IsNull(item.ProductID) {
			return errors.New("product id is required")
		}
		if !govalidator.IsPrintableASCII(item.ProductID) {
			return fmt.Errorf("invalid product id %q", item.ProductID)
		}
	}
	return nil
}
