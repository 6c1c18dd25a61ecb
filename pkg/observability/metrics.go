package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the cart service
type Metrics struct {
	// Command metrics
	CommandDuration metric.Float64Histogram
	CommandTotal    metric.Int64Counter
	CommandErrors   metric.Int64Counter

	// Event store metrics
	EventsAppended    metric.Int64Counter
	EventsPublished   metric.Int64Counter
	EventStoreLatency metric.Float64Histogram
	ConflictRetries   metric.Int64Counter

	// Projection cache metrics
	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter

	// Catalog metrics
	CatalogLookups  metric.Int64Counter
	CatalogFailures metric.Int64Counter
	CatalogLatency  metric.Float64Histogram
}

// NewMetrics creates all metric instruments
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	// Command metrics
	m.CommandDuration, err = meter.Float64Histogram(
		"cartstore.command.duration",
		metric.WithDescription("Command execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.duration: %w", err)
	}

	m.CommandTotal, err = meter.Int64Counter(
		"cartstore.command.total",
		metric.WithDescription("Total commands executed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.total: %w", err)
	}

	m.CommandErrors, err = meter.Int64Counter(
		"cartstore.command.errors",
		metric.WithDescription("Total command errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.errors: %w", err)
	}

	// Event store metrics
	m.EventsAppended, err = meter.Int64Counter(
		"cartstore.events.appended",
		metric.WithDescription("Total events appended to event store"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating events.appended: %w", err)
	}

	m.EventsPublished, err = meter.Int64Counter(
		"cartstore.events.published",
		metric.WithDescription("Total events published to event bus"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating events.published: %w", err)
	}

	m.EventStoreLatency, err = meter.Float64Histogram(
		"cartstore.eventstore.latency",
		metric.WithDescription("Event store operation latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating eventstore.latency: %w", err)
	}

	m.ConflictRetries, err = meter.Int64Counter(
		"cartstore.eventstore.conflict_retries",
		metric.WithDescription("Append retries after optimistic concurrency conflicts"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating eventstore.conflict_retries: %w", err)
	}

	// Projection cache metrics
	m.CacheHits, err = meter.Int64Counter(
		"cartstore.cache.hits",
		metric.WithDescription("Projection cache hits"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating cache.hits: %w", err)
	}

	m.CacheMisses, err = meter.Int64Counter(
		"cartstore.cache.misses",
		metric.WithDescription("Projection cache misses"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating cache.misses: %w", err)
	}

	// Catalog metrics
	m.CatalogLookups, err = meter.Int64Counter(
		"cartstore.catalog.lookups",
		metric.WithDescription("Total product catalog lookups"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating catalog.lookups: %w", err)
	}

	m.CatalogFailures, err = meter.Int64Counter(
		"cartstore.catalog.failures",
		metric.WithDescription("Product catalog lookups that failed or timed out"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating catalog.failures: %w", err)
	}

	m.CatalogLatency, err = meter.Float64Histogram(
		"cartstore.catalog.latency",
		metric.WithDescription("Product catalog lookup latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating catalog.latency: %w", err)
	}

	return m, nil
}

// RecordCommand records command execution metrics
func (m *Metrics) RecordCommand(ctx context.Context, commandType string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("command_type", commandType),
	}

	m.CommandDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.CommandTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	if err != nil {
		errorAttrs := append(attrs,
			attribute.String("error_type", fmt.Sprintf("%T", err)),
		)
		m.CommandErrors.Add(ctx, 1, metric.WithAttributes(errorAttrs...))
	}
}

// RecordAppend records event store append metrics
func (m *Metrics) RecordAppend(ctx context.Context, duration time.Duration, eventCount int) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", "append"),
	}
	m.EventStoreLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.EventsAppended.Add(ctx, int64(eventCount), metric.WithAttributes(attrs...))
}

// RecordCacheLookup records a projection cache hit or miss
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if hit {
		m.CacheHits.Add(ctx, 1)
	} else {
		m.CacheMisses.Add(ctx, 1)
	}
}

// RecordCatalogLookup records a catalog lookup outcome
func (m *Metrics) RecordCatalogLookup(ctx context.Context, duration time.Duration, err error) {
	m.CatalogLookups.Add(ctx, 1)
	m.CatalogLatency.Record(ctx, duration.Seconds())
	if err != nil {
		m.CatalogFailures.Add(ctx, 1)
	}
}
