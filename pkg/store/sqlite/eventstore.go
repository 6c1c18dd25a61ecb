// Package sqlite provides a SQLite-backed EventStore with ACID appends
// and no CGo dependencies.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/plaenen/cartstore/pkg/domain"
	"github.com/plaenen/cartstore/pkg/store/sqlite/migrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// EventStore persists cart event streams in SQLite. Appends to the same
// stream are serialized by a per-stream mutex on top of the transaction's
// version check; appends to distinct streams proceed independently.
type EventStore struct {
	db *sql.DB

	mu      sync.Mutex // guards locks
	locks   map[string]*sync.Mutex
	closeFn sync.Once
}

type config struct {
	dsn          string
	maxOpenConns int
	maxIdleConns int
	walMode      bool
	autoMigrate  bool
}

func defaultConfig() config {
	return config{
		dsn:          "cartstore.db",
		maxOpenConns: 25,
		maxIdleConns: 5,
		walMode:      true,
		autoMigrate:  true,
	}
}

// Option configures an EventStore.
type Option func(*config)

// WithDSN sets the data source name (file path or ":memory:").
func WithDSN(dsn string) Option {
	return func(c *config) { c.dsn = dsn }
}

// WithMemoryDatabase uses an in-memory database; handy for tests.
func WithMemoryDatabase() Option {
	return func(c *config) { c.dsn = ":memory:" }
}

// WithMaxOpenConns sets the maximum number of open connections.
func WithMaxOpenConns(n int) Option {
	return func(c *config) { c.maxOpenConns = n }
}

// WithMaxIdleConns sets the maximum number of idle connections.
func WithMaxIdleConns(n int) Option {
	return func(c *config) { c.maxIdleConns = n }
}

// WithWALMode enables write-ahead logging for better concurrency.
// Recommended for file-backed databases, not applicable to :memory:.
func WithWALMode(enabled bool) Option {
	return func(c *config) { c.walMode = enabled }
}

// WithAutoMigrate runs pending migrations on startup.
func WithAutoMigrate(enabled bool) Option {
	return func(c *config) { c.autoMigrate = enabled }
}

// NewEventStore opens a SQLite event store.
//
//	// Defaults: cartstore.db, WAL mode, auto-migrate
//	store, err := sqlite.NewEventStore()
//
//	// In-memory database for testing
//	store, err := sqlite.NewEventStore(sqlite.WithMemoryDatabase())
func NewEventStore(opts ...Option) (*EventStore, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite", cfg.dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// An in-memory database exists per connection; the pool must not
	// exceed one connection or streams would scatter across databases.
	if cfg.dsn == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.maxOpenConns)
		db.SetMaxIdleConns(cfg.maxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	store := &EventStore{
		db:    db,
		locks: make(map[string]*sync.Mutex),
	}

	if cfg.walMode && cfg.dsn != ":memory:" {
		if _, err := db.Exec(`
			PRAGMA journal_mode = WAL;
			PRAGMA synchronous = NORMAL;
			PRAGMA foreign_keys = ON;
		`); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}

	if cfg.autoMigrate {
		m := migrate.New(db, "schema_migrations")
		if err := m.LoadFromFS(migrationsFS, "migrations"); err != nil {
			db.Close()
			return nil, fmt.Errorf("load migrations: %w", err)
		}
		if err := m.Up(); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	return store, nil
}

// DB exposes the underlying database, e.g. for read-model tables that
// want to live in the same file.
func (s *EventStore) DB() *sql.DB {
	return s.db
}

func (s *EventStore) streamLock(streamID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[streamID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[streamID] = lock
	}
	return lock
}

// Append implements store.EventStore.
func (s *EventStore) Append(ctx context.Context, streamID string, expectedVersion int64, events []*domain.Event) (int64, error) {
	if len(events) == 0 {
		return expectedVersion, nil
	}

	lock := s.streamLock(streamID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var currentVersion int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = ?`, streamID,
	).Scan(&currentVersion)
	if err != nil {
		return 0, fmt.Errorf("check current version: %w", err)
	}

	if currentVersion != expectedVersion {
		return 0, domain.ErrConcurrencyConflict
	}

	newVersion := expectedVersion
	for i, evt := range events {
		newVersion++
		if evt.Version != newVersion {
			return 0, fmt.Errorf("event %d: expected version %d, got %d", i, newVersion, evt.Version)
		}

		metadataJSON, err := json.Marshal(evt.Metadata)
		if err != nil {
			return 0, fmt.Errorf("marshal metadata: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (stream_id, version, event_id, kind, timestamp, payload, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, streamID, evt.Version, evt.ID, string(evt.Kind), evt.Timestamp.UnixNano(), []byte(evt.Payload), string(metadataJSON))
		if err != nil {
			return 0, fmt.Errorf("insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return newVersion, nil
}

// Load implements store.EventStore.
func (s *EventStore) Load(ctx context.Context, streamID string) ([]*domain.Event, error) {
	return s.LoadFrom(ctx, streamID, 0)
}

// LoadFrom implements store.EventStore.
func (s *EventStore) LoadFrom(ctx context.Context, streamID string, afterVersion int64) ([]*domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, version, kind, timestamp, payload, metadata
		FROM events
		WHERE stream_id = ? AND version > ?
		ORDER BY version
	`, streamID, afterVersion)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []*domain.Event{}
	for rows.Next() {
		var (
			evt          domain.Event
			kind         string
			timestamp    int64
			payload      []byte
			metadataJSON string
		)
		if err := rows.Scan(&evt.ID, &evt.Version, &kind, &timestamp, &payload, &metadataJSON); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		evt.StreamID = streamID
		evt.Kind = domain.EventKind(kind)
		evt.Timestamp = time.Unix(0, timestamp)
		evt.Payload = payload
		if err := json.Unmarshal([]byte(metadataJSON), &evt.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}

		events = append(events, &evt)
	}
	return events, rows.Err()
}

// Version implements store.EventStore.
func (s *EventStore) Version(ctx context.Context, streamID string) (int64, error) {
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = ?`, streamID,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("query version: %w", err)
	}
	return version, nil
}

// Close implements store.EventStore.
func (s *EventStore) Close() error {
	var err error
	s.closeFn.Do(func() {
		err = s.db.Close()
	})
	return err
}
