// Package migrate is a minimal SQL migration runner for the embedded
// migration files shipped with the sqlite event store.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Migration is one schema change, identified by a numeric version.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// Migrator applies migrations and records them in a tracking table.
type Migrator struct {
	db         *sql.DB
	tableName  string
	migrations []Migration
}

// New creates a migrator that tracks applied versions in tableName.
func New(db *sql.DB, tableName string) *Migrator {
	return &Migrator{db: db, tableName: tableName}
}

// LoadFromFS loads migrations from an embedded filesystem. Files are
// named <version>_<name>.up.sql / <version>_<name>.down.sql.
func (m *Migrator) LoadFromFS(fsys embed.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read migration dir: %w", err)
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		versionStr, rest, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(versionStr)
		if err != nil {
			continue
		}

		content, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		mig := byVersion[version]
		if mig == nil {
			mig = &Migration{Version: version}
			byVersion[version] = mig
		}

		switch {
		case strings.HasSuffix(rest, ".up.sql"):
			mig.Name = strings.TrimSuffix(rest, ".up.sql")
			mig.Up = string(content)
		case strings.HasSuffix(rest, ".down.sql"):
			mig.Down = string(content)
		}
	}

	m.migrations = m.migrations[:0]
	for _, mig := range byVersion {
		m.migrations = append(m.migrations, *mig)
	}
	sort.Slice(m.migrations, func(i, j int) bool {
		return m.migrations[i].Version < m.migrations[j].Version
	})
	return nil
}

// Up applies all pending migrations in version order.
func (m *Migrator) Up() error {
	if err := m.ensureTable(); err != nil {
		return err
	}

	applied, err := m.appliedVersions()
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if applied[mig.Version] {
			continue
		}
		if err := m.apply(mig); err != nil {
			return fmt.Errorf("migration %d (%s): %w", mig.Version, mig.Name, err)
		}
	}
	return nil
}

func (m *Migrator) ensureTable() error {
	_, err := m.db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)
	`, m.tableName))
	return err
}

func (m *Migrator) appliedVersions() (map[int]bool, error) {
	rows, err := m.db.Query(fmt.Sprintf(`SELECT version FROM %s`, m.tableName))
	if err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (m *Migrator) apply(mig Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(mig.Up); err != nil {
		return err
	}
	if _, err := tx.Exec(
		fmt.Sprintf(`INSERT INTO %s (version, name, applied_at) VALUES (?, ?, ?)`, m.tableName),
		mig.Version, mig.Name, time.Now().Unix(),
	); err != nil {
		return err
	}
	return tx.Commit()
}
