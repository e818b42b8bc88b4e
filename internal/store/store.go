// Package store handles database connectivity, migrations, and data access
// for the relay. It supports both SQLite (default, no external dependencies)
// and PostgreSQL (for larger deployments), behind one Store API.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/hollowsky/courier-relay/internal/relay"
)

// Store is the one persistence boundary in the relay: every other
// component reaches the database only through it, and only it may mutate
// shared state concurrently.
type Store struct {
	db     *sql.DB
	driver string

	// seqMu serialises descendant inserts so the globally monotonic
	// sequence column can be computed with a plain MAX()+1 query instead
	// of a driver-specific autoincrement mechanism.
	seqMu sync.Mutex
}

// Open opens a database connection. The URL can be:
//   - A bare file path like "relay.db" → SQLite
//   - "sqlite://path/to/file.db" → SQLite
//   - "postgres://..." or "postgresql://..." → PostgreSQL
func Open(databaseURL string) (*Store, error) {
	driver, dsn := detectDriver(databaseURL)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, relay.Wrap(relay.ErrStore, "open db", err)
	}
	if err := db.Ping(); err != nil {
		return nil, relay.Wrap(relay.ErrStore, "ping db", err)
	}

	if driver == "sqlite" {
		// SQLite serialises writers itself; busy_timeout makes that
		// serialisation graceful (retry for up to 5s) instead of
		// immediately returning SQLITE_BUSY to the caller. WAL mode lets
		// readers (follower lookups, descendant scans) proceed alongside
		// the single writer.
		const sqliteMaxConns = 4
		db.SetMaxOpenConns(sqliteMaxConns)
		db.SetMaxIdleConns(sqliteMaxConns)

		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
			"PRAGMA foreign_keys=ON",
			"PRAGMA synchronous=NORMAL",
		} {
			if _, err := db.Exec(pragma); err != nil {
				return nil, relay.Wrap(relay.ErrStore, fmt.Sprintf("sqlite pragma (%s)", pragma), err)
			}
		}
		slog.Info("sqlite database opened", "max_conns", sqliteMaxConns)
	}

	return &Store{db: db, driver: driver}, nil
}

// Migrate runs all pending database migrations.
func (s *Store) Migrate() error {
	slog.Info("running database migrations")
	for _, m := range commonMigrations {
		if _, err := s.db.Exec(m); err != nil {
			if s.driver == "postgres" && strings.Contains(err.Error(), "already exists") {
				continue
			}
			return relay.Wrap(relay.ErrStore, fmt.Sprintf("migration failed\nSQL: %s", m), err)
		}
	}
	slog.Info("migrations complete")
	return nil
}

// commonMigrations lists the DDL shared between SQLite and PostgreSQL. Any
// new migration must be appended here, never rewritten in place.
var commonMigrations = []string{
	`CREATE TABLE IF NOT EXISTS instances (
		host      TEXT PRIMARY KEY,
		api_flavor TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS remote_actors (
		id    TEXT PRIMARY KEY,
		inbox TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS follows (
		remote_actor_id TEXT NOT NULL REFERENCES remote_actors(id) ON DELETE CASCADE,
		local_actor_uri TEXT NOT NULL,
		UNIQUE(remote_actor_id, local_actor_uri)
	)`,
	`CREATE INDEX IF NOT EXISTS follows_local_actor ON follows(local_actor_uri)`,
	`CREATE TABLE IF NOT EXISTS roots (
		uri        TEXT PRIMARY KEY,
		fetch_time BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS descendants (
		uri          TEXT PRIMARY KEY,
		fetch_time   BIGINT NOT NULL,
		ancestor_uri TEXT NOT NULL REFERENCES roots(uri) ON DELETE CASCADE,
		sequence     BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS descendants_ancestor_seq ON descendants(ancestor_uri, sequence)`,
	`CREATE TABLE IF NOT EXISTS monitor_links (
		remote_actor_id TEXT NOT NULL REFERENCES remote_actors(id) ON DELETE CASCADE,
		root_uri        TEXT NOT NULL REFERENCES roots(uri) ON DELETE CASCADE,
		update_sequence BIGINT NOT NULL DEFAULT 0,
		UNIQUE(remote_actor_id, root_uri)
	)`,
	`CREATE TABLE IF NOT EXISTS timeline_cursors (
		remote_actor_id TEXT PRIMARY KEY REFERENCES remote_actors(id) ON DELETE CASCADE,
		latest_id       TEXT NOT NULL
	)`,
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ph(n int) string {
	if s.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func detectDriver(u string) (driver, dsn string) {
	if strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://") {
		return "postgres", u
	}
	if strings.HasPrefix(u, "sqlite://") {
		return "sqlite", strings.TrimPrefix(u, "sqlite://")
	}
	return "sqlite", u
}
