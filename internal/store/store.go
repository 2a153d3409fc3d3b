// Package store is the indexed telemetry and incident archive behind the
// bus. It consumes accepted envelopes from the WAL fan-out, lands them in
// typed tables, and serves the count/recent/by-type queries the operator
// surfaces use. SQLite is the default backend; Postgres is accepted for
// central deployments.
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/Vardhan-225/Amoskys-sub000/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the SQL backend. All writes are idempotent inserts so WAL
// replays and restarts never duplicate rows.
type Store struct {
	db      *sqlx.DB
	log     *zap.SugaredLogger
	backend string
}

// Open connects to the configured backend and applies pending migrations.
func Open(cfg config.StoreConfig, log *zap.SugaredLogger) (*Store, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	var driver, dsn, dialect string
	switch cfg.Backend {
	case "sqlite", "":
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		driver, dialect = "sqlite", "sqlite3"
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.DSN)
	case "postgres":
		driver, dialect = "postgres", "postgres"
		dsn = cfg.DSN
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	if err := migrate(db.DB, dialect); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	log.Infow("telemetry store ready", "backend", driver)
	return &Store{db: db, log: log, backend: driver}, nil
}

func migrate(db *sql.DB, dialect string) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind translates ?-style placeholders to the backend's bindvar form.
func (s *Store) rebind(query string) string {
	return s.db.Rebind(query)
}
