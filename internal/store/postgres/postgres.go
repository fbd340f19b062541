// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/beacon/internal/model"
	"github.com/alfredjeanlab/beacon/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewWithDB wraps an existing database handle without running migrations.
// Used by tests.
func NewWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// --- Settings ---

func (s *PostgresStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) DeleteSetting(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete setting %q: %w", key, err)
	}
	return nil
}

// --- Session history ---

const sessionColumns = `id, identity, started_at, ended_at, reason, last_latitude, last_longitude, last_address`

func (s *PostgresStore) CreateSession(ctx context.Context, rec *model.SessionRecord) error {
	reason := rec.Reason
	if reason == "" {
		reason = model.ReasonNone
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, identity, started_at, reason, last_latitude, last_longitude, last_address)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.Identity, rec.StartedAt.UTC(), string(reason),
		rec.LastLatitude, rec.LastLongitude, rec.LastAddress)
	if err != nil {
		return fmt.Errorf("create session %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PostgresStore) UpdateSessionFix(ctx context.Context, id string, lat, lng float64, address string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_latitude = $2, last_longitude = $3, last_address = $4
		 WHERE id = $1`,
		id, lat, lng, address)
	if err != nil {
		return fmt.Errorf("update session fix %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) FinalizeSession(ctx context.Context, id string, endedAt time.Time, reason model.TerminationReason) error {
	// ended_at IS NULL keeps the first finalization authoritative: a second
	// call never overwrites the recorded reason.
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = $2, reason = $3
		 WHERE id = $1 AND ended_at IS NULL`,
		id, endedAt.UTC(), string(reason))
	if err != nil {
		return fmt.Errorf("finalize session %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) OpenSession(ctx context.Context, identity string) (*model.SessionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE identity = $1 AND ended_at IS NULL
		 ORDER BY started_at DESC LIMIT 1`,
		identity)
	rec, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open session for %q: %w", identity, err)
	}
	return rec, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, identity string, limit int) ([]*model.SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE identity = $1
		 ORDER BY started_at DESC LIMIT $2`,
		identity, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions for %q: %w", identity, err)
	}
	defer rows.Close()

	var recs []*model.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return recs, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (*model.SessionRecord, error) {
	var (
		rec     model.SessionRecord
		endedAt sql.NullTime
		reason  string
	)
	if err := sc.Scan(&rec.ID, &rec.Identity, &rec.StartedAt, &endedAt, &reason,
		&rec.LastLatitude, &rec.LastLongitude, &rec.LastAddress); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		rec.EndedAt = &t
	}
	rec.Reason = model.TerminationReason(reason)
	return &rec, nil
}
