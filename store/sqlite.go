package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is a persistent Store backed by SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// initialises the schema. Use ":memory:" for an in-memory SQLite database.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("tally/store: open sqlite: %w", err)
	}

	// A single connection serialises transactions within the process and keeps
	// ":memory:" databases from splitting across pooled connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA busy_timeout = 5000;
		CREATE TABLE IF NOT EXISTS tally_actors (
			actor_id   TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS tally_actor_keys (
			actor_id  TEXT NOT NULL,
			event_key TEXT NOT NULL,
			PRIMARY KEY (actor_id, event_key)
		);
		CREATE TABLE IF NOT EXISTS tally_counters (
			event_key  TEXT PRIMARY KEY,
			count      INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("tally/store: create tables: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Record adds key to the actor's seen set and increments the counter in one
// transaction. If the membership row already exists the transaction is rolled
// back without writing.
func (s *SQLiteStore) Record(ctx context.Context, actorID, key string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, sqliteErr("begin", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM tally_actor_keys WHERE actor_id = ? AND event_key = ?`, actorID, key,
	).Scan(&one)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, sqliteErr("read membership", err)
	}

	now := s.now().UnixMilli()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tally_actor_keys (actor_id, event_key) VALUES (?, ?)`, actorID, key,
	); err != nil {
		return false, sqliteErr("insert membership", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tally_actors (actor_id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (actor_id) DO UPDATE SET updated_at = excluded.updated_at`,
		actorID, now, now,
	); err != nil {
		return false, sqliteErr("upsert actor", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tally_counters (event_key, count, created_at, updated_at) VALUES (?, 1, ?, ?)
		ON CONFLICT (event_key) DO UPDATE SET count = count + 1, updated_at = excluded.updated_at`,
		key, now, now,
	); err != nil {
		return false, sqliteErr("upsert counter", err)
	}

	if err := tx.Commit(); err != nil {
		return false, sqliteErr("commit", err)
	}
	return true, nil
}

// Actor returns the record for actorID.
func (s *SQLiteStore) Actor(ctx context.Context, actorID string) (ActorRecord, bool, error) {
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM tally_actors WHERE actor_id = ?`, actorID,
	).Scan(&createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ActorRecord{}, false, nil
	}
	if err != nil {
		return ActorRecord{}, false, sqliteErr("read actor", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT event_key FROM tally_actor_keys WHERE actor_id = ?`, actorID,
	)
	if err != nil {
		return ActorRecord{}, false, sqliteErr("read keys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return ActorRecord{}, false, sqliteErr("scan key", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return ActorRecord{}, false, sqliteErr("read keys", err)
	}
	sort.Strings(keys)

	return ActorRecord{
		ID:        actorID,
		SeenKeys:  keys,
		CreatedAt: EpochMillis(createdAt),
		UpdatedAt: EpochMillis(updatedAt),
	}, true, nil
}

// Counter returns the counter for key.
func (s *SQLiteStore) Counter(ctx context.Context, key string) (CounterRecord, bool, error) {
	var count, createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count, created_at, updated_at FROM tally_counters WHERE event_key = ?`, key,
	).Scan(&count, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CounterRecord{}, false, nil
	}
	if err != nil {
		return CounterRecord{}, false, sqliteErr("read counter", err)
	}

	return CounterRecord{
		Key:       key,
		Count:     count,
		CreatedAt: EpochMillis(createdAt),
		UpdatedAt: EpochMillis(updatedAt),
	}, true, nil
}

// Close closes the underlying SQLite database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqliteErr wraps err with the failing step and marks lock contention as
// ErrConflict so callers can retry.
func sqliteErr(step string, err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("tally/store: sqlite %s: %w: %w", step, ErrConflict, err)
		}
	}
	if strings.Contains(err.Error(), "database is locked") {
		return fmt.Errorf("tally/store: sqlite %s: %w: %w", step, ErrConflict, err)
	}
	return fmt.Errorf("tally/store: sqlite %s: %w", step, err)
}
