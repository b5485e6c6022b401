package blob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore persists objects in an embedded SQLite database, one row per
// key with a generation column for conditional writes. Suited to
// single-node deployments without a cloud bucket.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite is single-writer by design. Keep a single shared connection so
	// concurrent callers are serialized by database/sql instead of fighting
	// for write locks across multiple underlying connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",   // Write-Ahead Logging for better concurrency
		"PRAGMA synchronous = NORMAL", // Balance between safety and speed
		"PRAGMA busy_timeout = 5000",  // Wait up to 5s for locks
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `CREATE TABLE IF NOT EXISTS objects (
		key        TEXT PRIMARY KEY,
		data       BLOB NOT NULL,
		generation INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Get returns the object's data and current generation.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, int64, error) {
	var data []byte
	var gen int64
	err := s.db.QueryRowContext(ctx,
		`SELECT data, generation FROM objects WHERE key = ?`, key).Scan(&data, &gen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("reading object %s: %w", key, err)
	}
	return data, gen, nil
}

// Put writes unconditionally.
func (s *SQLiteStore) Put(ctx context.Context, key string, data []byte) (int64, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO objects (key, data, generation) VALUES (?, ?, 1)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data, generation = objects.generation + 1`,
		key, data)
	if err != nil {
		return 0, fmt.Errorf("writing object %s: %w", key, err)
	}
	return s.currentGeneration(ctx, key)
}

// PutIfGenerationMatch writes only when the stored generation equals gen;
// gen 0 requires the object to be absent.
func (s *SQLiteStore) PutIfGenerationMatch(ctx context.Context, key string, data []byte, gen int64) (int64, error) {
	if gen == 0 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO objects (key, data, generation) VALUES (?, ?, 1)`, key, data)
		if err != nil {
			// Unique violation: the object appeared first.
			return 0, ErrGenerationMismatch
		}
		return 1, nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE objects SET data = ?, generation = generation + 1
		 WHERE key = ? AND generation = ?`,
		data, key, gen)
	if err != nil {
		return 0, fmt.Errorf("writing object %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("writing object %s: %w", key, err)
	}
	if n == 0 {
		return 0, ErrGenerationMismatch
	}
	return gen + 1, nil
}

func (s *SQLiteStore) currentGeneration(ctx context.Context, key string) (int64, error) {
	var gen int64
	err := s.db.QueryRowContext(ctx,
		`SELECT generation FROM objects WHERE key = ?`, key).Scan(&gen)
	if err != nil {
		return 0, fmt.Errorf("reading generation for %s: %w", key, err)
	}
	return gen, nil
}

// Delete removes the object.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("deleting object %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting object %s: %w", key, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all keys with the given prefix, sorted.
func (s *SQLiteStore) List(ctx context.Context, prefix string) ([]string, error) {
	// Range scan instead of LIKE: keys contain underscores, which LIKE
	// treats as a single-character wildcard.
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM objects WHERE key >= ? AND key < ? ORDER BY key`,
		prefix, prefix+"\xff")
	if err != nil {
		return nil, fmt.Errorf("listing prefix %s: %w", prefix, err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
