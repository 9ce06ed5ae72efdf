// Package store provides the persistent key-value collaborator used for
// descriptor caches, inference-cache snapshots, and metric exports. Values
// are opaque byte slices; callers choose their own encoding.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

// Store is a bucketed key-value store backed by a single sqlite table.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at path. Use ":memory:" for an
// ephemeral store in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS kv (
  bucket TEXT NOT NULL,
  key TEXT NOT NULL,
  value BLOB NOT NULL,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (bucket, key)
);`)
	return err
}

// Get returns the value for (bucket, key) and whether it exists.
func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, bool, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM kv WHERE bucket=? AND key=?;", bucket, key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Put upserts the value for (bucket, key).
func (s *Store) Put(ctx context.Context, bucket, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO kv (bucket, key, value, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (bucket, key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at;`,
		bucket, key, value, time.Now().Unix())
	return err
}

// Delete removes (bucket, key); deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE bucket=? AND key=?;", bucket, key)
	return err
}

// List returns all key/value pairs in a bucket.
func (s *Store) List(ctx context.Context, bucket string) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value FROM kv WHERE bucket=? ORDER BY key;", bucket)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]byte)
	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// ExportAll serializes every bucket into one msgpack blob.
func (s *Store) ExportAll(ctx context.Context) ([]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT bucket, key, value FROM kv ORDER BY bucket, key;")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	dump := make(map[string]map[string][]byte)
	for rows.Next() {
		var b, k string
		var v []byte
		if err := rows.Scan(&b, &k, &v); err != nil {
			return nil, err
		}
		if dump[b] == nil {
			dump[b] = make(map[string][]byte)
		}
		dump[b][k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return msgpack.Marshal(dump)
}

// ImportAll merges a blob produced by ExportAll into this store. Existing
// keys are overwritten; keys absent from the blob are left untouched.
func (s *Store) ImportAll(ctx context.Context, blob []byte) error {
	var dump map[string]map[string][]byte
	if err := msgpack.Unmarshal(blob, &dump); err != nil {
		return fmt.Errorf("decode export blob: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	for bucket, entries := range dump {
		for key, value := range entries {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO kv (bucket, key, value, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (bucket, key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at;`,
				bucket, key, value, now); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
	}
	return tx.Commit()
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
