// Package sqlite provides a durable conversation state store backed by an
// embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/optiad/adpilot/pkg/store"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS conversation_state (
	conversation_id TEXT PRIMARY KEY,
	state           BLOB NOT NULL,
	updated_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);`

// Store persists serialized conversation states in a SQLite database.
type Store struct {
	conn *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open creates (if needed) and opens the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory %q: %w", dir, err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database at %q: %w", path, err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

func (s *Store) Put(ctx context.Context, conversationID string, state []byte) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO conversation_state (conversation_id, state, updated_at)
		VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		ON CONFLICT (conversation_id) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at`,
		conversationID, state)
	if err != nil {
		return fmt.Errorf("put conversation state %q: %w", conversationID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, conversationID string) ([]byte, error) {
	var state []byte
	err := s.conn.QueryRowContext(ctx,
		`SELECT state FROM conversation_state WHERE conversation_id = ?`,
		conversationID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation state %q: %w", conversationID, err)
	}
	return state, nil
}

func (s *Store) Delete(ctx context.Context, conversationID string) error {
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM conversation_state WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return fmt.Errorf("delete conversation state %q: %w", conversationID, err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
