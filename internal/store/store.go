package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/andresmejia3/framewall/internal/types"
	"github.com/jackc/pgx/v5"
)

// Store journals stream sessions in PostgreSQL.
// A pgx.Conn is not safe for concurrent use, so every query holds mu.
type Store struct {
	mu   sync.Mutex
	conn *pgx.Conn
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the journal table if it doesn't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS stream_sessions (
			id TEXT PRIMARY KEY,
			surface TEXT NOT NULL,
			address TEXT NOT NULL,
			opened_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			closed_at TIMESTAMPTZ,
			frames_received BIGINT NOT NULL DEFAULT 0,
			frames_drawn BIGINT NOT NULL DEFAULT 0,
			decode_failures BIGINT NOT NULL DEFAULT 0,
			close_reason TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS stream_sessions_surface_idx ON stream_sessions (surface, opened_at DESC);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.Close(ctx)
}

// OpenSession records that a connection attempt for a surface has started.
func (s *Store) OpenSession(ctx context.Context, id, surface, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Exec(ctx, `
		INSERT INTO stream_sessions (id, surface, address, opened_at)
		VALUES ($1, $2, $3, NOW())
	`, id, surface, address)
	return err
}

// CloseSession stamps the end of a session with its final counters.
func (s *Store) CloseSession(ctx context.Context, id string, received, drawn, failures int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tag, err := s.conn.Exec(ctx, `
		UPDATE stream_sessions
		SET closed_at = NOW(), frames_received = $2, frames_drawn = $3, decode_failures = $4, close_reason = $5
		WHERE id = $1
	`, id, received, drawn, failures, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// ListSessions returns the most recent sessions, newest first. A surface filter of "" matches all.
func (s *Store) ListSessions(ctx context.Context, surface string, limit int) ([]types.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.Query(ctx, `
		SELECT id, surface, address, opened_at, closed_at, frames_received, frames_drawn, decode_failures, close_reason
		FROM stream_sessions
		WHERE $1::text = '' OR surface = $1
		ORDER BY opened_at DESC
		LIMIT $2
	`, surface, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.SessionRecord
	for rows.Next() {
		var r types.SessionRecord
		var closedAt *time.Time
		if err := rows.Scan(&r.ID, &r.Surface, &r.Address, &r.OpenedAt, &closedAt,
			&r.FramesReceived, &r.FramesDrawn, &r.DecodeFailures, &r.CloseReason); err != nil {
			return nil, err
		}
		r.ClosedAt = closedAt
		out = append(out, r)
	}
	return out, rows.Err()
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Exec(ctx, `DROP TABLE IF EXISTS stream_sessions CASCADE;`)
	return err
}
