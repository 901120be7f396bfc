// Package postgres implements prism.Store using PostgreSQL.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nevindra/prism"
)

// Store implements prism.Store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	cfg  pgConfig
}

// pgConfig holds store configuration set via Option functions.
type pgConfig struct {
	tablePrefix string
}

// Option configures a PostgreSQL Store.
type Option func(*pgConfig)

// WithTablePrefix namespaces the store's tables, letting several routers
// share one database. Only affects table creation and queries; existing
// tables are not renamed.
func WithTablePrefix(prefix string) Option {
	return func(c *pgConfig) { c.tablePrefix = prefix }
}

var _ prism.Store = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	var cfg pgConfig
	for _, o := range opts {
		o(&cfg)
	}
	return &Store{pool: pool, cfg: cfg}
}

func (s *Store) table() string {
	return s.cfg.tablePrefix + "messages"
}

// Init creates the messages table and its session index.
// Safe to call multiple times (all statements are idempotent).
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`, s.table()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_session_idx ON %s(session_id)`, s.table(), s.table()),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

// AppendMessage inserts or replaces a message.
func (s *Store) AppendMessage(ctx context.Context, msg prism.Message) error {
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, session_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   session_id = EXCLUDED.session_id,
		   role = EXCLUDED.role,
		   content = EXCLUDED.content,
		   created_at = EXCLUDED.created_at`, s.table()),
		msg.ID, msg.SessionID, msg.Role, msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: append message: %w", err)
	}
	return nil
}

// Messages returns the most recent messages for a session, ordered
// chronologically (oldest first). limit <= 0 returns all messages.
func (s *Store) Messages(ctx context.Context, sessionID string, limit int) ([]prism.Message, error) {
	query := fmt.Sprintf(`SELECT id, session_id, role, content, created_at
		 FROM %s
		 WHERE session_id = $1
		 ORDER BY created_at DESC, id DESC`, s.table())
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: get messages: %w", err)
	}
	defer rows.Close()

	var messages []prism.Message
	for rows.Next() {
		var m prism.Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate messages: %w", err)
	}

	// Reverse to chronological order (oldest first).
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Close is a no-op. The caller owns the pool and manages its lifecycle.
func (s *Store) Close() error {
	return nil
}
