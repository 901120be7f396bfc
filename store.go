package prism

import "context"

// Message is one entry in a conversation's append-only log.
type Message struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	// Role is "user", "assistant", or an agent id for per-agent provenance.
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}

// Store persists conversation message logs keyed by session id.
// Keys are stable across process restarts when a file path or DSN is
// configured. This is the only durable resource in the core; implementations
// must tolerate the process being killed between calls.
//
// store/sqlite and store/postgres provide implementations.
type Store interface {
	// Init creates required tables. Idempotent.
	Init(ctx context.Context) error
	// AppendMessage adds one message to the session's log.
	AppendMessage(ctx context.Context, msg Message) error
	// Messages returns up to limit most recent messages for the session,
	// oldest first. limit <= 0 means no limit.
	Messages(ctx context.Context, sessionID string, limit int) ([]Message, error)
}
