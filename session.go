package prism

import (
	"context"
	"log/slog"
)

// Session is a per-conversation handle shared by every component within one
// conversation: the orchestrator, all provider calls, and all dispatched
// agents see the same session id and the same message log. Implementations
// must not derive per-agent sub-sessions — doing so silently breaks
// multi-turn references like "restaurants there".
//
// A nil *Session is valid and means sessionless operation: all methods are
// nil-safe no-ops.
type Session struct {
	id     string
	store  Store
	logger *slog.Logger
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger sets a structured logger for persistence failures.
// If not set, append errors are silently dropped.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// NewSession creates a session with a fresh UUIDv7 id. store may be nil,
// in which case the session carries identity but persists nothing.
func NewSession(store Store, opts ...SessionOption) *Session {
	return SessionWithID(store, NewID(), opts...)
}

// SessionWithID resumes (or creates) a session under an existing id.
// Use this to continue a conversation across process restarts.
func SessionWithID(store Store, id string, opts ...SessionOption) *Session {
	s := &Session{id: id, store: store, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ID returns the session id, or "" for a nil session.
func (s *Session) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// Append records one message to the session log. Persistence is best-effort:
// failures are logged, never propagated, so a dead store cannot stall the
// pipeline.
func (s *Session) Append(ctx context.Context, role, content string) {
	if s == nil || s.store == nil || content == "" {
		return
	}
	msg := Message{
		ID:        NewID(),
		SessionID: s.id,
		Role:      role,
		Content:   content,
		CreatedAt: NowUnix(),
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		s.logger.Warn("session append failed", "session_id", s.id, "role", role, "error", err)
	}
}

// History returns up to limit most recent messages, oldest first.
// Returns nil for a nil or storeless session, or on store failure.
func (s *Session) History(ctx context.Context, limit int) []Message {
	if s == nil || s.store == nil {
		return nil
	}
	msgs, err := s.store.Messages(ctx, s.id, limit)
	if err != nil {
		s.logger.Warn("session history load failed", "session_id", s.id, "error", err)
		return nil
	}
	return msgs
}
