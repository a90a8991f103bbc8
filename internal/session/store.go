// Package session provides PostgreSQL-backed persistence of conversation
// history, one record per session id.
//
// Load and Save are each individually atomic, but the load-at-request-start
// / save-at-request-end pair is deliberately not wrapped in one
// transaction: overlapping requests for the same session id race and the
// last save wins. Callers that need per-session consistency must serialize
// their own requests. See the package doc in internal/chat for how the
// orchestrator uses this.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumichat/lumichat/internal/history"
	"github.com/lumichat/lumichat/internal/log"
)

// ErrSessionNotFound indicates no record exists for the session id.
// Only returned by Get; Load treats a missing record as an empty
// conversation.
var ErrSessionNotFound = errors.New("session not found")

// Session is the metadata of one persisted conversation.
type Session struct {
	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

const (
	loadHistorySQL = `SELECT history FROM chat_sessions WHERE session_id = $1`

	// A single statement implements the upsert so a save can never leave a
	// partially written record. created_at keeps its insert-time value;
	// updated_at is bumped on every save.
	upsertSessionSQL = `INSERT INTO chat_sessions (session_id, history, message_count)
	VALUES ($1, $2, $3)
	ON CONFLICT (session_id) DO UPDATE
	SET history = EXCLUDED.history,
	    message_count = EXCLUDED.message_count,
	    updated_at = now()`

	sessionCols = `session_id, created_at, updated_at, message_count`

	getSessionSQL = `SELECT ` + sessionCols + ` FROM chat_sessions WHERE session_id = $1`

	listSessionsSQL = `SELECT ` + sessionCols + ` FROM chat_sessions
	ORDER BY updated_at DESC LIMIT $1 OFFSET $2`
)

// Store manages chat_sessions rows.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	codec  *history.Codec
	logger log.Logger
}

// NewStore creates a session Store.
func NewStore(pool *pgxpool.Pool, codec *history.Codec, logger log.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if codec == nil {
		return nil, fmt.Errorf("codec is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, codec: codec, logger: logger}, nil
}

// Load returns the conversation for the given session id, or an empty
// conversation if no record exists. A missing record is not an error; a
// store failure is, and is the one failure the caller may surface before
// any response bytes are written.
func (s *Store) Load(ctx context.Context, sessionID string) (history.Conversation, error) {
	var encoded string
	err := s.pool.QueryRow(ctx, loadHistorySQL, sessionID).Scan(&encoded)
	if errors.Is(err, pgx.ErrNoRows) {
		return history.Conversation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %q: %w", sessionID, err)
	}

	conv := s.codec.Decode(encoded)
	s.logger.Debug("loaded session", "session_id", sessionID, "turns", len(conv))
	return conv, nil
}

// Save upserts the conversation for the given session id. message_count is
// set to the conversation length; created_at is assigned only on first
// save. The orchestrator treats a Save failure as a lost write, so the
// returned error exists for logging, not for control flow after streaming.
func (s *Store) Save(ctx context.Context, sessionID string, conv history.Conversation) error {
	encoded := s.codec.Encode(conv)
	if _, err := s.pool.Exec(ctx, upsertSessionSQL, sessionID, encoded, len(conv)); err != nil {
		return fmt.Errorf("saving session %q: %w", sessionID, err)
	}

	s.logger.Debug("saved session", "session_id", sessionID, "turns", len(conv))
	return nil
}

// Get returns the metadata of one session.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx, getSessionSQL, sessionID).
		Scan(&sess.SessionID, &sess.CreatedAt, &sess.UpdatedAt, &sess.MessageCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %q: %w", sessionID, err)
	}
	return &sess, nil
}

// List returns session metadata ordered by updated_at descending.
func (s *Store) List(ctx context.Context, limit, offset int32) ([]*Session, error) {
	rows, err := s.pool.Query(ctx, listSessionsSQL, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*Session, 0, limit)
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.SessionID, &sess.CreatedAt, &sess.UpdatedAt, &sess.MessageCount); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	s.logger.Debug("listed sessions", "count", len(sessions), "limit", limit, "offset", offset)
	return sessions, nil
}
