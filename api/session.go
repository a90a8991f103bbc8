package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/lumichat/lumichat/internal/log"
	"github.com/lumichat/lumichat/internal/session"
)

// Pagination bounds for session listing.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
	MaxListOffset    = 100000
)

// SessionDirectory exposes session metadata reads.
// Implemented by session.Store.
type SessionDirectory interface {
	Get(ctx context.Context, sessionID string) (*session.Session, error)
	List(ctx context.Context, limit, offset int32) ([]*session.Session, error)
}

// SessionHandler handles session metadata endpoints.
type SessionHandler struct {
	sessions SessionDirectory
	logger   log.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(sessions SessionDirectory, logger log.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

// RegisterRoutes registers session routes on the given mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	if h.sessions == nil {
		if h.logger != nil {
			h.logger.Warn("SessionHandler: session directory is nil, session endpoints not registered")
		}
		return
	}
	mux.HandleFunc("GET /api/sessions", h.list)
	mux.HandleFunc("GET /api/sessions/{id}", h.get)
}

// list returns session metadata ordered by recency.
// Query parameters:
//   - limit: maximum number of sessions (default 100, max 1000)
//   - offset: number of sessions to skip
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", DefaultListLimit, 1, MaxListLimit)
	offset := parseIntParam(r, "offset", 0, 0, MaxListOffset)

	// #nosec G115 -- limit and offset are bounded by MaxListLimit and MaxListOffset
	sessions, err := h.sessions.List(r.Context(), int32(limit), int32(offset))
	if err != nil {
		h.logger.Error("failed to list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"total":    len(sessions),
		"limit":    limit,
		"offset":   offset,
	})
}

// get returns the metadata of one session.
func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		h.logger.Error("failed to get session", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "get_failed", "failed to get session")
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// parseIntParam parses an integer query parameter with bounds clamping.
func parseIntParam(r *http.Request, name string, defaultVal, minVal, maxVal int) int {
	str := r.URL.Query().Get(name)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}
