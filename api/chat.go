package api

import (
	"context"
	"io"
	"net/http"

	"github.com/lumichat/lumichat/internal/chat"
	"github.com/lumichat/lumichat/internal/log"
)

// DefaultSessionID is used when the caller omits session_id.
const DefaultSessionID = "default"

// ChatStreamer runs one chat request, relaying fragments to the sink.
// Implemented by chat.Service.
type ChatStreamer interface {
	Stream(ctx context.Context, sessionID, input string, sink chat.Sink) error
}

// ChatHandler handles the streaming chat endpoint.
//
// GET /chat?input=<string>&session_id=<string>
//
// The response is chunked text/plain: the concatenation of generation
// fragments, flushed as they arrive. Buffering is disabled so
// intermediaries deliver chunks promptly. An error status is only
// possible before the first fragment is written; afterwards failures
// degrade inside the stream.
type ChatHandler struct {
	chat   ChatStreamer
	logger log.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(streamer ChatStreamer, logger log.Logger) *ChatHandler {
	return &ChatHandler{chat: streamer, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /chat", h.handleChat)
}

func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	// input must be present; an empty value is a valid (if odd) query and
	// passes through to generation unchanged.
	if !query.Has("input") {
		writeError(w, http.StatusBadRequest, "missing_input", "input query parameter is required")
		return
	}
	input := query.Get("input")

	sessionID := query.Get("session_id")
	if sessionID == "" {
		sessionID = DefaultSessionID
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported by response writer")
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming not supported")
		return
	}

	// Headers go out with the first fragment, not earlier: a pre-stream
	// load failure must still be able to send a JSON error status.
	started := false
	startStream := func() {
		started = true
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering
		w.WriteHeader(http.StatusOK)
	}

	sink := func(fragment string) error {
		if !started {
			startStream()
		}
		if fragment == "" {
			return nil
		}
		if _, err := io.WriteString(w, fragment); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := h.chat.Stream(r.Context(), sessionID, input, sink); err != nil {
		// Only reachable before any fragment was relayed.
		h.logger.Error("chat request failed before streaming",
			"session_id", sessionID, "request_id", RequestIDFrom(r.Context()), "error", err)
		writeError(w, http.StatusServiceUnavailable, "history_unavailable",
			"could not load conversation history")
		return
	}

	if !started {
		// Zero fragments is a legal, empty reply.
		startStream()
	}

	h.logger.Debug("chat stream completed",
		"session_id", sessionID, "request_id", RequestIDFrom(r.Context()))
}
