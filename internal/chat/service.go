// Package chat implements the session-scoped streaming pipeline: load
// prior history, relay generated fragments to the caller while
// accumulating them, then persist the updated conversation once.
//
// Failure semantics are asymmetric on purpose. Before the first fragment
// is relayed nothing has been written to the caller, so a load failure is
// returned as an error. After streaming begins the transport cannot
// un-send bytes, so generation failures surface as fallback text inside
// the stream (see internal/generate) and persistence failures are logged
// and dropped. The caller either gets a structured error and no stream,
// or a stream that ends with readable content.
//
// Concurrent requests for the same session id are not serialized: each
// save is a single atomic upsert and the last writer wins. A request never
// observes turns from a sibling still in flight.
package chat

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/lumichat/lumichat/internal/history"
	"github.com/lumichat/lumichat/internal/log"
)

// SessionStore is the persistence the pipeline depends on.
// Interfaces are defined by the consumer, not the provider.
type SessionStore interface {
	// Load returns the conversation for the session id, or an empty
	// conversation if none exists.
	Load(ctx context.Context, sessionID string) (history.Conversation, error)

	// Save upserts the conversation for the session id.
	Save(ctx context.Context, sessionID string, conv history.Conversation) error
}

// Generator produces a model reply as a lazy, finite sequence of text
// fragments. The sequence never surfaces an error: on internal failure it
// ends with a human-readable fallback fragment instead.
type Generator interface {
	Stream(ctx context.Context, query string, prior history.Conversation) iter.Seq[string]
}

// Sink receives one fragment of the reply. Returning an error signals
// that the caller can no longer accept output (e.g. it disconnected);
// the pipeline stops relaying but still persists what was generated.
type Sink func(fragment string) error

// Service coordinates one chat request end to end.
//
// Service is stateless and safe for concurrent use; each request holds
// only a request-scoped copy of the conversation.
type Service struct {
	store  SessionStore
	gen    Generator
	logger log.Logger
}

// NewService creates a chat Service.
func NewService(store SessionStore, gen Generator, logger log.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, gen: gen, logger: logger}, nil
}

// Stream runs one request through the pipeline.
//
// An error is returned only when history cannot be loaded; at that point
// no fragment has reached the sink, so the caller can still be sent a
// structured error response. Every later failure degrades inside the
// stream and Stream returns nil.
func (s *Service) Stream(ctx context.Context, sessionID, input string, sink Sink) error {
	prior, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	conv := append(prior, history.HumanTurn(input))
	s.logger.Debug("streaming chat", "session_id", sessionID, "prior_turns", len(prior))

	// The generator sees the conversation before the new human turn; the
	// query travels separately.
	var reply strings.Builder
	for fragment := range s.gen.Stream(ctx, input, prior) {
		reply.WriteString(fragment)
		if sinkErr := sink(fragment); sinkErr != nil {
			// Caller is gone. Stop driving generation and persist the
			// partial reply rather than discarding the whole exchange.
			s.logger.Info("caller stopped receiving, persisting partial reply",
				"session_id", sessionID, "error", sinkErr)
			break
		}
	}

	conv = append(conv, history.AssistantTurn(reply.String()))

	// The caller's stream is closed (or abandoned) by this point, so a
	// failed save cannot be reported to anyone: it is a lost write by
	// policy. Detached from ctx so a disconnect that cancelled the
	// request cannot also cancel the write.
	saveCtx := context.WithoutCancel(ctx)
	if saveErr := s.store.Save(saveCtx, sessionID, conv); saveErr != nil {
		s.logger.Error("saving conversation after stream",
			"session_id", sessionID, "turns", len(conv), "error", saveErr)
	}

	return nil
}
