// Package history defines the conversation model and its durable encoding.
//
// A Conversation is an ordered sequence of Turns; insertion order is
// conversation order and is replayed to the model as context. The codec
// persists conversations as a JSON array of {role, content} objects, the
// same logical layout stored by earlier versions of the service, so
// existing rows stay readable.
//
// Encode and Decode never return errors. A failure on either side is
// logged and collapses to an empty conversation: a corrupt history row
// must not take the chat flow down with it.
package history

import (
	"encoding/json"
	"log/slog"

	"github.com/lumichat/lumichat/internal/log"
)

// Role identifies the author of a turn.
type Role string

// Valid roles. A conversation only ever contains these two.
const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance in a conversation. Immutable once created.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is an ordered sequence of turns. No length cap is
// enforced; unbounded growth is a known property of the design.
type Conversation []Turn

// HumanTurn builds a human turn.
func HumanTurn(content string) Turn {
	return Turn{Role: RoleHuman, Content: content}
}

// AssistantTurn builds an assistant turn.
func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// EmptyEncoding is the durable form of an empty conversation.
const EmptyEncoding = "[]"

// Codec converts conversations to and from their durable string form.
type Codec struct {
	logger log.Logger
}

// NewCodec creates a Codec. A nil logger falls back to slog.Default().
func NewCodec(logger log.Logger) *Codec {
	if logger == nil {
		logger = slog.Default()
	}
	return &Codec{logger: logger}
}

// Encode serializes a conversation. It never fails: a marshal error is
// logged and the encoding of an empty conversation is returned so the
// save path stays available.
func (c *Codec) Encode(conv Conversation) string {
	if len(conv) == 0 {
		return EmptyEncoding
	}
	data, err := json.Marshal(conv)
	if err != nil {
		c.logger.Error("encoding conversation history", "error", err, "turns", len(conv))
		return EmptyEncoding
	}
	return string(data)
}

// Decode is the inverse of Encode. Empty input decodes to an empty
// conversation; malformed input is logged and also decodes to an empty
// conversation rather than propagating an error.
func (c *Codec) Decode(encoded string) Conversation {
	if encoded == "" {
		return Conversation{}
	}
	var conv Conversation
	if err := json.Unmarshal([]byte(encoded), &conv); err != nil {
		c.logger.Error("decoding conversation history", "error", err, "bytes", len(encoded))
		return Conversation{}
	}
	if conv == nil {
		conv = Conversation{}
	}
	return conv
}
