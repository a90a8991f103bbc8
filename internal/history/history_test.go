package history

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumichat/lumichat/internal/log"
)

func TestCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	codec := NewCodec(log.NewNop())

	tests := []struct {
		name string
		conv Conversation
	}{
		{
			name: "empty conversation",
			conv: Conversation{},
		},
		{
			name: "single exchange",
			conv: Conversation{
				HumanTurn("hi"),
				AssistantTurn("Hello!"),
			},
		},
		{
			name: "empty content",
			conv: Conversation{
				HumanTurn(""),
				AssistantTurn(""),
			},
		},
		{
			name: "unicode and control characters",
			conv: Conversation{
				HumanTurn("こんにちは 👋\n\ttabbed"),
				AssistantTurn("line1\r\nline2\x00null byte"),
				HumanTurn(`quotes " and backslashes \`),
			},
		},
		{
			name: "long conversation preserves order",
			conv: Conversation{
				HumanTurn("one"),
				AssistantTurn("two"),
				HumanTurn("three"),
				AssistantTurn("four"),
				HumanTurn("five"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			decoded := codec.Decode(codec.Encode(tt.conv))
			assert.Equal(t, tt.conv, decoded)
		})
	}
}

func TestCodec_DecodeEmptyInput(t *testing.T) {
	t.Parallel()

	codec := NewCodec(log.NewNop())

	conv := codec.Decode("")
	require.NotNil(t, conv)
	assert.Empty(t, conv)
}

func TestCodec_DecodeMalformedInput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	codec := NewCodec(log.NewWithWriter(&buf, log.Config{}))

	for _, input := range []string{"{malformed", "not json at all", `{"role":"human"}`, "42"} {
		conv := codec.Decode(input)
		require.NotNil(t, conv, "input %q", input)
		assert.Empty(t, conv, "input %q", input)
	}

	// Failures are reported on the side channel, not as errors.
	assert.Contains(t, buf.String(), "decoding conversation history")
}

func TestCodec_EncodeEmptyConversation(t *testing.T) {
	t.Parallel()

	codec := NewCodec(log.NewNop())

	assert.Equal(t, EmptyEncoding, codec.Encode(Conversation{}))
	assert.Equal(t, EmptyEncoding, codec.Encode(nil))
}

func TestCodec_EncodeIsValidJSON(t *testing.T) {
	t.Parallel()

	codec := NewCodec(log.NewNop())

	encoded := codec.Encode(Conversation{HumanTurn("hi"), AssistantTurn("yo")})
	assert.JSONEq(t, `[{"role":"human","content":"hi"},{"role":"assistant","content":"yo"}]`, encoded)
}
