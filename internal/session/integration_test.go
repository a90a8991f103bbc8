package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lumichat/lumichat/internal/history"
	"github.com/lumichat/lumichat/internal/log"
	"github.com/lumichat/lumichat/internal/session"
	"github.com/lumichat/lumichat/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// The testcontainers reaper keeps a connection goroutine alive for
		// the lifetime of the test process.
		goleak.IgnoreTopFunction("github.com/testcontainers/testcontainers-go.(*Reaper).connect.func1"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	database, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store, err := session.NewStore(database.Pool, history.NewCodec(log.NewNop()), log.NewNop())
	require.NoError(t, err)

	t.Run("load of unknown session is empty", func(t *testing.T) {
		conv, err := store.Load(ctx, "never-seen")
		require.NoError(t, err)
		assert.Empty(t, conv)
	})

	t.Run("save then load round-trip", func(t *testing.T) {
		want := history.Conversation{
			history.HumanTurn("hello"),
			history.AssistantTurn("hi there"),
		}
		require.NoError(t, store.Save(ctx, "roundtrip", want))

		got, err := store.Load(ctx, "roundtrip")
		require.NoError(t, err)
		assert.Equal(t, want, got)

		sess, err := store.Get(ctx, "roundtrip")
		require.NoError(t, err)
		assert.Equal(t, "roundtrip", sess.SessionID)
		assert.Equal(t, 2, sess.MessageCount)
		assert.False(t, sess.CreatedAt.IsZero())
	})

	t.Run("second save replaces the record", func(t *testing.T) {
		first := history.Conversation{
			history.HumanTurn("one"),
			history.AssistantTurn("two"),
		}
		require.NoError(t, store.Save(ctx, "overwrite", first))

		longer := append(first,
			history.HumanTurn("three"),
			history.AssistantTurn("four"))
		require.NoError(t, store.Save(ctx, "overwrite", longer))

		got, err := store.Load(ctx, "overwrite")
		require.NoError(t, err)
		assert.Equal(t, longer, got)

		sess, err := store.Get(ctx, "overwrite")
		require.NoError(t, err)
		assert.Equal(t, 4, sess.MessageCount)
		assert.False(t, sess.UpdatedAt.Before(sess.CreatedAt))
	})

	t.Run("save of empty conversation writes empty encoding", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "empty", nil))

		var encoded string
		err := database.Pool.QueryRow(ctx,
			"SELECT history FROM chat_sessions WHERE session_id = $1", "empty").Scan(&encoded)
		require.NoError(t, err)
		assert.JSONEq(t, "[]", encoded)

		sess, err := store.Get(ctx, "empty")
		require.NoError(t, err)
		assert.Equal(t, 0, sess.MessageCount)
	})

	t.Run("get of unknown session reports not found", func(t *testing.T) {
		_, err := store.Get(ctx, "never-seen")
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
	})

	t.Run("list orders by recency", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "older", history.Conversation{history.HumanTurn("a")}))
		require.NoError(t, store.Save(ctx, "newer", history.Conversation{history.HumanTurn("b")}))

		sessions, err := store.List(ctx, 100, 0)
		require.NoError(t, err)

		idx := make(map[string]int)
		for i, s := range sessions {
			idx[s.SessionID] = i
		}
		require.Contains(t, idx, "older")
		require.Contains(t, idx, "newer")
		assert.Less(t, idx["newer"], idx["older"])
	})

	t.Run("list respects limit and offset", func(t *testing.T) {
		all, err := store.List(ctx, 100, 0)
		require.NoError(t, err)
		require.NotEmpty(t, all)

		page, err := store.List(ctx, 1, 0)
		require.NoError(t, err)
		assert.Len(t, page, 1)
		assert.Equal(t, all[0].SessionID, page[0].SessionID)

		rest, err := store.List(ctx, 100, 1)
		require.NoError(t, err)
		assert.Len(t, rest, len(all)-1)
	})

	t.Run("corrupt history row loads as empty", func(t *testing.T) {
		_, err := database.Pool.Exec(ctx,
			"INSERT INTO chat_sessions (session_id, history, message_count) VALUES ($1, $2, $3)",
			"corrupt", "{not json", 1)
		require.NoError(t, err)

		conv, err := store.Load(ctx, "corrupt")
		require.NoError(t, err)
		assert.Empty(t, conv)
	})
}
