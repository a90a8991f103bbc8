package chat

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumichat/lumichat/internal/history"
	"github.com/lumichat/lumichat/internal/log"
)

// memStore is an in-memory SessionStore with injectable failures.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]history.Conversation
	loadErr  error
	saveErr  error
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]history.Conversation)}
}

func (m *memStore) Load(_ context.Context, sessionID string) (history.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	conv := make(history.Conversation, len(m.sessions[sessionID]))
	copy(conv, m.sessions[sessionID])
	return conv, nil
}

func (m *memStore) Save(_ context.Context, sessionID string, conv history.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	saved := make(history.Conversation, len(conv))
	copy(saved, conv)
	m.sessions[sessionID] = saved
	return nil
}

func (m *memStore) get(sessionID string) (history.Conversation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.sessions[sessionID]
	return conv, ok
}

// scriptedGen yields a fixed fragment script and records what it was
// asked for.
type scriptedGen struct {
	mu        sync.Mutex
	fragments []string
	queries   []string
	priors    []history.Conversation
	yielded   int
}

func (g *scriptedGen) Stream(_ context.Context, query string, prior history.Conversation) iter.Seq[string] {
	g.mu.Lock()
	g.queries = append(g.queries, query)
	priorCopy := make(history.Conversation, len(prior))
	copy(priorCopy, prior)
	g.priors = append(g.priors, priorCopy)
	g.mu.Unlock()

	return func(yield func(string) bool) {
		for _, fragment := range g.fragments {
			g.mu.Lock()
			g.yielded++
			g.mu.Unlock()
			if !yield(fragment) {
				return
			}
		}
	}
}

// collectSink returns a Sink appending to fragments.
func collectSink(fragments *[]string) Sink {
	return func(fragment string) error {
		*fragments = append(*fragments, fragment)
		return nil
	}
}

func TestNewService_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewService(nil, &scriptedGen{}, log.NewNop())
	require.Error(t, err)

	_, err = NewService(newMemStore(), nil, log.NewNop())
	require.Error(t, err)

	svc, err := NewService(newMemStore(), &scriptedGen{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestStream_HappyPath(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	gen := &scriptedGen{fragments: []string{"Hel", "lo!"}}
	svc, err := NewService(store, gen, log.NewNop())
	require.NoError(t, err)

	var got []string
	require.NoError(t, svc.Stream(context.Background(), "s1", "hi", collectSink(&got)))

	assert.Equal(t, []string{"Hel", "lo!"}, got)

	conv, ok := store.get("s1")
	require.True(t, ok)
	assert.Equal(t, history.Conversation{
		history.HumanTurn("hi"),
		history.AssistantTurn("Hello!"),
	}, conv)
}

func TestStream_GeneratorSeesPriorHistoryOnly(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.sessions["s1"] = history.Conversation{
		history.HumanTurn("earlier question"),
		history.AssistantTurn("earlier answer"),
	}
	gen := &scriptedGen{fragments: []string{"ok"}}
	svc, err := NewService(store, gen, log.NewNop())
	require.NoError(t, err)

	var got []string
	require.NoError(t, svc.Stream(context.Background(), "s1", "new question", collectSink(&got)))

	// The just-submitted query must not appear in the generator's context.
	require.Len(t, gen.priors, 1)
	assert.Equal(t, history.Conversation{
		history.HumanTurn("earlier question"),
		history.AssistantTurn("earlier answer"),
	}, gen.priors[0])
	assert.Equal(t, []string{"new question"}, gen.queries)

	conv, _ := store.get("s1")
	require.Len(t, conv, 4)
	assert.Equal(t, history.HumanTurn("new question"), conv[2])
	assert.Equal(t, history.AssistantTurn("ok"), conv[3])
}

func TestStream_LoadFailureSurfacesBeforeAnyOutput(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.loadErr = errors.New("connection refused")
	svc, err := NewService(store, &scriptedGen{fragments: []string{"never"}}, log.NewNop())
	require.NoError(t, err)

	var got []string
	err = svc.Stream(context.Background(), "s1", "hi", collectSink(&got))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading history")
	assert.Empty(t, got, "no fragment may reach the sink on a load failure")
}

func TestStream_SaveFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.saveErr = errors.New("disk on fire")
	gen := &scriptedGen{fragments: []string{"Hel", "lo!"}}
	svc, err := NewService(store, gen, log.NewNop())
	require.NoError(t, err)

	var got []string
	require.NoError(t, svc.Stream(context.Background(), "s1", "hi", collectSink(&got)),
		"save failure must not surface to the caller")

	// Caller still received the full stream; the write was simply lost.
	assert.Equal(t, []string{"Hel", "lo!"}, got)
	_, ok := store.get("s1")
	assert.False(t, ok)
}

func TestStream_EmptyAndZeroFragments(t *testing.T) {
	t.Parallel()

	t.Run("zero fragments saves empty assistant turn", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		svc, err := NewService(store, &scriptedGen{}, log.NewNop())
		require.NoError(t, err)

		var got []string
		require.NoError(t, svc.Stream(context.Background(), "s1", "hi", collectSink(&got)))

		assert.Empty(t, got)
		conv, _ := store.get("s1")
		assert.Equal(t, history.Conversation{
			history.HumanTurn("hi"),
			history.AssistantTurn(""),
		}, conv)
	})

	t.Run("empty fragments are forwarded in order", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		gen := &scriptedGen{fragments: []string{"", "a", ""}}
		svc, err := NewService(store, gen, log.NewNop())
		require.NoError(t, err)

		var got []string
		require.NoError(t, svc.Stream(context.Background(), "s1", "hi", collectSink(&got)))

		assert.Equal(t, []string{"", "a", ""}, got)
		conv, _ := store.get("s1")
		assert.Equal(t, history.AssistantTurn("a"), conv[1])
	})

	t.Run("empty input is still a human turn", func(t *testing.T) {
		t.Parallel()

		store := newMemStore()
		gen := &scriptedGen{fragments: []string{"?"}}
		svc, err := NewService(store, gen, log.NewNop())
		require.NoError(t, err)

		var got []string
		require.NoError(t, svc.Stream(context.Background(), "s1", "", collectSink(&got)))

		assert.Equal(t, []string{""}, gen.queries)
		conv, _ := store.get("s1")
		assert.Equal(t, history.HumanTurn(""), conv[0])
	})
}

func TestStream_FallbackFragmentIsPersisted(t *testing.T) {
	t.Parallel()

	const fallback = "Sorry, an error occurred while generating the response."

	store := newMemStore()
	gen := &scriptedGen{fragments: []string{fallback}}
	svc, err := NewService(store, gen, log.NewNop())
	require.NoError(t, err)

	var got []string
	require.NoError(t, svc.Stream(context.Background(), "s1", "hi", collectSink(&got)))

	assert.Equal(t, []string{fallback}, got)
	conv, _ := store.get("s1")
	assert.Equal(t, history.AssistantTurn(fallback), conv[1])
}

func TestStream_SinkFailureStopsGenerationAndPersistsPartial(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	gen := &scriptedGen{fragments: []string{"one ", "two ", "three"}}
	svc, err := NewService(store, gen, log.NewNop())
	require.NoError(t, err)

	calls := 0
	sink := func(fragment string) error {
		calls++
		if calls == 2 {
			return errors.New("client disconnected")
		}
		return nil
	}

	require.NoError(t, svc.Stream(context.Background(), "s1", "hi", sink))

	// Generation stopped after the failing write; the accumulated-so-far
	// reply was persisted anyway.
	assert.Equal(t, 2, gen.yielded)
	conv, _ := store.get("s1")
	require.Len(t, conv, 2)
	assert.Equal(t, history.AssistantTurn("one two "), conv[1])
}

func TestStream_ConcurrentSameSessionLastWriterWins(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	genA := &scriptedGen{fragments: []string{"answer A"}}
	genB := &scriptedGen{fragments: []string{"answer B"}}

	svcA, err := NewService(store, genA, log.NewNop())
	require.NoError(t, err)
	svcB, err := NewService(store, genB, log.NewNop())
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		gotA []string
		gotB []string
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = svcA.Stream(context.Background(), "shared", "question A", collectSink(&gotA))
	}()
	go func() {
		defer wg.Done()
		_ = svcB.Stream(context.Background(), "shared", "question B", collectSink(&gotB))
	}()
	wg.Wait()

	// Each caller received its own complete stream.
	assert.Equal(t, []string{"answer A"}, gotA)
	assert.Equal(t, []string{"answer B"}, gotB)

	// The final record is whichever save finished last: complete and
	// well-formed, never a blend of the two.
	conv, ok := store.get("shared")
	require.True(t, ok)
	wantA := history.Conversation{history.HumanTurn("question A"), history.AssistantTurn("answer A")}
	wantB := history.Conversation{history.HumanTurn("question B"), history.AssistantTurn("answer B")}
	if len(conv) == 2 {
		assert.Contains(t, []history.Conversation{wantA, wantB}, conv)
	} else {
		// One request loaded after the other saved; its record then holds
		// all four turns in a consistent order.
		require.Len(t, conv, 4)
		assert.Equal(t, history.RoleAssistant, conv[3].Role)
	}
}
