package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/mqchat/internal/core/transcript"
	"github.com/hay-kot/mqchat/internal/store/linefile"
)

func fixedClock() time.Time {
	return time.Date(2026, time.October, 14, 9, 30, 0, 0, time.Local)
}

type publication struct {
	topic   string
	payload string
	qos     byte
	retain  bool
}

// recordingPublisher captures publish calls.
type recordingPublisher struct {
	mu   sync.Mutex
	err  error
	pubs []publication
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload []byte, qos byte, retain bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.pubs = append(p.pubs, publication{topic: topic, payload: string(payload), qos: qos, retain: retain})
	return nil
}

func (p *recordingPublisher) published() []publication {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publication(nil), p.pubs...)
}

// brokenStore fails or panics on every call.
type brokenStore struct {
	err   error
	panic bool
}

func (s *brokenStore) Append(context.Context, string, transcript.Message) error {
	if s.panic {
		panic("disk on fire")
	}
	return s.err
}

func (s *brokenStore) ReadAll(context.Context, string) ([]string, error) {
	if s.panic {
		panic("disk on fire")
	}
	return nil, s.err
}

func (s *brokenStore) List(context.Context) ([]string, error) { return nil, s.err }

func tonyConfig() Config {
	return Config{Channel: "chat", Username: "Tony", BroadcastLabel: "todos", QoS: 0, Retain: true}
}

func newTestRouter(t *testing.T, cfg Config) (*Router, *recordingPublisher, *linefile.Store) {
	t.Helper()

	store := linefile.New(t.TempDir())
	pub := &recordingPublisher{}

	r := NewRouter(cfg, store, zerolog.Nop()).WithClock(fixedClock)
	r.Attach(pub)
	r.SetState(StateConnected)
	return r, pub, store
}

func TestRouter_SendRequiresConnection(t *testing.T) {
	for _, state := range []State{StateDisconnected, StateConnecting} {
		t.Run(state.String(), func(t *testing.T) {
			r, pub, store := newTestRouter(t, tonyConfig())
			r.SetState(state)

			err := r.Send(context.Background(), "Sam", "hey")
			require.ErrorIs(t, err, ErrNotConnected)
			assert.Empty(t, pub.published())

			_, err = store.ReadAll(context.Background(), "Sam")
			assert.ErrorIs(t, err, transcript.ErrNotFound)
		})
	}
}

func TestRouter_SendWithoutPublisher(t *testing.T) {
	r := NewRouter(tonyConfig(), linefile.New(t.TempDir()), zerolog.Nop())
	r.SetState(StateConnected)

	err := r.Send(context.Background(), "Sam", "hey")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestRouter_BroadcastConfirmationIsSuppressed(t *testing.T) {
	r, pub, store := newTestRouter(t, tonyConfig())
	ctx := context.Background()

	require.NoError(t, r.Send(ctx, "todos", "hi all"))

	pubs := pub.published()
	require.Len(t, pubs, 1)
	assert.Equal(t, publication{topic: "/chat/todos", payload: "hi all", qos: 0, retain: true}, pubs[0])

	r.DeliveryConfirmed(pubs[0].topic, []byte(pubs[0].payload))

	_, err := store.ReadAll(ctx, "todos")
	assert.ErrorIs(t, err, transcript.ErrNotFound)
}

func TestRouter_DirectConversation(t *testing.T) {
	r, pub, _ := newTestRouter(t, tonyConfig())
	ctx := context.Background()

	require.NoError(t, r.Send(ctx, "Sam", "hey"))

	pubs := pub.published()
	require.Len(t, pubs, 1)
	assert.Equal(t, "/chat/Tony/Sam", pubs[0].topic)
	assert.True(t, pubs[0].retain)

	r.DeliveryConfirmed(pubs[0].topic, []byte(pubs[0].payload))
	r.MessageArrived("/chat/Sam/Tony", []byte("yo"), false)

	got, err := r.Chat(ctx, "Sam")
	require.NoError(t, err)
	assert.Equal(t, "Tony (14/10 09:30): hey\nSam (14/10 09:30): yo", got)
}

func TestRouter_BroadcastArrival(t *testing.T) {
	r, _, _ := newTestRouter(t, tonyConfig())

	r.MessageArrived("/chat/todos", []byte("standup in 5"), false)

	got, err := r.Chat(context.Background(), "todos")
	require.NoError(t, err)
	assert.Equal(t, "todos (14/10 09:30): standup in 5", got)
}

func TestRouter_DirectArrivalKeyedBySender(t *testing.T) {
	cfg := tonyConfig()
	cfg.Username = "bob"
	r, _, store := newTestRouter(t, cfg)
	ctx := context.Background()

	r.MessageArrived("/chat/alice/bob", []byte("ping"), false)

	lines, err := store.ReadAll(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice (14/10 09:30): ping"}, lines)

	_, err = store.ReadAll(ctx, "bob")
	assert.ErrorIs(t, err, transcript.ErrNotFound)
}

func TestRouter_IgnoresOtherRecipients(t *testing.T) {
	r, _, store := newTestRouter(t, tonyConfig())
	ctx := context.Background()

	r.MessageArrived("/chat/alice/carol", []byte("psst"), false)

	keys, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestRouter_MalformedTopicsDoNotStopDelivery(t *testing.T) {
	r, _, _ := newTestRouter(t, tonyConfig())

	bad := []string{
		"",
		"chat/Sam/Tony",
		"/chat",
		"/chat/Sam/Tony/extra",
		"/chat//Tony",
		"/chat/random",
		"/other/Sam/Tony",
	}

	for _, raw := range bad {
		assert.NotPanics(t, func() { r.MessageArrived(raw, []byte("x"), false) }, raw)
		assert.NotPanics(t, func() { r.DeliveryConfirmed(raw, []byte("x")) }, raw)
	}

	r.MessageArrived("/chat/Sam/Tony", []byte("still here"), false)

	got, err := r.Chat(context.Background(), "Sam")
	require.NoError(t, err)
	assert.Equal(t, "Sam (14/10 09:30): still here", got)
}

func TestRouter_StoreFailuresAreSwallowed(t *testing.T) {
	tests := []struct {
		name  string
		store *brokenStore
	}{
		{name: "error", store: &brokenStore{err: errors.New("disk full")}},
		{name: "panic", store: &brokenStore{panic: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(tonyConfig(), tt.store, zerolog.Nop())

			called := false
			r.OnRecorded(func(Record) { called = true })

			assert.NotPanics(t, func() {
				r.MessageArrived("/chat/Sam/Tony", []byte("yo"), false)
				r.DeliveryConfirmed("/chat/Tony/Sam", []byte("hey"))
			})
			assert.False(t, called)
		})
	}
}

func TestRouter_ChatErrors(t *testing.T) {
	t.Run("no history", func(t *testing.T) {
		r, _, _ := newTestRouter(t, tonyConfig())

		got, err := r.Chat(context.Background(), "nobody")
		require.ErrorIs(t, err, ErrNoHistory)
		assert.Empty(t, got)
	})

	t.Run("io failure", func(t *testing.T) {
		r := NewRouter(tonyConfig(), &brokenStore{err: errors.New("permission denied")}, zerolog.Nop())

		got, err := r.Chat(context.Background(), "Sam")
		require.ErrorIs(t, err, ErrTranscriptIO)
		assert.NotErrorIs(t, err, ErrNoHistory)
		assert.Empty(t, got)
	})

	t.Run("panic", func(t *testing.T) {
		r := NewRouter(tonyConfig(), &brokenStore{panic: true}, zerolog.Nop())

		got, err := r.Chat(context.Background(), "Sam")
		require.ErrorIs(t, err, ErrTranscriptIO)
		assert.Empty(t, got)
	})
}

func TestRouter_OnRecorded(t *testing.T) {
	r, _, _ := newTestRouter(t, tonyConfig())

	var got []Record
	r.OnRecorded(func(rec Record) { got = append(got, rec) })

	r.MessageArrived("/chat/Sam/Tony", []byte("yo"), false)
	r.DeliveryConfirmed("/chat/todos", []byte("suppressed"))
	r.DeliveryConfirmed("/chat/Tony/Sam", []byte("hey"))

	assert.Equal(t, []Record{
		{Key: "Sam", Line: "Sam (14/10 09:30): yo"},
		{Key: "Sam", Line: "Tony (14/10 09:30): hey"},
	}, got)
}

func TestRouter_SendErrors(t *testing.T) {
	r, pub, _ := newTestRouter(t, tonyConfig())
	ctx := context.Background()

	err := r.Send(ctx, "bad/name", "x")
	require.Error(t, err)
	assert.Empty(t, pub.published())

	pub.err = errors.New("broker gone")
	err = r.Send(ctx, "Sam", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/chat/Tony/Sam")
	assert.Contains(t, err.Error(), "broker gone")
}

func TestRouter_DefaultBroadcastLabel(t *testing.T) {
	r := NewRouter(Config{Channel: "chat", Username: "Tony"}, linefile.New(t.TempDir()), zerolog.Nop())
	assert.Equal(t, DefaultBroadcastLabel, r.Config().BroadcastLabel)
}

func TestRouter_RetainedReplay(t *testing.T) {
	ctx := context.Background()

	t.Run("first delivery is recorded", func(t *testing.T) {
		r, _, store := newTestRouter(t, tonyConfig())

		r.MessageArrived("/chat/Sam/Tony", []byte("yo"), true)

		lines, err := store.ReadAll(ctx, "Sam")
		require.NoError(t, err)
		assert.Equal(t, []string{"Sam (14/10 09:30): yo"}, lines)
	})

	t.Run("replay of the last line is skipped", func(t *testing.T) {
		r, _, store := newTestRouter(t, tonyConfig())

		r.MessageArrived("/chat/Sam/Tony", []byte("yo"), false)
		r.DeliveryConfirmed("/chat/Tony/Sam", []byte("hey"))
		r.MessageArrived("/chat/Sam/Tony", []byte("yo"), true)
		r.MessageArrived("/chat/Sam/Tony", []byte("yo"), true)

		lines, err := store.ReadAll(ctx, "Sam")
		require.NoError(t, err)
		assert.Equal(t, []string{"Sam (14/10 09:30): yo", "Tony (14/10 09:30): hey"}, lines)
	})

	t.Run("retained message with new text is recorded", func(t *testing.T) {
		r, _, store := newTestRouter(t, tonyConfig())

		r.MessageArrived("/chat/Sam/Tony", []byte("yo"), false)
		r.MessageArrived("/chat/Sam/Tony", []byte("missed this"), true)

		lines, err := store.ReadAll(ctx, "Sam")
		require.NoError(t, err)
		assert.Len(t, lines, 2)
	})

	t.Run("live repeats are recorded", func(t *testing.T) {
		r, _, store := newTestRouter(t, tonyConfig())

		r.MessageArrived("/chat/Sam/Tony", []byte("yo"), false)
		r.MessageArrived("/chat/Sam/Tony", []byte("yo"), false)

		lines, err := store.ReadAll(ctx, "Sam")
		require.NoError(t, err)
		assert.Len(t, lines, 2)
	})

	t.Run("broadcast replay is skipped", func(t *testing.T) {
		r, _, store := newTestRouter(t, tonyConfig())

		r.MessageArrived("/chat/todos", []byte("standup\nin 5"), false)
		r.MessageArrived("/chat/todos", []byte("standup\nin 5"), true)

		lines, err := store.ReadAll(ctx, "todos")
		require.NoError(t, err)
		assert.Equal(t, []string{"todos (14/10 09:30): standup in 5"}, lines)
	})
}
