package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/mqchat/internal/core/transport"
	"github.com/hay-kot/mqchat/internal/store/linefile"
	"github.com/hay-kot/mqchat/internal/transport/loopback"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// fakeTransport records lifecycle calls and can fail Connect or Subscribe.
type fakeTransport struct {
	mu           sync.Mutex
	connectErr   error
	subscribeErr error
	connected    bool
	disconnected bool
	closed       bool
	filters      []string
}

func (f *fakeTransport) Connect(context.Context, transport.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Publish(context.Context, string, []byte, byte, bool) error { return nil }

func (f *fakeTransport) Subscribe(_ context.Context, filters []string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.filters = append(f.filters, filters...)
	return nil
}

func (f *fakeTransport) OnMessageArrived(transport.ArrivalHandler)     {}
func (f *fakeTransport) OnDeliveryConfirmed(transport.MessageHandler) {}
func (f *fakeTransport) OnConnectionLost(func(error))                 {}
func (f *fakeTransport) OnConnected(func())                           {}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func fakeFactory(f *fakeTransport) transport.Factory {
	return func(string) (transport.Transport, error) { return f, nil }
}

func sessionConfig(user string) SessionConfig {
	return SessionConfig{
		Router: Config{
			Channel:        "chat",
			Username:       user,
			BroadcastLabel: "todos",
			Retain:         true,
		},
		ConnectTimeout:    time.Second,
		SerializeHandlers: true,
	}
}

// capture records every client the broker factory hands out.
type capture struct {
	mu      sync.Mutex
	clients []*loopback.Client
}

func (c *capture) factory(b *loopback.Broker) transport.Factory {
	return func(id string) (transport.Transport, error) {
		cl := b.NewClient(id)
		c.mu.Lock()
		c.clients = append(c.clients, cl)
		c.mu.Unlock()
		return cl, nil
	}
}

func (c *capture) last() *loopback.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clients[len(c.clients)-1]
}

func openSession(t *testing.T, b *loopback.Broker, user string) (*Session, *linefile.Store) {
	t.Helper()

	store := linefile.New(t.TempDir())
	s := NewSession(sessionConfig(user), b.Factory(), store, zerolog.Nop())
	s.Router().WithClock(fixedClock)

	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s, store
}

func lineCount(s *Session, peer string) int {
	out, err := s.Chat(context.Background(), peer)
	if err != nil || out == "" {
		return 0
	}
	return len(strings.Split(out, "\n"))
}

func TestSession_Conversation(t *testing.T) {
	b := loopback.NewBroker(zerolog.Nop())
	ctx := context.Background()

	tony, _ := openSession(t, b, "Tony")
	sam, _ := openSession(t, b, "Sam")

	assert.True(t, strings.HasPrefix(tony.ClientID(), ClientIDPrefix))
	assert.NotEqual(t, tony.ClientID(), sam.ClientID())

	require.NoError(t, tony.Send(ctx, "Sam", "hey"))
	assert.Eventually(t, func() bool { return lineCount(tony, "Sam") == 1 }, waitFor, tick)
	assert.Eventually(t, func() bool { return lineCount(sam, "Tony") == 1 }, waitFor, tick)

	require.NoError(t, sam.Send(ctx, "Tony", "yo"))
	assert.Eventually(t, func() bool { return lineCount(tony, "Sam") == 2 }, waitFor, tick)

	got, err := tony.Chat(ctx, "Sam")
	require.NoError(t, err)
	assert.Equal(t, "Tony (14/10 09:30): hey\nSam (14/10 09:30): yo", got)

	got, err = sam.Chat(ctx, "Tony")
	require.NoError(t, err)
	assert.Equal(t, "Tony (14/10 09:30): hey\nSam (14/10 09:30): yo", got)
}

func TestSession_BroadcastRecordedOnce(t *testing.T) {
	b := loopback.NewBroker(zerolog.Nop())
	ctx := context.Background()

	tony, _ := openSession(t, b, "Tony")
	sam, _ := openSession(t, b, "Sam")

	require.NoError(t, tony.Send(ctx, "todos", "hi all"))
	assert.Eventually(t, func() bool { return lineCount(sam, "todos") == 1 }, waitFor, tick)

	// a later direct message flushes anything still queued for tony
	require.NoError(t, tony.Send(ctx, "Sam", "after"))
	assert.Eventually(t, func() bool { return lineCount(tony, "Sam") == 1 }, waitFor, tick)

	got, err := tony.Chat(ctx, "todos")
	require.NoError(t, err)
	assert.Equal(t, "todos (14/10 09:30): hi all", got)
}

func TestSession_RetainedMessageReachesLateSubscriber(t *testing.T) {
	b := loopback.NewBroker(zerolog.Nop())
	ctx := context.Background()

	tony, _ := openSession(t, b, "Tony")
	require.NoError(t, tony.Send(ctx, "Sam", "you there?"))
	assert.Eventually(t, func() bool { return lineCount(tony, "Sam") == 1 }, waitFor, tick)

	sam, _ := openSession(t, b, "Sam")
	assert.Eventually(t, func() bool { return lineCount(sam, "Tony") == 1 }, waitFor, tick)
}

func TestSession_RetainedRecordedOnceAcrossConnects(t *testing.T) {
	b := loopback.NewBroker(zerolog.Nop())
	ctx := context.Background()

	sam, _ := openSession(t, b, "Sam")
	require.NoError(t, sam.Send(ctx, "Tony", "yo"))
	assert.Eventually(t, func() bool { return lineCount(sam, "Tony") == 1 }, waitFor, tick)

	store := linefile.New(t.TempDir())
	for i := range 3 {
		tony := NewSession(sessionConfig("Tony"), b.Factory(), store, zerolog.Nop())
		tony.Router().WithClock(fixedClock)
		require.NoError(t, tony.Open(ctx))

		// the confirmation is queued behind the retained replay
		require.NoError(t, tony.Send(ctx, "Sam", fmt.Sprintf("ping %d", i)))
		require.Eventually(t, func() bool { return lineCount(tony, "Sam") == i+2 }, waitFor, tick)
		require.NoError(t, tony.Close())
	}

	lines, err := store.ReadAll(ctx, "Sam")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Sam (14/10 09:30): yo",
		"Tony (14/10 09:30): ping 0",
		"Tony (14/10 09:30): ping 1",
		"Tony (14/10 09:30): ping 2",
	}, lines)
}

func TestSession_ReconnectResubscribes(t *testing.T) {
	b := loopback.NewBroker(zerolog.Nop())
	clients := &capture{}

	s := NewSession(sessionConfig("Tony"), clients.factory(b), linefile.New(t.TempDir()), zerolog.Nop())
	require.NoError(t, s.Open(context.Background()))
	defer s.Close() //nolint:errcheck

	client := clients.last()
	require.Len(t, client.Subscriptions(), 2)

	client.Drop(errors.New("network down"))
	assert.Eventually(t, func() bool { return s.State() == StateDisconnected }, waitFor, tick)
	assert.ErrorIs(t, s.Send(context.Background(), "Sam", "lost"), ErrNotConnected)

	require.NoError(t, client.Reconnect())
	assert.Eventually(t, func() bool { return s.State() == StateConnected }, waitFor, tick)
	assert.Len(t, client.Subscriptions(), 2)
}

func TestSession_OpenSubscribeFailureReleasesTransport(t *testing.T) {
	ft := &fakeTransport{subscribeErr: errors.New("not authorized")}
	s := NewSession(sessionConfig("Tony"), fakeFactory(ft), linefile.New(t.TempDir()), zerolog.Nop())

	err := s.Open(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not authorized")

	assert.True(t, ft.connected)
	assert.True(t, ft.disconnected)
	assert.True(t, ft.closed)
	assert.Equal(t, StateDisconnected, s.State())
}

func TestSession_OpenConnectFailure(t *testing.T) {
	b := loopback.NewBroker(zerolog.Nop())
	b.SetAvailable(false)

	s := NewSession(sessionConfig("Tony"), b.Factory(), linefile.New(t.TempDir()), zerolog.Nop())

	err := s.Open(context.Background())
	require.ErrorIs(t, err, loopback.ErrUnavailable)
	assert.Equal(t, StateDisconnected, s.State())
	assert.ErrorIs(t, s.Send(context.Background(), "Sam", "x"), ErrNotConnected)
}

func TestSession_FactoryFailure(t *testing.T) {
	boom := errors.New("bad broker url")
	s := NewSession(sessionConfig("Tony"), func(string) (transport.Transport, error) { return nil, boom }, linefile.New(t.TempDir()), zerolog.Nop())

	require.ErrorIs(t, s.Open(context.Background()), boom)
}

func TestSession_SubscribesToBroadcastAndInbox(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(sessionConfig("Tony"), fakeFactory(ft), linefile.New(t.TempDir()), zerolog.Nop())

	require.NoError(t, s.Open(context.Background()))
	assert.Equal(t, []string{"/chat/todos", "/chat/+/Tony"}, ft.filters)
	assert.Equal(t, StateConnected, s.State())

	require.NoError(t, s.Close())
	assert.True(t, ft.closed)
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	b := loopback.NewBroker(zerolog.Nop())
	s := NewSession(sessionConfig("Tony"), b.Factory(), linefile.New(t.TempDir()), zerolog.Nop())

	// closing an unopened session is fine
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	require.ErrorIs(t, s.Open(context.Background()), transport.ErrClosed)
}

func TestSession_ChatWithoutConnection(t *testing.T) {
	store := linefile.New(t.TempDir())
	s := NewSession(sessionConfig("Tony"), nil, store, zerolog.Nop())

	_, err := s.Chat(context.Background(), "Sam")
	require.ErrorIs(t, err, ErrNoHistory)
}
