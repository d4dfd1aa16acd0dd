package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hay-kot/mqchat/internal/core/topic"
	"github.com/hay-kot/mqchat/internal/core/transcript"
	"github.com/hay-kot/mqchat/internal/core/transport"
)

// DefaultConnectTimeout bounds the initial broker handshake.
const DefaultConnectTimeout = 5 * time.Second

// ClientIDPrefix starts every generated client identifier.
const ClientIDPrefix = "mqchat-"

var errAlreadyOpen = errors.New("session already open")

// SessionConfig configures a Session.
type SessionConfig struct {
	Router            Config
	ConnectTimeout    time.Duration
	SerializeHandlers bool
	DispatchBuffer    int
}

// Session owns one transport connection and wires its events to a Router.
type Session struct {
	cfg     SessionConfig
	factory transport.Factory
	router  *Router
	log     zerolog.Logger

	connects atomic.Int32

	mu         sync.Mutex
	t          transport.Transport
	dispatcher *Dispatcher
	clientID   string
	closed     bool
	closeOnce  sync.Once
	closeErr   error
}

// NewSession creates an unopened session. Chat works before Open; Send does not.
func NewSession(cfg SessionConfig, factory transport.Factory, store transcript.Store, logger zerolog.Logger) *Session {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}

	return &Session{
		cfg:     cfg,
		factory: factory,
		router:  NewRouter(cfg.Router, store, logger),
		log:     logger.With().Str("component", "session").Logger(),
	}
}

// Router returns the session router.
func (s *Session) Router() *Router { return s.router }

// ClientID returns the identifier used for the current connection, or "" before Open.
func (s *Session) ClientID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientID
}

// Open connects to the broker and subscribes to the broadcast and direct topics
// for the configured user. On failure the session is closed.
func (s *Session) Open(ctx context.Context) (err error) {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return transport.ErrClosed
	case s.t != nil:
		s.mu.Unlock()
		return errAlreadyOpen
	}

	id := ClientIDPrefix + uuid.NewString()
	t, err := s.factory(id)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("create transport: %w", err)
	}
	s.t = t
	s.clientID = id

	var h Handler = s.router
	if s.cfg.SerializeHandlers {
		s.dispatcher = NewDispatcher(s.router, s.cfg.DispatchBuffer, s.log)
		h = s.dispatcher
	}
	s.mu.Unlock()

	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	s.log.Debug().Str("client_id", id).Msg("opening session")
	s.router.SetState(StateConnecting)

	t.OnMessageArrived(h.MessageArrived)
	t.OnDeliveryConfirmed(h.DeliveryConfirmed)
	t.OnConnectionLost(s.handleLost)
	t.OnConnected(func() { s.handleConnected(t) })

	opts := transport.Options{
		AutoReconnect: true,
		CleanSession:  true,
		Timeout:       s.cfg.ConnectTimeout,
	}
	if err := t.Connect(ctx, opts); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	if err := s.subscribe(ctx, t); err != nil {
		return err
	}

	s.router.Attach(t)
	s.router.SetState(StateConnected)
	return nil
}

// Send publishes text to recipient.
func (s *Session) Send(ctx context.Context, recipient, text string) error {
	return s.router.Send(ctx, recipient, text)
}

// Chat returns the transcript for peer.
func (s *Session) Chat(ctx context.Context, peer string) (string, error) {
	return s.router.Chat(ctx, peer)
}

// State returns the connection state.
func (s *Session) State() State { return s.router.State() }

// OnRecorded registers an observer for transcript appends.
func (s *Session) OnRecorded(fn func(Record)) { s.router.OnRecorded(fn) }

// Close disconnects and releases the transport. It is safe to call more than
// once and after a failed Open.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		t := s.t
		d := s.dispatcher
		s.mu.Unlock()

		s.router.SetState(StateDisconnected)
		s.router.Attach(nil)

		if t != nil {
			t.Disconnect()
			if err := t.Close(); err != nil {
				s.closeErr = fmt.Errorf("close transport: %w", err)
			}
		}
		if d != nil {
			d.Stop()
		}

		s.log.Debug().Msg("session closed")
	})

	return s.closeErr
}

func (s *Session) subscribe(ctx context.Context, t transport.Transport) error {
	rc := s.router.Config()
	filters := topic.Subscriptions(rc.Channel, rc.Username, rc.BroadcastLabel)
	qos := make([]byte, len(filters))
	for i := range qos {
		qos[i] = transport.AtMostOnce
	}

	if err := t.Subscribe(ctx, filters, qos); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	s.log.Debug().Strs("filters", filters).Msg("subscribed")
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) handleLost(err error) {
	if s.isClosed() {
		return
	}
	s.log.Warn().Err(err).Msg("connection lost")
	s.router.SetState(StateDisconnected)
}

// handleConnected runs for every connect. The first is handled by Open; later
// ones are reconnects, where a clean session has dropped the subscriptions.
func (s *Session) handleConnected(t transport.Transport) {
	if s.connects.Add(1) == 1 || s.isClosed() {
		return
	}

	s.log.Info().Msg("reconnected")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
	defer cancel()

	if err := s.subscribe(ctx, t); err != nil {
		s.log.Error().Err(err).Msg("resubscribing after reconnect")
		return
	}
	s.router.SetState(StateConnected)
}
