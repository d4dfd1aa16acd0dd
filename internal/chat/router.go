package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/mqchat/internal/core/topic"
	"github.com/hay-kot/mqchat/internal/core/transcript"
)

// DefaultBroadcastLabel is the recipient name that addresses everyone on a channel.
const DefaultBroadcastLabel = "todos"

// Publisher is the slice of the transport the router publishes through.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error
}

// Handler receives the two inbound transport events.
type Handler interface {
	MessageArrived(topic string, payload []byte, retained bool)
	DeliveryConfirmed(topic string, payload []byte)
}

// Config identifies the local user on a channel.
type Config struct {
	Channel        string
	Username       string
	BroadcastLabel string
	QoS            byte
	Retain         bool
}

// Record is a transcript line that was just written.
type Record struct {
	Key  string
	Line string
}

// Router maps sends, arrivals and delivery confirmations onto topics and
// transcripts. Its handlers are safe to call concurrently with Send and Chat.
type Router struct {
	cfg   Config
	store transcript.Store
	log   zerolog.Logger
	now   func() time.Time
	state atomic.Int32

	mu        sync.RWMutex
	pub       Publisher
	observers []func(Record)
}

var _ Handler = (*Router)(nil)

// NewRouter creates a disconnected router. Attach a Publisher before sending.
func NewRouter(cfg Config, store transcript.Store, logger zerolog.Logger) *Router {
	if cfg.BroadcastLabel == "" {
		cfg.BroadcastLabel = DefaultBroadcastLabel
	}

	return &Router{
		cfg:   cfg,
		store: store,
		log:   logger.With().Str("component", "router").Logger(),
		now:   time.Now,
	}
}

// WithClock replaces the clock used to stamp recorded messages.
func (r *Router) WithClock(now func() time.Time) *Router {
	r.now = now
	return r
}

// Config returns the router configuration.
func (r *Router) Config() Config {
	return r.cfg
}

// Attach sets the publisher used by Send. A nil publisher detaches.
func (r *Router) Attach(p Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pub = p
}

// State returns the current connection state.
func (r *Router) State() State {
	return State(r.state.Load())
}

// SetState records a connection state transition.
func (r *Router) SetState(s State) {
	prev := State(r.state.Swap(int32(s)))
	if prev != s {
		r.log.Debug().Stringer("from", prev).Stringer("to", s).Msg("state changed")
	}
}

// OnRecorded registers fn to be called after every successful transcript append.
func (r *Router) OnRecorded(fn func(Record)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Send publishes text to recipient. Delivery is confirmed later through
// DeliveryConfirmed, which writes the transcript line for direct messages.
func (r *Router) Send(ctx context.Context, recipient, text string) error {
	if r.State() != StateConnected {
		return ErrNotConnected
	}

	r.mu.RLock()
	pub := r.pub
	r.mu.RUnlock()
	if pub == nil {
		return ErrNotConnected
	}

	if err := topic.ValidateIdentity(recipient); err != nil {
		return fmt.Errorf("recipient: %w", err)
	}

	t := topic.EncodeSend(r.cfg.Channel, r.cfg.Username, recipient, r.cfg.BroadcastLabel)
	if err := pub.Publish(ctx, t, []byte(text), r.cfg.QoS, r.cfg.Retain); err != nil {
		return fmt.Errorf("publish %s: %w", t, err)
	}

	r.log.Debug().Str("topic", t).Int("bytes", len(text)).Msg("published")
	return nil
}

// MessageArrived records an inbound message. Broadcasts go to the broadcast
// transcript, direct messages to the sender's transcript. A retained replay is
// skipped when it matches the sender's last recorded line, so reconnecting does
// not write the same message again. Failures are logged.
func (r *Router) MessageArrived(raw string, payload []byte, retained bool) {
	defer r.guard("message arrived", raw)

	t, err := r.parse(raw)
	if err != nil {
		r.log.Warn().Err(err).Str("topic", raw).Msg("discarding inbound message")
		return
	}

	var key, author string
	switch t.Kind {
	case topic.KindBroadcast:
		key, author = t.Label, t.Label
	case topic.KindDirect:
		if t.To != r.cfg.Username {
			r.log.Debug().Str("topic", raw).Msg("ignoring message for another user")
			return
		}
		key, author = t.From, t.From
	}

	if retained && r.alreadyRecorded(key, author, payload) {
		r.log.Debug().Str("topic", raw).Msg("skipping replayed retained message")
		return
	}
	r.record(key, author, payload)
}

// alreadyRecorded reports whether the last line author wrote to key carries
// payload as its text.
func (r *Router) alreadyRecorded(key, author string, payload []byte) bool {
	lines, err := r.store.ReadAll(context.Background(), key)
	if err != nil {
		if !errors.Is(err, transcript.ErrNotFound) {
			r.log.Warn().Err(err).Str("key", key).Msg("reading transcript for retained check")
		}
		return false
	}

	text := transcript.Flatten(string(payload))
	for i := len(lines) - 1; i >= 0; i-- {
		a, _, t, ok := transcript.SplitLine(lines[i])
		if !ok || a != author {
			continue
		}
		return t == text
	}
	return false
}

// DeliveryConfirmed records a locally sent direct message once the transport
// confirms it. Broadcasts are skipped; they come back through MessageArrived.
func (r *Router) DeliveryConfirmed(raw string, payload []byte) {
	defer r.guard("delivery confirmed", raw)

	t, err := r.parse(raw)
	if err != nil {
		r.log.Warn().Err(err).Str("topic", raw).Msg("discarding delivery confirmation")
		return
	}

	if t.IsBroadcast() {
		return
	}
	r.record(t.To, r.cfg.Username, payload)
}

// Chat returns the transcript for peer, one line per message.
func (r *Router) Chat(ctx context.Context, peer string) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Interface("panic", p).Str("peer", peer).Msg("reading transcript")
			out, err = "", fmt.Errorf("%w: %v", ErrTranscriptIO, p)
		}
	}()

	lines, err := r.store.ReadAll(ctx, peer)
	switch {
	case errors.Is(err, transcript.ErrNotFound):
		return "", ErrNoHistory
	case err != nil:
		return "", fmt.Errorf("%w: %w", ErrTranscriptIO, err)
	}

	return strings.Join(lines, "\n"), nil
}

func (r *Router) parse(raw string) (topic.Topic, error) {
	t, err := topic.Parse(raw, r.cfg.BroadcastLabel)
	if err != nil {
		return t, err
	}
	if t.Channel != r.cfg.Channel {
		return t, fmt.Errorf("%w: channel %q", topic.ErrMalformedTopic, t.Channel)
	}
	return t, nil
}

func (r *Router) record(key, author string, payload []byte) {
	msg := transcript.Message{
		Author: author,
		Text:   string(payload),
		At:     r.now(),
	}

	if err := r.store.Append(context.Background(), key, msg); err != nil {
		r.log.Error().Err(err).Str("key", key).Msg("appending transcript")
		return
	}

	rec := Record{Key: key, Line: msg.Line()}

	r.mu.RLock()
	observers := r.observers
	r.mu.RUnlock()

	for _, fn := range observers {
		fn(rec)
	}
}

func (r *Router) guard(event, raw string) {
	if p := recover(); p != nil {
		r.log.Error().Interface("panic", p).Str("event", event).Str("topic", raw).Msg("handler panicked")
	}
}
