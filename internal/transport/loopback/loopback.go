// Package loopback is an in-process broker implementing transport.Transport.
// It supports retained messages and MQTT filter wildcards. Each client delivers
// its callbacks from a single goroutine in publish order.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hay-kot/mqchat/internal/core/topic"
	"github.com/hay-kot/mqchat/internal/core/transport"
)

// Scheme selects the loopback broker in a broker URL.
const Scheme = "loopback://"

var (
	ErrNotConnected = errors.New("not connected")
	ErrUnavailable  = errors.New("broker unavailable")
)

// Broker routes messages between clients created with NewClient.
type Broker struct {
	mu          sync.Mutex
	clients     map[*Client]struct{}
	retained    map[string][]byte
	unavailable bool
	log         zerolog.Logger
}

// NewBroker creates an empty broker.
func NewBroker(logger zerolog.Logger) *Broker {
	return &Broker{
		clients:  make(map[*Client]struct{}),
		retained: make(map[string][]byte),
		log:      logger.With().Str("component", "loopback").Logger(),
	}
}

// SetAvailable toggles whether new connections are accepted.
func (b *Broker) SetAvailable(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unavailable = !ok
}

// Retained returns the retained payload for a topic.
func (b *Broker) Retained(t string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.retained[t]
	return p, ok
}

// Factory returns a transport.Factory creating clients on this broker.
func (b *Broker) Factory() transport.Factory {
	return func(clientID string) (transport.Transport, error) {
		return b.NewClient(clientID), nil
	}
}

// NewClient creates a disconnected client.
func (b *Broker) NewClient(id string) *Client {
	c := &Client{
		id:     id,
		broker: b,
		subs:   make(map[string]byte),
		q:      newQueue(),
		log:    b.log.With().Str("client_id", id).Logger(),
	}
	go c.q.run()
	return c
}

func (b *Broker) attach(c *Client) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.unavailable {
		return ErrUnavailable
	}
	b.clients[c] = struct{}{}
	return nil
}

func (b *Broker) detach(c *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, c)
}

func (b *Broker) route(t string, payload []byte, retain bool) {
	b.mu.Lock()
	if retain {
		if len(payload) == 0 {
			delete(b.retained, t)
		} else {
			b.retained[t] = payload
		}
	}
	targets := make([]*Client, 0, len(b.clients))
	for c := range b.clients {
		targets = append(targets, c)
	}
	b.mu.Unlock()

	for _, c := range targets {
		if c.matches(t) {
			c.deliver(t, payload, false)
		}
	}
}

func (b *Broker) retainedFor(filters []string) map[string][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string][]byte)
	for t, p := range b.retained {
		for _, f := range filters {
			if topic.Match(f, t) {
				out[t] = p
				break
			}
		}
	}
	return out
}

// Client is one connection to a Broker.
type Client struct {
	id     string
	broker *Broker
	q      *queue
	log    zerolog.Logger

	mu           sync.RWMutex
	connected    bool
	closed       bool
	cleanSession bool
	subs         map[string]byte
	published    []Publication
	onArrived    transport.ArrivalHandler
	onConfirmed  transport.MessageHandler
	onLost       func(error)
	onConnected  func()
}

// Publication records one Publish call.
type Publication struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

var _ transport.Transport = (*Client)(nil)

// ID returns the client identifier.
func (c *Client) ID() string { return c.id }

func (c *Client) OnMessageArrived(h transport.ArrivalHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onArrived = h
}

func (c *Client) OnDeliveryConfirmed(h transport.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConfirmed = h
}

func (c *Client) OnConnectionLost(h func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLost = h
}

func (c *Client) OnConnected(h func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnected = h
}

func (c *Client) Connect(ctx context.Context, opts transport.Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.ErrClosed
	}
	c.cleanSession = opts.CleanSession
	c.mu.Unlock()

	if err := c.broker.attach(c); err != nil {
		return fmt.Errorf("connect %s: %w", c.id, err)
	}

	c.mu.Lock()
	c.connected = true
	h := c.onConnected
	c.mu.Unlock()

	c.log.Debug().Msg("connected")
	if h != nil {
		c.q.push(h)
	}
	return nil
}

// Publish routes payload through the broker and confirms delivery afterwards,
// both from the client's callback goroutine.
func (c *Client) Publish(ctx context.Context, t string, payload []byte, qos byte, retain bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.ErrClosed
	}
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	body := append([]byte(nil), payload...)
	c.published = append(c.published, Publication{Topic: t, Payload: body, QoS: qos, Retain: retain})
	c.mu.Unlock()

	c.q.push(func() {
		c.broker.route(t, body, retain)

		c.mu.RLock()
		h := c.onConfirmed
		c.mu.RUnlock()
		if h != nil {
			h(t, body)
		}
	})
	return nil
}

func (c *Client) Subscribe(ctx context.Context, filters []string, qos []byte) error {
	if len(filters) != len(qos) {
		return fmt.Errorf("subscribe: %d filters but %d qos levels", len(filters), len(qos))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	for i, f := range filters {
		c.subs[f] = qos[i]
	}
	c.mu.Unlock()

	for t, p := range c.broker.retainedFor(filters) {
		c.deliver(t, p, true)
	}
	return nil
}

// Published returns every publication made by this client, oldest first.
func (c *Client) Published() []Publication {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Publication(nil), c.published...)
}

// Subscriptions returns the active filters.
func (c *Client) Subscriptions() map[string]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]byte, len(c.subs))
	for f, q := range c.subs {
		out[f] = q
	}
	return out
}

// Drop simulates losing the connection. Clean sessions forget their filters.
func (c *Client) Drop(err error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	if c.cleanSession {
		c.subs = make(map[string]byte)
	}
	h := c.onLost
	c.mu.Unlock()

	c.broker.detach(c)
	c.log.Debug().Err(err).Msg("connection dropped")
	if h != nil {
		c.q.push(func() { h(err) })
	}
}

// Reconnect simulates the automatic reconnect that follows Drop.
func (c *Client) Reconnect() error {
	c.mu.RLock()
	clean := c.cleanSession
	c.mu.RUnlock()

	return c.Connect(context.Background(), transport.Options{AutoReconnect: true, CleanSession: clean})
}

func (c *Client) Disconnect() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.broker.detach(c)
}

func (c *Client) Close() error {
	c.Disconnect()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.q.close()
	}
	return nil
}

func (c *Client) matches(t string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return false
	}
	for f := range c.subs {
		if topic.Match(f, t) {
			return true
		}
	}
	return false
}

func (c *Client) deliver(t string, payload []byte, retained bool) {
	c.q.push(func() {
		c.mu.RLock()
		h := c.onArrived
		c.mu.RUnlock()
		if h != nil {
			h(t, payload, retained)
		}
	})
}
