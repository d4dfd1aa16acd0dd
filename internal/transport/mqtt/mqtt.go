// Package mqtt adapts the Eclipse Paho MQTT client to transport.Transport.
package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/hay-kot/mqchat/internal/core/transport"
)

const (
	defaultTimeout = 5 * time.Second
	quiesceMillis  = 250
)

// Transport is a Paho backed broker connection. Handlers must be registered
// before Connect.
type Transport struct {
	broker   string
	clientID string
	log      zerolog.Logger

	mu          sync.RWMutex
	client      paho.Client
	closed      bool
	onArrived   transport.ArrivalHandler
	onConfirmed transport.MessageHandler
	onLost      func(error)
	onConnected func()
}

var _ transport.Transport = (*Transport)(nil)

// New creates a transport for broker (for example tcp://localhost:1883).
func New(broker, clientID string, logger zerolog.Logger) *Transport {
	return &Transport{
		broker:   broker,
		clientID: clientID,
		log:      logger.With().Str("component", "mqtt").Str("client_id", clientID).Logger(),
	}
}

// Factory returns a transport.Factory dialing broker.
func Factory(broker string, logger zerolog.Logger) transport.Factory {
	return func(clientID string) (transport.Transport, error) {
		return New(broker, clientID, logger), nil
	}
}

func (t *Transport) OnMessageArrived(h transport.ArrivalHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onArrived = h
}

func (t *Transport) OnDeliveryConfirmed(h transport.MessageHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConfirmed = h
}

func (t *Transport) OnConnectionLost(h func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onLost = h
}

func (t *Transport) OnConnected(h func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConnected = h
}

// Connect builds the Paho client and waits for the broker acknowledgment.
func (t *Transport) Connect(ctx context.Context, opts transport.Options) error {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	copts := paho.NewClientOptions().
		AddBroker(t.broker).
		SetClientID(t.clientID).
		SetAutoReconnect(opts.AutoReconnect).
		SetCleanSession(opts.CleanSession).
		SetConnectTimeout(timeout).
		SetDefaultPublishHandler(t.handleMessage).
		SetConnectionLostHandler(t.handleLost).
		SetOnConnectHandler(t.handleConnect).
		SetReconnectingHandler(func(_ paho.Client, _ *paho.ClientOptions) {
			t.log.Info().Str("broker", t.broker).Msg("reconnecting")
		})

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	t.client = paho.NewClient(copts)
	client := t.client
	t.mu.Unlock()

	t.log.Debug().Str("broker", t.broker).Dur("timeout", timeout).Msg("connecting")

	if err := wait(ctx, client.Connect(), timeout); err != nil {
		return fmt.Errorf("connect %s: %w", t.broker, err)
	}
	return nil
}

// Publish sends payload and reports confirmation asynchronously.
func (t *Transport) Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, err := t.current()
	if err != nil {
		return err
	}

	tok := client.Publish(topic, qos, retain, payload)

	// Paho completes the token immediately when the client is offline.
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
	default:
	}

	go func() {
		<-tok.Done()
		if err := tok.Error(); err != nil {
			t.log.Warn().Err(err).Str("topic", topic).Msg("publish failed")
			return
		}
		t.mu.RLock()
		h := t.onConfirmed
		t.mu.RUnlock()
		if h != nil {
			h(topic, payload)
		}
	}()

	return nil
}

// Subscribe registers filters with their QoS levels.
func (t *Transport) Subscribe(ctx context.Context, filters []string, qos []byte) error {
	if len(filters) != len(qos) {
		return fmt.Errorf("subscribe: %d filters but %d qos levels", len(filters), len(qos))
	}
	client, err := t.current()
	if err != nil {
		return err
	}

	set := make(map[string]byte, len(filters))
	for i, f := range filters {
		set[f] = qos[i]
	}

	if err := wait(ctx, client.SubscribeMultiple(set, nil), defaultTimeout); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// Disconnect closes the broker connection, letting in-flight work drain briefly.
func (t *Transport) Disconnect() {
	t.mu.RLock()
	client := t.client
	t.mu.RUnlock()

	if client != nil && client.IsConnectionOpen() {
		client.Disconnect(quiesceMillis)
		t.log.Debug().Msg("disconnected")
	}
}

// Close disconnects and releases the client. Further calls fail with ErrClosed.
func (t *Transport) Close() error {
	t.Disconnect()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.client = nil
	return nil
}

func (t *Transport) current() (paho.Client, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return nil, transport.ErrClosed
	}
	if t.client == nil {
		return nil, fmt.Errorf("not connected")
	}
	return t.client, nil
}

func (t *Transport) handleMessage(_ paho.Client, msg paho.Message) {
	t.mu.RLock()
	h := t.onArrived
	t.mu.RUnlock()

	if h != nil {
		h(msg.Topic(), msg.Payload(), msg.Retained())
	}
}

func (t *Transport) handleLost(_ paho.Client, err error) {
	t.log.Warn().Err(err).Msg("connection lost")

	t.mu.RLock()
	h := t.onLost
	t.mu.RUnlock()

	if h != nil {
		h(err)
	}
}

func (t *Transport) handleConnect(_ paho.Client) {
	t.log.Info().Str("broker", t.broker).Msg("connected")

	t.mu.RLock()
	h := t.onConnected
	t.mu.RUnlock()

	if h != nil {
		h()
	}
}

func wait(ctx context.Context, tok paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	}
}
