// Package transport defines the publish/subscribe capability the chat session
// consumes. Implementations live under internal/transport.
package transport

import (
	"context"
	"errors"
	"time"
)

// QoS levels.
const (
	AtMostOnce  byte = 0
	AtLeastOnce byte = 1
	ExactlyOnce byte = 2
)

// ErrClosed is returned by operations on a transport that has been closed.
var ErrClosed = errors.New("transport closed")

// Options configures Connect.
type Options struct {
	AutoReconnect bool
	CleanSession  bool
	Timeout       time.Duration
}

// MessageHandler receives a topic and its payload. Handlers are invoked from
// transport goroutines, concurrently and any number of times between Connect
// and Close.
type MessageHandler func(topic string, payload []byte)

// ArrivalHandler receives an inbound message. retained is set when the broker
// replays a stored message on subscribe rather than forwarding a live publish.
type ArrivalHandler func(topic string, payload []byte, retained bool)

// Transport is a single client connection to a broker.
type Transport interface {
	// Connect blocks until the broker acknowledges the connection or the
	// configured timeout elapses.
	Connect(ctx context.Context, opts Options) error

	// Publish hands the payload to the broker without waiting for delivery.
	// Completion is reported later through the OnDeliveryConfirmed handler.
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error

	// Subscribe registers filters, one QoS per filter.
	Subscribe(ctx context.Context, filters []string, qos []byte) error

	OnMessageArrived(h ArrivalHandler)
	OnDeliveryConfirmed(h MessageHandler)
	OnConnectionLost(h func(err error))

	// OnConnected fires after every successful connect, including reconnects.
	OnConnected(h func())

	Disconnect()
	Close() error
}

// Factory builds a transport for the given client identifier.
type Factory func(clientID string) (Transport, error)
