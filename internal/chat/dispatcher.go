package chat

import (
	"sync"

	"github.com/rs/zerolog"
)

// DefaultDispatchBuffer is the number of events a Dispatcher queues before
// transport callbacks block.
const DefaultDispatchBuffer = 64

type eventKind int

const (
	eventArrived eventKind = iota
	eventConfirmed
)

type event struct {
	kind     eventKind
	topic    string
	payload  []byte
	retained bool
}

// Dispatcher serializes transport events onto a single goroutine that calls
// the wrapped Handler in arrival order.
type Dispatcher struct {
	next   Handler
	events chan event
	log    zerolog.Logger
	done   chan struct{}

	mu      sync.RWMutex
	stopped bool
	once    sync.Once
}

var _ Handler = (*Dispatcher)(nil)

// NewDispatcher starts a dispatcher in front of next. A non-positive buffer
// uses DefaultDispatchBuffer.
func NewDispatcher(next Handler, buffer int, logger zerolog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultDispatchBuffer
	}

	d := &Dispatcher{
		next:   next,
		events: make(chan event, buffer),
		log:    logger.With().Str("component", "dispatcher").Logger(),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) MessageArrived(topic string, payload []byte, retained bool) {
	d.enqueue(event{kind: eventArrived, topic: topic, payload: payload, retained: retained})
}

func (d *Dispatcher) DeliveryConfirmed(topic string, payload []byte) {
	d.enqueue(event{kind: eventConfirmed, topic: topic, payload: payload})
}

// Stop drains queued events and waits for the consumer to exit. Events
// enqueued afterwards are dropped.
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		d.mu.Lock()
		d.stopped = true
		close(d.events)
		d.mu.Unlock()
	})
	<-d.done
}

func (d *Dispatcher) enqueue(ev event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		d.log.Warn().Str("topic", ev.topic).Msg("dropping event after stop")
		return
	}
	d.events <- ev
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for ev := range d.events {
		switch ev.kind {
		case eventArrived:
			d.next.MessageArrived(ev.topic, ev.payload, ev.retained)
		case eventConfirmed:
			d.next.DeliveryConfirmed(ev.topic, ev.payload)
		}
	}
}
