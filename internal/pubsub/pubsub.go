// Package pubsub fans accepted samples and deviation results out to
// downstream subscribers without ever blocking ingestion. Each subscriber
// owns a bounded queue with a drop-oldest overflow policy: a slow consumer
// loses its own oldest events, and only its own — the flight log is
// written before publication and is unaffected.
package pubsub

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/stratosonde/groundstation/internal/telemetry"
)

// DefaultQueueSize is the per-subscriber queue depth used when Subscribe
// is called with a non-positive buffer.
const DefaultQueueSize = 64

// Event is one fan-out unit: an accepted sample with its deviation result,
// or a health-only update after a rejection.
type Event struct {
	Sample    *telemetry.Sample    `json:"sample,omitempty"`
	Deviation *telemetry.Deviation `json:"deviation,omitempty"`
	Health    telemetry.Health     `json:"health"`
}

// Subscriber is one downstream consumer's view of the stream.
type Subscriber struct {
	name   string
	events chan Event
	drops  atomic.Uint64
}

// Events returns the subscriber's queue. It is closed when the publisher
// shuts down or the subscriber is removed.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

// Name returns the subscriber name given at Subscribe time.
func (s *Subscriber) Name() string {
	return s.name
}

// Drops returns how many events this subscriber has lost to overflow.
func (s *Subscriber) Drops() uint64 {
	return s.drops.Load()
}

// WithLogger sets the logger for the publisher.
func WithLogger(logger *slog.Logger) func(*Publisher) {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// Publisher distributes events to all current subscribers.
type Publisher struct {
	mu     sync.Mutex
	subs   []*Subscriber
	closed bool
	logger *slog.Logger
}

// New creates a publisher with no subscribers.
func New(options ...func(*Publisher)) *Publisher {
	p := Publisher{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&p)
	}

	return &p
}

// Subscribe registers a named consumer with its own bounded queue.
func (p *Publisher) Subscribe(name string, buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = DefaultQueueSize
	}

	sub := &Subscriber{
		name:   name,
		events: make(chan Event, buffer),
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		close(sub.events)
		return sub
	}

	p.subs = append(p.subs, sub)
	return sub
}

// Unsubscribe removes a consumer and closes its queue.
func (p *Publisher) Unsubscribe(sub *Subscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, s := range p.subs {
		if s == sub {
			p.subs = append(p.subs[:i], p.subs[i+1:]...)
			close(sub.events)
			return
		}
	}
}

// Publish delivers an event to every subscriber without blocking. When a
// queue is full the oldest queued event is discarded to make room, and the
// loss is counted against that subscriber alone.
func (p *Publisher) Publish(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	for _, sub := range p.subs {
		select {
		case sub.events <- event:
			continue
		default:
		}

		// Queue full: drop the oldest event, then retry once. The second
		// send can still lose a race with a fast consumer, in which case
		// the event goes through on the default branch anyway.
		select {
		case <-sub.events:
			sub.drops.Add(1)
		default:
		}

		select {
		case sub.events <- event:
		default:
			sub.drops.Add(1)
		}
	}
}

// Close shuts the publisher down and closes every subscriber queue.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	for _, sub := range p.subs {
		if drops := sub.Drops(); drops > 0 {
			p.logger.Warn("subscriber lost events to overflow",
				slog.String("subscriber", sub.name),
				slog.Uint64("drops", drops))
		}
		close(sub.events)
	}
	p.subs = nil
}
