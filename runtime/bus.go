// Package runtime owns the connection lifecycle, the notification dispatch,
// and the event bus other subsystems observe. It contains no wire framing;
// the transport hands it an already-decoded stanza feed.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"partyline/contract"
	"partyline/domain/event"
	"partyline/errors"
)

const defaultWaitTimeout = 5 * time.Second

// Bus is an engine-owned publish-subscribe hub keyed by topic string.
// There is one Bus per engine instance, so concurrent sessions never
// cross-talk. Publishing happens from the single stream pump goroutine;
// subscribing may happen from any goroutine.
type Bus struct {
	mu        sync.RWMutex
	log       *slog.Logger
	next      int
	subs      map[string]map[int]func(event.Event)
	published atomic.Uint64
}

func NewBus(log *slog.Logger) *Bus {
	return &Bus{
		log:  log,
		subs: make(map[string]map[int]func(event.Event)),
	}
}

// Subscribe registers a handler for one topic and returns its cancel func.
// Cancel is idempotent.
func (b *Bus) Subscribe(topic string, fn func(event.Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[topic]; !ok {
		b.subs[topic] = make(map[int]func(event.Event))
	}
	token := b.next
	b.next++
	b.subs[topic][token] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[topic], token)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
		})
	}
}

// Attach routes one topic into an EventSink, logging consume failures.
func (b *Bus) Attach(topic string, sink contract.EventSink) func() {
	return b.Subscribe(topic, func(evt event.Event) {
		if err := sink.Consume(context.Background(), evt); err != nil {
			b.log.Warn("Sink failed to consume event", "topic", topic, "error", err)
		}
	})
}

// Publish fans an event out to the subscribers of every topic it derives.
// Handlers run inline on the publisher goroutine, preserving arrival order.
func (b *Bus) Publish(evt event.Event) {
	b.published.Add(1)

	for _, topic := range evt.Topics() {
		b.mu.RLock()
		handlers := make([]func(event.Event), 0, len(b.subs[topic]))
		for _, fn := range b.subs[topic] {
			handlers = append(handlers, fn)
		}
		b.mu.RUnlock()

		for _, fn := range handlers {
			fn(evt)
		}
	}
}

// Published returns the number of events published so far.
func (b *Bus) Published() uint64 {
	return b.published.Load()
}

// SubscriberCount reports active subscriptions on a topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// WaitFor blocks until an event on topic matches the optional filter, or the
// timeout elapses. The subscription is removed on whichever of match or
// timeout happens first; a timed-out wait leaves no listener behind.
// A non-positive timeout falls back to the 5s default.
func (b *Bus) WaitFor(topic string, timeout time.Duration, filter func(event.Event) bool) (event.Event, error) {
	if timeout <= 0 {
		timeout = defaultWaitTimeout
	}

	matched := make(chan event.Event, 1)
	cancel := b.Subscribe(topic, func(evt event.Event) {
		if filter != nil && !filter(evt) {
			return
		}
		select {
		case matched <- evt:
		default:
		}
	})
	defer cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case evt := <-matched:
		return evt, nil
	case <-timer.C:
		return nil, errors.ErrWaitTimeout
	}
}
