package reader

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/mzyy94/cs108ctl/internal/metrics"
)

// Filter selects the events a subscription receives. A nil Filter selects
// all events.
type Filter func(Event) bool

// Types returns a Filter matching any of the given event types.
func Types(types ...EventType) Filter {
	set := make(map[EventType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return func(e Event) bool {
		_, ok := set[e.Type()]
		return ok
	}
}

// Subscription is a buffered event queue. Events are delivered in emission
// order; when the queue is full new events are dropped for this subscriber
// only.
type Subscription struct {
	id     string
	ch     chan Event
	filter Filter
	bus    *bus
	once   sync.Once
}

// ID returns the subscription's unique id.
func (s *Subscription) ID() string { return s.id }

// C returns the event channel. It is closed by Close or when the reader is
// closed.
func (s *Subscription) C() <-chan Event { return s.ch }

// Close unsubscribes and closes the channel. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.bus.remove(s) })
}

const dropLogEvery = 100

type bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	order  []*Subscription
	buffer int
	closed bool

	drops atomic.Uint64
}

func newBus(buffer int) *bus {
	return &bus{subs: make(map[*Subscription]struct{}), buffer: buffer}
}

func (b *bus) subscribe(f Filter) *Subscription {
	s := &Subscription{id: uuid.NewString(), ch: make(chan Event, b.buffer), filter: f, bus: b}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		s.once.Do(func() {})
		return s
	}
	b.subs[s] = struct{}{}
	b.order = append(b.order, s)
	return s
}

func (b *bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	out := b.order[:0]
	for _, o := range b.order {
		if o != s {
			out = append(out, o)
		}
	}
	b.order = out
	close(s.ch)
}

// publish never blocks. The read lock is held across the sends so that a
// concurrent Close cannot close a channel mid-send.
func (b *bus) publish(e Event) {
	metrics.EventsTotal.WithLabelValues(string(e.Type())).Inc()
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.order {
		if !s.matches(e) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			metrics.IncEventDrop(string(e.Type()), "full")
			if n := b.drops.Add(1); n%dropLogEvery == 1 {
				slog.Warn("event subscriber queue full, dropping", "subscription", s.id, "type", e.Type(), "dropped", n)
			}
		}
	}
}

// matches runs the subscriber's filter. A panicking filter counts as a drop
// for that subscriber only.
func (s *Subscription) matches(e Event) (ok bool) {
	if s.filter == nil {
		return true
	}
	defer func() {
		if p := recover(); p != nil {
			ok = false
			metrics.IncEventDrop(string(e.Type()), "panic")
			slog.Error("event filter panicked", "subscription", s.id, "type", e.Type(), "panic", p)
		}
	}()
	return s.filter(e)
}

func (b *bus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.order {
		s.once.Do(func() {})
		close(s.ch)
	}
	b.subs = map[*Subscription]struct{}{}
	b.order = nil
}

// listen runs fn for every event on s until s is closed. A panicking fn is
// logged and does not stop delivery.
func listen(s *Subscription, fn func(Event)) {
	for e := range s.ch {
		func() {
			defer func() {
				if p := recover(); p != nil {
					metrics.IncEventDrop(string(e.Type()), "panic")
					slog.Error("event listener panicked", "subscription", s.id, "type", e.Type(), "panic", p)
				}
			}()
			fn(e)
		}()
	}
}
