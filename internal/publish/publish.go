// Package publish forwards reader events to NATS as JSON, one subject per
// event type: <prefix>.<reader>.events.<TYPE>.
package publish

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/mzyy94/cs108ctl/internal/reader"
	"github.com/mzyy94/cs108ctl/internal/transport/natsrelay"
)

// Publisher is the subset of *nats.Conn used here.
type Publisher interface {
	Publish(subj string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// Source is the part of a reader the publisher observes.
type Source interface {
	ID() string
	Subscribe(f reader.Filter) *reader.Subscription
}

// Subject returns the subject events of type t are published on.
func Subject(prefix, readerID string, t reader.EventType) string {
	return natsrelay.Subject(prefix, readerID, "events."+string(t))
}

// EventPublisher publishes the events accepted by its filter.
type EventPublisher struct {
	pub    Publisher
	prefix string
	filter reader.Filter
}

// New creates an EventPublisher. A nil filter publishes every event.
func New(pub Publisher, prefix string, filter reader.Filter) *EventPublisher {
	return &EventPublisher{pub: pub, prefix: prefix, filter: filter}
}

// Run publishes src's events until ctx is cancelled. Publish errors are
// logged; NATS buffers while reconnecting.
func (p *EventPublisher) Run(ctx context.Context, src Source) error {
	sub := src.Subscribe(p.filter)
	defer sub.Close()
	slog.Info("event publisher started", "reader", src.ID(), "prefix", p.prefix)
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-sub.C():
			if !ok {
				return nil
			}
			p.publish(src.ID(), e)
		}
	}
}

func (p *EventPublisher) publish(readerID string, e reader.Event) {
	data, err := reader.MarshalEvent(e)
	if err != nil {
		slog.Warn("event marshal failed", "type", e.Type(), "err", err)
		return
	}
	subj := Subject(p.prefix, readerID, e.Type())
	if err := p.pub.Publish(subj, data); err != nil {
		slog.Warn("event publish failed", "subject", subj, "err", err)
	}
}
