// Package natsrelay carries CS108 frames over NATS subjects, for relay
// bridges that publish BLE notifications to a message bus instead of
// exposing a socket.
//
// Commands are published to <prefix>.<reader>.tx and notifications are read
// from <prefix>.<reader>.rx.
package natsrelay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/mzyy94/cs108ctl/internal/metrics"
	"github.com/mzyy94/cs108ctl/internal/transport"
)

// Conn is the subset of *nats.Conn used by the transport.
type Conn interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Transport implements transport.Transport and transport.Linker over NATS.
type Transport struct {
	nc       Conn
	txSubj   string
	rxSubj   string
	readerID string

	mu      sync.Mutex
	sub     *nats.Subscription
	linked  bool
	handler func([]byte)
	onDown  func(error)
	asm     transport.Reassembler
}

// New creates a transport for readerID using subjects under prefix.
func New(nc Conn, prefix, readerID string) *Transport {
	return &Transport{
		nc:       nc,
		txSubj:   Subject(prefix, readerID, "tx"),
		rxSubj:   Subject(prefix, readerID, "rx"),
		readerID: readerID,
	}
}

// NewDevice creates the far end of the relay: it receives commands on
// <prefix>.<reader>.tx and publishes notifications on .rx. Used by the
// simulator.
func NewDevice(nc Conn, prefix, readerID string) *Transport {
	return &Transport{
		nc:       nc,
		txSubj:   Subject(prefix, readerID, "rx"),
		rxSubj:   Subject(prefix, readerID, "tx"),
		readerID: readerID,
	}
}

// Subject builds <prefix>.<reader>.<leaf>.
func Subject(prefix, readerID, leaf string) string {
	return fmt.Sprintf("%s.%s.%s", prefix, readerID, leaf)
}

// Open subscribes to the notification subject.
func (t *Transport) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.linked {
		return nil
	}
	sub, err := t.nc.Subscribe(t.rxSubj, t.onMsg)
	if err != nil {
		metrics.RelayReconnectsTotal.WithLabelValues("nats", "error").Inc()
		return fmt.Errorf("subscribe %s: %w", t.rxSubj, err)
	}
	metrics.RelayReconnectsTotal.WithLabelValues("nats", "ok").Inc()
	t.sub = sub
	t.linked = true
	t.asm.Reset()
	slog.Info("nats relay linked", "reader", t.readerID, "rx", t.rxSubj, "tx", t.txSubj)
	return nil
}

// Close unsubscribes. Messages already queued by the client library may
// still be dropped after Close returns.
func (t *Transport) Close() error {
	t.mu.Lock()
	sub := t.sub
	t.sub = nil
	t.linked = false
	t.mu.Unlock()

	if sub == nil {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		slog.Debug("nats relay unsubscribe", "subject", t.rxSubj, "err", err)
	}
	return nil
}

// Send publishes one frame on the command subject.
func (t *Transport) Send(frame []byte) error {
	t.mu.Lock()
	linked := t.linked
	t.mu.Unlock()
	if !linked {
		return transport.ErrNotLinked
	}
	if err := t.nc.Publish(t.txSubj, frame); err != nil {
		return fmt.Errorf("publish %s: %w", t.txSubj, err)
	}
	return nil
}

// OnReceive registers the frame handler.
func (t *Transport) OnReceive(fn func([]byte)) {
	t.mu.Lock()
	t.handler = fn
	t.mu.Unlock()
}

// OnDown registers the handler called when HandleError takes the link down.
func (t *Transport) OnDown(fn func(error)) {
	t.mu.Lock()
	t.onDown = fn
	t.mu.Unlock()
}

// HandleError takes the link down on an asynchronous client error for the
// notification subscription, or on a connection-level error (sub == nil)
// such as nats.ErrConnectionClosed. Wire it to the connection's error and
// closed handlers.
func (t *Transport) HandleError(sub *nats.Subscription, err error) {
	t.mu.Lock()
	if !t.linked || (sub != nil && sub != t.sub) {
		t.mu.Unlock()
		return
	}
	old := t.sub
	t.sub = nil
	t.linked = false
	down := t.onDown
	t.mu.Unlock()

	slog.Warn("nats relay link lost", "reader", t.readerID, "subject", t.rxSubj, "err", err)
	if err := old.Unsubscribe(); err != nil {
		slog.Debug("nats relay unsubscribe", "subject", t.rxSubj, "err", err)
	}
	if down != nil {
		down(fmt.Errorf("%w: %w", transport.ErrLinkLost, err))
	}
}

// onMsg runs on the subscription's delivery goroutine, which NATS serialises
// per subscription.
func (t *Transport) onMsg(m *nats.Msg) {
	t.mu.Lock()
	if !t.linked {
		t.mu.Unlock()
		return
	}
	frames := t.asm.Feed(m.Data)
	fn := t.handler
	t.mu.Unlock()

	if fn == nil {
		return
	}
	for _, f := range frames {
		fn(f)
	}
}

var (
	_ transport.Transport = (*Transport)(nil)
	_ transport.Linker    = (*Transport)(nil)
	_ transport.Watcher   = (*Transport)(nil)
	_ Conn                = (*nats.Conn)(nil)
)
