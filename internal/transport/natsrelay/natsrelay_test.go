package natsrelay

import (
	"context"
	"sync"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mzyy94/cs108ctl/internal/cs108"
	"github.com/mzyy94/cs108ctl/internal/transport"
)

// fakeConn records publishes and lets the test deliver messages to the
// subscription callback.
type fakeConn struct {
	mu        sync.Mutex
	published map[string][][]byte
	handlers  map[string]nats.MsgHandler
}

func newFakeConn() *fakeConn {
	return &fakeConn{published: map[string][][]byte{}, handlers: map[string]nats.MsgHandler{}}
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[subj] = append(f.published[subj], append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[subj] = cb
	return &nats.Subscription{Subject: subj}, nil
}

func (f *fakeConn) deliver(subj string, data []byte) {
	f.mu.Lock()
	cb := f.handlers[subj]
	f.mu.Unlock()
	if cb != nil {
		cb(&nats.Msg{Subject: subj, Data: data})
	}
}

func TestTransport_SendAndReceive(t *testing.T) {
	nc := newFakeConn()
	tr := New(nc, "cs108", "r1")

	var got [][]byte
	tr.OnReceive(func(b []byte) { got = append(got, b) })

	assert.ErrorIs(t, tr.Send([]byte{1}), transport.ErrNotLinked)
	require.NoError(t, tr.Open(context.Background()))

	cmd := cs108.RFIDPowerOn().Encode()
	require.NoError(t, tr.Send(cmd))
	assert.Equal(t, [][]byte{cmd}, nc.published["cs108.r1.tx"])

	// Two notifications packed into one message are split.
	a := cs108.EncodeNotification(cs108.ModuleNotification, cs108.CodeTriggerPressed, nil)
	b := cs108.EncodeNotification(cs108.ModuleNotification, cs108.CodeTriggerReleased, nil)
	nc.deliver("cs108.r1.rx", append(append([]byte{}, a...), b...))
	require.Len(t, got, 2)
	assert.Equal(t, a, got[0])
	assert.Equal(t, b, got[1])

	require.NoError(t, tr.Close())
	nc.deliver("cs108.r1.rx", a)
	assert.Len(t, got, 2, "no delivery after Close")
	assert.ErrorIs(t, tr.Send(cmd), transport.ErrNotLinked)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "relay.front-desk.rx", Subject("relay", "front-desk", "rx"))
}

// loopConn delivers every publish to the subscriber of the same subject, as
// a NATS server would.
type loopConn struct{ *fakeConn }

func (l loopConn) Publish(subj string, data []byte) error {
	l.fakeConn.Publish(subj, data)
	l.deliver(subj, data)
	return nil
}

func TestNewDevice_TalksToHost(t *testing.T) {
	nc := loopConn{newFakeConn()}
	host := New(nc, "cs108", "r1")
	dev := NewDevice(nc, "cs108", "r1")
	require.NoError(t, host.Open(context.Background()))
	require.NoError(t, dev.Open(context.Background()))

	var atDevice, atHost [][]byte
	dev.OnReceive(func(b []byte) { atDevice = append(atDevice, b) })
	host.OnReceive(func(b []byte) { atHost = append(atHost, b) })

	cmd := cs108.GetBatteryVoltage().Encode()
	require.NoError(t, host.Send(cmd))
	assert.Equal(t, [][]byte{cmd}, atDevice)
	assert.Empty(t, atHost)

	reply := cs108.EncodeNotification(cs108.ModuleNotification, cs108.CodeGetBatteryVoltage, []byte{0x0F, 0xA0})
	require.NoError(t, dev.Send(reply))
	assert.Equal(t, [][]byte{reply}, atHost)
	assert.Len(t, atDevice, 1)
}

func TestHandleError_TakesLinkDown(t *testing.T) {
	nc := newFakeConn()
	tr := New(nc, "cs108", "r1")
	var downs []error
	tr.OnDown(func(err error) { downs = append(downs, err) })

	tr.HandleError(nil, nats.ErrConnectionClosed)
	assert.Empty(t, downs, "ignored while unlinked")

	require.NoError(t, tr.Open(context.Background()))
	tr.HandleError(&nats.Subscription{Subject: "other"}, nats.ErrSlowConsumer)
	assert.Empty(t, downs, "errors on other subscriptions are ignored")
	require.NoError(t, tr.Send([]byte{1}))

	tr.HandleError(tr.sub, nats.ErrSlowConsumer)
	require.Len(t, downs, 1)
	assert.ErrorIs(t, downs[0], transport.ErrLinkLost)
	assert.ErrorIs(t, downs[0], nats.ErrSlowConsumer)
	assert.ErrorIs(t, tr.Send([]byte{1}), transport.ErrNotLinked)

	// Reopening restores the link; a closed connection drops it again.
	require.NoError(t, tr.Open(context.Background()))
	tr.HandleError(nil, nats.ErrConnectionClosed)
	require.Len(t, downs, 2)
	assert.ErrorIs(t, downs[1], nats.ErrConnectionClosed)
}
