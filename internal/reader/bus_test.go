package reader

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mzyy94/cs108ctl/internal/metrics"
)

func TestBus_FilterAndOrder(t *testing.T) {
	b := newBus(8)
	defer b.close()
	all := b.subscribe(nil)
	states := b.subscribe(Types(EventStateChanged))

	b.publish(StateChanged{State: StateConnecting})
	b.publish(BatteryUpdate{Percentage: 50})
	b.publish(StateChanged{State: StateConnected})

	assert.Equal(t, []EventType{EventStateChanged, EventBatteryUpdate, EventStateChanged}, types(drain(all)))
	got := drain(states)
	require.Len(t, got, 2)
	assert.Equal(t, StateConnecting, got[0].(StateChanged).State)
	assert.Equal(t, StateConnected, got[1].(StateChanged).State)
}

func TestBus_FullSubscriberDoesNotBlockOthers(t *testing.T) {
	b := newBus(1)
	defer b.close()
	slow := b.subscribe(nil)
	fast := b.subscribe(nil)

	before := testutil.ToFloat64(metrics.EventDropsTotal.WithLabelValues(string(EventTagRead), "full"))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			b.publish(TagRead{EPC: "AA", RSSI: -i})
			<-fast.C()
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	assert.Len(t, drain(slow), 1)
	after := testutil.ToFloat64(metrics.EventDropsTotal.WithLabelValues(string(EventTagRead), "full"))
	assert.Equal(t, 2.0, after-before)
}

func TestBus_CloseSubscription(t *testing.T) {
	b := newBus(4)
	defer b.close()
	s := b.subscribe(nil)
	s.Close()
	s.Close()
	_, ok := <-s.C()
	assert.False(t, ok)

	// Publishing after the only subscriber left must not panic.
	b.publish(TriggerChanged{Pressed: true})
}

func TestBus_SubscribeAfterClose(t *testing.T) {
	b := newBus(4)
	b.close()
	s := b.subscribe(nil)
	_, ok := <-s.C()
	assert.False(t, ok)
	s.Close()
}

func TestListen_RecoversPanics(t *testing.T) {
	b := newBus(4)
	s := b.subscribe(nil)

	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		listen(s, func(e Event) {
			if calls.Add(1) == 1 {
				panic("listener bug")
			}
		})
	}()

	b.publish(TriggerChanged{Pressed: true})
	b.publish(TriggerChanged{Pressed: false})
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	b.close()
	<-done
}

func TestOnEvent(t *testing.T) {
	dev := newFakeDevice()
	r, sub := newTestReader(t, dev, Options{})

	got := make(chan Event, 4)
	s := r.OnEvent(func(e Event) { got <- e }, Types(EventBatteryUpdate))
	defer s.Close()

	connect(t, r, sub)
	select {
	case e := <-got:
		assert.Equal(t, EventBatteryUpdate, e.Type())
	case <-time.After(waitTimeout):
		t.Fatal("OnEvent callback not called")
	}
}

func TestBus_PanickingFilterSkipsOnlyThatSubscriber(t *testing.T) {
	b := newBus(4)
	defer b.close()
	bad := b.subscribe(func(e Event) bool {
		if e.Type() == EventBatteryUpdate {
			panic("filter bug")
		}
		return true
	})
	good := b.subscribe(nil)

	before := testutil.ToFloat64(metrics.EventDropsTotal.WithLabelValues(string(EventBatteryUpdate), "panic"))
	b.publish(BatteryUpdate{Percentage: 40})
	b.publish(TriggerChanged{Pressed: true})

	assert.Equal(t, []EventType{EventBatteryUpdate, EventTriggerChanged}, types(drain(good)))
	assert.Equal(t, []EventType{EventTriggerChanged}, types(drain(bad)))
	after := testutil.ToFloat64(metrics.EventDropsTotal.WithLabelValues(string(EventBatteryUpdate), "panic"))
	assert.Equal(t, 1.0, after-before)
}

func TestReader_SurvivesPanickingFilter(t *testing.T) {
	dev := newFakeDevice()
	r, sub := newTestReader(t, dev, Options{})
	bad := r.Subscribe(func(e Event) bool {
		if e.Type() == EventBatteryUpdate {
			panic("filter bug")
		}
		return false
	})
	defer bad.Close()

	connect(t, r, sub)
	configure(t, r, sub, ModeInventory, ModeOptions{})
	assert.Equal(t, StateConnected, r.State())
	assert.Equal(t, ModeInventory, r.Mode())
}
