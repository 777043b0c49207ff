package reader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mzyy94/cs108ctl/internal/cs108"
)

const testGrace = 200 * time.Millisecond

func triggerReader(t *testing.T, mode Mode) (*Reader, *fakeDevice, *Subscription) {
	t.Helper()
	dev := newFakeDevice()
	r, sub := newTestReader(t, dev, Options{GracePeriod: testGrace})
	connect(t, r, sub)
	configure(t, r, sub, mode, ModeOptions{})
	dev.commands()
	return r, dev, sub
}

func TestTrigger_PressStartsScanning(t *testing.T) {
	r, dev, sub := triggerReader(t, ModeInventory)

	dev.inject(triggerFrame(true))
	evs := waitFor(t, sub, isState(StateScanning))
	require.Len(t, evs, 2)
	tc, ok := evs[0].(TriggerChanged)
	require.True(t, ok, "trigger event comes first")
	assert.True(t, tc.Pressed)

	sess, ok := r.Session()
	require.True(t, ok)
	assert.Equal(t, SourceTrigger, sess.Source)
	assert.Equal(t, ModeInventory, sess.Mode)
	assert.Equal(t, 1, countCode(dev.commands(), cs108.CodeRFIDCommand, cs108.RFIDStartInventory().Payload))
}

func TestTrigger_PressIgnoredInIdle(t *testing.T) {
	dev := newFakeDevice()
	r, sub := newTestReader(t, dev, Options{GracePeriod: testGrace})
	connect(t, r, sub)
	dev.commands()

	dev.inject(triggerFrame(true))
	evs := waitFor(t, sub, isType(EventTriggerChanged))
	assert.Len(t, evs, 1)
	quiet(t, sub, 50*time.Millisecond)
	assert.Equal(t, StateConnected, r.State())
	assert.Empty(t, dev.commands())
}

func TestTrigger_ReleaseWithoutDataStopsOnce(t *testing.T) {
	r, dev, sub := triggerReader(t, ModeBarcode)

	dev.inject(triggerFrame(true))
	waitFor(t, sub, isState(StateScanning))
	released := time.Now()
	dev.inject(triggerFrame(false))
	waitFor(t, sub, isType(EventTriggerChanged))

	evs := waitFor(t, sub, isState(StateConnected))
	assert.GreaterOrEqual(t, time.Since(released), testGrace)
	assert.Len(t, evs, 1)
	quiet(t, sub, 2*testGrace)

	cmds := dev.commands()
	assert.Equal(t, 1, countCode(cmds, cs108.CodeBarcodeCommand, cs108.BarcodeStopDecode), "stop sent exactly once")
	assert.Equal(t, StateConnected, r.State())
}

func TestTrigger_DataWithinGraceKeepsScanning(t *testing.T) {
	r, dev, sub := triggerReader(t, ModeInventory)

	dev.inject(triggerFrame(true))
	waitFor(t, sub, isState(StateScanning))
	released := time.Now()
	dev.inject(triggerFrame(false))
	waitFor(t, sub, isType(EventTriggerChanged))

	time.Sleep(testGrace / 2)
	dev.inject(tagFrame(t, "E2801160600000209500AABB", -50))
	waitFor(t, sub, isType(EventTagRead))

	// Past the original deadline the scan is still running.
	time.Sleep(testGrace - time.Since(released) + testGrace/4)
	assert.Equal(t, StateScanning, r.State())

	// With no more data the re-armed timer stops it.
	waitFor(t, sub, isState(StateConnected))
	assert.Equal(t, 1, countCode(dev.commands(), cs108.CodeRFIDCommand, cs108.RFIDAbort().Payload))
}

func TestTrigger_RepressCancelsGrace(t *testing.T) {
	r, dev, sub := triggerReader(t, ModeInventory)

	dev.inject(triggerFrame(true))
	waitFor(t, sub, isState(StateScanning))
	first, _ := r.Session()

	dev.inject(triggerFrame(false))
	time.Sleep(testGrace / 3)
	dev.inject(triggerFrame(true))
	evs := waitFor(t, sub, func(e Event) bool {
		tc, ok := e.(TriggerChanged)
		return ok && tc.Pressed
	})
	for _, e := range evs {
		assert.NotEqual(t, EventStateChanged, e.Type(), "no spurious stop")
	}

	time.Sleep(2 * testGrace)
	assert.Equal(t, StateScanning, r.State())
	second, ok := r.Session()
	require.True(t, ok)
	assert.NotEqual(t, first.ID, second.ID, "re-press starts a new session")
	assert.Zero(t, countCode(dev.commands(), cs108.CodeRFIDCommand, cs108.RFIDAbort().Payload))
}

func TestTrigger_ReleaseStopsAPIScan(t *testing.T) {
	r, dev, sub := triggerReader(t, ModeBarcode)
	require.NoError(t, r.StartScanning())
	waitFor(t, sub, isState(StateScanning))

	dev.inject(triggerFrame(true))
	dev.inject(triggerFrame(false))
	waitFor(t, sub, isState(StateConnected))
}

func TestTrigger_GoodReadExtendsGrace(t *testing.T) {
	r, dev, sub := triggerReader(t, ModeBarcode)

	dev.inject(triggerFrame(true))
	waitFor(t, sub, isState(StateScanning))
	released := time.Now()
	dev.inject(triggerFrame(false))

	time.Sleep(testGrace / 2)
	dev.inject(cs108.EncodeNotification(cs108.ModuleBarcode, cs108.CodeBarcodeGoodRead, nil))
	time.Sleep(testGrace - time.Since(released) + testGrace/4)
	assert.Equal(t, StateScanning, r.State())
	waitFor(t, sub, isState(StateConnected))
}

func TestTrigger_StopScanningCancelsGrace(t *testing.T) {
	r, dev, sub := triggerReader(t, ModeInventory)

	dev.inject(triggerFrame(true))
	waitFor(t, sub, isState(StateScanning))
	dev.inject(triggerFrame(false))
	waitFor(t, sub, isType(EventTriggerChanged))

	require.NoError(t, r.StopScanning())
	waitFor(t, sub, isState(StateConnected))
	quiet(t, sub, 2*testGrace)
	assert.Equal(t, 1, countCode(dev.commands(), cs108.CodeRFIDCommand, cs108.RFIDAbort().Payload))
}

func TestTrigger_DisconnectCancelsGrace(t *testing.T) {
	r, dev, sub := triggerReader(t, ModeInventory)

	dev.inject(triggerFrame(true))
	waitFor(t, sub, isState(StateScanning))
	dev.inject(triggerFrame(false))
	waitFor(t, sub, isType(EventTriggerChanged))

	r.Disconnect(context.Background())
	waitFor(t, sub, isState(StateDisconnected))
	quiet(t, sub, 2*testGrace)

	assert.Equal(t, StateDisconnected, r.State())
	_, ok := r.Session()
	assert.False(t, ok)
	assert.Equal(t, 1, countCode(dev.commands(), cs108.CodeRFIDCommand, cs108.RFIDAbort().Payload), "abort sent exactly once")
}
