// Package reader is the CS108 protocol engine: a mode/state machine that
// sequences hardware configuration over a fire-and-forget transport, a
// trigger coordinator, and a dispatcher that turns notifications into domain
// events.
//
// All protocol state is owned by a single run goroutine. Caller requests,
// inbound frames and timer expiries are serialised through it, so frames are
// handled strictly in arrival order.
package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mzyy94/cs108ctl/internal/cs108"
	"github.com/mzyy94/cs108ctl/internal/metrics"
	"github.com/mzyy94/cs108ctl/internal/transport"
)

const (
	DefaultConfigTimeout = 5 * time.Second
	DefaultGracePeriod   = 2 * time.Second

	defaultSubscriberBuffer = 256
	inboxSize               = 256
)

// Options configures a Reader. Zero values select the defaults.
type Options struct {
	ID               string
	ConfigTimeout    time.Duration
	GracePeriod      time.Duration
	Battery          BatteryCurve
	Settings         *Settings
	SubscriberBuffer int
	Logger           *slog.Logger
}

// Reader drives one physical reader over one transport.
type Reader struct {
	id            string
	t             transport.Transport
	link          transport.Linker // nil if t has no link lifecycle
	log           *slog.Logger
	bus           *bus
	battery       BatteryCurve
	configTimeout time.Duration
	grace         time.Duration

	reqs      chan request
	inbox     chan []byte
	down      chan error
	timers    chan timerFire
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the run goroutine.
	state      State
	mode       Mode
	settings   Settings
	closing    bool // Disconnect in progress
	seq        *sequence
	session    *ScanSession
	locate     LocateStats
	batteryPct int
	pressed    bool
	gen        uint64
	graceGen   uint64
	graceTimer *time.Timer

	// acks holds, per event code, the owner of every command sent and not
	// yet acknowledged, oldest first. Owner 0 is a command outside any
	// configuration sequence.
	acks map[cs108.Code][]uint64

	snapMu sync.RWMutex
	snap   snapshot
}

type snapshot struct {
	state      State
	mode       Mode
	settings   Settings
	batteryPct int
	session    *ScanSession
	locate     LocateStats
}

type request struct {
	fn    func() error
	reply chan error
}

type timerKind int

const (
	timerConfig timerKind = iota
	timerGrace
)

type timerFire struct {
	kind timerKind
	gen  uint64
}

// New creates a Reader on t and starts its run goroutine. The reader starts
// DISCONNECTED; call Connect.
func New(t transport.Transport, opts Options) *Reader {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.ConfigTimeout <= 0 {
		opts.ConfigTimeout = DefaultConfigTimeout
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.Battery == nil {
		opts.Battery = DefaultBatteryCurve
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = defaultSubscriberBuffer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	settings := DefaultSettings()
	if opts.Settings != nil {
		settings = *opts.Settings
	}

	r := &Reader{
		id:            opts.ID,
		t:             t,
		log:           opts.Logger.With("reader", opts.ID),
		bus:           newBus(opts.SubscriberBuffer),
		battery:       opts.Battery,
		configTimeout: opts.ConfigTimeout,
		grace:         opts.GracePeriod,
		reqs:          make(chan request),
		inbox:         make(chan []byte, inboxSize),
		down:          make(chan error, 1),
		timers:        make(chan timerFire, 4),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
		settings:      settings,
		batteryPct:    -1,
		acks:          make(map[cs108.Code][]uint64),
	}
	r.locate.TargetEPC = settings.TargetEPC
	if l, ok := t.(transport.Linker); ok {
		r.link = l
	}
	r.updateSnap()
	t.OnReceive(r.receive)
	if w, ok := t.(transport.Watcher); ok {
		w.OnDown(r.linkLost)
	}
	go r.run()
	return r
}

// ID returns the reader id used in logs, metrics and published subjects.
func (r *Reader) ID() string { return r.id }

// Close stops the run goroutine and closes every subscription. It does not
// talk to the hardware; call Disconnect first for a clean shutdown.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() { close(r.quit) })
	<-r.done
	r.t.OnReceive(nil)
	if w, ok := r.t.(transport.Watcher); ok {
		w.OnDown(nil)
	}
	r.bus.close()
	return nil
}

// receive is the transport callback. It may block briefly when the inbox is
// full, which pushes back on the transport's reader.
func (r *Reader) receive(frame []byte) {
	select {
	case r.inbox <- frame:
	case <-r.quit:
	}
}

func (r *Reader) run() {
	defer close(r.done)
	defer r.stopTimers()
	for {
		select {
		case <-r.quit:
			return
		case req := <-r.reqs:
			req.reply <- req.fn()
		case frame := <-r.inbox:
			r.handleFrame(frame)
		case err := <-r.down:
			r.handleLinkDown(err)
		case tf := <-r.timers:
			r.handleTimer(tf)
		}
		r.updateSnap()
	}
}

// linkLost is the transport's link-down callback.
func (r *Reader) linkLost(err error) {
	select {
	case r.down <- err:
	case <-r.quit:
	}
}

// handleLinkDown moves a connected reader to ERROR after the transport lost
// its link.
func (r *Reader) handleLinkDown(err error) {
	switch {
	case r.closing:
		return
	case r.state != StateConnected && r.state != StateBusy && r.state != StateScanning:
		return
	}
	r.drainInbox()
	r.log.Warn("link lost", "err", err)
	r.stopGrace()
	r.endSession("link lost")
	if r.seq != nil {
		r.abandonSequence(fmt.Errorf("%w: %w", ErrTransportUnavailable, err))
	}
	r.acks = make(map[cs108.Code][]uint64)
	r.pressed = false
	r.setMode(ModeIdle, false)
	r.setState(StateError)
}

// drainInbox handles frames that arrived before the link went down.
func (r *Reader) drainInbox() {
	for {
		select {
		case frame := <-r.inbox:
			r.handleFrame(frame)
		default:
			return
		}
	}
}

// do runs fn on the run goroutine and returns its result.
func (r *Reader) do(ctx context.Context, fn func() error) error {
	req := request{fn: fn, reply: make(chan error, 1)}
	select {
	case r.reqs <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.quit:
		return ErrClosed
	}
	return <-req.reply
}

// --------------------------------------------------------------------------
// Public operations
// --------------------------------------------------------------------------

// Connect links the transport and runs the minimal idle configuration: a
// battery read and battery auto-reporting. Connecting a connected reader is
// a no-op.
func (r *Reader) Connect(ctx context.Context) error {
	already := false
	err := r.do(ctx, func() error {
		switch {
		case r.closing:
			return fmt.Errorf("%w: connect while disconnecting", ErrInvalidTransition)
		case r.state == StateConnecting:
			return fmt.Errorf("%w: connect already in progress", ErrInvalidTransition)
		case r.state == StateConnected, r.state == StateBusy, r.state == StateScanning:
			already = true
			return nil
		}
		r.acks = make(map[cs108.Code][]uint64)
		r.setState(StateConnecting)
		return nil
	})
	if err != nil || already {
		return err
	}

	if r.link != nil {
		if err := r.link.Open(ctx); err != nil {
			r.do(context.Background(), func() error {
				if r.state == StateConnecting {
					r.setState(StateError)
				}
				return nil
			})
			r.log.Warn("connect failed", "err", err)
			return fmt.Errorf("connect: %w", err)
		}
	}

	err = r.do(context.Background(), func() error {
		if r.closing || r.state != StateConnecting {
			return fmt.Errorf("%w: connect interrupted (%s)", ErrInvalidTransition, r.state)
		}
		r.setState(StateConnected)
		r.setMode(ModeIdle, false)
		for _, c := range []cs108.Command{cs108.GetBatteryVoltage(), cs108.StartBatteryReporting()} {
			if err := r.send(c, 0); err != nil {
				r.setState(StateError)
				return fmt.Errorf("connect: %w", err)
			}
		}
		r.log.Info("connected")
		return nil
	})
	if errors.Is(err, ErrInvalidTransition) && r.link != nil {
		r.link.Close()
	}
	return err
}

// Disconnect powers the hardware down, returns to IDLE and closes the link.
// Failures along the way are logged; the reader always ends DISCONNECTED.
func (r *Reader) Disconnect(ctx context.Context) {
	proceed := false
	err := r.do(ctx, func() error {
		if r.state == StateDisconnected || r.closing {
			return nil
		}
		proceed = true
		r.closing = true
		r.stopGrace()
		if r.seq != nil {
			r.abandonSequence(ErrDisconnected)
		}
		if r.state != StateConnecting {
			r.farewell()
		}
		return nil
	})
	if err != nil {
		r.log.Warn("disconnect aborted", "err", err)
		return
	}
	if !proceed {
		return
	}

	if r.link != nil {
		if err := r.link.Close(); err != nil {
			r.log.Warn("closing link failed", "err", err)
		}
	}

	r.do(context.Background(), func() error {
		r.closing = false
		r.pressed = false
		r.acks = make(map[cs108.Code][]uint64)
		r.setState(StateDisconnected)
		r.log.Info("disconnected")
		return nil
	})
}

// SetMode reconfigures the hardware for mode. It returns once the sequence
// has started; the outcome is reported by ModeChanged followed by
// StateChanged, or by ConfigurationFailed. Requesting the current mode runs
// the full power-down/power-up sequence again.
func (r *Reader) SetMode(mode Mode, opts ModeOptions) error {
	if !mode.valid() {
		return fmt.Errorf("set mode: unknown mode %d", int(mode))
	}
	return r.do(context.Background(), func() error {
		switch {
		case r.closing:
			return fmt.Errorf("%w: set mode while disconnecting", ErrInvalidTransition)
		case r.state == StateDisconnected, r.state == StateConnecting:
			return fmt.Errorf("%w: set mode %s while %s", ErrInvalidTransition, mode, r.state)
		}

		settings := r.settings
		if opts.TargetEPC != nil {
			s, err := settings.Apply(SettingsPatch{TargetEPC: opts.TargetEPC})
			if err != nil {
				return fmt.Errorf("set mode: %w", err)
			}
			settings = s
		}

		var stale []Mode
		if r.seq != nil {
			stale = append(stale, r.seq.target)
		}
		phases, err := buildPhases(r.mode, r.state == StateScanning, stale, mode, settings)
		if err != nil {
			return fmt.Errorf("set mode: %w", err)
		}

		// Settings are in place before any filter command goes out.
		r.applySettings(settings)
		if r.seq != nil {
			r.abandonSequence(ErrSuperseded)
		}
		r.startSequence(mode, opts, phases)
		return nil
	})
}

// SetSettings merges p into the settings. Hardware settings (power, tag
// filter, barcode prefix) reach the reader on the next SetMode; the locate
// filter in the dispatcher applies immediately.
func (r *Reader) SetSettings(p SettingsPatch) error {
	return r.do(context.Background(), func() error {
		s, err := r.settings.Apply(p)
		if err != nil {
			return fmt.Errorf("set settings: %w", err)
		}
		r.applySettings(s)
		r.log.Info("settings updated", "targetEpc", s.TargetEPC, "power", s.Power, "barcodePrefix", s.BarcodePrefix)
		return nil
	})
}

// StartScanning begins scanning in the configured mode. Valid from
// CONNECTED with a mode other than IDLE.
func (r *Reader) StartScanning() error {
	return r.do(context.Background(), func() error { return r.startScanning(SourceAPI) })
}

// StopScanning stops the running scan. Valid from SCANNING only.
func (r *Reader) StopScanning() error {
	return r.do(context.Background(), func() error { return r.stopScanning("requested") })
}

// Subscribe returns a queue of events matching f (nil for all).
func (r *Reader) Subscribe(f Filter) *Subscription {
	return r.bus.subscribe(f)
}

// OnEvent calls fn on its own goroutine for every event matching f until
// the returned subscription is closed.
func (r *Reader) OnEvent(fn func(Event), f Filter) *Subscription {
	s := r.bus.subscribe(f)
	go listen(s, fn)
	return s
}

func (r *Reader) State() State {
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()
	return r.snap.state
}

func (r *Reader) Mode() Mode {
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()
	return r.snap.mode
}

func (r *Reader) Settings() Settings {
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()
	return r.snap.settings
}

// BatteryPercentage returns the last reported charge, or -1 before the
// first report.
func (r *Reader) BatteryPercentage() int {
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()
	return r.snap.batteryPct
}

// Session returns the running scan session, if any.
func (r *Reader) Session() (ScanSession, bool) {
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()
	if r.snap.session == nil {
		return ScanSession{}, false
	}
	return *r.snap.session, true
}

// LocateStats returns the RSSI bookkeeping of the current LOCATE session.
func (r *Reader) LocateStats() LocateStats {
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()
	return r.snap.locate
}

// --------------------------------------------------------------------------
// Run-goroutine internals
// --------------------------------------------------------------------------

func (r *Reader) updateSnap() {
	var sess *ScanSession
	if r.session != nil {
		cp := *r.session
		sess = &cp
	}
	r.snapMu.Lock()
	r.snap = snapshot{
		state:      r.state,
		mode:       r.mode,
		settings:   r.settings,
		batteryPct: r.batteryPct,
		session:    sess,
		locate:     r.locate,
	}
	r.snapMu.Unlock()
}

func (r *Reader) emit(e Event) {
	r.updateSnap()
	r.bus.publish(e)
}

func (r *Reader) setState(s State) {
	if s == r.state {
		return
	}
	prev := r.state
	r.state = s
	r.log.Debug("state changed", "from", prev, "to", s)
	r.emit(StateChanged{State: s, Previous: prev, At: time.Now()})
}

// setMode records a mode change. force emits ModeChanged even when the mode
// is unchanged, which a completed configuration sequence always does.
func (r *Reader) setMode(m Mode, force bool) {
	if m == r.mode && !force {
		return
	}
	prev := r.mode
	r.mode = m
	r.emit(ModeChanged{Mode: m, Previous: prev, At: time.Now()})
}

func (r *Reader) applySettings(s Settings) {
	if s.TargetEPC != r.locate.TargetEPC {
		r.locate = LocateStats{TargetEPC: s.TargetEPC}
	}
	r.settings = s
}

// send encodes and writes one command, recording it as awaiting an
// acknowledgement when its code is acknowledged.
func (r *Reader) send(cmd cs108.Command, owner uint64) error {
	if r.state == StateDisconnected || r.state == StateConnecting {
		return fmt.Errorf("%w: %s while %s", ErrTransportUnavailable, cmd, r.state)
	}
	if err := r.t.Send(cmd.Encode()); err != nil {
		return fmt.Errorf("%w: send %s: %w", ErrTransportUnavailable, cmd, err)
	}
	metrics.FramesSentTotal.WithLabelValues(cs108.Lookup(cmd.Code).Kind.String()).Inc()
	if cs108.Lookup(cmd.Code).Class == cs108.ClassAck {
		r.acks[cmd.Code] = append(r.acks[cmd.Code], owner)
	}
	r.log.Debug("command sent", "cmd", cmd, "payload", fmt.Sprintf("% X", cmd.Payload))
	return nil
}

// farewell is the best-effort power-down run before the link is closed.
func (r *Reader) farewell() {
	var cmds []cs108.Command
	if r.state == StateScanning {
		cmds = append(cmds, abortCommands(r.mode)...)
		r.endSession("disconnect")
	}
	cmds = append(cmds, cs108.RFIDPowerOff(), cs108.BarcodePowerOff(), cs108.StopBatteryReporting())
	for _, c := range cmds {
		if err := r.send(c, 0); err != nil {
			r.log.Warn("power-down before disconnect failed", "cmd", c, "err", err)
			break
		}
	}
	r.setMode(ModeIdle, false)
}

func (r *Reader) startTimer(kind timerKind, gen uint64, d time.Duration) *time.Timer {
	return time.AfterFunc(d, func() {
		select {
		case r.timers <- timerFire{kind: kind, gen: gen}:
		case <-r.quit:
		}
	})
}

func (r *Reader) stopTimers() {
	if r.seq != nil && r.seq.timer != nil {
		r.seq.timer.Stop()
	}
	r.stopGrace()
}

// handleTimer ignores fires whose generation is no longer current; they
// were cancelled after the callback was already queued.
func (r *Reader) handleTimer(tf timerFire) {
	switch tf.kind {
	case timerConfig:
		if r.seq == nil || r.seq.gen != tf.gen {
			return
		}
		pending := r.seq.pendingKinds()
		// Outstanding acks are presumed lost.
		r.acks = make(map[cs108.Code][]uint64)
		r.failSequence(fmt.Errorf("%w after %s waiting for %s", ErrConfigurationTimeout, r.configTimeout, pending))
	case timerGrace:
		r.graceExpired(tf.gen)
	}
}

// --------------------------------------------------------------------------
// Configuration sequence
// --------------------------------------------------------------------------

func (r *Reader) startSequence(target Mode, opts ModeOptions, phases []phase) {
	r.gen++
	seq := &sequence{gen: r.gen, target: target, opts: opts, phases: phases, started: time.Now()}
	if r.state == StateScanning {
		r.stopGrace()
		r.endSession("reconfigure")
	}
	r.seq = seq
	r.setState(StateBusy)
	seq.timer = r.startTimer(timerConfig, seq.gen, r.configTimeout)
	r.log.Info("configuring", "mode", target, "from", r.mode, "seq", seq.gen)
	r.runPhase()
}

// runPhase sends the current phase and returns to wait for its acks. Phases
// with nothing to acknowledge are passed straight through; after the last
// phase the sequence completes.
func (r *Reader) runPhase() {
	seq := r.seq
	for seq.idx < len(seq.phases) {
		ph := seq.phases[seq.idx]
		seq.pending = make(map[cs108.Code]int)
		for _, c := range ph.cmds {
			if err := r.send(c, seq.gen); err != nil {
				r.failSequence(err)
				return
			}
			if cs108.Lookup(c.Code).Class == cs108.ClassAck {
				seq.pending[c.Code]++
			}
		}
		r.log.Debug("configuration phase sent", "phase", ph.name, "commands", len(ph.cmds), "seq", seq.gen)
		if len(seq.pending) > 0 {
			return
		}
		seq.idx++
	}
	r.completeSequence()
}

func (r *Reader) handleAck(f cs108.Frame) {
	q := r.acks[f.Code]
	if len(q) == 0 {
		r.log.Debug("unsolicited acknowledgement", "kind", f.Kind())
		return
	}
	owner := q[0]
	if len(q) == 1 {
		delete(r.acks, f.Code)
	} else {
		r.acks[f.Code] = q[1:]
	}
	ackErr := cs108.ParseAck(f.Code, f.Payload)

	seq := r.seq
	if seq == nil || owner != seq.gen {
		if ackErr != nil {
			r.log.Warn("command rejected", "kind", f.Kind(), "err", ackErr)
		} else if owner != 0 {
			r.log.Debug("discarding acknowledgement for abandoned sequence", "kind", f.Kind(), "seq", owner)
		}
		return
	}
	if ackErr != nil {
		r.failSequence(fmt.Errorf("configure %s: %w", seq.target, ackErr))
		return
	}
	if seq.pending[f.Code]--; seq.pending[f.Code] <= 0 {
		delete(seq.pending, f.Code)
	}
	if len(seq.pending) == 0 {
		seq.idx++
		r.runPhase()
	}
}

func (r *Reader) completeSequence() {
	seq := r.seq
	r.seq = nil
	seq.timer.Stop()
	dur := time.Since(seq.started)
	metrics.ObserveConfiguration(seq.target.String(), "ok", dur.Seconds())
	r.log.Info("configured", "mode", seq.target, "duration", dur.Round(time.Millisecond), "seq", seq.gen)

	r.locate = LocateStats{TargetEPC: r.settings.TargetEPC}
	r.setMode(seq.target, true)
	if seq.opts.StartScanning && seq.target != ModeIdle {
		if err := r.beginScan(SourceAPI); err != nil {
			r.log.Warn("start scanning after configuration failed", "err", err)
		}
	} else {
		r.setState(StateConnected)
	}
	r.emit(ConfigurationComplete{Mode: seq.target, Duration: dur, At: time.Now()})
}

// abandonSequence ends the in-flight sequence without touching the
// hardware. Its late acknowledgements are discarded by handleAck.
func (r *Reader) abandonSequence(reason error) {
	seq := r.seq
	r.seq = nil
	seq.timer.Stop()
	metrics.ObserveConfiguration(seq.target.String(), resultLabel(reason), 0)
	r.log.Info("configuration abandoned", "mode", seq.target, "reason", reason, "seq", seq.gen)
	r.emit(ConfigurationFailed{Mode: seq.target, Err: reason, At: time.Now()})
}

// failSequence reports the failure and falls back to the safe state: both
// subsystems off, mode IDLE, CONNECTED. A transport failure lands in ERROR.
func (r *Reader) failSequence(err error) {
	seq := r.seq
	r.seq = nil
	seq.timer.Stop()
	metrics.ObserveConfiguration(seq.target.String(), resultLabel(err), 0)
	r.log.Warn("configuration failed", "mode", seq.target, "err", err, "seq", seq.gen)
	r.emit(ConfigurationFailed{Mode: seq.target, Err: err, At: time.Now()})

	if !errors.Is(err, ErrTransportUnavailable) {
		for _, c := range powerOffCommands(ModeIdle) {
			if sendErr := r.send(c, 0); sendErr != nil {
				r.log.Warn("fallback power-down failed", "cmd", c, "err", sendErr)
				err = sendErr
				break
			}
		}
	}
	r.setMode(ModeIdle, false)
	if errors.Is(err, ErrTransportUnavailable) {
		r.setState(StateError)
		return
	}
	r.setState(StateConnected)
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrConfigurationTimeout):
		return "timeout"
	case errors.Is(err, ErrSuperseded):
		return "superseded"
	case errors.Is(err, ErrDisconnected):
		return "disconnected"
	case errors.Is(err, ErrTransportUnavailable):
		return "transport"
	}
	var ae *cs108.AckError
	if errors.As(err, &ae) {
		return "rejected"
	}
	return "error"
}

// --------------------------------------------------------------------------
// Scanning primitives
// --------------------------------------------------------------------------

func (r *Reader) startScanning(src Source) error {
	switch {
	case r.closing || r.state != StateConnected:
		return fmt.Errorf("%w: start scanning while %s", ErrInvalidTransition, r.state)
	case r.mode == ModeIdle:
		return fmt.Errorf("%w: start scanning with no mode configured", ErrInvalidTransition)
	}
	return r.beginScan(src)
}

func (r *Reader) beginScan(src Source) error {
	for _, c := range startCommands(r.mode) {
		if err := r.send(c, 0); err != nil {
			r.setState(StateError)
			return fmt.Errorf("start scanning: %w", err)
		}
	}
	r.session = newSession(r.mode, src)
	if r.mode == ModeLocate {
		r.locate = LocateStats{TargetEPC: r.settings.TargetEPC}
	}
	r.log.Info("scanning started", "mode", r.mode, "source", src, "session", r.session.ID)
	r.setState(StateScanning)
	return nil
}

func (r *Reader) stopScanning(reason string) error {
	if r.state != StateScanning {
		return fmt.Errorf("%w: stop scanning while %s", ErrInvalidTransition, r.state)
	}
	r.stopGrace()
	var sendErr error
	for _, c := range abortCommands(r.mode) {
		if err := r.send(c, 0); err != nil {
			sendErr = err
			break
		}
	}
	r.endSession(reason)
	if sendErr != nil {
		r.setState(StateError)
		return fmt.Errorf("stop scanning: %w", sendErr)
	}
	r.setState(StateConnected)
	return nil
}

func (r *Reader) endSession(reason string) {
	if r.session == nil {
		return
	}
	r.log.Info("scanning stopped",
		"mode", r.session.Mode,
		"session", r.session.ID,
		"reads", r.session.Reads,
		"duration", time.Since(r.session.Started).Round(time.Millisecond),
		"reason", reason,
	)
	r.session = nil
}
