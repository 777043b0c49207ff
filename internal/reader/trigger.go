package reader

import "time"

// The trigger is one more caller of the scanning primitives. A press starts
// the configured mode scanning; a release arms a grace timer instead of
// stopping at once, so that data still in flight from the reader lands in the
// same session. Every data event re-arms the timer.

func (r *Reader) onTrigger(pressed bool) {
	r.emit(TriggerChanged{Pressed: pressed, At: time.Now()})
	r.pressed = pressed

	if pressed {
		pending := r.stopGrace()
		switch {
		case r.state == StateScanning && pending:
			// Pressed again within the grace window: keep the hardware
			// scanning and attribute what follows to a new session.
			r.endSession("trigger re-pressed")
			r.session = newSession(r.mode, SourceTrigger)
			r.log.Info("scan session renewed", "session", r.session.ID)
		case r.state == StateConnected && r.mode != ModeIdle && !r.closing:
			if err := r.startScanning(SourceTrigger); err != nil {
				r.log.Warn("trigger start failed", "err", err)
			}
		default:
			r.log.Debug("trigger press ignored", "state", r.state, "mode", r.mode)
		}
		return
	}

	if r.state == StateScanning {
		r.armGrace()
	}
}

// onData extends a pending grace period.
func (r *Reader) onData() {
	if r.graceTimer != nil {
		r.armGrace()
	}
}

func (r *Reader) armGrace() {
	r.stopGrace()
	r.graceTimer = r.startTimer(timerGrace, r.graceGen, r.grace)
}

// stopGrace cancels the grace timer and reports whether one was pending.
// Bumping the generation turns an already queued fire into a no-op.
func (r *Reader) stopGrace() bool {
	r.graceGen++
	if r.graceTimer == nil {
		return false
	}
	r.graceTimer.Stop()
	r.graceTimer = nil
	return true
}

func (r *Reader) graceExpired(gen uint64) {
	if gen != r.graceGen || r.graceTimer == nil {
		return
	}
	r.graceTimer = nil
	if r.state != StateScanning || r.pressed {
		return
	}
	if err := r.stopScanning("grace period elapsed"); err != nil {
		r.log.Warn("stop after trigger release failed", "err", err)
	}
}
