package reader

import (
	"errors"
	"fmt"
	"time"

	"github.com/mzyy94/cs108ctl/internal/cs108"
	"github.com/mzyy94/cs108ctl/internal/metrics"
)

// handleFrame decodes one inbound frame and routes it by registry class.
// Acknowledgements feed the configuration sequence; everything else becomes
// at most one domain event.
func (r *Reader) handleFrame(raw []byte) {
	f, err := cs108.DecodeFrame(raw)
	if err != nil {
		reason := "unknown"
		var de *cs108.DecodeError
		if errors.As(err, &de) {
			reason = de.Kind.String()
		}
		metrics.DecodeErrorsTotal.WithLabelValues(reason).Inc()
		r.log.Warn("dropping malformed frame", "err", err, "bytes", fmt.Sprintf("% X", raw))
		return
	}
	if f.Direction != cs108.DirUplink {
		r.log.Debug("ignoring downlink frame", "kind", f.Kind())
		return
	}

	entry := f.Entry()
	metrics.FramesReceivedTotal.WithLabelValues(entry.Kind.String()).Inc()
	if r.state == StateDisconnected {
		r.log.Debug("notification while disconnected", "kind", entry.Kind)
		return
	}

	switch entry.Class {
	case cs108.ClassAck:
		r.handleAck(f)
	case cs108.ClassBattery:
		r.handleBattery(f)
	case cs108.ClassTrigger:
		r.handleTrigger(f)
	case cs108.ClassTagData:
		r.handleTag(f)
	case cs108.ClassBarcodeData:
		r.handleBarcode(f)
	case cs108.ClassActivity:
		r.onData()
	case cs108.ClassError:
		code, err := cs108.ParseErrorNotification(f.Payload)
		if err != nil {
			r.log.Warn("malformed error notification", "err", err)
			return
		}
		metrics.DeviceErrorsTotal.WithLabelValues(fmt.Sprintf("0x%04X", code)).Inc()
		r.log.Warn("reader reported error", "code", fmt.Sprintf("0x%04X", code), "state", r.state, "mode", r.mode)
	default:
		r.log.Debug("unknown notification", "code", f.Code, "module", f.Module, "payload", fmt.Sprintf("% X", f.Payload))
	}
}

func (r *Reader) handleBattery(f cs108.Frame) {
	mv, err := cs108.ParseBatteryVoltage(f.Payload)
	if err != nil {
		r.log.Warn("malformed battery report", "err", err)
		return
	}
	pct := min(max(r.battery.Percentage(mv), 0), 100)
	r.batteryPct = pct
	metrics.BatteryMillivolts.WithLabelValues(r.id).Set(float64(mv))
	r.emit(BatteryUpdate{Percentage: pct, Millivolts: mv, At: time.Now()})
}

func (r *Reader) handleTrigger(f cs108.Frame) {
	pressed, err := cs108.ParseTriggerState(f.Code, f.Payload)
	if err != nil {
		r.log.Warn("malformed trigger notification", "err", err)
		return
	}
	// A state reply only matters when it disagrees with what we know.
	if f.Kind() == cs108.KindTriggerState && pressed == r.pressed {
		return
	}
	r.onTrigger(pressed)
}

func (r *Reader) handleTag(f cs108.Frame) {
	td, err := cs108.ParseTagData(f.Payload)
	if err != nil {
		r.log.Warn("malformed tag report", "err", err)
		return
	}
	now := time.Now()
	switch r.mode {
	case ModeInventory:
		r.publishData(TagRead{EPC: td.EPC, RSSI: td.RSSI, PC: td.PC, At: now})
	case ModeLocate:
		if target := r.settings.TargetEPC; target != "" && td.EPC != target {
			r.locate.Filtered++
			metrics.LocateFilteredTotal.Inc()
			return
		}
		r.locate.observe(td.RSSI)
		r.publishData(LocateUpdate{EPC: td.EPC, RSSI: td.RSSI, At: now})
	default:
		r.log.Debug("tag report outside an RFID mode", "mode", r.mode, "epc", td.EPC)
	}
}

func (r *Reader) handleBarcode(f cs108.Frame) {
	bc, err := cs108.ParseBarcode(f.Payload, r.settings.BarcodePrefix)
	if err != nil {
		r.log.Warn("malformed barcode data", "err", err)
		return
	}
	r.publishData(BarcodeRead{Symbology: bc.Symbology, Data: bc.Data, At: time.Now()})
}

func (r *Reader) publishData(e Event) {
	if r.session != nil {
		r.session.Reads++
	}
	r.emit(e)
	r.onData()
}
