// Package sim emulates a CS108 handheld on the far side of a transport. It
// acknowledges commands, reports battery voltage and produces tag and
// barcode data while the host has a scan running.
package sim

import (
	"bytes"
	"context"
	"encoding/binary"
	"log/slog"
	"sync"
	"time"

	"github.com/mzyy94/cs108ctl/internal/cs108"
	"github.com/mzyy94/cs108ctl/internal/transport"
)

// Tag is a transponder in the simulated field.
type Tag struct {
	EPC  string `yaml:"epc"`
	RSSI int    `yaml:"rssi"`
}

// Config describes the simulated device.
type Config struct {
	Millivolts      int           `yaml:"millivolts"`
	BatteryInterval time.Duration `yaml:"battery_interval"` // Auto-report period
	ReadInterval    time.Duration `yaml:"read_interval"`    // One tag or barcode per tick while scanning
	Tags            []Tag         `yaml:"tags"`
	Barcodes        []string      `yaml:"barcodes"` // Code-ID prefixed, e.g. "QHELLO"
}

// DefaultConfig is a device with one tag and one barcode in view.
func DefaultConfig() Config {
	return Config{
		Millivolts:      3900,
		BatteryInterval: 5 * time.Second,
		ReadInterval:    200 * time.Millisecond,
		Tags:            []Tag{{EPC: "E28011606000002095", RSSI: -40}},
		Barcodes:        []string{"j0123456789"},
	}
}

// Device is the simulated reader. Frames from the host are queued by the
// transport callback and handled on the Run goroutine.
type Device struct {
	cfg   Config
	inbox chan []byte
	ops   chan func()
	done  chan struct{}
	once  sync.Once

	// Owned by the Run goroutine.
	t           transport.Transport
	rfidOn      bool
	barcodeOn   bool
	inventory   bool
	decoding    bool
	codeID      bool
	reporting   bool
	pressed     bool
	mask        mask
	nextTag     int
	nextBarcode int
}

// New creates a device. Zero intervals fall back to DefaultConfig.
func New(cfg Config) *Device {
	def := DefaultConfig()
	if cfg.BatteryInterval <= 0 {
		cfg.BatteryInterval = def.BatteryInterval
	}
	if cfg.ReadInterval <= 0 {
		cfg.ReadInterval = def.ReadInterval
	}
	if cfg.Millivolts == 0 {
		cfg.Millivolts = def.Millivolts
	}
	return &Device{
		cfg:    cfg,
		inbox:  make(chan []byte, 1024),
		ops:    make(chan func(), 16),
		done:   make(chan struct{}),
		codeID: true,
	}
}

// Run serves the host on t until ctx is cancelled.
func (d *Device) Run(ctx context.Context, t transport.Transport) error {
	defer d.once.Do(func() { close(d.done) })
	d.t = t
	t.OnReceive(d.receive)
	defer t.OnReceive(nil)

	battery := time.NewTicker(d.cfg.BatteryInterval)
	defer battery.Stop()
	reads := time.NewTicker(d.cfg.ReadInterval)
	defer reads.Stop()

	slog.Info("simulated reader running", "tags", len(d.cfg.Tags), "barcodes", len(d.cfg.Barcodes))
	for {
		select {
		case <-ctx.Done():
			slog.Info("simulated reader stopped")
			return nil
		case frame := <-d.inbox:
			d.handle(frame)
		case fn := <-d.ops:
			fn()
		case <-battery.C:
			if d.reporting {
				d.sendBattery()
			}
		case <-reads.C:
			d.tick()
		}
	}
}

func (d *Device) receive(frame []byte) {
	select {
	case d.inbox <- frame:
	default:
		slog.Warn("simulated reader inbox full, frame dropped")
	}
}

// do runs fn on the Run goroutine. It is a no-op once Run has returned.
func (d *Device) do(fn func()) {
	select {
	case d.ops <- fn:
	case <-d.done:
	}
}

// Press reports a trigger press.
func (d *Device) Press() {
	d.do(func() {
		d.pressed = true
		d.notify(cs108.ModuleNotification, cs108.CodeTriggerPressed, nil)
	})
}

// Release reports a trigger release.
func (d *Device) Release() {
	d.do(func() {
		d.pressed = false
		d.notify(cs108.ModuleNotification, cs108.CodeTriggerReleased, nil)
	})
}

// Tag reports a single tag read regardless of the inventory state.
func (d *Device) Tag(epc string, rssi int) {
	d.do(func() { d.sendTag(Tag{EPC: epc, RSSI: rssi}) })
}

// Barcode reports a decode of data, code-ID prefixed.
func (d *Device) Barcode(data string) {
	d.do(func() { d.sendBarcode(data) })
}

// Fault reports a reader error code.
func (d *Device) Fault(code uint16) {
	d.do(func() {
		p := make([]byte, 2)
		binary.BigEndian.PutUint16(p, code)
		d.notify(cs108.ModuleNotification, cs108.CodeErrorNotification, p)
	})
}

func (d *Device) handle(frame []byte) {
	f, err := cs108.DecodeFrame(frame)
	if err != nil {
		slog.Debug("simulated reader dropped frame", "err", err)
		return
	}
	if f.Direction != cs108.DirDownlink {
		return
	}
	status := cs108.AckOK
	switch f.Code {
	case cs108.CodeGetBatteryVoltage:
		d.sendBattery()
		return
	case cs108.CodeGetTriggerState:
		var v byte
		if d.pressed {
			v = 1
		}
		d.notify(cs108.ModuleNotification, f.Code, []byte{v})
		return
	case cs108.CodeStartBatteryReporting:
		d.reporting = true
	case cs108.CodeStopBatteryReporting:
		d.reporting = false
	case cs108.CodeRFIDPowerOn:
		d.rfidOn = true
	case cs108.CodeRFIDPowerOff:
		d.rfidOn, d.inventory = false, false
		d.mask = mask{}
	case cs108.CodeRFIDCommand:
		status = d.rfidCommand(f.Payload)
	case cs108.CodeBarcodePowerOn:
		d.barcodeOn = true
	case cs108.CodeBarcodePowerOff:
		d.barcodeOn, d.decoding = false, false
	case cs108.CodeBarcodeCommand:
		status = d.barcodeCommand(f.Payload)
	default:
		if f.Entry().Class != cs108.ClassAck {
			slog.Debug("simulated reader ignored command", "code", f.Code)
			return
		}
	}
	d.notify(f.Module, f.Code, []byte{status})
}

// Non-zero ack status for commands sent to a powered-down module.
const statusNotPowered byte = 0x01

func (d *Device) rfidCommand(p []byte) byte {
	if !d.rfidOn {
		return statusNotPowered
	}
	if bytes.Equal(p, cs108.MarshalAbort()) {
		d.inventory = false
		return cs108.AckOK
	}
	if len(p) != 8 || p[0] != 0x70 || p[1] != 0x01 {
		slog.Debug("simulated reader ignored RFID packet", "packet", p)
		return cs108.AckOK
	}
	reg := binary.LittleEndian.Uint16(p[2:4])
	val := binary.LittleEndian.Uint32(p[4:8])
	switch {
	case reg == cs108.RegHostCommand && val == cs108.HostCmdInventory:
		d.inventory = true
	default:
		d.mask.write(reg, val)
	}
	return cs108.AckOK
}

func (d *Device) barcodeCommand(p []byte) byte {
	if !d.barcodeOn {
		return statusNotPowered
	}
	switch {
	case bytes.Equal(p, cs108.BarcodeStartDecode):
		d.decoding = true
	case bytes.Equal(p, cs108.BarcodeStopDecode):
		d.decoding = false
	case bytes.Equal(p, cs108.BarcodeCodeID(true).Payload):
		d.codeID = true
	case bytes.Equal(p, cs108.BarcodeCodeID(false).Payload):
		d.codeID = false
	}
	return cs108.AckOK
}

// tick emits the next read of the running scan.
func (d *Device) tick() {
	switch {
	case d.rfidOn && d.inventory:
		for range d.cfg.Tags {
			t := d.cfg.Tags[d.nextTag%len(d.cfg.Tags)]
			d.nextTag++
			if d.mask.matches(t.EPC) {
				d.sendTag(t)
				return
			}
		}
	case d.barcodeOn && d.decoding && len(d.cfg.Barcodes) > 0:
		d.sendBarcode(d.cfg.Barcodes[d.nextBarcode%len(d.cfg.Barcodes)])
		d.nextBarcode++
	}
}

func (d *Device) sendTag(t Tag) {
	p, err := cs108.MarshalTagData(t.EPC, t.RSSI)
	if err != nil {
		slog.Warn("simulated tag skipped", "epc", t.EPC, "err", err)
		return
	}
	d.notify(cs108.ModuleRFID, cs108.CodeRFIDData, p)
}

func (d *Device) sendBarcode(data string) {
	if !d.codeID && len(data) > 1 {
		data = data[1:]
	}
	if len(data)+2 > cs108.MaxPayloadSize {
		slog.Warn("simulated barcode skipped", "len", len(data), "max", cs108.MaxPayloadSize-2)
		return
	}
	d.notify(cs108.ModuleBarcode, cs108.CodeBarcodeGoodRead, nil)
	d.notify(cs108.ModuleBarcode, cs108.CodeBarcodeData, []byte(data+"\r\n"))
}

func (d *Device) sendBattery() {
	p := make([]byte, 2)
	binary.BigEndian.PutUint16(p, uint16(d.cfg.Millivolts))
	d.notify(cs108.ModuleNotification, cs108.CodeGetBatteryVoltage, p)
}

func (d *Device) notify(m cs108.Module, code cs108.Code, payload []byte) {
	if d.t == nil {
		return
	}
	if err := d.t.Send(cs108.EncodeNotification(m, code, payload)); err != nil {
		slog.Debug("simulated reader send failed", "code", code, "err", err)
	}
}
