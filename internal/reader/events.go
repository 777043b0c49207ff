package reader

import (
	"encoding/json"
	"time"
)

// EventType names a domain event.
type EventType string

const (
	EventStateChanged          EventType = "READER_STATE_CHANGED"
	EventModeChanged           EventType = "READER_MODE_CHANGED"
	EventConfigurationComplete EventType = "CONFIGURATION_COMPLETE"
	EventConfigurationFailed   EventType = "CONFIGURATION_FAILED"
	EventBatteryUpdate         EventType = "BATTERY_UPDATE"
	EventTriggerChanged        EventType = "TRIGGER_STATE_CHANGED"
	EventTagRead               EventType = "TAG_READ"
	EventLocateUpdate          EventType = "LOCATE_UPDATE"
	EventBarcodeRead           EventType = "BARCODE_READ"
)

// Event is an immutable domain event. The concrete types below are the only
// implementations.
type Event interface {
	Type() EventType
	Time() time.Time
}

type StateChanged struct {
	State    State     `json:"state"`
	Previous State     `json:"previous"`
	At       time.Time `json:"-"`
}

type ModeChanged struct {
	Mode     Mode      `json:"mode"`
	Previous Mode      `json:"previous"`
	At       time.Time `json:"-"`
}

type ConfigurationComplete struct {
	Mode     Mode
	Duration time.Duration
	At       time.Time
}

// ConfigurationFailed reports a sequence that did not complete. Err wraps
// one of ErrConfigurationTimeout, ErrSuperseded, ErrDisconnected,
// ErrTransportUnavailable or a *cs108.AckError.
type ConfigurationFailed struct {
	Mode Mode
	Err  error
	At   time.Time
}

type BatteryUpdate struct {
	Percentage int       `json:"percentage"`
	Millivolts int       `json:"millivolts"`
	At         time.Time `json:"-"`
}

type TriggerChanged struct {
	Pressed bool      `json:"pressed"`
	At      time.Time `json:"-"`
}

// TagRead is an inventory tag report.
type TagRead struct {
	EPC  string    `json:"epc"`
	RSSI int       `json:"rssi"`
	PC   uint16    `json:"pc"`
	At   time.Time `json:"-"`
}

// LocateUpdate is a tag report for the locate target.
type LocateUpdate struct {
	EPC  string    `json:"epc"`
	RSSI int       `json:"rssi"`
	At   time.Time `json:"-"`
}

type BarcodeRead struct {
	Symbology string    `json:"symbology"`
	Data      string    `json:"data"`
	At        time.Time `json:"-"`
}

func (StateChanged) Type() EventType          { return EventStateChanged }
func (ModeChanged) Type() EventType           { return EventModeChanged }
func (ConfigurationComplete) Type() EventType { return EventConfigurationComplete }
func (ConfigurationFailed) Type() EventType   { return EventConfigurationFailed }
func (BatteryUpdate) Type() EventType         { return EventBatteryUpdate }
func (TriggerChanged) Type() EventType        { return EventTriggerChanged }
func (TagRead) Type() EventType               { return EventTagRead }
func (LocateUpdate) Type() EventType          { return EventLocateUpdate }
func (BarcodeRead) Type() EventType           { return EventBarcodeRead }

func (e StateChanged) Time() time.Time          { return e.At }
func (e ModeChanged) Time() time.Time           { return e.At }
func (e ConfigurationComplete) Time() time.Time { return e.At }
func (e ConfigurationFailed) Time() time.Time   { return e.At }
func (e BatteryUpdate) Time() time.Time         { return e.At }
func (e TriggerChanged) Time() time.Time        { return e.At }
func (e TagRead) Time() time.Time               { return e.At }
func (e LocateUpdate) Time() time.Time          { return e.At }
func (e BarcodeRead) Time() time.Time           { return e.At }

func (e ConfigurationComplete) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Mode       Mode  `json:"mode"`
		DurationMs int64 `json:"durationMs"`
	}{e.Mode, e.Duration.Milliseconds()})
}

func (e ConfigurationFailed) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Mode  Mode   `json:"mode"`
		Error string `json:"error"`
	}{e.Mode, msg})
}

// MarshalEvent renders e in the envelope used on the wire by the HTTP API
// and the NATS publisher.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(struct {
		Type EventType `json:"type"`
		Time time.Time `json:"time"`
		Data Event     `json:"data"`
	}{e.Type(), e.Time(), e})
}
