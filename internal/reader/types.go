package reader

import (
	"fmt"
	"strings"

	"github.com/mzyy94/cs108ctl/internal/cs108"
)

// State is the engine's lifecycle phase.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected // Idle and ready
	StateBusy      // Configuration sequence in flight
	StateScanning
	StateError
)

var stateNames = [...]string{"DISCONNECTED", "CONNECTING", "CONNECTED", "BUSY", "SCANNING", "ERROR"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Mode is the hardware subsystem currently configured for scanning.
type Mode int

const (
	ModeIdle Mode = iota
	ModeInventory
	ModeBarcode
	ModeLocate
)

var modeNames = [...]string{"IDLE", "INVENTORY", "BARCODE", "LOCATE"}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseMode accepts a mode name in any case.
func ParseMode(s string) (Mode, error) {
	for i, n := range modeNames {
		if strings.EqualFold(s, n) {
			return Mode(i), nil
		}
	}
	return ModeIdle, fmt.Errorf("unknown mode %q", s)
}

func (m Mode) valid() bool { return m >= ModeIdle && m <= ModeLocate }

// usesRFID reports whether the mode drives the RFID module.
func (m Mode) usesRFID() bool { return m == ModeInventory || m == ModeLocate }

// RF output power bounds in dBm.
const (
	MinPower     = 0
	MaxPower     = 30
	DefaultPower = 30
)

// Settings is the mode-relevant configuration. It persists across mode
// switches until changed.
type Settings struct {
	TargetEPC     string `json:"targetEpc"`     // Uppercase hex; LOCATE only
	Power         int    `json:"power"`         // dBm
	BarcodePrefix bool   `json:"barcodePrefix"` // Code-ID prefix on barcode data
}

// DefaultSettings returns the settings a new reader starts with.
func DefaultSettings() Settings {
	return Settings{Power: DefaultPower, BarcodePrefix: true}
}

// SettingsPatch is a partial update; nil fields are left unchanged. An empty
// TargetEPC clears the locate filter.
type SettingsPatch struct {
	TargetEPC     *string `json:"targetEpc,omitempty"`
	Power         *int    `json:"power,omitempty"`
	BarcodePrefix *bool   `json:"barcodePrefix,omitempty"`
}

// Apply returns s with p merged in, or an error if p holds an invalid value.
func (s Settings) Apply(p SettingsPatch) (Settings, error) {
	if p.TargetEPC != nil {
		if *p.TargetEPC == "" {
			s.TargetEPC = ""
		} else {
			epc, err := cs108.NormalizeEPC(*p.TargetEPC)
			if err != nil {
				return s, fmt.Errorf("target EPC: %w", err)
			}
			if len(epc)/2 > cs108.MaxMaskBytes {
				return s, fmt.Errorf("target EPC longer than %d bytes", cs108.MaxMaskBytes)
			}
			s.TargetEPC = epc
		}
	}
	if p.Power != nil {
		if *p.Power < MinPower || *p.Power > MaxPower {
			return s, fmt.Errorf("power %d dBm out of range [%d, %d]", *p.Power, MinPower, MaxPower)
		}
		s.Power = *p.Power
	}
	if p.BarcodePrefix != nil {
		s.BarcodePrefix = *p.BarcodePrefix
	}
	return s, nil
}

// ModeOptions are applied as part of a SetMode call.
type ModeOptions struct {
	// TargetEPC is merged into the settings before the tag filter is armed.
	TargetEPC *string `json:"targetEpc,omitempty"`
	// StartScanning starts the new mode scanning once configured.
	StartScanning bool `json:"startScanning,omitempty"`
}
