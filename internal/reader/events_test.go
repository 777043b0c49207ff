package reader

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalEvent(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name  string
		event Event
		data  string
	}{
		{"state", StateChanged{State: StateScanning, Previous: StateConnected, At: at}, `{"state":"SCANNING","previous":"CONNECTED"}`},
		{"mode", ModeChanged{Mode: ModeLocate, Previous: ModeIdle, At: at}, `{"mode":"LOCATE","previous":"IDLE"}`},
		{"complete", ConfigurationComplete{Mode: ModeBarcode, Duration: 1500 * time.Millisecond, At: at}, `{"mode":"BARCODE","durationMs":1500}`},
		{"failed", ConfigurationFailed{Mode: ModeInventory, Err: fmt.Errorf("%w after 5s", ErrConfigurationTimeout), At: at}, `{"mode":"INVENTORY","error":"configuration timed out after 5s"}`},
		{"locate", LocateUpdate{EPC: "E28011606000002095", RSSI: -40, At: at}, `{"epc":"E28011606000002095","rssi":-40}`},
		{"barcode", BarcodeRead{Symbology: "QR", Data: "x", At: at}, `{"symbology":"QR","data":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := MarshalEvent(tt.event)
			require.NoError(t, err)
			var env struct {
				Type EventType       `json:"type"`
				Time time.Time       `json:"time"`
				Data json.RawMessage `json:"data"`
			}
			require.NoError(t, json.Unmarshal(b, &env))
			assert.Equal(t, tt.event.Type(), env.Type)
			assert.True(t, at.Equal(env.Time))
			assert.JSONEq(t, tt.data, string(env.Data))
		})
	}
}

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{"idle": ModeIdle, "INVENTORY": ModeInventory, "Barcode": ModeBarcode, "locate": ModeLocate}
	for name, want := range tests {
		m, err := ParseMode(name)
		require.NoError(t, err)
		assert.Equal(t, want, m)
	}
	_, err := ParseMode("scan")
	assert.Error(t, err)

	var m Mode
	require.NoError(t, json.Unmarshal([]byte(`"locate"`), &m))
	assert.Equal(t, ModeLocate, m)
}
