package cs108

import "fmt"

// TagData is one tag report carried in a CodeRFIDData notification.
type TagData struct {
	PC   uint16 // Protocol control word
	EPC  string // Uppercase hex
	RSSI int    // dBm
}

// Barcode is one decoded symbol carried in a CodeBarcodeData notification.
type Barcode struct {
	Symbology string
	Data      string
}

// AckError reports a command acknowledgement with a non-zero status.
type AckError struct {
	Code   Code
	Status byte
}

func (e *AckError) Error() string {
	return fmt.Sprintf("command %s rejected: status 0x%02X", Lookup(e.Code).Kind, e.Status)
}

// Symbologies keyed by the code-ID character the barcode engine prefixes to
// each read when code-ID output is enabled.
var Symbologies = map[byte]string{
	'a': "CODABAR",
	'b': "CODE39",
	'c': "UPC-A",
	'd': "EAN-13",
	'D': "EAN-8",
	'E': "UPC-E",
	'i': "CODE93",
	'j': "CODE128",
	'e': "ITF",
	'r': "PDF417",
	'Q': "QR",
	'u': "DATAMATRIX",
	'z': "AZTEC",
}

// SymbologyUnknown is reported when the prefix is absent or unrecognised.
const SymbologyUnknown = "UNKNOWN"

// Battery voltage bounds reported by the reader, in millivolts.
const (
	MinBatteryMillivolts = 0
	MaxBatteryMillivolts = 5000
)
