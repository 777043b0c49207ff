package cs108

import "fmt"

// Kind is the symbolic name of an event code.
type Kind int

const (
	KindUnknown Kind = iota
	KindRFIDPowerOn
	KindRFIDPowerOff
	KindRFIDCommand
	KindRFIDData
	KindBarcodePowerOn
	KindBarcodePowerOff
	KindBarcodeScanTrigger
	KindBarcodeCommand
	KindBarcodeData
	KindBarcodeGoodRead
	KindBatteryVoltage
	KindTriggerState
	KindStartBatteryReporting
	KindStopBatteryReporting
	KindStartTriggerReporting
	KindStopTriggerReporting
	KindErrorNotification
	KindTriggerPressed
	KindTriggerReleased
	KindBluetoothVersion
	KindSiliconLabVersion

	kindCount
)

var kindNames = [kindCount]string{
	KindUnknown:               "UNKNOWN_COMMAND",
	KindRFIDPowerOn:           "RFID_POWER_ON",
	KindRFIDPowerOff:          "RFID_POWER_OFF",
	KindRFIDCommand:           "RFID_COMMAND",
	KindRFIDData:              "RFID_DATA",
	KindBarcodePowerOn:        "BARCODE_POWER_ON",
	KindBarcodePowerOff:       "BARCODE_POWER_OFF",
	KindBarcodeScanTrigger:    "BARCODE_SCAN_TRIGGER",
	KindBarcodeCommand:        "BARCODE_COMMAND",
	KindBarcodeData:           "BARCODE_DATA",
	KindBarcodeGoodRead:       "BARCODE_GOOD_READ",
	KindBatteryVoltage:        "BATTERY_VOLTAGE",
	KindTriggerState:          "TRIGGER_STATE",
	KindStartBatteryReporting: "START_BATTERY_REPORTING",
	KindStopBatteryReporting:  "STOP_BATTERY_REPORTING",
	KindStartTriggerReporting: "START_TRIGGER_REPORTING",
	KindStopTriggerReporting:  "STOP_TRIGGER_REPORTING",
	KindErrorNotification:     "ERROR_NOTIFICATION",
	KindTriggerPressed:        "TRIGGER_PRESSED",
	KindTriggerReleased:       "TRIGGER_RELEASED",
	KindBluetoothVersion:      "BLUETOOTH_VERSION",
	KindSiliconLabVersion:     "SILICONLAB_VERSION",
}

func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Class groups kinds by how the engine consumes them.
type Class int

const (
	ClassUnknown     Class = iota
	ClassAck               // Command acknowledgement; feeds the state machine
	ClassBattery           // Battery voltage (reply or auto-report)
	ClassTrigger           // Trigger state change or trigger state reply
	ClassTagData           // RFID tag report
	ClassBarcodeData       // Decoded barcode
	ClassActivity          // Data-path activity without a payload of interest
	ClassError             // Reader-side error notification
)

// Entry is one row of the event registry.
type Entry struct {
	Code   Code
	Kind   Kind
	Module Module
	Class  Class
}

// registry is the static event table. Every Kind except KindUnknown has
// exactly one row; registry_test.go enforces it.
var registry = map[Code]Entry{
	CodeRFIDPowerOn:           {CodeRFIDPowerOn, KindRFIDPowerOn, ModuleRFID, ClassAck},
	CodeRFIDPowerOff:          {CodeRFIDPowerOff, KindRFIDPowerOff, ModuleRFID, ClassAck},
	CodeRFIDCommand:           {CodeRFIDCommand, KindRFIDCommand, ModuleRFID, ClassAck},
	CodeRFIDData:              {CodeRFIDData, KindRFIDData, ModuleRFID, ClassTagData},
	CodeBarcodePowerOn:        {CodeBarcodePowerOn, KindBarcodePowerOn, ModuleBarcode, ClassAck},
	CodeBarcodePowerOff:       {CodeBarcodePowerOff, KindBarcodePowerOff, ModuleBarcode, ClassAck},
	CodeBarcodeScanTrigger:    {CodeBarcodeScanTrigger, KindBarcodeScanTrigger, ModuleBarcode, ClassAck},
	CodeBarcodeCommand:        {CodeBarcodeCommand, KindBarcodeCommand, ModuleBarcode, ClassAck},
	CodeBarcodeData:           {CodeBarcodeData, KindBarcodeData, ModuleBarcode, ClassBarcodeData},
	CodeBarcodeGoodRead:       {CodeBarcodeGoodRead, KindBarcodeGoodRead, ModuleBarcode, ClassActivity},
	CodeGetBatteryVoltage:     {CodeGetBatteryVoltage, KindBatteryVoltage, ModuleNotification, ClassBattery},
	CodeGetTriggerState:       {CodeGetTriggerState, KindTriggerState, ModuleNotification, ClassTrigger},
	CodeStartBatteryReporting: {CodeStartBatteryReporting, KindStartBatteryReporting, ModuleNotification, ClassAck},
	CodeStopBatteryReporting:  {CodeStopBatteryReporting, KindStopBatteryReporting, ModuleNotification, ClassAck},
	CodeStartTriggerReporting: {CodeStartTriggerReporting, KindStartTriggerReporting, ModuleNotification, ClassAck},
	CodeStopTriggerReporting:  {CodeStopTriggerReporting, KindStopTriggerReporting, ModuleNotification, ClassAck},
	CodeErrorNotification:     {CodeErrorNotification, KindErrorNotification, ModuleNotification, ClassError},
	CodeTriggerPressed:        {CodeTriggerPressed, KindTriggerPressed, ModuleNotification, ClassTrigger},
	CodeTriggerReleased:       {CodeTriggerReleased, KindTriggerReleased, ModuleNotification, ClassTrigger},
	CodeBluetoothVersion:      {CodeBluetoothVersion, KindBluetoothVersion, ModuleBluetooth, ClassAck},
	CodeSiliconLabVersion:     {CodeSiliconLabVersion, KindSiliconLabVersion, ModuleSiliconLab, ClassAck},
}

// Lookup resolves an event code. Unregistered codes resolve to KindUnknown
// so that newer firmware does not break decoding.
func Lookup(c Code) Entry {
	if e, ok := registry[c]; ok {
		return e
	}
	return Entry{Code: c, Kind: KindUnknown, Class: ClassUnknown}
}

// CodeOf returns the event code registered for k.
func CodeOf(k Kind) (Code, bool) {
	for c, e := range registry {
		if e.Kind == k {
			return c, true
		}
	}
	return 0, false
}

func (c Code) String() string {
	return fmt.Sprintf("0x%04X", uint16(c))
}
