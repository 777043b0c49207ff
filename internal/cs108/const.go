package cs108

// Header byte values.
const (
	Prefix        byte = 0xA7 // Start of every frame
	ConnBluetooth byte = 0xB3 // Link type: BLE
	ConnUSB       byte = 0xE6 // Link type: USB
	Reserved      byte = 0x82
	DirDownlink   byte = 0x37 // Host → reader
	DirUplink     byte = 0x9E // Reader → host
)

// Frame geometry.
const (
	HeaderSize   = 8
	CodeSize     = 2
	MinFrameSize = HeaderSize + CodeSize
	// MaxBodySize is the largest value the header length byte may carry
	// (event code + payload), bounded by the BLE notification size.
	MaxBodySize = 120
	// MaxPayloadSize is the largest payload a single frame can carry.
	MaxPayloadSize = MaxBodySize - CodeSize
)

// Header field offsets.
const (
	offPrefix    = 0
	offConn      = 1
	offLength    = 2
	offModule    = 3
	offReserved  = 4
	offDirection = 5
	offChecksum  = 6
)

// Module identifies the subsystem a frame is addressed to (downlink) or
// originates from (uplink). Header byte 3.
type Module byte

const (
	ModuleRFID         Module = 0xC2
	ModuleBarcode      Module = 0x6A
	ModuleNotification Module = 0xD9
	ModuleSiliconLab   Module = 0xE8
	ModuleBluetooth    Module = 0x5F
)

func (m Module) String() string {
	switch m {
	case ModuleRFID:
		return "rfid"
	case ModuleBarcode:
		return "barcode"
	case ModuleNotification:
		return "notification"
	case ModuleSiliconLab:
		return "siliconlab"
	case ModuleBluetooth:
		return "bluetooth"
	default:
		return "unknown"
	}
}

// Code is the 2-byte event code that follows the header.
type Code uint16

// Event codes. The same code is used for a command and its acknowledgement.
const (
	CodeRFIDPowerOn    Code = 0x8000
	CodeRFIDPowerOff   Code = 0x8001
	CodeRFIDCommand    Code = 0x8002
	CodeRFIDData       Code = 0x8100 // Uplink only: tag reports
	CodeBarcodePowerOn Code = 0x9000

	CodeBarcodePowerOff    Code = 0x9001
	CodeBarcodeScanTrigger Code = 0x9002
	CodeBarcodeCommand     Code = 0x9003
	CodeBarcodeData        Code = 0x9100 // Uplink only
	CodeBarcodeGoodRead    Code = 0x9101 // Uplink only

	CodeGetBatteryVoltage     Code = 0xA000 // Also used for auto-reports
	CodeGetTriggerState       Code = 0xA001
	CodeStartBatteryReporting Code = 0xA002
	CodeStopBatteryReporting  Code = 0xA003
	CodeStartTriggerReporting Code = 0xA008
	CodeStopTriggerReporting  Code = 0xA009
	CodeErrorNotification     Code = 0xA101 // Uplink only
	CodeTriggerPressed        Code = 0xA102 // Uplink only
	CodeTriggerReleased       Code = 0xA103 // Uplink only

	CodeBluetoothVersion  Code = 0xB000
	CodeSiliconLabVersion Code = 0xC000
)

// Ack status byte (first payload byte of a command acknowledgement).
const AckOK byte = 0x00

// RFID module register addresses used by the engine.
const (
	RegAntennaPower    uint16 = 0x0706 // Output power in 0.1 dBm
	RegInventoryConfig uint16 = 0x0901
	RegTagMaskSelect   uint16 = 0x0800 // Select descriptor index
	RegTagMaskConfig   uint16 = 0x0801 // Bit 0: enable
	RegTagMaskBank     uint16 = 0x0802
	RegTagMaskPointer  uint16 = 0x0803 // Bit offset into the bank
	RegTagMaskLength   uint16 = 0x0804 // Mask length in bits
	RegTagMask0        uint16 = 0x0805 // First of 8 mask data registers
	RegHostCommand     uint16 = 0xF000
)

// Host commands written to RegHostCommand.
const (
	HostCmdInventory uint32 = 0x0F
)

// Tag memory banks.
const (
	BankEPC uint32 = 0x01
)

// epcMaskPointer skips CRC (16 bits) and PC (16 bits) in the EPC bank.
const epcMaskPointer uint32 = 0x20

// MaxMaskBytes is the capacity of the 8 mask data registers.
const MaxMaskBytes = 32

// Barcode engine escape sequences carried in CodeBarcodeCommand payloads.
var (
	BarcodeStartDecode = []byte{0x1B, 0x33}
	BarcodeStopDecode  = []byte{0x1B, 0x30}
)
