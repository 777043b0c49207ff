package cs108

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Notification-module commands
// --------------------------------------------------------------------------

// GetBatteryVoltage requests a single battery voltage report.
func GetBatteryVoltage() Command {
	return Command{Module: ModuleNotification, Code: CodeGetBatteryVoltage}
}

// StartBatteryReporting enables periodic battery voltage reports.
func StartBatteryReporting() Command {
	return Command{Module: ModuleNotification, Code: CodeStartBatteryReporting}
}

// StopBatteryReporting disables periodic battery voltage reports.
func StopBatteryReporting() Command {
	return Command{Module: ModuleNotification, Code: CodeStopBatteryReporting}
}

// GetTriggerState requests the current trigger position.
func GetTriggerState() Command {
	return Command{Module: ModuleNotification, Code: CodeGetTriggerState}
}

// --------------------------------------------------------------------------
// RFID module commands
// --------------------------------------------------------------------------

// RFIDPowerOn powers up the RFID module.
func RFIDPowerOn() Command { return Command{Module: ModuleRFID, Code: CodeRFIDPowerOn} }

// RFIDPowerOff powers down the RFID module.
func RFIDPowerOff() Command { return Command{Module: ModuleRFID, Code: CodeRFIDPowerOff} }

// MarshalRegisterWrite builds the 8-byte RFID register write packet:
// 0x70 0x01 reg(LE16) value(LE32).
func MarshalRegisterWrite(reg uint16, value uint32) []byte {
	buf := make([]byte, 8)
	buf[0] = 0x70
	buf[1] = 0x01
	binary.LittleEndian.PutUint16(buf[2:4], reg)
	binary.LittleEndian.PutUint32(buf[4:8], value)
	return buf
}

// MarshalAbort builds the RFID abort packet that stops a running operation.
func MarshalAbort() []byte {
	return []byte{0x40, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
}

// RFIDWriteRegister wraps a register write in an RFID command frame.
func RFIDWriteRegister(reg uint16, value uint32) Command {
	return Command{Module: ModuleRFID, Code: CodeRFIDCommand, Payload: MarshalRegisterWrite(reg, value)}
}

// RFIDAbort stops inventory or any other running RFID operation.
func RFIDAbort() Command {
	return Command{Module: ModuleRFID, Code: CodeRFIDCommand, Payload: MarshalAbort()}
}

// RFIDStartInventory starts autonomous tag reporting.
func RFIDStartInventory() Command {
	return RFIDWriteRegister(RegHostCommand, HostCmdInventory)
}

// RFIDSetPower sets antenna output power in dBm.
func RFIDSetPower(dbm int) Command {
	return RFIDWriteRegister(RegAntennaPower, uint32(dbm*10))
}

// RFIDClearMask disables the tag select filter.
func RFIDClearMask() []Command {
	return []Command{
		RFIDWriteRegister(RegTagMaskSelect, 0),
		RFIDWriteRegister(RegTagMaskConfig, 0),
	}
}

// RFIDSelectMask arms the tag select filter so that only tags whose EPC
// starts with epc are singulated. epc is hex, at most 32 bytes.
func RFIDSelectMask(epc string) ([]Command, error) {
	mask, err := ParseEPC(epc)
	if err != nil {
		return nil, err
	}
	if len(mask) == 0 {
		return nil, errors.New("select mask: empty EPC")
	}
	if len(mask) > MaxMaskBytes {
		return nil, fmt.Errorf("select mask: EPC too long (max %d bytes, got %d)", MaxMaskBytes, len(mask))
	}

	cmds := []Command{
		RFIDWriteRegister(RegTagMaskSelect, 0),
		RFIDWriteRegister(RegTagMaskConfig, 1),
		RFIDWriteRegister(RegTagMaskBank, BankEPC),
		RFIDWriteRegister(RegTagMaskPointer, epcMaskPointer),
		RFIDWriteRegister(RegTagMaskLength, uint32(len(mask)*8)),
	}
	// Mask bytes are packed 4 per register, most significant byte first.
	for i := 0; i < len(mask); i += 4 {
		var word [4]byte
		copy(word[:], mask[i:])
		reg := RegTagMask0 + uint16(i/4)
		cmds = append(cmds, RFIDWriteRegister(reg, binary.BigEndian.Uint32(word[:])))
	}
	return cmds, nil
}

// ParseEPC decodes a hex EPC, tolerating whitespace and either case.
func ParseEPC(epc string) ([]byte, error) {
	s := strings.Join(strings.Fields(epc), "")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid EPC %q: %w", epc, err)
	}
	return b, nil
}

// NormalizeEPC returns the canonical uppercase hex form of epc.
func NormalizeEPC(epc string) (string, error) {
	b, err := ParseEPC(epc)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// --------------------------------------------------------------------------
// Barcode module commands
// --------------------------------------------------------------------------

// BarcodePowerOn powers up the barcode engine.
func BarcodePowerOn() Command { return Command{Module: ModuleBarcode, Code: CodeBarcodePowerOn} }

// BarcodePowerOff powers down the barcode engine.
func BarcodePowerOff() Command { return Command{Module: ModuleBarcode, Code: CodeBarcodePowerOff} }

// BarcodeSend passes raw bytes through to the barcode engine.
func BarcodeSend(raw []byte) Command {
	p := make([]byte, len(raw))
	copy(p, raw)
	return Command{Module: ModuleBarcode, Code: CodeBarcodeCommand, Payload: p}
}

// BarcodeStart begins continuous decoding.
func BarcodeStart() Command { return BarcodeSend(BarcodeStartDecode) }

// BarcodeStop ends continuous decoding.
func BarcodeStop() Command { return BarcodeSend(BarcodeStopDecode) }

// BarcodeCodeID enables or disables the code-ID prefix on decoded data.
func BarcodeCodeID(enable bool) Command {
	v := byte('0')
	if enable {
		v = '1'
	}
	return BarcodeSend([]byte{'~', 0x01, '0', '0', '0', '0', '#', 'C', 'I', 'D', 'E', 'N', 'A', v, ';', 0x03})
}

// --------------------------------------------------------------------------
// Notification payload parsers
// --------------------------------------------------------------------------

// ParseAck checks the status byte of a command acknowledgement. An empty
// payload counts as success.
func ParseAck(code Code, payload []byte) error {
	if len(payload) == 0 || payload[0] == AckOK {
		return nil
	}
	return &AckError{Code: code, Status: payload[0]}
}

// ParseBatteryVoltage extracts the battery voltage in millivolts.
func ParseBatteryVoltage(payload []byte) (int, error) {
	if len(payload) < 2 {
		return 0, errors.New("battery report too short")
	}
	mv := int(binary.BigEndian.Uint16(payload[0:2]))
	if mv > MaxBatteryMillivolts {
		return 0, fmt.Errorf("battery voltage out of range: %d mV", mv)
	}
	return mv, nil
}

// ParseTriggerState interprets a trigger notification. Pressed/released
// notifications carry no payload; the state reply carries one byte.
func ParseTriggerState(code Code, payload []byte) (pressed bool, err error) {
	switch code {
	case CodeTriggerPressed:
		return true, nil
	case CodeTriggerReleased:
		return false, nil
	case CodeGetTriggerState:
		if len(payload) < 1 {
			return false, errors.New("trigger state reply too short")
		}
		return payload[0] != 0, nil
	}
	return false, fmt.Errorf("not a trigger notification: %s", code)
}

// ParseTagData decodes a compact tag report: PC(2) EPC(n) RSSI(1). The EPC
// runs to the byte before RSSI; the PC word is reported as sent. RSSI is
// signed dBm.
func ParseTagData(payload []byte) (TagData, error) {
	if len(payload) < 4 {
		return TagData{}, fmt.Errorf("tag report too short: %d bytes", len(payload))
	}
	n := len(payload) - 3
	return TagData{
		PC:   binary.BigEndian.Uint16(payload[0:2]),
		EPC:  strings.ToUpper(hex.EncodeToString(payload[2 : 2+n])),
		RSSI: int(int8(payload[2+n])),
	}, nil
}

// MarshalTagData is the inverse of ParseTagData. The PC word carries the EPC
// length in words, rounded up.
func MarshalTagData(epc string, rssi int) ([]byte, error) {
	b, err := ParseEPC(epc)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 || len(b) > 62 {
		return nil, fmt.Errorf("EPC length out of range: %d bytes", len(b))
	}
	buf := make([]byte, 2+len(b)+1)
	binary.BigEndian.PutUint16(buf[0:2], uint16((len(b)+1)/2)<<11)
	copy(buf[2:], b)
	buf[len(buf)-1] = byte(int8(rssi))
	return buf, nil
}

// ParseBarcode decodes barcode data. With codeID set, the first byte selects
// the symbology. Trailing CR/LF terminators are removed.
func ParseBarcode(payload []byte, codeID bool) (Barcode, error) {
	data := strings.TrimRight(string(payload), "\r\n")
	if data == "" {
		return Barcode{}, errors.New("empty barcode data")
	}
	if !codeID {
		return Barcode{Symbology: SymbologyUnknown, Data: data}, nil
	}
	sym, ok := Symbologies[data[0]]
	if !ok {
		return Barcode{Symbology: SymbologyUnknown, Data: data}, nil
	}
	if len(data) == 1 {
		return Barcode{}, errors.New("barcode data has code ID only")
	}
	return Barcode{Symbology: sym, Data: data[1:]}, nil
}

// ParseErrorNotification returns the reader error code.
func ParseErrorNotification(payload []byte) (uint16, error) {
	if len(payload) < 2 {
		return 0, errors.New("error notification too short")
	}
	return binary.BigEndian.Uint16(payload[0:2]), nil
}
