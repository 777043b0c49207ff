package cs108

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeCommand_Header(t *testing.T) {
	got := EncodeCommand(ModuleNotification, CodeGetBatteryVoltage, nil)
	want := []byte{0xA7, 0xB3, 0x02, 0xD9, 0x82, 0x37, 0x00, 0x00, 0xA0, 0x00}
	// Checksum bytes are verified separately.
	if !bytes.Equal(got[:6], want[:6]) || !bytes.Equal(got[8:], want[8:]) {
		t.Errorf("EncodeCommand = % X, want % X (ignoring checksum)", got, want)
	}
	if len(got) != MinFrameSize {
		t.Errorf("len = %d, want %d", len(got), MinFrameSize)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		module  Module
		code    Code
		payload []byte
	}{
		{"no payload", ModuleRFID, CodeRFIDPowerOn, nil},
		{"register write", ModuleRFID, CodeRFIDCommand, MarshalRegisterWrite(RegAntennaPower, 300)},
		{"barcode escape", ModuleBarcode, CodeBarcodeCommand, BarcodeStartDecode},
		{"unknown code", ModuleNotification, Code(0xA0FF), []byte{0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := DecodeFrame(EncodeCommand(tt.module, tt.code, tt.payload))
			if err != nil {
				t.Fatalf("DecodeFrame: %v", err)
			}
			if f.Module != tt.module {
				t.Errorf("Module = %v, want %v", f.Module, tt.module)
			}
			if f.Code != tt.code {
				t.Errorf("Code = %s, want %s", f.Code, tt.code)
			}
			if f.Direction != DirDownlink {
				t.Errorf("Direction = 0x%02X, want 0x%02X", f.Direction, DirDownlink)
			}
			if !bytes.Equal(f.Payload, tt.payload) && !(len(f.Payload) == 0 && len(tt.payload) == 0) {
				t.Errorf("Payload = % X, want % X", f.Payload, tt.payload)
			}
			if !f.Verify() {
				t.Error("Verify() = false, want true")
			}
		})
	}
}

func TestDecodeFrame_UnknownCode(t *testing.T) {
	f, err := DecodeFrame(EncodeNotification(ModuleNotification, Code(0xA1FE), nil))
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if f.Kind() != KindUnknown {
		t.Errorf("Kind = %v, want %v", f.Kind(), KindUnknown)
	}
	if f.Kind().String() != "UNKNOWN_COMMAND" {
		t.Errorf("Kind name = %q, want UNKNOWN_COMMAND", f.Kind().String())
	}
	if f.Direction != DirUplink {
		t.Errorf("Direction = 0x%02X, want 0x%02X", f.Direction, DirUplink)
	}
}

func TestDecodeFrame_Truncated(t *testing.T) {
	full := EncodeNotification(ModuleRFID, CodeRFIDData, []byte{0x30, 0x00, 0x01, 0x02, 0xD8})
	for n := 0; n < len(full); n++ {
		_, err := DecodeFrame(full[:n])
		if !errors.Is(err, ErrTruncated) {
			t.Errorf("DecodeFrame(%d bytes) err = %v, want ErrTruncated", n, err)
		}
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("DecodeFrame(%d bytes) err is not *DecodeError", n)
		}
		if de.Len != n {
			t.Errorf("DecodeError.Len = %d, want %d", de.Len, n)
		}
	}
}

func TestDecodeFrame_BadPrefix(t *testing.T) {
	data := EncodeCommand(ModuleRFID, CodeRFIDPowerOn, nil)
	data[0] = 0xA8
	_, err := DecodeFrame(data)
	if !errors.Is(err, ErrBadPrefix) {
		t.Errorf("err = %v, want ErrBadPrefix", err)
	}
	if errors.Is(err, ErrTruncated) {
		t.Error("bad prefix must not match ErrTruncated")
	}
}

func TestDecodeFrame_BadLength(t *testing.T) {
	data := EncodeCommand(ModuleRFID, CodeRFIDPowerOn, nil)
	data[offLength] = 1
	_, err := DecodeFrame(data)
	if !errors.Is(err, ErrBadLength) {
		t.Errorf("err = %v, want ErrBadLength", err)
	}
}

func TestDecodeFrame_BodyTooLong(t *testing.T) {
	data := EncodeNotification(ModuleRFID, CodeRFIDData, make([]byte, MaxPayloadSize))
	if _, err := DecodeFrame(data); err != nil {
		t.Fatalf("DecodeFrame(max payload): %v", err)
	}

	data = append(data, 0x00)
	data[offLength] = MaxBodySize + 1
	_, err := DecodeFrame(data)
	if !errors.Is(err, ErrBadLength) {
		t.Errorf("err = %v, want ErrBadLength", err)
	}

	data = append(data, make([]byte, 200)...)
	data[offLength] = 0xFF
	if _, err := DecodeFrame(data); !errors.Is(err, ErrBadLength) {
		t.Errorf("err = %v, want ErrBadLength for length 0xFF", err)
	}
}

func TestEncodeCommand_PayloadLimit(t *testing.T) {
	f, err := DecodeFrame(EncodeCommand(ModuleBarcode, CodeBarcodeCommand, make([]byte, MaxPayloadSize)))
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if len(f.Payload) != MaxPayloadSize {
		t.Errorf("len(Payload) = %d, want %d", len(f.Payload), MaxPayloadSize)
	}

	defer func() {
		if recover() == nil {
			t.Error("EncodeCommand with an oversized payload did not panic")
		}
	}()
	EncodeCommand(ModuleBarcode, CodeBarcodeCommand, make([]byte, 254))
}

func TestDecodeFrame_IgnoresTrailingBytes(t *testing.T) {
	first := EncodeNotification(ModuleNotification, CodeTriggerPressed, nil)
	second := EncodeNotification(ModuleNotification, CodeTriggerReleased, nil)
	f, err := DecodeFrame(append(append([]byte{}, first...), second...))
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if f.Code != CodeTriggerPressed {
		t.Errorf("Code = %s, want %s", f.Code, CodeTriggerPressed)
	}
}

func TestDecodeFrame_CopiesPayload(t *testing.T) {
	data := EncodeNotification(ModuleNotification, CodeGetBatteryVoltage, []byte{0x0F, 0xA0})
	f, err := DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	data[MinFrameSize] = 0x00
	if f.Payload[0] != 0x0F {
		t.Error("payload aliases the input buffer")
	}
}

func TestFrame_VerifyDetectsCorruption(t *testing.T) {
	data := EncodeCommand(ModuleRFID, CodeRFIDCommand, MarshalAbort())
	data[len(data)-1] ^= 0xFF
	f, err := DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if f.Verify() {
		t.Error("Verify() = true for corrupted payload")
	}
}

func TestFrameLen(t *testing.T) {
	data := EncodeCommand(ModuleRFID, CodeRFIDCommand, MarshalAbort())
	if got := FrameLen(data); got != len(data) {
		t.Errorf("FrameLen = %d, want %d", got, len(data))
	}
	if got := FrameLen(data[:HeaderSize-1]); got != 0 {
		t.Errorf("FrameLen(short) = %d, want 0", got)
	}
}

func TestChecksum_KnownVector(t *testing.T) {
	// CRC-16/X-25 style register without final XOR: "123456789" -> 0x906E ^ 0xFFFF.
	if got := checksum([]byte("123456789")); got != 0x6F91 {
		t.Errorf("checksum = 0x%04X, want 0x6F91", got)
	}
}
