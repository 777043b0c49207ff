package cs108

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// DecodeErrorKind classifies a frame that could not be decoded.
type DecodeErrorKind int

const (
	DecodeTruncated DecodeErrorKind = iota + 1
	DecodeBadPrefix
	DecodeBadLength
)

func (k DecodeErrorKind) String() string {
	switch k {
	case DecodeTruncated:
		return "truncated"
	case DecodeBadPrefix:
		return "bad_prefix"
	case DecodeBadLength:
		return "bad_length"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching against a *DecodeError.
var (
	ErrTruncated = errors.New("cs108: truncated frame")
	ErrBadPrefix = errors.New("cs108: bad frame prefix")
	ErrBadLength = errors.New("cs108: bad frame length")
)

// DecodeError reports a malformed inbound frame.
type DecodeError struct {
	Kind DecodeErrorKind
	Len  int // Bytes available
	Msg  string
}

func (e *DecodeError) Error() string { return e.Msg }

// Is lets errors.Is match a DecodeError against the kind sentinels.
func (e *DecodeError) Is(target error) bool {
	switch target {
	case ErrTruncated:
		return e.Kind == DecodeTruncated
	case ErrBadPrefix:
		return e.Kind == DecodeBadPrefix
	case ErrBadLength:
		return e.Kind == DecodeBadLength
	}
	return false
}

// Frame is a decoded wire unit.
type Frame struct {
	Conn      byte
	Module    Module
	Direction byte
	Checksum  uint16
	Code      Code
	Payload   []byte
}

// Entry returns the registry entry for the frame's event code.
func (f Frame) Entry() Entry { return Lookup(f.Code) }

// Kind returns the symbolic kind for the frame's event code.
func (f Frame) Kind() Kind { return Lookup(f.Code).Kind }

// Verify reports whether the header checksum matches the body.
func (f Frame) Verify() bool {
	body := make([]byte, CodeSize+len(f.Payload))
	binary.BigEndian.PutUint16(body[0:2], uint16(f.Code))
	copy(body[2:], f.Payload)
	return checksum(body) == f.Checksum
}

// Command is an outbound request before encoding.
type Command struct {
	Module  Module
	Code    Code
	Payload []byte
}

// Encode renders the command as a downlink frame.
func (c Command) Encode() []byte {
	return EncodeCommand(c.Module, c.Code, c.Payload)
}

func (c Command) String() string {
	return fmt.Sprintf("%s(%s)", Lookup(c.Code).Kind, c.Code)
}

// EncodeCommand builds a downlink frame: 8-byte header, event code, payload.
// It panics if payload is longer than MaxPayloadSize; every builder in this
// package stays within it.
func EncodeCommand(module Module, code Code, payload []byte) []byte {
	if len(payload) > MaxPayloadSize {
		panic(fmt.Sprintf("cs108: %s payload is %d bytes, max %d", code, len(payload), MaxPayloadSize))
	}
	buf := make([]byte, MinFrameSize+len(payload))
	buf[offPrefix] = Prefix
	buf[offConn] = ConnBluetooth
	buf[offLength] = byte(CodeSize + len(payload))
	buf[offModule] = byte(module)
	buf[offReserved] = Reserved
	buf[offDirection] = DirDownlink
	binary.BigEndian.PutUint16(buf[HeaderSize:MinFrameSize], uint16(code))
	copy(buf[MinFrameSize:], payload)
	binary.BigEndian.PutUint16(buf[offChecksum:offChecksum+2], checksum(buf[HeaderSize:]))
	return buf
}

// EncodeNotification builds an uplink frame. Used by the device simulator
// and tests; the engine only ever decodes uplink frames.
func EncodeNotification(module Module, code Code, payload []byte) []byte {
	buf := EncodeCommand(module, code, payload)
	buf[offDirection] = DirUplink
	return buf
}

// FrameLen returns the total frame length declared by a header, or 0 if
// fewer than HeaderSize bytes are available.
func FrameLen(header []byte) int {
	if len(header) < HeaderSize {
		return 0
	}
	return HeaderSize + int(header[offLength])
}

// DecodeFrame parses a single frame. It never reassembles: bytes beyond the
// declared length are ignored and a short buffer is reported as truncated.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < MinFrameSize {
		return Frame{}, &DecodeError{
			Kind: DecodeTruncated,
			Len:  len(data),
			Msg:  fmt.Sprintf("frame too short: %d bytes, need at least %d", len(data), MinFrameSize),
		}
	}
	if data[offPrefix] != Prefix {
		return Frame{}, &DecodeError{
			Kind: DecodeBadPrefix,
			Len:  len(data),
			Msg:  fmt.Sprintf("bad frame prefix: 0x%02X", data[offPrefix]),
		}
	}
	bodyLen := int(data[offLength])
	if bodyLen < CodeSize {
		return Frame{}, &DecodeError{
			Kind: DecodeBadLength,
			Len:  len(data),
			Msg:  fmt.Sprintf("declared body length %d shorter than event code", bodyLen),
		}
	}
	if bodyLen > MaxBodySize {
		return Frame{}, &DecodeError{
			Kind: DecodeBadLength,
			Len:  len(data),
			Msg:  fmt.Sprintf("declared body length %d exceeds %d", bodyLen, MaxBodySize),
		}
	}
	total := HeaderSize + bodyLen
	if len(data) < total {
		return Frame{}, &DecodeError{
			Kind: DecodeTruncated,
			Len:  len(data),
			Msg:  fmt.Sprintf("frame truncated: %d of %d bytes", len(data), total),
		}
	}

	payload := make([]byte, total-MinFrameSize)
	copy(payload, data[MinFrameSize:total])
	return Frame{
		Conn:      data[offConn],
		Module:    Module(data[offModule]),
		Direction: data[offDirection],
		Checksum:  binary.BigEndian.Uint16(data[offChecksum : offChecksum+2]),
		Code:      Code(binary.BigEndian.Uint16(data[HeaderSize:MinFrameSize])),
		Payload:   payload,
	}, nil
}
