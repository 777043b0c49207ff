package reader

import "errors"

var (
	// ErrInvalidTransition is returned when a call is not allowed in the
	// current state, e.g. StartScanning while disconnected.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrTransportUnavailable is returned when a frame could not be handed
	// to the transport. No frame was sent.
	ErrTransportUnavailable = errors.New("transport unavailable")
	// ErrConfigurationTimeout is reported when a configuration sequence did
	// not receive every expected acknowledgement in time.
	ErrConfigurationTimeout = errors.New("configuration timed out")
	// ErrSuperseded is reported for a configuration sequence replaced by a
	// newer SetMode call.
	ErrSuperseded = errors.New("configuration superseded")
	// ErrDisconnected is reported for a configuration sequence cut short by
	// Disconnect.
	ErrDisconnected = errors.New("disconnected during configuration")
	// ErrClosed is returned by every call after Close.
	ErrClosed = errors.New("reader closed")
)
