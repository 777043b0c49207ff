// Package transport defines the byte pipe between the reader engine and the
// hardware, and the adapters that implement it.
package transport

import (
	"context"
	"errors"
)

var (
	// ErrNotLinked is returned by Send when the link is down.
	ErrNotLinked = errors.New("transport: not linked")
	// ErrLinkLost is reported through OnDown when the far end went away.
	ErrLinkLost = errors.New("transport: link lost")
)

// Transport carries raw CS108 frames. Send is fire-and-forget: a nil error
// only means the bytes were handed to the link. OnReceive registers the single
// handler for inbound frames; adapters deliver whole frames in arrival order
// and never call the handler concurrently with itself.
type Transport interface {
	Send(frame []byte) error
	OnReceive(fn func(frame []byte))
}

// Linker is implemented by transports with an explicit link lifecycle.
type Linker interface {
	Open(ctx context.Context) error
	Close() error
}

// Watcher is implemented by links that can drop on their own. The OnDown
// handler runs once per loss of an open link, never for a Close by the host.
// After a loss Send fails with ErrNotLinked until the link is reopened.
type Watcher interface {
	OnDown(fn func(err error))
}
