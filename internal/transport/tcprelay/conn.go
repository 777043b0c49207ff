// Package tcprelay carries CS108 frames over a TCP byte stream, as exposed by
// a BLE-to-TCP relay bridge or by the device simulator.
package tcprelay

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/mzyy94/cs108ctl/internal/transport"
)

// writeTimeout bounds a single frame write.
const writeTimeout = 5 * time.Second

// Conn adapts a net.Conn to transport.Transport. Inbound bytes are reassembled
// into frames before the handler is called.
type Conn struct {
	conn net.Conn

	wmu sync.Mutex
	dmu sync.Mutex // Serialises delivery

	mu      sync.Mutex
	handler func([]byte)
	pending [][]byte // Frames read before a handler was registered
}

// maxPending bounds frames held for a late OnReceive.
const maxPending = 64

// NewConn wraps c. Call Serve to start reading.
func NewConn(c net.Conn) *Conn {
	return &Conn{conn: c}
}

// Send writes one frame.
func (c *Conn) Send(frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("relay write: %w", err)
	}
	return nil
}

// OnReceive registers the frame handler. Frames that arrived before the
// first registration are delivered to it immediately.
func (c *Conn) OnReceive(fn func([]byte)) {
	c.dmu.Lock()
	defer c.dmu.Unlock()
	c.mu.Lock()
	c.handler = fn
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	if fn == nil {
		return
	}
	for _, frame := range pending {
		fn(frame)
	}
}

func (c *Conn) deliver(frame []byte) {
	c.dmu.Lock()
	defer c.dmu.Unlock()
	c.mu.Lock()
	fn := c.handler
	if fn == nil {
		if len(c.pending) < maxPending {
			c.pending = append(c.pending, frame)
		}
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	fn(frame)
}

// Serve reads from the connection until it fails or is closed. A clean close
// by either side returns nil.
func (c *Conn) Serve() error {
	var r transport.Reassembler
	buf := make([]byte, 512)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			for _, frame := range r.Feed(buf[:n]) {
				c.deliver(frame)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("relay read: %w", err)
		}
	}
}

// Close closes the underlying connection; Serve returns shortly after.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func logServeErr(err error, remote net.Addr) {
	if err != nil {
		slog.Warn("relay connection ended", "remote", remote, "err", err)
		return
	}
	slog.Debug("relay connection closed", "remote", remote)
}
