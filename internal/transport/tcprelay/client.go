package tcprelay

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/mzyy94/cs108ctl/internal/metrics"
	"github.com/mzyy94/cs108ctl/internal/transport"
)

// Client is the host side of a relay link. It implements transport.Transport
// and transport.Linker; the reader opens it on Connect and closes it on
// Disconnect.
type Client struct {
	addr        string
	dialTimeout time.Duration

	mu      sync.Mutex
	conn    *Conn
	done    chan struct{}
	handler func([]byte)
	onDown  func(error)
}

// NewClient creates a Client for the relay at addr (host:port).
func NewClient(addr string, dialTimeout time.Duration) *Client {
	if dialTimeout == 0 {
		dialTimeout = 5 * time.Second
	}
	return &Client{addr: addr, dialTimeout: dialTimeout}
}

// Open dials the relay and starts the read loop. Opening an open client is a
// no-op.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	d := net.Dialer{Timeout: c.dialTimeout}
	nc, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		metrics.RelayReconnectsTotal.WithLabelValues("tcp", "error").Inc()
		return fmt.Errorf("relay connect %s: %w", c.addr, err)
	}
	metrics.RelayReconnectsTotal.WithLabelValues("tcp", "ok").Inc()

	conn := NewConn(nc)
	conn.OnReceive(c.deliver)
	done := make(chan struct{})
	c.conn = conn
	c.done = done

	go func() {
		defer close(done)
		err := conn.Serve()
		logServeErr(err, nc.RemoteAddr())
		c.mu.Lock()
		lost := c.conn == conn
		if lost {
			c.conn = nil
		}
		down := c.onDown
		c.mu.Unlock()
		if !lost {
			return
		}
		conn.Close()
		if err == nil {
			err = transport.ErrLinkLost
		} else {
			err = fmt.Errorf("%w: %w", transport.ErrLinkLost, err)
		}
		if down != nil {
			down(err)
		}
	}()

	slog.Info("relay connected", "addr", c.addr)
	return nil
}

// Close closes the link and waits for the read loop to exit.
func (c *Client) Close() error {
	c.mu.Lock()
	conn, done := c.conn, c.done
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		if done != nil {
			<-done
		}
		return nil
	}
	err := conn.Close()
	<-done
	slog.Info("relay disconnected", "addr", c.addr)
	return err
}

// Send writes one frame to the relay.
func (c *Client) Send(frame []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return transport.ErrNotLinked
	}
	return conn.Send(frame)
}

// OnReceive registers the frame handler.
func (c *Client) OnReceive(fn func([]byte)) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()
}

// OnDown registers the handler called when the relay drops the connection.
func (c *Client) OnDown(fn func(error)) {
	c.mu.Lock()
	c.onDown = fn
	c.mu.Unlock()
}

func (c *Client) deliver(frame []byte) {
	c.mu.Lock()
	fn := c.handler
	c.mu.Unlock()
	if fn != nil {
		fn(frame)
	}
}

var (
	_ transport.Transport = (*Client)(nil)
	_ transport.Linker    = (*Client)(nil)
	_ transport.Watcher   = (*Client)(nil)
)
