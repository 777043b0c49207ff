package tcprelay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// Handler drives one accepted connection, typically a simulated device. It
// returns when ctx is cancelled or the connection is no longer needed.
type Handler func(ctx context.Context, c *Conn) error

// Serve accepts connections on ln and runs h for each until ctx is cancelled.
// Only one connection is served at a time, as a reader module accepts a
// single central.
func Serve(ctx context.Context, ln net.Listener, h Handler) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	slog.Info("relay listening", "addr", ln.Addr())
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("relay accept: %w", err)
		}
		slog.Info("relay client connected", "remote", nc.RemoteAddr())
		serveOne(ctx, NewConn(nc), h)
	}
}

func serveOne(ctx context.Context, c *Conn, h Handler) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := c.Serve()
		logServeErr(err, c.RemoteAddr())
		cancel()
	}()

	if err := h(ctx, c); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("relay handler failed", "remote", c.RemoteAddr(), "err", err)
	}
	c.Close()
	wg.Wait()
}
