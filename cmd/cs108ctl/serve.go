package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/grandcat/zeroconf"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mzyy94/cs108ctl/internal/api"
	"github.com/mzyy94/cs108ctl/internal/config"
	"github.com/mzyy94/cs108ctl/internal/publish"
	"github.com/mzyy94/cs108ctl/internal/reader"
	"github.com/mzyy94/cs108ctl/internal/sim"
	"github.com/mzyy94/cs108ctl/internal/status"
	"github.com/mzyy94/cs108ctl/internal/transport"
	"github.com/mzyy94/cs108ctl/internal/transport/natsrelay"
	"github.com/mzyy94/cs108ctl/internal/transport/tcprelay"
)

const (
	serviceType     = "_cs108._tcp"
	reconnectDelay  = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Drive a reader and expose the HTTP control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Validate(cfg); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg config.Config) error {
	if cfg.ReaderID == "" {
		cfg.ReaderID = uuid.NewString()
	}
	g, ctx := errgroup.WithContext(ctx)

	var nc *nats.Conn
	if cfg.Transport == config.TransportNATS || cfg.PublishEvents {
		var err error
		nc, err = nats.Connect(cfg.NATSURL,
			nats.Name("cs108ctl "+cfg.ReaderID),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				slog.Warn("nats disconnected", "err", err)
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				slog.Info("nats reconnected", "url", c.ConnectedUrl())
			}),
		)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()
		slog.Info("connected to nats", "url", cfg.NATSURL)
	}

	var t transport.Transport
	switch cfg.Transport {
	case config.TransportTCP:
		t = tcprelay.NewClient(cfg.RelayAddr, cfg.DialTimeout)
	case config.TransportNATS:
		relay := natsrelay.New(nc, cfg.NATSPrefix, cfg.ReaderID)
		nc.SetErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			slog.Warn("nats async error", "err", err)
			relay.HandleError(sub, err)
		})
		nc.SetClosedHandler(func(*nats.Conn) {
			relay.HandleError(nil, nats.ErrConnectionClosed)
		})
		t = relay
	case config.TransportSim:
		host, far := transport.NewPipe()
		t = host
		g.Go(func() error { return sim.New(sim.DefaultConfig()).Run(ctx, far) })
	}

	defaults := reader.DefaultSettings()
	defaults.Power = cfg.Power
	store := config.NewMemoryStore(defaults)
	if cfg.DataDir != "" {
		var err error
		if store, err = config.NewStore(cfg.DataDir, defaults); err != nil {
			return fmt.Errorf("settings store: %w", err)
		}
	}
	settings := store.Get()

	rd := reader.New(t, reader.Options{
		ID:            cfg.ReaderID,
		ConfigTimeout: cfg.ConfigTimeout,
		GracePeriod:   cfg.GracePeriod,
		Settings:      &settings,
		Logger:        slog.Default(),
	})
	defer rd.Close()

	if cfg.RedisAddr != "" {
		st, err := status.Dial(ctx, cfg.RedisAddr, cfg.StatusTTL)
		if err != nil {
			return err
		}
		defer st.Close()
		g.Go(func() error { return st.Run(ctx, rd) })
	}
	if cfg.PublishEvents {
		pub := publish.New(nc, cfg.NATSPrefix, nil)
		g.Go(func() error { return pub.Run(ctx, rd) })
	}
	if cfg.AutoConnect {
		g.Go(func() error { return keepConnected(ctx, rd) })
	}

	addr := fmt.Sprintf(":%d", cfg.ListenPort)
	httpServer := &http.Server{
		Addr: addr,
		Handler: api.NewHandler(rd, api.Options{
			DeviceName: cfg.DeviceName,
			RateLimit:  cfg.RateLimit,
			Settings:   store,
		}),
	}
	g.Go(func() error {
		slog.Info("control API starting", "addr", addr, "reader", cfg.ReaderID)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.MDNS {
		mdnsServer, err := zeroconf.Register(
			cfg.DeviceName,
			serviceType,
			"local.",
			cfg.ListenPort,
			[]string{
				"txtvers=1",
				"id=" + cfg.ReaderID,
				"api=/api",
				"events=/api/events",
			},
			nil,
		)
		if err != nil {
			slog.Warn("mDNS registration failed", "err", err)
		} else {
			defer mdnsServer.Shutdown()
			slog.Info("mDNS registered", "name", cfg.DeviceName, "service", serviceType)
		}
	}

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP shutdown error", "err", err)
		}
		rd.Disconnect(shutdownCtx)
		return nil
	})

	err := g.Wait()
	slog.Info("shutdown complete")
	return err
}

// keepConnected connects the reader and reconnects it whenever it drops to
// ERROR, until ctx is cancelled.
func keepConnected(ctx context.Context, rd *reader.Reader) error {
	sub := rd.Subscribe(reader.Types(reader.EventStateChanged))
	defer sub.Close()

	for {
		err := rd.Connect(ctx)
		drain(sub)
		if err != nil {
			slog.Warn("reader connect failed, retrying", "err", err, "in", reconnectDelay)
		} else {
			if rd.State() != reader.StateError {
				waitForError(ctx, sub)
			}
			if ctx.Err() == nil {
				slog.Warn("reader entered ERROR, reconnecting", "in", reconnectDelay)
				rd.Disconnect(ctx)
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

// drain discards queued events so that only later transitions count.
func drain(sub *reader.Subscription) {
	for {
		select {
		case _, ok := <-sub.C():
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func waitForError(ctx context.Context, sub *reader.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C():
			if !ok {
				<-ctx.Done()
				return
			}
			if sc, ok := e.(reader.StateChanged); ok && sc.State == reader.StateError {
				return
			}
		}
	}
}
