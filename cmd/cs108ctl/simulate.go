package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mzyy94/cs108ctl/internal/sim"
	"github.com/mzyy94/cs108ctl/internal/transport/natsrelay"
	"github.com/mzyy94/cs108ctl/internal/transport/tcprelay"
)

var simFlags struct {
	listen     string
	overNATS   bool
	file       string
	tags       []string
	barcodes   []string
	millivolts int
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a simulated reader behind a TCP or NATS relay",
	Long: `Run a simulated CS108 that acknowledges commands, reports battery
voltage and produces tag or barcode reads while a scan is running.

Tags are given as EPC:RSSI, barcodes with their code-ID prefix (jCODE128DATA).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		simCfg, err := simConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		if simFlags.overNATS {
			return simulateNATS(ctx, simCfg)
		}
		return simulateTCP(ctx, simCfg)
	},
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simFlags.listen, "listen", "127.0.0.1:7108", "TCP relay listen address")
	f.BoolVar(&simFlags.overNATS, "nats", false, "serve on the NATS relay subjects of the configured reader id")
	f.StringVar(&simFlags.file, "sim-config", "", "YAML file describing the simulated device")
	f.StringSliceVar(&simFlags.tags, "tag", nil, "tag in view as EPC:RSSI (repeatable)")
	f.StringSliceVar(&simFlags.barcodes, "barcode", nil, "barcode to decode, code-ID prefixed (repeatable)")
	f.IntVar(&simFlags.millivolts, "millivolts", 0, "battery voltage to report")
}

func simConfig() (sim.Config, error) {
	c := sim.DefaultConfig()
	if simFlags.file != "" {
		data, err := os.ReadFile(simFlags.file)
		if err != nil {
			return c, fmt.Errorf("read sim config: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("parse sim config: %w", err)
		}
	}
	if len(simFlags.tags) > 0 {
		c.Tags = nil
		for _, s := range simFlags.tags {
			tag, err := parseTag(s)
			if err != nil {
				return c, err
			}
			c.Tags = append(c.Tags, tag)
		}
	}
	if len(simFlags.barcodes) > 0 {
		c.Barcodes = simFlags.barcodes
	}
	if simFlags.millivolts > 0 {
		c.Millivolts = simFlags.millivolts
	}
	return c, nil
}

func parseTag(s string) (sim.Tag, error) {
	epc, rssi, ok := strings.Cut(s, ":")
	if !ok {
		return sim.Tag{}, fmt.Errorf("tag %q: want EPC:RSSI", s)
	}
	n, err := strconv.Atoi(rssi)
	if err != nil || n < -128 || n > 127 {
		return sim.Tag{}, fmt.Errorf("tag %q: bad RSSI", s)
	}
	return sim.Tag{EPC: epc, RSSI: n}, nil
}

func simulateTCP(ctx context.Context, c sim.Config) error {
	ln, err := net.Listen("tcp", simFlags.listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", simFlags.listen, err)
	}
	return tcprelay.Serve(ctx, ln, func(ctx context.Context, conn *tcprelay.Conn) error {
		return sim.New(c).Run(ctx, conn)
	})
}

func simulateNATS(ctx context.Context, c sim.Config) error {
	if cfg.ReaderID == "" {
		return fmt.Errorf("simulating over NATS needs reader_id (CS108_READER_ID)")
	}
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("cs108ctl simulator"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	dev := natsrelay.NewDevice(nc, cfg.NATSPrefix, cfg.ReaderID)
	if err := dev.Open(ctx); err != nil {
		return err
	}
	defer dev.Close()
	slog.Info("simulating over nats", "reader", cfg.ReaderID, "prefix", cfg.NATSPrefix)
	return sim.New(c).Run(ctx, dev)
}
