package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mzyy94/cs108ctl/internal/status"
)

var statusCmd = &cobra.Command{
	Use:   "status READER_ID",
	Short: "Show the last known state of a reader from Redis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.RedisAddr == "" {
			return errors.New("redis_addr is not configured")
		}
		st, err := status.Dial(cmd.Context(), cfg.RedisAddr, cfg.StatusTTL)
		if err != nil {
			return err
		}
		defer st.Close()

		snap, err := st.Load(cmd.Context(), args[0])
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("reader %s: no status (not running or expired)", args[0])
		}
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "reader:  %s\n", args[0])
		fmt.Fprintf(out, "state:   %s\n", snap.State)
		fmt.Fprintf(out, "mode:    %s\n", snap.Mode)
		if snap.Battery >= 0 {
			fmt.Fprintf(out, "battery: %d%%\n", snap.Battery)
		} else {
			fmt.Fprintln(out, "battery: unknown")
		}
		if snap.LastEvent != "" {
			fmt.Fprintf(out, "last:    %s (%s ago)\n", snap.LastEvent, time.Since(snap.LastEventAt).Round(time.Second))
		}
		return nil
	},
}
