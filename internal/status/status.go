// Package status mirrors the last known reader snapshot into a Redis hash so
// that other services can see the reader without talking to it.
package status

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mzyy94/cs108ctl/internal/reader"
)

// KeyPrefix is prepended to the reader id to form the hash key.
const KeyPrefix = "cs108:reader:"

// Key returns the hash key for a reader.
func Key(readerID string) string { return KeyPrefix + readerID }

// Source is the part of a reader the store observes.
type Source interface {
	ID() string
	State() reader.State
	Mode() reader.Mode
	BatteryPercentage() int
	Subscribe(f reader.Filter) *reader.Subscription
}

// Snapshot is the stored view of a reader.
type Snapshot struct {
	State       string
	Mode        string
	Battery     int // -1 until the first report
	LastEvent   string
	LastEventAt time.Time
}

// Store writes snapshots with a TTL that is refreshed while the process runs,
// so a crashed daemon's entry disappears on its own.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a Store on an existing client.
func New(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr string, ttl time.Duration) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	slog.Info("connected to redis", "addr", addr)
	return New(client, ttl), nil
}

// Close closes the client.
func (s *Store) Close() error { return s.client.Close() }

// Run mirrors src until ctx is cancelled. Every event rewrites the hash; a
// ticker refreshes the TTL in between.
func (s *Store) Run(ctx context.Context, src Source) error {
	sub := src.Subscribe(nil)
	defer sub.Close()

	key := Key(src.ID())
	s.write(ctx, key, src, nil)

	ticker := time.NewTicker(s.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-sub.C():
			if !ok {
				return nil
			}
			s.write(ctx, key, src, e)
		case <-ticker.C:
			if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil && ctx.Err() == nil {
				slog.Warn("redis expire failed", "key", key, "err", err)
			}
		}
	}
}

func (s *Store) write(ctx context.Context, key string, src Source, e reader.Event) {
	fields := map[string]any{
		"state":   src.State().String(),
		"mode":    src.Mode().String(),
		"battery": src.BatteryPercentage(),
	}
	if e != nil {
		fields["last_event"] = string(e.Type())
		fields["last_event_at"] = e.Time().UnixMilli()
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil && ctx.Err() == nil {
		slog.Warn("redis status write failed", "key", key, "err", err)
	}
}

// Load reads a reader's snapshot. It returns redis.Nil when none is stored.
func (s *Store) Load(ctx context.Context, readerID string) (Snapshot, error) {
	m, err := s.client.HGetAll(ctx, Key(readerID)).Result()
	if err != nil {
		return Snapshot{}, err
	}
	if len(m) == 0 {
		return Snapshot{}, redis.Nil
	}
	snap := Snapshot{State: m["state"], Mode: m["mode"], LastEvent: m["last_event"], Battery: -1}
	if v, err := strconv.Atoi(m["battery"]); err == nil {
		snap.Battery = v
	}
	if v, err := strconv.ParseInt(m["last_event_at"], 10, 64); err == nil {
		snap.LastEventAt = time.UnixMilli(v)
	}
	return snap, nil
}
