package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mzyy94/cs108ctl/internal/reader"
)

// Transport kinds.
const (
	TransportTCP  = "tcp"
	TransportNATS = "nats"
	TransportSim  = "sim"
)

// Config is the daemon configuration. Values are resolved from defaults, then
// the YAML file, then CS108_* environment variables.
type Config struct {
	ReaderID   string `yaml:"reader_id"`
	DeviceName string `yaml:"device_name"`
	LogLevel   string `yaml:"log_level"`
	DataDir    string `yaml:"data_dir"` // Settings persistence; empty keeps them in memory

	Transport   string        `yaml:"transport"`
	RelayAddr   string        `yaml:"relay_addr"`
	DialTimeout time.Duration `yaml:"dial_timeout"`

	NATSURL       string `yaml:"nats_url"`
	NATSPrefix    string `yaml:"nats_prefix"`
	PublishEvents bool   `yaml:"publish_events"`

	RedisAddr string        `yaml:"redis_addr"` // Empty disables the status store
	StatusTTL time.Duration `yaml:"status_ttl"`

	ListenPort int  `yaml:"listen_port"`
	RateLimit  int  `yaml:"rate_limit"` // Command requests per minute per client
	MDNS       bool `yaml:"mdns"`

	ConfigTimeout time.Duration `yaml:"config_timeout"`
	GracePeriod   time.Duration `yaml:"grace_period"`
	Power         int           `yaml:"power"` // Initial RF power, dBm
	AutoConnect   bool          `yaml:"auto_connect"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DeviceName:    "CS108",
		LogLevel:      "info",
		Transport:     TransportTCP,
		RelayAddr:     "127.0.0.1:7108",
		DialTimeout:   5 * time.Second,
		NATSURL:       "nats://127.0.0.1:4222",
		NATSPrefix:    "cs108",
		StatusTTL:     30 * time.Second,
		ListenPort:    8080,
		RateLimit:     60,
		MDNS:          true,
		ConfigTimeout: reader.DefaultConfigTimeout,
		GracePeriod:   reader.DefaultGracePeriod,
		Power:         reader.DefaultPower,
		AutoConnect:   true,
	}
}

// Load resolves the configuration. path may be empty.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(c *Config) {
	c.ReaderID = envStr("CS108_READER_ID", c.ReaderID)
	c.DeviceName = envStr("CS108_DEVICE_NAME", c.DeviceName)
	c.LogLevel = envStr("CS108_LOG_LEVEL", c.LogLevel)
	c.DataDir = envStr("CS108_DATA_DIR", c.DataDir)
	c.Transport = envStr("CS108_TRANSPORT", c.Transport)
	c.RelayAddr = envStr("CS108_RELAY_ADDR", c.RelayAddr)
	c.DialTimeout = envDuration("CS108_DIAL_TIMEOUT", c.DialTimeout)
	c.NATSURL = envStr("CS108_NATS_URL", c.NATSURL)
	c.NATSPrefix = envStr("CS108_NATS_PREFIX", c.NATSPrefix)
	c.PublishEvents = envBool("CS108_PUBLISH_EVENTS", c.PublishEvents)
	c.RedisAddr = envStr("CS108_REDIS_ADDR", c.RedisAddr)
	c.StatusTTL = envDuration("CS108_STATUS_TTL", c.StatusTTL)
	c.ListenPort = envInt("CS108_LISTEN_PORT", c.ListenPort)
	c.RateLimit = envInt("CS108_RATE_LIMIT", c.RateLimit)
	c.MDNS = envBool("CS108_MDNS", c.MDNS)
	c.ConfigTimeout = envDuration("CS108_CONFIG_TIMEOUT", c.ConfigTimeout)
	c.GracePeriod = envDuration("CS108_GRACE_PERIOD", c.GracePeriod)
	c.Power = envInt("CS108_POWER", c.Power)
	c.AutoConnect = envBool("CS108_AUTO_CONNECT", c.AutoConnect)
}

// Validate checks the configuration without modifying it.
func Validate(c Config) error {
	switch c.Transport {
	case TransportTCP:
		if c.RelayAddr == "" {
			return errors.New("relay_addr is required for the tcp transport")
		}
	case TransportNATS:
		if c.NATSURL == "" {
			return errors.New("nats_url is required for the nats transport")
		}
	case TransportSim:
	default:
		return fmt.Errorf("unknown transport %q (want tcp, nats or sim)", c.Transport)
	}
	if c.PublishEvents && c.NATSURL == "" {
		return errors.New("publish_events requires nats_url")
	}
	if c.NATSPrefix == "" || strings.ContainsAny(c.NATSPrefix, " *>") {
		return fmt.Errorf("invalid nats_prefix %q", c.NATSPrefix)
	}
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return fmt.Errorf("listen_port %d out of range", c.ListenPort)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if c.ConfigTimeout <= 0 || c.GracePeriod <= 0 || c.DialTimeout <= 0 {
		return errors.New("config_timeout, grace_period and dial_timeout must be positive")
	}
	if c.RedisAddr != "" && c.StatusTTL <= 0 {
		return errors.New("status_ttl must be positive when redis_addr is set")
	}
	if c.Power < reader.MinPower || c.Power > reader.MaxPower {
		return fmt.Errorf("power %d dBm out of range [%d, %d]", c.Power, reader.MinPower, reader.MaxPower)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
