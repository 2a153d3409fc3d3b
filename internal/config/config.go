// Package config loads the platform configuration: YAML file over built-in
// defaults, then environment overrides for the handful of BUS_* knobs the
// deployment tooling sets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	TLS       TLSConfig       `yaml:"tls"`
	Trust     TrustConfig     `yaml:"trust"`
	WAL       WALConfig       `yaml:"wal"`
	Dedupe    DedupeConfig    `yaml:"dedupe"`
	Store     StoreConfig     `yaml:"store"`
	Correlate CorrelateConfig `yaml:"correlate"`
	Queue     QueueConfig     `yaml:"queue"`
	Agent     AgentConfig     `yaml:"agent"`
	FIM       FIMConfig       `yaml:"fim"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"required"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

type ServerConfig struct {
	Port               int    `yaml:"port" validate:"gte=1,lte=65535"`
	OpsPort            int    `yaml:"ops_port" validate:"gte=1,lte=65535"`
	Overload           string `yaml:"overload" validate:"oneof=on off auto"`
	MaxEnvBytes        int    `yaml:"max_env_bytes" validate:"gte=1"`
	MaxInflight        int    `yaml:"max_inflight" validate:"gte=1"`
	PublishDeadlineSec int    `yaml:"publish_deadline_sec" validate:"gte=1"`
}

type TLSConfig struct {
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	CAFile            string `yaml:"ca_file"`
	RequireClientAuth bool   `yaml:"require_client_auth"`
}

type TrustConfig struct {
	MapPath          string `yaml:"map_path"`
	VerifySignatures bool   `yaml:"verify_signatures"`
}

type WALConfig struct {
	Path             string `yaml:"path" validate:"required"`
	RetentionHours   int    `yaml:"retention_hours" validate:"gte=1"`
	PruneIntervalMin int    `yaml:"prune_interval_min" validate:"gte=1"`
}

type DedupeConfig struct {
	TTLSeconds int `yaml:"ttl_seconds" validate:"gte=1"`
	MaxEntries int `yaml:"max_entries" validate:"gte=1"`
}

type StoreConfig struct {
	Backend        string `yaml:"backend" validate:"oneof=sqlite postgres"`
	DSN            string `yaml:"dsn" validate:"required"`
	RetentionHours int    `yaml:"retention_hours" validate:"gte=1"`
}

type CorrelateConfig struct {
	WindowMinutes int `yaml:"window_minutes" validate:"gte=1"`
	RescanSeconds int `yaml:"rescan_seconds" validate:"gte=0"`
	FanoutBuffer  int `yaml:"fanout_buffer" validate:"gte=1"`
}

type QueueConfig struct {
	Dir        string `yaml:"dir" validate:"required"`
	MaxBytes   int64  `yaml:"max_bytes" validate:"gte=1"`
	MaxRetries int    `yaml:"max_retries" validate:"gte=0"`
}

type AgentConfig struct {
	Name            string  `yaml:"name"`
	DeviceID        string  `yaml:"device_id"`
	BusAddress      string  `yaml:"bus_address"`
	IntervalSeconds int     `yaml:"interval_seconds" validate:"gte=1"`
	RatePerSec      float64 `yaml:"rate_per_sec" validate:"gt=0"`
	SigningKeyFile  string  `yaml:"signing_key_file"`
}

type FIMConfig struct {
	Roots           []string `yaml:"roots"`
	Excludes        []string `yaml:"excludes"`
	BaselinePath    string   `yaml:"baseline_path" validate:"required"`
	IntervalSeconds int      `yaml:"interval_seconds" validate:"gte=1"`
}

var validate = validator.New()

// Default returns the built-in configuration every deployment starts from.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               50051,
			OpsPort:            8080,
			Overload:           "auto",
			MaxEnvBytes:        131072,
			MaxInflight:        100,
			PublishDeadlineSec: 10,
		},
		TLS: TLSConfig{
			CertFile:          "certs/server.crt",
			KeyFile:           "certs/server.key",
			CAFile:            "certs/ca.crt",
			RequireClientAuth: false,
		},
		Trust: TrustConfig{
			MapPath:          "config/trust_map.yaml",
			VerifySignatures: false,
		},
		WAL: WALConfig{
			Path:             "data/wal.db",
			RetentionHours:   72,
			PruneIntervalMin: 10,
		},
		Dedupe: DedupeConfig{
			TTLSeconds: 300,
			MaxEntries: 50000,
		},
		Store: StoreConfig{
			Backend:        "sqlite",
			DSN:            "data/telemetry.db",
			RetentionHours: 168,
		},
		Correlate: CorrelateConfig{
			WindowMinutes: 30,
			RescanSeconds: 0,
			FanoutBuffer:  1024,
		},
		Queue: QueueConfig{
			Dir:        "data/queue",
			MaxBytes:   64 << 20,
			MaxRetries: 5,
		},
		Agent: AgentConfig{
			BusAddress:      "localhost:50051",
			IntervalSeconds: 30,
			RatePerSec:      100,
		},
		FIM: FIMConfig{
			Roots:           []string{"/etc", "/usr/local/bin", "/Library/LaunchAgents", "/Library/LaunchDaemons"},
			BaselinePath:    "data/fim/baseline.json",
			IntervalSeconds: 300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the effective config: defaults, then the YAML file at path if
// one is given, then environment overrides, then validation. An empty path
// skips the file layer.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config %s: %w", path, err)
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays the recognized BUS_* variables onto the config.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("BUS_SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BUS_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("BUS_MAX_ENV_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BUS_MAX_ENV_BYTES: %w", err)
		}
		cfg.Server.MaxEnvBytes = n
	}
	if v := os.Getenv("BUS_DEDUPE_TTL_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BUS_DEDUPE_TTL_SEC: %w", err)
		}
		cfg.Dedupe.TTLSeconds = n
	}
	if v := os.Getenv("BUS_DEDUPE_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BUS_DEDUPE_MAX: %w", err)
		}
		cfg.Dedupe.MaxEntries = n
	}
	if v := os.Getenv("EVENTBUS_REQUIRE_CLIENT_AUTH"); v != "" {
		cfg.TLS.RequireClientAuth = boolish(v)
	}
	return nil
}

// OverloadEnabled resolves the tri-state overload setting. "on" and "off"
// are literal; "auto" defers to the BUS_OVERLOAD environment variable.
func (c ServerConfig) OverloadEnabled() bool {
	switch c.Overload {
	case "on":
		return true
	case "off":
		return false
	default:
		return boolish(os.Getenv("BUS_OVERLOAD"))
	}
}

func boolish(v string) bool {
	switch v {
	case "1", "true", "on", "TRUE", "True", "ON":
		return true
	}
	return false
}

func (c ServerConfig) PublishDeadline() time.Duration {
	return time.Duration(c.PublishDeadlineSec) * time.Second
}

func (c WALConfig) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

func (c WALConfig) PruneInterval() time.Duration {
	return time.Duration(c.PruneIntervalMin) * time.Minute
}

func (c DedupeConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

func (c StoreConfig) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

func (c CorrelateConfig) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

func (c CorrelateConfig) RescanInterval() time.Duration {
	return time.Duration(c.RescanSeconds) * time.Second
}

func (c AgentConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c FIMConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}
