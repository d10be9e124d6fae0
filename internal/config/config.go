// Package config provides configuration helpers that define runtime defaults,
// environment and file overrides, and validation for the relay, the
// WebSocket gateway and logging.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

// ServerConfig holds the relay settings.
type ServerConfig struct {
	Port        uint16        `yaml:"port"`
	PollTimeout time.Duration `yaml:"poll_timeout"` // upper bound of one Update wait
	MetricsAddr string        `yaml:"metrics_addr"` // empty disables the metrics listener
}

// GatewayConfig holds the WebSocket gateway settings.
type GatewayConfig struct {
	Addr           string          `yaml:"addr"`
	RelayAddr      string          `yaml:"relay_addr"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	MaxMessageSize int64           `yaml:"max_message_size"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Config holds the complete linechat configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Gateway GatewayConfig `yaml:"gateway"`
	Log     LogConfig     `yaml:"log"`
}

const (
	defaultPort           = 7000
	defaultPollTimeout    = time.Second
	defaultGatewayAddr    = ":8080"
	defaultRelayAddr      = "127.0.0.1:7000"
	defaultMaxMessageSize = 512
	defaultBurst          = 5
	defaultLogLevel       = "info"
)

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:        defaultPort,
			PollTimeout: defaultPollTimeout,
		},
		Gateway: GatewayConfig{
			Addr:      defaultGatewayAddr,
			RelayAddr: defaultRelayAddr,
			AllowedOrigins: []string{
				"http://localhost:8080",
			},
			MaxMessageSize: defaultMaxMessageSize,
			RateLimit: RateLimitConfig{
				Burst:          defaultBurst,
				RefillInterval: time.Second,
			},
		},
		Log: LogConfig{Level: defaultLogLevel},
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := NewConfig()
	cfg.ApplyEnv()
	return cfg
}

// Load reads the YAML file at path over the defaults and then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from environment variables that are set.
func (c *Config) ApplyEnv() {
	// Load LINECHAT_PORT
	if port := os.Getenv("LINECHAT_PORT"); port != "" {
		c.Server.Port = parsePort(port, c.Server.Port)
	}

	// Load LINECHAT_POLL_TIMEOUT (seconds, fractional allowed)
	if timeout := os.Getenv("LINECHAT_POLL_TIMEOUT"); timeout != "" {
		c.Server.PollTimeout = parseSeconds(timeout, c.Server.PollTimeout)
	}

	// Load LINECHAT_METRICS_ADDR
	if addr := os.Getenv("LINECHAT_METRICS_ADDR"); addr != "" {
		c.Server.MetricsAddr = addr
	}

	// Load GATEWAY_ADDR
	if addr := os.Getenv("GATEWAY_ADDR"); addr != "" {
		c.Gateway.Addr = addr
	}

	// Load GATEWAY_RELAY_ADDR
	if addr := os.Getenv("GATEWAY_RELAY_ADDR"); addr != "" {
		c.Gateway.RelayAddr = addr
	}

	// Load ALLOWED_ORIGINS
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.Gateway.AllowedOrigins = parseOrigins(origins)
	}

	// Load MAX_MESSAGE_SIZE
	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		c.Gateway.MaxMessageSize = parseMaxMessageSize(maxSize, c.Gateway.MaxMessageSize)
	}

	// Load RATE_LIMIT_BURST
	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		c.Gateway.RateLimit.Burst = parseIntValue(burst, c.Gateway.RateLimit.Burst)
	}

	// Load RATE_LIMIT_REFILL_INTERVAL
	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		c.Gateway.RateLimit.RefillInterval = parseRefillInterval(interval, c.Gateway.RateLimit.RefillInterval)
	}

	// Load LOG_LEVEL
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = strings.ToLower(strings.TrimSpace(level))
	}
}

// Sanitize replaces unset or non-positive values with defaults.
func (c *Config) Sanitize() {
	if c.Server.PollTimeout <= 0 {
		c.Server.PollTimeout = defaultPollTimeout
	}
	if c.Gateway.Addr == "" {
		c.Gateway.Addr = defaultGatewayAddr
	}
	if c.Gateway.RelayAddr == "" {
		c.Gateway.RelayAddr = defaultRelayAddr
	}
	if c.Gateway.MaxMessageSize <= 0 {
		c.Gateway.MaxMessageSize = defaultMaxMessageSize
	}
	if c.Gateway.RateLimit.Burst <= 0 {
		c.Gateway.RateLimit.Burst = defaultBurst
	}
	if c.Gateway.RateLimit.RefillInterval <= 0 {
		c.Gateway.RateLimit.RefillInterval = time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Server.PollTimeout < 0 {
		errs = append(errs, fmt.Errorf("negative poll timeout: %s", c.Server.PollTimeout))
	}
	if c.Gateway.MaxMessageSize < 0 {
		errs = append(errs, fmt.Errorf("negative max message size: %d", c.Gateway.MaxMessageSize))
	}
	return errors.Join(errs...)
}

// RelayAddress returns the address the gateway dials for the local relay.
func (c *Config) RelayAddress() string {
	return c.Gateway.RelayAddr
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parsePort(value string, defaultValue uint16) uint16 {
	if port, err := strconv.ParseUint(value, 10, 16); err == nil {
		return uint16(port)
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.ParseFloat(value, 64); err == nil && seconds > 0 {
		return time.Duration(seconds * float64(time.Second))
	}
	return defaultValue
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
