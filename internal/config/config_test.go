package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestNewConfigDefaults verifies the default configuration values.
func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	if cfg.Server.Port != defaultPort {
		t.Errorf("Expected default port %d, got %d", defaultPort, cfg.Server.Port)
	}
	if cfg.Server.PollTimeout != time.Second {
		t.Errorf("Expected poll timeout 1s, got %s", cfg.Server.PollTimeout)
	}
	if cfg.Server.MetricsAddr != "" {
		t.Errorf("Metrics listener should be disabled by default, got %q", cfg.Server.MetricsAddr)
	}
	if cfg.Gateway.MaxMessageSize != 512 {
		t.Errorf("Expected max message size 512, got %d", cfg.Gateway.MaxMessageSize)
	}
	if cfg.Gateway.RateLimit.Burst != 5 || cfg.Gateway.RateLimit.RefillInterval != time.Second {
		t.Errorf("Unexpected rate limit defaults: %+v", cfg.Gateway.RateLimit)
	}
	if len(cfg.Gateway.AllowedOrigins) != 1 || cfg.Gateway.AllowedOrigins[0] != "http://localhost:8080" {
		t.Errorf("Unexpected allowed origins: %v", cfg.Gateway.AllowedOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults should validate: %v", err)
	}
}

// TestNewConfigFromEnv verifies that environment variables override defaults.
func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("LINECHAT_PORT", "9100")
	t.Setenv("LINECHAT_POLL_TIMEOUT", "0.25")
	t.Setenv("LINECHAT_METRICS_ADDR", ":9200")
	t.Setenv("GATEWAY_ADDR", ":9300")
	t.Setenv("GATEWAY_RELAY_ADDR", "relay.internal:9100")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, https://b.example")
	t.Setenv("MAX_MESSAGE_SIZE", "2048")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "3")
	t.Setenv("LOG_LEVEL", " DEBUG ")

	cfg := NewConfigFromEnv()

	if cfg.Server.Port != 9100 {
		t.Errorf("Expected port 9100, got %d", cfg.Server.Port)
	}
	if cfg.Server.PollTimeout != 250*time.Millisecond {
		t.Errorf("Expected poll timeout 250ms, got %s", cfg.Server.PollTimeout)
	}
	if cfg.Server.MetricsAddr != ":9200" || cfg.Gateway.Addr != ":9300" {
		t.Errorf("Unexpected addresses: metrics %q gateway %q", cfg.Server.MetricsAddr, cfg.Gateway.Addr)
	}
	if cfg.RelayAddress() != "relay.internal:9100" {
		t.Errorf("Unexpected relay address %q", cfg.RelayAddress())
	}
	if len(cfg.Gateway.AllowedOrigins) != 2 || cfg.Gateway.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("Unexpected origins %v", cfg.Gateway.AllowedOrigins)
	}
	if cfg.Gateway.MaxMessageSize != 2048 {
		t.Errorf("Expected max message size 2048, got %d", cfg.Gateway.MaxMessageSize)
	}
	if cfg.Gateway.RateLimit.Burst != 10 || cfg.Gateway.RateLimit.RefillInterval != 3*time.Second {
		t.Errorf("Unexpected rate limit %+v", cfg.Gateway.RateLimit)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %q", cfg.Log.Level)
	}
}

// TestNewConfigFromEnvInvalidValues verifies that unparsable values keep defaults.
func TestNewConfigFromEnvInvalidValues(t *testing.T) {
	t.Setenv("LINECHAT_PORT", "70000")
	t.Setenv("LINECHAT_POLL_TIMEOUT", "-1")
	t.Setenv("MAX_MESSAGE_SIZE", "big")
	t.Setenv("RATE_LIMIT_BURST", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "soon")

	cfg := NewConfigFromEnv()

	if cfg.Server.Port != defaultPort {
		t.Errorf("Expected default port, got %d", cfg.Server.Port)
	}
	if cfg.Server.PollTimeout != defaultPollTimeout {
		t.Errorf("Expected default poll timeout, got %s", cfg.Server.PollTimeout)
	}
	if cfg.Gateway.MaxMessageSize != defaultMaxMessageSize {
		t.Errorf("Expected default max message size, got %d", cfg.Gateway.MaxMessageSize)
	}
	if cfg.Gateway.RateLimit.Burst != defaultBurst || cfg.Gateway.RateLimit.RefillInterval != time.Second {
		t.Errorf("Expected default rate limit, got %+v", cfg.Gateway.RateLimit)
	}
}

// TestLoadYAML verifies that a config file is layered under the environment.
func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linechat.yaml")
	content := `
server:
  port: 7100
  poll_timeout: 500ms
gateway:
  relay_addr: 10.0.0.5:7100
  allowed_origins: ["*"]
  rate_limit:
    burst: 2
log:
  level: warn
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("LINECHAT_PORT", "7200")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 7200 {
		t.Errorf("Environment should win over file, got port %d", cfg.Server.Port)
	}
	if cfg.Server.PollTimeout != 500*time.Millisecond {
		t.Errorf("Expected poll timeout 500ms, got %s", cfg.Server.PollTimeout)
	}
	if cfg.Gateway.RelayAddr != "10.0.0.5:7100" {
		t.Errorf("Unexpected relay address %q", cfg.Gateway.RelayAddr)
	}
	if len(cfg.Gateway.AllowedOrigins) != 1 || cfg.Gateway.AllowedOrigins[0] != "*" {
		t.Errorf("Unexpected origins %v", cfg.Gateway.AllowedOrigins)
	}
	if cfg.Gateway.RateLimit.Burst != 2 || cfg.Gateway.RateLimit.RefillInterval != time.Second {
		t.Errorf("Unexpected rate limit %+v", cfg.Gateway.RateLimit)
	}
	if cfg.Gateway.MaxMessageSize != defaultMaxMessageSize {
		t.Errorf("Unset values should keep defaults, got %d", cfg.Gateway.MaxMessageSize)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Expected log level warn, got %q", cfg.Log.Level)
	}
}

// TestLoadErrors verifies that missing files, bad YAML and bad values fail.
func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}

	badYAML := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(badYAML, []byte("server: [unterminated"), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if _, err := Load(badYAML); err == nil {
		t.Error("Expected error for malformed YAML")
	}

	badLevel := filepath.Join(dir, "level.yaml")
	if err := os.WriteFile(badLevel, []byte("log:\n  level: chatty\n"), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if _, err := Load(badLevel); err == nil {
		t.Error("Expected error for unknown log level")
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load without file: %v", err)
	}
	if cfg.Server.Port != defaultPort {
		t.Errorf("Expected default port, got %d", cfg.Server.Port)
	}
}

// TestSanitize verifies that zero values are replaced with defaults.
func TestSanitize(t *testing.T) {
	cfg := &Config{}
	cfg.Sanitize()

	if cfg.Server.PollTimeout != defaultPollTimeout || cfg.Gateway.Addr != defaultGatewayAddr ||
		cfg.Gateway.RelayAddr != defaultRelayAddr || cfg.Log.Level != defaultLogLevel {
		t.Errorf("Sanitize left zero values: %+v", cfg)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}
