// Package config loads relay configuration from defaults, an optional
// YAML file, and environment variables, in that precedence order.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

func envLookup(name string) string {
	return os.Getenv(name)
}

// Config holds the relay's runtime configuration, named after the
// environment variables in spec.md §6.
type Config struct {
	Host string `koanf:"relay_host"`
	Port int    `koanf:"relay_port"`
	WSPath string `koanf:"relay_ws_path"`

	MaxSnapshotChars int `koanf:"max_snapshot_chars"`
	MaxMessageBytes  int `koanf:"relay_max_message_bytes"`

	MaxConnections       int `koanf:"relay_max_connections"`
	MaxConnectionsPerIP  int `koanf:"relay_max_connections_per_ip"`
	MaxSessions          int `koanf:"relay_max_sessions"`
	MaxClientsPerSession int `koanf:"relay_max_clients_per_session"`

	MessageRateWindowMS       int `koanf:"relay_message_rate_window_ms"`
	MaxMessagesPerWindow      int `koanf:"relay_max_messages_per_window"`
	UpgradeRateWindowMS       int `koanf:"relay_upgrade_rate_window_ms"`
	MaxUpgradesPerWindowPerIP int `koanf:"relay_max_upgrades_per_window_per_ip"`

	HeartbeatIntervalMS int `koanf:"relay_heartbeat_interval_ms"`
	IdleTimeoutMS       int `koanf:"relay_idle_timeout_ms"`

	TokenMinLength     int  `koanf:"relay_token_min_length"`
	TokenMaxLength     int  `koanf:"relay_token_max_length"`
	EnforceStrongToken bool `koanf:"relay_enforce_strong_token"`

	AllowedOrigins []string `koanf:"relay_allowed_origins"`
	AllowedTokens  []string `koanf:"relay_allowed_tokens"`

	ConfigPath string `koanf:"tfclaw_config_path"`
}

func defaults() map[string]any {
	return map[string]any{
		"relay_host":     "0.0.0.0",
		"relay_port":     8787,
		"relay_ws_path":  "/ws",

		"max_snapshot_chars":       200_000,
		"relay_max_message_bytes":  256 * 1024,

		"relay_max_connections":          1000,
		"relay_max_connections_per_ip":   20,
		"relay_max_sessions":             500,
		"relay_max_clients_per_session":  16,

		"relay_message_rate_window_ms":         1000,
		"relay_max_messages_per_window":        50,
		"relay_upgrade_rate_window_ms":         60_000,
		"relay_max_upgrades_per_window_per_ip": 120,

		"relay_heartbeat_interval_ms": 20_000,
		"relay_idle_timeout_ms":       120_000,

		"relay_token_min_length":      8,
		"relay_token_max_length":      128,
		"relay_enforce_strong_token":  false,

		"relay_allowed_origins": []string{},
		"relay_allowed_tokens":  []string{},
	}
}

// Load reads defaults, then an optional YAML file (TFCLAW_CONFIG_PATH),
// then environment variables, highest precedence last.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("relay config: load defaults: %w", err)
	}

	if path := envLookup("TFCLAW_CONFIG_PATH"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("relay config: load file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(s)
	}), nil); err != nil {
		return nil, fmt.Errorf("relay config: load env: %w", err)
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return nil, fmt.Errorf("relay config: unmarshal: %w", err)
	}
	return &c, nil
}

// Validate checks the loaded configuration for internally consistent,
// non-nonsensical values.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("relay config: RELAY_HOST is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("relay config: RELAY_PORT out of range: %d", c.Port)
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		return fmt.Errorf("relay config: RELAY_WS_PATH must start with /: %q", c.WSPath)
	}
	if c.MaxSnapshotChars <= 0 {
		return fmt.Errorf("relay config: MAX_SNAPSHOT_CHARS must be positive")
	}
	if c.TokenMinLength < 1 || c.TokenMaxLength < c.TokenMinLength {
		return fmt.Errorf("relay config: invalid token length bounds [%d,%d]", c.TokenMinLength, c.TokenMaxLength)
	}
	if c.HeartbeatIntervalMS < 5000 {
		return fmt.Errorf("relay config: RELAY_HEARTBEAT_INTERVAL_MS must be >= 5000")
	}
	return nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMS) * time.Millisecond
}

func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMS) * time.Millisecond
}

func (c *Config) MessageRateWindow() time.Duration {
	return time.Duration(c.MessageRateWindowMS) * time.Millisecond
}

func (c *Config) UpgradeRateWindow() time.Duration {
	return time.Duration(c.UpgradeRateWindowMS) * time.Millisecond
}
