// Package config loads the gateway's runtime configuration, layered the
// same way internal/relay/config is: defaults, optional YAML file
// (TFCLAW_CONFIG_PATH), then environment variables (spec.md §6).
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

// Config holds everything the gateway needs to bridge a chat platform to
// a relay session.
type Config struct {
	ConfigPath string `koanf:"tfclaw_config_path"`

	RelayURL string `koanf:"tfclaw_relay_url"`
	Token    string `koanf:"tfclaw_token"`

	CommandResultTimeoutMS int `koanf:"tfclaw_command_result_timeout_ms"`
	ProgressRecallDelayMS  int `koanf:"tfclaw_progress_recall_delay_ms"`
	EarlyBufferTTLMS       int `koanf:"tfclaw_early_buffer_ttl_ms"`
	InboundDedupWindowMS   int `koanf:"tfclaw_inbound_dedup_window_ms"`
	CaptureMenuTTLMS       int `koanf:"tfclaw_capture_menu_ttl_ms"`

	DefaultCaptureLines int  `koanf:"tfclaw_default_capture_lines"`
	DefaultWaitMS       int  `koanf:"tfclaw_default_wait_ms"`
	DefaultStreamMode   bool `koanf:"tfclaw_default_stream_mode"`

	DiscordToken    string   `koanf:"tfclaw_discord_token"`
	AllowedUserIDs  []string `koanf:"tfclaw_allowed_user_ids"`
}

func defaults() map[string]any {
	return map[string]any{
		"tfclaw_relay_url": "ws://127.0.0.1:8787/ws",

		"tfclaw_command_result_timeout_ms": int((24 * time.Hour).Milliseconds()),
		"tfclaw_progress_recall_delay_ms":  350,
		"tfclaw_early_buffer_ttl_ms":       60_000,
		"tfclaw_inbound_dedup_window_ms":   5 * 60_000,
		"tfclaw_capture_menu_ttl_ms":       2 * 60_000,

		"tfclaw_default_capture_lines": 200,
		"tfclaw_default_wait_ms":       0,
		"tfclaw_default_stream_mode":   false,

		"tfclaw_allowed_user_ids": []string{},
	}
}

var csvFields = map[string]bool{
	"tfclaw_allowed_user_ids": true,
}

// Load reads defaults, then an optional YAML file, then environment
// variables, highest precedence last.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("gateway config: load defaults: %w", err)
	}

	if path := envLookup("TFCLAW_CONFIG_PATH"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("gateway config: load file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, any) {
		lower := strings.ToLower(key)
		if csvFields[lower] {
			parts := strings.Split(value, ",")
			for i, p := range parts {
				parts[i] = strings.TrimSpace(p)
			}
			return lower, parts
		}
		return lower, value
	}), nil); err != nil {
		return nil, fmt.Errorf("gateway config: load env: %w", err)
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return nil, fmt.Errorf("gateway config: unmarshal: %w", err)
	}
	if c.Token == "" {
		return nil, fmt.Errorf("gateway config: TFCLAW_TOKEN is required")
	}
	if c.DiscordToken == "" {
		return nil, fmt.Errorf("gateway config: TFCLAW_DISCORD_TOKEN is required")
	}
	return &c, nil
}

// IsUserAllowed reports whether userID may issue commands, per the
// optional allowlist. An empty allowlist permits everyone.
func (c *Config) IsUserAllowed(userID string) bool {
	if len(c.AllowedUserIDs) == 0 {
		return true
	}
	for _, id := range c.AllowedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Config) CommandResultTimeout() time.Duration {
	return time.Duration(c.CommandResultTimeoutMS) * time.Millisecond
}

func (c *Config) ProgressRecallDelay() time.Duration {
	return time.Duration(c.ProgressRecallDelayMS) * time.Millisecond
}

func (c *Config) EarlyBufferTTL() time.Duration {
	return time.Duration(c.EarlyBufferTTLMS) * time.Millisecond
}

func (c *Config) InboundDedupWindow() time.Duration {
	return time.Duration(c.InboundDedupWindowMS) * time.Millisecond
}

func (c *Config) CaptureMenuTTL() time.Duration {
	return time.Duration(c.CaptureMenuTTLMS) * time.Millisecond
}

func (c *Config) DefaultWait() time.Duration {
	return time.Duration(c.DefaultWaitMS) * time.Millisecond
}
