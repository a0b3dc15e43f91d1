// Package config loads the agent's runtime configuration from
// environment variables (spec.md §6), layered the same way
// internal/relay/config is: defaults, then env.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds everything the agent needs to connect to a relay and
// drive its terminal multiplexer.
type Config struct {
	Token          string   `koanf:"tfclaw_token"`
	RelayURL       string   `koanf:"tfclaw_relay_url"`
	AgentID        string   `koanf:"tfclaw_agent_id"`
	StartTerminals []string `koanf:"tfclaw_start_terminals"`
	DefaultCwd     string   `koanf:"tfclaw_default_cwd"`
	MaxLocalBuffer int      `koanf:"tfclaw_max_local_buffer"`

	TmuxBinary                   string   `koanf:"tfclaw_tmux_binary"`
	TmuxBaseArgs                 []string `koanf:"tfclaw_tmux_base_args"`
	TmuxSessionName              string   `koanf:"tfclaw_tmux_session_name"`
	TmuxCaptureLines             int      `koanf:"tfclaw_tmux_capture_lines"`
	TmuxPollMS                   int      `koanf:"tfclaw_tmux_poll_ms"`
	TmuxMaxDeltaChars            int      `koanf:"tfclaw_tmux_max_delta_chars"`
	TmuxBootstrapWindowName      string   `koanf:"tfclaw_tmux_bootstrap_window_name"`
	TmuxResetOnBoot              bool     `koanf:"tfclaw_tmux_reset_on_boot"`
	TmuxPersistSessionOnShutdown bool     `koanf:"tfclaw_tmux_persist_session_on_shutdown"`
}

func defaults() map[string]any {
	return map[string]any{
		"tfclaw_relay_url":        "ws://127.0.0.1:8787/ws",
		"tfclaw_start_terminals":  []string{"shell"},
		"tfclaw_max_local_buffer": 500_000,

		"tfclaw_tmux_binary":                       "tmux",
		"tfclaw_tmux_session_name":                 "tfclaw",
		"tfclaw_tmux_capture_lines":                2000,
		"tfclaw_tmux_poll_ms":                       150,
		"tfclaw_tmux_max_delta_chars":              65536,
		"tfclaw_tmux_bootstrap_window_name":        "bootstrap",
		"tfclaw_tmux_reset_on_boot":                false,
		"tfclaw_tmux_persist_session_on_shutdown":  true,
	}
}

// csvFields is the set of koanf keys whose env value is a comma-separated
// list rather than a scalar.
var csvFields = map[string]bool{
	"tfclaw_start_terminals": true,
	"tfclaw_tmux_base_args":  true,
}

// Load reads the agent's configuration from defaults layered with
// environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("agent config: load defaults: %w", err)
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
		return nil, fmt.Errorf("agent config: load env: %w", err)
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return nil, fmt.Errorf("agent config: unmarshal: %w", err)
	}
	if c.Token == "" {
		return nil, fmt.Errorf("agent config: TFCLAW_TOKEN is required")
	}
	if c.AgentID == "" {
		return nil, fmt.Errorf("agent config: TFCLAW_AGENT_ID is required")
	}
	return &c, nil
}

// PollInterval returns the tmux capture-poll interval as a time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.TmuxPollMS) * time.Millisecond
}
