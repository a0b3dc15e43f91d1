// Package relayclient is the agent's WebSocket client to the relay: it
// dials with role=agent, drives the tmux multiplexer in response to
// client.command frames, and streams terminal output and lifecycle
// events back, reconnecting with backoff on disconnect (spec.md §2,
// §4.2).
package relayclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"

	"github.com/tfclaw/tfclaw/internal/agent/capture"
	"github.com/tfclaw/tfclaw/internal/agent/config"
	"github.com/tfclaw/tfclaw/internal/agent/tmuxdriver"
	"github.com/tfclaw/tfclaw/internal/util/id"
	"github.com/tfclaw/tfclaw/internal/wire"
)

// resetThreshold: a connection that survives at least this long resets
// the backoff interval.
const resetThreshold = 30 * time.Second

// Client owns the relay connection and the tmux driver it fronts.
type Client struct {
	cfg     *config.Config
	mgr     *tmuxdriver.Manager
	capture capture.Provider
	logger  *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	sessionsMu sync.Mutex
	sessions   map[string]*textSession
}

func New(cfg *config.Config, mgr *tmuxdriver.Manager, cap capture.Provider, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, mgr: mgr, capture: cap, logger: logger, sessions: make(map[string]*textSession)}
}

// ConnectWithReconnect dials the relay and reconnects with exponential
// backoff on disconnect: 1s-60s, doubling, jittered.
func (c *Client) ConnectWithReconnect(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.MaxInterval = 60 * time.Second
	bo.Multiplier = 2.0
	bo.RandomizationFactor = 0.2

	for {
		start := time.Now()
		err := c.connect(ctx)
		if ctx.Err() != nil {
			return
		}

		if time.Since(start) >= resetThreshold {
			bo.Reset()
		}

		delay := bo.NextBackOff()
		c.logger.Warn("agent: disconnected from relay, reconnecting", "error", err, "delay", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (c *Client) connect(ctx context.Context) error {
	dialURL, err := buildDialURL(c.cfg.RelayURL, c.cfg.Token)
	if err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, dialURL, nil)
	if err != nil {
		return fmt.Errorf("relayclient: dial: %w", err)
	}
	defer conn.CloseNow()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	c.logger.Info("agent: connected to relay", "url", c.cfg.RelayURL)

	if err := c.register(ctx); err != nil {
		return fmt.Errorf("relayclient: register: %w", err)
	}

	poller := tmuxdriver.NewPoller(c.mgr, c.cfg.PollInterval(), c.cfg.TmuxMaxDeltaChars, c.onOutput(ctx), c.onPaneDead(ctx), c.onCaptureError(ctx))
	pollCtx, cancelPoll := context.WithCancel(ctx)
	defer cancelPoll()
	go poller.Run(pollCtx)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		c.handleFrame(ctx, data)
	}
}

func (c *Client) register(ctx context.Context) error {
	desc := wire.AgentDescriptor{
		AgentID:     c.cfg.AgentID,
		Platform:    wire.PlatformLinux,
		ConnectedAt: time.Now(),
	}
	if err := c.send(ctx, wire.TypeAgentRegister, desc); err != nil {
		return err
	}
	return c.publishTerminalList(ctx)
}

func (c *Client) publishTerminalList(ctx context.Context) error {
	infos := c.mgr.TerminalInfos()
	summaries := make([]wire.TerminalSummary, 0, len(infos))
	for _, info := range infos {
		summaries = append(summaries, wire.TerminalSummary{
			TerminalID: info.TerminalID,
			Title:      info.Title,
			Cwd:        info.Cwd,
			IsActive:   info.IsActive,
			UpdatedAt:  info.UpdatedAt,
		})
	}
	return c.send(ctx, wire.TypeAgentTerminalList, wire.AgentTerminalListPayload{Terminals: summaries})
}

func (c *Client) onOutput(ctx context.Context) tmuxdriver.OutputFunc {
	return func(terminalID, chunk string, at time.Time) {
		_ = c.send(ctx, wire.TypeAgentTerminalOutput, wire.AgentTerminalOutputPayload{
			TerminalID: terminalID,
			Chunk:      chunk,
			At:         at,
		})
	}
}

func (c *Client) onPaneDead(ctx context.Context) tmuxdriver.PaneDeadFunc {
	return func(terminalID, reason string) {
		c.logger.Info("agent: pane died", "terminal_id", terminalID, "reason", reason)
		_ = c.send(ctx, wire.TypeAgentTerminalOutput, wire.AgentTerminalOutputPayload{
			TerminalID: terminalID,
			Chunk:      fmt.Sprintf("\n[tmux pane closed: %s]\n", reason),
			At:         time.Now(),
		})
		_ = c.publishTerminalList(ctx)
	}
}

func (c *Client) onCaptureError(ctx context.Context) tmuxdriver.CaptureErrorFunc {
	return func(terminalID, message string) {
		c.logger.Warn("agent: transient capture error", "terminal_id", terminalID, "error", message)
		c.sendError(ctx, "capture_failed", message, "")
	}
}

func (c *Client) handleFrame(ctx context.Context, data []byte) {
	env, err := wire.Decode(data)
	if err != nil {
		return
	}

	switch env.Type {
	case wire.TypeRelayState, wire.TypeRelayAck:
		// Informational; the agent doesn't act on these.
	case wire.TypeClientCommand:
		var p wire.ClientCommandPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		c.handleCommand(ctx, p)
	}
}

func (c *Client) handleCommand(ctx context.Context, p wire.ClientCommandPayload) {
	switch p.Command {
	case wire.CommandTerminalCreate:
		tid := id.NewTerminalID()
		cwd := p.Cwd
		if cwd == "" {
			cwd = c.cfg.DefaultCwd
		}
		title := p.Title
		if title == "" {
			title = "shell"
		}
		if err := c.mgr.CreateTerminal(ctx, tid, title, cwd); err != nil {
			c.sendError(ctx, "terminal_create_failed", err.Error(), p.RequestID)
			return
		}
		_ = c.send(ctx, wire.TypeAgentTerminalOutput, wire.AgentTerminalOutputPayload{
			TerminalID: tid,
			Chunk:      fmt.Sprintf("created %s\n", title),
			At:         time.Now(),
		})
		_ = c.publishTerminalList(ctx)
		_ = c.sendResult(ctx, p.RequestID, "")

	case wire.CommandTerminalClose:
		if err := c.mgr.CloseTerminal(ctx, p.TerminalID); err != nil {
			c.sendError(ctx, "terminal_close_failed", err.Error(), p.RequestID)
			return
		}
		_ = c.publishTerminalList(ctx)
		_ = c.sendResult(ctx, p.RequestID, "")

	case wire.CommandTerminalInput:
		if err := c.mgr.SendInput(ctx, p.TerminalID, []byte(p.Data)); err != nil {
			c.logger.Warn("agent: send input failed", "terminal_id", p.TerminalID, "error", err)
		}

	case wire.CommandTerminalSnapshot:
		captured, err := c.mgr.CapturePane(ctx, p.TerminalID)
		if err != nil {
			c.sendError(ctx, "snapshot_failed", err.Error(), p.RequestID)
			return
		}
		// Resync: send the full pane as one chunk without going through
		// the poller's diff path, so the relay's cache is replaced rather
		// than doubled. Update the poller's baseline too, or the very
		// next tick sees a stale prev capture and re-emits this same
		// content behind a redraw sentinel.
		c.mgr.SetLastCapture(p.TerminalID, captured)
		_ = c.send(ctx, wire.TypeAgentTerminalOutput, wire.AgentTerminalOutputPayload{
			TerminalID: p.TerminalID,
			Chunk:      captured,
			At:         time.Now(),
		})

	case wire.CommandCaptureList:
		sources, err := c.capture.ListSources(ctx)
		if err != nil {
			c.sendError(ctx, "capture_list_failed", err.Error(), p.RequestID)
			return
		}
		_ = c.send(ctx, wire.TypeAgentCaptureSources, wire.AgentCaptureSourcesPayload{RequestID: p.RequestID, Sources: sources})

	case wire.CommandTfclawCommand:
		c.handleTfclawCommand(ctx, p)

	case wire.CommandScreenCapture:
		shot, err := c.capture.Grab(ctx, p.Source, p.SourceID)
		if err != nil {
			c.sendError(ctx, "screen_capture_failed", err.Error(), p.RequestID)
			return
		}
		shot.RequestID = p.RequestID
		_ = c.send(ctx, wire.TypeAgentScreenCapture, shot)

	default:
		c.sendError(ctx, "unknown_command", "unrecognized command: "+p.Command, p.RequestID)
	}
}

func (c *Client) sendResult(ctx context.Context, requestID, output string) error {
	return c.send(ctx, wire.TypeAgentCommandResult, wire.AgentCommandResultPayload{RequestID: requestID, Output: output})
}

func (c *Client) sendError(ctx context.Context, code, message, requestID string) {
	_ = c.send(ctx, wire.TypeAgentError, wire.AgentErrorPayload{Code: code, Message: message, RequestID: requestID})
}

func (c *Client) send(ctx context.Context, typ string, payload any) error {
	frame, err := wire.Encode(typ, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("relayclient: not connected")
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, frame)
}

func buildDialURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("relayclient: invalid relay url: %w", err)
	}
	q := u.Query()
	q.Set("role", "agent")
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
