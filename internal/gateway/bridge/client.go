// Package bridge is the gateway's WebSocket connection to a relay: it
// dials with role=client, sends tfclaw.command (and other typed)
// client.command frames, and resolves per-requestId waiters as
// agent.command_result / agent.error frames come back, buffering
// outcomes that race ahead of a waiter's registration (spec.md §4.4).
package bridge

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

	"github.com/tfclaw/tfclaw/internal/util/id"
	"github.com/tfclaw/tfclaw/internal/wire"
)

const resetThreshold = 30 * time.Second

// Event is one outcome delivered to a waiter: either a progress update,
// the final result, a capture-source list, or an error.
type Event struct {
	Progress       *wire.AgentCommandResultPayload
	Result         *wire.AgentCommandResultPayload
	Err            *wire.AgentErrorPayload
	CaptureSources *wire.AgentCaptureSourcesPayload
}

// waiter receives every event for one requestId until Result or Err
// arrives.
type waiter struct {
	ch chan Event
}

// Client is the gateway's relay connection.
type Client struct {
	relayURL string
	token    string
	logger   *slog.Logger

	early *EarlyCommandBuffer

	mu      sync.Mutex
	conn    *websocket.Conn
	waiters map[string]*waiter

	stateMu sync.Mutex
	state   wire.RelayStatePayload
}

func New(relayURL, token string, earlyTTL time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		relayURL: relayURL,
		token:    token,
		logger:   logger,
		early:    NewEarlyCommandBuffer(earlyTTL),
		waiters:  make(map[string]*waiter),
	}
}

// ConnectWithReconnect dials and reconnects with backoff, the same
// shape as internal/agent/relayclient.Client.ConnectWithReconnect.
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
		c.logger.Warn("gateway: disconnected from relay, reconnecting", "error", err, "delay", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (c *Client) connect(ctx context.Context) error {
	dialURL, err := buildDialURL(c.relayURL, c.token)
	if err != nil {
		return err
	}
	conn, _, err := websocket.Dial(ctx, dialURL, nil)
	if err != nil {
		return fmt.Errorf("bridge: dial: %w", err)
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

	if err := c.send(ctx, wire.TypeClientHello, wire.ClientHelloPayload{ClientType: wire.ClientTypeChat}); err != nil {
		return fmt.Errorf("bridge: hello: %w", err)
	}

	c.logger.Info("gateway: connected to relay", "url", c.relayURL)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	env, err := wire.Decode(data)
	if err != nil {
		return
	}

	switch env.Type {
	case wire.TypeRelayState:
		var p wire.RelayStatePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		c.stateMu.Lock()
		c.state = p
		c.stateMu.Unlock()

	case wire.TypeAgentCommandResult:
		var p wire.AgentCommandResultPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		if p.Progress {
			c.dispatch(p.RequestID, Event{Progress: &p}, func() { c.early.bufferProgress(p.RequestID, p) })
		} else {
			c.dispatch(p.RequestID, Event{Result: &p}, func() { c.early.bufferResult(p.RequestID, p) })
		}

	case wire.TypeAgentError:
		var p wire.AgentErrorPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		c.dispatch(p.RequestID, Event{Err: &p}, func() { c.early.bufferError(p.RequestID, p) })

	case wire.TypeAgentCaptureSources:
		var p wire.AgentCaptureSourcesPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		c.dispatch(p.RequestID, Event{CaptureSources: &p}, func() { c.early.bufferCaptureSources(p.RequestID, p) })

	case wire.TypeRelayAck:
		var p wire.RelayAckPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.OK || p.RequestID == "" {
			return
		}
		// A negative relay.ack means there is no agent attached; the
		// agent will never answer this requestId, so surface it as the
		// terminal error event directly.
		errPayload := wire.AgentErrorPayload{Code: "no_agent", Message: p.Message, RequestID: p.RequestID}
		c.dispatch(p.RequestID, Event{Err: &errPayload}, func() { c.early.bufferError(p.RequestID, errPayload) })
	}
}

func (c *Client) dispatch(requestID string, ev Event, bufferIfNoWaiter func()) {
	c.mu.Lock()
	w, ok := c.waiters[requestID]
	c.mu.Unlock()
	if !ok {
		bufferIfNoWaiter()
		return
	}
	select {
	case w.ch <- ev:
	default:
	}
}

// State returns the most recently received relay.state snapshot.
func (c *Client) State() wire.RelayStatePayload {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// SendCommand issues a tfclaw.command text and registers a waiter for
// its requestId. It's a convenience wrapper over Send for the common
// free-text case.
func (c *Client) SendCommand(ctx context.Context, text, sessionKey string) (string, <-chan Event, error) {
	return c.Send(ctx, wire.ClientCommandPayload{
		Command: wire.CommandTfclawCommand, Text: text, SessionKey: sessionKey,
	})
}

// Send issues any client.command payload (tfclaw.command text or a
// typed command like terminal.create) and registers a waiter for its
// requestId, replaying any events that arrived early (buffered by the
// EarlyCommandBuffer) before the new frame is even sent. The caller
// must read events until a Result or Err arrives, then call Forget.
func (c *Client) Send(ctx context.Context, payload wire.ClientCommandPayload) (string, <-chan Event, error) {
	requestID := id.NewRequestID()
	payload.RequestID = requestID
	ch := make(chan Event, 16)

	c.mu.Lock()
	c.waiters[requestID] = &waiter{ch: ch}
	c.mu.Unlock()

	for _, ev := range c.early.Take(requestID) {
		ch <- toEvent(ev)
	}

	err := c.send(ctx, wire.TypeClientCommand, payload)
	return requestID, ch, err
}

// Forget removes a requestId's waiter once the caller has observed a
// terminal event (Result or Err) and no longer needs dispatch.
func (c *Client) Forget(requestID string) {
	c.mu.Lock()
	delete(c.waiters, requestID)
	c.mu.Unlock()
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
		return fmt.Errorf("bridge: not connected")
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, frame)
}

func toEvent(e earlyEvent) Event {
	ev := Event{}
	if e.progress != nil {
		ev.Progress = e.progress
	}
	if e.result != nil {
		ev.Result = e.result
	}
	if e.errFrame != nil {
		ev.Err = e.errFrame
	}
	if e.captureSources != nil {
		ev.CaptureSources = e.captureSources
	}
	return ev
}

func buildDialURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("bridge: invalid relay url: %w", err)
	}
	q := u.Query()
	q.Set("role", "client")
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
