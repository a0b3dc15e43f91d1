// Package viewer is a thin CLI client over the wire protocol (spec.md
// §4.5): it connects as a client, renders the terminal list from
// relay.state and output deltas from agent.terminal_output, and
// supports line-mode (type a command, hit enter) and raw-mode
// passthrough (every keystroke becomes terminal.input until Ctrl-]).
// It exists to validate the wire protocol end-to-end against a real
// agent, not as a production surface.
package viewer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"golang.org/x/term"

	"github.com/tfclaw/tfclaw/internal/wire"
)

// ctrlRightBracket is the raw-mode escape byte (0x1d, Ctrl-]) that
// returns the viewer to line mode.
const ctrlRightBracket = 0x1d

// Viewer is a single client connection plus the terminal it's currently
// attached to.
type Viewer struct {
	relayURL string
	token    string
	out      io.Writer
	logger   *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	terminals []wire.TerminalSummary
	attached  string
}

func New(relayURL, token string, out io.Writer, logger *slog.Logger) *Viewer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Viewer{relayURL: relayURL, token: token, out: out, logger: logger}
}

// Run dials the relay, starts the read loop, and drives stdin as a
// line-mode command shell until ctx is canceled or stdin closes.
func (v *Viewer) Run(ctx context.Context) error {
	dialURL, err := buildDialURL(v.relayURL, v.token)
	if err != nil {
		return err
	}
	conn, _, err := websocket.Dial(ctx, dialURL, nil)
	if err != nil {
		return fmt.Errorf("viewer: dial: %w", err)
	}
	defer conn.CloseNow()

	v.mu.Lock()
	v.conn = conn
	v.mu.Unlock()

	if err := v.send(ctx, wire.TypeClientHello, wire.ClientHelloPayload{ClientType: wire.ClientTypeViewer}); err != nil {
		return fmt.Errorf("viewer: hello: %w", err)
	}

	readErr := make(chan error, 1)
	go func() { readErr <- v.readLoop(ctx, conn) }()

	cmdErr := make(chan error, 1)
	go func() { cmdErr <- v.commandLoop(ctx) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-readErr:
		return err
	case err := <-cmdErr:
		return err
	}
}

func (v *Viewer) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		v.handleFrame(data)
	}
}

func (v *Viewer) handleFrame(data []byte) {
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
		v.mu.Lock()
		v.terminals = p.Terminals
		v.mu.Unlock()
		v.renderState(p)

	case wire.TypeAgentTerminalOutput:
		var p wire.AgentTerminalOutputPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		v.mu.Lock()
		attached := v.attached
		v.mu.Unlock()
		if attached == "" || attached == p.TerminalID {
			fmt.Fprint(v.out, p.Chunk)
		}

	case wire.TypeAgentError:
		var p wire.AgentErrorPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		fmt.Fprintf(v.out, "\r\n[error] %s: %s\r\n", p.Code, p.Message)

	case wire.TypeRelayAck:
		var p wire.RelayAckPayload
		if err := json.Unmarshal(env.Payload, &p); err == nil && !p.OK {
			fmt.Fprintf(v.out, "\r\n[nack] %s\r\n", p.Message)
		}
	}
}

func (v *Viewer) renderState(p wire.RelayStatePayload) {
	fmt.Fprintln(v.out, "--- terminals ---")
	for _, t := range p.Terminals {
		fmt.Fprintf(v.out, "  %s  %s\n", t.TerminalID, t.Title)
	}
	fmt.Fprintln(v.out, "-----------------")
}

// commandLoop runs the line-mode shell: "attach <id>", "raw", "list",
// "new [title]", "quit", or any other line is sent as terminal.input to
// the attached terminal.
func (v *Viewer) commandLoop(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()
		switch {
		case line == "quit" || line == "exit":
			return nil
		case line == "list":
			v.printList()
		case strings.HasPrefix(line, "attach "):
			v.attach(strings.TrimPrefix(line, "attach "))
		case line == "raw":
			if err := v.rawMode(ctx); err != nil {
				fmt.Fprintf(v.out, "[raw mode error] %v\r\n", err)
			}
		case strings.HasPrefix(line, "new"):
			title := strings.TrimSpace(strings.TrimPrefix(line, "new"))
			_ = v.sendCommand(ctx, wire.ClientCommandPayload{Command: wire.CommandTerminalCreate, Title: title})
		default:
			v.sendLine(ctx, line)
		}
	}
	return scanner.Err()
}

func (v *Viewer) printList() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, t := range v.terminals {
		fmt.Fprintf(v.out, "%d. %s  %s\n", i+1, t.TerminalID, t.Title)
	}
}

func (v *Viewer) attach(ref string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, t := range v.terminals {
		if t.TerminalID == ref || strings.HasPrefix(t.TerminalID, ref) {
			v.attached = t.TerminalID
			fmt.Fprintf(v.out, "attached to %s\n", t.TerminalID)
			return
		}
	}
	fmt.Fprintf(v.out, "no terminal matching %q\n", ref)
}

func (v *Viewer) sendLine(ctx context.Context, line string) {
	v.mu.Lock()
	attached := v.attached
	v.mu.Unlock()
	if attached == "" {
		fmt.Fprintln(v.out, "not attached; use \"attach <id>\" first")
		return
	}
	_ = v.sendCommand(ctx, wire.ClientCommandPayload{
		Command: wire.CommandTerminalInput, TerminalID: attached, Data: line + "\r",
	})
}

// rawMode puts stdin in raw mode and forwards every byte as
// terminal.input until Ctrl-] (0x1d), per spec.md §4.5.
func (v *Viewer) rawMode(ctx context.Context) error {
	v.mu.Lock()
	attached := v.attached
	v.mu.Unlock()
	if attached == "" {
		return fmt.Errorf("not attached")
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return err
	}
	defer term.Restore(fd, oldState)

	fmt.Fprint(v.out, "-- raw mode: Ctrl-] to exit --\r\n")

	buf := make([]byte, 256)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return err
		}
		chunk := buf[:n]
		if i := indexByte(chunk, ctrlRightBracket); i >= 0 {
			if i > 0 {
				_ = v.sendCommand(ctx, wire.ClientCommandPayload{
					Command: wire.CommandTerminalInput, TerminalID: attached, Data: string(chunk[:i]),
				})
			}
			return nil
		}
		_ = v.sendCommand(ctx, wire.ClientCommandPayload{
			Command: wire.CommandTerminalInput, TerminalID: attached, Data: string(chunk),
		})
	}
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

func (v *Viewer) sendCommand(ctx context.Context, payload wire.ClientCommandPayload) error {
	return v.send(ctx, wire.TypeClientCommand, payload)
}

func (v *Viewer) send(ctx context.Context, typ string, payload any) error {
	frame, err := wire.Encode(typ, payload)
	if err != nil {
		return err
	}
	v.mu.Lock()
	conn := v.conn
	v.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("viewer: not connected")
	}
	return conn.Write(ctx, websocket.MessageText, frame)
}

func buildDialURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("viewer: invalid relay url: %w", err)
	}
	q := u.Query()
	q.Set("role", "client")
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
