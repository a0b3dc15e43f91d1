// Package tmuxdriver drives an external tmux-like terminal multiplexer
// out-of-process: one tmux window per logical terminal, capture-poll and
// diff to produce incremental output chunks, and translation of an input
// byte/shortcut stream into key events (spec.md §2, "the agent's
// terminal multiplexer driver").
package tmuxdriver

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"
)

// Runner executes one tmux invocation and returns its stdout. Swappable
// in tests so the driver can be exercised without a real tmux binary.
type Runner func(ctx context.Context, args ...string) (string, error)

// ExecRunner shells out to the real tmux binary.
func ExecRunner(binary string) Runner {
	return func(ctx context.Context, args ...string) (string, error) {
		cmd := exec.CommandContext(ctx, binary, args...)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("tmux %v: %w: %s", args, err, stderr.String())
		}
		return stdout.String(), nil
	}
}

// Window is one tmux window backing a single logical terminal.
type Window struct {
	TerminalID string
	Title      string
	Cwd        string

	mu          sync.Mutex
	lastCapture string
	isActive    bool
	updatedAt   time.Time
}

// TerminalInfo is the identity and liveness of one tracked terminal,
// returned by Manager.TerminalInfos for building a TerminalSummary
// without reaching into Manager internals.
type TerminalInfo struct {
	TerminalID string
	Title      string
	Cwd        string
	IsActive   bool
	UpdatedAt  time.Time
}

func (w *Window) target(sessionName string) string {
	return sessionName + ":" + w.TerminalID
}

// Manager owns the tmux session and the logical windows (terminals)
// inside it: a mutex-guarded map with explicit create/send/resize/close
// operations, driving tmux instead of a local pty.
type Manager struct {
	run         Runner
	sessionName string
	baseArgs    []string
	captureLines int

	mu      sync.Mutex
	windows map[string]*Window
	bootstrapped bool
}

// NewManager constructs a Manager. sessionName is the tmux session all
// windows live in; captureLines bounds how much scrollback capture-pane
// reads per poll.
func NewManager(run Runner, sessionName string, baseArgs []string, captureLines int) *Manager {
	return &Manager{
		run:          run,
		sessionName:  sessionName,
		baseArgs:     baseArgs,
		captureLines: captureLines,
		windows:      make(map[string]*Window),
	}
}

func (m *Manager) args(rest ...string) []string {
	out := make([]string, 0, len(m.baseArgs)+len(rest))
	out = append(out, m.baseArgs...)
	out = append(out, rest...)
	return out
}

// EnsureSession creates the backing tmux session if it doesn't already
// exist, with a throwaway bootstrap window (tmux refuses a session with
// zero windows, and the bootstrap window is never exposed as a logical
// terminal).
func (m *Manager) EnsureSession(ctx context.Context, bootstrapWindowName string) error {
	if _, err := m.run(ctx, m.args("has-session", "-t", m.sessionName)...); err == nil {
		return nil
	}
	_, err := m.run(ctx, m.args("new-session", "-d", "-s", m.sessionName, "-n", bootstrapWindowName)...)
	return err
}

// CreateTerminal allocates a new tmux window for terminalID, running cwd
// as its starting directory (empty means tmux's default).
func (m *Manager) CreateTerminal(ctx context.Context, terminalID, title, cwd string) error {
	m.mu.Lock()
	if _, exists := m.windows[terminalID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("tmuxdriver: terminal already exists: %s", terminalID)
	}
	m.mu.Unlock()

	cwd, err := resolveWorkingDir(cwd)
	if err != nil {
		return err
	}

	args := m.args("new-window", "-d", "-t", m.sessionName, "-n", terminalID, "-P", "-F", "#{window_id}")
	if cwd != "" {
		args = append(args, "-c", cwd)
	}
	if _, err := m.run(ctx, args...); err != nil {
		return fmt.Errorf("tmuxdriver: create window %s: %w", terminalID, err)
	}

	w := &Window{TerminalID: terminalID, Title: title, Cwd: cwd, isActive: true, updatedAt: time.Now()}
	m.mu.Lock()
	m.windows[terminalID] = w
	m.mu.Unlock()
	return nil
}

// CloseTerminal kills the tmux window backing terminalID and forgets it.
func (m *Manager) CloseTerminal(ctx context.Context, terminalID string) error {
	m.mu.Lock()
	w, ok := m.windows[terminalID]
	if ok {
		delete(m.windows, terminalID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	_, err := m.run(ctx, m.args("kill-window", "-t", w.target(m.sessionName))...)
	return err
}

// markInactive flips terminalID's window to isActive=false without
// removing it from the tracked set, for use after the poller observes
// the pane has died on its own (the underlying shell exited and tmux
// closed the window for it). The terminal remains in TerminalInfos as
// isActive=false until an explicit CloseTerminal removes it.
func (m *Manager) markInactive(terminalID string) bool {
	m.mu.Lock()
	w, ok := m.windows[terminalID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	w.mu.Lock()
	w.isActive = false
	w.updatedAt = time.Now()
	w.mu.Unlock()
	return true
}

// HasTerminal reports whether terminalID is a tracked window, active or
// not (a pane marked inactive stays tracked until CloseTerminal).
func (m *Manager) HasTerminal(terminalID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.windows[terminalID]
	return ok
}

// Terminals returns the ids of every currently tracked terminal,
// active or not.
func (m *Manager) Terminals() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.windows))
	for id := range m.windows {
		out = append(out, id)
	}
	return out
}

// ActiveTerminals returns the ids of terminals whose pane is still
// alive — the set the poller should keep sweeping, so a window already
// marked inactive isn't capture-polled forever.
func (m *Manager) ActiveTerminals() []string {
	m.mu.Lock()
	ws := make([]*Window, 0, len(m.windows))
	for _, w := range m.windows {
		ws = append(ws, w)
	}
	m.mu.Unlock()

	out := make([]string, 0, len(ws))
	for _, w := range ws {
		w.mu.Lock()
		active := w.isActive
		w.mu.Unlock()
		if active {
			out = append(out, w.TerminalID)
		}
	}
	return out
}

// TerminalInfos returns the identity and liveness of every tracked
// terminal, for building TerminalSummary entries (title, cwd, isActive)
// without reaching into Manager internals.
func (m *Manager) TerminalInfos() []TerminalInfo {
	m.mu.Lock()
	ws := make([]*Window, 0, len(m.windows))
	for _, w := range m.windows {
		ws = append(ws, w)
	}
	m.mu.Unlock()

	out := make([]TerminalInfo, 0, len(ws))
	for _, w := range ws {
		w.mu.Lock()
		out = append(out, TerminalInfo{
			TerminalID: w.TerminalID,
			Title:      w.Title,
			Cwd:        w.Cwd,
			IsActive:   w.isActive,
			UpdatedAt:  w.updatedAt,
		})
		w.mu.Unlock()
	}
	return out
}

// SendInput injects translated key data into terminalID's window.
func (m *Manager) SendInput(ctx context.Context, terminalID string, data []byte) error {
	m.mu.Lock()
	w, ok := m.windows[terminalID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("tmuxdriver: no terminal: %s", terminalID)
	}

	for _, ev := range translateInput(data) {
		args := m.args("send-keys", "-t", w.target(m.sessionName))
		if ev.literal {
			args = append(args, "-l", "--", ev.text)
		} else {
			args = append(args, ev.text)
		}
		if _, err := m.run(ctx, args...); err != nil {
			return fmt.Errorf("tmuxdriver: send-keys %s: %w", terminalID, err)
		}
	}
	w.mu.Lock()
	w.updatedAt = time.Now()
	w.mu.Unlock()
	return nil
}

// Resize changes the tmux window's client size (best-effort; tmux sizes
// windows by the largest attached client, so this uses resize-window
// with -x/-y on a detached session).
func (m *Manager) Resize(ctx context.Context, terminalID string, cols, rows int) error {
	m.mu.Lock()
	w, ok := m.windows[terminalID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("tmuxdriver: no terminal: %s", terminalID)
	}
	_, err := m.run(ctx, m.args("resize-window", "-t", w.target(m.sessionName),
		"-x", fmt.Sprint(cols), "-y", fmt.Sprint(rows))...)
	return err
}

// CapturePane returns the rendered pane contents for terminalID, reading
// back at most captureLines lines of scrollback (used by the poller's
// sweep and for terminal.snapshot resync).
func (m *Manager) CapturePane(ctx context.Context, terminalID string) (string, error) {
	m.mu.Lock()
	w, ok := m.windows[terminalID]
	m.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("tmuxdriver: no terminal: %s", terminalID)
	}
	return m.run(ctx, m.args("capture-pane", "-p", "-t", w.target(m.sessionName),
		"-S", fmt.Sprintf("-%d", m.captureLines))...)
}

// SetLastCapture records captured as the last-seen pane contents for
// terminalID without emitting a delta. Callers that send a full pane
// snapshot outside the poller's own diff loop (terminal.snapshot resync)
// must call this afterward, or the next poll tick will see a stale
// baseline and re-emit the same content behind a spurious redraw
// sentinel.
func (m *Manager) SetLastCapture(terminalID, captured string) {
	m.mu.Lock()
	w, ok := m.windows[terminalID]
	m.mu.Unlock()
	if !ok {
		return
	}
	w.mu.Lock()
	w.lastCapture = captured
	w.mu.Unlock()
}

// Shutdown optionally kills the tmux session. When persist is true the
// session (and every window in it) is left running so a restarted agent
// can reattach to it.
func (m *Manager) Shutdown(ctx context.Context, persist bool) error {
	if persist {
		return nil
	}
	_, err := m.run(ctx, m.args("kill-session", "-t", m.sessionName)...)
	return err
}
