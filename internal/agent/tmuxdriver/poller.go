package tmuxdriver

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// redrawSentinel marks a chunk whenever a poll's capture didn't extend
// the previous one (a TUI redraw or scrollback reset rather than plain
// append): it appears in the emitted delta exactly once so a client
// replaying chunks in order can tell a redraw from a truncated append.
const redrawSentinel = "[tmux redraw]"

// captureErrorThrottle bounds how often a transient (non-death) capture
// error is reported per terminal.
const captureErrorThrottle = 5 * time.Second

// OutputFunc receives one incremental output chunk for a terminal.
type OutputFunc func(terminalID, chunk string, at time.Time)

// PaneDeadFunc is called when a terminal's backing tmux window has gone
// away on its own (the foreground process exited and tmux closed the
// window), per spec.md's "reporting pane death". reason is a short
// human-readable cause ("pane not found", "window not found").
type PaneDeadFunc func(terminalID, reason string)

// CaptureErrorFunc is called when a capture poll fails without the pane
// itself being gone — a transient multiplexer hiccup — throttled to at
// most one call per terminal per captureErrorThrottle.
type CaptureErrorFunc func(terminalID, message string)

// Poller periodically captures every tracked terminal's pane and emits
// the incremental difference since the previous capture. A
// semaphore.Weighted(1) guards against overlapping sweeps if a capture
// call is slow enough that the next tick would otherwise fire
// concurrently with it.
type Poller struct {
	mgr           *Manager
	interval      time.Duration
	sem           *semaphore.Weighted
	onOutput      OutputFunc
	onDead        PaneDeadFunc
	onCaptureErr  CaptureErrorFunc
	maxDeltaChars int

	errMu         sync.Mutex
	lastErrorAt   map[string]time.Time
}

func NewPoller(mgr *Manager, interval time.Duration, maxDeltaChars int, onOutput OutputFunc, onDead PaneDeadFunc, onCaptureErr CaptureErrorFunc) *Poller {
	return &Poller{
		mgr:          mgr,
		interval:     interval,
		sem:          semaphore.NewWeighted(1),
		onOutput:     onOutput,
		onDead:       onDead,
		onCaptureErr: onCaptureErr,
		maxDeltaChars: maxDeltaChars,
		lastErrorAt:  make(map[string]time.Time),
	}
}

// Run blocks, sweeping on every tick until ctx is canceled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.sem.TryAcquire(1) {
				continue // previous sweep still in flight; skip this tick
			}
			p.sweep(ctx)
			p.sem.Release(1)
		}
	}
}

func (p *Poller) sweep(ctx context.Context) {
	for _, terminalID := range p.mgr.ActiveTerminals() {
		p.pollOne(ctx, terminalID)
	}
}

func (p *Poller) pollOne(ctx context.Context, terminalID string) {
	p.mgr.mu.Lock()
	w, ok := p.mgr.windows[terminalID]
	p.mgr.mu.Unlock()
	if !ok {
		return
	}

	captured, err := p.mgr.CapturePane(ctx, terminalID)
	if err != nil {
		if reason, dead := paneDeathReason(err); dead {
			p.mgr.markInactive(terminalID)
			if p.onDead != nil {
				p.onDead(terminalID, reason)
			}
			return
		}
		p.reportCaptureError(terminalID, err)
		return
	}

	w.mu.Lock()
	prev := w.lastCapture
	w.mu.Unlock()

	if captured == prev {
		return
	}

	var chunk string
	if strings.HasPrefix(captured, prev) {
		chunk = captured[len(prev):]
		if p.maxDeltaChars > 0 {
			chunk = tailCap(chunk, p.maxDeltaChars)
		}
	} else {
		body := captured
		if p.maxDeltaChars > 0 {
			body = tailCap(body, p.maxDeltaChars)
		}
		chunk = "\n" + redrawSentinel + "\n" + body + "\n"
	}

	w.mu.Lock()
	w.lastCapture = captured
	w.mu.Unlock()

	if p.onOutput != nil {
		p.onOutput(terminalID, chunk, time.Now())
	}
}

// paneDeathReason classifies a capture-pane failure: tmux reports a
// permanently gone pane/window with "can't find pane"/"can't find
// window" (or the "no such pane"/"no such window" phrasing used by some
// builds); anything else is treated as transient.
func paneDeathReason(err error) (reason string, dead bool) {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "can't find pane"), strings.Contains(msg, "no such pane"):
		return "pane not found", true
	case strings.Contains(msg, "can't find window"), strings.Contains(msg, "no such window"):
		return "window not found", true
	default:
		return "", false
	}
}

// reportCaptureError throttles transient (non-death) capture errors to
// one onCaptureErr call per terminal per captureErrorThrottle.
func (p *Poller) reportCaptureError(terminalID string, err error) {
	now := time.Now()

	p.errMu.Lock()
	last, seen := p.lastErrorAt[terminalID]
	if seen && now.Sub(last) < captureErrorThrottle {
		p.errMu.Unlock()
		return
	}
	p.lastErrorAt[terminalID] = now
	p.errMu.Unlock()

	if p.onCaptureErr != nil {
		p.onCaptureErr(terminalID, err.Error())
	}
}

func tailCap(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[len(r)-max:])
}
