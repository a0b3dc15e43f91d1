// Package router is the gateway's per-chat state machine: it interprets
// control-mode commands and passthrough text, tracks the mode
// conversation spec.md §4.4 describes, and drives a progress.Manager
// session per in-flight request.
package router

import (
	"sync"
	"time"

	"github.com/tfclaw/tfclaw/internal/wire"
)

const (
	ModeControl     = "control"
	ModePassthrough = "passthrough"
)

const (
	StreamAuto = "auto"
	StreamOn   = "on"
	StreamOff  = "off"
)

// CaptureMenu is a pending numbered list of capture sources offered to
// the user, expiring after TTL per spec.md §4.4.
type CaptureMenu struct {
	Sources   []wire.CaptureSource
	ExpiresAt time.Time
}

func (m *CaptureMenu) expired() bool {
	return m == nil || time.Now().After(m.ExpiresAt)
}

// ChatState is the per-chat session spec.md §4.4 names: mode,
// pane target, capture/stream preferences, pending capture menu, and
// the currently in-flight request.
type ChatState struct {
	Mode               string
	PaneTarget         string
	CaptureLines       int
	WaitMS             int
	StreamMode         string
	SelectedTerminalID string
	CaptureMenu        *CaptureMenu
	ActiveRequestID    string
}

func newChatState(defaultCaptureLines, defaultWaitMS int, defaultStream string) *ChatState {
	return &ChatState{
		Mode:         ModeControl,
		CaptureLines: defaultCaptureLines,
		WaitMS:       defaultWaitMS,
		StreamMode:   defaultStream,
	}
}

// store holds one ChatState per chat id, created on first use.
type store struct {
	mu                  sync.Mutex
	states              map[string]*ChatState
	defaultCaptureLines int
	defaultWaitMS       int
	defaultStream       string
}

func newStore(defaultCaptureLines, defaultWaitMS int, defaultStream string) *store {
	return &store{
		states:              make(map[string]*ChatState),
		defaultCaptureLines: defaultCaptureLines,
		defaultWaitMS:       defaultWaitMS,
		defaultStream:       defaultStream,
	}
}

// with runs fn with the chat's state locked for fn's entire duration,
// creating the state on first use. The lock is shared across every chat,
// so fn must never suspend (no chat-platform or relay calls) — callers
// needing a suspending call must read what they need out of ChatState in
// one with() call, do the call unlocked, then record the outcome in a
// second with() call. This is what actually serializes ChatState
// mutations: a chat's worker goroutine and its in-flight awaitResult
// goroutine both reach the same *ChatState concurrently, and only the
// lock held across fn — not just the map lookup — prevents a torn write.
func (s *store) with(chatID string, fn func(*ChatState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[chatID]
	if !ok {
		st = newChatState(s.defaultCaptureLines, s.defaultWaitMS, s.defaultStream)
		s.states[chatID] = st
	}
	fn(st)
}
