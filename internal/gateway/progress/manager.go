package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tfclaw/tfclaw/internal/gateway/chatplatform"
)

// Manager enforces at most one active progress session per
// chat-selection-key: starting a new session for a key stops and
// discards whichever session currently owns that key.
type Manager struct {
	platform    chatplatform.Platform
	recallDelay time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(platform chatplatform.Platform, recallDelay time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		platform:    platform,
		recallDelay: recallDelay,
		logger:      logger,
		sessions:    make(map[string]*Session),
	}
}

// Start opens a new session for key, stopping any session already
// active for that key (spec.md §4.4 step 2: "replacing any existing
// active session for the same chat-selection-key").
func (m *Manager) Start(ctx context.Context, key, chatID, requestID string, streamMode bool) *Session {
	m.mu.Lock()
	if existing, ok := m.sessions[key]; ok {
		existing.Stop()
	}
	s := NewSession(ctx, chatID, requestID, m.platform, streamMode, m.recallDelay, m.logger)
	m.sessions[key] = s
	m.mu.Unlock()

	go func() {
		s.Wait()
		m.mu.Lock()
		if m.sessions[key] == s {
			delete(m.sessions, key)
		}
		m.mu.Unlock()
	}()

	return s
}
