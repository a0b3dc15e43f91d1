package router

import (
	"sync"
	"time"
)

// dedup is a rolling window of recently-seen inbound message ids,
// scoped per chat (spec.md §5: "Dedup checks are atomic
// with-respect-to a single chat").
type dedup struct {
	window time.Duration

	mu   sync.Mutex
	seen map[string]map[string]time.Time
}

func newDedup(window time.Duration) *dedup {
	return &dedup{window: window, seen: make(map[string]map[string]time.Time)}
}

// SeenBefore reports whether messageID was already recorded for chatID
// within the window, recording it either way.
func (d *dedup) SeenBefore(chatID, messageID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	chatSeen, ok := d.seen[chatID]
	if !ok {
		chatSeen = make(map[string]time.Time)
		d.seen[chatID] = chatSeen
	}

	cutoff := time.Now().Add(-d.window)
	for id, at := range chatSeen {
		if at.Before(cutoff) {
			delete(chatSeen, id)
		}
	}

	if _, dup := chatSeen[messageID]; dup {
		return true
	}
	chatSeen[messageID] = time.Now()
	return false
}
