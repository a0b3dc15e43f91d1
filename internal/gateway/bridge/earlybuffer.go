package bridge

import (
	"sync"
	"time"

	"github.com/tfclaw/tfclaw/internal/wire"
)

// earlyEvent is one buffered frame for a requestId that arrived before a
// waiter registered for it.
type earlyEvent struct {
	progress       *wire.AgentCommandResultPayload
	result         *wire.AgentCommandResultPayload
	errFrame       *wire.AgentErrorPayload
	captureSources *wire.AgentCaptureSourcesPayload
	at             time.Time
}

// EarlyCommandBuffer holds outcomes and progress events for requestIds
// whose waiter hasn't registered yet — a race through the relay where
// the agent answers before the gateway has finished recording that it's
// waiting. Entries expire after ttl (spec.md §4.4: "bounded, 60s TTL").
type EarlyCommandBuffer struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string][]earlyEvent
}

func NewEarlyCommandBuffer(ttl time.Duration) *EarlyCommandBuffer {
	return &EarlyCommandBuffer{ttl: ttl, entries: make(map[string][]earlyEvent)}
}

func (b *EarlyCommandBuffer) bufferProgress(requestID string, p wire.AgentCommandResultPayload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gcLocked()
	pc := p
	b.entries[requestID] = append(b.entries[requestID], earlyEvent{progress: &pc, at: time.Now()})
}

func (b *EarlyCommandBuffer) bufferResult(requestID string, p wire.AgentCommandResultPayload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gcLocked()
	pc := p
	b.entries[requestID] = append(b.entries[requestID], earlyEvent{result: &pc, at: time.Now()})
}

func (b *EarlyCommandBuffer) bufferError(requestID string, p wire.AgentErrorPayload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gcLocked()
	pc := p
	b.entries[requestID] = append(b.entries[requestID], earlyEvent{errFrame: &pc, at: time.Now()})
}

func (b *EarlyCommandBuffer) bufferCaptureSources(requestID string, p wire.AgentCaptureSourcesPayload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gcLocked()
	pc := p
	b.entries[requestID] = append(b.entries[requestID], earlyEvent{captureSources: &pc, at: time.Now()})
}

// Take returns and removes any buffered events for requestID, in the
// order they arrived, for replay into a newly-registered waiter.
func (b *EarlyCommandBuffer) Take(requestID string) []earlyEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gcLocked()
	events := b.entries[requestID]
	delete(b.entries, requestID)
	return events
}

// gcLocked drops expired entries. Called with mu held.
func (b *EarlyCommandBuffer) gcLocked() {
	cutoff := time.Now().Add(-b.ttl)
	for id, events := range b.entries {
		kept := events[:0]
		for _, e := range events {
			if e.at.After(cutoff) {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(b.entries, id)
		} else {
			b.entries[id] = kept
		}
	}
}
