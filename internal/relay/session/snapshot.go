package session

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Package-level encoder/decoder, safe for concurrent use.
var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Sprintf("session: init zstd encoder: %v", err))
	}
	decoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("session: init zstd decoder: %v", err))
	}
}

// snapshotStore holds each terminal's tail-capped output, zstd-compressed
// at rest so a session with many long-lived terminals doesn't keep their
// full text resident as plain strings.
type snapshotStore struct {
	mu      sync.Mutex
	maxChars int
	compressed map[string][]byte // terminalId -> zstd(tailCap(output))
}

func newSnapshotStore(maxChars int) *snapshotStore {
	return &snapshotStore{
		maxChars:   maxChars,
		compressed: make(map[string][]byte),
	}
}

// Append concatenates chunk onto the terminal's cached output, tail-caps
// it to maxChars, and stores it compressed. Returns the new plaintext
// output (so callers can compute summary/foreground-command fields
// without a second round trip).
func (s *snapshotStore) Append(terminalID, chunk string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.getLocked(terminalID)
	next := tailCap(prev+chunk, s.maxChars)
	s.compressed[terminalID] = encoder.EncodeAll([]byte(next), nil)
	return next
}

// Get returns the current plaintext output for a terminal, or "" if none
// has been recorded yet.
func (s *snapshotStore) Get(terminalID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(terminalID)
}

func (s *snapshotStore) getLocked(terminalID string) string {
	raw, ok := s.compressed[terminalID]
	if !ok {
		return ""
	}
	plain, err := decoder.DecodeAll(raw, nil)
	if err != nil {
		return ""
	}
	return string(plain)
}

// All returns a snapshot of every terminal's current plaintext output.
func (s *snapshotStore) All() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.compressed))
	for id := range s.compressed {
		out[id] = s.getLocked(id)
	}
	return out
}

// Delete removes a terminal's cached output entirely.
func (s *snapshotStore) Delete(terminalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.compressed, terminalID)
}

func tailCap(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[len(r)-max:])
}
