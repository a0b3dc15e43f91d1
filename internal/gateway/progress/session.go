// Package progress implements the gateway's progress coalescer: a
// per-request serialized queue of "body" updates rendered into a chat
// as a single message that is replaced in place by sending the new body
// and deleting the previous one after a short delay (spec.md §4.4).
package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tfclaw/tfclaw/internal/gateway/chatplatform"
)

// Update is one body to render, or the final result for the request.
type Update struct {
	Body  string
	Final bool
}

// Session coalesces updates for a single requestId into chat messages.
// Updates must be pushed in order; Push never blocks the caller past
// enqueueing onto a buffered channel.
type Session struct {
	chatID      string
	requestID   string
	platform    chatplatform.Platform
	streamMode  bool
	recallDelay time.Duration
	logger      *slog.Logger

	queue  chan Update
	done   chan struct{}
	cancel context.CancelFunc

	mu            sync.Mutex
	lastBody      string
	lastMessageID string
}

// NewSession starts the session's processing goroutine and returns
// immediately. Stop must eventually be called to release resources.
func NewSession(ctx context.Context, chatID, requestID string, platform chatplatform.Platform, streamMode bool, recallDelay time.Duration, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		chatID:      chatID,
		requestID:   requestID,
		platform:    platform,
		streamMode:  streamMode,
		recallDelay: recallDelay,
		logger:      logger,
		queue:       make(chan Update, 32),
		done:        make(chan struct{}),
		cancel:      cancel,
	}
	go s.run(sctx)
	return s
}

// Push enqueues an update. It is safe to call concurrently, but updates
// from a single producer must be pushed in the order they should render
// in (the queue preserves FIFO, it does not reorder).
func (s *Session) Push(u Update) {
	select {
	case s.queue <- u:
	case <-s.done:
	}
}

// Stop cancels processing and drains the recall queue without sending
// any further messages; used when a new request on the same
// chat-selection-key supersedes this one.
func (s *Session) Stop() {
	s.cancel()
}

// Wait blocks until the session's processing goroutine has exited
// (either the final update was rendered, or Stop was called).
func (s *Session) Wait() {
	<-s.done
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-s.queue:
			s.apply(ctx, u)
			if u.Final {
				return
			}
		}
	}
}

func (s *Session) apply(ctx context.Context, u Update) {
	s.mu.Lock()
	identical := u.Body == s.lastBody && s.lastBody != ""
	s.mu.Unlock()
	if identical && !u.Final {
		// A new progress body identical to the last sent one is dropped.
		return
	}

	if !u.Final && !s.streamMode {
		// streamMode=off: the first progress body becomes a one-time
		// waiting notice; subsequent non-final bodies are swallowed
		// until the final result replaces it.
		s.mu.Lock()
		alreadyNotified := s.lastMessageID != ""
		s.mu.Unlock()
		if alreadyNotified {
			return
		}
	}

	id, err := s.platform.Send(ctx, s.chatID, u.Body)
	if err != nil {
		s.logger.Warn("gateway: progress send failed", "request_id", s.requestID, "error", err)
		return
	}

	s.mu.Lock()
	prevID := s.lastMessageID
	s.lastMessageID = id
	s.lastBody = u.Body
	s.mu.Unlock()

	if prevID == "" {
		return
	}
	if u.Final {
		s.scheduleDelete(ctx, prevID)
		return
	}
	if s.streamMode {
		s.scheduleDelete(ctx, prevID)
	}
}

// scheduleDelete always fires after recallDelay regardless of session
// cancellation, so a Stop (superseding request) doesn't leave a stale
// progress message behind in the chat.
func (s *Session) scheduleDelete(_ context.Context, messageID string) {
	go func() {
		time.Sleep(s.recallDelay)
		delCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.platform.Delete(delCtx, s.chatID, messageID); err != nil {
			s.logger.Warn("gateway: progress recall failed", "request_id", s.requestID, "error", err)
		}
	}()
}
