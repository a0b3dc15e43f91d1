package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tfclaw/tfclaw/internal/gateway/bridge"
	"github.com/tfclaw/tfclaw/internal/gateway/chatplatform"
	"github.com/tfclaw/tfclaw/internal/gateway/progress"
	"github.com/tfclaw/tfclaw/internal/wire"
)

// Router owns per-chat state and is the single entry point for inbound
// chat messages. Each chat gets its own serialized worker goroutine so
// its events are processed strictly in order (spec.md §5), while
// different chats never block one another.
type Router struct {
	platform chatplatform.Platform
	relay    *bridge.Client
	progress *progress.Manager
	dedup    *dedup
	logger   *slog.Logger

	commandTimeout time.Duration
	menuTTL        time.Duration
	isAllowed      func(userID string) bool

	state *store

	mu      sync.Mutex
	workers map[string]chan chatplatform.InboundMessage
}

// New builds a Router. isAllowed gates every inbound message by user id
// (spec.md §6's "optional allowlist of user ids"); pass a func that
// always returns true to run with no allowlist.
func New(platform chatplatform.Platform, relay *bridge.Client, logger *slog.Logger,
	commandTimeout, progressRecallDelay, dedupWindow, menuTTL time.Duration,
	captureLines, waitMS int, streamMode string, isAllowed func(userID string) bool) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if isAllowed == nil {
		isAllowed = func(string) bool { return true }
	}
	return &Router{
		platform:       platform,
		relay:          relay,
		progress:       progress.NewManager(platform, progressRecallDelay, logger),
		dedup:          newDedup(dedupWindow),
		logger:         logger,
		commandTimeout: commandTimeout,
		menuTTL:        menuTTL,
		isAllowed:      isAllowed,
		state:          newStore(captureLines, waitMS, streamMode),
		workers:        make(map[string]chan chatplatform.InboundMessage),
	}
}

// Run drains the platform's inbound stream until ctx is canceled,
// dispatching each message to its chat's worker.
func (r *Router) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-r.platform.Inbound():
			if !ok {
				return
			}
			r.dispatch(ctx, msg)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, msg chatplatform.InboundMessage) {
	r.mu.Lock()
	ch, ok := r.workers[msg.ChatID]
	if !ok {
		ch = make(chan chatplatform.InboundMessage, 64)
		r.workers[msg.ChatID] = ch
		go r.worker(ctx, msg.ChatID, ch)
	}
	r.mu.Unlock()

	select {
	case ch <- msg:
	case <-ctx.Done():
	}
}

func (r *Router) worker(ctx context.Context, chatID string, ch chan chatplatform.InboundMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			r.handleOne(ctx, msg)
		}
	}
}

// handleOne resolves one inbound message to a relay command and starts
// its progress session. The actual relay.Send/SendCommand call is a
// suspending network operation, so it runs outside any state.with
// callback — only the ChatState reads/writes before and after it are
// locked (see store.with's comment on why this split matters).
func (r *Router) handleOne(ctx context.Context, msg chatplatform.InboundMessage) {
	if !r.isAllowed(msg.UserID) {
		r.logger.Warn("gateway: rejected message from disallowed user", "user_id", msg.UserID, "chat_id", msg.ChatID)
		return
	}
	if r.dedup.SeenBefore(msg.ChatID, msg.MessageID) {
		return
	}
	_ = r.platform.React(ctx, msg.ChatID, msg.MessageID, "👀")

	var in intent
	r.state.with(msg.ChatID, func(st *ChatState) {
		in = interpret(st, msg.Text)
	})

	var requestID string
	var events <-chan bridge.Event
	var err error
	if in.typed != nil {
		in.typed.SessionKey = msg.ChatID
		requestID, events, err = r.relay.Send(ctx, *in.typed)
	} else {
		requestID, events, err = r.relay.SendCommand(ctx, in.text, msg.ChatID)
	}
	if err != nil {
		var mode string
		r.state.with(msg.ChatID, func(st *ChatState) { mode = st.Mode })
		_, _ = r.platform.Send(ctx, msg.ChatID, fmt.Sprintf("[mode] %s\ncommand failed: %v", mode, err))
		return
	}

	var streamMode bool
	r.state.with(msg.ChatID, func(st *ChatState) {
		st.ActiveRequestID = requestID
		streamMode = r.effectiveStreamMode(st)
	})
	sess := r.progress.Start(ctx, msg.ChatID, msg.ChatID, requestID, streamMode)

	go r.awaitResult(ctx, msg.ChatID, sess, requestID, events, r.commandTimeout)
}

func (r *Router) effectiveStreamMode(st *ChatState) bool {
	switch st.StreamMode {
	case StreamOn:
		return true
	case StreamOff:
		return false
	default: // auto
		return true
	}
}

// awaitResult consumes events for one in-flight request. It runs on its
// own goroutine, concurrently with the chat's worker processing further
// inbound messages, so every mutation of the chat's state goes back
// through store.with rather than a captured *ChatState pointer.
func (r *Router) awaitResult(ctx context.Context, chatID string, sess *progress.Session, requestID string, events <-chan bridge.Event, timeout time.Duration) {
	defer r.relay.Forget(requestID)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			sess.Stop()
			return
		case <-deadline.C:
			sess.Push(progress.Update{Body: "command timeout", Final: true})
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Progress != nil {
				sess.Push(progress.Update{Body: ev.Progress.Output})
				continue
			}
			if ev.Result != nil {
				r.state.with(chatID, func(st *ChatState) { applyModeDiscovery(st, ev.Result.Output) })
				sess.Push(progress.Update{Body: ev.Result.Output, Final: true})
				return
			}
			if ev.Err != nil {
				sess.Push(progress.Update{Body: "error: " + ev.Err.Message, Final: true})
				return
			}
			if ev.CaptureSources != nil {
				r.noteCaptureSources(chatID, ev.CaptureSources.Sources)
				sess.Push(progress.Update{Body: renderCaptureMenu(ev.CaptureSources.Sources), Final: true})
				return
			}
		}
	}
}

// noteCaptureSources records a fresh capture menu for chatID with a new
// TTL, so a following numeric reply can resolve to a selected source.
func (r *Router) noteCaptureSources(chatID string, sources []wire.CaptureSource) {
	r.state.with(chatID, func(st *ChatState) {
		st.CaptureMenu = &CaptureMenu{Sources: sources, ExpiresAt: time.Now().Add(r.menuTTL)}
	})
}
