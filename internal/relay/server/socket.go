package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/tfclaw/tfclaw/internal/relay/session"
)

// outboxCapacity bounds how far a socket's writer goroutine may lag
// behind Send before the socket is treated as a slow consumer and
// closed, rather than silently dropping or reordering frames (the
// ordering guarantee in spec.md §5 rules out a drop-on-full queue).
const outboxCapacity = 256

// socket wraps one admitted *websocket.Conn and implements
// session.Socket. Writes are serialized through a single writer
// goroutine reading from outbox, mirroring the teacher's
// mutex-guarded Client.Send but via a channel so Session.Broadcast
// never blocks on a slow socket.
type socket struct {
	conn   *websocket.Conn
	role   session.Role
	token  string
	ip     string
	logger *slog.Logger

	outbox    chan []byte
	closeOnce sync.Once
	closed    chan struct{}

	lastSeen atomic.Int64 // unix nanoseconds

	// messageTimestamps is read and mutated only by this socket's own
	// read loop goroutine, so it needs no lock.
	messageTimestamps []time.Time
}

func newSocket(conn *websocket.Conn, role session.Role, token, ip string, logger *slog.Logger) *socket {
	s := &socket{
		conn:   conn,
		role:   role,
		token:  token,
		ip:     ip,
		logger: logger,
		outbox: make(chan []byte, outboxCapacity),
		closed: make(chan struct{}),
	}
	s.touch()
	go s.writeLoop()
	return s
}

// ping sends a WebSocket ping and touches lastSeen on a successful pong,
// so a live-but-quiet socket (no data frames, just heartbeat traffic)
// survives the next sweep. A failed ping means the connection is already
// gone, so close it now rather than waiting for the idle timeout.
func (s *socket) ping(ctx context.Context) {
	if err := s.conn.Ping(ctx); err != nil {
		s.Close(1001, "ping failed")
		return
	}
	s.touch()
}

func (s *socket) touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

func (s *socket) lastSeenAt() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Send enqueues frame for delivery. Non-blocking: a socket whose writer
// can't keep up is closed rather than allowed to reorder or block
// others.
func (s *socket) Send(frame []byte) {
	select {
	case s.outbox <- frame:
	case <-s.closed:
	default:
		s.logger.Warn("relay: socket outbox full, closing slow consumer", "role", s.role, "ip", s.ip)
		s.Close(1008, "slow consumer")
	}
}

func (s *socket) Close(code int, reason string) {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close(websocket.StatusCode(code), reason)
	})
}

func (s *socket) RemoteIP() string {
	return s.ip
}

func (s *socket) writeLoop() {
	ctx := context.Background()
	for {
		select {
		case frame := <-s.outbox:
			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := s.conn.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				s.Close(1011, "write failed")
				return
			}
		case <-s.closed:
			return
		}
	}
}

// allowMessage enforces the per-socket rolling message-rate window
// (spec.md §4.2 "Rate limits"). Must only be called from the socket's
// own read loop.
func (s *socket) allowMessage(window time.Duration, maxPerWindow int) bool {
	now := time.Now()
	cutoff := now.Add(-window)
	kept := s.messageTimestamps[:0]
	for _, at := range s.messageTimestamps {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	if len(kept) >= maxPerWindow {
		s.messageTimestamps = kept
		return false
	}
	s.messageTimestamps = append(kept, now)
	return true
}
