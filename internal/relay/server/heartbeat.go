package server

import (
	"context"
	"time"
)

// pingTimeout bounds how long a single ping may wait for its pong before
// the socket is treated as gone.
const pingTimeout = 10 * time.Second

// heartbeatLoop implements spec.md §4.2 "Heartbeats": one shared ticker
// pings every tracked socket each interval. A pong (or any inbound data
// frame) refreshes the socket's lastSeen; a socket that hasn't been seen
// within RELAY_IDLE_TIMEOUT_MS, including one whose ping never answers,
// is closed.
func (s *Server) heartbeatLoop(ctx context.Context) {
	interval := s.cfg.HeartbeatInterval()
	idleTimeout := s.cfg.IdleTimeout()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepSockets(idleTimeout)
		}
	}
}

func (s *Server) sweepSockets(idleTimeout time.Duration) {
	s.mu.Lock()
	sockets := make([]*socket, 0, len(s.sockets))
	for sock := range s.sockets {
		sockets = append(sockets, sock)
	}
	s.mu.Unlock()

	now := time.Now()
	for _, sock := range sockets {
		if now.Sub(sock.lastSeenAt()) > idleTimeout {
			sock.Close(1001, "idle timeout")
			continue
		}
		go func(sock *socket) {
			ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
			defer cancel()
			sock.ping(ctx)
		}(sock)
	}
}
