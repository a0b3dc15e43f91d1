package server

import (
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/tfclaw/tfclaw/internal/metrics"
	"github.com/tfclaw/tfclaw/internal/relay/auth"
	"github.com/tfclaw/tfclaw/internal/relay/session"
)

// handleUpgrade implements the seven-step admission sequence from
// spec.md §4.2. The path match itself (step 3) is enforced by
// registering this handler at exactly cfg.WSPath on the mux; anything
// else 404s before reaching here.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.isDraining() {
		errResponse(w, http.StatusServiceUnavailable)
		return
	}

	ip := remoteIP(r)

	// Step 1: upgrade rate limit per IP.
	if !s.quota.AllowUpgrade(ip, time.Now()) {
		metrics.RelayUpgradeRejectionsTotal.WithLabelValues("rate_limited").Inc()
		errResponse(w, http.StatusTooManyRequests)
		return
	}

	// Step 2: total connection cap, plus the per-IP connection cap.
	if s.quota.TotalConnections() >= s.cfg.MaxConnections {
		metrics.RelayUpgradeRejectionsTotal.WithLabelValues("over_capacity").Inc()
		errResponse(w, http.StatusServiceUnavailable)
		return
	}
	if s.quota.ConnectionsForIP(ip) >= s.cfg.MaxConnectionsPerIP {
		metrics.RelayUpgradeRejectionsTotal.WithLabelValues("over_capacity_ip").Inc()
		errResponse(w, http.StatusServiceUnavailable)
		return
	}

	// Step 4: origin allowlist.
	if len(s.cfg.AllowedOrigins) > 0 {
		origin := r.Header.Get("Origin")
		if !originAllowed(origin, s.cfg.AllowedOrigins) {
			metrics.RelayUpgradeRejectionsTotal.WithLabelValues("origin").Inc()
			errResponse(w, http.StatusForbidden)
			return
		}
	}

	// Step 5: role + token.
	role, ok := parseRole(r.URL.Query().Get("role"))
	if !ok {
		metrics.RelayUpgradeRejectionsTotal.WithLabelValues("bad_role").Inc()
		errResponse(w, http.StatusUnauthorized)
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token = r.Header.Get("x-auth-token")
	}
	if !auth.Validate(token, s.cfg.TokenMinLength, s.cfg.TokenMaxLength, s.cfg.EnforceStrongToken, s.cfg.AllowedTokens) {
		metrics.RelayUpgradeRejectionsTotal.WithLabelValues("bad_token").Inc()
		errResponse(w, http.StatusUnauthorized)
		return
	}

	// Step 6: session cap, only for brand-new tokens.
	if _, exists := s.registry.Get(token); !exists && s.registry.Len() >= s.cfg.MaxSessions {
		metrics.RelayUpgradeRejectionsTotal.WithLabelValues("over_sessions").Inc()
		errResponse(w, http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Debug("relay: accept failed", "error", err, "ip", ip)
		return
	}

	sock := newSocket(conn, role, token, ip, s.logger)
	s.trackSocket(sock)
	s.quota.AddConnection(ip)

	sess, created := s.registry.GetOrCreate(token)
	if created {
		metrics.RelaySessionsActive.Inc()
	}
	s.logger.Info("relay: socket admitted", "role", roleName(role), "ip", ip, "token_fp", auth.Fingerprint(token))

	switch role {
	case session.RoleAgent:
		s.admitAgent(sess, sock)
	case session.RoleClient:
		s.admitClient(sess, sock)
	}

	// Step 7's installation is done; now serve the socket until it closes.
	s.serveSocket(r.Context(), sess, sock)

	// Teardown.
	switch role {
	case session.RoleAgent:
		sess.ClearAgent(sock)
	case session.RoleClient:
		sess.RemoveClient(sock)
		sess.Broadcast(encodeStateFrame(sess))
	}
	s.quota.RemoveConnection(ip)
	s.untrackSocket(sock)
	if s.registry.DeleteIfEmpty(token) {
		metrics.RelaySessionsActive.Dec()
	}
}

func (s *Server) admitAgent(sess *session.Session, sock *socket) {
	previous := sess.SetAgent(sock, sock.ip)
	if previous != nil {
		metrics.RelayAgentEvictionsTotal.Inc()
		previous.Close(4000, "Replaced by a newer agent connection")
	}
	s.quota.ResetIP(sock.ip)
}

func (s *Server) admitClient(sess *session.Session, sock *socket) {
	if sess.ClientCount() >= s.cfg.MaxClientsPerSession {
		sock.Close(1008, "max clients per session reached")
		return
	}
	sess.AddClient(sock)
	sock.Send(encodeStateFrame(sess))
}

func parseRole(v string) (session.Role, bool) {
	switch v {
	case "agent":
		return session.RoleAgent, true
	case "client":
		return session.RoleClient, true
	default:
		return 0, false
	}
}

func originAllowed(origin string, allowlist []string) bool {
	if origin == "" {
		return false
	}
	for _, o := range allowlist {
		if o == origin || o == "*" {
			return true
		}
	}
	return false
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
