// Package session implements the relay's per-token Session registry:
// the agent/client socket membership, the terminal summary map, and the
// snapshot cache (spec.md §3 "Relay-internal entities").
package session

import (
	"sync"
	"time"

	"github.com/tfclaw/tfclaw/internal/wire"
)

// Socket is the narrow interface the session package needs from a live
// WebSocket connection; internal/relay/server supplies the concrete
// implementation so this package stays transport-agnostic and testable
// without a real network connection.
type Socket interface {
	// Send writes one frame to the socket. Implementations must be safe
	// for concurrent use and must not block the caller indefinitely.
	Send(frame []byte)
	// Close closes the socket with a WebSocket status code and reason.
	Close(code int, reason string)
	// RemoteIP returns the client IP the socket was admitted from.
	RemoteIP() string
}

// Role distinguishes agent sockets from client sockets within a session.
type Role int

const (
	RoleAgent Role = iota
	RoleClient
)

// Session holds everything the relay knows about one token: the
// (optional) agent socket and its descriptor, the set of attached
// client sockets, the terminal summary map, and the snapshot cache.
//
// Agent swap, client membership and summary replacement go through
// Session's own mutex so they never interleave for a given token
// (spec.md §5 "Per-session routing is serialized"); snapshot appends are
// serialized by the snapshot cache's own lock instead.
type Session struct {
	Token string

	mu        sync.Mutex
	agent     Socket
	agentIP   string
	agentDesc *wire.AgentDescriptor
	clients   map[Socket]struct{}
	terminals map[string]wire.TerminalSummary
	snapshots *snapshotStore
}

func New(token string, maxSnapshotChars int) *Session {
	return &Session{
		Token:     token,
		clients:   make(map[Socket]struct{}),
		terminals: make(map[string]wire.TerminalSummary),
		snapshots: newSnapshotStore(maxSnapshotChars),
	}
}

// SetAgent installs sock as the session's agent socket. If an agent is
// already attached, it is returned so the caller can close it with code
// 4000 ("Replaced by a newer agent connection") outside the lock.
func (s *Session) SetAgent(sock Socket, ip string) (previous Socket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous = s.agent
	s.agent = sock
	s.agentIP = ip
	return previous
}

// ClearAgent removes sock as the agent if it is still the current one.
// Returns true if it was removed.
func (s *Session) ClearAgent(sock Socket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.agent == sock {
		s.agent = nil
		s.agentDesc = nil
		s.agentIP = ""
		return true
	}
	return false
}

// Agent returns the current agent socket, or nil.
func (s *Session) Agent() Socket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agent
}

// AddClient registers a client socket. Returns the current client count
// including the new one.
func (s *Session) AddClient(sock Socket) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[sock] = struct{}{}
	return len(s.clients)
}

// RemoveClient unregisters a client socket.
func (s *Session) RemoveClient(sock Socket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, sock)
}

// ClientCount returns the number of attached client sockets.
func (s *Session) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// IsEmpty reports whether the session has neither an agent nor any
// client, the condition under which the relay deletes it.
func (s *Session) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agent == nil && len(s.clients) == 0
}

// Broadcast sends frame to every attached client socket. Non-blocking
// per socket: a slow client's own Send implementation is responsible for
// not blocking the broadcast (spec.md §5 suspension-point rules).
func (s *Session) Broadcast(frame []byte) {
	s.mu.Lock()
	targets := make([]Socket, 0, len(s.clients))
	for c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.Unlock()
	for _, c := range targets {
		c.Send(frame)
	}
}

// SetAgentDescriptor stores the descriptor reported by agent.register.
func (s *Session) SetAgentDescriptor(d wire.AgentDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agentDesc = &d
}

// ReplaceTerminals replaces the entire terminal-summary map, as agent.terminal_list does.
func (s *Session) ReplaceTerminals(list []wire.TerminalSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := make(map[string]wire.TerminalSummary, len(list))
	for _, t := range list {
		m[t.TerminalID] = t
	}
	s.terminals = m
}

// TouchTerminalOutput marks a terminal active and bumps updatedAt after
// an agent.terminal_output frame, creating a placeholder summary entry
// if the agent hasn't published a terminal_list yet.
func (s *Session) TouchTerminalOutput(terminalID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.terminals[terminalID]
	if !ok {
		t = wire.TerminalSummary{TerminalID: terminalID}
	}
	t.IsActive = true
	t.UpdatedAt = at
	s.terminals[terminalID] = t
}

// AppendSnapshot appends chunk to the cached output for terminalID,
// tail-capping at the session's configured MAX_SNAPSHOT_CHARS.
func (s *Session) AppendSnapshot(terminalID, chunk string) {
	s.snapshots.Append(terminalID, chunk)
}

// State composes a full relay.state payload.
func (s *Session) State() wire.RelayStatePayload {
	s.mu.Lock()
	terms := make([]wire.TerminalSummary, 0, len(s.terminals))
	for _, t := range s.terminals {
		terms = append(terms, t)
	}
	desc := s.agentDesc
	s.mu.Unlock()

	snaps := s.snapshots.All()
	out := make(map[string]wire.TerminalSnapshot, len(snaps))
	for id, text := range snaps {
		out[id] = wire.TerminalSnapshot{TerminalID: id, Output: text}
	}
	return wire.RelayStatePayload{Agent: desc, Terminals: terms, Snapshots: out}
}

// AllSockets returns every socket currently attached to the session
// (the agent, if any, plus every client).
func (s *Session) AllSockets() []Socket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Socket, 0, len(s.clients)+1)
	if s.agent != nil {
		out = append(out, s.agent)
	}
	for c := range s.clients {
		out = append(out, c)
	}
	return out
}

// TerminalState composes a minimal relay.state payload containing only
// the given terminal's summary and snapshot, for client.command
// terminal.snapshot replies.
func (s *Session) TerminalState(terminalID string) wire.RelayStatePayload {
	s.mu.Lock()
	t, ok := s.terminals[terminalID]
	desc := s.agentDesc
	s.mu.Unlock()

	terms := []wire.TerminalSummary{}
	snaps := map[string]wire.TerminalSnapshot{}
	if ok {
		terms = append(terms, t)
		snaps[terminalID] = wire.TerminalSnapshot{TerminalID: terminalID, Output: s.snapshots.Get(terminalID)}
	}
	return wire.RelayStatePayload{Agent: desc, Terminals: terms, Snapshots: snaps}
}

// Registry is the relay's global token -> *Session map. Creation and
// deletion are serialized by Registry's own lock (spec.md §5, "the
// global session map (creation/deletion are serialized)").
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	maxSnapshotChars int
}

func NewRegistry(maxSnapshotChars int) *Registry {
	return &Registry{
		sessions:         make(map[string]*Session),
		maxSnapshotChars: maxSnapshotChars,
	}
}

// GetOrCreate returns the existing session for token, or creates one.
// created reports whether a new session was allocated, for the
// MAX_SESSIONS admission check (callers should check Len() before
// calling GetOrCreate for an unknown token).
func (r *Registry) GetOrCreate(token string) (sess *Session, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[token]; ok {
		return s, false
	}
	s := New(token, r.maxSnapshotChars)
	r.sessions[token] = s
	return s, true
}

// Get returns the existing session for token without creating one.
func (r *Registry) Get(token string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[token]
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// DeleteIfEmpty removes the session for token if it has neither an agent
// nor any clients. Safe to call after every socket departure. Reports
// whether a session was actually removed.
func (r *Registry) DeleteIfEmpty(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[token]
	if ok && s.IsEmpty() {
		delete(r.sessions, token)
		return true
	}
	return false
}

// All returns every live session.
func (r *Registry) All() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
