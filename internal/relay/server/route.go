package server

import (
	"context"
	"encoding/json"

	"github.com/tfclaw/tfclaw/internal/metrics"
	"github.com/tfclaw/tfclaw/internal/relay/session"
	"github.com/tfclaw/tfclaw/internal/wire"
)

// serveSocket runs sock's read loop until the connection closes,
// dispatching each decoded frame to the agent- or client-origin routing
// rules in spec.md §4.2 "Routing".
func (s *Server) serveSocket(ctx context.Context, sess *session.Session, sock *socket) {
	for {
		_, data, err := sock.conn.Read(ctx)
		if err != nil {
			return
		}
		sock.touch()

		if len(data) > s.cfg.MaxMessageBytes {
			sock.Close(1009, "frame too large")
			return
		}
		if !sock.allowMessage(s.cfg.MessageRateWindow(), s.cfg.MaxMessagesPerWindow) {
			s.sendAck(sock, "", false, "rate limit exceeded")
			sock.Close(1008, "rate limit exceeded")
			return
		}

		env, err := wire.Decode(data)
		if err != nil {
			s.sendAck(sock, "", false, "malformed frame")
			continue
		}

		switch sock.role {
		case session.RoleAgent:
			s.routeAgentFrame(sess, sock, env)
		case session.RoleClient:
			s.routeClientFrame(sess, sock, env)
		}
	}
}

func (s *Server) routeAgentFrame(sess *session.Session, sock *socket, env wire.Envelope) {
	metrics.RelayMessagesRoutedTotal.WithLabelValues(env.Type).Inc()

	switch env.Type {
	case wire.TypeAgentRegister:
		var p wire.AgentDescriptor
		if err := decodeInto(env, &p); err != nil {
			return
		}
		sess.SetAgentDescriptor(p)
		s.broadcastState(sess)

	case wire.TypeAgentTerminalList:
		var p wire.AgentTerminalListPayload
		if err := decodeInto(env, &p); err != nil {
			return
		}
		sess.ReplaceTerminals(p.Terminals)
		s.broadcastState(sess)

	case wire.TypeAgentTerminalOutput:
		var p wire.AgentTerminalOutputPayload
		if err := decodeInto(env, &p); err != nil {
			return
		}
		sess.AppendSnapshot(p.TerminalID, p.Chunk)
		sess.TouchTerminalOutput(p.TerminalID, p.At)
		frame, err := wire.Encode(env.Type, p)
		if err != nil {
			return
		}
		sess.Broadcast(frame)

	case wire.TypeAgentCaptureSources, wire.TypeAgentScreenCapture, wire.TypeAgentCommandResult, wire.TypeAgentError:
		// Forwarded to clients verbatim.
		frame, err := wire.Encode(env.Type, env.Payload)
		if err != nil {
			return
		}
		sess.Broadcast(frame)

	default:
		s.sendAck(sock, "", false, "unknown message type")
	}
}

func (s *Server) routeClientFrame(sess *session.Session, sock *socket, env wire.Envelope) {
	metrics.RelayMessagesRoutedTotal.WithLabelValues(env.Type).Inc()

	switch env.Type {
	case wire.TypeClientHello:
		var p wire.ClientHelloPayload
		if err := decodeInto(env, &p); err != nil {
			s.sendAck(sock, "", false, "malformed hello")
			return
		}
		s.sendAck(sock, "", true, "hello "+p.ClientType)
		sock.Send(encodeStateFrame(sess))

	case wire.TypeClientCommand:
		var p wire.ClientCommandPayload
		if err := decodeInto(env, &p); err != nil {
			s.sendAck(sock, "", false, "malformed command")
			return
		}

		if p.Command == wire.CommandTerminalSnapshot {
			state := sess.TerminalState(p.TerminalID)
			frame, err := wire.Encode(wire.TypeRelayState, state)
			if err == nil {
				sock.Send(frame)
			}
		}

		agent := sess.Agent()
		if agent == nil {
			// terminal.input gets a plain negative ack with no requestId
			// echo, matching the agent's own fire-and-forget semantics;
			// every other command echoes requestId so the caller can
			// correlate the failure.
			if p.Command == wire.CommandTerminalInput {
				s.sendAck(sock, "", false, "no agent attached")
			} else {
				s.sendAck(sock, p.RequestID, false, "no agent attached")
			}
			return
		}

		frame, err := wire.Encode(env.Type, p)
		if err != nil {
			return
		}
		agent.Send(frame)
		if p.Command != wire.CommandTerminalInput {
			s.sendAck(sock, p.RequestID, true, "")
		}

	default:
		s.sendAck(sock, "", false, "unknown message type")
	}
}

func (s *Server) broadcastState(sess *session.Session) {
	sess.Broadcast(encodeStateFrame(sess))
}

func encodeStateFrame(sess *session.Session) []byte {
	frame, err := wire.Encode(wire.TypeRelayState, sess.State())
	if err != nil {
		return nil
	}
	return frame
}

func (s *Server) sendAck(sock *socket, requestID string, ok bool, message string) {
	frame, err := wire.Encode(wire.TypeRelayAck, wire.RelayAckPayload{
		RequestID: requestID,
		OK:        ok,
		Message:   message,
	})
	if err != nil {
		return
	}
	sock.Send(frame)
}

func decodeInto(env wire.Envelope, v any) error {
	if len(env.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(env.Payload, v)
}
