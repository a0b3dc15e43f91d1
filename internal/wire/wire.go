// Package wire defines the tagged JSON message schema shared by the
// relay, the agent, the gateway, and the auxiliary CLI viewer.
//
// Every frame on the wire is a single JSON object with a string "type"
// field and a "payload" object (§4.1 of the spec). One frame per
// WebSocket message, JSON only.
package wire

import "encoding/json"

// MaxMessageBytes is the default per-frame ceiling, the same value as the
// relay's RELAY_MAX_MESSAGE_BYTES default. The relay enforces the limit
// from its own config, not from this constant.
const MaxMessageBytes = 256 * 1024

// Message types, grouped by origin.
const (
	// agent -> relay
	TypeAgentRegister       = "agent.register"
	TypeAgentTerminalList   = "agent.terminal_list"
	TypeAgentTerminalOutput = "agent.terminal_output"
	TypeAgentCaptureSources = "agent.capture_sources"
	TypeAgentScreenCapture  = "agent.screen_capture"
	TypeAgentCommandResult  = "agent.command_result"
	TypeAgentError          = "agent.error"

	// client -> relay
	TypeClientHello   = "client.hello"
	TypeClientCommand = "client.command"

	// relay -> *
	TypeRelayState = "relay.state"
	TypeRelayAck   = "relay.ack"
)

// Client command payload kinds, carried inside client.command.payload.command.
const (
	CommandTerminalCreate   = "terminal.create"
	CommandTerminalClose    = "terminal.close"
	CommandTerminalInput    = "terminal.input"
	CommandTerminalSnapshot = "terminal.snapshot"
	CommandCaptureList      = "capture.list"
	CommandScreenCapture    = "screen.capture"
	CommandTfclawCommand    = "tfclaw.command"
)

// Platform values for AgentDescriptor.
const (
	PlatformWindows = "windows"
	PlatformMacOS   = "macos"
	PlatformLinux   = "linux"
	PlatformUnknown = "unknown"
)

// Capture source kinds.
const (
	CaptureSourceScreen = "screen"
	CaptureSourceWindow = "window"
)

// Client types reported by client.hello.
const (
	ClientTypeMobile         = "mobile"
	ClientTypeChat           = "chat"
	ClientTypeWeb            = "web"
	ClientTypeViewerLauncher = "viewer-launcher"
	ClientTypeViewer         = "viewer"
)

// Envelope is the outer shape of every frame: a type tag plus a raw
// payload that is decoded according to that tag.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode parses raw bytes into an Envelope, rejecting anything that is
// not a JSON object with a string "type" field.
func Decode(data []byte) (Envelope, error) {
	var raw struct {
		Type    json.RawMessage `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Envelope{}, errNotObject
	}
	if len(raw.Type) == 0 {
		return Envelope{}, errMissingType
	}
	var typ string
	if err := json.Unmarshal(raw.Type, &typ); err != nil {
		return Envelope{}, errMissingType
	}
	return Envelope{Type: typ, Payload: raw.Payload}, nil
}

// Encode marshals a typed payload into a frame with the given type tag.
func Encode(typ string, payload any) ([]byte, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: typ, Payload: p})
}
