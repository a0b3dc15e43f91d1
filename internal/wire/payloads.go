package wire

import "time"

// AgentDescriptor identifies the agent attached to a session.
type AgentDescriptor struct {
	AgentID     string    `json:"agentId"`
	Platform    string    `json:"platform"`
	Hostname    string    `json:"hostname"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// TerminalSummary is the lightweight, frequently-broadcast view of a
// logical terminal.
type TerminalSummary struct {
	TerminalID        string    `json:"terminalId"`
	Title             string    `json:"title"`
	Cwd               string    `json:"cwd,omitempty"`
	IsActive          bool      `json:"isActive"`
	UpdatedAt         time.Time `json:"updatedAt"`
	ForegroundCommand string    `json:"foregroundCommand,omitempty"`
}

// TerminalSnapshot is the tail-capped cached output for a terminal.
type TerminalSnapshot struct {
	TerminalID string    `json:"terminalId"`
	Output     string    `json:"output"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// CaptureSource is one selectable screen or window capture target.
type CaptureSource struct {
	Source   string `json:"source"`
	SourceID string `json:"sourceId"`
	Label    string `json:"label"`
}

// ScreenCapture is a captured image, base64-encoded.
type ScreenCapture struct {
	Source      string    `json:"source"`
	SourceID    string    `json:"sourceId,omitempty"`
	TerminalID  string    `json:"terminalId,omitempty"`
	MimeType    string    `json:"mimeType"`
	ImageBase64 string    `json:"imageBase64"`
	CapturedAt  time.Time `json:"capturedAt"`
	RequestID   string    `json:"requestId,omitempty"`
}

// --- agent -> relay payloads ---

type AgentTerminalListPayload struct {
	Terminals []TerminalSummary `json:"terminals"`
}

type AgentTerminalOutputPayload struct {
	TerminalID string    `json:"terminalId"`
	Chunk      string    `json:"chunk"`
	At         time.Time `json:"at"`
}

type AgentCaptureSourcesPayload struct {
	RequestID string          `json:"requestId,omitempty"`
	Sources   []CaptureSource `json:"sources"`
}

type AgentCommandResultPayload struct {
	RequestID      string `json:"requestId"`
	Output         string `json:"output"`
	Progress       bool   `json:"progress,omitempty"`
	ProgressSource string `json:"progressSource,omitempty"`
}

type AgentErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// --- client -> relay payloads ---

type ClientHelloPayload struct {
	ClientType string `json:"clientType"`
}

// ClientCommandPayload carries every client command kind as one flat
// object selected by "command", with the fields of the other kinds left
// empty (most are omitempty). The relay decodes it and re-encodes it for
// the agent; only the gateway and CLI viewer construct these directly,
// so a flat struct keeps decoding simple without a second layer of
// tagged-union boilerplate.
type ClientCommandPayload struct {
	RequestID string `json:"requestId,omitempty"`
	Command   string `json:"command"`

	// terminal.create
	Title string `json:"title,omitempty"`
	Cwd   string `json:"cwd,omitempty"`

	// terminal.close / terminal.input / terminal.snapshot
	TerminalID string `json:"terminalId,omitempty"`
	Data       string `json:"data,omitempty"`

	// screen.capture
	Source   string `json:"source,omitempty"`
	SourceID string `json:"sourceId,omitempty"`

	// tfclaw.command
	Text       string `json:"text,omitempty"`
	SessionKey string `json:"sessionKey,omitempty"`
}

type ClientCommandEnvelope struct {
	RequestID string               `json:"requestId,omitempty"`
	Payload   ClientCommandPayload `json:"payload"`
}

// --- relay -> * payloads ---

type RelayStatePayload struct {
	Agent     *AgentDescriptor            `json:"agent,omitempty"`
	Terminals []TerminalSummary           `json:"terminals"`
	Snapshots map[string]TerminalSnapshot `json:"snapshots"`
}

type RelayAckPayload struct {
	RequestID string `json:"requestId,omitempty"`
	OK        bool   `json:"ok"`
	Message   string `json:"message,omitempty"`
}
