// Package chatplatform is the gateway's boundary to whatever chat
// service a human is actually typing into. The router and progress
// coalescer depend only on the Platform interface; Discord is the one
// concrete implementation wired in here.
package chatplatform

import "context"

// InboundMessage is one message event delivered by the platform.
type InboundMessage struct {
	MessageID string
	ChatID    string
	UserID    string
	Text      string
}

// Platform is everything the gateway needs from a chat service: posting,
// deleting, and reacting to messages, plus a stream of inbound ones.
type Platform interface {
	// Send posts body to chatID and returns the new message's id.
	Send(ctx context.Context, chatID, body string) (messageID string, err error)
	// Delete removes a previously sent message. Implementations should
	// treat "already gone" as success, since the progress coalescer
	// deletes on a timer race against the platform's own retention.
	Delete(ctx context.Context, chatID, messageID string) error
	// React adds a lightweight acknowledgement (e.g. "on it") to an
	// inbound message, best-effort.
	React(ctx context.Context, chatID, messageID, emoji string) error
	// Inbound returns the channel of inbound messages. Run must be
	// called first to start populating it.
	Inbound() <-chan InboundMessage
	// Run connects to the platform and blocks until ctx is canceled or
	// the connection fails.
	Run(ctx context.Context) error
}
