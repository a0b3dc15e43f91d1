// Package id generates the two identifier shapes this system uses:
// UUIDs for terminal sessions (spec.md §3 says "terminalId (UUID)") and
// short nanoids for client/gateway-originated requestIds, which the
// spec does not require to be UUIDs.
package id

import (
	"fmt"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// NewTerminalID returns a new terminal identifier.
func NewTerminalID() string {
	return uuid.NewString()
}

const requestIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewRequestID returns a 24-character nanoid for a client.command or
// tfclaw.command requestId.
func NewRequestID() string {
	gen, err := gonanoid.Generate(requestIDAlphabet, 24)
	if err != nil {
		panic(fmt.Sprintf("id: generate request id: %v", err))
	}
	return gen
}
