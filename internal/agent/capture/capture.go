// Package capture defines the agent-side contract for screen/window
// capture backends. spec.md §1 lists the actual capture backend as an
// out-of-scope external collaborator ("named interfaces only"); this
// package is that interface plus a default no-op provider for platforms
// where no backend is wired in.
package capture

import (
	"context"
	"fmt"

	"github.com/tfclaw/tfclaw/internal/wire"
)

// Provider enumerates and grabs screen/window capture sources. A real
// backend (platform screenshot APIs, a window-manager integration) is
// expected to be supplied by the deployment, not by this package.
type Provider interface {
	// ListSources returns the currently available capture sources.
	ListSources(ctx context.Context) ([]wire.CaptureSource, error)
	// Grab captures one source and returns it base64-encoded.
	Grab(ctx context.Context, source, sourceID string) (wire.ScreenCapture, error)
}

// Unsupported is a Provider that has no capture sources, for agents
// running without a capture backend wired in.
type Unsupported struct{}

func (Unsupported) ListSources(ctx context.Context) ([]wire.CaptureSource, error) {
	return nil, nil
}

func (Unsupported) Grab(ctx context.Context, source, sourceID string) (wire.ScreenCapture, error) {
	return wire.ScreenCapture{}, fmt.Errorf("capture: no backend configured")
}

var _ Provider = Unsupported{}
