package relayclient

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfclaw/tfclaw/internal/wire"
)

type fakeCapture struct {
	sources  []wire.CaptureSource
	listErr  error
	shot     wire.ScreenCapture
	grabErr  error
	grabbed  bool
	grabArgs [2]string
	listed   bool
}

func (f *fakeCapture) ListSources(ctx context.Context) ([]wire.CaptureSource, error) {
	f.listed = true
	return f.sources, f.listErr
}

func (f *fakeCapture) Grab(ctx context.Context, source, sourceID string) (wire.ScreenCapture, error) {
	f.grabbed = true
	f.grabArgs = [2]string{source, sourceID}
	return f.shot, f.grabErr
}

func TestHandleCommandTerminalCreateUsesDefaultCwd(t *testing.T) {
	c := newTestClient(t)
	c.handleCommand(context.Background(), wire.ClientCommandPayload{
		Command: wire.CommandTerminalCreate, Title: "shell", RequestID: "r1",
	})

	ids := c.mgr.Terminals()
	require.Len(t, ids, 1)
	infos := c.mgr.TerminalInfos()
	require.Len(t, infos, 1)
	assert.Equal(t, c.cfg.DefaultCwd, infos[0].Cwd)
}

func TestHandleCommandTerminalCreateHonorsExplicitCwd(t *testing.T) {
	c := newTestClient(t)
	// The driver validates the working directory exists, so the explicit
	// cwd must be a real directory distinct from the configured default.
	explicit := t.TempDir()
	c.handleCommand(context.Background(), wire.ClientCommandPayload{
		Command: wire.CommandTerminalCreate, Title: "shell", Cwd: explicit, RequestID: "r1",
	})

	ids := c.mgr.Terminals()
	require.Len(t, ids, 1)
	infos := c.mgr.TerminalInfos()
	require.Len(t, infos, 1)
	assert.Equal(t, explicit, infos[0].Cwd)
}

func TestHandleCommandTerminalCloseUnknownIsNoop(t *testing.T) {
	c := newTestClient(t)
	// CloseTerminal treats an unknown terminalID as a no-op (nil error), so
	// this exercises the success path of the close branch with no conn
	// attached; what matters is it doesn't panic and leaves no terminal.
	c.handleCommand(context.Background(), wire.ClientCommandPayload{
		Command: wire.CommandTerminalClose, TerminalID: "nope", RequestID: "r1",
	})
	assert.Empty(t, c.mgr.Terminals())
}

func TestHandleCommandTerminalInputDispatchesToDriver(t *testing.T) {
	c := newTestClient(t)
	require.NoError(t, c.mgr.CreateTerminal(context.Background(), "t1", "shell", ""))

	c.handleCommand(context.Background(), wire.ClientCommandPayload{
		Command: wire.CommandTerminalInput, TerminalID: "t1", Data: "echo hi\n",
	})
	// SendInput doesn't surface a result frame; absence of a panic and a
	// terminal that's still registered is the observable contract here.
	assert.Contains(t, c.mgr.Terminals(), "t1")
}

func TestHandleCommandTerminalSnapshotKeepsTerminal(t *testing.T) {
	c := newTestClient(t)
	require.NoError(t, c.mgr.CreateTerminal(context.Background(), "t1", "shell", ""))

	c.handleCommand(context.Background(), wire.ClientCommandPayload{
		Command: wire.CommandTerminalSnapshot, TerminalID: "t1", RequestID: "r1",
	})
	// No assertion beyond "doesn't panic and terminal survives" is possible
	// without a connected socket to observe the emitted frame; the poller
	// baseline update is covered directly in tmuxdriver's own tests.
	assert.Contains(t, c.mgr.Terminals(), "t1")
}

func TestHandleCommandCaptureListUsesProvider(t *testing.T) {
	c := newTestClient(t)
	fc := &fakeCapture{sources: []wire.CaptureSource{{Source: "screen", SourceID: "0"}}}
	c.capture = fc

	c.handleCommand(context.Background(), wire.ClientCommandPayload{Command: wire.CommandCaptureList, RequestID: "r1"})
	// send() fails silently with no conn, so the outbound frame can't be
	// observed; the fake records that handleCommand called ListSources.
	assert.True(t, fc.listed)
	sources, err := fc.ListSources(context.Background())
	require.NoError(t, err)
	assert.Len(t, sources, 1)
}

func TestHandleCommandCaptureListProviderError(t *testing.T) {
	c := newTestClient(t)
	c.capture = &fakeCapture{listErr: fmt.Errorf("backend unavailable")}

	assert.NotPanics(t, func() {
		c.handleCommand(context.Background(), wire.ClientCommandPayload{Command: wire.CommandCaptureList, RequestID: "r1"})
	})
}

func TestHandleCommandScreenCaptureGrabsFromProvider(t *testing.T) {
	c := newTestClient(t)
	fc := &fakeCapture{shot: wire.ScreenCapture{MimeType: "image/png"}}
	c.capture = fc

	c.handleCommand(context.Background(), wire.ClientCommandPayload{
		Command: wire.CommandScreenCapture, Source: "screen", SourceID: "0", RequestID: "r1",
	})

	assert.True(t, fc.grabbed)
	assert.Equal(t, [2]string{"screen", "0"}, fc.grabArgs)
}

func TestHandleCommandUnknownDoesNotPanic(t *testing.T) {
	c := newTestClient(t)
	assert.NotPanics(t, func() {
		c.handleCommand(context.Background(), wire.ClientCommandPayload{Command: "bogus.command", RequestID: "r1"})
	})
}

func TestHandleFrameIgnoresRelayStateAndAck(t *testing.T) {
	c := newTestClient(t)
	frame, err := wire.Encode(wire.TypeRelayState, wire.RelayStatePayload{})
	require.NoError(t, err)
	assert.NotPanics(t, func() { c.handleFrame(context.Background(), frame) })
}

func TestHandleFrameDispatchesClientCommand(t *testing.T) {
	c := newTestClient(t)
	frame, err := wire.Encode(wire.TypeClientCommand, wire.ClientCommandPayload{
		Command: wire.CommandTerminalCreate, Title: "shell", RequestID: "r1",
	})
	require.NoError(t, err)

	c.handleFrame(context.Background(), frame)
	assert.Len(t, c.mgr.Terminals(), 1)
}

func TestPublishTerminalListWithoutConnReturnsError(t *testing.T) {
	c := newTestClient(t)
	require.NoError(t, c.mgr.CreateTerminal(context.Background(), "t1", "shell", ""))
	err := c.publishTerminalList(context.Background())
	assert.Error(t, err, "send must fail when no relay connection is attached")
}

func TestBuildDialURLSetsAgentRole(t *testing.T) {
	u, err := buildDialURL("ws://example.com/ws", "tok123")
	require.NoError(t, err)
	assert.Contains(t, u, "role=agent")
	assert.Contains(t, u, "token=tok123")
}
