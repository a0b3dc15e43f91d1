package tmuxdriver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollOneEmitsAppendDelta(t *testing.T) {
	f := newFakeTmux()
	m := NewManager(f.Runner(), "tfclaw", nil, 2000)
	require.NoError(t, m.CreateTerminal(context.Background(), "t1", "shell", ""))
	f.captures["tfclaw:t1"] = "hello"

	var got string
	p := NewPoller(m, time.Second, 0, func(terminalID, chunk string, _ time.Time) {
		got = chunk
	}, nil, nil)
	p.pollOne(context.Background(), "t1")
	assert.Equal(t, "hello", got)

	f.captures["tfclaw:t1"] = "hello world"
	p.pollOne(context.Background(), "t1")
	assert.Equal(t, " world", got)
}

func TestPollOneEmitsRedrawSentinelOnNonAppend(t *testing.T) {
	f := newFakeTmux()
	m := NewManager(f.Runner(), "tfclaw", nil, 2000)
	require.NoError(t, m.CreateTerminal(context.Background(), "t1", "shell", ""))
	f.captures["tfclaw:t1"] = "first screen"

	var got string
	p := NewPoller(m, time.Second, 0, func(terminalID, chunk string, _ time.Time) {
		got = chunk
	}, nil, nil)
	p.pollOne(context.Background(), "t1")

	f.captures["tfclaw:t1"] = "totally different screen"
	p.pollOne(context.Background(), "t1")

	assert.Equal(t, "\n"+redrawSentinel+"\ntotally different screen\n", got)
}

func TestPollOneSkipsIdenticalCapture(t *testing.T) {
	f := newFakeTmux()
	m := NewManager(f.Runner(), "tfclaw", nil, 2000)
	require.NoError(t, m.CreateTerminal(context.Background(), "t1", "shell", ""))
	f.captures["tfclaw:t1"] = "same"

	calls := 0
	p := NewPoller(m, time.Second, 0, func(terminalID, chunk string, _ time.Time) {
		calls++
	}, nil, nil)
	p.pollOne(context.Background(), "t1")
	p.pollOne(context.Background(), "t1")

	assert.Equal(t, 1, calls)
}

func TestSetLastCaptureSuppressesNextDelta(t *testing.T) {
	f := newFakeTmux()
	m := NewManager(f.Runner(), "tfclaw", nil, 2000)
	require.NoError(t, m.CreateTerminal(context.Background(), "t1", "shell", ""))
	f.captures["tfclaw:t1"] = "resynced pane contents"

	m.SetLastCapture("t1", "resynced pane contents")

	calls := 0
	p := NewPoller(m, time.Second, 0, func(terminalID, chunk string, _ time.Time) {
		calls++
	}, nil, nil)
	p.pollOne(context.Background(), "t1")

	assert.Equal(t, 0, calls, "resync baseline already matches capture, no delta should fire")
}

func TestPollOneReportsDeadPaneAndMarksInactive(t *testing.T) {
	failing := func(ctx context.Context, args ...string) (string, error) {
		if len(args) > 0 && args[0] == "capture-pane" {
			return "", assertError{msg: "can't find pane: t1"}
		}
		return "", nil
	}
	m := NewManager(failing, "tfclaw", nil, 2000)
	require.NoError(t, m.CreateTerminal(context.Background(), "t1", "shell", ""))

	var dead, reason string
	p := NewPoller(m, time.Second, 0, nil, func(terminalID, r string) {
		dead = terminalID
		reason = r
	}, nil)
	p.pollOne(context.Background(), "t1")

	assert.Equal(t, "t1", dead)
	assert.Equal(t, "pane not found", reason)
	assert.True(t, m.HasTerminal("t1"), "a dead terminal stays tracked (isActive=false) until explicitly closed")

	infos := m.TerminalInfos()
	require.Len(t, infos, 1)
	assert.False(t, infos[0].IsActive)

	assert.Empty(t, m.ActiveTerminals(), "a dead terminal drops out of the active sweep set")
}

func TestPollOneThrottlesTransientCaptureErrors(t *testing.T) {
	failing := func(ctx context.Context, args ...string) (string, error) {
		if len(args) > 0 && args[0] == "capture-pane" {
			return "", assertError{msg: "some transient tmux hiccup"}
		}
		return "", nil
	}
	m := NewManager(failing, "tfclaw", nil, 2000)
	require.NoError(t, m.CreateTerminal(context.Background(), "t1", "shell", ""))

	calls := 0
	p := NewPoller(m, time.Second, 0, nil, nil, func(terminalID, message string) {
		calls++
	})
	p.pollOne(context.Background(), "t1")
	p.pollOne(context.Background(), "t1")
	p.pollOne(context.Background(), "t1")

	assert.Equal(t, 1, calls, "repeated transient errors within the throttle window report once")
	assert.True(t, m.HasTerminal("t1"), "a transient error never marks the terminal inactive")
	assert.Contains(t, m.ActiveTerminals(), "t1")
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }

func TestMaxDeltaCharsTailCaps(t *testing.T) {
	f := newFakeTmux()
	m := NewManager(f.Runner(), "tfclaw", nil, 2000)
	require.NoError(t, m.CreateTerminal(context.Background(), "t1", "shell", ""))
	f.captures["tfclaw:t1"] = "abcdefghij"

	var got string
	p := NewPoller(m, time.Second, 4, func(terminalID, chunk string, _ time.Time) {
		got = chunk
	}, nil, nil)
	p.pollOne(context.Background(), "t1")
	assert.Equal(t, "ghij", got)
}
