package relayclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfclaw/tfclaw/internal/agent/config"
	"github.com/tfclaw/tfclaw/internal/agent/tmuxdriver"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	run := func(ctx context.Context, args ...string) (string, error) { return "", nil }
	mgr := tmuxdriver.NewManager(run, "tfclaw", nil, 2000)
	cfg := &config.Config{DefaultCwd: t.TempDir()}
	return New(cfg, mgr, nil, nil)
}

func TestDispatchTextHelp(t *testing.T) {
	c := newTestClient(t)
	sess := &textSession{streamMode: "auto"}
	out, err := c.dispatchText(context.Background(), sess, "help")
	require.NoError(t, err)
	assert.Contains(t, out, "Commands:")
}

func TestDispatchTextNewSetsTarget(t *testing.T) {
	c := newTestClient(t)
	sess := &textSession{streamMode: "auto"}
	out, err := c.dispatchText(context.Background(), sess, "new myshell")
	require.NoError(t, err)
	assert.Contains(t, out, "Created terminal")
	assert.NotEmpty(t, sess.target)
}

func TestDispatchTextUseAndState(t *testing.T) {
	c := newTestClient(t)
	sess := &textSession{streamMode: "auto"}
	_, err := c.dispatchText(context.Background(), sess, "new")
	require.NoError(t, err)

	out, err := c.dispatchText(context.Background(), sess, "use 1")
	require.NoError(t, err)
	assert.Contains(t, out, "Target set to")

	state, err := c.dispatchText(context.Background(), sess, "state")
	require.NoError(t, err)
	assert.Contains(t, state, sess.target)
}

func TestDispatchTextAttachEnablesPassthrough(t *testing.T) {
	c := newTestClient(t)
	sess := &textSession{streamMode: "auto"}
	_, err := c.dispatchText(context.Background(), sess, "new")
	require.NoError(t, err)

	out, err := c.dispatchText(context.Background(), sess, "attach")
	require.NoError(t, err)
	assert.True(t, sess.passthrough)
	assert.Contains(t, out, "passthrough enabled.")
	assert.Contains(t, out, "[tmux "+sess.target+"]")
}

func TestDispatchTextExitDisablesPassthrough(t *testing.T) {
	c := newTestClient(t)
	sess := &textSession{streamMode: "auto", passthrough: true, target: "t1"}
	out, err := c.dispatchText(context.Background(), sess, ".exit")
	require.NoError(t, err)
	assert.False(t, sess.passthrough)
	assert.Equal(t, "passthrough disabled.", out)
}

func TestDispatchTextDirectedMessageDoesNotChangeTarget(t *testing.T) {
	c := newTestClient(t)
	sess := &textSession{streamMode: "auto"}
	require.NoError(t, c.mgr.CreateTerminal(context.Background(), "t1", "shell", ""))
	require.NoError(t, c.mgr.CreateTerminal(context.Background(), "t2", "shell", ""))
	sess.target = "t1"

	out, err := c.dispatchText(context.Background(), sess, "t2: echo hi")
	require.NoError(t, err)
	assert.Contains(t, out, "t2")
	assert.Equal(t, "t1", sess.target, "directed message must not change the session's current target")
}

func TestDispatchTextKeyRequiresTarget(t *testing.T) {
	c := newTestClient(t)
	sess := &textSession{streamMode: "auto"}
	_, err := c.dispatchText(context.Background(), sess, "key Enter")
	assert.Error(t, err)
}

func TestDispatchTextListEmpty(t *testing.T) {
	c := newTestClient(t)
	sess := &textSession{streamMode: "auto"}
	out, err := c.dispatchText(context.Background(), sess, "list")
	require.NoError(t, err)
	assert.Equal(t, "No terminals.", out)
}

func TestDispatchTextEmptyErrors(t *testing.T) {
	c := newTestClient(t)
	sess := &textSession{streamMode: "auto"}
	_, err := c.dispatchText(context.Background(), sess, "   ")
	assert.Error(t, err)
}

func TestSplitDirected(t *testing.T) {
	ref, body, ok := splitDirected("t1: hello world")
	assert.True(t, ok)
	assert.Equal(t, "t1", ref)
	assert.Equal(t, "hello world", body)

	_, _, ok = splitDirected("no colon here")
	assert.False(t, ok)

	_, _, ok = splitDirected("has space: body")
	assert.False(t, ok, "a ref containing whitespace isn't a valid directed prefix")
}

func TestWithModeHeader(t *testing.T) {
	assert.Equal(t, "[mode] control\nhi", withModeHeader(&textSession{}, "hi"))
	assert.Equal(t, "[mode] passthrough\nhi", withModeHeader(&textSession{passthrough: true}, "hi"))
}
