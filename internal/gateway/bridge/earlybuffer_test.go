package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfclaw/tfclaw/internal/wire"
)

func TestEarlyBufferTakeReturnsInOrder(t *testing.T) {
	b := NewEarlyCommandBuffer(time.Minute)
	b.bufferProgress("req1", wire.AgentCommandResultPayload{Output: "one"})
	b.bufferProgress("req1", wire.AgentCommandResultPayload{Output: "two"})
	b.bufferResult("req1", wire.AgentCommandResultPayload{Output: "final"})

	events := b.Take("req1")
	require.Len(t, events, 3)
	assert.Equal(t, "one", events[0].progress.Output)
	assert.Equal(t, "two", events[1].progress.Output)
	assert.Equal(t, "final", events[2].result.Output)
}

func TestEarlyBufferTakeRemovesEntries(t *testing.T) {
	b := NewEarlyCommandBuffer(time.Minute)
	b.bufferError("req1", wire.AgentErrorPayload{Message: "boom"})

	first := b.Take("req1")
	require.Len(t, first, 1)

	second := b.Take("req1")
	assert.Empty(t, second)
}

func TestEarlyBufferUnknownRequestIsEmpty(t *testing.T) {
	b := NewEarlyCommandBuffer(time.Minute)
	assert.Empty(t, b.Take("nope"))
}

func TestEarlyBufferExpiresOldEntries(t *testing.T) {
	b := NewEarlyCommandBuffer(5 * time.Millisecond)
	b.bufferCaptureSources("req1", wire.AgentCaptureSourcesPayload{})
	time.Sleep(20 * time.Millisecond)

	// A second buffer call runs gcLocked, which should have dropped the
	// now-expired entry from req1 before "req2" is ever added.
	b.bufferError("req2", wire.AgentErrorPayload{})

	assert.Empty(t, b.Take("req1"))
	assert.Len(t, b.Take("req2"), 1)
}

func TestEarlyBufferKeepsDifferentRequestsSeparate(t *testing.T) {
	b := NewEarlyCommandBuffer(time.Minute)
	b.bufferResult("req1", wire.AgentCommandResultPayload{Output: "a"})
	b.bufferResult("req2", wire.AgentCommandResultPayload{Output: "b"})

	assert.Equal(t, "a", b.Take("req1")[0].result.Output)
	assert.Equal(t, "b", b.Take("req2")[0].result.Output)
}
