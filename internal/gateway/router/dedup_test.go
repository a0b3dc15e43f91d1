package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupSeenBeforeWithinWindow(t *testing.T) {
	d := newDedup(time.Minute)
	assert.False(t, d.SeenBefore("chat1", "msg1"))
	assert.True(t, d.SeenBefore("chat1", "msg1"))
}

func TestDedupScopedPerChat(t *testing.T) {
	d := newDedup(time.Minute)
	assert.False(t, d.SeenBefore("chat1", "msg1"))
	assert.False(t, d.SeenBefore("chat2", "msg1"), "the same message id in a different chat is not a duplicate")
}

func TestDedupExpiresOutsideWindow(t *testing.T) {
	d := newDedup(10 * time.Millisecond)
	assert.False(t, d.SeenBefore("chat1", "msg1"))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, d.SeenBefore("chat1", "msg1"), "an entry older than the window is no longer a duplicate")
}
