package router

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCaptureMenuExpired(t *testing.T) {
	var nilMenu *CaptureMenu
	assert.True(t, nilMenu.expired())

	live := &CaptureMenu{ExpiresAt: time.Now().Add(time.Minute)}
	assert.False(t, live.expired())

	stale := &CaptureMenu{ExpiresAt: time.Now().Add(-time.Minute)}
	assert.True(t, stale.expired())
}

func TestStoreWithCreatesOnFirstUse(t *testing.T) {
	s := newStore(200, 0, StreamAuto)
	var mode string
	s.with("chat1", func(st *ChatState) { mode = st.Mode })
	assert.Equal(t, ModeControl, mode)
}

func TestStoreWithPersistsMutations(t *testing.T) {
	s := newStore(200, 0, StreamAuto)
	s.with("chat1", func(st *ChatState) { st.Mode = ModePassthrough })

	var mode string
	s.with("chat1", func(st *ChatState) { mode = st.Mode })
	assert.Equal(t, ModePassthrough, mode)
}

func TestStoreWithSerializesConcurrentMutation(t *testing.T) {
	s := newStore(200, 0, StreamAuto)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.with("chat1", func(st *ChatState) {
				st.ActiveRequestID = st.ActiveRequestID + "x"
			})
		}(i)
	}
	wg.Wait()

	var got string
	s.with("chat1", func(st *ChatState) { got = st.ActiveRequestID })
	assert.Len(t, got, 100, "every concurrent mutation must be applied exactly once under the lock")
}
