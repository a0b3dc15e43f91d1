package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tfclaw/tfclaw/internal/wire"
)

type fakeSocket struct {
	ip  string
	out [][]byte
}

func (f *fakeSocket) Send(frame []byte)         { f.out = append(f.out, frame) }
func (f *fakeSocket) Close(code int, reason string) {}
func (f *fakeSocket) RemoteIP() string          { return f.ip }

func TestSetAgentReturnsPrevious(t *testing.T) {
	s := New("tok", 1000)
	a1 := &fakeSocket{ip: "1.1.1.1"}
	a2 := &fakeSocket{ip: "2.2.2.2"}

	assert.Nil(t, s.SetAgent(a1, a1.ip))
	prev := s.SetAgent(a2, a2.ip)
	assert.Same(t, a1, prev)
	assert.Same(t, a2, s.Agent())
}

func TestClearAgentOnlyIfCurrent(t *testing.T) {
	s := New("tok", 1000)
	a1 := &fakeSocket{ip: "1.1.1.1"}
	a2 := &fakeSocket{ip: "2.2.2.2"}
	s.SetAgent(a1, a1.ip)

	assert.False(t, s.ClearAgent(a2), "clearing a stale socket must not remove the current agent")
	assert.Same(t, a1, s.Agent())

	assert.True(t, s.ClearAgent(a1))
	assert.Nil(t, s.Agent())
}

func TestClientsAndIsEmpty(t *testing.T) {
	s := New("tok", 1000)
	assert.True(t, s.IsEmpty())

	c1 := &fakeSocket{}
	assert.Equal(t, 1, s.AddClient(c1))
	assert.False(t, s.IsEmpty())

	s.RemoveClient(c1)
	assert.True(t, s.IsEmpty())
}

func TestBroadcastReachesAllClients(t *testing.T) {
	s := New("tok", 1000)
	c1 := &fakeSocket{}
	c2 := &fakeSocket{}
	s.AddClient(c1)
	s.AddClient(c2)

	s.Broadcast([]byte("hello"))

	assert.Equal(t, [][]byte{[]byte("hello")}, c1.out)
	assert.Equal(t, [][]byte{[]byte("hello")}, c2.out)
}

func TestTouchTerminalOutputCreatesPlaceholder(t *testing.T) {
	s := New("tok", 1000)
	now := time.Now()
	s.TouchTerminalOutput("t1", now)

	st := s.State()
	assert.Len(t, st.Terminals, 1)
	assert.Equal(t, "t1", st.Terminals[0].TerminalID)
	assert.True(t, st.Terminals[0].IsActive)
}

func TestAppendSnapshotAndState(t *testing.T) {
	s := New("tok", 1000)
	s.ReplaceTerminals([]wire.TerminalSummary{{TerminalID: "t1", Title: "bash"}})
	s.AppendSnapshot("t1", "hello ")
	s.AppendSnapshot("t1", "world")

	st := s.State()
	assert.Equal(t, "hello world", st.Snapshots["t1"].Output)
}

func TestTerminalStateIsScopedToOneTerminal(t *testing.T) {
	s := New("tok", 1000)
	s.ReplaceTerminals([]wire.TerminalSummary{
		{TerminalID: "t1", Title: "bash"},
		{TerminalID: "t2", Title: "vim"},
	})
	s.AppendSnapshot("t1", "one")
	s.AppendSnapshot("t2", "two")

	st := s.TerminalState("t1")
	assert.Len(t, st.Terminals, 1)
	assert.Equal(t, "t1", st.Terminals[0].TerminalID)
	assert.Equal(t, "one", st.Snapshots["t1"].Output)
	_, ok := st.Snapshots["t2"]
	assert.False(t, ok)
}

func TestRegistryGetOrCreate(t *testing.T) {
	r := NewRegistry(1000)

	s1, created1 := r.GetOrCreate("tok")
	assert.True(t, created1)

	s2, created2 := r.GetOrCreate("tok")
	assert.False(t, created2)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryDeleteIfEmpty(t *testing.T) {
	r := NewRegistry(1000)
	s, _ := r.GetOrCreate("tok")
	c := &fakeSocket{}
	s.AddClient(c)

	assert.False(t, r.DeleteIfEmpty("tok"), "session with a client attached must not be deleted")

	s.RemoveClient(c)
	assert.True(t, r.DeleteIfEmpty("tok"))
	assert.Equal(t, 0, r.Len())
}
