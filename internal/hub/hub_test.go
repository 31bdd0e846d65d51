package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/beamdrop/beamdrop/pkg/protocol"
)

type sink struct {
	mu   sync.Mutex
	envs []protocol.Envelope
}

func (s *sink) send(env protocol.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envs = append(s.envs, env)
	return nil
}

func (s *sink) waitFor(t *testing.T, n int) []protocol.Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		if len(s.envs) >= n {
			out := append([]protocol.Envelope(nil), s.envs...)
			s.mu.Unlock()
			return out
		}
		s.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d envelopes", n)
	return nil
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.envs)
}

func env(t *testing.T, event string) protocol.Envelope {
	t.Helper()
	e, err := protocol.NewEnvelope(event, nil)
	require.NoError(t, err)
	return e
}

func TestHub_SendTo(t *testing.T) {
	h := NewHub()
	s := &sink{}

	remove := h.Add("sess1", Conn{PeerID: "p1", ConnID: "c1"}, s.send, nil)
	defer remove()

	require.True(t, h.SendTo("sess1", "p1", env(t, "ping")))
	got := s.waitFor(t, 1)
	require.Equal(t, "ping", got[0].Event)

	require.False(t, h.SendTo("sess1", "unknown", env(t, "ping")))
	require.False(t, h.SendTo("other", "p1", env(t, "ping")))
}

func TestHub_BroadcastExcept(t *testing.T) {
	h := NewHub()
	s1, s2, s3 := &sink{}, &sink{}, &sink{}

	r1 := h.Add("sess1", Conn{PeerID: "p1", ConnID: "c1"}, s1.send, nil)
	r2 := h.Add("sess1", Conn{PeerID: "p2", ConnID: "c2"}, s2.send, nil)
	r3 := h.Add("sess2", Conn{PeerID: "p3", ConnID: "c3"}, s3.send, nil)
	defer r1()
	defer r2()
	defer r3()

	h.BroadcastExcept("sess1", "p1", env(t, "note"))

	s2.waitFor(t, 1)
	time.Sleep(50 * time.Millisecond)
	require.Zero(t, s1.count(), "excluded peer should not receive")
	require.Zero(t, s3.count(), "other session should not receive")

	h.Broadcast("sess1", env(t, "note"))
	s1.waitFor(t, 1)
	s2.waitFor(t, 2)
}

func TestHub_LastWriteWins(t *testing.T) {
	h := NewHub()
	old, fresh := &sink{}, &sink{}

	closed := make(chan struct{})
	h.Add("sess1", Conn{PeerID: "p1", ConnID: "c1"}, old.send, func() { close(closed) })
	removeNew := h.Add("sess1", Conn{PeerID: "p1", ConnID: "c2"}, fresh.send, nil)
	defer removeNew()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("replaced connection was not closed")
	}

	require.True(t, h.SendTo("sess1", "p1", env(t, "after")))
	got := fresh.waitFor(t, 1)
	require.Equal(t, "after", got[0].Event)
	require.Zero(t, old.count())
}

func TestHub_RepeatJoinSameConnReplacesWriter(t *testing.T) {
	h := NewHub()
	old, fresh := &sink{}, &sink{}

	transportClosed := false
	removeOld := h.Add("sess1", Conn{PeerID: "p1", ConnID: "c1"}, old.send, func() { transportClosed = true })
	removeNew := h.Add("sess1", Conn{PeerID: "p1", ConnID: "c1"}, fresh.send, nil)
	defer removeNew()

	require.False(t, transportClosed, "same socket must stay open on a repeat join")

	require.True(t, h.SendTo("sess1", "p1", env(t, "after")))
	fresh.waitFor(t, 1)
	require.Zero(t, old.count(), "superseded writer must not receive")

	// The first registration's deferred remove no longer owns the entry.
	removeOld()
	require.True(t, h.Connected("sess1", "p1"))
	require.True(t, h.SendTo("sess1", "p1", env(t, "still-here")))
	fresh.waitFor(t, 2)
}

func TestHub_StaleRemoveIsNoop(t *testing.T) {
	h := NewHub()
	old, fresh := &sink{}, &sink{}

	removeOld := h.Add("sess1", Conn{PeerID: "p1", ConnID: "c1"}, old.send, nil)
	removeNew := h.Add("sess1", Conn{PeerID: "p1", ConnID: "c2"}, fresh.send, nil)
	defer removeNew()

	// The old connection's deferred remove fires after the reconnect; it must
	// not tear down the replacement.
	removeOld()

	require.True(t, h.Connected("sess1", "p1"))
	require.True(t, h.SendTo("sess1", "p1", env(t, "still-here")))
	fresh.waitFor(t, 1)
}

func TestHub_RemoveCleansUpSession(t *testing.T) {
	h := NewHub()
	s := &sink{}

	remove := h.Add("sess1", Conn{PeerID: "p1", ConnID: "c1"}, s.send, nil)
	require.True(t, h.Connected("sess1", "p1"))

	remove()
	require.False(t, h.Connected("sess1", "p1"))
	require.False(t, h.SendTo("sess1", "p1", env(t, "gone")))
}

func TestHub_CloseSession(t *testing.T) {
	h := NewHub()
	s := &sink{}

	closed := make(chan struct{})
	remove := h.Add("sess1", Conn{PeerID: "p1", ConnID: "c1"}, s.send, func() { close(closed) })
	defer remove()

	h.CloseSession("sess1")
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("CloseSession did not close the connection")
	}
}
