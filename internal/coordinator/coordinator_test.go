package coordinator

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/beamdrop/beamdrop/internal/config"
	"github.com/beamdrop/beamdrop/internal/history"
	"github.com/beamdrop/beamdrop/internal/names"
	"github.com/beamdrop/beamdrop/internal/session"
	"github.com/beamdrop/beamdrop/pkg/protocol"
)

// recorder captures outbound envelopes in place of the connection hub.
type recorder struct {
	mu   sync.Mutex
	sent []sentEnvelope
}

type sentEnvelope struct {
	SessionID string
	To        string // "" for broadcasts
	Except    string // set for BroadcastExcept
	Env       protocol.Envelope
}

func (r *recorder) SendTo(sessionID, peerID string, env protocol.Envelope) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentEnvelope{SessionID: sessionID, To: peerID, Env: env})
	return true
}

func (r *recorder) Broadcast(sessionID string, env protocol.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentEnvelope{SessionID: sessionID, Env: env})
}

func (r *recorder) BroadcastExcept(sessionID, exceptPeerID string, env protocol.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentEnvelope{SessionID: sessionID, Except: exceptPeerID, Env: env})
}

func (r *recorder) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

// sentTo returns the events delivered directly to a peer, in order.
func (r *recorder) sentTo(peerID string) []protocol.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []protocol.Envelope
	for _, s := range r.sent {
		if s.To == peerID {
			out = append(out, s.Env)
		}
	}
	return out
}

// lastTo returns the most recent direct event of the given kind, or nil.
func (r *recorder) lastTo(peerID, event string) *protocol.Envelope {
	envs := r.sentTo(peerID)
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Event == event {
			return &envs[i]
		}
	}
	return nil
}

// firstBroadcast returns the earliest broadcast of the given event, or nil.
func (r *recorder) firstBroadcast(event string) *protocol.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sent {
		if s.To == "" && s.Env.Event == event {
			return &s.Env
		}
	}
	return nil
}

// broadcastCount counts broadcasts (including except-broadcasts) of an event.
func (r *recorder) broadcastCount(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.To == "" && s.Env.Event == event {
			n++
		}
	}
	return n
}

// waitForBroadcast polls until the event has been broadcast or fails.
func (r *recorder) waitForBroadcast(t *testing.T, event string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.broadcastCount(event) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for broadcast %q", event)
}

// waitForDirect polls until peerID has received the event directly.
func (r *recorder) waitForDirect(t *testing.T, peerID, event string) protocol.Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if env := r.lastTo(peerID, event); env != nil {
			return *env
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q to %s", event, peerID)
	return protocol.Envelope{}
}

func testConfig(t *testing.T) config.ServerConfig {
	t.Helper()
	dir := t.TempDir()
	return config.ServerConfig{
		UploadsDir:             dir,
		NamesFile:              filepath.Join(dir, "names.json"),
		PinTTL:                 5 * time.Minute,
		GraceWindow:            60 * time.Millisecond,
		GraceCap:               240 * time.Millisecond,
		ResponseWindow:         100 * time.Millisecond,
		DisconnectGrace:        60 * time.Millisecond,
		SweepInterval:          time.Hour, // sweeps are invoked explicitly
		MaxConcurrentDownloads: 3,
		RecentTransfersCap:     100,
	}
}

func newTestCoordinator(t *testing.T) (*Coordinator, *recorder) {
	t.Helper()
	cfg := testConfig(t)
	store, err := names.Open(cfg.NamesFile)
	require.NoError(t, err)
	rec := &recorder{}
	c := New(cfg, zerolog.Nop(), session.NewRegistry(cfg.PinTTL), rec, store, history.NewStore(cfg.RecentTransfersCap))
	return c, rec
}

// joinPeer attaches a peer to the session through the normal join path.
func joinPeer(t *testing.T, c *Coordinator, sessionID, peerID, role, page string) {
	t.Helper()
	c.Join("conn-"+peerID, protocol.JoinSession{
		SessionID:  sessionID,
		PeerID:     peerID,
		Role:       role,
		DeviceName: "dev-" + peerID,
		Page:       page,
	})
}

// newSessionWithPeers creates a session with a host on main plus n clients
// on main.
func newSessionWithPeers(t *testing.T, c *Coordinator, n int) *session.Session {
	t.Helper()
	s := c.GetOrCreateCurrent(false, false)
	joinPeer(t, c, s.ID, "host", session.RoleHost, session.PageMain)
	for i := 0; i < n; i++ {
		joinPeer(t, c, s.ID, clientID(i), session.RoleClient, session.PageMain)
	}
	return s
}

func clientID(i int) string {
	return string(rune('a'+i)) + "-client"
}

func decodeAs[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()
	var out T
	require.NoError(t, env.DecodePayload(&out))
	return out
}
