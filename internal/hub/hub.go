// Package hub routes protocol envelopes to live peer connections, keyed by
// session and peer id.
package hub

import (
	"sync"
	"time"

	"github.com/beamdrop/beamdrop/pkg/protocol"
)

// Conn identifies one live connection of a peer.
type Conn struct {
	PeerID string
	ConnID string // unique per websocket connection
}

// peerConnection holds a connection and its send channel.
type peerConnection struct {
	conn  Conn
	send  chan protocol.Envelope
	close func() // closes the underlying transport
}

// Hub manages connections per session in a thread-safe manner. Duplicate peer
// ids within a session use last-write-wins: the most recent connection
// replaces any previous one and the replaced transport is closed.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*peerConnection // sessionID -> connID -> connection
	byPeerID map[string]map[string]string          // sessionID -> peerID -> connID
}

// NewHub creates a new connection hub.
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]map[string]*peerConnection),
		byPeerID: make(map[string]map[string]string),
	}
}

// Add registers a connection and returns a remove function. send delivers one
// envelope over the transport; closeConn force-closes the transport and is
// invoked if this connection is later replaced by a reconnect.
func (h *Hub) Add(sessionID string, c Conn, send func(env protocol.Envelope) error, closeConn func()) (remove func()) {
	ch := make(chan protocol.Envelope, 256) // buffered to avoid blocking on slow peers

	pc := &peerConnection{
		conn:  c,
		send:  ch,
		close: closeConn,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for env := range ch {
			if err := send(env); err != nil {
				return
			}
		}
	}()

	h.mu.Lock()
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[string]*peerConnection)
	}
	if h.byPeerID[sessionID] == nil {
		h.byPeerID[sessionID] = make(map[string]string)
	}

	// Last-write-wins: replace any previous connection for this peer id. The
	// superseded send channel is always closed so its writer goroutine stops;
	// the transport is closed only when it is actually a different connection
	// (a repeat join over the same socket keeps it open).
	if oldConnID, exists := h.byPeerID[sessionID][c.PeerID]; exists {
		if oldPC, ok := h.sessions[sessionID][oldConnID]; ok {
			close(oldPC.send)
			if oldConnID != c.ConnID && oldPC.close != nil {
				oldPC.close()
			}
		}
		delete(h.sessions[sessionID], oldConnID)
		delete(h.byPeerID[sessionID], c.PeerID)
	}

	h.sessions[sessionID][c.ConnID] = pc
	h.byPeerID[sessionID][c.PeerID] = c.ConnID
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		sessionConns, exists := h.sessions[sessionID]
		if !exists {
			h.mu.Unlock()
			return
		}

		// The connection may have been replaced by a reconnect or a repeat
		// join already; only the registration that owns the entry removes it.
		if cur, stillExists := sessionConns[c.ConnID]; !stillExists || cur != pc {
			h.mu.Unlock()
			return
		}

		delete(sessionConns, c.ConnID)
		if peerIDMap, ok := h.byPeerID[sessionID]; ok {
			if peerIDMap[c.PeerID] == c.ConnID {
				delete(peerIDMap, c.PeerID)
			}
		}
		h.mu.Unlock()

		// Close the channel outside the lock to stop the writer goroutine.
		close(ch)
		select {
		case <-done:
		case <-time.After(1 * time.Second):
		}

		h.mu.Lock()
		if len(sessionConns) == 0 {
			delete(h.sessions, sessionID)
			delete(h.byPeerID, sessionID)
		}
		h.mu.Unlock()
	}
}

// SendTo queues an envelope for a specific peer. Returns false when the peer
// has no live connection in the session.
func (h *Hub) SendTo(sessionID, peerID string, env protocol.Envelope) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	peerIDMap, ok := h.byPeerID[sessionID]
	if !ok {
		return false
	}
	connID, ok := peerIDMap[peerID]
	if !ok {
		return false
	}
	pc, ok := h.sessions[sessionID][connID]
	if !ok {
		return false
	}

	select {
	case pc.send <- env:
		return true
	default:
		// Channel full; the peer exists but is too slow to keep up.
		return true
	}
}

// Broadcast queues an envelope for every connection in a session.
func (h *Hub) Broadcast(sessionID string, env protocol.Envelope) {
	for _, pc := range h.snapshot(sessionID, "") {
		select {
		case pc.send <- env:
		default:
		}
	}
}

// BroadcastExcept queues an envelope for every connection in a session except
// the named peer.
func (h *Hub) BroadcastExcept(sessionID, exceptPeerID string, env protocol.Envelope) {
	for _, pc := range h.snapshot(sessionID, exceptPeerID) {
		select {
		case pc.send <- env:
		default:
		}
	}
}

// Connected reports whether the peer has a live connection in the session.
func (h *Hub) Connected(sessionID, peerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	peerIDMap, ok := h.byPeerID[sessionID]
	if !ok {
		return false
	}
	_, ok = peerIDMap[peerID]
	return ok
}

// CloseSession force-closes every connection of a session.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.RLock()
	conns := make([]*peerConnection, 0)
	for _, pc := range h.sessions[sessionID] {
		conns = append(conns, pc)
	}
	h.mu.RUnlock()

	for _, pc := range conns {
		if pc.close != nil {
			pc.close()
		}
	}
}

// CloseAll force-closes every connection the hub knows about; used by the
// operator-requested shutdown drain.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*peerConnection, 0)
	for _, sess := range h.sessions {
		for _, pc := range sess {
			conns = append(conns, pc)
		}
	}
	h.mu.RUnlock()

	for _, pc := range conns {
		if pc.close != nil {
			pc.close()
		}
	}
}

// snapshot copies the connection list so sends happen without the lock held.
func (h *Hub) snapshot(sessionID, exceptPeerID string) []*peerConnection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sessionConns, ok := h.sessions[sessionID]
	if !ok {
		return nil
	}

	exceptConnID := ""
	if exceptPeerID != "" {
		if peerIDMap, ok := h.byPeerID[sessionID]; ok {
			exceptConnID = peerIDMap[exceptPeerID]
		}
	}

	out := make([]*peerConnection, 0, len(sessionConns))
	for connID, pc := range sessionConns {
		if exceptPeerID != "" && connID == exceptConnID {
			continue
		}
		out = append(out, pc)
	}
	return out
}
