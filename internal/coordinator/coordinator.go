// Package coordinator implements the session and transfer engine: the peer
// directory, page placement, the send lock, the offer protocol, and the
// download dispatcher. One mutex serializes every handler so a session's
// fields are never observed half-updated; timer callbacks re-acquire it and
// validate a generation counter before acting.
package coordinator

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/beamdrop/beamdrop/internal/config"
	"github.com/beamdrop/beamdrop/internal/history"
	"github.com/beamdrop/beamdrop/internal/names"
	"github.com/beamdrop/beamdrop/internal/session"
	"github.com/beamdrop/beamdrop/pkg/protocol"
)

// Emitter delivers outbound envelopes to peers. The connection hub implements
// it; tests substitute a recorder.
type Emitter interface {
	SendTo(sessionID, peerID string, env protocol.Envelope) bool
	Broadcast(sessionID string, env protocol.Envelope)
	BroadcastExcept(sessionID, exceptPeerID string, env protocol.Envelope)
}

// Coordinator owns all session mutation. Every exported method locks mu for
// its full duration.
type Coordinator struct {
	mu sync.Mutex

	cfg   config.ServerConfig
	log   zerolog.Logger
	reg   *session.Registry
	emit  Emitter
	names *names.Store
	hist  *history.Store
}

// New wires the coordinator to its collaborators.
func New(cfg config.ServerConfig, log zerolog.Logger, reg *session.Registry, emit Emitter, nameStore *names.Store, hist *history.Store) *Coordinator {
	return &Coordinator{
		cfg:   cfg,
		log:   log,
		reg:   reg,
		emit:  emit,
		names: nameStore,
		hist:  hist,
	}
}

// Registry exposes the session registry for read-only HTTP handlers.
func (c *Coordinator) Registry() *session.Registry { return c.reg }

// envelope builds an outbound envelope, logging and dropping on marshal
// failure. Payload structs are all marshalable, so failures indicate a
// programming error.
func (c *Coordinator) envelope(sessionID, event string, payload any) (protocol.Envelope, bool) {
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		c.log.Error().Err(err).Str("event", event).Msg("drop outbound event")
		return protocol.Envelope{}, false
	}
	env.SessionID = sessionID
	env.From = "server"
	return env, true
}

func (c *Coordinator) sendTo(sessionID, peerID, event string, payload any) {
	env, ok := c.envelope(sessionID, event, payload)
	if !ok {
		return
	}
	env.To = peerID
	c.emit.SendTo(sessionID, peerID, env)
}

func (c *Coordinator) broadcast(sessionID, event string, payload any) {
	env, ok := c.envelope(sessionID, event, payload)
	if !ok {
		return
	}
	c.emit.Broadcast(sessionID, env)
}

func (c *Coordinator) broadcastExcept(sessionID, exceptPeerID, event string, payload any) {
	env, ok := c.envelope(sessionID, event, payload)
	if !ok {
		return
	}
	c.emit.BroadcastExcept(sessionID, exceptPeerID, env)
}

func (c *Coordinator) errorTo(sessionID, peerID, code, message string) {
	c.sendTo(sessionID, peerID, protocol.EvError, protocol.Error{Code: code, Message: message})
}

// displayName resolves a peer's name, falling back to the persistent store
// and finally to a generic label.
func (c *Coordinator) displayName(p *session.Peer) string {
	if p == nil {
		return "Unknown device"
	}
	if p.DeviceName != "" {
		return p.DeviceName
	}
	if name := c.names.Get(p.PeerID); name != "" {
		return name
	}
	return "Unknown device"
}

// peersUpdatedLocked broadcasts the current peer roster.
func (c *Coordinator) peersUpdatedLocked(s *session.Session) {
	peers := s.ConnectedPeers()
	list := protocol.PeerList{Peers: make([]protocol.PeerInfo, 0, len(peers))}
	for _, p := range peers {
		list.Peers = append(list.Peers, protocol.PeerInfo{
			PeerID:      p.PeerID,
			Role:        p.Role,
			DeviceName:  c.displayName(p),
			CurrentPage: p.CurrentPage,
			InMain:      p.InMain,
		})
	}
	c.broadcast(s.ID, protocol.EvPeersUpdated, list)
}

// historyUpdatedLocked pushes the session history to everyone in it.
func (c *Coordinator) historyUpdatedLocked(s *session.Session) {
	c.broadcast(s.ID, protocol.EvHistoryUpdated, c.hist.ForSession(s.ID))
}

// getSession resolves a session id under the coordinator lock, reporting a
// structured error to the peer when it is unknown.
func (c *Coordinator) getSession(sessionID, peerID string) (*session.Session, bool) {
	s, ok := c.reg.Get(sessionID)
	if !ok {
		if peerID != "" {
			c.errorTo(sessionID, peerID, protocol.ReasonSessionNotFound, "Session not found")
		}
		return nil, false
	}
	return s, true
}

// GetOrCreateCurrent implements the session reuse policy: the current host
// session is reused while unexpired, unless forceNew is set, or refresh is
// set and no client has joined it yet.
func (c *Coordinator) GetOrCreateCurrent(forceNew, refresh bool) *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.reg.Current()
	if cur != nil && !cur.Expired(time.Now()) {
		if !forceNew && !(refresh && !cur.ClientsConnected()) {
			return cur
		}
	}

	created, previous := c.reg.Create()
	if previous != nil {
		c.invalidateSessionLocked(previous)
	}
	c.log.Info().Str("session", created.ID).Bool("force_new", forceNew).Msg("session created")
	return created
}

// SessionByID returns the session when it exists and is unexpired.
func (c *Coordinator) SessionByID(id string) (*session.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.reg.Get(id)
	if !ok || s.Expired(time.Now()) {
		return nil, false
	}
	return s, true
}

// invalidateSessionLocked notifies a superseded session's peers, purges their
// persisted names and history, and removes the session.
func (c *Coordinator) invalidateSessionLocked(s *session.Session) {
	c.broadcast(s.ID, protocol.EvSessionEnded, protocol.SessionRef{SessionID: s.ID})

	ids := make([]string, 0, len(s.Peers))
	for id := range s.Peers {
		ids = append(ids, id)
	}
	if n := c.names.DeleteAll(ids); n > 0 {
		c.log.Debug().Int("purged", n).Str("session", s.ID).Msg("device names purged")
	}
	c.hist.ClearSession(s.ID)
	c.reg.Remove(s.ID)
	c.log.Info().Str("session", s.ID).Msg("session invalidated")
}

// AnnounceShutdown warns every connected peer that the server is going down.
func (c *Coordinator) AnnounceShutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.reg.All() {
		c.broadcast(s.ID, protocol.EvServerShutdown, nil)
	}
}

// DownloadURL builds the path a receiver fetches a released file from.
func DownloadURL(sessionID, fileID, receiverID string) string {
	return fmt.Sprintf("/download/%s/%s?receiver=%s", sessionID, fileID, receiverID)
}
