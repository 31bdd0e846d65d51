package coordinator

import (
	"time"

	"github.com/beamdrop/beamdrop/internal/session"
	"github.com/beamdrop/beamdrop/pkg/protocol"
)

// Join registers a peer in a session or takes over its prior entry on
// reconnect. A reconnect within the disconnect grace window preserves page
// state, role, device name, and any held lock.
func (c *Coordinator) Join(connID string, p protocol.JoinSession) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.getSession(p.SessionID, p.PeerID)
	if !ok {
		return
	}

	peer, exists := s.Peers[p.PeerID]
	if exists {
		// Reconnect: transfer connection ownership, never duplicate.
		peer.ConnID = connID
		if peer.IsDisconnected {
			peer.IsDisconnected = false
			peer.DisconnectedAt = time.Time{}
			peer.DisconnectGen++ // invalidates the pending removal timer
			c.log.Debug().Str("peer", p.PeerID).Str("session", s.ID).Msg("peer reconnected within grace")
		}
	} else {
		peer = &session.Peer{
			PeerID: p.PeerID,
			Role:   p.Role,
			ConnID: connID,
		}
		s.Peers[p.PeerID] = peer
	}
	delete(s.ExitedPeers, p.PeerID)

	if p.Role != "" {
		peer.Role = p.Role
	}
	if p.DeviceName != "" {
		peer.DeviceName = p.DeviceName
		c.names.Set(p.PeerID, p.DeviceName)
	} else if peer.DeviceName == "" {
		peer.DeviceName = c.names.Get(p.PeerID)
	}
	if p.Page != "" {
		peer.CurrentPage = p.Page
		peer.InMain = p.Page == session.PageMain
	}

	c.sendTo(s.ID, p.PeerID, protocol.EvSessionJoined, protocol.SessionJoined{
		SessionID: s.ID,
		Role:      peer.Role,
	})
	c.peersUpdatedLocked(s)
	c.historyUpdatedLocked(s)
}

// Disconnect opens a reconnection grace window for the peer. State is purged
// only when the window elapses without a reconnect; locks and transfers the
// peer holds stay in place until then.
func (c *Coordinator) Disconnect(sessionID, peerID, connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.reg.Get(sessionID)
	if !ok {
		return
	}
	peer, ok := s.Peers[peerID]
	if !ok || peer.ConnID != connID {
		// A newer connection owns this peer; the stale socket's close is moot.
		return
	}

	peer.IsDisconnected = true
	peer.DisconnectedAt = time.Now()
	peer.DisconnectGen++
	gen := peer.DisconnectGen

	c.peersUpdatedLocked(s)

	time.AfterFunc(c.cfg.DisconnectGrace, func() {
		c.disconnectExpired(sessionID, peerID, gen)
	})
}

func (c *Coordinator) disconnectExpired(sessionID, peerID string, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.reg.Get(sessionID)
	if !ok {
		return
	}
	peer, ok := s.Peers[peerID]
	if !ok || !peer.IsDisconnected || peer.DisconnectGen != gen {
		return
	}

	c.log.Info().Str("peer", peerID).Str("session", sessionID).Msg("peer purged after disconnect grace")
	c.removePeerLocked(s, peer)
}

// LeaveSession removes a peer immediately on an explicit exit. The peer is
// remembered in ExitedPeers so stale client state does not auto-rejoin.
func (c *Coordinator) LeaveSession(sessionID, peerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.reg.Get(sessionID)
	if !ok {
		return
	}
	peer, ok := s.Peers[peerID]
	if !ok {
		return
	}
	s.ExitedPeers[peerID] = struct{}{}
	c.removePeerLocked(s, peer)
}

// ClientResetExit handles a client wiping its local state: same teardown as
// an explicit leave, plus its persisted device name is dropped.
func (c *Coordinator) ClientResetExit(sessionID, peerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.names.Delete(peerID)

	s, ok := c.reg.Get(sessionID)
	if !ok {
		return
	}
	peer, ok := s.Peers[peerID]
	if !ok {
		return
	}
	s.ExitedPeers[peerID] = struct{}{}
	c.removePeerLocked(s, peer)
}

// removePeerLocked is the shared teardown for tombstone expiry and explicit
// leaves: dispatcher state, transfers and locks the peer held, grace window
// when the last client goes.
func (c *Coordinator) removePeerLocked(s *session.Session, peer *session.Peer) {
	delete(s.Peers, peer.PeerID)
	c.purgeDownloadsLocked(s, peer.PeerID)

	if t := s.ActiveTransfer; t != nil {
		if t.SenderPeerID == peer.PeerID {
			c.abortTransferLocked(s, protocol.ReasonSenderAbandoned)
		} else if !t.Resolved && inSnapshot(t, peer.PeerID) && !t.Responded(peer.PeerID) {
			// A vanished receiver counts as a rejection so the offer can
			// still resolve by unanimity.
			t.Rejected[peer.PeerID] = struct{}{}
			t.TotalResponses++
			c.sendTo(s.ID, t.SenderPeerID, protocol.EvReceiverRejected, protocol.ReceiverRejected{
				FileID:         t.FileID,
				ReceiverPeerID: peer.PeerID,
			})
			if t.TotalResponses >= len(t.ReceiversSnapshot) {
				c.resolveTransferLocked(s, false)
			}
		}
	}

	c.releaseStaleLocksLocked(s)

	if !s.ClientsConnected() && s.GraceActive {
		c.clearGraceLocked(s)
	}

	c.peersUpdatedLocked(s)
}

// UpdateDeviceName persists and announces a peer's display name.
func (c *Coordinator) UpdateDeviceName(sessionID, peerID, deviceName string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.names.Set(peerID, deviceName) {
		c.errorTo(sessionID, peerID, "validation", "Device name must not be empty")
		return
	}

	s, ok := c.reg.Get(sessionID)
	if !ok {
		return
	}
	if peer, ok := s.Peers[peerID]; ok {
		peer.DeviceName = c.names.Get(peerID)
	}
	c.broadcast(s.ID, protocol.EvPeerNameUpdated, protocol.PeerNameUpdated{
		PeerID:     peerID,
		DeviceName: c.names.Get(peerID),
	})
	c.peersUpdatedLocked(s)
}

// PrepareReceivers steers every other connected peer to the receive page
// ahead of a send, so the sender's offer lands on ready screens.
func (c *Coordinator) PrepareReceivers(sessionID, senderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.getSession(sessionID, senderID)
	if !ok {
		return
	}
	sender := s.Peers[senderID]
	for _, p := range s.ConnectedPeersExcept(senderID) {
		if p.CurrentPage == session.PageSend || p.CurrentPage == session.PageReceive {
			continue
		}
		c.sendTo(s.ID, p.PeerID, protocol.EvForceRedirectToReceive, protocol.Redirect{
			SenderName: c.displayName(sender),
			SessionID:  s.ID,
		})
	}
}

func inSnapshot(t *session.Transfer, peerID string) bool {
	for _, id := range t.ReceiversSnapshot {
		if id == peerID {
			return true
		}
	}
	return false
}
