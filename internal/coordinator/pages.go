package coordinator

import (
	"time"

	"github.com/beamdrop/beamdrop/internal/session"
	"github.com/beamdrop/beamdrop/pkg/protocol"
)

// EnterMainPage marks a peer as confirmed on main. A host landing on main
// releases any lock left without a transfer; a non-sender arriving while a
// send is active is steered straight to receive.
func (c *Coordinator) EnterMainPage(sessionID, peerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.getSession(sessionID, peerID)
	if !ok {
		return
	}
	peer, ok := s.Peers[peerID]
	if !ok {
		return
	}
	peer.CurrentPage = session.PageMain
	peer.InMain = true

	if peer.Role == session.RoleHost {
		c.releaseStaleLocksLocked(s)
	}

	if s.CurrentSenderPeerID != "" && s.CurrentSenderPeerID != peerID {
		if sender, ok := s.Peers[s.CurrentSenderPeerID]; ok && !sender.IsDisconnected {
			c.sendTo(s.ID, peerID, protocol.EvForceRedirectToReceive, protocol.Redirect{
				SenderName: c.displayName(sender),
				SessionID:  s.ID,
			})
		}
	}

	c.peersUpdatedLocked(s)
	c.broadcast(s.ID, protocol.EvPeerCountUpdated, protocol.PeerCount{Count: s.ConnectedOnMain()})
}

// LeaveMainPage applies the host navigation veto: a host may not leave main
// while other peers are connected unless the reason is an allowed redirect.
func (c *Coordinator) LeaveMainPage(sessionID, peerID, reason string) {
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

	if peer.Role == session.RoleHost && !allowedNavReason(reason) {
		others := len(s.ConnectedPeersExcept(peerID))
		if others > 0 {
			c.sendTo(s.ID, peerID, protocol.EvHostNavigationBlocked, protocol.NavigationResult{
				Reason:         protocol.ReasonOthersConnected,
				Message:        "Other devices are connected; stay on the main page",
				ConnectedPeers: others,
			})
			return
		}
		c.sendTo(s.ID, peerID, protocol.EvHostNavigationAllowed, protocol.NavigationResult{
			Reason: reason,
		})
	}

	peer.InMain = false
	peer.CurrentPage = ""
	c.peersUpdatedLocked(s)
}

// EnterSendPage records the sender's arrival and steers every other
// connected peer to the receive page.
func (c *Coordinator) EnterSendPage(sessionID, peerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.getSession(sessionID, peerID)
	if !ok {
		return
	}
	peer, ok := s.Peers[peerID]
	if !ok {
		return
	}
	peer.CurrentPage = session.PageSend
	peer.InMain = false
	s.RecentEnterSendAt = time.Now()

	for _, p := range s.ConnectedPeersExcept(peerID) {
		if p.CurrentPage == session.PageReceive || p.CurrentPage == session.PageSend {
			continue
		}
		c.sendTo(s.ID, p.PeerID, protocol.EvForceRedirectToReceive, protocol.Redirect{
			SenderName: c.displayName(peer),
			SessionID:  s.ID,
		})
	}
	c.peersUpdatedLocked(s)
}

// LeaveSendPage clears the sender's page. A sender walking away without an
// active transfer gives up the lock, and waiting receivers go back to main.
func (c *Coordinator) LeaveSendPage(sessionID, peerID string) {
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
	peer.CurrentPage = ""
	peer.InMain = false

	if s.CurrentSenderPeerID == peerID && s.ActiveTransfer == nil {
		s.CurrentSenderPeerID = ""
		c.broadcastUnlockLocked(s, peerID)
		for _, p := range s.ConnectedOnPage(session.PageReceive) {
			c.sendTo(s.ID, p.PeerID, protocol.EvRedirectToMainSenderLeft, protocol.Redirect{
				Reason:    protocol.ReasonSenderLeftSend,
				SessionID: s.ID,
			})
		}
	}
	c.peersUpdatedLocked(s)
}

// EnterReceivePage marks a receiver in place and stamps the sweep cooldown.
func (c *Coordinator) EnterReceivePage(sessionID, peerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.getSession(sessionID, peerID)
	if !ok {
		return
	}
	peer, ok := s.Peers[peerID]
	if !ok {
		return
	}
	peer.CurrentPage = session.PageReceive
	peer.InMain = false
	s.RecentEnterReceiveAt = time.Now()
	c.peersUpdatedLocked(s)
}

// LeaveReceivePage drops the receiver's pending download state along with
// its page tag.
func (c *Coordinator) LeaveReceivePage(sessionID, peerID string) {
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
	peer.CurrentPage = ""
	peer.InMain = false
	c.purgeDownloadsLocked(s, peerID)
	c.peersUpdatedLocked(s)
}

// EnterPinPage reports the main-page head count to the arriving peer, and
// sends a now-receiverless sender back to main.
func (c *Coordinator) EnterPinPage(sessionID, peerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.getSession(sessionID, peerID)
	if !ok {
		return
	}
	if peer, ok := s.Peers[peerID]; ok {
		peer.CurrentPage = session.PagePin
		peer.InMain = false
	}

	c.sendTo(s.ID, peerID, protocol.EvPeerCountUpdated, protocol.PeerCount{Count: s.ConnectedOnMain()})

	if s.CurrentSenderPeerID != "" && s.ActiveTransfer == nil &&
		len(s.ConnectedOnPage(session.PageReceive)) == 0 {
		sender := s.CurrentSenderPeerID
		s.CurrentSenderPeerID = ""
		c.sendTo(s.ID, sender, protocol.EvRedirectSenderNoReceivers, protocol.Redirect{
			Reason:    protocol.ReasonNoReceiversAfterPin,
			SessionID: s.ID,
		})
		c.broadcastUnlockLocked(s, sender)
	}
	c.peersUpdatedLocked(s)
}

func allowedNavReason(reason string) bool {
	switch reason {
	case protocol.NavAutoRedirectToSend, protocol.NavAutoRedirectToReceive, protocol.NavHostExitSession:
		return true
	}
	return false
}
