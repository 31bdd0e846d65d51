package coordinator

import (
	"time"

	"github.com/beamdrop/beamdrop/internal/session"
	"github.com/beamdrop/beamdrop/pkg/protocol"
)

// RequestSendLock grants single-sender exclusivity. A host not yet on main is
// redirected there as a side effect and the grant proceeds; a different peer
// on the send page or a different current holder rejects the request with a
// structured reason.
func (c *Coordinator) RequestSendLock(sessionID, senderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.reg.Get(sessionID)
	if !ok {
		c.sendTo(sessionID, senderID, protocol.EvSendLockResult, protocol.LockResult{
			Reason:  protocol.ReasonSessionNotFound,
			Message: "Session not found",
		})
		return
	}

	host := s.Host()
	if host == nil {
		c.sendTo(s.ID, senderID, protocol.EvSendLockResult, protocol.LockResult{
			Reason:  protocol.ReasonHostNotReady,
			Message: "The host has not joined yet",
		})
		return
	}
	if !host.InMain && host.PeerID != senderID {
		// Pull the host into place rather than failing the request.
		c.sendTo(s.ID, host.PeerID, protocol.EvRedirectHostToMain, protocol.Redirect{
			SessionID: s.ID,
			Forced:    true,
		})
	}

	for _, p := range s.ConnectedOnPage(session.PageSend) {
		if p.PeerID == senderID {
			continue
		}
		c.sendTo(s.ID, senderID, protocol.EvSendLockResult, protocol.LockResult{
			Reason:       protocol.ReasonSendPageOccupied,
			Message:      c.displayName(p) + " is already sending",
			AutoRedirect: true,
		})
		c.sendTo(s.ID, senderID, protocol.EvAutoRedirectToReceive, protocol.Redirect{
			SenderName: c.displayName(p),
			SessionID:  s.ID,
		})
		return
	}

	if s.CurrentSenderPeerID != "" && s.CurrentSenderPeerID != senderID {
		holder := s.Peers[s.CurrentSenderPeerID]
		c.sendTo(s.ID, senderID, protocol.EvSendLockResult, protocol.LockResult{
			Reason:        protocol.ReasonLocked,
			Message:       c.displayName(holder) + " holds the send lock",
			CurrentSender: c.displayName(holder),
		})
		return
	}

	// Idempotent for the current holder.
	s.CurrentSenderPeerID = senderID
	s.RecentSendRequestAt = time.Now()
	c.sendTo(s.ID, senderID, protocol.EvSendLockResult, protocol.LockResult{OK: true})
	c.broadcastExcept(s.ID, senderID, protocol.EvSendButtonLocked, protocol.LockNotice{
		LockedBy:  c.displayName(s.Peers[senderID]),
		Timestamp: time.Now().UnixMilli(),
	})
}

// ReleaseSendLock clears the lock if senderID holds it. The UI-visible
// unlock is broadcast only when the send page is empty; a peer still on the
// send page keeps the button locked from everyone else's point of view.
func (c *Coordinator) ReleaseSendLock(sessionID, senderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.reg.Get(sessionID)
	if !ok {
		return
	}
	if s.CurrentSenderPeerID != senderID {
		return
	}
	s.CurrentSenderPeerID = ""
	c.broadcastUnlockLocked(s, senderID)
}

// releaseStaleLocksLocked frees the lock whenever a holder is recorded but no
// transfer is active. Invoked after host-join-main and after disconnect
// expiry, where an abandoned holder is most likely.
func (c *Coordinator) releaseStaleLocksLocked(s *session.Session) {
	if s.CurrentSenderPeerID == "" || s.ActiveTransfer != nil {
		return
	}
	holder, ok := s.Peers[s.CurrentSenderPeerID]
	if ok && !holder.IsDisconnected && holder.CurrentPage == session.PageSend {
		// The holder is present and mid-flow; not stale.
		return
	}
	released := s.CurrentSenderPeerID
	s.CurrentSenderPeerID = ""
	c.log.Debug().Str("session", s.ID).Str("holder", released).Msg("stale send lock released")
	c.broadcastUnlockLocked(s, released)
}

// broadcastUnlockLocked emits the two-tier unlock signal unless a peer still
// occupies the send page.
func (c *Coordinator) broadcastUnlockLocked(s *session.Session, unlockedBy string) {
	if len(s.ConnectedOnPage(session.PageSend)) > 0 {
		return
	}
	notice := protocol.LockNotice{UnlockedBy: unlockedBy, Timestamp: time.Now().UnixMilli()}
	c.broadcast(s.ID, protocol.EvSendButtonUnlocked, notice)
	c.broadcast(s.ID, protocol.EvTransferUnlocked, notice)
}
