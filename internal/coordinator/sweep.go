package coordinator

import (
	"context"
	"time"

	"github.com/beamdrop/beamdrop/internal/session"
	"github.com/beamdrop/beamdrop/pkg/protocol"
)

// Cooldowns after which the sweep trusts that in-flight events have settled.
// Corrective redirects must never fire on transient intermediate states.
const (
	sendRequestCooldown      = 5 * time.Second
	pageEnterCooldown        = 3 * time.Second
	transferCompleteCooldown = 10 * time.Second
)

// RunSweeper re-derives correct peer placement for every session on a fixed
// period until the context is cancelled.
func (c *Coordinator) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Sweep corrects placement drift: co-peers of a sender are steered to
// receive, a lonely sender goes back to main, and abandoned locks and
// stranded receivers are cleaned up.
func (c *Coordinator) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for _, s := range c.reg.All() {
		if inCooldown(s, now) {
			continue
		}
		c.sweepSessionLocked(s)
	}
}

func inCooldown(s *session.Session, now time.Time) bool {
	return now.Sub(s.RecentSendRequestAt) < sendRequestCooldown ||
		now.Sub(s.RecentEnterSendAt) < pageEnterCooldown ||
		now.Sub(s.RecentEnterReceiveAt) < pageEnterCooldown ||
		now.Sub(s.LastTransferCompletedAt) < transferCompleteCooldown
}

func (c *Coordinator) sweepSessionLocked(s *session.Session) {
	var sender *session.Peer
	for _, p := range s.ConnectedOnPage(session.PageSend) {
		sender = p
		break
	}

	if sender != nil {
		others := s.ConnectedPeersExcept(sender.PeerID)
		if len(others) == 0 && s.ActiveTransfer == nil {
			// Nobody left to receive; pull the sender back.
			c.sendTo(s.ID, sender.PeerID, protocol.EvRedirectToMainNoReceivers, protocol.Redirect{
				Reason:    protocol.ReasonNoReceiversWaiting,
				SessionID: s.ID,
			})
			if s.CurrentSenderPeerID == sender.PeerID {
				s.CurrentSenderPeerID = ""
				c.broadcastUnlockLocked(s, sender.PeerID)
			}
			return
		}
		for _, p := range others {
			if p.CurrentPage == session.PageReceive || p.CurrentPage == session.PageSend {
				continue
			}
			c.sendTo(s.ID, p.PeerID, protocol.EvForceRedirectToReceive, protocol.Redirect{
				SenderName: c.displayName(sender),
				SessionID:  s.ID,
			})
		}
		return
	}

	// No one is on the send page. A recorded holder without a transfer is an
	// abandoned sender; receivers still parked on receive get released.
	if s.CurrentSenderPeerID != "" && s.ActiveTransfer == nil {
		holder, ok := s.Peers[s.CurrentSenderPeerID]
		if !ok || holder.IsDisconnected || holder.CurrentPage != session.PageSend {
			released := s.CurrentSenderPeerID
			s.CurrentSenderPeerID = ""
			c.log.Debug().Str("session", s.ID).Str("holder", released).Msg("abandoned send lock swept")
			c.broadcastUnlockLocked(s, released)
			c.redirectStrandedReceiversLocked(s)
		}
		return
	}

	if s.CurrentSenderPeerID == "" && s.ActiveTransfer == nil {
		c.redirectStrandedReceiversLocked(s)
	}
}

// redirectStrandedReceiversLocked moves receive-page peers with no pending
// downloads back to main.
func (c *Coordinator) redirectStrandedReceiversLocked(s *session.Session) {
	for _, p := range s.ConnectedOnPage(session.PageReceive) {
		if s.ActiveDownloads[p.PeerID] > 0 || len(s.DownloadQueues[p.PeerID]) > 0 {
			continue
		}
		c.sendTo(s.ID, p.PeerID, protocol.EvRedirectToMainAbandoned, protocol.Redirect{
			Reason:    protocol.ReasonSenderAbandoned,
			SessionID: s.ID,
		})
	}
}
