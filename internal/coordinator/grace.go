package coordinator

import (
	"time"

	"github.com/beamdrop/beamdrop/internal/session"
	"github.com/beamdrop/beamdrop/pkg/protocol"
)

// ClientHasVerified reacts to a client passing the PIN gate. The first
// verification starts the host's grace redirect window; later ones only
// refresh the countdown display.
func (c *Coordinator) ClientHasVerified(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.reg.Get(sessionID)
	if !ok {
		return
	}

	if s.GraceActive {
		c.sendCountdownLocked(s)
		return
	}

	now := time.Now()
	s.GraceActive = true
	s.GraceStarted = now
	s.GraceEnd = now.Add(c.cfg.GraceWindow)
	s.GraceGen++
	gen := s.GraceGen

	time.AfterFunc(c.cfg.GraceWindow, func() {
		c.graceExpired(sessionID, gen)
	})

	// Let the host's page settle before showing the countdown.
	time.AfterFunc(time.Second, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		s, ok := c.reg.Get(sessionID)
		if !ok || !s.GraceActive || s.GraceGen != gen {
			return
		}
		c.sendCountdownLocked(s)
	})
}

// sendCountdownLocked tells the host how long until the automatic redirect.
func (c *Coordinator) sendCountdownLocked(s *session.Session) {
	host := s.Host()
	if host == nil || host.IsDisconnected {
		return
	}
	remaining := int(time.Until(s.GraceEnd).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	c.sendTo(s.ID, host.PeerID, protocol.EvStartHostRedirectCountdown, protocol.Countdown{
		SessionID:       s.ID,
		DurationSeconds: remaining,
	})
}

func (c *Coordinator) graceExpired(sessionID string, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.reg.Get(sessionID)
	if !ok || !s.GraceActive || s.GraceGen != gen {
		return
	}
	c.clearGraceLocked(s)

	// Only move the host if there is still someone to share with.
	if !s.ClientsConnected() {
		return
	}
	c.redirectHostToMainLocked(s)
}

// HostGoNow skips the rest of the grace window at the host's request. It
// needs at least one connected client, matching the window expiry rule.
func (c *Coordinator) HostGoNow(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.reg.Get(sessionID)
	if !ok {
		return
	}
	if !s.ClientsConnected() {
		if host := s.Host(); host != nil {
			c.sendTo(s.ID, host.PeerID, protocol.EvError, protocol.Error{
				Code:    protocol.ReasonNoClients,
				Message: "No client has joined yet",
			})
		}
		return
	}
	c.clearGraceLocked(s)
	c.redirectHostToMainLocked(s)
}

// HostExtendRedirect adds one grace window to the remaining time, capped at
// the configured total measured from when the window first opened.
func (c *Coordinator) HostExtendRedirect(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.reg.Get(sessionID)
	if !ok || !s.GraceActive {
		return
	}
	host := s.Host()

	now := time.Now()
	maxEnd := s.GraceStarted.Add(c.cfg.GraceCap)
	if !s.GraceEnd.Before(maxEnd) {
		if host != nil {
			c.sendTo(s.ID, host.PeerID, protocol.EvError, protocol.Error{
				Code:    protocol.ReasonMaxExtended,
				Message: "Redirect delay is already at its maximum",
			})
		}
		return
	}

	end := s.GraceEnd.Add(c.cfg.GraceWindow)
	if end.After(maxEnd) {
		end = maxEnd
	}
	s.GraceEnd = end
	s.GraceGen++
	gen := s.GraceGen
	time.AfterFunc(end.Sub(now), func() {
		c.graceExpired(sessionID, gen)
	})

	c.sendCountdownLocked(s)
}

// HostGoingToMain confirms the host landed on the main page: the window is
// cleared and any lock left without a transfer is released.
func (c *Coordinator) HostGoingToMain(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.reg.Get(sessionID)
	if !ok {
		return
	}
	if host := s.Host(); host != nil {
		host.CurrentPage = session.PageMain
		host.InMain = true
	}
	if s.GraceActive {
		c.clearGraceLocked(s)
		c.broadcast(s.ID, protocol.EvGraceTimerCleared, nil)
	}
	c.releaseStaleLocksLocked(s)
	c.peersUpdatedLocked(s)
}

// clearGraceLocked cancels the window by bumping the generation the pending
// timer was scheduled with.
func (c *Coordinator) clearGraceLocked(s *session.Session) {
	s.GraceActive = false
	s.GraceEnd = time.Time{}
	s.GraceGen++
}

func (c *Coordinator) redirectHostToMainLocked(s *session.Session) {
	host := s.Host()
	if host == nil || host.IsDisconnected {
		return
	}
	c.sendTo(s.ID, host.PeerID, protocol.EvRedirectHostToMain, protocol.Redirect{
		SessionID: s.ID,
	})
}
