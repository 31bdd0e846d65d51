package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/beamdrop/beamdrop/internal/session"
	"github.com/beamdrop/beamdrop/pkg/protocol"
)

func TestEnterSendPageSteersOthersToReceive(t *testing.T) {
	c, rec := newTestCoordinator(t)
	s := newSessionWithPeers(t, c, 2)
	c.EnterReceivePage(s.ID, clientID(1))
	rec.clear()

	c.EnterSendPage(s.ID, clientID(0))

	redirect := decodeAs[protocol.Redirect](t, *rec.lastTo("host", protocol.EvForceRedirectToReceive))
	require.Equal(t, "dev-"+clientID(0), redirect.SenderName)
	require.Nil(t, rec.lastTo(clientID(1), protocol.EvForceRedirectToReceive), "already on receive")
	require.Equal(t, session.PageSend, s.Peers[clientID(0)].CurrentPage)
}

func TestLeaveSendPageReleasesLockAndReceivers(t *testing.T) {
	c, rec := newTestCoordinator(t)
	s := newSessionWithPeers(t, c, 2)
	c.RequestSendLock(s.ID, clientID(0))
	c.EnterSendPage(s.ID, clientID(0))
	c.EnterReceivePage(s.ID, clientID(1))
	rec.clear()

	c.LeaveSendPage(s.ID, clientID(0))

	require.Empty(t, s.CurrentSenderPeerID)
	require.Equal(t, 1, rec.broadcastCount(protocol.EvSendButtonUnlocked))
	require.NotNil(t, rec.lastTo(clientID(1), protocol.EvRedirectToMainSenderLeft))
	require.Nil(t, rec.lastTo("host", protocol.EvRedirectToMainSenderLeft), "only receive-page peers are bounced")
}

func TestEnterMainDuringActiveSendIsRedirected(t *testing.T) {
	c, rec := newTestCoordinator(t)
	s := newSessionWithPeers(t, c, 2)
	c.RequestSendLock(s.ID, clientID(0))
	c.EnterSendPage(s.ID, clientID(0))
	rec.clear()

	c.EnterMainPage(s.ID, clientID(1))

	require.NotNil(t, rec.lastTo(clientID(1), protocol.EvForceRedirectToReceive))
}

func TestHostNavigationVeto(t *testing.T) {
	c, rec := newTestCoordinator(t)
	s := newSessionWithPeers(t, c, 1)
	rec.clear()

	c.LeaveMainPage(s.ID, "host", "")

	blocked := decodeAs[protocol.NavigationResult](t, *rec.lastTo("host", protocol.EvHostNavigationBlocked))
	require.Equal(t, protocol.ReasonOthersConnected, blocked.Reason)
	require.Equal(t, 1, blocked.ConnectedPeers)
	require.True(t, s.Peers["host"].InMain, "host snapped back to main")
}

func TestHostNavigationAllowedReasons(t *testing.T) {
	c, rec := newTestCoordinator(t)
	s := newSessionWithPeers(t, c, 1)
	rec.clear()

	c.LeaveMainPage(s.ID, "host", protocol.NavHostExitSession)

	require.Nil(t, rec.lastTo("host", protocol.EvHostNavigationBlocked))
	require.False(t, s.Peers["host"].InMain)
}

func TestHostNavigationFreeWhenAlone(t *testing.T) {
	c, rec := newTestCoordinator(t)
	s := newSessionWithPeers(t, c, 0)
	rec.clear()

	c.LeaveMainPage(s.ID, "host", "")

	require.Nil(t, rec.lastTo("host", protocol.EvHostNavigationBlocked))
	require.NotNil(t, rec.lastTo("host", protocol.EvHostNavigationAllowed))
	require.False(t, s.Peers["host"].InMain)
}

func TestEnterPinPageReportsMainCountAndFreesLonelySender(t *testing.T) {
	c, rec := newTestCoordinator(t)
	s := newSessionWithPeers(t, c, 2)
	c.RequestSendLock(s.ID, clientID(0))
	c.EnterReceivePage(s.ID, clientID(1))
	rec.clear()

	// The only receiver wanders off to the pin page.
	c.EnterPinPage(s.ID, clientID(1))

	count := decodeAs[protocol.PeerCount](t, *rec.lastTo(clientID(1), protocol.EvPeerCountUpdated))
	require.Equal(t, 2, count.Count, "host and the idle sender are confirmed on main")
	require.NotNil(t, rec.lastTo(clientID(0), protocol.EvRedirectSenderNoReceivers))
	require.Empty(t, s.CurrentSenderPeerID)
}

func TestSweep_SteersDriftedPeersToReceive(t *testing.T) {
	c, rec := newTestCoordinator(t)
	s := newSessionWithPeers(t, c, 2)
	c.RequestSendLock(s.ID, clientID(0))
	c.EnterSendPage(s.ID, clientID(0))
	rec.clear()

	// Within the cooldown the sweep must stay silent.
	c.Sweep()
	require.Nil(t, rec.lastTo("host", protocol.EvForceRedirectToReceive))

	expireCooldowns(c, s)
	c.Sweep()
	require.NotNil(t, rec.lastTo("host", protocol.EvForceRedirectToReceive))
	require.NotNil(t, rec.lastTo(clientID(1), protocol.EvForceRedirectToReceive))
	require.Nil(t, rec.lastTo(clientID(0), protocol.EvForceRedirectToReceive))
}

func TestSweep_LonelySenderReturnsToMain(t *testing.T) {
	c, rec := newTestCoordinator(t)
	s := newSessionWithPeers(t, c, 1)
	c.RequestSendLock(s.ID, clientID(0))
	c.EnterSendPage(s.ID, clientID(0))
	c.LeaveSession(s.ID, "host")
	rec.clear()

	expireCooldowns(c, s)
	c.Sweep()

	redirect := decodeAs[protocol.Redirect](t, *rec.lastTo(clientID(0), protocol.EvRedirectToMainNoReceivers))
	require.Equal(t, protocol.ReasonNoReceiversWaiting, redirect.Reason)
	require.Empty(t, s.CurrentSenderPeerID)
}

func TestSweep_AbandonedSenderLockSwept(t *testing.T) {
	c, rec := newTestCoordinator(t)
	s := newSessionWithPeers(t, c, 2)
	c.RequestSendLock(s.ID, clientID(0))
	c.EnterReceivePage(s.ID, clientID(1))
	// The holder never reaches the send page and its client goes silent.
	rec.clear()

	expireCooldowns(c, s)
	c.Sweep()

	require.Empty(t, s.CurrentSenderPeerID)
	require.Equal(t, 1, rec.broadcastCount(protocol.EvSendButtonUnlocked))
	require.NotNil(t, rec.lastTo(clientID(1), protocol.EvRedirectToMainAbandoned))
}

func TestSweep_LeavesBusyReceiversAlone(t *testing.T) {
	c, rec := newTestCoordinator(t)
	s := newSessionWithPeers(t, c, 1)
	c.EnterReceivePage(s.ID, clientID(0))
	registerFile(t, c, s, "f1", 1)
	enqueue(c, s, clientID(0), "f1")
	rec.clear()

	expireCooldowns(c, s)
	c.Sweep()

	require.Nil(t, rec.lastTo(clientID(0), protocol.EvRedirectToMainAbandoned), "mid-download receivers stay put")
}

// expireCooldowns backdates the sweep suppression stamps.
func expireCooldowns(c *Coordinator, s *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := time.Now().Add(-time.Minute)
	s.RecentSendRequestAt = old
	s.RecentEnterSendAt = old
	s.RecentEnterReceiveAt = old
	s.LastTransferCompletedAt = old
}
