package coordinator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/beamdrop/beamdrop/internal/session"
	"github.com/beamdrop/beamdrop/pkg/protocol"
)

func TestRequestSendLock_GrantAndIdempotence(t *testing.T) {
	c, rec := newTestCoordinator(t)
	s := newSessionWithPeers(t, c, 2)
	rec.clear()

	c.RequestSendLock(s.ID, clientID(0))
	res := decodeAs[protocol.LockResult](t, *rec.lastTo(clientID(0), protocol.EvSendLockResult))
	require.True(t, res.OK)
	require.Equal(t, clientID(0), s.CurrentSenderPeerID)

	// Re-requesting while holding succeeds.
	rec.clear()
	c.RequestSendLock(s.ID, clientID(0))
	res = decodeAs[protocol.LockResult](t, *rec.lastTo(clientID(0), protocol.EvSendLockResult))
	require.True(t, res.OK)
	require.Equal(t, clientID(0), s.CurrentSenderPeerID)
}

func TestRequestSendLock_RejectedWhileHeld(t *testing.T) {
	c, rec := newTestCoordinator(t)
	s := newSessionWithPeers(t, c, 2)

	c.RequestSendLock(s.ID, clientID(0))
	rec.clear()

	c.RequestSendLock(s.ID, clientID(1))
	res := decodeAs[protocol.LockResult](t, *rec.lastTo(clientID(1), protocol.EvSendLockResult))
	require.False(t, res.OK)
	require.Equal(t, protocol.ReasonLocked, res.Reason)
	require.Equal(t, "dev-"+clientID(0), res.CurrentSender)
	require.Equal(t, clientID(0), s.CurrentSenderPeerID, "holder unchanged")
}

func TestRequestSendLock_HostNotOnMainIsRedirectedAndLockGranted(t *testing.T) {
	c, rec := newTestCoordinator(t)
	s := c.GetOrCreateCurrent(false, false)
	joinPeer(t, c, s.ID, "host", session.RoleHost, "") // host has not confirmed main
	joinPeer(t, c, s.ID, clientID(0), session.RoleClient, session.PageMain)
	rec.clear()

	c.RequestSendLock(s.ID, clientID(0))

	require.NotNil(t, rec.lastTo("host", protocol.EvRedirectHostToMain))
	res := decodeAs[protocol.LockResult](t, *rec.lastTo(clientID(0), protocol.EvSendLockResult))
	require.True(t, res.OK, "lock still granted while host is pulled into place")
}

func TestRequestSendLock_NoHost(t *testing.T) {
	c, rec := newTestCoordinator(t)
	s := c.GetOrCreateCurrent(false, false)
	joinPeer(t, c, s.ID, clientID(0), session.RoleClient, session.PageMain)
	rec.clear()

	c.RequestSendLock(s.ID, clientID(0))
	res := decodeAs[protocol.LockResult](t, *rec.lastTo(clientID(0), protocol.EvSendLockResult))
	require.False(t, res.OK)
	require.Equal(t, protocol.ReasonHostNotReady, res.Reason)
}

func TestRequestSendLock_SendPageOccupied(t *testing.T) {
	c, rec := newTestCoordinator(t)
	s := newSessionWithPeers(t, c, 2)
	c.RequestSendLock(s.ID, clientID(0))
	c.EnterSendPage(s.ID, clientID(0))
	rec.clear()

	c.RequestSendLock(s.ID, clientID(1))

	res := decodeAs[protocol.LockResult](t, *rec.lastTo(clientID(1), protocol.EvSendLockResult))
	require.False(t, res.OK)
	require.Equal(t, protocol.ReasonSendPageOccupied, res.Reason)
	require.True(t, res.AutoRedirect)
	require.NotNil(t, rec.lastTo(clientID(1), protocol.EvAutoRedirectToReceive))
}

func TestReleaseSendLock_HolderOnly(t *testing.T) {
	c, rec := newTestCoordinator(t)
	s := newSessionWithPeers(t, c, 2)
	c.RequestSendLock(s.ID, clientID(0))
	rec.clear()

	c.ReleaseSendLock(s.ID, clientID(1))
	require.Equal(t, clientID(0), s.CurrentSenderPeerID, "non-holder release is a no-op")
	require.Zero(t, rec.broadcastCount(protocol.EvSendButtonUnlocked))

	c.ReleaseSendLock(s.ID, clientID(0))
	require.Empty(t, s.CurrentSenderPeerID)
	require.Equal(t, 1, rec.broadcastCount(protocol.EvSendButtonUnlocked))
	require.Equal(t, 1, rec.broadcastCount(protocol.EvTransferUnlocked))
}

func TestReleaseSendLock_UnlockSuppressedWhileSendPageOccupied(t *testing.T) {
	c, rec := newTestCoordinator(t)
	s := newSessionWithPeers(t, c, 2)
	c.RequestSendLock(s.ID, clientID(0))
	c.EnterSendPage(s.ID, clientID(0))
	rec.clear()

	c.ReleaseSendLock(s.ID, clientID(0))

	require.Empty(t, s.CurrentSenderPeerID, "structural lock cleared")
	require.Zero(t, rec.broadcastCount(protocol.EvSendButtonUnlocked), "UI unlock withheld while the send page is occupied")
}

func TestStaleLockReleasedOnHostEnterMain(t *testing.T) {
	c, rec := newTestCoordinator(t)
	s := newSessionWithPeers(t, c, 1)
	c.RequestSendLock(s.ID, clientID(0))
	// Holder never reaches the send page and has no transfer.
	rec.clear()

	c.EnterMainPage(s.ID, "host")

	require.Empty(t, s.CurrentSenderPeerID)
	require.Equal(t, 1, rec.broadcastCount(protocol.EvSendButtonUnlocked))
}

func TestStaleLockKeptWhileHolderOnSendPage(t *testing.T) {
	c, rec := newTestCoordinator(t)
	s := newSessionWithPeers(t, c, 2)
	c.RequestSendLock(s.ID, clientID(0))
	c.EnterSendPage(s.ID, clientID(0))
	rec.clear()

	// A holder still picking a file has no transfer yet; opportunistic
	// triggers must not take the lock away from it.
	c.EnterMainPage(s.ID, "host")
	c.UploadComplete(s.ID, testFile("ghost"))

	require.Equal(t, clientID(0), s.CurrentSenderPeerID)
	require.Zero(t, rec.broadcastCount(protocol.EvTransferUnlocked))
}
