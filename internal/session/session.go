// Package session holds the per-session coordination state: the peer
// directory, active files, the in-flight transfer, and the send lock holder.
package session

import (
	"time"
)

// Pages a peer can be on. An empty CurrentPage means the peer has not yet
// reported a location.
const (
	PagePin     = "pin"
	PageMain    = "main"
	PageSend    = "send"
	PageReceive = "receive"
	PageIndex   = "index"
)

// Peer roles.
const (
	RoleHost   = "host"
	RoleClient = "client"
)

// Peer is one device in a session, identified by a stable client-chosen id
// that survives reconnects.
type Peer struct {
	PeerID      string
	Role        string
	ConnID      string // current live connection, reassigned on reconnect
	DeviceName  string
	CurrentPage string
	InMain      bool

	IsDisconnected bool
	DisconnectedAt time.Time
	DisconnectGen  uint64 // guards the pending-removal timer
}

// FileRecord tracks one uploaded file while receivers fetch it.
type FileRecord struct {
	ID       string
	Name     string
	MimeType string
	Path     string
	Size     int64

	Pending int  // receivers that still must finish downloading
	Deleted bool // set once the disk file has been removed
}

// Meta is the wire-facing view of a FileRecord.
func (f *FileRecord) Meta() FileMeta {
	return FileMeta{ID: f.ID, Name: f.Name, MimeType: f.MimeType, Size: f.Size}
}

// FileMeta mirrors protocol.FileMeta without importing it; kept separate so
// the data model stays transport-free.
type FileMeta struct {
	ID       string
	Name     string
	MimeType string
	Size     int64
}

// Transfer is the lifecycle of one file offer. At most one exists per
// session, and only while the send lock is held by its sender.
type Transfer struct {
	SenderPeerID      string
	FileID            string
	Accepted          map[string]struct{}
	Rejected          map[string]struct{}
	ReceiversSnapshot []string
	TotalResponses    int
	ResponseDeadline  time.Time
	Gen               uint64 // generation recorded at timer schedule time
	Resolved          bool   // the single authoritative resolve fired
}

// Responded reports whether this receiver already answered the offer.
func (t *Transfer) Responded(peerID string) bool {
	if _, ok := t.Accepted[peerID]; ok {
		return true
	}
	_, ok := t.Rejected[peerID]
	return ok
}

// QueuedDownload is one pending entry in a receiver's download queue.
type QueuedDownload struct {
	File        FileMeta
	DownloadURL string
}

// Session is one host-initiated sharing context. Fields are mutated only
// under the coordinator's lock; the Registry guards just the session map.
type Session struct {
	ID        string
	Pin       string
	PinExpiry time.Time

	Peers       map[string]*Peer
	ActiveFiles map[string]*FileRecord

	ActiveTransfer      *Transfer
	TransferGen         uint64 // bumped whenever ActiveTransfer is set or cleared
	CurrentSenderPeerID string

	ExitedPeers map[string]struct{}

	GraceGen     uint64 // bumped whenever the grace window starts, resets or clears
	GraceEnd     time.Time
	GraceStarted time.Time
	GraceActive  bool

	// Sweep cooldown stamps.
	RecentSendRequestAt     time.Time
	RecentEnterSendAt       time.Time
	RecentEnterReceiveAt    time.Time
	LastTransferCompletedAt time.Time

	// Download dispatcher state, per receiver.
	DownloadQueues  map[string][]QueuedDownload
	ActiveDownloads map[string]int
}

// Expired reports whether the session's PIN lifetime has elapsed.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.PinExpiry)
}

// Host returns the host peer, or nil.
func (s *Session) Host() *Peer {
	for _, p := range s.Peers {
		if p.Role == RoleHost {
			return p
		}
	}
	return nil
}

// ConnectedPeers returns every peer not currently in a disconnect tombstone.
// The result is recomputed on every call; sessions are small.
func (s *Session) ConnectedPeers() []*Peer {
	out := make([]*Peer, 0, len(s.Peers))
	for _, p := range s.Peers {
		if !p.IsDisconnected {
			out = append(out, p)
		}
	}
	return out
}

// ConnectedOnPage returns connected peers currently on the given page.
func (s *Session) ConnectedOnPage(page string) []*Peer {
	out := make([]*Peer, 0, len(s.Peers))
	for _, p := range s.Peers {
		if !p.IsDisconnected && p.CurrentPage == page {
			out = append(out, p)
		}
	}
	return out
}

// PeersExcept returns every peer other than peerID, connected or not.
func (s *Session) PeersExcept(peerID string) []*Peer {
	out := make([]*Peer, 0, len(s.Peers))
	for _, p := range s.Peers {
		if p.PeerID != peerID {
			out = append(out, p)
		}
	}
	return out
}

// ConnectedPeersExcept returns connected peers other than peerID.
func (s *Session) ConnectedPeersExcept(peerID string) []*Peer {
	out := make([]*Peer, 0, len(s.Peers))
	for _, p := range s.Peers {
		if p.PeerID != peerID && !p.IsDisconnected {
			out = append(out, p)
		}
	}
	return out
}

// ClientsConnected reports whether any non-host peer is present.
func (s *Session) ClientsConnected() bool {
	for _, p := range s.Peers {
		if p.Role != RoleHost {
			return true
		}
	}
	return false
}

// ClientsInMain counts verified clients confirmed on the main page.
func (s *Session) ClientsInMain() int {
	n := 0
	for _, p := range s.Peers {
		if p.Role == RoleClient && p.InMain && !p.IsDisconnected {
			n++
		}
	}
	return n
}

// ConnectedOnMain counts connected peers confirmed on the main page.
func (s *Session) ConnectedOnMain() int {
	n := 0
	for _, p := range s.Peers {
		if !p.IsDisconnected && p.InMain && p.CurrentPage == PageMain {
			n++
		}
	}
	return n
}
