package session

import (
	"crypto/rand"
	"sync"
	"time"
)

// Registry is a thread-safe in-memory store of sessions. At most one session
// is the "current host session" at any time; stale sessions are not swept,
// access is gated by expiry checks.
type Registry struct {
	mu            sync.RWMutex
	sessions      map[string]*Session
	currentHostID string
	pinTTL        time.Duration
}

// NewRegistry creates a registry whose sessions carry the given PIN lifetime.
func NewRegistry(pinTTL time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		pinTTL:   pinTTL,
	}
}

// Create builds and registers a fresh session and marks it the current host
// session. It returns the new session and the previous current session (nil
// if none existed); the caller is responsible for notifying the previous
// session's peers before calling Remove on it.
func (r *Registry) Create() (created, previous *Session) {
	now := time.Now()
	s := &Session{
		ID:              generateSessionID(),
		Pin:             generatePIN(),
		PinExpiry:       now.Add(r.pinTTL),
		Peers:           make(map[string]*Peer),
		ActiveFiles:     make(map[string]*FileRecord),
		ExitedPeers:     make(map[string]struct{}),
		DownloadQueues:  make(map[string][]QueuedDownload),
		ActiveDownloads: make(map[string]int),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.currentHostID != "" {
		previous = r.sessions[r.currentHostID]
	}
	r.sessions[s.ID] = s
	r.currentHostID = s.ID
	return s, previous
}

// Get returns the session by id. Expiry is not checked here; callers gate on
// Session.Expired where the operation demands it.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Current returns the current host session, or nil.
func (r *Registry) Current() *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.currentHostID == "" {
		return nil
	}
	return r.sessions[r.currentHostID]
}

// CurrentID returns the current host session id, or "".
func (r *Registry) CurrentID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentHostID
}

// Remove deletes the session from the registry, clearing the current-host
// marker when it pointed at the removed session.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	if r.currentHostID == id {
		r.currentHostID = ""
	}
}

// FindByPin scans unexpired sessions for a PIN match and returns the first.
func (r *Registry) FindByPin(pin string) (*Session, bool) {
	now := time.Now()
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.Pin == pin && !s.Expired(now) {
			return s, true
		}
	}
	return nil, false
}

// MostRecent returns the unexpired session with the latest PIN expiry, for
// the manual-entry page that has no session id yet.
func (r *Registry) MostRecent() (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *Session
	for _, s := range r.sessions {
		if latest == nil || s.PinExpiry.After(latest.PinExpiry) {
			latest = s
		}
	}
	if latest == nil || latest.Expired(time.Now()) {
		return nil, false
	}
	return latest, true
}

// ActivePeerIDs collects the peer ids of every registered session, for the
// orphaned device-name purge.
func (r *Registry) ActivePeerIDs() map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]struct{})
	for _, s := range r.sessions {
		for id := range s.Peers {
			out[id] = struct{}{}
		}
	}
	return out
}

// All returns a snapshot of every registered session.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// VerifyPinError distinguishes the two PIN verification failure kinds.
type VerifyPinError string

func (e VerifyPinError) Error() string { return string(e) }

const (
	// ErrSessionNotFound covers absent sessions.
	ErrSessionNotFound = VerifyPinError("session not found or expired")
	// ErrPinExpired covers sessions past their PIN lifetime.
	ErrPinExpired = VerifyPinError("PIN has expired")
	// ErrPinMismatch covers a wrong PIN on a live session.
	ErrPinMismatch = VerifyPinError("invalid PIN")
)

// VerifyPin succeeds only if the session exists, is unexpired, and the PIN
// matches exactly.
func (r *Registry) VerifyPin(sessionID, pin string) error {
	s, ok := r.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	if s.Expired(time.Now()) {
		return ErrPinExpired
	}
	if s.Pin != pin {
		return ErrPinMismatch
	}
	return nil
}

const sessionIDChars = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz23456789"

// generateSessionID returns a random 10-character token. Ambiguous
// characters are excluded the same way join codes exclude them.
func generateSessionID() string {
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		return "0000000000"
	}
	id := make([]byte, 10)
	for i := range b {
		id[i] = sessionIDChars[b[i]%byte(len(sessionIDChars))]
	}
	return string(id)
}

// generatePIN returns a random 6-digit PIN with a non-zero leading digit.
func generatePIN() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "100000"
	}
	pin := make([]byte, 6)
	pin[0] = '1' + b[0]%9
	for i := 1; i < 6; i++ {
		pin[i] = '0' + b[i]%10
	}
	return string(pin)
}
