// Package history records completed transfers, both per session and in a
// bounded global list queryable per device.
package history

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry describes one completed transfer.
type Entry struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"sessionId"`
	FileName      string    `json:"fileName"`
	Size          int64     `json:"size"`
	SenderID      string    `json:"senderId"`
	SenderName    string    `json:"senderName"`
	ReceiverIDs   []string  `json:"receiverIds"`
	ReceiverNames []string  `json:"receiverNames"`
	Timestamp     time.Time `json:"timestamp"`
}

// Store keeps transfer history in memory. Newest entries come first.
type Store struct {
	mu        sync.RWMutex
	bySession map[string][]Entry
	recent    []Entry
	recentCap int
}

// NewStore creates a history store whose global list holds at most recentCap
// entries.
func NewStore(recentCap int) *Store {
	if recentCap <= 0 {
		recentCap = 100
	}
	return &Store{
		bySession: make(map[string][]Entry),
		recentCap: recentCap,
	}
}

// Record adds a completed transfer and returns the stored entry with its id
// and timestamp filled in.
func (s *Store) Record(e Entry) Entry {
	e.ID = uuid.NewString()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.bySession[e.SessionID] = append([]Entry{e}, s.bySession[e.SessionID]...)

	s.recent = append([]Entry{e}, s.recent...)
	if len(s.recent) > s.recentCap {
		s.recent = s.recent[:s.recentCap]
	}
	return e
}

// ForSession returns the session's history, newest first.
func (s *Store) ForSession(sessionID string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.bySession[sessionID]...)
}

// ForUser returns global recent transfers the device took part in, as sender
// or receiver, newest first.
func (s *Store) ForUser(userID string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.recent {
		if e.SenderID == userID {
			out = append(out, e)
			continue
		}
		for _, id := range e.ReceiverIDs {
			if id == userID {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// ClearSession drops the per-session history. Global recent entries survive
// so devices can still list past transfers after a session ends.
func (s *Store) ClearSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bySession, sessionID)
}
