// Package names persists peer display names across server restarts.
package names

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
)

// Store is a thread-safe peer-id → device-name map backed by a JSON file.
// Every mutation is written through to disk immediately.
type Store struct {
	mu    sync.RWMutex
	path  string
	names map[string]string
}

// Open loads the store from path, starting empty if the file does not exist.
func Open(path string) (*Store, error) {
	s := &Store{
		path:  path,
		names: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &s.names); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the stored name for peerID, or "" when none is recorded.
func (s *Store) Get(peerID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.names[peerID]
}

// Set records a non-empty name for peerID and persists. Blank names are
// rejected, returning false.
func (s *Store) Set(peerID, name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[peerID] = name
	s.saveLocked()
	return true
}

// Delete removes peerID's name, persisting when an entry existed.
func (s *Store) Delete(peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.names[peerID]; !ok {
		return
	}
	delete(s.names, peerID)
	s.saveLocked()
}

// DeleteAll removes all the given peer ids in one write.
func (s *Store) DeleteAll(peerIDs []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, id := range peerIDs {
		if _, ok := s.names[id]; ok {
			delete(s.names, id)
			removed++
		}
	}
	if removed > 0 {
		s.saveLocked()
	}
	return removed
}

// PurgeExcept drops every name whose peer id is not in keep, returning the
// number removed. Used by the periodic orphan cleanup.
func (s *Store) PurgeExcept(keep map[string]struct{}) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id := range s.names {
		if _, ok := keep[id]; !ok {
			delete(s.names, id)
			removed++
		}
	}
	if removed > 0 {
		s.saveLocked()
	}
	return removed
}

// All returns a copy of every stored name.
func (s *Store) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.names))
	for id, name := range s.names {
		out[id] = name
	}
	return out
}

// Len returns the number of stored names.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.names)
}

// saveLocked writes the map to disk. Persistence failures are swallowed: the
// in-memory state stays authoritative for the running process.
func (s *Store) saveLocked() {
	data, err := json.MarshalIndent(s.names, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(s.path, data, 0o644)
}
