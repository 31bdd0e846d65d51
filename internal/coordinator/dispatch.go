package coordinator

import (
	"github.com/beamdrop/beamdrop/internal/session"
	"github.com/beamdrop/beamdrop/pkg/protocol"
)

// enqueueOrDispatchLocked releases a download immediately while the receiver
// has a free slot, otherwise queues it in arrival order.
func (c *Coordinator) enqueueOrDispatchLocked(s *session.Session, receiverID string, file session.FileMeta, url string) {
	if s.ActiveDownloads[receiverID] < c.cfg.MaxConcurrentDownloads {
		s.ActiveDownloads[receiverID]++
		c.sendDownloadReadyLocked(s, receiverID, file, url)
		return
	}
	s.DownloadQueues[receiverID] = append(s.DownloadQueues[receiverID], session.QueuedDownload{
		File:        file,
		DownloadURL: url,
	})
}

func (c *Coordinator) sendDownloadReadyLocked(s *session.Session, receiverID string, file session.FileMeta, url string) {
	c.sendTo(s.ID, receiverID, protocol.EvDownloadReady, protocol.DownloadReady{
		File: protocol.FileMeta{
			ID:       file.ID,
			Name:     file.Name,
			MimeType: file.MimeType,
			Size:     file.Size,
		},
		DownloadURL: url,
	})
}

// FinishDownload is the dispatcher's progression hook, driven by the HTTP
// download's terminal event. An abort counts the same as a completion for
// cleanup: the receiver consumed its claim on the file either way.
func (c *Coordinator) FinishDownload(sessionID, fileID, receiverID string, aborted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.reg.Get(sessionID)
	if !ok {
		return
	}

	if rec, ok := s.ActiveFiles[fileID]; ok {
		rec.Pending--
		if rec.Pending <= 0 {
			c.deleteFileLocked(s, rec)
		}
	}

	if aborted {
		c.log.Debug().Str("file", fileID).Str("receiver", receiverID).Msg("download aborted")
	}

	if s.ActiveDownloads[receiverID] > 0 {
		s.ActiveDownloads[receiverID]--
	}
	c.drainQueueLocked(s, receiverID)
}

// drainQueueLocked dispatches queued downloads up to the free slots, prunes
// empty maps, and signals idleness when nothing remains.
func (c *Coordinator) drainQueueLocked(s *session.Session, receiverID string) {
	queue := s.DownloadQueues[receiverID]
	for len(queue) > 0 && s.ActiveDownloads[receiverID] < c.cfg.MaxConcurrentDownloads {
		next := queue[0]
		queue = queue[1:]
		s.ActiveDownloads[receiverID]++
		c.sendDownloadReadyLocked(s, receiverID, next.File, next.DownloadURL)
	}

	if len(queue) == 0 {
		delete(s.DownloadQueues, receiverID)
	} else {
		s.DownloadQueues[receiverID] = queue
	}
	if s.ActiveDownloads[receiverID] == 0 {
		delete(s.ActiveDownloads, receiverID)
	}

	if len(queue) == 0 && s.ActiveDownloads[receiverID] == 0 {
		c.sendTo(s.ID, receiverID, protocol.EvReceiverDownloadsIdle, nil)
	}
}

// purgeDownloadsLocked drops a departing receiver's queue. Each queued entry
// counts as consumed so files never wait on a receiver that is gone;
// in-flight downloads settle through their own HTTP terminal events.
func (c *Coordinator) purgeDownloadsLocked(s *session.Session, receiverID string) {
	for _, qd := range s.DownloadQueues[receiverID] {
		if rec, ok := s.ActiveFiles[qd.File.ID]; ok {
			rec.Pending--
			if rec.Pending <= 0 {
				c.deleteFileLocked(s, rec)
			}
		}
	}
	delete(s.DownloadQueues, receiverID)
	delete(s.ActiveDownloads, receiverID)
}

// QueueState is the dispatcher introspection view for debugging.
type QueueState struct {
	SessionID string         `json:"sessionId"`
	Active    map[string]int `json:"active"`
	Queued    map[string]int `json:"queued"`
}

// QueueStates snapshots every session's dispatcher state.
func (c *Coordinator) QueueStates() []QueueState {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []QueueState
	for _, s := range c.reg.All() {
		if len(s.ActiveDownloads) == 0 && len(s.DownloadQueues) == 0 {
			continue
		}
		qs := QueueState{
			SessionID: s.ID,
			Active:    make(map[string]int, len(s.ActiveDownloads)),
			Queued:    make(map[string]int, len(s.DownloadQueues)),
		}
		for id, n := range s.ActiveDownloads {
			qs.Active[id] = n
		}
		for id, q := range s.DownloadQueues {
			qs.Queued[id] = len(q)
		}
		out = append(out, qs)
	}
	return out
}

// FileForDownload resolves a served file's metadata for the HTTP layer.
func (c *Coordinator) FileForDownload(sessionID, fileID string) (name, mimeType, path string, size int64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, found := c.reg.Get(sessionID)
	if !found {
		return "", "", "", 0, false
	}
	rec, found := s.ActiveFiles[fileID]
	if !found || rec.Deleted {
		return "", "", "", 0, false
	}
	return rec.Name, rec.MimeType, rec.Path, rec.Size, true
}
