package coordinator

import (
	"os"
	"time"

	"github.com/beamdrop/beamdrop/internal/history"
	"github.com/beamdrop/beamdrop/internal/session"
	"github.com/beamdrop/beamdrop/pkg/protocol"
)

// RequestToSend opens an offer: the receiver set is frozen, every receiver
// is steered to the receive page and handed the file metadata, and the
// response deadline starts.
func (c *Coordinator) RequestToSend(sessionID, senderID string, file protocol.FileMeta) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.getSession(sessionID, senderID)
	if !ok {
		return
	}

	if s.ActiveTransfer != nil {
		c.sendTo(s.ID, senderID, protocol.EvSendRejected, protocol.SendRejected{
			FileID: file.ID,
			Reason: protocol.ReasonSenderActive,
		})
		return
	}
	if s.CurrentSenderPeerID != "" && s.CurrentSenderPeerID != senderID {
		c.sendTo(s.ID, senderID, protocol.EvSendRejected, protocol.SendRejected{
			FileID: file.ID,
			Reason: protocol.ReasonLocked,
		})
		return
	}

	receivers := s.ConnectedPeersExcept(senderID)
	if len(receivers) == 0 {
		c.sendTo(s.ID, senderID, protocol.EvSendRejected, protocol.SendRejected{
			FileID: file.ID,
			Reason: protocol.ReasonNoPeersConnected,
		})
		return
	}

	snapshot := make([]string, 0, len(receivers))
	for _, p := range receivers {
		snapshot = append(snapshot, p.PeerID)
	}

	s.CurrentSenderPeerID = senderID
	s.RecentSendRequestAt = time.Now()
	s.TransferGen++
	s.ActiveTransfer = &session.Transfer{
		SenderPeerID:      senderID,
		FileID:            file.ID,
		Accepted:          make(map[string]struct{}),
		Rejected:          make(map[string]struct{}),
		ReceiversSnapshot: snapshot,
		ResponseDeadline:  time.Now().Add(c.cfg.ResponseWindow),
		Gen:               s.TransferGen,
	}
	gen := s.TransferGen

	c.sendTo(s.ID, senderID, protocol.EvSendApproved, protocol.FileRef{FileID: file.ID})

	sender := s.Peers[senderID]
	offer := protocol.FileOffer{
		File:       file,
		SenderID:   senderID,
		SenderName: c.displayName(sender),
	}
	for _, p := range receivers {
		if p.CurrentPage != session.PageReceive {
			c.sendTo(s.ID, p.PeerID, protocol.EvForceRedirectToReceive, protocol.Redirect{
				SenderName: offer.SenderName,
				SessionID:  s.ID,
			})
		}
		c.sendTo(s.ID, p.PeerID, protocol.EvFileOffer, offer)
	}

	c.broadcast(s.ID, protocol.EvResponseTimerStarted, protocol.ResponseTimerStarted{
		FileID:         file.ID,
		Duration:       int(c.cfg.ResponseWindow.Seconds()),
		TotalReceivers: len(snapshot),
	})

	time.AfterFunc(c.cfg.ResponseWindow, func() {
		c.responseTimerFired(sessionID, gen)
	})
}

// AcceptFile records one receiver's acceptance. Repeat responses from the
// same receiver are dropped so the response counter cannot run ahead of the
// snapshot size.
func (c *Coordinator) AcceptFile(sessionID, fileID, receiverID string) {
	c.respond(sessionID, fileID, receiverID, true)
}

// RejectFile records one receiver's rejection and tells the sender.
func (c *Coordinator) RejectFile(sessionID, fileID, receiverID string) {
	c.respond(sessionID, fileID, receiverID, false)
}

func (c *Coordinator) respond(sessionID, fileID, receiverID string, accepted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.reg.Get(sessionID)
	if !ok {
		return
	}
	t := s.ActiveTransfer
	if t == nil || t.Resolved || t.FileID != fileID {
		return
	}
	if !inSnapshot(t, receiverID) || t.Responded(receiverID) {
		return
	}

	if accepted {
		t.Accepted[receiverID] = struct{}{}
	} else {
		t.Rejected[receiverID] = struct{}{}
		c.sendTo(s.ID, t.SenderPeerID, protocol.EvReceiverRejected, protocol.ReceiverRejected{
			FileID:         fileID,
			ReceiverPeerID: receiverID,
		})
	}
	t.TotalResponses++

	c.broadcast(s.ID, protocol.EvResponseCountUpdated, protocol.ResponseCountUpdated{
		FileID:         fileID,
		TotalResponses: t.TotalResponses,
		TotalReceivers: len(t.ReceiversSnapshot),
	})

	if t.TotalResponses >= len(t.ReceiversSnapshot) {
		c.resolveTransferLocked(s, false)
	}
}

func (c *Coordinator) responseTimerFired(sessionID string, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.reg.Get(sessionID)
	if !ok {
		return
	}
	if s.ActiveTransfer == nil || s.ActiveTransfer.Resolved || s.TransferGen != gen {
		return
	}
	c.resolveTransferLocked(s, true)
}

// resolveTransferLocked is the single authoritative resolution. Any accept
// moves the transfer to uploading; none clears it and frees the lock.
func (c *Coordinator) resolveTransferLocked(s *session.Session, timedOut bool) {
	t := s.ActiveTransfer
	if t == nil || t.Resolved {
		return
	}
	t.Resolved = true
	s.TransferGen++ // retire the pending deadline timer

	if len(t.Accepted) > 0 {
		c.sendTo(s.ID, t.SenderPeerID, protocol.EvStartUpload, protocol.FileRef{FileID: t.FileID})
		for id := range t.Accepted {
			c.sendTo(s.ID, id, protocol.EvUploadStarted, protocol.FileRef{FileID: t.FileID})
		}
		return
	}

	event := protocol.EvAllRejected
	if timedOut && t.TotalResponses == 0 {
		event = protocol.EvOfferTimeout
	}
	c.sendTo(s.ID, t.SenderPeerID, event, protocol.FileRef{FileID: t.FileID})

	sender := t.SenderPeerID
	s.ActiveTransfer = nil
	s.CurrentSenderPeerID = ""
	c.broadcast(s.ID, protocol.EvTransferUnlocked, protocol.LockNotice{
		UnlockedBy: sender,
		Timestamp:  time.Now().UnixMilli(),
	})
}

// ExtendResponseTimer adds one response window to the remaining time and
// restarts the deadline.
func (c *Coordinator) ExtendResponseTimer(sessionID, fileID, senderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.reg.Get(sessionID)
	if !ok {
		return
	}
	t := s.ActiveTransfer
	if t == nil || t.Resolved || t.FileID != fileID || t.SenderPeerID != senderID {
		return
	}

	remaining := time.Until(t.ResponseDeadline)
	if remaining < 0 {
		remaining = 0
	}
	t.ResponseDeadline = time.Now().Add(remaining + c.cfg.ResponseWindow)
	s.TransferGen++
	t.Gen = s.TransferGen
	gen := s.TransferGen

	time.AfterFunc(time.Until(t.ResponseDeadline), func() {
		c.responseTimerFired(sessionID, gen)
	})

	c.broadcast(s.ID, protocol.EvResponseTimerStarted, protocol.ResponseTimerStarted{
		FileID:         fileID,
		Duration:       int(time.Until(t.ResponseDeadline).Seconds()),
		TotalReceivers: len(t.ReceiversSnapshot),
	})
}

// ManualProceed resolves the offer now with whatever responses exist.
func (c *Coordinator) ManualProceed(sessionID, fileID, senderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.reg.Get(sessionID)
	if !ok {
		return
	}
	t := s.ActiveTransfer
	if t == nil || t.Resolved || t.FileID != fileID || t.SenderPeerID != senderID {
		return
	}
	c.resolveTransferLocked(s, false)
}

// CancelPendingOffer aborts an unresolved offer while keeping the send lock,
// so the sender can immediately offer a different file.
func (c *Coordinator) CancelPendingOffer(sessionID, fileID, senderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.reg.Get(sessionID)
	if !ok {
		return
	}
	t := s.ActiveTransfer
	if t == nil || t.FileID != fileID || t.SenderPeerID != senderID {
		return
	}
	for _, id := range t.ReceiversSnapshot {
		if !t.Responded(id) {
			c.sendTo(s.ID, id, protocol.EvOfferTimeout, protocol.FileRef{FileID: fileID})
		}
	}
	s.ActiveTransfer = nil
	s.TransferGen++
}

// CancelTransfer aborts the transfer entirely: the lock is released and
// every other peer returns to main.
func (c *Coordinator) CancelTransfer(sessionID, fileID, senderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.reg.Get(sessionID)
	if !ok {
		return
	}
	t := s.ActiveTransfer
	if t == nil || t.SenderPeerID != senderID {
		return
	}
	s.ActiveTransfer = nil
	s.TransferGen++
	if s.CurrentSenderPeerID == senderID {
		s.CurrentSenderPeerID = ""
	}

	notice := protocol.LockNotice{UnlockedBy: senderID, Timestamp: time.Now().UnixMilli()}
	c.broadcast(s.ID, protocol.EvSendButtonUnlocked, notice)
	c.broadcast(s.ID, protocol.EvTransferUnlocked, notice)
	c.broadcastExcept(s.ID, senderID, protocol.EvReturnAllToMain, protocol.FileRef{FileID: fileID})
}

// abortTransferLocked tears down a transfer whose sender vanished.
func (c *Coordinator) abortTransferLocked(s *session.Session, reason string) {
	t := s.ActiveTransfer
	if t == nil {
		return
	}
	sender := t.SenderPeerID
	s.ActiveTransfer = nil
	s.TransferGen++
	if s.CurrentSenderPeerID == sender {
		s.CurrentSenderPeerID = ""
	}

	notice := protocol.LockNotice{UnlockedBy: sender, Timestamp: time.Now().UnixMilli()}
	c.broadcast(s.ID, protocol.EvSendButtonUnlocked, notice)
	c.broadcast(s.ID, protocol.EvTransferUnlocked, notice)
	for _, p := range s.ConnectedOnPage(session.PageReceive) {
		c.sendTo(s.ID, p.PeerID, protocol.EvRedirectToMainAbandoned, protocol.Redirect{
			Reason:    reason,
			SessionID: s.ID,
		})
	}
}

// RegisterUpload records an uploaded file so it can be handed to the
// dispatcher when the sender confirms completion. Called by the HTTP layer.
func (c *Coordinator) RegisterUpload(sessionID, fileID, name, mimeType, path string, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.reg.Get(sessionID)
	if !ok {
		return
	}
	s.ActiveFiles[fileID] = &session.FileRecord{
		ID:       fileID,
		Name:     name,
		MimeType: mimeType,
		Path:     path,
		Size:     size,
	}
}

// UploadComplete hands the uploaded file to the dispatcher for every
// accepting receiver, records the transfer, and frees the lock.
func (c *Coordinator) UploadComplete(sessionID string, file protocol.FileMeta) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.reg.Get(sessionID)
	if !ok {
		return
	}
	t := s.ActiveTransfer
	if t == nil {
		// The transfer was already cleared (cancel, abort, or a racing
		// transfer-complete); free any lock its sender still holds.
		c.releaseStaleLocksLocked(s)
		return
	}
	if t.FileID != file.ID {
		return
	}

	rec, ok := s.ActiveFiles[file.ID]
	if !ok {
		rec = &session.FileRecord{ID: file.ID, Name: file.Name, MimeType: file.MimeType, Size: file.Size}
		s.ActiveFiles[file.ID] = rec
	}
	if rec.Name == "" {
		rec.Name = file.Name
	}

	sender := t.SenderPeerID
	accepted := make([]string, 0, len(t.Accepted))
	for id := range t.Accepted {
		accepted = append(accepted, id)
	}

	if len(accepted) == 0 {
		// Nothing to deliver; drop the file.
		c.deleteFileLocked(s, rec)
	} else {
		rec.Pending = len(accepted)
		names := make([]string, 0, len(accepted))
		for _, id := range accepted {
			names = append(names, c.displayName(s.Peers[id]))
			c.enqueueOrDispatchLocked(s, id, rec.Meta(), DownloadURL(s.ID, rec.ID, id))
		}
		c.hist.Record(history.Entry{
			SessionID:     s.ID,
			FileName:      rec.Name,
			Size:          rec.Size,
			SenderID:      sender,
			SenderName:    c.displayName(s.Peers[sender]),
			ReceiverIDs:   accepted,
			ReceiverNames: names,
		})
		c.historyUpdatedLocked(s)
		c.broadcast(s.ID, protocol.EvRecentUpdated, nil)
	}

	s.ActiveTransfer = nil
	s.TransferGen++
	if s.CurrentSenderPeerID == sender {
		s.CurrentSenderPeerID = ""
	}
	s.LastTransferCompletedAt = time.Now()
	c.broadcastUnlockLocked(s, sender)
}

// TransferComplete is the sender confirming its flow finished client-side;
// any leftover transfer or lock state is cleared.
func (c *Coordinator) TransferComplete(sessionID, senderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.reg.Get(sessionID)
	if !ok {
		return
	}
	if t := s.ActiveTransfer; t != nil && t.SenderPeerID == senderID {
		s.ActiveTransfer = nil
		s.TransferGen++
	}
	if s.CurrentSenderPeerID == senderID {
		s.CurrentSenderPeerID = ""
		c.broadcastUnlockLocked(s, senderID)
	}
	s.LastTransferCompletedAt = time.Now()
}

// SenderProgress relays upload progress to the accepting receivers only.
func (c *Coordinator) SenderProgress(sessionID, senderID string, p protocol.SenderProgress) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.reg.Get(sessionID)
	if !ok {
		return
	}
	t := s.ActiveTransfer
	if t == nil || t.SenderPeerID != senderID || t.FileID != p.FileID {
		return
	}
	for id := range t.Accepted {
		c.sendTo(s.ID, id, protocol.EvSenderProgress, p)
	}
}

// FileUploadedOfferToPeers re-sends the offer metadata to receivers that
// have not answered yet, used when the sender uploaded before all responses
// arrived.
func (c *Coordinator) FileUploadedOfferToPeers(sessionID, senderID string, file protocol.FileMeta) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.reg.Get(sessionID)
	if !ok {
		return
	}
	t := s.ActiveTransfer
	if t == nil || t.SenderPeerID != senderID || t.FileID != file.ID {
		return
	}
	offer := protocol.FileOffer{
		File:       file,
		SenderID:   senderID,
		SenderName: c.displayName(s.Peers[senderID]),
	}
	for _, id := range t.ReceiversSnapshot {
		if t.Responded(id) {
			continue
		}
		c.sendTo(s.ID, id, protocol.EvFileOffer, offer)
	}
}

// deleteFileLocked removes the file from disk and the session exactly once.
func (c *Coordinator) deleteFileLocked(s *session.Session, rec *session.FileRecord) {
	if rec.Deleted {
		return
	}
	rec.Deleted = true
	delete(s.ActiveFiles, rec.ID)
	if rec.Path != "" {
		if err := os.Remove(rec.Path); err != nil && !os.IsNotExist(err) {
			c.log.Warn().Err(err).Str("file", rec.ID).Msg("remove uploaded file")
		}
	}
}
