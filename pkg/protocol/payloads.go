package protocol

// FileMeta describes the file being offered or delivered.
type FileMeta struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"type,omitempty"`
	Size     int64  `json:"size"`
}

// JoinSession is the payload of "join-session".
type JoinSession struct {
	SessionID  string `json:"sessionId"`
	Role       string `json:"role"`
	PeerID     string `json:"peerId"`
	DeviceName string `json:"deviceName,omitempty"`
	Page       string `json:"page,omitempty"`
}

// SessionRef identifies a session for events that carry nothing else.
type SessionRef struct {
	SessionID string `json:"sessionId"`
}

// PeerRef identifies a peer within a session (page events, leave-session).
type PeerRef struct {
	SessionID string `json:"sessionId"`
	PeerID    string `json:"peerId"`
	Role      string `json:"role,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// UpdateDeviceName is the payload of "update-device-name".
type UpdateDeviceName struct {
	SessionID  string `json:"sessionId"`
	DeviceName string `json:"deviceName"`
}

// LockRequest is the payload of "request-send-lock", "release-send-lock"
// and "prepare-receivers".
type LockRequest struct {
	SessionID string `json:"sessionId"`
	SenderID  string `json:"senderId"`
}

// RequestToSend is the payload of "request-to-send" and
// "file-uploaded-offer-to-peers".
type RequestToSend struct {
	SessionID string   `json:"sessionId"`
	SenderID  string   `json:"senderId"`
	File      FileMeta `json:"file"`
}

// FileResponse is the payload of "accept-file" and "reject-file".
type FileResponse struct {
	SessionID      string `json:"sessionId"`
	FileID         string `json:"fileId"`
	ReceiverPeerID string `json:"receiverPeerId"`
}

// UploadComplete is the payload of "upload-complete".
type UploadComplete struct {
	SessionID string   `json:"sessionId"`
	File      FileMeta `json:"file"`
}

// TimerControl is the payload of "extend-response-timer", "manual-proceed"
// and "cancel-pending-offer".
type TimerControl struct {
	SessionID string `json:"sessionId"`
	FileID    string `json:"fileId"`
	SenderID  string `json:"senderId"`
}

// SenderProgress relays upload progress from the sender to accepting
// receivers.
type SenderProgress struct {
	SessionID  string  `json:"sessionId"`
	FileID     string  `json:"fileId"`
	Loaded     int64   `json:"loaded"`
	Total      int64   `json:"total"`
	SpeedBps   float64 `json:"speedBps,omitempty"`
	EtaSeconds float64 `json:"etaSeconds,omitempty"`
}

// PeerInfo is the per-peer view sent in "peers-updated".
type PeerInfo struct {
	PeerID      string `json:"peerId"`
	Role        string `json:"role"`
	DeviceName  string `json:"deviceName,omitempty"`
	CurrentPage string `json:"currentPage,omitempty"`
	InMain      bool   `json:"inMain"`
}

// PeerList is the payload of "peers-updated".
type PeerList struct {
	Peers []PeerInfo `json:"peers"`
}

// SessionJoined confirms a join to the requesting peer.
type SessionJoined struct {
	SessionID string `json:"sessionId"`
	Role      string `json:"role"`
}

// Ack is the generic reply to request-style events.
type Ack struct {
	OK      bool   `json:"ok"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// LockResult answers "request-send-lock".
type LockResult struct {
	OK            bool   `json:"ok"`
	Reason        string `json:"reason,omitempty"`
	Message       string `json:"message,omitempty"`
	CurrentSender string `json:"currentSender,omitempty"`
	AutoRedirect  bool   `json:"autoRedirect,omitempty"`
}

// LockNotice is broadcast when the send button locks or unlocks.
type LockNotice struct {
	LockedBy   string `json:"lockedBy,omitempty"`
	UnlockedBy string `json:"unlockedBy,omitempty"`
	Message    string `json:"message,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// Countdown starts or refreshes the host redirect countdown display.
type Countdown struct {
	SessionID       string `json:"sessionId,omitempty"`
	DurationSeconds int    `json:"durationSeconds"`
}

// Redirect carries the context of a server-driven page move.
type Redirect struct {
	Reason     string `json:"reason,omitempty"`
	SenderName string `json:"senderName,omitempty"`
	Message    string `json:"message,omitempty"`
	SessionID  string `json:"sessionId,omitempty"`
	Role       string `json:"role,omitempty"`
	PeerID     string `json:"peerId,omitempty"`
	Forced     bool   `json:"forced,omitempty"`
}

// FileOffer proposes a file to a receiver.
type FileOffer struct {
	File       FileMeta `json:"file"`
	SenderID   string   `json:"senderId"`
	SenderName string   `json:"senderName"`
}

// ResponseTimerStarted announces the offer response deadline.
type ResponseTimerStarted struct {
	FileID         string `json:"fileId"`
	Duration       int    `json:"duration"`
	TotalReceivers int    `json:"totalReceivers"`
}

// ResponseCountUpdated reports offer response progress.
type ResponseCountUpdated struct {
	FileID         string `json:"fileId"`
	TotalResponses int    `json:"totalResponses"`
	TotalReceivers int    `json:"totalReceivers"`
}

// FileRef carries just a file id (start-upload, offer-timeout, ...).
type FileRef struct {
	FileID string `json:"fileId"`
}

// SendRejected tells the sender a request-to-send was refused.
type SendRejected struct {
	FileID string `json:"fileId"`
	Reason string `json:"reason"`
}

// ReceiverRejected notifies the sender of one receiver's rejection.
type ReceiverRejected struct {
	FileID         string `json:"fileId"`
	ReceiverPeerID string `json:"receiverPeerId"`
}

// DownloadReady releases one download to a receiver.
type DownloadReady struct {
	File        FileMeta `json:"file"`
	DownloadURL string   `json:"downloadUrl"`
}

// NavigationResult answers a host's attempt to leave the main page.
type NavigationResult struct {
	Reason         string `json:"reason"`
	Message        string `json:"message"`
	ConnectedPeers int    `json:"connectedPeers"`
}

// PeerCount is the payload of "peer-count-updated".
type PeerCount struct {
	Count int `json:"count"`
}

// PeerNameUpdated announces a device-name change.
type PeerNameUpdated struct {
	PeerID     string `json:"peerId"`
	DeviceName string `json:"deviceName"`
}

// Error is a structured error surfaced to a peer.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
