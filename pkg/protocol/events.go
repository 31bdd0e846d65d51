package protocol

// Inbound events (peer → server). Names are the wire protocol and must not
// change without a protocol version bump.
const (
	EvJoinSession              = "join-session"
	EvClientHasVerified        = "client-has-verified"
	EvClientResetExit          = "client-reset-exit"
	EvUpdateDeviceName         = "update-device-name"
	EvPrepareReceivers         = "prepare-receivers"
	EvHostGoNow                = "host-go-now"
	EvHostExtendRedirect       = "host-extend-redirect"
	EvHostGoingToMain          = "host-going-to-main"
	EvRequestSendLock          = "request-send-lock"
	EvReleaseSendLock          = "release-send-lock"
	EvRequestToSend            = "request-to-send"
	EvFileUploadedOfferToPeers = "file-uploaded-offer-to-peers"
	EvAcceptFile               = "accept-file"
	EvRejectFile               = "reject-file"
	EvTransferComplete         = "transfer-complete"
	EvUploadComplete           = "upload-complete"
	EvExtendResponseTimer      = "extend-response-timer"
	EvManualProceed            = "manual-proceed"
	EvCancelPendingOffer       = "cancel-pending-offer"
	EvCancelTransfer           = "cancel-transfer"
	EvEnterMainPage            = "enter-main-page"
	EvLeaveMainPage            = "leave-main-page"
	EvEnterSendPage            = "enter-send-page"
	EvLeaveSendPage            = "leave-send-page"
	EvEnterReceivePage         = "enter-receive-page"
	EvLeaveReceivePage         = "leave-receive-page"
	EvEnterPinPage             = "enter-pin-page"
	EvLeaveSession             = "leave-session"
	EvAnnounceShutdown         = "announce-shutdown"
)

// Outbound events (server → peer).
const (
	EvPeersUpdated               = "peers-updated"
	EvSessionJoined              = "session-joined"
	EvHistoryUpdated             = "history-updated"
	EvSessionEnded               = "session-ended"
	EvStartHostRedirectCountdown = "start-host-redirect-countdown"
	EvRedirectHostToMain         = "redirect-host-to-main"
	EvGraceTimerCleared          = "grace-timer-cleared"
	EvForceRedirectToReceive     = "force-redirect-to-receive"
	EvAutoRedirectToReceive      = "auto-redirect-to-receive"
	EvSendButtonLocked           = "send-button-locked"
	EvSendButtonUnlocked         = "send-button-unlocked"
	EvTransferUnlocked           = "transfer-unlocked"
	EvSendLockResult             = "send-lock-result"
	EvSendApproved               = "send-approved"
	EvSendRejected               = "send-rejected"
	EvFileOffer                  = "file-offer"
	EvResponseTimerStarted       = "response-timer-started"
	EvResponseCountUpdated       = "response-count-updated"
	EvStartUpload                = "start-upload"
	EvUploadStarted              = "upload-started"
	EvOfferTimeout               = "offer-timeout"
	EvAllRejected                = "all-rejected"
	EvReceiverRejected           = "receiver-rejected"
	EvDownloadReady              = "download-ready"
	EvReceiverDownloadsIdle      = "receiver-downloads-idle"
	EvSenderProgress             = "sender-progress" // relayed both directions
	EvHostNavigationBlocked      = "host-navigation-blocked"
	EvHostNavigationAllowed      = "host-navigation-allowed"
	EvRedirectToMainAbandoned    = "redirect-to-main-due-to-abandoned-sender"
	EvRedirectToMainSenderLeft   = "redirect-to-main-due-to-sender-left-send-page"
	EvRedirectToMainNoReceivers  = "redirect-to-main-due-to-no-receivers"
	EvRedirectSenderNoReceivers  = "redirect-sender-to-main-no-receivers"
	EvReturnAllToMain            = "return-all-to-main"
	EvRecentUpdated              = "recent-updated"
	EvPeerNameUpdated            = "peer-name-updated"
	EvPeerCountUpdated           = "peer-count-updated"
	EvError                      = "error"
	EvServerShutdown             = "server-shutdown"
)

// Structured rejection reason codes carried alongside human-readable messages.
const (
	ReasonSessionNotFound     = "session_not_found"
	ReasonHostNotReady        = "host_not_ready"
	ReasonSendPageOccupied    = "send_page_occupied"
	ReasonLocked              = "locked"
	ReasonNoClients           = "no_clients"
	ReasonNoHost              = "no_host"
	ReasonMaxExtended         = "max_extended"
	ReasonOthersConnected     = "others_connected"
	ReasonNoPeersConnected    = "no_peers_connected"
	ReasonSenderActive        = "sender_already_active"
	ReasonSenderInSendPage    = "sender_in_send_page"
	ReasonSenderAbandoned     = "sender_abandoned_transfer"
	ReasonSenderLeftSend      = "sender_left_send_page"
	ReasonNoReceiversWaiting  = "no_receivers_waiting"
	ReasonNoReceiversAfterPin = "no_receivers_after_pin_navigation"
)

// Host navigation reasons that are allowed to move the host off the main page.
const (
	NavAutoRedirectToSend    = "auto_redirect_to_send"
	NavAutoRedirectToReceive = "auto_redirect_to_receive"
	NavHostExitSession       = "host_exit_session"
)
