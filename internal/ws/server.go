// Package ws bridges websocket connections to the coordinator: it upgrades,
// registers connections in the hub, and dispatches inbound envelopes to the
// matching handler.
package ws

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/beamdrop/beamdrop/internal/coordinator"
	"github.com/beamdrop/beamdrop/internal/hub"
	"github.com/beamdrop/beamdrop/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // LAN deployment, same-origin is not meaningful
	},
}

// Server handles the /ws endpoint.
type Server struct {
	log   zerolog.Logger
	hub   *hub.Hub
	coord *coordinator.Coordinator
}

func NewServer(log zerolog.Logger, h *hub.Hub, coord *coordinator.Coordinator) *Server {
	return &Server{log: log, hub: h, coord: coord}
}

// Handle upgrades the request and runs the connection's read loop until the
// peer goes away.
func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	connID := protocol.NewMsgID()

	var writeMu sync.Mutex
	sendFunc := func(env protocol.Envelope) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(env)
	}

	// Bound after the first join-session.
	var (
		sessionID  string
		peerID     string
		removeConn func()
	)
	defer func() {
		if removeConn != nil {
			removeConn()
		}
		if sessionID != "" && peerID != "" {
			s.coord.Disconnect(sessionID, peerID, connID)
			s.log.Debug().Str("session", sessionID).Str("peer", peerID).Msg("peer disconnected")
		}
	}()

	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		if err := env.ValidateBasic(); err != nil {
			s.sendError(sendFunc, "validation", err.Error())
			continue
		}

		if env.Event == protocol.EvJoinSession {
			var p protocol.JoinSession
			if err := env.DecodePayload(&p); err != nil {
				s.sendError(sendFunc, "validation", "malformed join-session payload")
				continue
			}
			if p.SessionID == "" || p.PeerID == "" {
				s.sendError(sendFunc, "validation", "sessionId and peerId are required")
				continue
			}
			if removeConn != nil && (sessionID != p.SessionID || peerID != p.PeerID) {
				removeConn()
			}
			sessionID, peerID = p.SessionID, p.PeerID
			removeConn = s.hub.Add(sessionID, hub.Conn{PeerID: peerID, ConnID: connID}, sendFunc, func() { _ = conn.Close() })
			s.coord.Join(connID, p)
			s.log.Info().Str("session", sessionID).Str("peer", peerID).Str("role", p.Role).Msg("peer joined")
			continue
		}

		// The server, not the client, is authoritative about identity.
		env.From = peerID
		s.dispatch(env)
	}
}

// dispatch decodes the payload for each event kind and invokes the handler.
// Malformed payloads are dropped; the coordinator validates semantics.
func (s *Server) dispatch(env protocol.Envelope) {
	switch env.Event {
	case protocol.EvClientHasVerified:
		var p protocol.SessionRef
		if env.DecodePayload(&p) == nil {
			s.coord.ClientHasVerified(p.SessionID)
		}
	case protocol.EvClientResetExit:
		var p protocol.PeerRef
		if env.DecodePayload(&p) == nil {
			s.coord.ClientResetExit(p.SessionID, p.PeerID)
		}
	case protocol.EvUpdateDeviceName:
		var p protocol.UpdateDeviceName
		if env.DecodePayload(&p) == nil {
			s.coord.UpdateDeviceName(p.SessionID, env.From, p.DeviceName)
		}
	case protocol.EvPrepareReceivers:
		var p protocol.LockRequest
		if env.DecodePayload(&p) == nil {
			s.coord.PrepareReceivers(p.SessionID, p.SenderID)
		}
	case protocol.EvHostGoNow:
		var p protocol.SessionRef
		if env.DecodePayload(&p) == nil {
			s.coord.HostGoNow(p.SessionID)
		}
	case protocol.EvHostExtendRedirect:
		var p protocol.SessionRef
		if env.DecodePayload(&p) == nil {
			s.coord.HostExtendRedirect(p.SessionID)
		}
	case protocol.EvHostGoingToMain:
		var p protocol.SessionRef
		if env.DecodePayload(&p) == nil {
			s.coord.HostGoingToMain(p.SessionID)
		}
	case protocol.EvRequestSendLock:
		var p protocol.LockRequest
		if env.DecodePayload(&p) == nil {
			s.coord.RequestSendLock(p.SessionID, p.SenderID)
		}
	case protocol.EvReleaseSendLock:
		var p protocol.LockRequest
		if env.DecodePayload(&p) == nil {
			s.coord.ReleaseSendLock(p.SessionID, p.SenderID)
		}
	case protocol.EvRequestToSend:
		var p protocol.RequestToSend
		if env.DecodePayload(&p) == nil {
			s.coord.RequestToSend(p.SessionID, p.SenderID, p.File)
		}
	case protocol.EvFileUploadedOfferToPeers:
		var p protocol.RequestToSend
		if env.DecodePayload(&p) == nil {
			s.coord.FileUploadedOfferToPeers(p.SessionID, p.SenderID, p.File)
		}
	case protocol.EvAcceptFile:
		var p protocol.FileResponse
		if env.DecodePayload(&p) == nil {
			s.coord.AcceptFile(p.SessionID, p.FileID, p.ReceiverPeerID)
		}
	case protocol.EvRejectFile:
		var p protocol.FileResponse
		if env.DecodePayload(&p) == nil {
			s.coord.RejectFile(p.SessionID, p.FileID, p.ReceiverPeerID)
		}
	case protocol.EvUploadComplete:
		var p protocol.UploadComplete
		if env.DecodePayload(&p) == nil {
			s.coord.UploadComplete(p.SessionID, p.File)
		}
	case protocol.EvTransferComplete:
		var p protocol.PeerRef
		if env.DecodePayload(&p) == nil {
			s.coord.TransferComplete(p.SessionID, p.PeerID)
		}
	case protocol.EvSenderProgress:
		var p protocol.SenderProgress
		if env.DecodePayload(&p) == nil {
			s.coord.SenderProgress(p.SessionID, env.From, p)
		}
	case protocol.EvExtendResponseTimer:
		var p protocol.TimerControl
		if env.DecodePayload(&p) == nil {
			s.coord.ExtendResponseTimer(p.SessionID, p.FileID, p.SenderID)
		}
	case protocol.EvManualProceed:
		var p protocol.TimerControl
		if env.DecodePayload(&p) == nil {
			s.coord.ManualProceed(p.SessionID, p.FileID, p.SenderID)
		}
	case protocol.EvCancelPendingOffer:
		var p protocol.TimerControl
		if env.DecodePayload(&p) == nil {
			s.coord.CancelPendingOffer(p.SessionID, p.FileID, p.SenderID)
		}
	case protocol.EvCancelTransfer:
		var p protocol.TimerControl
		if env.DecodePayload(&p) == nil {
			s.coord.CancelTransfer(p.SessionID, p.FileID, p.SenderID)
		}
	case protocol.EvEnterMainPage:
		var p protocol.PeerRef
		if env.DecodePayload(&p) == nil {
			s.coord.EnterMainPage(p.SessionID, p.PeerID)
		}
	case protocol.EvLeaveMainPage:
		var p protocol.PeerRef
		if env.DecodePayload(&p) == nil {
			s.coord.LeaveMainPage(p.SessionID, p.PeerID, p.Reason)
		}
	case protocol.EvEnterSendPage:
		var p protocol.PeerRef
		if env.DecodePayload(&p) == nil {
			s.coord.EnterSendPage(p.SessionID, p.PeerID)
		}
	case protocol.EvLeaveSendPage:
		var p protocol.PeerRef
		if env.DecodePayload(&p) == nil {
			s.coord.LeaveSendPage(p.SessionID, p.PeerID)
		}
	case protocol.EvEnterReceivePage:
		var p protocol.PeerRef
		if env.DecodePayload(&p) == nil {
			s.coord.EnterReceivePage(p.SessionID, p.PeerID)
		}
	case protocol.EvLeaveReceivePage:
		var p protocol.PeerRef
		if env.DecodePayload(&p) == nil {
			s.coord.LeaveReceivePage(p.SessionID, p.PeerID)
		}
	case protocol.EvEnterPinPage:
		var p protocol.PeerRef
		if env.DecodePayload(&p) == nil {
			s.coord.EnterPinPage(p.SessionID, p.PeerID)
		}
	case protocol.EvLeaveSession:
		var p protocol.PeerRef
		if env.DecodePayload(&p) == nil {
			s.coord.LeaveSession(p.SessionID, p.PeerID)
		}
	case protocol.EvAnnounceShutdown:
		s.coord.AnnounceShutdown()
	default:
		s.log.Debug().Str("event", env.Event).Msg("unknown inbound event")
	}
}

func (s *Server) sendError(send func(protocol.Envelope) error, code, message string) {
	env, err := protocol.NewEnvelope(protocol.EvError, protocol.Error{Code: code, Message: message})
	if err != nil {
		return
	}
	env.From = "server"
	if err := send(env); err != nil {
		s.log.Debug().Err(err).Msg("error reply failed")
	}
}
