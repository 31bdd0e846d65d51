package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/beamdrop/beamdrop/internal/history"
	"github.com/beamdrop/beamdrop/internal/qr"
	"github.com/beamdrop/beamdrop/internal/session"
)

type sessionView struct {
	SessionID string `json:"sessionId"`
	Pin       string `json:"pin"`
	URL       string `json:"url"`
	QRDataURL string `json:"qrDataUrl,omitempty"`
	PinExpiry int64  `json:"pinExpiry"` // unix millis
}

func (s *Server) sessionView(r *http.Request, sess *session.Session) sessionView {
	joinURL := fmt.Sprintf("http://%s/pin?session=%s", r.Host, sess.ID)
	view := sessionView{
		SessionID: sess.ID,
		Pin:       sess.Pin,
		URL:       joinURL,
		PinExpiry: sess.PinExpiry.UnixMilli(),
	}
	dataURL, err := qr.DataURL(joinURL, 256)
	if err != nil {
		s.log.Error().Err(err).Msg("qr generation failed")
	} else {
		view.QRDataURL = dataURL
	}
	return view
}

// handleGetCurrentSession returns the host's session. A session query param
// looks up that exact session; otherwise the current one is reused or
// rotated per the forceNew/refresh policy.
func (s *Server) handleGetCurrentSession(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if id := q.Get("session"); id != "" {
		sess, ok := s.coord.SessionByID(id)
		if !ok {
			sendError(w, http.StatusNotFound, "session not found or expired")
			return
		}
		sendJSON(w, http.StatusOK, s.sessionView(r, sess))
		return
	}

	forceNew := q.Get("forceNew") == "1" || q.Get("forceNew") == "true"
	refresh := q.Get("refresh") == "1" || q.Get("refresh") == "true"
	sess := s.coord.GetOrCreateCurrent(forceNew, refresh)
	sendJSON(w, http.StatusOK, s.sessionView(r, sess))
}

func (s *Server) handleSessionDetails(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, ok := s.coord.SessionByID(id)
	if !ok {
		sendError(w, http.StatusNotFound, "session not found or expired")
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{
		"sessionId":   sess.ID,
		"pinExpiry":   sess.PinExpiry.UnixMilli(),
		"peersInMain": sess.ConnectedOnMain(),
	})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	entries := s.hist.ForUser(userID)
	if entries == nil {
		entries = []history.Entry{}
	}
	sendJSON(w, http.StatusOK, map[string]any{"transfers": entries})
}

type pinRequest struct {
	SessionID string `json:"sessionId"`
	Pin       string `json:"pin"`
}

func (s *Server) handleVerifyPin(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	err := s.coord.Registry().VerifyPin(req.SessionID, req.Pin)
	switch {
	case err == nil:
		sendJSON(w, http.StatusOK, map[string]bool{"valid": true})
	case errors.Is(err, session.ErrPinMismatch):
		sendJSON(w, http.StatusOK, map[string]any{"valid": false, "error": err.Error()})
	case errors.Is(err, session.ErrPinExpired):
		sendJSON(w, http.StatusGone, map[string]any{"valid": false, "error": err.Error()})
	default:
		sendJSON(w, http.StatusNotFound, map[string]any{"valid": false, "error": err.Error()})
	}
}

func (s *Server) handleFindSessionByPin(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	sess, ok := s.coord.Registry().FindByPin(req.Pin)
	if !ok {
		sendError(w, http.StatusNotFound, "no session matches that PIN")
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{
		"sessionId": sess.ID,
		"pinExpiry": sess.PinExpiry.UnixMilli(),
	})
}

// handleGetPinExpiry serves the countdown for the manual-entry page, which
// has no session id yet: it reports on the most recent live session.
func (s *Server) handleGetPinExpiry(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("session"); id != "" {
		sess, ok := s.coord.SessionByID(id)
		if !ok {
			sendError(w, http.StatusNotFound, "session not found or expired")
			return
		}
		sendJSON(w, http.StatusOK, map[string]any{
			"pinExpiry": sess.PinExpiry.UnixMilli(),
			"remaining": int(time.Until(sess.PinExpiry).Seconds()),
		})
		return
	}

	sess, ok := s.coord.Registry().MostRecent()
	if !ok {
		sendError(w, http.StatusNotFound, "no active session")
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{
		"pinExpiry": sess.PinExpiry.UnixMilli(),
		"remaining": int(time.Until(sess.PinExpiry).Seconds()),
	})
}

func (s *Server) handleDeviceName(w http.ResponseWriter, r *http.Request) {
	peerID := mux.Vars(r)["peerID"]
	name := s.names.Get(peerID)
	if name == "" {
		sendError(w, http.StatusNotFound, "no name stored for that device")
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"peerId": peerID, "deviceName": name})
}

func (s *Server) handleDeviceNames(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, s.names.All())
}
