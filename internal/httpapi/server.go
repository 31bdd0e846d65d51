// Package httpapi exposes the REST surface, the file upload/download
// endpoints that feed the download dispatcher, and the gated static pages.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/beamdrop/beamdrop/internal/config"
	"github.com/beamdrop/beamdrop/internal/coordinator"
	"github.com/beamdrop/beamdrop/internal/history"
	"github.com/beamdrop/beamdrop/internal/names"
)

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	cfg   config.ServerConfig
	log   zerolog.Logger
	coord *coordinator.Coordinator
	names *names.Store
	hist  *history.Store

	staticDir string
	wsHandler http.HandlerFunc
	shutdown  func() // initiates process shutdown; set by main
}

// NewServer builds the HTTP server. wsHandler serves /ws; shutdown is invoked
// by the operator endpoint after peers have been warned.
func NewServer(cfg config.ServerConfig, log zerolog.Logger, coord *coordinator.Coordinator, nameStore *names.Store, hist *history.Store, staticDir string, wsHandler http.HandlerFunc, shutdown func()) *Server {
	return &Server{
		cfg:       cfg,
		log:       log,
		coord:     coord,
		names:     nameStore,
		hist:      hist,
		staticDir: staticDir,
		wsHandler: wsHandler,
		shutdown:  shutdown,
	}
}

// Router wires every route.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/debug/queues", s.handleDebugQueues).Methods(http.MethodGet)

	if s.wsHandler != nil {
		r.HandleFunc("/ws", s.wsHandler)
	}

	r.HandleFunc("/upload/{sessionID}", s.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/download/{sessionID}/{fileID}", s.handleDownload).Methods(http.MethodGet)

	r.HandleFunc("/get-current-session", s.handleGetCurrentSession).Methods(http.MethodGet)
	r.HandleFunc("/recent/{userID}", s.handleRecent).Methods(http.MethodGet)
	r.HandleFunc("/api/session-details/{id}", s.handleSessionDetails).Methods(http.MethodGet)
	r.HandleFunc("/api/verify-pin", s.handleVerifyPin).Methods(http.MethodPost)
	r.HandleFunc("/api/find-session-by-pin", s.handleFindSessionByPin).Methods(http.MethodPost)
	r.HandleFunc("/api/get-pin-expiry", s.handleGetPinExpiry).Methods(http.MethodGet)
	r.HandleFunc("/api/device-name/{peerID}", s.handleDeviceName).Methods(http.MethodGet)
	r.HandleFunc("/api/device-names", s.handleDeviceNames).Methods(http.MethodGet)
	r.HandleFunc("/api/shutdown", s.handleShutdown).Methods(http.MethodPost)

	s.registerPages(r)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleDebugQueues(w http.ResponseWriter, r *http.Request) {
	states := s.coord.QueueStates()
	if states == nil {
		states = []coordinator.QueueState{}
	}
	sendJSON(w, http.StatusOK, states)
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("force") != "true" {
		sendError(w, http.StatusBadRequest, "shutdown requires force=true")
		return
	}
	s.log.Warn().Msg("operator shutdown requested")
	s.coord.AnnounceShutdown()
	sendJSON(w, http.StatusOK, map[string]bool{"ok": true})
	if s.shutdown != nil {
		go s.shutdown()
	}
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, map[string]string{"error": message})
}
