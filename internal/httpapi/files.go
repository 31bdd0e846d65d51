package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// handleUpload streams a multipart upload to a temp file, then renames it to
// its final session-scoped name once the fileId field is known. Field order
// in the body is not guaranteed, so the decision happens after the last part.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]
	if _, ok := s.coord.SessionByID(sessionID); !ok {
		sendError(w, http.StatusNotFound, "session not found or expired")
		return
	}

	reader, err := r.MultipartReader()
	if err != nil {
		sendError(w, http.StatusBadRequest, "expected multipart body")
		return
	}

	if err := os.MkdirAll(s.cfg.UploadsDir, 0o755); err != nil {
		s.log.Error().Err(err).Msg("create uploads dir")
		sendError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}

	var (
		fileID   string
		peerID   string
		fileName string
		mimeType string
		size     int64
		tempPath string
	)

	cleanup := func() {
		if tempPath != "" {
			_ = os.Remove(tempPath)
		}
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			cleanup()
			sendError(w, http.StatusBadRequest, "malformed multipart body")
			return
		}

		switch part.FormName() {
		case "fileId":
			fileID = readFormValue(part)
		case "peerId":
			peerID = readFormValue(part)
		case "file":
			if tempPath != "" {
				_ = part.Close()
				continue // one file per upload
			}
			fileName = part.FileName()
			mimeType = part.Header.Get("Content-Type")
			tempPath = filepath.Join(s.cfg.UploadsDir, uuid.NewString()+".tmp")
			dst, err := os.Create(tempPath)
			if err != nil {
				s.log.Error().Err(err).Msg("create temp upload")
				sendError(w, http.StatusInternalServerError, "storage unavailable")
				return
			}
			size, err = io.Copy(dst, part)
			closeErr := dst.Close()
			if err != nil || closeErr != nil {
				cleanup()
				sendError(w, http.StatusBadRequest, "upload stream interrupted")
				return
			}
		default:
			_, _ = io.Copy(io.Discard, part)
		}
		_ = part.Close()
	}

	if tempPath == "" {
		sendError(w, http.StatusBadRequest, "missing file part")
		return
	}
	if fileID == "" {
		// Without a fileId the dispatcher can never release the file; the
		// stale temp is deleted right away.
		cleanup()
		sendError(w, http.StatusBadRequest, "missing fileId")
		return
	}

	finalPath := filepath.Join(s.cfg.UploadsDir, fmt.Sprintf("%s-%s", sessionID, fileID))
	if err := os.Rename(tempPath, finalPath); err != nil {
		cleanup()
		s.log.Error().Err(err).Msg("finalize upload")
		sendError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}

	s.coord.RegisterUpload(sessionID, fileID, fileName, mimeType, finalPath, size)
	s.log.Info().Str("session", sessionID).Str("file", fileID).Str("peer", peerID).Int64("size", size).Msg("upload stored")
	sendJSON(w, http.StatusOK, map[string]any{"fileId": fileID, "size": size})
}

func readFormValue(part io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(part, 1024))
	if err != nil {
		return ""
	}
	return string(b)
}

// handleDownload streams a stored file to one receiver. Its terminal event,
// completion or client abort, drives the dispatcher forward either way.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID, fileID := vars["sessionID"], vars["fileID"]
	receiverID := r.URL.Query().Get("receiver")
	if receiverID == "" {
		sendError(w, http.StatusBadRequest, "missing receiver")
		return
	}

	name, mimeType, path, size, ok := s.coord.FileForDownload(sessionID, fileID)
	if !ok {
		sendError(w, http.StatusNotFound, "file not found")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		s.log.Error().Err(err).Str("file", fileID).Msg("open stored file")
		sendError(w, http.StatusNotFound, "file not found")
		return
	}
	defer f.Close()

	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))

	_, copyErr := io.Copy(w, f)
	aborted := copyErr != nil

	s.coord.FinishDownload(sessionID, fileID, receiverID, aborted)
}
