package httpapi

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
)

const forbiddenPage = `<!DOCTYPE html>
<html>
<head><title>Access denied</title></head>
<body>
<h1>403 &mdash; session mismatch</h1>
<p>This link belongs to a session that is no longer active. Scan the current QR code or enter the PIN again.</p>
</body>
</html>`

// registerPages wires the static pages, each gated by the session-access
// rule, plus a plain file server for assets.
func (s *Server) registerPages(r *mux.Router) {
	if s.staticDir == "" {
		return
	}

	r.HandleFunc("/", s.gatedPage("index.html")).Methods(http.MethodGet)
	r.HandleFunc("/pin", func(w http.ResponseWriter, req *http.Request) {
		target := "/pin.html"
		if req.URL.RawQuery != "" {
			target += "?" + req.URL.RawQuery
		}
		http.Redirect(w, req, target, http.StatusFound)
	}).Methods(http.MethodGet)
	r.HandleFunc("/pin.html", s.gatedPage("pin.html")).Methods(http.MethodGet)
	r.HandleFunc("/main.html", s.gatedPage("main.html")).Methods(http.MethodGet)
	r.HandleFunc("/send.html", s.gatedPage("send.html")).Methods(http.MethodGet)
	r.HandleFunc("/receive.html", s.gatedPage("receive.html")).Methods(http.MethodGet)

	r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.staticDir)))
}

// gatedPage serves a static page unless the request names a session that is
// not the live host session.
func (s *Server) gatedPage(page string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id := r.URL.Query().Get("session"); id != "" {
			cur := s.coord.Registry().Current()
			if cur == nil || cur.ID != id || cur.Expired(time.Now()) {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(forbiddenPage))
				return
			}
		}
		http.ServeFile(w, r, filepath.Join(s.staticDir, page))
	}
}
