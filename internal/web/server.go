// Package web serves the generator-ats status page, its JSON twin and the
// event log over HTTP. Every route is read-only.
package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sweeney/generator-ats/internal/status"
)

// Server serves status pages from a tracker snapshot.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker) *Server {
	s := &Server{tracker: tracker}

	mux := http.NewServeMux()
	mux.HandleFunc("/", readOnly(s.handleIndex))
	mux.HandleFunc("/index.html", readOnly(s.handleIndex))
	mux.HandleFunc("/index.json", readOnly(s.handleJSON))
	mux.HandleFunc("/log.json", readOnly(s.handleLogJSON))
	mux.HandleFunc("/log.txt", readOnly(s.handleLogText))

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// readOnly rejects anything but GET/HEAD and disables caching; every page is
// a live snapshot.
func readOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		h(w, r)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, s.tracker.Snapshot())
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

func (s *Server) handleLogJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatLogJSON(s.tracker.Snapshot().Log))
}

// handleLogText prints the log the way the serial console dump does.
func (s *Server) handleLogText(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, e := range s.tracker.Snapshot().Log {
		fmt.Fprintf(w, "%d: %s\n", e.Slot, e.Line())
	}
}
