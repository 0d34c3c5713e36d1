package server

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"osdprof/internal/metrics"
	"osdprof/internal/stats"
	"osdprof/internal/storage"
)

// Server exposes a running collection: a live sample feed over websocket,
// on-demand phase statistics, and pipeline metrics.
type Server struct {
	httpServer *http.Server
	store      *storage.Store
	engine     *stats.Engine
	feed       *Feed
	log        *zap.Logger
}

// New creates a server for the given listen address. The store may be nil
// when samples are streamed instead of persisted; /api/report then reports
// that no store is attached.
func New(addr string, store *storage.Store, m *metrics.Pipeline, log *zap.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{Addr: addr, Handler: mux},
		store:      store,
		feed:       newFeed(log),
		log:        log,
	}
	if store != nil {
		s.engine = stats.NewEngine(store, log)
	}

	mux.HandleFunc("/api/report", s.handleReport)
	mux.HandleFunc("/api/summary", s.handleSummary)
	mux.HandleFunc("/ws", s.feed.handleWS)
	mux.Handle("/metrics", m.Handler())
	return s
}

// Run blocks and serves HTTP traffic.
func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts the server down and disconnects feed clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.feed.closeAll()
	return s.httpServer.Shutdown(ctx)
}

// Feed returns the live sample feed; it implements collector.Sink.
func (s *Server) Feed() *Feed {
	return s.feed
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		http.Error(w, "no store attached to this run", http.StatusConflict)
		return
	}
	class := r.URL.Query().Get("type")
	if class == "" {
		class = "historic"
	}
	if class != "ops" && class != "historic" {
		http.Error(w, "type must be ops or historic", http.StatusBadRequest)
		return
	}
	means, err := s.engine.Compute(class, r.URL.Query().Get("osd"))
	if err != nil {
		s.log.Error("report failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, means)
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	if s.store == nil {
		http.Error(w, "no store attached to this run", http.StatusConflict)
		return
	}
	summary, err := s.store.Summary()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
