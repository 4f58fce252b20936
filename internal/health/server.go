package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/IbrahimO9/discord-music-bot/pkg/logger"
	"github.com/IbrahimO9/discord-music-bot/pkg/metrics"
)

const banner = "Discord Music Bot is running!"

// Sessions reports how many guilds are playing
type Sessions interface {
	Len() int
}

// Server exposes liveness and metrics over HTTP
type Server struct {
	srv      *http.Server
	sessions Sessions
	metrics  *metrics.Metrics
	started  time.Time
	log      *logger.Logger
}

func NewServer(port string, sessions Sessions, m *metrics.Metrics, log *logger.Logger) *Server {
	s := &Server{
		sessions: sessions,
		metrics:  m,
		started:  time.Now(),
		log:      log.WithComponent("health"),
	}
	s.srv = &http.Server{
		Addr:              net.JoinHostPort("", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router builds the route table
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	return r
}

// Start serves in the background until Shutdown
func (s *Server) Start() {
	go func() {
		s.log.Info("HTTP server listening", logger.Fields{"addr": s.srv.Addr})
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server failed", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(banner))
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Uptime   string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", Uptime: time.Since(s.started).Round(time.Second).String()}
	if s.sessions != nil {
		resp.Sessions = s.sessions.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil || !s.metrics.IsEnabled() {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "metrics disabled"})
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
