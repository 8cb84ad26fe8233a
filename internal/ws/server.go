package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/bus"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/history"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/metrics"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/stream"
	"github.com/gorilla/websocket"
)

const serverName = "X-26 iSpotter"

type Options struct {
	Port           int
	AllowedOrigins []string
	// BaseContext bounds streams started over the REST API. It should be
	// the process lifetime, not a request's.
	BaseContext context.Context
	// Assets serves the dashboard at "/". Nil leaves "/" unrouted.
	Assets http.Handler
}

type Server struct {
	opts           Options
	bus            *bus.Bus
	stream         *stream.Controller
	history        *history.Buffer
	metrics        *metrics.Metrics
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
}

func NewServer(opts Options, b *bus.Bus, ctl *stream.Controller, hist *history.Buffer, m *metrics.Metrics) *Server {
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	s := &Server{
		opts:           opts,
		bus:            b,
		stream:         ctl,
		history:        hist,
		metrics:        m,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
	}

	for _, origin := range opts.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/stream/start", s.handleStreamStart)
	mux.HandleFunc("/api/stream/stop", s.handleStreamStop)
	mux.HandleFunc("/api/stream/status", s.handleStreamStatus)
	mux.HandleFunc("/api/snapshot/latest", s.handleLatest)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/stats", s.handleStats)

	if s.opts.Assets != nil {
		mux.Handle("/", s.opts.Assets)
	}
}

// register admits a new subscriber or writes 503 when the server is full.
func (s *Server) register(w http.ResponseWriter, r *http.Request) (*bus.Subscriber, bool) {
	sub, err := s.bus.Register()
	if err != nil {
		if errors.Is(err, bus.ErrTooManySubscribers) {
			s.metrics.ConnectionRejected()
			log.Printf("rejecting %s: %v", r.RemoteAddr, err)
		}
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return nil, false
	}
	return sub, true
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.register(w, r)
	if !ok {
		return
	}
	defer s.bus.Unregister(sub.ID())

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	s.metrics.ConnectionOpened()
	log.Printf("WebSocket client connected: %s (%d subscribers)", r.RemoteAddr, s.bus.Count())
	defer func() {
		s.metrics.ConnectionClosed()
		log.Printf("WebSocket client disconnected: %s", r.RemoteAddr)
	}()

	newClient(conn, sub, s.stream.Seq, r.RemoteAddr).serve(r.Context())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("response encode error: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.stream.Status()
	resp := HealthResponse{
		Status:       "running",
		Server:       serverName,
		Port:         s.opts.Port,
		StreamActive: st.Running,
		Session:      st.State,
		Subscribers:  s.bus.Count(),
		Sequence:     st.Seq,
	}
	if h, ok := s.stream.Health(); ok {
		resp.Source = &h
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStreamStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	err := s.stream.Start(s.opts.BaseContext)
	switch {
	case errors.Is(err, stream.ErrAlreadyRunning):
		writeJSON(w, http.StatusOK, StreamResponse{Status: "already_running", Message: "Telemetry stream is already active"})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, StreamResponse{Status: "error", Message: err.Error()})
	default:
		writeJSON(w, http.StatusOK, StreamResponse{Status: "success", Message: "Telemetry stream started"})
	}
}

func (s *Server) handleStreamStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	err := s.stream.Stop()
	switch {
	case errors.Is(err, stream.ErrNotRunning):
		writeJSON(w, http.StatusOK, StreamResponse{Status: "not_running", Message: "Telemetry stream is not active"})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, StreamResponse{Status: "error", Message: err.Error()})
	default:
		writeJSON(w, http.StatusOK, StreamResponse{Status: "success", Message: "Telemetry stream stopped"})
	}
}

func (s *Server) handleStreamStatus(w http.ResponseWriter, r *http.Request) {
	st := s.stream.Status()
	resp := StreamStatusResponse{
		IsRunning: st.Running,
		Status:    "inactive",
		Session:   st.State,
		Sequence:  st.Seq,
	}
	if st.Running {
		resp.Status = "active"
		resp.Since = &st.Since
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.history.Latest()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	count := 0
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid count", http.StatusBadRequest)
			return
		}
		count = n
	}
	snaps := s.history.Recent(count)
	if len(snaps) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Count: len(snaps), Snapshots: snaps})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		Snapshot:    s.metrics.Snapshot(),
		Subscribers: s.bus.Count(),
		Policy:      s.bus.Policy().String(),
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe serves handler until ctx is cancelled, then shuts down
// gracefully. Request contexts derive from ctx, so open WebSocket and SSE
// connections are closed on shutdown too.
func ListenAndServe(ctx context.Context, host string, port int, handler http.Handler) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           securityHeaders(handler),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
