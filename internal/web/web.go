package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"crocker/internal/config"
	"crocker/internal/device"
	appLog "crocker/internal/log"
)

// SnapshotSource is what the API reads. It never reaches into the main
// loop's components directly.
type SnapshotSource interface {
	Snapshot() *device.Snapshot
}

// Server provides read-only HTTP APIs over the device snapshot.
type Server struct {
	cfg *config.Config
	src SnapshotSource
	mux *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, src SnapshotSource) *Server {
	s := &Server{
		cfg: cfg,
		src: src,
		mux: http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials count as disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="crocker", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve listens on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, cfg *config.Config, src SnapshotSource) error {
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           NewServer(cfg, src).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/events", s.handleEvents)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// snapshot fetches the current snapshot or answers 503 when the device has
// not booted yet.
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) (*device.Snapshot, bool) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return nil, false
	}
	snap := s.src.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "device not ready")
		return nil, false
	}
	return snap, true
}

// handleStatus returns the timer, alarm, clock and screen state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Events     []device.EventView `json:"events"`
	Generation uint64             `json:"generation"`
	Timezone   string             `json:"timezone"`
}

// handleEvents returns today's event list as the schedule cache holds it.
//
// GET /api/events?from=HH:MM&limit=N
//   - from:  only events starting at or after this minute of day
//   - limit: at most N events (default all)
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	from := -1
	if v := q.Get("from"); v != "" {
		m, err := parseHHMM(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be HH:MM")
			return
		}
		from = m
	}
	limit := parseIntDefault(q.Get("limit"), len(snap.Events))
	if limit < 0 {
		limit = 0
	}

	out := make([]device.EventView, 0, len(snap.Events))
	for _, ev := range snap.Events {
		if len(out) >= limit {
			break
		}
		if int(ev.StartMinute) < from {
			continue
		}
		out = append(out, ev)
	}

	writeJSON(w, http.StatusOK, eventsResponse{
		Events:     out,
		Generation: snap.Generation,
		Timezone:   s.cfg.Timezone,
	})
}

func parseHHMM(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
