package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"routerrebooter/internal/config"
	"routerrebooter/internal/history"
	"routerrebooter/internal/metrics"
	"routerrebooter/internal/models"
	"routerrebooter/internal/rebooter"
)

const (
	defaultTimelineWindow = 6 * time.Hour
	manualRebootTimeout   = time.Minute
	// Samples this far before the window can still gap-fill its first buckets.
	timelineLookback = 2 * time.Hour
)

// Controller is the part of the control loop the server talks to.
type Controller interface {
	Snapshot() models.ConnectivityState
	RequestReboot(ctx context.Context) (models.RebootEvent, error)
}

// Server wraps HTTP serving of the status API.
type Server struct {
	httpServer   *http.Server
	controller   Controller
	recorder     *history.Recorder
	cfg          config.StatusConfig
	log          logrus.FieldLogger
	historyLimit int
}

// New creates a configured HTTP server for the rebooter.
func New(cfg config.StatusConfig, controller Controller, recorder *history.Recorder, log logrus.FieldLogger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		httpServer:   &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		controller:   controller,
		recorder:     recorder,
		cfg:          cfg,
		log:          log,
		historyLimit: cfg.HistoryLimit,
	}
	s.registerRoutes(mux)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run blocks and serves HTTP traffic.
func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/reboots", s.handleReboots)
	mux.HandleFunc("/api/uptime", s.handleUptime)
	mux.HandleFunc("/api/timeline", s.handleTimeline)
	mux.HandleFunc("/api/ws", s.handleWS)
	mux.HandleFunc("/api/reboot", s.handleReboot)
}

type statusResponse struct {
	State       models.ConnectivityState `json:"state"`
	Uptime      metrics.Uptime           `json:"uptime"`
	GeneratedAt time.Time                `json:"generated_at"`
}

func (s *Server) buildStatus() statusResponse {
	return statusResponse{
		State:       s.controller.Snapshot(),
		Uptime:      metrics.ComputeUptime(s.recorder.Samples(s.historyLimit), s.recorder.Reboots(0)),
		GeneratedAt: time.Now().UTC(),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.buildStatus())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, "limit", s.historyLimit)
	samples := s.recorder.Samples(limit)
	if samples == nil {
		samples = []models.ConnectivityStatus{}
	}
	writeJSON(w, http.StatusOK, samples)
}

func (s *Server) handleReboots(w http.ResponseWriter, r *http.Request) {
	reboots := s.recorder.Reboots(parseLimit(r, "limit", 0))
	if reboots == nil {
		reboots = []models.RebootEvent{}
	}
	writeJSON(w, http.StatusOK, reboots)
}

func (s *Server) handleUptime(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, "limit", s.historyLimit)
	writeJSON(w, http.StatusOK, metrics.ComputeUptime(s.recorder.Samples(limit), s.recorder.Reboots(0)))
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	points := parseLimit(r, "points", history.DefaultTimelinePoints)
	window := defaultTimelineWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			window = d
		}
	}
	end := time.Now().UTC()
	start := end.Add(-window)
	writeJSON(w, http.StatusOK, history.BuildTimeline(
		s.recorder.SamplesSince(start.Add(-timelineLookback)),
		s.recorder.Reboots(0),
		start, end, points,
	))
}

func (s *Server) handleReboot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}
	if s.cfg.PasswordHash == "" {
		writeError(w, http.StatusForbidden, "manual reboot is disabled")
		return
	}
	if !s.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="routerrebooter"`)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), manualRebootTimeout)
	defer cancel()
	event, err := s.controller.RequestReboot(ctx)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, event)
	case errors.Is(err, rebooter.ErrCooldown):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, rebooter.ErrNotRunning), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.log.WithError(err).Error("manual reboot failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) authorized(r *http.Request) bool {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.Username)) != 1 {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(s.cfg.PasswordHash), []byte(pass)) == nil
}

func parseLimit(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	if fallback > 0 && value > fallback {
		return fallback
	}
	return value
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
