// Package api is the local control surface: the setup checklist and
// dashboard status, the mode buttons, and an ingest endpoint for an
// accessibility bridge.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nzlov/adaptivehz/internal/interaction"
	"github.com/nzlov/adaptivehz/internal/prefs"
	"github.com/nzlov/adaptivehz/internal/refresh"
	"github.com/nzlov/adaptivehz/internal/settings"
)

const streamInterval = 500 * time.Millisecond

type Controller interface {
	Apply(ctx context.Context, level refresh.Level) error
	ReadStatus(ctx context.Context) refresh.Status
}

type Prefs interface {
	Flags() prefs.Flags
	Update(fn func(*prefs.Flags)) error
}

type State interface {
	Boosted() bool
}

type Deps struct {
	Controller Controller
	Prefs      Prefs
	Signals    interaction.Sink
	State      State
	Logger     *slog.Logger

	SignalRPS   float64
	SignalBurst int
}

type Server struct {
	ctrl     Controller
	prefs    Prefs
	signals  interaction.Sink
	state    State
	logger   *slog.Logger
	limiter  *ipLimiter
	upgrader websocket.Upgrader
}

func New(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if d.SignalRPS <= 0 {
		d.SignalRPS = 200
	}
	if d.SignalBurst <= 0 {
		d.SignalBurst = 400
	}
	return &Server{
		ctrl:    d.Controller,
		prefs:   d.Prefs,
		signals: d.Signals,
		state:   d.State,
		logger:  logger.With("component", "api"),
		limiter: newIPLimiter(d.SignalRPS, d.SignalBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// loopback only
				return true
			},
		},
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/status/stream", s.handleStatusStream)
		r.Post("/verify", s.handleVerify)
		r.Post("/mode/{mode}", s.handleMode)
		r.Put("/keep-alive", s.handleKeepAlive)
		r.With(s.limiter.middleware).Post("/signals", s.handleSignal)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not found")
	})
	return r
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control api starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("graceful shutdown failed", "error", err)
		return err
	}
	s.logger.Info("control api shut down")
	return ctx.Err()
}

type setup struct {
	ADBGranted       bool `json:"adb_granted"`
	AdaptiveEnabled  bool `json:"adaptive_enabled"`
	KeepAliveEnabled bool `json:"keep_alive_enabled"`
	Complete         bool `json:"complete"`
}

type statusResponse struct {
	refresh.Status
	Boosted bool        `json:"boosted"`
	Flags   prefs.Flags `json:"flags"`
	Setup   setup       `json:"setup"`
}

func (s *Server) status(ctx context.Context) statusResponse {
	f := s.prefs.Flags()
	resp := statusResponse{
		Status: s.ctrl.ReadStatus(ctx),
		Flags:  f,
		Setup: setup{
			ADBGranted:       f.ADBGranted,
			AdaptiveEnabled:  f.DynamicEnabled,
			KeepAliveEnabled: f.KeepAliveEnabled,
			Complete:         f.ADBGranted && f.DynamicEnabled && f.KeepAliveEnabled,
		},
	}
	if s.state != nil {
		resp.Boosted = s.state.Boosted()
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status(r.Context()))
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()
	for {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(s.status(r.Context())); err != nil {
			return
		}
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

type noticeResponse struct {
	Notice string      `json:"notice"`
	Flags  prefs.Flags `json:"flags"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	err := s.ctrl.Apply(r.Context(), refresh.Minimum)
	switch {
	case err == nil:
		if err := s.prefs.Update(func(f *prefs.Flags) { f.ADBGranted = true }); err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, noticeResponse{Notice: "secure settings access verified", Flags: s.prefs.Flags()})
	case errors.Is(err, settings.ErrPermissionDenied):
		writeJSONError(w, http.StatusForbidden, "WRITE_SECURE_SETTINGS is missing")
	default:
		s.logger.Warn("verify failed", "error", err)
		writeJSONError(w, http.StatusServiceUnavailable, "verification unavailable on this device")
	}
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	var (
		level  refresh.Level
		update func(*prefs.Flags)
		notice string
	)
	switch chi.URLParam(r, "mode") {
	case "adaptive":
		// start at minimum; the debouncer boosts on interaction
		level = refresh.Minimum
		update = func(f *prefs.Flags) { f.DynamicEnabled = true; f.ADBGranted = true }
		notice = "adaptive mode applied"
	case "minimum":
		level = refresh.Minimum
		update = func(f *prefs.Flags) { f.DynamicEnabled = false }
		notice = "minimum refresh rate applied"
	case "maximum":
		level = refresh.Maximum
		update = func(f *prefs.Flags) { f.DynamicEnabled = false }
		notice = "maximum refresh rate applied"
	default:
		writeJSONError(w, http.StatusNotFound, "unknown mode")
		return
	}

	if err := s.prefs.Update(update); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.ctrl.Apply(r.Context(), level); err != nil {
		if errors.Is(err, settings.ErrPermissionDenied) {
			writeJSONError(w, http.StatusForbidden, "secure settings permission missing")
			return
		}
		s.logger.Warn("mode write failed", "level", level, "error", err)
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, noticeResponse{Notice: notice, Flags: s.prefs.Flags()})
}

func (s *Server) handleKeepAlive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		writeJSONError(w, http.StatusBadRequest, "expected {\"enabled\": bool}")
		return
	}
	if err := s.prefs.Update(func(f *prefs.Flags) { f.KeepAliveEnabled = *body.Enabled }); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	notice := "stability mode disabled"
	if *body.Enabled {
		notice = "stability mode enabled"
	}
	writeJSON(w, http.StatusOK, noticeResponse{Notice: notice, Flags: s.prefs.Flags()})
}

type signalRequest struct {
	Kind    string `json:"kind"`
	Package string `json:"package"`
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	kind, err := interaction.ParseKind(req.Kind)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.signals.Notify(interaction.Signal{Kind: kind, Package: req.Package, At: time.Now()})
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", chimw.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg, "code": status})
}
