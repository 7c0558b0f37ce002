// Package web exposes the panel state to UI consumers: a JSON API over
// gorilla/mux and a WebSocket hub pushing refresh events. Page rendering
// lives in the consumers; this layer only serves state.
package web

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	"smartfarm-go-panel/internal/auth"
	"smartfarm-go-panel/internal/farm"
	"smartfarm-go-panel/internal/poll"
)

// ServerOption configures the panel server.
type ServerOption func(*Server)

// WithAPIKey enables API key authentication on /api/ routes.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) { s.apiKey = key }
}

// WithAllowedOrigins sets allowed WebSocket origin patterns.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) { s.allowedOrigins = origins }
}

// WithBaseContext sets the context under which device selections run
// their refresh loops. Defaults to context.Background().
func WithBaseContext(ctx context.Context) ServerOption {
	return func(s *Server) { s.baseCtx = ctx }
}

// Services bundles the domain layer handed to the server.
type Services struct {
	Auth      *auth.Manager
	Devices   *farm.DeviceService
	Presets   *farm.PresetService
	Logs      *farm.LogService
	Gallery   *farm.GalleryService
	Dashboard *poll.Dashboard
}

// Server is the panel's HTTP surface.
type Server struct {
	svc            Services
	router         *mux.Router
	hub            *Hub
	logger         *slog.Logger
	apiKey         string
	allowedOrigins []string
	baseCtx        context.Context
	wg             sync.WaitGroup
}

// NewServer creates the panel server and starts its WebSocket hub.
func NewServer(svc Services, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		svc:     svc,
		router:  mux.NewRouter(),
		logger:  logger.With("component", "web"),
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.hub = NewHub(s.logger)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run()
	}()

	s.routes()
	return s
}

// Hub returns the refresh-event hub, so the dashboard's update hook can
// broadcast into it.
func (s *Server) Hub() *Hub { return s.hub }

// Stop shuts down the WebSocket hub and waits for it.
func (s *Server) Stop() {
	s.hub.Stop()
	s.wg.Wait()
}

func (s *Server) routes() {
	r := s.router

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/api/session", s.handleSessionStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/session", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/session", s.handleLogout).Methods(http.MethodDelete)

	r.HandleFunc("/api/devices", s.handleListDevices).Methods(http.MethodGet)
	r.HandleFunc("/api/devices", s.handleCreateDevice).Methods(http.MethodPost)
	r.HandleFunc("/api/devices/{id:[0-9]+}", s.handleDeleteDevice).Methods(http.MethodDelete)

	r.HandleFunc("/api/dashboard", s.handleDashboard).Methods(http.MethodGet)
	r.HandleFunc("/api/dashboard/select", s.handleSelect).Methods(http.MethodPost)
	r.HandleFunc("/api/dashboard/refresh", s.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/api/dashboard/control", s.handleControl).Methods(http.MethodPost)
	r.HandleFunc("/api/dashboard/reset", s.handleReset).Methods(http.MethodPost)

	r.HandleFunc("/api/presets", s.handleListPresets).Methods(http.MethodGet)
	r.HandleFunc("/api/presets", s.handleCreatePreset).Methods(http.MethodPost)
	r.HandleFunc("/api/presets/{id}", s.handleUpdatePreset).Methods(http.MethodPut)
	r.HandleFunc("/api/presets/{id}", s.handleDeletePreset).Methods(http.MethodDelete)
	r.HandleFunc("/api/presets/{id}/apply", s.handleApplyPreset).Methods(http.MethodPost)

	r.HandleFunc("/api/logs", s.handleLogs).Methods(http.MethodGet)
	r.HandleFunc("/api/gallery", s.handleGallery).Methods(http.MethodGet)

	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
}

// ServeHTTP applies the API key guard, then routes. The WebSocket
// endpoint is exempt because browsers cannot set custom headers on the
// upgrade request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.apiKey != "" && strings.HasPrefix(r.URL.Path, "/api/") {
		key := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}
	s.router.ServeHTTP(w, r)
}
