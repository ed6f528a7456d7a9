package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mpaland/chan-sccp/internal/call"
	"github.com/mpaland/chan-sccp/internal/config"
)

// CallDirectory is the view of the call core consumed by the management
// API: read-only snapshots plus administrative hangup.
type CallDirectory interface {
	Snapshots() []call.ChannelSnapshot
	ChannelSnapshot(id call.ID) (call.ChannelSnapshot, bool)
	LineSnapshots() []call.LineSnapshot
	DeviceSnapshots() []call.DeviceSnapshot
	HangupChannel(id call.ID) error
	NotifyDevice(deviceID, text string, timeout int) error
	ChannelCount() int
	AllocatorPosition() uint32
}

// MediaCounter reports the number of live media sessions.
type MediaCounter interface {
	Count() int
}

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router    *chi.Mux
	calls     CallDirectory
	media     MediaCounter
	cfg       *config.Config
	metrics   http.Handler
	limiter   *rateLimiter
	startTime time.Time
}

// NewServer creates the HTTP handler with all routes mounted. The gatherer
// backs the /metrics endpoint.
func NewServer(calls CallDirectory, media MediaCounter, cfg *config.Config, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		calls:     calls,
		media:     media,
		cfg:       cfg,
		limiter:   newRateLimiter(defaultRateLimit()),
		startTime: time.Now(),
	}
	if gatherer != nil {
		s.metrics = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops background goroutines owned by the server.
func (s *Server) Close() {
	s.limiter.stop()
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	// Global middleware stack.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logRequests)
	r.Use(recoverPanics)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	// API routes under /api/v1.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.rateLimit)

		r.Get("/health", s.handleHealth)

		r.Route("/channels", func(r chi.Router) {
			r.Get("/", s.handleListChannels)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetChannel)
				r.Post("/hangup", s.handleHangupChannel)
			})
		})

		r.Get("/lines", s.handleListLines)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/{id}/notify", s.handleNotifyDevice)
		})

		r.Get("/system/status", s.handleSystemStatus)
	})

	slog.Info("api routes mounted")
}

// handleHealth returns basic health status. Unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
