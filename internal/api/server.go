package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/halyard/internal/health"
	"grimm.is/halyard/internal/inventory"
	"grimm.is/halyard/internal/logging"
	"grimm.is/halyard/internal/metrics"
	"grimm.is/halyard/internal/profile"
)

// ServerConfig holds HTTP server timeouts and limits.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration // Slowloris prevention
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodyBytes      int64
	// HandlerTimeout bounds one request. Replace rollbacks run past it.
	HandlerTimeout time.Duration
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
		MaxBodyBytes:      1 << 20,
		HandlerTimeout:    45 * time.Second,
	}
}

// Server is the REST API over the profile manager and the device inventory.
type Server struct {
	profiles  *profile.Manager
	inventory *inventory.Aggregator
	status    *inventory.StatusCache
	health    *health.Checker
	cfg       *ServerConfig
	logger    *logging.Logger
	metrics   *metrics.Registry
	router    chi.Router

	mu     sync.Mutex
	http   *http.Server
	closed bool
}

// ServerOptions holds the collaborators of a Server.
type ServerOptions struct {
	Profiles  *profile.Manager
	Inventory *inventory.Aggregator
	// Status serves GET /status. A cache over Inventory is created when nil.
	Status *inventory.StatusCache
	// Health serves /health and /readyz. A checker on the status cache is
	// created when nil.
	Health *health.Checker
	Config *ServerConfig
	Logger *logging.Logger
}

// NewServer creates a new API server with the provided options.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Profiles == nil {
		return nil, errors.New("api: profile manager is required")
	}
	if opts.Inventory == nil {
		return nil, errors.New("api: inventory is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.WithComponent("api")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	status := opts.Status
	if status == nil {
		status = inventory.NewStatusCache(opts.Inventory, 10*time.Second, logger)
	}
	checker := opts.Health
	if checker == nil {
		checker = health.NewChecker(5 * time.Second)
		checker.Register("status", health.SnapshotCheck(status, time.Minute))
	}

	s := &Server{
		profiles:  opts.Profiles,
		inventory: opts.Inventory,
		status:    status,
		health:    checker,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics.Get(),
	}
	s.initRoutes()
	return s, nil
}

func (s *Server) initRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.HandlerTimeout))
	r.Use(s.limitBody)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", s.health.Handler())
	r.Get("/healthz", health.LivenessHandler())
	r.Get("/readyz", s.health.ReadinessHandler())

	r.Route("/connections", func(r chi.Router) {
		r.Get("/", s.handleListConnections)
		r.Post("/", s.handleCreateConnection)
		r.Post("/reload", s.handleReloadConnections)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetConnection)
			r.Put("/", s.handleReplaceConnection)
			r.Patch("/", s.handlePatchConnection)
			r.Delete("/", s.handleDeleteConnection)
		})
	})

	r.Get("/accessPoints", s.handleAccessPoints)
	r.Put("/accessPoints", s.handleScan)

	r.Route("/interfaces", func(r chi.Router) {
		r.Get("/", s.handleInterfaces)
		r.Post("/", s.handleAddInterface)
		r.Delete("/", s.handleRemoveInterface)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", s.handleInterface)
			r.Put("/", s.handlePutInterface)
			r.Delete("/", s.handleDeleteInterface)
			r.Get("/stats", s.handleInterfaceStats)
		})
	})

	r.Get("/status", s.handleStatus)

	r.Route("/networking", func(r chi.Router) {
		r.Get("/status", s.handleLegacyStatus)
		r.Get("/connections", s.handleLegacyConnections)
		r.Put("/connections", s.handleLegacyActivate)
		r.Get("/connection", s.handleLegacyGetConnection)
		r.Post("/connection", s.handleLegacyPostConnection)
		r.Delete("/connection", s.handleLegacyDeleteConnection)
		r.Get("/accesspoints", s.handleLegacyAccessPoints)
		r.Put("/accesspoints", s.handleLegacyScan)
		r.Get("/interfaces", s.handleLegacyInterfaces)
		r.Post("/interfaces", s.handleLegacyAddInterface)
		r.Delete("/interfaces", s.handleLegacyRemoveInterface)
		r.Get("/interface", s.handleLegacyInterface)
		r.Get("/interface_statistics", s.handleLegacyInterfaceStats)
	})

	s.router = r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// limitBody caps request bodies at MaxBodyBytes.
func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil && s.cfg.MaxBodyBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// Start listens on addr and serves until Shutdown. It returns nil after a
// clean shutdown.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		MaxHeaderBytes:    s.cfg.MaxHeaderBytes,
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.http = srv
	s.mu.Unlock()

	s.logger.Info("API server starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
