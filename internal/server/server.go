package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/lacquerai/sentiment/internal/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Config holds the server configuration
type Config struct {
	Addr            string
	EnableMetrics   bool
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a default server configuration
func DefaultConfig() *Config {
	return &Config{
		Addr:            "localhost:9090",
		EnableMetrics:   true,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Status reports the adapter's progress. *protocol.Adapter implements it.
type Status interface {
	State() protocol.State
	Handled() int64
}

// Health is the body of GET /healthz
type Health struct {
	State    string `json:"state"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Handled  int64  `json:"handled"`
}

// Server exposes metrics and health of a running adapter. It never receives
// classification requests.
type Server struct {
	config   *Config
	status   Status
	gatherer prometheus.Gatherer
	provider string
	model    string

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// Option configures a Server
type Option func(*Server)

// WithGatherer serves metrics from g instead of the default registry
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithModel labels the health response
func WithModel(provider, model string) Option {
	return func(s *Server) {
		s.provider = provider
		s.model = model
	}
}

// New creates a new server reporting on status
func New(config *Config, status Status, opts ...Option) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	s := &Server{
		config:   config,
		status:   status,
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)

	if s.config.EnableMetrics {
		router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	router.HandleFunc("/healthz", s.healthCheck).Methods(http.MethodGet)

	return router
}

// healthCheck is 200 once the model is loaded and 503 otherwise
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	state := s.status.State()

	code := http.StatusServiceUnavailable
	if state == protocol.StateReady || state == protocol.StateProcessing {
		code = http.StatusOK
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Health{
		State:    state.String(),
		Provider: s.provider,
		Model:    s.model,
		Handled:  s.status.Handled(),
	})
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.New("server already started")
	}

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	log.Info().
		Str("addr", listener.Addr().String()).
		Bool("metrics", s.config.EnableMetrics).
		Msg("Starting metrics server")

	srv := s.server
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	return nil
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	log.Debug().Msg("Shutting down metrics server")
	return srv.Shutdown(ctx)
}

// GetAddr returns the address the server listens on
func (s *Server) GetAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}
