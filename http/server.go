// Package http serves predictions, model management and the training log over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"cytodx/db"
	"cytodx/monitoring"
	"cytodx/pipeline"
	"cytodx/serving"
)

const maxBodyBytes = 1 << 20

type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8080,
		Timeout:        30 * time.Second,
		AllowedOrigins: []string{"*"},
	}
}

// Deps are the components the handlers use. Registry is required; the others switch off
// their routes when nil.
type Deps struct {
	Registry *serving.Registry
	Runs     *db.RunLog
	Runner   *pipeline.Runner
	// TrainJob builds the job for POST /api/train.
	TrainJob func() (pipeline.Job, error)
	Stream   *monitoring.Stream
	Metrics  *monitoring.Metrics
	Logger   *zap.Logger
}

type Server struct {
	server *http.Server
	config ServerConfig
	logger *zap.Logger
}

func NewServer(config ServerConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Port),
			Handler:           NewHandler(config, deps),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		config: config,
		logger: deps.Logger,
	}
}

// NewHandler builds the routed and wrapped handler without binding a port.
func NewHandler(config ServerConfig, deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	h := &handlers{deps: deps}
	h.register(mux)

	chain := Chain(
		RecoveryMiddleware(deps.Logger),
		LoggerMiddleware(deps.Logger, deps.Metrics, func(r *http.Request) string {
			_, pattern := mux.Handler(r)
			if pattern == "" {
				return "unmatched"
			}
			return pattern
		}),
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigins),
		TimeoutMiddleware(config.Timeout),
		RequestSizeMiddleware(maxBodyBytes),
	)
	return chain(mux)
}

func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) Addr() string {
	return s.server.Addr
}
