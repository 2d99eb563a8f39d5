package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/tokenwatch/transferscan/internal/logger"
	"github.com/tokenwatch/transferscan/pkg/api/docs"
	"github.com/tokenwatch/transferscan/pkg/config"
	"github.com/tokenwatch/transferscan/pkg/store"
)

// Ensure the swagger spec is registered.
var _ = docs.SwaggerInfo

const shutdownTimeout = 10 * time.Second

// Server is the read-only HTTP API server.
type Server struct {
	cfg     *config.APIConfig
	handler *Handler
	server  *http.Server
	log     *logger.Logger
}

// NewServer creates the API server over a store querier.
func NewServer(cfg *config.APIConfig, querier store.Querier, log *logger.Logger) *Server {
	handler := NewHandler(querier, log)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handler.Health)
	mux.HandleFunc("GET /api/v1/events", handler.GetEvents)
	mux.HandleFunc("GET /api/v1/stats", handler.GetStats)
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.DeepLinking(true),
	))

	return &Server{
		cfg:     cfg,
		handler: handler,
		server: &http.Server{
			Addr:         cfg.ListenAddress,
			Handler:      mux,
			ReadTimeout:  cfg.ReadTimeout.Duration,
			WriteTimeout: cfg.WriteTimeout.Duration,
			IdleTimeout:  cfg.IdleTimeout.Duration,
		},
		log: log,
	}
}

// Run serves the API until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("API server listening on %s", s.cfg.ListenAddress)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown: %w", err)
	}

	return nil
}
