package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"embedbot/internal/config"
	"embedbot/internal/handlers"
)

// Server serves the ops API. It is a no-op when no address is configured.
type Server struct {
	http   *http.Server
	logger zerolog.Logger
}

func New(cfg *config.OpsConfig, api *handlers.API, logger zerolog.Logger) *Server {
	s := &Server{logger: logger}
	if cfg.Addr != "" {
		s.http = &http.Server{
			Addr:              cfg.Addr,
			Handler:           api.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return s
}

func (s *Server) Enabled() bool { return s.http != nil }

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	if s.http == nil {
		s.logger.Info().Msg("ops server disabled")
		return nil
	}
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("ops server starting")
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("ops server stopped")
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	s.logger.Info().Msg("ops server shutting down")
	return s.http.Shutdown(ctx)
}
