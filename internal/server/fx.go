package server

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"embedbot/internal/config"
	"embedbot/internal/downloader"
	"embedbot/internal/handlers"
	"embedbot/internal/metrics"
	"embedbot/internal/prober"
	"embedbot/internal/queue"
	"embedbot/internal/store"
)

// Module provides the ops HTTP server.
var Module = fx.Module("server",
	fx.Provide(provideAPI, provideServer),
	fx.Invoke(registerLifecycle),
)

func provideAPI(
	cfg *config.OpsConfig,
	tracker store.RequestStore,
	reg *metrics.Registry,
	spawner queue.Spawner,
	dl *downloader.Downloader,
	pr *prober.Prober,
	logger zerolog.Logger,
) *handlers.API {
	return handlers.NewAPI(cfg, tracker, reg, spawner, logger.With().Str("component", "ops").Logger(), dl, pr)
}

func provideServer(cfg *config.OpsConfig, api *handlers.API, logger zerolog.Logger) *Server {
	return New(cfg, api, logger.With().Str("component", "ops").Logger())
}

func registerLifecycle(lc fx.Lifecycle, s *Server) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return s.Start() },
		OnStop:  func(ctx context.Context) error { return s.Stop(ctx) },
	})
}
