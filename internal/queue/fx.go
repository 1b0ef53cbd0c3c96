package queue

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"embedbot/internal/config"
	"embedbot/internal/metrics"
)

// Module provides the pipeline spawner and drains it on shutdown.
var Module = fx.Module("queue",
	fx.Provide(provideSpawner),
	fx.Invoke(registerLifecycle),
)

func provideSpawner(cfg *config.PipelineConfig, reg *metrics.Registry, logger zerolog.Logger) Spawner {
	logger = logger.With().Str("component", "spawner").Logger()
	if cfg.MaxConcurrent > 0 {
		logger.Info().Int("workers", cfg.MaxConcurrent).Int("capacity", cfg.QueueCapacity).Msg("bounded pipeline pool")
		return NewPool(cfg.MaxConcurrent, cfg.QueueCapacity, reg, logger)
	}
	logger.Info().Msg("pipelines are not capped")
	return NewUnbounded(reg, logger)
}

func registerLifecycle(lc fx.Lifecycle, sp Spawner, logger zerolog.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info().Int("active", sp.Active()).Msg("waiting for running pipelines")
			return sp.Shutdown(ctx)
		},
	})
}
