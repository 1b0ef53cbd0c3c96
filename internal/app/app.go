// Package app contains application bootstrap
package app

import (
	"go.uber.org/fx"

	"embedbot/internal/config"
	"embedbot/internal/logger"
	"embedbot/internal/metrics"
	"embedbot/internal/queue"
	"embedbot/internal/server"
	"embedbot/internal/store"
	"embedbot/internal/telegram"
)

// CreateApp creates the fx application. tokenFile may be empty.
func CreateApp(tokenFile string) fx.Option {
	return fx.Options(
		// Configuration
		fx.Provide(config.Out(tokenFile)),

		logger.Module,
		fx.Provide(metrics.NewRegistry),
		store.Module,

		// registered before the bot so pipelines are drained after polling stops
		queue.Module,

		telegram.Module,
		DomainModule,
		server.Module,
	)
}
