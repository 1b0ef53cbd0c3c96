package app

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"embedbot/internal/config"
	"embedbot/internal/dispatcher"
	"embedbot/internal/downloader"
	"embedbot/internal/messaging"
	"embedbot/internal/metrics"
	"embedbot/internal/models"
	"embedbot/internal/pipeline"
	"embedbot/internal/prober"
	"embedbot/internal/progress"
	"embedbot/internal/queue"
	"embedbot/internal/resolver"
	"embedbot/internal/store"
	"embedbot/internal/telegram"
)

// DomainModule wires the conversion flow.
var DomainModule = fx.Module("domain",
	fx.Provide(
		provideResolver,
		provideDownloader,
		provideProber,
		provideReporter,
		providePipeline,
		provideDispatcher,
	),
	fx.Invoke(registerHandler),
)

func provideResolver(cfg *config.PipelineConfig, logger zerolog.Logger) *resolver.Resolver {
	return resolver.New(
		logger.With().Str("component", "resolver").Logger(),
		resolver.WithTimeout(cfg.HTTPTimeout),
	)
}

func provideDownloader(cfg *config.ToolsConfig, logger zerolog.Logger) *downloader.Downloader {
	return downloader.New(downloader.Config{
		Tool:          cfg.FetchTool,
		MaxConcurrent: cfg.MaxConcurrentDownloads,
	}, logger.With().Str("component", "downloader").Logger())
}

func provideProber(cfg *config.ToolsConfig) *prober.Prober {
	return prober.New(cfg.ProbeTool)
}

func provideReporter(cfg *config.PipelineConfig, ep messaging.Endpoint, logger zerolog.Logger) *progress.Reporter {
	return progress.New(ep, cfg.ProgressMinInterval, logger.With().Str("component", "progress").Logger())
}

func providePipeline(
	cfg *config.PipelineConfig,
	ep messaging.Endpoint,
	res *resolver.Resolver,
	dl *downloader.Downloader,
	pr *prober.Prober,
	rep *progress.Reporter,
	tracker store.RequestStore,
	reg *metrics.Registry,
	logger zerolog.Logger,
) *pipeline.Pipeline {
	return pipeline.New(pipeline.Params{
		Endpoint: ep,
		Resolver: res,
		Fetcher:  dl,
		Prober:   pr,
		Reporter: rep,
		Tracker:  tracker,
		Metrics:  reg,
		TempDir:  cfg.TempDir,
		Timeout:  cfg.Timeout,
		Logger:   logger.With().Str("component", "pipeline").Logger(),
	})
}

func provideDispatcher(ep messaging.Endpoint, pl *pipeline.Pipeline, sp queue.Spawner, logger zerolog.Logger) *dispatcher.Dispatcher {
	return dispatcher.New(ep, pl, sp, logger.With().Str("component", "dispatcher").Logger())
}

// registerHandler resolves the bot <-> dispatcher cycle: the bot is the
// dispatcher's endpoint and the dispatcher handles the bot's messages.
func registerHandler(bot *telegram.Bot, d *dispatcher.Dispatcher, logger zerolog.Logger) {
	bot.OnMessage(func(ctx context.Context, msg models.InboundMessage) {
		m := d.Dispatch(ctx, msg)
		logger.Debug().
			Int64("chat_id", msg.ChatID).
			Int("message_id", msg.MessageID).
			Stringer("match", m).
			Msg("message dispatched")
	})
}
