package telegram

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"embedbot/internal/config"
	"embedbot/internal/messaging"
)

// Module provides the Telegram bot as the messaging endpoint.
var Module = fx.Module("telegram",
	fx.Provide(
		provideBot,
		func(b *Bot) messaging.Endpoint { return b },
	),
	fx.Invoke(registerLifecycle),
)

func provideBot(cfg *config.TelegramConfig, logger zerolog.Logger) (*Bot, error) {
	return NewBot(cfg.Token, cfg.APIURL, logger.With().Str("component", "telegram").Logger())
}

func registerLifecycle(lc fx.Lifecycle, bot *Bot, logger zerolog.Logger) {
	var cancel context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := bot.RegisterCommands(ctx); err != nil {
				logger.Warn().Err(err).Msg("command menu not registered")
			}

			var runCtx context.Context
			runCtx, cancel = context.WithCancel(context.Background())
			go func() {
				_ = bot.Start(runCtx)
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}
