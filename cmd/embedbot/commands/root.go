// Package commands implements the embedbot CLI using cobra.
package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"embedbot/internal/app"
	"embedbot/internal/config"
)

// NewRootCmd builds the root command. Without a subcommand it runs the bot.
func NewRootCmd(version string) *cobra.Command {
	var shutdownTimeout time.Duration

	rootCmd := &cobra.Command{
		Use:   "embedbot [token-file]",
		Short: "Telegram bot that turns Reddit video links into uploaded videos",
		Long: `embedbot watches chats for Reddit mediaembed and v.redd.it links,
downloads the video with yt-dlp, and replies with the file.

The bot token is read from token-file (default "token.txt").

Examples:
  embedbot
  embedbot /run/secrets/telegram-token
  embedbot convert https://v.redd.it/abc123 -o clip.mp4
  embedbot selftest`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			tokenFile := config.DefaultTokenFile
			if len(args) == 1 {
				tokenFile = args[0]
			}
			return runBot(cmd.Context(), tokenFile, shutdownTimeout)
		},
	}

	rootCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 5*time.Minute, "how long to wait for running conversions on exit")

	rootCmd.AddCommand(
		newConvertCmd(),
		newSelfTestCmd(),
	)
	return rootCmd
}

func runBot(ctx context.Context, tokenFile string, shutdownTimeout time.Duration) error {
	// fail with the plain token diagnostic before fx wraps it
	token, err := config.ReadToken(tokenFile)
	if err != nil {
		return err
	}
	if token == "" {
		return &config.MissingTokenError{File: tokenFile}
	}

	a := fx.New(
		app.CreateApp(tokenFile),
		fx.StopTimeout(shutdownTimeout),
	)
	if err := a.Err(); err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(context.Background(), a.StartTimeout())
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), a.StopTimeout())
	defer cancelStop()
	return a.Stop(stopCtx)
}
