package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"embedbot/internal/config"
	"embedbot/internal/downloader"
	"embedbot/internal/logger"
	"embedbot/internal/models"
	"embedbot/internal/prober"
	"embedbot/internal/resolver"
	"embedbot/internal/util"
)

type convertResult struct {
	URL         string `json:"url"`
	ManifestURL string `json:"manifest_url"`
	Output      string `json:"output"`
	Duration    int    `json:"duration"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// newConvertCmd runs resolve, fetch and probe locally, without Telegram.
func newConvertCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "convert <url>",
		Short: "Download one link to a local file and print its media properties",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			log := logger.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

			if output == "" {
				output = util.RandomToken() + ".mp4"
			}
			dest, err := filepath.Abs(output)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res := resolver.New(log, resolver.WithTimeout(cfg.Pipeline.HTTPTimeout))
			manifestURL, err := res.Resolve(ctx, args[0])
			if err != nil {
				return err
			}

			dl := downloader.New(downloader.Config{Tool: cfg.Tools.FetchTool}, log)
			err = dl.Fetch(ctx, manifestURL, dest, func(ev models.ProgressEvent) {
				if ev.Stage == models.StageFetching {
					fmt.Fprintf(cmd.ErrOrStderr(), "\r%s", ev.PercentText())
				}
			})
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			props, err := prober.New(cfg.Tools.ProbeTool).Probe(ctx, dest)
			if err != nil {
				_ = util.RemoveArtifact(dest)
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(convertResult{
				URL:         args[0],
				ManifestURL: manifestURL,
				Output:      dest,
				Duration:    props.Duration,
				Width:       props.Width,
				Height:      props.Height,
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default <random token>.mp4)")
	return cmd
}
