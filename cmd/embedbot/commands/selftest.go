package commands

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"embedbot/internal/config"
	"embedbot/internal/downloader"
	"embedbot/internal/handlers"
	"embedbot/internal/prober"
)

// newSelfTestCmd checks that the external tools can be executed.
func newSelfTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Print the versions of the fetch and probe tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromEnv()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			statuses := handlers.SelfTest(ctx,
				downloader.New(downloader.Config{Tool: cfg.Tools.FetchTool}, zerolog.Nop()),
				prober.New(cfg.Tools.ProbeTool),
			)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(map[string]any{"tools": statuses}); err != nil {
				return err
			}
			for _, st := range statuses {
				if st.Error != "" {
					return errors.New("one or more tools are unavailable")
				}
			}
			return nil
		},
	}
}
