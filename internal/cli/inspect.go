package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voicecli/internal/config"
	"github.com/MrWong99/voicecli/internal/health"
	"github.com/MrWong99/voicecli/internal/logging"
	"github.com/MrWong99/voicecli/internal/stats"
)

func NewErrorsCmd(deps *Dependencies) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Display the most recent errors from the logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logDir := config.Default().LogDir()
			if cfg, err := config.Load(deps.ConfigPath); err == nil {
				logDir = cfg.LogDir()
			}

			out := cmd.OutOrStdout()
			if _, err := os.Stat(logDir); errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintln(out, "Log directory does not exist.")
				return nil
			}
			entries, err := logging.RecentErrors(logDir, count)
			if err != nil {
				return fmt.Errorf("failed to read errors: %w", err)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No errors found in the logs.")
				return nil
			}

			const rule = "------------------------------------------------"
			fmt.Fprintf(out, "Last %d error(s):\n", len(entries))
			for _, e := range entries {
				fmt.Fprintln(out, rule)
				fmt.Fprintf(out, "Timestamp: %s\n", e.Time.Local().Format(time.DateTime))
				fmt.Fprintf(out, "Message:   %s\n", e.Message)
				if e.Err != "" {
					fmt.Fprintf(out, "Error:     %s\n", e.Err)
				}
				if len(e.Attrs) > 0 {
					fmt.Fprintf(out, "Context:   %v\n", e.Attrs)
				}
				fmt.Fprintf(out, "Source:    %s\n", e.File)
			}
			fmt.Fprintln(out, rule)
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "number", "n", 1, "Number of errors to show")
	return cmd
}

func NewHealthCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check system health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Checking system health...")

			cfg, err := config.Load(deps.ConfigPath)
			if err != nil {
				fmt.Fprintf(out, "❌ Config Error: %v\n", err)
				return health.ErrUnhealthy
			}
			fmt.Fprintln(out, "✅ Config loaded")

			results := health.Run(cmd.Context(), health.Defaults(cfg)...)
			for _, r := range results {
				if r.OK() {
					fmt.Fprintf(out, "✅ %s\n", r.Name)
				} else {
					fmt.Fprintf(out, "❌ %s: %v\n", r.Name, r.Err)
				}
			}
			if !health.Healthy(results) {
				return health.ErrUnhealthy
			}
			return nil
		},
	}
}

func NewStatsCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show transcription counts",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			s := stats.New(config.StatsPath()).Load()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Today: %d\n", s.Today)
			fmt.Fprintf(out, "Total: %d\n", s.Total)
		},
	}
}
