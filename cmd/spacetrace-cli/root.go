package main

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	verbose bool
	output  string
	workers int
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "spacetrace-cli",
		Short: "Offline flight trajectory and satellite proximity analysis",
		Long: `spacetrace-cli propagates catalog objects from a TLE file and checks planned
flights (JSON, registration API format) for close approaches and mutual conflicts.

Examples:
  spacetrace-cli propagate --tle active.txt --norad 25544 --at 2026-03-01T15:00:00Z
  spacetrace-cli analyze --tle active.txt --flights flights.json --output table
  spacetrace-cli conflicts --flights flights.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch strings.ToLower(opts.output) {
			case "table", "json":
				opts.output = strings.ToLower(opts.output)
				return nil
			default:
				return fmt.Errorf("invalid --output %q, must be table or json", opts.output)
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log engine diagnostics to stderr")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "output format: table or json")
	cmd.PersistentFlags().IntVar(&opts.workers, "workers", runtime.NumCPU(), "propagation worker count")

	cmd.AddCommand(
		newPropagateCmd(opts),
		newTrajectoryCmd(opts),
		newAnalyzeCmd(opts),
		newConflictsCmd(opts),
	)
	return cmd
}

// logger writes JSON diagnostics to the command's stderr.
func (o *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}
