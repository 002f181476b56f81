package cmd

import (
	"fmt"
	"os"
	"time"

	"argus/ingest"

	"github.com/spf13/cobra"
)

// newGenerateLogsCmd creates the 'generate-logs' command
func newGenerateLogsCmd() *cobra.Command {
	defaults := ingest.DefaultSynthConfig()
	var (
		lines     int
		seed      int64
		span      time.Duration
		burst     float64
		malformed float64
		start     string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "generate-logs",
		Short: "Write synthetic wire-format log lines",
		Long: `Write synthetic log lines with occasional attack bursts.

The output depends only on the flags, so a seed reproduces a batch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if lines < 0 {
				return fmt.Errorf("--lines must not be negative")
			}
			if burst < 0 || burst > 1 || malformed < 0 || malformed > 1 {
				return fmt.Errorf("--burst and --malformed must be between 0 and 1")
			}
			cfg := ingest.SynthConfig{
				Seed:           seed,
				Lines:          lines,
				Start:          defaults.Start,
				Span:           span,
				BurstRatio:     burst,
				MalformedRatio: malformed,
			}
			if start != "" {
				ts, err := time.Parse(time.RFC3339, start)
				if err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
				cfg.Start = ts
			}

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				w = f
			}

			n, err := ingest.NewSynthesizer(cfg).WriteTo(w)
			if err != nil {
				return fmt.Errorf("failed to write logs: %w", err)
			}
			if output != "" && output != "-" {
				status(cmd.ErrOrStderr(), successColor, "✓ Wrote %d lines (%d bytes) to %s", lines, n, output)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", defaults.Lines, "Number of lines")
	cmd.Flags().Int64Var(&seed, "seed", defaults.Seed, "Random seed")
	cmd.Flags().DurationVar(&span, "span", defaults.Span, "Time range the traffic covers")
	cmd.Flags().Float64Var(&burst, "burst", defaults.BurstRatio, "Chance that a line starts an attack burst")
	cmd.Flags().Float64Var(&malformed, "malformed", defaults.MalformedRatio, "Chance that a line is corrupted")
	cmd.Flags().StringVar(&start, "start", "", "First timestamp, RFC3339 (default 2024-01-01T00:00:00Z)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")

	return cmd
}
