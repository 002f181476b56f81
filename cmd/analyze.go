package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"argus/analysis"
	"argus/core"

	"github.com/spf13/cobra"
)

// newAnalyzeCmd creates the 'analyze' command
func newAnalyzeCmd() *cobra.Command {
	var (
		mode      string
		workers   int
		rulesFile string
	)

	cmd := &cobra.Command{
		Use:   "analyze [log-file]",
		Short: "Analyze a batch of log lines",
		Long: `Analyze a batch of wire-format log lines against the rule set.

Reads from the given file, or from stdin when no file or "-" is given.
Malformed lines are counted and skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Shutdown()

			runMode := app.Config.ExecutionMode()
			if mode != "" {
				if runMode, err = core.ParseExecutionMode(mode); err != nil {
					return err
				}
			}
			if workers < 0 {
				return fmt.Errorf("--workers must not be negative")
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
			defer cancel()

			if err := app.InitAnalysis(ctx); err != nil {
				return err
			}
			if err := app.LoadRules(rulesFile); err != nil {
				return err
			}

			in, closeIn, err := openInput(cmd, args)
			if err != nil {
				return err
			}
			defer closeIn()

			s := startSpinner(cmd.ErrOrStderr(), fmt.Sprintf("Analyzing (%s)...", runMode))
			m, err := app.Analyzer.AnalyzeReader(ctx, in, analysis.Request{
				Mode:    runMode,
				Workers: workers,
				Rules:   app.Rules,
			})
			stopSpinner(s)
			if err != nil {
				return fmt.Errorf("analysis failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				return outputAsJSON(out, m)
			}
			renderMetrics(out, m)
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Execution mode: sequential, parallel or distributed (default from config)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Partition count for parallel and distributed runs (default from config)")
	cmd.Flags().StringVarP(&rulesFile, "rules", "r", "", "Rules file, JSON or YAML (default from config)")

	return cmd
}

func openInput(cmd *cobra.Command, args []string) (io.Reader, func(), error) {
	if len(args) == 0 || args[0] == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, func() { f.Close() }, nil
}
