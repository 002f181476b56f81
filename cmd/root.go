// Package cmd provides the argus command-line interface.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"argus/bootstrap"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags
var (
	outputJSON bool
	configFile string
	logLevel   string
	noColor    bool
	quiet      bool
)

const defaultTimeout = 5 * time.Minute

// NewRootCmd creates the argus command with all subcommands.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "argus",
		Short: "Rule-driven security log analysis",
		Long: `argus evaluates batches of security log lines against threshold rules
over sliding time windows and reports the alerts they raise.

Batches can be analyzed sequentially, in parallel in-process, or
distributed across worker processes or Redis-attached workers.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path (default: search ./config.yaml, ./config/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress non-essential output")

	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newWorkerCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRulesCmd())
	rootCmd.AddCommand(newGenerateLogsCmd())

	return rootCmd
}

// Execute runs the root command against os.Args.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// newApp initializes the application from the global flags. Logs go to
// stderr so stdout carries only command output.
func newApp() (*bootstrap.App, error) {
	return bootstrap.NewApp(bootstrap.Options{
		ConfigPath: configFile,
		LogWriter:  os.Stderr,
		LogLevel:   logLevel,
	})
}
