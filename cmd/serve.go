package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

// newServeCmd creates the 'serve' command
func newServeCmd() *cobra.Command {
	var rulesFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long:  "Serve analysis, rule listing and rule generation over HTTP until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Shutdown()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := app.InitAnalysis(ctx); err != nil {
				return err
			}
			if err := app.LoadRules(rulesFile); err != nil {
				return err
			}
			if err := app.Start(ctx); err != nil {
				return err
			}

			status(cmd.ErrOrStderr(), successColor, "argus API listening on http://%s", app.APIServer.Addr())
			app.WaitForShutdown(ctx)
			return nil
		},
	}

	cmd.Flags().StringVarP(&rulesFile, "rules", "r", "", "Rules file, JSON or YAML (default from config)")

	return cmd
}
