package cmd

import (
	"fmt"
	"strings"

	"argus/bootstrap"
	"argus/core"
	"argus/detect"
	"argus/rulegen"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// newRulesCmd creates the 'rules' command group
func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Validate and generate detection rules",
	}

	cmd.AddCommand(newRulesValidateCmd())
	cmd.AddCommand(newRulesGenerateCmd())

	return cmd
}

type validateResult struct {
	Valid bool        `json:"valid"`
	Count int         `json:"count"`
	Rules []core.Rule `json:"rules"`
	Error string      `json:"error,omitempty"`
}

func newRulesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <rules-file>",
		Short: "Check a rules file against the schema and rule checks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level := logLevel
			if level == "" {
				level = "warn"
			}
			_, sugar, err := bootstrap.InitLogger(level, "console", cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer sugar.Sync()

			rules, loadErr := detect.LoadRules(args[0], sugar)
			out := cmd.OutOrStdout()

			if outputJSON {
				res := validateResult{Valid: loadErr == nil, Count: len(rules), Rules: rules}
				if res.Rules == nil {
					res.Rules = []core.Rule{}
				}
				if loadErr != nil {
					res.Error = loadErr.Error()
				}
				if err := outputAsJSON(out, res); err != nil {
					return err
				}
				return loadErr
			}

			if loadErr != nil {
				errorColor.Fprintf(out, "✗ %s is invalid\n", args[0])
				return loadErr
			}
			successColor.Fprintf(out, "✓ %s: %d rules\n", args[0], len(rules))
			for _, r := range rules {
				fmt.Fprintf(out, "  %-30s %-22s threshold=%d window=%ds\n",
					truncate(r.Name, 30), r.RuleType.String(), r.Threshold, r.TimeWindow)
			}
			return nil
		},
	}
}

func newRulesGenerateCmd() *cobra.Command {
	var (
		format    string
		heuristic bool
	)

	cmd := &cobra.Command{
		Use:   "generate <description>",
		Short: "Generate a rule from a plain-language description",
		Long: `Generate a rule from a plain-language description, e.g.

  argus rules generate "alert when an IP fails to log in more than 5 times in 2 minutes"

Uses the configured generator command, falling back to the built-in
heuristic when enabled. --heuristic skips the command.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unsupported format %q (want json or yaml)", format)
			}

			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Shutdown()

			generator := app.Generator
			if heuristic {
				generator = rulegen.HeuristicGenerator{}
			}
			if generator == nil {
				return fmt.Errorf("%w: set rulegen.command or rulegen.fallback_heuristic", rulegen.ErrGeneratorUnavailable)
			}

			ctx := cmd.Context()
			rule, err := rulegen.Generate(ctx, generator, strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == "yaml" {
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(rule); err != nil {
					return err
				}
				return enc.Close()
			}
			return outputAsJSON(out, rule)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or yaml")
	cmd.Flags().BoolVar(&heuristic, "heuristic", false, "Use the built-in heuristic generator")

	return cmd
}
