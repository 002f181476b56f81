package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"argus/core"
	"argus/report"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

const maxAlertRows = 20

func outputAsJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// startSpinner shows progress on w unless output is machine-readable.
func startSpinner(w io.Writer, suffix string) *spinner.Spinner {
	if outputJSON || quiet {
		return nil
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + suffix
	s.Start()
	return s
}

func stopSpinner(s *spinner.Spinner) {
	if s != nil {
		s.Stop()
	}
}

// renderMetrics prints a run summary, the alert table and the
// plain-language explanation.
func renderMetrics(w io.Writer, m *core.Metrics) {
	headerColor.Fprintln(w, "ANALYSIS")
	headerColor.Fprintln(w, strings.Repeat("=", 100))
	fmt.Fprintf(w, "%-22s %s\n", "Mode:", m.Mode)
	if m.Partitions > 0 {
		fmt.Fprintf(w, "%-22s %d\n", "Partitions:", m.Partitions)
	}
	fmt.Fprintf(w, "%-22s %d\n", "Records processed:", m.TotalLogsProcessed)
	if m.LinesRejected > 0 {
		warningColor.Fprintf(w, "%-22s %d\n", "Lines rejected:", m.LinesRejected)
	}
	fmt.Fprintf(w, "%-22s %.2f ms\n", "Execution time:", m.ExecutionTimeMs)
	fmt.Fprintf(w, "%-22s %.0f\n", "Logs per second:", m.LogsPerSecond)

	if len(m.AlertsGenerated) == 0 {
		successColor.Fprintf(w, "%-22s 0\n", "Alerts:")
	} else {
		errorColor.Fprintf(w, "%-22s %d\n", "Alerts:", len(m.AlertsGenerated))
		renderAlertCounts(w, m)
		renderAlertsTable(w, m.AlertsGenerated)
	}

	fmt.Fprintln(w)
	infoColor.Fprintln(w, report.Explain(m))
}

func renderAlertCounts(w io.Writer, m *core.Metrics) {
	counts := m.AlertCountsByType()
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(w, "  %-20s %d\n", t, counts[t])
	}
}

func renderAlertsTable(w io.Writer, alerts []core.Alert) {
	fmt.Fprintln(w)
	headerColor.Fprintln(w, "ALERTS")
	fmt.Fprintf(w, "%-22s %-22s %-24s %-28s %-6s\n", "Time", "Type", "Rule", "Group", "Count")
	fmt.Fprintln(w, strings.Repeat("-", 100))

	for i, a := range alerts {
		if i == maxAlertRows {
			warningColor.Fprintf(w, "... %d more alerts (use --json for the full list)\n", len(alerts)-maxAlertRows)
			break
		}
		fmt.Fprintf(w, "%-22s %-22s %-24s %-28s %-6d\n",
			a.Timestamp.UTC().Format(time.RFC3339),
			truncate(a.AlertType.String(), 22),
			truncate(a.RuleName, 24),
			truncate(a.GroupKey, 28),
			a.Count)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// status prints a colored status line unless --quiet is set.
func status(w io.Writer, c *color.Color, format string, args ...interface{}) {
	if quiet {
		return
	}
	c.Fprintf(w, format+"\n", args...)
}
