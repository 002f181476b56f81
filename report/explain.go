// Package report renders analysis results for people.
package report

import (
	"fmt"
	"strings"
	"time"

	"argus/core"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	explainAlertLimit = 3

	slowLogsPerSecond     = 1000
	alertReviewThreshold  = 5
	largeSequentialVolume = 10000
)

// Explain summarizes a run in plain text, lists the first few alerts and
// appends recommendations.
func Explain(m *core.Metrics) string {
	if m == nil {
		return "No metrics provided for explanation."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The analysis run in %s mode processed %s logs in %.2f milliseconds, a rate of %.2f logs per second.",
		m.Mode, groupThousands(m.TotalLogsProcessed), m.ExecutionTimeMs, m.LogsPerSecond)
	if m.LinesRejected > 0 {
		fmt.Fprintf(&b, " %s malformed lines were skipped.", groupThousands(m.LinesRejected))
	}
	b.WriteString("\n")

	alerts := m.AlertsGenerated
	if len(alerts) == 0 {
		b.WriteString("No alerts were generated, so either the logs are clean or the current rules did not match any threat.\n")
	} else {
		fmt.Fprintf(&b, "%d alerts were generated. They point at potential security incidents or anomalies.\n", len(alerts))
		for i, a := range alerts {
			if i == explainAlertLimit {
				fmt.Fprintf(&b, "  (and %d more alerts...)\n", len(alerts)-explainAlertLimit)
				break
			}
			fmt.Fprintf(&b, "- Alert %d: a %s alert was triggered by %q at %s.\n",
				i+1, a.AlertType, a.Description, a.Timestamp.UTC().Format(time.RFC3339))
		}
	}

	recs := Recommendations(m)
	if len(recs) > 0 {
		b.WriteString("\nRecommendations:\n")
		for i, r := range recs {
			fmt.Fprintf(&b, "%d. %s\n", i+1, r)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Recommendations returns follow-up advice for a run.
func Recommendations(m *core.Metrics) []string {
	var recs []string
	if m.TotalLogsProcessed > 0 && m.LogsPerSecond < slowLogsPerSecond {
		recs = append(recs, "Throughput is low; consider the parallel or distributed modes or a smaller rule set.")
	}
	if len(m.AlertsGenerated) > alertReviewThreshold {
		recs = append(recs, "Review the generated alerts now to understand the threats and take corrective action.")
	}
	if m.Mode == core.ModeSequential && m.TotalLogsProcessed > largeSequentialVolume {
		recs = append(recs, "For large log volumes, use the parallel or distributed modes to cut processing time.")
	}
	return recs
}

func groupThousands(n int) string {
	return message.NewPrinter(language.English).Sprintf("%d", n)
}
