package analysis

import (
	"fmt"

	"argus/core"
)

// Merge combines partial results given in partition order. Counts are
// summed and alerts concatenated in partition order.
//
// The sum of counts must equal batchSize and no alert id may appear twice;
// otherwise a *core.MergeConflictError is returned.
func Merge(parts []core.Metrics, batchSize int, mode core.ExecutionMode) (*core.Metrics, error) {
	total := 0
	alertCount := 0
	for _, p := range parts {
		total += p.TotalLogsProcessed
		alertCount += len(p.AlertsGenerated)
	}
	if total != batchSize {
		return nil, &core.MergeConflictError{
			Reason: fmt.Sprintf("partitions processed %d records, batch has %d", total, batchSize),
		}
	}

	merged := &core.Metrics{
		TotalLogsProcessed: total,
		AlertsGenerated:    make([]core.Alert, 0, alertCount),
		Mode:               mode,
		Partitions:         len(parts),
	}
	seen := make(map[string]int, alertCount)
	for i, p := range parts {
		for _, a := range p.AlertsGenerated {
			if prev, dup := seen[a.ID]; dup {
				return nil, &core.MergeConflictError{
					Reason: fmt.Sprintf("alert %s reported by partitions %d and %d", a.ID, prev, i),
				}
			}
			seen[a.ID] = i
			merged.AlertsGenerated = append(merged.AlertsGenerated, a)
		}
	}
	return merged, nil
}
