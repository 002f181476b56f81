package core

import (
	"fmt"
	"strings"
	"time"
)

// ExecutionMode selects how a batch is evaluated.
type ExecutionMode string

const (
	ModeSequential  ExecutionMode = "Sequential"
	ModeParallel    ExecutionMode = "Parallel"
	ModeDistributed ExecutionMode = "Distributed"
)

// ParseExecutionMode accepts the canonical names case-insensitively.
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sequential", "seq":
		return ModeSequential, nil
	case "parallel", "par":
		return ModeParallel, nil
	case "distributed", "dist":
		return ModeDistributed, nil
	}
	return "", fmt.Errorf("unknown execution mode %q (want sequential, parallel or distributed)", s)
}

// Metrics is the aggregate outcome of one analysis run.
type Metrics struct {
	TotalLogsProcessed int           `json:"total_logs_processed" yaml:"total_logs_processed" msgpack:"total_logs_processed"`
	AlertsGenerated    []Alert       `json:"alerts_generated" yaml:"alerts_generated" msgpack:"alerts_generated"`
	Mode               ExecutionMode `json:"mode" yaml:"mode" msgpack:"mode"`
	Partitions         int           `json:"partitions,omitempty" yaml:"partitions,omitempty" msgpack:"partitions,omitempty"`
	LinesRejected      int           `json:"lines_rejected" yaml:"lines_rejected" msgpack:"lines_rejected"`
	ExecutionTimeMs    float64       `json:"execution_time_ms" yaml:"execution_time_ms" msgpack:"execution_time_ms"`
	LogsPerSecond      float64       `json:"logs_per_second" yaml:"logs_per_second" msgpack:"logs_per_second"`
}

// SetTiming fills the wall-clock fields from the elapsed run time.
func (m *Metrics) SetTiming(elapsed time.Duration) {
	m.ExecutionTimeMs = float64(elapsed.Microseconds()) / 1000.0
	if secs := elapsed.Seconds(); secs > 0 {
		m.LogsPerSecond = float64(m.TotalLogsProcessed) / secs
	}
}

// AlertCountsByType groups alerts by their type label.
func (m *Metrics) AlertCountsByType() map[string]int {
	counts := make(map[string]int)
	for _, a := range m.AlertsGenerated {
		counts[a.AlertType.String()]++
	}
	return counts
}
