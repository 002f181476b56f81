package analysis

import (
	"context"
	"errors"
	"io"
	"time"

	"argus/core"
	"argus/ingest"
	"argus/metrics"

	"go.uber.org/zap"
)

// Request describes one analysis run.
type Request struct {
	Mode core.ExecutionMode
	// Workers overrides the coordinator's partition count when positive.
	Workers int
	Rules   []core.Rule
}

// Analyzer is the service the CLI and the API share: parse, run, then
// fill in the run bookkeeping and export it.
type Analyzer struct {
	coordinator *Coordinator
	logger      *zap.SugaredLogger
}

func NewAnalyzer(coordinator *Coordinator, logger *zap.SugaredLogger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Analyzer{coordinator: coordinator, logger: logger}
}

// AnalyzeReader parses wire-format lines from r and analyzes them.
func (a *Analyzer) AnalyzeReader(ctx context.Context, r io.Reader, req Request) (*core.Metrics, error) {
	batch, err := ingest.ParseLines(r)
	if err != nil {
		return nil, err
	}
	return a.AnalyzeBatch(ctx, batch, req)
}

// AnalyzeLines analyzes in-memory wire-format lines.
func (a *Analyzer) AnalyzeLines(ctx context.Context, lines []string, req Request) (*core.Metrics, error) {
	return a.AnalyzeBatch(ctx, ingest.ParseStrings(lines), req)
}

// AnalyzeRecords analyzes records that are already parsed.
func (a *Analyzer) AnalyzeRecords(ctx context.Context, records []core.LogEntry, req Request) (*core.Metrics, error) {
	return a.AnalyzeBatch(ctx, ingest.Batch{Records: records}, req)
}

func (a *Analyzer) AnalyzeBatch(ctx context.Context, batch ingest.Batch, req Request) (*core.Metrics, error) {
	if batch.Rejected > 0 {
		metrics.LinesRejected.Add(float64(batch.Rejected))
		a.logger.Warnw("Dropped malformed log lines",
			"rejected", batch.Rejected,
			"samples", batch.Samples)
	}

	coord := a.coordinator.WithWorkers(req.Workers)
	start := time.Now()
	m, err := coord.Run(ctx, batch.Records, req.Rules, req.Mode)
	elapsed := time.Since(start)
	metrics.RunDuration.WithLabelValues(string(req.Mode)).Observe(elapsed.Seconds())

	if err != nil {
		metrics.AnalysisRuns.WithLabelValues(string(req.Mode), outcomeOf(err)).Inc()
		return nil, err
	}

	m.LinesRejected = batch.Rejected
	m.SetTiming(elapsed)

	metrics.AnalysisRuns.WithLabelValues(string(req.Mode), "success").Inc()
	metrics.LogsProcessed.WithLabelValues(string(req.Mode)).Add(float64(m.TotalLogsProcessed))
	for alertType, n := range m.AlertCountsByType() {
		metrics.AlertsGenerated.WithLabelValues(alertType).Add(float64(n))
	}

	a.logger.Infow("Analysis complete",
		"mode", m.Mode,
		"records", m.TotalLogsProcessed,
		"alerts", len(m.AlertsGenerated),
		"lines_rejected", m.LinesRejected,
		"execution_time_ms", m.ExecutionTimeMs)
	return m, nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidRule):
		return "invalid_rule"
	case errors.Is(err, core.ErrWorkerFailure):
		return "worker_failure"
	case errors.Is(err, core.ErrMergeConflict):
		return "merge_conflict"
	}
	return "error"
}
