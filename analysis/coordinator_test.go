package analysis

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"argus/core"
	"argus/detect"
	"argus/ingest"
	"argus/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func sampleRules() []core.Rule {
	return []core.Rule{
		{Name: "brute-force", RuleType: core.TypeOf(core.RuleKindBruteForce), Threshold: 3, TimeWindow: 60},
		{Name: "request-flood", RuleType: core.TypeOf(core.RuleKindHighFrequencyRequest), Threshold: 5, TimeWindow: 10, GroupBy: core.GroupByIPUser},
		{Name: "scanner", RuleType: core.TypeOf(core.RuleKindSuspiciousIP), Threshold: 4, TimeWindow: 0},
		{
			Name: "admin-probe", RuleType: core.CustomType("admin_probe"), Threshold: 2, TimeWindow: 120,
			EventTypes: []string{"http_request"}, Pattern: "^/admin", PatternField: "path",
		},
	}
}

func sampleRecords(t *testing.T) []core.LogEntry {
	t.Helper()
	cfg := ingest.DefaultSynthConfig()
	cfg.Seed = 7
	cfg.Lines = 3000
	cfg.Span = 2 * time.Hour
	cfg.BurstRatio = 0.05
	batch := ingest.ParseStrings(ingest.NewSynthesizer(cfg).Lines())
	require.Zero(t, batch.Rejected)
	return batch.Records
}

func sortedIDs(alerts []core.Alert) []string {
	ids := make([]string, 0, len(alerts))
	for _, a := range alerts {
		ids = append(ids, a.ID)
	}
	sort.Strings(ids)
	return ids
}

func newCoordinator(t *testing.T, opts Options) *Coordinator {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	engine := detect.NewEngine(nil, logger)
	if opts.Dialer == nil {
		opts.Dialer = &protocol.LocalDialer{Engine: engine, Logger: logger}
	}
	return NewCoordinator(engine, opts, logger)
}

func TestRun_ModesAgree(t *testing.T) {
	records := sampleRecords(t)
	rules := sampleRules()
	coord := newCoordinator(t, Options{Workers: 4, ChunkSize: 100})
	ctx := context.Background()

	seq, err := coord.Run(ctx, records, rules, core.ModeSequential)
	require.NoError(t, err)
	require.NotEmpty(t, seq.AlertsGenerated)
	assert.Equal(t, len(records), seq.TotalLogsProcessed)
	assert.Equal(t, core.ModeSequential, seq.Mode)

	par, err := coord.Run(ctx, records, rules, core.ModeParallel)
	require.NoError(t, err)
	assert.Equal(t, core.ModeParallel, par.Mode)
	assert.Equal(t, 4, par.Partitions)

	dist, err := coord.WithWorkers(3).Run(ctx, records, rules, core.ModeDistributed)
	require.NoError(t, err)
	assert.Equal(t, core.ModeDistributed, dist.Mode)
	assert.Equal(t, 3, dist.Partitions)

	want := sortedIDs(seq.AlertsGenerated)
	assert.Equal(t, len(records), par.TotalLogsProcessed)
	assert.Equal(t, len(records), dist.TotalLogsProcessed)
	assert.Equal(t, want, sortedIDs(par.AlertsGenerated))
	assert.Equal(t, want, sortedIDs(dist.AlertsGenerated))
}

func TestRun_UnsortedInputMatchesSorted(t *testing.T) {
	records := sampleRecords(t)
	shuffled := make([]core.LogEntry, len(records))
	for i := range records {
		shuffled[len(records)-1-i] = records[i]
	}
	coord := newCoordinator(t, Options{Workers: 2})

	a, err := coord.Run(context.Background(), records, sampleRules(), core.ModeParallel)
	require.NoError(t, err)
	b, err := coord.Run(context.Background(), shuffled, sampleRules(), core.ModeParallel)
	require.NoError(t, err)
	assert.Equal(t, sortedIDs(a.AlertsGenerated), sortedIDs(b.AlertsGenerated))
}

func TestRun_EmptyBatch(t *testing.T) {
	coord := newCoordinator(t, Options{Workers: 3})
	for _, mode := range []core.ExecutionMode{core.ModeSequential, core.ModeParallel, core.ModeDistributed} {
		m, err := coord.Run(context.Background(), nil, sampleRules(), mode)
		require.NoError(t, err, mode)
		assert.Zero(t, m.TotalLogsProcessed)
		assert.NotNil(t, m.AlertsGenerated)
		assert.Empty(t, m.AlertsGenerated)
		assert.Equal(t, mode, m.Mode)
	}
}

func TestRun_EmptyRuleSet(t *testing.T) {
	coord := newCoordinator(t, Options{Workers: 2})
	m, err := coord.Run(context.Background(), sampleRecords(t), nil, core.ModeParallel)
	require.NoError(t, err)
	assert.Equal(t, 3000, m.TotalLogsProcessed)
	assert.Empty(t, m.AlertsGenerated)
}

func TestRun_InvalidRules(t *testing.T) {
	coord := newCoordinator(t, Options{Workers: 2})
	rules := []core.Rule{{Name: "zero", RuleType: core.TypeOf(core.RuleKindBruteForce), Threshold: 0}}

	m, err := coord.Run(context.Background(), sampleRecords(t), rules, core.ModeSequential)
	assert.Nil(t, m)
	assert.ErrorIs(t, err, core.ErrInvalidRule)
}

func TestRun_DistributedNeedsDialer(t *testing.T) {
	coord := NewCoordinator(nil, Options{Workers: 2}, nil)
	_, err := coord.Run(context.Background(), sampleRecords(t), sampleRules(), core.ModeDistributed)
	assert.ErrorIs(t, err, ErrNoDialer)
}

func TestRun_UnknownMode(t *testing.T) {
	coord := newCoordinator(t, Options{Workers: 2})
	_, err := coord.Run(context.Background(), nil, nil, core.ExecutionMode("Quantum"))
	assert.Error(t, err)
}

// hangingDialer hands out workers that never answer.
type hangingDialer struct{}

func (hangingDialer) Name() string { return "hanging" }

func (hangingDialer) Dial(ctx context.Context, partition int) (protocol.CoordinatorConn, error) {
	return hangingConn{}, nil
}

type hangingConn struct{}

func (hangingConn) Send(ctx context.Context, msg protocol.ToWorker) error { return nil }

func (hangingConn) Recv(ctx context.Context) (protocol.ToCoordinator, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingConn) Close() error { return nil }

// rejectingDialer hands out workers that refuse every rule set.
type rejectingDialer struct{}

func (rejectingDialer) Name() string { return "rejecting" }

func (rejectingDialer) Dial(ctx context.Context, partition int) (protocol.CoordinatorConn, error) {
	return rejectingConn{}, nil
}

type rejectingConn struct{ hangingConn }

func (rejectingConn) Recv(ctx context.Context) (protocol.ToCoordinator, error) {
	return protocol.ErrorMessage{Message: "disk full"}, nil
}

type panickingDialer struct{}

func (panickingDialer) Name() string { return "panicking" }

func (panickingDialer) Dial(ctx context.Context, partition int) (protocol.CoordinatorConn, error) {
	panic("dialer exploded")
}

func lowestPartition(records []core.LogEntry, p int) int {
	lowest := p
	for _, r := range records {
		lowest = min(lowest, PartitionOf(r.IPAddress, p))
	}
	return lowest
}

func TestRun_WorkerTimeout(t *testing.T) {
	records := sampleRecords(t)
	coord := newCoordinator(t, Options{Workers: 3, RunTimeout: 100 * time.Millisecond, Dialer: hangingDialer{}})

	start := time.Now()
	m, err := coord.Run(context.Background(), records, sampleRules(), core.ModeDistributed)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Nil(t, m)
	require.ErrorIs(t, err, core.ErrWorkerFailure)

	var wfe *core.WorkerFailureError
	require.True(t, errors.As(err, &wfe))
	assert.Equal(t, lowestPartition(records, 3), wfe.Partition)
}

func TestRun_WorkerErrorFailsRun(t *testing.T) {
	records := sampleRecords(t)
	coord := newCoordinator(t, Options{Workers: 2, Dialer: rejectingDialer{}})

	m, err := coord.Run(context.Background(), records, sampleRules(), core.ModeDistributed)
	assert.Nil(t, m)
	require.ErrorIs(t, err, core.ErrWorkerFailure)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRun_PanicBecomesWorkerFailure(t *testing.T) {
	coord := NewCoordinator(nil, Options{Workers: 2, Dialer: panickingDialer{}}, zap.NewNop().Sugar())

	m, err := coord.Run(context.Background(), sampleRecords(t), sampleRules(), core.ModeDistributed)
	assert.Nil(t, m)
	require.ErrorIs(t, err, core.ErrWorkerFailure)
	assert.Contains(t, err.Error(), "dialer exploded")
}

func TestRun_Spans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	coord := newCoordinator(t, Options{Workers: 3, Tracer: tp.Tracer("analysis-test")})
	_, err := coord.Run(context.Background(), sampleRecords(t), sampleRules(), core.ModeParallel)
	require.NoError(t, err)

	names := map[string]int{}
	var root tracetest.SpanStub
	for _, s := range exporter.GetSpans() {
		names[s.Name]++
		if s.Name == "analysis.Run" {
			root = s
		}
	}
	assert.Equal(t, 1, names["analysis.Run"])
	assert.Equal(t, 3, names["analysis.partition"])

	for _, s := range exporter.GetSpans() {
		if s.Name == "analysis.partition" {
			assert.Equal(t, root.SpanContext.TraceID(), s.SpanContext.TraceID())
			assert.Equal(t, root.SpanContext.SpanID(), s.Parent.SpanID())
		}
	}
}

func TestWithWorkers(t *testing.T) {
	coord := newCoordinator(t, Options{Workers: 2})
	assert.Same(t, coord, coord.WithWorkers(0))
	assert.Same(t, coord, coord.WithWorkers(2))

	other := coord.WithWorkers(5)
	assert.Equal(t, 5, other.Workers())
	assert.Equal(t, 2, coord.Workers())
}
