package analysis

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"time"

	"argus/core"
	"argus/detect"
	"argus/metrics"
	"argus/protocol"
	"argus/util/goroutine"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	tracerName = "argus/analysis"

	// DefaultChunkSize caps the records carried by one LogChunk.
	DefaultChunkSize = 5000
)

// ErrNoDialer is returned for a Distributed run without a transport.
var ErrNoDialer = errors.New("distributed mode requires a worker transport")

// Options configures a Coordinator.
type Options struct {
	// Workers is the partition count for Parallel and Distributed runs.
	// Zero means one per CPU.
	Workers int
	// RunTimeout bounds the wait for partial results. Zero waits forever.
	RunTimeout time.Duration
	// ChunkSize caps records per LogChunk message.
	ChunkSize int
	Dialer    protocol.Dialer
	Tracer    trace.Tracer
}

// Coordinator runs one batch in the requested execution mode and merges
// the partial results.
type Coordinator struct {
	engine     *detect.Engine
	dialer     protocol.Dialer
	workers    int
	runTimeout time.Duration
	chunkSize  int
	tracer     trace.Tracer
	logger     *zap.SugaredLogger
}

func NewCoordinator(engine *detect.Engine, opts Options, logger *zap.SugaredLogger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if engine == nil {
		engine = detect.NewEngine(nil, logger)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Coordinator{
		engine:     engine,
		dialer:     opts.Dialer,
		workers:    workers,
		runTimeout: opts.RunTimeout,
		chunkSize:  chunkSize,
		tracer:     tracer,
		logger:     logger,
	}
}

// Workers returns the configured partition count.
func (c *Coordinator) Workers() int {
	return c.workers
}

// WithWorkers returns a copy of the coordinator using n partitions.
// Values below one leave the count unchanged.
func (c *Coordinator) WithWorkers(n int) *Coordinator {
	if n < 1 || n == c.workers {
		return c
	}
	cp := *c
	cp.workers = n
	return &cp
}

// Run evaluates records against rules and returns the merged metrics.
//
// The rule set is validated first. Any partition that fails, panics,
// breaks the protocol or misses the run timeout fails the whole run with a
// *core.WorkerFailureError naming the lowest failing partition; no partial
// metrics are returned.
func (c *Coordinator) Run(ctx context.Context, records []core.LogEntry, rules []core.Rule, mode core.ExecutionMode) (*core.Metrics, error) {
	ctx, span := c.tracer.Start(ctx, "analysis.Run", trace.WithAttributes(
		attribute.String("analysis.mode", string(mode)),
		attribute.Int("analysis.records", len(records)),
		attribute.Int("analysis.rules", len(rules)),
	))
	defer span.End()

	m, err := c.run(ctx, records, rules, mode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("analysis.alerts", len(m.AlertsGenerated)),
		attribute.Int("analysis.partitions", m.Partitions),
	)
	return m, nil
}

func (c *Coordinator) run(ctx context.Context, records []core.LogEntry, rules []core.Rule, mode core.ExecutionMode) (*core.Metrics, error) {
	if err := core.ValidateRules(rules); err != nil {
		return nil, err
	}
	ordered := core.SortByTime(records)

	switch mode {
	case core.ModeSequential:
		alerts, processed := c.engine.Evaluate(ordered, rules)
		return &core.Metrics{
			TotalLogsProcessed: processed,
			AlertsGenerated:    alerts,
			Mode:               mode,
			Partitions:         1,
		}, nil

	case core.ModeParallel:
		parts := Partition(ordered, c.workers)
		results, err := c.collect(ctx, mode, parts, func(ctx context.Context, i int) (core.Metrics, error) {
			alerts, processed := c.engine.Evaluate(parts[i], rules)
			return core.Metrics{TotalLogsProcessed: processed, AlertsGenerated: alerts, Mode: mode}, nil
		})
		if err != nil {
			return nil, err
		}
		return Merge(results, len(ordered), mode)

	case core.ModeDistributed:
		if c.dialer == nil {
			return nil, ErrNoDialer
		}
		parts := Partition(ordered, c.workers)
		results, err := c.collect(ctx, mode, parts, func(ctx context.Context, i int) (core.Metrics, error) {
			return c.runRemote(ctx, i, parts[i], rules)
		})
		if err != nil {
			return nil, err
		}
		return Merge(results, len(ordered), mode)
	}

	return nil, fmt.Errorf("unknown execution mode %q", mode)
}

type partitionResult struct {
	index   int
	metrics core.Metrics
	err     error
}

type partitionFunc func(ctx context.Context, partition int) (core.Metrics, error)

// collect runs fn for every partition and waits for all of them, or for
// the run timeout. Parallel runs use a fixed-size pool; Distributed runs
// get one goroutine per partition since they mostly wait on the transport.
func (c *Coordinator) collect(ctx context.Context, mode core.ExecutionMode, parts [][]core.LogEntry, fn partitionFunc) ([]core.Metrics, error) {
	n := len(parts)
	if c.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.runTimeout)
		defer cancel()
	}

	resultCh := make(chan partitionResult, n)
	task := func(i int) func() {
		return func() {
			res := partitionResult{index: i}
			defer func() { resultCh <- res }()
			defer goroutine.RecoverAsError("partition-"+strconv.Itoa(i), c.logger, &res.err)
			res.metrics, res.err = c.evaluatePartition(ctx, mode, i, len(parts[i]), fn)
		}
	}

	var pool *core.WorkerPool
	if mode == core.ModeParallel {
		pool = core.NewWorkerPool(ctx, n, n, "analysis", c.logger)
		if err := pool.Start(); err != nil {
			return nil, fmt.Errorf("failed to start worker pool: %w", err)
		}
	}

	for i := range parts {
		if pool == nil {
			go task(i)()
			continue
		}
		if err := pool.Submit(ctx, task(i)); err != nil {
			resultCh <- partitionResult{index: i, err: err}
		}
	}

	results := make([]core.Metrics, n)
	failures := make(map[int]error)
	got := make([]bool, n)
	received := 0
	timedOut := false
wait:
	for received < n {
		select {
		case res := <-resultCh:
			received++
			got[res.index] = true
			if res.err != nil {
				failures[res.index] = res.err
				continue
			}
			results[res.index] = res.metrics
		case <-ctx.Done():
			timedOut = true
			break wait
		}
	}

	if pool != nil {
		if timedOut {
			// Partition work is not interrupted; let the pool drain on its own.
			go pool.Stop()
		} else {
			pool.Stop()
		}
	}

	for i := range got {
		if !got[i] {
			failures[i] = fmt.Errorf("no result before deadline: %w", ctx.Err())
		}
	}

	if len(failures) > 0 {
		indexes := make([]int, 0, len(failures))
		for i := range failures {
			indexes = append(indexes, i)
		}
		sort.Ints(indexes)
		lowest := indexes[0]
		metrics.WorkerFailures.WithLabelValues(string(mode)).Add(float64(len(failures)))
		c.logger.Errorw("Analysis run failed",
			"mode", mode,
			"failed_partitions", indexes,
			"error", failures[lowest])
		return nil, &core.WorkerFailureError{Partition: lowest, Err: failures[lowest]}
	}
	return results, nil
}

func (c *Coordinator) evaluatePartition(ctx context.Context, mode core.ExecutionMode, i, size int, fn partitionFunc) (core.Metrics, error) {
	ctx, span := c.tracer.Start(ctx, "analysis.partition", trace.WithAttributes(
		attribute.String("analysis.mode", string(mode)),
		attribute.Int("analysis.partition", i),
		attribute.Int("analysis.records", size),
	))
	defer span.End()

	m, err := fn(ctx, i)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return core.Metrics{}, err
	}
	m.Mode = mode
	span.SetAttributes(attribute.Int("analysis.alerts", len(m.AlertsGenerated)))
	return m, nil
}

// runRemote drives one worker session: Rules, LogChunks, StartAnalysis,
// then Shutdown. Empty partitions are not shipped.
func (c *Coordinator) runRemote(ctx context.Context, partition int, records []core.LogEntry, rules []core.Rule) (core.Metrics, error) {
	if len(records) == 0 {
		return core.Metrics{AlertsGenerated: []core.Alert{}}, nil
	}

	conn, err := c.dialer.Dial(ctx, partition)
	if err != nil {
		return core.Metrics{}, fmt.Errorf("failed to reach worker via %s: %w", c.dialer.Name(), err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			c.logger.Warnw("Worker did not close cleanly", "partition", partition, "error", err)
		}
	}()

	if err := conn.Send(ctx, protocol.Rules{Rules: rules}); err != nil {
		return core.Metrics{}, fmt.Errorf("failed to send rules: %w", err)
	}
	if err := expectAck(ctx, conn, "rules"); err != nil {
		return core.Metrics{}, err
	}

	for start := 0; start < len(records); start += c.chunkSize {
		end := min(start+c.chunkSize, len(records))
		if err := conn.Send(ctx, protocol.LogChunk{Records: records[start:end]}); err != nil {
			return core.Metrics{}, fmt.Errorf("failed to send log chunk: %w", err)
		}
	}

	if err := conn.Send(ctx, protocol.StartAnalysis{}); err != nil {
		return core.Metrics{}, fmt.Errorf("failed to start analysis: %w", err)
	}
	reply, err := conn.Recv(ctx)
	if err != nil {
		return core.Metrics{}, fmt.Errorf("failed to receive result: %w", err)
	}
	var result core.Metrics
	switch r := reply.(type) {
	case protocol.AnalysisResult:
		result = r.Metrics
	case protocol.ErrorMessage:
		return core.Metrics{}, fmt.Errorf("worker reported: %s", r.Message)
	default:
		return core.Metrics{}, fmt.Errorf("%w: expected analysis result, got %s", core.ErrProtocolViolation, reply.Kind())
	}
	if result.TotalLogsProcessed != len(records) {
		return core.Metrics{}, fmt.Errorf("worker processed %d of %d records", result.TotalLogsProcessed, len(records))
	}

	// The result is already in hand; a failed shutdown only gets logged.
	if err := conn.Send(ctx, protocol.Shutdown{}); err != nil {
		c.logger.Warnw("Failed to send shutdown", "partition", partition, "error", err)
	} else if err := expectAck(ctx, conn, "shutdown"); err != nil {
		c.logger.Warnw("Worker did not acknowledge shutdown", "partition", partition, "error", err)
	}

	if result.AlertsGenerated == nil {
		result.AlertsGenerated = []core.Alert{}
	}
	return result, nil
}

func expectAck(ctx context.Context, conn protocol.CoordinatorConn, what string) error {
	reply, err := conn.Recv(ctx)
	if err != nil {
		return fmt.Errorf("failed to receive %s ack: %w", what, err)
	}
	switch r := reply.(type) {
	case protocol.Ack:
		return nil
	case protocol.ErrorMessage:
		return fmt.Errorf("worker rejected %s: %s", what, r.Message)
	}
	return fmt.Errorf("%w: expected ack for %s, got %s", core.ErrProtocolViolation, what, reply.Kind())
}
