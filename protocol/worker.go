package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"

	"argus/core"
	"argus/detect"

	"go.uber.org/zap"
)

// Worker is the worker-side state machine for one session.
type Worker struct {
	engine    *detect.Engine
	logger    *zap.SugaredLogger
	rules     []core.Rule
	haveRules bool
	pending   []core.LogEntry
	stopped   bool
}

func NewWorker(engine *detect.Engine, logger *zap.SugaredLogger) *Worker {
	return &Worker{engine: engine, logger: logger}
}

// Stopped reports whether Shutdown has been handled.
func (w *Worker) Stopped() bool {
	return w.stopped
}

// Handle applies one message and returns the reply, if any. Once Shutdown
// has been handled every later message is ignored and gets no reply.
func (w *Worker) Handle(msg ToWorker) ToCoordinator {
	if w.stopped {
		return nil
	}

	switch m := msg.(type) {
	case Rules:
		if w.haveRules {
			return violation("rules already received for this session")
		}
		if err := core.ValidateRules(m.Rules); err != nil {
			return ErrorMessage{Message: err.Error()}
		}
		w.rules = m.Rules
		w.haveRules = true
		w.logger.Debugw("Rules received", "count", len(m.Rules))
		return Ack{}

	case LogChunk:
		if !w.haveRules {
			return violation("log chunk received before rules")
		}
		w.pending = append(w.pending, m.Records...)
		return nil

	case StartAnalysis:
		if !w.haveRules {
			return violation("start analysis received before rules")
		}
		alerts, processed := w.engine.Evaluate(w.pending, w.rules)
		w.pending = nil
		w.logger.Debugw("Partition evaluated", "records", processed, "alerts", len(alerts))
		return AnalysisResult{Metrics: core.Metrics{
			TotalLogsProcessed: processed,
			AlertsGenerated:    alerts,
			Mode:               core.ModeDistributed,
		}}

	case Shutdown:
		w.stopped = true
		w.pending = nil
		return Ack{}
	}

	return violation(fmt.Sprintf("unknown message %T", msg))
}

func violation(reason string) ErrorMessage {
	return ErrorMessage{Message: fmt.Sprintf("%s: %s", core.ErrProtocolViolation, reason)}
}

// Serve runs the state machine over conn until Shutdown or until the
// coordinator closes the link.
func (w *Worker) Serve(ctx context.Context, conn WorkerConn) error {
	for {
		msg, err := conn.Recv(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrConnClosed) {
				w.logger.Debugw("Coordinator closed the link")
				return nil
			}
			return fmt.Errorf("worker receive failed: %w", err)
		}

		reply := w.Handle(msg)
		if reply != nil {
			if err := conn.Send(ctx, reply); err != nil {
				return fmt.Errorf("worker send failed: %w", err)
			}
		}
		if w.stopped {
			return nil
		}
	}
}
