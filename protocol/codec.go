package protocol

import (
	"fmt"

	"argus/core"
	"argus/metrics"

	"github.com/vmihailenco/msgpack/v5"
)

// envelope is the wire form of every message.
type envelope struct {
	Kind    Kind            `msgpack:"kind"`
	Records []core.LogEntry `msgpack:"records,omitempty"`
	Rules   []core.Rule     `msgpack:"rules,omitempty"`
	Metrics *core.Metrics   `msgpack:"metrics,omitempty"`
	Message string          `msgpack:"message,omitempty"`
	// Session is set only by transports whose workers outlive a session.
	Session string `msgpack:"session,omitempty"`
}

const (
	dirToWorker      = "to_worker"
	dirToCoordinator = "to_coordinator"
)

func wrapToWorker(msg ToWorker) (envelope, error) {
	env := envelope{Kind: msg.Kind()}
	switch m := msg.(type) {
	case LogChunk:
		env.Records = m.Records
	case Rules:
		env.Rules = m.Rules
	case StartAnalysis, Shutdown:
	default:
		return envelope{}, fmt.Errorf("unsupported coordinator message %T", msg)
	}
	metrics.ProtocolMessages.WithLabelValues(dirToWorker, string(env.Kind)).Inc()
	return env, nil
}

func unwrapToWorker(env envelope) (ToWorker, error) {
	switch env.Kind {
	case KindLogChunk:
		normalizeRecords(env.Records)
		return LogChunk{Records: env.Records}, nil
	case KindRules:
		rules := env.Rules
		if rules == nil {
			rules = []core.Rule{}
		}
		return Rules{Rules: rules}, nil
	case KindStartAnalysis:
		return StartAnalysis{}, nil
	case KindShutdown:
		return Shutdown{}, nil
	}
	return nil, fmt.Errorf("%w: unexpected message kind %q for worker", core.ErrProtocolViolation, env.Kind)
}

func wrapToCoordinator(msg ToCoordinator) (envelope, error) {
	env := envelope{Kind: msg.Kind()}
	switch m := msg.(type) {
	case AnalysisResult:
		mt := m.Metrics
		env.Metrics = &mt
	case ErrorMessage:
		env.Message = m.Message
	case Ack:
	default:
		return envelope{}, fmt.Errorf("unsupported worker message %T", msg)
	}
	metrics.ProtocolMessages.WithLabelValues(dirToCoordinator, string(env.Kind)).Inc()
	return env, nil
}

func unwrapToCoordinator(env envelope) (ToCoordinator, error) {
	switch env.Kind {
	case KindAnalysisResult:
		if env.Metrics == nil {
			return nil, fmt.Errorf("%w: analysis result without metrics", core.ErrProtocolViolation)
		}
		m := *env.Metrics
		if m.AlertsGenerated == nil {
			m.AlertsGenerated = []core.Alert{}
		}
		normalizeAlerts(m.AlertsGenerated)
		return AnalysisResult{Metrics: m}, nil
	case KindError:
		return ErrorMessage{Message: env.Message}, nil
	case KindAck:
		return Ack{}, nil
	}
	return nil, fmt.Errorf("%w: unexpected message kind %q for coordinator", core.ErrProtocolViolation, env.Kind)
}

// MarshalToWorker encodes a coordinator message as one msgpack document.
func MarshalToWorker(msg ToWorker) ([]byte, error) {
	env, err := wrapToWorker(msg)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(&env)
}

// UnmarshalToWorker decodes a document produced by MarshalToWorker.
func UnmarshalToWorker(data []byte) (ToWorker, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode worker message: %w", err)
	}
	return unwrapToWorker(env)
}

// MarshalToCoordinator encodes a worker message as one msgpack document.
func MarshalToCoordinator(msg ToCoordinator) ([]byte, error) {
	env, err := wrapToCoordinator(msg)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(&env)
}

// UnmarshalToCoordinator decodes a document produced by MarshalToCoordinator.
func UnmarshalToCoordinator(data []byte) (ToCoordinator, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode coordinator message: %w", err)
	}
	return unwrapToCoordinator(env)
}

// msgpack restores timestamps in the local zone; records are UTC.
func normalizeRecords(records []core.LogEntry) {
	for i := range records {
		records[i].Timestamp = records[i].Timestamp.UTC()
	}
}

func normalizeAlerts(alerts []core.Alert) {
	for i := range alerts {
		alerts[i].Timestamp = alerts[i].Timestamp.UTC()
		alerts[i].WindowStart = alerts[i].WindowStart.UTC()
		alerts[i].LogEntrySample.Timestamp = alerts[i].LogEntrySample.Timestamp.UTC()
	}
}
