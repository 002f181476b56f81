// Package protocol is the message-passing contract between the analysis
// coordinator and its workers, plus the transports that carry it.
//
// Each direction has a closed message set. A worker must receive Rules
// before any LogChunk, evaluates buffered chunks only on StartAnalysis, and
// after Shutdown acknowledges and sends nothing more.
package protocol

import "argus/core"

// Kind tags a message on the wire.
type Kind string

const (
	KindLogChunk       Kind = "log_chunk"
	KindRules          Kind = "rules"
	KindStartAnalysis  Kind = "start_analysis"
	KindShutdown       Kind = "shutdown"
	KindAnalysisResult Kind = "analysis_result"
	KindError          Kind = "error"
	KindAck            Kind = "ack"
)

// ToWorker is a coordinator to worker message.
type ToWorker interface {
	Kind() Kind
	toWorker()
}

// ToCoordinator is a worker to coordinator message.
type ToCoordinator interface {
	Kind() Kind
	toCoordinator()
}

// LogChunk assigns records to the worker.
type LogChunk struct {
	Records []core.LogEntry
}

// Rules carries the rule set for the run.
type Rules struct {
	Rules []core.Rule
}

// StartAnalysis asks the worker to evaluate what it has received.
type StartAnalysis struct{}

// Shutdown ends the session.
type Shutdown struct{}

// AnalysisResult is the partial outcome for the worker's chunks.
type AnalysisResult struct {
	Metrics core.Metrics
}

// ErrorMessage reports a failed partition or a protocol violation.
type ErrorMessage struct {
	Message string
}

// Ack acknowledges Rules or Shutdown.
type Ack struct{}

func (LogChunk) Kind() Kind      { return KindLogChunk }
func (Rules) Kind() Kind         { return KindRules }
func (StartAnalysis) Kind() Kind { return KindStartAnalysis }
func (Shutdown) Kind() Kind      { return KindShutdown }

func (LogChunk) toWorker()      {}
func (Rules) toWorker()         {}
func (StartAnalysis) toWorker() {}
func (Shutdown) toWorker()      {}

func (AnalysisResult) Kind() Kind { return KindAnalysisResult }
func (ErrorMessage) Kind() Kind   { return KindError }
func (Ack) Kind() Kind            { return KindAck }

func (AnalysisResult) toCoordinator() {}
func (ErrorMessage) toCoordinator()   {}
func (Ack) toCoordinator()            {}
