// Package core defines the domain model shared by every argus component.
//
// # Types
//
//   - LogEntry: one parsed security log line
//   - Rule and RuleType: behavioral detection rules
//   - Alert: a threshold crossing for one rule and group
//   - Metrics and ExecutionMode: the outcome of an analysis run
//
// # Errors
//
// errors.go holds the error taxonomy. Sentinels are matched with errors.Is;
// the typed errors carry the rule name, partition index or reject reason.
//
// # Worker pool
//
// WorkerPool is the fixed-size goroutine pool used by parallel execution.
// Tasks recover their own panics; the pool only guarantees that a panicking
// task never takes a worker goroutine down.
package core
