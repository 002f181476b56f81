package core

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match them with errors.Is.
var (
	ErrMalformedLine        = errors.New("malformed log line")
	ErrInvalidRule          = errors.New("invalid rule")
	ErrWorkerFailure        = errors.New("worker failure")
	ErrMergeConflict        = errors.New("merge conflict")
	ErrRuleSourceUnreadable = errors.New("rule source unreadable")
	ErrRuleSourceMalformed  = errors.New("rule source malformed")
	ErrProtocolViolation    = errors.New("protocol violation")
)

// MalformedLineError describes why a raw line could not become a LogEntry.
type MalformedLineError struct {
	Reason string
	Line   string
}

func (e *MalformedLineError) Error() string {
	return fmt.Sprintf("malformed log line: %s", e.Reason)
}

func (e *MalformedLineError) Unwrap() error { return ErrMalformedLine }

// InvalidRuleError names the rule and the violated constraint.
type InvalidRuleError struct {
	Rule   string
	Reason string
}

func (e *InvalidRuleError) Error() string {
	if e.Rule == "" {
		return fmt.Sprintf("invalid rule: %s", e.Reason)
	}
	return fmt.Sprintf("invalid rule %q: %s", e.Rule, e.Reason)
}

func (e *InvalidRuleError) Unwrap() error { return ErrInvalidRule }

// WorkerFailureError reports the partition that failed and its cause.
// Both ErrWorkerFailure and the cause are reachable through errors.Is.
type WorkerFailureError struct {
	Partition int
	Err       error
}

func (e *WorkerFailureError) Error() string {
	return fmt.Sprintf("worker failure on partition %d: %v", e.Partition, e.Err)
}

func (e *WorkerFailureError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrWorkerFailure}
	}
	return []error{ErrWorkerFailure, e.Err}
}

// MergeConflictError reports partial results that cannot be combined.
type MergeConflictError struct {
	Reason string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflict: %s", e.Reason)
}

func (e *MergeConflictError) Unwrap() error { return ErrMergeConflict }
