package core

import (
	"sort"
	"time"
)

// DefaultEventType is assigned to records whose line carries no event token.
const DefaultEventType = "unknown"

// LogEntry is one parsed security log line.
// UserID is empty when the line carried no user_id token.
type LogEntry struct {
	Timestamp time.Time         `json:"timestamp" yaml:"timestamp" msgpack:"timestamp"`
	Level     string            `json:"level,omitempty" yaml:"level,omitempty" msgpack:"level,omitempty"`
	IPAddress string            `json:"ip_address" yaml:"ip_address" msgpack:"ip_address"`
	UserID    string            `json:"user_id,omitempty" yaml:"user_id,omitempty" msgpack:"user_id,omitempty"`
	EventType string            `json:"event_type" yaml:"event_type" msgpack:"event_type"`
	Details   map[string]string `json:"details" yaml:"details" msgpack:"details"`
}

// Detail returns a details value and whether it was present.
func (e *LogEntry) Detail(key string) (string, bool) {
	if e.Details == nil {
		return "", false
	}
	v, ok := e.Details[key]
	return v, ok
}

// IsSortedByTime reports whether records are in non-decreasing timestamp order.
func IsSortedByTime(records []LogEntry) bool {
	return sort.SliceIsSorted(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}

// SortByTime returns records in non-decreasing timestamp order.
// Already ordered input is returned as is; otherwise a stably sorted copy is
// returned and the caller's slice is left untouched.
func SortByTime(records []LogEntry) []LogEntry {
	if IsSortedByTime(records) {
		return records
	}
	sorted := make([]LogEntry, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}
