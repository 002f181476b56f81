package ingest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"argus/core"
)

const (
	maxLineBytes     = 1 << 20
	maxRejectSamples = 100
)

// Reject describes one line the parser dropped.
type Reject struct {
	LineNumber int    `json:"line_number"`
	Reason     string `json:"reason"`
}

// Batch is the parsed form of a log source.
type Batch struct {
	Records  []core.LogEntry
	Rejected int
	// Samples holds the first rejected lines, capped at 100.
	Samples []Reject
}

func (b *Batch) add(lineNo int, line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	entry, err := ParseLine(line)
	if err == nil {
		b.Records = append(b.Records, entry)
		return
	}
	b.Rejected++
	if len(b.Samples) < maxRejectSamples {
		reason := err.Error()
		var mle *core.MalformedLineError
		if errors.As(err, &mle) {
			reason = mle.Reason
		}
		b.Samples = append(b.Samples, Reject{LineNumber: lineNo, Reason: reason})
	}
}

// ParseLines reads r line by line. Malformed lines are counted and skipped;
// only read errors are returned.
func ParseLines(r io.Reader) (Batch, error) {
	var b Batch
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		b.add(lineNo, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return b, fmt.Errorf("failed to read log lines after line %d: %w", lineNo, err)
	}
	return b, nil
}

// ParseStrings parses an in-memory slice of lines.
func ParseStrings(lines []string) Batch {
	var b Batch
	b.Records = make([]core.LogEntry, 0, len(lines))
	for i, line := range lines {
		b.add(i+1, line)
	}
	return b
}
