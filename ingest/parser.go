package ingest

import (
	"strings"
	"time"

	"argus/core"

	"github.com/valyala/fastjson"
)

const segmentSep = "] "

// Token prefixes recognised after the IP address.
const (
	userIDPrefix  = "user_id="
	eventPrefix   = "event="
	detailsPrefix = "details="
)

var detailsParsers fastjson.ParserPool

// ParseLine turns one raw line into a LogEntry.
//
// Accepted shape:
//
//	[2024-05-01T10:00:00Z] [WARN] 10.0.0.7 user_id=alice event=login_failed details={"reason":"bad_password"}
//
// A line that cannot be parsed yields a *core.MalformedLineError. A details
// token that is not a flat object of strings is dropped, not rejected.
func ParseLine(line string) (core.LogEntry, error) {
	parts := strings.SplitN(line, segmentSep, 3)
	if len(parts) < 3 {
		return core.LogEntry{}, malformed(line, "expected three \"] \"-separated segments")
	}

	if !strings.HasPrefix(parts[0], "[") {
		return core.LogEntry{}, malformed(line, "timestamp must be enclosed in brackets")
	}
	ts, err := time.Parse(time.RFC3339, parts[0][1:])
	if err != nil {
		return core.LogEntry{}, malformed(line, "invalid RFC3339 timestamp")
	}

	tokens := strings.Fields(parts[2])
	if len(tokens) == 0 {
		return core.LogEntry{}, malformed(line, "missing ip address")
	}

	entry := core.LogEntry{
		Timestamp: ts.UTC(),
		Level:     strings.TrimPrefix(parts[1], "["),
		IPAddress: tokens[0],
		EventType: core.DefaultEventType,
		Details:   map[string]string{},
	}

	for _, tok := range tokens[1:] {
		switch {
		case strings.HasPrefix(tok, userIDPrefix):
			entry.UserID = tok[len(userIDPrefix):]
		case strings.HasPrefix(tok, eventPrefix):
			entry.EventType = tok[len(eventPrefix):]
		case strings.HasPrefix(tok, detailsPrefix):
			if details, ok := parseDetails(tok[len(detailsPrefix):]); ok {
				entry.Details = details
			}
		}
	}

	return entry, nil
}

// parseDetails accepts only a flat JSON object whose values are strings.
func parseDetails(raw string) (map[string]string, bool) {
	p := detailsParsers.Get()
	defer detailsParsers.Put(p)

	v, err := p.Parse(raw)
	if err != nil {
		return nil, false
	}
	obj, err := v.Object()
	if err != nil {
		return nil, false
	}

	details := make(map[string]string, obj.Len())
	ok := true
	obj.Visit(func(key []byte, val *fastjson.Value) {
		if !ok {
			return
		}
		b, err := val.StringBytes()
		if err != nil {
			ok = false
			return
		}
		details[string(key)] = string(b)
	})
	if !ok {
		return nil, false
	}
	return details, true
}

func malformed(line, reason string) error {
	return &core.MalformedLineError{Reason: reason, Line: line}
}
