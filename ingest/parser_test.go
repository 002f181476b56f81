package ingest

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"argus/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine_FullRecord(t *testing.T) {
	line := `[2023-10-27T10:00:00Z] [INFO] 192.168.1.1 user_id=testuser event=login_failed details={"reason":"bad_password"}`

	entry, err := ParseLine(line)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2023, 10, 27, 10, 0, 0, 0, time.UTC), entry.Timestamp)
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "192.168.1.1", entry.IPAddress)
	assert.Equal(t, "testuser", entry.UserID)
	assert.Equal(t, "login_failed", entry.EventType)
	assert.Equal(t, map[string]string{"reason": "bad_password"}, entry.Details)
}

func TestParseLine_NormalizesToUTC(t *testing.T) {
	entry, err := ParseLine(`[2023-10-27T12:00:00+02:00] [INFO] 10.0.0.1 event=x`)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, entry.Timestamp.Location())
	assert.Equal(t, 10, entry.Timestamp.Hour())
}

func TestParseLine_OptionalFields(t *testing.T) {
	entry, err := ParseLine(`[2023-10-27T10:00:00Z] [DEBUG] 10.0.0.1`)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", entry.IPAddress)
	assert.Empty(t, entry.UserID)
	assert.Equal(t, core.DefaultEventType, entry.EventType)
	assert.Empty(t, entry.Details)
}

func TestParseLine_UnorderedAndUnknownTokens(t *testing.T) {
	entry, err := ParseLine(`[2023-10-27T10:00:00Z] [WARN] 10.0.0.1 session=abc details={"a":"b"} event=port_scan trace user_id=bob`)
	require.NoError(t, err)
	assert.Equal(t, "bob", entry.UserID)
	assert.Equal(t, "port_scan", entry.EventType)
	assert.Equal(t, map[string]string{"a": "b"}, entry.Details)
}

func TestParseLine_BadDetailsIgnored(t *testing.T) {
	tests := []string{
		`details={not-json}`,
		`details=["a","b"]`,
		`details={"n":1}`,
		`details={"nested":{"a":"b"}}`,
		`details=`,
	}
	for _, tok := range tests {
		t.Run(tok, func(t *testing.T) {
			entry, err := ParseLine(`[2023-10-27T10:00:00Z] [INFO] 10.0.0.1 event=login_failed ` + tok)
			require.NoError(t, err, "bad details must not reject the line")
			assert.Empty(t, entry.Details)
			assert.Equal(t, "login_failed", entry.EventType)
		})
	}
}

func TestParseLine_Rejects(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"one segment", "no brackets at all"},
		{"two segments", "[2023-10-27T10:00:00Z] 10.0.0.1 event=x"},
		{"bad timestamp", "[yesterday] [INFO] 10.0.0.1"},
		{"missing bracket", "2023-10-27T10:00:00Z] [INFO] 10.0.0.1"},
		{"missing ip", "[2023-10-27T10:00:00Z] [INFO]    "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLine(tt.line)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrMalformedLine))
			var mle *core.MalformedLineError
			require.True(t, errors.As(err, &mle))
			assert.NotEmpty(t, mle.Reason)
		})
	}
}

// Parsing a line rendered from a parsed record yields the same record.
func TestParseLine_Idempotent(t *testing.T) {
	lines := NewSynthesizer(SynthConfig{Seed: 7, Lines: 200, BurstRatio: 0.05}).Lines()
	for _, line := range lines {
		first, err := ParseLine(line)
		require.NoError(t, err, line)

		second, err := ParseLine(render(first))
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}

func render(e core.LogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] %s", e.Timestamp.Format(time.RFC3339Nano), e.Level, e.IPAddress)
	if e.UserID != "" {
		b.WriteString(" user_id=" + e.UserID)
	}
	b.WriteString(" event=" + e.EventType)
	b.WriteString(" details={")
	first := true
	for k, v := range e.Details {
		if !first {
			b.WriteString(",")
		}
		first = false
		fmt.Fprintf(&b, "%q:%q", k, v)
	}
	b.WriteString("}")
	return b.String()
}

func BenchmarkParseLine(b *testing.B) {
	line := `[2023-10-27T10:00:00Z] [INFO] 192.168.1.1 user_id=testuser event=login_failed details={"reason":"bad_password"}`
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := ParseLine(line); err != nil {
			b.Fatal(err)
		}
	}
}
