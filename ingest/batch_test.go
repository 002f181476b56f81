package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLines_MalformedTolerance(t *testing.T) {
	var buf bytes.Buffer
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 100; i++ {
		if i%10 == 3 {
			fmt.Fprintf(&buf, "garbage line %d\n", i)
			continue
		}
		fmt.Fprintf(&buf, "[%s] [INFO] 10.0.0.%d event=login_failed\n", base.Add(time.Duration(i)*time.Second).Format(time.RFC3339), i%5)
	}

	batch, err := ParseLines(&buf)
	require.NoError(t, err)
	assert.Len(t, batch.Records, 90)
	assert.Equal(t, 10, batch.Rejected)
	require.Len(t, batch.Samples, 10)
	assert.Equal(t, 4, batch.Samples[0].LineNumber)
}

func TestParseLines_SkipsBlankLines(t *testing.T) {
	in := "\n[2024-01-01T00:00:00Z] [INFO] 10.0.0.1\n   \n\n"
	batch, err := ParseLines(strings.NewReader(in))
	require.NoError(t, err)
	assert.Len(t, batch.Records, 1)
	assert.Zero(t, batch.Rejected)
}

func TestParseLines_CapsSamples(t *testing.T) {
	in := strings.Repeat("bad\n", 250)
	batch, err := ParseLines(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 250, batch.Rejected)
	assert.Len(t, batch.Samples, maxRejectSamples)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestParseLines_ReadError(t *testing.T) {
	_, err := ParseLines(failingReader{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestParseStrings(t *testing.T) {
	batch := ParseStrings([]string{
		"[2024-01-01T00:00:00Z] [INFO] 10.0.0.1 event=a",
		"nope",
		"[2024-01-01T00:00:01Z] [INFO] 10.0.0.2 event=b",
	})
	require.Len(t, batch.Records, 2)
	assert.Equal(t, 1, batch.Rejected)
	assert.Equal(t, 2, batch.Samples[0].LineNumber)
}
