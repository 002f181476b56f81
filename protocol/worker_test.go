package protocol

import (
	"testing"

	"argus/core"
	"argus/detect"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestWorker(t *testing.T) *Worker {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	return NewWorker(detect.NewEngine(nil, logger), logger)
}

func requireViolation(t *testing.T, reply ToCoordinator) {
	t.Helper()
	em, ok := reply.(ErrorMessage)
	require.True(t, ok, "expected ErrorMessage, got %T", reply)
	assert.Contains(t, em.Message, core.ErrProtocolViolation.Error())
}

func TestWorker_HappyPath(t *testing.T) {
	w := newTestWorker(t)

	assert.Equal(t, Ack{}, w.Handle(Rules{Rules: testRules()}))
	assert.Nil(t, w.Handle(LogChunk{Records: testRecords()[:1]}))
	assert.Nil(t, w.Handle(LogChunk{Records: testRecords()[1:]}))

	reply := w.Handle(StartAnalysis{})
	result, ok := reply.(AnalysisResult)
	require.True(t, ok, "expected AnalysisResult, got %T", reply)
	assert.Equal(t, 2, result.Metrics.TotalLogsProcessed)
	assert.Equal(t, core.ModeDistributed, result.Metrics.Mode)

	assert.Equal(t, Ack{}, w.Handle(Shutdown{}))
	assert.True(t, w.Stopped())
}

func TestWorker_LogChunkBeforeRules(t *testing.T) {
	w := newTestWorker(t)
	requireViolation(t, w.Handle(LogChunk{Records: testRecords()}))

	// The worker stays usable after a violation.
	assert.Equal(t, Ack{}, w.Handle(Rules{Rules: testRules()}))
}

func TestWorker_StartBeforeRules(t *testing.T) {
	w := newTestWorker(t)
	requireViolation(t, w.Handle(StartAnalysis{}))
}

func TestWorker_SecondRulesRejected(t *testing.T) {
	w := newTestWorker(t)
	require.Equal(t, Ack{}, w.Handle(Rules{Rules: testRules()}))
	requireViolation(t, w.Handle(Rules{Rules: testRules()}))
}

func TestWorker_InvalidRules(t *testing.T) {
	w := newTestWorker(t)
	reply := w.Handle(Rules{Rules: []core.Rule{{Name: "bad", RuleType: core.TypeOf(core.RuleKindBruteForce), Threshold: 0}}})
	em, ok := reply.(ErrorMessage)
	require.True(t, ok)
	assert.Contains(t, em.Message, "invalid rule")

	// Invalid rules do not count as received.
	requireViolation(t, w.Handle(LogChunk{Records: testRecords()}))
}

func TestWorker_NoProcessingBeforeStart(t *testing.T) {
	w := newTestWorker(t)
	require.Equal(t, Ack{}, w.Handle(Rules{Rules: []core.Rule{
		{Name: "any", RuleType: core.TypeOf(core.RuleKindHighFrequencyRequest), Threshold: 1},
	}}))
	assert.Nil(t, w.Handle(LogChunk{Records: testRecords()}))

	result := w.Handle(StartAnalysis{}).(AnalysisResult)
	assert.Equal(t, 2, result.Metrics.TotalLogsProcessed)
	assert.Len(t, result.Metrics.AlertsGenerated, 2)

	// Chunks are consumed by the analysis; a second round starts empty.
	again := w.Handle(StartAnalysis{}).(AnalysisResult)
	assert.Zero(t, again.Metrics.TotalLogsProcessed)
}

func TestWorker_SilentAfterShutdown(t *testing.T) {
	w := newTestWorker(t)
	require.Equal(t, Ack{}, w.Handle(Rules{Rules: testRules()}))
	assert.Nil(t, w.Handle(LogChunk{Records: testRecords()}))
	require.Equal(t, Ack{}, w.Handle(Shutdown{}))

	assert.Nil(t, w.Handle(StartAnalysis{}))
	assert.Nil(t, w.Handle(Rules{Rules: testRules()}))
	assert.Nil(t, w.Handle(Shutdown{}))
}
