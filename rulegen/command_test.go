package rulegen

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"argus/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const helperModeEnv = "ARGUS_RULEGEN_HELPER"

// TestMain lets the test binary stand in for an external generator.
func TestMain(m *testing.M) {
	switch os.Getenv(helperModeEnv) {
	case "":
		os.Exit(m.Run())
	case "ok":
		description := os.Args[len(os.Args)-1]
		out, _ := json.Marshal(map[string]interface{}{
			"name":                "FromCommand",
			"rule_type":           "BruteForce",
			"threshold":           7,
			"time_window_seconds": 120,
			"description":         description,
		})
		fmt.Println(string(out))
	case "fail":
		fmt.Fprintln(os.Stderr, "model not loaded")
		os.Exit(3)
	case "garbage":
		fmt.Println("I am not JSON")
	case "invalid":
		fmt.Println(`{"name":"Bad","rule_type":"BruteForce","threshold":0}`)
	case "sleep":
		time.Sleep(10 * time.Second)
	}
	os.Exit(0)
}

func helperGenerator(t *testing.T, mode string) *CommandGenerator {
	t.Helper()
	return &CommandGenerator{
		Command: os.Args[0],
		Args:    []string{"-test.run=^$"},
		Env:     []string{helperModeEnv + "=" + mode},
		Timeout: 5 * time.Second,
		Logger:  zaptest.NewLogger(t).Sugar(),
	}
}

func TestCommandGenerator_Success(t *testing.T) {
	rule, err := helperGenerator(t, "ok").Generate(context.Background(), "ten failed logins")
	require.NoError(t, err)
	assert.Equal(t, "FromCommand", rule.Name)
	assert.Equal(t, core.TypeOf(core.RuleKindBruteForce), rule.RuleType)
	assert.Equal(t, 7, rule.Threshold)
	assert.Equal(t, int64(120), rule.TimeWindow)
	assert.Equal(t, "ten failed logins", rule.Description)
}

func TestCommandGenerator_Errors(t *testing.T) {
	tests := []struct {
		mode string
		want error
	}{
		{"fail", ErrGeneratorFailed},
		{"garbage", ErrBadGeneratorOutput},
		{"invalid", core.ErrInvalidRule},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			_, err := helperGenerator(t, tt.mode).Generate(context.Background(), "anything")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCommandGenerator_StderrIsReported(t *testing.T) {
	_, err := helperGenerator(t, "fail").Generate(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestCommandGenerator_Timeout(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a timeout")
	}
	g := helperGenerator(t, "sleep")
	g.Timeout = 200 * time.Millisecond

	_, err := g.Generate(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrGeneratorFailed)
}

func TestCommandGenerator_Missing(t *testing.T) {
	g := &CommandGenerator{Command: "/nonexistent/rule-generator"}
	_, err := g.Generate(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrGeneratorUnavailable)

	_, err = (&CommandGenerator{}).Generate(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrGeneratorUnavailable)
}

func TestFallback(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	f := &Fallback{
		Primary:   &CommandGenerator{Command: "/nonexistent/rule-generator"},
		Secondary: HeuristicGenerator{},
		Logger:    logger,
	}
	assert.Equal(t, "command+heuristic", f.Name())

	rule, err := f.Generate(context.Background(), "brute force more than 4 in 1 minute")
	require.NoError(t, err)
	assert.Equal(t, core.TypeOf(core.RuleKindBruteForce), rule.RuleType)
	assert.Equal(t, 4, rule.Threshold)
	assert.Equal(t, int64(60), rule.TimeWindow)

	_, err = f.Generate(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyDescription)
}

func TestFallback_BreakerSkipsFailingCommand(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	f := &Fallback{
		Primary:   helperGenerator(t, "fail"),
		Secondary: HeuristicGenerator{},
		Breaker:   NewBreaker(2, time.Hour),
		Logger:    logger,
	}

	for i := 0; i < 3; i++ {
		rule, err := f.Generate(context.Background(), "brute force more than 4 in 1 minute")
		require.NoError(t, err)
		assert.Equal(t, 4, rule.Threshold)
	}
	assert.Equal(t, BreakerOpen, f.Breaker.State())
}
