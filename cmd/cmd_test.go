package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"argus/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRulesJSON = `[{"name":"brute-force","rule_type":"BruteForce","threshold":3,"time_window":60}]`

var bruteForceLines = strings.Join([]string{
	`[2024-05-01T09:00:00Z] [WARN] 10.0.0.1 user_id=alice event=login_failed details={}`,
	`[2024-05-01T09:00:10Z] [WARN] 10.0.0.1 user_id=alice event=login_failed details={}`,
	`[2024-05-01T09:00:20Z] [WARN] 10.0.0.1 user_id=alice event=login_failed details={}`,
	`[2024-05-01T09:00:30Z] [INFO] 10.0.0.1 user_id=alice event=login_success details={}`,
	`not a log line`,
}, "\n") + "\n"

// writeConfig writes a rules file and a config pointing at it.
func writeConfig(t *testing.T) (configPath, rulesPath string) {
	t.Helper()
	dir := t.TempDir()
	rulesPath = filepath.Join(dir, "rules.json")
	require.NoError(t, os.WriteFile(rulesPath, []byte(testRulesJSON), 0o600))

	body := fmt.Sprintf("log:\n  level: error\nrules:\n  file: %s\n", rulesPath)
	configPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(body), 0o600))
	return configPath, rulesPath
}

// run executes the root command and returns stdout and stderr.
func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

type analyzeOutput struct {
	TotalLogsProcessed int              `json:"total_logs_processed"`
	LinesRejected      int              `json:"lines_rejected"`
	Mode               string           `json:"mode"`
	AlertsGenerated    []map[string]any `json:"alerts_generated"`
}

func TestRootCommand(t *testing.T) {
	root := NewRootCmd()

	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"analyze", "worker", "serve", "rules", "generate-logs"} {
		assert.Contains(t, names, want)
	}

	for _, flag := range []string{"json", "config", "log-level", "no-color", "quiet"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestAnalyze_Stdin(t *testing.T) {
	configPath, _ := writeConfig(t)

	stdout, _, err := run(t, bruteForceLines, "analyze", "--config", configPath, "--json")
	require.NoError(t, err)

	var out analyzeOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out), stdout)
	assert.Equal(t, 4, out.TotalLogsProcessed)
	assert.Equal(t, 1, out.LinesRejected)
	assert.Equal(t, string(core.ModeSequential), out.Mode)
	require.Len(t, out.AlertsGenerated, 1)
	assert.EqualValues(t, 3, out.AlertsGenerated[0]["count"])
}

func TestAnalyze_ModesAgree(t *testing.T) {
	configPath, _ := writeConfig(t)
	logPath := filepath.Join(t.TempDir(), "batch.log")
	_, _, err := run(t, "", "generate-logs", "--lines", "2000", "--seed", "7", "--burst", "0.05", "--output", logPath, "--quiet")
	require.NoError(t, err)

	alertIDs := func(mode string) []string {
		stdout, _, err := run(t, "", "analyze", logPath, "--config", configPath, "--json", "--mode", mode, "--workers", "4")
		require.NoError(t, err)
		var out analyzeOutput
		require.NoError(t, json.Unmarshal([]byte(stdout), &out))
		assert.Equal(t, 2000, out.TotalLogsProcessed)
		ids := make([]string, 0, len(out.AlertsGenerated))
		for _, a := range out.AlertsGenerated {
			ids = append(ids, fmt.Sprint(a["id"]))
		}
		return ids
	}

	sequential := alertIDs("sequential")
	assert.NotEmpty(t, sequential)
	assert.ElementsMatch(t, sequential, alertIDs("parallel"))
	assert.ElementsMatch(t, sequential, alertIDs("distributed"))
}

func TestAnalyze_TextOutput(t *testing.T) {
	configPath, _ := writeConfig(t)

	stdout, _, err := run(t, bruteForceLines, "analyze", "-", "--config", configPath, "--no-color")
	require.NoError(t, err)
	assert.Contains(t, stdout, "ANALYSIS")
	assert.Contains(t, stdout, "brute-force")
	assert.Contains(t, stdout, "10.0.0.1")
}

func TestAnalyze_Errors(t *testing.T) {
	configPath, _ := writeConfig(t)

	_, _, err := run(t, "", "analyze", "--config", configPath, "--mode", "sideways")
	assert.Error(t, err)

	_, _, err = run(t, "", "analyze", "--config", configPath, "--workers", "-1")
	assert.Error(t, err)

	_, _, err = run(t, "", "analyze", filepath.Join(t.TempDir(), "missing.log"), "--config", configPath)
	assert.Error(t, err)

	_, _, err = run(t, "", "analyze", "--config", configPath, "--rules", filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, core.ErrRuleSourceUnreadable)
}

func TestGenerateLogs_Deterministic(t *testing.T) {
	first, _, err := run(t, "", "generate-logs", "--lines", "100", "--seed", "42")
	require.NoError(t, err)
	second, _, err := run(t, "", "generate-logs", "--lines", "100", "--seed", "42")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, strings.Split(strings.TrimSuffix(first, "\n"), "\n"), 100)
}

func TestGenerateLogs_InvalidFlags(t *testing.T) {
	_, _, err := run(t, "", "generate-logs", "--lines", "-1")
	assert.Error(t, err)

	_, _, err = run(t, "", "generate-logs", "--burst", "1.5")
	assert.Error(t, err)

	_, _, err = run(t, "", "generate-logs", "--start", "yesterday")
	assert.Error(t, err)
}

func TestRulesValidate(t *testing.T) {
	_, rulesPath := writeConfig(t)

	stdout, _, err := run(t, "", "rules", "validate", rulesPath, "--no-color")
	require.NoError(t, err)
	assert.Contains(t, stdout, "1 rules")
	assert.Contains(t, stdout, "brute-force")

	stdout, _, err = run(t, "", "rules", "validate", rulesPath, "--json")
	require.NoError(t, err)
	var res validateResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.True(t, res.Valid)
	assert.Equal(t, 1, res.Count)
}

func TestRulesValidate_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name":"x","rule_type":"BruteForce","threshold":0}]`), 0o600))

	stdout, _, err := run(t, "", "rules", "validate", path, "--json")
	require.Error(t, err)

	var res validateResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Error)
	assert.Empty(t, res.Rules)
}

func TestRulesGenerate_Heuristic(t *testing.T) {
	configPath, _ := writeConfig(t)

	stdout, _, err := run(t, "", "rules", "generate", "--config", configPath, "--heuristic",
		"Detect more than 10 failed logins from the same IP in 5 minutes")
	require.NoError(t, err)

	var rule core.Rule
	require.NoError(t, json.Unmarshal([]byte(stdout), &rule), stdout)
	assert.Equal(t, core.TypeOf(core.RuleKindBruteForce), rule.RuleType)
	assert.Equal(t, 10, rule.Threshold)
	assert.Equal(t, int64(300), rule.TimeWindow)

	stdout, _, err = run(t, "", "rules", "generate", "--config", configPath, "--heuristic", "--format", "yaml",
		"Detect more than 10 failed logins from the same IP in 5 minutes")
	require.NoError(t, err)
	assert.Contains(t, stdout, "threshold: 10")
	assert.Contains(t, stdout, "time_window: 300")
}

func TestRulesGenerate_Errors(t *testing.T) {
	configPath, _ := writeConfig(t)

	_, _, err := run(t, "", "rules", "generate", "--config", configPath, "--format", "xml", "anything")
	assert.Error(t, err)

	_, _, err = run(t, "", "rules", "generate", "--config", configPath, "--heuristic", "   ")
	assert.Error(t, err)
}

func TestWorker_UnknownTransport(t *testing.T) {
	configPath, _ := writeConfig(t)

	_, _, err := run(t, "", "worker", "--config", configPath, "--transport", "carrier-pigeon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown worker transport")
}
