package detect

import (
	"argus/core"

	"go.uber.org/zap"
)

// Engine evaluates rules over an ordered slice of records. It keeps no state
// between calls, so one Engine may serve any number of goroutines.
type Engine struct {
	patterns *PatternCache
	logger   *zap.SugaredLogger
}

// NewEngine creates an engine. A nil cache gets a private default one.
func NewEngine(patterns *PatternCache, logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if patterns == nil {
		patterns, _ = NewPatternCache(DefaultPatternCacheSize, DefaultPatternTimeout)
	}
	return &Engine{patterns: patterns, logger: logger}
}

type ruleState struct {
	rule    *core.Rule
	match   *matcher
	windows map[string]*groupWindow
}

// Evaluate runs every rule over records and returns the alerts in record
// order (rule order within one record) plus the number of records seen.
//
// Records out of timestamp order are evaluated on a stably sorted copy.
// A rule whose pattern does not compile is skipped.
func (e *Engine) Evaluate(records []core.LogEntry, rules []core.Rule) ([]core.Alert, int) {
	processed := len(records)
	if processed == 0 || len(rules) == 0 {
		return []core.Alert{}, processed
	}

	states := make([]*ruleState, 0, len(rules))
	for i := range rules {
		m, err := newMatcher(&rules[i], e.patterns, e.logger)
		if err != nil {
			e.logger.Errorw("Skipping rule with invalid pattern", "rule", rules[i].Name, "error", err)
			continue
		}
		states = append(states, &ruleState{
			rule:    &rules[i],
			match:   m,
			windows: make(map[string]*groupWindow),
		})
	}

	ordered := core.SortByTime(records)
	alerts := []core.Alert{}

	for i := range ordered {
		rec := &ordered[i]
		for _, st := range states {
			if !st.match.matches(rec) {
				continue
			}
			key := st.rule.GroupKey(rec)
			w, ok := st.windows[key]
			if !ok {
				w = newGroupWindow()
				st.windows[key] = w
			}
			if w.observe(rec.Timestamp, st.rule.TimeWindow, st.rule.Threshold) {
				alerts = append(alerts, core.NewAlert(st.rule, key, w.crossings, *rec, w.start(), w.count()))
			}
		}
	}

	return alerts, processed
}
