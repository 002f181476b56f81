package detect

import (
	"argus/core"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"
)

// matcher decides whether a record counts toward one rule.
type matcher struct {
	rule       *core.Rule
	eventTypes map[string]struct{} // nil means every event type
	pattern    *regexp2.Regexp
	logger     *zap.SugaredLogger
}

func newMatcher(rule *core.Rule, patterns *PatternCache, logger *zap.SugaredLogger) (*matcher, error) {
	m := &matcher{rule: rule, logger: logger}
	if types := rule.QualifyingEventTypes(); types != nil {
		m.eventTypes = make(map[string]struct{}, len(types))
		for _, t := range types {
			m.eventTypes[t] = struct{}{}
		}
	}
	if rule.RuleType.Kind == core.RuleKindCustom && rule.Pattern != "" {
		re, err := patterns.Compile(rule.Pattern)
		if err != nil {
			return nil, err
		}
		m.pattern = re
	}
	return m, nil
}

func (m *matcher) matches(e *core.LogEntry) bool {
	if m.eventTypes != nil {
		if _, ok := m.eventTypes[e.EventType]; !ok {
			return false
		}
	}
	if m.rule.RuleType.Kind != core.RuleKindCustom {
		return true
	}
	for k, want := range m.rule.Match {
		if got, ok := e.Detail(k); !ok || got != want {
			return false
		}
	}
	if m.pattern == nil {
		return true
	}

	subject := e.EventType
	if m.rule.PatternField != "" {
		v, ok := e.Detail(m.rule.PatternField)
		if !ok {
			return false
		}
		subject = v
	}
	ok, err := m.pattern.MatchString(subject)
	if err != nil {
		m.logger.Warnw("Pattern match aborted, treating as no match",
			"rule", m.rule.Name,
			"error", err)
		return false
	}
	return ok
}
