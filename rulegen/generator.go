// Package rulegen turns a natural-language description into a detection
// rule, either through an external generator command or an offline
// keyword heuristic.
package rulegen

import (
	"context"
	"errors"
	"strings"

	"argus/core"
	"argus/metrics"

	"go.uber.org/zap"
)

var (
	// ErrGeneratorUnavailable means the generator command could not be run.
	ErrGeneratorUnavailable = errors.New("rule generator unavailable")
	// ErrGeneratorFailed means the generator ran and reported failure.
	ErrGeneratorFailed = errors.New("rule generator failed")
	// ErrBadGeneratorOutput means the generator output is not a rule.
	ErrBadGeneratorOutput = errors.New("rule generator returned unusable output")
	// ErrEmptyDescription is returned for a blank description.
	ErrEmptyDescription = errors.New("rule description is empty")
)

// Generator produces a validated rule from a description.
type Generator interface {
	Generate(ctx context.Context, description string) (core.Rule, error)
	Name() string
}

// Fallback uses Primary and, when it fails, Secondary. An empty
// description is not retried. With a Breaker set, Primary is skipped
// while it keeps failing.
type Fallback struct {
	Primary   Generator
	Secondary Generator
	Breaker   *Breaker
	Logger    *zap.SugaredLogger
}

func (f *Fallback) Name() string {
	return f.Primary.Name() + "+" + f.Secondary.Name()
}

func (f *Fallback) Generate(ctx context.Context, description string) (core.Rule, error) {
	if strings.TrimSpace(description) == "" {
		return core.Rule{}, ErrEmptyDescription
	}
	err := f.allow()
	if err == nil {
		var rule core.Rule
		rule, err = Generate(ctx, f.Primary, description)
		f.record(err)
		if err == nil {
			return rule, nil
		}
	}
	if f.Logger != nil {
		f.Logger.Warnw("Rule generator failed, using fallback",
			"generator", f.Primary.Name(),
			"fallback", f.Secondary.Name(),
			"error", err)
	}
	return Generate(ctx, f.Secondary, description)
}

func (f *Fallback) allow() error {
	if f.Breaker == nil {
		return nil
	}
	return f.Breaker.Allow()
}

func (f *Fallback) record(err error) {
	if f.Breaker == nil {
		return
	}
	before := f.Breaker.State()
	f.Breaker.Record(err)
	if after := f.Breaker.State(); after != before && f.Logger != nil {
		f.Logger.Infow("Rule generator circuit changed state",
			"generator", f.Primary.Name(),
			"from", before,
			"to", after)
	}
}

// Generate calls g and records the outcome.
func Generate(ctx context.Context, g Generator, description string) (core.Rule, error) {
	rule, err := g.Generate(ctx, description)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.RulesGenerated.WithLabelValues(g.Name(), outcome).Inc()
	return rule, err
}
