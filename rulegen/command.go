package rulegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"argus/core"

	"go.uber.org/zap"
)

const DefaultCommandTimeout = 30 * time.Second

// CommandGenerator runs an external program with the description as its
// final argument and decodes a JSON rule from its stdout.
type CommandGenerator struct {
	Command string
	Args    []string
	Env     []string
	Timeout time.Duration
	Logger  *zap.SugaredLogger
}

func (g *CommandGenerator) Name() string { return "command" }

func (g *CommandGenerator) Generate(ctx context.Context, description string) (core.Rule, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return core.Rule{}, ErrEmptyDescription
	}
	if g.Command == "" {
		return core.Rule{}, fmt.Errorf("%w: no command configured", ErrGeneratorUnavailable)
	}

	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, g.Args...), description)
	cmd := exec.CommandContext(ctx, g.Command, args...)
	cmd.Env = append(os.Environ(), g.Env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if g.Logger != nil {
		g.Logger.Debugw("Rule generator finished",
			"command", g.Command,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if ctx.Err() != nil {
				return core.Rule{}, fmt.Errorf("%w: timed out after %s", ErrGeneratorFailed, timeout)
			}
			return core.Rule{}, fmt.Errorf("%w: %s", ErrGeneratorFailed, strings.TrimSpace(stderr.String()))
		}
		return core.Rule{}, fmt.Errorf("%w: %w", ErrGeneratorUnavailable, err)
	}

	var rule core.Rule
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &rule); err != nil {
		return core.Rule{}, fmt.Errorf("%w: %w", ErrBadGeneratorOutput, err)
	}
	if rule.Description == "" {
		rule.Description = description
	}
	if err := rule.Validate(); err != nil {
		return core.Rule{}, err
	}
	return rule, nil
}
