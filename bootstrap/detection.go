package bootstrap

import (
	"errors"
	"fmt"
	"time"

	"argus/analysis"
	"argus/config"
	"argus/detect"
	"argus/protocol"
	"argus/rulegen"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrRedisRequired is returned when the redis transport has no client.
var ErrRedisRequired = errors.New("redis transport requires a connected client")

// Consecutive generator command failures before it is skipped, and for
// how long.
const (
	ruleGenMaxFailures = 3
	ruleGenCooldown    = 30 * time.Second
)

// InitEngine creates the detection engine with the configured pattern
// cache.
func InitEngine(cfg *config.Config, sugar *zap.SugaredLogger) (*detect.Engine, error) {
	patterns, err := detect.NewPatternCache(cfg.Engine.RegexCacheSize, cfg.Engine.RegexTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create pattern cache: %w", err)
	}
	return detect.NewEngine(patterns, sugar), nil
}

// NewDialer returns the worker transport named by distributed.transport.
// client is only used, and then required, for the redis transport.
func NewDialer(cfg *config.Config, engine *detect.Engine, client *redis.Client, sugar *zap.SugaredLogger) (protocol.Dialer, error) {
	switch cfg.Distributed.Transport {
	case config.TransportLocal, "":
		return &protocol.LocalDialer{Engine: engine, Logger: sugar}, nil
	case config.TransportExec:
		return &protocol.ExecDialer{
			Command: cfg.Distributed.WorkerCommand,
			Args:    cfg.Distributed.WorkerArgs,
			Logger:  sugar,
		}, nil
	case config.TransportRedis:
		if client == nil {
			return nil, ErrRedisRequired
		}
		return &protocol.RedisDialer{Client: client, Options: RedisOptions(cfg), Logger: sugar}, nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Distributed.Transport)
}

// NewCoordinator builds the coordinator from the engine section.
func NewCoordinator(cfg *config.Config, engine *detect.Engine, dialer protocol.Dialer, sugar *zap.SugaredLogger) *analysis.Coordinator {
	return analysis.NewCoordinator(engine, analysis.Options{
		Workers:    cfg.Engine.WorkerCount,
		RunTimeout: cfg.Engine.RunTimeout,
		ChunkSize:  cfg.Engine.ChunkSize,
		Dialer:     dialer,
	}, sugar)
}

// NewRuleGenerator returns the configured rule generator, or nil when
// neither a command nor the heuristic fallback is enabled.
func NewRuleGenerator(cfg *config.Config, sugar *zap.SugaredLogger) rulegen.Generator {
	if cfg.RuleGen.Command == "" {
		if cfg.RuleGen.FallbackHeuristic {
			return rulegen.HeuristicGenerator{}
		}
		return nil
	}

	command := &rulegen.CommandGenerator{
		Command: cfg.RuleGen.Command,
		Args:    cfg.RuleGen.Args,
		Timeout: cfg.RuleGen.Timeout,
		Logger:  sugar,
	}
	if !cfg.RuleGen.FallbackHeuristic {
		return command
	}
	return &rulegen.Fallback{
		Primary:   command,
		Secondary: rulegen.HeuristicGenerator{},
		Breaker:   rulegen.NewBreaker(ruleGenMaxFailures, ruleGenCooldown),
		Logger:    sugar,
	}
}
