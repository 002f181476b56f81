package bootstrap

import (
	"fmt"
	"io"
	"os"
	"strings"

	"argus/config"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger builds the process logger. The console format uses colored
// levels when stdout is a terminal; json suits log shippers. A nil w
// writes to stderr.
func InitLogger(level, format string, w io.Writer) (*zap.Logger, *zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if w == nil {
		w = os.Stderr
	}

	var encoder zapcore.Encoder
	switch format {
	case "", "console":
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		if !color.NoColor {
			encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	case "json":
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		return nil, nil, fmt.Errorf("invalid log format %q", format)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), lvl)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, logger.Sugar(), nil
}

// InitConfig loads the configuration and resolves secrets it references.
func InitConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.LoadSecrets(cfg); err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}
	return cfg, nil
}

func logConfig(cfg *config.Config, sugar *zap.SugaredLogger) {
	sugar.Infow("Config loaded",
		"mode", cfg.ExecutionMode(),
		"worker_count", cfg.Engine.WorkerCount,
		"run_timeout", cfg.Engine.RunTimeout,
		"transport", cfg.Distributed.Transport,
		"rules_file", cfg.Rules.File)
	if cfg.Distributed.Transport == config.TransportRedis {
		sugar.Infow("Redis transport configured",
			"addr", cfg.Distributed.Redis.Addr,
			"stream_prefix", cfg.Distributed.Redis.StreamPrefix,
			"password_set", cfg.Distributed.Redis.Password != "")
	}
}
