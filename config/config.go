package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"argus/core"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Transport names for distributed mode.
const (
	TransportLocal = "local"
	TransportExec  = "exec"
	TransportRedis = "redis"
)

// Config holds all configuration for argus.
type Config struct {
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"` // console, json
	} `mapstructure:"log"`

	Engine struct {
		Mode           string        `mapstructure:"mode"`
		WorkerCount    int           `mapstructure:"worker_count"`
		RunTimeout     time.Duration `mapstructure:"run_timeout"` // 0 = wait forever
		ChunkSize      int           `mapstructure:"chunk_size"`
		RegexTimeout   time.Duration `mapstructure:"regex_timeout"`
		RegexCacheSize int           `mapstructure:"regex_cache_size"`
	} `mapstructure:"engine"`

	Distributed struct {
		Transport     string   `mapstructure:"transport"` // local, exec, redis
		WorkerCommand string   `mapstructure:"worker_command"`
		WorkerArgs    []string `mapstructure:"worker_args"`
		Redis         struct {
			Addr         string        `mapstructure:"addr"`
			Password     string        `mapstructure:"password"`
			DB           int           `mapstructure:"db"`
			StreamPrefix string        `mapstructure:"stream_prefix"`
			BlockTimeout time.Duration `mapstructure:"block_timeout"`
			MaxLen       int64         `mapstructure:"max_len"`
		} `mapstructure:"redis"`
	} `mapstructure:"distributed"`

	Rules struct {
		File string `mapstructure:"file"`
	} `mapstructure:"rules"`

	RuleGen struct {
		Command           string        `mapstructure:"command"`
		Args              []string      `mapstructure:"args"`
		Timeout           time.Duration `mapstructure:"timeout"`
		FallbackHeuristic bool          `mapstructure:"fallback_heuristic"`
	} `mapstructure:"rulegen"`

	API struct {
		Host         string `mapstructure:"host"`
		Port         int    `mapstructure:"port"`
		BatchDir     string `mapstructure:"batch_dir"`
		MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
		RateLimit    struct {
			RequestsPerSecond float64 `mapstructure:"requests_per_second"`
			Burst             int     `mapstructure:"burst"`
		} `mapstructure:"rate_limit"`
	} `mapstructure:"api"`

	Secrets struct {
		Provider string `mapstructure:"provider"` // "", env, vault, aws
		Vault    struct {
			Address string `mapstructure:"address"`
			Token   string `mapstructure:"token"`
			Path    string `mapstructure:"path"`
		} `mapstructure:"vault"`
		AWS struct {
			Region    string `mapstructure:"region"`
			AccessKey string `mapstructure:"access_key"`
			SecretKey string `mapstructure:"secret_key"`
			SecretID  string `mapstructure:"secret_id"`
		} `mapstructure:"aws"`
	} `mapstructure:"secrets"`
}

// DefaultRedisRunTimeout bounds a run over the redis transport when
// engine.run_timeout is left at zero.
const DefaultRedisRunTimeout = 5 * time.Minute

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("engine.mode", string(core.ModeSequential))
	v.SetDefault("engine.worker_count", 0) // 0 = one per CPU
	v.SetDefault("engine.run_timeout", "0s")
	v.SetDefault("engine.chunk_size", 5000)
	v.SetDefault("engine.regex_timeout", "100ms")
	v.SetDefault("engine.regex_cache_size", 256)

	v.SetDefault("distributed.transport", TransportLocal)
	v.SetDefault("distributed.worker_command", "") // empty = this executable
	v.SetDefault("distributed.worker_args", []string{})
	v.SetDefault("distributed.redis.addr", "localhost:6379")
	v.SetDefault("distributed.redis.db", 0)
	v.SetDefault("distributed.redis.stream_prefix", "argus")
	v.SetDefault("distributed.redis.block_timeout", "1s")
	v.SetDefault("distributed.redis.max_len", 10000)

	v.SetDefault("rules.file", "rules.json")

	v.SetDefault("rulegen.command", "")
	v.SetDefault("rulegen.args", []string{})
	v.SetDefault("rulegen.timeout", "30s")
	v.SetDefault("rulegen.fallback_heuristic", true)

	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.batch_dir", "./batches")
	v.SetDefault("api.max_body_bytes", 32<<20)
	v.SetDefault("api.rate_limit.requests_per_second", 20)
	v.SetDefault("api.rate_limit.burst", 40)

	v.SetDefault("secrets.provider", "")
	v.SetDefault("secrets.vault.path", "secret/argus")
	v.SetDefault("secrets.aws.secret_id", "argus/secrets")
}

// loadFromEnv sets up environment variable loading
func loadFromEnv(v *viper.Viper) {
	v.SetEnvPrefix("ARGUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Short names for the settings most often overridden.
	_ = v.BindEnv("engine.mode", "ARGUS_MODE")
	_ = v.BindEnv("engine.worker_count", "ARGUS_WORKERS")
	_ = v.BindEnv("distributed.redis.password", "ARGUS_REDIS_PASSWORD")
}

// LoadConfig reads configuration from an optional .env file, an optional
// YAML file and ARGUS_* environment variables, in increasing priority.
// An empty path searches for config.yaml in . and ./config.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)
	loadFromEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Remote workers can vanish without an exit or EOF, so a redis run
	// always has a deadline.
	if cfg.Distributed.Transport == TransportRedis && cfg.Engine.RunTimeout == 0 {
		cfg.Engine.RunTimeout = DefaultRedisRunTimeout
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// ExecutionMode returns the configured default mode.
func (c *Config) ExecutionMode() core.ExecutionMode {
	mode, err := core.ParseExecutionMode(c.Engine.Mode)
	if err != nil {
		return core.ModeSequential
	}
	return mode
}

// APIAddr is the listen address of the HTTP API.
func (c *Config) APIAddr() string {
	return net.JoinHostPort(c.API.Host, fmt.Sprintf("%d", c.API.Port))
}

func validateConfig(c *Config) error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format %q (want console or json)", c.Log.Format)
	}

	if _, err := core.ParseExecutionMode(c.Engine.Mode); err != nil {
		return err
	}
	if c.Engine.WorkerCount < 0 {
		return fmt.Errorf("engine.worker_count must not be negative")
	}
	if c.Engine.RunTimeout < 0 {
		return fmt.Errorf("engine.run_timeout must not be negative")
	}
	if c.Engine.ChunkSize < 1 {
		return fmt.Errorf("engine.chunk_size must be at least 1")
	}
	if c.Engine.RegexTimeout <= 0 {
		return fmt.Errorf("engine.regex_timeout must be positive")
	}
	if c.Engine.RegexCacheSize < 1 {
		return fmt.Errorf("engine.regex_cache_size must be at least 1")
	}

	switch c.Distributed.Transport {
	case TransportLocal, TransportExec:
	case TransportRedis:
		if _, _, err := net.SplitHostPort(c.Distributed.Redis.Addr); err != nil {
			return fmt.Errorf("invalid distributed.redis.addr %q: %w", c.Distributed.Redis.Addr, err)
		}
		if c.Distributed.Redis.StreamPrefix == "" {
			return fmt.Errorf("distributed.redis.stream_prefix cannot be empty")
		}
		if c.Engine.RunTimeout == 0 {
			return fmt.Errorf("engine.run_timeout must be positive with the redis transport")
		}
	default:
		return fmt.Errorf("invalid distributed.transport %q (want local, exec or redis)", c.Distributed.Transport)
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("invalid api.port %d", c.API.Port)
	}
	if c.API.MaxBodyBytes < 1 {
		return fmt.Errorf("api.max_body_bytes must be positive")
	}
	if c.API.RateLimit.RequestsPerSecond < 0 || c.API.RateLimit.Burst < 0 {
		return fmt.Errorf("api.rate_limit values must not be negative")
	}

	switch c.Secrets.Provider {
	case "", "env", "vault", "aws":
	default:
		return fmt.Errorf("unsupported secrets.provider %q", c.Secrets.Provider)
	}
	return nil
}
