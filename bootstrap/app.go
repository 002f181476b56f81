package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"argus/analysis"
	"argus/api"
	"argus/config"
	"argus/core"
	"argus/detect"
	"argus/rulegen"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	apiShutdownTimeout     = 5 * time.Second
	serviceShutdownTimeout = 10 * time.Second
)

// Options controls how NewApp initializes.
type Options struct {
	// ConfigPath is an explicit config file; empty searches the defaults.
	ConfigPath string
	// LogWriter receives log output; nil means stderr.
	LogWriter io.Writer
	// LogLevel overrides log.level when set.
	LogLevel string
}

// App represents the argus application with all its components.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	Engine      *detect.Engine
	Coordinator *analysis.Coordinator
	Analyzer    *analysis.Analyzer
	Generator   rulegen.Generator
	Rules       []core.Rule

	Redis     *redis.Client
	APIServer *api.API

	serviceWg sync.WaitGroup
	closeOnce sync.Once
}

// NewApp loads configuration, sets up logging and builds the detection
// engine. Transports are connected by InitAnalysis.
func NewApp(opts Options) (*App, error) {
	cfg, err := InitConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	logger, sugar, err := InitLogger(cfg.Log.Level, cfg.Log.Format, opts.LogWriter)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logConfig(cfg, sugar)

	engine, err := InitEngine(cfg, sugar)
	if err != nil {
		return nil, err
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Sugar:     sugar,
		Engine:    engine,
		Generator: NewRuleGenerator(cfg, sugar),
	}, nil
}

// ConnectRedis returns the shared Redis client, connecting on first use.
func (a *App) ConnectRedis(ctx context.Context) (*redis.Client, error) {
	if a.Redis != nil {
		return a.Redis, nil
	}
	client, err := InitRedis(ctx, a.Config, a.Sugar)
	if err != nil {
		return nil, err
	}
	a.Redis = client
	return client, nil
}

// InitAnalysis builds the worker transport, the coordinator and the
// analyzer.
func (a *App) InitAnalysis(ctx context.Context) error {
	var client *redis.Client
	if a.Config.Distributed.Transport == config.TransportRedis {
		var err error
		if client, err = a.ConnectRedis(ctx); err != nil {
			return err
		}
	}

	dialer, err := NewDialer(a.Config, a.Engine, client, a.Sugar)
	if err != nil {
		return fmt.Errorf("failed to create worker transport: %w", err)
	}
	a.Coordinator = NewCoordinator(a.Config, a.Engine, dialer, a.Sugar)
	a.Analyzer = analysis.NewAnalyzer(a.Coordinator, a.Sugar)
	a.Sugar.Infow("Analysis initialized",
		"workers", a.Coordinator.Workers(),
		"transport", dialer.Name())
	return nil
}

// LoadRules loads the rule set from path, or from rules.file when path is
// empty.
func (a *App) LoadRules(path string) error {
	if path == "" {
		path = a.Config.Rules.File
	}
	rules, err := detect.LoadRules(path, a.Sugar)
	if err != nil {
		return err
	}
	a.Rules = rules
	return nil
}

// Start starts the HTTP API in the background.
func (a *App) Start(ctx context.Context) error {
	if a.Analyzer == nil {
		if err := a.InitAnalysis(ctx); err != nil {
			return err
		}
	}

	a.APIServer = api.NewAPI(a.Config, a.Analyzer, a.Generator, a.Rules, a.Sugar)

	a.serviceWg.Add(1)
	go func() {
		defer a.serviceWg.Done()
		defer func() {
			if r := recover(); r != nil {
				a.Sugar.Errorw("API server panicked", "panic", r)
			}
		}()
		if err := a.APIServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Sugar.Errorw("API server error", "error", err)
		}
	}()
	return nil
}

// WaitForShutdown blocks until a shutdown signal is received or ctx ends.
func (a *App) WaitForShutdown(ctx context.Context) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)

	select {
	case sig := <-c:
		a.Sugar.Infow("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
	}
}

// Shutdown stops the API server and releases connections. It is safe to
// call more than once.
func (a *App) Shutdown() {
	a.closeOnce.Do(a.shutdown)
}

func (a *App) shutdown() {
	a.Sugar.Info("Shutting down...")

	if a.APIServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), apiShutdownTimeout)
		if err := a.APIServer.Stop(ctx); err != nil {
			a.Sugar.Errorw("Failed to stop API server", "error", err)
		}
		cancel()
	}

	done := make(chan struct{})
	go func() {
		a.serviceWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(serviceShutdownTimeout):
		a.Sugar.Warn("Service goroutine shutdown timed out")
	}

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Sugar.Errorw("Failed to close Redis connection", "error", err)
		}
	}

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}
