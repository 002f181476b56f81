// Package api exposes analysis runs and rule generation over HTTP.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"argus/analysis"
	"argus/config"
	"argus/core"
	"argus/rulegen"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	readHeaderTimeout = 10 * time.Second
	limiterIdleTTL    = time.Hour
)

// rateLimiterEntry holds a rate limiter with last seen time
type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// API holds the API server
type API struct {
	router    *mux.Router
	server    *http.Server
	analyzer  *analysis.Analyzer
	generator rulegen.Generator
	rules     []core.Rule
	config    *config.Config
	logger    *zap.SugaredLogger

	rateLimiters   map[string]*rateLimiterEntry
	rateLimitersMu sync.Mutex
	stopCh         chan struct{}
	stopOnce       sync.Once
}

// NewAPI creates a new API server. generator may be nil, in which case
// rule generation answers 503.
func NewAPI(cfg *config.Config, analyzer *analysis.Analyzer, generator rulegen.Generator, rules []core.Rule, logger *zap.SugaredLogger) *API {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	a := &API{
		router:       mux.NewRouter(),
		analyzer:     analyzer,
		generator:    generator,
		rules:        rules,
		config:       cfg,
		logger:       logger,
		rateLimiters: make(map[string]*rateLimiterEntry),
		stopCh:       make(chan struct{}),
	}
	a.setupRoutes()
	a.server = &http.Server{
		Addr:              cfg.APIAddr(),
		Handler:           a.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go a.cleanupRateLimiters()
	return a
}

// setupRoutes sets up the API routes
func (a *API) setupRoutes() {
	a.router.Use(a.requestIDMiddleware)
	a.router.Use(a.rateLimitMiddleware)

	a.router.HandleFunc("/api/v1/analyze", a.analyze).Methods("POST")
	a.router.HandleFunc("/api/v1/rules", a.getRules).Methods("GET")
	a.router.HandleFunc("/api/ai/generate-rule", a.generateRule).Methods("POST")
	a.router.HandleFunc("/health", a.healthCheck).Methods("GET")
	a.router.Handle("/metrics", promhttp.Handler())
}

// Handler returns the routed handler, for tests and embedding.
func (a *API) Handler() http.Handler {
	return a.router
}

// Addr is the configured listen address.
func (a *API) Addr() string {
	return a.server.Addr
}

// Start serves until Stop is called. It returns http.ErrServerClosed after
// a clean shutdown.
func (a *API) Start() error {
	a.logger.Infow("API server listening", "addr", a.server.Addr)
	return a.server.ListenAndServe()
}

// Stop stops the API server
func (a *API) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() { close(a.stopCh) })
	return a.server.Shutdown(ctx)
}
