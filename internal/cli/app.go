package cli

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/trialmatch/internal/cache"
	"github.com/ppiankov/trialmatch/internal/extract"
	"github.com/ppiankov/trialmatch/internal/llm"
	"github.com/ppiankov/trialmatch/internal/logging"
	"github.com/ppiankov/trialmatch/internal/match"
	"github.com/ppiankov/trialmatch/internal/metrics"
	"github.com/ppiankov/trialmatch/internal/model"
	"github.com/ppiankov/trialmatch/internal/pipeline"
	"github.com/ppiankov/trialmatch/internal/store"
	"github.com/ppiankov/trialmatch/internal/worker"
)

// app holds the components every command shares
type app struct {
	cfg      *model.Config
	logger   *zap.Logger
	store    *store.Store
	metrics  *metrics.Metrics
	pipeline *pipeline.Pipeline
}

// newApp opens the store and builds the pipeline around the configured backend
func newApp(cfg *model.Config) (*app, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	backend, err := newBackend(cfg, cfg.Parser.Backend)
	if err != nil {
		return nil, err
	}

	c, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, err
	}

	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	p := pipeline.New(pipeline.Options{
		Backend:  backend,
		Engine:   match.NewEngine(match.PolicyFromConfig(cfg.Match)),
		Rules:    s,
		Profiles: s,
		Matches:  s,
		Cache:    cache.NewRuleSets(c, 0),
		Metrics:  m,
		Logger:   logger,
		Workers:  cfg.Concurrency.Workers,
	})

	logger.Debug("initialized",
		zap.String("parser", backend.Identity()),
		zap.String("store", cfg.Store.Path),
		zap.Bool("cache", cfg.Cache.Enabled))

	return &app{cfg: cfg, logger: logger, store: s, metrics: m, pipeline: p}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// newBackend builds a parser backend by name: "pattern", "llm" for the
// configured provider, or a provider name directly
func newBackend(cfg *model.Config, name string) (extract.Backend, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "", "pattern", extract.PatternIdentity:
		return extract.NewPatternBackend(), nil
	case "llm":
	default:
		cfg.LLM.Provider = strings.TrimPrefix(name, "llm/")
		applyProviderEnv(cfg)
	}

	llmCfg := llm.ConfigFromModel(cfg.LLM)
	provider, err := llm.NewProvider(llmCfg)
	if err != nil {
		return nil, fmt.Errorf("parser backend %q: %w", name, err)
	}
	limiter := worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)
	return llm.NewParser(provider, llmCfg, limiter), nil
}
