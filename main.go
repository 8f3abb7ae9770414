// Command scout runs the research orchestration engine: an HTTP API that
// fans research tasks out to LLM provider agents, mediates their tool calls
// through the gateway, validates discovered companies, and optionally runs
// the deep-research enrichment pass.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridianvc/scout/internal/agent"
	"github.com/meridianvc/scout/internal/cache"
	"github.com/meridianvc/scout/internal/config"
	"github.com/meridianvc/scout/internal/enrich"
	"github.com/meridianvc/scout/internal/gateway"
	"github.com/meridianvc/scout/internal/gateway/tools"
	"github.com/meridianvc/scout/internal/httpapi"
	"github.com/meridianvc/scout/internal/models"
	"github.com/meridianvc/scout/internal/orchestrator"
	anthropicprovider "github.com/meridianvc/scout/internal/providers/anthropic"
	openaiprovider "github.com/meridianvc/scout/internal/providers/openai"
	"github.com/meridianvc/scout/internal/retry"
	"github.com/meridianvc/scout/internal/streaming"
	"github.com/meridianvc/scout/internal/validation"
)

func main() {
	configPath := flag.String("config", "config/scout.yaml", "path to configuration file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(*configPath, logger); err != nil {
		logger.Fatal("scout exited", zap.Error(err))
	}
}

func run(configPath string, logger *zap.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validator := validation.New(cfg.Validation)
	if cfg.ValidationRulesFile != "" {
		watcher, werr := config.NewWatcher(cfg.ValidationRulesFile, validator, logger)
		if werr != nil {
			return werr
		}
		go watcher.Run(ctx)
	}

	store, err := buildCache(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	gw, err := buildGateway(cfg, store, logger)
	if err != nil {
		return err
	}

	adapters, err := buildAdapters(cfg, logger)
	if err != nil {
		return err
	}

	policy := retryPolicy(cfg.Gateway.Retry)
	runners := make([]orchestrator.AgentRunner, 0, len(adapters))
	for _, a := range adapters {
		runners = append(runners, agent.NewRunner(a, gw, policy, logger))
	}

	synth, err := buildSynthesizer(cfg, adapters)
	if err != nil {
		return err
	}
	pipeline := enrich.NewPipeline(gw, synth, logger)

	events := streaming.NewManager(logger)
	orch := orchestrator.New(runners, validator, pipeline, events, cfg.Orchestrator, logger)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: httpapi.NewServer(orch, taskBuilder(cfg), events, logger).Handler(),
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if serr := server.ListenAndServe(); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serr := <-errCh:
		return serr
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildCache(cfg *config.Config, logger *zap.Logger) (cache.Cache, error) {
	l1, err := cache.NewMemory(cfg.Cache.MaxCostBytes)
	if err != nil {
		return nil, err
	}
	var l2 cache.Cache
	if cfg.Redis.Enabled {
		redisCache, rerr := cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, logger)
		if rerr != nil {
			return nil, rerr
		}
		l2 = redisCache
	}
	return cache.NewTiered(l1, l2, logger), nil
}

func buildGateway(cfg *config.Config, store cache.Cache, logger *zap.Logger) (*gateway.Gateway, error) {
	opts := tools.Options{BaseURL: cfg.Gateway.ToolsBaseURL}
	var (
		specs []gateway.ToolSpec
		err   error
	)
	if cfg.Gateway.CatalogPath != "" {
		data, rerr := os.ReadFile(cfg.Gateway.CatalogPath)
		if rerr != nil {
			return nil, rerr
		}
		specs, err = tools.LoadCatalog(data, opts)
		if err == nil {
			specs = append(specs, tools.FetchSpec(nil))
		}
	} else {
		specs, err = tools.Default(opts)
	}
	if err != nil {
		return nil, err
	}

	registry := gateway.NewRegistry()
	if err := tools.RegisterAll(registry, specs); err != nil {
		return nil, err
	}

	return gateway.New(registry, store, gateway.Config{
		RateClasses:      cfg.Gateway.RateClasses,
		DefaultRateClass: cfg.Gateway.DefaultRateClass,
		AllowedDomains:   cfg.Gateway.AllowedDomains,
		Retry:            retryPolicy(cfg.Gateway.Retry),
		DefaultCacheTTL:  cfg.Gateway.DefaultCacheTTL,
	}, logger), nil
}

func buildAdapters(cfg *config.Config, logger *zap.Logger) (map[string]agent.Adapter, error) {
	adapters := make(map[string]agent.Adapter)
	for _, p := range cfg.EnabledProviders() {
		switch p.Name {
		case "openai":
			key := os.Getenv("OPENAI_API_KEY")
			if key == "" {
				return nil, errors.New("provider openai enabled but OPENAI_API_KEY is not set")
			}
			adapters[p.Name] = openaiprovider.New(key, logger)
		case "anthropic":
			key := os.Getenv("ANTHROPIC_API_KEY")
			if key == "" {
				return nil, errors.New("provider anthropic enabled but ANTHROPIC_API_KEY is not set")
			}
			adapters[p.Name] = anthropicprovider.New(key, logger)
		default:
			return nil, errors.New("unknown provider " + p.Name)
		}
	}
	return adapters, nil
}

// buildSynthesizer backs SWOT synthesis with the first enabled provider.
func buildSynthesizer(cfg *config.Config, adapters map[string]agent.Adapter) (enrich.Synthesizer, error) {
	for _, p := range cfg.EnabledProviders() {
		if a, ok := adapters[p.Name]; ok {
			return enrich.NewLLMSynthesizer(a, p.Model), nil
		}
	}
	return nil, errors.New("no adapter available for SWOT synthesis")
}

func retryPolicy(rc config.RetryConfig) retry.Policy {
	policy := retry.DefaultPolicy()
	if rc.MaxAttempts > 0 {
		policy.MaxAttempts = rc.MaxAttempts
	}
	if rc.InitialInterval > 0 {
		policy.InitialInterval = rc.InitialInterval
	}
	if rc.MaxInterval > 0 {
		policy.MaxInterval = rc.MaxInterval
	}
	if rc.Multiplier > 0 {
		policy.Multiplier = rc.Multiplier
	}
	return policy
}

// taskBuilder expands the configured provider × segment grid, optionally
// filtered to the requested segments.
func taskBuilder(cfg *config.Config) httpapi.TaskBuilder {
	return func(segments []string) []models.AgentTask {
		wanted := make(map[string]bool, len(segments))
		for _, s := range segments {
			wanted[s] = true
		}
		var tasks []models.AgentTask
		for _, seg := range cfg.Segments {
			if len(wanted) > 0 && !wanted[seg.Name] {
				continue
			}
			for _, p := range cfg.EnabledProviders() {
				tasks = append(tasks, models.AgentTask{
					ID:         uuid.NewString(),
					Provider:   p.Name,
					Model:      p.Model,
					Segment:    seg.Name,
					TurnBudget: p.TurnBudget,
					ToolBudget: p.ToolBudget,
					SeedHints:  seg.SeedHints,
				})
			}
		}
		return tasks
	}
}
