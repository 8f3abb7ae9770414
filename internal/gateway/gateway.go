// Package gateway mediates every tool call an agent makes: argument
// validation, domain allow-listing, caching, rate limiting, retry with
// backoff, and circuit breaking, with uniform telemetry for each invocation.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meridianvc/scout/internal/cache"
	"github.com/meridianvc/scout/internal/circuitbreaker"
	"github.com/meridianvc/scout/internal/metrics"
	"github.com/meridianvc/scout/internal/models"
	"github.com/meridianvc/scout/internal/retry"
)

// Config carries the gateway's operational knobs.
type Config struct {
	// RateClasses maps class name to limiter settings. Tools without a
	// configured class fall back to DefaultRateClass.
	RateClasses      map[string]RateClassConfig
	DefaultRateClass RateClassConfig

	// AllowedDomains lists hosts that URL-fetching tools may target.
	// A listed host also admits its subdomains.
	AllowedDomains []string

	Retry retry.Policy

	// Breaker applies per tool. Zero value uses circuitbreaker defaults.
	Breaker circuitbreaker.Config

	// DefaultCacheTTL applies to cacheable tools whose spec leaves
	// CacheTTL unset.
	DefaultCacheTTL time.Duration
}

// ToolResult is the successful outcome of an Invoke call.
type ToolResult struct {
	Tool     string
	Data     json.RawMessage
	CacheHit bool
	Retries  int
	Latency  time.Duration
}

// Gateway is the single chokepoint for tool execution. All agent tool calls
// flow through Invoke.
type Gateway struct {
	registry *Registry
	cache    cache.Cache
	limiters *limiterSet
	config   Config
	logger   *zap.Logger

	mu       sync.Mutex
	breakers map[string]*circuitbreaker.CircuitBreaker

	// onInvocation, when set, receives a record for every invocation
	// attempt, success or failure. Used by agent runners to tally usage.
	onInvocation func(models.ToolInvocation)
}

// New creates a gateway over the given registry. Cache may be nil to disable
// caching entirely.
func New(registry *Registry, c cache.Cache, config Config, logger *zap.Logger) *Gateway {
	if config.DefaultRateClass.RPM == 0 {
		config.DefaultRateClass = RateClassConfig{RPM: 60, Burst: 5, MaxWait: 10 * time.Second}
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = retry.DefaultPolicy()
	}
	if config.DefaultCacheTTL == 0 {
		config.DefaultCacheTTL = 15 * time.Minute
	}
	config.Retry.Retryable = IsTransient
	return &Gateway{
		registry: registry,
		cache:    c,
		limiters: newLimiterSet(config.RateClasses, config.DefaultRateClass),
		config:   config,
		logger:   logger,
		breakers: make(map[string]*circuitbreaker.CircuitBreaker),
	}
}

// OnInvocation registers a callback invoked once per tool call with its
// telemetry record. Must be set before concurrent use.
func (g *Gateway) OnInvocation(fn func(models.ToolInvocation)) {
	g.onInvocation = fn
}

// Specs exposes the registered tool surface for agent adapters.
func (g *Gateway) Specs() []ToolSpec {
	return g.registry.Specs()
}

// Invoke executes one tool call through the full mediation pipeline:
// lookup, argument validation, domain allow-list, cache lookup, rate
// limiting, retried execution behind the tool's circuit breaker, and cache
// population. A cache hit returns immediately without consuming rate limit
// capacity.
func (g *Gateway) Invoke(ctx context.Context, tool string, args map[string]any) (*ToolResult, error) {
	start := time.Now()
	res, err := g.invoke(ctx, tool, args, start)
	latency := time.Since(start)

	outcome := "success"
	errMsg := ""
	if err != nil {
		outcome = classifyOutcome(err)
		errMsg = err.Error()
	}
	metrics.ToolInvocations.WithLabelValues(tool, outcome).Inc()
	metrics.ToolInvocationDuration.WithLabelValues(tool).Observe(latency.Seconds())

	record := models.ToolInvocation{
		Tool:      tool,
		Args:      args,
		Outcome:   outcome,
		Error:     errMsg,
		Latency:   latency,
		Timestamp: start,
	}
	if res != nil {
		record.CacheHit = res.CacheHit
		record.Retries = res.Retries
	}
	if g.onInvocation != nil {
		g.onInvocation(record)
	}

	if err != nil {
		g.logger.Warn("tool invocation failed",
			zap.String("tool", tool),
			zap.String("outcome", outcome),
			zap.Duration("latency", latency),
			zap.Error(err))
		return nil, err
	}

	g.logger.Debug("tool invocation completed",
		zap.String("tool", tool),
		zap.Bool("cache_hit", res.CacheHit),
		zap.Int("retries", res.Retries),
		zap.Duration("latency", latency))
	return res, nil
}

func (g *Gateway) invoke(ctx context.Context, tool string, args map[string]any, start time.Time) (*ToolResult, error) {
	reg, ok := g.registry.lookup(tool)
	if !ok {
		return nil, fmt.Errorf("%w: unknown tool %q", ErrInvalidArgument, tool)
	}
	spec := reg.spec

	if reg.input != nil {
		if err := reg.input.Validate(anyArgs(args)); err != nil {
			return nil, fmt.Errorf("%w: tool %q: %v", ErrInvalidArgument, tool, err)
		}
	}

	if spec.URLArgument != "" {
		raw, _ := args[spec.URLArgument].(string)
		if err := g.checkDomain(raw); err != nil {
			return nil, err
		}
	}

	var key string
	cacheable := spec.Cacheable && g.cache != nil
	if cacheable {
		var err error
		key, err = cache.Key(tool, args)
		if err != nil {
			cacheable = false
		} else if data, hit, cerr := g.cache.Get(ctx, key); cerr == nil && hit {
			metrics.ToolCacheHits.WithLabelValues(tool).Inc()
			return &ToolResult{Tool: tool, Data: data, CacheHit: true}, nil
		}
	}

	if err := g.limiters.wait(ctx, spec.rateClass()); err != nil {
		return nil, err
	}

	breaker := g.breaker(tool)
	var payload any
	retries, err := g.config.Retry.Do(ctx, func() error {
		return breaker.Execute(ctx, func() error {
			out, herr := spec.Handler(ctx, args)
			if herr != nil {
				return herr
			}
			payload = out
			return nil
		})
	})
	if retries > 0 {
		metrics.ToolRetries.WithLabelValues(tool).Add(float64(retries))
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return &ToolResult{Tool: tool, Retries: retries}, err
		}
		return &ToolResult{Tool: tool, Retries: retries}, fmt.Errorf("%w: tool %q: %v", ErrUpstream, tool, err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: tool %q result not serializable: %v", ErrUpstream, tool, err)
	}

	if reg.output != nil {
		var decoded any
		if uerr := json.Unmarshal(data, &decoded); uerr == nil {
			if verr := reg.output.Validate(decoded); verr != nil {
				return nil, fmt.Errorf("%w: tool %q result failed schema: %v", ErrUpstream, tool, verr)
			}
		}
	}

	if cacheable {
		ttl := spec.CacheTTL
		if ttl == 0 {
			ttl = g.config.DefaultCacheTTL
		}
		if cerr := g.cache.Set(ctx, key, data, ttl); cerr != nil {
			g.logger.Warn("cache write failed", zap.String("tool", tool), zap.Error(cerr))
		}
	}

	return &ToolResult{Tool: tool, Data: data, Retries: retries, Latency: time.Since(start)}, nil
}

func (g *Gateway) breaker(tool string) *circuitbreaker.CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[tool]
	if !ok {
		b = circuitbreaker.New(tool, g.config.Breaker, g.logger)
		g.breakers[tool] = b
	}
	return b
}

func (g *Gateway) checkDomain(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("%w: empty URL", ErrInvalidArgument)
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return fmt.Errorf("%w: malformed URL %q", ErrInvalidArgument, rawURL)
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range g.config.AllowedDomains {
		allowed = strings.ToLower(allowed)
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}
	return fmt.Errorf("%w: host %q", ErrDomainNotAllowed, host)
}

// anyArgs round-trips the argument map through JSON so schema validation
// sees the same value shapes (float64 numbers) adapters decode from the wire.
func anyArgs(args map[string]any) any {
	data, err := json.Marshal(args)
	if err != nil {
		return map[string]any(args)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any(args)
	}
	return out
}

func classifyOutcome(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrDomainNotAllowed):
		return "domain_not_allowed"
	case errors.Is(err, ErrRateLimitExceeded):
		return "rate_limited"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "upstream_error"
	}
}
