package gateway

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/meridianvc/scout/internal/metrics"
)

// RateClassConfig bounds one rate class: requests per minute, burst size,
// and how long a caller may block waiting for capacity before the call fails
// with ErrRateLimitExceeded.
type RateClassConfig struct {
	RPM     int           `mapstructure:"rpm" yaml:"rpm"`
	Burst   int           `mapstructure:"burst" yaml:"burst"`
	MaxWait time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
}

type limiterSet struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	waits    map[string]time.Duration
	fallback RateClassConfig
}

func newLimiterSet(classes map[string]RateClassConfig, fallback RateClassConfig) *limiterSet {
	ls := &limiterSet{
		limiters: make(map[string]*rate.Limiter),
		waits:    make(map[string]time.Duration),
		fallback: fallback,
	}
	for class, cfg := range classes {
		ls.add(class, cfg)
	}
	return ls
}

func (ls *limiterSet) add(class string, cfg RateClassConfig) {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	ls.limiters[class] = rate.NewLimiter(rate.Limit(float64(cfg.RPM)/60.0), burst)
	ls.waits[class] = cfg.MaxWait
}

func (ls *limiterSet) get(class string) (*rate.Limiter, time.Duration) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	lim, ok := ls.limiters[class]
	if !ok {
		ls.add(class, ls.fallback)
		lim = ls.limiters[class]
	}
	return lim, ls.waits[class]
}

// wait blocks until the class has capacity, up to the class wait ceiling.
// Returns ErrRateLimitExceeded when the ceiling is hit, or the context error
// when the caller cancelled first.
func (ls *limiterSet) wait(ctx context.Context, class string) error {
	lim, maxWait := ls.get(class)
	if lim.Allow() {
		return nil
	}

	metrics.RateLimitWaits.WithLabelValues(class).Inc()
	waitCtx := ctx
	if maxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, maxWait)
		defer cancel()
	}
	if err := lim.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrRateLimitExceeded
	}
	return nil
}
