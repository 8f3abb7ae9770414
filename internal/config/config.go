// Package config loads and validates the engine configuration: providers,
// segments, gateway policy, and validation rules. The core packages receive
// typed structs only; file/env plumbing stays here.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/meridianvc/scout/internal/gateway"
	"github.com/meridianvc/scout/internal/orchestrator"
	"github.com/meridianvc/scout/internal/validation"
)

// ProviderConfig enables one vendor with its budgets.
type ProviderConfig struct {
	Name       string `mapstructure:"name" yaml:"name"`
	Model      string `mapstructure:"model" yaml:"model"`
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	TurnBudget int    `mapstructure:"turn_budget" yaml:"turn_budget"`
	ToolBudget int    `mapstructure:"tool_budget" yaml:"tool_budget"`
}

// SegmentConfig describes one research topic.
type SegmentConfig struct {
	Name      string   `mapstructure:"name" yaml:"name"`
	SeedHints []string `mapstructure:"seed_hints" yaml:"seed_hints"`
}

// RetryConfig shapes the backoff policy used for tool calls and whole runs.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval" yaml:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier" yaml:"multiplier"`
}

// GatewayConfig bounds the tool gateway.
type GatewayConfig struct {
	ToolsBaseURL     string                             `mapstructure:"tools_base_url" yaml:"tools_base_url"`
	CatalogPath      string                             `mapstructure:"catalog_path" yaml:"catalog_path"`
	AllowedDomains   []string                           `mapstructure:"allowed_domains" yaml:"allowed_domains"`
	RateClasses      map[string]gateway.RateClassConfig `mapstructure:"rate_classes" yaml:"rate_classes"`
	DefaultRateClass gateway.RateClassConfig            `mapstructure:"default_rate_class" yaml:"default_rate_class"`
	DefaultCacheTTL  time.Duration                      `mapstructure:"default_cache_ttl" yaml:"default_cache_ttl"`
	Retry            RetryConfig                        `mapstructure:"retry" yaml:"retry"`
}

// RedisConfig enables the shared L2 cache.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
}

// Config is the full engine configuration.
type Config struct {
	Server struct {
		Addr string `mapstructure:"addr" yaml:"addr"`
	} `mapstructure:"server" yaml:"server"`

	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`
	Cache struct {
		MaxCostBytes int64 `mapstructure:"max_cost_bytes" yaml:"max_cost_bytes"`
	} `mapstructure:"cache" yaml:"cache"`

	Gateway      GatewayConfig       `mapstructure:"gateway" yaml:"gateway"`
	Providers    []ProviderConfig    `mapstructure:"providers" yaml:"providers"`
	Segments     []SegmentConfig     `mapstructure:"segments" yaml:"segments"`
	Orchestrator orchestrator.Config `mapstructure:"orchestrator" yaml:"orchestrator"`
	Validation   validation.Config   `mapstructure:"validation" yaml:"validation"`

	// ValidationRulesFile, when set, is watched for hot-reload of the
	// validation block.
	ValidationRulesFile string `mapstructure:"validation_rules_file" yaml:"validation_rules_file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8090")
	v.SetDefault("cache.max_cost_bytes", int64(64<<20))
	v.SetDefault("gateway.default_rate_class.rpm", 60)
	v.SetDefault("gateway.default_rate_class.burst", 5)
	v.SetDefault("gateway.default_rate_class.max_wait", "10s")
	v.SetDefault("gateway.default_cache_ttl", "15m")
	v.SetDefault("gateway.retry.max_attempts", 3)
	v.SetDefault("gateway.retry.initial_interval", "250ms")
	v.SetDefault("gateway.retry.max_interval", "5s")
	v.SetDefault("gateway.retry.multiplier", 2.0)
	v.SetDefault("orchestrator.max_concurrency", 4)
	v.SetDefault("orchestrator.deep_research.top_n", 10)
	v.SetDefault("orchestrator.deep_research.batch_size", 5)
	v.SetDefault("validation.min_keyword_count", 1)
	v.SetDefault("validation.min_verification_rate", 0.25)
	v.SetDefault("validation.accept_threshold", 0.45)
}

// Load reads configuration from the given file (optional) with SCOUT_*
// environment overrides, validates it, and returns the typed config.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("SCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	enabled := 0
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("providers[%d]: name is required", i)
		}
		if !p.Enabled {
			continue
		}
		enabled++
		if p.Model == "" {
			return fmt.Errorf("provider %q: model is required", p.Name)
		}
		if p.TurnBudget <= 0 {
			return fmt.Errorf("provider %q: turn_budget must be positive", p.Name)
		}
		if p.ToolBudget < 0 {
			return fmt.Errorf("provider %q: tool_budget must not be negative", p.Name)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one provider must be enabled")
	}
	if len(c.Segments) == 0 {
		return fmt.Errorf("at least one segment is required")
	}
	for i, s := range c.Segments {
		if s.Name == "" {
			return fmt.Errorf("segments[%d]: name is required", i)
		}
	}
	if c.Validation.AcceptThreshold < 0 || c.Validation.AcceptThreshold > 1 {
		return fmt.Errorf("validation.accept_threshold must be in [0,1]")
	}
	return nil
}

// EnabledProviders filters to the providers the orchestrator should run.
func (c *Config) EnabledProviders() []ProviderConfig {
	out := make([]ProviderConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}
