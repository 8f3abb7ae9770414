// Package tools provides the built-in research tool catalog: endpoint-backed
// lookup tools declared in YAML plus the web_fetch page retriever.
package tools

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/meridianvc/scout/internal/gateway"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type catalogFile struct {
	Tools []catalogEntry `yaml:"tools"`
}

type catalogEntry struct {
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description"`
	Endpoint     string         `yaml:"endpoint"`
	RateClass    string         `yaml:"rate_class"`
	Cacheable    bool           `yaml:"cacheable"`
	CacheTTL     string         `yaml:"cache_ttl"`
	InputSchema  map[string]any `yaml:"input_schema"`
	OutputSchema map[string]any `yaml:"output_schema"`
}

// Options configures catalog loading.
type Options struct {
	// BaseURL prefixes relative endpoints in the catalog.
	BaseURL string
	// Client overrides the HTTP client, mainly for tests.
	Client Doer
}

// LoadCatalog parses a YAML tool catalog into gateway specs backed by HTTP
// endpoint handlers.
func LoadCatalog(data []byte, opts Options) ([]gateway.ToolSpec, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tool catalog: %w", err)
	}
	if len(file.Tools) == 0 {
		return nil, fmt.Errorf("tool catalog declares no tools")
	}

	client := opts.Client
	if client == nil {
		client = defaultHTTPClient()
	}

	specs := make([]gateway.ToolSpec, 0, len(file.Tools))
	for _, entry := range file.Tools {
		if entry.Name == "" {
			return nil, fmt.Errorf("tool catalog entry missing name")
		}
		if entry.Endpoint == "" {
			return nil, fmt.Errorf("tool %q missing endpoint", entry.Name)
		}
		endpoint := entry.Endpoint
		if strings.HasPrefix(endpoint, "/") {
			if opts.BaseURL == "" {
				return nil, fmt.Errorf("tool %q has relative endpoint but no base URL configured", entry.Name)
			}
			endpoint = strings.TrimRight(opts.BaseURL, "/") + endpoint
		}
		var ttl time.Duration
		if entry.CacheTTL != "" {
			parsed, err := time.ParseDuration(entry.CacheTTL)
			if err != nil {
				return nil, fmt.Errorf("tool %q cache_ttl: %w", entry.Name, err)
			}
			ttl = parsed
		}
		ep := endpoint
		specs = append(specs, gateway.ToolSpec{
			Name:         entry.Name,
			Description:  entry.Description,
			InputSchema:  entry.InputSchema,
			OutputSchema: entry.OutputSchema,
			Cacheable:    entry.Cacheable,
			CacheTTL:     ttl,
			RateClass:    entry.RateClass,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return postJSON(ctx, client, ep, args)
			},
		})
	}
	return specs, nil
}

// Default returns the built-in tool set: the embedded catalog plus
// web_fetch.
func Default(opts Options) ([]gateway.ToolSpec, error) {
	specs, err := LoadCatalog(defaultCatalog, opts)
	if err != nil {
		return nil, err
	}
	return append(specs, FetchSpec(opts.Client)), nil
}

// RegisterAll registers every spec, failing on the first conflict.
func RegisterAll(reg *gateway.Registry, specs []gateway.ToolSpec) error {
	for _, spec := range specs {
		if err := reg.Register(spec); err != nil {
			return err
		}
	}
	return nil
}
