package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Handler resolves one tool invocation. Implementations receive
// schema-validated arguments and return a JSON-decodable result. Transient
// failures must be wrapped with ErrTransient so the gateway retries them.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// ToolSpec describes one registered lookup capability. Immutable after
// registration.
type ToolSpec struct {
	Name         string
	Description  string
	InputSchema  map[string]any
	OutputSchema map[string]any

	Cacheable bool
	CacheTTL  time.Duration

	// RateClass groups tools that share a limiter (e.g. "search").
	// Empty means the tool's own name is its class.
	RateClass string

	// URLArgument names the argument carrying a caller-supplied target
	// URL. When set, the host is checked against the domain allow-list
	// before any network call.
	URLArgument string

	Handler Handler
}

func (s ToolSpec) rateClass() string {
	if s.RateClass != "" {
		return s.RateClass
	}
	return s.Name
}

type registeredTool struct {
	spec   ToolSpec
	input  *jsonschema.Schema
	output *jsonschema.Schema
}

// Registry holds the immutable set of tool specs and their compiled schemas.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*registeredTool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*registeredTool)}
}

// Register adds a tool spec. Names are unique; re-registration is an error.
func (r *Registry) Register(spec ToolSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("tool spec requires a name")
	}
	if spec.Handler == nil {
		return fmt.Errorf("tool %q requires a handler", spec.Name)
	}

	input, err := compileSchema(spec.Name+"/input", spec.InputSchema)
	if err != nil {
		return fmt.Errorf("tool %q input schema: %w", spec.Name, err)
	}
	output, err := compileSchema(spec.Name+"/output", spec.OutputSchema)
	if err != nil {
		return fmt.Errorf("tool %q output schema: %w", spec.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[spec.Name]; exists {
		return fmt.Errorf("tool %q already registered", spec.Name)
	}
	r.tools[spec.Name] = &registeredTool{spec: spec, input: input, output: output}
	return nil
}

func (r *Registry) lookup(name string) (*registeredTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Specs returns all registered tool specs sorted by name. Used to advertise
// the tool surface to agent adapters.
func (r *Registry) Specs() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, t.spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

func compileSchema(name string, doc map[string]any) (*jsonschema.Schema, error) {
	if len(doc) == 0 {
		return nil, nil
	}
	c := jsonschema.NewCompiler()
	url := "inline://" + name + ".json"
	if err := c.AddResource(url, map[string]any(doc)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
