// Package orchestrator coordinates the research pipeline: concurrent
// discovery fan-out across provider agents, parse/validate/merge of their
// output, and the second-pass deep-research batch over the top records.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridianvc/scout/internal/metrics"
	"github.com/meridianvc/scout/internal/models"
	"github.com/meridianvc/scout/internal/parsing"
	"github.com/meridianvc/scout/internal/streaming"
	"github.com/meridianvc/scout/internal/validation"
)

// ErrAllProvidersFailed is returned when every dispatched task failed
// outright; partial coverage is never an error.
var ErrAllProvidersFailed = errors.New("all providers failed")

// AgentRunner abstracts one provider's runner.
type AgentRunner interface {
	Provider() string
	Run(ctx context.Context, task models.AgentTask) models.AgentRunResult
}

// Enricher abstracts the per-record deep-research pipeline.
type Enricher interface {
	Enrich(ctx context.Context, rec models.CompanyRecord) (models.CompanyRecord, error)
}

// Config bounds the orchestrator's concurrency.
type Config struct {
	MaxConcurrency int `mapstructure:"max_concurrency" yaml:"max_concurrency"`
	DeepResearch   struct {
		TopN      int `mapstructure:"top_n" yaml:"top_n"`
		BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`
	} `mapstructure:"deep_research" yaml:"deep_research"`
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 4
	}
	if c.DeepResearch.TopN <= 0 {
		c.DeepResearch.TopN = 10
	}
	if c.DeepResearch.BatchSize <= 0 {
		c.DeepResearch.BatchSize = 5
	}
}

// Orchestrator owns the discovery and deep-research flows.
type Orchestrator struct {
	runners   map[string]AgentRunner
	validator *validation.Validator
	enricher  Enricher
	events    *streaming.Manager
	config    Config
	logger    *zap.Logger
}

func New(runners []AgentRunner, validator *validation.Validator, enricher Enricher, events *streaming.Manager, config Config, logger *zap.Logger) *Orchestrator {
	config.applyDefaults()
	byProvider := make(map[string]AgentRunner, len(runners))
	for _, r := range runners {
		byProvider[r.Provider()] = r
	}
	return &Orchestrator{
		runners:   byProvider,
		validator: validator,
		enricher:  enricher,
		events:    events,
		config:    config,
		logger:    logger,
	}
}

// DiscoveryResult is the aggregated outcome of one discovery run.
type DiscoveryResult struct {
	RunID     string                  `json:"run_id"`
	Providers []models.AgentRunResult `json:"providers"`
	Companies []models.CompanyRecord  `json:"companies"`

	// PartialCoverage lists provider/segment pairs whose runs failed.
	// Informational, not a failure.
	PartialCoverage []string `json:"partial_coverage,omitempty"`
}

// RunDiscovery dispatches every task concurrently, bounded by the global
// concurrency limit, then parses, validates, and merges all output in one
// aggregation pass. A failed task degrades coverage; only a run where every
// task failed returns an error.
func (o *Orchestrator) RunDiscovery(ctx context.Context, tasks []models.AgentTask) (*DiscoveryResult, error) {
	return o.RunDiscoveryWithID(ctx, uuid.NewString(), tasks)
}

// RunDiscoveryWithID is RunDiscovery with a caller-chosen run ID, so event
// subscribers can attach before the run starts.
func (o *Orchestrator) RunDiscoveryWithID(ctx context.Context, runID string, tasks []models.AgentTask) (*DiscoveryResult, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("no tasks to dispatch")
	}
	start := time.Now()
	o.logger.Info("discovery run started",
		zap.String("run_id", runID),
		zap.Int("tasks", len(tasks)),
		zap.Int("max_concurrency", o.config.MaxConcurrency))
	o.publish(runID, streaming.EventRunStarted, map[string]any{"tasks": len(tasks)})

	results := make([]models.AgentRunResult, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.MaxConcurrency)
	for i, task := range tasks {
		g.Go(func() error {
			runner, ok := o.runners[task.Provider]
			if !ok {
				results[i] = models.AgentRunResult{
					TaskID:   task.ID,
					Provider: task.Provider,
					Segment:  task.Segment,
					Status:   models.RunFailed,
					Errors:   []string{fmt.Sprintf("no runner for provider %q", task.Provider)},
				}
				return nil
			}
			o.publish(runID, streaming.EventAgentStarted, map[string]any{
				"provider": task.Provider, "segment": task.Segment,
			})
			// Runners never return errors; failures land in the result.
			results[i] = runner.Run(gctx, task)
			o.publish(runID, streaming.EventAgentFinished, map[string]any{
				"provider": task.Provider,
				"segment":  task.Segment,
				"status":   string(results[i].Status),
			})
			return nil
		})
	}
	_ = g.Wait()

	out := &DiscoveryResult{RunID: runID, Providers: results}
	failed := 0
	var collected []models.CompanyRecord
	for i := range results {
		res := &results[i]
		if res.Status == models.RunFailed {
			failed++
			out.PartialCoverage = append(out.PartialCoverage,
				fmt.Sprintf("%s/%s", res.Provider, res.Segment))
			continue
		}
		collected = append(collected, o.extractRecords(res)...)
	}
	if failed == len(tasks) {
		metrics.DiscoveryRuns.WithLabelValues("failed").Inc()
		o.publish(runID, streaming.EventRunFinished, map[string]any{"status": "failed"})
		return out, ErrAllProvidersFailed
	}

	out.Companies = validation.Merge(collected)
	validated := 0
	for _, rec := range out.Companies {
		if rec.Validated {
			validated++
		}
	}
	metrics.DiscoveryRuns.WithLabelValues("completed").Inc()
	metrics.CompaniesDiscovered.Add(float64(validated))
	o.publish(runID, streaming.EventDiscoveryFinished, map[string]any{
		"companies": len(out.Companies),
		"validated": validated,
	})
	o.logger.Info("discovery run finished",
		zap.String("run_id", runID),
		zap.Int("companies", len(out.Companies)),
		zap.Int("validated", validated),
		zap.Int("failed_tasks", failed),
		zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

// extractRecords parses one run's raw output (when the runner produced no
// structured findings) and validates every record.
func (o *Orchestrator) extractRecords(res *models.AgentRunResult) []models.CompanyRecord {
	records := res.Findings
	if len(records) == 0 && res.RawText != "" {
		parsed := parsing.Parse(res.RawText)
		records = parsed.Records
	}
	for i := range records {
		rec := &records[i]
		rec.Providers = []string{res.Provider}
		verdict := o.validator.Validate(*rec, nil)
		validation.Apply(rec, verdict)
	}
	return records
}

func (o *Orchestrator) publish(runID, eventType string, payload map[string]any) {
	if o.events == nil {
		return
	}
	o.events.Publish(streaming.Event{RunID: runID, Type: eventType, Payload: payload})
}
