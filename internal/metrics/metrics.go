// Package metrics exposes Prometheus instrumentation for the research
// orchestration engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tool gateway metrics
	ToolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_tool_invocations_total",
			Help: "Total number of tool invocations by outcome",
		},
		[]string{"tool", "outcome"},
	)

	ToolInvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scout_tool_invocation_duration_seconds",
			Help:    "Tool invocation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	ToolCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_tool_cache_hits_total",
			Help: "Total number of tool cache hits",
		},
		[]string{"tool"},
	)

	ToolRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_tool_retries_total",
			Help: "Total number of tool call retries",
		},
		[]string{"tool"},
	)

	RateLimitWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_rate_limit_waits_total",
			Help: "Total number of calls that blocked on a rate limiter",
		},
		[]string{"class"},
	)

	// Agent runner metrics
	AgentRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_agent_runs_total",
			Help: "Total number of agent runs by provider and status",
		},
		[]string{"provider", "status"},
	)

	AgentRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scout_agent_run_duration_seconds",
			Help:    "Agent run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"provider"},
	)

	AgentRunTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scout_agent_run_tokens",
			Help:    "Tokens consumed per agent run",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000},
		},
		[]string{"provider"},
	)

	AgentRunCostUSD = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scout_agent_run_cost_usd",
			Help:    "Cost in USD per agent run",
			Buckets: []float64{0.001, 0.01, 0.1, 1, 10},
		},
		[]string{"provider"},
	)

	// Parser/validator metrics
	ParseOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_parse_outcomes_total",
			Help: "Parser outcomes by extraction tier",
		},
		[]string{"tier"},
	)

	ValidationVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_validation_verdicts_total",
			Help: "Validation verdicts by outcome",
		},
		[]string{"outcome"},
	)

	// Orchestrator metrics
	DiscoveryRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_discovery_runs_total",
			Help: "Discovery runs by final status",
		},
		[]string{"status"},
	)

	CompaniesDiscovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scout_companies_discovered_total",
			Help: "Total validated companies across all runs",
		},
	)

	DeepResearchRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_deep_research_records_total",
			Help: "Deep research enrichment outcomes per record",
		},
		[]string{"status"},
	)
)
