// Package models holds the shared data types passed between the gateway,
// agent runners, parser/validator, and orchestrator.
package models

import (
	"regexp"
	"strings"
	"time"
)

// RunStatus is the terminal state of a single agent research run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// AgentTask describes one research assignment: a provider paired with a
// segment/topic. Immutable once dispatched.
type AgentTask struct {
	ID         string   `json:"id"`
	Provider   string   `json:"provider"`
	Model      string   `json:"model"`
	Segment    string   `json:"segment"`
	TurnBudget int      `json:"turn_budget"`
	ToolBudget int      `json:"tool_budget"`
	SeedHints  []string `json:"seed_hints,omitempty"`
}

// TokenUsage aggregates vendor token/cost telemetry for one run.
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Add accumulates usage from another sample.
func (u *TokenUsage) Add(o TokenUsage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.TotalTokens += o.TotalTokens
	u.CostUSD += o.CostUSD
}

// AgentRunResult is produced exactly once per AgentTask.
type AgentRunResult struct {
	TaskID     string          `json:"task_id"`
	Provider   string          `json:"provider"`
	Segment    string          `json:"segment"`
	Status     RunStatus       `json:"status"`
	RawText    string          `json:"raw_text"`
	Findings   []CompanyRecord `json:"findings,omitempty"`
	Errors     []string        `json:"errors,omitempty"`
	RetryCount int             `json:"retry_count"`
	ToolUsage  map[string]int  `json:"tool_usage,omitempty"`
	Usage      TokenUsage      `json:"usage"`
	Turns      int             `json:"turns"`
	DurationMs int64           `json:"duration_ms"`
}

// ToolInvocation is the telemetry record emitted for every gateway call,
// whether it hit the cache, succeeded, or failed. Retained only for the
// lifetime of a run.
type ToolInvocation struct {
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args,omitempty"`
	Outcome   string         `json:"outcome"` // success | invalid_argument | domain_not_allowed | rate_limited | canceled | upstream_error
	CacheHit  bool           `json:"cache_hit"`
	Retries   int            `json:"retries"`
	Latency   time.Duration  `json:"latency"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// DeepResearchStatus values recorded on a CompanyRecord after the second
// enrichment pass.
const (
	DeepResearchCompleted = "completed"
	DeepResearchFailed    = "failed"
)

// CompanyRecord is a structured discovery finding. Identity is the
// normalized company name; merge across providers happens in a single
// aggregation pass after all tasks complete.
type CompanyRecord struct {
	Name             string   `json:"company"`
	Summary          string   `json:"summary,omitempty"`
	Website          string   `json:"website,omitempty"`
	Geography        string   `json:"geography,omitempty"`
	KPIAlignments    []string `json:"kpi_alignment,omitempty"`
	Sources          []string `json:"sources,omitempty"`
	Providers        []string `json:"providers,omitempty"`
	Confidence       float64  `json:"confidence"`
	Validated        bool     `json:"validated"`
	RejectionReasons []string `json:"rejection_reasons,omitempty"`

	// ParseOrigin records which extraction tier produced the record:
	// json, fenced, span, fragment, or raw_unvalidated.
	ParseOrigin string `json:"parse_origin,omitempty"`

	DeepResearchStatus string      `json:"deep_research_status,omitempty"`
	Enrichment         *Enrichment `json:"enrichment,omitempty"`
}

// NormalizedName returns the canonical identity for deduplication.
func (r CompanyRecord) NormalizedName() string {
	return NormalizeCompanyName(r.Name)
}

// Enrichment carries the optional deep-research sub-records.
type Enrichment struct {
	VerifiedWebsite string           `json:"verified_website,omitempty"`
	Financials      *FinancialsInfo  `json:"financials,omitempty"`
	Team            *TeamInfo        `json:"team,omitempty"`
	Competitors     []CompetitorInfo `json:"competitors,omitempty"`
	SWOT            *SWOTAnalysis    `json:"swot,omitempty"`
}

// FinancialsInfo summarizes funding/revenue signals for one company.
type FinancialsInfo struct {
	FundingTotal string   `json:"funding_total,omitempty"`
	LastRound    string   `json:"last_round,omitempty"`
	Revenue      string   `json:"revenue,omitempty"`
	Investors    []string `json:"investors,omitempty"`
	Sources      []string `json:"sources,omitempty"`
}

// TeamInfo captures leadership discovered during enrichment.
type TeamInfo struct {
	Founders []string `json:"founders,omitempty"`
	KeyHires []string `json:"key_hires,omitempty"`
	Size     string   `json:"size,omitempty"`
	Sources  []string `json:"sources,omitempty"`
}

// CompetitorInfo names one competitor and how it overlaps.
type CompetitorInfo struct {
	Name    string `json:"name"`
	Overlap string `json:"overlap,omitempty"`
}

// SWOTAnalysis is the four-quadrant synthesis produced at the end of a deep
// research pass.
type SWOTAnalysis struct {
	Strengths     []string `json:"strengths,omitempty"`
	Weaknesses    []string `json:"weaknesses,omitempty"`
	Opportunities []string `json:"opportunities,omitempty"`
	Threats       []string `json:"threats,omitempty"`
}

// ValidationVerdict annotates a record with the specific evidence checks
// behind its pass/fail decision. Derived, never persisted on its own.
type ValidationVerdict struct {
	Accepted         bool     `json:"accepted"`
	Confidence       float64  `json:"confidence"`
	KeywordHits      int      `json:"keyword_hits"`
	VerificationRate float64  `json:"verification_rate"`
	SourceCount      int      `json:"source_count"`
	SourceTierScore  float64  `json:"source_tier_score"`
	Reasons          []string `json:"reasons,omitempty"`
}

var (
	legalSuffixes = map[string]bool{
		"inc": true, "incorporated": true, "llc": true, "ltd": true,
		"limited": true, "gmbh": true, "sarl": true, "sa": true,
		"srl": true, "bv": true, "ag": true, "plc": true, "corp": true,
		"corporation": true, "co": true, "oy": true, "ab": true,
		"as": true, "aps": true, "pty": true, "kk": true, "sas": true,
		"spa": true,
	}
	nonAlnum = regexp.MustCompile(`[^a-z0-9 ]+`)
	spaces   = regexp.MustCompile(`\s+`)
)

// NormalizeCompanyName lowercases, strips punctuation and trailing legal
// suffixes so "Acme Robotics, Inc." and "acme robotics" share one identity.
func NormalizeCompanyName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nonAlnum.ReplaceAllString(s, " ")
	s = spaces.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	words := strings.Split(s, " ")
	for len(words) > 1 && legalSuffixes[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}
