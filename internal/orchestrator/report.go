package orchestrator

import "github.com/meridianvc/scout/internal/models"

// ProviderSummary is the per-run slice of telemetry surfaced in the report.
type ProviderSummary struct {
	Provider   string            `json:"provider"`
	Segment    string            `json:"segment"`
	Status     models.RunStatus  `json:"status"`
	RetryCount int               `json:"retry_count"`
	Turns      int               `json:"turns"`
	ToolUsage  map[string]int    `json:"tool_usage,omitempty"`
	Usage      models.TokenUsage `json:"usage"`
	DurationMs int64             `json:"duration_ms"`
	Errors     []string          `json:"errors,omitempty"`
}

// ReportPayload is the final shape handed to the reporting collaborator.
type ReportPayload struct {
	RunID           string                 `json:"run_id"`
	Providers       []ProviderSummary      `json:"providers"`
	Companies       []models.CompanyRecord `json:"companies"`
	DeepResearch    *DeepResearchResult    `json:"deepResearch,omitempty"`
	PartialCoverage []string               `json:"partial_coverage,omitempty"`
}

// BuildReport assembles the final payload from a discovery result and an
// optional deep-research pass.
func BuildReport(discovery *DiscoveryResult, deep *DeepResearchResult) *ReportPayload {
	payload := &ReportPayload{
		RunID:           discovery.RunID,
		Companies:       discovery.Companies,
		DeepResearch:    deep,
		PartialCoverage: discovery.PartialCoverage,
	}
	for _, res := range discovery.Providers {
		payload.Providers = append(payload.Providers, ProviderSummary{
			Provider:   res.Provider,
			Segment:    res.Segment,
			Status:     res.Status,
			RetryCount: res.RetryCount,
			Turns:      res.Turns,
			ToolUsage:  res.ToolUsage,
			Usage:      res.Usage,
			DurationMs: res.DurationMs,
			Errors:     res.Errors,
		})
	}
	return payload
}
