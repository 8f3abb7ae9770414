package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/meridianvc/scout/internal/agent"
	"github.com/meridianvc/scout/internal/models"
)

// LLMSynthesizer produces the SWOT with a single forced-answer model turn
// over the gathered material.
type LLMSynthesizer struct {
	adapter agent.Adapter
	model   string
}

func NewLLMSynthesizer(adapter agent.Adapter, model string) *LLMSynthesizer {
	return &LLMSynthesizer{adapter: adapter, model: model}
}

var swotFence = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")

func (s *LLMSynthesizer) Synthesize(ctx context.Context, rec models.CompanyRecord, enr models.Enrichment) (*models.SWOTAnalysis, error) {
	material, err := json.Marshal(struct {
		Company    models.CompanyRecord `json:"company"`
		Enrichment models.Enrichment    `json:"enrichment"`
	}{rec, enr})
	if err != nil {
		return nil, fmt.Errorf("encode material: %w", err)
	}

	out, err := s.adapter.Step(ctx, agent.StepRequest{
		Model: s.model,
		System: "You are a venture analyst. Produce a SWOT analysis as a single " +
			"JSON object with keys strengths, weaknesses, opportunities, threats, " +
			"each a list of short strings. No prose outside the JSON.",
		Messages: []agent.Message{{
			Role:    agent.RoleUser,
			Content: "Research material:\n" + string(material),
		}},
		ForceAnswer: true,
	})
	if err != nil {
		return nil, err
	}

	swot, err := decodeSWOT(out.Text)
	if err != nil {
		return nil, err
	}
	return swot, nil
}

func decodeSWOT(text string) (*models.SWOTAnalysis, error) {
	text = strings.TrimSpace(text)
	var swot models.SWOTAnalysis
	if err := json.Unmarshal([]byte(text), &swot); err == nil {
		return &swot, nil
	}
	if m := swotFence.FindStringSubmatch(text); m != nil {
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &swot); err == nil {
			return &swot, nil
		}
	}
	return nil, fmt.Errorf("model output is not a SWOT object")
}
