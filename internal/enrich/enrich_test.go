package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridianvc/scout/internal/agent"
	"github.com/meridianvc/scout/internal/gateway"
	"github.com/meridianvc/scout/internal/models"
)

type fakeGateway struct {
	mu      sync.Mutex
	calls   []string
	results map[string]string // tool -> JSON response
	fail    map[string]error  // tool -> forced error
}

func (g *fakeGateway) Invoke(_ context.Context, tool string, args map[string]any) (*gateway.ToolResult, error) {
	g.mu.Lock()
	g.calls = append(g.calls, tool)
	g.mu.Unlock()
	if err, ok := g.fail[tool]; ok {
		return nil, err
	}
	data, ok := g.results[tool]
	if !ok {
		data = `{"results":[]}`
	}
	return &gateway.ToolResult{Tool: tool, Data: json.RawMessage(data)}, nil
}

type fakeSynth struct {
	swot *models.SWOTAnalysis
	err  error
}

func (s *fakeSynth) Synthesize(context.Context, models.CompanyRecord, models.Enrichment) (*models.SWOTAnalysis, error) {
	return s.swot, s.err
}

func testRecord() models.CompanyRecord {
	return models.CompanyRecord{
		Name:       "Acme Fermentation",
		Website:    "https://acme.example",
		Confidence: 0.8,
		Validated:  true,
	}
}

func okGateway() *fakeGateway {
	return &fakeGateway{
		results: map[string]string{
			"web_search":         `{"results":[{"title":"Rival Co","url":"https://rival.example","snippet":"same market"}]}`,
			"web_fetch":          `{"content":"<html>acme</html>","status":200}`,
			"company_financials": `{"funding_total":"$12M","last_round":"Series A","investors":["Fund I"]}`,
		},
	}
}

func TestEnrich_FullPipeline(t *testing.T) {
	gw := okGateway()
	swot := &models.SWOTAnalysis{Strengths: []string{"strong team"}}
	p := NewPipeline(gw, &fakeSynth{swot: swot}, zap.NewNop())

	rec, err := p.Enrich(context.Background(), testRecord())
	require.NoError(t, err)
	require.NotNil(t, rec.Enrichment)
	require.Equal(t, "https://acme.example", rec.Enrichment.VerifiedWebsite)
	require.Equal(t, "$12M", rec.Enrichment.Financials.FundingTotal)
	require.NotEmpty(t, rec.Enrichment.Competitors)
	require.Equal(t, "Rival Co", rec.Enrichment.Competitors[0].Name)
	require.Equal(t, swot, rec.Enrichment.SWOT)
}

func TestEnrich_ResolvesMissingWebsite(t *testing.T) {
	gw := okGateway()
	gw.results["web_search"] = `{"results":[{"title":"Acme","url":"https://acme.example","snippet":"official site"}]}`
	p := NewPipeline(gw, &fakeSynth{swot: &models.SWOTAnalysis{}}, zap.NewNop())

	rec := testRecord()
	rec.Website = ""
	out, err := p.Enrich(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, "https://acme.example", out.Website)
}

func TestEnrich_SubQueryFailureFailsRecord(t *testing.T) {
	gw := okGateway()
	gw.fail = map[string]error{
		"company_financials": fmt.Errorf("%w: source gone", gateway.ErrUpstream),
	}
	p := NewPipeline(gw, &fakeSynth{swot: &models.SWOTAnalysis{}}, zap.NewNop())

	_, err := p.Enrich(context.Background(), testRecord())
	require.Error(t, err)
	require.Contains(t, err.Error(), "financials")
}

func TestEnrich_VerificationFetchFailureIsSoft(t *testing.T) {
	gw := okGateway()
	gw.fail = map[string]error{
		"web_fetch": fmt.Errorf("%w: host %q", gateway.ErrDomainNotAllowed, "acme.example"),
	}
	p := NewPipeline(gw, &fakeSynth{swot: &models.SWOTAnalysis{}}, zap.NewNop())

	rec, err := p.Enrich(context.Background(), testRecord())
	require.NoError(t, err)
	require.Equal(t, "https://acme.example", rec.Enrichment.VerifiedWebsite)
}

func TestEnrich_SynthesisFailureFailsRecord(t *testing.T) {
	p := NewPipeline(okGateway(), &fakeSynth{err: errors.New("model refused")}, zap.NewNop())
	_, err := p.Enrich(context.Background(), testRecord())
	require.Error(t, err)
	require.Contains(t, err.Error(), "swot synthesis")
}

type scriptedAdapter struct {
	text string
	err  error
}

func (a *scriptedAdapter) Provider() string { return "openai" }
func (a *scriptedAdapter) Step(context.Context, agent.StepRequest) (*agent.TurnOutput, error) {
	if a.err != nil {
		return nil, a.err
	}
	return &agent.TurnOutput{Text: a.text, Terminal: true}, nil
}

func TestLLMSynthesizer_ParsesFencedSWOT(t *testing.T) {
	s := NewLLMSynthesizer(&scriptedAdapter{
		text: "```json\n{\"strengths\":[\"ip moat\"],\"threats\":[\"incumbents\"]}\n```",
	}, "gpt-4o")

	swot, err := s.Synthesize(context.Background(), testRecord(), models.Enrichment{})
	require.NoError(t, err)
	require.Equal(t, []string{"ip moat"}, swot.Strengths)
	require.Equal(t, []string{"incumbents"}, swot.Threats)
}

func TestLLMSynthesizer_RejectsProse(t *testing.T) {
	s := NewLLMSynthesizer(&scriptedAdapter{text: "I think this company is great."}, "gpt-4o")
	_, err := s.Synthesize(context.Background(), testRecord(), models.Enrichment{})
	require.Error(t, err)
}
