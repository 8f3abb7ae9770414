// Package enrich runs the deep-research pipeline for one company record:
// website resolution and verification first, then financials, team, and
// competitor lookups in parallel, then a SWOT synthesis over everything
// gathered.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridianvc/scout/internal/gateway"
	"github.com/meridianvc/scout/internal/models"
)

// ToolGateway is the slice of the gateway the pipeline needs.
type ToolGateway interface {
	Invoke(ctx context.Context, tool string, args map[string]any) (*gateway.ToolResult, error)
}

// Synthesizer produces the four-quadrant SWOT from the gathered material.
// Backed by an LLM in production; stubbed in tests.
type Synthesizer interface {
	Synthesize(ctx context.Context, rec models.CompanyRecord, enr models.Enrichment) (*models.SWOTAnalysis, error)
}

// Pipeline enriches one record at a time. Safe for concurrent use; all
// state lives in the call.
type Pipeline struct {
	gw     ToolGateway
	synth  Synthesizer
	logger *zap.Logger
}

func NewPipeline(gw ToolGateway, synth Synthesizer, logger *zap.Logger) *Pipeline {
	return &Pipeline{gw: gw, synth: synth, logger: logger}
}

// searchResponse is the common shape of lookup tool results.
type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Snippet string `json:"snippet"`
	} `json:"results"`
}

// Enrich runs the full pipeline for one record. Any sub-query failure fails
// the whole record; the caller isolates that failure from sibling records.
func (p *Pipeline) Enrich(ctx context.Context, rec models.CompanyRecord) (models.CompanyRecord, error) {
	enr := models.Enrichment{}

	// Website resolution runs before everything else so the other
	// lookups can anchor on the verified domain.
	website, err := p.resolveWebsite(ctx, rec)
	if err != nil {
		return rec, fmt.Errorf("website resolution: %w", err)
	}
	enr.VerifiedWebsite = website
	if rec.Website == "" {
		rec.Website = website
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fin, ferr := p.financials(gctx, rec)
		if ferr != nil {
			return fmt.Errorf("financials: %w", ferr)
		}
		enr.Financials = fin
		return nil
	})
	g.Go(func() error {
		team, terr := p.team(gctx, rec)
		if terr != nil {
			return fmt.Errorf("team: %w", terr)
		}
		enr.Team = team
		return nil
	})
	g.Go(func() error {
		comp, cerr := p.competitors(gctx, rec)
		if cerr != nil {
			return fmt.Errorf("competitors: %w", cerr)
		}
		enr.Competitors = comp
		return nil
	})
	if err := g.Wait(); err != nil {
		return rec, err
	}

	swot, err := p.synth.Synthesize(ctx, rec, enr)
	if err != nil {
		return rec, fmt.Errorf("swot synthesis: %w", err)
	}
	enr.SWOT = swot

	rec.Enrichment = &enr
	return rec, nil
}

// resolveWebsite returns a verified official URL. A present, well-formed
// website is fetched to confirm it resolves; a missing or malformed one is
// looked up first.
func (p *Pipeline) resolveWebsite(ctx context.Context, rec models.CompanyRecord) (string, error) {
	site := strings.TrimSpace(rec.Website)
	if !validWebsite(site) {
		found, err := p.lookupWebsite(ctx, rec.Name)
		if err != nil {
			return "", err
		}
		site = found
	}
	if site == "" {
		return "", fmt.Errorf("no official website found for %q", rec.Name)
	}

	if _, err := p.gw.Invoke(ctx, "web_fetch", map[string]any{"url": site}); err != nil {
		// Off-allowlist or flaky hosts keep the resolved URL without
		// the verified flag.
		p.logger.Debug("website verification fetch failed",
			zap.String("company", rec.Name),
			zap.String("url", site),
			zap.Error(err))
		return site, nil
	}
	return site, nil
}

func (p *Pipeline) lookupWebsite(ctx context.Context, name string) (string, error) {
	resp, err := p.search(ctx, fmt.Sprintf("%s official website", name))
	if err != nil {
		return "", err
	}
	for _, r := range resp.Results {
		if validWebsite(r.URL) {
			return r.URL, nil
		}
	}
	return "", fmt.Errorf("no website candidates for %q", name)
}

func (p *Pipeline) financials(ctx context.Context, rec models.CompanyRecord) (*models.FinancialsInfo, error) {
	res, err := p.gw.Invoke(ctx, "company_financials", map[string]any{
		"company": rec.Name,
	})
	if err != nil {
		return nil, err
	}
	var fin models.FinancialsInfo
	if err := json.Unmarshal(res.Data, &fin); err != nil {
		return nil, fmt.Errorf("decode financials: %w", err)
	}
	return &fin, nil
}

func (p *Pipeline) team(ctx context.Context, rec models.CompanyRecord) (*models.TeamInfo, error) {
	resp, err := p.search(ctx, fmt.Sprintf("%s founders leadership team", rec.Name))
	if err != nil {
		return nil, err
	}
	team := &models.TeamInfo{}
	for _, r := range resp.Results {
		team.Sources = append(team.Sources, r.URL)
	}
	return team, nil
}

func (p *Pipeline) competitors(ctx context.Context, rec models.CompanyRecord) ([]models.CompetitorInfo, error) {
	resp, err := p.search(ctx, fmt.Sprintf("%s competitors alternatives", rec.Name))
	if err != nil {
		return nil, err
	}
	competitors := make([]models.CompetitorInfo, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Title == "" {
			continue
		}
		competitors = append(competitors, models.CompetitorInfo{
			Name:    r.Title,
			Overlap: r.Snippet,
		})
	}
	return competitors, nil
}

func (p *Pipeline) search(ctx context.Context, query string) (*searchResponse, error) {
	res, err := p.gw.Invoke(ctx, "web_search", map[string]any{"query": query})
	if err != nil {
		return nil, err
	}
	var resp searchResponse
	if err := json.Unmarshal(res.Data, &resp); err != nil {
		return nil, fmt.Errorf("decode search results: %w", err)
	}
	return &resp, nil
}

func validWebsite(s string) bool {
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Hostname() != ""
}
