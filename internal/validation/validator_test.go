package validation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridianvc/scout/internal/models"
	"github.com/meridianvc/scout/internal/parsing"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Keywords = []string{"viticulture", "fermentation", "winery"}
	return cfg
}

func strongRecord() models.CompanyRecord {
	return models.CompanyRecord{
		Name:    "Acme Fermentation",
		Summary: "Acme builds precision fermentation monitoring for winery operations and viticulture research.",
		KPIAlignments: []string{
			"reduces fermentation monitoring costs for winery operators",
		},
		Sources: []string{
			"https://acme.example/about",
			"https://research.edu/papers/acme",
			"https://registry.gov/filings/acme",
		},
	}
}

func TestValidate_AcceptsStrongRecord(t *testing.T) {
	v := New(testConfig())
	verdict := v.Validate(strongRecord(), nil)

	require.True(t, verdict.Accepted, "reasons: %v", verdict.Reasons)
	require.GreaterOrEqual(t, verdict.Confidence, 0.45)
	require.GreaterOrEqual(t, verdict.KeywordHits, 2)
	require.Equal(t, 3, verdict.SourceCount)
}

func TestValidate_FloorRule(t *testing.T) {
	v := New(testConfig())
	rec := models.CompanyRecord{
		Name:    "Ghost Co",
		Summary: "A company with no supporting evidence of any kind.",
	}
	verdict := v.Validate(rec, nil)
	require.False(t, verdict.Accepted)
	require.Contains(t, verdict.Reasons[0], "no cited sources")
}

func TestValidate_RawFallbackNeverPasses(t *testing.T) {
	v := New(testConfig())
	rec := strongRecord()
	rec.ParseOrigin = parsing.TierRaw
	verdict := v.Validate(rec, nil)
	require.False(t, verdict.Accepted)
}

func TestValidate_KeywordMinimum(t *testing.T) {
	cfg := testConfig()
	cfg.MinKeywordCount = 2
	v := New(cfg)

	rec := strongRecord()
	rec.Summary = "Acme builds winery tooling." // one keyword only
	rec.KPIAlignments = nil
	verdict := v.Validate(rec, nil)
	require.False(t, verdict.Accepted)
	require.Equal(t, 1, verdict.KeywordHits)
}

func TestValidate_Idempotent(t *testing.T) {
	v := New(testConfig())
	rec := strongRecord()

	first := v.Validate(rec, nil)
	second := v.Validate(rec, nil)
	require.Equal(t, first, second)
}

func TestValidate_SourceTextCorroboratesKPI(t *testing.T) {
	v := New(testConfig())
	rec := models.CompanyRecord{
		Name:          "Beta Vines",
		Summary:       "Beta Vines sells viticulture sensors.",
		KPIAlignments: []string{"cuts irrigation water usage across vineyard blocks"},
		Sources:       []string{"https://beta.example"},
	}

	without := v.Validate(rec, nil)
	with := v.Validate(rec, map[string]string{
		"https://beta.example": "Beta's sensors cut irrigation water usage by 30% across vineyard blocks in trials.",
	})
	require.Greater(t, with.VerificationRate, without.VerificationRate)
}

func TestValidate_ConfigHotSwap(t *testing.T) {
	v := New(testConfig())
	rec := strongRecord()
	require.True(t, v.Validate(rec, nil).Accepted)

	strict := testConfig()
	strict.AcceptThreshold = 0.99
	v.UpdateConfig(strict)
	require.False(t, v.Validate(rec, nil).Accepted)
}

func TestMerge_HighestConfidenceWinsWithUnions(t *testing.T) {
	low := models.CompanyRecord{
		Name:          "Acme Robotics, Inc.",
		Summary:       "short take",
		Confidence:    0.4,
		Sources:       []string{"https://a.example"},
		KPIAlignments: []string{"kpi-1"},
		Providers:     []string{"openai"},
	}
	high := models.CompanyRecord{
		Name:          "acme robotics",
		Summary:       "detailed take",
		Confidence:    0.7,
		Validated:     true,
		Sources:       []string{"https://a.example", "https://b.example"},
		KPIAlignments: []string{"kpi-1", "kpi-2"},
		Providers:     []string{"anthropic"},
	}

	merged := Merge([]models.CompanyRecord{low, high})
	require.Len(t, merged, 1)
	rec := merged[0]
	require.Equal(t, "acme robotics", rec.Name)
	require.Equal(t, 0.7, rec.Confidence)
	require.Equal(t, "detailed take", rec.Summary)
	require.ElementsMatch(t, []string{"https://a.example", "https://b.example"}, rec.Sources)
	require.ElementsMatch(t, []string{"kpi-1", "kpi-2"}, rec.KPIAlignments)
	require.ElementsMatch(t, []string{"openai", "anthropic"}, rec.Providers)
}

func TestMerge_SortsByConfidenceForOutput(t *testing.T) {
	merged := Merge([]models.CompanyRecord{
		{Name: "Low", Confidence: 0.2},
		{Name: "High", Confidence: 0.9},
		{Name: "Mid", Confidence: 0.5},
	})
	require.Equal(t, []string{"High", "Mid", "Low"},
		[]string{merged[0].Name, merged[1].Name, merged[2].Name})
}
