// Package validation decides which parsed company records are acceptable
// evidence: keyword checks, soft KPI corroboration, and a weighted
// confidence score with configurable thresholds.
package validation

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/meridianvc/scout/internal/metrics"
	"github.com/meridianvc/scout/internal/models"
	"github.com/meridianvc/scout/internal/parsing"
)

// Weights controls the confidence-score composition. Values are relative;
// the validator normalizes them to sum to 1.
type Weights struct {
	SourceCount     float64 `mapstructure:"source_count" yaml:"source_count"`
	SourceTier      float64 `mapstructure:"source_tier" yaml:"source_tier"`
	Verification    float64 `mapstructure:"verification" yaml:"verification"`
	KeywordEvidence float64 `mapstructure:"keyword_evidence" yaml:"keyword_evidence"`
}

// Config holds the tunable validation rules. The thresholds are empirical
// per investment domain and are expected to be adjusted in configuration,
// not code.
type Config struct {
	Keywords            []string           `mapstructure:"keywords" yaml:"keywords"`
	MinKeywordCount     int                `mapstructure:"min_keyword_count" yaml:"min_keyword_count"`
	MinVerificationRate float64            `mapstructure:"min_verification_rate" yaml:"min_verification_rate"`
	AcceptThreshold     float64            `mapstructure:"accept_threshold" yaml:"accept_threshold"`
	Weights             Weights            `mapstructure:"weights" yaml:"weights"`
	SourceTiers         map[string]float64 `mapstructure:"source_tiers" yaml:"source_tiers"`
}

// DefaultConfig returns illustrative defaults; production values come from
// the validation config block.
func DefaultConfig() Config {
	return Config{
		MinKeywordCount:     1,
		MinVerificationRate: 0.25,
		AcceptThreshold:     0.45,
		Weights: Weights{
			SourceCount:     0.3,
			SourceTier:      0.2,
			Verification:    0.3,
			KeywordEvidence: 0.2,
		},
		SourceTiers: map[string]float64{
			"gov": 1.0,
			"edu": 1.0,
			"org": 0.7,
		},
	}
}

const (
	defaultSourceTier = 0.4
	// softMatchRatio is the token-overlap fraction at which a KPI claim
	// counts as corroborated. Deliberately loose to tolerate paraphrase.
	softMatchRatio = 0.3
	// sourceSaturation is the distinct-source count at which the source
	// component of the score maxes out.
	sourceSaturation = 4
)

// Validator applies the rules. Config may be swapped at runtime by the
// hot-reload watcher; reads and updates are safe under concurrency.
type Validator struct {
	mu  sync.RWMutex
	cfg Config
}

func New(cfg Config) *Validator {
	return &Validator{cfg: normalize(cfg)}
}

// UpdateConfig swaps the rules, used by configuration hot-reload.
func (v *Validator) UpdateConfig(cfg Config) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cfg = normalize(cfg)
}

func normalize(cfg Config) Config {
	total := cfg.Weights.SourceCount + cfg.Weights.SourceTier +
		cfg.Weights.Verification + cfg.Weights.KeywordEvidence
	if total <= 0 {
		cfg.Weights = DefaultConfig().Weights
		total = 1
	}
	cfg.Weights.SourceCount /= total
	cfg.Weights.SourceTier /= total
	cfg.Weights.Verification /= total
	cfg.Weights.KeywordEvidence /= total
	for i, kw := range cfg.Keywords {
		cfg.Keywords[i] = strings.ToLower(kw)
	}
	return cfg
}

// Validate scores one record and returns the verdict. sourceText maps a
// cited URL to fetched page text when available; absent entries fall back to
// the record's own summary for the soft corroboration check. Pure with
// respect to its inputs: re-validating unchanged inputs yields an identical
// verdict.
func (v *Validator) Validate(rec models.CompanyRecord, sourceText map[string]string) models.ValidationVerdict {
	v.mu.RLock()
	cfg := v.cfg
	v.mu.RUnlock()

	verdict := models.ValidationVerdict{}

	corpus := strings.ToLower(rec.Summary + " " + strings.Join(rec.Sources, " "))
	for _, text := range sourceText {
		corpus += " " + strings.ToLower(text)
	}

	for _, kw := range cfg.Keywords {
		if kw != "" && strings.Contains(corpus, kw) {
			verdict.KeywordHits++
		}
	}

	verdict.VerificationRate = verificationRate(rec.KPIAlignments, corpus)
	verdict.SourceCount = len(distinctSources(rec.Sources))
	verdict.SourceTierScore = tierScore(rec.Sources, cfg.SourceTiers)

	sourceScore := min1(float64(verdict.SourceCount) / sourceSaturation)
	keywordScore := min1(float64(verdict.KeywordHits) / float64(max(cfg.MinKeywordCount*2, 2)))
	verdict.Confidence = cfg.Weights.SourceCount*sourceScore +
		cfg.Weights.SourceTier*verdict.SourceTierScore +
		cfg.Weights.Verification*verdict.VerificationRate +
		cfg.Weights.KeywordEvidence*keywordScore

	// Floor rule: no sources and no evidence keywords rejects outright,
	// whatever the formula says.
	if verdict.SourceCount == 0 && verdict.KeywordHits == 0 {
		verdict.Reasons = append(verdict.Reasons, "no cited sources and no evidence keywords")
	}
	if rec.ParseOrigin == parsing.TierRaw {
		verdict.Reasons = append(verdict.Reasons, "unstructured raw output")
	}
	if verdict.KeywordHits < cfg.MinKeywordCount {
		verdict.Reasons = append(verdict.Reasons,
			fmt.Sprintf("evidence keywords %d below minimum %d", verdict.KeywordHits, cfg.MinKeywordCount))
	}
	if len(rec.KPIAlignments) > 0 && verdict.VerificationRate < cfg.MinVerificationRate {
		verdict.Reasons = append(verdict.Reasons,
			fmt.Sprintf("KPI verification rate %.2f below minimum %.2f", verdict.VerificationRate, cfg.MinVerificationRate))
	}
	if verdict.Confidence < cfg.AcceptThreshold {
		verdict.Reasons = append(verdict.Reasons,
			fmt.Sprintf("confidence %.2f below threshold %.2f", verdict.Confidence, cfg.AcceptThreshold))
	}

	verdict.Accepted = len(verdict.Reasons) == 0
	outcome := "rejected"
	if verdict.Accepted {
		outcome = "accepted"
	}
	metrics.ValidationVerdicts.WithLabelValues(outcome).Inc()
	return verdict
}

// Apply writes a verdict onto the record.
func Apply(rec *models.CompanyRecord, verdict models.ValidationVerdict) {
	rec.Confidence = verdict.Confidence
	rec.Validated = verdict.Accepted
	rec.RejectionReasons = verdict.Reasons
}

// verificationRate is the fraction of KPI claims whose significant tokens
// overlap the evidence corpus above the soft-match ratio. Token overlap, not
// string equality, so paraphrased evidence still counts.
func verificationRate(claims []string, corpus string) float64 {
	if len(claims) == 0 {
		return 0
	}
	verified := 0
	for _, claim := range claims {
		tokens := significantTokens(claim)
		if len(tokens) == 0 {
			continue
		}
		matched := 0
		for _, tok := range tokens {
			if strings.Contains(corpus, tok) {
				matched++
			}
		}
		if float64(matched)/float64(len(tokens)) >= softMatchRatio {
			verified++
		}
	}
	return float64(verified) / float64(len(claims))
}

func significantTokens(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:()\"'")
		if len(f) > 3 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func distinctSources(sources []string) map[string]bool {
	seen := make(map[string]bool, len(sources))
	for _, s := range sources {
		s = strings.TrimSpace(s)
		if s != "" {
			seen[s] = true
		}
	}
	return seen
}

// tierScore averages per-source tier weights. Tiers match on the host's
// last label (gov, edu) or full hostname; unknown hosts get a middling
// default.
func tierScore(sources []string, tiers map[string]float64) float64 {
	if len(sources) == 0 {
		return 0
	}
	total := 0.0
	counted := 0
	for s := range distinctSources(sources) {
		total += sourceTier(s, tiers)
		counted++
	}
	if counted == 0 {
		return 0
	}
	return total / float64(counted)
}

func sourceTier(source string, tiers map[string]float64) float64 {
	u, err := url.Parse(source)
	if err != nil || u.Hostname() == "" {
		return defaultSourceTier
	}
	host := strings.ToLower(u.Hostname())
	if tier, ok := tiers[host]; ok {
		return tier
	}
	if idx := strings.LastIndexByte(host, '.'); idx >= 0 {
		if tier, ok := tiers[host[idx+1:]]; ok {
			return tier
		}
	}
	return defaultSourceTier
}

func min1(f float64) float64 {
	if f > 1 {
		return 1
	}
	return f
}
