package validation

import (
	"sort"

	"github.com/meridianvc/scout/internal/models"
)

// Merge collapses records sharing a normalized company name into one record:
// the highest-confidence variant wins, sources and providers are unioned,
// and KPI statements are concatenated with duplicates removed. Runs as a
// single aggregation pass after all tasks complete, so no per-identity
// locking is needed. Output is sorted by confidence, then name, for
// presentation only.
func Merge(records []models.CompanyRecord) []models.CompanyRecord {
	byIdentity := make(map[string]models.CompanyRecord)
	order := make([]string, 0, len(records))

	for _, rec := range records {
		key := rec.NormalizedName()
		if key == "" {
			continue
		}
		existing, seen := byIdentity[key]
		if !seen {
			byIdentity[key] = rec
			order = append(order, key)
			continue
		}
		byIdentity[key] = mergePair(existing, rec)
	}

	merged := make([]models.CompanyRecord, 0, len(order))
	for _, key := range order {
		merged = append(merged, byIdentity[key])
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Confidence != merged[j].Confidence {
			return merged[i].Confidence > merged[j].Confidence
		}
		return merged[i].Name < merged[j].Name
	})
	return merged
}

func mergePair(a, b models.CompanyRecord) models.CompanyRecord {
	base, other := a, b
	if b.Confidence > a.Confidence {
		base, other = b, a
	}
	base.Sources = unionStrings(base.Sources, other.Sources)
	base.KPIAlignments = unionStrings(base.KPIAlignments, other.KPIAlignments)
	base.Providers = unionStrings(base.Providers, other.Providers)
	// A validated variant keeps the identity validated even when the
	// higher-confidence variant came from a rejected sibling.
	base.Validated = base.Validated || other.Validated
	return base
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
