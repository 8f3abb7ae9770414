// Package parsing recovers structured company records from the raw final
// text of an agent run. Extraction is tiered: whole-text JSON, fenced code
// block, brace-tracked "companies" span, individual object fragments, and
// finally a raw unvalidated fallback so no output is silently dropped.
package parsing

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/meridianvc/scout/internal/metrics"
	"github.com/meridianvc/scout/internal/models"
)

// Variant tags how much structure was recovered.
type Variant string

const (
	// Parsed means the payload decoded cleanly (tiers 1-2).
	Parsed Variant = "parsed"
	// PartialParsed means records were recovered from a damaged
	// enclosure (tiers 3-4).
	PartialParsed Variant = "partial"
	// Raw means nothing decoded; the text survives as a fallback record.
	Raw Variant = "raw"
)

// Extraction tier names, recorded on each record's ParseOrigin.
const (
	TierJSON     = "json"
	TierFenced   = "fenced"
	TierSpan     = "span"
	TierFragment = "fragment"
	TierRaw      = "raw_unvalidated"
)

// Result is the outcome of parsing one agent's raw output.
type Result struct {
	Variant Variant
	Tier    string
	Records []models.CompanyRecord
}

type envelope struct {
	Companies []models.CompanyRecord `json:"companies"`
}

var fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")

// Parse attempts each extraction tier in order; the first tier yielding at
// least one record wins. Never fails: tier 5 retains the raw text.
func Parse(raw string) Result {
	trimmed := strings.TrimSpace(raw)

	if records := decodeEnvelope(trimmed); len(records) > 0 {
		return result(Parsed, TierJSON, records)
	}
	if m := fencedBlock.FindStringSubmatch(trimmed); m != nil {
		if records := decodeEnvelope(strings.TrimSpace(m[1])); len(records) > 0 {
			return result(Parsed, TierFenced, records)
		}
	}
	if records := decodeSpan(trimmed); len(records) > 0 {
		return result(PartialParsed, TierSpan, records)
	}
	if records := decodeFragments(trimmed); len(records) > 0 {
		return result(PartialParsed, TierFragment, records)
	}

	metrics.ParseOutcomes.WithLabelValues(TierRaw).Inc()
	return Result{
		Variant: Raw,
		Tier:    TierRaw,
		Records: []models.CompanyRecord{{
			Summary:     raw,
			ParseOrigin: TierRaw,
		}},
	}
}

func result(v Variant, tier string, records []models.CompanyRecord) Result {
	metrics.ParseOutcomes.WithLabelValues(tier).Inc()
	for i := range records {
		records[i].ParseOrigin = tier
	}
	return Result{Variant: v, Tier: tier, Records: records}
}

// decodeEnvelope parses text as either {"companies": [...]} or a bare array
// of records, dropping entries without a company name.
func decodeEnvelope(text string) []models.CompanyRecord {
	if text == "" {
		return nil
	}
	var env envelope
	if err := json.Unmarshal([]byte(text), &env); err == nil && len(env.Companies) > 0 {
		return named(env.Companies)
	}
	var list []models.CompanyRecord
	if err := json.Unmarshal([]byte(text), &list); err == nil && len(list) > 0 {
		return named(list)
	}
	return nil
}

// decodeSpan locates the "companies" key anywhere in the text and recovers
// its array value by tracking bracket depth, so trailing prose or a broken
// outer object does not defeat the parse.
func decodeSpan(text string) []models.CompanyRecord {
	keyIdx := strings.Index(text, `"companies"`)
	if keyIdx < 0 {
		return nil
	}
	openIdx := strings.IndexByte(text[keyIdx:], '[')
	if openIdx < 0 {
		return nil
	}
	start := keyIdx + openIdx
	end, ok := balancedSpan(text, start)
	if !ok {
		return nil
	}
	var list []models.CompanyRecord
	if err := json.Unmarshal([]byte(text[start:end]), &list); err != nil {
		return nil
	}
	return named(list)
}

// decodeFragments collects individually well-formed company objects from
// anywhere in the text, even when the enclosing structure is broken.
func decodeFragments(text string) []models.CompanyRecord {
	var records []models.CompanyRecord
	for i := 0; i < len(text); {
		open := strings.IndexByte(text[i:], '{')
		if open < 0 {
			break
		}
		start := i + open
		end, ok := balancedSpan(text, start)
		if !ok {
			i = start + 1
			continue
		}
		var rec models.CompanyRecord
		if err := json.Unmarshal([]byte(text[start:end]), &rec); err == nil && strings.TrimSpace(rec.Name) != "" {
			records = append(records, rec)
			i = end
			continue
		}
		// A failed outer object may still contain valid inner ones.
		i = start + 1
	}
	return records
}

// balancedSpan returns the exclusive end index of the bracket-balanced span
// opening at start, honoring JSON string and escape rules.
func balancedSpan(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

func named(records []models.CompanyRecord) []models.CompanyRecord {
	out := records[:0]
	for _, r := range records {
		if strings.TrimSpace(r.Name) != "" {
			out = append(out, r)
		}
	}
	return out
}
