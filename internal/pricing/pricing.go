// Package pricing maps model identifiers to per-token USD rates for run cost
// telemetry.
package pricing

import (
	"strings"
	"sync"
)

// ModelRate holds USD cost per 1M tokens for one model.
type ModelRate struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

var (
	mu sync.RWMutex

	// Rates keyed by model identifier prefix. Longest prefix wins so
	// dated snapshots (gpt-4o-2024-08-06) resolve to their family rate.
	rates = map[string]ModelRate{
		"gpt-4o":            {InputPerMTok: 2.50, OutputPerMTok: 10.00},
		"gpt-4o-mini":       {InputPerMTok: 0.15, OutputPerMTok: 0.60},
		"gpt-4.1":           {InputPerMTok: 2.00, OutputPerMTok: 8.00},
		"gpt-4.1-mini":      {InputPerMTok: 0.40, OutputPerMTok: 1.60},
		"o3-mini":           {InputPerMTok: 1.10, OutputPerMTok: 4.40},
		"claude-3-5-haiku":  {InputPerMTok: 0.80, OutputPerMTok: 4.00},
		"claude-3-5-sonnet": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
		"claude-3-7-sonnet": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
		"claude-sonnet-4":   {InputPerMTok: 3.00, OutputPerMTok: 15.00},
		"claude-opus-4":     {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	}
)

// SetRate overrides or adds pricing for a model prefix. Used when config
// carries custom rates.
func SetRate(modelPrefix string, rate ModelRate) {
	mu.Lock()
	defer mu.Unlock()
	rates[modelPrefix] = rate
}

// Lookup resolves the rate for a model by longest matching prefix.
func Lookup(model string) (ModelRate, bool) {
	mu.RLock()
	defer mu.RUnlock()
	var (
		best    ModelRate
		bestLen = -1
	)
	for prefix, rate := range rates {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best = rate
			bestLen = len(prefix)
		}
	}
	return best, bestLen >= 0
}

// Cost computes the USD cost of a token split for a model. Unknown models
// cost zero rather than erroring; telemetry must never fail a run.
func Cost(model string, inputTokens, outputTokens int) float64 {
	rate, ok := Lookup(model)
	if !ok {
		return 0
	}
	return float64(inputTokens)/1e6*rate.InputPerMTok +
		float64(outputTokens)/1e6*rate.OutputPerMTok
}
