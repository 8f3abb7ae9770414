package orchestrator

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridianvc/scout/internal/metrics"
	"github.com/meridianvc/scout/internal/models"
	"github.com/meridianvc/scout/internal/streaming"
)

// DeepResearchStats summarizes one enrichment pass.
type DeepResearchStats struct {
	Selected  int   `json:"selected"`
	Completed int   `json:"completed"`
	Failed    int   `json:"failed"`
	ElapsedMs int64 `json:"elapsed_ms"`
}

// DeepResearchResult carries the enriched records and pass statistics.
type DeepResearchResult struct {
	Companies []models.CompanyRecord `json:"companies"`
	Stats     DeepResearchStats      `json:"stats"`
}

// RunDeepResearch selects the topN validated records by confidence and
// enriches them in fixed-size concurrent batches. Each record is
// failure-isolated: an enrichment failure marks that record only and never
// touches its batch siblings.
func (o *Orchestrator) RunDeepResearch(ctx context.Context, runID string, records []models.CompanyRecord, topN int) (*DeepResearchResult, error) {
	if topN <= 0 {
		topN = o.config.DeepResearch.TopN
	}
	selected := selectTop(records, topN)
	start := time.Now()
	o.logger.Info("deep research started",
		zap.String("run_id", runID),
		zap.Int("selected", len(selected)),
		zap.Int("batch_size", o.config.DeepResearch.BatchSize))

	batchSize := o.config.DeepResearch.BatchSize
	for lo := 0; lo < len(selected); lo += batchSize {
		hi := min(lo+batchSize, len(selected))
		if err := ctx.Err(); err != nil {
			// Cancelled between batches: remaining records stay
			// unenriched, finished ones are kept.
			break
		}

		g := new(errgroup.Group)
		for i := lo; i < hi; i++ {
			g.Go(func() error {
				rec := selected[i]
				o.publish(runID, streaming.EventEnrichmentStarted, map[string]any{
					"company": rec.Name,
				})
				enriched, err := o.enricher.Enrich(ctx, rec)
				if err != nil {
					o.logger.Warn("enrichment failed",
						zap.String("run_id", runID),
						zap.String("company", rec.Name),
						zap.Error(err))
					enriched = rec
					enriched.DeepResearchStatus = models.DeepResearchFailed
				} else {
					enriched.DeepResearchStatus = models.DeepResearchCompleted
				}
				metrics.DeepResearchRecords.WithLabelValues(enriched.DeepResearchStatus).Inc()
				o.publish(runID, streaming.EventEnrichmentFinished, map[string]any{
					"company": rec.Name,
					"status":  enriched.DeepResearchStatus,
				})
				selected[i] = enriched
				return nil
			})
		}
		_ = g.Wait()
	}

	stats := DeepResearchStats{
		Selected:  len(selected),
		ElapsedMs: time.Since(start).Milliseconds(),
	}
	for _, rec := range selected {
		switch rec.DeepResearchStatus {
		case models.DeepResearchCompleted:
			stats.Completed++
		case models.DeepResearchFailed:
			stats.Failed++
		}
	}
	o.logger.Info("deep research finished",
		zap.String("run_id", runID),
		zap.Int("completed", stats.Completed),
		zap.Int("failed", stats.Failed))
	return &DeepResearchResult{Companies: selected, Stats: stats}, nil
}

// selectTop returns the topN validated records by confidence, copied so
// enrichment never mutates the caller's slice.
func selectTop(records []models.CompanyRecord, topN int) []models.CompanyRecord {
	candidates := make([]models.CompanyRecord, 0, len(records))
	for _, rec := range records {
		if rec.Validated {
			candidates = append(candidates, rec)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}
	return candidates
}
