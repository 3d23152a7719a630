package syncer

import (
	"context"
	"log"

	"github.com/trogers1052/form4-tracker/internal/models"
	"golang.org/x/sync/errgroup"
)

type filingResult struct {
	ref     models.FilingRef
	records []models.TransactionRecord
	err     error
}

// fetch parses refs on a bounded worker pool. Workers only parse; results are
// collected on the calling goroutine. When target > 0, no new work is issued
// once that many distinct insiders have been seen (insiders whose only
// transactions are planned do not count when hidePlanned is set).
// It returns the records plus how many filings were collected and how many failed.
func (e *Engine) fetch(ctx context.Context, refs []models.FilingRef, target int, hidePlanned bool) ([]models.TransactionRecord, int, int) {
	if len(refs) == 0 {
		return nil, 0, 0
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan filingResult)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	go func() {
		for _, ref := range refs {
			if gctx.Err() != nil {
				break
			}
			ref := ref
			g.Go(func() error {
				records, err := e.source.ParseFiling(gctx, ref)
				select {
				case results <- filingResult{ref: ref, records: records, err: err}:
				case <-gctx.Done():
				}
				return nil
			})
		}
		g.Wait()
		close(results)
	}()

	var records []models.TransactionRecord
	insiders := make(map[string]struct{})
	collected, failed := 0, 0
	stopped := false

	for res := range results {
		if stopped {
			continue
		}
		collected++
		if res.err != nil {
			failed++
			log.Printf("Skipping filing %s: %v", res.ref.AccessionNumber, res.err)
			continue
		}
		records = append(records, res.records...)

		if target <= 0 {
			continue
		}
		for _, r := range res.records {
			if hidePlanned && r.IsPlanned {
				continue
			}
			insiders[r.InsiderKey()] = struct{}{}
		}
		if len(insiders) >= target {
			stopped = true
			cancel()
		}
	}

	return records, collected, failed
}
