package processor

import (
	"context"
	"sync"

	"github.com/hotdog-curator/internal/models"
)

// BatchStats counts results by outcome
type BatchStats struct {
	Approved  int `json:"approved"`
	Flagged   int `json:"flagged"`
	Rejected  int `json:"rejected"`
	Duplicate int `json:"duplicate"`
	Failed    int `json:"failed"`
}

// Tally counts a set of results
func Tally(results []*Result) BatchStats {
	var s BatchStats
	for _, r := range results {
		if r == nil {
			continue
		}
		switch r.Action {
		case ActionApproved:
			s.Approved++
		case ActionFlagged:
			s.Flagged++
		case ActionRejected:
			s.Rejected++
		case ActionDuplicate:
			s.Duplicate++
		}
		if r.Failed() {
			s.Failed++
		}
	}
	return s
}

// ProcessBatch processes candidates in groups of BatchSize. Within a group a fixed set of
// workers handles the items; one item failing never stops its siblings or later groups.
// Results are returned in input order.
func (p *Processor) ProcessBatch(ctx context.Context, candidates []*models.CandidateItem) []*Result {
	results := make([]*Result, len(candidates))
	size := p.config.BatchSize

	for start := 0; start < len(candidates); start += size {
		end := start + size
		if end > len(candidates) {
			end = len(candidates)
		}

		p.processGroup(ctx, candidates[start:end], results[start:end])

		stats := Tally(results[start:end])
		p.log.Info().
			Int("group_start", start).
			Int("group_size", end-start).
			Int("succeeded", end-start-stats.Failed).
			Int("failed", stats.Failed).
			Msg("Processed batch group")
	}

	return results
}

func (p *Processor) processGroup(ctx context.Context, group []*models.CandidateItem, out []*Result) {
	workers := p.config.Concurrency
	if workers > len(group) {
		workers = len(group)
	}

	jobs := make(chan int, len(group))
	for i := range group {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = p.Process(ctx, group[i])
			}
		}()
	}
	wg.Wait()
}
