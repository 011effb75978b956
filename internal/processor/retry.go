package processor

import (
	"context"
	"sync"

	"github.com/hotdog-curator/internal/models"
)

// FailedItem is a candidate that could not be processed
type FailedItem struct {
	Candidate *models.CandidateItem
	Attempts  int
	Err       error
}

type retryItem struct {
	candidate *models.CandidateItem
	attempts  int
	lastErr   error
}

// RetryQueue holds candidates whose processing failed so they can be attempted again.
// Attempts are counted in total, including the first one.
type RetryQueue struct {
	mu          sync.Mutex
	items       []*retryItem
	maxAttempts int
}

// NewRetryQueue creates a retry queue
func NewRetryQueue(maxAttempts int) *RetryQueue {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &RetryQueue{maxAttempts: maxAttempts}
}

// Add enqueues the failed results of a first attempt and returns how many were added
func (q *RetryQueue) Add(results []*Result) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	added := 0
	for _, r := range results {
		if r == nil || !r.Failed() || r.Candidate == nil {
			continue
		}
		q.items = append(q.items, &retryItem{candidate: r.Candidate, attempts: 1, lastErr: r.Err})
		added++
	}
	return added
}

// Len returns the number of items waiting for another attempt
func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain retries queued candidates until each succeeds or runs out of attempts
func (q *RetryQueue) Drain(ctx context.Context, p *Processor) ([]*Result, []FailedItem) {
	var recovered []*Result
	var failed []FailedItem

	for {
		q.mu.Lock()
		pending := q.items
		q.items = nil
		q.mu.Unlock()

		if len(pending) == 0 {
			break
		}

		var again []*retryItem
		for _, item := range pending {
			if item.attempts >= q.maxAttempts {
				failed = append(failed, FailedItem{Candidate: item.candidate, Attempts: item.attempts, Err: item.lastErr})
				continue
			}

			item.attempts++
			result := p.Process(ctx, item.candidate)
			if !result.Failed() {
				recovered = append(recovered, result)
				continue
			}

			item.lastErr = result.Err
			again = append(again, item)
		}

		q.mu.Lock()
		q.items = append(q.items, again...)
		q.mu.Unlock()
	}

	if len(recovered) > 0 || len(failed) > 0 {
		p.log.Info().
			Int("recovered", len(recovered)).
			Int("permanently_failed", len(failed)).
			Msg("Drained retry queue")
	}

	return recovered, failed
}
