package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/queryflow/pkg/queryflow"
)

// BatchResult is the outcome of one prompt in a batch. Exactly one of
// Result and Err is set.
type BatchResult struct {
	Index  int               `json:"index"`
	Prompt string            `json:"prompt"`
	Result *queryflow.Result `json:"result,omitempty"`
	Err    error             `json:"-"`
}

// RunBatch runs every prompt with at most concurrency runs in flight.
// Runs are independent: a failed run does not stop the others. Results are
// returned in prompt order.
func (r *Runner) RunBatch(ctx context.Context, prompts []string, concurrency int) []BatchResult {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]BatchResult, len(prompts))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, prompt := range prompts {
		g.Go(func() error {
			res, err := r.Run(ctx, Request{Prompt: prompt})
			if err != nil {
				r.logger.Error("batch run failed", "index", i, "error", err)
			}
			results[i] = BatchResult{Index: i, Prompt: prompt, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
