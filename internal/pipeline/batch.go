package pipeline

import (
	"context"

	"part-identifier/internal/logger"

	"golang.org/x/sync/errgroup"
)

// BatchItem is the outcome for one request. Err is set when the run failed;
// Result may still be set for recognition failures.
type BatchItem struct {
	Request Request
	Result  *Result
	Err     error
}

// Batch runs independent requests through one Coordinator with bounded
// parallelism. A failed image never stops the others.
type Batch struct {
	coordinator *Coordinator
	workers     int
	logger      logger.Logger
}

func NewBatch(c *Coordinator, workers int, log logger.Logger) *Batch {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Batch{coordinator: c, workers: workers, logger: log}
}

// Run returns one item per request, in request order. Requests not started
// before ctx is cancelled carry ctx.Err().
func (b *Batch) Run(ctx context.Context, reqs []Request) []BatchItem {
	items := make([]BatchItem, len(reqs))

	var g errgroup.Group
	g.SetLimit(b.workers)

	for i, req := range reqs {
		items[i].Request = req
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				items[i].Err = err
				return nil
			}
			items[i].Result, items[i].Err = b.coordinator.Run(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, it := range items {
		if it.Err != nil {
			failed++
		}
	}
	b.logger.Info("Batch", "batch completed", map[string]interface{}{
		"images":  len(reqs),
		"failed":  failed,
		"workers": b.workers,
	})

	return items
}
