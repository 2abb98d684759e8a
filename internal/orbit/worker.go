package orbit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jjcapestany/space-trace/internal/geo"
	"github.com/jjcapestany/space-trace/internal/transform"
)

// ObjectPosition is one object's resolved position in a batch.
type ObjectPosition struct {
	Index    int // position of the object in the batch input
	NORADID  int
	Position geo.Position
}

type propagateJob struct {
	index  int
	object Object
}

type propagateResult struct {
	pos ObjectPosition
	err error
}

// WorkerPool propagates batches of objects to one instant on a fixed number
// of goroutines.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a pool with the given number of workers (minimum 1).
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{workers: workers, logger: logger}
}

// Workers returns the pool size.
func (wp *WorkerPool) Workers() int {
	return wp.workers
}

// PropagateBatch resolves every object at t. It returns the successful
// positions in input order plus success and error counts. Failures are
// logged at debug and skipped. Cancelling ctx stops the batch early.
func (wp *WorkerPool) PropagateBatch(ctx context.Context, objects []Object, t time.Time) ([]ObjectPosition, int, int) {
	if len(objects) == 0 {
		return nil, 0, 0
	}

	t = t.UTC()
	gmst := transform.GMST(t)

	jobs := make(chan propagateJob, wp.workers*2)
	results := make(chan propagateResult, wp.workers*2)

	var wg sync.WaitGroup
	for range wp.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				pos, err := job.object.Record.propagateWithGMST(t, gmst)
				res := propagateResult{
					pos: ObjectPosition{Index: job.index, NORADID: job.object.NORADID, Position: pos},
					err: err,
				}
				select {
				case results <- res:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, obj := range objects {
			select {
			case jobs <- propagateJob{index: i, object: obj}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Slot per input so output order matches input order.
	slots := make([]*ObjectPosition, len(objects))
	var successCount, errorCount int
	for res := range results {
		if res.err != nil {
			errorCount++
			wp.logger.Debug("propagation failed", "norad_id", res.pos.NORADID, "error", res.err)
			continue
		}
		successCount++
		p := res.pos
		slots[p.Index] = &p
	}

	positions := make([]ObjectPosition, 0, successCount)
	for _, p := range slots {
		if p != nil {
			positions = append(positions, *p)
		}
	}
	return positions, successCount, errorCount
}
