package proximity

import (
	"context"
	"log/slog"
	"time"

	"github.com/jjcapestany/space-trace/internal/flight"
	"github.com/jjcapestany/space-trace/internal/metrics"
	"github.com/jjcapestany/space-trace/internal/orbit"
)

// Filter returns the objects whose position at t lies inside the flight's
// envelope, in input order. Objects that fail to propagate are dropped.
// This is a single-instant check; closest-approach analysis re-validates
// over the whole flight.
func Filter(objects []orbit.Object, p flight.Plan, t time.Time) []orbit.Object {
	env := EnvelopeFor(p)
	var out []orbit.Object
	for _, obj := range objects {
		pos, err := obj.Record.Propagate(t)
		if err != nil {
			continue
		}
		if env.Contains(pos) {
			out = append(out, obj)
		}
	}
	return out
}

// Index runs the envelope filter over a whole catalog on a worker pool.
type Index struct {
	pool   *orbit.WorkerPool
	logger *slog.Logger
}

// NewIndex creates an Index backed by pool.
func NewIndex(pool *orbit.WorkerPool, logger *slog.Logger) *Index {
	return &Index{pool: pool, logger: logger}
}

// Candidates returns the objects inside p's envelope at p's launch time,
// with the same semantics as Filter. A cancelled ctx yields ctx.Err().
func (ix *Index) Candidates(ctx context.Context, objects []orbit.Object, p flight.Plan) ([]orbit.Object, error) {
	env := EnvelopeFor(p)

	start := time.Now()
	positions, ok, failed := ix.pool.PropagateBatch(ctx, objects, p.Launch)
	duration := time.Since(start)
	metrics.RecordPropagation(duration, ok, failed)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []orbit.Object
	for _, pos := range positions {
		if env.Contains(pos.Position) {
			out = append(out, objects[pos.Index])
		}
	}

	ix.logger.Debug("proximity filter complete",
		"flight_id", p.ID,
		"catalog_size", len(objects),
		"propagation_errors", failed,
		"candidates", len(out),
		"duration_ms", duration.Milliseconds(),
	)
	return out, nil
}
