// Package analysis runs safety analyses and conflict scans for registered
// flights against the current TLE dataset.
//
// A new analysis for a flight cancels the one already running for it, and
// only the latest request's report is ever published.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jjcapestany/space-trace/internal/conflict"
	"github.com/jjcapestany/space-trace/internal/flight"
	"github.com/jjcapestany/space-trace/internal/geo"
	"github.com/jjcapestany/space-trace/internal/metrics"
	"github.com/jjcapestany/space-trace/internal/orbit"
	"github.com/jjcapestany/space-trace/internal/proximity"
	"github.com/jjcapestany/space-trace/internal/registry"
	"github.com/jjcapestany/space-trace/internal/safety"
	"github.com/jjcapestany/space-trace/internal/tle"
	"github.com/jjcapestany/space-trace/internal/trajectory"
)

const tracerName = "github.com/jjcapestany/space-trace/internal/analysis"

var (
	// ErrSuperseded is returned when a newer analysis for the same flight
	// replaced this one.
	ErrSuperseded = errors.New("analysis superseded by a newer request")

	// ErrNoDataset is returned before the first TLE dataset is loaded.
	ErrNoDataset = errors.New("no TLE dataset loaded")

	// ErrUnknownObject is returned for a catalog number not in the dataset.
	ErrUnknownObject = errors.New("object not in catalog")
)

// Config tunes the service.
type Config struct {
	Timeout     time.Duration // per-flight analysis deadline
	Parallelism int           // flights analyzed at once by AnalyzeAll
}

// DefaultConfig returns a 60 s timeout and one flight per CPU.
func DefaultConfig() Config {
	return Config{Timeout: 60 * time.Second, Parallelism: runtime.NumCPU()}
}

// ConflictSnapshot is the latest conflict scan. Version increases with
// every published scan.
type ConflictSnapshot struct {
	Version    uint64              `json:"version"`
	ComputedAt time.Time           `json:"computedAt"`
	Conflicts  []conflict.Conflict `json:"conflicts"`
}

type inflight struct {
	gen    uint64
	cancel context.CancelCauseFunc
}

type analyzeFunc func(ctx context.Context, p flight.Plan, ds *tle.TLEDataset) (*safety.Report, error)

// Service coordinates analyses over shared, immutable snapshots.
type Service struct {
	tles    *tle.Store
	records *orbit.RecordCache
	index   *proximity.Index
	flights registry.Store
	cfg     Config
	logger  *slog.Logger
	tracer  trace.Tracer

	analyze analyzeFunc

	mu      sync.Mutex
	gen     uint64
	running map[int64]inflight
	reports map[int64]*safety.Report

	conflictMu    sync.RWMutex
	conflicts     ConflictSnapshot
	scanGen       uint64 // scans started
	publishedScan uint64 // generation of the scan behind conflicts
}

// NewService wires a Service.
func NewService(tles *tle.Store, records *orbit.RecordCache, index *proximity.Index, flights registry.Store, cfg Config, logger *slog.Logger) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	s := &Service{
		tles:    tles,
		records: records,
		index:   index,
		flights: flights,
		cfg:     cfg,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
		running: make(map[int64]inflight),
		reports: make(map[int64]*safety.Report),
		conflicts: ConflictSnapshot{
			Conflicts: []conflict.Conflict{},
		},
	}
	s.analyze = s.analyzePlan
	return s
}

// Analyze runs a safety analysis for the registered flight id and publishes
// the report. Any analysis already running for id is cancelled and returns
// ErrSuperseded.
func (s *Service) Analyze(ctx context.Context, id int64) (*safety.Report, error) {
	runCtx, cancel := context.WithCancelCause(ctx)
	s.mu.Lock()
	if prev, ok := s.running[id]; ok {
		prev.cancel(ErrSuperseded)
	}
	s.gen++
	gen := s.gen
	s.running[id] = inflight{gen: gen, cancel: cancel}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if cur, ok := s.running[id]; ok && cur.gen == gen {
			delete(s.running, id)
		}
		s.mu.Unlock()
		cancel(nil)
	}()

	// Registered before the read, so an edit landing after it cancels this run.
	reg, err := s.flights.Get(runCtx, id)
	if err != nil {
		if errors.Is(context.Cause(runCtx), ErrSuperseded) {
			return nil, ErrSuperseded
		}
		return nil, err
	}
	ds := s.tles.Get()
	if ds == nil {
		return nil, ErrNoDataset
	}

	timeoutCtx, cancelTimeout := context.WithTimeout(runCtx, s.cfg.Timeout)
	defer cancelTimeout()

	spanCtx, span := s.tracer.Start(timeoutCtx, "analysis.Analyze",
		trace.WithAttributes(
			attribute.Int64("flight.id", id),
			attribute.Int("catalog.size", len(ds.Satellites)),
		),
	)
	defer span.End()

	start := time.Now()
	report, err := s.analyze(spanCtx, reg.Plan, ds)
	duration := time.Since(start)

	if err == nil {
		s.mu.Lock()
		// A newer request may have started after the engine finished.
		if cur, ok := s.running[id]; ok && cur.gen == gen {
			s.reports[id] = report
		} else {
			err = ErrSuperseded
		}
		s.mu.Unlock()
	} else if errors.Is(context.Cause(runCtx), ErrSuperseded) {
		err = ErrSuperseded
	}

	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrSuperseded) {
			outcome = "superseded"
		}
		metrics.RecordAnalysis(outcome, duration)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Info("safety analysis not published",
			"flight_id", id,
			"outcome", outcome,
			"error", err,
			"duration_ms", duration.Milliseconds(),
		)
		return nil, err
	}

	metrics.RecordAnalysis(string(report.Status), duration)
	span.SetAttributes(
		attribute.String("report.status", string(report.Status)),
		attribute.Int("report.conflicts", report.ConflictsFound),
	)
	s.logger.Info("safety analysis published",
		"flight_id", id,
		"status", report.Status,
		"candidates", report.TotalObjectsChecked,
		"conflicts_found", report.ConflictsFound,
		"duration_ms", duration.Milliseconds(),
	)
	return report, nil
}

// analyzePlan is the engine pipeline: envelope filter, then closest
// approaches over the survivors.
func (s *Service) analyzePlan(ctx context.Context, p flight.Plan, ds *tle.TLEDataset) (*safety.Report, error) {
	if err := p.CheckGeometry(); err != nil {
		return nil, err
	}
	cat := s.records.Catalog(ds)

	ctx, span := s.tracer.Start(ctx, "analysis.candidates")
	candidates, err := s.index.Candidates(ctx, cat.Objects, p)
	span.SetAttributes(attribute.Int("candidates", len(candidates)))
	span.End()
	if err != nil {
		return nil, err
	}
	return safety.Analyze(ctx, p, candidates)
}

// Report returns the latest published report for id.
func (s *Service) Report(id int64) (*safety.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	return r, ok
}

// AnalyzeAll analyzes every visible flight, at most cfg.Parallelism at a
// time. Reports come back in flight id order; flights that failed are left
// out and their errors joined into the returned error.
func (s *Service) AnalyzeAll(ctx context.Context) ([]*safety.Report, error) {
	regs, err := s.flights.List(ctx)
	if err != nil {
		return nil, err
	}
	plans := registry.VisiblePlans(regs)

	results := make([]*safety.Report, len(plans))
	errs := make([]error, len(plans))

	var g errgroup.Group
	g.SetLimit(s.cfg.Parallelism)
	for i, p := range plans {
		g.Go(func() error {
			r, err := s.Analyze(ctx, p.ID)
			if err != nil {
				errs[i] = fmt.Errorf("flight %d: %w", p.ID, err)
				return nil
			}
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()

	reports := make([]*safety.Report, 0, len(plans))
	for _, r := range results {
		if r != nil {
			reports = append(reports, r)
		}
	}
	return reports, errors.Join(errs...)
}

// FlightChanged drops state held for id after its registration was edited,
// hidden or deleted, then rescans conflicts. The rescan is detached from
// ctx cancellation and bounded by the analysis timeout.
func (s *Service) FlightChanged(ctx context.Context, id int64) error {
	s.mu.Lock()
	if cur, ok := s.running[id]; ok {
		cur.cancel(ErrSuperseded)
		delete(s.running, id)
	}
	delete(s.reports, id)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	defer cancel()
	_, err := s.RefreshConflicts(ctx)
	return err
}

// RefreshConflicts rescans conflicts among visible flights and publishes a
// new snapshot. Flights with invalid geometry are skipped and logged. A scan
// that finishes after a later-started scan has published is discarded and
// the current snapshot returned.
func (s *Service) RefreshConflicts(ctx context.Context) (ConflictSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "analysis.RefreshConflicts")
	defer span.End()

	s.conflictMu.Lock()
	s.scanGen++
	gen := s.scanGen
	s.conflictMu.Unlock()

	regs, err := s.flights.List(ctx)
	if err != nil {
		span.RecordError(err)
		return ConflictSnapshot{}, err
	}
	metrics.SetRegisteredFlights(len(regs))
	plans := registry.VisiblePlans(regs)

	start := time.Now()
	found, err := conflict.Detect(ctx, plans)
	if err != nil && ctx.Err() != nil {
		span.RecordError(err)
		return ConflictSnapshot{}, err
	}
	if err != nil {
		s.logger.Warn("conflict scan skipped flights", "error", err)
	}
	duration := time.Since(start)
	metrics.RecordConflictScan(duration, len(found))
	if found == nil {
		found = []conflict.Conflict{}
	}

	s.conflictMu.Lock()
	if gen < s.publishedScan {
		snap, published := s.conflicts, s.publishedScan
		s.conflictMu.Unlock()
		span.SetAttributes(attribute.Bool("discarded", true))
		s.logger.Debug("stale conflict scan discarded",
			"scan", gen,
			"published_scan", published,
			"version", snap.Version,
		)
		return snap, nil
	}
	s.publishedScan = gen
	s.conflicts = ConflictSnapshot{
		Version:    s.conflicts.Version + 1,
		ComputedAt: time.Now().UTC(),
		Conflicts:  found,
	}
	snap := s.conflicts
	s.conflictMu.Unlock()

	span.SetAttributes(
		attribute.Int("flights", len(plans)),
		attribute.Int("conflicts", len(found)),
	)
	s.logger.Info("conflict scan complete",
		"flights", len(plans),
		"conflicts", len(found),
		"version", snap.Version,
		"duration_ms", duration.Milliseconds(),
	)
	return snap, nil
}

// Conflicts returns the latest conflict snapshot.
func (s *Service) Conflicts() ConflictSnapshot {
	s.conflictMu.RLock()
	defer s.conflictMu.RUnlock()
	return s.conflicts
}

// ConflictVersion returns the latest snapshot's version.
func (s *Service) ConflictVersion() uint64 {
	s.conflictMu.RLock()
	defer s.conflictMu.RUnlock()
	return s.conflicts.Version
}

// Trajectory samples the registered flight id at n points.
func (s *Service) Trajectory(ctx context.Context, id int64, n int) ([]trajectory.Point, error) {
	reg, err := s.flights.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return trajectory.Sample(reg.Plan, n)
}

// Propagate resolves catalog object noradID at t.
func (s *Service) Propagate(noradID int, t time.Time) (orbit.Object, geo.Position, error) {
	ds := s.tles.Get()
	if ds == nil {
		return orbit.Object{}, geo.Position{}, ErrNoDataset
	}
	obj, ok := s.records.Catalog(ds).Lookup(noradID)
	if !ok {
		return orbit.Object{}, geo.Position{}, fmt.Errorf("norad %d: %w", noradID, ErrUnknownObject)
	}
	pos, err := obj.Record.Propagate(t)
	if err != nil {
		return obj, geo.Position{}, err
	}
	return obj, pos, nil
}
