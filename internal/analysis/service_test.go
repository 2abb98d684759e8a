package analysis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjcapestany/space-trace/internal/flight"
	"github.com/jjcapestany/space-trace/internal/orbit"
	"github.com/jjcapestany/space-trace/internal/proximity"
	"github.com/jjcapestany/space-trace/internal/registry"
	"github.com/jjcapestany/space-trace/internal/safety"
	"github.com/jjcapestany/space-trace/internal/tle"
)

const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testPlan(name string) flight.Plan {
	launch := time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)
	return flight.Plan{
		Name:          name,
		StartLat:      31.42,
		StartLon:      -104.76,
		EndLat:        31.42,
		EndLon:        -104.76,
		Launch:        launch,
		Landing:       launch.Add(660 * time.Second),
		MaxAltitudeKm: 107,
		CraftModel:    "New Shepard",
	}
}

type fixture struct {
	svc     *Service
	flights *registry.MemoryStore
	tles    *tle.Store
}

func newFixture(t *testing.T, cfg Config) fixture {
	t.Helper()
	logger := testLogger()
	tles := tle.NewStore()
	tles.Set(tle.NewDataset("test", time.Now(), []tle.TLEEntry{
		{NORADID: 25544, Name: "ISS (ZARYA)", Line1: issLine1, Line2: issLine2},
	}))
	flights := registry.NewMemoryStore()
	svc := NewService(
		tles,
		orbit.NewRecordCache(logger),
		proximity.NewIndex(orbit.NewWorkerPool(2, logger), logger),
		flights,
		cfg,
		logger,
	)
	return fixture{svc: svc, flights: flights, tles: tles}
}

func (f fixture) register(t *testing.T, p flight.Plan) int64 {
	t.Helper()
	r, err := f.flights.Create(context.Background(), p)
	require.NoError(t, err)
	return r.ID
}

// pausingStore runs a hook after the first List or Get has read from the
// wrapped store, standing in for a slow database round trip.
type pausingStore struct {
	registry.Store
	afterList func()
	afterGet  func()
	lists     atomic.Int32
	gets      atomic.Int32
}

func (s *pausingStore) List(ctx context.Context) ([]registry.Registration, error) {
	regs, err := s.Store.List(ctx)
	if s.lists.Add(1) == 1 && s.afterList != nil {
		s.afterList()
	}
	return regs, err
}

func (s *pausingStore) Get(ctx context.Context, id int64) (registry.Registration, error) {
	reg, err := s.Store.Get(ctx, id)
	if s.gets.Add(1) == 1 && s.afterGet != nil {
		s.afterGet()
	}
	return reg, err
}

func TestAnalyzePublishesReport(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	id := f.register(t, testPlan("NS-25"))

	_, ok := f.svc.Report(id)
	assert.False(t, ok)

	report, err := f.svc.Analyze(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, report.FlightID)
	assert.Equal(t, "NS-25", report.FlightName)
	assert.NotNil(t, report.Warnings)

	got, ok := f.svc.Report(id)
	require.True(t, ok)
	assert.Same(t, report, got)
}

func TestAnalyzeErrors(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	_, err := f.svc.Analyze(context.Background(), 42)
	assert.ErrorIs(t, err, registry.ErrNotFound)

	id := f.register(t, testPlan("x"))
	f.tles.Set(nil)
	_, err = f.svc.Analyze(context.Background(), id)
	assert.ErrorIs(t, err, ErrNoDataset)
}

func TestAnalyzeSupersedesInFlight(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	id := f.register(t, testPlan("x"))

	started := make(chan struct{})
	calls := 0
	f.svc.analyze = func(ctx context.Context, p flight.Plan, _ *tle.TLEDataset) (*safety.Report, error) {
		calls++
		if calls == 1 {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return safety.BuildReport(p.ID, "second", 0, nil, time.Now()), nil
	}

	firstErr := make(chan error, 1)
	go func() {
		_, err := f.svc.Analyze(context.Background(), id)
		firstErr <- err
	}()
	<-started

	second, err := f.svc.Analyze(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "second", second.FlightName)

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("first analysis was not cancelled")
	}

	got, ok := f.svc.Report(id)
	require.True(t, ok)
	assert.Equal(t, "second", got.FlightName)
}

func TestAnalyzeStaleResultNotPublished(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	id := f.register(t, testPlan("x"))

	started := make(chan struct{})
	release := make(chan struct{})
	calls := 0
	f.svc.analyze = func(_ context.Context, p flight.Plan, _ *tle.TLEDataset) (*safety.Report, error) {
		calls++
		if calls == 1 {
			// Ignores cancellation and finishes late.
			close(started)
			<-release
			return safety.BuildReport(p.ID, "stale", 0, nil, time.Now()), nil
		}
		return safety.BuildReport(p.ID, "fresh", 0, nil, time.Now()), nil
	}

	firstErr := make(chan error, 1)
	go func() {
		_, err := f.svc.Analyze(context.Background(), id)
		firstErr <- err
	}()
	<-started

	_, err := f.svc.Analyze(context.Background(), id)
	require.NoError(t, err)
	close(release)

	assert.ErrorIs(t, <-firstErr, ErrSuperseded)
	got, ok := f.svc.Report(id)
	require.True(t, ok)
	assert.Equal(t, "fresh", got.FlightName)
}

func TestAnalyzeTimeout(t *testing.T) {
	f := newFixture(t, Config{Timeout: 20 * time.Millisecond, Parallelism: 1})
	id := f.register(t, testPlan("x"))

	f.svc.analyze = func(ctx context.Context, _ flight.Plan, _ *tle.TLEDataset) (*safety.Report, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := f.svc.Analyze(context.Background(), id)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrSuperseded)
	_, ok := f.svc.Report(id)
	assert.False(t, ok)
}

func TestAnalyzeAll(t *testing.T) {
	f := newFixture(t, Config{Timeout: time.Minute, Parallelism: 2})
	a := f.register(t, testPlan("a"))
	b := f.register(t, testPlan("b"))
	hidden := f.register(t, testPlan("hidden"))
	_, err := f.flights.SetVisible(context.Background(), hidden, false)
	require.NoError(t, err)

	boom := errors.New("boom")
	f.svc.analyze = func(_ context.Context, p flight.Plan, _ *tle.TLEDataset) (*safety.Report, error) {
		if p.ID == b {
			return nil, boom
		}
		return safety.BuildReport(p.ID, p.Name, 0, nil, time.Now()), nil
	}

	reports, err := f.svc.AnalyzeAll(context.Background())
	assert.ErrorIs(t, err, boom)
	require.Len(t, reports, 1)
	assert.Equal(t, a, reports[0].FlightID)

	_, ok := f.svc.Report(hidden)
	assert.False(t, ok, "hidden flights are not analyzed")
}

func TestRefreshConflicts(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	snap := f.svc.Conflicts()
	assert.Zero(t, snap.Version)
	assert.Empty(t, snap.Conflicts)

	a := f.register(t, testPlan("a"))
	b := f.register(t, testPlan("b"))

	snap, err := f.svc.RefreshConflicts(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Version)
	require.Len(t, snap.Conflicts, 1)
	assert.Equal(t, a, snap.Conflicts[0].FlightA)
	assert.Equal(t, b, snap.Conflicts[0].FlightB)
	assert.NotEmpty(t, snap.Conflicts[0].Points)

	_, err = f.flights.SetVisible(ctx, b, false)
	require.NoError(t, err)
	require.NoError(t, f.svc.FlightChanged(ctx, b))

	snap = f.svc.Conflicts()
	assert.Equal(t, uint64(2), snap.Version)
	assert.Equal(t, uint64(2), f.svc.ConflictVersion())
	assert.Empty(t, snap.Conflicts)
}

// A scan that read the registry before a delete must not overwrite the
// snapshot published by the scan the delete triggered.
func TestRefreshConflictsDiscardsStaleScan(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	f.register(t, testPlan("a"))
	b := f.register(t, testPlan("b"))

	listed := make(chan struct{})
	release := make(chan struct{})
	f.svc.flights = &pausingStore{Store: f.flights, afterList: func() {
		close(listed)
		<-release
	}}

	type result struct {
		snap ConflictSnapshot
		err  error
	}
	stale := make(chan result, 1)
	go func() {
		snap, err := f.svc.RefreshConflicts(ctx)
		stale <- result{snap, err}
	}()
	<-listed

	require.NoError(t, f.flights.Delete(ctx, b))
	require.NoError(t, f.svc.FlightChanged(ctx, b))
	fresh := f.svc.Conflicts()
	assert.Equal(t, uint64(1), fresh.Version)
	assert.Empty(t, fresh.Conflicts)

	close(release)
	got := <-stale
	require.NoError(t, got.err)
	assert.Equal(t, fresh.Version, got.snap.Version)
	assert.Empty(t, got.snap.Conflicts)

	snap := f.svc.Conflicts()
	assert.Equal(t, uint64(1), snap.Version)
	assert.Empty(t, snap.Conflicts, "deleted flight must not reappear")
}

func TestFlightChangedIgnoresCallerCancellation(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.register(t, testPlan("a"))
	b := f.register(t, testPlan("b"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, f.svc.FlightChanged(ctx, b))

	snap := f.svc.Conflicts()
	assert.Equal(t, uint64(1), snap.Version)
	assert.Len(t, snap.Conflicts, 1)
}

// An edit landing after Analyze read the registration supersedes the run.
func TestAnalyzeEditDuringRead(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	id := f.register(t, testPlan("original"))

	read := make(chan struct{})
	release := make(chan struct{})
	f.svc.flights = &pausingStore{Store: f.flights, afterGet: func() {
		close(read)
		<-release
	}}
	f.svc.analyze = func(_ context.Context, p flight.Plan, _ *tle.TLEDataset) (*safety.Report, error) {
		return safety.BuildReport(p.ID, p.Name, 0, nil, time.Now()), nil
	}

	firstErr := make(chan error, 1)
	go func() {
		_, err := f.svc.Analyze(ctx, id)
		firstErr <- err
	}()
	<-read

	_, err := f.flights.Update(ctx, id, testPlan("renamed"))
	require.NoError(t, err)
	require.NoError(t, f.svc.FlightChanged(ctx, id))
	close(release)

	assert.ErrorIs(t, <-firstErr, ErrSuperseded)
	_, ok := f.svc.Report(id)
	assert.False(t, ok, "report from the old plan must not be published")

	report, err := f.svc.Analyze(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "renamed", report.FlightName)
}

func TestFlightChangedDropsReport(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	id := f.register(t, testPlan("x"))

	_, err := f.svc.Analyze(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, f.svc.FlightChanged(context.Background(), id))

	_, ok := f.svc.Report(id)
	assert.False(t, ok)
}

func TestTrajectory(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	id := f.register(t, testPlan("x"))

	samples, err := f.svc.Trajectory(context.Background(), id, 11)
	require.NoError(t, err)
	require.Len(t, samples, 11)
	assert.InDelta(t, 107000, samples[5].Position.Alt, 1e-6)

	_, err = f.svc.Trajectory(context.Background(), id+1, 11)
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestPropagate(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	at := time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)

	obj, pos, err := f.svc.Propagate(25544, at)
	require.NoError(t, err)
	assert.Equal(t, "ISS (ZARYA)", obj.Name)
	assert.Greater(t, pos.Alt, 300_000.0)

	_, _, err = f.svc.Propagate(1, at)
	assert.ErrorIs(t, err, ErrUnknownObject)

	f.tles.Set(nil)
	_, _, err = f.svc.Propagate(25544, at)
	assert.ErrorIs(t, err, ErrNoDataset)
}
