// Package safety computes time-correlated closest approaches between a
// flight and catalog objects and assembles them into a report.
package safety

import (
	"context"
	"math"
	"time"

	"github.com/jjcapestany/space-trace/internal/flight"
	"github.com/jjcapestany/space-trace/internal/geo"
	"github.com/jjcapestany/space-trace/internal/orbit"
	"github.com/jjcapestany/space-trace/internal/trajectory"
)

// Warning is one catalog object's closest approach to a flight.
type Warning struct {
	ObjectName        string       `json:"satelliteName"`
	NORADID           int          `json:"noradId"`
	ClosestDistanceKm float64      `json:"closestDistance"`
	TimeOfApproach    time.Time    `json:"timeOfClosestApproach"`
	FlightPosition    geo.Position `json:"flightPosition"`
	ObjectPosition    geo.Position `json:"satellitePosition"`
	Severity          Severity     `json:"severity"`
}

// Analyze samples the flight, finds each candidate's closest approach and
// returns the resulting report. Invalid flight geometry is returned as an
// error wrapping flight.ErrInvalidGeometry, never as a safe report.
func Analyze(ctx context.Context, p flight.Plan, candidates []orbit.Object) (*Report, error) {
	warnings, err := ClosestApproaches(ctx, p, candidates)
	if err != nil {
		return nil, err
	}
	return BuildReport(p.ID, p.Name, len(candidates), warnings, time.Now()), nil
}

// ClosestApproaches returns a Warning for every candidate whose minimum
// separation from the flight is below WarningThresholdKm, in candidate order.
func ClosestApproaches(ctx context.Context, p flight.Plan, candidates []orbit.Object) ([]Warning, error) {
	samples, err := trajectory.Sample(p, trajectory.DefaultSamples)
	if err != nil {
		return nil, err
	}

	var warnings []Warning
	for _, obj := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if w, ok := closestApproach(samples, obj); ok {
			warnings = append(warnings, w)
		}
	}
	return warnings, nil
}

// closestApproach propagates obj to every sample time. Samples where
// propagation fails are skipped; an object with no usable sample is not
// reported.
func closestApproach(samples []trajectory.Point, obj orbit.Object) (Warning, bool) {
	flightPath := make([]geo.Position, 0, len(samples))
	objectPath := make([]geo.Position, 0, len(samples))
	times := make([]time.Time, 0, len(samples))

	for _, s := range samples {
		pos, err := obj.Record.Propagate(s.Time)
		if err != nil {
			continue
		}
		flightPath = append(flightPath, s.Position)
		objectPath = append(objectPath, pos)
		times = append(times, s.Time)
	}

	i, km := MinSeparation(flightPath, objectPath)
	if i < 0 || km >= WarningThresholdKm {
		return Warning{}, false
	}

	return Warning{
		ObjectName:        obj.Name,
		NORADID:           obj.NORADID,
		ClosestDistanceKm: km,
		TimeOfApproach:    times[i],
		FlightPosition:    flightPath[i],
		ObjectPosition:    objectPath[i],
		Severity:          Classify(km),
	}, true
}

// MinSeparation returns the index and separation of the closest pair
// a[i], b[i] over two aligned sequences. The first minimum wins ties.
// It returns -1 when there is no pair to compare.
func MinSeparation(a, b []geo.Position) (int, float64) {
	n := min(len(a), len(b))
	best, bestKm := -1, math.Inf(1)
	for i := range n {
		if d := geo.SeparationKm(a[i], b[i]); d < bestKm {
			best, bestKm = i, d
		}
	}
	return best, bestKm
}
