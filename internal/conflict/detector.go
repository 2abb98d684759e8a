// Package conflict finds pairs of planned flights that come within a safe
// separation of each other at roughly the same time.
//
// Each pair is scanned with a first-match policy: for every sample of the
// lower-id flight, only the first sample of the other flight that falls
// inside both the time tolerance and the distance threshold is recorded.
// Exhaustive pairing would report more points for the same pairs.
package conflict

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/jjcapestany/space-trace/internal/flight"
	"github.com/jjcapestany/space-trace/internal/geo"
	"github.com/jjcapestany/space-trace/internal/trajectory"
)

const (
	// TimeTolerance is the largest time offset between two samples that
	// still counts as simultaneous.
	TimeTolerance = 60 * time.Second

	// SafeDistanceKm is the separation below which two samples conflict.
	SafeDistanceKm = 10.0
)

// Point is one conflict location: the midpoint of the two samples, stamped
// with the first flight's sample time.
type Point struct {
	geo.Position
	Time time.Time `json:"time"`
}

// Conflict is a pair of flights with at least one conflict point.
// FlightA is always the lower id.
type Conflict struct {
	FlightA int64   `json:"flight1Id"`
	FlightB int64   `json:"flight2Id"`
	Points  []Point `json:"conflictPoints"`
}

type sampled struct {
	plan    flight.Plan
	samples []trajectory.Point
}

// Detect checks every unordered pair of plans and returns the conflicting
// pairs ordered by (FlightA, FlightB). The result does not depend on input
// order. Plans with invalid geometry are left out and reported through the
// returned error, which joins one flight.ErrInvalidGeometry per plan; the
// conflicts among the remaining plans are still returned.
func Detect(ctx context.Context, plans []flight.Plan) ([]Conflict, error) {
	ordered := slices.Clone(plans)
	slices.SortStableFunc(ordered, func(a, b flight.Plan) int { return cmp.Compare(a.ID, b.ID) })

	var errs []error
	valid := make([]sampled, 0, len(ordered))
	for _, p := range ordered {
		samples, err := trajectory.Sample(p, trajectory.DefaultSamples)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		valid = append(valid, sampled{plan: p, samples: samples})
	}

	var conflicts []Conflict
	for i := range valid {
		for j := i + 1; j < len(valid); j++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if points := scanPair(valid[i].samples, valid[j].samples); len(points) > 0 {
				conflicts = append(conflicts, Conflict{
					FlightA: valid[i].plan.ID,
					FlightB: valid[j].plan.ID,
					Points:  points,
				})
			}
		}
	}
	return conflicts, errors.Join(errs...)
}

func scanPair(first, second []trajectory.Point) []Point {
	var points []Point
	for _, s1 := range first {
		for _, s2 := range second {
			if absDuration(s1.Time.Sub(s2.Time)) > TimeTolerance {
				continue
			}
			if geo.SeparationKm(s1.Position, s2.Position) < SafeDistanceKm {
				points = append(points, Point{Position: geo.Midpoint(s1.Position, s2.Position), Time: s1.Time})
				break
			}
		}
	}
	return points
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
