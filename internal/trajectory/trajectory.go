// Package trajectory samples a flight plan into an ordered sequence of
// positions.
//
// The ground track interpolates latitude and longitude linearly in degree
// space, not along a geodesic, and does not wrap at the antimeridian.
// Altitude follows a single sine hump, maxAltitude*sin(f*π), that peaks at
// the time midpoint whatever the flight's duration.
package trajectory

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jjcapestany/space-trace/internal/flight"
	"github.com/jjcapestany/space-trace/internal/geo"
)

// DefaultSamples is the resolution used for safety and conflict analysis.
const DefaultSamples = 100

// ErrSampleCount is returned for a sample count below 2.
var ErrSampleCount = errors.New("sample count must be at least 2")

// Point is one trajectory position with its absolute time.
type Point struct {
	Position geo.Position `json:"position"`
	Time     time.Time    `json:"time"`
}

// Sample returns n time-stamped points from launch to landing inclusive.
func Sample(p flight.Plan, n int) ([]Point, error) {
	if err := check(p, n); err != nil {
		return nil, err
	}
	out := make([]Point, n)
	for i := range n {
		f := fraction(i, n)
		out[i] = Point{Position: pointAt(p, f), Time: timeAt(p, f)}
	}
	return out, nil
}

// Path returns n positions from launch to landing inclusive, using the same
// interpolation as Sample.
func Path(p flight.Plan, n int) ([]geo.Position, error) {
	if err := check(p, n); err != nil {
		return nil, err
	}
	out := make([]geo.Position, n)
	for i := range n {
		out[i] = pointAt(p, fraction(i, n))
	}
	return out, nil
}

func check(p flight.Plan, n int) error {
	if n < 2 {
		return fmt.Errorf("%w: got %d", ErrSampleCount, n)
	}
	return p.CheckGeometry()
}

func fraction(i, n int) float64 {
	return float64(i) / float64(n-1)
}

func pointAt(p flight.Plan, f float64) geo.Position {
	return geo.Position{
		Lat: p.StartLat + f*(p.EndLat-p.StartLat),
		Lon: p.StartLon + f*(p.EndLon-p.StartLon),
		Alt: p.MaxAltitudeKm * 1000.0 * math.Sin(f*math.Pi),
	}
}

func timeAt(p flight.Plan, f float64) time.Time {
	if f >= 1 {
		return p.Landing
	}
	return p.Launch.Add(time.Duration(math.Round(f * float64(p.Duration()))))
}
