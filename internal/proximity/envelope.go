// Package proximity discards catalog objects that cannot come near a flight
// before the expensive time-correlated analysis runs.
package proximity

import (
	"math"

	"github.com/jjcapestany/space-trace/internal/flight"
	"github.com/jjcapestany/space-trace/internal/geo"
)

// Envelope margins around a flight.
const (
	MarginDeg    = 2.0
	AltMarginKm  = 200.0
	minAltitudeM = 0.0
)

// Envelope is an inclusive latitude/longitude/altitude box. Longitude does
// not wrap at the antimeridian.
type Envelope struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
	MinAlt, MaxAlt float64 // meters
}

// EnvelopeFor returns the box spanning the flight's start and end points
// widened by MarginDeg, from the ground up to MaxAltitudeKm+AltMarginKm.
func EnvelopeFor(p flight.Plan) Envelope {
	return Envelope{
		MinLat: math.Min(p.StartLat, p.EndLat) - MarginDeg,
		MaxLat: math.Max(p.StartLat, p.EndLat) + MarginDeg,
		MinLon: math.Min(p.StartLon, p.EndLon) - MarginDeg,
		MaxLon: math.Max(p.StartLon, p.EndLon) + MarginDeg,
		MinAlt: minAltitudeM,
		MaxAlt: (p.MaxAltitudeKm + AltMarginKm) * 1000.0,
	}
}

// Contains reports whether pos lies inside the envelope, bounds included.
func (e Envelope) Contains(pos geo.Position) bool {
	return pos.Lat >= e.MinLat && pos.Lat <= e.MaxLat &&
		pos.Lon >= e.MinLon && pos.Lon <= e.MaxLon &&
		pos.Alt >= e.MinAlt && pos.Alt <= e.MaxAlt
}
