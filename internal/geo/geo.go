// Package geo holds the geodetic value type shared by the propagation,
// trajectory and analysis packages, plus the separation model used for
// every proximity decision.
//
// Separation model: great-circle horizontal distance on a spherical Earth
// (haversine, R = 6371 km) combined with the altitude difference as if the
// two components were orthogonal. This is not a true Cartesian 3D distance;
// the error grows with altitude but stays small for the ranges compared here.
package geo

import "math"

// EarthRadiusKm is the mean spherical Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// Position is a geodetic location. Latitude and longitude are decimal
// degrees, altitude is meters above the surface.
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"altitude"`
}

// IsFinite reports whether every component is a finite number.
func (p Position) IsFinite() bool {
	return finite(p.Lat) && finite(p.Lon) && finite(p.Alt)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// HaversineKm returns the great-circle distance between a and b in km,
// ignoring altitude.
func HaversineKm(a, b Position) float64 {
	lat1 := a.Lat * math.Pi / 180.0
	lat2 := b.Lat * math.Pi / 180.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180.0
	dLon := (b.Lon - a.Lon) * math.Pi / 180.0

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon

	// Rounding can push h marginally past 1 for antipodal points.
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// SeparationKm returns the combined horizontal/vertical separation in km:
// sqrt(haversine² + (Δalt/1000)²).
func SeparationKm(a, b Position) float64 {
	horizontal := HaversineKm(a, b)
	vertical := (a.Alt - b.Alt) / 1000.0
	return math.Sqrt(horizontal*horizontal + vertical*vertical)
}

// Midpoint returns the component-wise average of a and b.
// Longitudes are averaged without antimeridian wrapping.
func Midpoint(a, b Position) Position {
	return Position{
		Lat: (a.Lat + b.Lat) / 2,
		Lon: (a.Lon + b.Lon) / 2,
		Alt: (a.Alt + b.Alt) / 2,
	}
}
