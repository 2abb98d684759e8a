// Package transform converts SGP4 output into Earth-fixed and geodetic
// coordinates.
//
// TEME to ECEF uses a GMST-only rotation about the Z axis. Polar motion and
// the equation of the equinoxes are ignored, which costs tens of meters at
// most; proximity thresholds here are measured in kilometers.
package transform

import (
	"math"
	"time"
)

// Plausible geocentric radius bounds for a tracked object, in km.
const (
	MinOrbitRadiusKm = 6200.0
	MaxOrbitRadiusKm = 50000.0
)

// PositionTEME is an SGP4 position in the True Equator Mean Equinox frame, km.
type PositionTEME struct {
	X, Y, Z float64
}

// PositionECEF is an Earth-Centered Earth-Fixed position, meters.
type PositionECEF struct {
	X, Y, Z float64
}

// RadiusKm returns the geocentric distance in km.
func (p PositionTEME) RadiusKm() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// RadiusM returns the geocentric distance in meters.
func (p PositionECEF) RadiusM() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// TEMEToECEF rotates a TEME position into ECEF at UTC instant t.
func TEMEToECEF(teme PositionTEME, t time.Time) PositionECEF {
	return TEMEToECEFWithGMST(teme, GMST(t))
}

// TEMEToECEFWithGMST applies r_ECEF = R3(gmst) * r_TEME and converts km to
// meters. Use it when many objects share one instant.
func TEMEToECEFWithGMST(teme PositionTEME, gmst float64) PositionECEF {
	c, s := math.Cos(gmst), math.Sin(gmst)
	return PositionECEF{
		X: (teme.X*c + teme.Y*s) * 1000.0,
		Y: (-teme.X*s + teme.Y*c) * 1000.0,
		Z: teme.Z * 1000.0,
	}
}

// ValidateECEF reports whether pos is finite and within the plausible
// orbit radius band.
func ValidateECEF(pos PositionECEF) bool {
	for _, v := range [3]float64{pos.X, pos.Y, pos.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	r := pos.RadiusM() / 1000.0
	return r >= MinOrbitRadiusKm && r <= MaxOrbitRadiusKm
}
