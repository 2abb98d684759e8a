// Package flight defines the planned flight value consumed by the trajectory,
// safety and conflict packages.
package flight

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jjcapestany/space-trace/internal/geo"
)

// ErrInvalidGeometry is returned when a plan's trajectory is undefined:
// landing not after launch, or a non-finite coordinate or altitude.
var ErrInvalidGeometry = errors.New("invalid flight geometry")

// Plan is a planned sub-orbital flight. JSON field names match the
// registration API.
type Plan struct {
	ID            int64     `json:"id"`
	Name          string    `json:"flightName"`
	StartLat      float64   `json:"startingLatitude"`
	StartLon      float64   `json:"startingLongitude"`
	EndLat        float64   `json:"endingLatitude"`
	EndLon        float64   `json:"endingLongitude"`
	Launch        time.Time `json:"launchDateAndTime"`
	Landing       time.Time `json:"landingDateAndTime"`
	MaxAltitudeKm float64   `json:"maxAltitude"`
	CraftModel    string    `json:"modelOfSpaceCraft"`
}

// Start returns the launch site at ground level.
func (p Plan) Start() geo.Position {
	return geo.Position{Lat: p.StartLat, Lon: p.StartLon}
}

// End returns the landing site at ground level.
func (p Plan) End() geo.Position {
	return geo.Position{Lat: p.EndLat, Lon: p.EndLon}
}

// Duration is the time from launch to landing.
func (p Plan) Duration() time.Duration {
	return p.Landing.Sub(p.Launch)
}

// CheckGeometry returns an error wrapping ErrInvalidGeometry when the plan's
// trajectory cannot be sampled. Business rules such as altitude positivity
// belong to the registration layer and are not checked here.
func (p Plan) CheckGeometry() error {
	if !p.Landing.After(p.Launch) {
		return fmt.Errorf("flight %d: landing %s not after launch %s: %w",
			p.ID, p.Landing.UTC().Format(time.RFC3339), p.Launch.UTC().Format(time.RFC3339), ErrInvalidGeometry)
	}
	if !p.Start().IsFinite() || !p.End().IsFinite() {
		return fmt.Errorf("flight %d: non-finite coordinates: %w", p.ID, ErrInvalidGeometry)
	}
	if math.IsNaN(p.MaxAltitudeKm) || math.IsInf(p.MaxAltitudeKm, 0) {
		return fmt.Errorf("flight %d: non-finite max altitude: %w", p.ID, ErrInvalidGeometry)
	}
	return nil
}
