package transform

import (
	"math"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/jjcapestany/space-trace/internal/geo"
)

func TestJulianDate(t *testing.T) {
	tests := []struct {
		name string
		time time.Time
		want float64
	}{
		{"J2000.0", time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC), 2451545.0},
		{"unix epoch", time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), 2440587.5},
		{"Vallado 3-15", time.Date(2004, 4, 6, 7, 51, 28, 386009000, time.UTC), 2453101.827411875},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := JulianDate(tt.time); math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("JulianDate = %.10f, want %.10f", got, tt.want)
			}
		})
	}
}

// GMST must agree with go-satellite, which uses the same IAU-82 model.
func TestGMSTMatchesLibrary(t *testing.T) {
	times := []time.Time{
		time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC),
		time.Date(2026, 3, 1, 15, 5, 30, 0, time.UTC),
	}

	for _, tm := range times {
		t.Run(tm.Format(time.RFC3339), func(t *testing.T) {
			ours := GMST(tm)
			ref := satellite.GSTimeFromDate(tm.Year(), int(tm.Month()), tm.Day(), tm.Hour(), tm.Minute(), tm.Second())
			if diff := math.Abs(ours - ref); diff > 1e-8 {
				t.Errorf("GMST = %.12f, go-satellite = %.12f (diff %.2e)", ours, ref, diff)
			}
		})
	}
}

func TestTEMEToECEFMatchesLibrary(t *testing.T) {
	tests := []struct {
		name string
		teme PositionTEME
		time time.Time
	}{
		{"Vallado 3-15", PositionTEME{X: 5094.18016, Y: 6127.64465, Z: 6380.34453}, time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC)},
		{"LEO equatorial", PositionTEME{X: 6778.0}, time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)},
		{"LEO polar", PositionTEME{Z: 6978.0}, time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gmst := satellite.GSTimeFromDate(tt.time.Year(), int(tt.time.Month()), tt.time.Day(),
				tt.time.Hour(), tt.time.Minute(), tt.time.Second())

			ours := TEMEToECEFWithGMST(tt.teme, gmst)
			ref := satellite.ECIToECEF(satellite.Vector3{X: tt.teme.X, Y: tt.teme.Y, Z: tt.teme.Z}, gmst)

			const tolM = 1.0
			if math.Abs(ours.X-ref.X*1000) > tolM || math.Abs(ours.Y-ref.Y*1000) > tolM || math.Abs(ours.Z-ref.Z*1000) > tolM {
				t.Errorf("ECEF = [%.3f %.3f %.3f] m, go-satellite = [%.3f %.3f %.3f] m",
					ours.X, ours.Y, ours.Z, ref.X*1000, ref.Y*1000, ref.Z*1000)
			}
			if math.Abs(ours.RadiusM()/1000-tt.teme.RadiusKm()) > 1e-6 {
				t.Errorf("rotation changed radius: %.6f km vs %.6f km", ours.RadiusM()/1000, tt.teme.RadiusKm())
			}
		})
	}
}

func TestValidateECEF(t *testing.T) {
	tests := []struct {
		name  string
		pos   PositionECEF
		valid bool
	}{
		{"LEO", PositionECEF{X: 6778000}, true},
		{"GEO", PositionECEF{X: 42164000}, true},
		{"below surface", PositionECEF{X: 5000000}, false},
		{"beyond band", PositionECEF{X: 60000000}, false},
		{"NaN", PositionECEF{X: math.NaN()}, false},
		{"Inf", PositionECEF{Y: math.Inf(1)}, false},
		{"origin", PositionECEF{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateECEF(tt.pos); got != tt.valid {
				t.Errorf("ValidateECEF(%+v) = %v, want %v", tt.pos, got, tt.valid)
			}
		})
	}
}

func TestGeodeticRoundTrip(t *testing.T) {
	points := []geo.Position{
		{Lat: 0, Lon: 0, Alt: 0},
		{Lat: 31.42, Lon: -104.76, Alt: 107000},
		{Lat: -45.5, Lon: 170.25, Alt: 550000},
		{Lat: 51.64, Lon: -0.12, Alt: 420000},
		{Lat: 89.9, Lon: 10, Alt: 800000},
	}

	for _, want := range points {
		got := ECEFToGeodetic(GeodeticToECEF(want))
		if math.Abs(got.Lat-want.Lat) > 1e-7 || math.Abs(got.Lon-want.Lon) > 1e-7 || math.Abs(got.Alt-want.Alt) > 1e-3 {
			t.Errorf("round trip %+v -> %+v", want, got)
		}
	}
}

func TestECEFToGeodeticEquatorSurface(t *testing.T) {
	g := ECEFToGeodetic(PositionECEF{X: wgs84A})
	if math.Abs(g.Lat) > 1e-9 || math.Abs(g.Lon) > 1e-9 || math.Abs(g.Alt) > 1e-6 {
		t.Errorf("ECEFToGeodetic(a,0,0) = %+v, want 0,0,0", g)
	}
}
