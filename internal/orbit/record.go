// Package orbit turns two-line element sets into propagatable records and
// resolves them to geodetic positions at arbitrary instants.
//
// SGP4 comes from github.com/joshuaferrara/go-satellite (pure Go, WGS-84
// gravity). The library calls log.Fatal when a numeric TLE field does not
// parse, so every field it reads is checked here first.
package orbit

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/jjcapestany/space-trace/internal/geo"
	"github.com/jjcapestany/space-trace/internal/transform"
)

var (
	// ErrInvalidElementSet marks a TLE pair that cannot be turned into a record.
	ErrInvalidElementSet = errors.New("invalid element set")

	// ErrPropagation marks a record that cannot be resolved at one instant.
	ErrPropagation = errors.New("propagation failed")
)

const tleLineLength = 69

// Record is the SGP4 state derived once from a TLE pair. Immutable and safe
// for concurrent use.
type Record struct {
	sat     satellite.Satellite
	noradID int
}

// NewRecord builds a Record from TLE lines 1 and 2.
func NewRecord(line1, line2 string) (*Record, error) {
	line1 = strings.TrimRight(line1, "\r\n ")
	line2 = strings.TrimRight(line2, "\r\n ")

	noradID, err := checkElementSet(line1, line2)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidElementSet, err)
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("%w: norad %d: sgp4 init code=%d %s", ErrInvalidElementSet, noradID, sat.Error, sat.ErrorStr)
	}
	return &Record{sat: sat, noradID: noradID}, nil
}

// NORADID returns the catalog number from line 1.
func (r *Record) NORADID() int {
	return r.noradID
}

// Propagate resolves the record's geodetic position at t. SGP4 is run at
// the whole second and the position advanced along the TEME velocity for
// the remaining fraction, so sub-second instants resolve to distinct points.
func (r *Record) Propagate(t time.Time) (geo.Position, error) {
	t = t.UTC()
	return r.propagateWithGMST(t, transform.GMST(t))
}

// propagateWithGMST is Propagate with a precomputed sidereal angle for t.
func (r *Record) propagateWithGMST(t time.Time, gmst float64) (geo.Position, error) {
	teme, err := r.propagateTEME(t)
	if err != nil {
		return geo.Position{}, err
	}
	ecef := transform.TEMEToECEFWithGMST(teme, gmst)
	return transform.ECEFToGeodetic(ecef), nil
}

func (r *Record) propagateTEME(t time.Time) (transform.PositionTEME, error) {
	whole := t.Truncate(time.Second)
	frac := t.Sub(whole).Seconds()
	pos, vel := satellite.Propagate(r.sat, whole.Year(), int(whole.Month()), whole.Day(),
		whole.Hour(), whole.Minute(), whole.Second())

	teme := transform.PositionTEME{
		X: pos.X + vel.X*frac,
		Y: pos.Y + vel.Y*frac,
		Z: pos.Z + vel.Z*frac,
	}
	for _, v := range [3]float64{teme.X, teme.Y, teme.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return transform.PositionTEME{}, fmt.Errorf("%w: norad %d at %s: non-finite output",
				ErrPropagation, r.noradID, t.Format(time.RFC3339Nano))
		}
	}

	if rad := teme.RadiusKm(); rad < transform.MinOrbitRadiusKm || rad > transform.MaxOrbitRadiusKm {
		return transform.PositionTEME{}, fmt.Errorf("%w: norad %d at %s: radius %.1f km out of range",
			ErrPropagation, r.noradID, t.Format(time.RFC3339Nano), rad)
	}
	return teme, nil
}

// checkElementSet verifies every fixed-column field go-satellite parses and
// returns the catalog number.
func checkElementSet(line1, line2 string) (int, error) {
	if len(line1) != tleLineLength {
		return 0, fmt.Errorf("line 1 length %d, want %d", len(line1), tleLineLength)
	}
	if len(line2) != tleLineLength {
		return 0, fmt.Errorf("line 2 length %d, want %d", len(line2), tleLineLength)
	}
	if line1[0] != '1' || line1[1] != ' ' {
		return 0, fmt.Errorf("line 1 must start with \"1 \"")
	}
	if line2[0] != '2' || line2[1] != ' ' {
		return 0, fmt.Errorf("line 2 must start with \"2 \"")
	}

	noradID, err := strconv.Atoi(strings.TrimSpace(line1[2:7]))
	if err != nil {
		return 0, fmt.Errorf("catalog number %q", line1[2:7])
	}
	if _, err := strconv.Atoi(line1[18:20]); err != nil {
		return 0, fmt.Errorf("epoch year %q", line1[18:20])
	}

	floats := []struct {
		name string
		raw  string
	}{
		{"epoch day", line1[20:32]},
		{"mean motion first derivative", squeeze(line1[33:43])},
		{"mean motion second derivative", squeeze(line1[44:45] + "." + line1[45:50] + "e" + line1[50:52])},
		{"bstar", squeeze(line1[53:54] + "." + line1[54:59] + "e" + line1[59:61])},
		{"inclination", squeeze(line2[8:16])},
		{"right ascension", squeeze(line2[17:25])},
		{"eccentricity", "." + line2[26:33]},
		{"argument of perigee", squeeze(line2[34:42])},
		{"mean anomaly", squeeze(line2[43:51])},
		{"mean motion", squeeze(line2[52:63])},
	}
	for _, f := range floats {
		if _, err := strconv.ParseFloat(f.raw, 64); err != nil {
			return 0, fmt.Errorf("%s %q", f.name, f.raw)
		}
	}

	if mm, _ := strconv.ParseFloat(squeeze(line2[52:63]), 64); mm <= 0 {
		return 0, fmt.Errorf("mean motion %v must be positive", mm)
	}
	return noradID, nil
}

// squeeze drops up to two spaces, matching how go-satellite cleans a field.
func squeeze(s string) string {
	return strings.Replace(s, " ", "", 2)
}
