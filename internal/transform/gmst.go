package transform

import (
	"math"
	"time"
)

// jdJ2000 is the Julian Date of the J2000.0 epoch.
const jdJ2000 = 2451545.0

// secondsPerDay is the length of a solar day in seconds.
const secondsPerDay = 86400.0

// JulianDate returns the Julian Date for a UTC instant (Meeus, ch. 7).
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	year := float64(t.Year())
	month := float64(t.Month())
	if month <= 2 {
		year--
		month += 12
	}

	century := math.Floor(year / 100)
	gregorian := 2 - century + math.Floor(century/4)

	dayFrac := (float64(t.Hour()) +
		float64(t.Minute())/60.0 +
		(float64(t.Second())+float64(t.Nanosecond())/1e9)/3600.0) / 24.0

	return math.Floor(365.25*(year+4716)) +
		math.Floor(30.6001*(month+1)) +
		float64(t.Day()) + gregorian - 1524.5 + dayFrac
}

// GMST returns Greenwich Mean Sidereal Time in radians, normalized to [0, 2π),
// using the IAU-82 polynomial (Vallado eq. 3-47).
func GMST(t time.Time) float64 {
	tut1 := (JulianDate(t) - jdJ2000) / 36525.0

	// 876600h expressed in seconds is 3155760000.
	sec := 67310.54841 +
		(3155760000.0+8640184.812866)*tut1 +
		0.093104*tut1*tut1 -
		6.2e-6*tut1*tut1*tut1

	sec = math.Mod(sec, secondsPerDay)
	if sec < 0 {
		sec += secondsPerDay
	}
	return sec / secondsPerDay * 2 * math.Pi
}
