package transform

import (
	"math"

	"github.com/jjcapestany/space-trace/internal/geo"
)

// WGS-84 ellipsoid.
const (
	wgs84A  = 6378137.0
	wgs84F  = 1.0 / 298.257223563
	wgs84E2 = wgs84F * (2 - wgs84F)
)

const (
	degToRad = math.Pi / 180.0
	radToDeg = 180.0 / math.Pi
)

// ECEFToGeodetic converts an ECEF position (meters) to WGS-84 latitude,
// longitude (degrees) and height (meters) by Bowring iteration.
func ECEFToGeodetic(pos PositionECEF) geo.Position {
	p := math.Hypot(pos.X, pos.Y)
	lon := math.Atan2(pos.Y, pos.X)
	lat := math.Atan2(pos.Z, p*(1-wgs84E2))

	var n float64
	for range 5 {
		sinLat := math.Sin(lat)
		n = wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		lat = math.Atan2(pos.Z+wgs84E2*n*sinLat, p)
	}

	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	n = wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	var h float64
	if math.Abs(cosLat) > 1e-10 {
		h = p/cosLat - n
	} else {
		// Polar: p/cos(lat) is unstable.
		h = math.Abs(pos.Z)/math.Abs(sinLat) - n*(1-wgs84E2)
	}

	return geo.Position{Lat: lat * radToDeg, Lon: lon * radToDeg, Alt: h}
}

// GeodeticToECEF is the inverse of ECEFToGeodetic.
func GeodeticToECEF(g geo.Position) PositionECEF {
	lat, lon := g.Lat*degToRad, g.Lon*degToRad
	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return PositionECEF{
		X: (n + g.Alt) * cosLat * math.Cos(lon),
		Y: (n + g.Alt) * cosLat * math.Sin(lon),
		Z: (n*(1-wgs84E2) + g.Alt) * sinLat,
	}
}
