package geo

import "math"

// GeodesicAreaM2 returns the area of the polygon in square meters on the
// sphere. It uses the spherical excess approximation over the ring, which
// is accurate well below the continental scale this engine operates at and,
// unlike a planar shoelace over degrees, does not distort with latitude.
func GeodesicAreaM2(p Polygon) float64 {
	ring := p.Ring
	n := len(ring)
	if n < 4 {
		return 0
	}
	var total float64
	for i := 0; i < n-1; i++ {
		a := ring[i]
		b := ring[i+1]
		lon1 := a.Lon * math.Pi / 180
		lon2 := b.Lon * math.Pi / 180
		lat1 := a.Lat * math.Pi / 180
		lat2 := b.Lat * math.Pi / 180
		total += (lon2 - lon1) * (2 + math.Sin(lat1) + math.Sin(lat2))
	}
	return math.Abs(total * EarthRadiusM * EarthRadiusM / 2)
}
