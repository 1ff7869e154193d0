// Package geo provides the geometry capability used by the segmentation
// engine: point and polygon value types, centroid and hull construction,
// geodesic area, containment tests, and square tiling of bounding regions.
// Coordinates are WGS84 degrees throughout.
package geo

import "math"

// EarthRadiusM is the mean Earth radius in meters used for geodesic math.
const EarthRadiusM = 6371008.8

// meters spanned by one degree of latitude (near constant across latitudes)
const metersPerDegreeLat = 110574.0

// Point is a geographic coordinate in WGS84 degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BoundingBox is an axis-aligned rectangle in degree space.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() Point {
	return Point{Lat: (b.MinLat + b.MaxLat) / 2, Lon: (b.MinLon + b.MaxLon) / 2}
}

// Contains reports whether p lies inside or on the edge of the box.
func (b BoundingBox) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// Overlaps reports whether the two boxes share any area or edge.
func (b BoundingBox) Overlaps(o BoundingBox) bool {
	return b.MinLat <= o.MaxLat && b.MaxLat >= o.MinLat && b.MinLon <= o.MaxLon && b.MaxLon >= o.MinLon
}

// Polygon returns the box as a closed counter-clockwise ring.
func (b BoundingBox) Polygon() Polygon {
	return Polygon{Ring: []Point{
		{Lat: b.MinLat, Lon: b.MinLon},
		{Lat: b.MinLat, Lon: b.MaxLon},
		{Lat: b.MaxLat, Lon: b.MaxLon},
		{Lat: b.MaxLat, Lon: b.MinLon},
		{Lat: b.MinLat, Lon: b.MinLon},
	}}
}

// Polygon is a simple polygon described by a closed ring of vertices.
// The first and last vertex are equal.
type Polygon struct {
	Ring []Point `json:"ring"`
}

// BoundingBox returns the tight axis-aligned box around the ring.
func (p Polygon) BoundingBox() BoundingBox {
	if len(p.Ring) == 0 {
		return BoundingBox{}
	}
	b := BoundingBox{
		MinLat: p.Ring[0].Lat, MaxLat: p.Ring[0].Lat,
		MinLon: p.Ring[0].Lon, MaxLon: p.Ring[0].Lon,
	}
	for _, pt := range p.Ring[1:] {
		b.MinLat = math.Min(b.MinLat, pt.Lat)
		b.MaxLat = math.Max(b.MaxLat, pt.Lat)
		b.MinLon = math.Min(b.MinLon, pt.Lon)
		b.MaxLon = math.Max(b.MaxLon, pt.Lon)
	}
	return b
}

// Contains reports whether pt is inside the polygon using the ray casting
// rule. Points exactly on an edge may be reported either way; callers that
// need an inclusive test combine this with a nearest-candidate fallback.
func (p Polygon) Contains(pt Point) bool {
	n := len(p.Ring)
	if n < 4 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := p.Ring[i], p.Ring[j]
		if (a.Lat > pt.Lat) != (b.Lat > pt.Lat) {
			x := (b.Lon-a.Lon)*(pt.Lat-a.Lat)/(b.Lat-a.Lat) + a.Lon
			if pt.Lon < x {
				inside = !inside
			}
		}
	}
	return inside
}

// IntersectsBox reports whether the polygon and the box share any area.
// The test is conservative for the tiling use case: a coarse bounding-box
// overlap followed by corner/vertex containment probes.
func (p Polygon) IntersectsBox(b BoundingBox) bool {
	if !p.BoundingBox().Overlaps(b) {
		return false
	}
	if p.Contains(b.Center()) {
		return true
	}
	corners := [4]Point{
		{Lat: b.MinLat, Lon: b.MinLon},
		{Lat: b.MinLat, Lon: b.MaxLon},
		{Lat: b.MaxLat, Lon: b.MinLon},
		{Lat: b.MaxLat, Lon: b.MaxLon},
	}
	for _, c := range corners {
		if p.Contains(c) {
			return true
		}
	}
	for _, v := range p.Ring {
		if b.Contains(v) {
			return true
		}
	}
	return false
}

// Centroid returns the component-wise mean of the supplied points.
// The mean is projection-agnostic and exact for a single point, which keeps
// single-voter units anchored to the voter's own location.
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var lat, lon float64
	for _, p := range points {
		lat += p.Lat
		lon += p.Lon
	}
	n := float64(len(points))
	return Point{Lat: lat / n, Lon: lon / n}
}

// Distance returns the haversine great-circle distance between two points
// in meters.
func Distance(a, b Point) float64 {
	la1 := a.Lat * math.Pi / 180
	la2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(la1)*math.Cos(la2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// DegreesPerMeter returns the angular size of one meter at the given
// latitude. Longitude degrees shrink toward the poles by cos(lat); the
// factor is clamped so tiling near the poles still produces finite cells.
func DegreesPerMeter(lat float64) float64 {
	c := math.Cos(lat * math.Pi / 180)
	if c < 0.01 {
		c = 0.01
	}
	return 1 / (metersPerDegreeLat * c)
}
