package geo

import (
	"errors"
	"math"
	"sort"
)

// ErrDegenerate is returned when a hull cannot be constructed because the
// input collapses to fewer than three distinct, non-collinear points.
var ErrDegenerate = errors.New("geo: degenerate point set")

// ConcaveHull builds a hull over the points at the given concavity ratio.
// A ratio of 1 yields the convex hull; lower ratios allow the boundary to
// dig inward along long edges so it follows the population distribution.
// Every input point remains inside or on the returned polygon.
func ConcaveHull(points []Point, concavity float64) (Polygon, error) {
	if concavity <= 0 || concavity > 1 {
		concavity = 1
	}
	distinct := dedupePoints(points)
	if len(distinct) < 3 {
		return Polygon{}, ErrDegenerate
	}
	hull := convexHull(distinct)
	if len(hull) < 3 {
		// all points collinear
		return Polygon{}, ErrDegenerate
	}
	if concavity < 1 {
		hull = digEdges(hull, distinct, concavity)
	}
	ring := append(hull, hull[0])
	return Polygon{Ring: ring}, nil
}

func dedupePoints(points []Point) []Point {
	out := make([]Point, 0, len(points))
	seen := make(map[Point]struct{}, len(points))
	for _, p := range points {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Lon != out[j].Lon {
			return out[i].Lon < out[j].Lon
		}
		return out[i].Lat < out[j].Lat
	})
	return out
}

// convexHull computes the convex hull with the monotone chain algorithm.
// Input must be sorted by (lon, lat); output is counter-clockwise without
// the closing vertex.
func convexHull(sorted []Point) []Point {
	n := len(sorted)
	if n < 3 {
		return append([]Point(nil), sorted...)
	}
	hull := make([]Point, 0, 2*n)
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := n - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

func cross(o, a, b Point) float64 {
	return (a.Lon-o.Lon)*(b.Lat-o.Lat) - (a.Lat-o.Lat)*(b.Lon-o.Lon)
}

// digEdges refines the convex hull by pulling long edges inward through the
// nearest interior point. An edge is dug only when it exceeds the concavity
// threshold and the excised triangle contains no other input point, which
// preserves the containment invariant for the full point set.
func digEdges(hull []Point, all []Point, concavity float64) []Point {
	onHull := make(map[Point]struct{}, len(hull))
	for _, p := range hull {
		onHull[p] = struct{}{}
	}
	var interior []Point
	for _, p := range all {
		if _, ok := onHull[p]; !ok {
			interior = append(interior, p)
		}
	}
	if len(interior) == 0 {
		return hull
	}

	bbox := Polygon{Ring: append(append([]Point(nil), hull...), hull[0])}.BoundingBox()
	diag := math.Hypot(bbox.MaxLat-bbox.MinLat, bbox.MaxLon-bbox.MinLon)
	threshold := diag * concavity

	for i := 0; i < len(hull); i++ {
		a := hull[i]
		b := hull[(i+1)%len(hull)]
		if math.Hypot(b.Lat-a.Lat, b.Lon-a.Lon) <= threshold {
			continue
		}
		best := -1
		bestDetour := math.MaxFloat64
		for j, p := range interior {
			detour := math.Hypot(p.Lat-a.Lat, p.Lon-a.Lon) + math.Hypot(b.Lat-p.Lat, b.Lon-p.Lon)
			if detour < bestDetour && triangleEmpty(a, p, b, all) {
				bestDetour = detour
				best = j
			}
		}
		if best < 0 {
			continue
		}
		p := interior[best]
		hull = append(hull[:i+1], append([]Point{p}, hull[i+1:]...)...)
		interior = append(interior[:best], interior[best+1:]...)
		// revisit the first of the two new edges
		i--
		if len(interior) == 0 {
			break
		}
	}
	return hull
}

// triangleEmpty reports whether no point from all (other than the triangle
// vertices) lies strictly inside triangle a-p-b.
func triangleEmpty(a, p, b Point, all []Point) bool {
	for _, q := range all {
		if q == a || q == p || q == b {
			continue
		}
		d1 := cross(a, p, q)
		d2 := cross(p, b, q)
		d3 := cross(b, a, q)
		neg := d1 < 0 || d2 < 0 || d3 < 0
		pos := d1 > 0 || d2 > 0 || d3 > 0
		if !(neg && pos) {
			return false
		}
	}
	return true
}
