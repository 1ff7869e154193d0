package geo

import (
	"errors"
	"math/rand"
	"testing"
)

func TestConcaveHullContainsAllPoints(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	points := make([]Point, 0, 200)
	for i := 0; i < 200; i++ {
		points = append(points, Point{
			Lat: 40 + rng.Float64(),
			Lon: -74 + rng.Float64(),
		})
	}
	hull, err := ConcaveHull(points, 0.98)
	if err != nil {
		t.Fatalf("hull construction: %v", err)
	}
	bbox := hull.BoundingBox()
	for _, p := range points {
		if !bbox.Contains(p) {
			t.Fatalf("point %+v outside hull bbox %+v", p, bbox)
		}
		if !hull.Contains(p) && !onRing(hull, p) {
			t.Fatalf("point %+v escaped hull", p)
		}
	}
}

func TestConcaveHullDeterministic(t *testing.T) {
	points := []Point{
		{Lat: 0, Lon: 0}, {Lat: 0, Lon: 4}, {Lat: 4, Lon: 4},
		{Lat: 4, Lon: 0}, {Lat: 2, Lon: 2}, {Lat: 1, Lon: 3},
	}
	a, err := ConcaveHull(points, 0.98)
	if err != nil {
		t.Fatalf("hull: %v", err)
	}
	// shuffled input must give an identical ring
	shuffled := []Point{
		{Lat: 1, Lon: 3}, {Lat: 4, Lon: 0}, {Lat: 0, Lon: 4},
		{Lat: 2, Lon: 2}, {Lat: 4, Lon: 4}, {Lat: 0, Lon: 0},
	}
	b, err := ConcaveHull(shuffled, 0.98)
	if err != nil {
		t.Fatalf("hull: %v", err)
	}
	if len(a.Ring) != len(b.Ring) {
		t.Fatalf("ring lengths differ: %d vs %d", len(a.Ring), len(b.Ring))
	}
	for i := range a.Ring {
		if a.Ring[i] != b.Ring[i] {
			t.Fatalf("ring vertex %d differs: %+v vs %+v", i, a.Ring[i], b.Ring[i])
		}
	}
}

func TestConcaveHullConvexAtRatioOne(t *testing.T) {
	points := []Point{
		{Lat: 0, Lon: 0}, {Lat: 0, Lon: 2}, {Lat: 2, Lon: 2},
		{Lat: 2, Lon: 0}, {Lat: 1, Lon: 1},
	}
	hull, err := ConcaveHull(points, 1)
	if err != nil {
		t.Fatalf("hull: %v", err)
	}
	// interior point must not appear on the ring
	for _, v := range hull.Ring {
		if v == (Point{Lat: 1, Lon: 1}) {
			t.Fatalf("interior point surfaced on convex hull")
		}
	}
}

func TestConcaveHullDegenerateCollinear(t *testing.T) {
	points := []Point{{Lat: 0, Lon: 0}, {Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}, {Lat: 3, Lon: 3}}
	if _, err := ConcaveHull(points, 0.98); !errors.Is(err, ErrDegenerate) {
		t.Fatalf("expected ErrDegenerate for collinear points, got %v", err)
	}
}

func TestConcaveHullDegenerateCoincident(t *testing.T) {
	points := []Point{{Lat: 5, Lon: 5}, {Lat: 5, Lon: 5}, {Lat: 5, Lon: 5}}
	if _, err := ConcaveHull(points, 0.98); !errors.Is(err, ErrDegenerate) {
		t.Fatalf("expected ErrDegenerate for coincident points, got %v", err)
	}
}

func TestConcaveHullTwoPoints(t *testing.T) {
	points := []Point{{Lat: 0, Lon: 0}, {Lat: 1, Lon: 0}}
	if _, err := ConcaveHull(points, 0.98); !errors.Is(err, ErrDegenerate) {
		t.Fatalf("expected ErrDegenerate for two points, got %v", err)
	}
}

// onRing reports whether p is a vertex of the hull ring.
func onRing(poly Polygon, p Point) bool {
	for _, v := range poly.Ring {
		if v == p {
			return true
		}
	}
	return false
}
