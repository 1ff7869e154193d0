package geo

import (
	"math"
	"testing"
)

func TestCentroidSinglePointExact(t *testing.T) {
	p := Point{Lat: 40.7128, Lon: -74.006}
	got := Centroid([]Point{p})
	if got != p {
		t.Fatalf("single point centroid changed: got %+v want %+v", got, p)
	}
}

func TestCentroidMean(t *testing.T) {
	got := Centroid([]Point{{Lat: 0, Lon: 0}, {Lat: 2, Lon: 4}})
	if got.Lat != 1 || got.Lon != 2 {
		t.Fatalf("unexpected centroid %+v", got)
	}
}

func TestPolygonContains(t *testing.T) {
	square := BoundingBox{MinLat: 0, MinLon: 0, MaxLat: 10, MaxLon: 10}.Polygon()
	cases := []struct {
		name string
		pt   Point
		want bool
	}{
		{"inside", Point{Lat: 5, Lon: 5}, true},
		{"outside north", Point{Lat: 11, Lon: 5}, false},
		{"outside west", Point{Lat: 5, Lon: -1}, false},
		{"near corner inside", Point{Lat: 9.9, Lon: 9.9}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := square.Contains(tc.pt); got != tc.want {
				t.Fatalf("Contains(%+v) = %v, want %v", tc.pt, got, tc.want)
			}
		})
	}
}

func TestDistanceKnownValue(t *testing.T) {
	// one degree of latitude is roughly 111.2 km
	d := Distance(Point{Lat: 0, Lon: 0}, Point{Lat: 1, Lon: 0})
	if d < 110_000 || d > 112_500 {
		t.Fatalf("one degree latitude distance out of range: %f", d)
	}
}

func TestDistanceSymmetric(t *testing.T) {
	a := Point{Lat: 52.52, Lon: 13.405}
	b := Point{Lat: 48.8566, Lon: 2.3522}
	if math.Abs(Distance(a, b)-Distance(b, a)) > 1e-6 {
		t.Fatalf("distance not symmetric")
	}
}

func TestGeodesicAreaOneDegreeSquare(t *testing.T) {
	// A 1x1 degree cell at the equator covers about 12,360 km^2.
	p := BoundingBox{MinLat: 0, MinLon: 0, MaxLat: 1, MaxLon: 1}.Polygon()
	area := GeodesicAreaM2(p)
	if area < 12.0e9 || area > 12.7e9 {
		t.Fatalf("equator square area out of range: %e", area)
	}
}

func TestGeodesicAreaShrinksWithLatitude(t *testing.T) {
	eq := GeodesicAreaM2(BoundingBox{MinLat: 0, MinLon: 0, MaxLat: 1, MaxLon: 1}.Polygon())
	north := GeodesicAreaM2(BoundingBox{MinLat: 60, MinLon: 0, MaxLat: 61, MaxLon: 1}.Polygon())
	if north >= eq {
		t.Fatalf("expected area to shrink toward the pole: eq=%e north=%e", eq, north)
	}
}

func TestTileBoundingBoxOrdering(t *testing.T) {
	b := BoundingBox{MinLat: 0, MinLon: 0, MaxLat: 1, MaxLon: 1}
	tiles := TileBoundingBox(b, 0.5)
	if len(tiles) != 4 {
		t.Fatalf("expected 4 tiles, got %d", len(tiles))
	}
	// first tile is the north-west corner
	if tiles[0].MaxLat != 1 || tiles[0].MinLon != 0 {
		t.Fatalf("first tile not north-west: %+v", tiles[0])
	}
	// rows descend in latitude, columns ascend in longitude
	if tiles[1].MinLon <= tiles[0].MinLon {
		t.Fatalf("columns not ascending: %+v then %+v", tiles[0], tiles[1])
	}
	if tiles[2].MaxLat >= tiles[0].MaxLat {
		t.Fatalf("rows not descending: %+v then %+v", tiles[0], tiles[2])
	}
}

func TestTileBoundingBoxInvalidSide(t *testing.T) {
	b := BoundingBox{MinLat: 0, MinLon: 0, MaxLat: 1, MaxLon: 1}
	if tiles := TileBoundingBox(b, 0); tiles != nil {
		t.Fatalf("expected nil tiles for zero side, got %d", len(tiles))
	}
	if tiles := TileBoundingBox(b, math.NaN()); tiles != nil {
		t.Fatalf("expected nil tiles for NaN side")
	}
}

func TestDegreesPerMeterLatitudeDependence(t *testing.T) {
	if DegreesPerMeter(60) <= DegreesPerMeter(0) {
		t.Fatalf("degrees per meter should grow with latitude")
	}
}
