package engine

import (
	"sort"

	geohash "github.com/TomiHiltunen/geohash-golang"

	"canvasscore/pkg/domain"
	"canvasscore/pkg/geo"
)

// defaultGeohashPrecision yields cells comparable in average population to
// the grid strategy at neighborhood scale (a 6-character hash cell spans
// roughly 1.2km x 0.6km).
const defaultGeohashPrecision = 6

// GeohashCellGenerator tiles the boundary with fixed-precision geohash
// cells. Cell geometry is the hash cell's bounding box; ordering is
// lexicographic on the hash string, which is spatially locality-preserving.
type GeohashCellGenerator struct {
	// Precision is the geohash length; zero selects the default.
	Precision int
}

// Name implements CellGenerator.
func (GeohashCellGenerator) Name() string { return "geohash" }

// Generate implements CellGenerator.
func (g GeohashCellGenerator) Generate(boundary domain.ParentBoundary, unitCount int) ([]domain.Cell, error) {
	if unitCount <= 0 {
		return nil, domain.PreconditionError{
			Stage:  "cells",
			Reason: "unit count is zero",
		}
	}
	precision := g.Precision
	if precision <= 0 {
		precision = defaultGeohashPrecision
	}

	bbox := boundary.Geometry.BoundingBox()
	hashes := coverBox(bbox, precision)
	cells := make([]domain.Cell, 0, len(hashes))
	for _, h := range hashes {
		cellBox := hashBox(h)
		if !boundary.Geometry.IntersectsBox(cellBox) {
			continue
		}
		cells = append(cells, domain.Cell{
			ID:       h,
			Geometry: cellBox.Polygon(),
			Centroid: cellBox.Center(),
		})
	}
	if len(cells) == 0 {
		return nil, domain.GeometryError{
			Stage:  "cells",
			Reason: "no geohash cell intersects the parent boundary",
			Units:  unitCount,
		}
	}
	return cells, nil
}

// coverBox enumerates the geohash cells covering the box by walking the
// adjacency graph east and north from the south-west corner, and returns
// them sorted lexicographically.
func coverBox(b geo.BoundingBox, precision int) []string {
	start := geohash.EncodeWithPrecision(b.MinLat, b.MinLon, precision)
	seen := make(map[string]struct{})
	var out []string

	for row := start; ; row = geohash.CalculateAdjacent(row, "top") {
		rowBox := hashBox(row)
		for cur := row; ; cur = geohash.CalculateAdjacent(cur, "right") {
			if _, ok := seen[cur]; ok {
				break
			}
			seen[cur] = struct{}{}
			out = append(out, cur)
			if hashBox(cur).MinLon > b.MaxLon {
				break
			}
		}
		if rowBox.MinLat > b.MaxLat {
			break
		}
	}
	sort.Strings(out)
	return out
}

// hashBox converts a geohash cell to the engine's bounding box type.
func hashBox(h string) geo.BoundingBox {
	bb := geohash.Decode(h)
	sw := bb.SouthWest()
	ne := bb.NorthEast()
	return geo.BoundingBox{
		MinLat: sw.Lat(),
		MinLon: sw.Lng(),
		MaxLat: ne.Lat(),
		MaxLon: ne.Lng(),
	}
}
