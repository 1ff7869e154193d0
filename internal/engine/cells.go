package engine

import (
	"fmt"
	"math"

	"canvasscore/pkg/domain"
	"canvasscore/pkg/geo"
)

// CellGenerator tiles the parent boundary into an ordered sequence of
// candidate cells. Both strategies share one output contract so downstream
// assignment and growing stay strategy-agnostic; the ordering each
// generator emits fixes all later merge tie-breaks.
type CellGenerator interface {
	Name() string
	Generate(boundary domain.ParentBoundary, unitCount int) ([]domain.Cell, error)
}

// defaultGridFillFactor scales the grid cell side so each cell holds on
// average slightly fewer than one unit, leaving the grower room to
// aggregate several cells per segment instead of over-assigning.
const defaultGridFillFactor = 0.7

// GridCellGenerator tiles the boundary's bounding box with axis-aligned
// square cells sized from the boundary area and unit count, retaining only
// cells that intersect the boundary. Cells are ordered north to south, then
// west to east.
type GridCellGenerator struct {
	// FillFactor tunes the linear cell size; zero selects the default.
	FillFactor float64
}

// Name implements CellGenerator.
func (GridCellGenerator) Name() string { return "grid" }

// Generate implements CellGenerator.
func (g GridCellGenerator) Generate(boundary domain.ParentBoundary, unitCount int) ([]domain.Cell, error) {
	if unitCount <= 0 {
		return nil, domain.PreconditionError{
			Stage:  "cells",
			Reason: "unit count is zero",
		}
	}
	fill := g.FillFactor
	if fill <= 0 {
		fill = defaultGridFillFactor
	}

	targetAreaM2 := boundary.AreaM2 / float64(unitCount)
	sideM := math.Sqrt(targetAreaM2) * fill
	bbox := boundary.Geometry.BoundingBox()
	sideDeg := sideM * geo.DegreesPerMeter(bbox.Center().Lat)
	if sideDeg <= 0 || math.IsNaN(sideDeg) || math.IsInf(sideDeg, 0) {
		return nil, domain.GeometryError{
			Stage:  "cells",
			Reason: fmt.Sprintf("invalid tiling size %v deg (area=%v m2)", sideDeg, boundary.AreaM2),
			Units:  unitCount,
		}
	}

	tiles := geo.TileBoundingBox(bbox, sideDeg)
	cells := make([]domain.Cell, 0, len(tiles))
	for _, tile := range tiles {
		if !boundary.Geometry.IntersectsBox(tile) {
			continue
		}
		cells = append(cells, domain.Cell{
			ID:       fmt.Sprintf("grid-%06d", len(cells)),
			Geometry: tile.Polygon(),
			Centroid: tile.Center(),
		})
	}
	if len(cells) == 0 {
		return nil, domain.GeometryError{
			Stage:  "cells",
			Reason: "no cell intersects the parent boundary",
			Units:  unitCount,
		}
	}
	return cells, nil
}
