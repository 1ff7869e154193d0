package engine

import (
	"errors"
	"strings"
	"testing"

	"canvasscore/pkg/domain"
)

// squareBoundary builds a parent boundary over a grid of unit centroids
// spanning roughly size degrees on each side around (40, 23).
func squareBoundary(t *testing.T, size float64, unitsPerSide int) (domain.ParentBoundary, int) {
	t.Helper()
	var units []domain.AtomicUnit
	step := size / float64(unitsPerSide-1)
	for i := 0; i < unitsPerSide; i++ {
		for j := 0; j < unitsPerSide; j++ {
			units = append(units, unitAt(
				"u", 40.0+float64(i)*step, 23.0+float64(j)*step, 3))
		}
	}
	boundary, err := ComputeParentBoundary(units, 1)
	if err != nil {
		t.Fatalf("ComputeParentBoundary: %v", err)
	}
	return boundary, len(units)
}

func TestGridGenerateZeroUnits(t *testing.T) {
	boundary, _ := squareBoundary(t, 0.1, 4)
	_, err := GridCellGenerator{}.Generate(boundary, 0)
	var precondition domain.PreconditionError
	if !errors.As(err, &precondition) {
		t.Fatalf("expected PreconditionError, got %v", err)
	}
}

func TestGridGenerateCellCountTracksUnitCount(t *testing.T) {
	boundary, count := squareBoundary(t, 0.1, 5)
	cells, err := GridCellGenerator{}.Generate(boundary, count)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	// the fill factor sizes cells below one unit's share of the area, so
	// the tiling lands near twice the unit count for a convex region
	if len(cells) < count/2 || len(cells) > count*5 {
		t.Fatalf("cell count %d out of range for %d units", len(cells), count)
	}
}

func TestGridGenerateOrderedNorthToSouthWestToEast(t *testing.T) {
	boundary, count := squareBoundary(t, 0.1, 5)
	cells, err := GridCellGenerator{}.Generate(boundary, count)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for i := 1; i < len(cells); i++ {
		prev, cur := cells[i-1].Centroid, cells[i].Centroid
		if cur.Lat > prev.Lat+1e-9 {
			t.Fatalf("cells %d and %d out of north-south order", i-1, i)
		}
		sameRow := cur.Lat > prev.Lat-1e-9
		if sameRow && cur.Lon <= prev.Lon {
			t.Fatalf("cells %d and %d out of west-east order within a row", i-1, i)
		}
	}
	for i, c := range cells {
		if !strings.HasPrefix(c.ID, "grid-") {
			t.Fatalf("cell %d id = %s", i, c.ID)
		}
	}
}

func TestGridGenerateDeterministic(t *testing.T) {
	boundary, count := squareBoundary(t, 0.1, 5)
	first, err := GridCellGenerator{}.Generate(boundary, count)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second, err := GridCellGenerator{}.Generate(boundary, count)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("cell counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Centroid != second[i].Centroid {
			t.Fatalf("cell %d differs between runs", i)
		}
	}
}

func TestGeohashGenerateZeroUnits(t *testing.T) {
	boundary, _ := squareBoundary(t, 0.1, 4)
	_, err := GeohashCellGenerator{}.Generate(boundary, 0)
	var precondition domain.PreconditionError
	if !errors.As(err, &precondition) {
		t.Fatalf("expected PreconditionError, got %v", err)
	}
}

func TestGeohashGenerateCoversBoundary(t *testing.T) {
	boundary, count := squareBoundary(t, 0.02, 4)
	cells, err := GeohashCellGenerator{Precision: 6}.Generate(boundary, count)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(cells) == 0 {
		t.Fatal("expected at least one cell")
	}
	for i, c := range cells {
		if len(c.ID) != 6 {
			t.Fatalf("cell %d id %q is not a precision-6 hash", i, c.ID)
		}
		if i > 0 && cells[i-1].ID >= c.ID {
			t.Fatalf("cells not in lexicographic order at %d: %s >= %s", i, cells[i-1].ID, c.ID)
		}
	}
	bbox := boundary.Geometry.BoundingBox()
	found := false
	for _, c := range cells {
		if c.Geometry.BoundingBox().Contains(bbox.Center()) {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("no cell covers the boundary center")
	}
}

func TestGeohashGenerateDefaultPrecision(t *testing.T) {
	boundary, count := squareBoundary(t, 0.02, 4)
	cells, err := GeohashCellGenerator{}.Generate(boundary, count)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(cells[0].ID) != defaultGeohashPrecision {
		t.Fatalf("default precision not applied: %q", cells[0].ID)
	}
}
