package engine

import (
	"errors"
	"fmt"

	"canvasscore/pkg/domain"
	"canvasscore/pkg/geo"
)

// defaultConcavity keeps the parent boundary close to convex while letting
// it follow indentations in the population distribution.
const defaultConcavity = 0.98

// ComputeParentBoundary builds the enclosing region over the centroids of
// the supplied atomic units: a concave hull at the configured concavity
// ratio, plus its geodesic area in square meters.
func ComputeParentBoundary(units []domain.AtomicUnit, concavity float64) (domain.ParentBoundary, error) {
	if len(units) == 0 {
		return domain.ParentBoundary{}, domain.PreconditionError{
			Stage:  "boundary",
			Reason: "no atomic units in scope",
		}
	}
	if concavity <= 0 || concavity > 1 {
		concavity = defaultConcavity
	}
	points := make([]geo.Point, 0, len(units))
	for _, u := range units {
		points = append(points, u.Centroid)
	}
	hull, err := geo.ConcaveHull(points, concavity)
	if err != nil {
		if errors.Is(err, geo.ErrDegenerate) {
			return domain.ParentBoundary{}, domain.GeometryError{
				Stage:  "boundary",
				Reason: "hull degenerated: centroids collinear or coincident",
				Units:  len(units),
			}
		}
		return domain.ParentBoundary{}, fmt.Errorf("construct hull: %w", err)
	}
	return domain.ParentBoundary{
		Geometry: hull,
		AreaM2:   geo.GeodesicAreaM2(hull),
	}, nil
}
