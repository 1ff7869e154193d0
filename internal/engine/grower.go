package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"canvasscore/pkg/domain"
	"canvasscore/pkg/geo"
)

// segmentPalette colors segments deterministically for map rendering.
var segmentPalette = []string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728",
	"#9467bd", "#8c564b", "#e377c2", "#17becf",
}

// Bounds holds the configured segment size constraints.
type Bounds struct {
	MinVoters int
	MaxVoters int
}

// GrowResult is the output of region assignment and growing: a partition of
// the atomic units into segments plus the exceptions for units that no
// valid segment could accommodate.
type GrowResult struct {
	Segments   []domain.Segment
	Exceptions []domain.Exception
}

// region is a working set of cells and the units assigned to them. The id
// is the smallest member cell index, which anchors all deterministic
// ordering and tie-breaks.
type region struct {
	id     int
	cells  map[int]struct{}
	units  []int
	voters int
	alive  bool
}

// GrowRegions assigns atomic units to cells, grows cell regions until their
// aggregate voter counts satisfy the bounds, and finalizes the survivors as
// draft segments. Units that cannot be placed become exceptions. Processing
// follows the cell generator's ordering so repeated runs produce identical
// segment membership and exception sets.
func GrowRegions(units []domain.AtomicUnit, cells []domain.Cell, job domain.Job, bounds Bounds) (GrowResult, error) {
	if len(cells) == 0 {
		return GrowResult{}, domain.GeometryError{
			Stage:  "assign",
			Reason: "no cells to assign units to",
			Units:  len(units),
		}
	}

	var out GrowResult
	scope := job.Scope()

	// Oversized units can never be merged into a valid segment, so they are
	// emitted directly as exceptions and excluded from all regions.
	placeable := make([]domain.AtomicUnit, 0, len(units))
	for _, u := range units {
		if u.VoterCount > bounds.MaxVoters {
			out.Exceptions = append(out.Exceptions, oversizeException(u, job, scope, bounds.MaxVoters))
			continue
		}
		placeable = append(placeable, u)
	}

	assignments, err := assignUnits(placeable, cells)
	if err != nil {
		return GrowResult{}, err
	}

	adj, borders := cellAdjacency(cells)
	regions := seedRegions(placeable, assignments, bounds.MaxVoters)

	growPhase(regions, adj, bounds)
	exceptions := resolveLeftovers(regions, placeable, cells, borders, job, scope, bounds)
	out.Exceptions = append(out.Exceptions, exceptions...)

	segments, err := finalize(regions, placeable, cells, job, scope)
	if err != nil {
		return GrowResult{}, err
	}
	out.Segments = segments
	return out, nil
}

// assignUnits maps each unit to the cell containing its centroid, falling
// back to the nearest cell centroid when boundary rounding leaves the point
// strictly outside every cell. A unit mapping to no cell is an invariant
// violation and fails loudly, never a silent drop.
func assignUnits(units []domain.AtomicUnit, cells []domain.Cell) ([]int, error) {
	assignments := make([]int, len(units))
	for i, u := range units {
		idx := -1
		for c, cell := range cells {
			if cell.Geometry.BoundingBox().Contains(u.Centroid) {
				idx = c
				break
			}
		}
		if idx < 0 {
			best := math.MaxFloat64
			for c, cell := range cells {
				d := geo.Distance(u.Centroid, cell.Centroid)
				if d < best {
					best = d
					idx = c
				}
			}
		}
		if idx < 0 {
			return nil, domain.GeometryError{
				Stage:  "assign",
				Reason: fmt.Sprintf("unit %s mapped to no cell", u.ID),
				Units:  len(units),
				Cells:  len(cells),
			}
		}
		assignments[i] = idx
	}
	return assignments, nil
}

// cellAdjacency computes which cells share a border and the angular length
// of each shared border. Adjacency is geometric so the grower stays
// agnostic of the generating strategy; corner contact does not count.
func cellAdjacency(cells []domain.Cell) (map[int][]int, map[[2]int]float64) {
	boxes := make([]geo.BoundingBox, len(cells))
	minSide := math.MaxFloat64
	for i, c := range cells {
		boxes[i] = c.Geometry.BoundingBox()
		minSide = math.Min(minSide, boxes[i].MaxLat-boxes[i].MinLat)
		minSide = math.Min(minSide, boxes[i].MaxLon-boxes[i].MinLon)
	}
	tol := minSide * 1e-6

	adj := make(map[int][]int)
	borders := make(map[[2]int]float64)
	for i := 0; i < len(cells); i++ {
		for j := i + 1; j < len(cells); j++ {
			length := sharedBorder(boxes[i], boxes[j], tol)
			if length <= tol {
				continue
			}
			adj[i] = append(adj[i], j)
			adj[j] = append(adj[j], i)
			borders[[2]int{i, j}] = length
			borders[[2]int{j, i}] = length
		}
	}
	return adj, borders
}

// sharedBorder returns the overlap length of a touching edge between two
// boxes, or zero when they do not share an edge.
func sharedBorder(a, b geo.BoundingBox, tol float64) float64 {
	touchLon := math.Abs(a.MaxLon-b.MinLon) <= tol || math.Abs(b.MaxLon-a.MinLon) <= tol
	if touchLon {
		return overlap(a.MinLat, a.MaxLat, b.MinLat, b.MaxLat)
	}
	touchLat := math.Abs(a.MaxLat-b.MinLat) <= tol || math.Abs(b.MaxLat-a.MinLat) <= tol
	if touchLat {
		return overlap(a.MinLon, a.MaxLon, b.MinLon, b.MaxLon)
	}
	return 0
}

func overlap(a1, a2, b1, b2 float64) float64 {
	lo := math.Max(a1, b1)
	hi := math.Min(a2, b2)
	if hi <= lo {
		return 0
	}
	return hi - lo
}

// seedRegions turns every non-empty cell into one or more initial regions.
// When the units of one cell together exceed the maximum, they are packed
// greedily in unit order into multiple seed regions so that no seed starts
// beyond the bound; each unit itself is known to fit.
func seedRegions(units []domain.AtomicUnit, assignments []int, maxVoters int) []*region {
	byCell := make(map[int][]int)
	for i := range units {
		byCell[assignments[i]] = append(byCell[assignments[i]], i)
	}
	cellIdx := make([]int, 0, len(byCell))
	for c := range byCell {
		cellIdx = append(cellIdx, c)
	}
	sort.Ints(cellIdx)

	var regions []*region
	for _, c := range cellIdx {
		members := byCell[c]
		cur := &region{id: c, cells: map[int]struct{}{c: {}}, alive: true}
		for _, ui := range members {
			if cur.voters > 0 && cur.voters+units[ui].VoterCount > maxVoters {
				regions = append(regions, cur)
				cur = &region{id: c, cells: map[int]struct{}{c: {}}, alive: true}
			}
			cur.units = append(cur.units, ui)
			cur.voters += units[ui].VoterCount
		}
		regions = append(regions, cur)
	}
	return regions
}

// growPhase merges each region with adjacent regions until its aggregate
// count reaches the configured window or no neighbor can be absorbed
// without exceeding the maximum. The merge candidate is the neighbor whose
// absorption lands closest to the maximum, ties broken by region id.
func growPhase(regions []*region, adj map[int][]int, bounds Bounds) {
	cellOwner := ownerIndex(regions)
	for _, r := range regions {
		if !r.alive {
			continue
		}
		for r.voters < bounds.MinVoters {
			target := pickGrowCandidate(r, regions, cellOwner, adj, bounds.MaxVoters)
			if target == nil {
				break
			}
			absorb(r, target, cellOwner)
		}
	}
}

// pickGrowCandidate returns the adjacent region minimizing the imbalance
// |max - merged| under the constraint merged <= max, or nil.
func pickGrowCandidate(r *region, regions []*region, cellOwner map[int]*region, adj map[int][]int, maxVoters int) *region {
	var best *region
	for _, n := range neighborRegions(r, cellOwner, adj) {
		if r.voters+n.voters > maxVoters {
			continue
		}
		if best == nil || n.voters > best.voters || (n.voters == best.voters && n.id < best.id) {
			best = n
		}
	}
	return best
}

// neighborRegions lists the live regions adjacent to r in ascending id
// order.
func neighborRegions(r *region, cellOwner map[int]*region, adj map[int][]int) []*region {
	seen := make(map[*region]struct{})
	var out []*region
	for c := range r.cells {
		for _, nc := range adj[c] {
			n := cellOwner[nc]
			if n == nil || n == r || !n.alive {
				continue
			}
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// absorb merges src into dst and retires src. The surviving region keeps
// the smaller id so later ordering stays anchored to cell order.
func absorb(dst, src *region, cellOwner map[int]*region) {
	for c := range src.cells {
		dst.cells[c] = struct{}{}
		if cellOwner[c] == src {
			cellOwner[c] = dst
		}
	}
	dst.units = append(dst.units, src.units...)
	dst.voters += src.voters
	if src.id < dst.id {
		dst.id = src.id
	}
	src.alive = false
	src.units = nil
	src.voters = 0
}

// ownerIndex maps each cell to the region currently owning it. Cells shared
// by split seed regions resolve to the first region in slice order.
func ownerIndex(regions []*region) map[int]*region {
	owner := make(map[int]*region)
	for _, r := range regions {
		for c := range r.cells {
			if _, ok := owner[c]; !ok {
				owner[c] = r
			}
		}
	}
	return owner
}

// resolveLeftovers merges regions still below the minimum into their
// spatially nearest remaining region, even when that pushes the target
// above the maximum. The nearest neighbor is chosen by longest shared
// border, then centroid distance, then id order. A region with no other
// region left at all becomes per-unit exceptions instead of a degenerate
// segment.
func resolveLeftovers(regions []*region, units []domain.AtomicUnit, cells []domain.Cell, borders map[[2]int]float64, job domain.Job, scope domain.Scope, bounds Bounds) []domain.Exception {
	var exceptions []domain.Exception

	order := make([]*region, 0, len(regions))
	for _, r := range regions {
		if r.alive {
			order = append(order, r)
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i].id < order[j].id })

	cellOwner := ownerIndex(order)
	for _, r := range order {
		if !r.alive || r.voters >= bounds.MinVoters {
			continue
		}
		target := pickMergeTarget(r, order, cellOwner, borders, units)
		if target == nil {
			for _, ui := range r.units {
				exceptions = append(exceptions, isolatedException(units[ui], job, scope, r.voters, bounds.MinVoters))
			}
			r.alive = false
			r.units = nil
			r.voters = 0
			continue
		}
		absorb(target, r, cellOwner)
	}
	return exceptions
}

// pickMergeTarget selects the nearest remaining region for an undersized
// leftover, preferring the longest shared border, then the smallest
// centroid distance, then the smallest id.
func pickMergeTarget(r *region, regions []*region, cellOwner map[int]*region, borders map[[2]int]float64, units []domain.AtomicUnit) *region {
	var best *region
	bestBorder := -1.0
	bestDist := math.MaxFloat64
	rc := regionCentroid(r, units)
	for _, n := range regions {
		if n == r || !n.alive {
			continue
		}
		border := regionBorder(r, n, borders)
		dist := geo.Distance(rc, regionCentroid(n, units))
		switch {
		case border > bestBorder:
		case border == bestBorder && dist < bestDist:
		case border == bestBorder && dist == bestDist && best != nil && n.id < best.id:
		default:
			continue
		}
		best = n
		bestBorder = border
		bestDist = dist
	}
	return best
}

// regionBorder sums the shared border length between the cells of two
// regions.
func regionBorder(a, b *region, borders map[[2]int]float64) float64 {
	var total float64
	for ca := range a.cells {
		for cb := range b.cells {
			total += borders[[2]int{ca, cb}]
		}
	}
	return total
}

// regionCentroid is the voter-weighted centroid of a region's units.
func regionCentroid(r *region, units []domain.AtomicUnit) geo.Point {
	var lat, lon, weight float64
	for _, ui := range r.units {
		u := units[ui]
		w := float64(u.VoterCount)
		lat += u.Centroid.Lat * w
		lon += u.Centroid.Lon * w
		weight += w
	}
	if weight == 0 {
		return geo.Point{}
	}
	return geo.Point{Lat: lat / weight, Lon: lon / weight}
}

// finalize converts the surviving regions into draft segments with
// deterministic codes, union boundaries, and aggregate totals.
func finalize(regions []*region, units []domain.AtomicUnit, cells []domain.Cell, job domain.Job, scope domain.Scope) ([]domain.Segment, error) {
	order := make([]*region, 0, len(regions))
	for _, r := range regions {
		if r.alive && len(r.units) > 0 {
			order = append(order, r)
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i].id < order[j].id })

	segments := make([]domain.Segment, 0, len(order))
	for i, r := range order {
		boundary, err := regionBoundary(r, cells)
		if err != nil {
			return nil, err
		}
		code := fmt.Sprintf("SEG-%03d", i+1)
		var voterIDs, unitIDs []string
		families := 0
		voters := 0
		for _, ui := range r.units {
			u := units[ui]
			unitIDs = append(unitIDs, u.ID)
			voterIDs = append(voterIDs, u.VoterIDs...)
			families++
			voters += u.VoterCount
		}
		sort.Strings(unitIDs)
		sort.Strings(voterIDs)
		segments = append(segments, domain.Segment{
			Base:          domain.Base{ID: segmentID(scope, job.Generation, code)},
			Election:      scope.Election,
			Node:          scope.Node,
			Name:          fmt.Sprintf("Segment %03d", i+1),
			Type:          "canvass",
			TotalVoters:   voters,
			TotalFamilies: families,
			Status:        domain.SegmentStatusDraft,
			Color:         segmentPalette[i%len(segmentPalette)],
			Metadata: domain.SegmentMetadata{
				JobID:       job.ID,
				SegmentCode: code,
				Version:     job.Generation,
			},
			Centroid: regionCentroid(r, units),
			Boundary: boundary,
			UnitIDs:  unitIDs,
			VoterIDs: voterIDs,
		})
	}
	return segments, nil
}

// regionBoundary is the convex cover of the region's member cell corners.
func regionBoundary(r *region, cells []domain.Cell) (geo.Polygon, error) {
	cellIdx := make([]int, 0, len(r.cells))
	for c := range r.cells {
		cellIdx = append(cellIdx, c)
	}
	sort.Ints(cellIdx)
	var corners []geo.Point
	for _, c := range cellIdx {
		corners = append(corners, cells[c].Geometry.Ring...)
	}
	hull, err := geo.ConcaveHull(corners, 1)
	if err != nil {
		return geo.Polygon{}, domain.GeometryError{
			Stage:  "finalize",
			Reason: fmt.Sprintf("region boundary over %d cells degenerated", len(cellIdx)),
			Cells:  len(cellIdx),
		}
	}
	return hull, nil
}

func segmentID(scope domain.Scope, generation int, code string) string {
	return fmt.Sprintf("%s-v%d-%s",
		strings.ReplaceAll(scope.Key(), "/", "-"), generation, strings.ToLower(code))
}

func oversizeException(u domain.AtomicUnit, job domain.Job, scope domain.Scope, maxVoters int) domain.Exception {
	return domain.Exception{
		Base:       domain.Base{ID: fmt.Sprintf("exc-%s-%s", job.ID, u.ID)},
		Election:   scope.Election,
		Node:       scope.Node,
		Type:       domain.ExceptionUnitSizeViolation,
		EntityType: domain.EntityAtomicUnit,
		EntityID:   u.ID,
		Severity:   domain.SeverityCritical,
		Status:     domain.ExceptionStatusOpen,
		Metadata: domain.ExceptionMetadata{
			JobID:      job.ID,
			Reason:     fmt.Sprintf("unit holds %d voters, exceeding the segment maximum of %d", u.VoterCount, maxVoters),
			VoterCount: u.VoterCount,
		},
	}
}

func isolatedException(u domain.AtomicUnit, job domain.Job, scope domain.Scope, regionVoters, minVoters int) domain.Exception {
	return domain.Exception{
		Base:       domain.Base{ID: fmt.Sprintf("exc-%s-%s", job.ID, u.ID)},
		Election:   scope.Election,
		Node:       scope.Node,
		Type:       domain.ExceptionIsolatedRegion,
		EntityType: domain.EntityAtomicUnit,
		EntityID:   u.ID,
		Severity:   domain.SeverityWarning,
		Status:     domain.ExceptionStatusOpen,
		Metadata: domain.ExceptionMetadata{
			JobID:      job.ID,
			Reason:     fmt.Sprintf("region holds %d voters, below the segment minimum of %d, with no neighboring region", regionVoters, minVoters),
			VoterCount: u.VoterCount,
		},
	}
}
