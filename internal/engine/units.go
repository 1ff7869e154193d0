// Package engine implements the deterministic segmentation pipeline:
// voters are clustered into indivisible atomic units, a parent boundary is
// computed over their centroids, the boundary is tiled into cells, and the
// cells are grown into size-bounded segments with leftovers flagged as
// exceptions. Repeated runs over the same data produce identical output.
package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"canvasscore/pkg/domain"
	"canvasscore/pkg/geo"
)

// BuildAtomicUnits clusters the located voters of a scope into indivisible
// atomic units and computes their centroids. Grouping uses the explicit
// family identifier when present, otherwise a stable hash of address and
// floor when both are known, otherwise the voter stands alone. Voters
// without a location are excluded; an empty result is not an error here
// (downstream stages treat it as a precondition failure).
func BuildAtomicUnits(ctx context.Context, voters []domain.Voter) ([]domain.AtomicUnit, error) {
	groups := make(map[string][]domain.Voter)
	for _, v := range voters {
		if v.Location == nil {
			continue
		}
		key := unitKey(v)
		groups[key] = append(groups[key], v)
	}
	if len(groups) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	units := make([]domain.AtomicUnit, len(keys))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, key := range keys {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			members := groups[key]
			ids := make([]string, 0, len(members))
			points := make([]geo.Point, 0, len(members))
			for _, m := range members {
				ids = append(ids, m.ID)
				points = append(points, *m.Location)
			}
			sort.Strings(ids)
			units[i] = domain.AtomicUnit{
				ID:         key,
				VoterCount: len(members),
				VoterIDs:   ids,
				Centroid:   geo.Centroid(points),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return units, nil
}

// unitKey derives the stable grouping key for a voter.
func unitKey(v domain.Voter) string {
	if v.FamilyID != nil && *v.FamilyID != "" {
		return "family:" + *v.FamilyID
	}
	if v.Address != "" && v.Floor != nil {
		h := fnv.New64a()
		fmt.Fprintf(h, "%s|%d", v.Address, *v.Floor)
		return fmt.Sprintf("addr:%016x", h.Sum64())
	}
	return "voter:" + v.ID
}
