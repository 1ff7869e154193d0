package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"canvasscore/internal/blob"
	"canvasscore/pkg/domain"
	"canvasscore/pkg/geo"
)

type geoJSONFeatureCollection struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

type geoJSONFeature struct {
	Type       string          `json:"type"`
	Geometry   geoJSONGeometry `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

type geoJSONGeometry struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

// ExportSegmentsGeoJSON writes the generation's segment boundaries as a
// GeoJSON FeatureCollection artifact keyed by election and job. Rings are
// emitted closed, in lon/lat order, per RFC 7946.
func ExportSegmentsGeoJSON(ctx context.Context, store blob.Store, job domain.Job, segments []domain.Segment) (string, error) {
	fc := geoJSONFeatureCollection{Type: "FeatureCollection", Features: make([]geoJSONFeature, 0, len(segments))}
	for _, seg := range segments {
		fc.Features = append(fc.Features, geoJSONFeature{
			Type:     "Feature",
			Geometry: geoJSONGeometry{Type: "Polygon", Coordinates: [][][2]float64{closedRing(seg.Boundary)}},
			Properties: map[string]any{
				"segment_id":     seg.ID,
				"segment_code":   seg.Metadata.SegmentCode,
				"name":           seg.Name,
				"status":         string(seg.Status),
				"color":          seg.Color,
				"total_voters":   seg.TotalVoters,
				"total_families": seg.TotalFamilies,
				"version":        seg.Metadata.Version,
			},
		})
	}
	payload, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode geojson: %w", err)
	}
	key := fmt.Sprintf("runs/%s/%s/segments.geojson", job.Election, job.ID)
	if _, err := store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: "application/geo+json",
		Metadata:    map[string]string{"job_id": job.ID, "election": job.Election},
	}); err != nil {
		return "", fmt.Errorf("store geojson artifact: %w", err)
	}
	return key, nil
}

func closedRing(p geo.Polygon) [][2]float64 {
	ring := make([][2]float64, 0, len(p.Ring)+1)
	for _, pt := range p.Ring {
		ring = append(ring, [2]float64{pt.Lon, pt.Lat})
	}
	if n := len(p.Ring); n > 0 && p.Ring[0] != p.Ring[n-1] {
		ring = append(ring, [2]float64{p.Ring[0].Lon, p.Ring[0].Lat})
	}
	return ring
}
