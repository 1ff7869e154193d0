// Package domain defines the persistent entities, value types, and
// persistence abstractions used by the canvasscore segmentation engine.
package domain

import (
	"fmt"
	"time"

	"canvasscore/pkg/geo"
)

// EntityType identifies the type of record referenced by exceptions and
// persistence buckets.
type EntityType string

// Supported entity type identifiers.
const (
	// EntityVoter identifies an individual voter record.
	EntityVoter EntityType = "voter"
	// EntityAtomicUnit identifies an indivisible voter grouping.
	EntityAtomicUnit EntityType = "atomic_unit"
	// EntitySegment identifies a generated canvassing segment.
	EntitySegment EntityType = "segment"
	// EntityJob identifies a segmentation job record.
	EntityJob EntityType = "job"
)

// Scope names the election (and optional node) a segmentation run targets.
type Scope struct {
	Election string `json:"election"`
	Node     string `json:"node,omitempty"`
}

// Key returns the canonical string form used for locks and bucket keys.
func (s Scope) Key() string {
	if s.Node == "" {
		return s.Election
	}
	return s.Election + "/" + s.Node
}

func (s Scope) String() string { return s.Key() }

// Base contains common fields for persisted records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Voter is the engine's input record. Location is nil for voters whose
// address could not be geocoded; those are excluded from segmentation and
// reconciled by an external data-quality process.
type Voter struct {
	Base
	Election string     `json:"election"`
	Node     string     `json:"node,omitempty"`
	FamilyID *string    `json:"family_id,omitempty"`
	Address  string     `json:"address,omitempty"`
	Floor    *int       `json:"floor,omitempty"`
	Location *geo.Point `json:"location,omitempty"`
}

// Scope returns the election/node scope the voter belongs to.
func (v Voter) Scope() Scope { return Scope{Election: v.Election, Node: v.Node} }

// AtomicUnit is the smallest indivisible grouping of voters that must stay
// together in one segment. Units are immutable once built and scoped to a
// single run; they are never persisted.
type AtomicUnit struct {
	ID         string    `json:"id"`
	VoterCount int       `json:"voter_count"`
	VoterIDs   []string  `json:"voter_ids"`
	Centroid   geo.Point `json:"centroid"`
}

// ParentBoundary is the concave hull enclosing all atomic-unit centroids
// for a run, with its geodesic area in square meters.
type ParentBoundary struct {
	Geometry geo.Polygon `json:"geometry"`
	AreaM2   float64     `json:"area_m2"`
}

// Cell is a candidate tile used as the unit of region growing. Cells carry
// a total ordering fixed by their generator so downstream merging is
// reproducible.
type Cell struct {
	ID       string      `json:"id"`
	Geometry geo.Polygon `json:"geometry"`
	Centroid geo.Point   `json:"centroid"`
}

// SegmentStatus enumerates segment lifecycle states.
type SegmentStatus string

// Segment statuses. Freshly generated segments are drafts until reviewed.
const (
	SegmentStatusDraft    SegmentStatus = "draft"
	SegmentStatusApproved SegmentStatus = "approved"
	SegmentStatusArchived SegmentStatus = "archived"
)

// SegmentMetadata records run provenance on a segment.
type SegmentMetadata struct {
	JobID       string `json:"job_id"`
	SegmentCode string `json:"segment_code"`
	Version     int    `json:"version"`
}

// Segment is a final, persisted, constraint-satisfying partition of atomic
// units assigned to canvassers. Segments are never updated in place: each
// re-segmentation run writes a fresh generation distinguished by
// Metadata.Version.
type Segment struct {
	Base
	Election      string          `json:"election"`
	Node          string          `json:"node,omitempty"`
	Name          string          `json:"name"`
	Type          string          `json:"type"`
	TotalVoters   int             `json:"total_voters"`
	TotalFamilies int             `json:"total_families"`
	Status        SegmentStatus   `json:"status"`
	Color         string          `json:"color"`
	Metadata      SegmentMetadata `json:"metadata"`
	Centroid      geo.Point       `json:"centroid"`
	Boundary      geo.Polygon     `json:"boundary"`
	UnitIDs       []string        `json:"unit_ids"`
	VoterIDs      []string        `json:"voter_ids"`
}

// Scope returns the election/node scope the segment was generated for.
func (s Segment) Scope() Scope { return Scope{Election: s.Election, Node: s.Node} }

// ExceptionType classifies why an entity could not be placed.
type ExceptionType string

// Exception types emitted by the segmentation engine.
const (
	// ExceptionUnitSizeViolation marks an atomic unit whose voter count
	// alone exceeds the configured segment maximum.
	ExceptionUnitSizeViolation ExceptionType = "unit_size_violation"
	// ExceptionIsolatedRegion marks units of a region below the segment
	// minimum with no neighboring region left to merge into.
	ExceptionIsolatedRegion ExceptionType = "isolated_region"
)

// Severity grades exceptions for manual review triage.
type Severity string

// Exception severities.
const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// ExceptionStatus enumerates review states for exception records.
type ExceptionStatus string

// Exception review statuses.
const (
	ExceptionStatusOpen     ExceptionStatus = "open"
	ExceptionStatusResolved ExceptionStatus = "resolved"
)

// ExceptionMetadata records run provenance and diagnostics on an exception.
type ExceptionMetadata struct {
	JobID      string `json:"job_id"`
	Reason     string `json:"reason"`
	VoterCount int    `json:"voter_count"`
}

// Exception is a persisted record of an entity that could not be placed
// into a valid segment. Exceptions are a normal engine output, not errors:
// together with segments they cover every atomic unit of a run exactly once.
type Exception struct {
	Base
	Election   string            `json:"election"`
	Node       string            `json:"node,omitempty"`
	Type       ExceptionType     `json:"exception_type"`
	EntityType EntityType        `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Severity   Severity          `json:"severity"`
	Status     ExceptionStatus   `json:"status"`
	Metadata   ExceptionMetadata `json:"metadata"`
}

// Scope returns the election/node scope the exception was raised for.
func (e Exception) Scope() Scope { return Scope{Election: e.Election, Node: e.Node} }

// JobStatus enumerates job lifecycle states. The lifecycle is owned by the
// external job queue; the engine reads the identity and writes the terminal
// status with summary counts.
type JobStatus string

// Job statuses.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job identifies one segmentation run request.
type Job struct {
	Base
	Election         string    `json:"election"`
	Node             string    `json:"node,omitempty"`
	Generation       int       `json:"generation"`
	Status           JobStatus `json:"status"`
	SegmentsCreated  int       `json:"segments_created"`
	ExceptionsRaised int       `json:"exceptions_raised"`
	VotersCovered    int       `json:"voters_covered"`
	Error            string    `json:"error,omitempty"`
}

// Scope returns the election/node scope the job targets.
func (j Job) Scope() Scope { return Scope{Election: j.Election, Node: j.Node} }

// RunSummary reports the outcome of one segmentation run.
type RunSummary struct {
	Status           JobStatus `json:"status"`
	SegmentsCreated  int       `json:"segments_created"`
	ExceptionsRaised int       `json:"exceptions_raised"`
	VotersCovered    int       `json:"voters_covered"`
}

func (r RunSummary) String() string {
	return fmt.Sprintf("%s: %d segments, %d exceptions, %d voters",
		r.Status, r.SegmentsCreated, r.ExceptionsRaised, r.VotersCovered)
}
