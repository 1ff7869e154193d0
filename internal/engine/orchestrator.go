package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"canvasscore/internal/blob"
	"canvasscore/pkg/domain"
)

// MetricsRecorder receives run outcome counters. The prometheus-backed
// implementation lives in internal/observability; the zero value of the
// orchestrator uses a no-op recorder.
type MetricsRecorder interface {
	ObserveRun(status string, d time.Duration)
	AddSegments(n int)
	AddExceptions(exceptionType string, n int)
	AddVotersCovered(n int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveRun(string, time.Duration) {}
func (nopMetrics) AddSegments(int)                  {}
func (nopMetrics) AddExceptions(string, int)        {}
func (nopMetrics) AddVotersCovered(int)             {}

// Orchestrator sequences the segmentation pipeline for one job inside a
// single transaction and persists the resulting segments and exceptions.
// It is the only component aware of transaction boundaries and job
// bookkeeping.
type Orchestrator struct {
	store     domain.PersistentStore
	bounds    Bounds
	concavity float64
	cells     CellGenerator
	log       zerolog.Logger
	metrics   MetricsRecorder
	artifacts blob.Store
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger attaches a structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithCellGenerator selects the tiling strategy. The default is the grid
// generator with its default fill factor.
func WithCellGenerator(g CellGenerator) Option {
	return func(o *Orchestrator) {
		if g != nil {
			o.cells = g
		}
	}
}

// WithConcavity overrides the parent boundary concavity ratio.
func WithConcavity(ratio float64) Option {
	return func(o *Orchestrator) { o.concavity = ratio }
}

// WithArtifactStore enables GeoJSON run artifact export to a blob store.
func WithArtifactStore(s blob.Store) Option {
	return func(o *Orchestrator) { o.artifacts = s }
}

// NewOrchestrator builds an orchestrator over the given store and segment
// size bounds.
func NewOrchestrator(store domain.PersistentStore, bounds Bounds, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		bounds:    bounds,
		concavity: defaultConcavity,
		cells:     GridCellGenerator{},
		log:       zerolog.Nop(),
		metrics:   nopMetrics{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one segmentation run for the job's scope. It requires the
// exclusive scope claim, fails fast when another run holds it, and rolls
// the whole generation back on any stage failure. Business exception
// records are normal output and never abort the run.
func (o *Orchestrator) Run(ctx context.Context, job domain.Job) (domain.RunSummary, error) {
	scope := job.Scope()
	log := o.log.With().
		Str("job_id", job.ID).
		Str("scope", scope.Key()).
		Int("generation", job.Generation).
		Logger()

	release, err := o.store.AcquireScopeLock(ctx, scope)
	if err != nil {
		log.Warn().Err(err).Msg("scope claim refused")
		return domain.RunSummary{Status: domain.JobStatusFailed}, err
	}
	defer release()

	start := time.Now()
	var result GrowResult
	err = o.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		res, err := o.segment(ctx, tx, job, log)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		o.metrics.ObserveRun(string(domain.JobStatusFailed), time.Since(start))
		o.markFailed(ctx, job, err)
		log.Error().Err(err).Msg("segmentation run failed")
		return domain.RunSummary{Status: domain.JobStatusFailed}, err
	}

	summary := summarize(result)
	o.metrics.ObserveRun(string(domain.JobStatusCompleted), time.Since(start))
	o.metrics.AddSegments(summary.SegmentsCreated)
	o.metrics.AddVotersCovered(summary.VotersCovered)
	for exceptionType, n := range exceptionCounts(result.Exceptions) {
		o.metrics.AddExceptions(exceptionType, n)
	}

	if o.artifacts != nil {
		if key, err := ExportSegmentsGeoJSON(ctx, o.artifacts, job, result.Segments); err != nil {
			// artifacts are advisory; the committed generation stands
			log.Warn().Err(err).Msg("artifact export failed")
		} else {
			log.Info().Str("key", key).Msg("exported run artifact")
		}
	}

	log.Info().
		Int("segments", summary.SegmentsCreated).
		Int("exceptions", summary.ExceptionsRaised).
		Int("voters", summary.VotersCovered).
		Dur("elapsed", time.Since(start)).
		Msg("segmentation run completed")
	return summary, nil
}

// segment runs the four pipeline stages and persists their output through
// the supplied transaction.
func (o *Orchestrator) segment(ctx context.Context, tx domain.Transaction, job domain.Job, log zerolog.Logger) (GrowResult, error) {
	scope := job.Scope()
	voters := tx.ListVoters(scope)
	located := 0
	for _, v := range voters {
		if v.Location != nil {
			located++
		}
	}

	units, err := BuildAtomicUnits(ctx, voters)
	if err != nil {
		return GrowResult{}, err
	}
	if len(units) == 0 {
		return GrowResult{}, domain.PreconditionError{
			Stage:  "units",
			Reason: fmt.Sprintf("scope %s has no located voters", scope.Key()),
		}
	}
	log.Debug().Int("voters", len(voters)).Int("located", located).Int("units", len(units)).Msg("atomic units built")

	boundary, err := ComputeParentBoundary(units, o.concavity)
	if err != nil {
		return GrowResult{}, err
	}
	log.Debug().Float64("area_m2", boundary.AreaM2).Msg("parent boundary computed")

	cells, err := o.cells.Generate(boundary, len(units))
	if err != nil {
		return GrowResult{}, err
	}
	log.Debug().Str("strategy", o.cells.Name()).Int("cells", len(cells)).Msg("cells generated")

	result, err := GrowRegions(units, cells, job, o.bounds)
	if err != nil {
		return GrowResult{}, err
	}

	// every located voter must be accounted for in exactly one segment or
	// exception; anything else is an invariant violation, never a silent drop
	covered := 0
	for _, s := range result.Segments {
		covered += s.TotalVoters
	}
	for _, e := range result.Exceptions {
		covered += e.Metadata.VoterCount
	}
	if covered != located {
		return GrowResult{}, domain.GeometryError{
			Stage:  "finalize",
			Reason: fmt.Sprintf("voter accounting mismatch: %d covered of %d located", covered, located),
			Units:  len(units),
			Cells:  len(cells),
		}
	}

	for _, s := range result.Segments {
		if _, err := tx.CreateSegment(s); err != nil {
			return GrowResult{}, domain.PersistenceError{Op: "persist segment", Err: err}
		}
	}
	for _, e := range result.Exceptions {
		if _, err := tx.CreateException(e); err != nil {
			return GrowResult{}, domain.PersistenceError{Op: "persist exception", Err: err}
		}
	}

	summary := summarize(result)
	if err := o.recordJob(tx, job, summary, nil); err != nil {
		return GrowResult{}, err
	}
	return result, nil
}

// recordJob upserts the job row with its terminal status and summary.
func (o *Orchestrator) recordJob(tx domain.Transaction, job domain.Job, summary domain.RunSummary, runErr error) error {
	if _, ok := tx.FindJob(job.ID); !ok {
		if _, err := tx.CreateJob(job); err != nil {
			return domain.PersistenceError{Op: "create job", Err: err}
		}
	}
	_, err := tx.UpdateJob(job.ID, func(j *domain.Job) error {
		j.Status = summary.Status
		j.SegmentsCreated = summary.SegmentsCreated
		j.ExceptionsRaised = summary.ExceptionsRaised
		j.VotersCovered = summary.VotersCovered
		if runErr != nil {
			j.Error = runErr.Error()
		}
		return nil
	})
	if err != nil {
		return domain.PersistenceError{Op: "update job", Err: err}
	}
	return nil
}

// markFailed records the terminal failed status outside the rolled-back
// run transaction. Best effort: a store that cannot even record the
// failure only loses bookkeeping, not data integrity.
func (o *Orchestrator) markFailed(ctx context.Context, job domain.Job, runErr error) {
	err := o.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return o.recordJob(tx, job, domain.RunSummary{Status: domain.JobStatusFailed}, runErr)
	})
	if err != nil {
		o.log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to record job failure")
	}
}

func summarize(result GrowResult) domain.RunSummary {
	voters := 0
	for _, s := range result.Segments {
		voters += s.TotalVoters
	}
	return domain.RunSummary{
		Status:           domain.JobStatusCompleted,
		SegmentsCreated:  len(result.Segments),
		ExceptionsRaised: len(result.Exceptions),
		VotersCovered:    voters,
	}
}

func exceptionCounts(exceptions []domain.Exception) map[string]int {
	counts := make(map[string]int)
	for _, e := range exceptions {
		counts[string(e.Type)]++
	}
	return counts
}
