package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"canvasscore/internal/blob"
	"canvasscore/internal/infra/persistence/memory"
	"canvasscore/pkg/domain"
	"canvasscore/pkg/geo"
)

// seedScope stores nine 5-voter families on a 3x3 grid, 45 voters total.
func seedScope(t *testing.T, store domain.PersistentStore, election, node string) {
	t.Helper()
	err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				famID := fmt.Sprintf("fam-%d%d", i, j)
				loc := geo.Point{Lat: 40.0 + float64(i)*0.01, Lon: 23.0 + float64(j)*0.01}
				for m := 0; m < 5; m++ {
					v := domain.Voter{
						Base:     domain.Base{ID: fmt.Sprintf("%s-m%d", famID, m)},
						Election: election,
						Node:     node,
						FamilyID: &famID,
						Location: &loc,
					}
					if _, err := tx.CreateVoter(v); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed voters: %v", err)
	}
}

func testJob(election, node string) domain.Job {
	return domain.Job{
		Base:       domain.Base{ID: "job-" + election},
		Election:   election,
		Node:       node,
		Generation: 1,
		Status:     domain.JobStatusPending,
	}
}

func TestOrchestratorRunCompletes(t *testing.T) {
	store := memory.NewStore()
	seedScope(t, store, "2026-general", "north")

	orch := NewOrchestrator(store, Bounds{MinVoters: 10, MaxVoters: 30})
	summary, err := orch.Run(context.Background(), testJob("2026-general", "north"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Status != domain.JobStatusCompleted {
		t.Fatalf("summary status = %s", summary.Status)
	}
	if summary.SegmentsCreated == 0 {
		t.Fatal("expected at least one segment")
	}

	scope := domain.Scope{Election: "2026-general", Node: "north"}
	err = store.View(context.Background(), func(v domain.TransactionView) error {
		segments := v.ListSegments(scope)
		if len(segments) != summary.SegmentsCreated {
			t.Fatalf("persisted %d segments, summary says %d", len(segments), summary.SegmentsCreated)
		}
		covered := 0
		for _, s := range segments {
			covered += s.TotalVoters
		}
		for _, e := range v.ListExceptions(scope) {
			covered += e.Metadata.VoterCount
		}
		if covered != 45 {
			t.Fatalf("segments and exceptions cover %d voters, want 45", covered)
		}
		job, ok := v.FindJob("job-2026-general")
		if !ok {
			t.Fatal("job record missing")
		}
		if job.Status != domain.JobStatusCompleted || job.VotersCovered != summary.VotersCovered {
			t.Fatalf("job record = %+v", job)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestOrchestratorRunDeterministic(t *testing.T) {
	runOnce := func() []domain.Segment {
		store := memory.NewStore()
		seedScope(t, store, "2026-general", "north")
		orch := NewOrchestrator(store, Bounds{MinVoters: 10, MaxVoters: 30})
		if _, err := orch.Run(context.Background(), testJob("2026-general", "north")); err != nil {
			t.Fatalf("Run: %v", err)
		}
		var segments []domain.Segment
		_ = store.View(context.Background(), func(v domain.TransactionView) error {
			segments = v.ListSegments(domain.Scope{Election: "2026-general", Node: "north"})
			return nil
		})
		return segments
	}
	first := runOnce()
	second := runOnce()
	if len(first) != len(second) {
		t.Fatalf("segment counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].TotalVoters != second[i].TotalVoters {
			t.Fatalf("segment %d differs between runs", i)
		}
		if len(first[i].VoterIDs) != len(second[i].VoterIDs) {
			t.Fatalf("segment %d membership differs between runs", i)
		}
		for j := range first[i].VoterIDs {
			if first[i].VoterIDs[j] != second[i].VoterIDs[j] {
				t.Fatalf("segment %d voter order differs at %d", i, j)
			}
		}
	}
}

func TestOrchestratorEmptyScopeFailsWithoutWrites(t *testing.T) {
	store := memory.NewStore()
	orch := NewOrchestrator(store, Bounds{MinVoters: 10, MaxVoters: 30})

	summary, err := orch.Run(context.Background(), testJob("2026-general", "empty"))
	var precondition domain.PreconditionError
	if !errors.As(err, &precondition) {
		t.Fatalf("expected PreconditionError, got %v", err)
	}
	if summary.Status != domain.JobStatusFailed {
		t.Fatalf("summary status = %s", summary.Status)
	}

	scope := domain.Scope{Election: "2026-general", Node: "empty"}
	_ = store.View(context.Background(), func(v domain.TransactionView) error {
		if n := len(v.ListSegments(scope)); n != 0 {
			t.Fatalf("rolled-back run persisted %d segments", n)
		}
		job, ok := v.FindJob("job-2026-general")
		if !ok {
			t.Fatal("failed run should still record the job")
		}
		if job.Status != domain.JobStatusFailed || job.Error == "" {
			t.Fatalf("job record = %+v", job)
		}
		return nil
	})
}

func TestOrchestratorFailsFastWhenScopeBusy(t *testing.T) {
	store := memory.NewStore()
	seedScope(t, store, "2026-general", "north")
	scope := domain.Scope{Election: "2026-general", Node: "north"}

	release, err := store.AcquireScopeLock(context.Background(), scope)
	if err != nil {
		t.Fatalf("AcquireScopeLock: %v", err)
	}
	defer release()

	orch := NewOrchestrator(store, Bounds{MinVoters: 10, MaxVoters: 30})
	_, err = orch.Run(context.Background(), testJob("2026-general", "north"))
	var busy domain.ScopeBusyError
	if !errors.As(err, &busy) {
		t.Fatalf("expected ScopeBusyError, got %v", err)
	}

	release()
	if _, err := orch.Run(context.Background(), testJob("2026-general", "north")); err != nil {
		t.Fatalf("run after release: %v", err)
	}
}

func TestOrchestratorExportsRunArtifact(t *testing.T) {
	store := memory.NewStore()
	seedScope(t, store, "2026-general", "north")
	artifacts := blob.NewMemory()

	orch := NewOrchestrator(store, Bounds{MinVoters: 10, MaxVoters: 30},
		WithArtifactStore(artifacts))
	job := testJob("2026-general", "north")
	if _, err := orch.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}

	key := fmt.Sprintf("runs/%s/%s/segments.geojson", job.Election, job.ID)
	info, rc, err := artifacts.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("artifact %s missing: %v", key, err)
	}
	rc.Close()
	if info.ContentType != "application/geo+json" {
		t.Fatalf("artifact content type = %s", info.ContentType)
	}
	if info.Size == 0 {
		t.Fatal("artifact is empty")
	}
}
