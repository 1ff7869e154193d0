package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"canvasscore/pkg/domain"
	"canvasscore/pkg/geo"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := NewStore(context.Background(), path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewStoreRequiresPath(t *testing.T) {
	if _, err := NewStore(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSnapshotSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "canvass.db")
	store := openTestStore(t, path)

	err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		v := domain.Voter{
			Base:     domain.Base{ID: "v1"},
			Election: "e1",
			Node:     "n1",
			Location: &geo.Point{Lat: 40, Lon: 23},
		}
		if _, err := tx.CreateVoter(v); err != nil {
			return err
		}
		seg := domain.Segment{
			Base:     domain.Base{ID: "s1"},
			Election: "e1",
			Node:     "n1",
			VoterIDs: []string{"v1"},
			Boundary: geo.BoundingBox{MinLat: 39, MinLon: 22, MaxLat: 41, MaxLon: 24}.Polygon(),
		}
		if _, err := tx.CreateSegment(seg); err != nil {
			return err
		}
		_, err := tx.CreateJob(domain.Job{Base: domain.Base{ID: "j1"}, Election: "e1", Status: domain.JobStatusCompleted})
		return err
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openTestStore(t, path)
	_ = reopened.View(context.Background(), func(v domain.TransactionView) error {
		scope := domain.Scope{Election: "e1", Node: "n1"}
		voters := v.ListVoters(scope)
		if len(voters) != 1 || voters[0].Location == nil || voters[0].Location.Lat != 40 {
			t.Fatalf("restored voters = %+v", voters)
		}
		segments := v.ListSegments(scope)
		if len(segments) != 1 || len(segments[0].Boundary.Ring) == 0 {
			t.Fatalf("restored segments = %+v", segments)
		}
		job, ok := v.FindJob("j1")
		if !ok || job.Status != domain.JobStatusCompleted {
			t.Fatalf("restored job = %+v ok=%v", job, ok)
		}
		return nil
	})
}

func TestRollbackWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "canvass.db")
	store := openTestStore(t, path)

	boom := errors.New("boom")
	err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateVoter(domain.Voter{Base: domain.Base{ID: "v1"}, Election: "e1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected propagated error, got %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openTestStore(t, path)
	_ = reopened.View(context.Background(), func(v domain.TransactionView) error {
		if n := len(v.ListVoters(domain.Scope{Election: "e1"})); n != 0 {
			t.Fatalf("rolled-back transaction persisted %d voters", n)
		}
		return nil
	})
}

func TestScopeLockDelegates(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "canvass.db"))
	scope := domain.Scope{Election: "e1"}

	release, err := store.AcquireScopeLock(context.Background(), scope)
	if err != nil {
		t.Fatalf("AcquireScopeLock: %v", err)
	}
	defer release()

	_, err = store.AcquireScopeLock(context.Background(), scope)
	var busy domain.ScopeBusyError
	if !errors.As(err, &busy) {
		t.Fatalf("expected ScopeBusyError, got %v", err)
	}
}
