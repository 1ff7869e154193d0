// Package sqlite provides single-file durable persistence for
// development and small deployments. It mirrors the postgres layering:
// the in-memory store holds live state and JSON snapshot buckets in the
// database file make it durable. Scope locks are process-local; SQLite
// deployments are single-process.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"canvasscore/internal/infra/persistence/memory"
	"canvasscore/pkg/domain"
)

const (
	bucketVoters     = "voters"
	bucketSegments   = "segments"
	bucketExceptions = "exceptions"
	bucketJobs       = "jobs"
)

// Store is a SQLite-backed PersistentStore.
type Store struct {
	db  *sql.DB
	mem *memory.Store
}

var _ domain.PersistentStore = (*Store)(nil)

// NewStore opens or creates the database file at path and loads the
// latest snapshot into memory.
func NewStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// Snapshot writes replace whole buckets; one writer at a time
	// avoids SQLITE_BUSY without a retry loop.
	db.SetMaxOpenConns(1)
	s := &Store{db: db, mem: memory.NewStore()}
	if err := s.bootstrap(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.load(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) bootstrap(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS canvass_snapshots (
		bucket     TEXT PRIMARY KEY,
		payload    TEXT NOT NULL,
		updated_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlite: bootstrap schema: %w", err)
	}
	return nil
}

func (s *Store) load(ctx context.Context) error {
	var (
		voters     []domain.Voter
		segments   []domain.Segment
		exceptions []domain.Exception
		jobs       []domain.Job
	)
	targets := map[string]any{
		bucketVoters:     &voters,
		bucketSegments:   &segments,
		bucketExceptions: &exceptions,
		bucketJobs:       &jobs,
	}
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM canvass_snapshots`)
	if err != nil {
		return fmt.Errorf("sqlite: load snapshot: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var bucket, payload string
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("sqlite: scan snapshot row: %w", err)
		}
		target, ok := targets[bucket]
		if !ok {
			continue
		}
		if err := json.Unmarshal([]byte(payload), target); err != nil {
			return fmt.Errorf("sqlite: decode bucket %s: %w", bucket, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: load snapshot: %w", err)
	}
	s.mem.Import(voters, segments, exceptions, jobs)
	return nil
}

func (s *Store) persist(ctx context.Context) error {
	voters, segments, exceptions, jobs := s.mem.Export()
	buckets := []struct {
		name    string
		payload any
	}{
		{bucketVoters, voters},
		{bucketSegments, segments},
		{bucketExceptions, exceptions},
		{bucketJobs, jobs},
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()
	const upsert = `INSERT INTO canvass_snapshots (bucket, payload, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT (bucket) DO UPDATE SET payload = excluded.payload, updated_at = datetime('now')`
	for _, b := range buckets {
		payload, err := json.Marshal(b.payload)
		if err != nil {
			return fmt.Errorf("sqlite: encode bucket %s: %w", b.name, err)
		}
		if _, err := tx.ExecContext(ctx, upsert, b.name, string(payload)); err != nil {
			return fmt.Errorf("sqlite: write bucket %s: %w", b.name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// RunInTransaction implements domain.PersistentStore.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	if err := s.mem.RunInTransaction(ctx, fn); err != nil {
		return err
	}
	if err := s.persist(ctx); err != nil {
		return domain.PersistenceError{Op: "snapshot", Err: err}
	}
	return nil
}

// View implements domain.PersistentStore.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	return s.mem.View(ctx, fn)
}

// AcquireScopeLock implements domain.PersistentStore.
func (s *Store) AcquireScopeLock(ctx context.Context, scope domain.Scope) (func(), error) {
	return s.mem.AcquireScopeLock(ctx, scope)
}

// Close implements domain.PersistentStore.
func (s *Store) Close() error { return s.db.Close() }
