// Package postgres layers durable PostgreSQL persistence over the
// in-memory store. State is serialized to JSON snapshot buckets inside
// the same SQL transaction that commits a run, so crash recovery always
// restores a consistent generation. Scope exclusivity uses session
// advisory locks, which release automatically if the process dies.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"

	"canvasscore/internal/infra/persistence/memory"
	"canvasscore/pkg/domain"
)

// sqlOpen is swapped by tests to avoid a live server.
var sqlOpen = sql.Open

// OverrideSQLOpen replaces the connection opener and returns a restore
// function. Intended for tests only.
func OverrideSQLOpen(fn func(driverName, dsn string) (*sql.DB, error)) func() {
	prev := sqlOpen
	sqlOpen = fn
	return func() { sqlOpen = prev }
}

const (
	bucketVoters     = "voters"
	bucketSegments   = "segments"
	bucketExceptions = "exceptions"
	bucketJobs       = "jobs"
)

// Store is a PostgreSQL-backed PersistentStore.
type Store struct {
	db  *sql.DB
	mem *memory.Store

	lockMu    sync.Mutex
	lockConns map[string]*sql.Conn
}

var _ domain.PersistentStore = (*Store)(nil)

// NewStore connects to dsn, bootstraps the snapshot schema, and loads
// the latest snapshot into memory.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres: dsn is required")
	}
	db, err := sqlOpen("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	s := &Store{db: db, mem: memory.NewStore(), lockConns: make(map[string]*sql.Conn)}
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
		payload    JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("postgres: bootstrap schema: %w", err)
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
		return fmt.Errorf("postgres: load snapshot: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("postgres: scan snapshot row: %w", err)
		}
		target, ok := targets[bucket]
		if !ok {
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return fmt.Errorf("postgres: decode bucket %s: %w", bucket, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: load snapshot: %w", err)
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
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()
	const upsert = `INSERT INTO canvass_snapshots (bucket, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (bucket) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`
	for _, b := range buckets {
		payload, err := json.Marshal(b.payload)
		if err != nil {
			return fmt.Errorf("postgres: encode bucket %s: %w", b.name, err)
		}
		if _, err := tx.ExecContext(ctx, upsert, b.name, payload); err != nil {
			return fmt.Errorf("postgres: write bucket %s: %w", b.name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// RunInTransaction implements domain.PersistentStore. The in-memory
// transaction commits first; the snapshot write then makes it durable.
// A failed snapshot write surfaces as an error so the caller never sees
// a generation the database does not hold.
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

// AcquireScopeLock implements domain.PersistentStore using
// pg_try_advisory_lock keyed by an fnv-64a hash of the scope key. The
// lock is held on a dedicated connection so it survives pool churn.
func (s *Store) AcquireScopeLock(ctx context.Context, scope domain.Scope) (func(), error) {
	key := scope.Key()
	id := advisoryKey(key)

	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if _, held := s.lockConns[key]; held {
		return nil, domain.ScopeBusyError{Scope: scope}
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, domain.PersistenceError{Op: "scope lock", Err: err}
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, id).Scan(&acquired); err != nil {
		conn.Close()
		return nil, domain.PersistenceError{Op: "scope lock", Err: err}
	}
	if !acquired {
		conn.Close()
		return nil, domain.ScopeBusyError{Scope: scope}
	}
	s.lockConns[key] = conn

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.lockMu.Lock()
			delete(s.lockConns, key)
			s.lockMu.Unlock()
			_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, id)
			conn.Close()
		})
	}
	return release, nil
}

// Close implements domain.PersistentStore.
func (s *Store) Close() error {
	s.lockMu.Lock()
	for key, conn := range s.lockConns {
		conn.Close()
		delete(s.lockConns, key)
	}
	s.lockMu.Unlock()
	return s.db.Close()
}

func advisoryKey(scopeKey string) int64 {
	h := fnv.New64a()
	h.Write([]byte(scopeKey))
	return int64(h.Sum64())
}
