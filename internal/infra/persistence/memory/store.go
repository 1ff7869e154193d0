// Package memory provides the reference in-memory implementation of
// domain.PersistentStore. Transactions operate on a deep copy of state
// that replaces the live state only when the transaction function
// returns nil, so partial runs never leak.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"canvasscore/pkg/domain"
	"canvasscore/pkg/geo"
)

// Store is an in-memory PersistentStore. The zero value is not usable;
// construct with NewStore.
type Store struct {
	mu    sync.RWMutex
	state *state

	lockMu sync.Mutex
	locks  map[string]struct{}

	now func() time.Time
}

var _ domain.PersistentStore = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		state: newState(),
		locks: make(map[string]struct{}),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

type state struct {
	voters     map[string]domain.Voter
	segments   map[string]domain.Segment
	exceptions map[string]domain.Exception
	jobs       map[string]domain.Job
}

func newState() *state {
	return &state{
		voters:     make(map[string]domain.Voter),
		segments:   make(map[string]domain.Segment),
		exceptions: make(map[string]domain.Exception),
		jobs:       make(map[string]domain.Job),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, v := range s.voters {
		c.voters[id] = cloneVoter(v)
	}
	for id, seg := range s.segments {
		c.segments[id] = cloneSegment(seg)
	}
	for id, ex := range s.exceptions {
		c.exceptions[id] = ex
	}
	for id, j := range s.jobs {
		c.jobs[id] = j
	}
	return c
}

func cloneVoter(v domain.Voter) domain.Voter {
	if v.FamilyID != nil {
		fid := *v.FamilyID
		v.FamilyID = &fid
	}
	if v.Floor != nil {
		fl := *v.Floor
		v.Floor = &fl
	}
	if v.Location != nil {
		loc := *v.Location
		v.Location = &loc
	}
	return v
}

func cloneSegment(seg domain.Segment) domain.Segment {
	seg.UnitIDs = append([]string(nil), seg.UnitIDs...)
	seg.VoterIDs = append([]string(nil), seg.VoterIDs...)
	seg.Boundary.Ring = append([]geo.Point(nil), seg.Boundary.Ring...)
	return seg
}

// RunInTransaction implements domain.PersistentStore.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &transaction{state: s.state.clone(), now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// View implements domain.PersistentStore.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(&view{state: snapshot})
}

// AcquireScopeLock implements domain.PersistentStore. The lock is a
// process-local try-lock keyed by scope; it never blocks.
func (s *Store) AcquireScopeLock(_ context.Context, scope domain.Scope) (func(), error) {
	key := scope.Key()
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if _, held := s.locks[key]; held {
		return nil, domain.ScopeBusyError{Scope: scope}
	}
	s.locks[key] = struct{}{}
	var once sync.Once
	release := func() {
		once.Do(func() {
			s.lockMu.Lock()
			delete(s.locks, key)
			s.lockMu.Unlock()
		})
	}
	return release, nil
}

// Close implements domain.PersistentStore.
func (s *Store) Close() error { return nil }

// Export returns a deep copy of the full state for snapshot-backed
// stores layered on top of this one.
func (s *Store) Export() ([]domain.Voter, []domain.Segment, []domain.Exception, []domain.Job) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.state.clone()
	voters := make([]domain.Voter, 0, len(c.voters))
	for _, v := range c.voters {
		voters = append(voters, v)
	}
	segments := make([]domain.Segment, 0, len(c.segments))
	for _, seg := range c.segments {
		segments = append(segments, seg)
	}
	exceptions := make([]domain.Exception, 0, len(c.exceptions))
	for _, ex := range c.exceptions {
		exceptions = append(exceptions, ex)
	}
	jobs := make([]domain.Job, 0, len(c.jobs))
	for _, j := range c.jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(voters, func(i, j int) bool { return voters[i].ID < voters[j].ID })
	sort.Slice(segments, func(i, j int) bool { return segments[i].ID < segments[j].ID })
	sort.Slice(exceptions, func(i, j int) bool { return exceptions[i].ID < exceptions[j].ID })
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return voters, segments, exceptions, jobs
}

// Import replaces the full state from a previously exported snapshot.
func (s *Store) Import(voters []domain.Voter, segments []domain.Segment, exceptions []domain.Exception, jobs []domain.Job) {
	st := newState()
	for _, v := range voters {
		st.voters[v.ID] = cloneVoter(v)
	}
	for _, seg := range segments {
		st.segments[seg.ID] = cloneSegment(seg)
	}
	for _, ex := range exceptions {
		st.exceptions[ex.ID] = ex
	}
	for _, j := range jobs {
		st.jobs[j.ID] = j
	}
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

type transaction struct {
	state *state
	now   func() time.Time
}

var _ domain.Transaction = (*transaction)(nil)

func (t *transaction) Snapshot() domain.TransactionView {
	return &view{state: t.state.clone()}
}

func (t *transaction) CreateVoter(v domain.Voter) (domain.Voter, error) {
	if v.ID == "" {
		return domain.Voter{}, fmt.Errorf("memory: voter id is required")
	}
	if _, exists := t.state.voters[v.ID]; exists {
		return domain.Voter{}, fmt.Errorf("memory: voter %s already exists", v.ID)
	}
	ts := t.now()
	v.CreatedAt = ts
	v.UpdatedAt = ts
	t.state.voters[v.ID] = cloneVoter(v)
	return v, nil
}

func (t *transaction) CreateJob(j domain.Job) (domain.Job, error) {
	if j.ID == "" {
		return domain.Job{}, fmt.Errorf("memory: job id is required")
	}
	if _, exists := t.state.jobs[j.ID]; exists {
		return domain.Job{}, fmt.Errorf("memory: job %s already exists", j.ID)
	}
	ts := t.now()
	j.CreatedAt = ts
	j.UpdatedAt = ts
	t.state.jobs[j.ID] = j
	return j, nil
}

func (t *transaction) UpdateJob(id string, mutator func(*domain.Job) error) (domain.Job, error) {
	j, ok := t.state.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("memory: job %s not found", id)
	}
	if err := mutator(&j); err != nil {
		return domain.Job{}, err
	}
	j.UpdatedAt = t.now()
	t.state.jobs[id] = j
	return j, nil
}

func (t *transaction) CreateSegment(seg domain.Segment) (domain.Segment, error) {
	if seg.ID == "" {
		return domain.Segment{}, fmt.Errorf("memory: segment id is required")
	}
	if _, exists := t.state.segments[seg.ID]; exists {
		return domain.Segment{}, fmt.Errorf("memory: segment %s already exists", seg.ID)
	}
	ts := t.now()
	seg.CreatedAt = ts
	seg.UpdatedAt = ts
	t.state.segments[seg.ID] = cloneSegment(seg)
	return seg, nil
}

func (t *transaction) CreateException(ex domain.Exception) (domain.Exception, error) {
	if ex.ID == "" {
		return domain.Exception{}, fmt.Errorf("memory: exception id is required")
	}
	if _, exists := t.state.exceptions[ex.ID]; exists {
		return domain.Exception{}, fmt.Errorf("memory: exception %s already exists", ex.ID)
	}
	ts := t.now()
	ex.CreatedAt = ts
	ex.UpdatedAt = ts
	t.state.exceptions[ex.ID] = ex
	return ex, nil
}

func (t *transaction) ListVoters(scope domain.Scope) []domain.Voter {
	return listVoters(t.state, scope)
}

func (t *transaction) FindJob(id string) (domain.Job, bool) {
	j, ok := t.state.jobs[id]
	return j, ok
}

type view struct {
	state *state
}

var _ domain.TransactionView = (*view)(nil)

func (v *view) ListVoters(scope domain.Scope) []domain.Voter {
	return listVoters(v.state, scope)
}

func (v *view) ListSegments(scope domain.Scope) []domain.Segment {
	var out []domain.Segment
	for _, seg := range v.state.segments {
		if seg.Election == scope.Election && (scope.Node == "" || seg.Node == scope.Node) {
			out = append(out, cloneSegment(seg))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v *view) ListExceptions(scope domain.Scope) []domain.Exception {
	var out []domain.Exception
	for _, ex := range v.state.exceptions {
		if ex.Election == scope.Election && (scope.Node == "" || ex.Node == scope.Node) {
			out = append(out, ex)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v *view) FindJob(id string) (domain.Job, bool) {
	j, ok := v.state.jobs[id]
	return j, ok
}

func listVoters(st *state, scope domain.Scope) []domain.Voter {
	var out []domain.Voter
	for _, v := range st.voters {
		if v.Election == scope.Election && (scope.Node == "" || v.Node == scope.Node) {
			out = append(out, cloneVoter(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
