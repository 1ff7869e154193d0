package domain

import "context"

// Transaction exposes the domain operations a persistence implementation
// must support within an atomic scope. All writes performed through one
// transaction become visible together or not at all.
type Transaction interface {
	Snapshot() TransactionView
	CreateVoter(Voter) (Voter, error)
	CreateJob(Job) (Job, error)
	UpdateJob(id string, mutator func(*Job) error) (Job, error)
	CreateSegment(Segment) (Segment, error)
	CreateException(Exception) (Exception, error)
	ListVoters(scope Scope) []Voter
	FindJob(id string) (Job, bool)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	ListVoters(scope Scope) []Voter
	ListSegments(scope Scope) []Segment
	ListExceptions(scope Scope) []Exception
	FindJob(id string) (Job, bool)
}

// PersistentStore is a minimal abstraction over durable backends. The
// engine is written against this interface only, never against a concrete
// query language.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	View(ctx context.Context, fn func(TransactionView) error) error
	// AcquireScopeLock obtains the exclusive per-scope claim required
	// before a segmentation run starts. It returns ScopeBusyError without
	// blocking when another run holds the scope; the release function is
	// safe to call exactly once.
	AcquireScopeLock(ctx context.Context, scope Scope) (release func(), err error)
	Close() error
}
