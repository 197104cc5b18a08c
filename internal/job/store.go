package job

import (
	"context"
	"time"
)

// Cursor marks a position in the newest-first job listing.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Filter narrows and pages List results.
type Filter struct {
	Status   Status
	PaperRef string
	PageSize int
	Cursor   *Cursor
}

// Store persists jobs and serializes concurrent transitions per job.
//
// Apply validates an event against the latest committed snapshot and
// persists the outcome atomically, or not at all. Of two concurrent calls
// for the same job exactly one is ordered first; the other is validated
// against the winner's state and, if it cannot be serialized, receives
// ErrConflict.
type Store interface {
	// Create inserts a new PENDING job with progress 0 for paperRef.
	Create(ctx context.Context, paperRef string) (*Job, error)

	// Get returns the latest committed snapshot of the job.
	Get(ctx context.Context, id string) (*Job, error)

	// Apply runs ev through the transition rules and persists the result.
	// Tolerated terminal retries change nothing and return the stored row.
	Apply(ctx context.Context, id string, ev Event) (*Job, error)

	// List returns jobs matching filter, newest first. Implementations
	// fetch one row beyond PageSize so callers can detect a further page.
	List(ctx context.Context, filter Filter) ([]Job, error)

	// CountByStatus returns the number of jobs per status.
	CountByStatus(ctx context.Context) (map[Status]int, error)
}
