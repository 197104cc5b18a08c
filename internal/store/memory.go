// Package store provides the job.Store implementations: an in-process map
// store for tests and embedded use, and a SQL store that runs on PostgreSQL
// in production and SQLite locally.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paperreel/backend/internal/job"
)

// Memory is an in-process job.Store backed by a map. A single mutex
// serializes every operation, which makes it the reference implementation
// for the transition semantics.
type Memory struct {
	mu   sync.Mutex
	jobs map[string]*job.Job
	now  func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs: make(map[string]*job.Job),
		now:  time.Now,
	}
}

func (m *Memory) Create(ctx context.Context, paperRef string) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	created := &job.Job{
		ID:        uuid.New().String(),
		PaperRef:  paperRef,
		Status:    job.StatusPending,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.jobs[created.ID] = created
	return created.Clone(), nil
}

func (m *Memory) Get(ctx context.Context, id string) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, job.ErrNotFound)
	}
	return cur.Clone(), nil
}

func (m *Memory) Apply(ctx context.Context, id string, ev job.Event) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, job.ErrNotFound)
	}

	next, changed, err := job.Transition(cur, ev, m.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", id, err)
	}
	if !changed {
		return next, nil
	}

	m.jobs[id] = next
	return next.Clone(), nil
}

func (m *Memory) List(ctx context.Context, filter job.Filter) ([]job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]job.Job, 0, len(m.jobs))
	for _, cur := range m.jobs {
		if filter.Status != "" && cur.Status != filter.Status {
			continue
		}
		if filter.PaperRef != "" && cur.PaperRef != filter.PaperRef {
			continue
		}
		matched = append(matched, *cur.Clone())
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if filter.Cursor != nil {
		cut := sort.Search(len(matched), func(i int) bool {
			if !matched[i].CreatedAt.Equal(filter.Cursor.CreatedAt) {
				return matched[i].CreatedAt.Before(filter.Cursor.CreatedAt)
			}
			return matched[i].ID < filter.Cursor.ID
		})
		matched = matched[cut:]
	}

	if filter.PageSize > 0 && len(matched) > filter.PageSize+1 {
		matched = matched[:filter.PageSize+1]
	}

	return matched, nil
}

func (m *Memory) CountByStatus(ctx context.Context) (map[job.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[job.Status]int)
	for _, cur := range m.jobs {
		counts[cur.Status]++
	}
	return counts, nil
}
