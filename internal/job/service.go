package job

import (
	"context"
	"log/slog"
)

// Service is the API-facing side of the lifecycle: job submission and the
// non-blocking status reads that back client polling.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a Service over store.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Create registers a new PENDING job for paperRef.
func (s *Service) Create(ctx context.Context, paperRef string) (*Job, error) {
	created, err := s.store.Create(ctx, paperRef)
	if err != nil {
		return nil, err
	}

	s.logger.Info("job created",
		slog.String("job_id", created.ID),
		slog.String("paper_ref", created.PaperRef),
	)

	return created, nil
}

// Status returns the latest committed snapshot of the job. It never blocks
// on in-flight updates; a job mid-transition is reported at its last
// committed state.
func (s *Service) Status(ctx context.Context, id string) (*Job, error) {
	return s.store.Get(ctx, id)
}

// List returns jobs matching filter, newest first, one row beyond
// filter.PageSize when a further page exists.
func (s *Service) List(ctx context.Context, filter Filter) ([]Job, error) {
	return s.store.List(ctx, filter)
}

// Stats returns the number of jobs per status.
func (s *Service) Stats(ctx context.Context) (map[Status]int, error) {
	return s.store.CountByStatus(ctx)
}
