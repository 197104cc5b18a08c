package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/paperreel/backend/internal/job"
)

// Publisher enqueues a serialized message for the worker service.
// *rabbitmq.Client satisfies it.
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
	IsConnected() bool
}

// Pinger reports whether the job store's database answers. A nil Pinger is
// allowed for stores with no external database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Service   *job.Service
	Publisher Publisher
	DB        Pinger
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger    *slog.Logger
	service   *job.Service
	publisher Publisher
	db        Pinger
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		service:   deps.Service,
		publisher: deps.Publisher,
		db:        deps.DB,
	}
}

// statusForError maps the job error kinds onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case job.IsNotFound(err):
		return http.StatusNotFound
	case job.IsInvalidTransition(err):
		return http.StatusUnprocessableEntity
	case job.IsConflict(err):
		return http.StatusConflict
	case job.IsStorage(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

const healthCheckTimeout = 2 * time.Second
