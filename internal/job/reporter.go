package job

import (
	"context"
	"log/slog"
)

// Reporter is the write side of the lifecycle, used by workers to move a
// job from claim to terminal state. Every method resolves to a single
// atomic Store.Apply.
type Reporter struct {
	store  Store
	logger *slog.Logger
}

// NewReporter creates a Reporter over store.
func NewReporter(store Store, logger *slog.Logger) *Reporter {
	return &Reporter{
		store:  store,
		logger: logger,
	}
}

// ReportProgress records percent complete. The first report against a
// PENDING job claims it and moves it to RUNNING.
func (r *Reporter) ReportProgress(ctx context.Context, id string, percent int) (*Job, error) {
	updated, err := r.store.Apply(ctx, id, ProgressEvent{Percent: percent})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("job progress recorded",
		slog.String("job_id", id),
		slog.Int("percent", percent),
		slog.String("status", string(updated.Status)),
	)

	return updated, nil
}

// ReportSuccess freezes the job as SUCCEEDED with the produced video URL.
// Retrying with the identical URL is a no-op.
func (r *Reporter) ReportSuccess(ctx context.Context, id, resultURL string) (*Job, error) {
	updated, err := r.store.Apply(ctx, id, SuccessEvent{ResultURL: resultURL})
	if err != nil {
		return nil, err
	}

	r.logger.Info("job succeeded",
		slog.String("job_id", id),
		slog.String("result_url", resultURL),
	)

	return updated, nil
}

// ReportFailure freezes the job as FAILED with a classified reason.
// Retrying with the identical kind and message is a no-op.
func (r *Reporter) ReportFailure(ctx context.Context, id, kind, message string) (*Job, error) {
	updated, err := r.store.Apply(ctx, id, FailureEvent{Kind: kind, Message: message})
	if err != nil {
		return nil, err
	}

	r.logger.Info("job failed",
		slog.String("job_id", id),
		slog.String("failure_kind", kind),
		slog.Int("progress", updated.Progress),
	)

	return updated, nil
}
