package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/paperreel/backend/internal/job"
	"github.com/paperreel/backend/internal/pipeline"
)

// Failure kinds the worker records on top of the pipeline's stage kinds.
const (
	failureKindTimeout  = "timeout"
	failureKindInternal = "internal"
)

// settleTimeout bounds the terminal write of a run. It is measured from a
// fresh context: at shutdown the run context is already canceled and the
// outcome still has to reach the store.
const settleTimeout = 10 * time.Second

// processJob runs the video pipeline for a single job. A nil return means
// the job reached a terminal state and the message can be acked.
func (w *Worker) processJob(ctx context.Context, msg *jobMessage) error {
	w.logger.Info("Processing job",
		slog.String("job_id", msg.jobID),
		slog.String("worker_id", w.workerID),
	)

	// Claim the job. Reporting zero percent moves a pending row to RUNNING
	// and is rejected once the row has advanced past zero or settled.
	claimed, err := w.reporter.ReportProgress(ctx, msg.jobID, 0)
	if err != nil {
		switch {
		case job.IsNotFound(err):
			w.logger.Warn("Job record missing, dropping message",
				slog.String("job_id", msg.jobID),
			)
		case job.IsInvalidTransition(err):
			w.logger.Warn("Job already settled or claimed elsewhere, dropping message",
				slog.String("job_id", msg.jobID),
				slog.String("error", err.Error()),
			)
		default:
			w.logger.Error("Failed to claim job",
				slog.String("job_id", msg.jobID),
				slog.String("error", err.Error()),
			)
		}
		return fmt.Errorf("failed to claim job: %w", err)
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	report := func(percent int, note string) error {
		if _, err := w.reporter.ReportProgress(jobCtx, msg.jobID, percent); err != nil {
			return err
		}
		w.logger.Debug("Job progress recorded",
			slog.String("job_id", msg.jobID),
			slog.Int("percent", percent),
			slog.String("note", note),
		)
		return nil
	}

	resultURL, runErr := w.runner.Run(jobCtx, claimed.PaperRef, report)

	settleCtx, settleCancel := context.WithTimeout(context.Background(), settleTimeout)
	defer settleCancel()

	if runErr != nil {
		return w.settleFailure(settleCtx, msg.jobID, runErr)
	}

	if _, err := w.reporter.ReportSuccess(settleCtx, msg.jobID, resultURL); err != nil {
		w.logger.Error("Failed to record job success",
			slog.String("job_id", msg.jobID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to record success: %w", err)
	}

	w.logger.Info("Job completed",
		slog.String("job_id", msg.jobID),
		slog.String("result_url", resultURL),
	)

	return nil
}

// settleFailure marks the job FAILED for runErr, unless the run was
// interrupted by a storage outage or superseded by another writer.
func (w *Worker) settleFailure(ctx context.Context, jobID string, runErr error) error {
	if job.IsStorage(runErr) {
		return fmt.Errorf("job run interrupted: %w", runErr)
	}
	if job.IsInvalidTransition(runErr) || job.IsConflict(runErr) || job.IsNotFound(runErr) {
		w.logger.Warn("Job run superseded, dropping message",
			slog.String("job_id", jobID),
			slog.String("error", runErr.Error()),
		)
		return fmt.Errorf("job run superseded: %w", runErr)
	}

	kind := failureKindInternal
	message := runErr.Error()

	var stageErr *pipeline.Error
	if errors.As(runErr, &stageErr) {
		kind = stageErr.Kind
		message = stageErr.Err.Error()
	}
	// A deadline inside a stage still counts as a worker timeout.
	if errors.Is(runErr, context.DeadlineExceeded) {
		kind = failureKindTimeout
		message = fmt.Sprintf("processing exceeded %s", w.jobTimeout)
	}
	// Shutdown mid-run settles the job rather than leaving it RUNNING;
	// there is no reclamation for rows a dead worker held.
	if errors.Is(runErr, context.Canceled) {
		kind = failureKindInternal
		message = "worker shut down during processing"
	}

	if _, err := w.reporter.ReportFailure(ctx, jobID, kind, message); err != nil {
		w.logger.Error("Failed to record job failure",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to record failure: %w", err)
	}

	w.logger.Info("Job failed",
		slog.String("job_id", jobID),
		slog.String("kind", kind),
	)

	return nil
}
