// Package worker consumes job messages from RabbitMQ and drives the video
// pipeline for each one, recording progress and outcomes on the job store.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/paperreel/backend/internal/job"
	"github.com/paperreel/backend/internal/pipeline"
	"github.com/paperreel/backend/shared/rabbitmq"
)

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Reporter      *job.Reporter
	Runner        pipeline.Runner
	RabbitClient  *rabbitmq.Client
	Concurrency   int
	PrefetchCount int
	JobTimeout    time.Duration
	QueueName     string
}

// jobMessage pairs a parsed queue message with its delivery handle, so the
// pool acks on the channel the message arrived on.
type jobMessage struct {
	jobID       string
	deliveryTag uint64
	acker       amqp.Acknowledger
}

// Worker represents the background job worker
type Worker struct {
	logger        *slog.Logger
	reporter      *job.Reporter
	runner        pipeline.Runner
	rabbitClient  *rabbitmq.Client
	workerID      string
	concurrency   int
	prefetchCount int
	jobTimeout    time.Duration
	queueName     string
	jobsChan      chan *jobMessage
	wg            sync.WaitGroup
	stopChan      chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	return &Worker{
		logger:        cfg.Logger,
		reporter:      cfg.Reporter,
		runner:        cfg.Runner,
		rabbitClient:  cfg.RabbitClient,
		workerID:      fmt.Sprintf("worker-%s", uuid.NewString()[:8]),
		concurrency:   cfg.Concurrency,
		prefetchCount: cfg.PrefetchCount,
		jobTimeout:    cfg.JobTimeout,
		queueName:     cfg.QueueName,
		jobsChan:      make(chan *jobMessage),
		stopChan:      make(chan struct{}),
	}
}

// Start begins consuming and processing jobs. It blocks until ctx is
// canceled or the delivery channel closes.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to set up consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
