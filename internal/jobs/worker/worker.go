package worker

import (
	"context"
	"sync"
	"time"

	"github.com/yungbote/processing-backend/internal/jobs/runtime"
	"github.com/yungbote/processing-backend/internal/observability"
	"github.com/yungbote/processing-backend/internal/platform/envutil"
	"github.com/yungbote/processing-backend/internal/platform/logger"
	"github.com/yungbote/processing-backend/internal/queue"
)

type Config struct {
	Concurrency  int
	PollInterval time.Duration
	BatchSize    int
	RetryDelay   time.Duration
	// StaleRunning is the lease after which an unacknowledged active job is claimed again.
	StaleRunning time.Duration
}

func LoadConfig() Config {
	return Config{
		Concurrency:  envutil.Int("REMINDER_WORKER_CONCURRENCY", 2),
		PollInterval: envutil.Millis("REMINDER_WORKER_POLL_MS", time.Second),
		BatchSize:    envutil.Int("REMINDER_WORKER_BATCH", 10),
		RetryDelay:   envutil.Millis("REMINDER_WORKER_RETRY_MS", 30*time.Second),
		StaleRunning: envutil.Millis("REMINDER_JOB_LEASE_MS", queue.DefaultStaleRunning),
	}
}

// Worker polls a queue.Consumer and dispatches due jobs through the registry.
type Worker struct {
	log      *logger.Logger
	consumer queue.Consumer
	registry *runtime.Registry
	metrics  *observability.Metrics
	cfg      Config
	now      func() time.Time
}

func NewWorker(baseLog *logger.Logger, consumer queue.Consumer, registry *runtime.Registry, metrics *observability.Metrics, cfg Config) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 30 * time.Second
	}
	if cfg.StaleRunning <= 0 {
		cfg.StaleRunning = queue.DefaultStaleRunning
	}
	return &Worker{
		log:      baseLog.With("component", "ReminderWorker"),
		consumer: consumer,
		registry: registry,
		metrics:  metrics,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Start launches the worker loops and returns immediately. The returned WaitGroup is done once
// every loop has observed ctx cancellation.
func (w *Worker) Start(ctx context.Context) *sync.WaitGroup {
	w.log.Info("Starting reminder worker pool", "concurrency", w.cfg.Concurrency, "poll_ms", w.cfg.PollInterval.Milliseconds())
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		workerID := i + 1
		go func() {
			defer wg.Done()
			w.runLoop(ctx, workerID)
		}()
	}
	return &wg
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			if _, err := w.Tick(ctx); err != nil {
				w.log.Warn("Claim failed", "worker_id", workerID, "error", err)
			}
		}
	}
}

// Tick claims one batch of due jobs and runs them. It returns the number of jobs processed.
func (w *Worker) Tick(ctx context.Context) (int, error) {
	jobs, err := w.consumer.Claim(ctx, w.now(), w.cfg.BatchSize, w.cfg.StaleRunning)
	if err != nil {
		return 0, err
	}
	for _, job := range jobs {
		w.process(ctx, job)
	}
	return len(jobs), nil
}

func (w *Worker) process(ctx context.Context, job *queue.Job) {
	start := w.now()
	runErr := w.registry.Dispatch(ctx, job)
	status := "succeeded"
	if runErr != nil {
		status = "failed"
	}
	w.metrics.ObserveJob(job.Type, status, time.Since(start))

	if runErr == nil {
		if err := w.consumer.Ack(ctx, job); err != nil {
			w.log.Warn("Ack failed", "job_id", job.ID, "job_type", job.Type, "error", err)
		}
		return
	}

	w.log.Warn("Job failed",
		"job_id", job.ID,
		"job_type", job.Type,
		"attempt", job.Attempts,
		"max_attempts", job.MaxAttempts,
		"error", runErr,
	)
	retryAt := w.now().Add(backoff(w.cfg.RetryDelay, job.Attempts))
	if err := w.consumer.Nack(ctx, job, runErr, retryAt); err != nil {
		w.log.Warn("Nack failed", "job_id", job.ID, "job_type", job.Type, "error", err)
	}
}

func backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d > time.Hour {
			return time.Hour
		}
	}
	return d
}
