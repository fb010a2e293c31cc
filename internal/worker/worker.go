package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	mapset "github.com/deckarep/golang-set/v2"
	cron "github.com/robfig/cron"

	"github.com/linkshelf/server/internal/observability"
	"github.com/linkshelf/server/internal/queue"
	"github.com/linkshelf/server/internal/repository"
)

const (
	defaultBaseBackoff = 5 * time.Second
	maxBackoff         = 10 * time.Minute
	sweepBatchSize     = 100
)

// Handler processes one enrichment job. An error asks for a retry.
type Handler interface {
	Handle(ctx context.Context, job *queue.EnrichItemDataJob) error
}

// Config controls scheduling and retries
type Config struct {
	Concurrency   int
	PollSchedule  string
	SweepSchedule string
	SweepAfter    time.Duration
	MaxAttempts   int
	BaseBackoff   time.Duration
}

// Worker drains the enrichment queue on a cron schedule with a bounded pool
// of goroutines and periodically re-enqueues records left pending.
type Worker struct {
	cfg     Config
	queue   queue.Queue
	handler Handler
	store   repository.Store
	metrics *observability.Metrics
	log     *observability.Logger

	cron     *cron.Cron
	running  mapset.Set[string] // scheduled tasks currently executing
	inFlight mapset.Set[string] // item data ids being handled
	sem      chan struct{} // one slot per concurrent job
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a worker. Zero config values fall back to defaults.
func New(cfg Config, q queue.Queue, handler Handler, store repository.Store, metrics *observability.Metrics) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollSchedule == "" {
		cfg.PollSchedule = "@every 1s"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		cfg:      cfg,
		queue:    q,
		handler:  handler,
		store:    store,
		metrics:  metrics,
		log:      observability.GetLogger().Component("worker"),
		cron:     cron.New(),
		running:  mapset.NewSet[string](),
		inFlight: mapset.NewSet[string](),
		sem:      make(chan struct{}, cfg.Concurrency),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start registers the poll and sweep schedules and starts the cron
func (w *Worker) Start() error {
	if err := w.cron.AddFunc(w.cfg.PollSchedule, w.exclusive("poll", func() {
		w.PollOnce(w.ctx)
	})); err != nil {
		return fmt.Errorf("failed to schedule poll: %w", err)
	}

	if w.cfg.SweepSchedule != "" {
		if err := w.cron.AddFunc(w.cfg.SweepSchedule, w.exclusive("sweep", func() {
			if _, err := w.Sweep(w.ctx, time.Now().UTC()); err != nil {
				w.log.WithError(err).Error("Pending sweep failed")
			}
		})); err != nil {
			return fmt.Errorf("failed to schedule sweep: %w", err)
		}
	}

	w.cron.Start()
	w.log.WithField("concurrency", w.cfg.Concurrency).
		WithField("poll", w.cfg.PollSchedule).
		WithField("sweep", w.cfg.SweepSchedule).
		Info("Enrichment worker started")
	return nil
}

// Stop halts the schedules, cancels running jobs and waits for them
func (w *Worker) Stop() {
	w.log.Info("Stopping enrichment worker")
	w.cron.Stop()
	w.cancel()
	w.wg.Wait()
}

// exclusive skips a tick while the previous run of the same task is active
func (w *Worker) exclusive(name string, fn func()) func() {
	return func() {
		if !w.running.Add(name) {
			w.log.WithField("task", name).Debug("Task is already running")
			return
		}
		defer w.running.Remove(name)
		fn()
	}
}

// PollOnce claims due jobs until the queue is empty or every slot is busy.
// Jobs run in their own goroutines.
func (w *Worker) PollOnce(ctx context.Context) {
	for {
		select {
		case w.sem <- struct{}{}:
		default:
			return
		}

		job, err := w.queue.Dequeue(ctx)
		if err != nil || job == nil {
			<-w.sem
			if err != nil {
				w.log.WithError(err).Error("Failed to dequeue job")
			}
			return
		}

		if !w.inFlight.Add(job.ItemDataID) {
			// The running job settles the record; this copy is redundant
			<-w.sem
			w.log.WithField("item_data_id", job.ItemDataID).Debug("Dropping duplicate delivery")
			continue
		}

		w.wg.Add(1)
		go func() {
			defer func() {
				w.inFlight.Remove(job.ItemDataID)
				<-w.sem
				w.wg.Done()
			}()
			w.process(ctx, job)
		}()
	}
}

func (w *Worker) process(ctx context.Context, job *queue.EnrichItemDataJob) {
	err := w.handler.Handle(ctx, job)
	if err == nil {
		return
	}

	log := w.log.WithContext(ctx).WithError(err).
		WithField("item_data_id", job.ItemDataID).
		WithField("attempt", job.Attempt)

	if job.Attempt >= w.cfg.MaxAttempts {
		if markErr := w.store.ItemData().MarkAbandoned(ctx, job.ItemDataID, time.Now().UTC()); markErr != nil {
			log.WithField("mark_error", markErr.Error()).Error("Failed to mark item data abandoned")
		}
		w.metrics.RecordJob(ctx, observability.OutcomeAbandoned, "none", 0)
		log.Error("Enrichment abandoned after max attempts, image stays pending")
		return
	}

	delay := Backoff(job.Attempt, w.cfg.BaseBackoff)
	enqueueErr := w.queue.Enqueue(ctx, job.Retry(delay))
	w.metrics.RecordEnqueue(ctx, "retry", enqueueErr == nil)
	if enqueueErr != nil {
		log.WithField("enqueue_error", enqueueErr.Error()).Error("Failed to re-enqueue job, leaving it to the sweeper")
		return
	}
	log.WithField("retry_in", delay.String()).Warn("Enrichment failed, retry scheduled")
}

// Sweep re-enqueues records still pending that were last touched more than
// SweepAfter before now. It returns how many jobs it enqueued.
func (w *Worker) Sweep(ctx context.Context, now time.Time) (int, error) {
	pending, err := w.store.ItemData().ListPending(ctx, now.Add(-w.cfg.SweepAfter), sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending item data: %w", err)
	}

	enqueued := 0
	for _, d := range pending {
		err := w.queue.Enqueue(ctx, queue.NewEnrichItemDataJob(d.ID, d.RequestedImageURL))
		w.metrics.RecordEnqueue(ctx, "sweep", err == nil)
		if err != nil {
			return enqueued, fmt.Errorf("failed to enqueue %s: %w", d.ID, err)
		}
		if err := w.store.ItemData().Touch(ctx, d.ID, now); err != nil {
			return enqueued, fmt.Errorf("failed to touch %s: %w", d.ID, err)
		}
		enqueued++
	}

	if enqueued > 0 {
		w.log.WithField("count", enqueued).Info("Re-enqueued pending item data")
	}
	return enqueued, nil
}

// Backoff returns the delay before retrying after the given attempt:
// base doubled per attempt, capped at ten minutes
func Backoff(attempt int, base time.Duration) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxBackoff,
	}
	b.Reset()

	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}
