package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/linkshelf/server/internal/config"
	"github.com/linkshelf/server/internal/observability"
)

// EnrichItemDataJob asks the worker to enrich one ItemData record. It carries
// identifiers only; the handler re-reads current state.
type EnrichItemDataJob struct {
	ID         string    `json:"id"`
	ItemDataID string    `json:"item_data_id"`
	ImageURL   *string   `json:"image_url,omitempty"`
	Attempt    int       `json:"attempt"`
	NotBefore  time.Time `json:"not_before"`
}

// NewEnrichItemDataJob creates a first-attempt job that is due immediately
func NewEnrichItemDataJob(itemDataID string, imageURL *string) *EnrichItemDataJob {
	return &EnrichItemDataJob{
		ID:         uuid.New().String(),
		ItemDataID: itemDataID,
		ImageURL:   imageURL,
		Attempt:    1,
		NotBefore:  time.Now().UTC(),
	}
}

// Retry returns the follow-up job for a failed attempt, due after delay
func (j *EnrichItemDataJob) Retry(delay time.Duration) *EnrichItemDataJob {
	return &EnrichItemDataJob{
		ID:         uuid.New().String(),
		ItemDataID: j.ItemDataID,
		ImageURL:   j.ImageURL,
		Attempt:    j.Attempt + 1,
		NotBefore:  time.Now().UTC().Add(delay),
	}
}

// Ready reports whether the job may run at now
func (j *EnrichItemDataJob) Ready(now time.Time) bool {
	return !j.NotBefore.After(now)
}

// Queue is a durable at-least-once job queue. Dequeue claims the next due job
// and returns nil when none is ready; a claimed job that fails is handed back
// through Enqueue with a later NotBefore.
type Queue interface {
	Enqueue(ctx context.Context, job *EnrichItemDataJob) error
	Dequeue(ctx context.Context) (*EnrichItemDataJob, error)
	Close() error
}

// New opens the queue backend selected by cfg.Driver
func New(cfg config.Queue, log *observability.Logger) (Queue, error) {
	switch cfg.Driver {
	case "badger":
		return NewBadgerQueue(cfg.BadgerPath, log)
	case "redis":
		return NewRedisQueue(cfg.RedisAddr, "", log)
	case "kafka":
		return NewKafkaQueue(strings.Split(cfg.KafkaBrokers, ","), cfg.KafkaTopic, log)
	default:
		return nil, fmt.Errorf("unsupported queue driver %q", cfg.Driver)
	}
}

func prepare(job *EnrichItemDataJob) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.NotBefore.IsZero() {
		job.NotBefore = time.Now().UTC()
	}
	if job.Attempt == 0 {
		job.Attempt = 1
	}
}
