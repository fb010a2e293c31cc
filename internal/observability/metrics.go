package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Enrichment job outcomes
const (
	OutcomeEnriched  = "enriched"
	OutcomeExhausted = "exhausted"
	OutcomeSkipped   = "skipped"
	OutcomeRaced     = "raced"
	OutcomeFailed    = "failed"
	OutcomeAbandoned = "abandoned"
)

// Metrics holds domain metrics for items, upvotes and the enrichment pipeline
type Metrics struct {
	jobs       metric.Int64Counter
	duration   metric.Float64Histogram
	enqueued   metric.Int64Counter
	upvotes    metric.Int64Counter
	itemsSaved metric.Int64Counter
}

// NewMetrics creates domain metrics instruments. When no meter
// provider is registered the global no-op provider is used.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	jobs, err := meter.Int64Counter(
		"enrichment.jobs",
		metric.WithDescription("Enrichment jobs processed, by outcome and strategy"),
		metric.WithUnit("{jobs}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"enrichment.duration",
		metric.WithDescription("Enrichment job duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	enqueued, err := meter.Int64Counter(
		"enrichment.enqueued",
		metric.WithDescription("Enrichment jobs enqueued, by source"),
		metric.WithUnit("{jobs}"),
	)
	if err != nil {
		return nil, err
	}

	upvotes, err := meter.Int64Counter(
		"linkshelf.upvotes",
		metric.WithDescription("Upvote set changes"),
		metric.WithUnit("{changes}"),
	)
	if err != nil {
		return nil, err
	}

	itemsSaved, err := meter.Int64Counter(
		"linkshelf.items.created",
		metric.WithDescription("Collection items created, by dedup path"),
		metric.WithUnit("{items}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		jobs:       jobs,
		duration:   duration,
		enqueued:   enqueued,
		upvotes:    upvotes,
		itemsSaved: itemsSaved,
	}, nil
}

// RecordJob records one processed enrichment job
func (m *Metrics) RecordJob(ctx context.Context, outcome, strategy string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("strategy", strategy),
	)
	m.jobs.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(d.Milliseconds()), attrs)
}

// RecordEnqueue records a job handed to the queue
func (m *Metrics) RecordEnqueue(ctx context.Context, source string, success bool) {
	if m == nil {
		return
	}
	m.enqueued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.Bool("success", success),
	))
}

// RecordUpvote records an upvote set change; added is false for removals
func (m *Metrics) RecordUpvote(ctx context.Context, added bool) {
	if m == nil {
		return
	}
	m.upvotes.Add(ctx, 1, metric.WithAttributes(attribute.Bool("added", added)))
}

// RecordItemCreated records a created item and which dedup path it took
// ("new", "existing" or "clone")
func (m *Metrics) RecordItemCreated(ctx context.Context, path string) {
	if m == nil {
		return
	}
	m.itemsSaved.Add(ctx, 1, metric.WithAttributes(attribute.String("dedup_path", path)))
}
