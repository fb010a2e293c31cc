package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/linkshelf/server/internal/models"
	"github.com/linkshelf/server/internal/observability"
	"github.com/linkshelf/server/internal/queue"
	"github.com/linkshelf/server/internal/repository"
)

// Strategy names reported in logs, metrics and notifications
const (
	StrategyExplicitImage = "explicit_image"
	StrategyPreview       = "preview"
	StrategySnapshot      = "snapshot"
	StrategyNone          = "none"
)

var errNotAnImage = errors.New("response is not an image")

// Snapshotter renders a page and returns image bytes
type Snapshotter interface {
	Capture(ctx context.Context, linkURL string) ([]byte, error)
}

// Notifier is told when an ItemData leaves the pending state
type Notifier interface {
	NotifyItemDataEnriched(payload *models.WSItemDataEnriched)
}

// EnrichmentConfig holds the collaborators of the enrichment pipeline.
// Previewer, Snapshotter and Notifier are optional.
type EnrichmentConfig struct {
	Store                 repository.Store
	Attachments           AttachmentStore
	Fetcher               HTTPFetcher
	Previewer             LinkPreviewer
	Snapshotter           Snapshotter
	Notifier              Notifier
	Metrics               *observability.Metrics
	ExplicitImageFallback bool
}

// fetchedImage is the output of a strategy that found an image
type fetchedImage struct {
	body        []byte
	contentType string
}

// enrichmentRun is the state one job threads through the strategy chain
type enrichmentRun struct {
	data     *models.ItemData
	imageURL *string
	result   *models.EnrichmentResult
}

// strategy returns an image, nil to fall through, or an error that fails the job
type strategy struct {
	name string
	run  func(ctx context.Context, r *enrichmentRun) (*fetchedImage, error)
}

// EnrichmentService resolves preview images and HTML for pending ItemData
type EnrichmentService struct {
	cfg        EnrichmentConfig
	strategies []strategy
	log        *observability.Logger
}

// NewEnrichmentService creates a new EnrichmentService
func NewEnrichmentService(cfg EnrichmentConfig) *EnrichmentService {
	s := &EnrichmentService{
		cfg: cfg,
		log: observability.GetLogger().Component("enrichment"),
	}
	s.strategies = []strategy{
		{name: StrategyExplicitImage, run: s.explicitImage},
		{name: StrategyPreview, run: s.previewLookup},
		{name: StrategySnapshot, run: s.snapshot},
	}
	return s
}

// Handle processes one job. A returned error means the job should be retried.
func (s *EnrichmentService) Handle(ctx context.Context, job *queue.EnrichItemDataJob) error {
	ctx, span := observability.StartServiceSpan(ctx, "EnrichmentService", "Handle",
		observability.ItemDataID(job.ItemDataID))
	defer span.End()

	start := time.Now()
	log := s.log.WithContext(ctx).WithField("item_data_id", job.ItemDataID).WithField("attempt", job.Attempt)

	outcome, strategyName, err := s.handle(ctx, job)
	s.cfg.Metrics.RecordJob(ctx, outcome, strategyName, time.Since(start))
	span.SetAttributes(observability.Duration(time.Since(start)))

	if err != nil {
		observability.RecordError(span, err)
		log.WithError(err).Warn("Enrichment job failed")
		return err
	}

	observability.SetSuccess(span)
	log.WithField("outcome", outcome).WithField("strategy", strategyName).
		WithField("duration_ms", time.Since(start).Milliseconds()).Info("Enrichment job finished")
	return nil
}

func (s *EnrichmentService) handle(ctx context.Context, job *queue.EnrichItemDataJob) (string, string, error) {
	data, err := s.cfg.Store.ItemData().GetByID(ctx, job.ItemDataID)
	if err != nil {
		return observability.OutcomeFailed, StrategyNone, fmt.Errorf("failed to get item data: %w", err)
	}
	if data == nil || !data.ImagePending {
		return observability.OutcomeSkipped, StrategyNone, nil
	}

	run := &enrichmentRun{
		data:     data,
		imageURL: job.ImageURL,
		result:   &models.EnrichmentResult{},
	}
	if run.imageURL == nil {
		run.imageURL = data.RequestedImageURL
	}

	img, strategyName, err := s.runStrategies(ctx, run)
	if err != nil {
		return observability.OutcomeFailed, strategyName, err
	}
	run.result.Strategy = strategyName

	var att *models.Attachment
	if img != nil {
		att, err = s.cfg.Attachments.Store(ctx, img.body, img.contentType)
		if err != nil {
			return observability.OutcomeFailed, strategyName, fmt.Errorf("failed to store image: %w", err)
		}
		run.result.ImageAttachmentID = &att.ID
	}

	updated, err := s.cfg.Store.ItemData().CompleteEnrichment(ctx, data.ID, run.result)
	if err != nil {
		s.discard(ctx, att)
		return observability.OutcomeFailed, strategyName, fmt.Errorf("failed to complete enrichment: %w", err)
	}
	if !updated {
		// Another run finished first
		s.discard(ctx, att)
		return observability.OutcomeRaced, strategyName, nil
	}

	s.notify(data, run.result, att, strategyName)

	if !run.result.HasImage() {
		return observability.OutcomeExhausted, strategyName, nil
	}
	return observability.OutcomeEnriched, strategyName, nil
}

// runStrategies walks the chain until a strategy yields an image. A stored
// link that is not a fetchable URL skips every strategy.
func (s *EnrichmentService) runStrategies(ctx context.Context, run *enrichmentRun) (*fetchedImage, string, error) {
	if !models.IsWellFormedLink(run.data.LinkURL) {
		return nil, StrategyNone, nil
	}

	for _, st := range s.strategies {
		img, err := st.run(ctx, run)
		if err != nil {
			return nil, st.name, err
		}
		if img != nil {
			return img, st.name, nil
		}
	}
	return nil, StrategyNone, nil
}

func (s *EnrichmentService) explicitImage(ctx context.Context, run *enrichmentRun) (*fetchedImage, error) {
	if run.imageURL == nil || *run.imageURL == "" {
		return nil, nil
	}

	img, err := s.fetchImage(ctx, *run.imageURL)
	if err != nil {
		if s.cfg.ExplicitImageFallback {
			s.log.WithContext(ctx).WithError(err).Debug("Explicit image failed, falling through")
			return nil, nil
		}
		return nil, err
	}
	return img, nil
}

func (s *EnrichmentService) previewLookup(ctx context.Context, run *enrichmentRun) (*fetchedImage, error) {
	if s.cfg.Previewer == nil {
		return nil, nil
	}

	preview, err := s.cfg.Previewer.Lookup(ctx, run.data.LinkURL)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Debug("Preview lookup failed, falling through")
		return nil, nil
	}

	if t := strings.TrimSpace(preview.Type); t != "" {
		run.result.ItemType = t
	}
	if preview.HTML != nil {
		run.result.HTMLPreview = preview.HTML
	}

	if len(preview.Images) == 0 {
		return nil, nil
	}

	candidate := resolveAgainst(run.data.LinkURL, preview.Images[0])
	img, err := s.fetchImage(ctx, candidate)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("candidate", candidate).Debug("Preview image failed, falling through")
		return nil, nil
	}
	return img, nil
}

func (s *EnrichmentService) snapshot(ctx context.Context, run *enrichmentRun) (*fetchedImage, error) {
	if s.cfg.Snapshotter == nil {
		return nil, nil
	}

	shot, err := s.cfg.Snapshotter.Capture(ctx, run.data.LinkURL)
	if errors.Is(err, ErrBrowserNotFound) {
		// A missing browser never recovers on retry; finish without an image
		s.log.WithContext(ctx).WithError(err).Warn("Snapshot unavailable, finishing without an image")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(shot) == 0 {
		return nil, nil
	}
	return &fetchedImage{body: shot, contentType: "image/png"}, nil
}

// fetchImage downloads rawURL and requires the body to sniff as an image
func (s *EnrichmentService) fetchImage(ctx context.Context, rawURL string) (*fetchedImage, error) {
	res, err := s.cfg.Fetcher.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	contentType := DetectImageType(res.Body, res.ContentType)
	if len(res.Body) == 0 || !strings.HasPrefix(contentType, "image/") {
		return nil, &models.TransientFetchError{URL: rawURL, StatusCode: res.StatusCode, Err: errNotAnImage}
	}
	return &fetchedImage{body: res.Body, contentType: contentType}, nil
}

func (s *EnrichmentService) discard(ctx context.Context, att *models.Attachment) {
	if att == nil {
		return
	}
	if err := s.cfg.Attachments.Delete(ctx, att); err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("attachment_id", att.ID).Warn("Failed to delete unused attachment")
	}
}

func (s *EnrichmentService) notify(data *models.ItemData, result *models.EnrichmentResult, att *models.Attachment, strategyName string) {
	if s.cfg.Notifier == nil {
		return
	}

	itemType := data.ItemType
	if result.ItemType != "" {
		itemType = result.ItemType
	}

	payload := &models.WSItemDataEnriched{
		ItemDataID: data.ID,
		ItemType:   itemType,
		Strategy:   strategyName,
	}
	if att != nil {
		imageURL := s.cfg.Attachments.ThumbnailURL(att, DefaultThumbnailSize)
		payload.ImageURL = &imageURL
	}
	s.cfg.Notifier.NotifyItemDataEnriched(payload)
}

// resolveAgainst resolves a possibly relative candidate URL against the link
func resolveAgainst(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
