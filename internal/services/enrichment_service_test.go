package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/linkshelf/server/internal/models"
	"github.com/linkshelf/server/internal/queue"
	"github.com/linkshelf/server/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type enrichmentFixture struct {
	store       *repository.SQLStore
	attachments *recordingAttachments
	fetcher     *fakeFetcher
	previewer   *fakePreviewer
	snapshotter *fakeSnapshotter
	notifier    *fakeNotifier
}

func setupEnrichment(t *testing.T) *enrichmentFixture {
	t.Helper()

	store := setupStore(t)
	return &enrichmentFixture{
		store:       store,
		attachments: &recordingAttachments{AttachmentStore: setupAttachments(t, store)},
		fetcher:     newFakeFetcher(),
		previewer:   &fakePreviewer{preview: &models.LinkPreview{}},
		snapshotter: &fakeSnapshotter{},
		notifier:    &fakeNotifier{},
	}
}

func (f *enrichmentFixture) service(fallback bool) *EnrichmentService {
	return NewEnrichmentService(EnrichmentConfig{
		Store:                 f.store,
		Attachments:           f.attachments,
		Fetcher:               f.fetcher,
		Previewer:             f.previewer,
		Snapshotter:           f.snapshotter,
		Notifier:              f.notifier,
		ExplicitImageFallback: fallback,
	})
}

func (f *enrichmentFixture) pending(t *testing.T, link string, requestedImage *string) *models.ItemData {
	t.Helper()

	d := models.NewItemData(link, "root-item")
	d.RequestedImageURL = requestedImage
	inserted, err := f.store.ItemData().InsertIfAbsent(context.Background(), d)
	require.NoError(t, err)
	require.True(t, inserted)
	return d
}

func (f *enrichmentFixture) reload(t *testing.T, id string) *models.ItemData {
	t.Helper()
	d, err := f.store.ItemData().GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, d)
	return d
}

func TestEnrichmentService_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("preview candidate becomes the image", func(t *testing.T) {
		f := setupEnrichment(t)
		html := "<iframe></iframe>"
		f.previewer.preview = &models.LinkPreview{
			Type:   "video",
			Images: []string{"https://cdn.example.com/thumb.png"},
			HTML:   &html,
		}
		f.fetcher.serve("https://cdn.example.com/thumb.png", pngBytes(t, 8, 8), "image/png")
		d := f.pending(t, "https://video.example.com/watch", nil)

		require.NoError(t, f.service(false).Handle(ctx, queue.NewEnrichItemDataJob(d.ID, nil)))

		got := f.reload(t, d.ID)
		assert.False(t, got.ImagePending)
		assert.Equal(t, "video", got.ItemType)
		require.NotNil(t, got.HTMLPreview)
		assert.Equal(t, html, *got.HTMLPreview)
		require.NotNil(t, got.Image)
		assert.Equal(t, "image/png", got.Image.ContentType)
		assert.Zero(t, f.snapshotter.calls)

		require.Len(t, f.notifier.payloads, 1)
		payload := f.notifier.payloads[0]
		assert.Equal(t, d.ID, payload.ItemDataID)
		assert.Equal(t, "video", payload.ItemType)
		assert.Equal(t, StrategyPreview, payload.Strategy)
		require.NotNil(t, payload.ImageURL)
		assert.True(t, strings.HasPrefix(*payload.ImageURL, testBaseURL+"/images/thumbnails/"+got.Image.ID+"/"+got.Image.UUID))
		assert.True(t, strings.HasSuffix(*payload.ImageURL, "?size=640x%3E"))
	})

	t.Run("explicit image wins without a preview lookup", func(t *testing.T) {
		f := setupEnrichment(t)
		img := "https://cdn.example.com/explicit.png"
		f.fetcher.serve(img, pngBytes(t, 4, 4), "")
		d := f.pending(t, "https://example.com/page", nil)

		require.NoError(t, f.service(false).Handle(ctx, queue.NewEnrichItemDataJob(d.ID, &img)))

		got := f.reload(t, d.ID)
		assert.False(t, got.ImagePending)
		assert.NotNil(t, got.Image)
		assert.Zero(t, f.previewer.calls)
	})

	t.Run("replayed job falls back to the stored image url", func(t *testing.T) {
		f := setupEnrichment(t)
		img := "https://cdn.example.com/stored.png"
		f.fetcher.serve(img, pngBytes(t, 4, 4), "image/png")
		d := f.pending(t, "https://example.com/page", &img)

		require.NoError(t, f.service(false).Handle(ctx, queue.NewEnrichItemDataJob(d.ID, nil)))

		assert.Equal(t, []string{img}, f.fetcher.calls)
		assert.NotNil(t, f.reload(t, d.ID).Image)
	})

	t.Run("explicit image failure fails the job", func(t *testing.T) {
		f := setupEnrichment(t)
		img := "https://cdn.example.com/missing.png"
		f.snapshotter.shot = pngBytes(t, 4, 4)
		d := f.pending(t, "https://example.com/page", nil)

		err := f.service(false).Handle(ctx, queue.NewEnrichItemDataJob(d.ID, &img))
		assert.True(t, models.IsTransientFetchError(err))
		assert.True(t, f.reload(t, d.ID).ImagePending)
		assert.Zero(t, f.previewer.calls)
		assert.Zero(t, f.snapshotter.calls)
		assert.Empty(t, f.notifier.payloads)
	})

	t.Run("explicit image that is not an image fails the job", func(t *testing.T) {
		f := setupEnrichment(t)
		img := "https://cdn.example.com/page.html"
		f.fetcher.serve(img, []byte("<html><body>hi</body></html>"), "text/html")
		d := f.pending(t, "https://example.com/page", nil)

		err := f.service(false).Handle(ctx, queue.NewEnrichItemDataJob(d.ID, &img))
		assert.ErrorIs(t, err, errNotAnImage)
		assert.True(t, f.reload(t, d.ID).ImagePending)
	})

	t.Run("fallback switch lets explicit failures fall through", func(t *testing.T) {
		f := setupEnrichment(t)
		img := "https://cdn.example.com/missing.png"
		f.snapshotter.shot = pngBytes(t, 4, 4)
		d := f.pending(t, "https://example.com/page", nil)

		require.NoError(t, f.service(true).Handle(ctx, queue.NewEnrichItemDataJob(d.ID, &img)))

		got := f.reload(t, d.ID)
		assert.False(t, got.ImagePending)
		assert.NotNil(t, got.Image)
		assert.Equal(t, 1, f.snapshotter.calls)
		require.Len(t, f.notifier.payloads, 1)
		assert.Equal(t, StrategySnapshot, f.notifier.payloads[0].Strategy)
	})

	t.Run("lookup error falls through to snapshot", func(t *testing.T) {
		f := setupEnrichment(t)
		f.previewer.err = errors.New("preview service down")
		f.snapshotter.shot = pngBytes(t, 4, 4)
		d := f.pending(t, "https://example.com/page", nil)

		require.NoError(t, f.service(false).Handle(ctx, queue.NewEnrichItemDataJob(d.ID, nil)))

		got := f.reload(t, d.ID)
		assert.False(t, got.ImagePending)
		assert.Equal(t, "url", got.ItemType)
		assert.Equal(t, 1, f.snapshotter.calls)
	})

	t.Run("failed candidate keeps the lookup type and uses the snapshot", func(t *testing.T) {
		f := setupEnrichment(t)
		f.previewer.preview = &models.LinkPreview{Type: "photo", Images: []string{"https://cdn.example.com/404.png"}}
		f.snapshotter.shot = pngBytes(t, 4, 4)
		d := f.pending(t, "https://example.com/page", nil)

		require.NoError(t, f.service(false).Handle(ctx, queue.NewEnrichItemDataJob(d.ID, nil)))

		got := f.reload(t, d.ID)
		assert.Equal(t, "photo", got.ItemType)
		assert.NotNil(t, got.Image)
		assert.Equal(t, 1, f.snapshotter.calls)
	})

	t.Run("relative candidates resolve against the link", func(t *testing.T) {
		f := setupEnrichment(t)
		f.previewer.preview = &models.LinkPreview{Images: []string{"/static/og.png"}}
		f.fetcher.serve("https://example.com/static/og.png", pngBytes(t, 4, 4), "image/png")
		d := f.pending(t, "https://example.com/blog/post", nil)

		require.NoError(t, f.service(false).Handle(ctx, queue.NewEnrichItemDataJob(d.ID, nil)))

		assert.Equal(t, []string{"https://example.com/static/og.png"}, f.fetcher.calls)
		assert.NotNil(t, f.reload(t, d.ID).Image)
	})

	t.Run("snapshot error fails the job", func(t *testing.T) {
		f := setupEnrichment(t)
		f.snapshotter.err = errors.New("browser crashed")
		d := f.pending(t, "https://example.com/page", nil)

		assert.Error(t, f.service(false).Handle(ctx, queue.NewEnrichItemDataJob(d.ID, nil)))
		assert.True(t, f.reload(t, d.ID).ImagePending)
	})

	t.Run("missing browser finishes without an image", func(t *testing.T) {
		f := setupEnrichment(t)
		f.snapshotter.err = fmt.Errorf("snapshot failed: %w", ErrBrowserNotFound)
		d := f.pending(t, "https://example.com/page", nil)

		require.NoError(t, f.service(false).Handle(ctx, queue.NewEnrichItemDataJob(d.ID, nil)))

		got := f.reload(t, d.ID)
		assert.False(t, got.ImagePending)
		assert.Nil(t, got.Image)
		assert.Equal(t, 1, f.snapshotter.calls)
		require.Len(t, f.notifier.payloads, 1)
	})

	t.Run("rod snapshotter without chromium finishes the job", func(t *testing.T) {
		if BrowserAvailable() {
			t.Skip("chromium is installed")
		}
		f := setupEnrichment(t)
		svc := NewEnrichmentService(EnrichmentConfig{
			Store:       f.store,
			Attachments: f.attachments,
			Fetcher:     f.fetcher,
			Previewer:   f.previewer,
			Snapshotter: NewRodSnapshotter(time.Second),
			Notifier:    f.notifier,
		})
		d := f.pending(t, "https://example.com/page", nil)

		require.NoError(t, svc.Handle(ctx, queue.NewEnrichItemDataJob(d.ID, nil)))
		assert.False(t, f.reload(t, d.ID).ImagePending)
	})

	t.Run("exhausted chain clears pending without an image", func(t *testing.T) {
		f := setupEnrichment(t)
		svc := NewEnrichmentService(EnrichmentConfig{
			Store:       f.store,
			Attachments: f.attachments,
			Fetcher:     f.fetcher,
			Notifier:    f.notifier,
		})
		d := f.pending(t, "https://example.com/page", nil)

		require.NoError(t, svc.Handle(ctx, queue.NewEnrichItemDataJob(d.ID, nil)))

		got := f.reload(t, d.ID)
		assert.False(t, got.ImagePending)
		assert.Nil(t, got.Image)
		assert.Equal(t, "url", got.ItemType)
		require.Len(t, f.notifier.payloads, 1)
		assert.Nil(t, f.notifier.payloads[0].ImageURL)
	})

	t.Run("malformed link skips every strategy", func(t *testing.T) {
		f := setupEnrichment(t)
		img := "https://cdn.example.com/explicit.png"
		d := f.pending(t, "not a link", nil)

		require.NoError(t, f.service(false).Handle(ctx, queue.NewEnrichItemDataJob(d.ID, &img)))

		assert.False(t, f.reload(t, d.ID).ImagePending)
		assert.Empty(t, f.fetcher.calls)
		assert.Zero(t, f.previewer.calls)
		assert.Zero(t, f.snapshotter.calls)
	})

	t.Run("finished record is a no-op", func(t *testing.T) {
		f := setupEnrichment(t)
		f.snapshotter.shot = pngBytes(t, 4, 4)
		d := f.pending(t, "https://example.com/page", nil)
		svc := f.service(false)

		require.NoError(t, svc.Handle(ctx, queue.NewEnrichItemDataJob(d.ID, nil)))
		require.NoError(t, svc.Handle(ctx, queue.NewEnrichItemDataJob(d.ID, nil)))

		assert.Equal(t, 1, f.snapshotter.calls)
		assert.Len(t, f.notifier.payloads, 1)
	})

	t.Run("missing record is a no-op", func(t *testing.T) {
		f := setupEnrichment(t)
		require.NoError(t, f.service(false).Handle(ctx, queue.NewEnrichItemDataJob("missing", nil)))
		assert.Zero(t, f.previewer.calls)
	})

	t.Run("losing the race discards the stored image", func(t *testing.T) {
		f := setupEnrichment(t)
		f.snapshotter.shot = pngBytes(t, 4, 4)
		d := f.pending(t, "https://example.com/page", nil)
		f.previewer.hook = func() {
			// a concurrent run finishes first
			_, err := f.store.ItemData().CompleteEnrichment(ctx, d.ID, &models.EnrichmentResult{ItemType: "rich"})
			require.NoError(t, err)
		}

		require.NoError(t, f.service(false).Handle(ctx, queue.NewEnrichItemDataJob(d.ID, nil)))

		got := f.reload(t, d.ID)
		assert.Equal(t, "rich", got.ItemType)
		assert.Nil(t, got.Image)
		require.Len(t, f.attachments.deleted, 1)
		assert.Empty(t, f.notifier.payloads)

		att, err := f.store.Attachments().GetByID(ctx, f.attachments.deleted[0].ID)
		require.NoError(t, err)
		assert.Nil(t, att)
	})
}
