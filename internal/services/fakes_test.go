package services

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"sync"
	"testing"

	"github.com/linkshelf/server/internal/models"
	"github.com/linkshelf/server/internal/queue"
	"github.com/linkshelf/server/internal/repository"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "http://links.test"

func setupStore(t *testing.T) *repository.SQLStore {
	t.Helper()

	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return repository.NewSQLStore(db, nil)
}

func setupAttachments(t *testing.T, store repository.Store) *AttachmentService {
	t.Helper()

	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	return NewAttachmentService(store.Attachments(), storage, testBaseURL, 1<<20)
}

// pngBytes returns a small valid PNG
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 10), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []*queue.EnrichItemDataJob
	err  error
}

func (q *fakeQueue) Enqueue(ctx context.Context, job *queue.EnrichItemDataJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context) (*queue.EnrichItemDataJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil, nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, nil
}

func (q *fakeQueue) Close() error { return nil }

func (q *fakeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]*models.FetchResult
	calls     []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{responses: make(map[string]*models.FetchResult)}
}

func (f *fakeFetcher) serve(url string, body []byte, contentType string) {
	f.responses[url] = &models.FetchResult{StatusCode: 200, Body: body, ContentType: contentType}
}

func (f *fakeFetcher) Get(ctx context.Context, url string) (*models.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)

	res, ok := f.responses[url]
	if !ok {
		return nil, &models.TransientFetchError{URL: url, StatusCode: 404}
	}
	return res, nil
}

type fakePreviewer struct {
	preview *models.LinkPreview
	err     error
	calls   int
	hook    func()
}

func (p *fakePreviewer) Lookup(ctx context.Context, linkURL string) (*models.LinkPreview, error) {
	p.calls++
	if p.hook != nil {
		p.hook()
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.preview, nil
}

type fakeSnapshotter struct {
	shot  []byte
	err   error
	calls int
}

func (s *fakeSnapshotter) Capture(ctx context.Context, linkURL string) ([]byte, error) {
	s.calls++
	return s.shot, s.err
}

type fakeNotifier struct {
	mu       sync.Mutex
	payloads []*models.WSItemDataEnriched
}

func (n *fakeNotifier) NotifyItemDataEnriched(payload *models.WSItemDataEnriched) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads = append(n.payloads, payload)
}

// recordingAttachments wraps a real store and remembers deletions
type recordingAttachments struct {
	AttachmentStore
	deleted []*models.Attachment
}

func (r *recordingAttachments) Delete(ctx context.Context, att *models.Attachment) error {
	r.deleted = append(r.deleted, att)
	return r.AttachmentStore.Delete(ctx, att)
}
