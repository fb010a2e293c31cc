package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linkshelf/server/internal/models"
)

// HTTPFetcher downloads a URL
type HTTPFetcher interface {
	Get(ctx context.Context, url string) (*models.FetchResult, error)
}

// HTTPImageFetcher fetches remote images with a timeout and a size limit.
// Every failure is a TransientFetchError so the job gets retried.
type HTTPImageFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPImageFetcher creates a fetcher. maxBytes <= 0 means unlimited.
func NewHTTPImageFetcher(timeout time.Duration, maxBytes int64) *HTTPImageFetcher {
	return &HTTPImageFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

func (f *HTTPImageFetcher) Get(ctx context.Context, url string) (*models.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &models.TransientFetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", "linkshelf-enrichment/1.0")
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &models.TransientFetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, &models.TransientFetchError{URL: url, StatusCode: resp.StatusCode}
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &models.TransientFetchError{URL: url, StatusCode: resp.StatusCode, Err: err}
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, &models.TransientFetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("body exceeds %d bytes", f.maxBytes),
		}
	}

	return &models.FetchResult{
		StatusCode:  resp.StatusCode,
		Body:        data,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
