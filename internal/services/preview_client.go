package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/linkshelf/server/internal/models"
)

// LinkPreviewer looks up what a third party knows about a link
type LinkPreviewer interface {
	Lookup(ctx context.Context, linkURL string) (*models.LinkPreview, error)
}

// EmbedPreviewClient talks to an Embedly-style extract API:
// GET {endpoint}?url={link}&key={key} returning type, images and html.
type EmbedPreviewClient struct {
	endpoint string
	key      string
	client   *http.Client
}

// NewEmbedPreviewClient creates a new EmbedPreviewClient
func NewEmbedPreviewClient(endpoint, key string, timeout time.Duration) *EmbedPreviewClient {
	return &EmbedPreviewClient{
		endpoint: endpoint,
		key:      key,
		client:   &http.Client{Timeout: timeout},
	}
}

type embedResponse struct {
	Type   string `json:"type"`
	HTML   string `json:"html"`
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	Media struct {
		HTML string `json:"html"`
	} `json:"media"`
}

func (c *EmbedPreviewClient) Lookup(ctx context.Context, linkURL string) (*models.LinkPreview, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid preview endpoint: %w", err)
	}
	q := u.Query()
	q.Set("url", linkURL)
	if c.key != "" {
		q.Set("key", c.key)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("preview lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, fmt.Errorf("preview lookup returned status %d", resp.StatusCode)
	}

	var body embedResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode preview: %w", err)
	}

	preview := &models.LinkPreview{Type: body.Type}
	for _, img := range body.Images {
		if img.URL != "" {
			preview.Images = append(preview.Images, img.URL)
		}
	}

	html := body.HTML
	if html == "" {
		html = body.Media.HTML
	}
	if html != "" {
		preview.HTML = &html
	}
	return preview, nil
}
