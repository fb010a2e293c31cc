package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/linkshelf/server/internal/models"
	"github.com/linkshelf/server/internal/observability"
)

// ErrBrowserNotFound is returned when no Chromium binary can be located
var ErrBrowserNotFound = errors.New("rod browser dependency not found")

// BrowserAvailable reports whether a Chromium binary can be located
func BrowserAvailable() bool {
	_, exists := launcher.LookPath()
	return exists
}

// rodBrowser launches a headless browser per call
type rodBrowser struct {
	timeout time.Duration
	log     *observability.Logger
}

// withPage opens linkURL in a fresh browser, waits for load and runs fn
func (b *rodBrowser) withPage(ctx context.Context, linkURL string, fn func(page *rod.Page) error) error {
	log := b.log.WithContext(ctx).WithField("url", linkURL)

	path, exists := launcher.LookPath()
	if !exists {
		return ErrBrowserNotFound
	}

	l := launcher.New().Bin(path).Headless(true)
	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	defer l.Cleanup()

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer func() {
		if closeErr := browser.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("Error closing rod browser instance")
		}
	}()

	pageCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	page, err := browser.Context(pageCtx).Page(proto.TargetCreateTarget{URL: linkURL})
	if err != nil {
		return fmt.Errorf("failed to create page: %w", err)
	}

	if err := page.WaitLoad(); err != nil {
		if errors.Is(pageCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("page load timed out for %s: %w", linkURL, pageCtx.Err())
		}
		return fmt.Errorf("failed waiting for page load: %w", err)
	}

	return fn(page)
}

// RodSnapshotter captures a screenshot of a page in headless Chromium
type RodSnapshotter struct {
	browser rodBrowser
}

// NewRodSnapshotter creates a new RodSnapshotter
func NewRodSnapshotter(timeout time.Duration) *RodSnapshotter {
	return &RodSnapshotter{browser: rodBrowser{
		timeout: timeout,
		log:     observability.GetLogger().Component("snapshot"),
	}}
}

// Capture returns a PNG of the page viewport
func (s *RodSnapshotter) Capture(ctx context.Context, linkURL string) ([]byte, error) {
	var shot []byte
	err := s.browser.withPage(ctx, linkURL, func(page *rod.Page) error {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             1280,
			Height:            800,
			DeviceScaleFactor: 1,
		}); err != nil {
			return err
		}

		var err error
		shot, err = page.Screenshot(false, &proto.PageCaptureScreenshot{
			Format: proto.PageCaptureScreenshotFormatPng,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot failed: %w", err)
	}
	return shot, nil
}

// RodPreviewer reads OpenGraph and Twitter card tags from a rendered page
type RodPreviewer struct {
	browser rodBrowser
}

// NewRodPreviewer creates a new RodPreviewer
func NewRodPreviewer(timeout time.Duration) *RodPreviewer {
	return &RodPreviewer{browser: rodBrowser{
		timeout: timeout,
		log:     observability.GetLogger().Component("preview"),
	}}
}

func (p *RodPreviewer) Lookup(ctx context.Context, linkURL string) (*models.LinkPreview, error) {
	preview := &models.LinkPreview{Type: models.DefaultItemType}

	err := p.browser.withPage(ctx, linkURL, func(page *rod.Page) error {
		if ogType := metaContent(page, `meta[property="og:type"]`); strings.HasPrefix(ogType, "video") {
			preview.Type = "video"
		}

		for _, selector := range []string{
			`meta[property="og:image"]`,
			`meta[property="og:image:url"]`,
			`meta[name="twitter:image"]`,
		} {
			if img := metaContent(page, selector); img != "" {
				preview.Images = append(preview.Images, img)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return preview, nil
}

// metaContent returns the trimmed content attribute of the first match, or
// "" when the tag is missing. It does not wait for the element to appear.
func metaContent(page *rod.Page, selector string) string {
	has, el, err := page.Has(selector)
	if err != nil || !has {
		return ""
	}
	content, err := el.Attribute("content")
	if err != nil || content == nil {
		return ""
	}
	return strings.TrimSpace(*content)
}
