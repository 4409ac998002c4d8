package browser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	cdppage "github.com/chromedp/cdproto/page"

	"github.com/copymill/webprobe/storage"
)

// ScreenshotOptions controls a single capture.
type ScreenshotOptions struct {
	// Path is where the image is persisted. The format is inferred from
	// the suffix (.jpg/.jpeg means JPEG, anything else PNG).
	Path string
	// Quality applies to JPEG captures only (0-100).
	Quality int64
	// FullPage captures beyond the viewport.
	FullPage bool
}

// Screenshotter captures page screenshots and persists them as run
// artifacts.
type Screenshotter struct {
	persister storage.FilePersister
}

// NewScreenshotter returns a Screenshotter that writes through the
// given persister.
func NewScreenshotter(persister storage.FilePersister) *Screenshotter {
	return &Screenshotter{persister: persister}
}

// Screenshot captures the page and, when opts.Path is set, persists the
// image there. The raw image bytes are returned either way.
func (s *Screenshotter) Screenshot(ctx context.Context, p *Page, opts ScreenshotOptions) ([]byte, error) {
	capture := cdppage.CaptureScreenshot()

	if format(opts.Path) == "jpeg" {
		capture = capture.WithFormat(cdppage.CaptureScreenshotFormatJpeg)
		if opts.Quality > 0 {
			capture = capture.WithQuality(opts.Quality)
		}
	} else {
		capture = capture.WithFormat(cdppage.CaptureScreenshotFormatPng)
	}
	if opts.FullPage {
		capture = capture.WithCaptureBeyondViewport(true)
	}

	buf, err := capture.Do(p.execCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}

	if opts.Path != "" {
		if err := s.persister.Persist(ctx, opts.Path, bytes.NewReader(buf)); err != nil {
			return nil, fmt.Errorf("persisting screenshot to %q: %w", opts.Path, err)
		}
	}

	return buf, nil
}

func format(path string) string {
	if strings.HasSuffix(path, ".jpg") || strings.HasSuffix(path, ".jpeg") {
		return "jpeg"
	}
	return "png"
}
