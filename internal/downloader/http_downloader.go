// Package downloader fetches media assets over HTTP with content-type and
// payload-size gates.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iconidentify/gifstash/internal/config"
	"github.com/iconidentify/gifstash/internal/domain"
	"github.com/iconidentify/gifstash/internal/urlcheck"
)

// staticImageTypes are content types rejected outright: this system stores
// motion media only.
var staticImageTypes = []string{
	"image/png",
	"image/jpeg",
	"image/jpg",
	"image/webp",
	"image/bmp",
}

// Result is a fully buffered download.
type Result struct {
	Data        []byte
	ContentType string
}

// HTTPDownloader implements media fetching over HTTP.
type HTTPDownloader struct {
	client    *http.Client
	userAgent string
	referer   string
	maxBytes  int64
	retryCfg  RetryConfig
	logger    *slog.Logger
}

// NewHTTPDownloader creates a new HTTP-based media downloader.
func NewHTTPDownloader(cfg config.DownloadConfig, logger *slog.Logger) *HTTPDownloader {
	if logger == nil {
		logger = slog.Default()
	}
	retryCfg := DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		retryCfg.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.RetryDelay > 0 {
		retryCfg.InitialDelay = cfg.RetryDelay
	}
	if cfg.MaxRetryDelay > 0 {
		retryCfg.MaxDelay = cfg.MaxRetryDelay
	}
	return &HTTPDownloader{
		client:    &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
		referer:   cfg.Referer,
		maxBytes:  cfg.MaxBytes,
		retryCfg:  retryCfg,
		logger:    logger,
	}
}

// MaxBytes returns the configured payload ceiling.
func (d *HTTPDownloader) MaxBytes() int64 {
	return d.maxBytes
}

// Fetch downloads the media at mediaURL into memory. The URL is
// re-validated defensively even though the orchestrator validates first.
// Transient upstream throttling is retried with backoff; everything else
// fails on the first attempt. Oversize rejections report the declared
// Content-Length when the response carries one; chunked responses
// without a length report one byte past the configured ceiling.
func (d *HTTPDownloader) Fetch(ctx context.Context, mediaURL string) (*Result, error) {
	if err := urlcheck.ValidateMediaURL(mediaURL); err != nil {
		return nil, err
	}

	return RetryWithCheck(ctx, d.retryCfg,
		func() (*Result, error) { return d.fetchOnce(ctx, mediaURL) },
		isRetryable,
	)
}

func (d *HTTPDownloader) fetchOnce(ctx context.Context, mediaURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	// Some CDN paths refuse requests without a platform referer.
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Referer", d.referer)
	req.Header.Set("Accept", "video/mp4,video/*;q=0.9,*/*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errThrottled
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", domain.ErrDownloadFailed, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	for _, img := range staticImageTypes {
		if strings.Contains(contentType, img) {
			return nil, domain.ErrStaticImage
		}
	}

	// If the server declares an oversize body, fail before buffering it.
	if resp.ContentLength > d.maxBytes {
		return nil, &domain.PayloadTooLargeError{Size: resp.ContentLength, Limit: d.maxBytes}
	}

	// Read one byte past the ceiling so the measured size distinguishes
	// "exactly at the limit" from "over it".
	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > d.maxBytes {
		size := int64(len(data))
		if resp.ContentLength > size {
			size = resp.ContentLength
		}
		return nil, &domain.PayloadTooLargeError{Size: size, Limit: d.maxBytes}
	}

	d.logger.Debug("media downloaded",
		"url", mediaURL,
		"size_bytes", len(data),
		"content_type", contentType,
	)

	return &Result{Data: data, ContentType: contentType}, nil
}

// errThrottled marks a 429 for the retry loop; it never escapes Fetch
// unless all attempts are exhausted.
var errThrottled = errors.New("upstream throttled request")

func isRetryable(err error) bool {
	return errors.Is(err, errThrottled)
}
