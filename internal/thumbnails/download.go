package thumbnails

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/johnrirwin/localtv/internal/ratelimit"
)

// ErrInvalidThumbnailURL means the URL is malformed or the server says the
// image does not exist. Retrying will not help.
var ErrInvalidThumbnailURL = errors.New("thumbnail url is invalid")

// Downloader fetches thumbnail images, retrying transient failures.
type Downloader struct {
	client   *http.Client
	limiter  ratelimit.RateLimiter
	maxBytes int64
	maxTries uint
	backoff  func() backoff.BackOff
}

func NewDownloader(limiter ratelimit.RateLimiter, timeout time.Duration) *Downloader {
	return &Downloader{
		client:   &http.Client{Timeout: timeout},
		limiter:  limiter,
		maxBytes: 10 << 20,
		maxTries: 3,
		backoff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 1 * time.Second
			bo.MaxInterval = 10 * time.Second
			return bo
		},
	}
}

// Fetch downloads rawURL. 5xx, 429 and network errors are retried with
// exponential backoff; other non-200 answers fail immediately with
// ErrInvalidThumbnailURL.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidThumbnailURL, rawURL)
	}

	operation := func() ([]byte, error) {
		if err := ratelimit.WaitURL(ctx, d.limiter, rawURL); err != nil {
			return nil, backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("%w: %v", ErrInvalidThumbnailURL, err))
		}
		req.Header.Set("Accept", "image/*")

		resp, err := d.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to download thumbnail: %w", err)
		}
		defer resp.Body.Close()

		if isRetryableStatus(resp.StatusCode) {
			return nil, fmt.Errorf("thumbnail server returned status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, backoff.Permanent(fmt.Errorf("%w: status %d", ErrInvalidThumbnailURL, resp.StatusCode))
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read thumbnail: %w", err)
		}
		if int64(len(data)) > d.maxBytes {
			return nil, backoff.Permanent(fmt.Errorf("thumbnail larger than %d bytes", d.maxBytes))
		}
		return data, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(d.backoff()),
		backoff.WithMaxTries(d.maxTries),
		backoff.WithMaxElapsedTime(30*time.Second),
	)
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
