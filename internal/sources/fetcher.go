package sources

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/johnrirwin/localtv/internal/models"
)

// Config holds HTTP settings shared by the fetchers.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
}

func DefaultConfig() Config {
	return Config{
		UserAgent:    "LocalTV/1.0 (+https://github.com/johnrirwin/localtv)",
		Timeout:      30 * time.Second,
		MaxBodyBytes: 10 << 20,
	}
}

func (c Config) httpClient() *http.Client {
	return &http.Client{Timeout: c.Timeout}
}

// FetchResult is one poll of a source. ChangeToken is what the source
// should remember for the next conditional fetch; it is empty for
// protocols without one.
type FetchResult struct {
	Entries     []models.Entry
	ChangeToken string
	NotModified bool
}

// Fetcher retrieves the raw entries of a source.
type Fetcher interface {
	Fetch(ctx context.Context, src *models.Source) (*FetchResult, error)
}

// FetchError means the source itself could not be read. It aborts an
// import run.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Router dispatches to the fetcher matching the kind of source.
type Router struct {
	Feed   Fetcher
	Search Fetcher
}

func (r *Router) Fetch(ctx context.Context, src *models.Source) (*FetchResult, error) {
	var f Fetcher
	switch src.Kind {
	case models.SourceKindFeed:
		f = r.Feed
	case models.SourceKindSearch:
		f = r.Search
	}
	if f == nil {
		return nil, fmt.Errorf("no fetcher for source kind %q", src.Kind)
	}
	return f.Fetch(ctx, src)
}
