package metasearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/johnrirwin/localtv/internal/models"
	"github.com/johnrirwin/localtv/internal/ratelimit"
	"github.com/johnrirwin/localtv/internal/sources"
)

// Provider is one video search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, q Query) ([]models.Entry, error)
}

// FeedSearchProvider queries a service that answers searches with a feed,
// such as a YouTube or Vimeo search RSS endpoint. The URL template must
// contain "{query}".
type FeedSearchProvider struct {
	name        string
	urlTemplate string
	client      *http.Client
	limiter     ratelimit.RateLimiter
	config      sources.Config
}

func NewFeedSearchProvider(name, urlTemplate string, limiter ratelimit.RateLimiter, config sources.Config) (*FeedSearchProvider, error) {
	if !strings.Contains(urlTemplate, "{query}") {
		return nil, fmt.Errorf("search url template for %s has no {query} placeholder", name)
	}
	return &FeedSearchProvider{
		name:        name,
		urlTemplate: urlTemplate,
		client:      &http.Client{Timeout: config.Timeout},
		limiter:     limiter,
		config:      config,
	}, nil
}

func (p *FeedSearchProvider) Name() string {
	return p.name
}

func (p *FeedSearchProvider) Search(ctx context.Context, q Query) ([]models.Entry, error) {
	searchURL := strings.ReplaceAll(p.urlTemplate, "{query}", url.QueryEscape(q.String()))
	if err := ratelimit.WaitURL(ctx, p.limiter, searchURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("User-Agent", p.config.UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", p.name, resp.StatusCode)
	}

	return sources.ParseFeed(io.LimitReader(resp.Body, p.config.MaxBodyBytes))
}
