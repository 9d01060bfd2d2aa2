// Package scraper extracts playable locations and metadata from video pages.
package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/johnrirwin/localtv/internal/models"
)

// Scraper learns what it can about a video page. Handles is a cheap check
// on the link alone.
type Scraper interface {
	Handles(link string) bool
	Scrape(ctx context.Context, link string) (*models.ScrapedData, error)
}

// UnscrapableError means the link is not something any scraper understands.
// Callers treat it as "no extra metadata", never as a failure.
type UnscrapableError struct {
	URL    string
	Reason string
}

func (e *UnscrapableError) Error() string {
	return fmt.Sprintf("cannot scrape %s: %s", e.URL, e.Reason)
}

func IsUnscrapable(err error) bool {
	var u *UnscrapableError
	return errors.As(err, &u)
}

// Chain tries each scraper that handles a link in order. An unscrapable
// answer falls through to the next one; any other error stops the chain.
type Chain []Scraper

func (c Chain) Handles(link string) bool {
	for _, s := range c {
		if s.Handles(link) {
			return true
		}
	}
	return false
}

func (c Chain) Scrape(ctx context.Context, link string) (*models.ScrapedData, error) {
	for _, s := range c {
		if !s.Handles(link) {
			continue
		}
		data, err := s.Scrape(ctx, link)
		if err == nil {
			return data, nil
		}
		if !IsUnscrapable(err) {
			return nil, err
		}
	}
	return nil, &UnscrapableError{URL: link, Reason: "no scraper recognized the link"}
}
