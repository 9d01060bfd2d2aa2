package sources

import (
	"context"
	"fmt"

	"github.com/johnrirwin/localtv/internal/models"
)

// Searcher runs a saved search query across video providers.
type Searcher interface {
	Search(ctx context.Context, query string) ([]models.Entry, error)
}

// SearchFetcher turns a saved search into entries. Searches have no change
// token; every run re-queries and relies on deduplication.
type SearchFetcher struct {
	searcher Searcher
}

func NewSearchFetcher(searcher Searcher) *SearchFetcher {
	return &SearchFetcher{searcher: searcher}
}

func (f *SearchFetcher) Fetch(ctx context.Context, src *models.Source) (*FetchResult, error) {
	if src.Origin == "" {
		return nil, &FetchError{URL: "search:", Err: fmt.Errorf("empty query")}
	}
	entries, err := f.searcher.Search(ctx, src.Origin)
	if err != nil {
		return nil, &FetchError{URL: "search:" + src.Origin, Err: err}
	}
	return &FetchResult{Entries: entries}, nil
}
