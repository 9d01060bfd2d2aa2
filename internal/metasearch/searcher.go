package metasearch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/johnrirwin/localtv/internal/cache"
	"github.com/johnrirwin/localtv/internal/logging"
	"github.com/johnrirwin/localtv/internal/models"
)

const (
	// LiveSearchBudget bounds how long an interactive search waits for
	// slow providers.
	LiveSearchBudget = 20 * time.Second
	// MaxLiveResults caps the interspersed live search result list.
	MaxLiveResults = 40
)

var ErrEmptyQuery = errors.New("search query has no terms")

// Searcher fans a query out to every provider and merges the answers.
type Searcher struct {
	providers []Provider
	cache     *cache.Cache[[]models.Entry]
	logger    *logging.Logger
	budget    time.Duration
}

func New(providers []Provider, c *cache.Cache[[]models.Entry], logger *logging.Logger) *Searcher {
	return &Searcher{
		providers: providers,
		cache:     c,
		logger:    logger,
		budget:    LiveSearchBudget,
	}
}

// WithBudget overrides the live search time budget.
func (s *Searcher) WithBudget(d time.Duration) *Searcher {
	s.budget = d
	return s
}

type providerResult struct {
	index   int
	name    string
	entries []models.Entry
	err     error
}

// Search waits for every provider. It fails only when all of them fail.
func (s *Searcher) Search(ctx context.Context, raw string) ([]models.Entry, error) {
	q := ParseQuery(raw)
	if q.Empty() {
		return nil, ErrEmptyQuery
	}

	perProvider, ok := s.collect(ctx, q, nil)
	if !ok && len(s.providers) > 0 {
		return nil, errors.New("every search provider failed")
	}
	return merge(q, perProvider, 0), nil
}

// LiveSearch is Search for interactive use: it returns whatever providers
// answered within the budget, at most MaxLiveResults entries, and caches
// the answer per query.
func (s *Searcher) LiveSearch(ctx context.Context, raw string) ([]models.Entry, error) {
	q := ParseQuery(raw)
	if q.Empty() {
		return nil, ErrEmptyQuery
	}

	key := cacheKey(raw)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			return cached, nil
		}
	}

	budgetCtx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	perProvider, ok := s.collect(budgetCtx, q, budgetCtx.Done())
	results := merge(q, perProvider, MaxLiveResults)

	if ok && s.cache != nil {
		s.cache.Set(key, results)
	}
	return results, nil
}

// collect runs every provider concurrently. When deadline fires before
// all providers answer, the answers so far are returned. ok reports
// whether at least one provider succeeded.
func (s *Searcher) collect(ctx context.Context, q Query, deadline <-chan struct{}) ([][]models.Entry, bool) {
	var wg sync.WaitGroup
	results := make(chan providerResult, len(s.providers))

	for i, provider := range s.providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()

			entries, err := p.Search(ctx, q)
			results <- providerResult{index: i, name: p.Name(), entries: entries, err: err}
		}(i, provider)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	perProvider := make([][]models.Entry, len(s.providers))
	succeeded := false
	pending := len(s.providers)

	handle := func(r providerResult) {
		pending--
		if r.err != nil {
			s.logger.Warn("Search provider failed", logging.WithFields(map[string]interface{}{
				"provider": r.name,
				"error":    r.err.Error(),
			}))
			return
		}
		succeeded = true
		perProvider[r.index] = r.entries
	}

	for pending > 0 {
		select {
		case r := <-results:
			handle(r)
		case <-deadline:
			s.logger.Warn("Live search budget exhausted", logging.WithFields(map[string]interface{}{
				"pending": pending,
			}))
		drain:
			for {
				select {
				case r := <-results:
					handle(r)
				default:
					break drain
				}
			}
			return perProvider, succeeded
		}
	}
	<-done

	return perProvider, succeeded
}

// merge interleaves provider results round-robin, dropping excluded and
// repeated entries. limit <= 0 means no limit.
func merge(q Query, perProvider [][]models.Entry, limit int) []models.Entry {
	seen := make(map[string]bool)
	merged := make([]models.Entry, 0)

	for depth := 0; ; depth++ {
		progressed := false
		for _, entries := range perProvider {
			if depth >= len(entries) {
				continue
			}
			progressed = true

			e := entries[depth]
			if q.Excludes(e.Title + " " + e.Summary) {
				continue
			}
			key := entryKey(e)
			if key != "" && seen[key] {
				continue
			}
			if key != "" {
				seen[key] = true
			}

			merged = append(merged, e)
			if limit > 0 && len(merged) >= limit {
				return merged
			}
		}
		if !progressed {
			return merged
		}
	}
}

func entryKey(e models.Entry) string {
	switch {
	case e.Link != "":
		return "link:" + e.Link
	case e.GUID != "":
		return "guid:" + e.GUID
	case e.EnclosureURL != "":
		return "file:" + e.EnclosureURL
	}
	return ""
}

func cacheKey(raw string) string {
	return "live:" + strings.ToLower(strings.Join(strings.Fields(raw), " "))
}
