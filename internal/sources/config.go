package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/johnrirwin/localtv/internal/logging"
	"github.com/johnrirwin/localtv/internal/models"
)

// SourcesConfig is the JSON bootstrap list of feeds and saved searches.
type SourcesConfig struct {
	Sources []SourceSpec `json:"sources"`
}

type SourceSpec struct {
	Name           string  `json:"name"`
	Type           string  `json:"type"` // "feed" or "search"
	URL            string  `json:"url,omitempty"`
	Query          string  `json:"query,omitempty"`
	Webpage        string  `json:"webpage,omitempty"`
	AutoApprove    bool    `json:"autoApprove"`
	AutoUpdate     *bool   `json:"autoUpdate,omitempty"`
	Enabled        bool    `json:"enabled"`
	AutoCategories []int64 `json:"autoCategories,omitempty"`
	AutoAuthors    []int64 `json:"autoAuthors,omitempty"`
}

func LoadSourcesConfig(path string) (*SourcesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources config: %w", err)
	}

	var config SourcesConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse sources config: %w", err)
	}

	for i, spec := range config.Sources {
		if _, err := spec.kind(); err != nil {
			return nil, fmt.Errorf("source %d (%s): %w", i, spec.Name, err)
		}
	}

	return &config, nil
}

func (s SourceSpec) kind() (models.SourceKind, error) {
	switch strings.ToLower(s.Type) {
	case "", "feed", "rss", "atom":
		if s.URL == "" {
			return "", errors.New("feed source needs a url")
		}
		return models.SourceKindFeed, nil
	case "search":
		if strings.TrimSpace(s.Query) == "" {
			return "", errors.New("search source needs a query")
		}
		return models.SourceKindSearch, nil
	}
	return "", fmt.Errorf("unknown source type %q", s.Type)
}

// Source builds the model for a spec. Bootstrapped sources are created
// active because an operator put them in the file.
func (s SourceSpec) Source(siteID int64) (*models.Source, error) {
	kind, err := s.kind()
	if err != nil {
		return nil, err
	}

	origin := s.URL
	if kind == models.SourceKindSearch {
		origin = strings.TrimSpace(s.Query)
	}
	autoUpdate := true
	if s.AutoUpdate != nil {
		autoUpdate = *s.AutoUpdate
	}
	name := s.Name
	if name == "" {
		name = origin
	}

	return &models.Source{
		SiteID:         siteID,
		Kind:           kind,
		Name:           name,
		Origin:         origin,
		Webpage:        s.Webpage,
		Status:         models.SourceStatusActive,
		AutoApprove:    s.AutoApprove,
		AutoUpdate:     autoUpdate,
		AutoCategories: s.AutoCategories,
		AutoAuthors:    s.AutoAuthors,
	}, nil
}

type sourceCreator interface {
	FindSource(ctx context.Context, siteID int64, kind models.SourceKind, origin string) (*models.Source, error)
	CreateSource(ctx context.Context, src *models.Source) error
}

// EnsureSources creates every enabled source of config that the site does
// not have yet and returns how many were added.
func EnsureSources(ctx context.Context, store sourceCreator, siteID int64, config *SourcesConfig, logger *logging.Logger) (int, error) {
	created := 0
	for _, spec := range config.Sources {
		if !spec.Enabled {
			continue
		}
		src, err := spec.Source(siteID)
		if err != nil {
			return created, err
		}

		_, err = store.FindSource(ctx, siteID, src.Kind, src.Origin)
		if err == nil {
			continue
		}
		if !errors.Is(err, models.ErrNotFound) {
			return created, err
		}

		if err := store.CreateSource(ctx, src); err != nil {
			if errors.Is(err, models.ErrDuplicateSource) {
				continue
			}
			return created, err
		}
		created++
		logger.Info("Bootstrapped source", logging.WithFields(map[string]interface{}{
			"source": src.ID,
			"kind":   src.Kind,
			"origin": src.Origin,
		}))
	}
	return created, nil
}
