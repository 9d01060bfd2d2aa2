// Package ingest turns fetched source entries into stored videos.
package ingest

import (
	"context"
	"fmt"

	"github.com/johnrirwin/localtv/internal/models"
)

type videoLookup interface {
	VideoExistsByGUID(ctx context.Context, src *models.Source, guid string) (bool, error)
	VideoExistsByWebsiteURL(ctx context.Context, src *models.Source, link string) (bool, error)
}

// Deduplicator decides whether an entry was already imported from a source.
type Deduplicator struct {
	store videoLookup
}

func NewDeduplicator(store videoLookup) *Deduplicator {
	return &Deduplicator{store: store}
}

// IsDuplicate reports whether a video of src already carries the entry's
// GUID or has its link as website URL. Either match is enough. An entry
// with neither identifier is never a duplicate.
func (d *Deduplicator) IsDuplicate(ctx context.Context, src *models.Source, entry models.Entry) (bool, error) {
	if entry.GUID != "" {
		found, err := d.store.VideoExistsByGUID(ctx, src, entry.GUID)
		if err != nil {
			return false, fmt.Errorf("failed to look up guid: %w", err)
		}
		if found {
			return true, nil
		}
	}

	if entry.Link != "" {
		found, err := d.store.VideoExistsByWebsiteURL(ctx, src, entry.Link)
		if err != nil {
			return false, fmt.Errorf("failed to look up link: %w", err)
		}
		if found {
			return true, nil
		}
	}

	return false, nil
}
