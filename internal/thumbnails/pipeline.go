package thumbnails

import (
	"bytes"
	"context"
	"fmt"

	"github.com/johnrirwin/localtv/internal/logging"
	"github.com/johnrirwin/localtv/internal/models"
	"github.com/johnrirwin/localtv/internal/storage"
)

// Pipeline turns thumbnail bytes into the stored derivative set of a video.
type Pipeline struct {
	storage storage.Storage
	logger  *logging.Logger
}

func NewPipeline(s storage.Storage, logger *logging.Logger) *Pipeline {
	return &Pipeline{storage: s, logger: logger}
}

// Save stores data as the original thumbnail of video and renders every
// configured size from it. video.HasThumbnail and ThumbnailExtension are
// only set once every file is written.
func (p *Pipeline) Save(ctx context.Context, settings models.SiteSettings, video *models.Video, data []byte) error {
	img, ext, err := Decode(data)
	if err != nil {
		return err
	}

	if video.ThumbnailExtension != "" && video.ThumbnailExtension != ext {
		old := settings.OriginalThumbPath(video.ID, video.ThumbnailExtension)
		if err := p.storage.Delete(ctx, old); err != nil {
			p.logger.Warn("Failed to delete stale thumbnail", logging.WithFields(map[string]interface{}{
				"video": video.ID,
				"path":  old,
				"error": err.Error(),
			}))
		}
	}

	if err := p.replace(ctx, settings.OriginalThumbPath(video.ID, ext), data); err != nil {
		return err
	}

	sizes := settings.ThumbnailSizes
	if len(sizes) == 0 {
		sizes = models.DefaultThumbnailSizes
	}
	for _, size := range sizes {
		encoded, err := encodePNG(Resize(img, size.Width, size.Height))
		if err != nil {
			return err
		}
		if err := p.replace(ctx, settings.ResizedThumbPath(video.ID, size), encoded); err != nil {
			return err
		}
	}

	video.HasThumbnail = true
	video.ThumbnailExtension = ext
	return nil
}

// replace deletes whatever is at name before writing data there.
func (p *Pipeline) replace(ctx context.Context, name string, data []byte) error {
	if err := p.storage.Delete(ctx, name); err != nil {
		return fmt.Errorf("failed to clear %s: %w", name, err)
	}
	if err := p.storage.Save(ctx, name, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to store %s: %w", name, err)
	}
	return nil
}

// Remove deletes every stored file of a video's thumbnail set.
func (p *Pipeline) Remove(ctx context.Context, settings models.SiteSettings, video *models.Video) error {
	if video.ThumbnailExtension == "" && !video.HasThumbnail {
		return nil
	}

	paths := []string{}
	if video.ThumbnailExtension != "" {
		paths = append(paths, settings.OriginalThumbPath(video.ID, video.ThumbnailExtension))
	}
	sizes := settings.ThumbnailSizes
	if len(sizes) == 0 {
		sizes = models.DefaultThumbnailSizes
	}
	for _, size := range sizes {
		paths = append(paths, settings.ResizedThumbPath(video.ID, size))
	}

	for _, path := range paths {
		if err := p.storage.Delete(ctx, path); err != nil {
			return fmt.Errorf("failed to delete %s: %w", path, err)
		}
	}
	return nil
}
