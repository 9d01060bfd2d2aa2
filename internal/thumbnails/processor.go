package thumbnails

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/johnrirwin/localtv/internal/logging"
	"github.com/johnrirwin/localtv/internal/models"
)

// ErrThumbnailRejected means the moderator flagged the image.
var ErrThumbnailRejected = errors.New("thumbnail rejected by moderation")

type videoThumbnailStore interface {
	GetVideo(ctx context.Context, id int64) (*models.Video, error)
	UpdateVideoThumbnail(ctx context.Context, id int64, thumbnailURL string, hasThumbnail bool, ext string) error
}

type imageFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Processor runs the whole thumbnail step for one video, synchronously.
// Queue workers call it; so does ingestion when thumbnails are not
// deferred.
type Processor struct {
	store      videoThumbnailStore
	pipeline   *Pipeline
	downloader imageFetcher
	moderator  Moderator
	logger     *logging.Logger
}

func NewProcessor(store videoThumbnailStore, pipeline *Pipeline, downloader imageFetcher, moderator Moderator, logger *logging.Logger) *Processor {
	if moderator == nil {
		moderator = skipModerator{}
	}
	return &Processor{
		store:      store,
		pipeline:   pipeline,
		downloader: downloader,
		moderator:  moderator,
		logger:     logger,
	}
}

// ProcessVideo downloads the thumbnail of a video and stores its
// derivatives. A URL the server rejects is cleared from the video so it is
// not tried again. Undecodable or flagged images leave HasThumbnail false.
func (p *Processor) ProcessVideo(ctx context.Context, settings models.SiteSettings, videoID int64) error {
	video, err := p.store.GetVideo(ctx, videoID)
	if err != nil {
		return fmt.Errorf("failed to load video %d: %w", videoID, err)
	}
	if strings.TrimSpace(video.ThumbnailURL) == "" {
		return nil
	}

	data, err := p.downloader.Fetch(ctx, video.ThumbnailURL)
	if err != nil {
		if errors.Is(err, ErrInvalidThumbnailURL) {
			p.logger.Warn("Clearing invalid thumbnail url", logging.WithFields(map[string]interface{}{
				"video": videoID,
				"url":   video.ThumbnailURL,
				"error": err.Error(),
			}))
			if clearErr := p.store.UpdateVideoThumbnail(ctx, videoID, "", false, ""); clearErr != nil {
				return fmt.Errorf("failed to clear thumbnail url: %w", clearErr)
			}
		}
		return err
	}

	return p.saveImage(ctx, settings, video, data)
}

// ProcessData stores already downloaded image bytes for a video.
func (p *Processor) ProcessData(ctx context.Context, settings models.SiteSettings, videoID int64, data []byte) error {
	video, err := p.store.GetVideo(ctx, videoID)
	if err != nil {
		return fmt.Errorf("failed to load video %d: %w", videoID, err)
	}
	return p.saveImage(ctx, settings, video, data)
}

func (p *Processor) saveImage(ctx context.Context, settings models.SiteSettings, video *models.Video, data []byte) error {
	ok, labels, err := p.moderator.Check(ctx, data)
	if err != nil {
		return err
	}
	if !ok {
		p.logger.Warn("Thumbnail flagged by moderation", logging.WithFields(map[string]interface{}{
			"video":  video.ID,
			"labels": labels,
		}))
		return fmt.Errorf("%w: %s", ErrThumbnailRejected, strings.Join(labels, ", "))
	}

	if err := p.pipeline.Save(ctx, settings, video, data); err != nil {
		return err
	}

	if err := p.store.UpdateVideoThumbnail(ctx, video.ID, video.ThumbnailURL, true, video.ThumbnailExtension); err != nil {
		return fmt.Errorf("failed to record thumbnail: %w", err)
	}

	p.logger.Debug("Thumbnail stored", logging.WithFields(map[string]interface{}{
		"video":     video.ID,
		"extension": video.ThumbnailExtension,
	}))
	return nil
}

// IsPermanent reports whether retrying a failed ProcessVideo is pointless.
func IsPermanent(err error) bool {
	var decodeErr *ImageDecodeError
	return errors.As(err, &decodeErr) ||
		errors.Is(err, ErrInvalidThumbnailURL) ||
		errors.Is(err, ErrThumbnailRejected) ||
		errors.Is(err, models.ErrNotFound)
}
