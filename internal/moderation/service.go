// Package moderation holds the administrator actions on submitted and
// imported videos.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/johnrirwin/localtv/internal/logging"
	"github.com/johnrirwin/localtv/internal/models"
)

// ErrInvalidTransition means the video is already in the requested state.
var ErrInvalidTransition = errors.New("video cannot move to that status")

type Store interface {
	GetVideo(ctx context.Context, id int64) (*models.Video, error)
	SetVideoStatus(ctx context.Context, id int64, status models.VideoStatus, approvedAt *time.Time) error
	DeleteVideo(ctx context.Context, id int64) error
	ListVideos(ctx context.Context, params models.VideoListParams) (*models.VideoListResponse, error)
}

type ThumbnailRemover interface {
	Remove(ctx context.Context, settings models.SiteSettings, video *models.Video) error
}

// BulkDeleteResult lists which requested videos were deleted.
type BulkDeleteResult struct {
	Deleted []int64 `json:"deleted"`
	Missing []int64 `json:"missing,omitempty"`
}

type Service struct {
	store  Store
	thumbs ThumbnailRemover
	logger *logging.Logger
	now    func() time.Time
}

func NewService(store Store, thumbs ThumbnailRemover, logger *logging.Logger) *Service {
	return &Service{store: store, thumbs: thumbs, logger: logger, now: time.Now}
}

// List returns a page of the site's videos, optionally filtered by status.
func (s *Service) List(ctx context.Context, settings models.SiteSettings, status models.VideoStatus, limit, offset int) (*models.VideoListResponse, error) {
	return s.store.ListVideos(ctx, models.VideoListParams{
		SiteID: settings.Site.ID,
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
}

// Approve makes an unapproved or rejected video live and stamps its
// approval time.
func (s *Service) Approve(ctx context.Context, settings models.SiteSettings, id int64) (*models.Video, error) {
	video, err := s.load(ctx, settings, id)
	if err != nil {
		return nil, err
	}
	if video.Status == models.VideoStatusActive {
		return nil, ErrInvalidTransition
	}

	now := s.now().UTC()
	if err := s.store.SetVideoStatus(ctx, id, models.VideoStatusActive, &now); err != nil {
		return nil, err
	}
	video.Status = models.VideoStatusActive
	video.ApprovedAt = &now

	s.logger.Info("Video approved", logging.WithField("video", id))
	return video, nil
}

// Reject hides an unapproved or active video.
func (s *Service) Reject(ctx context.Context, settings models.SiteSettings, id int64) (*models.Video, error) {
	video, err := s.load(ctx, settings, id)
	if err != nil {
		return nil, err
	}
	if video.Status == models.VideoStatusRejected {
		return nil, ErrInvalidTransition
	}

	if err := s.store.SetVideoStatus(ctx, id, models.VideoStatusRejected, nil); err != nil {
		return nil, err
	}
	video.Status = models.VideoStatusRejected

	s.logger.Info("Video rejected", logging.WithField("video", id))
	return video, nil
}

// BulkDelete removes videos and their stored thumbnails. Unknown ids are
// reported, not treated as errors.
func (s *Service) BulkDelete(ctx context.Context, settings models.SiteSettings, ids []int64) (*BulkDeleteResult, error) {
	result := &BulkDeleteResult{Deleted: []int64{}}

	for _, id := range ids {
		video, err := s.load(ctx, settings, id)
		if errors.Is(err, models.ErrNotFound) {
			result.Missing = append(result.Missing, id)
			continue
		}
		if err != nil {
			return result, err
		}

		if s.thumbs != nil {
			if err := s.thumbs.Remove(ctx, settings, video); err != nil {
				s.logger.Warn("Failed to delete thumbnails", logging.WithFields(map[string]interface{}{
					"video": id,
					"error": err.Error(),
				}))
			}
		}

		if err := s.store.DeleteVideo(ctx, id); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				result.Missing = append(result.Missing, id)
				continue
			}
			return result, fmt.Errorf("failed to delete video %d: %w", id, err)
		}
		result.Deleted = append(result.Deleted, id)
	}

	s.logger.Info("Videos deleted", logging.WithFields(map[string]interface{}{
		"deleted": len(result.Deleted),
		"missing": len(result.Missing),
	}))
	return result, nil
}

// load fetches a video of this site; other sites' videos are not found.
func (s *Service) load(ctx context.Context, settings models.SiteSettings, id int64) (*models.Video, error) {
	video, err := s.store.GetVideo(ctx, id)
	if err != nil {
		return nil, err
	}
	if video.SiteID != settings.Site.ID {
		return nil, models.ErrNotFound
	}
	return video, nil
}
