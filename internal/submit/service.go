package submit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goaway "github.com/TwiN/go-away"

	"github.com/johnrirwin/localtv/internal/logging"
	"github.com/johnrirwin/localtv/internal/models"
	"github.com/johnrirwin/localtv/internal/scraper"
	"github.com/johnrirwin/localtv/internal/tagging"
	"github.com/johnrirwin/localtv/internal/textutil"
)

// ErrAlreadySubmitted means the site already has this video.
var ErrAlreadySubmitted = errors.New("this video has already been submitted")

const maxTitleLength = 250

type Store interface {
	SiteVideoExists(ctx context.Context, siteID int64, websiteURL, fileURL string) (bool, error)
	CreateVideo(ctx context.Context, v *models.Video) error
}

type ThumbnailScheduler interface {
	Schedule(ctx context.Context, video *models.Video) (string, error)
}

type profanityChecker interface {
	IsProfane(s string) bool
}

// Result is a stored submission and the thumbnail job started for it.
type Result struct {
	Video        *models.Video `json:"video"`
	ThumbnailJob string        `json:"thumbnailJob,omitempty"`
}

type Service struct {
	store     Store
	scraper   scraper.Scraper
	scheduler ThumbnailScheduler
	profanity profanityChecker
	logger    *logging.Logger
	now       func() time.Time
}

func NewService(store Store, s scraper.Scraper, scheduler ThumbnailScheduler, logger *logging.Logger) *Service {
	return &Service{
		store:     store,
		scraper:   s,
		scheduler: scheduler,
		profanity: goaway.NewProfanityDetector(),
		logger:    logger,
		now:       time.Now,
	}
}

// Submit stores a visitor's video. Admins' videos go live immediately,
// everyone else's wait for moderation.
func (s *Service) Submit(ctx context.Context, settings models.SiteSettings, userID string, sub Submission) (*Result, error) {
	if sub == nil {
		return nil, invalid("kind", "is required")
	}

	video, err := s.resolve(ctx, settings, sub)
	if err != nil {
		return nil, err
	}

	if s.profanity.IsProfane(video.Title) {
		return nil, invalid("title", "contains inappropriate language")
	}
	for _, tag := range video.Tags {
		if s.profanity.IsProfane(tag) {
			return nil, invalid("tags", "contain inappropriate language")
		}
	}

	if err := s.checkNotSubmitted(ctx, settings.Site.ID, video.WebsiteURL, video.FileURL); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	video.SiteID = settings.Site.ID
	video.UserID = userID
	video.SubmittedAt = now
	if settings.IsAdmin(userID) {
		video.Status = models.VideoStatusActive
		approved := now
		video.ApprovedAt = &approved
	} else {
		video.Status = models.VideoStatusUnapproved
	}

	if err := s.store.CreateVideo(ctx, video); err != nil {
		if errors.Is(err, models.ErrDuplicateVideo) {
			return nil, ErrAlreadySubmitted
		}
		return nil, fmt.Errorf("failed to save submission: %w", err)
	}

	s.logger.Info("Video submitted", logging.WithFields(map[string]interface{}{
		"video":  video.ID,
		"kind":   Kind(sub),
		"user":   userID,
		"status": string(video.Status),
	}))

	result := &Result{Video: video}
	if s.scheduler != nil && video.ThumbnailURL != "" {
		jobID, err := s.scheduler.Schedule(ctx, video)
		if err != nil {
			s.logger.Warn("Failed to schedule thumbnail", logging.WithFields(map[string]interface{}{
				"video": video.ID,
				"error": err.Error(),
			}))
		}
		result.ThumbnailJob = jobID
	}
	return result, nil
}

// resolve turns a submission into an unsaved video.
func (s *Service) resolve(ctx context.Context, settings models.SiteSettings, sub Submission) (*models.Video, error) {
	maxLen := settings.TagMaxLength
	if maxLen <= 0 {
		maxLen = models.DefaultTagMaxLength
	}

	var video *models.Video
	switch v := sub.(type) {
	case ScrapedSubmission:
		scraped, err := s.resolveScraped(ctx, settings, v)
		if err != nil {
			return nil, err
		}
		scraped.Tags = tagging.Filter(v.Tags, maxLen)
		return scraped, nil

	case DirectLinkSubmission:
		if err := validateURL("fileUrl", v.FileURL, true); err != nil {
			return nil, err
		}
		if err := validateURL("websiteUrl", v.WebsiteURL, false); err != nil {
			return nil, err
		}
		if err := validateURL("thumbnailUrl", v.ThumbnailURL, false); err != nil {
			return nil, err
		}
		if err := validateTitle(v.Title); err != nil {
			return nil, err
		}
		video = &models.Video{
			FileURL:      strings.TrimSpace(v.FileURL),
			WebsiteURL:   strings.TrimSpace(v.WebsiteURL),
			Title:        v.Title,
			Description:  v.Description,
			ThumbnailURL: strings.TrimSpace(v.ThumbnailURL),
			Tags:         tagging.Filter(v.Tags, maxLen),
		}

	case EmbedSubmission:
		if strings.TrimSpace(v.EmbedCode) == "" {
			return nil, invalid("embedCode", "is required")
		}
		if err := validateURL("websiteUrl", v.WebsiteURL, false); err != nil {
			return nil, err
		}
		if err := validateURL("thumbnailUrl", v.ThumbnailURL, false); err != nil {
			return nil, err
		}
		if err := validateTitle(v.Title); err != nil {
			return nil, err
		}
		video = &models.Video{
			EmbedCode:    strings.TrimSpace(v.EmbedCode),
			WebsiteURL:   strings.TrimSpace(v.WebsiteURL),
			Title:        v.Title,
			Description:  v.Description,
			ThumbnailURL: strings.TrimSpace(v.ThumbnailURL),
			Tags:         tagging.Filter(v.Tags, maxLen),
		}

	default:
		return nil, invalid("kind", "unsupported submission %T", sub)
	}

	video.Title = textutil.Truncate(textutil.Normalize(textutil.StripTags(video.Title)), maxTitleLength)
	video.Description = textutil.StripTags(video.Description)
	return video, nil
}

func (s *Service) resolveScraped(ctx context.Context, settings models.SiteSettings, sub ScrapedSubmission) (*models.Video, error) {
	if err := validateURL("url", sub.URL, true); err != nil {
		return nil, err
	}
	link := strings.TrimSpace(sub.URL)

	// Checked before scraping so a known page costs no request.
	if err := s.checkNotSubmitted(ctx, settings.Site.ID, link, ""); err != nil {
		return nil, err
	}

	if s.scraper == nil || !s.scraper.Handles(link) {
		return nil, invalid("url", "no video found at this address; submit a direct link or embed code instead")
	}
	data, err := s.scraper.Scrape(ctx, link)
	if err != nil {
		if scraper.IsUnscrapable(err) {
			return nil, invalid("url", "no video found at this address; submit a direct link or embed code instead")
		}
		return nil, fmt.Errorf("failed to scrape %s: %w", link, err)
	}

	video := &models.Video{
		WebsiteURL:        link,
		EmbedCode:         data.EmbedCode,
		FlashEnclosureURL: data.FlashEnclosureURL,
		ThumbnailURL:      data.ThumbnailURL,
		PublishedAt:       data.PublishDate,
		Title:             textutil.Truncate(textutil.Normalize(textutil.StripTags(data.Title)), maxTitleLength),
		Description:       textutil.StripTags(data.Description),
	}
	if data.FileURL != "" && !data.FileURLIsFlaky {
		video.FileURL = data.FileURL
	}
	if !video.HasLocation() {
		return nil, invalid("url", "no playable video found at this address; submit a direct link or embed code instead")
	}
	if video.Title == "" {
		video.Title = link
	}
	return video, nil
}

func (s *Service) checkNotSubmitted(ctx context.Context, siteID int64, websiteURL, fileURL string) error {
	if websiteURL == "" && fileURL == "" {
		return nil
	}
	exists, err := s.store.SiteVideoExists(ctx, siteID, websiteURL, fileURL)
	if err != nil {
		return fmt.Errorf("failed to check for existing video: %w", err)
	}
	if exists {
		return ErrAlreadySubmitted
	}
	return nil
}
