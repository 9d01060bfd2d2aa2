package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/johnrirwin/localtv/internal/models"
	"github.com/johnrirwin/localtv/internal/scraper"
	"github.com/johnrirwin/localtv/internal/tagging"
	"github.com/johnrirwin/localtv/internal/textutil"
)

// ErrNotViable means an entry has nothing playable and was not stored.
var ErrNotViable = errors.New("entry has no file url or embed code")

const maxTitleLength = 250

type videoCreator interface {
	CreateVideo(ctx context.Context, v *models.Video) error
}

// FileProber looks up the size and MIME type of a media file.
type FileProber func(ctx context.Context, fileURL string) (*scraper.FileInfo, error)

// Materializer builds and stores the video for one entry.
type Materializer struct {
	store videoCreator
	probe FileProber
	now   func() time.Time
}

func NewMaterializer(store videoCreator, probe FileProber, now func() time.Time) *Materializer {
	if now == nil {
		now = time.Now
	}
	return &Materializer{store: store, probe: probe, now: now}
}

// Materialize stores a video for entry from src, filling gaps from scraped
// (which may be nil). The enclosure always wins over a scraped file URL,
// and a flaky scraped file URL is never used.
func (m *Materializer) Materialize(ctx context.Context, settings models.SiteSettings, src *models.Source, entry models.Entry, scraped *models.ScrapedData) (*models.Video, error) {
	if scraped == nil {
		scraped = &models.ScrapedData{}
	}

	video := &models.Video{
		SiteID:            src.SiteID,
		EmbedCode:         scraped.EmbedCode,
		FlashEnclosureURL: scraped.FlashEnclosureURL,
		GUID:              entry.GUID,
		WebsiteURL:        entry.Link,
		ThumbnailURL:      firstNonEmpty(entry.ThumbnailURL, scraped.ThumbnailURL),
		PublishedAt:       entry.PublishedAt,
	}

	if entry.EnclosureURL != "" {
		video.FileURL = entry.EnclosureURL
		video.FileURLLength = entry.EnclosureLength
		video.FileURLMimetype = entry.EnclosureType
	} else if scraped.FileURL != "" && !scraped.FileURLIsFlaky {
		video.FileURL = scraped.FileURL
	}

	if !video.HasLocation() {
		return nil, ErrNotViable
	}

	if video.FileURL != "" && m.probe != nil && (video.FileURLLength == 0 || video.FileURLMimetype == "") {
		if info, err := m.probe(ctx, video.FileURL); err == nil {
			if video.FileURLLength == 0 {
				video.FileURLLength = info.Length
			}
			if video.FileURLMimetype == "" {
				video.FileURLMimetype = info.MimeType
			}
		}
	}

	if video.PublishedAt == nil {
		video.PublishedAt = scraped.PublishDate
	}

	title := textutil.StripTags(firstNonEmpty(entry.Title, scraped.Title))
	video.Title = textutil.Truncate(textutil.Normalize(title), maxTitleLength)
	video.Description = textutil.StripTags(firstNonEmpty(entry.Summary, scraped.Description))

	maxLen := settings.TagMaxLength
	if maxLen <= 0 {
		maxLen = models.DefaultTagMaxLength
	}
	video.Tags = tagging.Filter(entry.Tags, maxLen)

	if src.IsSearch() {
		video.SearchID = int64Ptr(src.ID)
	} else {
		video.SourceID = int64Ptr(src.ID)
	}
	video.CategoryIDs = append([]int64(nil), src.AutoCategories...)
	video.AuthorIDs = append([]int64(nil), src.AutoAuthors...)

	now := m.now().UTC()
	video.SubmittedAt = now
	if src.AutoApprove {
		video.Status = models.VideoStatusActive
		approved := now
		video.ApprovedAt = &approved
	} else {
		video.Status = models.VideoStatusUnapproved
	}

	if err := m.store.CreateVideo(ctx, video); err != nil {
		return nil, err
	}
	return video, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func int64Ptr(v int64) *int64 {
	return &v
}
