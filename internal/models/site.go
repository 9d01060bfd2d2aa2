package models

import (
	"fmt"
	"strings"
)

type Site struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

// ThumbnailSize is the exact box a thumbnail derivative is rendered into.
type ThumbnailSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s ThumbnailSize) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// DefaultThumbnailSizes holds the frontpage "featured" size and the list size.
var DefaultThumbnailSizes = []ThumbnailSize{
	{Width: 500, Height: 281},
	{Width: 142, Height: 104},
}

const (
	DefaultThumbnailPrefix = "localtv/video_thumbs"
	DefaultTagMaxLength    = 25
)

// SiteSettings is the per-site configuration handed to ingestion and
// submission entry points.
type SiteSettings struct {
	Site            Site            `json:"site"`
	ThumbnailSizes  []ThumbnailSize `json:"thumbnailSizes"`
	ThumbnailPrefix string          `json:"thumbnailPrefix"`
	TagMaxLength    int             `json:"tagMaxLength"`
	AdminUserIDs    []string        `json:"adminUserIds,omitempty"`
}

// DefaultSiteSettings returns settings for site with the stock thumbnail policy.
func DefaultSiteSettings(site Site) SiteSettings {
	sizes := make([]ThumbnailSize, len(DefaultThumbnailSizes))
	copy(sizes, DefaultThumbnailSizes)
	return SiteSettings{
		Site:            site,
		ThumbnailSizes:  sizes,
		ThumbnailPrefix: DefaultThumbnailPrefix,
		TagMaxLength:    DefaultTagMaxLength,
	}
}

// IsAdmin reports whether userID administers the site.
func (s SiteSettings) IsAdmin(userID string) bool {
	if userID == "" {
		return false
	}
	for _, id := range s.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (s SiteSettings) prefix() string {
	p := strings.Trim(s.ThumbnailPrefix, "/")
	if p == "" {
		return DefaultThumbnailPrefix
	}
	return p
}

// OriginalThumbPath is where the unmodified thumbnail of a video is stored.
func (s SiteSettings) OriginalThumbPath(videoID int64, ext string) string {
	return fmt.Sprintf("%s/%d/orig.%s", s.prefix(), videoID, ext)
}

// ResizedThumbPath is where the derivative of a given size is stored.
func (s SiteSettings) ResizedThumbPath(videoID int64, size ThumbnailSize) string {
	return fmt.Sprintf("%s/%d/%s.png", s.prefix(), videoID, size)
}
