package models

import "time"

type SourceKind string

const (
	SourceKindFeed   SourceKind = "feed"
	SourceKindSearch SourceKind = "search"
)

// SourceStatus mirrors the moderation states a submitted feed goes through.
type SourceStatus string

const (
	SourceStatusUnapproved SourceStatus = "unapproved"
	SourceStatusActive     SourceStatus = "active"
	SourceStatusRejected   SourceStatus = "rejected"
)

// Source is where videos come from: a feed URL or a saved search query.
type Source struct {
	ID             int64        `json:"id"`
	SiteID         int64        `json:"siteId"`
	Kind           SourceKind   `json:"kind"`
	Name           string       `json:"name"`
	Origin         string       `json:"origin"` // feed URL or query string
	Webpage        string       `json:"webpage,omitempty"`
	Status         SourceStatus `json:"status"`
	AutoApprove    bool         `json:"autoApprove"`
	AutoUpdate     bool         `json:"autoUpdate"`
	ETag           string       `json:"etag,omitempty"`
	LastUpdated    *time.Time   `json:"lastUpdated,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	UserID         string       `json:"userId,omitempty"`
	AutoCategories []int64      `json:"autoCategories,omitempty"`
	AutoAuthors    []int64      `json:"autoAuthors,omitempty"`
}

// IsSearch reports whether videos from this source should be linked as a search origin.
func (s *Source) IsSearch() bool {
	return s.Kind == SourceKindSearch
}

// Entry is a single raw item pulled from a source before it becomes a Video.
type Entry struct {
	GUID            string     `json:"guid,omitempty"`
	Link            string     `json:"link,omitempty"`
	Title           string     `json:"title"`
	Summary         string     `json:"summary,omitempty"`
	PublishedAt     *time.Time `json:"publishedAt,omitempty"`
	EnclosureURL    string     `json:"enclosureUrl,omitempty"`
	EnclosureType   string     `json:"enclosureType,omitempty"`
	EnclosureLength int64      `json:"enclosureLength,omitempty"`
	ThumbnailURL    string     `json:"thumbnailUrl,omitempty"`
	Tags            []string   `json:"tags,omitempty"`
}

// ScrapedData is what a scraper could learn about a video page.
type ScrapedData struct {
	FileURL           string     `json:"fileUrl,omitempty"`
	FileURLIsFlaky    bool       `json:"fileUrlIsFlaky"`
	EmbedCode         string     `json:"embedCode,omitempty"`
	FlashEnclosureURL string     `json:"flashEnclosureUrl,omitempty"`
	ThumbnailURL      string     `json:"thumbnailUrl,omitempty"`
	Title             string     `json:"title,omitempty"`
	Description       string     `json:"description,omitempty"`
	PublishDate       *time.Time `json:"publishDate,omitempty"`
}
