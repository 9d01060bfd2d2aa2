package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateVideo  = errors.New("video already exists on this site")
	ErrDuplicateSource = errors.New("source already exists on this site")
)

// VideoStatus is the moderation state of a video. Unapproved means nobody has
// looked at it yet; rejected means an administrator hid it.
type VideoStatus string

const (
	VideoStatusUnapproved VideoStatus = "unapproved"
	VideoStatusActive     VideoStatus = "active"
	VideoStatusRejected   VideoStatus = "rejected"
)

func IsValidVideoStatus(s VideoStatus) bool {
	switch s {
	case VideoStatusUnapproved, VideoStatusActive, VideoStatusRejected:
		return true
	}
	return false
}

// ParseVideoStatus accepts a status name in any case.
func ParseVideoStatus(s string) (VideoStatus, error) {
	status := VideoStatus(strings.ToLower(strings.TrimSpace(s)))
	if !IsValidVideoStatus(status) {
		return "", fmt.Errorf("unknown video status %q", s)
	}
	return status, nil
}

type Video struct {
	ID                 int64       `json:"id"`
	SiteID             int64       `json:"siteId"`
	Title              string      `json:"title"`
	Description        string      `json:"description,omitempty"`
	FileURL            string      `json:"fileUrl,omitempty"`
	FileURLLength      int64       `json:"fileUrlLength,omitempty"`
	FileURLMimetype    string      `json:"fileUrlMimetype,omitempty"`
	EmbedCode          string      `json:"embedCode,omitempty"`
	FlashEnclosureURL  string      `json:"flashEnclosureUrl,omitempty"`
	GUID               string      `json:"guid,omitempty"`
	WebsiteURL         string      `json:"websiteUrl,omitempty"`
	Status             VideoStatus `json:"status"`
	SubmittedAt        time.Time   `json:"submittedAt"`
	ApprovedAt         *time.Time  `json:"approvedAt,omitempty"`
	PublishedAt        *time.Time  `json:"publishedAt,omitempty"`
	ThumbnailURL       string      `json:"thumbnailUrl,omitempty"`
	HasThumbnail       bool        `json:"hasThumbnail"`
	ThumbnailExtension string      `json:"thumbnailExtension,omitempty"`
	SourceID           *int64      `json:"sourceId,omitempty"`
	SearchID           *int64      `json:"searchId,omitempty"`
	UserID             string      `json:"userId,omitempty"`
	Tags               []string    `json:"tags"`
	CategoryIDs        []int64     `json:"categoryIds,omitempty"`
	AuthorIDs          []int64     `json:"authorIds,omitempty"`
}

// HasLocation reports whether the video carries something playable.
func (v *Video) HasLocation() bool {
	return strings.TrimSpace(v.FileURL) != "" || strings.TrimSpace(v.EmbedCode) != ""
}

// When returns the publish date at the origin when known, else the submission time.
func (v *Video) When() time.Time {
	if v.PublishedAt != nil {
		return *v.PublishedAt
	}
	return v.SubmittedAt
}

// Submitter returns the user credited with the video: the direct submitter,
// otherwise whoever registered the originating source.
func (v *Video) Submitter(origin *Source) string {
	if v.UserID != "" {
		return v.UserID
	}
	if origin != nil {
		return origin.UserID
	}
	return ""
}

// Identifiers lists the non-empty values that must be unique per site.
func (v *Video) Identifiers() []string {
	ids := make([]string, 0, 3)
	for _, s := range []string{v.WebsiteURL, v.FileURL, v.GUID} {
		if s != "" {
			ids = append(ids, s)
		}
	}
	return ids
}

type Category struct {
	ID       int64  `json:"id"`
	SiteID   int64  `json:"siteId"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	ParentID *int64 `json:"parentId,omitempty"`
}

type Author struct {
	ID     int64  `json:"id"`
	SiteID int64  `json:"siteId"`
	Name   string `json:"name"`
}

type VideoListParams struct {
	SiteID int64       `json:"siteId"`
	Status VideoStatus `json:"status"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

type VideoListResponse struct {
	Videos     []Video `json:"videos"`
	TotalCount int     `json:"totalCount"`
}
