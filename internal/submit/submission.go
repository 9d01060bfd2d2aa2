// Package submit handles videos sent in by site visitors.
package submit

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Submission is one of ScrapedSubmission, DirectLinkSubmission or
// EmbedSubmission.
type Submission interface {
	kind() string
}

// ScrapedSubmission is a page URL whose video details are scraped.
type ScrapedSubmission struct {
	URL  string   `json:"url"`
	Tags []string `json:"tags,omitempty"`
}

// DirectLinkSubmission points straight at a media file.
type DirectLinkSubmission struct {
	FileURL      string   `json:"fileUrl"`
	WebsiteURL   string   `json:"websiteUrl,omitempty"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	ThumbnailURL string   `json:"thumbnailUrl,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

// EmbedSubmission carries player markup pasted by the visitor.
type EmbedSubmission struct {
	EmbedCode    string   `json:"embedCode"`
	WebsiteURL   string   `json:"websiteUrl,omitempty"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	ThumbnailURL string   `json:"thumbnailUrl,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

func (ScrapedSubmission) kind() string    { return "scraped" }
func (DirectLinkSubmission) kind() string { return "direct" }
func (EmbedSubmission) kind() string      { return "embed" }

// Kind names the variant of a submission.
func Kind(s Submission) string {
	return s.kind()
}

// ValidationError reports a problem with what the visitor entered.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func validateURL(field, raw string, required bool) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return invalid(field, "is required")
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid(field, "must be an http or https URL")
	}
	return nil
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return invalid("title", "is required")
	}
	return nil
}

// Decode reads a JSON submission whose "kind" field selects the variant:
// "scraped", "direct" or "embed".
func Decode(data []byte) (Submission, error) {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, invalid("body", "invalid JSON")
	}

	var sub Submission
	var err error
	switch strings.ToLower(strings.TrimSpace(head.Kind)) {
	case "scraped", "":
		var v ScrapedSubmission
		err = json.Unmarshal(data, &v)
		sub = v
	case "direct":
		var v DirectLinkSubmission
		err = json.Unmarshal(data, &v)
		sub = v
	case "embed":
		var v EmbedSubmission
		err = json.Unmarshal(data, &v)
		sub = v
	default:
		return nil, invalid("kind", "must be one of scraped, direct, embed")
	}
	if err != nil {
		return nil, invalid("body", "invalid JSON")
	}
	return sub, nil
}
