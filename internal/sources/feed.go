package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/johnrirwin/localtv/internal/logging"
	"github.com/johnrirwin/localtv/internal/models"
	"github.com/johnrirwin/localtv/internal/ratelimit"
)

// FeedFetcher polls RSS, Atom and JSON feeds with conditional GETs.
type FeedFetcher struct {
	client  *http.Client
	limiter ratelimit.RateLimiter
	config  Config
	logger  *logging.Logger
}

func NewFeedFetcher(limiter ratelimit.RateLimiter, config Config, logger *logging.Logger) *FeedFetcher {
	return &FeedFetcher{
		client:  config.httpClient(),
		limiter: limiter,
		config:  config,
		logger:  logger,
	}
}

// Fetch downloads src.Origin. When the source remembers an etag the request
// is conditional, and a 304 yields no entries with the same token.
func (f *FeedFetcher) Fetch(ctx context.Context, src *models.Source) (*FetchResult, error) {
	feedURL := src.Origin
	if err := ratelimit.WaitURL(ctx, f.limiter, feedURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, &FetchError{URL: feedURL, Err: err}
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, */*;q=0.8")
	if src.ETag != "" {
		req.Header.Set("If-None-Match", src.ETag)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: feedURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		f.logger.Debug("Feed not modified", logging.WithField("url", feedURL))
		return &FetchResult{ChangeToken: src.ETag, NotModified: true}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: feedURL, StatusCode: resp.StatusCode}
	}

	entries, err := ParseFeed(io.LimitReader(resp.Body, f.config.MaxBodyBytes))
	if err != nil {
		return nil, &FetchError{URL: feedURL, Err: err}
	}

	return &FetchResult{
		Entries:     entries,
		ChangeToken: resp.Header.Get("ETag"),
	}, nil
}

// ParseFeed parses any feed format gofeed understands into entries.
func ParseFeed(r io.Reader) ([]models.Entry, error) {
	feed, err := gofeed.NewParser().Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	entries := make([]models.Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		entries = append(entries, EntryFromItem(item))
	}
	return entries, nil
}

// EntryFromItem maps a parsed feed item to an entry.
func EntryFromItem(item *gofeed.Item) models.Entry {
	summary := item.Description
	if strings.TrimSpace(summary) == "" {
		summary = item.Content
	}

	entry := models.Entry{
		GUID:         strings.TrimSpace(item.GUID),
		Link:         strings.TrimSpace(item.Link),
		Title:        strings.TrimSpace(item.Title),
		Summary:      summary,
		ThumbnailURL: itemThumbnail(item),
		Tags:         item.Categories,
	}
	if enc := videoEnclosure(item); enc != nil {
		entry.EnclosureURL = enc.URL
		entry.EnclosureType = enc.Type
		entry.EnclosureLength = enclosureLength(enc)
	}

	switch {
	case item.PublishedParsed != nil:
		t := *item.PublishedParsed
		entry.PublishedAt = &t
	case item.UpdatedParsed != nil:
		t := *item.UpdatedParsed
		entry.PublishedAt = &t
	}

	return entry
}

var videoExtensions = map[string]bool{
	".mp4": true, ".m4v": true, ".mov": true, ".webm": true, ".ogv": true,
	".ogg": true, ".flv": true, ".avi": true, ".wmv": true, ".mkv": true,
	".mpg": true, ".mpeg": true, ".3gp": true, ".divx": true,
}

// IsVideoFile reports whether an enclosure looks like a playable video by
// MIME type, or by extension when the type is missing or generic.
func IsVideoFile(rawURL, mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	switch {
	case strings.HasPrefix(mimeType, "video/"), mimeType == "application/ogg":
		return true
	case mimeType != "" && mimeType != "application/octet-stream":
		return false
	}

	u := rawURL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return videoExtensions[strings.ToLower(path.Ext(u))]
}

// videoEnclosure returns the first enclosure that is a video, falling back
// to Media RSS content elements.
func videoEnclosure(item *gofeed.Item) *gofeed.Enclosure {
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" && IsVideoFile(enc.URL, enc.Type) {
			return enc
		}
	}

	for _, content := range mediaElements(item.Extensions, "content") {
		url := content.Attrs["url"]
		if url == "" {
			continue
		}
		if content.Attrs["medium"] == "video" || IsVideoFile(url, content.Attrs["type"]) {
			return &gofeed.Enclosure{
				URL:    url,
				Type:   content.Attrs["type"],
				Length: content.Attrs["fileSize"],
			}
		}
	}
	return nil
}

// itemThumbnail picks the best image for an item: Media RSS thumbnails
// first, then whatever gofeed resolved as the item image.
func itemThumbnail(item *gofeed.Item) string {
	for _, thumb := range mediaElements(item.Extensions, "thumbnail") {
		if url := thumb.Attrs["url"]; url != "" {
			return url
		}
	}
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return ""
}

// mediaElements collects media:<name> elements at the top level and
// inside media:group.
func mediaElements(exts ext.Extensions, name string) []ext.Extension {
	media, ok := exts["media"]
	if !ok {
		return nil
	}

	out := append([]ext.Extension(nil), media[name]...)
	for _, group := range media["group"] {
		out = append(out, group.Children[name]...)
	}
	return out
}

// enclosureLength parses the length attribute of an enclosure.
func enclosureLength(enc *gofeed.Enclosure) int64 {
	if enc == nil {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSpace(enc.Length), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
