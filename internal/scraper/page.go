package scraper

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/johnrirwin/localtv/internal/models"
	"github.com/johnrirwin/localtv/internal/ratelimit"
	"github.com/johnrirwin/localtv/internal/sources"
)

// PageScraper reads OpenGraph, Twitter card and microdata tags from an
// arbitrary HTML page.
type PageScraper struct {
	client    *http.Client
	limiter   ratelimit.RateLimiter
	userAgent string
	maxBytes  int64
}

func NewPageScraper(limiter ratelimit.RateLimiter, config sources.Config) *PageScraper {
	return &PageScraper{
		client:    &http.Client{Timeout: config.Timeout},
		limiter:   limiter,
		userAgent: config.UserAgent,
		maxBytes:  2 << 20,
	}
}

func (p *PageScraper) Handles(link string) bool {
	u, err := url.Parse(link)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (p *PageScraper) Scrape(ctx context.Context, link string) (*models.ScrapedData, error) {
	if err := ratelimit.WaitURL(ctx, p.limiter, link); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, &UnscrapableError{URL: link, Reason: err.Error()}
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", link, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &UnscrapableError{URL: link, Reason: fmt.Sprintf("status %d", resp.StatusCode)}
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return nil, &UnscrapableError{URL: link, Reason: "not an html page: " + ct}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, p.maxBytes))
	if err != nil {
		return nil, &UnscrapableError{URL: link, Reason: err.Error()}
	}

	data := scrapeDocument(doc, resp.Request.URL)
	if data.FileURL == "" && data.EmbedCode == "" && data.FlashEnclosureURL == "" {
		return nil, &UnscrapableError{URL: link, Reason: "no video metadata on page"}
	}
	return data, nil
}

func scrapeDocument(doc *goquery.Document, base *url.URL) *models.ScrapedData {
	data := &models.ScrapedData{}

	videoURL := firstMeta(doc, "og:video:secure_url", "og:video:url", "og:video")
	videoType := strings.ToLower(firstMeta(doc, "og:video:type"))
	if videoURL != "" {
		videoURL = resolve(base, videoURL)
		switch {
		case strings.Contains(videoType, "shockwave-flash"):
			data.FlashEnclosureURL = videoURL
		case strings.HasPrefix(videoType, "video/") && !strings.Contains(videoType, "flv"):
			data.FileURL = videoURL
		default:
			data.FileURL = videoURL
			data.FileURLIsFlaky = !sources.IsVideoFile(videoURL, videoType)
		}
	}

	if player := firstMeta(doc, "twitter:player"); player != "" {
		width := atoiDefault(firstMeta(doc, "twitter:player:width"), 480)
		height := atoiDefault(firstMeta(doc, "twitter:player:height"), 270)
		data.EmbedCode = embedIframe(html.EscapeString(resolve(base, player)), width, height)
	}

	if data.FlashEnclosureURL == "" {
		if href, ok := doc.Find(`link[rel="video_src"]`).First().Attr("href"); ok && href != "" {
			data.FlashEnclosureURL = resolve(base, href)
		}
	}

	if img := firstMeta(doc, "og:image:secure_url", "og:image", "twitter:image"); img != "" {
		data.ThumbnailURL = resolve(base, img)
	}

	data.Title = firstMeta(doc, "og:title", "twitter:title")
	if data.Title == "" {
		data.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	data.Description = firstMeta(doc, "og:description", "twitter:description", "description")

	if published := firstMeta(doc, "article:published_time", "video:release_date", "uploadDate", "datePublished"); published != "" {
		data.PublishDate = parseDate(published)
	}
	if data.PublishDate == nil {
		if dt, ok := doc.Find(`[itemprop="uploadDate"]`).First().Attr("datetime"); ok {
			data.PublishDate = parseDate(dt)
		}
	}

	return data
}

// firstMeta returns the content of the first meta tag matching any of the
// names, checking property, name and itemprop attributes.
func firstMeta(doc *goquery.Document, names ...string) string {
	for _, name := range names {
		for _, attr := range []string{"property", "name", "itemprop"} {
			sel := doc.Find(fmt.Sprintf(`meta[%s="%s"]`, attr, name)).First()
			if content, ok := sel.Attr("content"); ok && strings.TrimSpace(content) != "" {
				return strings.TrimSpace(content)
			}
		}
	}
	return ""
}

func resolve(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
