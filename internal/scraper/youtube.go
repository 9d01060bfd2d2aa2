package scraper

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/johnrirwin/localtv/internal/models"
)

var youtubeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// YouTubeScraper builds embed markup for YouTube links without a network
// round trip. YouTube never exposes a direct file URL.
type YouTubeScraper struct{}

func (YouTubeScraper) Handles(link string) bool {
	return extractVideoID(link) != ""
}

func (YouTubeScraper) Scrape(_ context.Context, link string) (*models.ScrapedData, error) {
	id := extractVideoID(link)
	if id == "" {
		return nil, &UnscrapableError{URL: link, Reason: "not a youtube video link"}
	}
	return &models.ScrapedData{
		EmbedCode:    embedIframe("https://www.youtube.com/embed/"+id, 480, 270),
		ThumbnailURL: fmt.Sprintf("https://i.ytimg.com/vi/%s/hqdefault.jpg", id),
	}, nil
}

func extractVideoID(link string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return ""
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")

	var id string
	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "youtube-nocookie.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/shorts/"), strings.HasPrefix(u.Path, "/embed/"), strings.HasPrefix(u.Path, "/v/"):
			parts := strings.Split(strings.Trim(u.Path, "/"), "/")
			if len(parts) >= 2 {
				id = parts[1]
			}
		}
	}

	if !youtubeIDPattern.MatchString(id) {
		return ""
	}
	return id
}

func embedIframe(src string, width, height int) string {
	return fmt.Sprintf(`<iframe width="%d" height="%d" src="%s" frameborder="0" allowfullscreen></iframe>`,
		width, height, src)
}
