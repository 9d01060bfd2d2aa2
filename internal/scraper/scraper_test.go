package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/johnrirwin/localtv/internal/models"
	"github.com/johnrirwin/localtv/internal/ratelimit"
	"github.com/johnrirwin/localtv/internal/sources"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://m.youtube.com/watch?v=dQw4w9WgXcQ&t=10", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/watch?v=short", ""},
		{"https://example.com/not-a-video", ""},
		{"", ""},
	}

	for _, tt := range tests {
		result := extractVideoID(tt.url)
		if result != tt.expected {
			t.Errorf("extractVideoID(%q) = %q, want %q", tt.url, result, tt.expected)
		}
	}
}

func TestYouTubeScraper(t *testing.T) {
	data, err := YouTubeScraper{}.Scrape(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if !strings.Contains(data.EmbedCode, "https://www.youtube.com/embed/dQw4w9WgXcQ") {
		t.Errorf("EmbedCode = %q", data.EmbedCode)
	}
	if data.FileURL != "" {
		t.Errorf("FileURL = %q, want empty", data.FileURL)
	}
	if data.ThumbnailURL != "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg" {
		t.Errorf("ThumbnailURL = %q", data.ThumbnailURL)
	}

	_, err = YouTubeScraper{}.Scrape(context.Background(), "https://example.com/")
	if !IsUnscrapable(err) {
		t.Errorf("Scrape(non-youtube) error = %v, want UnscrapableError", err)
	}
}

const videoPage = `<!DOCTYPE html>
<html><head>
<title>Fallback title</title>
<meta property="og:title" content="Sunset timelapse">
<meta property="og:description" content="Ten minutes of sky">
<meta property="og:video:url" content="/media/sunset.mp4">
<meta property="og:video:type" content="video/mp4">
<meta property="og:image" content="/media/sunset.jpg">
<meta name="twitter:player" content="https://player.example.com/embed/42">
<meta name="twitter:player:width" content="640">
<meta name="twitter:player:height" content="360">
<meta property="article:published_time" content="2024-03-05T08:30:00Z">
<link rel="video_src" href="https://example.com/player.swf?id=42">
</head><body></body></html>`

func TestPageScraper(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/video", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(videoPage))
	})
	mux.HandleFunc("/flaky", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><meta property="og:video" content="http://cdn.example.com/stream?id=1"><meta itemprop="uploadDate" content="2023-12-24"></head></html>`))
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Just a blog</title></head></html>`))
	})
	mux.HandleFunc("/file.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	p := NewPageScraper(ratelimit.New(0), sources.DefaultConfig())
	ctx := context.Background()

	data, err := p.Scrape(ctx, server.URL+"/video")
	if err != nil {
		t.Fatalf("Scrape(/video) error = %v", err)
	}
	if data.FileURL != server.URL+"/media/sunset.mp4" || data.FileURLIsFlaky {
		t.Errorf("FileURL = %q flaky=%v", data.FileURL, data.FileURLIsFlaky)
	}
	if !strings.Contains(data.EmbedCode, `src="https://player.example.com/embed/42"`) || !strings.Contains(data.EmbedCode, `width="640"`) {
		t.Errorf("EmbedCode = %q", data.EmbedCode)
	}
	if data.FlashEnclosureURL != "https://example.com/player.swf?id=42" {
		t.Errorf("FlashEnclosureURL = %q", data.FlashEnclosureURL)
	}
	if data.ThumbnailURL != server.URL+"/media/sunset.jpg" {
		t.Errorf("ThumbnailURL = %q", data.ThumbnailURL)
	}
	if data.Title != "Sunset timelapse" || data.Description != "Ten minutes of sky" {
		t.Errorf("Title/Description = %q/%q", data.Title, data.Description)
	}
	if data.PublishDate == nil || !data.PublishDate.Equal(time.Date(2024, 3, 5, 8, 30, 0, 0, time.UTC)) {
		t.Errorf("PublishDate = %v", data.PublishDate)
	}

	flaky, err := p.Scrape(ctx, server.URL+"/flaky")
	if err != nil {
		t.Fatalf("Scrape(/flaky) error = %v", err)
	}
	if !flaky.FileURLIsFlaky {
		t.Error("untyped extensionless og:video should be flaky")
	}
	if flaky.PublishDate == nil || flaky.PublishDate.Year() != 2023 {
		t.Errorf("PublishDate = %v, want 2023-12-24", flaky.PublishDate)
	}

	for _, path := range []string{"/plain", "/missing", "/file.mp4"} {
		if _, err := p.Scrape(ctx, server.URL+path); !IsUnscrapable(err) {
			t.Errorf("Scrape(%s) error = %v, want UnscrapableError", path, err)
		}
	}
}

type stubScraper struct {
	handles bool
	data    *models.ScrapedData
	err     error
	calls   int
}

func (s *stubScraper) Handles(string) bool { return s.handles }

func (s *stubScraper) Scrape(context.Context, string) (*models.ScrapedData, error) {
	s.calls++
	return s.data, s.err
}

func TestChain(t *testing.T) {
	ctx := context.Background()

	skipped := &stubScraper{handles: false}
	unscrapable := &stubScraper{handles: true, err: &UnscrapableError{URL: "x", Reason: "nope"}}
	winner := &stubScraper{handles: true, data: &models.ScrapedData{EmbedCode: "<embed>"}}
	never := &stubScraper{handles: true, data: &models.ScrapedData{EmbedCode: "other"}}

	data, err := Chain{skipped, unscrapable, winner, never}.Scrape(ctx, "http://x")
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if data.EmbedCode != "<embed>" {
		t.Errorf("EmbedCode = %q", data.EmbedCode)
	}
	if skipped.calls != 0 || never.calls != 0 {
		t.Errorf("calls skipped=%d never=%d, want 0", skipped.calls, never.calls)
	}

	boom := errors.New("boom")
	_, err = Chain{&stubScraper{handles: true, err: boom}, winner}.Scrape(ctx, "http://x")
	if !errors.Is(err, boom) {
		t.Errorf("Scrape() error = %v, want boom", err)
	}

	_, err = Chain{skipped}.Scrape(ctx, "http://x")
	if !IsUnscrapable(err) {
		t.Errorf("Scrape() with no handler error = %v, want UnscrapableError", err)
	}
}

func TestProbeFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s, want HEAD", r.Method)
		}
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "video/webm; codecs=vp9")
		w.Header().Set("Content-Length", "4096")
	}))
	defer server.Close()

	info, err := ProbeFile(context.Background(), server.Client(), server.URL+"/clip.webm")
	if err != nil {
		t.Fatalf("ProbeFile() error = %v", err)
	}
	if info.Length != 4096 || info.MimeType != "video/webm" {
		t.Errorf("ProbeFile() = %+v", info)
	}

	if _, err := ProbeFile(context.Background(), server.Client(), server.URL+"/gone"); err == nil {
		t.Error("ProbeFile(404) = nil error")
	}
}
