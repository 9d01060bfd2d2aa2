package sources

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
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/">
  <channel>
    <title>Test Channel</title>
    <link>http://example.com/</link>
    <item>
      <title>First video</title>
      <link>http://example.com/videos/1</link>
      <guid>tag:example.com,2024:1</guid>
      <description>&lt;p&gt;A &lt;b&gt;great&lt;/b&gt; clip&lt;/p&gt;</description>
      <pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
      <category>music</category>
      <category>live show</category>
      <enclosure url="http://example.com/videos/1.mp4" length="1048576" type="video/mp4"/>
      <media:thumbnail url="http://example.com/thumbs/1.jpg"/>
    </item>
    <item>
      <title>Audio only</title>
      <link>http://example.com/videos/2</link>
      <enclosure url="http://example.com/audio/2.mp3" length="10" type="audio/mpeg"/>
      <media:group>
        <media:content url="http://example.com/videos/2.webm" medium="video"/>
        <media:thumbnail url="http://example.com/thumbs/2.png"/>
      </media:group>
    </item>
    <item>
      <title>Plain link</title>
      <link>http://example.com/videos/3</link>
    </item>
  </channel>
</rss>`

func newTestFetcher() *FeedFetcher {
	return NewFeedFetcher(ratelimit.New(0), DefaultConfig(), nil)
}

func TestFeedFetcherParsesEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v2"`)
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(sampleRSS))
	}))
	defer server.Close()

	result, err := newTestFetcher().Fetch(context.Background(), &models.Source{Kind: models.SourceKindFeed, Origin: server.URL})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if result.ChangeToken != `"v2"` {
		t.Errorf("ChangeToken = %q, want %q", result.ChangeToken, `"v2"`)
	}
	if len(result.Entries) != 3 {
		t.Fatalf("len(Entries) = %d, want 3", len(result.Entries))
	}

	first := result.Entries[0]
	if first.GUID != "tag:example.com,2024:1" {
		t.Errorf("GUID = %q", first.GUID)
	}
	if first.Link != "http://example.com/videos/1" {
		t.Errorf("Link = %q", first.Link)
	}
	if first.EnclosureURL != "http://example.com/videos/1.mp4" {
		t.Errorf("EnclosureURL = %q", first.EnclosureURL)
	}
	if first.EnclosureType != "video/mp4" || first.EnclosureLength != 1048576 {
		t.Errorf("enclosure type/length = %q/%d", first.EnclosureType, first.EnclosureLength)
	}
	if first.ThumbnailURL != "http://example.com/thumbs/1.jpg" {
		t.Errorf("ThumbnailURL = %q", first.ThumbnailURL)
	}
	if !strings.Contains(first.Summary, "<b>great</b>") {
		t.Errorf("Summary = %q, want raw markup kept for the materializer", first.Summary)
	}
	if first.PublishedAt == nil || !first.PublishedAt.Equal(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("PublishedAt = %v", first.PublishedAt)
	}
	if len(first.Tags) != 2 || first.Tags[0] != "music" {
		t.Errorf("Tags = %q", first.Tags)
	}

	second := result.Entries[1]
	if second.EnclosureURL != "http://example.com/videos/2.webm" {
		t.Errorf("media:group enclosure = %q, want the webm", second.EnclosureURL)
	}
	if second.ThumbnailURL != "http://example.com/thumbs/2.png" {
		t.Errorf("media:group thumbnail = %q", second.ThumbnailURL)
	}
	if second.GUID != "" {
		t.Errorf("GUID = %q, want empty", second.GUID)
	}

	if result.Entries[2].EnclosureURL != "" {
		t.Errorf("plain link EnclosureURL = %q, want empty", result.Entries[2].EnclosureURL)
	}
}

func TestFeedFetcherConditionalGet(t *testing.T) {
	var gotIfNoneMatch string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIfNoneMatch = r.Header.Get("If-None-Match")
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	src := &models.Source{Kind: models.SourceKindFeed, Origin: server.URL, ETag: `"v1"`}
	result, err := newTestFetcher().Fetch(context.Background(), src)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if gotIfNoneMatch != `"v1"` {
		t.Errorf("If-None-Match = %q, want %q", gotIfNoneMatch, `"v1"`)
	}
	if !result.NotModified || len(result.Entries) != 0 {
		t.Errorf("result = %+v, want not-modified with no entries", result)
	}
	if result.ChangeToken != `"v1"` {
		t.Errorf("ChangeToken = %q, want the existing token", result.ChangeToken)
	}
}

func TestFeedFetcherErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			w.Write([]byte("this is not a feed"))
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	tests := []struct {
		name       string
		url        string
		wantStatus int
	}{
		{"server error", server.URL + "/feed", http.StatusInternalServerError},
		{"unparseable body", server.URL + "/broken", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestFetcher().Fetch(context.Background(), &models.Source{Origin: tt.url})
			var fetchErr *FetchError
			if !errors.As(err, &fetchErr) {
				t.Fatalf("Fetch() error = %v, want *FetchError", err)
			}
			if fetchErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", fetchErr.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestIsVideoFile(t *testing.T) {
	tests := []struct {
		url      string
		mimeType string
		expected bool
	}{
		{"http://a/x.mp4", "video/mp4", true},
		{"http://a/x", "video/x-flv; charset=binary", true},
		{"http://a/x.ogg", "application/ogg", true},
		{"http://a/x.mp3", "audio/mpeg", false},
		{"http://a/x.mov", "", true},
		{"http://a/x.M4V?token=1", "application/octet-stream", true},
		{"http://a/x.jpg", "", false},
		{"http://a/x.mp4", "text/html", false},
	}

	for _, tt := range tests {
		if result := IsVideoFile(tt.url, tt.mimeType); result != tt.expected {
			t.Errorf("IsVideoFile(%q, %q) = %v, want %v", tt.url, tt.mimeType, result, tt.expected)
		}
	}
}

func TestRouter(t *testing.T) {
	r := &Router{Search: NewSearchFetcher(stubSearcher{entries: []models.Entry{{Link: "http://a/1"}}})}

	result, err := r.Fetch(context.Background(), &models.Source{Kind: models.SourceKindSearch, Origin: "cats"})
	if err != nil {
		t.Fatalf("Fetch(search) error = %v", err)
	}
	if len(result.Entries) != 1 || result.ChangeToken != "" {
		t.Errorf("Fetch(search) = %+v", result)
	}

	if _, err := r.Fetch(context.Background(), &models.Source{Kind: models.SourceKindFeed}); err == nil {
		t.Error("Fetch(feed) with no feed fetcher = nil error")
	}
}

type stubSearcher struct {
	entries []models.Entry
	err     error
}

func (s stubSearcher) Search(context.Context, string) ([]models.Entry, error) {
	return s.entries, s.err
}

func TestSearchFetcherWrapsErrors(t *testing.T) {
	f := NewSearchFetcher(stubSearcher{err: errors.New("providers down")})
	_, err := f.Fetch(context.Background(), &models.Source{Kind: models.SourceKindSearch, Origin: "cats"})

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Fetch() error = %v, want *FetchError", err)
	}
}
