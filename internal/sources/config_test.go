package sources

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/johnrirwin/localtv/internal/memstore"
	"github.com/johnrirwin/localtv/internal/models"
)

func TestLoadSourcesConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "sources.json")

	configContent := `{
		"sources": [
			{"name": "Test RSS", "type": "feed", "url": "https://example.com/feed", "autoApprove": true, "enabled": true},
			{"name": "Cats", "type": "search", "query": "cats -dogs", "autoCategories": [3], "enabled": true},
			{"name": "Old", "type": "feed", "url": "https://example.com/old", "autoUpdate": false, "enabled": false}
		]
	}`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	config, err := LoadSourcesConfig(configPath)
	if err != nil {
		t.Fatalf("LoadSourcesConfig() error = %v", err)
	}

	if len(config.Sources) != 3 {
		t.Fatalf("Expected 3 sources, got %d", len(config.Sources))
	}

	feed, err := config.Sources[0].Source(1)
	if err != nil {
		t.Fatalf("Source() error = %v", err)
	}
	if feed.Kind != models.SourceKindFeed || !feed.AutoApprove || !feed.AutoUpdate {
		t.Errorf("feed source = %+v", feed)
	}

	search, err := config.Sources[1].Source(1)
	if err != nil {
		t.Fatalf("Source() error = %v", err)
	}
	if search.Kind != models.SourceKindSearch || search.Origin != "cats -dogs" {
		t.Errorf("search source = %+v", search)
	}
	if len(search.AutoCategories) != 1 || search.AutoCategories[0] != 3 {
		t.Errorf("AutoCategories = %v, want [3]", search.AutoCategories)
	}

	old, _ := config.Sources[2].Source(1)
	if old.AutoUpdate {
		t.Error("explicit autoUpdate=false was ignored")
	}
}

func TestLoadSourcesConfigRejectsBadEntries(t *testing.T) {
	tests := []string{
		`{"sources": [{"type": "search"}]}`,
		`{"sources": [{"type": "feed"}]}`,
		`{"sources": [{"type": "podcast", "url": "http://a"}]}`,
		`not json`,
	}

	for _, content := range tests {
		path := filepath.Join(t.TempDir(), "sources.json")
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadSourcesConfig(path); err == nil {
			t.Errorf("LoadSourcesConfig(%s) = nil error", content)
		}
	}
}

func TestEnsureSourcesIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	config := &SourcesConfig{Sources: []SourceSpec{
		{Name: "A", Type: "feed", URL: "http://a/feed", Enabled: true},
		{Name: "B", Type: "search", Query: "cats", Enabled: true},
		{Name: "C", Type: "feed", URL: "http://c/feed", Enabled: false},
	}}

	created, err := EnsureSources(ctx, store, 1, config, nil)
	if err != nil {
		t.Fatalf("EnsureSources() error = %v", err)
	}
	if created != 2 {
		t.Errorf("first EnsureSources() created %d, want 2", created)
	}

	created, err = EnsureSources(ctx, store, 1, config, nil)
	if err != nil {
		t.Fatalf("EnsureSources() error = %v", err)
	}
	if created != 0 {
		t.Errorf("second EnsureSources() created %d, want 0", created)
	}

	active, _ := store.ListAutoUpdateSources(ctx, 1)
	if len(active) != 2 {
		t.Errorf("active sources = %d, want 2", len(active))
	}
}

func TestDetectService(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"http://www.youtube.com/rss/user/someone/videos.rss", "YouTube"},
		{"http://gdata.youtube.com/feeds/base/videos/-/cats", "YouTube"},
		{"https://www.youtube.com/feeds/videos.xml?channel_id=UC123", "YouTube"},
		{"http://someone.blip.tv/rss", "blip.tv"},
		{"http://someone.blip.tv/?skin=rss", "blip.tv"},
		{"http://www.vimeo.com/user:1234/clips/rss", "Vimeo"},
		{"http://example.com/feed.rss", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if result := DetectService(tt.url); result != tt.expected {
			t.Errorf("DetectService(%q) = %q, want %q", tt.url, result, tt.expected)
		}
	}
}
