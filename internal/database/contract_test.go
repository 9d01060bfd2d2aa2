package database_test

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/johnrirwin/localtv/internal/database"
	"github.com/johnrirwin/localtv/internal/memstore"
	"github.com/johnrirwin/localtv/internal/models"
)

// videoStore is the persistence surface shared by the Postgres store and
// memstore. Both must behave identically for every case below.
type videoStore interface {
	CreateSource(ctx context.Context, src *models.Source) error
	GetSource(ctx context.Context, id int64) (*models.Source, error)
	FindSource(ctx context.Context, siteID int64, kind models.SourceKind, origin string) (*models.Source, error)
	ListAutoUpdateSources(ctx context.Context, siteID int64) ([]*models.Source, error)
	UpdateSourceCursor(ctx context.Context, id int64, etag string, lastUpdated time.Time) error
	CreateVideo(ctx context.Context, v *models.Video) error
	GetVideo(ctx context.Context, id int64) (*models.Video, error)
	VideoExistsByGUID(ctx context.Context, src *models.Source, guid string) (bool, error)
	VideoExistsByWebsiteURL(ctx context.Context, src *models.Source, link string) (bool, error)
	SiteVideoExists(ctx context.Context, siteID int64, websiteURL, fileURL string) (bool, error)
	SetVideoStatus(ctx context.Context, id int64, status models.VideoStatus, approvedAt *time.Time) error
	DeleteVideo(ctx context.Context, id int64) error
	ListVideos(ctx context.Context, params models.VideoListParams) (*models.VideoListResponse, error)
}

// storeCase gets a store and two site ids no other case uses.
type storeCase func(t *testing.T, store videoStore, site, otherSite int64)

type backend struct {
	name  string
	setup func(t *testing.T) (videoStore, func() int64)
}

var siteSeq atomic.Int64

func backends(t *testing.T) []backend {
	out := []backend{{
		name: "memstore",
		setup: func(t *testing.T) (videoStore, func() int64) {
			var n int64
			return memstore.New(), func() int64 { n++; return n }
		},
	}}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Log("DATABASE_URL not set, running against memstore only")
		return out
	}

	ctx := context.Background()
	db, err := database.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	store := database.NewStore(db)

	// Sites are not foreign keys, so fresh ids isolate runs sharing a database.
	base := time.Now().UnixNano() / 1000
	return append(out, backend{
		name: "postgres",
		setup: func(t *testing.T) (videoStore, func() int64) {
			return store, func() int64 { return base + siteSeq.Add(1) }
		},
	})
}

func runStoreCases(t *testing.T, cases map[string]storeCase) {
	for _, b := range backends(t) {
		t.Run(b.name, func(t *testing.T) {
			for name, fn := range cases {
				t.Run(name, func(t *testing.T) {
					store, nextSite := b.setup(t)
					fn(t, store, nextSite(), nextSite())
				})
			}
		})
	}
}

func mustCreateSource(t *testing.T, store videoStore, src *models.Source) *models.Source {
	t.Helper()
	if err := store.CreateSource(context.Background(), src); err != nil {
		t.Fatalf("CreateSource(%s) error = %v", src.Origin, err)
	}
	return src
}

func video(site int64, mutate func(v *models.Video)) *models.Video {
	v := &models.Video{
		SiteID:      site,
		Title:       "Clip",
		Status:      models.VideoStatusUnapproved,
		SubmittedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Tags:        []string{},
	}
	mutate(v)
	return v
}

func mustCreateVideo(t *testing.T, store videoStore, v *models.Video) *models.Video {
	t.Helper()
	if err := store.CreateVideo(context.Background(), v); err != nil {
		t.Fatalf("CreateVideo(%q) error = %v", v.Title, err)
	}
	return v
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	runStoreCases(t, map[string]storeCase{
		"duplicate identifiers on one site": func(t *testing.T, store videoStore, site, otherSite int64) {
			mustCreateVideo(t, store, video(site, func(v *models.Video) {
				v.GUID = "guid-1"
				v.WebsiteURL = "http://example.com/page"
				v.FileURL = "http://example.com/a.mp4"
			}))

			tests := []struct {
				name   string
				mutate func(v *models.Video)
			}{
				{"guid", func(v *models.Video) { v.GUID = "guid-1"; v.FileURL = "http://example.com/b.mp4" }},
				{"website url", func(v *models.Video) { v.WebsiteURL = "http://example.com/page"; v.FileURL = "http://example.com/c.mp4" }},
				{"file url", func(v *models.Video) { v.FileURL = "http://example.com/a.mp4" }},
			}
			for _, tt := range tests {
				err := store.CreateVideo(ctx, video(site, tt.mutate))
				if !errors.Is(err, models.ErrDuplicateVideo) {
					t.Errorf("CreateVideo(same %s) error = %v, want ErrDuplicateVideo", tt.name, err)
				}
			}

			mustCreateVideo(t, store, video(otherSite, func(v *models.Video) {
				v.GUID = "guid-1"
				v.FileURL = "http://example.com/a.mp4"
			}))
		},

		"rejected videos do not block": func(t *testing.T, store videoStore, site, _ int64) {
			hidden := mustCreateVideo(t, store, video(site, func(v *models.Video) {
				v.GUID = "guid-r"
				v.FileURL = "http://example.com/r.mp4"
				v.Status = models.VideoStatusRejected
			}))
			mustCreateVideo(t, store, video(site, func(v *models.Video) {
				v.GUID = "guid-r"
				v.FileURL = "http://example.com/r.mp4"
			}))

			exists, err := store.SiteVideoExists(ctx, site, "", "http://example.com/r.mp4")
			if err != nil || !exists {
				t.Errorf("SiteVideoExists() = %v, %v; want true", exists, err)
			}

			now := time.Now()
			err = store.SetVideoStatus(ctx, hidden.ID, models.VideoStatusActive, &now)
			if !errors.Is(err, models.ErrDuplicateVideo) {
				t.Errorf("SetVideoStatus(un-reject duplicate) error = %v, want ErrDuplicateVideo", err)
			}
		},

		"site video exists ignores rejected": func(t *testing.T, store videoStore, site, _ int64) {
			mustCreateVideo(t, store, video(site, func(v *models.Video) {
				v.WebsiteURL = "http://example.com/hidden"
				v.EmbedCode = "<iframe></iframe>"
				v.Status = models.VideoStatusRejected
			}))
			exists, err := store.SiteVideoExists(ctx, site, "http://example.com/hidden", "")
			if err != nil || exists {
				t.Errorf("SiteVideoExists(rejected) = %v, %v; want false", exists, err)
			}
			exists, err = store.SiteVideoExists(ctx, site, "", "")
			if err != nil || exists {
				t.Errorf("SiteVideoExists(empty) = %v, %v; want false", exists, err)
			}
		},

		"dedup lookups follow the source kind": func(t *testing.T, store videoStore, site, _ int64) {
			feed := mustCreateSource(t, store, &models.Source{SiteID: site, Kind: models.SourceKindFeed, Name: "Feed", Origin: "http://example.com/feed.xml"})
			other := mustCreateSource(t, store, &models.Source{SiteID: site, Kind: models.SourceKindFeed, Name: "Other", Origin: "http://example.com/other.xml"})
			search := mustCreateSource(t, store, &models.Source{SiteID: site, Kind: models.SourceKindSearch, Name: "Search", Origin: "cats"})

			mustCreateVideo(t, store, video(site, func(v *models.Video) {
				v.GUID = "from-feed"
				v.WebsiteURL = "http://example.com/feed-video"
				v.FileURL = "http://example.com/feed.mp4"
				v.SourceID = &feed.ID
			}))
			mustCreateVideo(t, store, video(site, func(v *models.Video) {
				v.GUID = "from-search"
				v.WebsiteURL = "http://example.com/search-video"
				v.FileURL = "http://example.com/search.mp4"
				v.SearchID = &search.ID
			}))

			tests := []struct {
				name string
				src  *models.Source
				guid string
				link string
				want bool
			}{
				{"feed owns its guid", feed, "from-feed", "", true},
				{"feed owns its link", feed, "", "http://example.com/feed-video", true},
				{"other feed", other, "from-feed", "http://example.com/feed-video", false},
				{"search owns its guid", search, "from-search", "", true},
				{"search ignores feed videos", search, "from-feed", "http://example.com/feed-video", false},
				{"feed ignores search videos", feed, "from-search", "http://example.com/search-video", false},
			}
			for _, tt := range tests {
				got := false
				if tt.guid != "" {
					ok, err := store.VideoExistsByGUID(ctx, tt.src, tt.guid)
					if err != nil {
						t.Fatalf("%s: VideoExistsByGUID() error = %v", tt.name, err)
					}
					got = got || ok
				}
				if tt.link != "" {
					ok, err := store.VideoExistsByWebsiteURL(ctx, tt.src, tt.link)
					if err != nil {
						t.Fatalf("%s: VideoExistsByWebsiteURL() error = %v", tt.name, err)
					}
					got = got || ok
				}
				if got != tt.want {
					t.Errorf("%s: exists = %v, want %v", tt.name, got, tt.want)
				}
			}
		},

		"missing rows are not found": func(t *testing.T, store videoStore, _, _ int64) {
			const missing = int64(1) << 60
			if _, err := store.GetVideo(ctx, missing); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("GetVideo() error = %v, want ErrNotFound", err)
			}
			if err := store.SetVideoStatus(ctx, missing, models.VideoStatusRejected, nil); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("SetVideoStatus() error = %v, want ErrNotFound", err)
			}
			if err := store.DeleteVideo(ctx, missing); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("DeleteVideo() error = %v, want ErrNotFound", err)
			}
			if _, err := store.GetSource(ctx, missing); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("GetSource() error = %v, want ErrNotFound", err)
			}
		},

		"sources are unique per site": func(t *testing.T, store videoStore, site, otherSite int64) {
			mustCreateSource(t, store, &models.Source{SiteID: site, Kind: models.SourceKindFeed, Name: "A", Origin: "http://example.com/a.xml"})
			err := store.CreateSource(ctx, &models.Source{SiteID: site, Kind: models.SourceKindFeed, Name: "A again", Origin: "http://example.com/a.xml"})
			if !errors.Is(err, models.ErrDuplicateSource) {
				t.Errorf("CreateSource(duplicate) error = %v, want ErrDuplicateSource", err)
			}
			mustCreateSource(t, store, &models.Source{SiteID: otherSite, Kind: models.SourceKindFeed, Name: "A", Origin: "http://example.com/a.xml"})

			found, err := store.FindSource(ctx, site, models.SourceKindFeed, "http://example.com/a.xml")
			if err != nil || found.Name != "A" {
				t.Errorf("FindSource() = %+v, %v; want source A", found, err)
			}
			if _, err := store.FindSource(ctx, site, models.SourceKindSearch, "http://example.com/a.xml"); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("FindSource(other kind) error = %v, want ErrNotFound", err)
			}
		},

		"auto update lists active sources": func(t *testing.T, store videoStore, site, _ int64) {
			live := mustCreateSource(t, store, &models.Source{SiteID: site, Kind: models.SourceKindFeed, Name: "Live", Origin: "http://example.com/live.xml", Status: models.SourceStatusActive, AutoUpdate: true})
			mustCreateSource(t, store, &models.Source{SiteID: site, Kind: models.SourceKindFeed, Name: "Manual", Origin: "http://example.com/manual.xml", Status: models.SourceStatusActive})
			mustCreateSource(t, store, &models.Source{SiteID: site, Kind: models.SourceKindFeed, Name: "Pending", Origin: "http://example.com/pending.xml", AutoUpdate: true})

			srcs, err := store.ListAutoUpdateSources(ctx, site)
			if err != nil {
				t.Fatalf("ListAutoUpdateSources() error = %v", err)
			}
			if len(srcs) != 1 || srcs[0].ID != live.ID {
				t.Fatalf("ListAutoUpdateSources() = %d sources, want only %q", len(srcs), live.Name)
			}

			updated := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)
			if err := store.UpdateSourceCursor(ctx, live.ID, `"v2"`, updated); err != nil {
				t.Fatalf("UpdateSourceCursor() error = %v", err)
			}
			got, err := store.GetSource(ctx, live.ID)
			if err != nil {
				t.Fatalf("GetSource() error = %v", err)
			}
			if got.ETag != `"v2"` || got.LastUpdated == nil || !got.LastUpdated.Equal(updated) {
				t.Errorf("cursor = (%q, %v), want (%q, %v)", got.ETag, got.LastUpdated, `"v2"`, updated)
			}
		},

		"list filters by status": func(t *testing.T, store videoStore, site, _ int64) {
			mustCreateVideo(t, store, video(site, func(v *models.Video) { v.FileURL = "http://example.com/1.mp4" }))
			mustCreateVideo(t, store, video(site, func(v *models.Video) {
				v.FileURL = "http://example.com/2.mp4"
				v.Status = models.VideoStatusActive
			}))

			resp, err := store.ListVideos(ctx, models.VideoListParams{SiteID: site, Status: models.VideoStatusUnapproved})
			if err != nil {
				t.Fatalf("ListVideos() error = %v", err)
			}
			if resp.TotalCount != 1 || len(resp.Videos) != 1 || resp.Videos[0].FileURL != "http://example.com/1.mp4" {
				t.Errorf("ListVideos(unapproved) = %d/%d videos, want the one unapproved video", len(resp.Videos), resp.TotalCount)
			}
		},
	})
}
