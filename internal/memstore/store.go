// Package memstore is an in-memory implementation of the source and video
// stores. It enforces the same per-site uniqueness rules as Postgres and is
// used in tests and when no database is configured.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/johnrirwin/localtv/internal/models"
)

type Store struct {
	mu      sync.RWMutex
	sources map[int64]*models.Source
	videos  map[int64]*models.Video
	nextSrc int64
	nextVid int64
	now     func() time.Time
}

func New() *Store {
	return &Store{
		sources: make(map[int64]*models.Source),
		videos:  make(map[int64]*models.Video),
		now:     time.Now,
	}
}

func (s *Store) CreateSource(_ context.Context, src *models.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.sources {
		if existing.SiteID == src.SiteID && existing.Kind == src.Kind && existing.Origin == src.Origin {
			return fmt.Errorf("source %q already exists: %w", src.Origin, models.ErrDuplicateSource)
		}
	}

	s.nextSrc++
	src.ID = s.nextSrc
	if src.Status == "" {
		src.Status = models.SourceStatusUnapproved
	}
	if src.CreatedAt.IsZero() {
		src.CreatedAt = s.now()
	}
	s.sources[src.ID] = cloneSource(src)
	return nil
}

func (s *Store) GetSource(_ context.Context, id int64) (*models.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src, ok := s.sources[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneSource(src), nil
}

func (s *Store) FindSource(_ context.Context, siteID int64, kind models.SourceKind, origin string) (*models.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, src := range s.sources {
		if src.SiteID == siteID && src.Kind == kind && src.Origin == origin {
			return cloneSource(src), nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *Store) ListAutoUpdateSources(_ context.Context, siteID int64) ([]*models.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Source
	for _, src := range s.sources {
		if src.SiteID == siteID && src.Status == models.SourceStatusActive && src.AutoUpdate {
			out = append(out, cloneSource(src))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateSourceCursor(_ context.Context, id int64, etag string, lastUpdated time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.sources[id]
	if !ok {
		return models.ErrNotFound
	}
	src.ETag = etag
	t := lastUpdated
	src.LastUpdated = &t
	return nil
}

func (s *Store) CreateVideo(_ context.Context, v *models.Video) error {
	if !v.HasLocation() {
		return fmt.Errorf("failed to create video: no file url or embed code")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v.Status != models.VideoStatusRejected && s.conflicts(v, 0) {
		return models.ErrDuplicateVideo
	}

	s.nextVid++
	v.ID = s.nextVid
	if v.Tags == nil {
		v.Tags = []string{}
	}
	s.videos[v.ID] = cloneVideo(v)
	return nil
}

// conflicts reports whether a visible video other than skipID on v's site
// shares a guid, website url or file url with v.
func (s *Store) conflicts(v *models.Video, skipID int64) bool {
	for _, other := range s.videos {
		if other.ID == skipID || other.SiteID != v.SiteID || other.Status == models.VideoStatusRejected {
			continue
		}
		if sameNonEmpty(other.GUID, v.GUID) ||
			sameNonEmpty(other.WebsiteURL, v.WebsiteURL) ||
			sameNonEmpty(other.FileURL, v.FileURL) {
			return true
		}
	}
	return false
}

func sameNonEmpty(a, b string) bool {
	return a != "" && a == b
}

func (s *Store) GetVideo(_ context.Context, id int64) (*models.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.videos[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneVideo(v), nil
}

func (s *Store) VideoExistsByGUID(_ context.Context, src *models.Source, guid string) (bool, error) {
	return s.existsForSource(src, func(v *models.Video) bool { return v.GUID == guid }), nil
}

func (s *Store) VideoExistsByWebsiteURL(_ context.Context, src *models.Source, link string) (bool, error) {
	return s.existsForSource(src, func(v *models.Video) bool { return v.WebsiteURL == link }), nil
}

func (s *Store) existsForSource(src *models.Source, match func(*models.Video) bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.videos {
		origin := v.SourceID
		if src.IsSearch() {
			origin = v.SearchID
		}
		if origin != nil && *origin == src.ID && match(v) {
			return true
		}
	}
	return false
}

func (s *Store) SiteVideoExists(_ context.Context, siteID int64, websiteURL, fileURL string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.videos {
		if v.SiteID != siteID || v.Status == models.VideoStatusRejected {
			continue
		}
		if sameNonEmpty(v.WebsiteURL, websiteURL) || sameNonEmpty(v.FileURL, fileURL) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) UpdateVideoThumbnail(_ context.Context, id int64, thumbnailURL string, hasThumbnail bool, ext string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.videos[id]
	if !ok {
		return models.ErrNotFound
	}
	v.ThumbnailURL = thumbnailURL
	v.HasThumbnail = hasThumbnail
	v.ThumbnailExtension = ext
	return nil
}

func (s *Store) SetVideoStatus(_ context.Context, id int64, status models.VideoStatus, approvedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.videos[id]
	if !ok {
		return models.ErrNotFound
	}
	if v.Status == models.VideoStatusRejected && status != models.VideoStatusRejected {
		candidate := *v
		candidate.Status = status
		if s.conflicts(&candidate, id) {
			return models.ErrDuplicateVideo
		}
	}
	v.Status = status
	if approvedAt != nil {
		t := *approvedAt
		v.ApprovedAt = &t
	}
	return nil
}

func (s *Store) DeleteVideo(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.videos[id]; !ok {
		return models.ErrNotFound
	}
	delete(s.videos, id)
	return nil
}

func (s *Store) ListVideos(_ context.Context, params models.VideoListParams) (*models.VideoListResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Video
	for _, v := range s.videos {
		if v.SiteID != params.SiteID {
			continue
		}
		if params.Status != "" && v.Status != params.Status {
			continue
		}
		matched = append(matched, v)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].SubmittedAt.Equal(matched[j].SubmittedAt) {
			return matched[i].SubmittedAt.After(matched[j].SubmittedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}

	videos := []models.Video{}
	for i := offset; i < len(matched) && i < offset+limit; i++ {
		videos = append(videos, *cloneVideo(matched[i]))
	}
	return &models.VideoListResponse{Videos: videos, TotalCount: len(matched)}, nil
}

// Videos returns a snapshot of every stored video ordered by ID.
func (s *Store) Videos() []*models.Video {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Video, 0, len(s.videos))
	for _, v := range s.videos {
		out = append(out, cloneVideo(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cloneSource(src *models.Source) *models.Source {
	c := *src
	c.AutoCategories = append([]int64(nil), src.AutoCategories...)
	c.AutoAuthors = append([]int64(nil), src.AutoAuthors...)
	if src.LastUpdated != nil {
		t := *src.LastUpdated
		c.LastUpdated = &t
	}
	return &c
}

func cloneVideo(v *models.Video) *models.Video {
	c := *v
	c.Tags = append([]string{}, v.Tags...)
	c.CategoryIDs = append([]int64(nil), v.CategoryIDs...)
	c.AuthorIDs = append([]int64(nil), v.AuthorIDs...)
	return &c
}
