package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/johnrirwin/localtv/internal/models"
)

// VideoStore handles video persistence.
type VideoStore struct {
	db *DB
}

func NewVideoStore(db *DB) *VideoStore {
	return &VideoStore{db: db}
}

const videoColumns = `id, site_id, title, description, file_url, file_url_length, file_url_mimetype,
	embed_code, flash_enclosure_url, guid, website_url, status, submitted_at, approved_at,
	published_at, thumbnail_url, has_thumbnail, thumbnail_extension, source_id, search_id,
	user_id, tags`

// CreateVideo inserts v with its category and author links in one
// transaction. A unique index hit is reported as models.ErrDuplicateVideo.
func (s *VideoStore) CreateVideo(ctx context.Context, v *models.Video) error {
	if !v.HasLocation() {
		return fmt.Errorf("failed to create video: no file url or embed code")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO videos (site_id, title, description, file_url, file_url_length, file_url_mimetype,
			embed_code, flash_enclosure_url, guid, website_url, status, submitted_at, approved_at,
			published_at, thumbnail_url, has_thumbnail, thumbnail_extension, source_id, search_id,
			user_id, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING id
	`

	var length sql.NullInt64
	if v.FileURLLength > 0 {
		length = sql.NullInt64{Int64: v.FileURLLength, Valid: true}
	}
	tags := v.Tags
	if tags == nil {
		tags = []string{}
	}

	err = tx.QueryRowContext(ctx, query,
		v.SiteID,
		v.Title,
		nullString(v.Description),
		nullString(v.FileURL),
		length,
		nullString(v.FileURLMimetype),
		nullString(v.EmbedCode),
		nullString(v.FlashEnclosureURL),
		nullString(v.GUID),
		nullString(v.WebsiteURL),
		v.Status,
		v.SubmittedAt,
		nullTime(v.ApprovedAt),
		nullTime(v.PublishedAt),
		nullString(v.ThumbnailURL),
		v.HasThumbnail,
		nullString(v.ThumbnailExtension),
		nullInt64(v.SourceID),
		nullInt64(v.SearchID),
		nullString(v.UserID),
		pq.Array(tags),
	).Scan(&v.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateVideo
		}
		return fmt.Errorf("failed to create video: %w", err)
	}

	if err := linkIDsTx(ctx, tx, "video_categories", "category_id", v.ID, v.CategoryIDs); err != nil {
		return err
	}
	if err := linkIDsTx(ctx, tx, "video_authors", "author_id", v.ID, v.AuthorIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateVideo
		}
		return fmt.Errorf("failed to commit video create: %w", err)
	}
	return nil
}

func linkIDsTx(ctx context.Context, tx *sql.Tx, table, column string, videoID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (video_id, %s)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING
	`, table, column)
	if _, err := tx.ExecContext(ctx, query, videoID, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to link %s: %w", table, err)
	}
	return nil
}

func (s *VideoStore) GetVideo(ctx context.Context, id int64) (*models.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE id = $1`
	v, err := scanVideo(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := s.attachLinks(ctx, []*models.Video{v}); err != nil {
		return nil, err
	}
	return v, nil
}

// VideoExistsByGUID reports whether src already produced a video with guid.
func (s *VideoStore) VideoExistsByGUID(ctx context.Context, src *models.Source, guid string) (bool, error) {
	return s.existsForSource(ctx, src, "guid", guid)
}

// VideoExistsByWebsiteURL reports whether src already produced a video
// pointing at link.
func (s *VideoStore) VideoExistsByWebsiteURL(ctx context.Context, src *models.Source, link string) (bool, error) {
	return s.existsForSource(ctx, src, "website_url", link)
}

func (s *VideoStore) existsForSource(ctx context.Context, src *models.Source, column, value string) (bool, error) {
	originColumn := "source_id"
	if src.IsSearch() {
		originColumn = "search_id"
	}
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM videos WHERE %s = $1 AND %s = $2)`, originColumn, column)

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, src.ID, value).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check video %s: %w", column, err)
	}
	return exists, nil
}

// SiteVideoExists reports whether a visible video on the site already uses
// websiteURL or fileURL. Empty arguments are ignored.
func (s *VideoStore) SiteVideoExists(ctx context.Context, siteID int64, websiteURL, fileURL string) (bool, error) {
	if websiteURL == "" && fileURL == "" {
		return false, nil
	}
	query := `
		SELECT EXISTS (
			SELECT 1 FROM videos
			WHERE site_id = $1 AND status <> 'rejected'
			  AND (($2::text <> '' AND website_url = $2::text) OR ($3::text <> '' AND file_url = $3::text))
		)
	`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, siteID, websiteURL, fileURL).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check site videos: %w", err)
	}
	return exists, nil
}

// UpdateVideoThumbnail stores the thumbnail state of a video.
func (s *VideoStore) UpdateVideoThumbnail(ctx context.Context, id int64, thumbnailURL string, hasThumbnail bool, ext string) error {
	query := `
		UPDATE videos
		SET thumbnail_url = $2, has_thumbnail = $3, thumbnail_extension = $4
		WHERE id = $1
	`
	return s.execOne(ctx, "update video thumbnail", query, id, nullString(thumbnailURL), hasThumbnail, nullString(ext))
}

// SetVideoStatus moves a video to status, recording approvedAt when given.
func (s *VideoStore) SetVideoStatus(ctx context.Context, id int64, status models.VideoStatus, approvedAt *time.Time) error {
	query := `UPDATE videos SET status = $2, approved_at = COALESCE($3, approved_at) WHERE id = $1`
	err := s.execOne(ctx, "update video status", query, id, status, nullTime(approvedAt))
	if isUniqueViolation(err) {
		return models.ErrDuplicateVideo
	}
	return err
}

func (s *VideoStore) DeleteVideo(ctx context.Context, id int64) error {
	return s.execOne(ctx, "delete video", `DELETE FROM videos WHERE id = $1`, id)
}

func (s *VideoStore) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if rows == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListVideos returns a page of a site's videos, newest first.
func (s *VideoStore) ListVideos(ctx context.Context, params models.VideoListParams) (*models.VideoListResponse, error) {
	where := []string{"site_id = $1"}
	args := []interface{}{params.SiteID}
	argIdx := 2

	if params.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, params.Status)
		argIdx++
	}
	whereClause := "WHERE " + strings.Join(where, " AND ")

	var totalCount int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM videos %s", whereClause)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count videos: %w", err)
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT %s FROM videos %s
		ORDER BY submitted_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, videoColumns, whereClause, argIdx, argIdx+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer rows.Close()

	var list []*models.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate videos: %w", err)
	}

	if err := s.attachLinks(ctx, list); err != nil {
		return nil, err
	}

	videos := make([]models.Video, 0, len(list))
	for _, v := range list {
		videos = append(videos, *v)
	}
	return &models.VideoListResponse{Videos: videos, TotalCount: totalCount}, nil
}

// attachLinks loads category and author ids for a batch of videos.
func (s *VideoStore) attachLinks(ctx context.Context, videos []*models.Video) error {
	if len(videos) == 0 {
		return nil
	}
	byID := make(map[int64]*models.Video, len(videos))
	ids := make([]int64, 0, len(videos))
	for _, v := range videos {
		byID[v.ID] = v
		ids = append(ids, v.ID)
	}

	query := `
		SELECT video_id, 'category', category_id FROM video_categories WHERE video_id = ANY($1)
		UNION ALL
		SELECT video_id, 'author', author_id FROM video_authors WHERE video_id = ANY($1)
		ORDER BY 1, 2, 3
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load video links: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var videoID, linkedID int64
		var kind string
		if err := rows.Scan(&videoID, &kind, &linkedID); err != nil {
			return fmt.Errorf("failed to scan video link: %w", err)
		}
		v := byID[videoID]
		if v == nil {
			continue
		}
		if kind == "category" {
			v.CategoryIDs = append(v.CategoryIDs, linkedID)
		} else {
			v.AuthorIDs = append(v.AuthorIDs, linkedID)
		}
	}
	return rows.Err()
}

func scanVideo(row rowScanner) (*models.Video, error) {
	v := &models.Video{}
	var description, fileURL, mimetype, embed, flash, guid, websiteURL, thumbURL, thumbExt, userID sql.NullString
	var length, sourceID, searchID sql.NullInt64
	var approvedAt, publishedAt sql.NullTime
	var tags pq.StringArray

	err := row.Scan(
		&v.ID,
		&v.SiteID,
		&v.Title,
		&description,
		&fileURL,
		&length,
		&mimetype,
		&embed,
		&flash,
		&guid,
		&websiteURL,
		&v.Status,
		&v.SubmittedAt,
		&approvedAt,
		&publishedAt,
		&thumbURL,
		&v.HasThumbnail,
		&thumbExt,
		&sourceID,
		&searchID,
		&userID,
		&tags,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan video: %w", err)
	}

	v.Description = description.String
	v.FileURL = fileURL.String
	v.FileURLLength = length.Int64
	v.FileURLMimetype = mimetype.String
	v.EmbedCode = embed.String
	v.FlashEnclosureURL = flash.String
	v.GUID = guid.String
	v.WebsiteURL = websiteURL.String
	v.ApprovedAt = timePtr(approvedAt)
	v.PublishedAt = timePtr(publishedAt)
	v.ThumbnailURL = thumbURL.String
	v.ThumbnailExtension = thumbExt.String
	v.SourceID = int64Ptr(sourceID)
	v.SearchID = int64Ptr(searchID)
	v.UserID = userID.String
	v.Tags = []string(tags)
	if v.Tags == nil {
		v.Tags = []string{}
	}
	return v, nil
}
