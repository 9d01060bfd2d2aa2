package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/johnrirwin/localtv/internal/models"
)

// SourceStore handles feed and saved-search persistence.
type SourceStore struct {
	db *DB
}

func NewSourceStore(db *DB) *SourceStore {
	return &SourceStore{db: db}
}

const sourceColumns = `id, site_id, kind, name, origin, webpage, status, auto_approve, auto_update,
	etag, last_updated, created_at, user_id, auto_categories, auto_authors`

// CreateSource inserts src and fills in its ID and CreatedAt.
func (s *SourceStore) CreateSource(ctx context.Context, src *models.Source) error {
	query := `
		INSERT INTO sources (site_id, kind, name, origin, webpage, status, auto_approve, auto_update,
			etag, last_updated, user_id, auto_categories, auto_authors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at
	`

	status := src.Status
	if status == "" {
		status = models.SourceStatusUnapproved
	}

	err := s.db.QueryRowContext(ctx, query,
		src.SiteID,
		src.Kind,
		src.Name,
		src.Origin,
		nullString(src.Webpage),
		status,
		src.AutoApprove,
		src.AutoUpdate,
		nullString(src.ETag),
		nullTime(src.LastUpdated),
		nullString(src.UserID),
		pq.Array(nonNilIDs(src.AutoCategories)),
		pq.Array(nonNilIDs(src.AutoAuthors)),
	).Scan(&src.ID, &src.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("source %q already exists: %w", src.Origin, models.ErrDuplicateSource)
		}
		return fmt.Errorf("failed to create source: %w", err)
	}
	src.Status = status
	return nil
}

func (s *SourceStore) GetSource(ctx context.Context, id int64) (*models.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE id = $1`
	return s.scanSource(s.db.QueryRowContext(ctx, query, id))
}

// FindSource looks a source up by its natural key.
func (s *SourceStore) FindSource(ctx context.Context, siteID int64, kind models.SourceKind, origin string) (*models.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE site_id = $1 AND kind = $2 AND origin = $3`
	return s.scanSource(s.db.QueryRowContext(ctx, query, siteID, kind, origin))
}

// ListAutoUpdateSources returns the active sources of a site that are
// polled periodically, feeds first.
func (s *SourceStore) ListAutoUpdateSources(ctx context.Context, siteID int64) ([]*models.Source, error) {
	query := `SELECT ` + sourceColumns + `
		FROM sources
		WHERE site_id = $1 AND status = 'active' AND auto_update
		ORDER BY kind, id
	`

	rows, err := s.db.QueryContext(ctx, query, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []*models.Source
	for rows.Next() {
		src, err := s.scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sources: %w", err)
	}
	return sources, nil
}

// UpdateSourceCursor records the change token and time of the last run.
func (s *SourceStore) UpdateSourceCursor(ctx context.Context, id int64, etag string, lastUpdated time.Time) error {
	query := `UPDATE sources SET etag = $2, last_updated = $3 WHERE id = $1`
	result, err := s.db.ExecContext(ctx, query, id, nullString(etag), lastUpdated)
	if err != nil {
		return fmt.Errorf("failed to update source cursor: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update source cursor: %w", err)
	}
	if rows == 0 {
		return models.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *SourceStore) scanSource(row rowScanner) (*models.Source, error) {
	src := &models.Source{}
	var webpage, etag, userID sql.NullString
	var lastUpdated sql.NullTime
	var categories, authors pq.Int64Array

	err := row.Scan(
		&src.ID,
		&src.SiteID,
		&src.Kind,
		&src.Name,
		&src.Origin,
		&webpage,
		&src.Status,
		&src.AutoApprove,
		&src.AutoUpdate,
		&etag,
		&lastUpdated,
		&src.CreatedAt,
		&userID,
		&categories,
		&authors,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan source: %w", err)
	}

	src.Webpage = webpage.String
	src.ETag = etag.String
	src.LastUpdated = timePtr(lastUpdated)
	src.UserID = userID.String
	src.AutoCategories = []int64(categories)
	src.AutoAuthors = []int64(authors)
	return src, nil
}

func nonNilIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
