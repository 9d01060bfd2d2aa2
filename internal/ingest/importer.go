package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/johnrirwin/localtv/internal/locks"
	"github.com/johnrirwin/localtv/internal/logging"
	"github.com/johnrirwin/localtv/internal/models"
	"github.com/johnrirwin/localtv/internal/scraper"
	"github.com/johnrirwin/localtv/internal/sources"
)

// ErrImportInProgress is returned when another run holds the source.
var ErrImportInProgress = errors.New("import already running for this source")

// Store is what an import run reads and writes.
type Store interface {
	videoLookup
	videoCreator
	ListAutoUpdateSources(ctx context.Context, siteID int64) ([]*models.Source, error)
	UpdateSourceCursor(ctx context.Context, id int64, etag string, lastUpdated time.Time) error
}

// ThumbnailProcessor renders a video's thumbnail before returning.
type ThumbnailProcessor interface {
	ProcessVideo(ctx context.Context, settings models.SiteSettings, videoID int64) error
}

// ThumbnailScheduler queues a video's thumbnail for later.
type ThumbnailScheduler interface {
	Schedule(ctx context.Context, video *models.Video) (string, error)
}

type Options struct {
	Scraper scraper.Scraper
	Locker  locks.Locker
	Probe   FileProber
	// Thumbnails run inline through Processor unless Scheduler is set.
	Processor ThumbnailProcessor
	Scheduler ThumbnailScheduler
	Clock     func() time.Time
}

// RunResult summarizes one import of one source.
type RunResult struct {
	RunID            string    `json:"runId"`
	SourceID         int64     `json:"sourceId"`
	Seen             int       `json:"seen"`
	Skipped          int       `json:"skipped"`
	Created          int       `json:"created"`
	Failed           int       `json:"failed"`
	ThumbnailsFailed int       `json:"thumbnailsFailed"`
	ThumbnailJobs    []string  `json:"thumbnailJobs,omitempty"`
	VideoIDs         []int64   `json:"videoIds,omitempty"`
	NotModified      bool      `json:"notModified"`
	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt"`
}

// Importer pulls new videos in from sources.
type Importer struct {
	store        Store
	fetcher      sources.Fetcher
	scraper      scraper.Scraper
	locker       locks.Locker
	dedup        *Deduplicator
	materializer *Materializer
	processor    ThumbnailProcessor
	scheduler    ThumbnailScheduler
	logger       *logging.Logger
	now          func() time.Time
}

func NewImporter(store Store, fetcher sources.Fetcher, opts Options, logger *logging.Logger) *Importer {
	if opts.Locker == nil {
		opts.Locker = locks.NewLocal()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Importer{
		store:        store,
		fetcher:      fetcher,
		scraper:      opts.Scraper,
		locker:       opts.Locker,
		dedup:        NewDeduplicator(store),
		materializer: NewMaterializer(store, opts.Probe, opts.Clock),
		processor:    opts.Processor,
		scheduler:    opts.Scheduler,
		logger:       logger,
		now:          opts.Clock,
	}
}

func lockKey(src *models.Source) string {
	return fmt.Sprintf("import:source:%d", src.ID)
}

// Run imports every new entry of src. Runs of the same source never
// overlap; a second caller gets ErrImportInProgress. When the source cannot
// be fetched nothing is stored and its cursor stays where it was.
func (imp *Importer) Run(ctx context.Context, settings models.SiteSettings, src *models.Source) (*RunResult, error) {
	unlock, ok, err := imp.locker.TryLock(ctx, lockKey(src))
	if err != nil {
		return nil, fmt.Errorf("failed to lock source %d: %w", src.ID, err)
	}
	if !ok {
		return nil, ErrImportInProgress
	}
	defer unlock()

	result := &RunResult{
		RunID:     uuid.NewString(),
		SourceID:  src.ID,
		StartedAt: imp.now().UTC(),
	}
	log := imp.logger.With(map[string]interface{}{
		"source": src.ID,
		"run":    result.RunID,
	})

	fetched, err := imp.fetcher.Fetch(ctx, src)
	if err != nil {
		log.Error("Failed to fetch source", logging.WithFields(map[string]interface{}{
			"origin": src.Origin,
			"error":  err.Error(),
		}))
		return result, fmt.Errorf("failed to fetch source %d: %w", src.ID, err)
	}
	result.NotModified = fetched.NotModified

	for _, entry := range fetched.Entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Seen++
		imp.importEntry(ctx, log, settings, src, entry, result)
	}

	updated := imp.now().UTC()
	if err := imp.store.UpdateSourceCursor(ctx, src.ID, fetched.ChangeToken, updated); err != nil {
		return result, fmt.Errorf("failed to save cursor of source %d: %w", src.ID, err)
	}
	src.ETag = fetched.ChangeToken
	src.LastUpdated = &updated
	result.FinishedAt = updated

	log.Info("Import finished", logging.WithFields(map[string]interface{}{
		"seen":    result.Seen,
		"created": result.Created,
		"skipped": result.Skipped,
		"failed":  result.Failed,
	}))
	return result, nil
}

func (imp *Importer) importEntry(ctx context.Context, log *logging.Logger, settings models.SiteSettings, src *models.Source, entry models.Entry, result *RunResult) {
	fields := map[string]interface{}{
		"guid": entry.GUID,
		"link": entry.Link,
	}

	dup, err := imp.dedup.IsDuplicate(ctx, src, entry)
	if err != nil {
		result.Failed++
		fields["error"] = err.Error()
		log.Warn("Duplicate check failed", logging.WithFields(fields))
		return
	}
	if dup {
		result.Skipped++
		return
	}

	scraped := imp.scrape(ctx, log, entry.Link)

	video, err := imp.materializer.Materialize(ctx, settings, src, entry, scraped)
	switch {
	case errors.Is(err, ErrNotViable):
		result.Skipped++
		log.Debug("Skipping entry without a playable location", logging.WithFields(fields))
		return
	case errors.Is(err, models.ErrDuplicateVideo):
		result.Skipped++
		log.Debug("Skipping entry already on the site", logging.WithFields(fields))
		return
	case err != nil:
		result.Failed++
		fields["error"] = err.Error()
		log.Warn("Failed to store video", logging.WithFields(fields))
		return
	}

	result.Created++
	result.VideoIDs = append(result.VideoIDs, video.ID)
	imp.thumbnail(ctx, log, settings, video, result)
}

// scrape returns nil when there is no link or nothing could be learned.
func (imp *Importer) scrape(ctx context.Context, log *logging.Logger, link string) *models.ScrapedData {
	if imp.scraper == nil || link == "" || !imp.scraper.Handles(link) {
		return nil
	}
	data, err := imp.scraper.Scrape(ctx, link)
	if err != nil {
		if !scraper.IsUnscrapable(err) {
			log.Warn("Scrape failed", logging.WithFields(map[string]interface{}{
				"link":  link,
				"error": err.Error(),
			}))
		}
		return nil
	}
	return data
}

func (imp *Importer) thumbnail(ctx context.Context, log *logging.Logger, settings models.SiteSettings, video *models.Video, result *RunResult) {
	if video.ThumbnailURL == "" {
		return
	}

	if imp.scheduler != nil {
		jobID, err := imp.scheduler.Schedule(ctx, video)
		if err != nil {
			result.ThumbnailsFailed++
			log.Warn("Failed to schedule thumbnail", logging.WithFields(map[string]interface{}{
				"video": video.ID,
				"error": err.Error(),
			}))
			return
		}
		if jobID != "" {
			result.ThumbnailJobs = append(result.ThumbnailJobs, jobID)
		}
		return
	}

	if imp.processor == nil {
		return
	}
	if err := imp.processor.ProcessVideo(ctx, settings, video.ID); err != nil {
		result.ThumbnailsFailed++
		log.Warn("Thumbnail failed", logging.WithFields(map[string]interface{}{
			"video": video.ID,
			"url":   video.ThumbnailURL,
			"error": err.Error(),
		}))
	}
}

// UpdateAll imports every active auto-update source of the site. A failing
// source does not stop the others; their errors are joined.
func (imp *Importer) UpdateAll(ctx context.Context, settings models.SiteSettings) ([]*RunResult, error) {
	srcs, err := imp.store.ListAutoUpdateSources(ctx, settings.Site.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	var (
		results []*RunResult
		errs    []error
	)
	for _, src := range srcs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		result, err := imp.Run(ctx, settings, src)
		if errors.Is(err, ErrImportInProgress) {
			imp.logger.Info("Source import already running", logging.WithField("source", src.ID))
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
		if result != nil {
			results = append(results, result)
		}
	}

	return results, errors.Join(errs...)
}
