package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/johnrirwin/localtv/internal/auth"
	"github.com/johnrirwin/localtv/internal/cache"
	"github.com/johnrirwin/localtv/internal/config"
	"github.com/johnrirwin/localtv/internal/database"
	"github.com/johnrirwin/localtv/internal/httpapi"
	"github.com/johnrirwin/localtv/internal/ingest"
	"github.com/johnrirwin/localtv/internal/locks"
	"github.com/johnrirwin/localtv/internal/logging"
	"github.com/johnrirwin/localtv/internal/memstore"
	"github.com/johnrirwin/localtv/internal/metasearch"
	"github.com/johnrirwin/localtv/internal/models"
	"github.com/johnrirwin/localtv/internal/moderation"
	"github.com/johnrirwin/localtv/internal/ratelimit"
	"github.com/johnrirwin/localtv/internal/scraper"
	"github.com/johnrirwin/localtv/internal/sources"
	"github.com/johnrirwin/localtv/internal/storage"
	"github.com/johnrirwin/localtv/internal/submit"
	"github.com/johnrirwin/localtv/internal/thumbnails"
)

// store is everything the pipeline needs from persistence. Both the Postgres
// store and memstore satisfy it.
type store interface {
	ingest.Store
	submit.Store
	moderation.Store
	GetSource(ctx context.Context, id int64) (*models.Source, error)
	FindSource(ctx context.Context, siteID int64, kind models.SourceKind, origin string) (*models.Source, error)
	CreateSource(ctx context.Context, src *models.Source) error
	UpdateVideoThumbnail(ctx context.Context, id int64, thumbnailURL string, hasThumbnail bool, ext string) error
}

func main() {
	once := flag.Bool("once", false, "run one import of every auto-update source and exit")
	issueToken := flag.String("issue-token", "", "print an admin token for the given user ID and exit")
	envFile := flag.String("env", "", "path to a .env file")
	flag.Parse()

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.ParseLevel(cfg.LogLevel))

	if *issueToken != "" {
		if cfg.JWTSecret == "" {
			logger.Error("JWT_SECRET is required to issue tokens")
			os.Exit(1)
		}
		token, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer).Issue(*issueToken, true, 24*time.Hour)
		if err != nil {
			logger.Error("Failed to issue token", logging.WithField("error", err.Error()))
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *once, logger); err != nil {
		logger.Error("Exiting", logging.WithField("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, once bool, logger *logging.Logger) error {
	settings := cfg.SiteSettings()

	db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	files, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}

	locker, limiter, closeRedis, err := coordination(cfg, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	queue, err := openQueue(cfg, logger)
	if err != nil {
		return err
	}
	defer queue.Close()

	var moderator thumbnails.Moderator
	if cfg.ModerationEnabled {
		rk, err := thumbnails.NewRekognitionModerator(ctx, cfg.AWSRegion, cfg.ModerationMinConfidence)
		if err != nil {
			return err
		}
		moderator = rk
		logger.Info("Thumbnail moderation enabled", logging.WithField("region", cfg.AWSRegion))
	}

	pipeline := thumbnails.NewPipeline(files, logger)
	processor := thumbnails.NewProcessor(db, pipeline, thumbnails.NewDownloader(limiter, cfg.FetchTimeout), moderator, logger)
	tracker := thumbnails.NewTracker()
	scheduler := thumbnails.NewScheduler(queue, tracker)
	worker := thumbnails.NewWorker(queue, processor, thumbnails.StaticSettings(settings), tracker, thumbnails.WorkerConfig{
		Concurrency: cfg.ThumbnailWorkers,
		MaxAttempts: cfg.ThumbnailMaxAttempts,
	}, logger)

	httpConfig := cfg.HTTP()
	specs, err := cfg.Providers()
	if err != nil {
		return err
	}
	var providers []metasearch.Provider
	for _, spec := range specs {
		p, err := metasearch.NewFeedSearchProvider(spec.Name, spec.URLTemplate, limiter, httpConfig)
		if err != nil {
			return err
		}
		providers = append(providers, p)
	}
	searchCache := cache.New[[]models.Entry](cfg.LiveSearchTTL)
	defer searchCache.Stop()
	searcher := metasearch.New(providers, searchCache, logger)

	pages := scraper.Chain{scraper.YouTubeScraper{}, scraper.NewPageScraper(limiter, httpConfig)}
	probeClient := &http.Client{Timeout: cfg.FetchTimeout}
	opts := ingest.Options{
		Scraper:   pages,
		Locker:    locker,
		Processor: processor,
		Probe: func(ctx context.Context, fileURL string) (*scraper.FileInfo, error) {
			return scraper.ProbeFile(ctx, probeClient, fileURL)
		},
	}

	if cfg.DeferThumbnails {
		opts.Scheduler = scheduler
	}

	importer := ingest.NewImporter(db, &sources.Router{
		Feed:   sources.NewFeedFetcher(limiter, httpConfig, logger),
		Search: sources.NewSearchFetcher(searcher),
	}, opts, logger)

	if cfg.SourcesFile != "" {
		sc, err := sources.LoadSourcesConfig(cfg.SourcesFile)
		if err != nil {
			return err
		}
		if _, err := sources.EnsureSources(ctx, db, settings.Site.ID, sc, logger); err != nil {
			return fmt.Errorf("failed to bootstrap sources: %w", err)
		}
	}

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	workerDone := make(chan error, 1)
	go func() { workerDone <- worker.Run(workerCtx) }()

	if once {
		results := updateAll(ctx, importer, settings, logger)
		awaitThumbnails(ctx, scheduler, results, logger)
		stopWorker()
		return waitWorker(workerDone)
	}

	var middleware *auth.Middleware
	if cfg.JWTSecret != "" {
		middleware = auth.NewMiddleware(auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer), logger)
	}

	cors := httpapi.CORSMiddleware(cfg.CORSOrigins)
	mux := http.NewServeMux()
	httpapi.RegisterHealth(mux)
	httpapi.NewAdminAPI(settings, db, importer, moderation.NewService(db, pipeline, logger), searcher, middleware, logger).RegisterRoutes(mux, cors)
	httpapi.NewSubmitAPI(settings, submit.NewService(db, pages, scheduler, logger), middleware, logger).RegisterRoutes(mux, cors)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go schedule(ctx, cfg.UpdateInterval, func() { updateAll(ctx, importer, settings, logger) })

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", logging.WithField("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", logging.WithField("error", err.Error()))
	}
	stopWorker()
	return waitWorker(workerDone)
}

func openStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (store, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, keeping videos in memory")
		return memstore.New(), nil
	}
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		return nil, err
	}
	logger.Info("Connected to Postgres")
	return database.NewStore(db), nil
}

func openStorage(ctx context.Context, cfg *config.Config, logger *logging.Logger) (storage.Storage, error) {
	if cfg.MinIOEndpoint == "" {
		return storage.NewLocal(cfg.StorageDir)
	}
	s, err := storage.NewMinIO(ctx, storage.MinIOConfig{
		Endpoint:  cfg.MinIOEndpoint,
		AccessKey: cfg.MinIOAccessKey,
		SecretKey: cfg.MinIOSecretKey,
		Bucket:    cfg.MinIOBucket,
		UseSSL:    cfg.MinIOUseSSL,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Storing media in MinIO", logging.WithFields(map[string]interface{}{
		"endpoint": cfg.MinIOEndpoint,
		"bucket":   cfg.MinIOBucket,
	}))
	return s, nil
}

// coordination returns the import locker and the per-host rate limiter,
// shared through Redis when REDIS_URL is set.
func coordination(cfg *config.Config, logger *logging.Logger) (locks.Locker, ratelimit.RateLimiter, func(), error) {
	if cfg.RedisURL == "" {
		return locks.NewLocal(), ratelimit.New(cfg.HostInterval), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	logger.Info("Using Redis for locks and rate limits", logging.WithField("addr", opts.Addr))
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close redis client", logging.WithField("error", err.Error()))
		}
	}
	return locks.NewRedis(client, "localtv:lock:", time.Minute, logger),
		ratelimit.NewRedis(client, "localtv:host:", cfg.HostInterval),
		closeFn, nil
}

func openQueue(cfg *config.Config, logger *logging.Logger) (thumbnails.Queue, error) {
	if cfg.RabbitMQURL == "" {
		return thumbnails.NewMemoryQueue(0), nil
	}
	return thumbnails.NewRabbitQueue(cfg.RabbitMQURL, cfg.ThumbnailQueue, cfg.ThumbnailWorkers, logger)
}

func updateAll(ctx context.Context, importer *ingest.Importer, settings models.SiteSettings, logger *logging.Logger) []*ingest.RunResult {
	results, err := importer.UpdateAll(ctx, settings)
	created := 0
	for _, r := range results {
		created += r.Created
	}
	fields := map[string]interface{}{
		"sources": len(results),
		"created": created,
	}
	if err != nil {
		fields["error"] = err.Error()
		logger.Warn("Source update finished with errors", logging.WithFields(fields))
		return results
	}
	logger.Info("Source update finished", logging.WithFields(fields))
	return results
}

func schedule(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// awaitThumbnails blocks until every thumbnail job queued by a -once run
// has finished, so the process does not exit with work in flight.
func awaitThumbnails(ctx context.Context, scheduler *thumbnails.Scheduler, results []*ingest.RunResult, logger *logging.Logger) {
	for _, r := range results {
		for _, jobID := range r.ThumbnailJobs {
			if err := scheduler.Await(ctx, jobID); err != nil {
				logger.Warn("Thumbnail job failed", logging.WithFields(map[string]interface{}{
					"job":    jobID,
					"source": r.SourceID,
					"error":  err.Error(),
				}))
			}
		}
	}
}

func waitWorker(done <-chan error) error {
	err := <-done
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
