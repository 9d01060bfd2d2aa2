package thumbnails

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johnrirwin/localtv/internal/logging"
	"github.com/johnrirwin/localtv/internal/models"
)

var (
	ErrUnknownJob = errors.New("unknown thumbnail job")
	// ErrJobExpired is the outcome of a job that never finished within the
	// tracker's retention period.
	ErrJobExpired = errors.New("thumbnail job expired without an outcome")
)

const DefaultMaxAttempts = 5

// SettingsLookup resolves the settings of the site a job belongs to.
type SettingsLookup func(siteID int64) (models.SiteSettings, error)

// StaticSettings serves a fixed set of sites.
func StaticSettings(settings ...models.SiteSettings) SettingsLookup {
	bySite := make(map[int64]models.SiteSettings, len(settings))
	for _, s := range settings {
		bySite[s.Site.ID] = s
	}
	return func(siteID int64) (models.SiteSettings, error) {
		s, ok := bySite[siteID]
		if !ok {
			return models.SiteSettings{}, fmt.Errorf("site %d: %w", siteID, models.ErrNotFound)
		}
		return s, nil
	}
}

type jobState struct {
	done       chan struct{}
	err        error
	registered time.Time
	finished   time.Time
}

// Tracker records the outcome of jobs so callers can wait for them. It only
// sees jobs finished in this process. Outcomes nobody waited for are dropped
// after the retention period, and so are jobs registered longer ago than
// that which never finished; their waiters get ErrJobExpired.
type Tracker struct {
	mu     sync.Mutex
	jobs   map[string]*jobState
	retain time.Duration
	now    func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		jobs:   make(map[string]*jobState),
		retain: time.Hour,
		now:    time.Now,
	}
}

func (t *Tracker) state(id string) *jobState {
	s, ok := t.jobs[id]
	if !ok {
		s = &jobState{done: make(chan struct{}), registered: t.now()}
		t.jobs[id] = s
	}
	return s
}

func (t *Tracker) register(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prune(t.now())
	t.state(id)
}

func (t *Tracker) forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, id)
}

func (t *Tracker) finish(id string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state(id)
	select {
	case <-s.done:
		return
	default:
	}
	s.err = err
	s.finished = t.now()
	close(s.done)
	t.prune(s.finished)
}

// prune drops outcomes finished more than the retention period before now
// and expires jobs registered that long ago without an outcome. Callers
// hold t.mu.
func (t *Tracker) prune(now time.Time) {
	for id, s := range t.jobs {
		if s.finished.IsZero() {
			if now.Sub(s.registered) > t.retain {
				s.err = ErrJobExpired
				s.finished = now
				close(s.done)
				delete(t.jobs, id)
			}
			continue
		}
		if now.Sub(s.finished) > t.retain {
			delete(t.jobs, id)
		}
	}
}

// Wait blocks until the job finishes and returns its final error.
func (t *Tracker) Wait(ctx context.Context, id string) error {
	t.mu.Lock()
	s, ok := t.jobs[id]
	t.mu.Unlock()
	if !ok {
		return ErrUnknownJob
	}

	select {
	case <-s.done:
		t.forget(id)
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Scheduler defers thumbnail processing onto a queue.
type Scheduler struct {
	queue   Queue
	tracker *Tracker
	now     func() time.Time
}

func NewScheduler(queue Queue, tracker *Tracker) *Scheduler {
	if tracker == nil {
		tracker = NewTracker()
	}
	return &Scheduler{queue: queue, tracker: tracker, now: time.Now}
}

// Schedule enqueues a job for video and returns its id. Videos without a
// thumbnail URL need no job; the returned id is then empty.
func (s *Scheduler) Schedule(ctx context.Context, video *models.Video) (string, error) {
	if video.ThumbnailURL == "" {
		return "", nil
	}

	job := Job{
		ID:         uuid.NewString(),
		VideoID:    video.ID,
		SiteID:     video.SiteID,
		EnqueuedAt: s.now().UTC(),
	}
	s.tracker.register(job.ID)
	if err := s.queue.Publish(ctx, job); err != nil {
		s.tracker.forget(job.ID)
		return "", fmt.Errorf("failed to schedule thumbnail for video %d: %w", video.ID, err)
	}
	return job.ID, nil
}

// Await waits for a job scheduled by this process.
func (s *Scheduler) Await(ctx context.Context, jobID string) error {
	return s.tracker.Wait(ctx, jobID)
}

type videoProcessor interface {
	ProcessVideo(ctx context.Context, settings models.SiteSettings, videoID int64) error
}

type WorkerConfig struct {
	Concurrency int
	MaxAttempts int
}

// Worker consumes thumbnail jobs and runs them through a processor.
type Worker struct {
	queue     Queue
	processor videoProcessor
	settings  SettingsLookup
	tracker   *Tracker
	logger    *logging.Logger
	config    WorkerConfig
}

func NewWorker(queue Queue, processor videoProcessor, settings SettingsLookup, tracker *Tracker, config WorkerConfig, logger *logging.Logger) *Worker {
	if tracker == nil {
		tracker = NewTracker()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	return &Worker{
		queue:     queue,
		processor: processor,
		settings:  settings,
		tracker:   tracker,
		logger:    logger,
		config:    config,
	}
}

// Run processes jobs until ctx is cancelled or the queue closes.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.queue.Consume(ctx)
	if err != nil {
		return err
	}

	w.logger.Info("Thumbnail worker started", logging.WithField("concurrency", w.config.Concurrency))

	var wg sync.WaitGroup
	for i := 0; i < w.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range deliveries {
				w.handle(ctx, d)
			}
		}()
	}
	wg.Wait()

	w.logger.Info("Thumbnail worker stopped")
	return ctx.Err()
}

// Await waits until the job with the given id has finished.
func (w *Worker) Await(ctx context.Context, jobID string) error {
	return w.tracker.Wait(ctx, jobID)
}

func (w *Worker) handle(ctx context.Context, d Delivery) {
	job := d.Job
	fields := map[string]interface{}{
		"job":     job.ID,
		"video":   job.VideoID,
		"attempt": job.Attempt,
	}

	settings, err := w.settings(job.SiteID)
	if err == nil {
		err = w.processor.ProcessVideo(ctx, settings, job.VideoID)
	}
	if err == nil {
		if ackErr := d.Ack(); ackErr != nil {
			w.logger.Warn("Failed to ack thumbnail job", logging.WithFields(fields))
		}
		w.tracker.finish(job.ID, nil)
		return
	}

	fields["error"] = err.Error()
	if ctx.Err() != nil {
		w.logger.Info("Thumbnail job interrupted by shutdown", logging.WithFields(fields))
		if nackErr := d.Nack(true); nackErr != nil {
			fields["nackError"] = nackErr.Error()
			w.logger.Warn("Could not requeue interrupted thumbnail job", logging.WithFields(fields))
			w.tracker.finish(job.ID, err)
		}
		return
	}
	if !IsPermanent(err) && job.Attempt+1 < w.config.MaxAttempts {
		w.logger.Warn("Thumbnail job failed, requeueing", logging.WithFields(fields))
		nackErr := d.Nack(true)
		if nackErr == nil {
			return
		}
		fields["nackError"] = nackErr.Error()
	}

	w.logger.Error("Thumbnail job failed", logging.WithFields(fields))
	d.Nack(false)
	w.tracker.finish(job.ID, err)
}
