// Package harvest runs backends against sources and owns the job and item
// lifecycle: persistence of progress, error capture, max-items cutoff,
// autoarchive and hooks.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/raphaelgruber/catalog-harvester/internal/backend"
	"github.com/raphaelgruber/catalog-harvester/internal/blob"
	"github.com/raphaelgruber/catalog-harvester/internal/lock"
	"github.com/raphaelgruber/catalog-harvester/internal/models"
	"github.com/raphaelgruber/catalog-harvester/internal/store"
)

// Defaults applied by New when the corresponding option is zero.
const (
	DefaultPreviewMaxItems      = 20
	DefaultAutoarchiveGraceDays = 7
	DefaultLockTTL              = 2 * time.Hour
)

// Hook observes a job before or after a run.
type Hook func(ctx context.Context, src *models.HarvestSource, job *models.HarvestJob)

// Hooks are called around every run, previews included.
type Hooks struct {
	Before []Hook
	After  []Hook
}

// Options configure the engine.
type Options struct {
	// MaxItems caps items per run. Zero means unlimited.
	MaxItems             int
	PreviewMaxItems      int
	AutoarchiveGraceDays int

	HTTPTimeout time.Duration
	UserAgent   string
	HTTPClient  *http.Client

	Blob                blob.Store
	GraphsBucket        string
	MaxInlineGraphBytes int

	Locker  lock.Locker
	LockTTL time.Duration

	Hooks  Hooks
	Logger *slog.Logger

	// Now overrides the clock.
	Now func() time.Time
}

// Engine executes harvest runs.
type Engine struct {
	store    store.Store
	registry *backend.Registry
	opts     Options
	logger   *slog.Logger
}

// New creates an engine.
func New(st store.Store, reg *backend.Registry, opts Options) *Engine {
	if opts.PreviewMaxItems <= 0 {
		opts.PreviewMaxItems = DefaultPreviewMaxItems
	}
	if opts.AutoarchiveGraceDays <= 0 {
		opts.AutoarchiveGraceDays = DefaultAutoarchiveGraceDays
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	if opts.Locker == nil {
		opts.Locker = lock.Noop{}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, registry: reg, opts: opts, logger: logger}
}

// Registry returns the backend registry.
func (e *Engine) Registry() *backend.Registry {
	return e.registry
}

// Store returns the persistence layer.
func (e *Engine) Store() store.Store {
	return e.store
}

// AddHooks registers additional hooks.
func (e *Engine) AddHooks(h Hooks) {
	e.opts.Hooks.Before = append(e.opts.Hooks.Before, h.Before...)
	e.opts.Hooks.After = append(e.opts.Hooks.After, h.After...)
}

// Harvest runs a full harvest of src and returns the finished job.
// The error is non-nil when no job could be run at all (unknown backend,
// lock contention or a failure to persist the initial job) or when ctx was
// cancelled mid-run, in which case the failed job is returned with an
// error wrapping ErrInterrupted. Other run-level failures are reported
// through the job status.
func (e *Engine) Harvest(ctx context.Context, src *models.HarvestSource) (*models.HarvestJob, error) {
	release, err := e.opts.Locker.Acquire(ctx, "harvest:"+src.ID, e.opts.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("harvest %s: %w", src.Slug, err)
	}
	defer release()

	return e.run(ctx, src, false, e.opts.MaxItems)
}

// Preview runs src in dry-run mode: nothing is persisted, autoarchive is
// skipped and at most maxItems items are processed (the preview default
// when maxItems <= 0).
func (e *Engine) Preview(ctx context.Context, src *models.HarvestSource, maxItems int) (*models.HarvestJob, error) {
	if maxItems <= 0 {
		maxItems = e.opts.PreviewMaxItems
	}
	return e.run(ctx, src, true, maxItems)
}

func (e *Engine) run(ctx context.Context, src *models.HarvestSource, dryRun bool, maxItems int) (*models.HarvestJob, error) {
	job := models.NewJob(src.ID)
	now := e.opts.Now()
	job.Created, job.Started = now, &now

	r, err := e.newRun(src, job, dryRun, maxItems)
	if err != nil {
		return nil, err
	}
	if !dryRun {
		if err := e.store.SaveJob(ctx, job); err != nil {
			return nil, fmt.Errorf("create job: %w", err)
		}
	}

	r.logger.Info("harvest started", "source", src.Slug, "url", src.URL, "dry_run", dryRun, "max_items", maxItems)
	e.callHooks(ctx, e.opts.Hooks.Before, src, job)
	interrupted := r.execute(ctx)
	e.callHooks(context.WithoutCancel(ctx), e.opts.Hooks.After, src, job)
	r.logger.Info("harvest finished",
		"status", job.Status,
		"items", len(job.Items),
		"done", job.CountItems(models.ItemDone),
		"failed", job.CountItems(models.ItemFailed),
		"skipped", job.CountItems(models.ItemSkipped),
		"archived", job.CountItems(models.ItemArchived),
		"duration", job.Duration())
	if interrupted != nil {
		return job, fmt.Errorf("harvest %s: %w", src.Slug, interrupted)
	}
	return job, nil
}

func (e *Engine) newRun(src *models.HarvestSource, job *models.HarvestJob, dryRun bool, maxItems int) (*run, error) {
	logger := e.logger.With("source_id", src.ID, "job_id", job.ID)
	b, err := e.registry.New(backend.Options{
		Source:              src,
		Job:                 job,
		DryRun:              dryRun,
		MaxItems:            maxItems,
		HTTPTimeout:         e.opts.HTTPTimeout,
		UserAgent:           e.opts.UserAgent,
		Client:              e.opts.HTTPClient,
		Blob:                e.opts.Blob,
		GraphsBucket:        e.opts.GraphsBucket,
		MaxInlineGraphBytes: e.opts.MaxInlineGraphBytes,
		Logger:              logger,
	})
	if err != nil {
		return nil, err
	}
	return &run{
		engine:   e,
		src:      src,
		job:      job,
		backend:  b,
		dryRun:   dryRun,
		maxItems: maxItems,
		logger:   logger,
	}, nil
}

func (e *Engine) callHooks(ctx context.Context, hooks []Hook, src *models.HarvestSource, job *models.HarvestJob) {
	for _, h := range hooks {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					e.logger.Error("harvest hook panicked", "job_id", job.ID, "panic", rec)
				}
			}()
			h(ctx, src, job)
		}()
	}
}

// ProcessItem re-processes a single item of an existing job, rebuilding
// the backend from the stored job state.
func (e *Engine) ProcessItem(ctx context.Context, jobID, remoteID string) (*models.HarvestJob, *models.HarvestItem, error) {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	var item *models.HarvestItem
	for i := len(job.Items) - 1; i >= 0; i-- {
		if job.Items[i].RemoteID == remoteID && job.Items[i].Status != models.ItemArchived {
			item = job.Items[i]
			break
		}
	}
	if item == nil {
		return nil, nil, fmt.Errorf("job %s: item %q: %w", jobID, remoteID, store.ErrNotFound)
	}
	src, err := e.store.GetSource(ctx, job.SourceID)
	if err != nil {
		return nil, nil, fmt.Errorf("get source %s: %w", job.SourceID, err)
	}
	if job.Data == nil {
		job.Data = map[string]any{}
	}

	r, err := e.newRun(src, job, false, 0)
	if err != nil {
		return nil, nil, err
	}

	now := e.opts.Now()
	item.Status = models.ItemStarted
	item.Started = &now
	item.Ended = nil
	item.Errors = nil
	item.Logs = nil
	r.processItem(ctx, item)

	if job.IsFinished() && job.Status != models.JobFailed {
		job.Status = models.JobDone
		if job.HasFailedItems() {
			job.Status = models.JobDoneErrors
		}
		r.saveJob(ctx)
	}
	return job, item, nil
}

// PurgeJobs deletes jobs created more than retentionDays ago.
func (e *Engine) PurgeJobs(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, errors.New("retention must be at least one day")
	}
	before := e.opts.Now().AddDate(0, 0, -retentionDays)
	n, err := e.store.DeleteJobsBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("purge jobs: %w", err)
	}
	e.logger.Info("purged jobs", "count", n, "before", before)
	return n, nil
}
