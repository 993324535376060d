package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/raphaelgruber/catalog-harvester/internal/models"
	"github.com/raphaelgruber/catalog-harvester/internal/store"
)

var (
	// ErrSourceInactive indicates the source is inactive or deleted; no job is created.
	ErrSourceInactive = errors.New("source is inactive or deleted")

	// ErrSourceNotValidated indicates the source has not been accepted for scheduling.
	ErrSourceNotValidated = errors.New("source is not validated")

	// ErrAlreadyRunning indicates a run of the source is in progress in this process.
	ErrAlreadyRunning = errors.New("source is already being harvested")

	// ErrInterrupted indicates the run was cancelled before the listing
	// completed. The job is kept as failed and autoarchive is skipped.
	ErrInterrupted = errors.New("harvest interrupted")
)

// Enqueuer hands a source run to an asynchronous worker.
type Enqueuer interface {
	Enqueue(ctx context.Context, sourceID string) error
}

// ActiveRun describes a harvest in progress.
type ActiveRun struct {
	SourceID  string
	Slug      string
	StartedAt time.Time
}

// Runner resolves sources and runs them through the engine. It tracks runs
// in progress so that a source is never harvested twice concurrently by the
// same process.
type Runner struct {
	engine   *Engine
	enqueuer Enqueuer
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]ActiveRun
}

// NewRunner creates a runner. enqueuer may be nil when no queue is configured.
func NewRunner(engine *Engine, enqueuer Enqueuer, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		engine:   engine,
		enqueuer: enqueuer,
		logger:   logger,
		active:   make(map[string]ActiveRun),
	}
}

// Engine returns the underlying engine.
func (r *Runner) Engine() *Engine {
	return r.engine
}

// Resolve finds a source by id, then a live source by slug.
func (r *Runner) Resolve(ctx context.Context, idOrSlug string) (*models.HarvestSource, error) {
	src, err := r.engine.store.GetSource(ctx, idOrSlug)
	if errors.Is(err, store.ErrNotFound) {
		src, err = r.engine.store.GetSourceBySlug(ctx, idOrSlug)
	}
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", idOrSlug, err)
	}
	return src, nil
}

// RunSource harvests a source synchronously. Inactive or deleted sources
// are skipped with ErrSourceInactive.
func (r *Runner) RunSource(ctx context.Context, idOrSlug string) (*models.HarvestJob, error) {
	src, err := r.Resolve(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	if src.IsDeleted() || !src.Active {
		r.logger.Info("skipping inactive source", "source_id", src.ID, "slug", src.Slug)
		return nil, fmt.Errorf("%s: %w", src.Slug, ErrSourceInactive)
	}

	if !r.begin(src) {
		return nil, fmt.Errorf("%s: %w", src.Slug, ErrAlreadyRunning)
	}
	defer r.end(src.ID)

	return r.engine.Harvest(ctx, src)
}

// Enqueue schedules an asynchronous run of an accepted source.
func (r *Runner) Enqueue(ctx context.Context, idOrSlug string) error {
	if r.enqueuer == nil {
		return errors.New("no queue configured")
	}
	src, err := r.Resolve(ctx, idOrSlug)
	if err != nil {
		return err
	}
	if src.IsDeleted() || !src.Active {
		return fmt.Errorf("%s: %w", src.Slug, ErrSourceInactive)
	}
	if src.Validation.State != models.ValidationAccepted {
		return fmt.Errorf("%s (%s): %w", src.Slug, src.Validation.State, ErrSourceNotValidated)
	}
	if err := r.enqueuer.Enqueue(ctx, src.ID); err != nil {
		return fmt.Errorf("enqueue %s: %w", src.Slug, err)
	}
	r.logger.Info("harvest enqueued", "source_id", src.ID, "slug", src.Slug)
	return nil
}

// Active returns the runs in progress, oldest first.
func (r *Runner) Active() []ActiveRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	runs := make([]ActiveRun, 0, len(r.active))
	for _, a := range r.active {
		runs = append(runs, a)
	}
	slices.SortFunc(runs, func(a, b ActiveRun) int { return a.StartedAt.Compare(b.StartedAt) })
	return runs
}

func (r *Runner) begin(src *models.HarvestSource) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, running := r.active[src.ID]; running {
		return false
	}
	r.active[src.ID] = ActiveRun{SourceID: src.ID, Slug: src.Slug, StartedAt: time.Now()}
	return true
}

func (r *Runner) end(sourceID string) {
	r.mu.Lock()
	delete(r.active, sourceID)
	r.mu.Unlock()
}
