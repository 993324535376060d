package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/google/uuid"
	slogmulti "github.com/samber/slog-multi"

	"github.com/raphaelgruber/catalog-harvester/internal/backend"
	"github.com/raphaelgruber/catalog-harvester/internal/models"
	"github.com/raphaelgruber/catalog-harvester/internal/store"
	"github.com/raphaelgruber/catalog-harvester/internal/validate"
)

// run is the state of one job execution. It is the Processor handed to the
// backend and the Records lookup used while processing items.
type run struct {
	engine   *Engine
	src      *models.HarvestSource
	job      *models.HarvestJob
	backend  backend.Backend
	dryRun   bool
	maxItems int
	logger   *slog.Logger

	// truncated is set when max items stopped the enumeration.
	truncated bool
}

// execute runs the job to a terminal status. The returned error wraps
// ErrInterrupted when ctx was cancelled during the run.
func (r *run) execute(ctx context.Context) error {
	r.job.Status = models.JobProcessing
	r.saveJob(ctx)

	var interrupted error
	err := r.harvest(ctx)
	if cerr := ctx.Err(); cerr != nil {
		interrupted = fmt.Errorf("%w: %w", ErrInterrupted, cerr)
		if err == nil {
			err = interrupted
		}
	}
	switch {
	case err != nil, !r.src.Autoarchive, r.dryRun:
	case r.truncated:
		r.logger.Info("listing truncated by max items, skipping autoarchive", "max_items", r.maxItems)
	default:
		err = r.autoarchive(ctx)
	}

	switch {
	case err != nil:
		r.job.Status = models.JobFailed
		r.job.AddError(err.Error(), runErrorDetails(err))
		r.logger.Error("harvest failed", "error", err)
	case r.job.HasFailedItems():
		r.job.Status = models.JobDoneErrors
	default:
		r.job.Status = models.JobDone
	}
	end := r.engine.opts.Now()
	r.job.Ended = &end
	r.saveJob(ctx)
	return interrupted
}

// harvest calls the backend enumeration and turns a panic into an error.
func (r *run) harvest(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &panicError{value: rec, stack: debug.Stack()}
		}
	}()
	return r.backend.InnerHarvest(ctx, r)
}

type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// runErrorDetails is empty for validation errors and interruptions, whose
// message says it all.
func runErrorDetails(err error) string {
	var verr *validate.Error
	if errors.As(err, &verr) || errors.Is(err, ErrInterrupted) {
		return ""
	}
	var perr *panicError
	if errors.As(err, &perr) {
		return string(perr.stack)
	}
	return fmt.Sprintf("%T: %+v", err, err)
}

func (r *run) ProcessDataset(ctx context.Context, remoteID string, kwargs map[string]any) bool {
	return r.process(ctx, models.KindDataset, remoteID, kwargs)
}

func (r *run) ProcessDataservice(ctx context.Context, remoteID string, kwargs map[string]any) bool {
	return r.process(ctx, models.KindDataservice, remoteID, kwargs)
}

func (r *run) process(ctx context.Context, kind models.ItemKind, remoteID string, kwargs map[string]any) bool {
	if ctx.Err() != nil || r.truncated {
		return false
	}
	now := r.engine.opts.Now()
	item := &models.HarvestItem{
		RemoteID: remoteID,
		Kind:     kind,
		Status:   models.ItemStarted,
		Created:  now,
		Started:  &now,
		Kwargs:   kwargs,
	}
	r.job.Items = append(r.job.Items, item)
	r.saveJob(ctx)

	r.processItem(ctx, item)
	if r.reachedMaxItems() {
		r.truncated = true
		return false
	}
	return ctx.Err() == nil
}

func (r *run) reachedMaxItems() bool {
	return r.maxItems > 0 && len(r.job.Items) >= r.maxItems
}

// processItem drives one item to a terminal status.
func (r *run) processItem(ctx context.Context, item *models.HarvestItem) {
	capture := newCaptureHandler(slog.LevelInfo)
	logger := slog.New(slogmulti.Fanout(r.logger.Handler(), capture)).
		With("kind", item.Kind, "remote_id", item.RemoteID)
	ictx := backend.ContextWithLogger(ctx, logger)

	defer func() {
		if rec := recover(); rec != nil {
			item.Status = models.ItemFailed
			item.AddError(fmt.Sprintf("panic: %v", rec), string(debug.Stack()))
			logger.Error("item processing panicked", "panic", rec)
		}
		end := r.engine.opts.Now()
		item.Ended = &end
		item.Logs = append(item.Logs, capture.Logs()...)
		r.saveJob(ctx)
	}()

	if item.RemoteID == "" {
		r.skip(logger, item, backend.Skip("missing identifier"))
		return
	}

	var err error
	switch item.Kind {
	case models.KindDataservice:
		err = r.processDataservice(ictx, item)
	default:
		err = r.processDataset(ictx, item)
	}

	var skip *backend.SkipError
	var verr *validate.Error
	switch {
	case err == nil:
		item.Status = models.ItemDone
		logger.Debug("item done")
	case errors.As(err, &skip):
		r.skip(logger, item, skip)
	case errors.As(err, &verr):
		item.Status = models.ItemFailed
		item.AddError(err.Error(), "")
		logger.Error("item validation failed", "error", err)
	default:
		item.Status = models.ItemFailed
		item.AddError(err.Error(), fmt.Sprintf("%T: %+v", err, err))
		logger.Error("item failed", "error", err)
	}
}

func (r *run) skip(logger *slog.Logger, item *models.HarvestItem, err error) {
	item.Status = models.ItemSkipped
	item.AddError(err.Error(), "")
	logger.Info("skipped item: " + err.Error())
}

func (r *run) processDataset(ctx context.Context, item *models.HarvestItem) error {
	ds, err := r.backend.InnerProcessDataset(ctx, item, r)
	if err != nil {
		return err
	}
	if ds == nil {
		return errors.New("backend returned no dataset")
	}
	now := r.engine.opts.Now()
	ds.Harvest = r.stamp(ds.Harvest, item)
	ds.Archived = nil
	if ds.ID == "" {
		ds.ID = uuid.New().String()
	}
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = now
	}
	ds.LastModified = now

	if err := ds.Validate(); err != nil {
		return err
	}
	if !r.dryRun {
		if err := r.engine.store.SaveDataset(ctx, ds); err != nil {
			return fmt.Errorf("save dataset: %w", err)
		}
	}
	item.DatasetID = &ds.ID
	return nil
}

func (r *run) processDataservice(ctx context.Context, item *models.HarvestItem) error {
	ds, err := r.backend.InnerProcessDataservice(ctx, item, r)
	if err != nil {
		return err
	}
	if ds == nil {
		return errors.New("backend returned no dataservice")
	}
	now := r.engine.opts.Now()
	ds.Harvest = r.stamp(ds.Harvest, item)
	ds.Archived = nil
	if ds.ID == "" {
		ds.ID = uuid.New().String()
	}
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = now
	}
	ds.LastModified = now

	if err := ds.Validate(); err != nil {
		return err
	}
	if !r.dryRun {
		if err := r.engine.store.SaveDataservice(ctx, ds); err != nil {
			return fmt.Errorf("save dataservice: %w", err)
		}
	}
	item.DataserviceID = &ds.ID
	return nil
}

// stamp fills the engine-owned harvest metadata. Remote dates set by the
// backend are kept.
func (r *run) stamp(h *models.HarvestMetadata, item *models.HarvestItem) *models.HarvestMetadata {
	if h == nil {
		h = &models.HarvestMetadata{}
	}
	h.Backend = r.backend.Info().Name
	h.SourceID = r.src.ID
	h.Domain = r.src.Domain()
	h.RemoteID = item.RemoteID
	h.LastUpdate = r.engine.opts.Now()
	h.Unarchive()
	return h
}

func (r *run) Dataset(ctx context.Context, remoteID string) (*models.Dataset, error) {
	ds, err := r.engine.store.FindDataset(ctx, r.src.ID, r.src.Domain(), remoteID)
	if errors.Is(err, store.ErrNotFound) {
		return &models.Dataset{
			ID:           uuid.New().String(),
			Owner:        r.src.Owner,
			Organization: r.src.Organization,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find dataset %q: %w", remoteID, err)
	}
	return ds, nil
}

func (r *run) Dataservice(ctx context.Context, remoteID string) (*models.Dataservice, error) {
	ds, err := r.engine.store.FindDataservice(ctx, r.src.ID, r.src.Domain(), remoteID)
	if errors.Is(err, store.ErrNotFound) {
		return &models.Dataservice{
			ID:           uuid.New().String(),
			Owner:        r.src.Owner,
			Organization: r.src.Organization,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find dataservice %q: %w", remoteID, err)
	}
	return ds, nil
}

// saveJob persists the job unless the run is a preview.
func (r *run) saveJob(ctx context.Context) {
	if r.dryRun {
		return
	}
	if err := r.engine.store.SaveJob(context.WithoutCancel(ctx), r.job); err != nil {
		r.logger.Warn("failed to persist job", "error", err)
	}
}
