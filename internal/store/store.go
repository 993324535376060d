// Package store declares the persistence interfaces the harvester depends on.
// Implementations live in internal/db (SurrealDB), internal/mongostore and
// internal/boltstore.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/raphaelgruber/catalog-harvester/internal/models"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("not found")

// Sources persists harvest source definitions.
type Sources interface {
	CreateSource(ctx context.Context, src *models.HarvestSource) error
	GetSource(ctx context.Context, id string) (*models.HarvestSource, error)
	GetSourceBySlug(ctx context.Context, slug string) (*models.HarvestSource, error)
	ListSources(ctx context.Context, includeDeleted bool) ([]models.HarvestSource, error)
	UpdateSource(ctx context.Context, src *models.HarvestSource) error
	// DeleteSource soft-deletes a source.
	DeleteSource(ctx context.Context, id string) error
}

// Jobs persists harvest jobs. A job is always saved as a whole.
type Jobs interface {
	SaveJob(ctx context.Context, job *models.HarvestJob) error
	GetJob(ctx context.Context, id string) (*models.HarvestJob, error)
	// ListJobs returns the jobs of a source, newest first. limit <= 0 means no limit.
	ListJobs(ctx context.Context, sourceID string, limit int) ([]models.HarvestJob, error)
	DeleteJobsBefore(ctx context.Context, before time.Time) (int, error)
	DeleteJobsForSource(ctx context.Context, sourceID string) (int, error)
}

// Records persists the canonical records produced by harvesting.
//
// Find* match harvest.remote_id together with either harvest.domain or
// harvest.source_id. Archivable* return the records of a source whose remote
// id is not in seen and whose harvest.last_update is before the cutoff.
type Records interface {
	FindDataset(ctx context.Context, sourceID, domain, remoteID string) (*models.Dataset, error)
	GetDataset(ctx context.Context, id string) (*models.Dataset, error)
	SaveDataset(ctx context.Context, ds *models.Dataset) error
	ArchivableDatasets(ctx context.Context, sourceID string, seen []string, before time.Time) ([]models.Dataset, error)
	CountDatasets(ctx context.Context, sourceID string) (int, error)

	FindDataservice(ctx context.Context, sourceID, domain, remoteID string) (*models.Dataservice, error)
	GetDataservice(ctx context.Context, id string) (*models.Dataservice, error)
	SaveDataservice(ctx context.Context, ds *models.Dataservice) error
	ArchivableDataservices(ctx context.Context, sourceID string, seen []string, before time.Time) ([]models.Dataservice, error)
	CountDataservices(ctx context.Context, sourceID string) (int, error)
}

// Store is the full persistence surface.
type Store interface {
	Sources
	Jobs
	Records
	Close(ctx context.Context) error
}
