// Package mongostore implements store.Store on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/raphaelgruber/catalog-harvester/internal/models"
	"github.com/raphaelgruber/catalog-harvester/internal/store"
)

// Config holds the MongoDB connection settings.
type Config struct {
	URI      string
	Database string
}

// Store is a MongoDB-backed store.
type Store struct {
	client       *mongo.Client
	sources      *mongo.Collection
	jobs         *mongo.Collection
	datasets     *mongo.Collection
	dataservices *mongo.Collection
}

// Open connects, pings and ensures the indexes exist.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &Store{
		client:       client,
		sources:      db.Collection("harvest_source"),
		jobs:         db.Collection("harvest_job"),
		datasets:     db.Collection("dataset"),
		dataservices: db.Collection("dataservice"),
	}
	if err := s.createIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.sources: {
			{Keys: bson.D{{Key: "slug", Value: 1}}},
		},
		s.jobs: {
			{Keys: bson.D{{Key: "source_id", Value: 1}, {Key: "created", Value: -1}}},
			{Keys: bson.D{{Key: "created", Value: 1}}},
		},
	}
	for _, records := range []*mongo.Collection{s.datasets, s.dataservices} {
		indexes[records] = []mongo.IndexModel{
			{Keys: bson.D{{Key: "harvest.remote_id", Value: 1}, {Key: "harvest.source_id", Value: 1}}},
			{Keys: bson.D{{Key: "harvest.remote_id", Value: 1}, {Key: "harvest.domain", Value: 1}}},
			{Keys: bson.D{{Key: "harvest.source_id", Value: 1}, {Key: "harvest.last_update", Value: 1}}},
		}
	}
	for coll, idx := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Drop removes every collection. Tests only.
func (s *Store) Drop(ctx context.Context) error {
	for _, coll := range []*mongo.Collection{s.sources, s.jobs, s.datasets, s.dataservices} {
		if err := coll.Drop(ctx); err != nil {
			return fmt.Errorf("drop %s: %w", coll.Name(), err)
		}
	}
	return nil
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, opts ...*options.FindOneOptions) (*T, error) {
	out := new(T)
	err := coll.FindOne(ctx, filter, opts...).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []T{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func replace(ctx context.Context, coll *mongo.Collection, id string, doc any) error {
	_, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	return err
}

// --- sources ---

func (s *Store) CreateSource(ctx context.Context, src *models.HarvestSource) error {
	if _, err := s.sources.InsertOne(ctx, src); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("source %s already exists", src.ID)
		}
		return fmt.Errorf("create source %s: %w", src.ID, err)
	}
	return nil
}

func (s *Store) GetSource(ctx context.Context, id string) (*models.HarvestSource, error) {
	src, err := findOne[models.HarvestSource](ctx, s.sources, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("get source %s: %w", id, err)
	}
	return src, nil
}

func (s *Store) GetSourceBySlug(ctx context.Context, slug string) (*models.HarvestSource, error) {
	src, err := findOne[models.HarvestSource](ctx, s.sources, bson.M{"slug": slug, "deleted_at": nil})
	if err != nil {
		return nil, fmt.Errorf("get source by slug %s: %w", slug, err)
	}
	return src, nil
}

func (s *Store) ListSources(ctx context.Context, includeDeleted bool) ([]models.HarvestSource, error) {
	filter := bson.M{}
	if !includeDeleted {
		filter["deleted_at"] = nil
	}
	sources, err := findAll[models.HarvestSource](ctx, s.sources, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

func (s *Store) UpdateSource(ctx context.Context, src *models.HarvestSource) error {
	res, err := s.sources.ReplaceOne(ctx, bson.M{"_id": src.ID}, src)
	if err != nil {
		return fmt.Errorf("update source %s: %w", src.ID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("update source %s: %w", src.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteSource(ctx context.Context, id string) error {
	res, err := s.sources.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"deleted_at": time.Now().UTC(),
		"active":     false,
	}})
	if err != nil {
		return fmt.Errorf("delete source %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("delete source %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// --- jobs ---

func (s *Store) SaveJob(ctx context.Context, job *models.HarvestJob) error {
	if err := replace(ctx, s.jobs, job.ID, job); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*models.HarvestJob, error) {
	job, err := findOne[models.HarvestJob](ctx, s.jobs, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

func (s *Store) ListJobs(ctx context.Context, sourceID string, limit int) ([]models.HarvestJob, error) {
	filter := bson.M{}
	if sourceID != "" {
		filter["source_id"] = sourceID
	}
	opts := options.Find().SetSort(bson.D{{Key: "created", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	jobs, err := findAll[models.HarvestJob](ctx, s.jobs, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

func (s *Store) DeleteJobsBefore(ctx context.Context, before time.Time) (int, error) {
	res, err := s.jobs.DeleteMany(ctx, bson.M{"created": bson.M{"$lt": before.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("delete jobs before %s: %w", before.Format(time.RFC3339), err)
	}
	return int(res.DeletedCount), nil
}

func (s *Store) DeleteJobsForSource(ctx context.Context, sourceID string) (int, error) {
	res, err := s.jobs.DeleteMany(ctx, bson.M{"source_id": sourceID})
	if err != nil {
		return 0, fmt.Errorf("delete jobs of source %s: %w", sourceID, err)
	}
	return int(res.DeletedCount), nil
}

// --- records ---

func findFilter(sourceID, domain, remoteID string) bson.M {
	or := bson.A{bson.M{"harvest.source_id": sourceID}}
	if domain != "" {
		or = append(or, bson.M{"harvest.domain": domain})
	}
	return bson.M{"harvest.remote_id": remoteID, "$or": or}
}

func archivableFilter(sourceID string, seen []string, before time.Time) bson.M {
	if seen == nil {
		seen = []string{}
	}
	return bson.M{
		"harvest.source_id":   sourceID,
		"harvest.remote_id":   bson.M{"$nin": seen},
		"harvest.last_update": bson.M{"$lt": before.UTC()},
	}
}

func countFilter(sourceID string) bson.M {
	return bson.M{"harvest.source_id": sourceID}
}

func (s *Store) FindDataset(ctx context.Context, sourceID, domain, remoteID string) (*models.Dataset, error) {
	ds, err := findOne[models.Dataset](ctx, s.datasets, findFilter(sourceID, domain, remoteID))
	if err != nil {
		return nil, fmt.Errorf("find dataset %s: %w", remoteID, err)
	}
	return ds, nil
}

func (s *Store) GetDataset(ctx context.Context, id string) (*models.Dataset, error) {
	ds, err := findOne[models.Dataset](ctx, s.datasets, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("get dataset %s: %w", id, err)
	}
	return ds, nil
}

func (s *Store) SaveDataset(ctx context.Context, ds *models.Dataset) error {
	if err := replace(ctx, s.datasets, ds.ID, ds); err != nil {
		return fmt.Errorf("save dataset %s: %w", ds.ID, err)
	}
	return nil
}

func (s *Store) ArchivableDatasets(ctx context.Context, sourceID string, seen []string, before time.Time) ([]models.Dataset, error) {
	found, err := findAll[models.Dataset](ctx, s.datasets, archivableFilter(sourceID, seen, before))
	if err != nil {
		return nil, fmt.Errorf("archivable datasets: %w", err)
	}
	return found, nil
}

func (s *Store) CountDatasets(ctx context.Context, sourceID string) (int, error) {
	n, err := s.datasets.CountDocuments(ctx, countFilter(sourceID))
	if err != nil {
		return 0, fmt.Errorf("count datasets: %w", err)
	}
	return int(n), nil
}

func (s *Store) FindDataservice(ctx context.Context, sourceID, domain, remoteID string) (*models.Dataservice, error) {
	ds, err := findOne[models.Dataservice](ctx, s.dataservices, findFilter(sourceID, domain, remoteID))
	if err != nil {
		return nil, fmt.Errorf("find dataservice %s: %w", remoteID, err)
	}
	return ds, nil
}

func (s *Store) GetDataservice(ctx context.Context, id string) (*models.Dataservice, error) {
	ds, err := findOne[models.Dataservice](ctx, s.dataservices, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("get dataservice %s: %w", id, err)
	}
	return ds, nil
}

func (s *Store) SaveDataservice(ctx context.Context, ds *models.Dataservice) error {
	if err := replace(ctx, s.dataservices, ds.ID, ds); err != nil {
		return fmt.Errorf("save dataservice %s: %w", ds.ID, err)
	}
	return nil
}

func (s *Store) ArchivableDataservices(ctx context.Context, sourceID string, seen []string, before time.Time) ([]models.Dataservice, error) {
	found, err := findAll[models.Dataservice](ctx, s.dataservices, archivableFilter(sourceID, seen, before))
	if err != nil {
		return nil, fmt.Errorf("archivable dataservices: %w", err)
	}
	return found, nil
}

func (s *Store) CountDataservices(ctx context.Context, sourceID string) (int, error) {
	n, err := s.dataservices.CountDocuments(ctx, countFilter(sourceID))
	if err != nil {
		return 0, fmt.Errorf("count dataservices: %w", err)
	}
	return int(n), nil
}

var _ store.Store = (*Store)(nil)
