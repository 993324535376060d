// Package boltstore is an embedded, single-file implementation of store.Store
// and blob.Store on top of BoltDB. It backs local runs and tests.
package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/boltdb/bolt"

	"github.com/raphaelgruber/catalog-harvester/internal/blob"
	"github.com/raphaelgruber/catalog-harvester/internal/models"
	"github.com/raphaelgruber/catalog-harvester/internal/store"
)

var (
	bucketSources      = []byte("sources")
	bucketJobs         = []byte("jobs")
	bucketDatasets     = []byte("datasets")
	bucketDataservices = []byte("dataservices")
	bucketBlobs        = []byte("blobs")
)

// Store wraps an open bolt database.
type Store struct {
	db   *bolt.DB
	path string
}

// Open opens the database file, creating it and its buckets when missing.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db %s: %w", path, err)
	}
	s := &Store{db: db, path: path}
	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketSources, bucketJobs, bucketDatasets, bucketDataservices, bucketBlobs} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

func put(tx *bolt.Tx, bucket []byte, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", bucket, key, err)
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

func get[T any](db *bolt.DB, bucket []byte, key string) (*T, error) {
	var out *T
	err := db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return store.ErrNotFound
		}
		out = new(T)
		return json.Unmarshal(data, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// scan decodes every value of bucket and keeps those accepted by keep.
func scan[T any](db *bolt.DB, bucket []byte, keep func(*T) bool) ([]T, error) {
	var out []T
	err := db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			var item T
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("decode %s/%s: %w", bucket, k, err)
			}
			if keep(&item) {
				out = append(out, item)
			}
			return nil
		})
	})
	return out, err
}

// --- sources ---

func (s *Store) CreateSource(_ context.Context, src *models.HarvestSource) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketSources).Get([]byte(src.ID)) != nil {
			return fmt.Errorf("source %s already exists", src.ID)
		}
		return put(tx, bucketSources, src.ID, src)
	})
}

func (s *Store) GetSource(_ context.Context, id string) (*models.HarvestSource, error) {
	return get[models.HarvestSource](s.db, bucketSources, id)
}

func (s *Store) GetSourceBySlug(_ context.Context, slug string) (*models.HarvestSource, error) {
	found, err := scan(s.db, bucketSources, func(src *models.HarvestSource) bool {
		return src.Slug == slug && !src.IsDeleted()
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, store.ErrNotFound
	}
	return &found[0], nil
}

func (s *Store) ListSources(_ context.Context, includeDeleted bool) ([]models.HarvestSource, error) {
	found, err := scan(s.db, bucketSources, func(src *models.HarvestSource) bool {
		return includeDeleted || !src.IsDeleted()
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(found, func(a, b models.HarvestSource) int { return strings.Compare(a.Name, b.Name) })
	return found, nil
}

func (s *Store) UpdateSource(_ context.Context, src *models.HarvestSource) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketSources).Get([]byte(src.ID)) == nil {
			return store.ErrNotFound
		}
		return put(tx, bucketSources, src.ID, src)
	})
}

func (s *Store) DeleteSource(ctx context.Context, id string) error {
	src, err := s.GetSource(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	src.DeletedAt = &now
	src.Active = false
	return s.UpdateSource(ctx, src)
}

// --- jobs ---

func (s *Store) SaveJob(_ context.Context, job *models.HarvestJob) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketJobs, job.ID, job)
	})
}

func (s *Store) GetJob(_ context.Context, id string) (*models.HarvestJob, error) {
	return get[models.HarvestJob](s.db, bucketJobs, id)
}

func (s *Store) ListJobs(_ context.Context, sourceID string, limit int) ([]models.HarvestJob, error) {
	jobs, err := scan(s.db, bucketJobs, func(j *models.HarvestJob) bool {
		return sourceID == "" || j.SourceID == sourceID
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(jobs, func(a, b models.HarvestJob) int { return b.Created.Compare(a.Created) })
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (s *Store) deleteJobs(match func(*models.HarvestJob) bool) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		var keys [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var job models.HarvestJob
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			if match(&job) {
				keys = append(keys, bytes.Clone(k))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		deleted = len(keys)
		return nil
	})
	return deleted, err
}

func (s *Store) DeleteJobsBefore(_ context.Context, before time.Time) (int, error) {
	return s.deleteJobs(func(j *models.HarvestJob) bool { return j.Created.Before(before) })
}

func (s *Store) DeleteJobsForSource(_ context.Context, sourceID string) (int, error) {
	return s.deleteJobs(func(j *models.HarvestJob) bool { return j.SourceID == sourceID })
}

// --- records ---

func matchRemote(h *models.HarvestMetadata, sourceID, domain, remoteID string) bool {
	if h == nil || h.RemoteID != remoteID {
		return false
	}
	return (domain != "" && h.Domain == domain) || h.SourceID == sourceID
}

func archivable(h *models.HarvestMetadata, sourceID string, seen []string, before time.Time) bool {
	return h != nil && h.SourceID == sourceID && !slices.Contains(seen, h.RemoteID) && h.LastUpdate.Before(before)
}

func first[T any](found []T, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, store.ErrNotFound
	}
	return &found[0], nil
}

func (s *Store) FindDataset(_ context.Context, sourceID, domain, remoteID string) (*models.Dataset, error) {
	return first(scan(s.db, bucketDatasets, func(d *models.Dataset) bool {
		return matchRemote(d.Harvest, sourceID, domain, remoteID)
	}))
}

func (s *Store) GetDataset(_ context.Context, id string) (*models.Dataset, error) {
	return get[models.Dataset](s.db, bucketDatasets, id)
}

func (s *Store) SaveDataset(_ context.Context, ds *models.Dataset) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketDatasets, ds.ID, ds)
	})
}

func (s *Store) ArchivableDatasets(_ context.Context, sourceID string, seen []string, before time.Time) ([]models.Dataset, error) {
	return scan(s.db, bucketDatasets, func(d *models.Dataset) bool {
		return archivable(d.Harvest, sourceID, seen, before)
	})
}

func (s *Store) CountDatasets(_ context.Context, sourceID string) (int, error) {
	found, err := scan(s.db, bucketDatasets, func(d *models.Dataset) bool {
		return d.Harvest != nil && d.Harvest.SourceID == sourceID
	})
	return len(found), err
}

func (s *Store) FindDataservice(_ context.Context, sourceID, domain, remoteID string) (*models.Dataservice, error) {
	return first(scan(s.db, bucketDataservices, func(d *models.Dataservice) bool {
		return matchRemote(d.Harvest, sourceID, domain, remoteID)
	}))
}

func (s *Store) GetDataservice(_ context.Context, id string) (*models.Dataservice, error) {
	return get[models.Dataservice](s.db, bucketDataservices, id)
}

func (s *Store) SaveDataservice(_ context.Context, ds *models.Dataservice) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketDataservices, ds.ID, ds)
	})
}

func (s *Store) ArchivableDataservices(_ context.Context, sourceID string, seen []string, before time.Time) ([]models.Dataservice, error) {
	return scan(s.db, bucketDataservices, func(d *models.Dataservice) bool {
		return archivable(d.Harvest, sourceID, seen, before)
	})
}

func (s *Store) CountDataservices(_ context.Context, sourceID string) (int, error) {
	found, err := scan(s.db, bucketDataservices, func(d *models.Dataservice) bool {
		return d.Harvest != nil && d.Harvest.SourceID == sourceID
	})
	return len(found), err
}

// --- blobs ---

func blobKey(bucket, key string) []byte {
	return []byte(bucket + "/" + key)
}

// Put stores data under bucket/key.
func (s *Store) Put(_ context.Context, bucket, key string, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlobs).Put(blobKey(bucket, key), data)
	})
}

// Get returns the data stored under bucket/key or blob.ErrNotFound.
func (s *Store) Get(_ context.Context, bucket, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketBlobs).Get(blobKey(bucket, key))
		if data == nil {
			return blob.ErrNotFound
		}
		out = bytes.Clone(data)
		return nil
	})
	return out, err
}

var (
	_ store.Store = (*Store)(nil)
	_ blob.Store  = (*Store)(nil)
)
