// Package storetest holds the behaviour every store.Store implementation
// must share. Backends call Run from their own tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/icrowley/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/catalog-harvester/internal/models"
	"github.com/raphaelgruber/catalog-harvester/internal/store"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) store.Store

// Run exercises s against the store contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("sources", func(t *testing.T) { testSources(t, newStore(t)) })
	t.Run("soft delete", func(t *testing.T) { testSoftDelete(t, newStore(t)) })
	t.Run("jobs", func(t *testing.T) { testJobs(t, newStore(t)) })
	t.Run("purge jobs", func(t *testing.T) { testPurgeJobs(t, newStore(t)) })
	t.Run("find records", func(t *testing.T) { testFindRecords(t, newStore(t)) })
	t.Run("archivable records", func(t *testing.T) { testArchivable(t, newStore(t)) })
	t.Run("large catalog", func(t *testing.T) { testLargeCatalog(t, newStore(t)) })
}

func source(name, slug string) *models.HarvestSource {
	return &models.HarvestSource{
		ID:        uuid.New().String(),
		Name:      name,
		Slug:      slug,
		URL:       "https://" + slug + ".example.org/catalog",
		Backend:   "dcat",
		Active:    true,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		Config: models.SourceConfig{
			Features:     map[string]bool{"spatial": true},
			ExtraConfigs: map[string]any{"remote_url_prefix": "https://portal.example.org/"},
		},
		Validation: models.SourceValidation{State: models.ValidationAccepted},
	}
}

func testSources(t *testing.T, s store.Store) {
	ctx := context.Background()
	b := source("Bravo", "bravo")
	a := source("Alpha", "alpha")
	require.NoError(t, s.CreateSource(ctx, b))
	require.NoError(t, s.CreateSource(ctx, a))
	assert.Error(t, s.CreateSource(ctx, a), "duplicate id")

	got, err := s.GetSource(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alpha", got.Name)
	assert.Equal(t, "https://alpha.example.org/catalog", got.URL)
	assert.True(t, got.Config.Features["spatial"])
	assert.Equal(t, "https://portal.example.org/", got.Config.ExtraConfigs["remote_url_prefix"])
	assert.Equal(t, models.ValidationAccepted, got.Validation.State)

	bySlug, err := s.GetSourceBySlug(ctx, "bravo")
	require.NoError(t, err)
	assert.Equal(t, b.ID, bySlug.ID)

	list, err := s.ListSources(ctx, false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Alpha", list[0].Name)
	assert.Equal(t, "Bravo", list[1].Name)

	a.Description = "updated"
	require.NoError(t, s.UpdateSource(ctx, a))
	got, err = s.GetSource(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Description)

	_, err = s.GetSource(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetSourceBySlug(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.UpdateSource(ctx, source("Ghost", "ghost")), store.ErrNotFound)
}

func testSoftDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	src := source("Charlie", "charlie")
	require.NoError(t, s.CreateSource(ctx, src))
	require.NoError(t, s.DeleteSource(ctx, src.ID))

	got, err := s.GetSource(ctx, src.ID)
	require.NoError(t, err, "soft-deleted sources stay addressable by id")
	assert.NotNil(t, got.DeletedAt)
	assert.False(t, got.Active)

	_, err = s.GetSourceBySlug(ctx, "charlie")
	assert.ErrorIs(t, err, store.ErrNotFound)

	list, err := s.ListSources(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, list)
	list, err = s.ListSources(ctx, true)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, s.DeleteSource(ctx, "missing"), store.ErrNotFound)
}

func job(sourceID string, created time.Time) *models.HarvestJob {
	j := models.NewJob(sourceID)
	j.Created = created.UTC().Truncate(time.Millisecond)
	return j
}

func testJobs(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now()

	j := job("src-1", now)
	j.Status = models.JobDoneErrors
	j.Data[models.JobDataFormat] = "json-ld"
	j.Data[models.JobDataGraphs] = []string{"<a> <b> <c> ."}
	dsID := "ds-1"
	j.Items = append(j.Items, &models.HarvestItem{
		Kind:      models.KindDataset,
		RemoteID:  "remote-1",
		Status:    models.ItemFailed,
		Kwargs:    map[string]any{"page": 2, "node": "_:b3"},
		DatasetID: &dsID,
		Logs:      []models.HarvestLog{{Level: "info", Message: "fetched"}},
	})
	j.Items[0].AddError("boom", "details")
	j.AddError("run failed", "")
	require.NoError(t, s.SaveJob(ctx, j))

	got, err := s.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobDoneErrors, got.Status)
	assert.Equal(t, "src-1", got.SourceID)
	assert.WithinDuration(t, j.Created, got.Created, time.Millisecond)
	assert.Equal(t, "json-ld", got.Data[models.JobDataFormat])
	require.Len(t, got.Items, 1)
	item := got.Items[0]
	assert.Equal(t, models.KindDataset, item.Kind)
	assert.Equal(t, "remote-1", item.RemoteID)
	assert.EqualValues(t, 2, item.Kwargs["page"])
	assert.Equal(t, "_:b3", item.Kwargs["node"])
	require.NotNil(t, item.DatasetID)
	assert.Equal(t, dsID, *item.DatasetID)
	assert.Equal(t, "boom", item.Errors[0].Message)
	assert.Equal(t, "fetched", item.Logs[0].Message)
	assert.Equal(t, "run failed", got.Errors[0].Message)

	// Saving again replaces the whole document.
	j.Status = models.JobDone
	j.Items = nil
	require.NoError(t, s.SaveJob(ctx, j))
	got, err = s.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobDone, got.Status)
	assert.Empty(t, got.Items)

	older := job("src-1", now.Add(-time.Hour))
	other := job("src-2", now.Add(time.Hour))
	require.NoError(t, s.SaveJob(ctx, older))
	require.NoError(t, s.SaveJob(ctx, other))

	jobs, err := s.ListJobs(ctx, "src-1", 0)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, j.ID, jobs[0].ID, "newest first")
	assert.Equal(t, older.ID, jobs[1].ID)

	jobs, err = s.ListJobs(ctx, "src-1", 1)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	jobs, err = s.ListJobs(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)

	_, err = s.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testPurgeJobs(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now()
	old := job("src-1", now.AddDate(0, 0, -40))
	recent := job("src-1", now.AddDate(0, 0, -1))
	otherSource := job("src-2", now)
	for _, j := range []*models.HarvestJob{old, recent, otherSource} {
		require.NoError(t, s.SaveJob(ctx, j))
	}

	n, err := s.DeleteJobsBefore(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = s.GetJob(ctx, old.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	n, err = s.DeleteJobsForSource(ctx, "src-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	jobs, err := s.ListJobs(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, otherSource.ID, jobs[0].ID)
}

func dataset(sourceID, domain, remoteID string, lastUpdate time.Time) *models.Dataset {
	return &models.Dataset{
		ID:    uuid.New().String(),
		Title: "Dataset " + remoteID,
		Harvest: &models.HarvestMetadata{
			Backend:    "dcat",
			SourceID:   sourceID,
			Domain:     domain,
			RemoteID:   remoteID,
			LastUpdate: lastUpdate.UTC().Truncate(time.Millisecond),
		},
		Resources: []models.Resource{{ID: uuid.New().String(), URL: "https://files.example.org/" + remoteID + ".csv"}},
	}
}

func dataservice(sourceID, domain, remoteID string, lastUpdate time.Time) *models.Dataservice {
	return &models.Dataservice{
		ID:         uuid.New().String(),
		Title:      "Service " + remoteID,
		BaseAPIURL: "https://api.example.org/" + remoteID,
		Harvest: &models.HarvestMetadata{
			Backend:    "dcat",
			SourceID:   sourceID,
			Domain:     domain,
			RemoteID:   remoteID,
			LastUpdate: lastUpdate.UTC().Truncate(time.Millisecond),
		},
	}
}

func testFindRecords(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now()

	ds := dataset("src-1", "data.example.org", "r1", now)
	require.NoError(t, s.SaveDataset(ctx, ds))
	require.NoError(t, s.SaveDataset(ctx, dataset("src-3", "other.example.org", "r1", now)))

	got, err := s.FindDataset(ctx, "src-1", "", "r1")
	require.NoError(t, err)
	assert.Equal(t, ds.ID, got.ID)
	assert.Equal(t, "Dataset r1", got.Title)
	require.Len(t, got.Resources, 1)

	// A new source pointing at the same domain adopts the record.
	got, err = s.FindDataset(ctx, "src-2", "data.example.org", "r1")
	require.NoError(t, err)
	assert.Equal(t, ds.ID, got.ID)

	_, err = s.FindDataset(ctx, "src-2", "elsewhere.example.org", "r1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.FindDataset(ctx, "src-1", "data.example.org", "r2")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetDataset(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	ds.Title = "Renamed"
	require.NoError(t, s.SaveDataset(ctx, ds))
	got, err = s.GetDataset(ctx, ds.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)

	n, err := s.CountDatasets(ctx, "src-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	svc := dataservice("src-1", "data.example.org", "api", now)
	svc.Datasets = []string{ds.ID}
	require.NoError(t, s.SaveDataservice(ctx, svc))
	gotSvc, err := s.FindDataservice(ctx, "src-1", "data.example.org", "api")
	require.NoError(t, err)
	assert.Equal(t, svc.ID, gotSvc.ID)
	assert.Equal(t, []string{ds.ID}, gotSvc.Datasets)
	gotSvc, err = s.GetDataservice(ctx, svc.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.org/api", gotSvc.BaseAPIURL)
	_, err = s.GetDataservice(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	n, err = s.CountDataservices(ctx, "src-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testArchivable(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now()
	cutoff := now.AddDate(0, 0, -7)

	seen := dataset("src-1", "data.example.org", "seen", now.AddDate(0, 0, -30))
	stale := dataset("src-1", "data.example.org", "stale", now.AddDate(0, 0, -30))
	fresh := dataset("src-1", "data.example.org", "fresh", now.AddDate(0, 0, -1))
	foreign := dataset("src-2", "data.example.org", "foreign", now.AddDate(0, 0, -30))
	for _, ds := range []*models.Dataset{seen, stale, fresh, foreign} {
		require.NoError(t, s.SaveDataset(ctx, ds))
	}

	found, err := s.ArchivableDatasets(ctx, "src-1", []string{"seen"}, cutoff)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, stale.ID, found[0].ID)

	found, err = s.ArchivableDatasets(ctx, "src-1", nil, cutoff)
	require.NoError(t, err)
	assert.Len(t, found, 2)

	oldSvc := dataservice("src-1", "data.example.org", "old-api", now.AddDate(0, 0, -30))
	require.NoError(t, s.SaveDataservice(ctx, oldSvc))
	require.NoError(t, s.SaveDataservice(ctx, dataservice("src-1", "data.example.org", "new-api", now)))
	services, err := s.ArchivableDataservices(ctx, "src-1", []string{"something-else"}, cutoff)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, oldSvc.ID, services[0].ID)
}

// testLargeCatalog fills one source with generated records, as a real portal
// harvest would, and checks counts and the archivable selection at volume.
func testLargeCatalog(t *testing.T, s store.Store) {
	ctx := context.Background()
	old := time.Now().AddDate(0, 0, -30)
	domain := fake.DomainName()

	const total = 60
	var seen []string
	for i := range total {
		ds := dataset("src-big", domain, uuid.New().String(), old)
		ds.Title = fake.Sentence()
		ds.Description = fake.Paragraph()
		ds.Tags = []string{fake.Word(), fake.Word()}
		require.NoError(t, s.SaveDataset(ctx, ds))
		if i%3 != 0 {
			seen = append(seen, ds.Harvest.RemoteID)
		}
	}
	require.NoError(t, s.SaveDataset(ctx, dataset("src-other", domain, "elsewhere", old)))

	n, err := s.CountDatasets(ctx, "src-big")
	require.NoError(t, err)
	assert.Equal(t, total, n)

	found, err := s.ArchivableDatasets(ctx, "src-big", seen, time.Now())
	require.NoError(t, err)
	assert.Len(t, found, total-len(seen))
	for _, ds := range found {
		assert.NotContains(t, seen, ds.Harvest.RemoteID)
	}
}
