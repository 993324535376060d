package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/catalog-harvester/internal/models"
)

func finishedJob(status models.JobStatus, d time.Duration, items ...models.ItemStatus) *models.HarvestJob {
	job := models.NewJob("src")
	ended := job.Started.Add(d)
	job.Ended = &ended
	job.Status = status
	for _, s := range items {
		job.Items = append(job.Items, &models.HarvestItem{Status: s})
	}
	return job
}

func TestCollector(t *testing.T) {
	c := NewCollector()
	ctx := context.Background()
	ckan := &models.HarvestSource{Backend: "ckan"}
	dcat := &models.HarvestSource{Backend: "dcat"}

	c.JobStarted(ctx, ckan, nil)
	c.JobStarted(ctx, dcat, nil)
	assert.Equal(t, 2, c.Snapshot().Running)

	c.JobFinished(ctx, dcat, finishedJob(models.JobDone, 3*time.Second, models.ItemDone))
	c.JobFinished(ctx, ckan, finishedJob(models.JobDoneErrors, time.Second, models.ItemDone, models.ItemFailed, models.ItemSkipped))
	c.JobStarted(ctx, ckan, nil)
	c.JobFinished(ctx, ckan, finishedJob(models.JobDone, 3*time.Second, models.ItemDone))

	snap := c.Snapshot()
	assert.Equal(t, 0, snap.Running)
	require.Len(t, snap.Backends, 2)

	b := snap.Backends[0]
	assert.Equal(t, "ckan", b.Backend)
	require.NotNil(t, b.Jobs)
	assert.EqualValues(t, 2, b.Jobs.Count)
	assert.EqualValues(t, 4000, b.Jobs.TotalTimeMs)
	assert.InDelta(t, 2000, b.Jobs.AvgTimeMs, 0.01)
	assert.EqualValues(t, 1000, b.Jobs.MinTimeMs)
	assert.EqualValues(t, 3000, b.Jobs.MaxTimeMs)
	assert.EqualValues(t, 1, b.ByJob[models.JobDoneErrors])
	assert.EqualValues(t, 1, b.ByJob[models.JobDone])
	assert.EqualValues(t, 2, b.ByItem[models.ItemDone])
	assert.EqualValues(t, 1, b.ByItem[models.ItemFailed])

	assert.Equal(t, "dcat", snap.Backends[1].Backend)
}

func TestSnapshotEmpty(t *testing.T) {
	snap := NewCollector().Snapshot()
	assert.Empty(t, snap.Backends)
	assert.GreaterOrEqual(t, snap.UptimeSeconds, 0.0)
	assert.Nil(t, snapshotOp(nil))
}
