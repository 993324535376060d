package harvest

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/catalog-harvester/internal/models"
)

// autoarchive marks the records of the source that were not seen during the
// run and were last updated before the grace period. Already archived
// records are left untouched but still reported as archived items.
func (r *run) autoarchive(ctx context.Context) error {
	seen := make([]string, 0, len(r.job.Items))
	for _, item := range r.job.Items {
		if item.Status != models.ItemArchived {
			seen = append(seen, item.RemoteID)
		}
	}
	now := r.engine.opts.Now()
	before := now.AddDate(0, 0, -r.engine.opts.AutoarchiveGraceDays)

	datasets, err := r.engine.store.ArchivableDatasets(ctx, r.src.ID, seen, before)
	if err != nil {
		return fmt.Errorf("autoarchive datasets: %w", err)
	}
	for i := range datasets {
		ds := &datasets[i]
		item := r.archivedItem(models.KindDataset, ds.Harvest.RemoteID)
		item.DatasetID = &ds.ID
		if ds.Harvest.ArchivedAt == nil {
			ds.Harvest.ArchivedAt = &now
			ds.Harvest.Archived = models.ArchivedNotOnRemote
			ds.Archived = &now
			if err := r.engine.store.SaveDataset(ctx, ds); err != nil {
				return fmt.Errorf("archive dataset %s: %w", ds.ID, err)
			}
			r.logger.Info("archived dataset", "dataset_id", ds.ID, "remote_id", ds.Harvest.RemoteID)
		}
		r.job.Items = append(r.job.Items, item)
	}

	services, err := r.engine.store.ArchivableDataservices(ctx, r.src.ID, seen, before)
	if err != nil {
		return fmt.Errorf("autoarchive dataservices: %w", err)
	}
	for i := range services {
		ds := &services[i]
		item := r.archivedItem(models.KindDataservice, ds.Harvest.RemoteID)
		item.DataserviceID = &ds.ID
		if ds.Harvest.ArchivedAt == nil {
			ds.Harvest.ArchivedAt = &now
			ds.Harvest.Archived = models.ArchivedNotOnRemote
			ds.Archived = &now
			if err := r.engine.store.SaveDataservice(ctx, ds); err != nil {
				return fmt.Errorf("archive dataservice %s: %w", ds.ID, err)
			}
			r.logger.Info("archived dataservice", "dataservice_id", ds.ID, "remote_id", ds.Harvest.RemoteID)
		}
		r.job.Items = append(r.job.Items, item)
	}

	if len(datasets)+len(services) > 0 {
		r.saveJob(ctx)
	}
	return nil
}

func (r *run) archivedItem(kind models.ItemKind, remoteID string) *models.HarvestItem {
	now := r.engine.opts.Now()
	return &models.HarvestItem{
		RemoteID: remoteID,
		Kind:     kind,
		Status:   models.ItemArchived,
		Created:  now,
		Started:  &now,
		Ended:    &now,
	}
}
