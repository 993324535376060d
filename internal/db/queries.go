package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/catalog-harvester/internal/models"
	"github.com/raphaelgruber/catalog-harvester/internal/store"
)

// Every SELECT exposes the record key as a plain string id.
const selectFields = "SELECT *, record::id(id) AS id"

// queryAll runs sql and returns the rows of its first statement.
func queryAll[T any](ctx context.Context, c *Client, sql string, vars map[string]any) ([]T, error) {
	results, err := surrealdb.Query[[]T](ctx, c.db, sql, vars)
	if err != nil {
		return nil, wrapQueryError(err)
	}
	if results == nil || len(*results) == 0 {
		return []T{}, nil
	}
	return (*results)[0].Result, nil
}

// queryOne returns the first row of sql, or ErrNotFound.
func queryOne[T any](ctx context.Context, c *Client, sql string, vars map[string]any) (*T, error) {
	rows, err := queryAll[T](ctx, c, sql, vars)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

func getRecord[T any](ctx context.Context, c *Client, table, id string) (*T, error) {
	sql := selectFields + ` FROM type::record($tb, $id)`
	return queryOne[T](ctx, c, sql, map[string]any{"tb": table, "id": id})
}

// upsert replaces the whole document stored under table:id. content must
// carry an empty id so the record key is the only identifier.
func upsert(ctx context.Context, c *Client, table, id string, content any) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record($tb, $id) CONTENT $content RETURN NONE
	`, map[string]any{"tb": table, "id": id, "content": content})
	return wrapQueryError(err)
}

type countRow struct {
	Count int `json:"count"`
}

func count(ctx context.Context, c *Client, table, sourceID string) (int, error) {
	sql := fmt.Sprintf(`SELECT count() AS count FROM %s WHERE harvest.source_id = $source GROUP ALL`, table)
	rows, err := queryAll[countRow](ctx, c, sql, map[string]any{"source": sourceID})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Count, nil
}

// --- sources ---

func (c *Client) CreateSource(ctx context.Context, src *models.HarvestSource) error {
	content := *src
	content.ID = ""
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record($tb, $id) CONTENT $content RETURN NONE
	`, map[string]any{"tb": tableSource, "id": src.ID, "content": content})
	if err != nil {
		return fmt.Errorf("create source %s: %w", src.ID, wrapQueryError(err))
	}
	return nil
}

func (c *Client) GetSource(ctx context.Context, id string) (*models.HarvestSource, error) {
	src, err := getRecord[models.HarvestSource](ctx, c, tableSource, id)
	if err != nil {
		return nil, fmt.Errorf("get source %s: %w", id, err)
	}
	return src, nil
}

func (c *Client) GetSourceBySlug(ctx context.Context, slug string) (*models.HarvestSource, error) {
	src, err := queryOne[models.HarvestSource](ctx, c,
		selectFields+` FROM harvest_source WHERE slug = $slug AND !deleted_at LIMIT 1`,
		map[string]any{"slug": slug})
	if err != nil {
		return nil, fmt.Errorf("get source by slug %s: %w", slug, err)
	}
	return src, nil
}

func (c *Client) ListSources(ctx context.Context, includeDeleted bool) ([]models.HarvestSource, error) {
	where := "WHERE !deleted_at"
	if includeDeleted {
		where = ""
	}
	sql := fmt.Sprintf(`%s FROM harvest_source %s ORDER BY name`, selectFields, where)
	sources, err := queryAll[models.HarvestSource](ctx, c, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

func (c *Client) UpdateSource(ctx context.Context, src *models.HarvestSource) error {
	content := *src
	content.ID = ""
	// UPDATE on a missing record returns nothing.
	rows, err := queryAll[models.HarvestSource](ctx, c, `
		UPDATE type::record($tb, $id) CONTENT $content RETURN AFTER
	`, map[string]any{"tb": tableSource, "id": src.ID, "content": content})
	if err != nil {
		return fmt.Errorf("update source %s: %w", src.ID, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("update source %s: %w", src.ID, ErrNotFound)
	}
	return nil
}

func (c *Client) DeleteSource(ctx context.Context, id string) error {
	rows, err := queryAll[map[string]any](ctx, c, `
		UPDATE type::record($tb, $id) SET deleted_at = time::now(), active = false RETURN AFTER
	`, map[string]any{"tb": tableSource, "id": id})
	if err != nil {
		return fmt.Errorf("delete source %s: %w", id, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("delete source %s: %w", id, ErrNotFound)
	}
	c.logger.Info("soft-deleted source", "id", id)
	return nil
}

// --- jobs ---

func (c *Client) SaveJob(ctx context.Context, job *models.HarvestJob) error {
	content := *job
	content.ID = ""
	if err := upsert(ctx, c, tableJob, job.ID, content); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (c *Client) GetJob(ctx context.Context, id string) (*models.HarvestJob, error) {
	job, err := getRecord[models.HarvestJob](ctx, c, tableJob, id)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

func (c *Client) ListJobs(ctx context.Context, sourceID string, limit int) ([]models.HarvestJob, error) {
	where := ""
	vars := map[string]any{}
	if sourceID != "" {
		where = "WHERE source_id = $source"
		vars["source"] = sourceID
	}
	limitClause := ""
	if limit > 0 {
		limitClause = "LIMIT $limit"
		vars["limit"] = limit
	}
	sql := fmt.Sprintf(`%s FROM harvest_job %s ORDER BY created DESC %s`, selectFields, where, limitClause)
	jobs, err := queryAll[models.HarvestJob](ctx, c, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

func (c *Client) deleteJobs(ctx context.Context, where string, vars map[string]any) (int, error) {
	sql := fmt.Sprintf(`DELETE harvest_job WHERE %s RETURN BEFORE`, where)
	rows, err := queryAll[map[string]any](ctx, c, sql, vars)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (c *Client) DeleteJobsBefore(ctx context.Context, before time.Time) (int, error) {
	n, err := c.deleteJobs(ctx, "created < $before", map[string]any{"before": before.UTC()})
	if err != nil {
		return 0, fmt.Errorf("delete jobs before %s: %w", before.Format(time.RFC3339), err)
	}
	c.logger.Info("purged jobs", "before", before, "count", n)
	return n, nil
}

func (c *Client) DeleteJobsForSource(ctx context.Context, sourceID string) (int, error) {
	n, err := c.deleteJobs(ctx, "source_id = $source", map[string]any{"source": sourceID})
	if err != nil {
		return 0, fmt.Errorf("delete jobs of source %s: %w", sourceID, err)
	}
	return n, nil
}

// --- records ---

// findSQL matches remote_id together with the source id, or the domain when
// one is given.
const findSQL = selectFields + ` FROM %s
	WHERE harvest.remote_id = $remote
	AND (harvest.source_id = $source OR ($domain != "" AND harvest.domain = $domain))
	LIMIT 1`

const archivableSQL = selectFields + ` FROM %s
	WHERE harvest.source_id = $source
	AND harvest.remote_id NOTINSIDE $seen
	AND harvest.last_update < $before`

func findVars(sourceID, domain, remoteID string) map[string]any {
	return map[string]any{"source": sourceID, "domain": domain, "remote": remoteID}
}

func archivableVars(sourceID string, seen []string, before time.Time) map[string]any {
	if seen == nil {
		seen = []string{}
	}
	return map[string]any{"source": sourceID, "seen": seen, "before": before.UTC()}
}

func (c *Client) FindDataset(ctx context.Context, sourceID, domain, remoteID string) (*models.Dataset, error) {
	ds, err := queryOne[models.Dataset](ctx, c, fmt.Sprintf(findSQL, tableDataset), findVars(sourceID, domain, remoteID))
	if err != nil {
		return nil, fmt.Errorf("find dataset %s: %w", remoteID, err)
	}
	return ds, nil
}

func (c *Client) GetDataset(ctx context.Context, id string) (*models.Dataset, error) {
	ds, err := getRecord[models.Dataset](ctx, c, tableDataset, id)
	if err != nil {
		return nil, fmt.Errorf("get dataset %s: %w", id, err)
	}
	return ds, nil
}

func (c *Client) SaveDataset(ctx context.Context, ds *models.Dataset) error {
	content := *ds
	content.ID = ""
	if err := upsert(ctx, c, tableDataset, ds.ID, content); err != nil {
		return fmt.Errorf("save dataset %s: %w", ds.ID, err)
	}
	return nil
}

func (c *Client) ArchivableDatasets(ctx context.Context, sourceID string, seen []string, before time.Time) ([]models.Dataset, error) {
	found, err := queryAll[models.Dataset](ctx, c, fmt.Sprintf(archivableSQL, tableDataset), archivableVars(sourceID, seen, before))
	if err != nil {
		return nil, fmt.Errorf("archivable datasets: %w", err)
	}
	return found, nil
}

func (c *Client) CountDatasets(ctx context.Context, sourceID string) (int, error) {
	return count(ctx, c, tableDataset, sourceID)
}

func (c *Client) FindDataservice(ctx context.Context, sourceID, domain, remoteID string) (*models.Dataservice, error) {
	ds, err := queryOne[models.Dataservice](ctx, c, fmt.Sprintf(findSQL, tableDataservice), findVars(sourceID, domain, remoteID))
	if err != nil {
		return nil, fmt.Errorf("find dataservice %s: %w", remoteID, err)
	}
	return ds, nil
}

func (c *Client) GetDataservice(ctx context.Context, id string) (*models.Dataservice, error) {
	ds, err := getRecord[models.Dataservice](ctx, c, tableDataservice, id)
	if err != nil {
		return nil, fmt.Errorf("get dataservice %s: %w", id, err)
	}
	return ds, nil
}

func (c *Client) SaveDataservice(ctx context.Context, ds *models.Dataservice) error {
	content := *ds
	content.ID = ""
	if err := upsert(ctx, c, tableDataservice, ds.ID, content); err != nil {
		return fmt.Errorf("save dataservice %s: %w", ds.ID, err)
	}
	return nil
}

func (c *Client) ArchivableDataservices(ctx context.Context, sourceID string, seen []string, before time.Time) ([]models.Dataservice, error) {
	found, err := queryAll[models.Dataservice](ctx, c, fmt.Sprintf(archivableSQL, tableDataservice), archivableVars(sourceID, seen, before))
	if err != nil {
		return nil, fmt.Errorf("archivable dataservices: %w", err)
	}
	return found, nil
}

func (c *Client) CountDataservices(ctx context.Context, sourceID string) (int, error) {
	return count(ctx, c, tableDataservice, sourceID)
}

var _ store.Store = (*Client)(nil)
