package db

const (
	tableSource      = "harvest_source"
	tableJob         = "harvest_job"
	tableDataset     = "dataset"
	tableDataservice = "dataservice"
)

// SchemaSQL contains the database schema initialization SQL.
// Documents are stored as-is, so tables are schemaless; only the fields the
// store filters on are indexed.
const SchemaSQL = `
    -- ==========================================================================
    -- HARVEST SOURCES
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS harvest_source SCHEMALESS;
    DEFINE INDEX IF NOT EXISTS harvest_source_slug ON harvest_source FIELDS slug;
    DEFINE INDEX IF NOT EXISTS harvest_source_name ON harvest_source FIELDS name;

    -- ==========================================================================
    -- HARVEST JOBS (items are embedded)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS harvest_job SCHEMALESS;
    DEFINE INDEX IF NOT EXISTS harvest_job_source ON harvest_job FIELDS source_id, created;
    DEFINE INDEX IF NOT EXISTS harvest_job_created ON harvest_job FIELDS created;

    -- ==========================================================================
    -- HARVESTED RECORDS
    -- ==========================================================================
    -- remote_id + source_id and remote_id + domain both identify a record
    DEFINE TABLE IF NOT EXISTS dataset SCHEMALESS;
    DEFINE INDEX IF NOT EXISTS dataset_remote_source ON dataset FIELDS harvest.remote_id, harvest.source_id;
    DEFINE INDEX IF NOT EXISTS dataset_remote_domain ON dataset FIELDS harvest.remote_id, harvest.domain;
    DEFINE INDEX IF NOT EXISTS dataset_last_update ON dataset FIELDS harvest.source_id, harvest.last_update;

    DEFINE TABLE IF NOT EXISTS dataservice SCHEMALESS;
    DEFINE INDEX IF NOT EXISTS dataservice_remote_source ON dataservice FIELDS harvest.remote_id, harvest.source_id;
    DEFINE INDEX IF NOT EXISTS dataservice_remote_domain ON dataservice FIELDS harvest.remote_id, harvest.domain;
    DEFINE INDEX IF NOT EXISTS dataservice_last_update ON dataservice FIELDS harvest.source_id, harvest.last_update;
`
