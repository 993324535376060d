package models

import (
	"net/url"
	"time"

	"github.com/raphaelgruber/catalog-harvester/internal/validate"
)

// ArchivedNotOnRemote is the archival reason set by autoarchive.
const ArchivedNotOnRemote = "not-on-remote"

// HarvestMetadata is attached to every record created through harvesting.
// CreatedAt and ModifiedAt are the dates declared by the remote catalog,
// LastUpdate is when the harvester last touched the record.
type HarvestMetadata struct {
	Backend    string     `json:"backend" bson:"backend"`
	SourceID   string     `json:"source_id" bson:"source_id"`
	Domain     string     `json:"domain" bson:"domain"`
	RemoteID   string     `json:"remote_id" bson:"remote_id"`
	RemoteURL  string     `json:"remote_url,omitempty" bson:"remote_url,omitempty"`
	URI        string     `json:"uri,omitempty" bson:"uri,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty" bson:"created_at,omitempty"`
	ModifiedAt *time.Time `json:"modified_at,omitempty" bson:"modified_at,omitempty"`
	LastUpdate time.Time  `json:"last_update" bson:"last_update"`
	ArchivedAt *time.Time `json:"archived_at,omitempty" bson:"archived_at,omitempty"`
	Archived   string     `json:"archived,omitempty" bson:"archived,omitempty"`
}

// Unarchive clears the archival marker.
func (h *HarvestMetadata) Unarchive() {
	h.ArchivedAt = nil
	h.Archived = ""
}

// Checksum of a resource file.
type Checksum struct {
	Type  string `json:"type" bson:"type"`
	Value string `json:"value" bson:"value"`
}

// ResourceHarvest holds remote dates of a resource.
type ResourceHarvest struct {
	CreatedAt  *time.Time `json:"created_at,omitempty" bson:"created_at,omitempty"`
	ModifiedAt *time.Time `json:"modified_at,omitempty" bson:"modified_at,omitempty"`
	URI        string     `json:"uri,omitempty" bson:"uri,omitempty"`
}

// Resource is a downloadable distribution of a dataset.
type Resource struct {
	ID          string           `json:"id" bson:"id"`
	Title       string           `json:"title" bson:"title"`
	Description string           `json:"description,omitempty" bson:"description,omitempty"`
	URL         string           `json:"url" bson:"url"`
	Format      string           `json:"format,omitempty" bson:"format,omitempty"`
	Mime        string           `json:"mime,omitempty" bson:"mime,omitempty"`
	Filesize    int64            `json:"filesize,omitempty" bson:"filesize,omitempty"`
	Checksum    *Checksum        `json:"checksum,omitempty" bson:"checksum,omitempty"`
	Type        string           `json:"type,omitempty" bson:"type,omitempty"`
	Harvest     *ResourceHarvest `json:"harvest,omitempty" bson:"harvest,omitempty"`
}

// TemporalCoverage is the period a dataset covers.
type TemporalCoverage struct {
	Start *time.Time `json:"start,omitempty" bson:"start,omitempty"`
	End   *time.Time `json:"end,omitempty" bson:"end,omitempty"`
}

// SpatialCoverage holds a GeoJSON geometry.
type SpatialCoverage struct {
	Geom map[string]any `json:"geom,omitempty" bson:"geom,omitempty"`
}

// Dataset is the canonical dataset record.
type Dataset struct {
	ID               string            `json:"id,omitempty" bson:"_id"`
	Title            string            `json:"title" bson:"title"`
	Description      string            `json:"description,omitempty" bson:"description,omitempty"`
	Tags             []string          `json:"tags,omitempty" bson:"tags,omitempty"`
	License          string            `json:"license,omitempty" bson:"license,omitempty"`
	Frequency        string            `json:"frequency,omitempty" bson:"frequency,omitempty"`
	TemporalCoverage *TemporalCoverage `json:"temporal_coverage,omitempty" bson:"temporal_coverage,omitempty"`
	Spatial          *SpatialCoverage  `json:"spatial,omitempty" bson:"spatial,omitempty"`
	Owner            *string           `json:"owner,omitempty" bson:"owner,omitempty"`
	Organization     *string           `json:"organization,omitempty" bson:"organization,omitempty"`
	Resources        []Resource        `json:"resources,omitempty" bson:"resources,omitempty"`
	Extras           map[string]any    `json:"extras,omitempty" bson:"extras,omitempty"`
	Archived         *time.Time        `json:"archived,omitempty" bson:"archived,omitempty"`
	CreatedAt        time.Time         `json:"created_at" bson:"created_at"`
	LastModified     time.Time         `json:"last_modified" bson:"last_modified"`
	Harvest          *HarvestMetadata  `json:"harvest,omitempty" bson:"harvest,omitempty"`
}

// Validate checks the invariants a dataset must hold before it is saved.
func (d *Dataset) Validate() error {
	errs := &validate.Error{}
	if d.Title == "" {
		errs.Add("title", validate.CodeRequired, "required field is missing", nil)
	}
	for i, r := range d.Resources {
		path := validate.Index("resources", i)
		if r.URL == "" {
			errs.Add(path+".url", validate.CodeRequired, "required field is missing", nil)
		} else if !isAbsoluteURL(r.URL) {
			errs.Add(path+".url", validate.CodeInvalid, "expected an absolute URL", r.URL)
		}
	}
	return errs.OrNil()
}

// FindResource returns the index of the resource with the given URL or -1.
func (d *Dataset) FindResource(uri, fileURL string) int {
	for i, r := range d.Resources {
		if uri != "" && r.Harvest != nil && r.Harvest.URI == uri {
			return i
		}
		if fileURL != "" && r.URL == fileURL {
			return i
		}
	}
	return -1
}

// Dataservice is the canonical API/service record.
type Dataservice struct {
	ID                     string           `json:"id,omitempty" bson:"_id"`
	Title                  string           `json:"title" bson:"title"`
	Description            string           `json:"description,omitempty" bson:"description,omitempty"`
	BaseAPIURL             string           `json:"base_api_url,omitempty" bson:"base_api_url,omitempty"`
	EndpointDescriptionURL string           `json:"endpoint_description_url,omitempty" bson:"endpoint_description_url,omitempty"`
	Tags                   []string         `json:"tags,omitempty" bson:"tags,omitempty"`
	License                string           `json:"license,omitempty" bson:"license,omitempty"`
	Datasets               []string         `json:"datasets,omitempty" bson:"datasets,omitempty"`
	Owner                  *string          `json:"owner,omitempty" bson:"owner,omitempty"`
	Organization           *string          `json:"organization,omitempty" bson:"organization,omitempty"`
	Archived               *time.Time       `json:"archived,omitempty" bson:"archived,omitempty"`
	CreatedAt              time.Time        `json:"created_at" bson:"created_at"`
	LastModified           time.Time        `json:"last_modified" bson:"last_modified"`
	Harvest                *HarvestMetadata `json:"harvest,omitempty" bson:"harvest,omitempty"`
}

// Validate checks the invariants a dataservice must hold before it is saved.
func (d *Dataservice) Validate() error {
	errs := &validate.Error{}
	if d.Title == "" {
		errs.Add("title", validate.CodeRequired, "required field is missing", nil)
	}
	if d.BaseAPIURL != "" && !isAbsoluteURL(d.BaseAPIURL) {
		errs.Add("base_api_url", validate.CodeInvalid, "expected an absolute URL", d.BaseAPIURL)
	}
	return errs.OrNil()
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}
