// Package ckan harvests CKAN and DKAN catalogs through the CKAN action API.
package ckan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/raphaelgruber/catalog-harvester/internal/backend"
	"github.com/raphaelgruber/catalog-harvester/internal/models"
	"github.com/raphaelgruber/catalog-harvester/internal/validate"
)

const defaultPageSize = 100

var filters = []backend.FilterDef{
	{Key: "organization", Label: "Organization", Description: "Restrict to datasets of this organization name", Type: backend.TypeString},
	{Key: "tags", Label: "Tag", Description: "Restrict to datasets carrying this tag", Type: backend.TypeString},
}

var features = []backend.FeatureDef{
	{Key: "spatial", Label: "Spatial coverage", Description: "Import the GeoJSON spatial extra", Default: false},
}

var extraConfigs = []backend.ExtraConfigDef{
	{Key: "page_size", Label: "Page size", Description: "Rows per package_search page", Type: backend.TypeInteger, Default: defaultPageSize},
}

// Info describes the CKAN backend.
var Info = backend.Info{
	Name:         "ckan",
	DisplayName:  "CKAN",
	VerifySSL:    true,
	Filters:      filters,
	Features:     features,
	ExtraConfigs: extraConfigs,
}

// DKANInfo describes the DKAN flavour.
var DKANInfo = backend.Info{
	Name:         "dkan",
	DisplayName:  "DKAN",
	VerifySSL:    true,
	Filters:      filters,
	Features:     features,
	ExtraConfigs: extraConfigs,
}

// Backend harvests one CKAN-compatible catalog. DKAN differs only in the
// package_show envelope and its free-form dates, both handled here.
type Backend struct {
	*backend.Base
}

// New builds a CKAN or DKAN backend.
func New(base *backend.Base) backend.Backend {
	return &Backend{Base: base}
}

type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *apiError       `json:"error"`
}

type apiError struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

func (b *Backend) actionURL(action string, params url.Values) string {
	u := strings.TrimRight(b.Source.URL, "/") + "/api/3/action/" + action
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func (b *Backend) action(ctx context.Context, action string, params url.Values, out any) error {
	var env envelope
	if err := b.HTTP().GetJSON(ctx, b.actionURL(action, params), &env); err != nil {
		return err
	}
	if !env.Success {
		msg := "unknown error"
		if env.Error != nil {
			msg = strings.TrimSpace(env.Error.Type + " " + env.Error.Message)
		}
		return fmt.Errorf("ckan %s: %s", action, msg)
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", action, err)
	}
	return nil
}

func (b *Backend) InnerHarvest(ctx context.Context, p backend.Processor) error {
	if !b.HasFilters() {
		var names []string
		if err := b.action(ctx, "package_list", nil, &names); err != nil {
			return err
		}
		b.Logger(ctx).Info("listed packages", "count", len(names))
		for _, name := range names {
			if !p.ProcessDataset(ctx, name, nil) {
				return nil
			}
		}
		return nil
	}

	pageSize := b.ExtraInt("page_size", defaultPageSize)
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	fq := b.filterQuery()
	for start := 0; ; start += pageSize {
		var page struct {
			Count   int `json:"count"`
			Results []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"results"`
		}
		params := url.Values{
			"fq":    {fq},
			"rows":  {strconv.Itoa(pageSize)},
			"start": {strconv.Itoa(start)},
		}
		if err := b.action(ctx, "package_search", params, &page); err != nil {
			return err
		}
		b.Logger(ctx).Debug("fetched search page", "start", start, "count", page.Count, "results", len(page.Results))
		for _, r := range page.Results {
			id := r.ID
			if id == "" {
				id = r.Name
			}
			if !p.ProcessDataset(ctx, id, nil) {
				return nil
			}
		}
		if len(page.Results) == 0 || start+pageSize >= page.Count {
			return nil
		}
	}
}

// filterQuery renders the configured filters as a Solr fq expression.
func (b *Backend) filterQuery() string {
	var parts []string
	for _, key := range []string{"organization", "tags"} {
		for _, f := range b.Filters(key) {
			clause := fmt.Sprintf("%s:%s", key, solrQuote(fmt.Sprint(f.Value)))
			if f.IsExclude() {
				clause = "-" + clause
			}
			parts = append(parts, clause)
		}
	}
	return strings.Join(parts, " ")
}

func solrQuote(s string) string {
	if strings.ContainsAny(s, " :\"") {
		return strconv.Quote(s)
	}
	return s
}

func (b *Backend) InnerProcessDataset(ctx context.Context, item *models.HarvestItem, records backend.Records) (*models.Dataset, error) {
	raw, err := b.packageShow(ctx, item.RemoteID)
	if err != nil {
		return nil, err
	}
	data, err := validate.ValidateObject(packageSchema, raw)
	if err != nil {
		return nil, err
	}

	pkg := decodePackage(data)
	item.RemoteID = pkg.ID

	if pkg.Private {
		return nil, backend.Skip("dataset %s is private", pkg.Name)
	}
	if pkg.State != "" && pkg.State != "active" {
		return nil, backend.Skip("dataset %s is %s", pkg.Name, pkg.State)
	}
	if len(pkg.Resources) == 0 {
		return nil, backend.Skip("dataset %s has no resources", pkg.Name)
	}

	ds, err := records.Dataset(ctx, pkg.ID)
	if err != nil {
		return nil, err
	}
	b.mapDataset(ctx, ds, pkg)
	return ds, nil
}

// packageShow returns the raw package payload. DKAN wraps it in a list.
func (b *Backend) packageShow(ctx context.Context, id string) (map[string]any, error) {
	var result any
	if err := b.action(ctx, "package_show", url.Values{"id": {id}}, &result); err != nil {
		return nil, err
	}
	if list, ok := result.([]any); ok {
		if len(list) == 0 {
			return nil, fmt.Errorf("package_show %s: empty result", id)
		}
		result = list[0]
	}
	m, ok := result.(map[string]any)
	if !ok {
		return nil, errors.New("package_show: result is not an object")
	}
	return m, nil
}

func (b *Backend) mapDataset(ctx context.Context, ds *models.Dataset, pkg *ckanPackage) {
	logger := b.Logger(ctx)

	ds.Title = pkg.Title
	ds.Description = pkg.Notes
	ds.License = pkg.LicenseID
	ds.Tags = pkg.Tags
	ds.Frequency = pkg.Extras["frequency"]

	if ds.Extras == nil {
		ds.Extras = map[string]any{}
	}
	ds.Extras["ckan:name"] = pkg.Name
	for k, v := range pkg.Extras {
		if reservedExtras[k] {
			continue
		}
		ds.Extras["ckan:"+k] = v
	}

	start, end := backend.ParseDate(pkg.Extras["temporal_start"]), backend.ParseDate(pkg.Extras["temporal_end"])
	if start != nil || end != nil {
		ds.TemporalCoverage = &models.TemporalCoverage{Start: start, End: end}
	}

	if b.Feature("spatial") {
		if geom := pkg.Extras["spatial"]; geom != "" {
			var g map[string]any
			if err := json.Unmarshal([]byte(geom), &g); err != nil {
				logger.Warn("invalid spatial extra", "dataset", pkg.Name, "error", err)
			} else {
				ds.Spatial = &models.SpatialCoverage{Geom: g}
			}
		}
	}

	ds.Harvest = &models.HarvestMetadata{
		RemoteURL:  strings.TrimRight(b.Source.URL, "/") + "/dataset/" + pkg.Name,
		CreatedAt:  pkg.Created,
		ModifiedAt: pkg.Modified,
	}

	resources := make([]models.Resource, 0, len(pkg.Resources))
	for _, r := range pkg.Resources {
		res := models.Resource{}
		if i := ds.FindResource("", r.URL); i >= 0 {
			res = ds.Resources[i]
		}
		res.ID = r.ID
		res.Title = r.Name
		if res.Title == "" {
			res.Title = path(r.URL)
		}
		res.Description = r.Description
		res.URL = r.URL
		res.Format = strings.ToLower(r.Format)
		res.Mime = r.Mime
		res.Filesize = r.Size
		if r.Hash != "" {
			res.Checksum = &models.Checksum{Type: "sha1", Value: r.Hash}
		}
		res.Type = "main"
		res.Harvest = &models.ResourceHarvest{CreatedAt: r.Created, ModifiedAt: r.Modified}
		resources = append(resources, res)
	}
	ds.Resources = resources
}

// path returns the last URL segment, used as a title fallback.
func path(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if last := segs[len(segs)-1]; last != "" {
		return last
	}
	return u.Host
}

var reservedExtras = map[string]bool{
	"frequency":      true,
	"spatial":        true,
	"temporal_start": true,
	"temporal_end":   true,
}

type ckanResource struct {
	ID          string
	Name        string
	Description string
	URL         string
	Format      string
	Mime        string
	Size        int64
	Hash        string
	Created     *time.Time
	Modified    *time.Time
}

type ckanPackage struct {
	ID        string
	Name      string
	Title     string
	Notes     string
	LicenseID string
	Private   bool
	State     string
	Created   *time.Time
	Modified  *time.Time
	Tags      []string
	Extras    map[string]string
	Resources []ckanResource
}
