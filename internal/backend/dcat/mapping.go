package dcat

import (
	"encoding/json"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/raphaelgruber/catalog-harvester/internal/backend"
	"github.com/raphaelgruber/catalog-harvester/internal/models"
	"github.com/raphaelgruber/catalog-harvester/internal/rdf"
)

// Node types enumerated by each pass.
var (
	DatasetTypes     = []string{rdf.NsDCAT + "Dataset"}
	DataserviceTypes = []string{rdf.NsDCAT + "DataService"}
)

// Lang is the preferred literal language.
const Lang = "en"

const geoJSONLiteral = "http://www.opengis.net/ont/geosparql#geoJSONLiteral"

// MapDataset copies the DCAT description of node into ds. Existing
// resources are matched by distribution IRI or file URL and keep their id.
func MapDataset(g *rdf.Graph, node rdf.Term, ds *models.Dataset) {
	ds.Title = g.LangValue(node, rdf.NsDCT+"title", Lang)
	ds.Description = backend.HTMLToText(g.LangValue(node, rdf.NsDCT+"description", Lang))
	ds.Tags = tags(g, node)
	ds.License = license(g, node)
	ds.Frequency = lastSegment(g.Value(node, rdf.NsDCT+"accrualPeriodicity"))
	ds.TemporalCoverage = temporal(g, node)
	if geom := spatial(g, node); geom != nil {
		ds.Spatial = &models.SpatialCoverage{Geom: geom}
	}

	ds.Harvest = &models.HarvestMetadata{
		RemoteURL:  g.Value(node, rdf.NsDCAT+"landingPage"),
		CreatedAt:  backend.ParseDate(g.Value(node, rdf.NsDCT+"issued")),
		ModifiedAt: backend.ParseDate(g.Value(node, rdf.NsDCT+"modified")),
	}
	if node.IsIRI() {
		ds.Harvest.URI = node.Value
	}

	resources := make([]models.Resource, 0)
	for _, dist := range g.Objects(node, rdf.NsDCAT+"distribution") {
		res, ok := mapResource(g, dist, ds)
		if ok {
			resources = append(resources, res)
		}
	}
	ds.Resources = resources
}

func mapResource(g *rdf.Graph, dist rdf.Term, ds *models.Dataset) (models.Resource, bool) {
	fileURL := g.Value(dist, rdf.NsDCAT+"downloadURL")
	if fileURL == "" {
		fileURL = g.Value(dist, rdf.NsDCAT+"accessURL")
	}
	if fileURL == "" {
		return models.Resource{}, false
	}
	uri := ""
	if dist.IsIRI() {
		uri = dist.Value
	}

	res := models.Resource{ID: uuid.New().String()}
	if i := ds.FindResource(uri, fileURL); i >= 0 {
		res = ds.Resources[i]
	}
	res.URL = fileURL
	res.Title = g.LangValue(dist, rdf.NsDCT+"title", Lang)
	if res.Title == "" {
		res.Title = fileName(fileURL)
	}
	res.Description = backend.HTMLToText(g.LangValue(dist, rdf.NsDCT+"description", Lang))
	res.Format = strings.ToLower(lastSegment(g.Value(dist, rdf.NsDCT+"format")))
	res.Mime = lastMediaType(g.Value(dist, rdf.NsDCAT+"mediaType"))
	if n, err := strconv.ParseInt(g.Value(dist, rdf.NsDCAT+"byteSize"), 10, 64); err == nil {
		res.Filesize = n
	}
	if sum, ok := g.Object(dist, rdf.NsSPDX+"checksum"); ok {
		if v := g.Value(sum, rdf.NsSPDX+"checksumValue"); v != "" {
			algo := strings.TrimPrefix(lastSegment(g.Value(sum, rdf.NsSPDX+"algorithm")), "checksumAlgorithm_")
			res.Checksum = &models.Checksum{Type: strings.ToLower(algo), Value: v}
		}
	}
	res.Type = "main"
	res.Harvest = &models.ResourceHarvest{
		CreatedAt:  backend.ParseDate(g.Value(dist, rdf.NsDCT+"issued")),
		ModifiedAt: backend.ParseDate(g.Value(dist, rdf.NsDCT+"modified")),
		URI:        uri,
	}
	return res, true
}

// MapDataservice copies the DCAT description of a service node into ds.
func MapDataservice(g *rdf.Graph, node rdf.Term, ds *models.Dataservice) {
	ds.Title = g.LangValue(node, rdf.NsDCT+"title", Lang)
	ds.Description = backend.HTMLToText(g.LangValue(node, rdf.NsDCT+"description", Lang))
	ds.BaseAPIURL = g.Value(node, rdf.NsDCAT+"endpointURL")
	ds.EndpointDescriptionURL = g.Value(node, rdf.NsDCAT+"endpointDescription")
	ds.Tags = tags(g, node)
	ds.License = license(g, node)
	ds.Harvest = &models.HarvestMetadata{
		RemoteURL:  g.Value(node, rdf.NsDCAT+"landingPage"),
		CreatedAt:  backend.ParseDate(g.Value(node, rdf.NsDCT+"issued")),
		ModifiedAt: backend.ParseDate(g.Value(node, rdf.NsDCT+"modified")),
	}
	if node.IsIRI() {
		ds.Harvest.URI = node.Value
	}
}

// tags merges keywords and theme labels, lowercased and deduplicated.
func tags(g *rdf.Graph, node rdf.Term) []string {
	var out []string
	seen := map[string]bool{}
	add := func(v string) {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, kw := range g.Values(node, rdf.NsDCAT+"keyword") {
		add(kw)
	}
	for _, theme := range g.Objects(node, rdf.NsDCAT+"theme") {
		if theme.Kind == rdf.KindLiteral {
			add(theme.Value)
			continue
		}
		if label := g.LangValue(theme, rdf.NsSKOS+"prefLabel", Lang); label != "" {
			add(label)
		}
	}
	return out
}

// license is the dataset license, else the first distribution license.
func license(g *rdf.Graph, node rdf.Term) string {
	if l := licenseOf(g, node); l != "" {
		return l
	}
	for _, dist := range g.Objects(node, rdf.NsDCAT+"distribution") {
		if l := licenseOf(g, dist); l != "" {
			return l
		}
	}
	return ""
}

func licenseOf(g *rdf.Graph, node rdf.Term) string {
	o, ok := g.Object(node, rdf.NsDCT+"license")
	if !ok {
		o, ok = g.Object(node, rdf.NsDCT+"rights")
	}
	if !ok {
		return ""
	}
	if o.Kind == rdf.KindBlank {
		if label := g.LangValue(o, rdf.NsRDFS+"label", Lang); label != "" {
			return label
		}
		return g.Value(o, rdf.NsDCT+"title")
	}
	return strings.TrimSpace(o.Value)
}

func temporal(g *rdf.Graph, node rdf.Term) *models.TemporalCoverage {
	period, ok := g.Object(node, rdf.NsDCT+"temporal")
	if !ok {
		return nil
	}
	start := first(g, period, rdf.NsDCAT+"startDate", rdf.NsSchema+"startDate")
	end := first(g, period, rdf.NsDCAT+"endDate", rdf.NsSchema+"endDate")
	tc := &models.TemporalCoverage{Start: backend.ParseDate(start), End: backend.ParseDate(end)}
	if tc.Start == nil && tc.End == nil {
		return nil
	}
	return tc
}

func spatial(g *rdf.Graph, node rdf.Term) map[string]any {
	for _, loc := range g.Objects(node, rdf.NsDCT+"spatial") {
		for _, geom := range g.Objects(loc, rdf.NsLOCN+"geometry") {
			if geom.Kind != rdf.KindLiteral {
				continue
			}
			if geom.Datatype != "" && geom.Datatype != geoJSONLiteral {
				continue
			}
			var out map[string]any
			if err := json.Unmarshal([]byte(geom.Value), &out); err == nil {
				return out
			}
		}
	}
	return nil
}

func first(g *rdf.Graph, node rdf.Term, preds ...string) string {
	for _, p := range preds {
		if v := g.Value(node, p); v != "" {
			return v
		}
	}
	return ""
}

// lastSegment turns vocabulary IRIs such as .../frequency/MONTHLY into MONTHLY.
func lastSegment(v string) string {
	if !strings.Contains(v, "://") {
		return v
	}
	if i := strings.LastIndexAny(v, "/#"); i >= 0 && i < len(v)-1 {
		return v[i+1:]
	}
	return v
}

// lastMediaType reduces IANA media type IRIs to the type itself.
func lastMediaType(v string) string {
	const iana = "://www.iana.org/assignments/media-types/"
	if i := strings.Index(v, iana); i >= 0 {
		return v[i+len(iana):]
	}
	return v
}

func fileName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" || u.Path == "/" {
		return raw
	}
	return path.Base(u.Path)
}
