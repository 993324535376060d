// Package maaf harvests catalogs published as a directory of XML metadata
// files: an HTML index page links to one XML document per dataset.
package maaf

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xmlquery"
	"github.com/google/uuid"

	"github.com/raphaelgruber/catalog-harvester/internal/backend"
	"github.com/raphaelgruber/catalog-harvester/internal/models"
	"github.com/raphaelgruber/catalog-harvester/internal/validate"
)

// KwargURL holds the XML file URL of an item.
const KwargURL = "url"

// Info describes the MAAF backend.
var Info = backend.Info{
	Name:        "maaf",
	DisplayName: "MAAF",
	VerifySSL:   true,
}

// Backend harvests one XML index.
type Backend struct {
	*backend.Base
}

// New builds a MAAF backend.
func New(base *backend.Base) backend.Backend {
	return &Backend{Base: base}
}

func (b *Backend) InnerHarvest(ctx context.Context, p backend.Processor) error {
	links, err := b.index(ctx)
	if err != nil {
		return err
	}
	b.Logger(ctx).Info("listed metadata files", "count", len(links))
	for _, link := range links {
		if !p.ProcessDataset(ctx, link, map[string]any{KwargURL: link}) {
			return nil
		}
	}
	return nil
}

// index returns the absolute URLs of the .xml files linked from the source page.
func (b *Backend) index(ctx context.Context) ([]string, error) {
	resp, err := b.HTTP().Get(ctx, b.Source.URL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse index %s: %w", b.Source.URL, err)
	}
	base, err := url.Parse(b.Source.URL)
	if err != nil {
		return nil, fmt.Errorf("parse source url: %w", err)
	}

	var links []string
	seen := map[string]bool{}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil || !strings.HasSuffix(strings.ToLower(ref.Path), ".xml") {
			return
		}
		abs := base.ResolveReference(ref).String()
		if !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	})
	return links, nil
}

func (b *Backend) InnerProcessDataset(ctx context.Context, item *models.HarvestItem, records backend.Records) (*models.Dataset, error) {
	fileURL, _ := item.Kwargs[KwargURL].(string)
	if fileURL == "" {
		fileURL = item.RemoteID
	}
	resp, err := b.HTTP().Get(ctx, fileURL)
	if err != nil {
		return nil, err
	}
	root, err := xmlquery.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fileURL, err)
	}
	data, err := validate.ValidateObject(documentSchema, documentMap(root))
	if err != nil {
		return nil, err
	}

	md := decodeMetadata(data)
	item.RemoteID = md.ID
	if len(md.Resources) == 0 {
		return nil, backend.Skip("dataset %s has no resources", md.ID)
	}

	ds, err := records.Dataset(ctx, md.ID)
	if err != nil {
		return nil, err
	}
	mapDataset(ds, md, fileURL)
	return ds, nil
}

func mapDataset(ds *models.Dataset, md *metadata, fileURL string) {
	ds.Title = md.Title
	ds.Description = backend.HTMLToText(md.Description)
	ds.License = md.License
	ds.Frequency = frequency(md.Frequency)
	ds.Tags = nil
	seen := map[string]bool{}
	for _, kw := range md.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && !seen[kw] {
			seen[kw] = true
			ds.Tags = append(ds.Tags, kw)
		}
	}
	if md.Contact != "" {
		if ds.Extras == nil {
			ds.Extras = map[string]any{}
		}
		ds.Extras["maaf:contact"] = md.Contact
	}
	ds.Harvest = &models.HarvestMetadata{
		RemoteURL:  fileURL,
		CreatedAt:  md.Created,
		ModifiedAt: md.Modified,
	}

	resources := make([]models.Resource, 0, len(md.Resources))
	for _, r := range md.Resources {
		res := models.Resource{ID: uuid.New().String()}
		if i := ds.FindResource("", r.URL); i >= 0 {
			res = ds.Resources[i]
		}
		res.URL = r.URL
		res.Title = r.Title
		if res.Title == "" {
			res.Title = md.Title
		}
		res.Description = r.Description
		res.Format = strings.ToLower(r.Format)
		res.Type = "main"
		resources = append(resources, res)
	}
	ds.Resources = resources
}

var frequencies = map[string]string{
	"quotidienne":   "daily",
	"hebdomadaire":  "weekly",
	"mensuelle":     "monthly",
	"trimestrielle": "quarterly",
	"semestrielle":  "semiannual",
	"annuelle":      "annual",
	"ponctuelle":    "punctual",
	"irreguliere":   "irregular",
	"irrégulière":   "irregular",
}

func frequency(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if f, ok := frequencies[v]; ok {
		return f
	}
	return v
}
