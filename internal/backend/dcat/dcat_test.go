package dcat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/catalog-harvester/internal/backend"
	"github.com/raphaelgruber/catalog-harvester/internal/boltstore"
	"github.com/raphaelgruber/catalog-harvester/internal/harvest"
	"github.com/raphaelgruber/catalog-harvester/internal/models"
)

const jsonldContext = `"@context": {
    "dcat": "http://www.w3.org/ns/dcat#",
    "dct": "http://purl.org/dc/terms/",
    "hydra": "http://www.w3.org/ns/hydra/core#"
  }`

const page1 = `{
  ` + jsonldContext + `,
  "@graph": [
    {
      "@id": "https://data.example.org/dataset/1",
      "@type": "dcat:Dataset",
      "dct:identifier": "ds-1",
      "dct:title": [{"@value": "Roads", "@language": "en"}, {"@value": "Routes", "@language": "fr"}],
      "dct:description": "<p>Road <b>network</b></p>",
      "dcat:keyword": ["Transport", "roads"],
      "dct:license": {"@id": "https://www.etalab.gouv.fr/licence-ouverte-open-licence"},
      "dct:accrualPeriodicity": {"@id": "http://publications.europa.eu/resource/authority/frequency/MONTHLY"},
      "dct:issued": "2020-01-01",
      "dct:modified": "2024-02-03T10:00:00Z",
      "dcat:landingPage": {"@id": "https://data.example.org/roads"},
      "dcat:distribution": [{
        "@id": "https://data.example.org/dist/1",
        "@type": "dcat:Distribution",
        "dcat:downloadURL": {"@id": "https://files.example.org/roads.csv"},
        "dct:title": "Roads CSV",
        "dct:format": "CSV",
        "dcat:mediaType": {"@id": "https://www.iana.org/assignments/media-types/text/csv"},
        "dcat:byteSize": 2048
      }]
    },
    {
      "@id": "https://data.example.org/dataset/2",
      "@type": "dcat:Dataset",
      "dct:title": "Parks",
      "dcat:distribution": {"dcat:accessURL": {"@id": "https://files.example.org/parks.json"}}
    },
    {
      "@id": "https://data.example.org/catalog.jsonld?page=1",
      "@type": "hydra:PartialCollectionView",
      "hydra:next": "catalog.jsonld?page=2"
    }
  ]
}`

const page2 = `{
  ` + jsonldContext + `,
  "@graph": [
    {
      "@id": "https://data.example.org/dataset/3",
      "@type": "dcat:Dataset",
      "dct:identifier": "ds-3",
      "dct:title": "Bike lanes",
      "dcat:distribution": {"dcat:downloadURL": {"@id": "https://files.example.org/bikes.geojson"}}
    },
    {
      "@id": "https://data.example.org/api",
      "@type": "dcat:DataService",
      "dct:title": "Roads API",
      "dcat:endpointURL": {"@id": "https://api.example.org/"},
      "dcat:servesDataset": {"@id": "https://data.example.org/dataset/1"}
    },
    {
      "@id": "https://data.example.org/catalog.jsonld?page=2",
      "@type": "hydra:PartialCollectionView"
    }
  ]
}`

const rdfxmlCatalog = `<?xml version="1.0" encoding="UTF-8"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
         xmlns:dcat="http://www.w3.org/ns/dcat#"
         xmlns:dct="http://purl.org/dc/terms/">
  <dcat:Dataset rdf:about="https://data.example.org/dataset/xml">
    <dct:identifier>xml-1</dct:identifier>
    <dct:title>From RDF/XML</dct:title>
    <dcat:distribution>
      <dcat:Distribution>
        <dcat:downloadURL rdf:resource="https://files.example.org/x.csv"/>
      </dcat:Distribution>
    </dcat:distribution>
  </dcat:Dataset>
</rdf:RDF>`

const turtleCatalog = `@prefix dcat: <http://www.w3.org/ns/dcat#> .
@prefix dct: <http://purl.org/dc/terms/> .

<https://data.example.org/dataset/ttl> a dcat:Dataset ;
    dct:identifier "ttl-1" ;
    dct:title "From Turtle" ;
    dcat:distribution [ a dcat:Distribution ; dcat:downloadURL <https://files.example.org/t.csv> ] .
`

const remoteContext = `{
  "@context": {
    "dcat": "http://www.w3.org/ns/dcat#",
    "dct": "http://purl.org/dc/terms/",
    "Dataset": "dcat:Dataset",
    "identifier": "dct:identifier",
    "title": "dct:title",
    "distribution": "dcat:distribution",
    "downloadURL": {"@id": "dcat:downloadURL", "@type": "@id"}
  }
}`

func remoteContextDocument(contextURL string) string {
	return `{
  "@context": "` + contextURL + `",
  "@id": "https://data.example.org/dataset/tides",
  "@type": "Dataset",
  "identifier": "tides-1",
  "title": "Tides",
  "distribution": {"downloadURL": "https://files.example.org/tides.csv"}
}`
}

func catalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/catalog.jsonld", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/ld+json")
		switch r.URL.Query().Get("page") {
		case "", "1":
			_, _ = w.Write([]byte(page1))
		case "2":
			_, _ = w.Write([]byte(page2))
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/catalog", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rdf+xml")
		_, _ = w.Write([]byte(rdfxmlCatalog))
	})
	mux.HandleFunc("/catalog.ttl", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/turtle")
		_, _ = w.Write([]byte(turtleCatalog))
	})
	mux.HandleFunc("/catalog.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html></html>`))
	})
	mux.HandleFunc("/context.jsonld", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/ld+json")
		_, _ = w.Write([]byte(remoteContext))
	})
	mux.HandleFunc("/remote.jsonld", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/ld+json")
		_, _ = w.Write([]byte(remoteContextDocument("http://" + r.Host + "/context.jsonld")))
	})
	mux.HandleFunc("/broken.jsonld", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/ld+json")
		_, _ = w.Write([]byte(remoteContextDocument("http://" + r.Host + "/missing-context.jsonld")))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type env struct {
	engine *harvest.Engine
	store  *boltstore.Store
	server *httptest.Server
}

func newEnv(t *testing.T, opts harvest.Options) *env {
	t.Helper()
	st, err := boltstore.Open(filepath.Join(t.TempDir(), "dcat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close(context.Background()) })

	reg := backend.NewRegistry()
	reg.Register(Info, New)
	return &env{engine: harvest.New(st, reg, opts), store: st, server: catalogServer(t)}
}

func (e *env) source(path string) *models.HarvestSource {
	src := &models.HarvestSource{
		ID:      "src-dcat",
		Name:    "DCAT portal",
		Slug:    "dcat-portal",
		URL:     e.server.URL + path,
		Backend: "dcat",
		Active:  true,
	}
	return src
}

func TestHarvestPaginatedCatalog(t *testing.T) {
	e := newEnv(t, harvest.Options{})
	ctx := context.Background()
	src := e.source("/catalog.jsonld?page=1")
	require.NoError(t, e.store.CreateSource(ctx, src))

	job, err := e.engine.Harvest(ctx, src)
	require.NoError(t, err)
	require.Equal(t, models.JobDone, job.Status, "errors: %v", job.Errors)

	require.Len(t, job.Items, 4)
	assert.Equal(t, "ds-1", job.Items[0].RemoteID)
	assert.Equal(t, "https://data.example.org/dataset/2", job.Items[1].RemoteID)
	assert.Equal(t, "ds-3", job.Items[2].RemoteID)
	assert.Equal(t, models.KindDataservice, job.Items[3].Kind)
	assert.Equal(t, 1, job.Items[2].Kwargs[KwargPage])

	assert.Equal(t, "json-ld", job.Data[models.JobDataFormat])
	assert.Len(t, job.Data[models.JobDataGraphs], 2)

	ds, err := e.store.GetDataset(ctx, *job.Items[0].DatasetID)
	require.NoError(t, err)
	assert.Equal(t, "Roads", ds.Title)
	assert.Equal(t, "Road network", ds.Description)
	assert.Equal(t, []string{"transport", "roads"}, ds.Tags)
	assert.Equal(t, "https://www.etalab.gouv.fr/licence-ouverte-open-licence", ds.License)
	assert.Equal(t, "MONTHLY", ds.Frequency)
	assert.Equal(t, "https://data.example.org/dataset/1", ds.Harvest.URI)
	assert.Equal(t, "https://data.example.org/roads", ds.Harvest.RemoteURL)
	require.NotNil(t, ds.Harvest.ModifiedAt)
	assert.Equal(t, 2024, ds.Harvest.ModifiedAt.Year())
	require.Len(t, ds.Resources, 1)
	r := ds.Resources[0]
	assert.Equal(t, "Roads CSV", r.Title)
	assert.Equal(t, "https://files.example.org/roads.csv", r.URL)
	assert.Equal(t, "csv", r.Format)
	assert.Equal(t, "text/csv", r.Mime)
	assert.Equal(t, int64(2048), r.Filesize)
	assert.Equal(t, "https://data.example.org/dist/1", r.Harvest.URI)

	parks, err := e.store.GetDataset(ctx, *job.Items[1].DatasetID)
	require.NoError(t, err)
	assert.Equal(t, "parks.json", parks.Resources[0].Title)

	svc, err := e.store.GetDataservice(ctx, *job.Items[3].DataserviceID)
	require.NoError(t, err)
	assert.Equal(t, "Roads API", svc.Title)
	assert.Equal(t, "https://api.example.org/", svc.BaseAPIURL)
	assert.Equal(t, []string{ds.ID}, svc.Datasets)

	// Resources keep their id across runs.
	job2, err := e.engine.Harvest(ctx, src)
	require.NoError(t, err)
	again, err := e.store.GetDataset(ctx, *job2.Items[0].DatasetID)
	require.NoError(t, err)
	assert.Equal(t, ds.ID, again.ID)
	assert.Equal(t, r.ID, again.Resources[0].ID)
}

func TestProcessItemReloadsStoredGraphs(t *testing.T) {
	e := newEnv(t, harvest.Options{})
	ctx := context.Background()
	src := e.source("/catalog.jsonld?page=1")
	require.NoError(t, e.store.CreateSource(ctx, src))

	job, err := e.engine.Harvest(ctx, src)
	require.NoError(t, err)

	_, item, err := e.engine.ProcessItem(ctx, job.ID, "ds-3")
	require.NoError(t, err)
	assert.Equal(t, models.ItemDone, item.Status, "errors: %v", item.Errors)
	assert.Equal(t, *job.Items[2].DatasetID, *item.DatasetID)
}

func TestGraphsOffloadedToBlobStore(t *testing.T) {
	st, err := boltstore.Open(filepath.Join(t.TempDir(), "blobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close(context.Background()) })

	e := newEnv(t, harvest.Options{Blob: st, GraphsBucket: "graphs", MaxInlineGraphBytes: 64})
	ctx := context.Background()
	src := e.source("/catalog.jsonld?page=1")
	require.NoError(t, e.store.CreateSource(ctx, src))

	job, err := e.engine.Harvest(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, models.JobDone, job.Status)
	assert.Nil(t, job.Data[models.JobDataGraphs])
	key, ok := job.Data[models.JobDataFilename].(string)
	require.True(t, ok)

	data, err := st.Get(ctx, "graphs", key)
	require.NoError(t, err)
	var texts []string
	require.NoError(t, json.Unmarshal(data, &texts))
	assert.Len(t, texts, 2)

	_, item, err := e.engine.ProcessItem(ctx, job.ID, "ds-1")
	require.NoError(t, err)
	assert.Equal(t, models.ItemDone, item.Status, "errors: %v", item.Errors)
}

func TestGraphsTooLargeWithoutBlobStore(t *testing.T) {
	e := newEnv(t, harvest.Options{MaxInlineGraphBytes: 64})
	job, err := e.engine.Harvest(context.Background(), e.source("/catalog.jsonld?page=1"))
	require.NoError(t, err)
	assert.Equal(t, models.JobDone, job.Status)
	assert.Nil(t, job.Data[models.JobDataGraphs])
	assert.Nil(t, job.Data[models.JobDataFilename])
	require.Len(t, job.Errors, 1)
	assert.Contains(t, job.Errors[0].Message, "no blob store is configured")
}

func TestHarvestMaxItemsAcrossPages(t *testing.T) {
	e := newEnv(t, harvest.Options{MaxItems: 3})
	ctx := context.Background()
	job, err := e.engine.Harvest(ctx, e.source("/catalog.jsonld?page=1"))
	require.NoError(t, err)
	assert.Equal(t, models.JobDone, job.Status)
	assert.Len(t, job.Items, 3)
	for _, item := range job.Items {
		assert.Equal(t, models.KindDataset, item.Kind)
	}
	n, err := e.store.CountDatasets(ctx, "src-dcat")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestFormatDetection(t *testing.T) {
	t.Run("content type from HEAD", func(t *testing.T) {
		e := newEnv(t, harvest.Options{})
		job, err := e.engine.Harvest(context.Background(), e.source("/catalog"))
		require.NoError(t, err)
		require.Equal(t, models.JobDone, job.Status, "errors: %v", job.Errors)
		assert.Equal(t, "xml", job.Data[models.JobDataFormat])
		require.Len(t, job.Items, 1)
		assert.Equal(t, "xml-1", job.Items[0].RemoteID)
	})

	t.Run("turtle", func(t *testing.T) {
		e := newEnv(t, harvest.Options{})
		job, err := e.engine.Harvest(context.Background(), e.source("/catalog.ttl"))
		require.NoError(t, err)
		require.Equal(t, models.JobDone, job.Status, "errors: %v", job.Errors)
		assert.Equal(t, "turtle", job.Data[models.JobDataFormat])
		require.Len(t, job.Items, 1)
		assert.Equal(t, "ttl-1", job.Items[0].RemoteID)
	})

	t.Run("html is unsupported", func(t *testing.T) {
		e := newEnv(t, harvest.Options{})
		job, err := e.engine.Harvest(context.Background(), e.source("/catalog.html"))
		require.NoError(t, err)
		assert.Equal(t, models.JobFailed, job.Status)
		require.Len(t, job.Errors, 1)
		assert.Contains(t, job.Errors[0].Message, "unsupported format")
	})
}

func TestRemoteJSONLDContext(t *testing.T) {
	t.Run("resolved", func(t *testing.T) {
		e := newEnv(t, harvest.Options{})
		job, err := e.engine.Harvest(context.Background(), e.source("/remote.jsonld"))
		require.NoError(t, err)
		require.Equal(t, models.JobDone, job.Status, "errors: %v", job.Errors)
		require.Len(t, job.Items, 1)
		assert.Equal(t, "tides-1", job.Items[0].RemoteID)
	})

	t.Run("unreachable context fails the run", func(t *testing.T) {
		e := newEnv(t, harvest.Options{})
		job, err := e.engine.Harvest(context.Background(), e.source("/broken.jsonld"))
		require.NoError(t, err)
		assert.Equal(t, models.JobFailed, job.Status)
		assert.Empty(t, job.Items)
		require.Len(t, job.Errors, 1)
		assert.Contains(t, job.Errors[0].Message, "context")
	})
}

func TestRemoteURLPrefix(t *testing.T) {
	e := newEnv(t, harvest.Options{})
	ctx := context.Background()
	src := e.source("/catalog.jsonld?page=1")
	src.Config.ExtraConfigs = map[string]any{"remote_url_prefix": "https://portal.example.org/datasets/"}

	job, err := e.engine.Harvest(ctx, src)
	require.NoError(t, err)
	ds, err := e.store.GetDataset(ctx, *job.Items[0].DatasetID)
	require.NoError(t, err)
	assert.Equal(t, "https://portal.example.org/datasets/ds-1", ds.Harvest.RemoteURL)
}
