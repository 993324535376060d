package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/catalog-harvester/internal/app"
	"github.com/raphaelgruber/catalog-harvester/internal/config"
)

const catalog = `{
  "@context": {
    "dcat": "http://www.w3.org/ns/dcat#",
    "dct": "http://purl.org/dc/terms/"
  },
  "@graph": [
    {
      "@id": "https://data.example.org/dataset/1",
      "@type": "dcat:Dataset",
      "dct:identifier": "roads",
      "dct:title": "Roads",
      "dcat:distribution": {"dcat:downloadURL": {"@id": "https://files.example.org/roads.csv"}}
    }
  ]
}`

func catalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/ld+json")
		_, _ = w.Write([]byte(catalog))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// setupEnv points the CLI at a bolt store in a temp dir.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HARVEST_STORE", config.StoreBolt)
	t.Setenv("BOLT_PATH", filepath.Join(dir, "harvest.db"))
	t.Setenv("HARVEST_LOG_FILE", filepath.Join(dir, "harvest.log"))
	t.Setenv("HARVEST_BLOB_DRIVER", "")
	return dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func resetFlags() {
	verbose = false
	sourcesAll = false
	importAccept = false
	deletePurgeJobs = false
	previewMaxItems = 0
	jobsLimit = 20
	purgeDays = 0
	purgeSource = ""
	backendsJSON = false
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	closeApp()
	return out.String(), err
}

func sourcesYAML(url string) string {
	return `sources:
  - name: City Data
    url: ` + url + `/catalog.jsonld
    backend: dcat
    active: true
    autoarchive: true
`
}

func TestImportListShow(t *testing.T) {
	dir := setupEnv(t)
	file := writeFile(t, dir, "sources.yaml", sourcesYAML("https://data.example.org"))

	out, err := execute(t, "sources", "import", file)
	require.NoError(t, err)
	assert.Contains(t, out, "created city-data")
	assert.Contains(t, out, "Imported 1 sources (1 created, 0 updated)")

	// A second import updates in place.
	out, err = execute(t, "sources", "import", file, "--accept")
	require.NoError(t, err)
	assert.Contains(t, out, "updated city-data")

	out, err = execute(t, "sources", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "city-data")
	assert.Contains(t, out, "dcat")
	assert.Contains(t, out, "pending")

	out, err = execute(t, "sources", "show", "city-data")
	require.NoError(t, err)
	assert.Contains(t, out, "Source: City Data")
	assert.Contains(t, out, "Backend: dcat")
	assert.Contains(t, out, "Datasets: 0")
}

func TestImportAccept(t *testing.T) {
	dir := setupEnv(t)
	file := writeFile(t, dir, "sources.yaml", sourcesYAML("https://data.example.org"))

	_, err := execute(t, "sources", "import", file, "--accept")
	require.NoError(t, err)

	out, err := execute(t, "sources", "show", "city-data")
	require.NoError(t, err)
	assert.Contains(t, out, "Validation: accepted")
	assert.Contains(t, out, "By: cli")
}

func TestValidate(t *testing.T) {
	dir := setupEnv(t)

	good := writeFile(t, dir, "good.yaml", sourcesYAML("https://data.example.org"))
	out, err := execute(t, "sources", "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "ok city-data (dcat)")

	bad := writeFile(t, dir, "bad.yaml", `sources:
  - name: Nowhere
    url: https://nowhere.example.org
    backend: gopher
  - name: No URL
    backend: ckan
`)
	out, err = execute(t, "sources", "validate", bad)
	require.Error(t, err)
	assert.Contains(t, out, `invalid source nowhere: unknown backend: "gopher"`)
	assert.Contains(t, out, "invalid source no-url: url is required")

	// validate never touches the store.
	_, statErr := os.Stat(filepath.Join(dir, "harvest.db"))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestRunAndJobs(t *testing.T) {
	srv := catalogServer(t)
	dir := setupEnv(t)
	file := writeFile(t, dir, "sources.yaml", sourcesYAML(srv.URL))
	_, err := execute(t, "sources", "import", file)
	require.NoError(t, err)

	out, err := execute(t, "preview", "city-data", "--max-items", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Status: done")
	assert.Contains(t, out, "roads")

	out, err = execute(t, "jobs", "city-data")
	require.NoError(t, err)
	assert.Contains(t, out, "No jobs found", "previews are not persisted")

	out, err = execute(t, "run", "city-data")
	require.NoError(t, err)
	assert.Contains(t, out, "Status: done")
	assert.Contains(t, out, "Items: 1 (done 1, skipped 0, failed 0, archived 0)")

	out, err = execute(t, "jobs", "city-data")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	jobID := strings.Fields(lines[1])[0]

	out, err = execute(t, "jobs", "city-data", jobID)
	require.NoError(t, err)
	assert.Contains(t, out, "Job: "+jobID)
	assert.Regexp(t, `dataset\s+done\s+roads`, out)

	out, err = execute(t, "process-item", jobID, "roads")
	require.NoError(t, err)
	assert.Contains(t, out, "Job "+jobID+" is done")

	out, err = execute(t, "sources", "show", "city-data")
	require.NoError(t, err)
	assert.Contains(t, out, "Datasets: 1")

	out, err = execute(t, "purge", "--source", "city-data")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 1 jobs of city-data")
}

func TestDeleteSource(t *testing.T) {
	dir := setupEnv(t)
	file := writeFile(t, dir, "sources.yaml", sourcesYAML("https://data.example.org"))
	_, err := execute(t, "sources", "import", file)
	require.NoError(t, err)

	out, err := execute(t, "sources", "delete", "city-data")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted source city-data")

	out, err = execute(t, "sources", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No sources found")

	out, err = execute(t, "sources", "list", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "city-data (deleted)")

	// Slugs only resolve live sources.
	_, err = execute(t, "run", "city-data")
	assert.ErrorContains(t, err, `source "city-data": not found`)
}

func TestRunInactiveSource(t *testing.T) {
	dir := setupEnv(t)
	file := writeFile(t, dir, "sources.yaml", strings.Replace(sourcesYAML("https://data.example.org"), "active: true", "active: false", 1))
	_, err := execute(t, "sources", "import", file)
	require.NoError(t, err)

	_, err = execute(t, "run", "city-data")
	assert.ErrorContains(t, err, "inactive or deleted")
}

func TestEnqueueRequiresAcceptedSource(t *testing.T) {
	dir := setupEnv(t)
	file := writeFile(t, dir, "sources.yaml", sourcesYAML("https://data.example.org"))
	_, err := execute(t, "sources", "import", file)
	require.NoError(t, err)

	// The producer connects lazily, so no nsqd is needed to reach validation.
	_, err = execute(t, "enqueue", "city-data")
	assert.ErrorContains(t, err, "source is not validated")
}

func TestPurgeDefaultRetention(t *testing.T) {
	setupEnv(t)
	t.Setenv("HARVEST_JOBS_RETENTION_DAYS", "3")

	out, err := execute(t, "purge")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 0 jobs older than 3 days")
}

func TestBackends(t *testing.T) {
	out, err := execute(t, "backends", "--json")
	require.NoError(t, err)

	var infos []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 6)
	assert.Equal(t, "ckan", infos[0]["name"])

	out, err = execute(t, "backends")
	require.NoError(t, err)
	assert.Contains(t, out, "dcat")
	assert.Contains(t, out, "csw-iso-19139")
}

func TestInitializeError(t *testing.T) {
	setupEnv(t)
	orig := openApp
	t.Cleanup(func() { openApp = orig })
	openApp = func(context.Context, config.Config, *slog.Logger, app.Options) (*app.App, error) {
		return nil, errors.New("store unreachable")
	}

	_, err := execute(t, "sources", "list")
	assert.EqualError(t, err, "initialize: store unreachable")
}
