package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/catalog-harvester/internal/backend/builtin"
	"github.com/raphaelgruber/catalog-harvester/internal/metrics"
	"github.com/raphaelgruber/catalog-harvester/internal/models"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	h := New("1.2.3", builtin.Registry(), nil, nil, nil).Handler()
	rec := get(t, h, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","version":"1.2.3"}`, rec.Body.String())
}

func TestBackends(t *testing.T) {
	h := New("dev", builtin.Registry(), nil, nil, nil).Handler()
	rec := get(t, h, "/backends")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var infos []struct {
		Name         string           `json:"name"`
		Features     []map[string]any `json:"features"`
		ExtraConfigs []map[string]any `json:"extra_configs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 6)
	assert.Equal(t, "ckan", infos[0].Name)
}

func TestStats(t *testing.T) {
	c := metrics.NewCollector()
	job := models.NewJob("src")
	ended := job.Started.Add(time.Second)
	job.Ended = &ended
	job.Status = models.JobDone
	c.JobFinished(context.Background(), &models.HarvestSource{Backend: "ckan"}, job)

	h := New("dev", builtin.Registry(), nil, c, nil).Handler()
	rec := get(t, h, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []any{}, body["active"])
	backends := body["backends"].([]any)
	require.Len(t, backends, 1)
	assert.Equal(t, "ckan", backends[0].(map[string]any)["backend"])
}

func TestUnknownRouteAndMethod(t *testing.T) {
	h := New("dev", builtin.Registry(), nil, nil, nil).Handler()
	assert.Equal(t, http.StatusNotFound, get(t, h, "/nope").Code)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	get(t, h, "/stats")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "request failed", rec["msg"])
	assert.EqualValues(t, 500, rec["status"])
	assert.Equal(t, "/stats", rec["path"])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}

func TestEventsStream(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(New("dev", builtin.Registry(), nil, nil, nil).WithEvents(hub).Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, 1, hub.Subscribers())

	src := &models.HarvestSource{ID: "src-1", Slug: "city", Backend: "dcat"}
	job := models.NewJob(src.ID)
	hub.JobStarted(context.Background(), src, job)
	job.Status = models.JobDoneErrors
	job.Items = []*models.HarvestItem{{RemoteID: "a", Status: models.ItemDone}, {RemoteID: "b", Status: models.ItemFailed}}
	hub.JobFinished(context.Background(), src, job)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var started, finished Event
	require.NoError(t, conn.ReadJSON(&started))
	require.NoError(t, conn.ReadJSON(&finished))

	assert.Equal(t, EventJobStarted, started.Type)
	assert.Equal(t, models.JobInitialized, started.Status)
	assert.Equal(t, EventJobFinished, finished.Type)
	assert.Equal(t, job.ID, finished.JobID)
	assert.Equal(t, "city", finished.Slug)
	assert.Equal(t, 2, finished.Items)
	assert.Equal(t, 1, finished.Failed)
}

func TestEventsNotServedWithoutHub(t *testing.T) {
	h := New("dev", builtin.Registry(), nil, nil, nil).Handler()
	assert.Equal(t, http.StatusNotFound, get(t, h, "/events").Code)
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	events, unsubscribe := hub.subscribe()
	defer unsubscribe()

	src := &models.HarvestSource{ID: "src-1"}
	for range eventBuffer + 5 {
		hub.JobFinished(context.Background(), src, models.NewJob(src.ID))
	}
	assert.Len(t, events, eventBuffer)

	unsubscribe()
	assert.Equal(t, 0, hub.Subscribers())
}
