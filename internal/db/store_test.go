//go:build integration

package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/raphaelgruber/catalog-harvester/internal/models"
	"github.com/raphaelgruber/catalog-harvester/internal/store"
	"github.com/raphaelgruber/catalog-harvester/internal/store/storetest"
)

var (
	testURL       string
	testContainer testcontainers.Container
)

func TestMain(m *testing.M) {
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start surrealdb container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("container host: %v", err)
	}
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}
	testURL = fmt.Sprintf("ws://%s:%s/rpc", host, port.Port())

	code := m.Run()
	_ = testContainer.Terminate(ctx)
	os.Exit(code)
}

// newClient connects to a fresh database so subtests never share records.
func newClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()
	c, err := NewClient(ctx, Config{
		URL:       testURL,
		Namespace: "test",
		Database:  "db_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	require.NoError(t, err)
	require.NoError(t, c.InitSchema(ctx))
	t.Cleanup(func() { _ = c.Close(ctx) })
	return c
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newClient(t) })
}

func TestCreateSourceDuplicate(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	src := &models.HarvestSource{ID: "dup", Name: "Dup", Slug: "dup", Backend: "ckan"}
	require.NoError(t, c.CreateSource(ctx, src))

	err := c.CreateSource(ctx, src)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestWipeData(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	require.NoError(t, c.SaveJob(ctx, models.NewJob("src")))
	require.NoError(t, c.WipeData(ctx))

	jobs, err := c.ListJobs(ctx, "src", 0)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
