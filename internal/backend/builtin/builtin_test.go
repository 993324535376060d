package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/catalog-harvester/internal/backend"
	"github.com/raphaelgruber/catalog-harvester/internal/models"
)

func TestRegistry(t *testing.T) {
	reg := Registry()

	var names []string
	for _, info := range reg.Infos() {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{"ckan", "csw-dcat", "csw-iso-19139", "dcat", "dkan", "maaf"}, names)

	for _, name := range names {
		b, err := reg.New(backend.Options{
			Source: &models.HarvestSource{Backend: name, URL: "https://data.example.org"},
			Job:    models.NewJob("src"),
		})
		require.NoError(t, err, name)
		assert.Equal(t, name, b.Info().Name)
	}

	_, err := reg.Get("socrata")
	assert.ErrorIs(t, err, backend.ErrUnknownBackend)
}
