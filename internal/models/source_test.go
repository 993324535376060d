package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHarvestSourceDomain(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"plain host", "https://data.example.org/api/3", "data.example.org"},
		{"with port", "http://localhost:5000/catalog.jsonld", "localhost"},
		{"uppercase", "https://Data.Example.ORG", "data.example.org"},
		{"www kept", "https://www.example.org/", "www.example.org"},
		{"invalid", "://bad", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &HarvestSource{URL: tt.url}
			assert.Equal(t, tt.want, s.Domain())
		})
	}
}

func TestHarvestSourceFeatureAndExtraConfig(t *testing.T) {
	s := &HarvestSource{Config: SourceConfig{
		Features:     map[string]bool{"spatial": true},
		ExtraConfigs: map[string]any{"page_size": 10, "empty": nil},
	}}

	assert.True(t, s.Feature("spatial", false))
	assert.True(t, s.Feature("unknown", true))
	assert.False(t, s.Feature("unknown", false))

	v, ok := s.ExtraConfig("page_size")
	require.True(t, ok)
	assert.Equal(t, 10, v)

	_, ok = s.ExtraConfig("empty")
	assert.False(t, ok)
	_, ok = s.ExtraConfig("missing")
	assert.False(t, ok)
}

func TestHarvestJobCounters(t *testing.T) {
	job := NewJob("src-1")
	assert.Equal(t, JobInitialized, job.Status)
	assert.NotEmpty(t, job.ID)
	require.NotNil(t, job.Started)

	job.Items = []*HarvestItem{
		{RemoteID: "a", Kind: KindDataset, Status: ItemDone},
		{RemoteID: "b", Kind: KindDataset, Status: ItemFailed},
		{RemoteID: "a", Kind: KindDataservice, Status: ItemSkipped},
	}

	assert.Equal(t, 1, job.CountItems(ItemDone))
	assert.True(t, job.HasFailedItems())
	assert.Equal(t, KindDataservice, job.FindItem(KindDataservice, "a").Kind)
	assert.Nil(t, job.FindItem(KindDataset, "z"))

	assert.False(t, job.IsFinished())
	assert.Zero(t, job.Duration())
	end := job.Started.Add(2 * time.Second)
	job.Ended = &end
	job.Status = JobDoneErrors
	assert.True(t, job.IsFinished())
	assert.Equal(t, 2*time.Second, job.Duration())
}

func TestDatasetValidate(t *testing.T) {
	d := &Dataset{Resources: []Resource{{URL: "https://example.org/a.csv"}, {}, {URL: "relative/b.csv"}}}
	err := d.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "[title] required field is missing")
	assert.Contains(t, msg, "[resources.1.url] required field is missing")
	assert.Contains(t, msg, "[resources.2.url] expected an absolute URL")

	d.Title = "ok"
	d.Resources = d.Resources[:1]
	assert.NoError(t, d.Validate())
}
