// Package models defines the data structures persisted by the harvester.
package models

import (
	"net/url"
	"strings"
	"time"
)

// ValidationState is the human gate a source must pass before it can be scheduled.
type ValidationState string

const (
	ValidationPending  ValidationState = "pending"
	ValidationAccepted ValidationState = "accepted"
	ValidationRefused  ValidationState = "refused"
)

// FilterType tells whether a filter restricts to or excludes the matching items.
type FilterType string

const (
	FilterInclude FilterType = "include"
	FilterExclude FilterType = "exclude"
)

// FilterValue is one configured filter on a source, e.g. organization=X.
type FilterValue struct {
	Key   string     `json:"key" bson:"key" yaml:"key"`
	Value any        `json:"value" bson:"value" yaml:"value"`
	Type  FilterType `json:"type,omitempty" bson:"type,omitempty" yaml:"type,omitempty"`
}

// IsExclude reports whether the filter excludes matching items.
func (f FilterValue) IsExclude() bool {
	return f.Type == FilterExclude
}

// SourceConfig holds the per-backend configuration of a source.
type SourceConfig struct {
	Filters      []FilterValue   `json:"filters,omitempty" bson:"filters,omitempty" yaml:"filters,omitempty"`
	Features     map[string]bool `json:"features,omitempty" bson:"features,omitempty" yaml:"features,omitempty"`
	ExtraConfigs map[string]any  `json:"extra_configs,omitempty" bson:"extra_configs,omitempty" yaml:"extra_configs,omitempty"`
}

// SourceValidation records who accepted or refused a source, and when.
type SourceValidation struct {
	State   ValidationState `json:"state" bson:"state" yaml:"state"`
	By      string          `json:"by,omitempty" bson:"by,omitempty" yaml:"by,omitempty"`
	Comment string          `json:"comment,omitempty" bson:"comment,omitempty" yaml:"comment,omitempty"`
	On      *time.Time      `json:"on,omitempty" bson:"on,omitempty" yaml:"on,omitempty"`
}

// HarvestSource is a configured remote catalog endpoint.
type HarvestSource struct {
	ID           string           `json:"id,omitempty" bson:"_id" yaml:"id,omitempty"`
	Name         string           `json:"name" bson:"name" yaml:"name"`
	Slug         string           `json:"slug" bson:"slug" yaml:"slug,omitempty"`
	Description  string           `json:"description,omitempty" bson:"description,omitempty" yaml:"description,omitempty"`
	URL          string           `json:"url" bson:"url" yaml:"url"`
	Backend      string           `json:"backend" bson:"backend" yaml:"backend"`
	Config       SourceConfig     `json:"config" bson:"config" yaml:"config,omitempty"`
	Schedule     string           `json:"schedule,omitempty" bson:"schedule,omitempty" yaml:"schedule,omitempty"`
	Active       bool             `json:"active" bson:"active" yaml:"active"`
	Autoarchive  bool             `json:"autoarchive" bson:"autoarchive" yaml:"autoarchive"`
	Owner        *string          `json:"owner,omitempty" bson:"owner,omitempty" yaml:"owner,omitempty"`
	Organization *string          `json:"organization,omitempty" bson:"organization,omitempty" yaml:"organization,omitempty"`
	Validation   SourceValidation `json:"validation" bson:"validation" yaml:"validation,omitempty"`
	CreatedAt    time.Time        `json:"created_at" bson:"created_at" yaml:"-"`
	DeletedAt    *time.Time       `json:"deleted_at,omitempty" bson:"deleted_at,omitempty" yaml:"-"`
}

// Domain returns the host part of the source URL, without port.
func (s *HarvestSource) Domain() string {
	u, err := url.Parse(s.URL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// IsDeleted reports whether the source has been soft-deleted.
func (s *HarvestSource) IsDeleted() bool {
	return s.DeletedAt != nil
}

// Feature returns the configured value of a feature toggle, or def when unset.
func (s *HarvestSource) Feature(name string, def bool) bool {
	if v, ok := s.Config.Features[name]; ok {
		return v
	}
	return def
}

// ExtraConfig returns a configured extra value and whether it was set.
func (s *HarvestSource) ExtraConfig(key string) (any, bool) {
	v, ok := s.Config.ExtraConfigs[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}
