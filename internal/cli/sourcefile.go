package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/catalog-harvester/internal/backend"
	"github.com/raphaelgruber/catalog-harvester/internal/models"
)

// sourceFile is the YAML layout accepted by `sources import` and `sources validate`.
//
//	sources:
//	  - name: Open Data Portal
//	    url: https://data.example.org
//	    backend: ckan
//	    active: true
//	    config:
//	      filters:
//	        - key: organization
//	          value: environment
type sourceFile struct {
	Sources []models.HarvestSource `yaml:"sources"`
}

// loadSourceFile parses path, fills defaults and checks every source against
// its backend descriptors. All invalid entries are reported together.
func loadSourceFile(path string, reg *backend.Registry) ([]models.HarvestSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var f sourceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(f.Sources) == 0 {
		return nil, fmt.Errorf("%s: no sources defined", path)
	}

	now := time.Now().UTC()
	seen := make(map[string]bool, len(f.Sources))
	var errs []error
	for i := range f.Sources {
		src := &f.Sources[i]
		if src.Slug == "" {
			src.Slug = models.Slugify(src.Name)
		}
		if src.ID == "" {
			src.ID = uuid.New().String()
		}
		if src.Validation.State == "" {
			src.Validation.State = models.ValidationPending
		}
		src.CreatedAt = now

		label := src.Slug
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}
		switch {
		case src.Name == "":
			errs = append(errs, fmt.Errorf("source %s: name is required", label))
			continue
		case src.URL == "":
			errs = append(errs, fmt.Errorf("source %s: url is required", label))
			continue
		case seen[src.Slug]:
			errs = append(errs, fmt.Errorf("source %s: duplicate slug", label))
			continue
		}
		seen[src.Slug] = true
		if err := reg.ValidateSource(src); err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", label, err))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return f.Sources, nil
}
