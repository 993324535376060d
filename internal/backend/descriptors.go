package backend

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/catalog-harvester/internal/models"
	"github.com/raphaelgruber/catalog-harvester/internal/validate"
)

// ValueType is the closed set of types a descriptor value can take.
type ValueType string

const (
	TypeString   ValueType = "string"
	TypeInteger  ValueType = "integer"
	TypeBoolean  ValueType = "boolean"
	TypeUUID     ValueType = "uuid"
	TypeDate     ValueType = "date"
	TypeDatetime ValueType = "datetime"
)

// Check returns an error when v cannot be read as t.
func (t ValueType) Check(v any) error {
	switch t {
	case TypeString:
		if _, ok := v.(string); ok {
			return nil
		}
	case TypeInteger:
		switch n := v.(type) {
		case int, int64:
			return nil
		case float64:
			if n == math.Trunc(n) {
				return nil
			}
		case string:
			if _, err := strconv.Atoi(n); err == nil {
				return nil
			}
		}
	case TypeBoolean:
		if _, ok := v.(bool); ok {
			return nil
		}
	case TypeUUID:
		if s, ok := v.(string); ok {
			if _, err := uuid.Parse(s); err == nil {
				return nil
			}
		}
	case TypeDate:
		switch d := v.(type) {
		case time.Time:
			return nil
		case string:
			if _, err := time.Parse(time.DateOnly, d); err == nil {
				return nil
			}
		}
	case TypeDatetime:
		switch d := v.(type) {
		case time.Time:
			return nil
		case string:
			if _, err := time.Parse(time.RFC3339, d); err == nil {
				return nil
			}
		}
	default:
		return fmt.Errorf("unknown value type %q", t)
	}
	return fmt.Errorf("expected %s value", t)
}

// FilterDef declares a filter a source may configure.
type FilterDef struct {
	Key         string    `json:"key"`
	Label       string    `json:"label"`
	Description string    `json:"description,omitempty"`
	Type        ValueType `json:"type"`
}

// FeatureDef declares a boolean toggle.
type FeatureDef struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Default     bool   `json:"default"`
}

// ExtraConfigDef declares a free-form typed setting.
type ExtraConfigDef struct {
	Key         string    `json:"key"`
	Label       string    `json:"label"`
	Description string    `json:"description,omitempty"`
	Type        ValueType `json:"type"`
	Default     any       `json:"default,omitempty"`
}

// Info describes a backend to configuration UIs.
type Info struct {
	Name         string           `json:"name"`
	DisplayName  string           `json:"display_name"`
	VerifySSL    bool             `json:"verify_ssl"`
	Filters      []FilterDef      `json:"filters"`
	Features     []FeatureDef     `json:"features"`
	ExtraConfigs []ExtraConfigDef `json:"extra_configs"`
}

func (i Info) filter(key string) (FilterDef, bool) {
	for _, f := range i.Filters {
		if f.Key == key {
			return f, true
		}
	}
	return FilterDef{}, false
}

func (i Info) hasFeature(key string) bool {
	for _, f := range i.Features {
		if f.Key == key {
			return true
		}
	}
	return false
}

func (i Info) extraConfig(key string) (ExtraConfigDef, bool) {
	for _, e := range i.ExtraConfigs {
		if e.Key == key {
			return e, true
		}
	}
	return ExtraConfigDef{}, false
}

// ValidateSourceConfig checks that cfg only uses what info declares, with the declared types.
func ValidateSourceConfig(info Info, cfg models.SourceConfig) error {
	errs := &validate.Error{}

	for i, f := range cfg.Filters {
		path := validate.Index("filters", i)
		def, ok := info.filter(f.Key)
		if !ok {
			errs.Add(path+".key", validate.CodeInvalid, fmt.Sprintf("unknown filter for backend %s", info.Name), f.Key)
			continue
		}
		if f.Type != "" && f.Type != models.FilterInclude && f.Type != models.FilterExclude {
			errs.Add(path+".type", validate.CodeInvalid, "expected one of include, exclude", string(f.Type))
		}
		if err := def.Type.Check(f.Value); err != nil {
			errs.Add(path+".value", validate.CodeType, err.Error(), f.Value)
		}
	}

	for _, key := range sortedKeys(cfg.Features) {
		if !info.hasFeature(key) {
			errs.Add(validate.Join("features", key), validate.CodeInvalid, fmt.Sprintf("unknown feature for backend %s", info.Name), nil)
		}
	}

	for _, key := range sortedKeys(cfg.ExtraConfigs) {
		v := cfg.ExtraConfigs[key]
		path := validate.Join("extra_configs", key)
		def, ok := info.extraConfig(key)
		if !ok {
			errs.Add(path, validate.CodeInvalid, fmt.Sprintf("unknown extra config for backend %s", info.Name), nil)
			continue
		}
		if v == nil {
			continue
		}
		if err := def.Type.Check(v); err != nil {
			errs.Add(path, validate.CodeType, err.Error(), v)
		}
	}

	return errs.OrNil()
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
