package ckan

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/raphaelgruber/catalog-harvester/internal/validate"
)

var resourceSchema = validate.Object(
	validate.Required("id", validate.String()),
	validate.Required("url", validate.URL()),
	validate.Optional("name", validate.String()),
	validate.Optional("description", validate.String()),
	validate.Optional("format", validate.String()),
	validate.Optional("mimetype", validate.String()),
	validate.Optional("size", validate.Any()),
	validate.Optional("hash", validate.String()),
	validate.Optional("created", validate.Date()),
	validate.Optional("last_modified", validate.Date()),
)

var packageSchema = validate.Object(
	validate.Required("id", validate.String()),
	validate.Required("name", validate.String()),
	validate.Required("title", validate.String()),
	validate.Optional("notes", validate.String()),
	validate.Optional("license_id", validate.String()),
	validate.Optional("private", validate.Bool()),
	validate.Optional("state", validate.String()),
	validate.Optional("metadata_created", validate.Date()),
	validate.Optional("metadata_modified", validate.Date()),
	validate.Optional("tags", validate.List(validate.Object(
		validate.Required("name", validate.String()),
	))),
	validate.Optional("extras", validate.List(validate.Object(
		validate.Required("key", validate.String()),
		validate.Optional("value", validate.Any()),
	))),
	validate.Optional("resources", validate.List(resourceSchema)),
)

// decodePackage converts a validated package payload. Type assertions
// cannot fail on values produced by packageSchema.
func decodePackage(data map[string]any) *ckanPackage {
	pkg := &ckanPackage{
		ID:        str(data["id"]),
		Name:      str(data["name"]),
		Title:     str(data["title"]),
		Notes:     str(data["notes"]),
		LicenseID: str(data["license_id"]),
		State:     str(data["state"]),
		Created:   date(data["metadata_created"]),
		Modified:  date(data["metadata_modified"]),
		Extras:    map[string]string{},
	}
	pkg.Private, _ = data["private"].(bool)

	for _, t := range list(data["tags"]) {
		if name := str(t["name"]); name != "" {
			pkg.Tags = append(pkg.Tags, name)
		}
	}
	for _, e := range list(data["extras"]) {
		if v := e["value"]; v != nil {
			pkg.Extras[str(e["key"])] = fmt.Sprint(v)
		}
	}
	for _, r := range list(data["resources"]) {
		res := ckanResource{
			ID:          str(r["id"]),
			Name:        str(r["name"]),
			Description: str(r["description"]),
			URL:         str(r["url"]),
			Format:      str(r["format"]),
			Mime:        str(r["mimetype"]),
			Hash:        str(r["hash"]),
			Created:     date(r["created"]),
			Modified:    date(r["last_modified"]),
		}
		res.Size = size(r["size"])
		pkg.Resources = append(pkg.Resources, res)
	}
	return pkg
}

// size is lenient: CKAN instances report sizes as numbers, numeric strings or "".
func size(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case string:
		i, _ := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i
	}
	return 0
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func date(v any) *time.Time {
	t, ok := v.(time.Time)
	if !ok {
		return nil
	}
	return &t
}

func list(v any) []map[string]any {
	items, _ := v.([]any)
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
