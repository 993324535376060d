package validate

import (
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var packageSchema = Object(
	Required("id", String()),
	Required("title", String()),
	Optional("num_resources", Int()),
	Optional("private", Bool()),
	Optional("metadata_modified", Date()),
	Required("resources", List(Object(
		Required("url", URL()),
		Optional("format", String()),
	))),
	Optional("organization", Object(
		Required("name", String()),
	)),
)

func TestValidateNestedRequired(t *testing.T) {
	payload := map[string]any{
		"id":           "abc",
		"title":        "Dataset",
		"resources":    []any{map[string]any{"url": "https://example.org/a.csv"}},
		"organization": map[string]any{"title": "No name"},
	}

	_, err := Validate(packageSchema, payload)
	require.Error(t, err)

	var verr *Error
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "organization.name", verr.Fields[0].Path)
	assert.Equal(t, CodeRequired, verr.Fields[0].Code)
	assert.Equal(t, "[organization.name] required field is missing", err.Error())
}

func TestValidateAggregatesErrors(t *testing.T) {
	payload := map[string]any{
		"id":            "abc",
		"num_resources": "many",
		"resources": []any{
			map[string]any{"url": "https://example.org/a.csv"},
			map[string]any{"format": "csv"},
			map[string]any{"url": "not a url"},
		},
	}

	_, err := Validate(packageSchema, payload)
	require.Error(t, err)

	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Fields, 4)
	assert.True(t, verr.Has("title", CodeRequired))
	assert.True(t, verr.Has("num_resources", CodeType))
	assert.True(t, verr.Has("resources.1.url", CodeRequired))
	assert.True(t, verr.Has("resources.2.url", CodeInvalid))

	msg := err.Error()
	assert.Contains(t, msg, "4 validation errors")
	assert.Contains(t, msg, "[resources.1.url] required field is missing")
	assert.Contains(t, msg, `[num_resources] expected an integer (got "many")`)
	assert.Contains(t, msg, `[resources.2.url] expected an absolute URL (got "not a url")`)
}

func TestValidateCoercion(t *testing.T) {
	payload := map[string]any{
		"id":                float64(42),
		"title":             "Dataset",
		"num_resources":     float64(1),
		"private":           "false",
		"metadata_modified": "2024-03-05T10:11:12.123456",
		"resources":         []any{map[string]any{"url": " https://example.org/a.csv "}},
		"extra":             "kept",
	}

	out, err := ValidateObject(packageSchema, payload)
	require.NoError(t, err)
	assert.Equal(t, "42", out["id"])
	assert.Equal(t, 1, out["num_resources"])
	assert.Equal(t, false, out["private"])
	assert.Equal(t, "kept", out["extra"])

	modified, ok := out["metadata_modified"].(time.Time)
	require.True(t, ok)
	assert.Equal(t, 2024, modified.Year())
	assert.Equal(t, time.March, modified.Month())

	res := out["resources"].([]any)[0].(map[string]any)
	assert.Equal(t, "https://example.org/a.csv", res["url"])
}

func TestValidateRootType(t *testing.T) {
	_, err := Validate(packageSchema, []any{"not", "an", "object"})
	require.Error(t, err)
	assert.Equal(t, "[$] expected an object", err.Error())
}

func TestOneOfAndNonEmpty(t *testing.T) {
	schema := Object(
		Required("state", OneOf("active", "deleted")),
		Required("tags", NonEmpty(List(String()))),
	)

	_, err := Validate(schema, map[string]any{"state": "draft", "tags": []any{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `[state] expected one of active, deleted (got "draft")`)
	assert.Contains(t, err.Error(), "[tags] expected at least one element")

	_, err = Validate(schema, map[string]any{"state": "active", "tags": []any{"a"}})
	assert.NoError(t, err)
}

func TestLongValuesAreTruncated(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	errs := &Error{}
	errs.Add("field", CodeInvalid, "bad", string(long))
	errs.Add("nested", CodeType, "expected a string", map[string]any{"a": 1})

	msg := errs.Error()
	assert.Contains(t, msg, "...\")")
	assert.True(t, strings.HasSuffix(msg, "[nested] expected a string"))
	assert.NotContains(t, msg, "map[")
}

func TestTruncationKeepsRunesWhole(t *testing.T) {
	errs := &Error{}
	errs.Add("title", CodeInvalid, "bad", strings.Repeat("é", maxValueLen+20))

	msg := errs.Error()
	assert.True(t, utf8.ValidString(msg))
	assert.NotContains(t, msg, `\x`)
	assert.Contains(t, msg, strconv.Quote(strings.Repeat("é", maxValueLen)+"..."))
}
