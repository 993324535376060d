package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Rule checks the value found at path, records violations into errs and
// returns the value coerced to its canonical Go type.
type Rule func(path string, v any, errs *Error) any

// Field declares one key of an object.
type Field struct {
	Key      string
	Required bool
	Rule     Rule
}

// Required declares a mandatory key.
func Required(key string, rule Rule) Field {
	return Field{Key: key, Required: true, Rule: rule}
}

// Optional declares a key that may be absent or null.
func Optional(key string, rule Rule) Field {
	return Field{Key: key, Rule: rule}
}

// Validate runs schema over v and returns the coerced value or an aggregated *Error.
func Validate(schema Rule, v any) (any, error) {
	errs := &Error{}
	out := schema("", v, errs)
	if err := errs.OrNil(); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateObject is Validate for object schemas.
func ValidateObject(schema Rule, v any) (map[string]any, error) {
	out, err := Validate(schema, v)
	if err != nil {
		return nil, err
	}
	m, _ := out.(map[string]any)
	return m, nil
}

// Object validates a map. Undeclared keys are passed through unchanged.
func Object(fields ...Field) Rule {
	return func(path string, v any, errs *Error) any {
		m, ok := v.(map[string]any)
		if !ok {
			errs.Add(path, CodeType, "expected an object", v)
			return nil
		}
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		for _, f := range fields {
			p := Join(path, f.Key)
			val, present := m[f.Key]
			if !present || val == nil {
				if f.Required {
					errs.Add(p, CodeRequired, "required field is missing", nil)
				}
				continue
			}
			if f.Rule != nil {
				out[f.Key] = f.Rule(p, val, errs)
			}
		}
		return out
	}
}

// List validates every element of an array with item.
func List(item Rule) Rule {
	return func(path string, v any, errs *Error) any {
		items, ok := v.([]any)
		if !ok {
			errs.Add(path, CodeType, "expected a list", v)
			return nil
		}
		out := make([]any, len(items))
		for i, it := range items {
			if item == nil {
				out[i] = it
				continue
			}
			out[i] = item(Index(path, i), it, errs)
		}
		return out
	}
}

// NonEmpty wraps a list rule and rejects empty lists.
func NonEmpty(rule Rule) Rule {
	return func(path string, v any, errs *Error) any {
		out := rule(path, v, errs)
		if l, ok := out.([]any); ok && len(l) == 0 {
			errs.Add(path, CodeInvalid, "expected at least one element", nil)
		}
		return out
	}
}

// Any accepts every value.
func Any() Rule {
	return func(_ string, v any, _ *Error) any { return v }
}

// String accepts strings. Numbers are rendered as text since remote
// catalogs are inconsistent about identifier types.
func String() Rule {
	return func(path string, v any, errs *Error) any {
		switch val := v.(type) {
		case string:
			return val
		case float64:
			return strconv.FormatFloat(val, 'f', -1, 64)
		case int:
			return strconv.Itoa(val)
		case json.Number:
			return val.String()
		}
		errs.Add(path, CodeType, "expected a string", v)
		return nil
	}
}

// Int accepts integral numbers and numeric strings.
func Int() Rule {
	return func(path string, v any, errs *Error) any {
		switch val := v.(type) {
		case int:
			return val
		case int64:
			return int(val)
		case float64:
			if val == math.Trunc(val) {
				return int(val)
			}
		case json.Number:
			if n, err := val.Int64(); err == nil {
				return int(n)
			}
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
				return n
			}
		}
		errs.Add(path, CodeType, "expected an integer", v)
		return nil
	}
}

// Bool accepts booleans and their common textual forms.
func Bool() Rule {
	return func(path string, v any, errs *Error) any {
		switch val := v.(type) {
		case bool:
			return val
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
				return b
			}
		}
		errs.Add(path, CodeType, "expected a boolean", v)
		return nil
	}
}

// URL accepts absolute http(s) URLs.
func URL() Rule {
	return func(path string, v any, errs *Error) any {
		s, ok := v.(string)
		if !ok {
			errs.Add(path, CodeType, "expected a string", v)
			return nil
		}
		s = strings.TrimSpace(s)
		u, err := url.Parse(s)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			errs.Add(path, CodeInvalid, "expected an absolute URL", s)
			return nil
		}
		return s
	}
}

// Date accepts any textual date dateparse understands and returns a UTC time.Time.
func Date() Rule {
	return func(path string, v any, errs *Error) any {
		switch val := v.(type) {
		case time.Time:
			return val.UTC()
		case string:
			t, err := dateparse.ParseAny(strings.TrimSpace(val))
			if err == nil {
				return t.UTC()
			}
		}
		errs.Add(path, CodeInvalid, "expected a date", v)
		return nil
	}
}

// OneOf restricts a string to a closed set.
func OneOf(values ...string) Rule {
	return func(path string, v any, errs *Error) any {
		s, ok := v.(string)
		if !ok {
			errs.Add(path, CodeType, "expected a string", v)
			return nil
		}
		for _, allowed := range values {
			if s == allowed {
				return s
			}
		}
		errs.Add(path, CodeInvalid, fmt.Sprintf("expected one of %s", strings.Join(values, ", ")), s)
		return nil
	}
}
