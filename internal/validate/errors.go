// Package validate checks raw remote payloads against declared schemas and
// reports every violation with its field path.
package validate

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Violation codes.
const (
	CodeRequired = "required"
	CodeType     = "type"
	CodeInvalid  = "invalid"
)

const maxValueLen = 80

// FieldError is a single violation at a dot-separated path.
type FieldError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

func (f FieldError) String() string {
	path := f.Path
	if path == "" {
		path = "$"
	}
	s := fmt.Sprintf("[%s] %s", path, f.Message)
	if v, ok := printable(f.Value); ok {
		s += " (got " + v + ")"
	}
	return s
}

// Error aggregates all violations found in one payload.
type Error struct {
	Fields []FieldError
}

// Add records a violation.
func (e *Error) Add(path, code, message string, value any) {
	e.Fields = append(e.Fields, FieldError{Path: path, Code: code, Message: message, Value: value})
}

// Has reports whether a violation with the given path and code was recorded.
func (e *Error) Has(path, code string) bool {
	for _, f := range e.Fields {
		if f.Path == path && f.Code == code {
			return true
		}
	}
	return false
}

// OrNil returns nil when no violation was recorded, e otherwise.
func (e *Error) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *Error) Error() string {
	if len(e.Fields) == 1 {
		return e.Fields[0].String()
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return fmt.Sprintf("%d validation errors: %s", len(e.Fields), strings.Join(parts, "; "))
}

// Join appends a key to a path.
func Join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// Index appends a list index to a path.
func Index(path string, i int) string {
	return Join(path, strconv.Itoa(i))
}

// printable renders scalar values only; nested structures are left out of messages.
func printable(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		if utf8.RuneCountInString(val) > maxValueLen {
			val = string([]rune(val)[:maxValueLen]) + "..."
		}
		return strconv.Quote(val), true
	case bool, int, int32, int64, float32, float64:
		return fmt.Sprint(val), true
	}
	return "", false
}
