package backend

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ParseDate parses the heterogeneous date formats remote catalogs publish.
// It returns nil for empty or unparseable input.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
