package maaf

import (
	"strings"
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/raphaelgruber/catalog-harvester/internal/validate"
)

var resourceSchema = validate.Object(
	validate.Required("url", validate.URL()),
	validate.Optional("title", validate.String()),
	validate.Optional("description", validate.String()),
	validate.Optional("format", validate.String()),
)

var documentSchema = validate.Object(
	validate.Required("metadata", validate.Object(
		validate.Required("id", validate.String()),
		validate.Required("title", validate.String()),
		validate.Optional("description", validate.String()),
		validate.Optional("frequency", validate.String()),
		validate.Optional("license", validate.String()),
		validate.Optional("contact", validate.String()),
		validate.Optional("created", validate.Date()),
		validate.Optional("modified", validate.Date()),
		validate.Optional("keywords", validate.List(validate.String())),
		validate.Optional("ressources", validate.List(resourceSchema)),
	)),
)

// Wrapper elements whose children form a list.
var listElements = map[string]bool{
	"keywords":   true,
	"ressources": true,
}

// documentMap turns an XML document into nested maps keyed by element
// name. Leaf elements become their trimmed text and the children of list
// wrappers become a list, whatever their count.
func documentMap(doc *xmlquery.Node) map[string]any {
	out := map[string]any{}
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			out[c.Data] = elementValue(c)
		}
	}
	return out
}

func elementValue(n *xmlquery.Node) any {
	if listElements[n.Data] {
		items := []any{}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == xmlquery.ElementNode {
				items = append(items, elementValue(c))
			}
		}
		return items
	}

	fields := map[string]any{}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode {
			continue
		}
		v := elementValue(c)
		switch prev := fields[c.Data].(type) {
		case nil:
			fields[c.Data] = v
		case []any:
			fields[c.Data] = append(prev, v)
		default:
			fields[c.Data] = []any{prev, v}
		}
	}
	if len(fields) == 0 {
		text := strings.TrimSpace(n.InnerText())
		if text == "" {
			return nil
		}
		return text
	}
	return fields
}

type metadata struct {
	ID          string
	Title       string
	Description string
	Frequency   string
	License     string
	Contact     string
	Created     *time.Time
	Modified    *time.Time
	Keywords    []string
	Resources   []resource
}

type resource struct {
	URL         string
	Title       string
	Description string
	Format      string
}

// decodeMetadata reads a payload validated by documentSchema.
func decodeMetadata(data map[string]any) *metadata {
	m, _ := data["metadata"].(map[string]any)
	md := &metadata{
		ID:          str(m["id"]),
		Title:       str(m["title"]),
		Description: str(m["description"]),
		Frequency:   str(m["frequency"]),
		License:     str(m["license"]),
		Contact:     str(m["contact"]),
		Created:     date(m["created"]),
		Modified:    date(m["modified"]),
	}
	kws, _ := m["keywords"].([]any)
	for _, kw := range kws {
		if s := str(kw); s != "" {
			md.Keywords = append(md.Keywords, s)
		}
	}
	res, _ := m["ressources"].([]any)
	for _, r := range res {
		rm, ok := r.(map[string]any)
		if !ok {
			continue
		}
		md.Resources = append(md.Resources, resource{
			URL:         str(rm["url"]),
			Title:       str(rm["title"]),
			Description: str(rm["description"]),
			Format:      str(rm["format"]),
		})
	}
	return md
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
