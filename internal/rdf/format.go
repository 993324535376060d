package rdf

import (
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/piprate/json-gold/ld"
)

// Wire formats.
const (
	FormatJSONLD   = "json-ld"
	FormatXML      = "xml"
	FormatNTriples = "nt"
	FormatTurtle   = "turtle"
	FormatN3       = "n3"
)

var extensionFormats = map[string]string{
	".jsonld": FormatJSONLD,
	".json":   FormatJSONLD,
	".rdf":    FormatXML,
	".xml":    FormatXML,
	".owl":    FormatXML,
	".nt":     FormatNTriples,
	".ttl":    FormatTurtle,
	".n3":     FormatN3,
}

var mimeFormats = map[string]string{
	"application/ld+json":   FormatJSONLD,
	"application/json":      FormatJSONLD,
	"application/rdf+xml":   FormatXML,
	"application/xml":       FormatXML,
	"text/xml":              FormatXML,
	"application/n-triples": FormatNTriples,
	"text/plain":            FormatNTriples,
	"text/turtle":           FormatTurtle,
	"application/x-turtle":  FormatTurtle,
	"text/n3":               FormatN3,
	"text/rdf+n3":           FormatN3,
}

// FormatFromURL guesses the format from the URL path extension.
func FormatFromURL(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	f, ok := extensionFormats[strings.ToLower(path.Ext(u.Path))]
	return f, ok
}

// FormatFromContentType maps a Content-Type header to a format.
func FormatFromContentType(contentType string) (string, bool) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	f, ok := mimeFormats[mt]
	return f, ok
}

// Supported reports whether Parse can handle format.
func Supported(format string) bool {
	switch format {
	case FormatJSONLD, FormatXML, FormatNTriples, FormatTurtle, FormatN3:
		return true
	}
	return false
}

// Parser parses catalog documents. Loader resolves remote JSON-LD
// contexts; without one, documents referencing a remote context fail.
type Parser struct {
	Loader ld.DocumentLoader
}

// Parse parses data in format into g. N3 is read with the Turtle grammar,
// which covers the subset catalogs publish.
func (p Parser) Parse(format string, data []byte, base string, g *Graph) error {
	switch format {
	case FormatJSONLD:
		return ParseJSONLD(data, base, p.Loader, g)
	case FormatXML:
		return ParseRDFXML(data, base, g)
	case FormatNTriples:
		return ParseNTriples(data, g)
	case FormatTurtle, FormatN3:
		return ParseTurtle(data, base, g)
	}
	return fmt.Errorf("format %q is not supported", format)
}

// Parse parses data in format into g without remote context resolution.
func Parse(format string, data []byte, base string, g *Graph) error {
	return Parser{}.Parse(format, data, base, g)
}
