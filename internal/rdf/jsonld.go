package rdf

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/piprate/json-gold/ld"
)

// ErrRemoteContext is returned when a JSON-LD document references a remote
// context and the parser has no loader to resolve it.
var ErrRemoteContext = errors.New("remote json-ld context cannot be resolved")

// ParseJSONLD expands a JSON-LD document and adds its triples to g. Remote
// contexts are resolved through loader; a nil loader rejects them.
// Named graphs are flattened into g.
func ParseJSONLD(data []byte, base string, loader ld.DocumentLoader, g *Graph) error {
	doc, err := ld.DocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse json-ld: %w", err)
	}
	if loader == nil {
		loader = noRemoteContexts{}
	}
	opts := ld.NewJsonLdOptions(base)
	opts.DocumentLoader = loader

	out, err := ld.NewJsonLdProcessor().ToRDF(doc, opts)
	if err != nil {
		return fmt.Errorf("expand json-ld: %w", err)
	}
	dataset, ok := out.(*ld.RDFDataset)
	if !ok {
		return fmt.Errorf("expand json-ld: unexpected result %T", out)
	}

	// The default graph first, then named graphs in a stable order.
	names := slices.SortedFunc(maps.Keys(dataset.Graphs), func(a, b string) int {
		switch {
		case a == b:
			return 0
		case a == "@default":
			return -1
		case b == "@default":
			return 1
		}
		return strings.Compare(a, b)
	})
	for _, name := range names {
		for _, q := range dataset.Graphs[name] {
			s, sok := fromLD(q.Subject)
			p, pok := fromLD(q.Predicate)
			o, ook := fromLD(q.Object)
			if !sok || !pok || !ook || !p.IsIRI() {
				continue
			}
			g.Add(s, p.Value, o)
		}
	}
	return nil
}

func fromLD(n ld.Node) (Term, bool) {
	switch v := n.(type) {
	case *ld.IRI:
		return IRI(Expand(v.Value)), true
	case *ld.BlankNode:
		return Blank(strings.TrimPrefix(v.Attribute, "_:")), true
	case *ld.Literal:
		return TypedLiteral(v.Value, plainDatatype(v.Datatype), strings.ToLower(v.Language)), true
	}
	return Term{}, false
}

// plainDatatype drops the implicit datatypes of simple and language-tagged
// literals.
func plainDatatype(dt string) string {
	switch dt {
	case NsXSD + "string", NsRDF + "langString":
		return ""
	}
	return dt
}

// ContextLoader resolves remote JSON-LD contexts with fetch. Each URL is
// fetched once for the lifetime of the loader.
func ContextLoader(fetch func(url string) ([]byte, error)) ld.DocumentLoader {
	return ld.NewCachingDocumentLoader(fetchLoader(fetch))
}

type fetchLoader func(url string) ([]byte, error)

func (f fetchLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	data, err := f(u)
	if err != nil {
		return nil, fmt.Errorf("load context %s: %w", u, err)
	}
	doc, err := ld.DocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode context %s: %w", u, err)
	}
	return &ld.RemoteDocument{DocumentURL: u, Document: doc}, nil
}

type noRemoteContexts struct{}

func (noRemoteContexts) LoadDocument(u string) (*ld.RemoteDocument, error) {
	return nil, fmt.Errorf("%w: %s", ErrRemoteContext, u)
}
