// Package dcat harvests DCAT catalogs published as paginated RDF documents
// (JSON-LD, RDF/XML or N-Triples). The page and node mapping in this package
// is shared with the CSW backends.
package dcat

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/catalog-harvester/internal/backend"
	"github.com/raphaelgruber/catalog-harvester/internal/rdf"
)

// Info describes the DCAT backend.
var Info = backend.Info{
	Name:        "dcat",
	DisplayName: "DCAT",
	VerifySSL:   true,
	ExtraConfigs: []backend.ExtraConfigDef{
		{
			Key:         "remote_url_prefix",
			Label:       "Remote URL prefix",
			Description: "Prefix joined to the remote id to build the link back to the remote catalog",
			Type:        backend.TypeString,
		},
	},
}

// Backend walks a DCAT catalog.
type Backend struct {
	*Harvester
}

// New builds a DCAT backend.
func New(base *backend.Base) backend.Backend {
	return &Backend{Harvester: NewHarvester(base)}
}

func (b *Backend) InnerHarvest(ctx context.Context, p backend.Processor) error {
	format, err := b.detectFormat(ctx)
	if err != nil {
		return err
	}
	return b.Harvest(ctx, p, format, b.walk(ctx, b.Source.URL, format, rdf.NewHydraPaginator(b.Source.URL)))
}

// detectFormat uses the URL extension, then the HEAD content type.
func (b *Backend) detectFormat(ctx context.Context) (string, error) {
	format, ok := rdf.FormatFromURL(b.Source.URL)
	if !ok {
		header, err := b.HTTP().Head(ctx, b.Source.URL)
		if err != nil {
			return "", fmt.Errorf("detect format: %w", err)
		}
		ct := header.Get("Content-Type")
		if format, ok = rdf.FormatFromContentType(ct); !ok {
			return "", fmt.Errorf("%w: content type %q", backend.ErrUnsupportedFormat, ct)
		}
	}
	if !rdf.Supported(format) {
		return "", fmt.Errorf("%w: %s", backend.ErrUnsupportedFormat, format)
	}
	return format, nil
}

// fetcher loads remote JSON-LD contexts with the backend client.
func (b *Backend) fetcher(ctx context.Context) func(string) ([]byte, error) {
	return func(url string) ([]byte, error) {
		resp, err := b.HTTP().Get(ctx, url)
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	}
}

// walk fetches pages lazily, following the paginator until it reports no
// next page.
func (b *Backend) walk(ctx context.Context, first, format string, paginator rdf.Paginator) Pages {
	return func(yield func(*Page, error) bool) {
		parser := rdf.Parser{Loader: rdf.ContextLoader(b.fetcher(ctx))}
		next := first
		for {
			resp, err := b.HTTP().Get(ctx, next)
			if err != nil {
				yield(nil, err)
				return
			}
			g := rdf.NewGraph()
			if err := parser.Parse(format, resp.Body, next, g); err != nil {
				yield(nil, fmt.Errorf("parse %s: %w", next, err))
				return
			}
			if !yield(&Page{URL: next, Graph: g}, nil) {
				return
			}
			url, ok := paginator.NextPage(g)
			if !ok {
				return
			}
			next = url
		}
	}
}
