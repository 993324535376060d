// Package csw harvests OGC catalogue services (CSW 2.0.2) through paged
// GetRecords requests. csw-dcat asks the service for DCAT RDF/XML records;
// csw-iso-19139 asks for ISO 19139 metadata and maps it to DCAT triples
// before the shared DCAT passes run.
package csw

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/raphaelgruber/catalog-harvester/internal/backend"
	"github.com/raphaelgruber/catalog-harvester/internal/backend/dcat"
	"github.com/raphaelgruber/catalog-harvester/internal/rdf"
)

// Output schemas requested from the service.
const (
	SchemaDCAT = "http://www.w3.org/ns/dcat#"
	SchemaISO  = "http://www.isotc211.org/2005/gmd"
)

// Job data formats recorded for each flavour.
const (
	FormatDCAT = "csw-dcat"
	FormatISO  = "iso-19139"
)

const defaultPageSize = 25

// ErrException is returned when the service answers with an ows:ExceptionReport.
var ErrException = errors.New("csw exception")

var extraConfigs = []backend.ExtraConfigDef{
	{Key: "page_size", Label: "Page size", Description: "maxRecords of each GetRecords request", Type: backend.TypeInteger, Default: defaultPageSize},
	{Key: "remote_url_prefix", Label: "Remote URL prefix", Description: "Prefix joined to the remote id to build the link back to the remote catalog", Type: backend.TypeString},
}

// DCATInfo describes the CSW backend returning DCAT records.
var DCATInfo = backend.Info{
	Name:         "csw-dcat",
	DisplayName:  "CSW-DCAT",
	VerifySSL:    true,
	ExtraConfigs: extraConfigs,
}

// ISOInfo describes the CSW backend returning ISO 19139 records.
var ISOInfo = backend.Info{
	Name:         "csw-iso-19139",
	DisplayName:  "CSW-ISO-19139",
	VerifySSL:    true,
	ExtraConfigs: extraConfigs,
}

// transformFunc adds the triples of one returned record to g.
type transformFunc func(record *xmlquery.Node, base string, g *rdf.Graph) error

// Backend walks a CSW endpoint.
type Backend struct {
	*dcat.Harvester
	schema    string
	typeNames string
	format    string
	transform transformFunc
}

// NewDCAT builds a csw-dcat backend.
func NewDCAT(base *backend.Base) backend.Backend {
	return &Backend{
		Harvester: dcat.NewHarvester(base),
		schema:    SchemaDCAT,
		typeNames: "csw:Record",
		format:    FormatDCAT,
		transform: rdf.ParseRDFXMLNode,
	}
}

// NewISO builds a csw-iso-19139 backend.
func NewISO(base *backend.Base) backend.Backend {
	return &Backend{
		Harvester: dcat.NewHarvester(base),
		schema:    SchemaISO,
		typeNames: "gmd:MD_Metadata",
		format:    FormatISO,
		transform: func(record *xmlquery.Node, _ string, g *rdf.Graph) error {
			return ISOToDCAT(record, g)
		},
	}
}

func (b *Backend) InnerHarvest(ctx context.Context, p backend.Processor) error {
	return b.Harvest(ctx, p, b.format, b.walk(ctx))
}

// walk issues GetRecords requests until the cursor reports the end.
func (b *Backend) walk(ctx context.Context) dcat.Pages {
	pageSize := b.ExtraInt("page_size", defaultPageSize)
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return func(yield func(*dcat.Page, error) bool) {
		cur := newCursor(b.MaxItems)
		for {
			page, results, err := b.getRecords(ctx, cur.start, pageSize)
			if err != nil {
				yield(nil, err)
				return
			}
			b.Logger(ctx).Debug("csw page",
				"start", cur.start, "matched", results.Matched,
				"returned", results.Returned, "next", results.Next)
			if !yield(page, nil) {
				return
			}
			if !cur.advance(results) {
				return
			}
		}
	}
}

const getRecordsTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<csw:GetRecords xmlns:csw="http://www.opengis.net/cat/csw/2.0.2"
    xmlns:gmd="http://www.isotc211.org/2005/gmd"
    service="CSW" version="2.0.2" resultType="results"
    startPosition="%d" maxRecords="%d" outputSchema="%s">
  <csw:Query typeNames="%s">
    <csw:ElementSetName>full</csw:ElementSetName>
  </csw:Query>
</csw:GetRecords>`

func (b *Backend) getRecords(ctx context.Context, start, pageSize int) (*dcat.Page, searchResults, error) {
	body := fmt.Sprintf(getRecordsTemplate, start, pageSize, b.schema, b.typeNames)
	resp, err := b.HTTP().Post(ctx, b.Source.URL, "application/xml", []byte(body))
	if err != nil {
		return nil, searchResults{}, fmt.Errorf("get records at %d: %w", start, err)
	}
	doc, err := xmlquery.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, searchResults{}, fmt.Errorf("parse records at %d: %w", start, err)
	}
	if report := xmlquery.FindOne(doc, "//*[local-name()='ExceptionReport']"); report != nil {
		return nil, searchResults{}, exception(report)
	}
	sr := xmlquery.QuerySelector(doc, searchResultsExpr)
	if sr == nil {
		return nil, searchResults{}, fmt.Errorf("records at %d: no csw:SearchResults in response", start)
	}
	results := searchResults{
		Matched:  intAttr(sr, "numberOfRecordsMatched"),
		Returned: intAttr(sr, "numberOfRecordsReturned"),
		Next:     intAttr(sr, "nextRecord"),
	}

	g := rdf.NewGraph()
	for record := range rdf.Elements(sr) {
		if err := b.transform(record, b.Source.URL, g); err != nil {
			return nil, results, fmt.Errorf("record %d: %w", start, err)
		}
	}
	return &dcat.Page{URL: fmt.Sprintf("%s#startPosition=%d", b.Source.URL, start), Graph: g}, results, nil
}

var searchResultsExpr = compile("//csw:SearchResults")

func exception(report *xmlquery.Node) error {
	var texts []string
	for _, n := range xmlquery.Find(report, "//*[local-name()='ExceptionText']") {
		if t := strings.TrimSpace(n.InnerText()); t != "" {
			texts = append(texts, t)
		}
	}
	code := ""
	if ex := xmlquery.FindOne(report, "//*[local-name()='Exception']"); ex != nil {
		code = ex.SelectAttr("exceptionCode")
	}
	return fmt.Errorf("%w: %s %s", ErrException, code, strings.Join(texts, "; "))
}

func intAttr(n *xmlquery.Node, name string) int {
	v, _ := strconv.Atoi(strings.TrimSpace(n.SelectAttr(name)))
	return v
}

// Namespaces used by the XPath expressions of this package.
var namespaces = map[string]string{
	"csw":   "http://www.opengis.net/cat/csw/2.0.2",
	"gmd":   SchemaISO,
	"gco":   "http://www.isotc211.org/2005/gco",
	"gmx":   "http://www.isotc211.org/2005/gmx",
	"srv":   "http://www.isotc211.org/2005/srv",
	"xlink": "http://www.w3.org/1999/xlink",
}

func compile(expr string) *xpath.Expr {
	e, err := xpath.CompileWithNS(expr, namespaces)
	if err != nil {
		panic(fmt.Sprintf("csw: compile %q: %v", expr, err))
	}
	return e
}
