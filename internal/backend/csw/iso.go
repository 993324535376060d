package csw

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/raphaelgruber/catalog-harvester/internal/rdf"
)

const geoJSONLiteral = "http://www.opengis.net/ont/geosparql#geoJSONLiteral"

var (
	isoFileIdentifier = compile("gmd:fileIdentifier/gco:CharacterString")
	isoDatasetURI     = compile("gmd:dataSetURI/gco:CharacterString")
	isoDateStamp      = compile("gmd:dateStamp/*")
	isoHierarchy      = compile("gmd:hierarchyLevel/gmd:MD_ScopeCode")
	isoIdentification = compile("gmd:identificationInfo/*")
	isoTitle          = compile("gmd:citation/gmd:CI_Citation/gmd:title/*")
	isoAbstract       = compile("gmd:abstract/*")
	isoKeywords       = compile("gmd:descriptiveKeywords/gmd:MD_Keywords/gmd:keyword/*")
	isoTopics         = compile("gmd:topicCategory/gmd:MD_TopicCategoryCode")
	isoDates          = compile("gmd:citation/gmd:CI_Citation/gmd:date/gmd:CI_Date")
	isoDateValue      = compile("gmd:date/*")
	isoDateType       = compile("gmd:dateType/gmd:CI_DateTypeCode")
	isoConstraints    = compile("gmd:resourceConstraints/*/gmd:useLimitation/* | gmd:resourceConstraints/*/gmd:otherConstraints/*")
	isoBbox           = compile("gmd:extent/gmd:EX_Extent/gmd:geographicElement/gmd:EX_GeographicBoundingBox | srv:extent/gmd:EX_Extent/gmd:geographicElement/gmd:EX_GeographicBoundingBox")
	isoPeriods        = compile("gmd:extent/gmd:EX_Extent/gmd:temporalElement/gmd:EX_TemporalExtent/gmd:extent/*")
	isoFormats        = compile("gmd:distributionInfo/gmd:MD_Distribution/gmd:distributionFormat/gmd:MD_Format/gmd:name/*")
	isoOnlines        = compile("gmd:distributionInfo/gmd:MD_Distribution/gmd:transferOptions/gmd:MD_DigitalTransferOptions/gmd:onLine/gmd:CI_OnlineResource")
	isoLinkage        = compile("gmd:linkage/gmd:URL")
	isoName           = compile("gmd:name/*")
	isoDescription    = compile("gmd:description/*")
	isoProtocol       = compile("gmd:protocol/*")
	isoOperatesOn     = compile("srv:operatesOn")
)

// ISOToDCAT maps one gmd:MD_Metadata record to DCAT triples in g: the file
// identifier becomes dct:identifier, online resources become distributions
// and use constraints become the license. Records describing a service
// (srv:SV_ServiceIdentification) become a dcat:DataService.
func ISOToDCAT(md *xmlquery.Node, g *rdf.Graph) error {
	if md.Data != "MD_Metadata" {
		return fmt.Errorf("expected gmd:MD_Metadata, got %s", md.Data)
	}
	id := text(md, isoFileIdentifier)
	ident := xmlquery.QuerySelector(md, isoIdentification)
	if ident == nil {
		return fmt.Errorf("metadata %q has no identification info", id)
	}

	var node rdf.Term
	if uri := text(md, isoDatasetURI); strings.Contains(uri, "://") {
		node = rdf.IRI(uri)
	} else {
		node = g.NewBlank()
	}
	service := ident.Data == "SV_ServiceIdentification" || codeList(md, isoHierarchy) == "service"
	if service {
		g.Add(node, rdf.RDFType, rdf.IRI(rdf.NsDCAT+"DataService"))
	} else {
		g.Add(node, rdf.RDFType, rdf.IRI(rdf.NsDCAT+"Dataset"))
	}

	literal(g, node, rdf.NsDCT+"identifier", id)
	literal(g, node, rdf.NsDCT+"title", text(ident, isoTitle))
	literal(g, node, rdf.NsDCT+"description", text(ident, isoAbstract))
	for _, kw := range texts(ident, isoKeywords) {
		literal(g, node, rdf.NsDCAT+"keyword", kw)
	}
	for _, topic := range texts(ident, isoTopics) {
		literal(g, node, rdf.NsDCAT+"theme", topic)
	}
	if constraints := texts(ident, isoConstraints); len(constraints) > 0 {
		literal(g, node, rdf.NsDCT+"license", constraints[0])
	}

	addDates(g, node, md, ident)
	addTemporal(g, node, ident)
	addSpatial(g, node, ident)

	formats := texts(md, isoFormats)
	for _, online := range xmlquery.QuerySelectorAll(md, isoOnlines) {
		link := text(online, isoLinkage)
		if link == "" {
			continue
		}
		if service {
			if _, ok := g.Object(node, rdf.NsDCAT+"endpointURL"); !ok {
				g.Add(node, rdf.NsDCAT+"endpointURL", rdf.IRI(link))
			}
			continue
		}
		dist := g.NewBlank()
		g.Add(node, rdf.NsDCAT+"distribution", dist)
		g.Add(dist, rdf.RDFType, rdf.IRI(rdf.NsDCAT+"Distribution"))
		g.Add(dist, rdf.NsDCAT+"accessURL", rdf.IRI(link))
		literal(g, dist, rdf.NsDCT+"title", text(online, isoName))
		literal(g, dist, rdf.NsDCT+"description", text(online, isoDescription))
		if len(formats) == 1 {
			literal(g, dist, rdf.NsDCT+"format", formats[0])
		} else {
			literal(g, dist, rdf.NsDCT+"format", text(online, isoProtocol))
		}
	}

	if service {
		for _, op := range xmlquery.QuerySelectorAll(ident, isoOperatesOn) {
			ref := op.SelectAttr("uuidref")
			if ref == "" {
				continue
			}
			served := g.NewBlank()
			g.Add(node, rdf.NsDCAT+"servesDataset", served)
			literal(g, served, rdf.NsDCT+"identifier", ref)
		}
	}
	return nil
}

func addDates(g *rdf.Graph, node rdf.Term, md, ident *xmlquery.Node) {
	var issued, modified string
	for _, d := range xmlquery.QuerySelectorAll(ident, isoDates) {
		value := text(d, isoDateValue)
		switch codeList(d, isoDateType) {
		case "creation":
			issued = value
		case "publication":
			if issued == "" {
				issued = value
			}
		case "revision":
			modified = value
		}
	}
	if modified == "" {
		modified = text(md, isoDateStamp)
	}
	literal(g, node, rdf.NsDCT+"issued", issued)
	literal(g, node, rdf.NsDCT+"modified", modified)
}

func addTemporal(g *rdf.Graph, node rdf.Term, ident *xmlquery.Node) {
	for _, period := range xmlquery.QuerySelectorAll(ident, isoPeriods) {
		var begin, end string
		for c := range rdf.Elements(period) {
			switch c.Data {
			case "beginPosition":
				begin = strings.TrimSpace(c.InnerText())
			case "endPosition":
				end = strings.TrimSpace(c.InnerText())
			}
		}
		if begin == "" && end == "" {
			continue
		}
		t := g.NewBlank()
		g.Add(node, rdf.NsDCT+"temporal", t)
		literal(g, t, rdf.NsDCAT+"startDate", begin)
		literal(g, t, rdf.NsDCAT+"endDate", end)
		return
	}
}

// addSpatial turns the first bounding box into a GeoJSON polygon.
func addSpatial(g *rdf.Graph, node rdf.Term, ident *xmlquery.Node) {
	box := xmlquery.QuerySelector(ident, isoBbox)
	if box == nil {
		return
	}
	coord := map[string]float64{}
	for c := range rdf.Elements(box) {
		v, err := strconv.ParseFloat(strings.TrimSpace(c.InnerText()), 64)
		if err != nil {
			return
		}
		coord[c.Data] = v
	}
	w, e := coord["westBoundLongitude"], coord["eastBoundLongitude"]
	s, n := coord["southBoundLatitude"], coord["northBoundLatitude"]
	geom, err := json.Marshal(map[string]any{
		"type":        "Polygon",
		"coordinates": [][][2]float64{{{w, s}, {e, s}, {e, n}, {w, n}, {w, s}}},
	})
	if err != nil {
		return
	}
	loc := g.NewBlank()
	g.Add(node, rdf.NsDCT+"spatial", loc)
	g.Add(loc, rdf.NsLOCN+"geometry", rdf.TypedLiteral(string(geom), geoJSONLiteral, ""))
}

func literal(g *rdf.Graph, s rdf.Term, p, v string) {
	if v = strings.TrimSpace(v); v != "" {
		g.Add(s, p, rdf.Literal(v))
	}
}

func text(n *xmlquery.Node, expr *xpath.Expr) string {
	if found := xmlquery.QuerySelector(n, expr); found != nil {
		return strings.TrimSpace(found.InnerText())
	}
	return ""
}

func texts(n *xmlquery.Node, expr *xpath.Expr) []string {
	var out []string
	for _, found := range xmlquery.QuerySelectorAll(n, expr) {
		if t := strings.TrimSpace(found.InnerText()); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// codeList returns the codeListValue of an ISO code element, else its text.
func codeList(n *xmlquery.Node, expr *xpath.Expr) string {
	found := xmlquery.QuerySelector(n, expr)
	if found == nil {
		return ""
	}
	if v := found.SelectAttr("codeListValue"); v != "" {
		return v
	}
	return strings.TrimSpace(found.InnerText())
}
