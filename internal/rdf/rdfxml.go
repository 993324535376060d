package rdf

import (
	"bytes"
	"fmt"
	"iter"
	"strings"

	"github.com/antchfx/xmlquery"
)

const (
	nsXML   = "http://www.w3.org/XML/1998/namespace"
	nsXMLNS = "http://www.w3.org/2000/xmlns/"
)

// ParseRDFXML parses an RDF/XML document into g. base resolves rdf:ID.
func ParseRDFXML(data []byte, base string, g *Graph) error {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse rdf/xml: %w", err)
	}
	root := FirstElement(doc)
	if root == nil {
		return fmt.Errorf("parse rdf/xml: empty document")
	}
	return ParseRDFXMLNode(root, base, g)
}

// ParseRDFXMLNode parses an rdf:RDF element, or a lone node element, into g.
func ParseRDFXMLNode(n *xmlquery.Node, base string, g *Graph) error {
	p := &rdfxmlParser{g: g, base: base}
	if isRDF(n, "RDF") {
		for c := range Elements(n) {
			p.node(c)
		}
		return nil
	}
	p.node(n)
	return nil
}

type rdfxmlParser struct {
	g    *Graph
	base string
}

// node handles a node element and returns its subject.
func (p *rdfxmlParser) node(n *xmlquery.Node) Term {
	var subj Term
	switch {
	case Attr(n, NsRDF, "about") != "":
		subj = IRI(Attr(n, NsRDF, "about"))
	case Attr(n, NsRDF, "nodeID") != "":
		subj = Blank(Attr(n, NsRDF, "nodeID"))
	case Attr(n, NsRDF, "ID") != "":
		subj = IRI(p.base + "#" + Attr(n, NsRDF, "ID"))
	default:
		subj = p.g.NewBlank()
	}

	if !isRDF(n, "Description") {
		p.g.Add(subj, RDFType, IRI(ElementIRI(n)))
	}

	for _, a := range n.Attr {
		ns := attrNS(a)
		if ns == "" || ns == NsRDF || ns == nsXML || ns == nsXMLNS || a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		p.g.Add(subj, ns+a.Name.Local, Literal(a.Value))
	}

	lang := Attr(n, nsXML, "lang")
	for c := range Elements(n) {
		p.property(subj, c, lang)
	}
	return subj
}

func (p *rdfxmlParser) property(subj Term, n *xmlquery.Node, lang string) {
	pred := ElementIRI(n)
	if l := Attr(n, nsXML, "lang"); l != "" {
		lang = l
	}

	if res := Attr(n, NsRDF, "resource"); res != "" {
		p.g.Add(subj, pred, IRI(res))
		return
	}
	if id := Attr(n, NsRDF, "nodeID"); id != "" {
		p.g.Add(subj, pred, Blank(id))
		return
	}

	switch Attr(n, NsRDF, "parseType") {
	case "Resource":
		b := p.g.NewBlank()
		p.g.Add(subj, pred, b)
		for c := range Elements(n) {
			p.property(b, c, lang)
		}
		return
	case "Literal":
		var buf strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			buf.WriteString(c.OutputXML(true))
		}
		p.g.Add(subj, pred, TypedLiteral(buf.String(), NsRDF+"XMLLiteral", ""))
		return
	}

	hasChild := false
	for c := range Elements(n) {
		hasChild = true
		p.g.Add(subj, pred, p.node(c))
	}
	if hasChild {
		return
	}

	dt := Attr(n, NsRDF, "datatype")
	if dt != "" {
		lang = ""
	}
	p.g.Add(subj, pred, TypedLiteral(n.InnerText(), dt, strings.ToLower(lang)))
}

// FirstElement returns the first element child of n.
func FirstElement(n *xmlquery.Node) *xmlquery.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return c
		}
	}
	return nil
}

// Elements iterates the element children of n.
func Elements(n *xmlquery.Node) iter.Seq[*xmlquery.Node] {
	return func(yield func(*xmlquery.Node) bool) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != xmlquery.ElementNode {
				continue
			}
			if !yield(c) {
				return
			}
		}
	}
}

// ElementIRI returns the namespace IRI plus local name of an element.
func ElementIRI(n *xmlquery.Node) string {
	ns := n.NamespaceURI
	if ns == "" {
		ns = Prefixes[n.Prefix]
	}
	return ns + n.Data
}

// Attr returns the value of the attribute ns:local on n, or "".
// Attributes are matched on the resolved namespace, falling back to the
// conventional prefix of well-known namespaces.
func Attr(n *xmlquery.Node, ns, local string) string {
	for _, a := range n.Attr {
		if a.Name.Local == local && attrNS(a) == ns {
			return a.Value
		}
	}
	return ""
}

func attrNS(a xmlquery.Attr) string {
	if a.NamespaceURI != "" {
		return a.NamespaceURI
	}
	switch a.Name.Space {
	case "xml":
		return nsXML
	case "":
		return ""
	}
	if ns, ok := Prefixes[a.Name.Space]; ok {
		return ns
	}
	return a.Name.Space
}

func isRDF(n *xmlquery.Node, local string) bool {
	return n.Data == local && (n.NamespaceURI == NsRDF || (n.NamespaceURI == "" && n.Prefix == "rdf"))
}
