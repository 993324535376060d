// Package rdf holds the small RDF model the DCAT and CSW backends work on:
// terms, an indexed triple graph, parsers for the wire formats catalogs serve,
// and pagination strategies over paged graph documents.
package rdf

import (
	"strconv"
	"strings"
)

// Namespaces used by catalog vocabularies.
const (
	NsRDF        = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	NsRDFS       = "http://www.w3.org/2000/01/rdf-schema#"
	NsXSD        = "http://www.w3.org/2001/XMLSchema#"
	NsDCAT       = "http://www.w3.org/ns/dcat#"
	NsDCT        = "http://purl.org/dc/terms/"
	NsFOAF       = "http://xmlns.com/foaf/0.1/"
	NsVCARD      = "http://www.w3.org/2006/vcard/ns#"
	NsSKOS       = "http://www.w3.org/2004/02/skos/core#"
	NsOWL        = "http://www.w3.org/2002/07/owl#"
	NsADMS       = "http://www.w3.org/ns/adms#"
	NsLOCN       = "http://www.w3.org/ns/locn#"
	NsSPDX       = "http://spdx.org/rdf/terms#"
	NsSchema     = "http://schema.org/"
	NsHydra      = "http://www.w3.org/ns/hydra/core#"
	NsHydraHTTPS = "https://www.w3.org/ns/hydra/core#"
)

// RDFType is rdf:type.
const RDFType = NsRDF + "type"

// Prefixes known without a declaring context.
var Prefixes = map[string]string{
	"rdf":     NsRDF,
	"rdfs":    NsRDFS,
	"xsd":     NsXSD,
	"dcat":    NsDCAT,
	"dct":     NsDCT,
	"dcterms": NsDCT,
	"foaf":    NsFOAF,
	"vcard":   NsVCARD,
	"skos":    NsSKOS,
	"owl":     NsOWL,
	"adms":    NsADMS,
	"locn":    NsLOCN,
	"spdx":    NsSPDX,
	"schema":  NsSchema,
	"hydra":   NsHydra,
}

// TermKind distinguishes IRIs, blank nodes and literals.
type TermKind int

const (
	KindIRI TermKind = iota
	KindBlank
	KindLiteral
)

// Term is an RDF node.
type Term struct {
	Kind     TermKind
	Value    string
	Datatype string
	Lang     string
}

// IRI builds an IRI term.
func IRI(v string) Term { return Term{Kind: KindIRI, Value: v} }

// Blank builds a blank node term.
func Blank(id string) Term { return Term{Kind: KindBlank, Value: id} }

// Literal builds a plain literal.
func Literal(v string) Term { return Term{Kind: KindLiteral, Value: v} }

// TypedLiteral builds a literal with datatype and language.
func TypedLiteral(v, datatype, lang string) Term {
	return Term{Kind: KindLiteral, Value: v, Datatype: datatype, Lang: lang}
}

// IsIRI reports whether t is an IRI.
func (t Term) IsIRI() bool { return t.Kind == KindIRI }

// IsZero reports whether t is the zero term.
func (t Term) IsZero() bool { return t == Term{} }

func (t Term) key() string {
	switch t.Kind {
	case KindBlank:
		return "_:" + t.Value
	case KindLiteral:
		return "\"" + t.Value + "\"^^" + t.Datatype + "@" + t.Lang
	}
	return t.Value
}

// String renders t the way N-Triples would.
func (t Term) String() string {
	return formatTerm(t)
}

// Triple is one statement.
type Triple struct {
	S, P, O Term
}

// Graph is an in-memory set of triples indexed by subject.
type Graph struct {
	triples  []Triple
	seen     map[string]struct{}
	bySubj   map[string][]int
	subjects []Term
	blanks   int
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{seen: map[string]struct{}{}, bySubj: map[string][]int{}}
}

// NewBlank allocates a blank node unique within g.
func (g *Graph) NewBlank() Term {
	g.blanks++
	return Blank("genid" + strconv.Itoa(g.blanks))
}

// Add inserts a triple, ignoring duplicates.
func (g *Graph) Add(s Term, p string, o Term) {
	k := s.key() + " " + p + " " + o.key()
	if _, dup := g.seen[k]; dup {
		return
	}
	g.seen[k] = struct{}{}
	sk := s.key()
	if _, ok := g.bySubj[sk]; !ok {
		g.subjects = append(g.subjects, s)
	}
	g.bySubj[sk] = append(g.bySubj[sk], len(g.triples))
	g.triples = append(g.triples, Triple{S: s, P: IRI(p), O: o})
}

// Merge adds every triple of other into g.
func (g *Graph) Merge(other *Graph) {
	for _, t := range other.triples {
		g.Add(t.S, t.P.Value, t.O)
	}
}

// Len returns the number of triples.
func (g *Graph) Len() int { return len(g.triples) }

// Triples returns the statements in insertion order.
func (g *Graph) Triples() []Triple { return g.triples }

// Objects returns the objects of s for predicate p.
func (g *Graph) Objects(s Term, p string) []Term {
	var out []Term
	for _, i := range g.bySubj[s.key()] {
		if t := g.triples[i]; t.P.Value == p {
			out = append(out, t.O)
		}
	}
	return out
}

// Object returns the first object of s for p.
func (g *Graph) Object(s Term, p string) (Term, bool) {
	for _, i := range g.bySubj[s.key()] {
		if t := g.triples[i]; t.P.Value == p {
			return t.O, true
		}
	}
	return Term{}, false
}

// Value returns the trimmed value of the first object of s for p, or "".
func (g *Graph) Value(s Term, p string) string {
	o, ok := g.Object(s, p)
	if !ok {
		return ""
	}
	return strings.TrimSpace(o.Value)
}

// LangValue prefers a literal in lang, then an untagged one, then any.
func (g *Graph) LangValue(s Term, p, lang string) string {
	var untagged, other string
	for _, o := range g.Objects(s, p) {
		switch {
		case o.Lang == lang:
			return strings.TrimSpace(o.Value)
		case o.Lang == "" && untagged == "":
			untagged = o.Value
		case other == "":
			other = o.Value
		}
	}
	if untagged != "" {
		return strings.TrimSpace(untagged)
	}
	return strings.TrimSpace(other)
}

// Values returns the non-empty trimmed values of all objects of s for p.
func (g *Graph) Values(s Term, p string) []string {
	var out []string
	for _, o := range g.Objects(s, p) {
		if v := strings.TrimSpace(o.Value); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// HasType reports whether s is typed with any of types.
func (g *Graph) HasType(s Term, types ...string) bool {
	for _, o := range g.Objects(s, RDFType) {
		for _, typ := range types {
			if o.Value == typ {
				return true
			}
		}
	}
	return false
}

// SubjectsOfType returns subjects typed with any of types, in discovery order.
func (g *Graph) SubjectsOfType(types ...string) []Term {
	var out []Term
	for _, s := range g.subjects {
		if g.HasType(s, types...) {
			out = append(out, s)
		}
	}
	return out
}

// Subjects returns the subjects having o as object of p.
func (g *Graph) Subjects(p string, o Term) []Term {
	var out []Term
	seen := map[string]bool{}
	for _, t := range g.triples {
		if t.P.Value == p && t.O == o && !seen[t.S.key()] {
			seen[t.S.key()] = true
			out = append(out, t.S)
		}
	}
	return out
}

// Expand resolves a compact IRI with the known prefixes.
func Expand(curie string) string {
	prefix, local, ok := strings.Cut(curie, ":")
	if !ok || strings.HasPrefix(local, "//") {
		return curie
	}
	if ns, found := Prefixes[prefix]; found {
		return ns + local
	}
	return curie
}
