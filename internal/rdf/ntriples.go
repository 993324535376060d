package rdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	krdf "github.com/knakk/rdf"
)

// ParseNTriples parses an N-Triples document into g.
func ParseNTriples(data []byte, g *Graph) error {
	if err := decode(bytes.NewReader(data), krdf.NTriples, g); err != nil {
		return fmt.Errorf("parse n-triples: %w", err)
	}
	return nil
}

// ParseTurtle parses a Turtle document into g, resolving relative IRIs
// against base unless the document declares its own.
func ParseTurtle(data []byte, base string, g *Graph) error {
	var r io.Reader = bytes.NewReader(data)
	if base != "" {
		r = io.MultiReader(strings.NewReader("@base <"+base+"> .\n"), r)
	}
	if err := decode(r, krdf.Turtle, g); err != nil {
		return fmt.Errorf("parse turtle: %w", err)
	}
	return nil
}

func decode(r io.Reader, format krdf.Format, g *Graph) error {
	dec := krdf.NewTripleDecoder(r, format)
	for {
		t, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		g.Add(fromKnakk(t.Subj), t.Pred.String(), fromKnakk(t.Obj))
	}
}

func fromKnakk(t krdf.Term) Term {
	switch t.Type() {
	case krdf.TermBlank:
		return Blank(strings.TrimPrefix(t.String(), "_:"))
	case krdf.TermLiteral:
		if l, ok := t.(krdf.Literal); ok {
			return TypedLiteral(l.String(), plainDatatype(l.DataType.String()), strings.ToLower(l.Lang()))
		}
		return Literal(t.String())
	}
	return IRI(t.String())
}

// NTriples serializes g, one statement per line.
func (g *Graph) NTriples() string {
	var b strings.Builder
	for _, t := range g.triples {
		b.WriteString(formatTerm(t.S))
		b.WriteByte(' ')
		b.WriteString(formatTerm(t.P))
		b.WriteByte(' ')
		b.WriteString(formatTerm(t.O))
		b.WriteString(" .\n")
	}
	return b.String()
}

func formatTerm(t Term) string {
	switch t.Kind {
	case KindBlank:
		return "_:" + t.Value
	case KindLiteral:
		s := `"` + escapeLiteral(t.Value) + `"`
		if t.Lang != "" {
			return s + "@" + t.Lang
		}
		if t.Datatype != "" {
			return s + "^^<" + t.Datatype + ">"
		}
		return s
	}
	return "<" + t.Value + ">"
}

func escapeLiteral(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseTerm parses a single IRI, blank node or literal in N-Triples syntax,
// the inverse of Term.String.
func ParseTerm(s string) (Term, error) {
	line := "<urn:term:s> <urn:term:p> " + strings.TrimSpace(s) + " .\n"
	dec := krdf.NewTripleDecoder(strings.NewReader(line), krdf.NTriples)
	t, err := dec.Decode()
	if err != nil {
		return Term{}, fmt.Errorf("parse term %q: %w", s, err)
	}
	if _, err := dec.Decode(); !errors.Is(err, io.EOF) {
		return Term{}, fmt.Errorf("trailing data after term %q", s)
	}
	return fromKnakk(t.Obj), nil
}
