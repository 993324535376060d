package rdf

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogXML = `<?xml version="1.0" encoding="UTF-8"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
         xmlns:dcat="http://www.w3.org/ns/dcat#"
         xmlns:dct="http://purl.org/dc/terms/"
         xmlns:hydra="http://www.w3.org/ns/hydra/core#">
  <dcat:Catalog rdf:about="http://example.org/catalog">
    <dcat:dataset>
      <dcat:Dataset rdf:about="http://example.org/datasets/1">
        <dct:identifier>ds-1</dct:identifier>
        <dct:title xml:lang="en">First dataset</dct:title>
        <dct:title xml:lang="fr">Premier jeu</dct:title>
        <dcat:keyword>transport</dcat:keyword>
        <dcat:distribution>
          <dcat:Distribution>
            <dcat:accessURL rdf:resource="http://example.org/files/1.csv"/>
            <dct:title>CSV</dct:title>
          </dcat:Distribution>
        </dcat:distribution>
      </dcat:Dataset>
    </dcat:dataset>
  </dcat:Catalog>
  <rdf:Description rdf:about="http://example.org/datasets/2">
    <rdf:type rdf:resource="http://www.w3.org/ns/dcat#Dataset"/>
    <dct:title>Second</dct:title>
    <dct:issued rdf:datatype="http://www.w3.org/2001/XMLSchema#date">2024-01-02</dct:issued>
  </rdf:Description>
  <hydra:PartialCollectionView rdf:about="http://example.org/catalog.xml?page=1">
    <hydra:next>http://example.org/catalog.xml?page=2</hydra:next>
  </hydra:PartialCollectionView>
</rdf:RDF>`

func TestParseRDFXML(t *testing.T) {
	g := NewGraph()
	require.NoError(t, ParseRDFXML([]byte(catalogXML), "http://example.org/", g))

	datasets := g.SubjectsOfType(NsDCAT + "Dataset")
	require.Len(t, datasets, 2)
	assert.Equal(t, "http://example.org/datasets/1", datasets[0].Value)
	assert.Equal(t, "http://example.org/datasets/2", datasets[1].Value)

	ds := datasets[0]
	assert.Equal(t, "ds-1", g.Value(ds, NsDCT+"identifier"))
	assert.Equal(t, "Premier jeu", g.LangValue(ds, NsDCT+"title", "fr"))
	assert.Equal(t, []string{"transport"}, g.Values(ds, NsDCAT+"keyword"))

	dist, ok := g.Object(ds, NsDCAT+"distribution")
	require.True(t, ok)
	assert.Equal(t, KindBlank, dist.Kind)
	assert.True(t, g.HasType(dist, NsDCAT+"Distribution"))
	access, ok := g.Object(dist, NsDCAT+"accessURL")
	require.True(t, ok)
	assert.True(t, access.IsIRI())
	assert.Equal(t, "http://example.org/files/1.csv", access.Value)

	issued, ok := g.Object(datasets[1], NsDCT+"issued")
	require.True(t, ok)
	assert.Equal(t, NsXSD+"date", issued.Datatype)

	catalogs := g.Subjects(NsDCAT+"dataset", ds)
	require.Len(t, catalogs, 1)
	assert.Equal(t, "http://example.org/catalog", catalogs[0].Value)
}

const catalogJSONLD = `{
  "@context": {
    "dcat": "http://www.w3.org/ns/dcat#",
    "dct": "http://purl.org/dc/terms/",
    "title": "dct:title",
    "distribution": {"@id": "dcat:distribution"},
    "accessURL": {"@id": "dcat:accessURL", "@type": "@id"},
    "modified": {"@id": "dct:modified", "@type": "http://www.w3.org/2001/XMLSchema#dateTime"}
  },
  "@graph": [
    {
      "@id": "http://example.org/datasets/1",
      "@type": "dcat:Dataset",
      "dct:identifier": 42,
      "title": [{"@value": "Un titre", "@language": "FR"}, "A title"],
      "modified": "2024-05-01T10:00:00Z",
      "distribution": {
        "@type": "dcat:Distribution",
        "accessURL": "http://example.org/files/1.csv"
      }
    },
    {
      "@id": "_:svc",
      "@type": ["dcat:DataService"],
      "dcat:endpointURL": {"@id": "http://example.org/api"},
      "dcat:servesDataset": {"@id": "http://example.org/datasets/1"}
    },
    {
      "@id": "http://example.org/catalog.jsonld?page=1",
      "@type": "http://www.w3.org/ns/hydra/core#PartialCollectionView",
      "http://www.w3.org/ns/hydra/core#next": "catalog.jsonld?page=2"
    }
  ]
}`

func TestParseJSONLD(t *testing.T) {
	g := NewGraph()
	require.NoError(t, ParseJSONLD([]byte(catalogJSONLD), "", nil, g))

	datasets := g.SubjectsOfType(NsDCAT + "Dataset")
	require.Len(t, datasets, 1)
	ds := datasets[0]
	assert.Equal(t, "42", g.Value(ds, NsDCT+"identifier"))
	assert.Equal(t, "Un titre", g.LangValue(ds, NsDCT+"title", "fr"))
	assert.Equal(t, "A title", g.LangValue(ds, NsDCT+"title", "en"))

	modified, ok := g.Object(ds, NsDCT+"modified")
	require.True(t, ok)
	assert.Equal(t, NsXSD+"dateTime", modified.Datatype)

	dist, ok := g.Object(ds, NsDCAT+"distribution")
	require.True(t, ok)
	access, ok := g.Object(dist, NsDCAT+"accessURL")
	require.True(t, ok)
	assert.True(t, access.IsIRI())

	services := g.SubjectsOfType(NsDCAT + "DataService")
	require.Len(t, services, 1)
	assert.Equal(t, KindBlank, services[0].Kind)
	served, ok := g.Object(services[0], NsDCAT+"servesDataset")
	require.True(t, ok)
	assert.Equal(t, ds, served)
}

const remoteContextJSONLD = `{
  "@context": "https://contexts.example.org/dcat.jsonld",
  "@id": "https://data.example.org/datasets/7",
  "@type": "Dataset",
  "title": "Harbour depths"
}`

const dcatContext = `{
  "@context": {
    "@vocab": "http://www.w3.org/ns/dcat#",
    "title": "http://purl.org/dc/terms/title"
  }
}`

func TestParseJSONLDRemoteContext(t *testing.T) {
	var fetched []string
	loader := ContextLoader(func(url string) ([]byte, error) {
		fetched = append(fetched, url)
		if url != "https://contexts.example.org/dcat.jsonld" {
			return nil, errors.New("not found")
		}
		return []byte(dcatContext), nil
	})

	for range 2 {
		g := NewGraph()
		require.NoError(t, ParseJSONLD([]byte(remoteContextJSONLD), "", loader, g))
		datasets := g.SubjectsOfType(NsDCAT + "Dataset")
		require.Len(t, datasets, 1)
		assert.Equal(t, "Harbour depths", g.Value(datasets[0], NsDCT+"title"))
	}
	assert.Len(t, fetched, 1, "contexts are cached by the loader")

	err := ParseJSONLD([]byte(remoteContextJSONLD), "", nil, NewGraph())
	assert.ErrorIs(t, err, ErrRemoteContext)

	broken := ContextLoader(func(string) ([]byte, error) { return nil, errors.New("HTTP 404") })
	assert.Error(t, ParseJSONLD([]byte(remoteContextJSONLD), "", broken, NewGraph()))
}

const catalogTurtle = `@prefix dcat: <http://www.w3.org/ns/dcat#> .
@prefix dct: <http://purl.org/dc/terms/> .

<datasets/1> a dcat:Dataset ;
    dct:identifier "ds-1" ;
    dct:title "Quais"@FR, "Quays" ;
    dcat:distribution [
        a dcat:Distribution ;
        dcat:downloadURL <files/quays.csv>
    ] .
`

func TestParseTurtle(t *testing.T) {
	g := NewGraph()
	require.NoError(t, ParseTurtle([]byte(catalogTurtle), "http://example.org/", g))

	datasets := g.SubjectsOfType(NsDCAT + "Dataset")
	require.Len(t, datasets, 1)
	ds := datasets[0]
	assert.Equal(t, "http://example.org/datasets/1", ds.Value)
	assert.Equal(t, "ds-1", g.Value(ds, NsDCT+"identifier"))
	assert.Equal(t, "Quais", g.LangValue(ds, NsDCT+"title", "fr"))

	dist, ok := g.Object(ds, NsDCAT+"distribution")
	require.True(t, ok)
	assert.Equal(t, KindBlank, dist.Kind)
	u, ok := g.Object(dist, NsDCAT+"downloadURL")
	require.True(t, ok)
	assert.Equal(t, IRI("http://example.org/files/quays.csv"), u)

	assert.Error(t, ParseTurtle([]byte(`<http://a> <http://b> .`), "", NewGraph()))
}

func TestNTriplesRoundTrip(t *testing.T) {
	src := NewGraph()
	s := IRI("http://example.org/d/1")
	src.Add(s, RDFType, IRI(NsDCAT+"Dataset"))
	src.Add(s, NsDCT+"title", TypedLiteral("Line \"one\"\nline two", "", "en"))
	src.Add(s, NsDCT+"issued", TypedLiteral("2024-01-01", NsXSD+"date", ""))
	src.Add(s, NsDCAT+"distribution", Blank("b0"))
	src.Add(Blank("b0"), NsDCAT+"accessURL", IRI("http://example.org/f.csv"))

	out := NewGraph()
	require.NoError(t, ParseNTriples([]byte(src.NTriples()), out))
	assert.Equal(t, src.Triples(), out.Triples())
}

func TestParseNTriplesErrors(t *testing.T) {
	assert.Error(t, ParseNTriples([]byte(`<http://a> <http://b> "open .`), NewGraph()))
	assert.Error(t, ParseNTriples([]byte(`<http://a> "p" <http://c> .`), NewGraph()))
	assert.Error(t, ParseNTriples([]byte(`<http://a> <http://b> <http://c>`), NewGraph()))
	assert.NoError(t, ParseNTriples([]byte("# comment\n\n<http://a> <http://b> \"\\u00e9\" .\n"), NewGraph()))
}

func TestHydraPagination(t *testing.T) {
	p := NewHydraPaginator("http://example.org/catalog.jsonld?page=1")

	g := NewGraph()
	require.NoError(t, ParseJSONLD([]byte(catalogJSONLD), "", nil, g))
	next, ok := p.NextPage(g)
	require.True(t, ok)
	assert.Equal(t, "http://example.org/catalog.jsonld?page=2", next)

	page2 := NewGraph()
	view := IRI(next)
	page2.Add(view, RDFType, IRI(NsHydraHTTPS+"PagedCollection"))
	page2.Add(view, NsHydraHTTPS+"nextPage", Literal("http://example.org/catalog.jsonld?page=1"))
	_, ok = p.NextPage(page2)
	assert.False(t, ok, "loop back to the first page must stop pagination")

	last := NewGraph()
	last.Add(IRI("http://example.org/x"), RDFType, IRI(NsHydra+"PartialCollectionView"))
	_, ok = NewHydraPaginator("http://example.org/x").NextPage(last)
	assert.False(t, ok)
}

func TestFormatDetection(t *testing.T) {
	f, ok := FormatFromURL("https://example.org/catalog.jsonld?page=1")
	require.True(t, ok)
	assert.Equal(t, FormatJSONLD, f)

	_, ok = FormatFromURL("https://example.org/catalog")
	assert.False(t, ok)

	f, ok = FormatFromContentType("application/rdf+xml; charset=utf-8")
	require.True(t, ok)
	assert.Equal(t, FormatXML, f)

	f, ok = FormatFromContentType("text/turtle")
	require.True(t, ok)
	assert.True(t, Supported(f))

	_, ok = FormatFromContentType("text/html")
	assert.False(t, ok)
	assert.False(t, Supported("rdfa"))
	assert.Error(t, Parse("rdfa", nil, "", NewGraph()))
}

func TestParseTerm(t *testing.T) {
	for _, term := range []Term{IRI("http://example.org/a"), Blank("genid3"), TypedLiteral("x", "", "fr")} {
		got, err := ParseTerm(term.String())
		require.NoError(t, err)
		assert.Equal(t, term, got)
	}
	_, err := ParseTerm("<http://a> junk")
	assert.Error(t, err)
}
