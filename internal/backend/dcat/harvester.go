package dcat

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"reflect"

	"github.com/raphaelgruber/catalog-harvester/internal/backend"
	"github.com/raphaelgruber/catalog-harvester/internal/models"
	"github.com/raphaelgruber/catalog-harvester/internal/rdf"
)

// Item kwargs keys.
const (
	KwargPage = "page"
	KwargNode = "node"
)

// Page is one consumed page of a paginated graph source.
type Page struct {
	URL   string
	Graph *rdf.Graph
}

// Pages is a lazy, forward-only sequence of pages. A non-nil error ends it.
type Pages = iter.Seq2[*Page, error]

// Harvester runs the DCAT passes over a page sequence and maps graph nodes
// into records. It is embedded by the dcat and csw backends.
type Harvester struct {
	*backend.Base
	pages []*rdf.Graph
}

// NewHarvester wraps base.
func NewHarvester(base *backend.Base) *Harvester {
	return &Harvester{Base: base}
}

// Harvest feeds the dataset nodes of every page to p while the pages are
// walked, then the dataservice nodes of the consumed pages. The page graphs
// are stored on the job for later item reprocessing, even when the walk fails.
func (h *Harvester) Harvest(ctx context.Context, p backend.Processor, format string, pages Pages) error {
	h.Job.Data[models.JobDataFormat] = format
	defer h.storeGraphs(ctx)

	for page, err := range pages {
		if err != nil {
			return err
		}
		h.pages = append(h.pages, page.Graph)
		n := len(h.pages) - 1
		h.Logger(ctx).Debug("walked page", "page", n, "url", page.URL, "triples", page.Graph.Len())
		if !h.feed(ctx, n, page.Graph, p.ProcessDataset, DatasetTypes...) {
			return nil
		}
	}
	for n, g := range h.pages {
		if !h.feed(ctx, n, g, p.ProcessDataservice, DataserviceTypes...) {
			return nil
		}
	}
	return nil
}

type processFunc func(ctx context.Context, remoteID string, kwargs map[string]any) bool

func (h *Harvester) feed(ctx context.Context, n int, g *rdf.Graph, process processFunc, types ...string) bool {
	for _, node := range g.SubjectsOfType(types...) {
		kwargs := map[string]any{KwargPage: n, KwargNode: node.String()}
		if !process(ctx, RemoteID(g, node), kwargs) {
			return false
		}
	}
	return true
}

// RemoteID is dct:identifier, falling back to the node IRI.
func RemoteID(g *rdf.Graph, node rdf.Term) string {
	if id := g.Value(node, rdf.NsDCT+"identifier"); id != "" {
		return id
	}
	if node.IsIRI() {
		return node.Value
	}
	return ""
}

// storeGraphs keeps the page texts in job.data, offloading them to the blob
// store when they exceed the inline ceiling.
func (h *Harvester) storeGraphs(ctx context.Context) {
	texts := make([]string, len(h.pages))
	total := 0
	for i, g := range h.pages {
		texts[i] = g.NTriples()
		total += len(texts[i])
	}

	limit := h.MaxInlineGraphBytes()
	if limit <= 0 || total <= limit {
		h.Job.Data[models.JobDataGraphs] = texts
		return
	}
	if h.Blob() == nil {
		h.Job.AddError(fmt.Sprintf("graphs of %d bytes exceed the inline limit of %d bytes and no blob store is configured", total, limit), "")
		return
	}
	if h.DryRun {
		return
	}

	data, err := json.Marshal(texts)
	if err != nil {
		h.Job.AddError("encode graphs: "+err.Error(), "")
		return
	}
	key := fmt.Sprintf("harvest_%s_graphs.json", h.Job.ID)
	if err := h.Blob().Put(ctx, h.GraphsBucket(), key, data); err != nil {
		h.Job.AddError("store graphs: "+err.Error(), "")
		return
	}
	h.Job.Data[models.JobDataFilename] = key
	h.Logger(ctx).Info("stored graphs in blob store", "bucket", h.GraphsBucket(), "key", key, "bytes", len(data))
}

// page returns the graph of page n, reloading the job's stored graphs on
// first use when the harvester was rebuilt to reprocess an item.
func (h *Harvester) page(ctx context.Context, n int) (*rdf.Graph, error) {
	if h.pages == nil {
		if err := h.loadGraphs(ctx); err != nil {
			return nil, err
		}
	}
	if n < 0 || n >= len(h.pages) {
		return nil, fmt.Errorf("page %d not found in job (%d pages)", n, len(h.pages))
	}
	return h.pages[n], nil
}

func (h *Harvester) loadGraphs(ctx context.Context) error {
	var texts []string
	switch {
	case h.Job.Data[models.JobDataGraphs] != nil:
		texts = stringList(h.Job.Data[models.JobDataGraphs])
	case h.Job.Data[models.JobDataFilename] != nil:
		if h.Blob() == nil {
			return fmt.Errorf("graphs stored in %v but no blob store is configured", h.Job.Data[models.JobDataFilename])
		}
		data, err := h.Blob().Get(ctx, h.GraphsBucket(), fmt.Sprint(h.Job.Data[models.JobDataFilename]))
		if err != nil {
			return fmt.Errorf("load graphs: %w", err)
		}
		if err := json.Unmarshal(data, &texts); err != nil {
			return fmt.Errorf("decode graphs: %w", err)
		}
	default:
		return fmt.Errorf("job %s has no stored graphs", h.Job.ID)
	}

	h.pages = make([]*rdf.Graph, len(texts))
	for i, text := range texts {
		g := rdf.NewGraph()
		if err := rdf.ParseNTriples([]byte(text), g); err != nil {
			return fmt.Errorf("parse stored page %d: %w", i, err)
		}
		h.pages[i] = g
	}
	return nil
}

// stringList accepts both the in-memory []string and its decoded []any form.
// stringList accepts the list shapes store decoders produce for a []string.
func stringList(v any) []string {
	if l, ok := v.([]string); ok {
		return l
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil
	}
	out := make([]string, 0, rv.Len())
	for i := range rv.Len() {
		out = append(out, fmt.Sprint(rv.Index(i).Interface()))
	}
	return out
}

// node resolves the page and node kwargs of an item.
func (h *Harvester) node(ctx context.Context, item *models.HarvestItem) (*rdf.Graph, rdf.Term, error) {
	n, ok := intKwarg(item.Kwargs[KwargPage])
	if !ok {
		return nil, rdf.Term{}, fmt.Errorf("item %q has no page reference", item.RemoteID)
	}
	ref, _ := item.Kwargs[KwargNode].(string)
	node, err := rdf.ParseTerm(ref)
	if err != nil {
		return nil, rdf.Term{}, fmt.Errorf("item %q: node reference %q: %w", item.RemoteID, ref, err)
	}
	g, err := h.page(ctx, n)
	if err != nil {
		return nil, rdf.Term{}, err
	}
	return g, node, nil
}

func intKwarg(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func (h *Harvester) InnerProcessDataset(ctx context.Context, item *models.HarvestItem, records backend.Records) (*models.Dataset, error) {
	g, node, err := h.node(ctx, item)
	if err != nil {
		return nil, err
	}
	ds, err := records.Dataset(ctx, item.RemoteID)
	if err != nil {
		return nil, err
	}
	MapDataset(g, node, ds)
	if prefix := h.ExtraString("remote_url_prefix"); prefix != "" {
		ds.Harvest.RemoteURL = prefix + item.RemoteID
	}
	return ds, nil
}

func (h *Harvester) InnerProcessDataservice(ctx context.Context, item *models.HarvestItem, records backend.Records) (*models.Dataservice, error) {
	g, node, err := h.node(ctx, item)
	if err != nil {
		return nil, err
	}
	ds, err := records.Dataservice(ctx, item.RemoteID)
	if err != nil {
		return nil, err
	}
	MapDataservice(g, node, ds)

	ds.Datasets = nil
	for _, served := range g.Objects(node, rdf.NsDCAT+"servesDataset") {
		rid := h.servedRemoteID(g, served)
		linked := h.Job.FindItem(models.KindDataset, rid)
		if linked == nil || linked.DatasetID == nil {
			h.Logger(ctx).Info("served dataset not harvested in this job", "dataset", rid)
			continue
		}
		ds.Datasets = append(ds.Datasets, *linked.DatasetID)
	}
	return ds, nil
}

// servedRemoteID finds the remote id of a served dataset, which may be
// described on another page than the service.
func (h *Harvester) servedRemoteID(g *rdf.Graph, served rdf.Term) string {
	if id := g.Value(served, rdf.NsDCT+"identifier"); id != "" {
		return id
	}
	for _, other := range h.pages {
		if id := other.Value(served, rdf.NsDCT+"identifier"); id != "" {
			return id
		}
	}
	return RemoteID(g, served)
}
