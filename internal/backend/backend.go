// Package backend defines the contract every harvest format backend implements,
// along with the shared plumbing they embed: HTTP helpers, descriptors and config lookup.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/raphaelgruber/catalog-harvester/internal/blob"
	"github.com/raphaelgruber/catalog-harvester/internal/models"
)

// Processor receives the items enumerated by a backend.
// Both methods return false once enumeration must stop (max items reached
// or context cancelled).
type Processor interface {
	ProcessDataset(ctx context.Context, remoteID string, kwargs map[string]any) bool
	ProcessDataservice(ctx context.Context, remoteID string, kwargs map[string]any) bool
}

// Records is the engine-owned get-or-create lookup of local records.
// Backends call it once they know the canonical remote id of an item; a new
// record comes back prepopulated with the source owner and organization.
type Records interface {
	Dataset(ctx context.Context, remoteID string) (*models.Dataset, error)
	Dataservice(ctx context.Context, remoteID string) (*models.Dataservice, error)
}

// Backend is a protocol-specific harvester.
type Backend interface {
	Info() Info
	// InnerHarvest enumerates remote items and feeds them to p.
	InnerHarvest(ctx context.Context, p Processor) error
	// InnerProcessDataset fetches, validates and maps one remote dataset.
	InnerProcessDataset(ctx context.Context, item *models.HarvestItem, records Records) (*models.Dataset, error)
	// InnerProcessDataservice fetches, validates and maps one remote dataservice.
	InnerProcessDataservice(ctx context.Context, item *models.HarvestItem, records Records) (*models.Dataservice, error)
}

// Factory builds a backend around its shared base.
type Factory func(base *Base) Backend

// Options configure a backend instance for one run.
type Options struct {
	Source   *models.HarvestSource
	Job      *models.HarvestJob
	DryRun   bool
	MaxItems int

	HTTPTimeout time.Duration
	UserAgent   string
	// Client overrides the HTTP client built from the options.
	Client *http.Client

	Blob                blob.Store
	GraphsBucket        string
	MaxInlineGraphBytes int

	Logger *slog.Logger
}

// Base carries the state shared by all backends. Concrete backends embed it.
type Base struct {
	Source   *models.HarvestSource
	Job      *models.HarvestJob
	DryRun   bool
	MaxItems int

	info                Info
	http                *HTTPClient
	blob                blob.Store
	graphsBucket        string
	maxInlineGraphBytes int
	logger              *slog.Logger
}

// NewBase builds the shared base of a backend.
func NewBase(info Info, opts Options) *Base {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := opts.Client
	if client == nil {
		client = NewStdClient(opts.HTTPTimeout, info.VerifySSL)
	}
	return &Base{
		Source:              opts.Source,
		Job:                 opts.Job,
		DryRun:              opts.DryRun,
		MaxItems:            opts.MaxItems,
		info:                info,
		http:                NewHTTPClient(client, opts.UserAgent),
		blob:                opts.Blob,
		graphsBucket:        opts.GraphsBucket,
		maxInlineGraphBytes: opts.MaxInlineGraphBytes,
		logger:              logger.With("backend", info.Name),
	}
}

// Info returns the backend descriptor.
func (b *Base) Info() Info { return b.info }

// HTTP returns the client every remote call must go through.
func (b *Base) HTTP() *HTTPClient { return b.http }

// Blob returns the configured blob store, or nil.
func (b *Base) Blob() blob.Store { return b.blob }

// GraphsBucket is the bucket used to offload oversized page text.
func (b *Base) GraphsBucket() string { return b.graphsBucket }

// MaxInlineGraphBytes is the ceiling above which page text is offloaded.
func (b *Base) MaxInlineGraphBytes() int { return b.maxInlineGraphBytes }

// Logger returns the item logger when called during item processing,
// the run logger otherwise.
func (b *Base) Logger(ctx context.Context) *slog.Logger {
	if l := loggerFrom(ctx); l != nil {
		return l
	}
	return b.logger
}

// InnerProcessDataservice is the default for backends that only harvest datasets.
func (b *Base) InnerProcessDataservice(context.Context, *models.HarvestItem, Records) (*models.Dataservice, error) {
	return nil, fmt.Errorf("%s: dataservices: %w", b.info.Name, ErrNotSupported)
}

// Feature returns the effective value of a feature toggle.
func (b *Base) Feature(key string) bool {
	def := false
	for _, f := range b.info.Features {
		if f.Key == key {
			def = f.Default
		}
	}
	return b.Source.Feature(key, def)
}

// ExtraString returns a string extra config, or "" when unset.
func (b *Base) ExtraString(key string) string {
	v, ok := b.Source.ExtraConfig(key)
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ExtraInt returns an integer extra config, or def when unset or invalid.
func (b *Base) ExtraInt(key string, def int) int {
	v, ok := b.Source.ExtraConfig(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return def
}

// Filters returns the configured filters for a key.
func (b *Base) Filters(key string) []models.FilterValue {
	var out []models.FilterValue
	for _, f := range b.Source.Config.Filters {
		if f.Key == key {
			out = append(out, f)
		}
	}
	return out
}

// HasFilters reports whether any filter is configured.
func (b *Base) HasFilters() bool {
	return len(b.Source.Config.Filters) > 0
}

type loggerKey struct{}

// ContextWithLogger attaches the item logger to ctx.
func ContextWithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

func loggerFrom(ctx context.Context) *slog.Logger {
	l, _ := ctx.Value(loggerKey{}).(*slog.Logger)
	return l
}
