package backend

import (
	"fmt"
	"sort"

	"github.com/raphaelgruber/catalog-harvester/internal/models"
)

// Entry binds a backend descriptor to its constructor.
type Entry struct {
	Info    Info
	Factory Factory
}

// Registry maps backend names to constructors.
type Registry struct {
	entries map[string]Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds a backend. It panics on a duplicate name.
func (r *Registry) Register(info Info, factory Factory) {
	if _, dup := r.entries[info.Name]; dup {
		panic("backend: Register called twice for " + info.Name)
	}
	r.entries[info.Name] = Entry{Info: info, Factory: factory}
}

// Get returns the entry registered under name.
func (r *Registry) Get(name string) (Entry, error) {
	e, ok := r.entries[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return e, nil
}

// Infos returns all descriptors sorted by name.
func (r *Registry) Infos() []Info {
	infos := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		infos = append(infos, e.Info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// New instantiates the backend of opts.Source.
func (r *Registry) New(opts Options) (Backend, error) {
	e, err := r.Get(opts.Source.Backend)
	if err != nil {
		return nil, err
	}
	return e.Factory(NewBase(e.Info, opts)), nil
}

// ValidateSource checks the backend exists and the source config matches its descriptors.
func (r *Registry) ValidateSource(src *models.HarvestSource) error {
	e, err := r.Get(src.Backend)
	if err != nil {
		return err
	}
	return ValidateSourceConfig(e.Info, src.Config)
}
