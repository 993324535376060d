// Package builtin assembles the registry of every backend shipped with the harvester.
package builtin

import (
	"github.com/raphaelgruber/catalog-harvester/internal/backend"
	"github.com/raphaelgruber/catalog-harvester/internal/backend/ckan"
	"github.com/raphaelgruber/catalog-harvester/internal/backend/csw"
	"github.com/raphaelgruber/catalog-harvester/internal/backend/dcat"
	"github.com/raphaelgruber/catalog-harvester/internal/backend/maaf"
)

// Registry returns a registry holding all builtin backends.
func Registry() *backend.Registry {
	r := backend.NewRegistry()
	r.Register(ckan.Info, ckan.New)
	r.Register(ckan.DKANInfo, ckan.New)
	r.Register(dcat.Info, dcat.New)
	r.Register(csw.DCATInfo, csw.NewDCAT)
	r.Register(csw.ISOInfo, csw.NewISO)
	r.Register(maaf.Info, maaf.New)
	return r
}
