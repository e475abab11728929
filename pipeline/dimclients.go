package pipeline

import (
	"context"

	"telcoetl/config"
	"telcoetl/ingest"
	"telcoetl/normalize"
	"telcoetl/reconcile"
)

// DimClients maintains the client dimension. The CRM exports carry no period
// in the filename, so selection runs in content mode: every file is read and
// only rows updated after the snapshot watermark survive, with the freshest
// row winning per client.
type DimClients struct{}

// NewDimClients builds the pipeline.
func NewDimClients() *DimClients { return &DimClients{} }

// Name implements Pipeline.
func (d *DimClients) Name() string { return "dimclientes" }

func dimClientsSchema() normalize.Schema {
	return normalize.Schema{Columns: []normalize.Column{
		{Name: "cliente", Kind: normalize.ID, Aliases: []string{"codigo de cliente", "id cliente"}},
		{Name: "nombre", Kind: normalize.Text, Aliases: []string{"nombre completo", "razon social"}},
		{Name: "fecha_actualizacion", Kind: normalize.Date, Aliases: []string{"fecha de actualizacion", "ultima actualizacion"}},
		{Name: "franquicia", Kind: normalize.Text, Aliases: []string{"sucursal"}},
		{Name: "estado", Kind: normalize.Text, Aliases: []string{"estatus"}},
	}}
}

// Run implements Pipeline.
func (d *DimClients) Run(ctx context.Context, cfg *config.Config) (*RunReport, error) {
	job := Job{
		Name:       d.Name(),
		Schema:     dimClientsSchema(),
		Selector:   ingest.Selector{},
		Mode:       ByContent,
		DateColumn: "fecha_actualizacion",
		// fresh CRM data supersedes whatever the dimension held
		KeyColumns: []string{"cliente"},
		Keep:       reconcile.KeepLast,
		Snapshot:   "dimclientes.parquet",
	}
	return RunIncremental(ctx, cfg, job)
}
