package pipeline

import (
	"context"

	"telcoetl/classify"
	"telcoetl/config"
	"telcoetl/ingest"
	"telcoetl/normalize"
	"telcoetl/periods"
	"telcoetl/reconcile"
)

// Roster maintains the employee master as a slowly changing dimension: one
// row per person+office combination, refreshed by whichever export mentioned
// it last. Robot and corporate accounts are filtered out before they can
// pollute downstream office matching.
type Roster struct{}

// NewRoster builds the pipeline.
func NewRoster() *Roster { return &Roster{} }

// Name implements Pipeline.
func (r *Roster) Name() string { return "empleados" }

func rosterSchema() normalize.Schema {
	return normalize.Schema{Columns: []normalize.Column{
		{Name: "nombre", Kind: normalize.Text, Aliases: []string{"nombre completo", "nombre y apellido", "empleado"}},
		{Name: "oficina", Kind: normalize.Text, Aliases: []string{"oficina comercial", "sede", "ubicacion"}},
		{Name: "cargo", Kind: normalize.Text, Aliases: []string{"puesto", "posicion"}},
		{Name: "estatus", Kind: normalize.Text, Aliases: []string{"estado", "condicion"}},
	}}
}

// Run implements Pipeline. Every export is read on every run; the slowly
// changing dimension collapses the overlap, keeping the newest file's row per
// name+office.
func (r *Roster) Run(ctx context.Context, cfg *config.Config) (*RunReport, error) {
	job := Job{
		Name:     r.Name(),
		Schema:   rosterSchema(),
		Selector: ingest.Selector{Resolver: periods.CompactResolver{}},
		Mode:     ByFilename,
		Transform: func(cfg *config.Config, recs []normalize.Record) []normalize.Record {
			filter := classify.NonHumanFilter("nombre", cfg.NonHumanKeywords)
			kept, _ := filter.Split(recs)
			for _, rec := range kept {
				rec["nombre"] = normalize.Upper(rec["nombre"])
				rec["oficina"] = normalize.Upper(rec["oficina"])
			}
			return kept
		},
		Reconcile: func(history, batch []normalize.Record) []normalize.Record {
			merged := reconcile.Merge(history, batch)
			return reconcile.SCDKeepNewest(merged, "nombre", "oficina")
		},
		Snapshot: "empleados.parquet",
	}
	return RunIncremental(ctx, cfg, job)
}
