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

// Sales consolidates contract-sale exports with channel classification.
type Sales struct{}

// NewSales builds the pipeline.
func NewSales() *Sales { return &Sales{} }

// Name implements Pipeline.
func (s *Sales) Name() string { return "ventas" }

func salesSchema() normalize.Schema {
	return normalize.Schema{Columns: []normalize.Column{
		{Name: "abonado", Kind: normalize.ID, Aliases: []string{"nro abonado", "codigo de abonado"}},
		{Name: "documento", Kind: normalize.ID, Aliases: []string{"cedula", "rif", "documento de identidad"}},
		{Name: "fecha", Kind: normalize.Date, Aliases: []string{"fecha de venta", "fecha contrato"}},
		{Name: "hora", Kind: normalize.Text, Aliases: []string{"hora de venta"}},
		{Name: "agente", Kind: normalize.Text, Aliases: []string{"grupo de venta", "agencia"}},
		{Name: "vendedor", Kind: normalize.Text, Aliases: []string{"asesor", "nombre del vendedor"}},
		{Name: "plan", Kind: normalize.Text, Aliases: []string{"plan contratado"}},
		{Name: "monto", Kind: normalize.Amount, Aliases: []string{"monto contrato", "importe"}},
		{Name: "franquicia", Kind: normalize.Text, Aliases: []string{"sucursal"}},
	}}
}

// Run implements Pipeline.
func (s *Sales) Run(ctx context.Context, cfg *config.Config) (*RunReport, error) {
	job := Job{
		Name:       s.Name(),
		Schema:     salesSchema(),
		Selector:   ingest.Selector{Resolver: periods.RangeResolver{}, All: allResolvers(cfg)},
		Mode:       ByFilename,
		DateColumn: "fecha",
		Derived: []normalize.Column{
			{Name: "canal", Kind: normalize.Text},
			{Name: "periodo", Kind: normalize.Text},
		},
		// a re-exported batch must not overwrite what history already says
		// about a sale
		KeyColumns: []string{"abonado", "documento", "fecha", "hora", "vendedor"},
		Keep:       reconcile.KeepFirst,
		Transform:  transformSales,
		Snapshot:   "ventas.parquet",
	}
	return RunIncremental(ctx, cfg, job)
}

func transformSales(cfg *config.Config, recs []normalize.Record) []normalize.Record {
	chain := classify.SalesChannel("agente", "vendedor", cfg.OfficeSellers, cfg.OwnSellers)
	// the Bejuma office sells under free-text seller names, force the channel
	// before the generic rules see the row
	chain.Rules = append([]classify.Rule{
		{Match: classify.FieldContainsAny("vendedor", "BEJUMA"), Label: "OFICINA COMERCIAL"},
	}, chain.Rules...)
	chain.Apply(recs, "canal")

	for _, rec := range recs {
		rec["vendedor"] = normalize.Upper(rec["vendedor"])
		rec["agente"] = normalize.Upper(rec["agente"])
		if d, ok := rec["fecha"].Time(); ok {
			rec["periodo"] = normalize.String(periods.Label(periods.MagnetResolver{}.Snap(d)))
		} else {
			rec["periodo"] = normalize.Null
		}
	}
	return recs
}
