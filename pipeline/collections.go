package pipeline

import (
	"context"
	"log"
	"sort"

	"telcoetl/classify"
	"telcoetl/config"
	"telcoetl/ingest"
	"telcoetl/normalize"
	"telcoetl/periods"
	"telcoetl/reconcile"
)

// Collections consolidates payment exports with channel classification.
type Collections struct{}

// NewCollections builds the pipeline.
func NewCollections() *Collections { return &Collections{} }

// Name implements Pipeline.
func (c *Collections) Name() string { return "cobranza" }

func collectionsSchema() normalize.Schema {
	return normalize.Schema{Columns: []normalize.Column{
		{Name: "abonado", Kind: normalize.ID, Aliases: []string{"nro abonado", "codigo de abonado"}},
		{Name: "fecha_pago", Kind: normalize.Date, Aliases: []string{"fecha de pago", "fecha"}},
		{Name: "monto", Kind: normalize.Amount, Aliases: []string{"monto pagado", "importe"}},
		{Name: "forma_pago", Kind: normalize.Text, Aliases: []string{"forma de pago", "metodo de pago"}},
		{Name: "registrado_por", Kind: normalize.Text, Aliases: []string{"registrado por", "cajero"}},
		{Name: "franquicia", Kind: normalize.Text, Aliases: []string{"sucursal"}},
	}}
}

// Run implements Pipeline.
func (c *Collections) Run(ctx context.Context, cfg *config.Config) (*RunReport, error) {
	job := Job{
		Name:       c.Name(),
		Exclude:    "anulados",
		Schema:     collectionsSchema(),
		Selector:   ingest.Selector{Resolver: periods.RangeResolver{}, All: allResolvers(cfg)},
		Mode:       ByFilename,
		DateColumn: "fecha_pago",
		Derived: []normalize.Column{
			{Name: "canal", Kind: normalize.Text},
			{Name: "periodo", Kind: normalize.Text},
		},
		Transform: transformCollections,
		Reconcile: reconcileCollections,
		Snapshot:  "cobranza.parquet",
	}
	return RunIncremental(ctx, cfg, job)
}

func transformCollections(cfg *config.Config, recs []normalize.Record) []normalize.Record {
	// a payment without a subscriber cannot be attributed to anything
	kept := recs[:0]
	dropped := 0
	for _, rec := range recs {
		if rec["abonado"].IsNull() || rec["abonado"].Str() == "" {
			dropped++
			continue
		}
		kept = append(kept, rec)
	}
	if dropped > 0 {
		log.Printf("INFO: excluded %d payments without subscriber id", dropped)
	}

	chain := classify.CollectionsChannel("registrado_por")
	chain.Apply(kept, "canal")
	for _, rec := range kept {
		if d, ok := rec["fecha_pago"].Time(); ok {
			rec["periodo"] = normalize.String(periods.Label(periods.MagnetResolver{}.Snap(d)))
		} else {
			rec["periodo"] = normalize.Null
		}
	}
	return kept
}

// reconcileCollections is the default merge+dedupe plus a stable sort by
// payment date, so the snapshot reads chronologically.
func reconcileCollections(history, batch []normalize.Record) []normalize.Record {
	merged := reconcile.Merge(history, batch)
	merged = reconcile.Deduplicate(merged,
		[]string{"abonado", "fecha_pago", "monto", "registrado_por"}, reconcile.KeepFirst)
	sort.SliceStable(merged, func(i, j int) bool {
		ti, _ := merged[i]["fecha_pago"].Time()
		tj, _ := merged[j]["fecha_pago"].Time()
		return ti.Before(tj)
	})
	return merged
}
