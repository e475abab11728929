package pipeline

import (
	"context"
	"log"
	"sort"

	"github.com/shopspring/decimal"

	"telcoetl/classify"
	"telcoetl/config"
	"telcoetl/ingest"
	"telcoetl/normalize"
	"telcoetl/periods"
	"telcoetl/reconcile"
	"telcoetl/store"
)

// Tickets consolidates service-order exports: exclusion of non-business
// tickets, NOC/operations ownership, per-ticket resolution minutes and a
// per-area summary snapshot.
type Tickets struct{}

// NewTickets builds the pipeline.
func NewTickets() *Tickets { return &Tickets{} }

// Name implements Pipeline.
func (t *Tickets) Name() string { return "ordenes_servicio" }

func ticketSchema() normalize.Schema {
	return normalize.Schema{Columns: []normalize.Column{
		{Name: "orden", Kind: normalize.ID, Aliases: []string{"n° de orden de servicio", "nro orden", "orden de servicio"}},
		{Name: "abonado", Kind: normalize.ID, Aliases: []string{"nro abonado", "codigo de abonado"}},
		{Name: "fecha_creacion", Kind: normalize.Date, Aliases: []string{"fecha de creacion", "fecha de creación"}},
		{Name: "fecha_cierre", Kind: normalize.Date, Aliases: []string{"fecha de cierre", "fecha de finalizacion"}},
		{Name: "grupo", Kind: normalize.Text, Aliases: []string{"grupo de atencion", "grupo de atención"}},
		{Name: "usuario", Kind: normalize.Text, Aliases: []string{"usuario de cierre", "cerrado por"}},
		{Name: "solucion", Kind: normalize.Text, Aliases: []string{"solución", "tipo de solucion"}},
		{Name: "detalle", Kind: normalize.Text, Aliases: []string{"detalle de orden"}},
		{Name: "estatus", Kind: normalize.Text, Aliases: []string{"estado"}},
		{Name: "franquicia", Kind: normalize.Text, Aliases: []string{"sucursal"}},
	}}
}

// Run implements Pipeline.
func (t *Tickets) Run(ctx context.Context, cfg *config.Config) (*RunReport, error) {
	job := Job{
		Name:       t.Name(),
		Exclude:    "anulados",
		Schema:     ticketSchema(),
		Selector:   ingest.Selector{Resolver: periods.RangeResolver{}, All: allResolvers(cfg)},
		Mode:       ByFilename,
		DateColumn: "fecha_creacion",
		Derived:    ticketDerived(),
		KeyColumns: []string{"orden"},
		Keep:       reconcile.KeepFirst,
		Transform:  transformTickets,
		Snapshot:   "ordenes_servicio.parquet",
	}
	report, err := RunIncremental(ctx, cfg, job)
	if err != nil {
		return report, err
	}
	if report.Persisted {
		if err := t.writeSummary(cfg); err != nil {
			log.Printf("WARN: %s: summary rebuild failed: %v", t.Name(), err)
		}
	}
	return report, nil
}

func transformTickets(cfg *config.Config, recs []normalize.Record) []normalize.Record {
	filter := classify.TicketExclusions("solucion", "grupo", "detalle", "estatus", cfg.ExcludedSolutions)
	kept, _ := filter.Split(recs)

	chain := classify.TicketOwnership("usuario", "grupo", cfg.NOCUsers, cfg.NOCGroups)
	chain.Apply(kept, "area")

	for _, rec := range kept {
		rec["minutos_resolucion"] = resolutionMinutes(rec)
		if end, ok := rec["fecha_cierre"].Time(); ok {
			rec["periodo"] = normalize.String(periods.Label(periods.MagnetResolver{}.Snap(end)))
		} else {
			rec["periodo"] = normalize.Null
		}
	}
	return kept
}

// resolutionMinutes is the creation-to-close delta in minutes, null when
// either end is missing or the close precedes the creation.
func resolutionMinutes(rec normalize.Record) normalize.Value {
	created, ok1 := rec["fecha_creacion"].Time()
	closed, ok2 := rec["fecha_cierre"].Time()
	if !ok1 || !ok2 || closed.Before(created) {
		return normalize.Null
	}
	minutes := decimal.NewFromFloat(closed.Sub(created).Minutes()).Round(2)
	return normalize.Decimal(minutes)
}

func ticketDerived() []normalize.Column {
	return []normalize.Column{
		{Name: "area", Kind: normalize.Text},
		{Name: "minutos_resolucion", Kind: normalize.Amount},
		{Name: "periodo", Kind: normalize.Text},
	}
}

// ticketSnapshotSchema is the input schema plus the derived columns, for
// reading the snapshot back.
func ticketSnapshotSchema() normalize.Schema {
	s := ticketSchema()
	s.Columns = append(s.Columns, ticketDerived()...)
	return s
}

// writeSummary rebuilds the per-area, per-period aggregate: ticket counts and
// total resolution minutes.
func (t *Tickets) writeSummary(cfg *config.Config) error {
	rows, err := store.Read(cfg.GoldPath("ordenes_servicio.parquet"), ticketSnapshotSchema())
	if err != nil {
		return err
	}
	type bucket struct {
		orders  map[string]bool
		minutes decimal.Decimal
	}
	buckets := make(map[string]*bucket)
	for _, rec := range rows {
		key := reconcile.Key(rec, []string{"area", "periodo"})
		b, ok := buckets[key]
		if !ok {
			b = &bucket{orders: make(map[string]bool)}
			buckets[key] = b
		}
		b.orders[rec["orden"].Render()] = true
		if m, ok := rec["minutos_resolucion"].Decimal(); ok {
			b.minutes = b.minutes.Add(m)
		}
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	summarySchema := normalize.Schema{Columns: []normalize.Column{
		{Name: "area", Kind: normalize.Text},
		{Name: "periodo", Kind: normalize.Text},
		{Name: "ordenes", Kind: normalize.Amount},
		{Name: "minutos_totales", Kind: normalize.Amount},
	}}
	out := make([]normalize.Record, 0, len(keys))
	for _, k := range keys {
		b := buckets[k]
		area, periodo := splitKey2(k)
		out = append(out, normalize.Record{
			"area":                 normalize.String(area),
			"periodo":              normalize.String(periodo),
			"ordenes":              normalize.Decimal(decimal.NewFromInt(int64(len(b.orders)))),
			"minutos_totales":      normalize.Decimal(b.minutes),
			normalize.SourceColumn: normalize.String("ordenes_servicio.parquet"),
		})
	}
	return persist(cfg.GoldPath("resumen_ordenes.parquet"), summarySchema, out)
}
