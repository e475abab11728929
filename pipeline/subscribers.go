package pipeline

import (
	"context"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"telcoetl/config"
	"telcoetl/ingest"
	"telcoetl/normalize"
	"telcoetl/periods"
	"telcoetl/reconcile"
)

// Subscribers aggregates the subscriber base exports into per-franchise,
// per-fortnight counts. Each export is one cut of the base; its filename date
// snaps to a quincena and the file contributes one count per franchise for
// that period. The engine is not reused here because the aggregation needs
// the period of each file, which generic normalization does not carry.
type Subscribers struct{}

// NewSubscribers builds the pipeline.
func NewSubscribers() *Subscribers { return &Subscribers{} }

// Name implements Pipeline.
func (s *Subscribers) Name() string { return "abonados" }

func subscribersSchema() normalize.Schema {
	return normalize.Schema{Columns: []normalize.Column{
		{Name: "abonado", Kind: normalize.ID, Aliases: []string{"nro abonado", "codigo de abonado"}},
		{Name: "franquicia", Kind: normalize.Text, Aliases: []string{"sucursal", "idf"}},
		{Name: "estatus", Kind: normalize.Text, Aliases: []string{"estado"}},
	}}
}

func subscriberCountsSchema() normalize.Schema {
	return normalize.Schema{Columns: []normalize.Column{
		{Name: "franquicia", Kind: normalize.Text},
		{Name: "periodo", Kind: normalize.Text},
		{Name: "abonados", Kind: normalize.Amount},
	}}
}

// Run implements Pipeline.
func (s *Subscribers) Run(ctx context.Context, cfg *config.Config) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.NewString(),
		Pipeline:  s.Name(),
		StartedAt: time.Now(),
	}
	err := s.run(ctx, cfg, report)
	report.FinishedAt = time.Now()
	if err != nil {
		report.Message = err.Error()
	}
	audit(cfg, report, err)
	return report, err
}

func (s *Subscribers) run(ctx context.Context, cfg *config.Config, report *RunReport) error {
	paths, err := ingest.Scan(cfg.SourceDir(s.Name()), "")
	if err != nil {
		return err
	}
	sel := ingest.Selector{Resolver: periods.MagnetResolver{}, All: allResolvers(cfg)}
	selected, skipped := sel.SelectAfter(paths, time.Time{})
	report.FilesSelected = len(selected)
	report.FilesSkipped = skipped

	normalizer := normalize.New(subscribersSchema())
	var batch []normalize.Record
	var readFiles []ingest.File
	for _, res := range ingest.ReadAll(ctx, selected, cfg.ReadWorkers) {
		if res.Err != nil {
			log.Printf("WARN: %s: skipping %s: %v", s.Name(), res.File.Name(), res.Err)
			report.FilesSelected--
			report.FilesSkipped++
			continue
		}
		recs := normalizer.Rows(res.Rows, res.File.Name())
		report.RowsRead += len(recs)
		batch = append(batch, s.countFile(res.File, recs)...)
		readFiles = append(readFiles, res.File)
	}
	if len(batch) == 0 {
		log.Printf("INFO: %s: nothing new, snapshot untouched", s.Name())
		return nil
	}

	snapshot := cfg.GoldPath("abonados.parquet")
	history := loadHistory(snapshot, subscriberCountsSchema())
	merged := reconcile.Merge(history, batch)
	// a re-exported cut of the same fortnight replaces the old count
	merged = reconcile.Deduplicate(merged, []string{"franquicia", "periodo"}, reconcile.KeepLast)
	sort.SliceStable(merged, func(i, j int) bool {
		return reconcile.Key(merged[i], []string{"periodo", "franquicia"}) <
			reconcile.Key(merged[j], []string{"periodo", "franquicia"})
	})
	report.RowsKept = len(merged)

	if err := persist(snapshot, subscriberCountsSchema(), merged); err != nil {
		return err
	}
	report.Persisted = true

	if err := s.writeYearly(cfg, batch, ingest.BestPerYear(readFiles)); err != nil {
		log.Printf("WARN: %s: yearly statistic rebuild failed: %v", s.Name(), err)
	}
	return nil
}

// countFile reduces one export to distinct-subscriber counts per franchise.
func (s *Subscribers) countFile(f ingest.File, recs []normalize.Record) []normalize.Record {
	if !f.HasPeriod {
		log.Printf("WARN: %s has no period, file not counted", f.Name())
		return nil
	}
	seen := make(map[string]map[string]bool)
	for _, rec := range recs {
		fr := rec["franquicia"].Str()
		if fr == "" {
			continue
		}
		if seen[fr] == nil {
			seen[fr] = make(map[string]bool)
		}
		seen[fr][rec["abonado"].Render()] = true
	}
	franchises := make([]string, 0, len(seen))
	for fr := range seen {
		franchises = append(franchises, fr)
	}
	sort.Strings(franchises)

	out := make([]normalize.Record, 0, len(franchises))
	for _, fr := range franchises {
		out = append(out, normalize.Record{
			"franquicia":           normalize.String(fr),
			"periodo":              normalize.String(f.Period.Label),
			"abonados":             normalize.Decimal(decimal.NewFromInt(int64(len(seen[fr])))),
			normalize.SourceColumn: normalize.String(f.Name()),
		})
	}
	return out
}

// writeYearly keeps one statistic per calendar year, taken from that year's
// newest cut: the total subscriber count across franchises.
func (s *Subscribers) writeYearly(cfg *config.Config, batch []normalize.Record, best []ingest.File) error {
	bestSource := make(map[int]string)
	for _, f := range best {
		bestSource[f.Period.End.Year()] = f.Name()
	}

	schema := normalize.Schema{Columns: []normalize.Column{
		{Name: "anio", Kind: normalize.Text},
		{Name: "abonados", Kind: normalize.Amount},
	}}
	years := make([]int, 0, len(bestSource))
	for y := range bestSource {
		years = append(years, y)
	}
	sort.Ints(years)

	out := make([]normalize.Record, 0, len(years))
	for _, y := range years {
		total := decimal.Zero
		for _, rec := range batch {
			if rec[normalize.SourceColumn].Str() != bestSource[y] {
				continue
			}
			if n, ok := rec["abonados"].Decimal(); ok {
				total = total.Add(n)
			}
		}
		out = append(out, normalize.Record{
			"anio":                 normalize.String(strconv.Itoa(y)),
			"abonados":             normalize.Decimal(total),
			normalize.SourceColumn: normalize.String(bestSource[y]),
		})
	}
	if len(out) == 0 {
		return nil
	}
	return persist(cfg.GoldPath("estadistica_abonados.parquet"), schema, out)
}
