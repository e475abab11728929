package pipeline

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"telcoetl/config"
	"telcoetl/match"
	"telcoetl/normalize"
	"telcoetl/store"
)

// Attendance consolidates the customer-facing operations recorded by the
// channel pipelines (sales, payments, service orders) into one footfall
// snapshot, resolving who attended each operation to a commercial office via
// fuzzy roster matching. It is a full rebuild on every run, reading the gold
// snapshots its siblings maintain.
type Attendance struct{}

// NewAttendance builds the pipeline.
func NewAttendance() *Attendance { return &Attendance{} }

// Name implements Pipeline.
func (a *Attendance) Name() string { return "afluencia" }

func attendanceSchema() normalize.Schema {
	return normalize.Schema{Columns: []normalize.Column{
		{Name: "fecha", Kind: normalize.Date},
		{Name: "abonado", Kind: normalize.ID},
		{Name: "operacion", Kind: normalize.Text},
		{Name: "atendido_por", Kind: normalize.Text},
		{Name: "franquicia", Kind: normalize.Text},
		{Name: "oficina", Kind: normalize.Text},
		{Name: "periodo", Kind: normalize.Text},
	}}
}

// footfallSilverSchema is the consolidated batch before office enrichment.
func footfallSilverSchema() normalize.Schema {
	return normalize.Schema{Columns: []normalize.Column{
		{Name: "fecha", Kind: normalize.Date},
		{Name: "abonado", Kind: normalize.ID},
		{Name: "operacion", Kind: normalize.Text},
		{Name: "atendido_por", Kind: normalize.Text},
		{Name: "franquicia", Kind: normalize.Text},
		{Name: "periodo", Kind: normalize.Text},
	}}
}

// Run implements Pipeline.
func (a *Attendance) Run(ctx context.Context, cfg *config.Config) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.NewString(),
		Pipeline:  a.Name(),
		StartedAt: time.Now(),
	}
	err := a.run(cfg, report)
	report.FinishedAt = time.Now()
	if err != nil {
		report.Message = err.Error()
	}
	audit(cfg, report, err)
	return report, err
}

func (a *Attendance) run(cfg *config.Config, report *RunReport) error {
	matcher, err := a.buildMatcher(cfg)
	if err != nil {
		return err
	}

	var batch []normalize.Record
	for _, src := range []struct {
		snapshot  string
		operation string
		schema    normalize.Schema
		dateCol   string
		whoCol    string
	}{
		{"ventas.parquet", "VENTA", salesSchema(), "fecha", "vendedor"},
		{"cobranza.parquet", "PAGO", collectionsSchema(), "fecha_pago", "registrado_por"},
		{"ordenes_servicio.parquet", "ORDEN DE SERVICIO", ticketSnapshotSchema(), "fecha_creacion", "usuario"},
	} {
		path := cfg.GoldPath(src.snapshot)
		if _, statErr := os.Stat(path); statErr != nil {
			log.Printf("WARN: %s: no %s yet, source skipped", a.Name(), src.snapshot)
			report.FilesSkipped++
			continue
		}
		rows, readErr := store.Read(path, src.schema)
		if readErr != nil {
			log.Printf("WARN: %s: unreadable %s, source skipped: %v", a.Name(), src.snapshot, readErr)
			report.FilesSkipped++
			continue
		}
		report.FilesSelected++
		report.RowsRead += len(rows)
		batch = append(batch, a.toFootfall(rows, src.operation, src.dateCol, src.whoCol, src.snapshot)...)
	}
	if len(batch) == 0 {
		log.Printf("INFO: %s: no source snapshots, nothing to consolidate", a.Name())
		return nil
	}

	// The consolidated batch is kept as a silver intermediate before office
	// enrichment, so a re-run with a fresher roster can start from it.
	if err := persist(cfg.SilverPath("afluencia.parquet"), footfallSilverSchema(), batch); err != nil {
		log.Printf("WARN: %s: silver intermediate not written: %v", a.Name(), err)
	}

	matcher.Enrich(batch, "atendido_por", "oficina")
	report.RowsKept = len(batch)

	if err := persist(cfg.GoldPath("afluencia.parquet"), attendanceSchema(), batch); err != nil {
		return err
	}
	report.Persisted = true
	return nil
}

// buildMatcher assembles the tiered office matcher: employee master first,
// advisor universe second, keyword rules last. Missing rosters degrade to the
// later tiers.
func (a *Attendance) buildMatcher(cfg *config.Config) (*match.Matcher, error) {
	var rosters []match.Roster
	if recs := loadHistory(cfg.GoldPath("empleados.parquet"), rosterSchema()); len(recs) > 0 {
		rosters = append(rosters, match.RosterFromRecords("empleados", recs, "nombre", "oficina"))
	} else {
		log.Printf("WARN: %s: employee roster unavailable", a.Name())
	}
	advisorSchema := normalize.Schema{Columns: []normalize.Column{
		{Name: "nombre", Kind: normalize.Text},
		{Name: "oficina", Kind: normalize.Text},
	}}
	if recs := loadHistory(cfg.GoldPath("universo_asesores.parquet"), advisorSchema); len(recs) > 0 {
		rosters = append(rosters, match.RosterFromRecords("asesores", recs, "nombre", "oficina"))
	}
	m := match.NewMatcher(rosters, match.DefaultKeywordRules())
	m.Threshold = cfg.FuzzyThreshold
	return m, nil
}

func (a *Attendance) toFootfall(rows []normalize.Record, operation, dateCol, whoCol, source string) []normalize.Record {
	out := make([]normalize.Record, 0, len(rows))
	for _, rec := range rows {
		foot := normalize.Record{
			"fecha":                rec[dateCol],
			"abonado":              rec["abonado"],
			"operacion":            normalize.String(operation),
			"atendido_por":         rec[whoCol],
			"franquicia":           rec["franquicia"],
			"periodo":              rec["periodo"],
			normalize.SourceColumn: normalize.String(source),
		}
		out = append(out, foot)
	}
	return out
}
