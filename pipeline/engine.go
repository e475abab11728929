package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"telcoetl/config"
	"telcoetl/etlerrors"
	"telcoetl/ingest"
	"telcoetl/normalize"
	"telcoetl/periods"
	"telcoetl/reconcile"
	"telcoetl/store"
)

// SelectionMode picks how the engine decides what is new.
type SelectionMode int

const (
	// ByFilename selects whole files whose period closes after the watermark.
	ByFilename SelectionMode = iota
	// ByContent reads every file and keeps only rows dated after the
	// watermark, for sources whose filenames carry no reliable period.
	ByContent
)

// Job configures one incremental run of the engine.
type Job struct {
	// Pipeline name, also the audit log key and the default source subdir.
	Name string
	// Exclude drops source files whose name contains this substring.
	Exclude string
	// Schema is the canonical column set expected from the source files.
	Schema normalize.Schema
	// Derived columns exist only in the snapshot, filled by Transform.
	Derived []normalize.Column
	// Selector resolves filename periods.
	Selector ingest.Selector
	Mode     SelectionMode
	// DateColumn is the watermark column of the snapshot.
	DateColumn string
	// KeyColumns and Keep drive deduplication after the merge.
	KeyColumns []string
	Keep       reconcile.KeepPolicy
	// Reconcile replaces the default merge+dedupe when set, for flows with a
	// bespoke survival policy.
	Reconcile func(history, batch []normalize.Record) []normalize.Record
	// Transform runs between normalization and reconciliation: row filters,
	// classification, enrichment, derived columns. May shrink the batch.
	Transform func(cfg *config.Config, recs []normalize.Record) []normalize.Record
	// Snapshot is the gold parquet filename.
	Snapshot string
}

// RunIncremental executes the shared state machine: watermark, select, read,
// normalize, transform, merge, dedupe, persist, audit. Per-file failures are
// logged and skipped; a corrupt snapshot degrades to a full reload; only a
// locked destination aborts the pipeline.
func RunIncremental(ctx context.Context, cfg *config.Config, job Job) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.NewString(),
		Pipeline:  job.Name,
		StartedAt: time.Now(),
	}
	err := runIncremental(ctx, cfg, job, report)
	report.FinishedAt = time.Now()
	if err != nil {
		report.Message = err.Error()
	}
	audit(cfg, report, err)
	return report, err
}

func runIncremental(ctx context.Context, cfg *config.Config, job Job, report *RunReport) error {
	snapshot := cfg.GoldPath(job.Snapshot)
	snapshotSchema := normalize.Schema{
		Columns: append(append([]normalize.Column{}, job.Schema.Columns...), job.Derived...),
	}

	watermark := loadWatermark(snapshot, job.DateColumn)
	report.Watermark = watermark

	paths, err := ingest.Scan(cfg.SourceDir(job.Name), job.Exclude)
	if err != nil {
		return err
	}

	var selected []ingest.File
	var skipped int
	if job.Mode == ByFilename {
		selected, skipped = job.Selector.SelectAfter(paths, watermark)
	} else {
		// content mode reads everything and filters rows afterwards
		selected, skipped = job.Selector.SelectAfter(paths, time.Time{})
	}
	report.FilesSelected = len(selected)
	report.FilesSkipped = skipped
	log.Printf("INFO: %s: %d files selected, %d skipped (watermark %s)",
		job.Name, len(selected), skipped, renderWatermark(watermark))

	normalizer := normalize.New(job.Schema)
	var batch []normalize.Record
	for _, res := range ingest.ReadAll(ctx, selected, cfg.ReadWorkers) {
		if res.Err != nil {
			log.Printf("WARN: %s: skipping %s: %v", job.Name, res.File.Name(), res.Err)
			report.FilesSelected--
			report.FilesSkipped++
			continue
		}
		recs := normalizer.Rows(res.Rows, res.File.Name())
		log.Printf("INFO: %s: %s: %d rows", job.Name, res.File.Name(), len(recs))
		batch = append(batch, recs...)
	}
	report.RowsRead = len(batch)

	if job.Mode == ByContent {
		batch = filterAfter(batch, job.DateColumn, watermark)
	}
	if job.Transform != nil {
		batch = job.Transform(cfg, batch)
	}

	if len(batch) == 0 {
		log.Printf("INFO: %s: nothing new, snapshot untouched", job.Name)
		return nil
	}

	history := loadHistory(snapshot, snapshotSchema)
	var merged []normalize.Record
	if job.Reconcile != nil {
		merged = job.Reconcile(history, batch)
	} else {
		merged = reconcile.Merge(history, batch)
		if len(job.KeyColumns) > 0 {
			merged = reconcile.Deduplicate(merged, job.KeyColumns, job.Keep)
		}
	}
	report.RowsKept = len(merged)

	if err := persist(snapshot, snapshotSchema, merged); err != nil {
		return err
	}
	report.Persisted = true
	log.Printf("INFO: %s: snapshot %s now holds %d rows", job.Name, job.Snapshot, len(merged))
	return nil
}

// loadWatermark reads the newest date of the snapshot. A missing or corrupt
// snapshot degrades to a full reload instead of failing the run.
func loadWatermark(snapshot, dateColumn string) time.Time {
	if dateColumn == "" {
		return time.Time{}
	}
	if _, err := os.Stat(snapshot); err != nil {
		log.Printf("WARN: no snapshot at %s, full reload", snapshot)
		return time.Time{}
	}
	max, found, err := store.MaxDate(snapshot, dateColumn)
	if err != nil || !found {
		log.Printf("WARN: unreadable watermark in %s, full reload: %v",
			snapshot, etlerrors.NewWatermarkError(snapshot, err))
		return time.Time{}
	}
	return max
}

// loadHistory reads the current snapshot, degrading to empty history when it
// is missing or unreadable.
func loadHistory(snapshot string, schema normalize.Schema) []normalize.Record {
	if _, err := os.Stat(snapshot); err != nil {
		return nil
	}
	history, err := store.Read(snapshot, schema)
	if err != nil {
		log.Printf("WARN: unreadable snapshot %s, rebuilding from batch: %v", snapshot, err)
		return nil
	}
	return history
}

func persist(snapshot string, schema normalize.Schema, rows []normalize.Record) error {
	if err := os.MkdirAll(filepath.Dir(snapshot), 0o755); err != nil {
		return etlerrors.NewPersistError(snapshot, err)
	}
	return reconcile.AtomicPersist(snapshot, func(tmp string) error {
		return store.Write(tmp, schema.Names(), rows)
	})
}

// filterAfter keeps rows whose date column is strictly after the watermark.
// Rows without a parseable date cannot be positioned against the watermark
// and are dropped with a count.
func filterAfter(recs []normalize.Record, dateColumn string, watermark time.Time) []normalize.Record {
	out := recs[:0]
	undated := 0
	for _, rec := range recs {
		t, ok := rec[dateColumn].Time()
		if !ok {
			undated++
			continue
		}
		if t.After(watermark) {
			out = append(out, rec)
		}
	}
	if undated > 0 {
		log.Printf("WARN: dropped %d rows without a date in %q", undated, dateColumn)
	}
	return out
}

func renderWatermark(t time.Time) string {
	if t.IsZero() {
		return "none"
	}
	return t.Format("2006-01-02")
}

// audit appends the run outcome to the sqlite log. Audit failures are logged
// and never fail the run.
func audit(cfg *config.Config, report *RunReport, runErr error) {
	if cfg.AuditDBPath == "" {
		return
	}
	s, err := store.OpenAudit(cfg.AuditDBPath)
	if err != nil {
		log.Printf("WARN: audit log unavailable: %v", err)
		return
	}
	defer s.Close()

	status := "ok"
	if runErr != nil {
		status = "error"
	}
	rec := store.RunAudit{
		ID:            report.RunID,
		Pipeline:      report.Pipeline,
		StartedAt:     report.StartedAt,
		FinishedAt:    report.FinishedAt,
		FilesSelected: report.FilesSelected,
		FilesSkipped:  report.FilesSkipped,
		RowsRead:      report.RowsRead,
		RowsKept:      report.RowsKept,
		Status:        status,
		Message:       report.Message,
	}
	if err := s.Record(rec); err != nil {
		log.Printf("WARN: audit write failed: %v", err)
	}
}

// allResolvers lists every filename convention, for ambiguity detection.
func allResolvers(cfg *config.Config) []periods.Resolver {
	return []periods.Resolver{
		periods.RangeResolver{},
		periods.MagnetResolver{},
		periods.TokenResolver{Year: cfg.ReferenceYear},
	}
}

// splitKey2 undoes a two-column reconcile.Key.
func splitKey2(key string) (string, string) {
	parts := strings.SplitN(key, "\x1f", 2)
	if len(parts) != 2 {
		return key, ""
	}
	return parts[0], parts[1]
}

// String renders the report for the CLI.
func (r *RunReport) String() string {
	return fmt.Sprintf("%s: %d files (%d skipped), %d rows read, %d rows kept, persisted=%v",
		r.Pipeline, r.FilesSelected, r.FilesSkipped, r.RowsRead, r.RowsKept, r.Persisted)
}
