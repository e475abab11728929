package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"telcoetl/config"
	"telcoetl/ingest"
	"telcoetl/normalize"
	"telcoetl/periods"
	"telcoetl/reconcile"
	"telcoetl/store"
)

func writeWorkbook(t *testing.T, path string, rows [][]string) {
	t.Helper()
	wb := excelize.NewFile()
	sheet := wb.GetSheetName(0)
	for i, row := range rows {
		for j, cell := range row {
			ref, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, wb.SetCellValue(sheet, ref, cell))
		}
	}
	require.NoError(t, wb.SaveAs(path))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default(t.TempDir())
	cfg.AuditDBPath = "" // most engine tests do not exercise the audit log
	return cfg
}

func paymentsSchema() normalize.Schema {
	return normalize.Schema{Columns: []normalize.Column{
		{Name: "abonado", Kind: normalize.ID},
		{Name: "fecha", Kind: normalize.Date},
		{Name: "monto", Kind: normalize.Amount},
	}}
}

func paymentsJob() Job {
	return Job{
		Name:       "pagos",
		Schema:     paymentsSchema(),
		Selector:   ingest.Selector{Resolver: periods.RangeResolver{}},
		Mode:       ByFilename,
		DateColumn: "fecha",
		KeyColumns: []string{"abonado", "fecha"},
		Keep:       reconcile.KeepFirst,
		Snapshot:   "pagos.parquet",
	}
}

func sourceDir(t *testing.T, cfg *config.Config, pipeline string) string {
	t.Helper()
	dir := filepath.Join(cfg.RawRoot, pipeline)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return dir
}

func TestRunIncremental_InitialLoadAndWatermark(t *testing.T) {
	cfg := testConfig(t)
	dir := sourceDir(t, cfg, "pagos")

	writeWorkbook(t, filepath.Join(dir, "Pagos 1-7-2025 al 15-7-2025.xlsx"), [][]string{
		{"Abonado", "Fecha", "Monto"},
		{"100", "10/7/2025", "50"},
		{"101", "12/7/2025", "75"},
	})

	report, err := RunIncremental(context.Background(), cfg, paymentsJob())
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesSelected)
	assert.Equal(t, 2, report.RowsRead)
	assert.Equal(t, 2, report.RowsKept)
	assert.True(t, report.Persisted)

	// second run: same file closes before the new watermark and is skipped
	report, err = RunIncremental(context.Background(), cfg, paymentsJob())
	require.NoError(t, err)
	assert.Equal(t, 0, report.FilesSelected)
	assert.Equal(t, 1, report.FilesSkipped)
	assert.False(t, report.Persisted)
	assert.Equal(t, time.Date(2025, time.July, 12, 0, 0, 0, 0, time.UTC), report.Watermark)

	// a newer fortnight extends the history without duplicating it
	writeWorkbook(t, filepath.Join(dir, "Pagos 16-7-2025 al 31-7-2025.xlsx"), [][]string{
		{"Abonado", "Fecha", "Monto"},
		{"100", "20/7/2025", "60"},
	})
	report, err = RunIncremental(context.Background(), cfg, paymentsJob())
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesSelected)
	assert.Equal(t, 3, report.RowsKept)

	rows, err := store.Read(cfg.GoldPath("pagos.parquet"), paymentsSchema())
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestRunIncremental_DuplicateBatchKeepsHistory(t *testing.T) {
	cfg := testConfig(t)
	dir := sourceDir(t, cfg, "pagos")

	writeWorkbook(t, filepath.Join(dir, "Pagos 1-7-2025 al 15-7-2025.xlsx"), [][]string{
		{"Abonado", "Fecha", "Monto"},
		{"100", "10/7/2025", "50"},
	})
	_, err := RunIncremental(context.Background(), cfg, paymentsJob())
	require.NoError(t, err)

	// a re-export of the same fortnight with a conflicting amount, named so
	// it passes the watermark
	writeWorkbook(t, filepath.Join(dir, "Pagos reenvio 1-7-2025 al 16-7-2025.xlsx"), [][]string{
		{"Abonado", "Fecha", "Monto"},
		{"100", "10/7/2025", "999"},
	})
	report, err := RunIncremental(context.Background(), cfg, paymentsJob())
	require.NoError(t, err)
	assert.Equal(t, 1, report.RowsKept)

	rows, err := store.Read(cfg.GoldPath("pagos.parquet"), paymentsSchema())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	amt, ok := rows[0]["monto"].Decimal()
	require.True(t, ok)
	assert.Equal(t, "50", amt.String())
}

func TestRunIncremental_UnreadableFileIsSkipped(t *testing.T) {
	cfg := testConfig(t)
	dir := sourceDir(t, cfg, "pagos")

	writeWorkbook(t, filepath.Join(dir, "Pagos 1-7-2025 al 15-7-2025.xlsx"), [][]string{
		{"Abonado", "Fecha", "Monto"},
		{"100", "10/7/2025", "50"},
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Pagos 16-7-2025 al 31-7-2025.xlsx"), []byte("junk"), 0o644))

	report, err := RunIncremental(context.Background(), cfg, paymentsJob())
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesSelected)
	assert.Equal(t, 1, report.FilesSkipped)
	assert.Equal(t, 1, report.RowsKept)
}

func TestRunIncremental_ContentMode(t *testing.T) {
	cfg := testConfig(t)
	dir := sourceDir(t, cfg, "pagos")

	job := paymentsJob()
	job.Mode = ByContent
	job.Selector = ingest.Selector{}
	job.Keep = reconcile.KeepLast

	writeWorkbook(t, filepath.Join(dir, "export clientes.xlsx"), [][]string{
		{"Abonado", "Fecha", "Monto"},
		{"100", "10/7/2025", "50"},
		{"101", "12/7/2025", "75"},
		{"102", "", "10"}, // undated, cannot be positioned, dropped
	})
	report, err := RunIncremental(context.Background(), cfg, job)
	require.NoError(t, err)
	assert.Equal(t, 2, report.RowsKept)

	// rerun with one genuinely new row in the same file
	writeWorkbook(t, filepath.Join(dir, "export clientes.xlsx"), [][]string{
		{"Abonado", "Fecha", "Monto"},
		{"100", "10/7/2025", "50"},
		{"101", "12/7/2025", "75"},
		{"103", "14/7/2025", "20"},
	})
	report, err = RunIncremental(context.Background(), cfg, job)
	require.NoError(t, err)
	assert.Equal(t, 3, report.RowsKept)
	assert.Equal(t, time.Date(2025, time.July, 12, 0, 0, 0, 0, time.UTC), report.Watermark)
}

func TestRunIncremental_EmptyBatchLeavesSnapshotUntouched(t *testing.T) {
	cfg := testConfig(t)
	sourceDir(t, cfg, "pagos")

	report, err := RunIncremental(context.Background(), cfg, paymentsJob())
	require.NoError(t, err)
	assert.False(t, report.Persisted)
	_, statErr := os.Stat(cfg.GoldPath("pagos.parquet"))
	assert.Error(t, statErr)
}

func TestRunIncremental_WritesAudit(t *testing.T) {
	cfg := testConfig(t)
	cfg.AuditDBPath = filepath.Join(filepath.Dir(cfg.RawRoot), "audit.db")
	dir := sourceDir(t, cfg, "pagos")

	writeWorkbook(t, filepath.Join(dir, "Pagos 1-7-2025 al 15-7-2025.xlsx"), [][]string{
		{"Abonado", "Fecha", "Monto"},
		{"100", "10/7/2025", "50"},
	})
	report, err := RunIncremental(context.Background(), cfg, paymentsJob())
	require.NoError(t, err)

	s, err := store.OpenAudit(cfg.AuditDBPath)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.Recent(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, report.RunID, runs[0].ID)
	assert.Equal(t, "ok", runs[0].Status)
	assert.Equal(t, 1, runs[0].RowsKept)
}
