package store

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// RunAudit is one pipeline execution as recorded in the audit database, both
// successful and failed runs included.
type RunAudit struct {
	ID            string
	Pipeline      string
	StartedAt     time.Time
	FinishedAt    time.Time
	FilesSelected int
	FilesSkipped  int
	RowsRead      int
	RowsKept      int
	Status        string
	Message       string
}

// AuditStore keeps the run history in a local sqlite database.
type AuditStore struct {
	db *sql.DB
}

// OpenAudit opens (creating if needed) the audit database at path.
func OpenAudit(path string) (*AuditStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		pipeline TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		files_selected INTEGER NOT NULL,
		files_skipped INTEGER NOT NULL,
		rows_read INTEGER NOT NULL,
		rows_kept INTEGER NOT NULL,
		status TEXT NOT NULL,
		message TEXT
	)`)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &AuditStore{db: db}, nil
}

// Record inserts one run.
func (s *AuditStore) Record(run RunAudit) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, pipeline, started_at, finished_at, files_selected,
			files_skipped, rows_read, rows_kept, status, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Pipeline,
		run.StartedAt.Format(time.RFC3339), run.FinishedAt.Format(time.RFC3339),
		run.FilesSelected, run.FilesSkipped, run.RowsRead, run.RowsKept,
		run.Status, run.Message)
	return err
}

// Recent returns the latest runs, newest first.
func (s *AuditStore) Recent(limit int) ([]RunAudit, error) {
	rows, err := s.db.Query(
		`SELECT id, pipeline, started_at, finished_at, files_selected,
			files_skipped, rows_read, rows_kept, status, message
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunAudit
	for rows.Next() {
		var r RunAudit
		var started, finished string
		var message sql.NullString
		if err := rows.Scan(&r.ID, &r.Pipeline, &started, &finished,
			&r.FilesSelected, &r.FilesSkipped, &r.RowsRead, &r.RowsKept,
			&r.Status, &message); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		r.Message = message.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (s *AuditStore) Close() error {
	return s.db.Close()
}
