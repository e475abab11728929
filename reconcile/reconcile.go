// Package reconcile folds freshly ingested batches into history snapshots:
// order-preserving union, business-key deduplication and atomic persistence.
package reconcile

import (
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"
	"syscall"

	"telcoetl/etlerrors"
	"telcoetl/normalize"
	"telcoetl/periods"
)

// KeepPolicy selects which duplicate survives deduplication.
type KeepPolicy int

const (
	// KeepFirst keeps the earliest occurrence, protecting history from being
	// overwritten by a re-exported batch.
	KeepFirst KeepPolicy = iota
	// KeepLast keeps the latest occurrence, letting fresh data supersede
	// history.
	KeepLast
)

// Merge returns history followed by batch, preserving order within each side.
// An empty side returns the other unchanged.
func Merge(history, batch []normalize.Record) []normalize.Record {
	if len(history) == 0 {
		return batch
	}
	if len(batch) == 0 {
		return history
	}
	out := make([]normalize.Record, 0, len(history)+len(batch))
	out = append(out, history...)
	return append(out, batch...)
}

// Key builds the composite business key of a record over the given columns.
// Null renders empty, so two records null in the same column still collide.
func Key(rec normalize.Record, cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = rec[c].Render()
	}
	return strings.Join(parts, "\x1f")
}

// Deduplicate removes duplicate business keys, keeping the first or last
// occurrence per the policy. Output preserves the input order of survivors.
func Deduplicate(rows []normalize.Record, keyCols []string, keep KeepPolicy) []normalize.Record {
	if len(rows) == 0 {
		return rows
	}
	if keep == KeepLast {
		// last occurrence wins: pick the final index per key, then re-walk in
		// order keeping only those
		winner := make(map[string]int, len(rows))
		for i, rec := range rows {
			winner[Key(rec, keyCols)] = i
		}
		out := make([]normalize.Record, 0, len(winner))
		for i, rec := range rows {
			if winner[Key(rec, keyCols)] == i {
				out = append(out, rec)
			}
		}
		return out
	}
	seen := make(map[string]bool, len(rows))
	out := make([]normalize.Record, 0, len(rows))
	for _, rec := range rows {
		k := Key(rec, keyCols)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, rec)
	}
	return out
}

// SCDKeepNewest deduplicates a roster on the combined name+office key,
// keeping the row whose source file carries the newest date. A person keeps
// one row per office they ever appeared in, and that row reflects the latest
// export that listed the combination.
func SCDKeepNewest(rows []normalize.Record, nameCol, officeCol string) []normalize.Record {
	type dated struct {
		rec  normalize.Record
		when int64
	}
	newest := make(map[string]dated, len(rows))
	order := make([]string, 0, len(rows))
	for _, rec := range rows {
		k := Key(rec, []string{nameCol, officeCol})
		var when int64
		if d, ok := periods.CompactFileDate(rec[normalize.SourceColumn].Str()); ok {
			when = d.Unix()
		}
		prev, exists := newest[k]
		if !exists {
			order = append(order, k)
		}
		if !exists || when >= prev.when {
			newest[k] = dated{rec: rec, when: when}
		}
	}
	out := make([]normalize.Record, 0, len(order))
	for _, k := range order {
		out = append(out, newest[k].rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return Key(out[i], []string{nameCol, officeCol}) < Key(out[j], []string{nameCol, officeCol})
	})
	return out
}

// AtomicPersist replaces the snapshot at path through a temp file: write is
// given a sibling ".tmp" path, then the old snapshot is removed and the temp
// renamed into place. A destination held open by another program (Power BI
// refreshing, the file open in Excel) surfaces as the distinct file-locked
// error so the run can abort the pipeline without touching the old snapshot.
func AtomicPersist(path string, write func(tmpPath string) error) error {
	tmp := path + ".tmp"
	if err := write(tmp); err != nil {
		os.Remove(tmp)
		return etlerrors.NewPersistError(path, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		os.Remove(tmp)
		if isLocked(err) {
			return etlerrors.NewFileLockedError(path, err)
		}
		return etlerrors.NewPersistError(path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		if isLocked(err) {
			return etlerrors.NewFileLockedError(path, err)
		}
		return etlerrors.NewPersistError(path, err)
	}
	return nil
}

// isLocked recognizes the errno family Windows and SMB shares raise when the
// destination is held open elsewhere.
func isLocked(err error) bool {
	if errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.EACCES) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "being used by another process") ||
		strings.Contains(msg, "sharing violation") ||
		strings.Contains(msg, "permission denied")
}
