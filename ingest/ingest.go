// Package ingest finds and reads the spreadsheet drops that feed each
// pipeline. Selection is incremental: filenames resolve to business periods
// and only files newer than the snapshot watermark are read. Reading is
// parallel and per-file failures never abort the batch.
package ingest

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"telcoetl/etlerrors"
	"telcoetl/periods"
)

// consolidated outputs of this same system must never be re-ingested as input
var consolidatedMarkers = []string{"consolidado", "consolidated"}

var spreadsheetExts = map[string]bool{".xlsx": true, ".xlsm": true, ".xls": true}

// Scan lists the spreadsheet files of a source directory, skipping editor
// lock files (~$ and $ prefixes), consolidated outputs and any name
// containing the exclusion substring.
func Scan(dir, exclude string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, etlerrors.NewFileReadError(dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "~$") || strings.HasPrefix(name, "$") {
			continue
		}
		if !spreadsheetExts[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		lower := strings.ToLower(name)
		if containsAny(lower, consolidatedMarkers) {
			continue
		}
		if exclude != "" && strings.Contains(lower, strings.ToLower(exclude)) {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// File is a selected input file with its resolved period. HasPeriod is false
// for fail-open selections whose name did not parse.
type File struct {
	Path      string
	Period    periods.Period
	HasPeriod bool
}

// Name returns the base filename.
func (f File) Name() string { return filepath.Base(f.Path) }

// Selector resolves filenames to periods using one canonical convention and
// flags filenames matching several conventions as errors.
type Selector struct {
	// Resolver is the pipeline's canonical filename convention.
	Resolver periods.Resolver
	// All holds every known convention, for ambiguity detection. Leave nil to
	// skip the check.
	All []periods.Resolver
}

// resolve parses one filename. The error is non-nil for ambiguous names,
// which the caller skips and counts. A nil Resolver selects everything
// without periods, for sources whose filenames carry none.
func (s Selector) resolve(path string) (File, error) {
	if s.Resolver == nil {
		return File{Path: path}, nil
	}
	if len(s.All) > 0 && periods.Ambiguous(path, s.All) {
		return File{}, etlerrors.NewAmbiguousPeriodError(filepath.Base(path))
	}
	p, ok := s.Resolver.Resolve(path)
	return File{Path: path, Period: p, HasPeriod: ok}, nil
}

// SelectAfter picks the files whose period closes after the watermark. Files
// with unparseable names are selected fail-open with a warning; duplicated
// work is cheaper than silently missing data. Ambiguous names are skipped and
// counted.
func (s Selector) SelectAfter(paths []string, watermark time.Time) (selected []File, skipped int) {
	for _, path := range paths {
		f, err := s.resolve(path)
		if err != nil {
			log.Printf("WARN: %v, skipping", err)
			skipped++
			continue
		}
		if !f.HasPeriod {
			if s.Resolver != nil {
				log.Printf("WARN: no period in filename %s, selecting anyway", f.Name())
			}
			selected = append(selected, f)
			continue
		}
		if f.Period.End.After(watermark) {
			selected = append(selected, f)
		} else {
			skipped++
		}
	}
	return selected, skipped
}

// SelectOverlapping picks the files whose period overlaps the required
// window. Used for auxiliary sources that contextualize a primary batch.
func (s Selector) SelectOverlapping(paths []string, required periods.Period) (selected []File, skipped int) {
	for _, path := range paths {
		f, err := s.resolve(path)
		if err != nil {
			log.Printf("WARN: %v, skipping", err)
			skipped++
			continue
		}
		if !f.HasPeriod {
			if s.Resolver != nil {
				log.Printf("WARN: no period in filename %s, selecting anyway", f.Name())
			}
			selected = append(selected, f)
			continue
		}
		if !f.Period.Start.After(required.End) && !f.Period.End.Before(required.Start) {
			selected = append(selected, f)
		} else {
			skipped++
		}
	}
	return selected, skipped
}

// BestPerYear keeps, for each calendar year, the file with the latest period
// end. Yearly statistic exports supersede each other, only the newest cut of
// each year matters.
func BestPerYear(files []File) []File {
	best := make(map[int]File)
	var years []int
	for _, f := range files {
		if !f.HasPeriod {
			continue
		}
		y := f.Period.End.Year()
		prev, ok := best[y]
		if !ok {
			years = append(years, y)
			best[y] = f
			continue
		}
		if f.Period.End.After(prev.Period.End) {
			best[y] = f
		}
	}
	out := make([]File, 0, len(best))
	for _, y := range years {
		out = append(out, best[y])
	}
	return out
}
