// Package periods derives fortnight business periods (quincenas) from source
// file names. A quincena closes either on the 15th (Q1) or on the last
// calendar day of the month (Q2). Three filename conventions coexist in the
// raw exports, each handled by its own resolver; a pipeline configures exactly
// one canonical resolver and treats a filename matching several conventions as
// an error.
package periods

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Period is a resolved fortnight: closed date range plus the label shown in
// reports, e.g. "ENE 2026 Q1".
type Period struct {
	Start time.Time
	End   time.Time
	Label string
}

// spanish month abbreviations, index 1..12.
var monthAbbr = []string{"", "ENE", "FEB", "MAR", "ABR", "MAY", "JUN",
	"JUL", "AGO", "SEP", "OCT", "NOV", "DIC"}

var monthByAbbr = map[string]time.Month{
	"ene": time.January, "feb": time.February, "mar": time.March,
	"abr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "ago": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dic": time.December,
}

// Label builds the quincena label for a closing date: Q1 when the period
// closes on or before the 15th, Q2 otherwise.
func Label(end time.Time) string {
	q := "Q2"
	if end.Day() <= 15 {
		q = "Q1"
	}
	return fmt.Sprintf("%s %d %s", monthAbbr[int(end.Month())], end.Year(), q)
}

// LastDay returns the last calendar day of the month containing t, using real
// month lengths (28-31 days, leap years included).
func LastDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location())
}

// QuincenaStart derives the opening day of the fortnight that closes on end:
// day 1 for a Q1 close, day 15 for a Q2 close.
func QuincenaStart(end time.Time) time.Time {
	day := 15
	if end.Day() == 15 {
		day = 1
	}
	return time.Date(end.Year(), end.Month(), day, 0, 0, 0, 0, end.Location())
}

// Resolver parses a filename into a business period. The boolean is false when
// the filename does not match this resolver's convention; resolvers never
// panic or return errors for malformed names, callers simply skip the file.
type Resolver interface {
	Resolve(filename string) (Period, bool)
	// Matches reports whether the filename contains this convention's pattern,
	// without building the period. Used for ambiguity detection.
	Matches(filename string) bool
}

var (
	rangePattern  = regexp.MustCompile(`(\d{1,2}-\d{1,2}-\d{4})\s+al\s+(\d{1,2}-\d{1,2}-\d{4})`)
	singleDate    = regexp.MustCompile(`\d{1,2}-\d{1,2}-\d{4}`)
	monthQPattern = regexp.MustCompile(`(ene|feb|mar|abr|may|jun|jul|ago|sep|oct|nov|dic)[\s_-]*(q1|q2)`)
)

// parseDayFirst parses a d-m-yyyy group, rejecting impossible day/month
// combinations instead of letting time.Date normalize them.
func parseDayFirst(s string) (time.Time, bool) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	day, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	year, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != time.Month(month) {
		return time.Time{}, false
	}
	return t, true
}

func lowerBase(filename string) string {
	return strings.ToLower(filepath.Base(filename))
}

// RangeResolver handles filenames carrying an explicit date range, e.g.
// "Data Tickets 1-12-2025 al 15-1-2026.xlsx". Start and end are taken
// literally; the label derives from the end date.
type RangeResolver struct{}

// Resolve implements Resolver.
func (RangeResolver) Resolve(filename string) (Period, bool) {
	m := rangePattern.FindStringSubmatch(lowerBase(filename))
	if m == nil {
		return Period{}, false
	}
	start, ok := parseDayFirst(m[1])
	if !ok {
		return Period{}, false
	}
	end, ok := parseDayFirst(m[2])
	if !ok {
		return Period{}, false
	}
	return Period{Start: start, End: end, Label: Label(end)}, true
}

// Matches implements Resolver.
func (RangeResolver) Matches(filename string) bool {
	return rangePattern.MatchString(lowerBase(filename))
}

// MagnetResolver handles filenames carrying a single export date and snaps it
// to the standard closing date:
//
//	day 1-5   -> last calendar day of the previous month (late month-end cleanup)
//	day 6-20  -> day 15 of the same month (Q1 close)
//	day 21-31 -> last calendar day of the same month (Q2 close)
//
// Real month lengths are used throughout; February in a leap year snaps to the
// 29th.
type MagnetResolver struct{}

// Snap applies the magnet rule to an arbitrary date and returns the closing
// date of the quincena it belongs to.
func (MagnetResolver) Snap(d time.Time) time.Time {
	switch {
	case d.Day() <= 5:
		firstOfMonth := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, d.Location())
		return firstOfMonth.AddDate(0, 0, -1)
	case d.Day() <= 20:
		return time.Date(d.Year(), d.Month(), 15, 0, 0, 0, 0, d.Location())
	default:
		return LastDay(d)
	}
}

// Resolve implements Resolver. It refuses filenames containing a date range
// (those belong to RangeResolver) or more than one date.
func (r MagnetResolver) Resolve(filename string) (Period, bool) {
	if !r.Matches(filename) {
		return Period{}, false
	}
	raw := singleDate.FindString(lowerBase(filename))
	d, ok := parseDayFirst(raw)
	if !ok {
		return Period{}, false
	}
	end := r.Snap(d)
	return Period{Start: QuincenaStart(end), End: end, Label: Label(end)}, true
}

// Matches implements Resolver: exactly one date and no "al" range separator.
func (MagnetResolver) Matches(filename string) bool {
	base := lowerBase(filename)
	if rangePattern.MatchString(base) {
		return false
	}
	return len(singleDate.FindAllString(base, 2)) == 1
}

// TokenResolver handles filenames carrying a month abbreviation plus an
// explicit quarter token, e.g. "Reporte Abonados ENE Q1.xlsx". The year is not
// in the filename and comes from configuration.
//
// Window rules: Q1 spans day 1 of the prior month through day 15 of the named
// month; Q2 spans day 15 of the prior month through its last calendar day.
type TokenResolver struct {
	// Year applied to the named month.
	Year int
}

// Resolve implements Resolver.
func (r TokenResolver) Resolve(filename string) (Period, bool) {
	m := monthQPattern.FindStringSubmatch(lowerBase(filename))
	if m == nil {
		return Period{}, false
	}
	month := monthByAbbr[m[1]]
	anchor := time.Date(r.Year, month, 1, 0, 0, 0, 0, time.UTC)
	prior := anchor.AddDate(0, -1, 0)
	var p Period
	if m[2] == "q1" {
		p.Start = prior
		p.End = time.Date(r.Year, month, 15, 0, 0, 0, 0, time.UTC)
	} else {
		p.Start = time.Date(prior.Year(), prior.Month(), 15, 0, 0, 0, 0, time.UTC)
		p.End = LastDay(anchor)
	}
	p.Label = Label(p.End)
	return p, true
}

// Matches implements Resolver.
func (TokenResolver) Matches(filename string) bool {
	return monthQPattern.MatchString(lowerBase(filename))
}

// Ambiguous reports whether the filename matches more than one convention.
// The engine flags such files as errors instead of silently picking one, since
// the conventions carry incompatible window rules.
func Ambiguous(filename string, resolvers []Resolver) bool {
	hits := 0
	for _, r := range resolvers {
		if r.Matches(filename) {
			hits++
		}
	}
	return hits > 1
}

// CompactResolver handles roster exports named with compact digit dates
// ("Personal Activo 15072025.xlsx"). The file date stands for itself, the
// label comes from the quincena the date snaps into.
type CompactResolver struct{}

// Resolve implements Resolver.
func (CompactResolver) Resolve(filename string) (Period, bool) {
	d, ok := CompactFileDate(filename)
	if !ok {
		return Period{}, false
	}
	return Period{Start: d, End: d, Label: Label(MagnetResolver{}.Snap(d))}, true
}

// Matches implements Resolver.
func (r CompactResolver) Matches(filename string) bool {
	_, ok := CompactFileDate(filename)
	return ok
}

var compactDate = regexp.MustCompile(`(\d{6,8})`)

// CompactFileDate extracts a date from compact digit runs in roster export
// names: ddmmyyyy, dmyyyy and the ambiguous 7-digit forms. The year is always
// the last four digits. Returns false when no usable date is present.
func CompactFileDate(filename string) (time.Time, bool) {
	m := compactDate.FindString(filepath.Base(filename))
	if m == "" {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(m[len(m)-4:])
	if err != nil {
		return time.Time{}, false
	}
	rest := m[:len(m)-4]
	var day, month int
	switch len(rest) {
	case 4: // ddmm
		day, _ = strconv.Atoi(rest[:2])
		month, _ = strconv.Atoi(rest[2:])
	case 2: // dm
		day, _ = strconv.Atoi(rest[:1])
		month, _ = strconv.Atoi(rest[1:])
	case 3:
		// 7 digits are ambiguous between dd-m and d-mm. Read dd-m first and
		// fall back to d-mm when the trailing month would be impossible.
		day, _ = strconv.Atoi(rest[:2])
		month, _ = strconv.Atoi(rest[2:])
		if month < 1 || month > 12 {
			day, _ = strconv.Atoi(rest[:1])
			month, _ = strconv.Atoi(rest[1:])
		}
	default:
		return time.Time{}, false
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}
