// Package normalize reshapes raw spreadsheet rows into canonical records. A
// schema declares the expected columns and their kinds; normalization trims
// headers, resolves aliases, reindexes to the schema, coerces values and
// scrubs serializer null sentinels. Rows are never dropped here, malformed
// cells degrade to null.
package normalize

import (
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SourceColumn is stamped on every record with the base name of the file the
// row came from.
const SourceColumn = "origen_archivo"

// Kind selects the coercion applied to a column.
type Kind int

const (
	// Text is trimmed and kept as-is.
	Text Kind = iota
	// ID is an identifier that spreadsheets tend to mangle into floats:
	// trailing ".0" and thousands separators are stripped, text is preserved.
	ID
	// Date accepts Excel serial numbers and day-first locale text.
	Date
	// Amount is parsed into a decimal.
	Amount
)

// Column describes one canonical column. Aliases are alternative headers seen
// in the wild; matching is done on trimmed, lowercased header text.
type Column struct {
	Name    string
	Kind    Kind
	Aliases []string
}

// Schema is the ordered canonical column set of a snapshot.
type Schema struct {
	Columns []Column
}

// Names returns the canonical column names in schema order, including the
// source-file column stamped during normalization.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s.Columns)+1)
	for _, c := range s.Columns {
		names = append(names, c.Name)
	}
	return append(names, SourceColumn)
}

type valueKind int

const (
	nullValue valueKind = iota
	stringValue
	timeValue
	decimalValue
)

// Value is a single cell after coercion: a string, a date, a decimal amount
// or null.
type Value struct {
	kind valueKind
	s    string
	t    time.Time
	d    decimal.Decimal
}

// Null is the zero Value.
var Null = Value{}

// String wraps text.
func String(s string) Value { return Value{kind: stringValue, s: s} }

// Time wraps a date.
func Time(t time.Time) Value { return Value{kind: timeValue, t: t} }

// Decimal wraps an amount.
func Decimal(d decimal.Decimal) Value { return Value{kind: decimalValue, d: d} }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == nullValue }

// Str returns the text content, empty for non-string values.
func (v Value) Str() string { return v.s }

// Time returns the date content and whether the value holds one.
func (v Value) Time() (time.Time, bool) { return v.t, v.kind == timeValue }

// Decimal returns the amount content and whether the value holds one.
func (v Value) Decimal() (decimal.Decimal, bool) { return v.d, v.kind == decimalValue }

// Render formats the value for snapshot output. Dates render as ISO
// yyyy-mm-dd, null as the empty string.
func (v Value) Render() string {
	switch v.kind {
	case stringValue:
		return v.s
	case timeValue:
		return v.t.Format("2006-01-02")
	case decimalValue:
		return v.d.String()
	default:
		return ""
	}
}

// Record is one normalized row keyed by canonical column name.
type Record map[string]Value

// Normalizer applies a schema to raw rows. Warnings about missing columns are
// emitted once per column per Normalizer.
type Normalizer struct {
	schema   Schema
	aliasFor map[string]string // normalized header -> canonical name
	kindOf   map[string]Kind
	warned   map[string]bool
}

// New builds a Normalizer for the schema.
func New(schema Schema) *Normalizer {
	n := &Normalizer{
		schema:   schema,
		aliasFor: make(map[string]string),
		kindOf:   make(map[string]Kind),
		warned:   make(map[string]bool),
	}
	for _, c := range schema.Columns {
		n.aliasFor[normalizeHeader(c.Name)] = c.Name
		n.kindOf[c.Name] = c.Kind
		for _, a := range c.Aliases {
			n.aliasFor[normalizeHeader(a)] = c.Name
		}
	}
	return n
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// Rows normalizes a whole file worth of raw header->cell rows, stamping each
// record with the source file name. Extra columns are dropped; columns the
// file lacks come out null with a single warning.
func (n *Normalizer) Rows(raw []map[string]string, sourceName string) []Record {
	out := make([]Record, 0, len(raw))
	for _, row := range raw {
		out = append(out, n.row(row, sourceName))
	}
	return out
}

func (n *Normalizer) row(raw map[string]string, sourceName string) Record {
	// resolve aliases first so the presence check below sees canonical names
	byCanonical := make(map[string]string, len(raw))
	for header, cell := range raw {
		canonical, ok := n.aliasFor[normalizeHeader(header)]
		if !ok {
			continue // not in schema, dropped
		}
		byCanonical[canonical] = cell
	}
	rec := make(Record, len(n.schema.Columns)+1)
	for _, col := range n.schema.Columns {
		cell, present := byCanonical[col.Name]
		if !present {
			if !n.warned[col.Name] {
				n.warned[col.Name] = true
				log.Printf("WARN: column %q missing in %s, filling with null", col.Name, sourceName)
			}
			rec[col.Name] = Null
			continue
		}
		rec[col.Name] = Coerce(cell, col.Kind)
	}
	rec[SourceColumn] = String(sourceName)
	return rec
}

// null sentinels that pandas-era exports leave behind
var nullSentinels = map[string]bool{
	"": true, "nan": true, "none": true, "null": true, "nat": true,
}

// IsNullSentinel reports whether the trimmed cell is a serializer null marker.
func IsNullSentinel(cell string) bool {
	return nullSentinels[strings.ToLower(strings.TrimSpace(cell))]
}

// Coerce converts one raw cell according to the column kind. Anything
// unparseable comes out null rather than aborting the row.
func Coerce(cell string, kind Kind) Value {
	cell = strings.TrimSpace(cell)
	if IsNullSentinel(cell) {
		return Null
	}
	switch kind {
	case ID:
		return String(coerceID(cell))
	case Date:
		if t, ok := CoerceDate(cell); ok {
			return Time(t)
		}
		return Null
	case Amount:
		if d, ok := coerceAmount(cell); ok {
			return Decimal(d)
		}
		return Null
	default:
		return String(cell)
	}
}

// coerceID undoes spreadsheet float mangling of identifiers: "8400123.0"
// and "8.400.123" both become "8400123". Non-numeric IDs pass through.
func coerceID(cell string) string {
	s := strings.TrimSuffix(cell, ".0")
	if isDigitsAndDots(s) {
		return strings.ReplaceAll(s, ".", "")
	}
	return cell
}

func isDigitsAndDots(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}

// excelEpoch is the 1900 date system origin used by Excel serials (the
// off-by-two base that absorbs the fictional 1900-02-29).
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// serial numbers in this window are unambiguously dates (1995..2064); anything
// outside is treated as text.
const (
	serialMin = 35000
	serialMax = 60000
)

var dayFirstLayouts = []string{
	"2/1/2006", "2/1/2006 15:04:05", "2/1/2006 15:04",
	"2-1-2006", "2-1-2006 15:04:05",
	"2006-01-02", "2006-01-02 15:04:05", time.RFC3339,
}

// CoerceDate repairs the mixed date columns produced by locale-confused
// exports: a cell is either an Excel serial day count or day-first text.
func CoerceDate(cell string) (time.Time, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return time.Time{}, false
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		if f >= serialMin && f <= serialMax {
			return excelEpoch.AddDate(0, 0, int(f)), true
		}
		return time.Time{}, false
	}
	for _, layout := range dayFirstLayouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var amountCleaner = regexp.MustCompile(`[^0-9,.\-]`)

func coerceAmount(cell string) (decimal.Decimal, bool) {
	s := amountCleaner.ReplaceAllString(cell, "")
	// locale exports use comma as the decimal mark when a single comma follows
	// the last dot
	if strings.Count(s, ",") == 1 && strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// Upper trims and uppercases a text field, a common cleanup before
// classification.
func Upper(v Value) Value {
	if v.kind != stringValue {
		return v
	}
	return String(strings.ToUpper(strings.TrimSpace(v.s)))
}
