// Package store persists snapshots as parquet files, the format the reporting
// layer consumes directly, and keeps a run audit log in sqlite.
package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/common"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"telcoetl/etlerrors"
	"telcoetl/normalize"
)

const rootName = "parquet_go_root"

// jsonSchema builds the dynamic parquet schema for a column set. Every column
// is an optional UTF8 string; dates and amounts are rendered to text on write
// and coerced back on read, which keeps the schema independent of the
// per-pipeline column kinds.
func jsonSchema(columns []string) (string, error) {
	type field struct {
		Tag string `json:"Tag"`
	}
	type root struct {
		Tag    string  `json:"Tag"`
		Fields []field `json:"Fields"`
	}
	r := root{Tag: fmt.Sprintf("name=%s, repetitiontype=REQUIRED", rootName)}
	for _, c := range columns {
		r.Fields = append(r.Fields, field{
			Tag: fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", c),
		})
	}
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Write persists rows to a parquet file with the given column order. Null
// values become parquet nulls, everything else its rendered text.
func Write(path string, columns []string, rows []normalize.Record) error {
	schema, err := jsonSchema(columns)
	if err != nil {
		return etlerrors.NewPersistError(path, err)
	}
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return etlerrors.NewPersistError(path, err)
	}
	pw, err := writer.NewJSONWriter(schema, fw, 4)
	if err != nil {
		fw.Close()
		return etlerrors.NewPersistError(path, err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rec := range rows {
		cells := make(map[string]interface{}, len(columns))
		for _, c := range columns {
			if v, ok := rec[c]; ok && !v.IsNull() {
				cells[c] = v.Render()
			} else {
				cells[c] = nil
			}
		}
		line, err := json.Marshal(cells)
		if err != nil {
			fw.Close()
			return etlerrors.NewPersistError(path, err)
		}
		if err := pw.Write(string(line)); err != nil {
			fw.Close()
			return etlerrors.NewPersistError(path, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return etlerrors.NewPersistError(path, err)
	}
	return fw.Close()
}

// Read loads a snapshot back into records, coercing each cell per the schema
// kind. Columns present in the file but absent from the schema are kept as
// text, so the source-file stamp survives roundtrips.
func Read(path string, schema normalize.Schema) ([]normalize.Record, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, etlerrors.NewFileReadError(path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, nil, 4)
	if err != nil {
		return nil, etlerrors.NewFileReadError(path, err)
	}
	defer pr.ReadStop()

	raw, err := pr.ReadByNumber(int(pr.GetNumRows()))
	if err != nil {
		return nil, etlerrors.NewFileReadError(path, err)
	}
	// roundtrip through JSON to get generic maps out of the dynamically built
	// row structs
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, etlerrors.NewFileReadError(path, err)
	}
	var rows []map[string]*string
	if err := json.Unmarshal(buf, &rows); err != nil {
		return nil, etlerrors.NewFileReadError(path, err)
	}

	kindOf := make(map[string]normalize.Kind, len(schema.Columns))
	nameOf := make(map[string]string, len(schema.Columns))
	for _, c := range schema.Columns {
		kindOf[strings.ToLower(c.Name)] = c.Kind
		nameOf[strings.ToLower(c.Name)] = c.Name
	}

	out := make([]normalize.Record, 0, len(rows))
	for _, row := range rows {
		rec := make(normalize.Record, len(row))
		for field, cell := range row {
			// the reader title-cases field names when rebuilding the row type
			lower := strings.ToLower(field)
			name, known := nameOf[lower]
			if !known {
				name = lower
			}
			if cell == nil {
				rec[name] = normalize.Null
				continue
			}
			if known {
				rec[name] = normalize.Coerce(*cell, kindOf[lower])
			} else {
				rec[name] = normalize.String(*cell)
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// ReadColumn reads a single column without materializing the rest of the
// snapshot. Null cells come back as empty strings.
func ReadColumn(path, column string) ([]string, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, etlerrors.NewFileReadError(path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetColumnReader(fr, 4)
	if err != nil {
		return nil, etlerrors.NewFileReadError(path, err)
	}
	defer pr.ReadStop()

	vals, _, _, err := pr.ReadColumnByPath(
		common.ReformPathStr(rootName+"."+column), pr.GetNumRows())
	if err != nil {
		return nil, etlerrors.NewFileReadError(path, err)
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v == nil {
			out = append(out, "")
			continue
		}
		out = append(out, fmt.Sprintf("%v", v))
	}
	return out, nil
}

// MaxDate scans one date column of a snapshot and returns the newest value.
// The boolean is false when the column holds no parseable dates.
func MaxDate(path, column string) (time.Time, bool, error) {
	cells, err := ReadColumn(path, column)
	if err != nil {
		return time.Time{}, false, err
	}
	var max time.Time
	found := false
	for _, cell := range cells {
		if t, ok := normalize.CoerceDate(cell); ok {
			if !found || t.After(max) {
				max, found = t, true
			}
		}
	}
	return max, found, nil
}
