package ingest

import (
	"context"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"telcoetl/etlerrors"
)

// ReadWorkbook reads the first sheet of a spreadsheet into raw header->cell
// rows. The first row is the header, trimmed; rows with every cell blank are
// dropped. Cell values come back exactly as excelize renders them, date
// repair happens downstream.
func ReadWorkbook(path string) ([]map[string]string, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, etlerrors.NewFileReadError(path, err)
	}
	defer wb.Close()

	sheet := wb.GetSheetName(0)
	if sheet == "" {
		return nil, etlerrors.NewBadSchemaError(path+": workbook has no sheets", nil)
	}
	rows, err := wb.GetRows(sheet)
	if err != nil {
		return nil, etlerrors.NewFileReadError(path, err)
	}
	if len(rows) == 0 {
		return nil, etlerrors.NewBadSchemaError(path+": sheet is empty", nil)
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	out := make([]map[string]string, 0, len(rows)-1)
	for _, cells := range rows[1:] {
		if isEmptyRow(cells) {
			continue
		}
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if i < len(cells) {
				row[h] = cells[i]
			} else {
				row[h] = ""
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func isEmptyRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// FileResult is the outcome of reading one selected file. Err is set for
// unreadable or malformed files; the batch continues without them.
type FileResult struct {
	File File
	Rows []map[string]string
	Err  error
}

// ReadAll reads the selected files through a bounded worker pool, preserving
// input order in the results. A canceled context stops scheduling new reads;
// already started reads still deliver their result.
func ReadAll(ctx context.Context, files []File, workers int) []FileResult {
	if workers < 1 {
		workers = 1
	}
	results := make([]FileResult, len(files))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rows, err := ReadWorkbook(files[i].Path)
				results[i] = FileResult{File: files[i], Rows: rows, Err: err}
			}
		}()
	}

	for i := range files {
		select {
		case <-ctx.Done():
			results[i] = FileResult{File: files[i], Err: ctx.Err()}
			continue
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	return results
}
