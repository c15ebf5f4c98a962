// Package export renders report views as JSON, text, CSV, XLSX or a SQLite snapshot.
package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/bleedingdev/salesdash/internal/persistence"
	"github.com/bleedingdev/salesdash/internal/report"
)

// ErrUnknownFormat is returned by ParseFormat.
var ErrUnknownFormat = errors.New("unknown export format")

// Format is an export file format.
type Format string

const (
	FormatJSON   Format = "json"
	FormatPretty Format = "pretty"
	FormatText   Format = "text"
	FormatCSV    Format = "csv"
	FormatXLSX   Format = "xlsx"
	FormatSQLite Format = "sqlite"
)

// ParseFormat accepts json, pretty, text/txt, csv, xlsx/excel and sqlite/db,
// case-insensitive.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "pretty":
		return FormatPretty, nil
	case "text", "txt":
		return FormatText, nil
	case "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	case "sqlite", "db":
		return FormatSQLite, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON, FormatPretty:
		return "application/json; charset=utf-8"
	case FormatText:
		return "text/plain; charset=utf-8"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatSQLite:
		return "application/vnd.sqlite3"
	}
	return "application/octet-stream"
}

// Extension returns the file extension including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatSQLite:
		return ".db"
	case FormatPretty:
		return ".json"
	case FormatText:
		return ".txt"
	}
	return "." + string(f)
}

func cellString(v any) string {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case string:
		return x
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// WriteCSV writes each table as a block: a title line, the header and the rows.
func WriteCSV(w io.Writer, tables []report.Table) error {
	cw := csv.NewWriter(w)
	for _, t := range tables {
		if err := cw.Write([]string{t.Name}); err != nil {
			return err
		}
		if err := cw.Write(t.Columns); err != nil {
			return err
		}
		record := make([]string, len(t.Columns))
		for _, row := range t.Rows {
			record = record[:0]
			for _, cell := range row {
				record = append(record, cellString(cell))
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// sheetName truncates to Excel's 31 character limit and keeps names unique.
func sheetName(name string, used map[string]bool) string {
	const limit = 31
	base := name
	if len(base) > limit {
		base = base[:limit]
	}
	candidate := base
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		suffix := "~" + strconv.Itoa(n)
		cut := base
		if len(cut)+len(suffix) > limit {
			cut = cut[:limit-len(suffix)]
		}
		candidate = cut + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

// WriteXLSX writes one worksheet per table.
func WriteXLSX(w io.Writer, tables []report.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	used := make(map[string]bool)
	for i, t := range tables {
		sheet := sheetName(t.Name, used)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		}

		head := make([]any, len(t.Columns))
		for j, c := range t.Columns {
			head[j] = c
		}
		if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
			return err
		}
		if len(t.Columns) > 0 {
			last, _ := excelize.CoordinatesToCellName(len(t.Columns), 1)
			if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
				return err
			}
		}

		for r, row := range t.Rows {
			cells := make([]any, len(row))
			for j, cell := range row {
				if x, ok := cell.(float64); ok && (math.IsNaN(x) || math.IsInf(x, 0)) {
					continue
				}
				cells[j] = cell
			}
			if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", r+2), &cells); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// WriteSQLite saves req into the SQLite database at path, creating it if needed.
func WriteSQLite(ctx context.Context, path string, req persistence.SaveRequest) (int64, error) {
	storage, err := persistence.Open(path)
	if err != nil {
		return 0, err
	}
	id, err := persistence.Save(ctx, storage, req)
	if cerr := storage.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close database: %w", cerr)
	}
	return id, err
}

// SQLiteBytes renders req as a standalone SQLite database file and returns its bytes.
func SQLiteBytes(ctx context.Context, req persistence.SaveRequest) ([]byte, error) {
	dir, err := os.MkdirTemp("", "salesdash-export-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "snapshot.db")
	if _, err := WriteSQLite(ctx, path, req); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}
