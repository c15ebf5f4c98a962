package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"github.com/bleedingdev/salesdash/internal/persistence"
	"github.com/bleedingdev/salesdash/internal/report"
	"github.com/bleedingdev/salesdash/internal/sales"
)

// Meta identifies the dataset a document was computed from.
type Meta struct {
	Session     string    `json:"session,omitempty"`
	Source      string    `json:"source,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Rows        int       `json:"rows"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Document is everything a renderer may need. Rows are only read by FormatSQLite.
type Document struct {
	Bundle *report.Bundle
	Rows   []sales.Row
	Meta   Meta
}

// Render writes doc to w in format f.
func Render(ctx context.Context, w io.Writer, f Format, doc Document) error {
	switch f {
	case FormatJSON, FormatPretty:
		data, err := MarshalJSON(doc)
		if err != nil {
			return err
		}
		if f == FormatPretty {
			data = pretty.Pretty(data)
		}
		_, err = w.Write(data)
		return err
	case FormatText:
		return WriteText(w, doc.Bundle.Tables())
	case FormatCSV:
		return WriteCSV(w, doc.Bundle.Tables())
	case FormatXLSX:
		return WriteXLSX(w, doc.Bundle.Tables())
	case FormatSQLite:
		data, err := SQLiteBytes(ctx, persistence.SaveRequest{
			Snapshot: persistence.Snapshot{
				SessionID:   doc.Meta.Session,
				Source:      doc.Meta.Source,
				Fingerprint: doc.Meta.Fingerprint,
				CreatedAt:   doc.Meta.GeneratedAt,
			},
			Rows:   doc.Rows,
			Tables: doc.Bundle.Tables(),
		})
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// MarshalJSON encodes the bundle and stamps the metadata under "meta".
func MarshalJSON(doc Document) ([]byte, error) {
	data, err := json.Marshal(doc.Bundle)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	data, err = sjson.SetBytes(data, "meta", doc.Meta)
	if err != nil {
		return nil, fmt.Errorf("failed to stamp metadata: %w", err)
	}
	return data, nil
}

// identifierColumns hold numbers that name something rather than measure it.
var identifierColumns = map[string]bool{
	"rank":      true,
	"store_nbr": true,
	"year":      true,
	"month":     true,
	"week":      true,
}

// WriteText renders tables as aligned plain text. Floats use thousands separators
// without decimals; integer counts use thousands separators, identifiers do not.
func WriteText(w io.Writer, tables []report.Table) error {
	var buf bytes.Buffer
	for i, t := range tables {
		if i > 0 {
			buf.WriteByte('\n')
		}
		fmt.Fprintf(&buf, "== %s ==\n", t.Name)
		tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(t.Columns, "\t"))
		for _, row := range t.Rows {
			cells := make([]string, len(row))
			for j, cell := range row {
				switch v := cell.(type) {
				case float64:
					cells[j] = report.FormatAmount(v)
				case int:
					if j < len(t.Columns) && identifierColumns[t.Columns[j]] {
						cells[j] = strconv.Itoa(v)
					} else {
						cells[j] = report.FormatCount(v)
					}
				default:
					cells[j] = cellString(v)
				}
			}
			fmt.Fprintln(tw, strings.Join(cells, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	_, err := w.Write(buf.Bytes())
	return err
}
