package export

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bleedingdev/salesdash/internal/report"
	"github.com/bleedingdev/salesdash/internal/sales"
)

func sampleDocument(t *testing.T) Document {
	t.Helper()
	rows := []sales.Row{
		{StoreNbr: 1, Family: "GROCERY I", State: "Pichincha", Year: 2016, Month: 1, Sales: 1234567, Transactions: 10},
		{StoreNbr: 2, Family: "BEVERAGES", State: "Guayas", Year: 2017, Month: 2, Sales: 50, OnPromotion: 3, Transactions: 5},
	}
	b, err := report.BuildBundle(rows, report.Query{View: report.ViewOverview})
	if err != nil {
		t.Fatalf("BuildBundle failed: %v", err)
	}
	return Document{
		Bundle: b,
		Rows:   rows,
		Meta: Meta{
			Session:     "s-1",
			Source:      "train.csv",
			Rows:        len(rows),
			GeneratedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(context.Background(), &buf, FormatJSON, sampleDocument(t)); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	body := buf.String()
	if gjson.Get(body, "meta.source").String() != "train.csv" {
		t.Errorf("Expected stamped meta, got %s", body)
	}
	if gjson.Get(body, "meta.generated_at").String() != "2024-03-01T12:00:00Z" {
		t.Errorf("Unexpected generated_at in %s", body)
	}
	if gjson.Get(body, "overview.top_products.0.key").String() != "GROCERY I" {
		t.Errorf("Unexpected top product in %s", body)
	}
	if gjson.Get(body, "store").Exists() {
		t.Errorf("Did not expect store view in %s", body)
	}
}

func TestRenderPretty(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(context.Background(), &buf, FormatPretty, sampleDocument(t)); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "\n  \"overview\": {") {
		t.Errorf("Expected indented output, got %s", buf.String())
	}
	if !gjson.Valid(buf.String()) {
		t.Error("Expected valid JSON")
	}
}

func TestRenderText(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(context.Background(), &buf, FormatText, sampleDocument(t)); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "== overview_top_products ==") {
		t.Errorf("Expected table title, got %s", out)
	}
	if !strings.Contains(out, "1,234,567") {
		t.Errorf("Expected thousands separators, got %s", out)
	}
}

func TestRenderSQLite(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(context.Background(), &buf, FormatSQLite, sampleDocument(t)); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("SQLite format 3")) {
		t.Error("Expected a SQLite database")
	}
}

func TestWriteTextIdentifiers(t *testing.T) {
	tables := []report.Table{
		{Name: "state_best_products", Columns: []string{"store_nbr", "family", "sales"}, Rows: [][]any{{1001, "GROCERY I", 2500.0}}},
		{Name: "overview_metrics", Columns: []string{"metric", "value"}, Rows: [][]any{{"stores", 1500}}},
	}

	var buf bytes.Buffer
	if err := WriteText(&buf, tables); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "1,001") || !strings.Contains(out, "1001") {
		t.Errorf("Expected store number without separators, got %q", out)
	}
	if !strings.Contains(out, "2,500") {
		t.Errorf("Expected sales with separators, got %q", out)
	}
	if !strings.Contains(out, "1,500") {
		t.Errorf("Expected counts with separators, got %q", out)
	}
}
