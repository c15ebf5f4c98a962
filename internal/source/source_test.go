package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/bleedingdev/salesdash/internal/config"
	"github.com/bleedingdev/salesdash/internal/persistence"
	"github.com/bleedingdev/salesdash/internal/sales"
)

const sampleCSV = `store_nbr,family,state,year,month,week,day_of_week,sales,onpromotion,transactions
1,GROCERY I,Pichincha,2016,1,1,Monday,100,0,20
2,BEVERAGES,Guayas,2017,2,6,Tuesday,50,3,10
`

func TestKindOf(t *testing.T) {
	cases := map[string]Kind{
		"./train.csv":                         KindFile,
		"file:///data/train.csv":              KindFile,
		"s3://bucket/train.csv":               KindS3,
		"postgres://u:p@localhost/db#sales":   KindPostgres,
		"postgresql://localhost/db#pub.sales": KindPostgres,
	}
	for loc, want := range cases {
		got, err := KindOf(loc)
		if err != nil || got != want {
			t.Errorf("KindOf(%q) = %v, %v; want %v", loc, got, err, want)
		}
	}
	if _, err := KindOf("ftp://host/train.csv"); !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("Expected ErrUnsupportedScheme, got %v", err)
	}
}

func TestParseS3(t *testing.T) {
	bucket, key, err := parseS3("s3://sales/2017/train.csv.zst")
	if err != nil {
		t.Fatalf("parseS3 failed: %v", err)
	}
	if bucket != "sales" || key != "2017/train.csv.zst" {
		t.Errorf("Unexpected bucket/key %q %q", bucket, key)
	}
	for _, bad := range []string{"s3://sales", "s3://sales/", "s3:///train.csv"} {
		if _, _, err := parseS3(bad); !errors.Is(err, ErrInvalidLocation) {
			t.Errorf("parseS3(%q): expected ErrInvalidLocation, got %v", bad, err)
		}
	}
}

func TestParsePostgres(t *testing.T) {
	conn, table, err := parsePostgres("postgres://u:p@localhost:5432/shop#public.sales")
	if err != nil {
		t.Fatalf("parsePostgres failed: %v", err)
	}
	if conn != "postgres://u:p@localhost:5432/shop" {
		t.Errorf("Unexpected conn url %q", conn)
	}
	if table.Sanitize() != `"public"."sales"` {
		t.Errorf("Unexpected table %s", table.Sanitize())
	}
	if _, _, err := parsePostgres("postgres://localhost/shop"); !errors.Is(err, ErrInvalidLocation) {
		t.Errorf("Expected ErrInvalidLocation, got %v", err)
	}
	if _, _, err := parsePostgres("postgres://localhost/shop#public."); !errors.Is(err, ErrInvalidLocation) {
		t.Errorf("Expected ErrInvalidLocation, got %v", err)
	}
}

func TestSelectQuery(t *testing.T) {
	_, table, _ := parsePostgres("postgres://localhost/shop#sales")
	q := selectQuery(table)
	if !strings.HasPrefix(q, `SELECT COALESCE("store_nbr"::text, '')`) {
		t.Errorf("Unexpected query %s", q)
	}
	if !strings.HasSuffix(q, `FROM "sales"`) {
		t.Errorf("Unexpected query %s", q)
	}
	if strings.Count(q, "COALESCE") != len(sales.Columns) {
		t.Errorf("Expected one column per schema field: %s", q)
	}
}

func TestRedact(t *testing.T) {
	got := Redact("postgres://admin:secret@db/shop#sales")
	if strings.Contains(got, "secret") {
		t.Errorf("Password leaked: %s", got)
	}
	if Redact("./train.csv") != "./train.csv" {
		t.Error("Local paths should be unchanged")
	}
}

func TestLoaderLoadsCompressedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.csv.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	zw := gzip.NewWriter(f)
	zw.Write([]byte(sampleCSV))
	zw.Close()
	f.Close()

	l := NewLoader(config.Default())
	ds, err := l.Load(context.Background(), "file://"+path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if ds.Len() != 2 {
		t.Errorf("Expected 2 rows, got %d", ds.Len())
	}
	if ds.Rows()[1].Family != "BEVERAGES" {
		t.Errorf("Unexpected row %+v", ds.Rows()[1])
	}
}

func TestLoaderMissingFile(t *testing.T) {
	l := NewLoader(config.Default())
	if _, err := l.Load(context.Background(), filepath.Join(t.TempDir(), "missing.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected ErrNotExist, got %v", err)
	}
}

func TestLoaderMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	os.WriteFile(path, []byte("store_nbr,family\n1,A\n"), 0o644)

	var loadErr *sales.LoadError
	_, err := NewLoader(config.Default()).Load(context.Background(), path)
	if !errors.As(err, &loadErr) || !errors.Is(err, sales.ErrMissingColumn) {
		t.Errorf("Expected missing column LoadError, got %v", err)
	}
}

func TestParseSQLite(t *testing.T) {
	path, id, err := parseSQLite("sqlite://data/snap.db#4")
	if err != nil || path != "data/snap.db" || id != 4 {
		t.Errorf("Unexpected parse: %q %d %v", path, id, err)
	}
	if _, id, _ := parseSQLite("sqlite:///tmp/snap.db"); id != 0 {
		t.Errorf("Expected latest snapshot selector, got %d", id)
	}
	for _, bad := range []string{"sqlite://", "sqlite://snap.db#x", "sqlite://snap.db#-1"} {
		if _, _, err := parseSQLite(bad); !errors.Is(err, ErrInvalidLocation) {
			t.Errorf("parseSQLite(%q): expected ErrInvalidLocation, got %v", bad, err)
		}
	}
}

func TestLoaderLoadsSQLiteSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.db")
	storage, err := persistence.Open(path)
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	rows := []sales.Row{{StoreNbr: 7, Family: "DAIRY", State: "Azuay", Year: 2017, Month: 5, Sales: 12.5}}
	if _, err := persistence.Save(context.Background(), storage, persistence.SaveRequest{Rows: rows}); err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}
	storage.Close()

	ds, err := NewLoader(config.Default()).Load(context.Background(), "sqlite://"+path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if ds.Len() != 1 || ds.Rows()[0].StoreNbr != 7 {
		t.Errorf("Unexpected dataset %+v", ds.Rows())
	}

	if _, err := NewLoader(config.Default()).Load(context.Background(), "sqlite://"+path+".missing"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected ErrNotExist for missing database, got %v", err)
	}
}
