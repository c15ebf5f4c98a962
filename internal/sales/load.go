package sales

import (
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

var (
	// ErrMissingColumn is returned when a required column is absent from the header.
	ErrMissingColumn = errors.New("missing required column")
	// ErrInvalidValue is returned when a cell cannot be coerced to its column type.
	ErrInvalidValue = errors.New("invalid value")
	// ErrEmptyInput is returned when the input has no header row.
	ErrEmptyInput = errors.New("empty input")
)

// LoadError describes where a load failed. Line is 1-based and counts the header.
type LoadError struct {
	Line   int
	Column string
	Err    error
}

func (e *LoadError) Error() string {
	switch {
	case e.Line > 0 && e.Column != "":
		return fmt.Sprintf("line %d, column %q: %v", e.Line, e.Column, e.Err)
	case e.Column != "":
		return fmt.Sprintf("column %q: %v", e.Column, e.Err)
	case e.Line > 0:
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return e.Err.Error()
}

func (e *LoadError) Unwrap() error { return e.Err }

const (
	colStore = iota
	colFamily
	colState
	colYear
	colMonth
	colWeek
	colDayOfWeek
	colSales
	colOnPromotion
	colTransactions
	numColumns
)

// Columns lists the required header names in schema order.
var Columns = [numColumns]string{
	"store_nbr", "family", "state", "year", "month", "week", "day_of_week",
	"sales", "onpromotion", "transactions",
}

// Dataset is an immutable, validated set of rows.
type Dataset struct {
	rows        []Row
	fingerprint string
}

// Rows returns the dataset rows. Callers must not modify the returned slice.
func (d *Dataset) Rows() []Row {
	if d == nil {
		return nil
	}
	return d.rows
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.rows)
}

// Fingerprint is a content hash of the decoded records, stable across compression and
// transport of the same data.
func (d *Dataset) Fingerprint() string {
	if d == nil {
		return ""
	}
	return d.fingerprint
}

// NewDataset wraps already-typed rows, e.g. for tests or programmatic sources.
func NewDataset(rows []Row) *Dataset {
	h, _ := blake2b.New256(nil)
	for _, r := range rows {
		fmt.Fprintf(h, "%d\x1f%s\x1f%s\x1f%d\x1f%d\x1f%d\x1f%d\x1f%g\x1f%g\x1f%g\x1e",
			r.StoreNbr, r.Family, r.State, r.Year, r.Month, r.Week, r.DayOfWeek,
			r.Sales, r.OnPromotion, r.Transactions)
	}
	return &Dataset{rows: rows, fingerprint: hex.EncodeToString(h.Sum(nil))}
}

// Builder validates records against the schema and accumulates rows.
type Builder struct {
	index [numColumns]int
	line  int
	rows  []Row
	hash  hash.Hash
}

// NewBuilder maps header names to schema columns. Header names are matched after
// trimming, lower-casing and replacing spaces/hyphens with underscores; extra columns
// are ignored.
func NewBuilder(header []string) (*Builder, error) {
	if len(header) == 0 {
		return nil, &LoadError{Line: 1, Err: ErrEmptyInput}
	}
	b := &Builder{line: 1}
	for i := range b.index {
		b.index[i] = -1
	}
	for i, h := range header {
		key := normalizeHeader(h)
		for c, name := range Columns {
			if key == name && b.index[c] < 0 {
				b.index[c] = i
			}
		}
	}
	for c, i := range b.index {
		if i < 0 {
			return nil, &LoadError{Column: Columns[c], Err: ErrMissingColumn}
		}
	}
	b.hash, _ = blake2b.New256(nil)
	return b, nil
}

// Add decodes one record. The record is not retained.
func (b *Builder) Add(record []string) error {
	b.line++
	var (
		r   Row
		err error
	)
	field := func(c int) string {
		if b.index[c] >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[b.index[c]])
	}
	fail := func(c int, cause error) error {
		return &LoadError{Line: b.line, Column: Columns[c], Err: fmt.Errorf("%w: %v", ErrInvalidValue, cause)}
	}

	if r.StoreNbr, err = ParseInt(field(colStore)); err != nil {
		return fail(colStore, err)
	}
	r.Family = field(colFamily)
	r.State = field(colState)
	if r.Year, err = ParseInt(field(colYear)); err != nil {
		return fail(colYear, err)
	}
	if r.Month, err = ParseInt(field(colMonth)); err != nil {
		return fail(colMonth, err)
	}
	if r.Week, err = ParseInt(field(colWeek)); err != nil {
		return fail(colWeek, err)
	}
	if r.DayOfWeek, err = ParseWeekday(field(colDayOfWeek)); err != nil {
		return fail(colDayOfWeek, err)
	}
	if r.Sales, err = parseMeasure(field(colSales)); err != nil {
		return fail(colSales, err)
	}
	if r.OnPromotion, err = parseMeasure(field(colOnPromotion)); err != nil {
		return fail(colOnPromotion, err)
	}
	if r.Transactions, err = parseMeasure(field(colTransactions)); err != nil {
		return fail(colTransactions, err)
	}

	for c := range b.index {
		io.WriteString(b.hash, field(c))
		b.hash.Write([]byte{0x1f})
	}
	b.hash.Write([]byte{0x1e})

	b.rows = append(b.rows, r)
	return nil
}

// Dataset returns the accumulated rows as an immutable dataset.
func (b *Builder) Dataset() *Dataset {
	return &Dataset{rows: b.rows, fingerprint: hex.EncodeToString(b.hash.Sum(nil))}
}

// Load reads a delimited-text dataset. Gzip and zstd input is detected and
// decompressed transparently. Any malformed row aborts the load.
func Load(r io.Reader) (*Dataset, error) {
	plain, err := Decompress(r)
	if err != nil {
		return nil, err
	}
	defer plain.Close()

	reader := csv.NewReader(plain)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &LoadError{Line: 1, Err: ErrEmptyInput}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	b, err := NewBuilder(header)
	if err != nil {
		return nil, err
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &LoadError{Line: pe.Line, Err: pe.Err}
			}
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		if err := b.Add(record); err != nil {
			return nil, err
		}
	}
	return b.Dataset(), nil
}

func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(s, "\ufeff")))
	s = strings.ReplaceAll(s, " ", "_")
	return strings.ReplaceAll(s, "-", "_")
}

// ParseInt accepts integers and integral floats such as "2017.0".
func ParseInt(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int(f), nil
}

// parseMeasure maps empty and NA-like cells to NaN and booleans to 0/1.
func parseMeasure(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "", "nan", "na", "n/a", "null", "none":
		return math.NaN(), nil
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number: %q", s)
	}
	return f, nil
}
