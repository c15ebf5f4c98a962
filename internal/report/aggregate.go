package report

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/bleedingdev/salesdash/internal/sales"
)

// accumulator sums exactly so totals do not depend on row order. NaN is skipped.
type accumulator struct {
	sum decimal.Decimal
	n   int
}

func (a *accumulator) add(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	a.sum = a.sum.Add(decimal.NewFromFloat(v))
	a.n++
}

func (a *accumulator) total() float64 { return a.sum.InexactFloat64() }

func (a *accumulator) mean() (float64, bool) {
	if a.n == 0 {
		return 0, false
	}
	return a.sum.Div(decimal.NewFromInt(int64(a.n))).InexactFloat64(), true
}

// groups keeps per-key accumulators in first-encounter order.
type groups struct {
	order []string
	acc   map[string]*accumulator
}

func newGroups() *groups {
	return &groups{acc: make(map[string]*accumulator)}
}

func (g *groups) add(key string, v float64) {
	a, ok := g.acc[key]
	if !ok {
		a = &accumulator{}
		g.acc[key] = a
		g.order = append(g.order, key)
	}
	a.add(v)
}

// ranking sorts descending by total with a stable sort and keeps the first n.
func (g *groups) ranking(n int) Ranking {
	out := make(Ranking, 0, len(g.order))
	for _, k := range g.order {
		out = append(out, Entry{Key: k, Value: g.acc[k].total()})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	if n < 0 {
		n = 0
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func checkField(f sales.Field) error {
	if _, ok := (sales.Row{}).Key(f); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, f)
	}
	return nil
}

func checkMeasure(m sales.Measure) error {
	if _, ok := (sales.Row{}).Value(m); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMeasure, m)
	}
	return nil
}

// DistinctCount returns the number of distinct values of field.
func DistinctCount(rows []sales.Row, field sales.Field) (int, error) {
	if err := checkField(field); err != nil {
		return 0, err
	}
	seen := make(map[string]struct{})
	for _, r := range rows {
		k, _ := r.Key(field)
		seen[k] = struct{}{}
	}
	return len(seen), nil
}

// DistinctPeriodCount returns the number of distinct (year, month) pairs.
func DistinctPeriodCount(rows []sales.Row) int {
	seen := make(map[[2]int]struct{})
	for _, r := range rows {
		seen[[2]int{r.Year, r.Month}] = struct{}{}
	}
	return len(seen)
}

// TopNBySum groups rows by group, sums value per group and returns the n largest
// groups. Equal sums keep the order in which their keys first appear in rows.
func TopNBySum(rows []sales.Row, group sales.Field, value sales.Measure, n int) (Ranking, error) {
	if err := checkField(group); err != nil {
		return nil, err
	}
	if err := checkMeasure(value); err != nil {
		return nil, err
	}
	return topN(rows, group, value, n, nil), nil
}

// TopNPromoted is TopNBySum over sales of promoted rows only.
func TopNPromoted(rows []sales.Row, group sales.Field, n int) (Ranking, error) {
	if err := checkField(group); err != nil {
		return nil, err
	}
	return topN(rows, group, sales.MeasureSales, n, sales.Row.Promoted), nil
}

func topN(rows []sales.Row, group sales.Field, value sales.Measure, n int, keep func(sales.Row) bool) Ranking {
	g := newGroups()
	for _, r := range rows {
		if keep != nil && !keep(r) {
			continue
		}
		k, _ := r.Key(group)
		v, _ := r.Value(value)
		g.add(k, v)
	}
	return g.ranking(n)
}

// bucketOf maps a row to the ordinal of its time bucket.
func bucketOf(field sales.Field) (func(sales.Row) int, func(int) string, error) {
	label := strconv.Itoa
	switch field {
	case sales.FieldDayOfWeek:
		return func(r sales.Row) int { return int(r.DayOfWeek) },
			func(d int) string { return sales.Weekday(d).String() }, nil
	case sales.FieldWeek:
		return func(r sales.Row) int { return r.Week }, label, nil
	case sales.FieldMonth:
		return func(r sales.Row) int { return r.Month }, label, nil
	case sales.FieldYear:
		return func(r sales.Row) int { return r.Year }, label, nil
	}
	return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedBucket, field)
}

func bucketed(rows []sales.Row, field sales.Field, value sales.Measure) ([]int, map[int]*accumulator, func(int) string, error) {
	if err := checkMeasure(value); err != nil {
		return nil, nil, nil, err
	}
	ordinal, label, err := bucketOf(field)
	if err != nil {
		return nil, nil, nil, err
	}
	acc := make(map[int]*accumulator)
	for _, r := range rows {
		b := ordinal(r)
		a, ok := acc[b]
		if !ok {
			a = &accumulator{}
			acc[b] = a
		}
		v, _ := r.Value(value)
		a.add(v)
	}
	keys := make([]int, 0, len(acc))
	for b := range acc {
		keys = append(keys, b)
	}
	sort.Ints(keys)
	return keys, acc, label, nil
}

// MeanBy averages value per bucket of day_of_week (Monday first), week or month
// (ascending). Buckets whose values are all missing are omitted.
func MeanBy(rows []sales.Row, bucket sales.Field, value sales.Measure) (Series, error) {
	keys, acc, label, err := bucketed(rows, bucket, value)
	if err != nil {
		return nil, err
	}
	out := make(Series, 0, len(keys))
	for _, b := range keys {
		if m, ok := acc[b].mean(); ok {
			out = append(out, Point{Bucket: label(b), Value: m})
		}
	}
	return out, nil
}

// YearlyTrend sums value per year, ascending.
func YearlyTrend(rows []sales.Row, value sales.Measure) (Series, error) {
	keys, acc, label, err := bucketed(rows, sales.FieldYear, value)
	if err != nil {
		return nil, err
	}
	out := make(Series, 0, len(keys))
	for _, b := range keys {
		out = append(out, Point{Bucket: label(b), Value: acc[b].total()})
	}
	return out, nil
}

// Stores returns the distinct store numbers in ascending order.
func Stores(rows []sales.Row) []int {
	seen := make(map[int]struct{})
	out := make([]int, 0)
	for _, r := range rows {
		if _, ok := seen[r.StoreNbr]; !ok {
			seen[r.StoreNbr] = struct{}{}
			out = append(out, r.StoreNbr)
		}
	}
	sort.Ints(out)
	return out
}

// States returns the distinct states in ascending order.
func States(rows []sales.Row) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, r := range rows {
		if _, ok := seen[r.State]; !ok {
			seen[r.State] = struct{}{}
			out = append(out, r.State)
		}
	}
	sort.Strings(out)
	return out
}

// Years returns the distinct years in ascending order.
func Years(rows []sales.Row) []int {
	seen := make(map[int]struct{})
	out := make([]int, 0)
	for _, r := range rows {
		if _, ok := seen[r.Year]; !ok {
			seen[r.Year] = struct{}{}
			out = append(out, r.Year)
		}
	}
	sort.Ints(out)
	return out
}
