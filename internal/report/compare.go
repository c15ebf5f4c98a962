package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bleedingdev/salesdash/internal/sales"
)

// Filter narrows rows with equality predicates. A nil predicate matches every row.
type Filter struct {
	State *string `json:"state,omitempty"`
	Year  *int    `json:"year,omitempty"`
	Store *int    `json:"store,omitempty"`
}

// IsAll reports whether a selection is the "every value" sentinel.
func IsAll(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "todos", "*":
		return true
	}
	return false
}

// ParseFilter builds the comparison filter from selector values; either may be the
// "all" sentinel.
func ParseFilter(state, year string) (Filter, error) {
	var f Filter
	if !IsAll(state) {
		s := strings.TrimSpace(state)
		f.State = &s
	}
	if !IsAll(year) {
		y, err := sales.ParseInt(strings.TrimSpace(year))
		if err != nil {
			return Filter{}, fmt.Errorf("%w: year %q", ErrInvalidFilter, year)
		}
		f.Year = &y
	}
	return f, nil
}

// StoreFilter selects a single store.
func StoreFilter(store int) Filter { return Filter{Store: &store} }

// StateFilter selects a single state.
func StateFilter(state string) Filter { return Filter{State: &state} }

// Active reports whether any predicate is set.
func (f Filter) Active() bool {
	return f.State != nil || f.Year != nil || f.Store != nil
}

// Match reports whether r satisfies every active predicate.
func (f Filter) Match(r sales.Row) bool {
	if f.State != nil && r.State != *f.State {
		return false
	}
	if f.Year != nil && r.Year != *f.Year {
		return false
	}
	if f.Store != nil && r.StoreNbr != *f.Store {
		return false
	}
	return true
}

// ApplyFilters returns the rows matching f. With no active predicate the input slice is
// returned as is; otherwise a new slice is allocated and rows is left untouched.
func ApplyFilters(rows []sales.Row, f Filter) []sales.Row {
	if !f.Active() {
		return rows
	}
	out := make([]sales.Row, 0)
	for _, r := range rows {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// SplitByPromotion sums sales by promotion status.
func SplitByPromotion(rows []sales.Row) PromotionSplit {
	var total, promo, none, other accumulator
	for _, r := range rows {
		total.add(r.Sales)
		switch {
		case r.OnPromotion > 0:
			promo.add(r.Sales)
		case r.OnPromotion == 0:
			none.add(r.Sales)
		default:
			other.add(r.Sales)
		}
	}
	return PromotionSplit{
		Total:        total.total(),
		Promo:        promo.total(),
		NoPromo:      none.total(),
		Unclassified: other.total(),
	}
}

// MonthLabel formats a year-month bucket as YYYY-MM, so labels sort chronologically.
func MonthLabel(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// MonthlySeries sums sales per year-month, ordered by label.
func MonthlySeries(rows []sales.Row) Series {
	acc := make(map[string]*accumulator)
	for _, r := range rows {
		label := MonthLabel(r.Year, r.Month)
		a, ok := acc[label]
		if !ok {
			a = &accumulator{}
			acc[label] = a
		}
		a.add(r.Sales)
	}
	labels := make([]string, 0, len(acc))
	for l := range acc {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	out := make(Series, 0, len(labels))
	for _, l := range labels {
		out = append(out, Point{Bucket: l, Value: acc[l].total()})
	}
	return out
}

// TopPromotedProductsFiltered ranks families by promoted sales within the rows that
// match f.
func TopPromotedProductsFiltered(rows []sales.Row, f Filter, n int) Ranking {
	return TopPromotedProducts(ApplyFilters(rows, f), n)
}
