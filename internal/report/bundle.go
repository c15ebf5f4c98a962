package report

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bleedingdev/salesdash/internal/sales"
)

var (
	// ErrUnknownView is returned by ParseView.
	ErrUnknownView = errors.New("unknown view")
	// ErrUnknownSelection is returned when a requested store or state is not in the data.
	ErrUnknownSelection = errors.New("unknown selection")
)

// View names a dashboard tab.
type View string

const (
	ViewOverview   View = "overview"
	ViewStore      View = "store"
	ViewState      View = "state"
	ViewComparison View = "comparison"
	ViewAll        View = "all"
)

// ParseView accepts a tab name, case-insensitive. Empty means all.
func ParseView(s string) (View, error) {
	switch v := View(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return ViewAll, nil
	case ViewOverview, ViewStore, ViewState, ViewComparison, ViewAll:
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownView, s)
}

// Query selects the views of a bundle. A nil Store or empty State picks the first
// value of the corresponding selector, like the dashboard's default selection.
type Query struct {
	View   View
	Store  *int
	State  string
	Filter Filter
}

// BuildBundle computes the views named by q.
func BuildBundle(rows []sales.Row, q Query) (*Bundle, error) {
	view := q.View
	if view == "" {
		view = ViewAll
	}
	want := func(v View) bool { return view == ViewAll || view == v }
	b := &Bundle{}

	if want(ViewOverview) {
		b.Overview = BuildOverview(rows)
	}
	if want(ViewStore) {
		store, ok, err := pickStore(rows, q.Store)
		if err != nil {
			return nil, err
		}
		if ok {
			b.Store = BuildStoreReport(rows, store)
		}
	}
	if want(ViewState) {
		state, ok, err := pickState(rows, q.State)
		if err != nil {
			return nil, err
		}
		if ok {
			b.State = BuildStateReport(rows, state)
		}
	}
	if want(ViewComparison) {
		b.Comparison = BuildComparison(rows, q.Filter)
	}
	return b, nil
}

func pickStore(rows []sales.Row, requested *int) (int, bool, error) {
	stores := Stores(rows)
	if requested == nil {
		if len(stores) == 0 {
			return 0, false, nil
		}
		return stores[0], true, nil
	}
	for _, s := range stores {
		if s == *requested {
			return s, true, nil
		}
	}
	return 0, false, fmt.Errorf("%w: store %d", ErrUnknownSelection, *requested)
}

func pickState(rows []sales.Row, requested string) (string, bool, error) {
	states := States(rows)
	requested = strings.TrimSpace(requested)
	if requested == "" {
		if len(states) == 0 {
			return "", false, nil
		}
		return states[0], true, nil
	}
	for _, s := range states {
		if s == requested {
			return s, true, nil
		}
	}
	return "", false, fmt.Errorf("%w: state %q", ErrUnknownSelection, requested)
}

// ParseQuery builds a query from selector values as they arrive from the command line or
// a query string. state and year form the comparison filter; the state view uses
// storeState, falling back to the filtered state when storeState is empty.
func ParseQuery(view, store, storeState, state, year string) (Query, error) {
	v, err := ParseView(view)
	if err != nil {
		return Query{}, err
	}
	q := Query{View: v, State: strings.TrimSpace(storeState)}
	if s := strings.TrimSpace(store); s != "" {
		n, err := sales.ParseInt(s)
		if err != nil {
			return Query{}, fmt.Errorf("%w: store %q", ErrInvalidFilter, store)
		}
		q.Store = &n
	}
	if q.Filter, err = ParseFilter(state, year); err != nil {
		return Query{}, err
	}
	if q.State == "" && q.Filter.State != nil {
		q.State = *q.Filter.State
	}
	return q, nil
}
