package report

import "strconv"

// Table is a flat, rendering-agnostic projection of one view section, used by the
// exporters. Cells are string, int or float64.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]any
}

func rankingTable(name, keyColumn, valueColumn string, r Ranking) Table {
	t := Table{Name: name, Columns: []string{"rank", keyColumn, valueColumn}}
	for i, e := range r {
		t.Rows = append(t.Rows, []any{i + 1, e.Key, e.Value})
	}
	return t
}

func seriesTable(name, bucketColumn, valueColumn string, s Series) Table {
	t := Table{Name: name, Columns: []string{bucketColumn, valueColumn}}
	for _, p := range s {
		t.Rows = append(t.Rows, []any{p.Bucket, p.Value})
	}
	return t
}

func metricsTable(name string, pairs ...any) Table {
	t := Table{Name: name, Columns: []string{"metric", "value"}}
	for i := 0; i+1 < len(pairs); i += 2 {
		t.Rows = append(t.Rows, []any{pairs[i], pairs[i+1]})
	}
	return t
}

// Tables flattens the overview.
func (o *Overview) Tables() []Table {
	return []Table{
		metricsTable("overview_metrics",
			"stores", o.Stores, "families", o.Families, "states", o.States, "periods", o.Periods),
		rankingTable("overview_top_products", "family", "sales", o.TopProducts),
		rankingTable("overview_store_sales", "store_nbr", "sales", o.StoreSales),
		rankingTable("overview_top_promoted_stores", "store_nbr", "sales", o.TopPromotedStores),
		seriesTable("overview_mean_by_day", "day_of_week", "mean_sales", o.MeanByDay),
		seriesTable("overview_mean_by_week", "week", "mean_sales", o.MeanByWeek),
		seriesTable("overview_mean_by_month", "month", "mean_sales", o.MeanByMonth),
	}
}

// Tables flattens the store drill-down.
func (r *StoreReport) Tables() []Table {
	prefix := "store_" + strconv.Itoa(r.Store) + "_"
	return []Table{
		metricsTable(prefix+"metrics",
			"total_sales", r.Summary.TotalSales,
			"products", r.Summary.Products,
			"promoted_products", r.Summary.PromotedProducts),
		seriesTable(prefix+"yearly_sales", "year", "sales", r.YearlySales),
		rankingTable(prefix+"top_products", "family", "sales", r.TopProducts),
		rankingTable(prefix+"top_promoted_products", "family", "sales", r.TopPromotedProducts),
	}
}

// Tables flattens the state drill-down.
func (r *StateReport) Tables() []Table {
	prefix := "state_"
	best := Table{Name: prefix + "best_products", Columns: []string{"store_nbr", "family", "sales"}}
	for _, sp := range r.BestProducts {
		best.Rows = append(best.Rows, []any{sp.Store, sp.Family, sp.Sales})
	}
	return []Table{
		metricsTable(prefix+"metrics",
			"state", r.State,
			"total_sales", r.Summary.TotalSales,
			"total_transactions", r.Summary.TotalTransactions,
			"stores", r.Summary.Stores),
		seriesTable(prefix+"yearly_transactions", "year", "transactions", r.YearlyTransactions),
		rankingTable(prefix+"top_stores", "store_nbr", "sales", r.TopStores),
		best,
	}
}

// Tables flattens the comparison.
func (c *Comparison) Tables() []Table {
	state, year := "all", "all"
	if c.Filter.State != nil {
		state = *c.Filter.State
	}
	if c.Filter.Year != nil {
		year = strconv.Itoa(*c.Filter.Year)
	}
	return []Table{
		metricsTable("comparison_metrics",
			"state", state, "year", year,
			"total_sales", c.Split.Total,
			"promo_sales", c.Split.Promo,
			"no_promo_sales", c.Split.NoPromo,
			"unclassified_sales", c.Split.Unclassified),
		seriesTable("comparison_monthly", "year_month", "sales", c.Monthly),
		rankingTable("comparison_top_promoted_products", "family", "sales", c.TopPromotedProducts),
	}
}

// Bundle groups the views produced for one export or CLI run. Nil views are skipped.
type Bundle struct {
	Overview   *Overview    `json:"overview,omitempty"`
	Store      *StoreReport `json:"store,omitempty"`
	State      *StateReport `json:"state,omitempty"`
	Comparison *Comparison  `json:"comparison,omitempty"`
}

// Tables flattens every present view in tab order.
func (b *Bundle) Tables() []Table {
	var out []Table
	if b.Overview != nil {
		out = append(out, b.Overview.Tables()...)
	}
	if b.Store != nil {
		out = append(out, b.Store.Tables()...)
	}
	if b.State != nil {
		out = append(out, b.State.Tables()...)
	}
	if b.Comparison != nil {
		out = append(out, b.Comparison.Tables()...)
	}
	return out
}
