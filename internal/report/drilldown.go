package report

import (
	"sort"

	"github.com/bleedingdev/salesdash/internal/sales"
)

// SummarizeStore computes the store tab metrics over rows already narrowed to one store.
func SummarizeStore(rows []sales.Row) StoreSummary {
	var total accumulator
	products := make(map[string]struct{})
	promoted := make(map[string]struct{})
	for _, r := range rows {
		total.add(r.Sales)
		products[r.Family] = struct{}{}
		if r.Promoted() {
			promoted[r.Family] = struct{}{}
		}
	}
	return StoreSummary{
		TotalSales:       total.total(),
		Products:         len(products),
		PromotedProducts: len(promoted),
	}
}

// SummarizeState computes the state tab metrics over rows already narrowed to one state.
func SummarizeState(rows []sales.Row) StateSummary {
	var salesSum, transactions accumulator
	stores := make(map[int]struct{})
	for _, r := range rows {
		salesSum.add(r.Sales)
		transactions.add(r.Transactions)
		stores[r.StoreNbr] = struct{}{}
	}
	return StateSummary{
		TotalSales:        salesSum.total(),
		TotalTransactions: transactions.total(),
		Stores:            len(stores),
	}
}

// TopProducts ranks product families by summed sales.
func TopProducts(rows []sales.Row, n int) Ranking {
	return topN(rows, sales.FieldFamily, sales.MeasureSales, n, nil)
}

// TopPromotedProducts ranks product families by summed sales of promoted rows.
func TopPromotedProducts(rows []sales.Row, n int) Ranking {
	return topN(rows, sales.FieldFamily, sales.MeasureSales, n, sales.Row.Promoted)
}

// TopStoresByState ranks stores by summed sales over rows already narrowed to a state.
func TopStoresByState(rows []sales.Row, n int) Ranking {
	return topN(rows, sales.FieldStore, sales.MeasureSales, n, nil)
}

// BestProductPerStore finds, for each store, the family with the largest summed sales.
// Among tied families the lexicographically smallest wins. Stores are returned by
// descending best-family sales (ties by ascending store number), truncated to n.
func BestProductPerStore(rows []sales.Row, n int) []StoreProduct {
	type pair struct {
		store  int
		family string
	}
	sums := make(map[pair]*accumulator)
	for _, r := range rows {
		k := pair{r.StoreNbr, r.Family}
		a, ok := sums[k]
		if !ok {
			a = &accumulator{}
			sums[k] = a
		}
		a.add(r.Sales)
	}

	best := make(map[int]StoreProduct)
	for k, a := range sums {
		cand := StoreProduct{Store: k.store, Family: k.family, Sales: a.total()}
		cur, ok := best[k.store]
		if !ok || cand.Sales > cur.Sales || (cand.Sales == cur.Sales && cand.Family < cur.Family) {
			best[k.store] = cand
		}
	}

	out := make([]StoreProduct, 0, len(best))
	for _, sp := range best {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sales != out[j].Sales {
			return out[i].Sales > out[j].Sales
		}
		return out[i].Store < out[j].Store
	})
	if n < 0 {
		n = 0
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}
