// Package report computes the dashboard's derived views from sales rows.
//
// Every function is a pure transformation: rows in, metrics/rankings/series out. Inputs
// are never modified and nothing is cached between calls. Empty inputs produce zero
// metrics and empty (non-nil) rankings and series.
package report

import "errors"

const (
	// DefaultTopN is the length of most rankings.
	DefaultTopN = 10
	// StoreRankingN is the length of the overview's sales-by-store ranking.
	StoreRankingN = 20
)

var (
	// ErrUnknownField is returned for a grouping field outside the row schema.
	ErrUnknownField = errors.New("unknown field")
	// ErrUnknownMeasure is returned for a value column outside the row schema.
	ErrUnknownMeasure = errors.New("unknown measure")
	// ErrUnsupportedBucket is returned when a field has no natural time order.
	ErrUnsupportedBucket = errors.New("unsupported time bucket")
	// ErrInvalidFilter is returned when a selection cannot be parsed.
	ErrInvalidFilter = errors.New("invalid filter")
)

// Entry is one (key, aggregate) pair of a ranking.
type Entry struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// Ranking is ordered by descending value; ties keep first-encounter order.
type Ranking []Entry

// Keys returns the ranking keys in order.
func (r Ranking) Keys() []string {
	keys := make([]string, len(r))
	for i, e := range r {
		keys[i] = e.Key
	}
	return keys
}

// Point is one bucket of a time series.
type Point struct {
	Bucket string  `json:"bucket"`
	Value  float64 `json:"value"`
}

// Series is ordered by bucket, never by value.
type Series []Point

// StoreSummary holds the headline metrics of a single store.
type StoreSummary struct {
	TotalSales       float64 `json:"total_sales"`
	Products         int     `json:"products"`
	PromotedProducts int     `json:"promoted_products"`
}

// StateSummary holds the headline metrics of a single state.
type StateSummary struct {
	TotalSales        float64 `json:"total_sales"`
	TotalTransactions float64 `json:"total_transactions"`
	Stores            int     `json:"stores"`
}

// StoreProduct is the best-selling family of one store.
type StoreProduct struct {
	Store  int     `json:"store"`
	Family string  `json:"family"`
	Sales  float64 `json:"sales"`
}

// PromotionSplit partitions sales by promotion status. Rows whose onpromotion is
// missing or negative land in Unclassified, so Promo+NoPromo+Unclassified == Total.
type PromotionSplit struct {
	Total        float64 `json:"total"`
	Promo        float64 `json:"promo"`
	NoPromo      float64 `json:"no_promo"`
	Unclassified float64 `json:"unclassified"`
}

// Ranking returns the two-bar promo vs no-promo comparison.
func (p PromotionSplit) Ranking() Ranking {
	return Ranking{{Key: "Promo", Value: p.Promo}, {Key: "No promo", Value: p.NoPromo}}
}
