package report

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/bleedingdev/salesdash/internal/sales"
)

// Overview is the global tab: headline counts, rankings and seasonality.
type Overview struct {
	Stores            int               `json:"stores"`
	Families          int               `json:"families"`
	States            int               `json:"states"`
	Periods           int               `json:"periods"`
	TopProducts       Ranking           `json:"top_products"`
	StoreSales        Ranking           `json:"store_sales"`
	TopPromotedStores Ranking           `json:"top_promoted_stores"`
	MeanByDay         Series            `json:"mean_by_day"`
	MeanByWeek        Series            `json:"mean_by_week"`
	MeanByMonth       Series            `json:"mean_by_month"`
	Errors            map[string]string `json:"errors,omitempty"`
}

// StoreReport is the drill-down for one store.
type StoreReport struct {
	Store               int               `json:"store"`
	Summary             StoreSummary      `json:"summary"`
	YearlySales         Series            `json:"yearly_sales"`
	TopProducts         Ranking           `json:"top_products"`
	TopPromotedProducts Ranking           `json:"top_promoted_products"`
	Errors              map[string]string `json:"errors,omitempty"`
}

// StateReport is the drill-down for one state.
type StateReport struct {
	State              string            `json:"state"`
	Summary            StateSummary      `json:"summary"`
	YearlyTransactions Series            `json:"yearly_transactions"`
	TopStores          Ranking           `json:"top_stores"`
	BestProducts       []StoreProduct    `json:"best_products"`
	Errors             map[string]string `json:"errors,omitempty"`
}

// Comparison is the promotion-impact tab under an optional state and year filter.
type Comparison struct {
	Filter              Filter            `json:"filter"`
	Split               PromotionSplit    `json:"split"`
	PromoVsNoPromo      Ranking           `json:"promo_vs_no_promo"`
	Monthly             Series            `json:"monthly"`
	TopPromotedProducts Ranking           `json:"top_promoted_products"`
	Errors              map[string]string `json:"errors,omitempty"`
}

// Selections lists the values a collaborator offers in its selectors.
type Selections struct {
	Stores []int    `json:"stores"`
	States []string `json:"states"`
	Years  []int    `json:"years"`
}

// section runs fn and records a failure or panic under name instead of propagating it.
func section[T any](errs *map[string]string, name string, fn func() (T, error)) (out T) {
	fail := func(cause any) {
		if *errs == nil {
			*errs = make(map[string]string)
		}
		(*errs)[name] = fmt.Sprint(cause)
		log.WithFields(log.Fields{"section": name, "error": cause}).Error("report section failed")
	}
	defer func() {
		if r := recover(); r != nil {
			var zero T
			out = zero
			fail(r)
		}
	}()
	v, err := fn()
	if err != nil {
		fail(err)
		var zero T
		return zero
	}
	return v
}

func noErr[T any](v T) (T, error) { return v, nil }

// BuildOverview computes the global tab over the full dataset.
func BuildOverview(rows []sales.Row) *Overview {
	o := &Overview{}
	o.Stores = section(&o.Errors, "stores", func() (int, error) { return DistinctCount(rows, sales.FieldStore) })
	o.Families = section(&o.Errors, "families", func() (int, error) { return DistinctCount(rows, sales.FieldFamily) })
	o.States = section(&o.Errors, "states", func() (int, error) { return DistinctCount(rows, sales.FieldState) })
	o.Periods = section(&o.Errors, "periods", func() (int, error) { return noErr(DistinctPeriodCount(rows)) })
	o.TopProducts = section(&o.Errors, "top_products", func() (Ranking, error) {
		return TopNBySum(rows, sales.FieldFamily, sales.MeasureSales, DefaultTopN)
	})
	o.StoreSales = section(&o.Errors, "store_sales", func() (Ranking, error) {
		return TopNBySum(rows, sales.FieldStore, sales.MeasureSales, StoreRankingN)
	})
	o.TopPromotedStores = section(&o.Errors, "top_promoted_stores", func() (Ranking, error) {
		return TopNPromoted(rows, sales.FieldStore, DefaultTopN)
	})
	o.MeanByDay = section(&o.Errors, "mean_by_day", func() (Series, error) {
		return MeanBy(rows, sales.FieldDayOfWeek, sales.MeasureSales)
	})
	o.MeanByWeek = section(&o.Errors, "mean_by_week", func() (Series, error) {
		return MeanBy(rows, sales.FieldWeek, sales.MeasureSales)
	})
	o.MeanByMonth = section(&o.Errors, "mean_by_month", func() (Series, error) {
		return MeanBy(rows, sales.FieldMonth, sales.MeasureSales)
	})
	return o
}

// BuildStoreReport computes the store tab for one store.
func BuildStoreReport(rows []sales.Row, store int) *StoreReport {
	subset := ApplyFilters(rows, StoreFilter(store))
	r := &StoreReport{Store: store}
	r.Summary = section(&r.Errors, "summary", func() (StoreSummary, error) { return noErr(SummarizeStore(subset)) })
	r.YearlySales = section(&r.Errors, "yearly_sales", func() (Series, error) {
		return YearlyTrend(subset, sales.MeasureSales)
	})
	r.TopProducts = section(&r.Errors, "top_products", func() (Ranking, error) {
		return noErr(TopProducts(subset, DefaultTopN))
	})
	r.TopPromotedProducts = section(&r.Errors, "top_promoted_products", func() (Ranking, error) {
		return noErr(TopPromotedProducts(subset, DefaultTopN))
	})
	return r
}

// BuildStateReport computes the state tab for one state.
func BuildStateReport(rows []sales.Row, state string) *StateReport {
	subset := ApplyFilters(rows, StateFilter(state))
	r := &StateReport{State: state}
	r.Summary = section(&r.Errors, "summary", func() (StateSummary, error) { return noErr(SummarizeState(subset)) })
	r.YearlyTransactions = section(&r.Errors, "yearly_transactions", func() (Series, error) {
		return YearlyTrend(subset, sales.MeasureTransactions)
	})
	r.TopStores = section(&r.Errors, "top_stores", func() (Ranking, error) {
		return noErr(TopStoresByState(subset, DefaultTopN))
	})
	r.BestProducts = section(&r.Errors, "best_products", func() ([]StoreProduct, error) {
		return noErr(BestProductPerStore(subset, DefaultTopN))
	})
	return r
}

// BuildComparison computes the promotion-impact tab under f.
func BuildComparison(rows []sales.Row, f Filter) *Comparison {
	subset := ApplyFilters(rows, f)
	c := &Comparison{Filter: f}
	c.Split = section(&c.Errors, "split", func() (PromotionSplit, error) { return noErr(SplitByPromotion(subset)) })
	c.PromoVsNoPromo = c.Split.Ranking()
	c.Monthly = section(&c.Errors, "monthly", func() (Series, error) { return noErr(MonthlySeries(subset)) })
	c.TopPromotedProducts = section(&c.Errors, "top_promoted_products", func() (Ranking, error) {
		return noErr(TopPromotedProducts(subset, DefaultTopN))
	})
	return c
}

// BuildSelections lists the sorted selector values.
func BuildSelections(rows []sales.Row) *Selections {
	return &Selections{Stores: Stores(rows), States: States(rows), Years: Years(rows)}
}
