// Package sales holds the typed row schema of the sales dataset and the loader that
// validates raw tabular input against it.
package sales

import (
	"fmt"
	"strconv"
	"strings"
)

// Row is a single validated dataset row.
//
// Numeric measures use NaN for missing cells; aggregations skip them.
type Row struct {
	StoreNbr     int
	Family       string
	State        string
	Year         int
	Month        int
	Week         int
	DayOfWeek    Weekday
	Sales        float64
	OnPromotion  float64
	Transactions float64
}

// Weekday is a day-of-week bucket, Monday first.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

func (d Weekday) String() string {
	if d < Monday || d > Sunday {
		return "Weekday(" + strconv.Itoa(int(d)) + ")"
	}
	return weekdayNames[d]
}

var weekdayAliases = map[string]Weekday{
	"monday": Monday, "mon": Monday, "lunes": Monday, "lun": Monday,
	"tuesday": Tuesday, "tue": Tuesday, "martes": Tuesday, "mar": Tuesday,
	"wednesday": Wednesday, "wed": Wednesday, "miercoles": Wednesday, "miércoles": Wednesday, "mie": Wednesday,
	"thursday": Thursday, "thu": Thursday, "jueves": Thursday, "jue": Thursday,
	"friday": Friday, "fri": Friday, "viernes": Friday, "vie": Friday,
	"saturday": Saturday, "sat": Saturday, "sabado": Saturday, "sábado": Saturday, "sab": Saturday,
	"sunday": Sunday, "sun": Sunday, "domingo": Sunday, "dom": Sunday,
}

// ParseWeekday accepts English or Spanish day names (full or three-letter) and the
// integers 0-6 with 0 = Monday.
func ParseWeekday(s string) (Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if d, ok := weekdayAliases[s]; ok {
		return d, nil
	}
	if n, err := ParseInt(s); err == nil && n >= 0 && n <= 6 {
		return Weekday(n), nil
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// Field names a categorical or calendar column usable as a grouping key.
type Field string

const (
	FieldStore     Field = "store_nbr"
	FieldFamily    Field = "family"
	FieldState     Field = "state"
	FieldYear      Field = "year"
	FieldMonth     Field = "month"
	FieldWeek      Field = "week"
	FieldDayOfWeek Field = "day_of_week"
)

// Key returns the row's value for f as a grouping key.
func (r Row) Key(f Field) (string, bool) {
	switch f {
	case FieldStore:
		return strconv.Itoa(r.StoreNbr), true
	case FieldFamily:
		return r.Family, true
	case FieldState:
		return r.State, true
	case FieldYear:
		return strconv.Itoa(r.Year), true
	case FieldMonth:
		return strconv.Itoa(r.Month), true
	case FieldWeek:
		return strconv.Itoa(r.Week), true
	case FieldDayOfWeek:
		return r.DayOfWeek.String(), true
	}
	return "", false
}

// Measure names a numeric column.
type Measure string

const (
	MeasureSales        Measure = "sales"
	MeasureOnPromotion  Measure = "onpromotion"
	MeasureTransactions Measure = "transactions"
)

// Value returns the row's value for m.
func (r Row) Value(m Measure) (float64, bool) {
	switch m {
	case MeasureSales:
		return r.Sales, true
	case MeasureOnPromotion:
		return r.OnPromotion, true
	case MeasureTransactions:
		return r.Transactions, true
	}
	return 0, false
}

// Promoted reports whether the row was sold under promotion (onpromotion > 0).
func (r Row) Promoted() bool { return r.OnPromotion > 0 }
