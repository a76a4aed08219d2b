package timeseries

import (
	"historysync/internal/domain/entity/calendar"

	"github.com/shopspring/decimal"
)

// Record is one trading day of one instrument.
type Record struct {
	Code          string
	Date          calendar.Date
	LastPrice     decimal.Decimal
	Max           decimal.Decimal
	Min           decimal.Decimal
	AvgPrice      decimal.Decimal
	PercentChange decimal.Decimal
	Volume        decimal.Decimal
	TurnoverBest  decimal.Decimal
	TurnoverTotal decimal.Decimal
}

// Key identifies a record inside a store.
type Key struct {
	Code string
	Date calendar.Date
}

func (r Record) Key() Key {
	return Key{Code: r.Code, Date: r.Date}
}

// Equal compares numeric fields by value, so 1.50 equals 1.5.
func (r Record) Equal(o Record) bool {
	return r.Code == o.Code &&
		r.Date == o.Date &&
		r.LastPrice.Equal(o.LastPrice) &&
		r.Max.Equal(o.Max) &&
		r.Min.Equal(o.Min) &&
		r.AvgPrice.Equal(o.AvgPrice) &&
		r.PercentChange.Equal(o.PercentChange) &&
		r.Volume.Equal(o.Volume) &&
		r.TurnoverBest.Equal(o.TurnoverBest) &&
		r.TurnoverTotal.Equal(o.TurnoverTotal)
}

// RawRow is the cell text of one table row as delivered by the source.
type RawRow []string

// Column positions of a source history row.
const (
	ColDate = iota
	ColLastPrice
	ColMax
	ColMin
	ColAvgPrice
	ColPercentChange
	ColVolume
	ColTurnoverBest
	ColTurnoverTotal

	// MinRowFields is the number of cells a row needs to be accepted.
	MinRowFields
)
