package csvstore

import (
	"errors"
	"fmt"
	"strings"

	"historysync/internal/domain/entity/calendar"
	"historysync/internal/domain/entity/timeseries"
	"historysync/internal/locale"

	"github.com/shopspring/decimal"
)

const (
	colCode          = "CompanyCode"
	colDate          = "Date"
	colLastPrice     = "LastTradePrice"
	colMax           = "Max"
	colMin           = "Min"
	colAvgPrice      = "AvgPrice"
	colPercentChange = "%Change"
	colVolume        = "Volume"
	colTurnoverBest  = "TurnoverBESTMKD"
	colTurnoverTotal = "TurnoverTotalMKD"
)

// Header is the column order written by Save.
var Header = []string{
	colCode, colDate, colLastPrice, colMax, colMin, colAvgPrice,
	colPercentChange, colVolume, colTurnoverBest, colTurnoverTotal,
}

var required = []string{colDate, colCode, colLastPrice}

// aliases maps headers of older exports onto current column names.
var aliases = map[string]string{
	"Last Trade Price":        colLastPrice,
	"Avg. Price":              colAvgPrice,
	"% Change":                colPercentChange,
	"Turnover BEST (denars)":  colTurnoverBest,
	"Total Turnover (denars)": colTurnoverTotal,
}

type columns map[string]int

func parseHeader(header []string) (columns, error) {
	cols := make(columns, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if canonical, ok := aliases[name]; ok {
			name = canonical
		}
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	var missing []string
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing column(s) %s", timeseries.ErrStoreIntegrity, strings.Join(missing, ", "))
	}
	return cols, nil
}

func (c columns) cell(row []string, name string) string {
	idx, ok := c[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func (c columns) decode(row []string) (timeseries.Record, error) {
	rec := timeseries.Record{Code: strings.ToUpper(c.cell(row, colCode))}
	if rec.Code == "" {
		return rec, fmt.Errorf("empty %s", colCode)
	}

	raw := c.cell(row, colDate)
	date, err := calendar.ParseDate(calendar.StoreLayout, raw)
	if err != nil {
		if date, err = calendar.ParseDate(calendar.ISOLayout, raw); err != nil {
			return rec, fmt.Errorf("%s %q: %w", colDate, raw, err)
		}
	}
	rec.Date = date

	fields := []struct {
		name string
		dst  *decimal.Decimal
	}{
		{colLastPrice, &rec.LastPrice},
		{colMax, &rec.Max},
		{colMin, &rec.Min},
		{colAvgPrice, &rec.AvgPrice},
		{colPercentChange, &rec.PercentChange},
		{colVolume, &rec.Volume},
		{colTurnoverBest, &rec.TurnoverBest},
		{colTurnoverTotal, &rec.TurnoverTotal},
	}
	for _, f := range fields {
		v, err := locale.ParseDecimal(c.cell(row, f.name))
		if err != nil && !errors.Is(err, locale.ErrBlank) {
			return rec, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}
	return rec, nil
}

func encode(rec timeseries.Record) []string {
	return []string{
		rec.Code,
		rec.Date.Format(calendar.StoreLayout),
		locale.FormatDecimal(rec.LastPrice),
		locale.FormatDecimal(rec.Max),
		locale.FormatDecimal(rec.Min),
		locale.FormatDecimal(rec.AvgPrice),
		locale.FormatDecimal(rec.PercentChange),
		locale.FormatDecimal(rec.Volume),
		locale.FormatDecimal(rec.TurnoverBest),
		locale.FormatDecimal(rec.TurnoverTotal),
	}
}
