package normalize

import (
	"errors"
	"fmt"
	"strings"

	"historysync/internal/domain/entity/calendar"
	"historysync/internal/domain/entity/instruments"
	"historysync/internal/domain/entity/timeseries"
	"historysync/internal/locale"

	"github.com/shopspring/decimal"
)

// DateLayouts are tried in order. The source renders month-first dates on its
// English pages; the store and older exports use day-first dates.
var DateLayouts = []string{
	"1/2/2006",
	calendar.StoreLayout,
	"2.1.2006",
	calendar.ISOLayout,
}

var ErrShortRow = errors.New("row has too few fields")

// ParseFailure is a rejected row. Sibling rows are unaffected.
type ParseFailure struct {
	Code   string
	Row    int
	Raw    timeseries.RawRow
	Reason string
	Err    error
}

func (f *ParseFailure) Error() string {
	return fmt.Sprintf("%s row %d: %s", f.Code, f.Row, f.Reason)
}

func (f *ParseFailure) Unwrap() error { return f.Err }

// Normalizer turns raw rows into typed records.
type Normalizer struct {
	layouts []string
}

func New() *Normalizer {
	return &Normalizer{layouts: DateLayouts}
}

// Normalize converts one row. The returned error is always a *ParseFailure.
func (n *Normalizer) Normalize(raw timeseries.RawRow, inst instruments.Instrument) (timeseries.Record, error) {
	return n.normalizeAt(raw, inst, 0)
}

// NormalizeAll converts every row, collecting rejects instead of stopping.
func (n *Normalizer) NormalizeAll(rows []timeseries.RawRow, inst instruments.Instrument) ([]timeseries.Record, []*ParseFailure) {
	records := make([]timeseries.Record, 0, len(rows))
	var failures []*ParseFailure
	for i, raw := range rows {
		rec, err := n.normalizeAt(raw, inst, i)
		if err != nil {
			var pf *ParseFailure
			if errors.As(err, &pf) {
				failures = append(failures, pf)
			}
			continue
		}
		records = append(records, rec)
	}
	return records, failures
}

func (n *Normalizer) normalizeAt(raw timeseries.RawRow, inst instruments.Instrument, row int) (timeseries.Record, error) {
	fail := func(reason string, err error) (timeseries.Record, error) {
		return timeseries.Record{}, &ParseFailure{Code: inst.Code, Row: row, Raw: raw, Reason: reason, Err: err}
	}
	if len(raw) < timeseries.MinRowFields {
		return fail(fmt.Sprintf("%d of %d fields", len(raw), timeseries.MinRowFields), ErrShortRow)
	}

	date, err := n.parseDate(raw[timeseries.ColDate])
	if err != nil {
		return fail(fmt.Sprintf("date %q", raw[timeseries.ColDate]), err)
	}

	rec := timeseries.Record{Code: inst.Code, Date: date}
	fields := []struct {
		col  int
		name string
		dst  *decimal.Decimal
	}{
		{timeseries.ColLastPrice, "last price", &rec.LastPrice},
		{timeseries.ColMax, "max", &rec.Max},
		{timeseries.ColMin, "min", &rec.Min},
		{timeseries.ColAvgPrice, "avg price", &rec.AvgPrice},
		{timeseries.ColPercentChange, "% change", &rec.PercentChange},
		{timeseries.ColVolume, "volume", &rec.Volume},
		{timeseries.ColTurnoverBest, "turnover best", &rec.TurnoverBest},
		{timeseries.ColTurnoverTotal, "turnover total", &rec.TurnoverTotal},
	}
	for _, f := range fields {
		value, err := parseNumber(raw[f.col])
		if err != nil {
			return fail(fmt.Sprintf("%s %q", f.name, raw[f.col]), err)
		}
		*f.dst = value
	}
	return rec, nil
}

func (n *Normalizer) parseDate(value string) (calendar.Date, error) {
	value = strings.TrimSpace(value)
	var firstErr error
	for _, layout := range n.layouts {
		d, err := calendar.ParseDate(layout, value)
		if err == nil {
			return d, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return calendar.Date{}, firstErr
}

// parseNumber treats a blank cell as zero: the source leaves price cells
// empty on days without trades.
func parseNumber(value string) (decimal.Decimal, error) {
	d, err := locale.ParseDecimal(value)
	if errors.Is(err, locale.ErrBlank) {
		return decimal.Zero, nil
	}
	return d, err
}
