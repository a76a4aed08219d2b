package normalize

import (
	"testing"
	"time"

	"historysync/internal/domain/entity/calendar"
	"historysync/internal/domain/entity/instruments"
	"historysync/internal/domain/entity/timeseries"
	"historysync/internal/locale"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var kmb = instruments.New("KMB", "Komercijalna banka")

func row(date string) timeseries.RawRow {
	return timeseries.RawRow{date, "21.900,00", "22.000,00", "21.500,00", "21.812,34", "-0,45", "120", "2.617.480,00", "2.617.480,00"}
}

func TestNormalizeParsesFields(t *testing.T) {
	rec, err := New().Normalize(row("1/15/2024"), kmb)
	require.NoError(t, err)

	assert.Equal(t, "KMB", rec.Code)
	assert.Equal(t, calendar.NewDate(2024, time.January, 15), rec.Date)
	assert.True(t, rec.LastPrice.Equal(decimal.RequireFromString("21900")))
	assert.True(t, rec.AvgPrice.Equal(decimal.RequireFromString("21812.34")))
	assert.True(t, rec.PercentChange.Equal(decimal.RequireFromString("-0.45")))
	assert.True(t, rec.Volume.Equal(decimal.NewFromInt(120)))
	assert.True(t, rec.TurnoverTotal.Equal(decimal.RequireFromString("2617480")))
}

func TestNormalizeDateFormats(t *testing.T) {
	want := calendar.NewDate(2024, time.March, 5)
	for _, in := range []string{"3/5/2024", "05.03.2024", "5.3.2024", "2024-03-05", " 3/5/2024 "} {
		rec, err := New().Normalize(row(in), kmb)
		require.NoError(t, err, in)
		assert.Equal(t, want, rec.Date, in)
	}
}

func TestNormalizeBlankCellsAreZero(t *testing.T) {
	raw := timeseries.RawRow{"1/15/2024", "21.900,00", "", "", "21.900,00", "0,00", "0", "0", "0"}

	rec, err := New().Normalize(raw, kmb)
	require.NoError(t, err)
	assert.True(t, rec.Max.IsZero())
	assert.True(t, rec.Min.IsZero())
}

func TestNormalizeRejects(t *testing.T) {
	cases := map[string]timeseries.RawRow{
		"short row":  {"1/15/2024", "1,00"},
		"bad date":   row("yesterday"),
		"bad number": {"1/15/2024", "abc", "1", "1", "1", "1", "1", "1", "1"},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New().Normalize(raw, kmb)
			var pf *ParseFailure
			require.ErrorAs(t, err, &pf)
			assert.Equal(t, "KMB", pf.Code)
			assert.NotEmpty(t, pf.Reason)
		})
	}

	_, err := New().Normalize(timeseries.RawRow{"x"}, kmb)
	assert.ErrorIs(t, err, ErrShortRow)

	_, err = New().Normalize(timeseries.RawRow{"1/15/2024", "1.2", "1", "1", "1", "1", "1", "1", "1"}, kmb)
	assert.ErrorIs(t, err, locale.ErrMalformed)
}

func TestNormalizeAllContinuesAfterFailures(t *testing.T) {
	rows := []timeseries.RawRow{
		row("1/15/2024"),
		row("not a date"),
		{"short"},
		row("1/16/2024"),
	}

	records, failures := New().NormalizeAll(rows, kmb)

	require.Len(t, records, 2)
	assert.Equal(t, calendar.NewDate(2024, 1, 16), records[1].Date)
	require.Len(t, failures, 2)
	assert.Equal(t, 1, failures[0].Row)
	assert.Equal(t, 2, failures[1].Row)
}
