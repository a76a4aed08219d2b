package interfaces

import (
	"context"

	"historysync/internal/domain/entity/calendar"
	"historysync/internal/domain/entity/instruments"
	"historysync/internal/domain/entity/timeseries"
)

// HistoryFetcher retrieves the raw history rows of one instrument for one
// chunk. Failures are reported as *timeseries.HTTPError,
// *timeseries.DocumentError or timeseries.ErrEmptyTable.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, code string, chunk calendar.Range) ([]timeseries.RawRow, error)
}

// InstrumentLister discovers the instruments listed by the source.
type InstrumentLister interface {
	ListInstruments(ctx context.Context) ([]instruments.Instrument, error)
}
