package records

import (
	"context"
	"errors"
	"testing"
	"time"

	"historysync/internal/domain/entity/calendar"
	"historysync/internal/domain/entity/timeseries"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticStore struct {
	store *timeseries.Store
	err   error
}

func (s staticStore) Load(context.Context) (*timeseries.Store, error) { return s.store, s.err }
func (s staticStore) Save(context.Context, *timeseries.Store) error   { return nil }
func (s staticStore) Close()                                          {}

func day(d int) calendar.Date { return calendar.NewDate(2024, time.March, d) }

func rec(code string, d int) timeseries.Record {
	return timeseries.Record{Code: code, Date: day(d), LastPrice: decimal.NewFromInt(int64(d))}
}

func newService() *Service {
	return NewService(staticStore{store: timeseries.NewStore([]timeseries.Record{
		rec("ALK", 5), rec("ALK", 3), rec("ALK", 4), rec("ALK", 1),
		rec("KMB", 2),
	})})
}

func TestGetRecordsBetweenSwapsAndSorts(t *testing.T) {
	got, err := newService().GetRecordsBetween(context.Background(), " alk ", day(4), day(2))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, day(4), got[0].Date)
	assert.Equal(t, day(3), got[1].Date)
}

func TestGetLastRecords(t *testing.T) {
	svc := newService()

	got, err := svc.GetLastRecords(context.Background(), "ALK", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, day(5), got[0].Date)
	assert.Equal(t, day(4), got[1].Date)

	_, err = svc.GetLastRecords(context.Background(), "ALK", 0)
	require.ErrorIs(t, err, ErrInvalidLimit)

	_, err = svc.GetLastRecords(context.Background(), "TEL", 5)
	require.ErrorIs(t, err, ErrUnknownCode)

	_, err = svc.GetLastRecords(context.Background(), "  ", 5)
	require.ErrorIs(t, err, ErrEmptyCode)
}

func TestCodesAndCoverage(t *testing.T) {
	svc := newService()

	codes, err := svc.Codes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ALK", "KMB"}, codes)

	cov, err := svc.Coverage(context.Background(), "ALK")
	require.NoError(t, err)
	assert.Equal(t, calendar.Range{Start: day(1), End: day(5)}, cov)
}

func TestLoadErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService(staticStore{err: boom})

	_, err := svc.Codes(context.Background())
	require.ErrorIs(t, err, boom)
	_, err = svc.GetRecordsBetween(context.Background(), "ALK", day(1), day(2))
	require.ErrorIs(t, err, boom)
}
