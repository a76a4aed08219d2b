package instruments

import (
	"context"
	"errors"
	"io"
	"testing"

	domain "historysync/internal/domain/entity/instruments"
	"historysync/internal/domain/entity/timeseries"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLister struct {
	list []domain.Instrument
	err  error
}

func (s stubLister) ListInstruments(context.Context) ([]domain.Instrument, error) {
	return s.list, s.err
}

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func storeWith(codes ...string) *timeseries.Store {
	var recs []timeseries.Record
	for _, c := range codes {
		recs = append(recs, timeseries.Record{Code: c})
	}
	return timeseries.NewStore(recs)
}

func TestDiscoverPrefersRemote(t *testing.T) {
	svc := NewService(stubLister{list: []domain.Instrument{domain.New("ALK", "Alkaloid")}}, quiet())

	list, src, err := svc.Discover(context.Background(), storeWith("KMB"))

	require.NoError(t, err)
	assert.Equal(t, SourceRemote, src)
	require.Len(t, list, 1)
	assert.Equal(t, "ALK", list[0].Code)
}

func TestDiscoverFallsBackToStore(t *testing.T) {
	svc := NewService(stubLister{err: errors.New("connection refused")}, quiet())

	list, src, err := svc.Discover(context.Background(), storeWith("KMB", "ALK"))

	require.NoError(t, err)
	assert.Equal(t, SourceStore, src)
	assert.Equal(t, []string{"KMB", "ALK"}, []string{list[0].Code, list[1].Code})
}

func TestDiscoverWithNothingAvailable(t *testing.T) {
	svc := NewService(stubLister{err: errors.New("down")}, quiet())

	_, _, err := svc.Discover(context.Background(), nil)

	assert.ErrorIs(t, err, ErrNoInstruments)
}

func TestDiscoverWithoutLister(t *testing.T) {
	list, src, err := NewService(nil, quiet()).Discover(context.Background(), storeWith("ALK"))

	require.NoError(t, err)
	assert.Equal(t, SourceStore, src)
	assert.Len(t, list, 1)
}
