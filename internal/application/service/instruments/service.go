package instruments

import (
	"context"
	"errors"
	"fmt"

	domain "historysync/internal/domain/entity/instruments"
	"historysync/internal/domain/entity/timeseries"
	interfaces "historysync/internal/domain/interfaces"

	"github.com/sirupsen/logrus"
)

var ErrNoInstruments = errors.New("no instruments to synchronize")

// Source tells where a discovered list came from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceStore  Source = "store"
)

type Service struct {
	lister interfaces.InstrumentLister
	logger *logrus.Entry
}

func NewService(lister interfaces.InstrumentLister, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{lister: lister, logger: logger.WithField("component", "instruments")}
}

// ListRemote asks the source for its current listing.
func (s *Service) ListRemote(ctx context.Context) ([]domain.Instrument, error) {
	if s.lister == nil {
		return nil, ErrNoInstruments
	}
	list, err := s.lister.ListInstruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	return list, nil
}

// Discover returns the remote listing, or the instruments already present in
// store when the source cannot be reached or lists nothing.
func (s *Service) Discover(ctx context.Context, store *timeseries.Store) ([]domain.Instrument, Source, error) {
	list, err := s.ListRemote(ctx)
	if err == nil && len(list) > 0 {
		return list, SourceRemote, nil
	}

	fromStore := FromStore(store)
	if len(fromStore) == 0 {
		if err != nil {
			return nil, "", errors.Join(ErrNoInstruments, err)
		}
		return nil, "", ErrNoInstruments
	}
	s.logger.WithError(err).WithField("instruments", len(fromStore)).
		Warn("instrument discovery unavailable, falling back to stored instruments")
	return fromStore, SourceStore, nil
}

// FromStore lists the instruments that have rows in store, in store order.
func FromStore(store *timeseries.Store) []domain.Instrument {
	codes := store.Codes()
	out := make([]domain.Instrument, 0, len(codes))
	for _, code := range codes {
		out = append(out, domain.New(code, code))
	}
	return out
}
