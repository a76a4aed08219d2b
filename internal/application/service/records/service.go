package records

import (
	"context"
	"errors"
	"slices"
	"strings"

	"historysync/internal/domain/entity/calendar"
	"historysync/internal/domain/entity/timeseries"
	interfaces "historysync/internal/domain/interfaces"
)

var (
	ErrInvalidLimit = errors.New("limit must be positive")
	ErrEmptyCode    = errors.New("instrument code is empty")
	ErrUnknownCode  = errors.New("instrument has no stored history")
)

// Service answers read queries over the persisted dataset.
type Service struct {
	repo interfaces.StoreRepository
}

func NewService(repo interfaces.StoreRepository) *Service {
	return &Service{repo: repo}
}

// Codes lists the stored instruments in store order.
func (s *Service) Codes(ctx context.Context) ([]string, error) {
	store, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	return store.Codes(), nil
}

// Coverage reports the first and last stored day of code.
func (s *Service) Coverage(ctx context.Context, code string) (calendar.Range, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return calendar.Range{}, err
	}
	store, err := s.repo.Load(ctx)
	if err != nil {
		return calendar.Range{}, err
	}
	cov, ok := store.Coverage(code)
	if !ok {
		return calendar.Range{}, ErrUnknownCode
	}
	return cov, nil
}

// GetRecordsBetween returns rows of code between from and to, newest first.
// An inverted pair is swapped.
func (s *Service) GetRecordsBetween(ctx context.Context, code string, from, to calendar.Date) ([]timeseries.Record, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return nil, err
	}
	if from.After(to) {
		from, to = to, from
	}
	store, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := store.Between(code, calendar.Range{Start: from, End: to})
	sortNewestFirst(out)
	return out, nil
}

// GetLastRecords returns up to limit of the most recent rows of code.
func (s *Service) GetLastRecords(ctx context.Context, code string, limit int) ([]timeseries.Record, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	code, err := normalizeCode(code)
	if err != nil {
		return nil, err
	}
	store, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	cov, ok := store.Coverage(code)
	if !ok {
		return nil, ErrUnknownCode
	}
	out := store.Between(code, cov)
	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Service) Close() {
	s.repo.Close()
}

func normalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", ErrEmptyCode
	}
	return code, nil
}

func sortNewestFirst(recs []timeseries.Record) {
	slices.SortStableFunc(recs, func(a, b timeseries.Record) int {
		return b.Date.Compare(a.Date)
	})
}
