package timeseries

import (
	"historysync/internal/domain/entity/calendar"
)

// DateSet is the set of days recorded for one instrument.
type DateSet map[calendar.Date]struct{}

// Store is the ordered dataset. Rows of one instrument form a contiguous
// block; blocks keep the order in which instruments first appeared.
// A Store is never modified in place once built.
type Store struct {
	records []Record
}

// NewStore copies records into a store, keeping the last row of any
// duplicated key at the position of its first occurrence.
func NewStore(records []Record) *Store {
	index := make(map[Key]int, len(records))
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if pos, ok := index[rec.Key()]; ok {
			out[pos] = rec
			continue
		}
		index[rec.Key()] = len(out)
		out = append(out, rec)
	}
	return &Store{records: out}
}

func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// Records returns a copy of the rows in store order.
func (s *Store) Records() []Record {
	if s == nil {
		return nil
	}
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Codes lists instruments in order of their first row.
func (s *Store) Codes() []string {
	if s == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var codes []string
	for _, rec := range s.records {
		if _, ok := seen[rec.Code]; ok {
			continue
		}
		seen[rec.Code] = struct{}{}
		codes = append(codes, rec.Code)
	}
	return codes
}

// Dates indexes recorded days per instrument.
func (s *Store) Dates() map[string]DateSet {
	out := make(map[string]DateSet)
	if s == nil {
		return out
	}
	for _, rec := range s.records {
		set, ok := out[rec.Code]
		if !ok {
			set = make(DateSet)
			out[rec.Code] = set
		}
		set[rec.Date] = struct{}{}
	}
	return out
}

// Coverage returns [min, max] of the recorded days for code.
func (s *Store) Coverage(code string) (calendar.Range, bool) {
	var (
		cov   calendar.Range
		found bool
	)
	if s == nil {
		return cov, false
	}
	for _, rec := range s.records {
		if rec.Code != code {
			continue
		}
		if !found {
			cov = calendar.Range{Start: rec.Date, End: rec.Date}
			found = true
			continue
		}
		if rec.Date.Before(cov.Start) {
			cov.Start = rec.Date
		}
		if rec.Date.After(cov.End) {
			cov.End = rec.Date
		}
	}
	return cov, found
}

// Between returns rows of code within r, in store order.
func (s *Store) Between(code string, r calendar.Range) []Record {
	if s == nil {
		return nil
	}
	var out []Record
	for _, rec := range s.records {
		if rec.Code == code && r.Contains(rec.Date) {
			out = append(out, rec)
		}
	}
	return out
}

// FirstIndex returns the position of the first row of code, or -1.
func (s *Store) FirstIndex(code string) int {
	if s == nil {
		return -1
	}
	for i, rec := range s.records {
		if rec.Code == code {
			return i
		}
	}
	return -1
}
