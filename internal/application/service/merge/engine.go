package merge

import (
	"slices"

	"historysync/internal/domain/entity/timeseries"
)

// Stats counts what a merge changed.
type Stats struct {
	Inserted int
	Replaced int
}

// Engine folds fetched records into a store.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Merge returns a new store holding existing plus batch.
//
// A batch record replaces the stored record with the same key, and within the
// batch the later record wins. Each instrument's new records, newest first, are
// placed at the head of its block, followed by its remaining stored rows.
// Instruments unknown to the store are appended in order of first appearance
// in the batch. existing is never modified.
func (e *Engine) Merge(existing *timeseries.Store, batch []timeseries.Record) (*timeseries.Store, Stats) {
	var stats Stats
	if len(batch) == 0 {
		return timeseries.NewStore(existing.Records()), stats
	}

	incoming, order := groupBatch(batch)

	current := existing.Records()
	blocks := make(map[string][]timeseries.Record)
	var codes []string
	for _, rec := range current {
		if _, ok := blocks[rec.Code]; !ok {
			codes = append(codes, rec.Code)
		}
		blocks[rec.Code] = append(blocks[rec.Code], rec)
	}

	out := make([]timeseries.Record, 0, len(current)+len(batch))
	for _, code := range codes {
		fresh := incoming[code]
		if len(fresh) == 0 {
			out = append(out, blocks[code]...)
			continue
		}
		replaced := make(map[timeseries.Key]struct{}, len(fresh))
		for _, rec := range fresh {
			replaced[rec.Key()] = struct{}{}
		}
		out = append(out, fresh...)
		for _, rec := range blocks[code] {
			if _, ok := replaced[rec.Key()]; ok {
				stats.Replaced++
				continue
			}
			out = append(out, rec)
		}
		stats.Inserted += len(fresh)
	}
	stats.Inserted -= stats.Replaced

	for _, code := range order {
		if _, known := blocks[code]; known {
			continue
		}
		out = append(out, incoming[code]...)
		stats.Inserted += len(incoming[code])
	}

	return timeseries.NewStore(out), stats
}

// groupBatch dedups the batch by key, last wins, and groups it by instrument in
// order of first appearance with each group sorted newest first.
func groupBatch(batch []timeseries.Record) (map[string][]timeseries.Record, []string) {
	latest := make(map[timeseries.Key]timeseries.Record, len(batch))
	for _, rec := range batch {
		latest[rec.Key()] = rec
	}

	groups := make(map[string][]timeseries.Record)
	var order []string
	for _, rec := range batch {
		key := rec.Key()
		last, pending := latest[key]
		if !pending {
			continue
		}
		delete(latest, key)
		if _, ok := groups[rec.Code]; !ok {
			order = append(order, rec.Code)
		}
		groups[rec.Code] = append(groups[rec.Code], last)
	}

	for _, group := range groups {
		slices.SortStableFunc(group, func(a, b timeseries.Record) int {
			return b.Date.Compare(a.Date)
		})
	}
	return groups, order
}
