package merge

import (
	"testing"
	"time"

	"historysync/internal/domain/entity/calendar"
	"historysync/internal/domain/entity/timeseries"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(code string, day int, price int64) timeseries.Record {
	return timeseries.Record{
		Code:      code,
		Date:      calendar.NewDate(2024, time.March, day),
		LastPrice: decimal.NewFromInt(price),
	}
}

func keys(s *timeseries.Store) []string {
	var out []string
	for _, r := range s.Records() {
		out = append(out, r.Code+"@"+r.Date.Format("02"))
	}
	return out
}

func TestMergeIntoEmptyStore(t *testing.T) {
	merged, stats := NewEngine().Merge(timeseries.NewStore(nil), []timeseries.Record{
		rec("ALK", 1, 10), rec("KMB", 1, 20), rec("ALK", 2, 11),
	})

	assert.Equal(t, []string{"ALK@02", "ALK@01", "KMB@01"}, keys(merged))
	assert.Equal(t, Stats{Inserted: 3}, stats)
}

func TestMergeSplicesAtFirstIndex(t *testing.T) {
	existing := timeseries.NewStore([]timeseries.Record{
		rec("ALK", 3, 1), rec("ALK", 2, 1),
		rec("KMB", 3, 1), rec("KMB", 2, 1),
		rec("TTK", 2, 1),
	})

	merged, stats := NewEngine().Merge(existing, []timeseries.Record{
		rec("KMB", 4, 2), rec("KMB", 5, 2), rec("NEW", 1, 9),
	})

	assert.Equal(t, []string{
		"ALK@03", "ALK@02",
		"KMB@05", "KMB@04", "KMB@03", "KMB@02",
		"TTK@02",
		"NEW@01",
	}, keys(merged))
	assert.Equal(t, existing.FirstIndex("KMB"), merged.FirstIndex("KMB"))
	assert.Equal(t, Stats{Inserted: 3}, stats)
}

func TestMergeReplacesExistingKey(t *testing.T) {
	existing := timeseries.NewStore([]timeseries.Record{rec("ALK", 2, 1), rec("ALK", 1, 1)})

	merged, stats := NewEngine().Merge(existing, []timeseries.Record{rec("ALK", 1, 5)})

	require.Equal(t, 2, merged.Len())
	assert.Equal(t, Stats{Replaced: 1}, stats)
	got := merged.Between("ALK", calendar.Range{Start: calendar.NewDate(2024, 3, 1), End: calendar.NewDate(2024, 3, 1)})
	require.Len(t, got, 1)
	assert.True(t, decimal.NewFromInt(5).Equal(got[0].LastPrice))
}

func TestMergeLaterBatchRecordWins(t *testing.T) {
	merged, _ := NewEngine().Merge(nil, []timeseries.Record{rec("ALK", 1, 1), rec("ALK", 1, 7)})

	require.Equal(t, 1, merged.Len())
	assert.True(t, decimal.NewFromInt(7).Equal(merged.Records()[0].LastPrice))
}

func TestMergeIsIdempotent(t *testing.T) {
	existing := timeseries.NewStore([]timeseries.Record{
		rec("ALK", 3, 1), rec("ALK", 1, 1), rec("KMB", 2, 1),
	})
	batch := []timeseries.Record{rec("ALK", 2, 4), rec("ALK", 3, 4), rec("STB", 1, 4), rec("KMB", 2, 4)}
	engine := NewEngine()

	once, _ := engine.Merge(existing, batch)
	twice, stats := engine.Merge(once, batch)

	assert.Equal(t, once.Records(), twice.Records())
	assert.Zero(t, stats.Inserted)
}

func TestMergeKeepsKeysUniqueAndBlocksContiguous(t *testing.T) {
	existing := timeseries.NewStore([]timeseries.Record{
		rec("A", 1, 1), rec("A", 2, 1), rec("B", 1, 1), rec("C", 1, 1),
	})
	batch := []timeseries.Record{rec("C", 2, 1), rec("A", 2, 2), rec("B", 3, 3), rec("D", 1, 1), rec("A", 5, 1)}

	merged, _ := NewEngine().Merge(existing, batch)

	seen := map[timeseries.Key]bool{}
	closed := map[string]bool{}
	prev := ""
	for _, r := range merged.Records() {
		require.False(t, seen[r.Key()], "duplicate key %v", r.Key())
		seen[r.Key()] = true
		if r.Code != prev {
			require.False(t, closed[r.Code], "block of %s is split", r.Code)
			if prev != "" {
				closed[prev] = true
			}
			prev = r.Code
		}
	}
	assert.Equal(t, []string{"A", "B", "C", "D"}, merged.Codes())
	assert.Equal(t, 8, merged.Len())
}

func TestMergeDoesNotMutateInput(t *testing.T) {
	existing := timeseries.NewStore([]timeseries.Record{rec("ALK", 1, 1)})
	before := existing.Records()
	batch := []timeseries.Record{rec("ALK", 1, 9), rec("ALK", 4, 9)}
	batchCopy := append([]timeseries.Record(nil), batch...)

	_, _ = NewEngine().Merge(existing, batch)

	assert.Equal(t, before, existing.Records())
	assert.Equal(t, batchCopy, batch)
}
