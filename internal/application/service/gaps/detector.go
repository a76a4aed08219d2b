package gaps

import (
	"slices"

	"historysync/internal/domain/entity/calendar"
	"historysync/internal/domain/entity/timeseries"
)

// Detector finds the date ranges an instrument still has to fetch.
type Detector struct {
	WindowDays int
}

func NewDetector(windowDays int) *Detector {
	if windowDays <= 0 {
		windowDays = calendar.DefaultWindowDays
	}
	return &Detector{WindowDays: windowDays}
}

// MissingChunks returns the gaps inside the coverage span of existing, as
// maximal runs of consecutive missing days in ascending order. Without any
// existing day the whole target is returned as backfill windows. Chunks never
// leave target.
func (d *Detector) MissingChunks(existing timeseries.DateSet, target calendar.Range) []calendar.Range {
	if target.Start.After(target.End) {
		return nil
	}
	if len(existing) == 0 {
		return calendar.Windows(target, d.WindowDays)
	}

	coverage, _ := span(existing)
	var (
		chunks []calendar.Range
		run    *calendar.Range
	)
	for day := range calendar.EnumerateDates(coverage) {
		if _, ok := existing[day]; ok {
			continue
		}
		if run != nil && run.End.AddDays(1) == day {
			run.End = day
			continue
		}
		chunks = append(chunks, calendar.Range{Start: day, End: day})
		run = &chunks[len(chunks)-1]
	}
	return clip(chunks, target)
}

// Plan extends MissingChunks with the trailing days between the last recorded
// day and target.End. Days before the first recorded day are not probed.
func (d *Detector) Plan(existing timeseries.DateSet, target calendar.Range) []calendar.Range {
	chunks := d.MissingChunks(existing, target)
	if len(existing) == 0 {
		return chunks
	}
	coverage, _ := span(existing)
	if !coverage.End.Before(target.End) {
		return chunks
	}
	start := coverage.End.AddDays(1)
	if start.Before(target.Start) {
		start = target.Start
	}
	return append(chunks, calendar.Windows(calendar.Range{Start: start, End: target.End}, d.WindowDays)...)
}

func span(set timeseries.DateSet) (calendar.Range, bool) {
	if len(set) == 0 {
		return calendar.Range{}, false
	}
	days := make([]calendar.Date, 0, len(set))
	for day := range set {
		days = append(days, day)
	}
	minDay := slices.MinFunc(days, calendar.Date.Compare)
	maxDay := slices.MaxFunc(days, calendar.Date.Compare)
	return calendar.Range{Start: minDay, End: maxDay}, true
}

func clip(chunks []calendar.Range, target calendar.Range) []calendar.Range {
	out := chunks[:0]
	for _, c := range chunks {
		if in, ok := c.Intersect(target); ok {
			out = append(out, in)
		}
	}
	return out
}
