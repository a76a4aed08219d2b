package calendar

import "iter"

const (
	DefaultWindowDays    = 365
	DefaultLookbackYears = 10
	daysPerYear          = 365
)

// FullHistoryWindows splits [now - lookbackYears*365 days, now] into
// consecutive windows of at most windowDays days; the last one ends at now.
func FullHistoryWindows(now Date, lookbackYears, windowDays int) []Range {
	if lookbackYears <= 0 {
		lookbackYears = DefaultLookbackYears
	}
	start := now.AddDays(-lookbackYears * daysPerYear)
	return Windows(Range{Start: start, End: now}, windowDays)
}

// Windows partitions r into consecutive non-overlapping windows of at most
// windowDays days each.
func Windows(r Range, windowDays int) []Range {
	if r.Start.After(r.End) {
		return nil
	}
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	windows := make([]Range, 0, r.Days()/windowDays+1)
	for cur := r.Start; !cur.After(r.End); {
		end := cur.AddDays(windowDays - 1)
		if end.After(r.End) {
			end = r.End
		}
		windows = append(windows, Range{Start: cur, End: end})
		cur = end.AddDays(1)
	}
	return windows
}

// EnumerateDates yields every day of r in ascending order. The sequence can be
// ranged over any number of times.
func EnumerateDates(r Range) iter.Seq[Date] {
	return func(yield func(Date) bool) {
		for d := r.Start; !d.After(r.End); d = d.AddDays(1) {
			if !yield(d) {
				return
			}
		}
	}
}
