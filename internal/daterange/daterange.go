// Package daterange provides calendar-date interval math for planning
// which spans of historical PV data still need downloading.
package daterange

import (
	"fmt"
	"sort"
	"time"
)

// batchWindowDays is the fixed size of the upstream batch endpoint's
// window: one request returns up to this many days ending at the
// requested date.
const batchWindowDays = 365

// DateRange is an immutable closed interval of calendar dates.
// Both endpoints are normalised to midnight UTC, so two ranges are
// equal iff both endpoints match.
type DateRange struct {
	start time.Time
	end   time.Time
}

// New returns the range [start, end].  Inputs may carry a time of day
// or zone; only the calendar date is kept.  start must not be after end.
func New(start, end time.Time) (DateRange, error) {
	s, e := Day(start), Day(end)
	if s.After(e) {
		return DateRange{}, fmt.Errorf("start date %s is after end date %s",
			s.Format("2006-01-02"), e.Format("2006-01-02"))
	}
	return DateRange{start: s, end: e}, nil
}

// Day strips the time of day, returning the calendar date at midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Start returns the first date of the range.
func (r DateRange) Start() time.Time { return r.start }

// End returns the last date of the range.
func (r DateRange) End() time.Time { return r.end }

// IsZero reports whether r is the zero range.
func (r DateRange) IsZero() bool { return r.start.IsZero() && r.end.IsZero() }

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.start.Format("2006-01-02"), r.end.Format("2006-01-02"))
}

// Intersection returns the overlap of r and other.  A single-day or
// empty overlap counts as no intersection: the result is only reported
// when max(starts) is strictly before min(ends).  Callers use this to
// decide whether a yearly download window still needs extending, and a
// one-day touch does not.
func (r DateRange) Intersection(other DateRange) (DateRange, bool) {
	start := maxDate(r.start, other.start)
	end := minDate(r.end, other.end)
	if !start.Before(end) {
		return DateRange{}, false
	}
	return DateRange{start: start, end: end}, true
}

// TotalDays returns the number of whole days from start to end
// (exclusive of the start day itself, so a single-day range is 0).
func (r DateRange) TotalDays() int {
	return int(r.end.Sub(r.start) / (24 * time.Hour))
}

// Dates returns every calendar date in the range, inclusive, ascending.
func (r DateRange) Dates() []time.Time {
	dates := make([]time.Time, 0, r.TotalDays()+1)
	for d := r.start; !d.After(r.end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// SplitIntoYears splits the range into windows of at most 365 days,
// newest first.  Windows are peeled off the recent end; the oldest is
// clamped to the range's start date.  A range of 365 days or fewer is
// returned unchanged.
func (r DateRange) SplitIntoYears() []DateRange {
	if r.TotalDays() <= batchWindowDays {
		return []DateRange{r}
	}
	var out []DateRange
	end := r.end
	for end.After(r.start) {
		start := end.AddDate(0, 0, -batchWindowDays)
		if start.Before(r.start) {
			start = r.start
		}
		out = append(out, DateRange{start: start, end: end})
		end = start
	}
	return out
}

// FromDates groups a collection of dates into maximal runs of
// consecutive days, one DateRange per run, ascending.  A gap of more
// than one day between sorted neighbours starts a new range.
func FromDates(dates []time.Time) []DateRange {
	if len(dates) == 0 {
		return nil
	}
	days := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		days = append(days, Day(d))
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	// Drop duplicates in place.
	uniq := days[:1]
	for _, d := range days[1:] {
		if !d.Equal(uniq[len(uniq)-1]) {
			uniq = append(uniq, d)
		}
	}

	var out []DateRange
	start := uniq[0]
	prev := uniq[0]
	for _, d := range uniq[1:] {
		if d.Sub(prev) > 24*time.Hour {
			out = append(out, DateRange{start: start, end: prev})
			start = d
		}
		prev = d
	}
	out = append(out, DateRange{start: start, end: prev})
	return out
}

// MergeToYears converts a set of ranges needing download, given in
// ascending chronological order, into the minimal set of 365-day
// end-anchored windows covering them all, newest first.  The batch
// endpoint always returns exactly one year ending at the requested
// date, so each chosen window extends coverage only as far back as
// needed to touch the previously chosen one.
func MergeToYears(ranges []DateRange) []DateRange {
	if len(ranges) == 0 {
		return nil
	}

	// Newest first, multi-year ranges exploded into yearly chunks.
	var candidates []DateRange
	for i := len(ranges) - 1; i >= 0; i-- {
		candidates = append(candidates, ranges[i].SplitIntoYears()...)
	}

	var years []DateRange
	for _, candidate := range candidates {
		var anchor time.Time
		if len(years) == 0 {
			anchor = candidate.end
		} else {
			last := years[len(years)-1]
			overlap, ok := candidate.Intersection(last)
			switch {
			case ok && overlap == candidate:
				// Already covered by the most recent window.
				continue
			case !ok:
				anchor = candidate.end
			default:
				anchor = overlap.start
			}
		}
		years = append(years, DateRange{
			start: anchor.AddDate(0, 0, -batchWindowDays),
			end:   anchor,
		})
	}
	return years
}

func maxDate(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minDate(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
