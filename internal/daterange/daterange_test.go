package daterange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func mustRange(t *testing.T, start, end time.Time) DateRange {
	t.Helper()
	r, err := New(start, end)
	require.NoError(t, err)
	return r
}

func TestNewRejectsReversedEndpoints(t *testing.T) {
	_, err := New(d(2019, 1, 10), d(2019, 1, 1))
	assert.Error(t, err)
}

func TestNewNormalisesToCalendarDates(t *testing.T) {
	r, err := New(
		time.Date(2019, 1, 1, 15, 30, 0, 0, time.FixedZone("AEST", 10*3600)),
		time.Date(2019, 1, 2, 23, 59, 59, 0, time.UTC),
	)
	require.NoError(t, err)
	assert.Equal(t, d(2019, 1, 1), r.Start())
	assert.Equal(t, d(2019, 1, 2), r.End())
}

func TestIntersection(t *testing.T) {
	_, ok := mustRange(t, d(2019, 1, 1), d(2019, 1, 2)).
		Intersection(mustRange(t, d(2020, 1, 1), d(2020, 1, 2)))
	assert.False(t, ok, "disjoint ranges must not intersect")

	got, ok := mustRange(t, d(2019, 1, 1), d(2019, 1, 10)).
		Intersection(mustRange(t, d(2019, 1, 1), d(2019, 1, 2)))
	require.True(t, ok)
	assert.Equal(t, mustRange(t, d(2019, 1, 1), d(2019, 1, 2)), got)

	got, ok = mustRange(t, d(2019, 1, 1), d(2019, 1, 10)).
		Intersection(mustRange(t, d(2019, 1, 5), d(2019, 1, 20)))
	require.True(t, ok)
	assert.Equal(t, mustRange(t, d(2019, 1, 5), d(2019, 1, 10)), got)

	year := mustRange(t, d(2018, 1, 1), d(2019, 1, 1))
	dec := mustRange(t, d(2018, 12, 1), d(2019, 1, 1))
	got, ok = year.Intersection(dec)
	require.True(t, ok)
	assert.Equal(t, dec, got)

	june := mustRange(t, d(2018, 6, 1), d(2018, 7, 1))
	got, ok = year.Intersection(june)
	require.True(t, ok)
	assert.Equal(t, june, got)

	incomplete := mustRange(t, d(2017, 7, 1), d(2018, 2, 1))
	got, ok = year.Intersection(incomplete)
	require.True(t, ok)
	assert.NotEqual(t, incomplete, got)
}

func TestIntersectionSingleDayOverlapIsNone(t *testing.T) {
	// Ranges touching at one date only: not an intersection.
	a := mustRange(t, d(2019, 1, 1), d(2019, 2, 1))
	b := mustRange(t, d(2019, 2, 1), d(2019, 3, 1))
	_, ok := a.Intersection(b)
	assert.False(t, ok)
}

func TestTotalDays(t *testing.T) {
	assert.Equal(t, 9, mustRange(t, d(2019, 1, 1), d(2019, 1, 10)).TotalDays())
	assert.Equal(t, 0, mustRange(t, d(2019, 1, 1), d(2019, 1, 1)).TotalDays())
}

func TestDates(t *testing.T) {
	dates := mustRange(t, d(2019, 1, 30), d(2019, 2, 2)).Dates()
	assert.Equal(t, []time.Time{
		d(2019, 1, 30), d(2019, 1, 31), d(2019, 2, 1), d(2019, 2, 2),
	}, dates)
}

func TestSplitIntoYears(t *testing.T) {
	short := mustRange(t, d(2019, 1, 1), d(2019, 1, 10))
	assert.Equal(t, []DateRange{short}, short.SplitIntoYears())

	oneYear := mustRange(t, d(2019, 1, 1), d(2020, 1, 1))
	assert.Equal(t, []DateRange{oneYear}, oneYear.SplitIntoYears())

	yearAndHalf := mustRange(t, d(2019, 1, 1), d(2020, 6, 1))
	assert.Equal(t, []DateRange{
		mustRange(t, d(2019, 6, 2), d(2020, 6, 1)),
		mustRange(t, d(2019, 1, 1), d(2019, 6, 2)),
	}, yearAndHalf.SplitIntoYears())
}

func TestFromDates(t *testing.T) {
	var dates []time.Time
	for _, span := range []struct {
		start   time.Time
		periods int
	}{
		{d(2019, 1, 1), 5},
		{d(2019, 5, 1), 3},
		{d(2015, 4, 1), 1},
	} {
		for i := 0; i < span.periods; i++ {
			dates = append(dates, span.start.AddDate(0, 0, i))
		}
	}

	got := FromDates(dates)
	require.Len(t, got, 3)
	assert.Equal(t, mustRange(t, d(2015, 4, 1), d(2015, 4, 1)), got[0])
	assert.Equal(t, mustRange(t, d(2019, 1, 1), d(2019, 1, 5)), got[1])
	assert.Equal(t, mustRange(t, d(2019, 5, 1), d(2019, 5, 3)), got[2])

	assert.Empty(t, FromDates(nil))
}

func TestFromDatesDeduplicates(t *testing.T) {
	got := FromDates([]time.Time{d(2019, 1, 2), d(2019, 1, 1), d(2019, 1, 2)})
	require.Len(t, got, 1)
	assert.Equal(t, mustRange(t, d(2019, 1, 1), d(2019, 1, 2)), got[0])
}

func TestMergeToYears(t *testing.T) {
	jan := mustRange(t, d(2018, 1, 1), d(2018, 2, 1))
	multiyear := mustRange(t, d(2017, 1, 1), d(2018, 2, 1))
	oldMultiyear := mustRange(t, d(2014, 1, 1), d(2016, 2, 1))
	ancientJan := mustRange(t, d(2010, 1, 1), d(2010, 2, 1))

	tests := []struct {
		name   string
		input  []DateRange
		merged []DateRange
	}{
		{"empty", nil, nil},
		{
			"single month", []DateRange{jan},
			[]DateRange{mustRange(t, d(2017, 2, 1), d(2018, 2, 1))},
		},
		{
			"multiyear", []DateRange{multiyear},
			[]DateRange{
				mustRange(t, d(2017, 2, 1), d(2018, 2, 1)),
				mustRange(t, d(2016, 2, 2), d(2017, 2, 1)),
			},
		},
		{
			"two multiyear ranges", []DateRange{oldMultiyear, multiyear},
			[]DateRange{
				mustRange(t, d(2017, 2, 1), d(2018, 2, 1)),
				mustRange(t, d(2016, 2, 2), d(2017, 2, 1)),
				mustRange(t, d(2015, 2, 1), d(2016, 2, 1)),
				mustRange(t, d(2014, 2, 1), d(2015, 2, 1)),
				mustRange(t, d(2013, 2, 1), d(2014, 2, 1)),
			},
		},
		{
			"with ancient range", []DateRange{ancientJan, oldMultiyear, multiyear},
			[]DateRange{
				mustRange(t, d(2017, 2, 1), d(2018, 2, 1)),
				mustRange(t, d(2016, 2, 2), d(2017, 2, 1)),
				mustRange(t, d(2015, 2, 1), d(2016, 2, 1)),
				mustRange(t, d(2014, 2, 1), d(2015, 2, 1)),
				mustRange(t, d(2013, 2, 1), d(2014, 2, 1)),
				mustRange(t, d(2009, 2, 1), d(2010, 2, 1)),
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.merged, MergeToYears(tc.input))
		})
	}
}

func TestMergeToYearsWindowsAreAdjacent(t *testing.T) {
	// Consecutive windows for a long span must abut without overlap.
	long := mustRange(t, d(2014, 1, 1), d(2018, 2, 1))
	years := MergeToYears([]DateRange{long})
	require.Greater(t, len(years), 1)
	for i := 0; i < len(years)-1; i++ {
		assert.Equal(t, 365, years[i].TotalDays())
		assert.False(t, years[i+1].End().After(years[i].Start()),
			"older window %s reaches past newer window %s", years[i+1], years[i])
	}
}
