package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpv/pvharvest/internal/daterange"
	"github.com/openpv/pvharvest/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func obsAt(systemID int, ts time.Time, power float64) models.Observation {
	return models.Observation{
		SystemID:               systemID,
		Timestamp:              ts,
		InstantaneousPowerGenW: &power,
		RequestedAt:            time.Now().UTC(),
		QueryDate:              daterange.Day(ts),
	}
}

func TestAppendAndListObservations(t *testing.T) {
	s := newTestStore(t)

	ts := time.Date(2019, 6, 1, 7, 35, 0, 0, time.UTC)
	obs := []models.Observation{
		obsAt(123, ts.Add(5*time.Minute), 480),
		obsAt(123, ts, 240),
		obsAt(456, ts, 100),
	}
	require.NoError(t, s.AppendObservations(obs))

	got, err := s.ListObservations(123, daterange.DateRange{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ts, got[0].Timestamp, "results ordered by timestamp")
	assert.Equal(t, 240.0, *got[0].InstantaneousPowerGenW)
	assert.Nil(t, got[0].TemperatureC, "unreported metrics stay nil")
}

func TestListObservationsRange(t *testing.T) {
	s := newTestStore(t)

	for day := 1; day <= 5; day++ {
		ts := time.Date(2019, 6, day, 12, 0, 0, 0, time.UTC)
		require.NoError(t, s.AppendObservations([]models.Observation{obsAt(123, ts, 100)}))
	}

	r, err := daterange.New(
		time.Date(2019, 6, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2019, 6, 3, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)

	got, err := s.ListObservations(123, r)
	require.NoError(t, err)
	require.Len(t, got, 2, "range covers its end date's readings")
	assert.Equal(t, 2, got[0].Timestamp.Day())
	assert.Equal(t, 3, got[1].Timestamp.Day())
}

func TestCoveredDatesIncludesQueryDate(t *testing.T) {
	s := newTestStore(t)

	// A reading just past midnight UTC requested for the previous local
	// date covers both days.
	o := obsAt(123, time.Date(2019, 6, 2, 0, 10, 0, 0, time.UTC), 50)
	o.QueryDate = time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.AppendObservations([]models.Observation{o}))

	covered, err := s.CoveredDates(123)
	require.NoError(t, err)
	assert.True(t, covered[time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)])
	assert.True(t, covered[time.Date(2019, 6, 2, 0, 0, 0, 0, time.UTC)])
	assert.Len(t, covered, 2)

	other, err := s.CoveredDates(999)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestDedupeObservationsKeepsNewest(t *testing.T) {
	s := newTestStore(t)

	ts := time.Date(2019, 6, 1, 7, 35, 0, 0, time.UTC)
	require.NoError(t, s.AppendObservations([]models.Observation{obsAt(123, ts, 100)}))
	require.NoError(t, s.AppendObservations([]models.Observation{obsAt(123, ts, 200)}))
	require.NoError(t, s.AppendObservations([]models.Observation{obsAt(456, ts, 300)}))

	removed, err := s.DedupeObservations(123)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	got, err := s.ListObservations(123, daterange.DateRange{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 200.0, *got[0].InstantaneousPowerGenW, "later download wins")

	// Other systems are untouched.
	n, err := s.ObservationCount(456)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMissingRanges(t *testing.T) {
	s := newTestStore(t)

	r := models.MissingDateRange{
		SystemID:    123,
		StartDate:   time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2018, 3, 1, 0, 0, 0, 0, time.UTC),
		RequestedAt: time.Now().UTC(),
	}
	require.NoError(t, s.AppendMissingRange(r))
	require.NoError(t, s.AppendMissingRange(r), "duplicate ranges are ignored")

	got, err := s.MissingRanges(123)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, r.StartDate, got[0].StartDate)
	assert.Equal(t, r.EndDate, got[0].EndDate)
}

func TestSystemIDs(t *testing.T) {
	s := newTestStore(t)

	ts := time.Date(2019, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.AppendObservations([]models.Observation{
		obsAt(456, ts, 1),
		obsAt(123, ts, 1),
		obsAt(123, ts.Add(time.Minute), 1),
	}))

	ids, err := s.SystemIDs()
	require.NoError(t, err)
	assert.Equal(t, []int{123, 456}, ids)
}

func TestStatisticCache(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetStatistic(123)
	require.NoError(t, err)
	assert.Nil(t, got)

	stat := &models.Statistic{
		SystemID:                123,
		TotalEnergyGenWh:        10052033,
		AverageDailyEnergyGenWh: 12250,
		NumOutputs:              820,
		ActualDateFrom:          time.Date(2014, 9, 1, 0, 0, 0, 0, time.UTC),
		ActualDateTo:            time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC),
		RecordEfficiencyDate:    time.Date(2018, 6, 30, 0, 0, 0, 0, time.UTC),
		QueryDateFrom:           time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC),
		QueryDateTo:             time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.PutStatistic(stat))

	got, err = s.GetStatistic(123)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, stat, got)

	stat.NumOutputs = 821
	require.NoError(t, s.PutStatistic(stat))

	got, err = s.GetStatistic(123)
	require.NoError(t, err)
	assert.Equal(t, 821, got.NumOutputs)
}
