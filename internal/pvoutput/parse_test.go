package pvoutput

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fv(v float64) *float64 { return &v }

func ts(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func TestParseStatusHistoric(t *testing.T) {
	text := "20190101,07:35,2,0.001,24,23,0.1,NaN,NaN,11.2,240.1;" +
		"20190101,07:40,4,0.002,24,24,0.1,NaN,NaN,11.3,240.2"

	obs, err := parseStatus(text, 123, time.UTC, true)
	require.NoError(t, err)
	require.Len(t, obs, 2)

	first := obs[0]
	assert.Equal(t, 123, first.SystemID)
	assert.Equal(t, ts(2019, 1, 1, 7, 35), first.Timestamp)
	assert.Equal(t, fv(2), first.CumulativeEnergyGenWh)
	assert.Equal(t, fv(0.001), first.EnergyEfficiencyKWhPerKW)
	assert.Equal(t, fv(24), first.InstantaneousPowerGenW)
	assert.Equal(t, fv(23), first.AveragePowerGenW)
	assert.Equal(t, fv(0.1), first.PowerGenNormalised)
	assert.Nil(t, first.EnergyConsumptionWh, "NaN must decode as no value")
	assert.Nil(t, first.PowerDemandW)
	assert.Equal(t, fv(11.2), first.TemperatureC)
	assert.Equal(t, fv(240.1), first.Voltage)
}

func TestParseStatusSortsByTimestamp(t *testing.T) {
	text := "20190101,08:00,4,0.002,24;20190101,07:35,2,0.001,24"

	obs, err := parseStatus(text, 1, time.UTC, true)
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.True(t, obs[0].Timestamp.Before(obs[1].Timestamp))
}

func TestParseStatusEmpty(t *testing.T) {
	obs, err := parseStatus("", 1, time.UTC, true)
	require.NoError(t, err)
	assert.Empty(t, obs)
}

func TestParseBatchStatus(t *testing.T) {
	// Response shape from the getbatchstatus API documentation.
	text := "20140330;07:35,2,24;07:40,4,24;07:45,6,24;07:50,8,24;07:55,13,60;08:00,24,132\n" +
		"20140329;07:35,2,24;07:40,4,24;07:45,6,24;07:50,8,24;07:55,13,60;08:00,24,132\n" +
		"20140328;07:35,2,24;07:40,4,24;07:45,6,24;07:50,8,24;07:55,13,60;08:00,24,132"

	obs, err := parseBatchStatus(text, 99, time.UTC)
	require.NoError(t, err)
	require.Len(t, obs, 18)

	// Ascending order: oldest day first.
	assert.Equal(t, ts(2014, 3, 28, 7, 35), obs[0].Timestamp)
	assert.Equal(t, fv(2), obs[0].CumulativeEnergyGenWh)
	assert.Equal(t, fv(24), obs[0].InstantaneousPowerGenW)
	assert.Nil(t, obs[0].TemperatureC)
	assert.Nil(t, obs[0].Voltage)

	last := obs[len(obs)-1]
	assert.Equal(t, ts(2014, 3, 30, 8, 0), last.Timestamp)
	assert.Equal(t, fv(24), last.CumulativeEnergyGenWh)
	assert.Equal(t, fv(132), last.InstantaneousPowerGenW)
}

func TestParseBatchStatusEmpty(t *testing.T) {
	obs, err := parseBatchStatus("", 1, time.UTC)
	require.NoError(t, err)
	assert.Empty(t, obs)
}

func TestParseBatchStatusConsumptionDataUnsupported(t *testing.T) {
	_, err := parseBatchStatus("20140330;07:35,2,24,2,24,23.1,230.3", 1, time.UTC)
	assert.Error(t, err)
}

func TestParseBatchStatusShortPayloadAmongFullOnes(t *testing.T) {
	// One timestamp dropped the temperature and voltage fields; it must
	// still yield a row with those metrics unset.
	text := "20140330;07:35,2,24,11.5,240.0;07:40,4,24;07:45,6,24,11.6,240.1"

	obs, err := parseBatchStatus(text, 1, time.UTC)
	require.NoError(t, err)
	require.Len(t, obs, 3)

	short := obs[1]
	assert.Equal(t, ts(2014, 3, 30, 7, 40), short.Timestamp)
	assert.Equal(t, fv(4), short.CumulativeEnergyGenWh)
	assert.Equal(t, fv(24), short.InstantaneousPowerGenW)
	assert.Nil(t, short.TemperatureC)
	assert.Nil(t, short.Voltage)
	assert.Equal(t, fv(11.5), obs[0].TemperatureC)
}

func TestParseBatchStatusSoleMalformedRow(t *testing.T) {
	_, err := parseBatchStatus("20140330;07:35", 1, time.UTC)
	assert.Error(t, err)
}

func TestParseBatchStatusTimezone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)

	obs, err := parseBatchStatus("20190601;07:35,2,24", 1, loc)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, time.Date(2019, 6, 1, 7, 35, 0, 0, loc), obs[0].Timestamp)
}

func TestParseSearch(t *testing.T) {
	text := `PV System A,4000,United Kingdom NW1,S,1234,2 hours ago,10450,Sharp,SMA,3.5,51.5074,-0.1278
PV System B,2500,United Kingdom SE1,SW,567,3 days ago,20931,LG,Fronius,7.2,51.4,-0.2`

	results, err := parseSearch(text)
	require.NoError(t, err)
	require.Len(t, results, 2)

	a := results[0]
	assert.Equal(t, "PV System A", a.Name)
	assert.Equal(t, 4000.0, a.SystemDCCapacityW)
	assert.Equal(t, "United Kingdom NW1", a.Address)
	assert.Equal(t, "S", a.Orientation)
	assert.Equal(t, 1234, a.NumOutputs)
	assert.Equal(t, 10450, a.SystemID)
	assert.Equal(t, 3.5, a.DistanceKm)
	assert.Equal(t, 51.5074, a.Latitude)
}

func TestParseMetadata(t *testing.T) {
	text := "Test System,4125,EC1 5RF,15,275,Sharp NU-AK275,1,4000,SMA Sunny Boy,S,30.0,No,20140901,51.5,-0.12,5;;;;"

	md, err := parseMetadata(text, 42)
	require.NoError(t, err)
	assert.Equal(t, 42, md.SystemID)
	assert.Equal(t, "Test System", md.Name)
	assert.Equal(t, 4125.0, md.SystemDCCapacityW)
	assert.Equal(t, 15, md.NumPanels)
	assert.Equal(t, 275.0, md.PanelCapacityWEach)
	assert.Equal(t, "Sharp NU-AK275", md.PanelBrand)
	assert.Equal(t, 1, md.NumInverters)
	assert.Equal(t, 4000.0, md.InverterCapacityW)
	assert.Equal(t, "SMA Sunny Boy", md.InverterBrand)
	assert.Equal(t, "S", md.Orientation)
	assert.Equal(t, 30.0, md.ArrayTiltDegrees)
	assert.Equal(t, time.Date(2014, 9, 1, 0, 0, 0, 0, time.UTC), md.InstallDate)
	assert.Equal(t, 51.5, md.Latitude)
	assert.Equal(t, -0.12, md.Longitude)
	assert.Equal(t, 5, md.StatusIntervalMinutes)
}

func TestParseStatistic(t *testing.T) {
	text := "10052033,4500,12250,500,19210,4.1,820,20140901,20190101,5.9,20180630"

	stat, err := parseStatistic(text, 7)
	require.NoError(t, err)
	assert.Equal(t, 10052033.0, stat.TotalEnergyGenWh)
	assert.Equal(t, 820, stat.NumOutputs)
	assert.Equal(t, time.Date(2014, 9, 1, 0, 0, 0, 0, time.UTC), stat.ActualDateFrom)
	assert.Equal(t, time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC), stat.ActualDateTo)
	assert.Equal(t, time.Date(2018, 6, 30, 0, 0, 0, 0, time.UTC), stat.RecordEfficiencyDate)
}

func TestLatin1Decode(t *testing.T) {
	// 0xB0 is the degree sign in latin1; invalid as UTF-8.
	assert.Equal(t, "25°C", latin1Decode([]byte{'2', '5', 0xB0, 'C'}))
}
