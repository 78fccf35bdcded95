package mapscraper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mapPage = `<html><body>
<table>
<tr>
  <td><a href="display.jsp?sid=10450" title="Sunny Roof 3.50kW|Location: &lt;img src=flag.png&gt; Cambridge, United Kingdom<br/>Panels: Sharp ND-175<br/>Inverter: SMA SB 3000<br/>Orientation: South<br/>Array Tilt: 35.0">Sunny Roof 3.50kW</a></td>
  <td>812 Days</td>
  <td>12.405MWh</td>
  <td>15.276kWh</td>
  <td>4.363kWh/kW</td>
</tr>
<tr>
  <td><a href="display.jsp?sid=67" title="Back Garden 1.20kW|Location: Leeds, United Kingdom<br/>Panels: Generic<br/>Inverter: Enphase: M215<br/>Orientation: East">Back Garden 1.20kW</a></td>
  <td>90 Days</td>
  <td>350.100kWh</td>
  <td>3.890kWh</td>
  <td>3.242kWh/kW</td>
</tr>
</table>
<a href="map.jsp?country=243&p=1">Next</a>
</body></html>`

func TestParsePage(t *testing.T) {
	systems, hasNext, err := ParsePage(strings.NewReader(mapPage))
	require.NoError(t, err)
	assert.True(t, hasNext)
	require.Len(t, systems, 2)

	first := systems[0]
	assert.Equal(t, 10450, first.SystemID)
	assert.Equal(t, "Sunny Roof", first.Name)
	assert.Equal(t, 3500.0, first.SystemDCCapacityW)
	assert.Equal(t, "Cambridge, United Kingdom", first.Address, "flag image stripped from location")
	assert.Equal(t, "Sharp ND-175", first.Panel)
	assert.Equal(t, "South", first.Orientation)
	assert.Equal(t, 812, first.TimeseriesDays)
	assert.Equal(t, 12.405e6, first.TotalEnergyGenWh)
	assert.Equal(t, 15.276e3, first.AverageDailyEnergyGenWh)
	assert.Equal(t, 4.363, first.AverageEfficiencyKWhPerKW)

	second := systems[1]
	assert.Equal(t, 67, second.SystemID)
	assert.Equal(t, "Enphase: M215", second.Inverter, "values containing colons survive")
	assert.Equal(t, 350.1e3, second.TotalEnergyGenWh)
}

func TestParsePageBlank(t *testing.T) {
	systems, hasNext, err := ParsePage(strings.NewReader("<html><body><p>No results</p></body></html>"))
	require.NoError(t, err)
	assert.Empty(t, systems)
	assert.False(t, hasNext)
}

func TestParsePageLastPage(t *testing.T) {
	lastPage := strings.Replace(mapPage, `<a href="map.jsp?country=243&p=1">Next</a>`, "", 1)
	systems, hasNext, err := ParsePage(strings.NewReader(lastPage))
	require.NoError(t, err)
	assert.Len(t, systems, 2)
	assert.False(t, hasNext)
}

func TestSystemsForCountryRejectsBadCode(t *testing.T) {
	s := New(nil)
	_, err := s.SystemsForCountry(t.Context(), 0)
	assert.Error(t, err)
	_, err = s.SystemsForCountry(t.Context(), 258)
	assert.Error(t, err)
}
