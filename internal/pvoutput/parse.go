package pvoutput

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jszwec/csvutil"

	"github.com/openpv/pvharvest/pkg/models"
)

const (
	apiDateFormat     = "20060102"
	apiDatetimeFormat = "20060102 15:04"
)

// latin1Decode interprets the response bytes as ISO 8859-1, the
// encoding the API emits.
func latin1Decode(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

// parseValue converts one CSV field to a float, treating empty fields
// and the API's "NaN" placeholder as no value.
func parseValue(field string) (*float64, error) {
	field = strings.TrimSpace(field)
	if field == "" || strings.EqualFold(field, "nan") {
		return nil, nil
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing value %q: %w", field, err)
	}
	return &v, nil
}

// statusColumns is the column order of a historic getstatus response.
// The non-historic variant returns a different, shorter set.
var statusColumns = []string{
	"cumulative_energy_gen_Wh",
	"energy_efficiency_kWh_per_kW",
	"instantaneous_power_gen_W",
	"average_power_gen_W",
	"power_gen_normalised",
	"energy_consumption_Wh",
	"power_demand_W",
	"temperature_C",
	"voltage",
}

var nonHistoricStatusColumns = []string{
	"cumulative_energy_gen_Wh",
	"instantaneous_power_gen_W",
	"energy_consumption_Wh",
	"power_demand_W",
	"power_gen_normalised",
	"temperature_C",
	"voltage",
}

func setColumn(obs *models.Observation, column string, v *float64) {
	switch column {
	case "cumulative_energy_gen_Wh":
		obs.CumulativeEnergyGenWh = v
	case "energy_efficiency_kWh_per_kW":
		obs.EnergyEfficiencyKWhPerKW = v
	case "instantaneous_power_gen_W":
		obs.InstantaneousPowerGenW = v
	case "average_power_gen_W":
		obs.AveragePowerGenW = v
	case "power_gen_normalised":
		obs.PowerGenNormalised = v
	case "energy_consumption_Wh":
		obs.EnergyConsumptionWh = v
	case "power_demand_W":
		obs.PowerDemandW = v
	case "temperature_C":
		obs.TemperatureC = v
	case "voltage":
		obs.Voltage = v
	}
}

// parseStatus decodes a getstatus response: records separated by ";",
// each "YYYYMMDD,HH:MM" followed by the metric columns.
func parseStatus(text string, systemID int, loc *time.Location, historic bool) ([]models.Observation, error) {
	columns := statusColumns
	if !historic {
		columns = nonHistoricStatusColumns
	}

	var out []models.Observation
	for _, record := range strings.Split(text, ";") {
		record = strings.TrimSpace(record)
		if record == "" {
			continue
		}
		fields := strings.Split(record, ",")
		if len(fields) < 2 {
			return nil, fmt.Errorf("malformed status record %q", record)
		}
		ts, err := time.ParseInLocation(apiDatetimeFormat, fields[0]+" "+fields[1], loc)
		if err != nil {
			return nil, fmt.Errorf("parsing status timestamp: %w", err)
		}
		obs := models.Observation{SystemID: systemID, Timestamp: ts}
		for i, column := range columns {
			if i+2 >= len(fields) {
				break
			}
			v, err := parseValue(fields[i+2])
			if err != nil {
				return nil, err
			}
			setColumn(&obs, column, v)
		}
		out = append(out, obs)
	}

	sortByTimestamp(out)
	return out, nil
}

// batchColumns maps the value count of a batch payload to the columns
// it carries.  Rows legitimately drop trailing metrics, so the count
// selects the schema variant.
var batchColumns = []string{
	"cumulative_energy_gen_Wh",
	"instantaneous_power_gen_W",
	"temperature_C",
	"voltage",
}

// parseBatchStatus decodes a getbatchstatus payload: one line per day,
// "YYYYMMDD;HH:MM,v1,..;HH:MM,v1,..".  Payloads carrying six or more
// values include consumption data, which this client does not handle.
// A short payload among well-formed ones yields a row with the missing
// metrics unset; if nothing at all parses, the malformed input is
// reported as an error.
func parseBatchStatus(text string, systemID int, loc *time.Location) ([]models.Observation, error) {
	var out []models.Observation
	var malformed error

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		sections := strings.Split(line, ";")
		day := sections[0]
		for _, payload := range sections[1:] {
			fields := strings.Split(payload, ",")
			values := len(fields) - 1
			if values >= 6 {
				return nil, fmt.Errorf("batch status payload %q carries consumption data, which is not supported", payload)
			}
			if values < 1 || values > len(batchColumns) {
				malformed = fmt.Errorf("unexpected batch status payload %q: %d values", payload, values)
				continue
			}
			ts, err := time.ParseInLocation(apiDatetimeFormat, day+" "+fields[0], loc)
			if err != nil {
				malformed = fmt.Errorf("parsing batch timestamp: %w", err)
				continue
			}
			obs := models.Observation{SystemID: systemID, Timestamp: ts}
			for i, field := range fields[1:] {
				v, err := parseValue(field)
				if err != nil {
					return nil, err
				}
				setColumn(&obs, batchColumns[i], v)
			}
			out = append(out, obs)
		}
	}

	if len(out) == 0 && malformed != nil {
		return nil, malformed
	}
	sortByTimestamp(out)
	return out, nil
}

func sortByTimestamp(obs []models.Observation) {
	sort.SliceStable(obs, func(i, j int) bool {
		return obs[i].Timestamp.Before(obs[j].Timestamp)
	})
}

// searchHeader names the columns of a search response, which arrives
// as headerless CSV.
var searchHeader = []string{
	"name",
	"system_DC_capacity_W",
	"address",
	"orientation",
	"num_outputs",
	"last_output",
	"system_id",
	"panel",
	"inverter",
	"distance_km",
	"latitude",
	"longitude",
}

func parseSearch(text string) ([]models.SystemSearchResult, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	dec, err := csvutil.NewDecoder(reader, searchHeader...)
	if err != nil {
		return nil, fmt.Errorf("decoding search results: %w", err)
	}

	var out []models.SystemSearchResult
	for {
		var row models.SystemSearchResult
		if err := dec.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("decoding search results: %w", err)
		}
		out = append(out, row)
	}
	return out, nil
}

// parseMetadata decodes the first section of a getsystem response.
// Sections are separated by ";"; the primary section is plain CSV.
func parseMetadata(text string, systemID int) (*models.SystemMetadata, error) {
	section, _, _ := strings.Cut(text, ";")
	fields := strings.Split(section, ",")
	if len(fields) < 16 {
		return nil, fmt.Errorf("metadata response has %d fields, want at least 16", len(fields))
	}

	md := &models.SystemMetadata{
		SystemID:      systemID,
		Name:          fields[0],
		Address:       fields[2],
		PanelBrand:    fields[5],
		InverterBrand: fields[8],
		Orientation:   fields[9],
		Shade:         fields[11],
	}

	var err error
	if md.SystemDCCapacityW, err = floatField(fields[1]); err != nil {
		return nil, err
	}
	if md.NumPanels, err = intField(fields[3]); err != nil {
		return nil, err
	}
	if md.PanelCapacityWEach, err = floatField(fields[4]); err != nil {
		return nil, err
	}
	if md.NumInverters, err = intField(fields[6]); err != nil {
		return nil, err
	}
	if md.InverterCapacityW, err = floatField(fields[7]); err != nil {
		return nil, err
	}
	if md.ArrayTiltDegrees, err = floatField(fields[10]); err != nil {
		return nil, err
	}
	if fields[12] != "" {
		if md.InstallDate, err = time.Parse(apiDateFormat, fields[12]); err != nil {
			return nil, fmt.Errorf("parsing install date: %w", err)
		}
	}
	if md.Latitude, err = floatField(fields[13]); err != nil {
		return nil, err
	}
	if md.Longitude, err = floatField(fields[14]); err != nil {
		return nil, err
	}
	if md.StatusIntervalMinutes, err = intField(fields[15]); err != nil {
		return nil, err
	}
	return md, nil
}

// parseStatistic decodes a getstatistic response: one CSV record.
func parseStatistic(text string, systemID int) (*models.Statistic, error) {
	fields := strings.Split(strings.TrimSpace(text), ",")
	if len(fields) < 11 {
		return nil, fmt.Errorf("statistic response has %d fields, want 11", len(fields))
	}

	stat := &models.Statistic{SystemID: systemID}
	var err error
	if stat.TotalEnergyGenWh, err = floatField(fields[0]); err != nil {
		return nil, err
	}
	if stat.EnergyExportedWh, err = floatField(fields[1]); err != nil {
		return nil, err
	}
	if stat.AverageDailyEnergyGenWh, err = floatField(fields[2]); err != nil {
		return nil, err
	}
	if stat.MinimumDailyEnergyGenWh, err = floatField(fields[3]); err != nil {
		return nil, err
	}
	if stat.MaximumDailyEnergyGenWh, err = floatField(fields[4]); err != nil {
		return nil, err
	}
	if stat.AverageEfficiencyKWhPerKW, err = floatField(fields[5]); err != nil {
		return nil, err
	}
	if stat.NumOutputs, err = intField(fields[6]); err != nil {
		return nil, err
	}
	if stat.ActualDateFrom, err = dateField(fields[7]); err != nil {
		return nil, err
	}
	if stat.ActualDateTo, err = dateField(fields[8]); err != nil {
		return nil, err
	}
	if stat.RecordEfficiencyKWhPerKW, err = floatField(fields[9]); err != nil {
		return nil, err
	}
	if stat.RecordEfficiencyDate, err = dateField(fields[10]); err != nil {
		return nil, err
	}
	return stat, nil
}

// parseInsolation decodes a getinsolation response: ";"-separated
// "HH:MM,power,energy" entries for one day.
func parseInsolation(text string, date time.Time, loc *time.Location) ([]models.Insolation, error) {
	var out []models.Insolation
	day := date.Format(apiDateFormat)
	for _, record := range strings.Split(text, ";") {
		record = strings.TrimSpace(record)
		if record == "" {
			continue
		}
		fields := strings.Split(record, ",")
		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed insolation record %q", record)
		}
		ts, err := time.ParseInLocation(apiDatetimeFormat, day+" "+fields[0], loc)
		if err != nil {
			return nil, fmt.Errorf("parsing insolation timestamp: %w", err)
		}
		power, err := floatField(fields[1])
		if err != nil {
			return nil, err
		}
		energy, err := floatField(fields[2])
		if err != nil {
			return nil, err
		}
		out = append(out, models.Insolation{
			Timestamp:                      ts,
			PredictedPowerGenW:             power,
			PredictedCumulativeEnergyGenWh: energy,
		})
	}
	return out, nil
}

func floatField(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing field %q: %w", s, err)
	}
	return v, nil
}

func intField(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parsing field %q: %w", s, err)
	}
	return v, nil
}

func dateField(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(apiDateFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date field %q: %w", s, err)
	}
	return t, nil
}
