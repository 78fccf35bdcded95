package models

import "time"

// Observation is a single time-indexed reading for one PV system.
// Metric fields are pointers because PVOutput omits metrics the system
// doesn't report; a nil field means the API sent no value.
type Observation struct {
	SystemID  int       `json:"system_id"`
	Timestamp time.Time `json:"timestamp"`

	CumulativeEnergyGenWh    *float64 `json:"cumulative_energy_gen_wh,omitempty"`
	EnergyEfficiencyKWhPerKW *float64 `json:"energy_efficiency_kwh_per_kw,omitempty"`
	InstantaneousPowerGenW   *float64 `json:"instantaneous_power_gen_w,omitempty"`
	AveragePowerGenW         *float64 `json:"average_power_gen_w,omitempty"`
	PowerGenNormalised       *float64 `json:"power_gen_normalised,omitempty"`
	EnergyConsumptionWh      *float64 `json:"energy_consumption_wh,omitempty"`
	PowerDemandW             *float64 `json:"power_demand_w,omitempty"`
	TemperatureC             *float64 `json:"temperature_c,omitempty"`
	Voltage                  *float64 `json:"voltage,omitempty"`

	// RequestedAt is when the API request that produced this row was made.
	RequestedAt time.Time `json:"requested_at"`
	// QueryDate is the date parameter used in that request.  Gap analysis
	// keys off it because a row's own timestamp can fall on a neighboring
	// date after timezone conversion.
	QueryDate time.Time `json:"query_date"`
}

// MissingDateRange records that the API had no data for a system over a
// span of dates, so later runs can skip re-requesting it.
type MissingDateRange struct {
	SystemID    int       `json:"system_id"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	RequestedAt time.Time `json:"requested_at"`
}
