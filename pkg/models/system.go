package models

import "time"

// SystemSearchResult is one row returned by the search API.
type SystemSearchResult struct {
	Name              string  `csv:"name"`
	SystemDCCapacityW float64 `csv:"system_DC_capacity_W"`
	Address           string  `csv:"address"`
	Orientation       string  `csv:"orientation"`
	NumOutputs        int     `csv:"num_outputs"`
	LastOutput        string  `csv:"last_output"`
	SystemID          int     `csv:"system_id"`
	Panel             string  `csv:"panel"`
	Inverter          string  `csv:"inverter"`
	DistanceKm        float64 `csv:"distance_km"`
	Latitude          float64 `csv:"latitude"`
	Longitude         float64 `csv:"longitude"`
}

// SystemMetadata describes a single PV system as reported by getsystem.
type SystemMetadata struct {
	SystemID              int
	Name                  string
	SystemDCCapacityW     float64
	Address               string
	NumPanels             int
	PanelCapacityWEach    float64
	PanelBrand            string
	NumInverters          int
	InverterCapacityW     float64
	InverterBrand         string
	Orientation           string
	ArrayTiltDegrees      float64
	Shade                 string
	InstallDate           time.Time
	Latitude              float64
	Longitude             float64
	StatusIntervalMinutes int
}

// Statistic holds summary stats for a system over a query window.
// ActualDateFrom/To bound the span for which the system has any data;
// NumOutputs counts the days with at least one reading.
type Statistic struct {
	SystemID                  int
	TotalEnergyGenWh          float64
	EnergyExportedWh          float64
	AverageDailyEnergyGenWh   float64
	MinimumDailyEnergyGenWh   float64
	MaximumDailyEnergyGenWh   float64
	AverageEfficiencyKWhPerKW float64
	NumOutputs                int
	ActualDateFrom            time.Time
	ActualDateTo              time.Time
	RecordEfficiencyKWhPerKW  float64
	RecordEfficiencyDate      time.Time
	QueryDateFrom             time.Time
	QueryDateTo               time.Time
}

// Insolation is one predicted reading from the getinsolation API.
type Insolation struct {
	Timestamp                      time.Time
	PredictedPowerGenW             float64
	PredictedCumulativeEnergyGenWh float64
}
