// Package store persists downloaded PV data in a local SQLite database.
// Rows are append-only: re-downloading a day adds new rows rather than
// replacing old ones, and DedupeObservations later keeps only the most
// recently requested row per timestamp.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/openpv/pvharvest/internal/daterange"
	"github.com/openpv/pvharvest/pkg/models"
	_ "modernc.org/sqlite"
)

const (
	dayFormat      = "2006-01-02"
	datetimeFormat = "2006-01-02 15:04:05"
)

// Store wraps the database connection
type Store struct {
	conn *sql.DB
}

// Open creates a new database connection and initializes the schema
func Open(dbPath string) (*Store, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Downloads append while list commands read; WAL keeps readers
	// from blocking the writer.
	if _, err := conn.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// initSchema creates the necessary tables
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS observations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		system_id INTEGER NOT NULL,
		ts TEXT NOT NULL,
		cumulative_energy_gen_wh REAL,
		energy_efficiency_kwh_per_kw REAL,
		instantaneous_power_gen_w REAL,
		average_power_gen_w REAL,
		power_gen_normalised REAL,
		energy_consumption_wh REAL,
		power_demand_w REAL,
		temperature_c REAL,
		voltage REAL,
		requested_at TEXT NOT NULL,
		query_date TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_obs_system_ts ON observations(system_id, ts);
	CREATE INDEX IF NOT EXISTS idx_obs_system_query_date ON observations(system_id, query_date);

	CREATE TABLE IF NOT EXISTS missing_dates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		system_id INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		requested_at TEXT NOT NULL,
		UNIQUE(system_id, start_date, end_date)
	);
	CREATE INDEX IF NOT EXISTS idx_missing_system ON missing_dates(system_id);

	CREATE TABLE IF NOT EXISTS statistics (
		system_id INTEGER PRIMARY KEY,
		total_energy_gen_wh REAL NOT NULL,
		energy_exported_wh REAL NOT NULL,
		average_daily_energy_gen_wh REAL NOT NULL,
		minimum_daily_energy_gen_wh REAL NOT NULL,
		maximum_daily_energy_gen_wh REAL NOT NULL,
		average_efficiency_kwh_per_kw REAL NOT NULL,
		num_outputs INTEGER NOT NULL,
		actual_date_from TEXT NOT NULL,
		actual_date_to TEXT NOT NULL,
		record_efficiency_kwh_per_kw REAL NOT NULL,
		record_efficiency_date TEXT NOT NULL,
		query_date_from TEXT NOT NULL,
		query_date_to TEXT NOT NULL,
		cached_at TEXT NOT NULL
	);
	`

	_, err := s.conn.Exec(schema)
	return err
}

// AppendObservations inserts a batch of readings in one transaction.
func (s *Store) AppendObservations(obs []models.Observation) error {
	if len(obs) == 0 {
		return nil
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
	INSERT INTO observations (
		system_id, ts,
		cumulative_energy_gen_wh, energy_efficiency_kwh_per_kw,
		instantaneous_power_gen_w, average_power_gen_w, power_gen_normalised,
		energy_consumption_wh, power_demand_w, temperature_c, voltage,
		requested_at, query_date
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range obs {
		_, err := stmt.Exec(
			o.SystemID,
			o.Timestamp.UTC().Format(datetimeFormat),
			nullFloat(o.CumulativeEnergyGenWh),
			nullFloat(o.EnergyEfficiencyKWhPerKW),
			nullFloat(o.InstantaneousPowerGenW),
			nullFloat(o.AveragePowerGenW),
			nullFloat(o.PowerGenNormalised),
			nullFloat(o.EnergyConsumptionWh),
			nullFloat(o.PowerDemandW),
			nullFloat(o.TemperatureC),
			nullFloat(o.Voltage),
			o.RequestedAt.UTC().Format(time.RFC3339),
			daterange.Day(o.QueryDate).Format(dayFormat),
		)
		if err != nil {
			return fmt.Errorf("inserting observation: %w", err)
		}
	}

	return tx.Commit()
}

// CoveredDates returns the set of dates (UTC midnights) for which the
// system has at least one stored reading.  A date counts as covered if
// any row's timestamp falls on it or was requested for it: timezone
// conversion can push a reading onto the neighboring date, and without
// the query_date leg such days would be re-downloaded forever.
func (s *Store) CoveredDates(systemID int) (map[time.Time]bool, error) {
	query := `
	SELECT DISTINCT date(ts) FROM observations WHERE system_id = ?
	UNION
	SELECT DISTINCT query_date FROM observations WHERE system_id = ?
	`

	rows, err := s.conn.Query(query, systemID, systemID)
	if err != nil {
		return nil, fmt.Errorf("querying covered dates: %w", err)
	}
	defer rows.Close()

	covered := make(map[time.Time]bool)
	for rows.Next() {
		var dayStr string
		if err := rows.Scan(&dayStr); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		day, err := time.Parse(dayFormat, dayStr)
		if err != nil {
			return nil, fmt.Errorf("parsing date: %w", err)
		}
		covered[day] = true
	}

	return covered, rows.Err()
}

// MissingRanges returns the recorded no-data ranges for a system.
func (s *Store) MissingRanges(systemID int) ([]models.MissingDateRange, error) {
	query := `
	SELECT system_id, start_date, end_date, requested_at
	FROM missing_dates
	WHERE system_id = ?
	ORDER BY start_date
	`

	rows, err := s.conn.Query(query, systemID)
	if err != nil {
		return nil, fmt.Errorf("querying missing ranges: %w", err)
	}
	defer rows.Close()

	var results []models.MissingDateRange
	for rows.Next() {
		var r models.MissingDateRange
		var startStr, endStr, requestedStr string
		if err := rows.Scan(&r.SystemID, &startStr, &endStr, &requestedStr); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if r.StartDate, err = time.Parse(dayFormat, startStr); err != nil {
			return nil, fmt.Errorf("parsing start_date: %w", err)
		}
		if r.EndDate, err = time.Parse(dayFormat, endStr); err != nil {
			return nil, fmt.Errorf("parsing end_date: %w", err)
		}
		if r.RequestedAt, err = time.Parse(time.RFC3339, requestedStr); err != nil {
			return nil, fmt.Errorf("parsing requested_at: %w", err)
		}
		results = append(results, r)
	}

	return results, rows.Err()
}

// AppendMissingRange records that the API returned no data for a span
// of dates, ignoring duplicates.
func (s *Store) AppendMissingRange(r models.MissingDateRange) error {
	query := `
	INSERT OR IGNORE INTO missing_dates (system_id, start_date, end_date, requested_at)
	VALUES (?, ?, ?, ?)
	`

	_, err := s.conn.Exec(query,
		r.SystemID,
		daterange.Day(r.StartDate).Format(dayFormat),
		daterange.Day(r.EndDate).Format(dayFormat),
		r.RequestedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting missing range: %w", err)
	}

	return nil
}

// DedupeObservations deletes all but the newest row for each
// (system, timestamp) pair.  Rows append in request order, so the
// highest id per timestamp is the most recent download.  Returns the
// number of rows removed.
func (s *Store) DedupeObservations(systemID int) (int64, error) {
	query := `
	DELETE FROM observations
	WHERE system_id = ?
	AND id NOT IN (
		SELECT max(id) FROM observations WHERE system_id = ? GROUP BY ts
	)
	`

	res, err := s.conn.Exec(query, systemID, systemID)
	if err != nil {
		return 0, fmt.Errorf("deduplicating observations: %w", err)
	}
	return res.RowsAffected()
}

// SystemIDs returns every system id with stored readings, ascending.
func (s *Store) SystemIDs() ([]int, error) {
	rows, err := s.conn.Query(`SELECT DISTINCT system_id FROM observations ORDER BY system_id`)
	if err != nil {
		return nil, fmt.Errorf("querying system ids: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// ListObservations retrieves a system's readings ordered by timestamp.
// A non-zero r restricts results to timestamps within it.
func (s *Store) ListObservations(systemID int, r daterange.DateRange) ([]models.Observation, error) {
	query := `
	SELECT system_id, ts,
		cumulative_energy_gen_wh, energy_efficiency_kwh_per_kw,
		instantaneous_power_gen_w, average_power_gen_w, power_gen_normalised,
		energy_consumption_wh, power_demand_w, temperature_c, voltage,
		requested_at, query_date
	FROM observations
	WHERE system_id = ?
	`
	args := []any{systemID}
	if !r.IsZero() {
		query += ` AND ts >= ? AND ts < ?`
		args = append(args, r.Start().Format(datetimeFormat), r.End().AddDate(0, 0, 1).Format(datetimeFormat))
	}
	query += ` ORDER BY ts`

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying observations: %w", err)
	}
	defer rows.Close()

	var results []models.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, o)
	}

	return results, rows.Err()
}

// ObservationCount returns the number of stored rows for a system.
func (s *Store) ObservationCount(systemID int) (int, error) {
	var n int
	err := s.conn.QueryRow(`SELECT count(*) FROM observations WHERE system_id = ?`, systemID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting observations: %w", err)
	}
	return n, nil
}

// GetStatistic returns the cached statistic for a system, or nil if
// none has been stored.
func (s *Store) GetStatistic(systemID int) (*models.Statistic, error) {
	query := `
	SELECT system_id, total_energy_gen_wh, energy_exported_wh,
		average_daily_energy_gen_wh, minimum_daily_energy_gen_wh,
		maximum_daily_energy_gen_wh, average_efficiency_kwh_per_kw,
		num_outputs, actual_date_from, actual_date_to,
		record_efficiency_kwh_per_kw, record_efficiency_date,
		query_date_from, query_date_to
	FROM statistics
	WHERE system_id = ?
	`

	var stat models.Statistic
	var actualFrom, actualTo, recordDate, queryFrom, queryTo string
	err := s.conn.QueryRow(query, systemID).Scan(
		&stat.SystemID,
		&stat.TotalEnergyGenWh,
		&stat.EnergyExportedWh,
		&stat.AverageDailyEnergyGenWh,
		&stat.MinimumDailyEnergyGenWh,
		&stat.MaximumDailyEnergyGenWh,
		&stat.AverageEfficiencyKWhPerKW,
		&stat.NumOutputs,
		&actualFrom,
		&actualTo,
		&stat.RecordEfficiencyKWhPerKW,
		&recordDate,
		&queryFrom,
		&queryTo,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying statistic: %w", err)
	}

	if stat.ActualDateFrom, err = time.Parse(dayFormat, actualFrom); err != nil {
		return nil, fmt.Errorf("parsing actual_date_from: %w", err)
	}
	if stat.ActualDateTo, err = time.Parse(dayFormat, actualTo); err != nil {
		return nil, fmt.Errorf("parsing actual_date_to: %w", err)
	}
	if stat.RecordEfficiencyDate, err = time.Parse(dayFormat, recordDate); err != nil {
		return nil, fmt.Errorf("parsing record_efficiency_date: %w", err)
	}
	if stat.QueryDateFrom, err = time.Parse(dayFormat, queryFrom); err != nil {
		return nil, fmt.Errorf("parsing query_date_from: %w", err)
	}
	if stat.QueryDateTo, err = time.Parse(dayFormat, queryTo); err != nil {
		return nil, fmt.Errorf("parsing query_date_to: %w", err)
	}

	return &stat, nil
}

// PutStatistic upserts the cached statistic for a system.
func (s *Store) PutStatistic(stat *models.Statistic) error {
	query := `
	INSERT INTO statistics (
		system_id, total_energy_gen_wh, energy_exported_wh,
		average_daily_energy_gen_wh, minimum_daily_energy_gen_wh,
		maximum_daily_energy_gen_wh, average_efficiency_kwh_per_kw,
		num_outputs, actual_date_from, actual_date_to,
		record_efficiency_kwh_per_kw, record_efficiency_date,
		query_date_from, query_date_to, cached_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(system_id) DO UPDATE SET
		total_energy_gen_wh = excluded.total_energy_gen_wh,
		energy_exported_wh = excluded.energy_exported_wh,
		average_daily_energy_gen_wh = excluded.average_daily_energy_gen_wh,
		minimum_daily_energy_gen_wh = excluded.minimum_daily_energy_gen_wh,
		maximum_daily_energy_gen_wh = excluded.maximum_daily_energy_gen_wh,
		average_efficiency_kwh_per_kw = excluded.average_efficiency_kwh_per_kw,
		num_outputs = excluded.num_outputs,
		actual_date_from = excluded.actual_date_from,
		actual_date_to = excluded.actual_date_to,
		record_efficiency_kwh_per_kw = excluded.record_efficiency_kwh_per_kw,
		record_efficiency_date = excluded.record_efficiency_date,
		query_date_from = excluded.query_date_from,
		query_date_to = excluded.query_date_to,
		cached_at = excluded.cached_at
	`

	_, err := s.conn.Exec(query,
		stat.SystemID,
		stat.TotalEnergyGenWh,
		stat.EnergyExportedWh,
		stat.AverageDailyEnergyGenWh,
		stat.MinimumDailyEnergyGenWh,
		stat.MaximumDailyEnergyGenWh,
		stat.AverageEfficiencyKWhPerKW,
		stat.NumOutputs,
		daterange.Day(stat.ActualDateFrom).Format(dayFormat),
		daterange.Day(stat.ActualDateTo).Format(dayFormat),
		stat.RecordEfficiencyKWhPerKW,
		daterange.Day(stat.RecordEfficiencyDate).Format(dayFormat),
		daterange.Day(stat.QueryDateFrom).Format(dayFormat),
		daterange.Day(stat.QueryDateTo).Format(dayFormat),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting statistic: %w", err)
	}

	return nil
}

func scanObservation(rows *sql.Rows) (models.Observation, error) {
	var o models.Observation
	var tsStr, requestedStr, queryDateStr string
	var metrics [9]sql.NullFloat64

	err := rows.Scan(
		&o.SystemID, &tsStr,
		&metrics[0], &metrics[1], &metrics[2], &metrics[3], &metrics[4],
		&metrics[5], &metrics[6], &metrics[7], &metrics[8],
		&requestedStr, &queryDateStr,
	)
	if err != nil {
		return o, fmt.Errorf("scanning row: %w", err)
	}

	if o.Timestamp, err = time.Parse(datetimeFormat, tsStr); err != nil {
		return o, fmt.Errorf("parsing ts: %w", err)
	}
	o.Timestamp = o.Timestamp.UTC()
	if o.RequestedAt, err = time.Parse(time.RFC3339, requestedStr); err != nil {
		return o, fmt.Errorf("parsing requested_at: %w", err)
	}
	if o.QueryDate, err = time.Parse(dayFormat, queryDateStr); err != nil {
		return o, fmt.Errorf("parsing query_date: %w", err)
	}

	o.CumulativeEnergyGenWh = floatPtr(metrics[0])
	o.EnergyEfficiencyKWhPerKW = floatPtr(metrics[1])
	o.InstantaneousPowerGenW = floatPtr(metrics[2])
	o.AveragePowerGenW = floatPtr(metrics[3])
	o.PowerGenNormalised = floatPtr(metrics[4])
	o.EnergyConsumptionWh = floatPtr(metrics[5])
	o.PowerDemandW = floatPtr(metrics[6])
	o.TemperatureC = floatPtr(metrics[7])
	o.Voltage = floatPtr(metrics[8])
	return o, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
