// Package downloader drives incremental bulk downloads of PV readings.
// Every piece of progress state lives in the store, so a killed run
// resumes where it left off: dates already covered by stored rows and
// dates recorded as missing are never requested again.
package downloader

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openpv/pvharvest/internal/daterange"
	"github.com/openpv/pvharvest/internal/store"
	"github.com/openpv/pvharvest/pkg/models"
)

// API is the subset of the PVOutput client the downloader needs.
type API interface {
	GetStatus(ctx context.Context, systemID int, date time.Time) ([]models.Observation, error)
	GetBatchStatus(ctx context.Context, systemID int, dateTo time.Time) ([]models.Observation, bool, error)
	GetStatistic(ctx context.Context, systemID int, from, to time.Time) (*models.Statistic, error)
	HasDataService() bool
}

// Options tune a download run.
type Options struct {
	// PerDay forces the one-request-per-date path even when the client
	// has a data service configured.
	PerDay bool
	// MinDataAvailability skips systems whose ratio of reporting days to
	// lifetime days falls below it.  Zero disables the filter.
	MinDataAvailability float64
}

// SystemResult summarizes one system's share of a run.
type SystemResult struct {
	SystemID     int
	RowsImported int
	RowsDeduped  int64
	// MissingRecorded counts date ranges newly recorded as having no data.
	MissingRecorded int
	// Skipped is set when the availability filter dropped the system.
	Skipped    bool
	SkipReason string
	// Err is the first fatal error for this system; later systems still run.
	Err error
}

// Report collects per-system results for one Download call.
type Report struct {
	Systems []SystemResult
}

// Failed returns the results of systems that hit a fatal error.
func (r *Report) Failed() []SystemResult {
	var failed []SystemResult
	for _, sr := range r.Systems {
		if sr.Err != nil {
			failed = append(failed, sr)
		}
	}
	return failed
}

// Downloader fetches the readings a store is missing.
type Downloader struct {
	api    API
	store  *store.Store
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Downloader.  A nil logger disables logging.
func New(api API, st *store.Store, opts Options, logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		api:    api,
		store:  st,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Download fetches readings for each system over start..end, skipping
// dates the store already covers or has recorded as missing.  One
// system's failure does not stop the others; inspect the Report.
func (d *Downloader) Download(ctx context.Context, systemIDs []int, start, end time.Time) (*Report, error) {
	wanted, err := daterange.New(start, end)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, systemID := range systemIDs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		sr := d.downloadSystem(ctx, systemID, wanted)
		if sr.Err != nil {
			d.logger.Warn("system download failed",
				zap.Int("system_id", systemID),
				zap.Error(sr.Err))
		}
		report.Systems = append(report.Systems, sr)
	}
	return report, nil
}

func (d *Downloader) downloadSystem(ctx context.Context, systemID int, wanted daterange.DateRange) SystemResult {
	sr := SystemResult{SystemID: systemID}

	needed, err := d.neededRanges(systemID, wanted)
	if err != nil {
		sr.Err = err
		return sr
	}

	if d.opts.MinDataAvailability > 0 {
		needed, err = d.filterByAvailability(ctx, systemID, needed, &sr)
		if err != nil {
			sr.Err = err
			return sr
		}
		if sr.Skipped {
			return sr
		}
	}

	if len(needed) == 0 {
		d.logger.Debug("system already up to date", zap.Int("system_id", systemID))
		return sr
	}

	if d.api.HasDataService() && !d.opts.PerDay {
		sr.Err = d.downloadBatch(ctx, systemID, needed, &sr)
	} else {
		sr.Err = d.downloadPerDay(ctx, systemID, needed, &sr)
	}

	deduped, err := d.store.DedupeObservations(systemID)
	if err != nil && sr.Err == nil {
		sr.Err = err
	}
	sr.RowsDeduped = deduped
	return sr
}

// neededRanges computes the requested dates not yet covered by stored
// readings or recorded missing ranges.
func (d *Downloader) neededRanges(systemID int, wanted daterange.DateRange) ([]daterange.DateRange, error) {
	covered, err := d.store.CoveredDates(systemID)
	if err != nil {
		return nil, err
	}

	missing, err := d.store.MissingRanges(systemID)
	if err != nil {
		return nil, err
	}
	for _, m := range missing {
		r, err := daterange.New(m.StartDate, m.EndDate)
		if err != nil {
			return nil, fmt.Errorf("stored missing range for system %d: %w", systemID, err)
		}
		for _, day := range r.Dates() {
			covered[day] = true
		}
	}

	var needed []time.Time
	for _, day := range wanted.Dates() {
		if !covered[day] {
			needed = append(needed, day)
		}
	}
	return daterange.FromDates(needed), nil
}

// filterByAvailability applies the MinDataAvailability option: systems
// reporting too rarely are skipped, and needed ranges are clipped to
// the window the system actually has data for.
func (d *Downloader) filterByAvailability(ctx context.Context, systemID int, needed []daterange.DateRange, sr *SystemResult) ([]daterange.DateRange, error) {
	stat, err := d.statisticWithCache(ctx, systemID)
	if err != nil {
		return nil, err
	}
	if stat == nil {
		sr.Skipped = true
		sr.SkipReason = "system has never reported data"
		return nil, nil
	}

	lifetime, err := daterange.New(stat.ActualDateFrom, stat.ActualDateTo)
	if err != nil {
		return nil, fmt.Errorf("statistic date window for system %d: %w", systemID, err)
	}
	availability := float64(stat.NumOutputs) / float64(lifetime.TotalDays()+1)
	if availability < d.opts.MinDataAvailability {
		sr.Skipped = true
		sr.SkipReason = fmt.Sprintf("data availability %.2f below %.2f",
			availability, d.opts.MinDataAvailability)
		d.logger.Info("skipping sparse system",
			zap.Int("system_id", systemID),
			zap.Float64("availability", availability))
		return nil, nil
	}

	var clipped []daterange.DateRange
	for _, r := range needed {
		if inter, ok := r.Intersection(lifetime); ok {
			clipped = append(clipped, inter)
		}
	}
	return clipped, nil
}

// statisticWithCache returns the system's statistic, refreshing the
// store's cached copy when it was queried before today.  Returns nil
// for systems that have never reported.
func (d *Downloader) statisticWithCache(ctx context.Context, systemID int) (*models.Statistic, error) {
	today := daterange.Day(d.now())

	cached, err := d.store.GetStatistic(systemID)
	if err != nil {
		return nil, err
	}
	if cached != nil && !daterange.Day(cached.QueryDateTo).Before(today) {
		return cached, nil
	}

	stat, err := d.api.GetStatistic(ctx, systemID, time.Time{}, today)
	if err != nil {
		return nil, err
	}
	if stat == nil {
		return nil, nil
	}
	if err := d.store.PutStatistic(stat); err != nil {
		return nil, err
	}
	return stat, nil
}

// downloadPerDay issues one getstatus request per needed date.
func (d *Downloader) downloadPerDay(ctx context.Context, systemID int, needed []daterange.DateRange, sr *SystemResult) error {
	for _, r := range needed {
		for _, day := range r.Dates() {
			requestedAt := d.now().UTC()
			obs, err := d.api.GetStatus(ctx, systemID, day)
			if err != nil {
				return err
			}
			if len(obs) == 0 {
				if err := d.recordMissing(systemID, day, day, sr); err != nil {
					return err
				}
				continue
			}
			// Timestamps on the day after the requested date are fine:
			// the system's local evening can land past midnight UTC.
			// Anything further off means the API answered the wrong
			// question, which is fatal for this system.
			next := day.AddDate(0, 0, 1)
			for i := range obs {
				obsDay := daterange.Day(obs[i].Timestamp)
				if !obsDay.Equal(day) && !obsDay.Equal(next) {
					return fmt.Errorf("system %d: timestamp %s outside requested date %s",
						systemID, obs[i].Timestamp.Format(time.RFC3339), day.Format("2006-01-02"))
				}
				obs[i].RequestedAt = requestedAt
				obs[i].QueryDate = day
			}
			if err := d.store.AppendObservations(obs); err != nil {
				return err
			}
			sr.RowsImported += len(obs)
			d.logger.Debug("imported day",
				zap.Int("system_id", systemID),
				zap.Time("date", day),
				zap.Int("rows", len(obs)))
		}
	}
	return nil
}

// downloadBatch merges the needed ranges into 365-day windows and
// issues one getbatchstatus request per window.
func (d *Downloader) downloadBatch(ctx context.Context, systemID int, needed []daterange.DateRange, sr *SystemResult) error {
	for _, window := range daterange.MergeToYears(needed) {
		requestedAt := d.now().UTC()
		obs, ready, err := d.api.GetBatchStatus(ctx, systemID, window.End())
		if err != nil {
			return err
		}
		if !ready {
			// The server never finished preparing the batch.  Absence of
			// a result says nothing about absence of data, so nothing is
			// recorded and a later run asks again.
			d.logger.Warn("batch never became ready",
				zap.Int("system_id", systemID),
				zap.Time("window_end", window.End()))
			continue
		}
		if len(obs) == 0 {
			if err := d.recordMissing(systemID, window.Start(), window.End(), sr); err != nil {
				return err
			}
			continue
		}

		returned := make(map[time.Time]bool, len(obs))
		for i := range obs {
			obs[i].RequestedAt = requestedAt
			obs[i].QueryDate = window.End()
			returned[daterange.Day(obs[i].Timestamp)] = true
		}
		if err := d.store.AppendObservations(obs); err != nil {
			return err
		}
		sr.RowsImported += len(obs)

		if err := d.recordWindowGaps(systemID, window, needed, returned, sr); err != nil {
			return err
		}

		d.logger.Info("imported batch window",
			zap.Int("system_id", systemID),
			zap.Time("window_start", window.Start()),
			zap.Time("window_end", window.End()),
			zap.Int("rows", len(obs)))
	}
	return nil
}

// recordWindowGaps records the requested dates inside a batch window
// that came back with no readings.  Only dates the caller actually
// asked for count: a 365-day window can cover dates outside every
// needed range, and those say nothing about missing data.
func (d *Downloader) recordWindowGaps(systemID int, window daterange.DateRange, needed []daterange.DateRange, returned map[time.Time]bool, sr *SystemResult) error {
	var absent []time.Time
	for _, r := range needed {
		// Clamp with inclusive bounds: a needed range that shares only a
		// single day with the window still has to be scanned, or that day
		// ends up neither covered nor recorded missing and every later
		// run asks for the window again.
		from, to := r.Start(), r.End()
		if window.Start().After(from) {
			from = window.Start()
		}
		if window.End().Before(to) {
			to = window.End()
		}
		if from.After(to) {
			continue
		}
		for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
			if !returned[day] {
				absent = append(absent, day)
			}
		}
	}

	for _, gap := range daterange.FromDates(absent) {
		if err := d.recordMissing(systemID, gap.Start(), gap.End(), sr); err != nil {
			return err
		}
	}
	return nil
}

func (d *Downloader) recordMissing(systemID int, start, end time.Time, sr *SystemResult) error {
	err := d.store.AppendMissingRange(models.MissingDateRange{
		SystemID:    systemID,
		StartDate:   start,
		EndDate:     end,
		RequestedAt: d.now().UTC(),
	})
	if err != nil {
		return err
	}
	sr.MissingRecorded++
	d.logger.Debug("recorded missing range",
		zap.Int("system_id", systemID),
		zap.Time("start", start),
		zap.Time("end", end))
	return nil
}
