// Package pvoutput is a client for the PVOutput.org API: per-day and
// batch status downloads, system search and metadata, with shared
// rate-limit tracking and bounded retries.
package pvoutput

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/openpv/pvharvest/internal/daterange"
	"github.com/openpv/pvharvest/pkg/models"
)

const defaultBaseURL = "https://pvoutput.org"

// ClientConfig configures a Client.
type ClientConfig struct {
	APIKey   string
	SystemID string

	// DataServiceURL enables the subscription-only batch endpoints
	// when set.
	DataServiceURL string

	// BaseURL overrides the API host; for tests.
	BaseURL string

	// Timezone of the PV systems' local time, e.g. "Europe/London".
	// Timestamps in responses are parsed in this zone.  Empty means UTC.
	Timezone string

	// ErrorOnRateLimit makes quota exhaustion surface as a
	// RateLimitExceededError instead of blocking until the reset.
	ErrorOnRateLimit bool

	Logger *zap.Logger
}

// Client talks to the PVOutput.org API.  One Client per credential:
// the rate limiter it owns tracks that credential's global quota.
type Client struct {
	apiKey         string
	systemID       string
	baseURL        string
	dataServiceURL string
	waitForReset   bool

	httpc   *resty.Client
	limiter *RateLimiter
	retrier *Retrier
	logger  *zap.Logger
	loc     *time.Location

	// Batch endpoint polling; overridable in tests.
	batchPollRetries int
	pollInterval     time.Duration
	sleep            func(context.Context, time.Duration) error
	now              func() time.Time
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" || cfg.SystemID == "" {
		return nil, errors.New("pvoutput: api_key and system_id must be set")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(cfg.Timezone); err != nil {
			return nil, fmt.Errorf("loading timezone: %w", err)
		}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	// Retries are owned by the Retrier so that quota exhaustion never
	// enters the transport retry path; resty's own retry stays off.
	httpc := resty.New().
		SetTimeout(30 * time.Second).
		SetHeader("X-Rate-Limit", "1")

	return &Client{
		apiKey:           cfg.APIKey,
		systemID:         cfg.SystemID,
		baseURL:          strings.TrimRight(baseURL, "/"),
		dataServiceURL:   strings.TrimRight(cfg.DataServiceURL, "/"),
		waitForReset:     !cfg.ErrorOnRateLimit,
		httpc:            httpc,
		limiter:          NewRateLimiter(logger),
		retrier:          NewRetrier(logger),
		logger:           logger,
		loc:              loc,
		batchPollRetries: 1000,
		pollInterval:     time.Minute,
		sleep:            sleepContext,
		now:              time.Now,
	}, nil
}

// RateLimit exposes the shared quota state.
func (c *Client) RateLimit() RateLimitState { return c.limiter.State() }

// HasDataService reports whether the batch endpoints are available.
func (c *Client) HasDataService() bool { return c.dataServiceURL != "" }

// GetStatus returns one calendar day of readings for a system.  A nil
// slice with nil error means the API has no data for that day.
func (c *Client) GetStatus(ctx context.Context, systemID int, date time.Time) ([]models.Observation, error) {
	day := daterange.Day(date)
	if err := c.checkDate(day); err != nil {
		return nil, err
	}
	c.logger.Info("requesting system status",
		zap.Int("system_id", systemID),
		zap.String("date", day.Format("2006-01-02")))

	params := map[string]string{
		"d":     day.Format(apiDateFormat),
		"h":     "1", // historical data
		"limit": "288",
		"ext":   "0",
		"sid1":  strconv.Itoa(systemID),
	}
	text, err := c.apiQuery(ctx, "getstatus", params, false)
	var nsf *NoStatusFoundError
	if errors.As(err, &nsf) {
		c.logger.Info("no status found",
			zap.Int("system_id", systemID),
			zap.String("date", day.Format("2006-01-02")))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return parseStatus(text, systemID, c.loc, true)
}

// GetBatchStatus returns up to 365 days of readings ending at dateTo.
// The endpoint is asynchronous server-side: the first call may be
// answered "Accepted 202", in which case the request is polled at a
// fixed interval.  ready is false if the data was still not available
// after the polling budget; that outcome says nothing about whether
// data exists.
func (c *Client) GetBatchStatus(ctx context.Context, systemID int, dateTo time.Time) (obs []models.Observation, ready bool, err error) {
	params := map[string]string{"sid1": strconv.Itoa(systemID)}
	if !dateTo.IsZero() {
		day := daterange.Day(dateTo)
		if err := c.checkDate(day); err != nil {
			return nil, false, err
		}
		params["dt"] = day.Format(apiDateFormat)
	}

	var text string
	for retry := 0; retry < c.batchPollRetries; retry++ {
		t, err := c.apiQuery(ctx, "getbatchstatus", params, true)
		var nsf *NoStatusFoundError
		if errors.As(err, &nsf) {
			c.logger.Info("no batch status found",
				zap.Int("system_id", systemID),
				zap.Time("date_to", dateTo))
			return nil, true, nil
		}
		if err != nil {
			return nil, false, err
		}
		if !strings.Contains(t, "Accepted 202") {
			text = t
			ready = true
			break
		}
		if retry == 0 {
			c.logger.Info("batch request accepted, polling until ready",
				zap.Int("system_id", systemID))
		}
		if retry < c.batchPollRetries-1 {
			if err := c.sleep(ctx, c.pollInterval); err != nil {
				return nil, false, err
			}
		}
	}
	if !ready {
		return nil, false, nil
	}

	obs, err = parseBatchStatus(text, systemID, c.loc)
	if err != nil {
		return nil, false, err
	}
	return obs, true, nil
}

// SearchOptions refine a Search call.
type SearchOptions struct {
	Lat, Lon    float64
	HasLocation bool
	// IncludeCountry includes the country name in returned addresses.
	IncludeCountry bool
}

// Search queries the systems directory.  The API caps results at 30
// with no pagination.
func (c *Client) Search(ctx context.Context, query string, opts *SearchOptions) ([]models.SystemSearchResult, error) {
	if opts == nil {
		opts = &SearchOptions{IncludeCountry: true}
	}
	params := map[string]string{
		"q":       query,
		"country": "0",
	}
	if opts.IncludeCountry {
		params["country"] = "1"
	}
	if opts.HasLocation {
		params["ll"] = fmt.Sprintf("%f,%f", opts.Lat, opts.Lon)
	}

	text, err := c.apiQuery(ctx, "search", params, false)
	var nsf *NoStatusFoundError
	if errors.As(err, &nsf) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return parseSearch(text)
}

// GetMetadata returns the directory entry for one system.
func (c *Client) GetMetadata(ctx context.Context, systemID int) (*models.SystemMetadata, error) {
	params := map[string]string{
		"array2":    "1",
		"tariffs":   "0",
		"teams":     "0",
		"est":       "0",
		"donations": "0",
		"sid1":      strconv.Itoa(systemID),
		"ext":       "0",
	}
	text, err := c.apiQuery(ctx, "getsystem", params, false)
	if err != nil {
		return nil, err
	}
	return parseMetadata(text, systemID)
}

// GetStatistic returns summary statistics for a system.  Zero times
// leave the corresponding bound open: a set from with zero to queries
// through today, a set to with zero from queries from the beginning.
// Returns nil if the system has never reported anything.
func (c *Client) GetStatistic(ctx context.Context, systemID int, from, to time.Time) (*models.Statistic, error) {
	if !from.IsZero() && to.IsZero() {
		to = c.now()
	}
	if !to.IsZero() && from.IsZero() {
		from = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	params := map[string]string{
		"c":    "0",
		"crdr": "0",
		"sid1": strconv.Itoa(systemID),
	}
	if !from.IsZero() {
		params["df"] = daterange.Day(from).Format(apiDateFormat)
	}
	if !to.IsZero() {
		params["dt"] = daterange.Day(to).Format(apiDateFormat)
	}

	text, err := c.apiQuery(ctx, "getstatistic", params, false)
	var nsf *NoStatusFoundError
	if errors.As(err, &nsf) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	stat, err := parseStatistic(text, systemID)
	if err != nil {
		return nil, err
	}
	stat.QueryDateFrom = daterange.Day(from)
	if to.IsZero() {
		to = c.now()
	}
	stat.QueryDateTo = daterange.Day(to)
	return stat, nil
}

// GetInsolation returns the predicted clear-sky output for a system on
// one date.  Requires donation mode.
func (c *Client) GetInsolation(ctx context.Context, systemID int, date time.Time) ([]models.Insolation, error) {
	day := daterange.Day(date)
	params := map[string]string{
		"d":    day.Format(apiDateFormat),
		"sid1": strconv.Itoa(systemID),
	}
	text, err := c.apiQuery(ctx, "getinsolation", params, false)
	var nsf *NoStatusFoundError
	if errors.As(err, &nsf) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return parseInsolation(text, day, c.loc)
}

// checkDate rejects future dates; the API has no data for them and
// answers confusingly.
func (c *Client) checkDate(day time.Time) error {
	if day.After(daterange.Day(c.now())) {
		return fmt.Errorf("date %s is in the future", day.Format("2006-01-02"))
	}
	return nil
}

// apiQuery runs one logical API call through the retrier.  On quota
// exhaustion it waits for the reset and retries exactly once, unless
// the client was configured to surface the error instead.  The wait
// happens here and only here, so the retrier never doubles it.
func (c *Client) apiQuery(ctx context.Context, service string, params map[string]string, useDataService bool) (string, error) {
	text, err := c.query(ctx, service, params, useDataService)
	var rle *RateLimitExceededError
	if errors.As(err, &rle) {
		c.logger.Warn("rate limit exceeded",
			zap.String("service", service),
			zap.Time("reset_time", rle.ResetTime))
		if !c.waitForReset {
			return "", err
		}
		if _, werr := c.limiter.Wait(ctx); werr != nil {
			return "", werr
		}
		return c.query(ctx, service, params, useDataService)
	}
	return text, err
}

func (c *Client) query(ctx context.Context, service string, params map[string]string, useDataService bool) (string, error) {
	var text string
	err := c.retrier.Do(ctx, service, func() error {
		t, err := c.doRequest(ctx, service, params, useDataService)
		if err != nil {
			return err
		}
		text = t
		return nil
	})
	return text, err
}

func (c *Client) doRequest(ctx context.Context, service string, params map[string]string, useDataService bool) (string, error) {
	req := c.httpc.R().SetContext(ctx).SetQueryParams(params)

	var url string
	if useDataService {
		if c.dataServiceURL == "" {
			return "", errors.New("pvoutput: data service URL is not configured")
		}
		// The data service authenticates via query params, not headers.
		req.SetQueryParam("key", c.apiKey)
		req.SetQueryParam("sid", c.systemID)
		url = c.dataServiceURL + "/data/r2/" + service + ".jsp"
	} else {
		req.SetHeader("X-Pvoutput-Apikey", c.apiKey)
		req.SetHeader("X-Pvoutput-SystemId", c.systemID)
		url = c.baseURL + "/service/r2/" + service + ".jsp"
	}

	resp, err := req.Get(url)
	if err != nil {
		return "", fmt.Errorf("requesting %s: %w", service, err)
	}
	return c.processResponse(service, resp)
}

// processResponse turns an HTTP response into body text, refreshing the
// rate-limit counters on every response regardless of outcome.
func (c *Client) processResponse(service string, resp *resty.Response) (string, error) {
	c.limiter.UpdateFromHeaders(resp.Header())

	switch code := resp.StatusCode(); {
	case code == http.StatusBadRequest:
		return "", &NoStatusFoundError{Service: service}
	case code == http.StatusForbidden:
		if state := c.limiter.State(); state.Remaining <= 0 {
			return "", &RateLimitExceededError{ResetTime: state.ResetTime}
		}
		// 403 with quota left: a donation-gated endpoint; the body
		// explains, pass it through as an error.
		return "", &BadStatusError{Service: service, StatusCode: code, Body: truncateBody(resp.Body())}
	case code >= 300:
		return "", &BadStatusError{Service: service, StatusCode: code, Body: truncateBody(resp.Body())}
	}

	return strings.TrimSpace(latin1Decode(resp.Body())), nil
}

func truncateBody(b []byte) string {
	const max = 200
	s := latin1Decode(b)
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
