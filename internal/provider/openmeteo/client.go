// Package openmeteo fetches hourly weather series from the Open-Meteo archive
// and forecast APIs and normalizes them into column-oriented frames.
package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tigerroll/gridcast/internal/frame"
	"github.com/tigerroll/gridcast/internal/support/exception"
	"github.com/tigerroll/gridcast/internal/support/logger"
	"github.com/tigerroll/gridcast/internal/support/retry"
)

const moduleName = "openmeteo"

// hourlyTimeLayout is the timestamp format of the API's hourly time axis.
const hourlyTimeLayout = "2006-01-02T15:04"

// Config holds the Open-Meteo client settings.
type Config struct {
	// ArchiveEndpoint is the base URL of the historical weather API.
	ArchiveEndpoint string `yaml:"archive_endpoint"`
	// ForecastEndpoint is the base URL of the forecast API.
	ForecastEndpoint string `yaml:"forecast_endpoint"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	// Retry governs transient-failure retries of API calls.
	Retry retry.Policy `yaml:"retry"`
}

// DefaultConfig returns the public Open-Meteo endpoints with default retry
// settings.
func DefaultConfig() Config {
	return Config{
		ArchiveEndpoint:  "https://archive-api.open-meteo.com",
		ForecastEndpoint: "https://api.open-meteo.com",
		TimeoutSeconds:   30,
		Retry:            retry.DefaultPolicy,
	}
}

// Client is the Open-Meteo API client.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient creates a Client from cfg, filling empty settings with defaults.
func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.ArchiveEndpoint == "" {
		cfg.ArchiveEndpoint = def.ArchiveEndpoint
	}
	if cfg.ForecastEndpoint == "" {
		cfg.ForecastEndpoint = def.ForecastEndpoint
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = def.TimeoutSeconds
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = def.Retry
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}
}

// FetchArchive fetches the historical hourly series of the requested fields
// over the inclusive [start, end] date range. Rows with any null field are
// dropped; a fully empty response fails with exception.ErrNoData.
func (c *Client) FetchArchive(ctx context.Context, lat, lon float64, fields []string, start, end time.Time) (*frame.Frame, error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", lat))
	q.Set("longitude", fmt.Sprintf("%.4f", lon))
	q.Set("start_date", start.UTC().Format("2006-01-02"))
	q.Set("end_date", end.UTC().Format("2006-01-02"))
	q.Set("hourly", strings.Join(fields, ","))
	q.Set("timezone", "UTC")

	endpoint := fmt.Sprintf("%s/v1/archive?%s", c.cfg.ArchiveEndpoint, q.Encode())
	return c.fetchHourly(ctx, endpoint, fields)
}

// FetchForecast fetches the hourly forecast of the requested fields for the
// next forecastDays days. Rows with any null field are dropped; a fully empty
// response fails with exception.ErrNoData.
func (c *Client) FetchForecast(ctx context.Context, lat, lon float64, fields []string, forecastDays int) (*frame.Frame, error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", lat))
	q.Set("longitude", fmt.Sprintf("%.4f", lon))
	q.Set("hourly", strings.Join(fields, ","))
	q.Set("forecast_days", fmt.Sprintf("%d", forecastDays))
	q.Set("timezone", "UTC")

	endpoint := fmt.Sprintf("%s/v1/forecast?%s", c.cfg.ForecastEndpoint, q.Encode())
	return c.fetchHourly(ctx, endpoint, fields)
}

func (c *Client) fetchHourly(ctx context.Context, endpoint string, fields []string) (*frame.Frame, error) {
	var body []byte
	err := c.cfg.Retry.Do(ctx, "open-meteo request", func() error {
		b, err := c.get(ctx, endpoint)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return parseHourly(body, fields)
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, exception.NewPipelineError(moduleName, "failed to create API request", err, false)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, exception.NewPipelineError(moduleName, "API call failed", err, true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		bodyString := strings.TrimSpace(string(bodyBytes))
		isRetryable := resp.StatusCode >= 500
		return nil, exception.NewPipelineError(
			moduleName,
			fmt.Sprintf("error response from API: status code %d, body: %s", resp.StatusCode, bodyString),
			errors.New(bodyString),
			isRetryable,
		)
	}
	return io.ReadAll(resp.Body)
}

// hourlyResponse is the envelope of both the archive and forecast endpoints.
// The hourly block holds the time axis plus one positional value array per
// requested field; nulls in value arrays mark hours the provider has no data
// for.
type hourlyResponse struct {
	Hourly map[string]json.RawMessage `json:"hourly"`
}

func parseHourly(body []byte, fields []string) (*frame.Frame, error) {
	var resp hourlyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, exception.NewPipelineError(moduleName, "failed to decode API response", err, false)
	}
	if resp.Hourly == nil {
		return nil, exception.NewPipelineError(moduleName, "API response has no hourly block", exception.ErrNoData, false)
	}

	var timeStrings []string
	if raw, ok := resp.Hourly["time"]; ok {
		if err := json.Unmarshal(raw, &timeStrings); err != nil {
			return nil, exception.NewPipelineError(moduleName, "failed to decode hourly time axis", err, false)
		}
	}
	if len(timeStrings) == 0 {
		return nil, exception.NewPipelineError(moduleName, "API returned an empty hourly series", exception.ErrNoData, false)
	}

	times := make([]time.Time, len(timeStrings))
	for i, s := range timeStrings {
		t, err := time.Parse(hourlyTimeLayout, s)
		if err != nil {
			return nil, exception.NewPipelineError(moduleName,
				fmt.Sprintf("failed to parse hourly timestamp '%s'", s), err, false)
		}
		times[i] = t.UTC()
	}

	columns := make(map[string][]*float64, len(fields))
	for _, field := range fields {
		raw, ok := resp.Hourly[field]
		if !ok {
			return nil, exception.NewPipelineError(moduleName,
				"API response is missing requested field '"+field+"'", exception.ErrMissingField, false)
		}
		var vals []*float64
		if err := json.Unmarshal(raw, &vals); err != nil {
			return nil, exception.NewPipelineError(moduleName,
				"failed to decode field '"+field+"'", err, false)
		}
		if len(vals) != len(times) {
			return nil, exception.NewPipelineErrorf(moduleName,
				"field '%s' has %d values for %d timestamps", field, len(vals), len(times))
		}
		columns[field] = vals
	}

	// Keep only fully populated rows. Trailing archive hours the provider has
	// not measured yet arrive as nulls and must not enter the feature store.
	keep := make([]int, 0, len(times))
rowLoop:
	for i := range times {
		for _, field := range fields {
			v := columns[field][i]
			if v == nil || math.IsNaN(*v) {
				continue rowLoop
			}
		}
		keep = append(keep, i)
	}
	if len(keep) == 0 {
		return nil, exception.NewPipelineError(moduleName,
			"API returned no fully populated hourly rows", exception.ErrNoData, false)
	}
	if dropped := len(times) - len(keep); dropped > 0 {
		logger.Debugf("Dropped %d hourly rows with null fields.", dropped)
	}

	keptTimes := make([]time.Time, len(keep))
	for j, i := range keep {
		keptTimes[j] = times[i]
	}
	f := frame.New(keptTimes)
	for _, field := range fields {
		vals := make([]float64, len(keep))
		for j, i := range keep {
			vals[j] = *columns[field][i]
		}
		f.SetColumn(field, vals)
	}
	return f, nil
}
