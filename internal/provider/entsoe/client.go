// Package entsoe fetches actual per-source generation series from the
// ENTSO-E transparency platform and normalizes them into hourly frames.
package entsoe

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/tigerroll/gridcast/internal/domain/entity"
	"github.com/tigerroll/gridcast/internal/frame"
	"github.com/tigerroll/gridcast/internal/support/exception"
	"github.com/tigerroll/gridcast/internal/support/logger"
	"github.com/tigerroll/gridcast/internal/support/retry"
)

const moduleName = "entsoe"

// Production source type codes of the transparency platform.
const (
	psrTypeSolar       = "B16"
	psrTypeWindOnshore = "B19"
)

const periodTimeLayout = "200601021504"

// Config holds the ENTSO-E client settings.
type Config struct {
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// Retry governs transient-failure retries of API calls.
	Retry retry.Policy `yaml:"retry"`
}

// DefaultConfig returns the public transparency platform endpoint with
// default retry settings. The API key has no default; it must be configured.
func DefaultConfig() Config {
	return Config{
		Endpoint:       "https://web-api.tp.entsoe.eu/api",
		TimeoutSeconds: 30,
		Retry:          retry.DefaultPolicy,
	}
}

// Client is the ENTSO-E transparency platform client.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient creates a Client from cfg, filling empty settings with defaults.
func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
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

// FetchGeneration fetches realised solar and onshore-wind generation for the
// bidding zone identified by the EIC domain code over [start, end). The result
// is an hourly frame with "solar" and "wind" columns; sub-hourly source data
// contributes the first sample of each hour. Hours covered by only one source
// are dropped. An empty window fails with exception.ErrNoData.
func (c *Client) FetchGeneration(ctx context.Context, domain string, start, end time.Time) (*frame.Frame, error) {
	if c.cfg.APIKey == "" {
		return nil, exception.NewPipelineErrorf(moduleName, "ENTSO-E API key is not configured")
	}

	q := url.Values{}
	q.Set("securityToken", c.cfg.APIKey)
	q.Set("documentType", "A75")
	q.Set("processType", "A16")
	q.Set("in_Domain", domain)
	q.Set("periodStart", start.UTC().Format(periodTimeLayout))
	q.Set("periodEnd", end.UTC().Format(periodTimeLayout))
	endpoint := fmt.Sprintf("%s?%s", c.cfg.Endpoint, q.Encode())

	var body []byte
	err := c.cfg.Retry.Do(ctx, "entsoe request", func() error {
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
	return parseGeneration(body)
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

// glMarketDocument is the generation-per-type response document. One
// TimeSeries per production type and period, points positional within the
// period at the declared resolution.
type glMarketDocument struct {
	XMLName    xml.Name     `xml:"GL_MarketDocument"`
	TimeSeries []timeSeries `xml:"TimeSeries"`
}

type timeSeries struct {
	MktPSRType struct {
		PsrType string `xml:"psrType"`
	} `xml:"MktPSRType"`
	Periods []period `xml:"Period"`
}

type period struct {
	TimeInterval struct {
		Start string `xml:"start"`
	} `xml:"timeInterval"`
	Resolution string  `xml:"resolution"`
	Points     []point `xml:"Point"`
}

type point struct {
	Position int     `xml:"position"`
	Quantity float64 `xml:"quantity"`
}

// acknowledgementDocument is the error envelope the platform returns with
// HTTP 200 for empty or rejected queries.
type acknowledgementDocument struct {
	XMLName xml.Name `xml:"Acknowledgement_MarketDocument"`
	Reason  struct {
		Code string `xml:"code"`
		Text string `xml:"text"`
	} `xml:"Reason"`
}

func parseGeneration(body []byte) (*frame.Frame, error) {
	var ack acknowledgementDocument
	if err := xml.Unmarshal(body, &ack); err == nil && ack.XMLName.Local == "Acknowledgement_MarketDocument" {
		// Reason code 999 marks "no matching data", which is an empty window,
		// not a request failure.
		return nil, exception.NewPipelineError(
			moduleName,
			fmt.Sprintf("API acknowledged without data: [%s] %s", ack.Reason.Code, ack.Reason.Text),
			exception.ErrNoData,
			false,
		)
	}

	var doc glMarketDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, exception.NewPipelineError(moduleName, "failed to decode API response", err, false)
	}
	if len(doc.TimeSeries) == 0 {
		return nil, exception.NewPipelineError(moduleName, "API returned no time series", exception.ErrNoData, false)
	}

	// bySource[source][hour] keeps the first sample seen for that hour, so
	// PT15M series contribute their on-the-hour tick.
	bySource := map[string]map[time.Time]float64{
		entity.SourceSolar: make(map[time.Time]float64),
		entity.SourceWind:  make(map[time.Time]float64),
	}
	for _, series := range doc.TimeSeries {
		var source string
		switch series.MktPSRType.PsrType {
		case psrTypeSolar:
			source = entity.SourceSolar
		case psrTypeWindOnshore:
			source = entity.SourceWind
		default:
			continue
		}
		for _, p := range series.Periods {
			if err := collectPeriod(bySource[source], p); err != nil {
				return nil, err
			}
		}
	}

	// Keep only hours both sources cover; a half-reported hour would join
	// against actuals with a fabricated zero otherwise.
	var hours []time.Time
	for hour := range bySource[entity.SourceSolar] {
		if _, ok := bySource[entity.SourceWind][hour]; ok {
			hours = append(hours, hour)
		}
	}
	if len(hours) == 0 {
		return nil, exception.NewPipelineError(moduleName,
			"API returned no hours covered by both solar and wind", exception.ErrNoData, false)
	}
	sort.Slice(hours, func(i, j int) bool { return hours[i].Before(hours[j]) })

	solar := make([]float64, len(hours))
	wind := make([]float64, len(hours))
	for i, hour := range hours {
		solar[i] = bySource[entity.SourceSolar][hour]
		wind[i] = bySource[entity.SourceWind][hour]
	}
	f := frame.New(hours)
	f.SetColumn(entity.SourceSolar, solar)
	f.SetColumn(entity.SourceWind, wind)
	logger.Debugf("Parsed %d generation hours from ENTSO-E response.", len(hours))
	return f, nil
}

func collectPeriod(dest map[time.Time]float64, p period) error {
	start, err := time.Parse("2006-01-02T15:04Z", p.TimeInterval.Start)
	if err != nil {
		return exception.NewPipelineError(moduleName,
			fmt.Sprintf("failed to parse period start '%s'", p.TimeInterval.Start), err, false)
	}
	step, err := resolutionDuration(p.Resolution)
	if err != nil {
		return err
	}
	for _, pt := range p.Points {
		ts := start.Add(time.Duration(pt.Position-1) * step).UTC()
		if ts.Minute() != 0 {
			continue
		}
		if _, exists := dest[ts]; !exists {
			dest[ts] = pt.Quantity
		}
	}
	return nil
}

func resolutionDuration(resolution string) (time.Duration, error) {
	switch resolution {
	case "PT15M":
		return 15 * time.Minute, nil
	case "PT30M":
		return 30 * time.Minute, nil
	case "PT60M", "P1H":
		return time.Hour, nil
	default:
		return 0, exception.NewPipelineErrorf(moduleName, "unsupported period resolution '%s'", resolution)
	}
}
