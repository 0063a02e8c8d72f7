package openmeteo_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/gridcast/internal/provider/openmeteo"
	"github.com/tigerroll/gridcast/internal/support/exception"
	"github.com/tigerroll/gridcast/internal/support/retry"
)

const hourlyBody = `{
  "hourly": {
    "time": ["2024-03-01T00:00", "2024-03-01T01:00", "2024-03-01T02:00"],
    "temperature_2m": [1.5, null, 3.5],
    "wind_speed_100m": [10.0, 11.0, 12.0]
  }
}`

func newClient(endpoint string) *openmeteo.Client {
	return openmeteo.NewClient(openmeteo.Config{
		ArchiveEndpoint:  endpoint,
		ForecastEndpoint: endpoint,
		TimeoutSeconds:   5,
		Retry:            retry.Policy{MaxRetries: 2, BackoffFactor: 0},
	})
}

func TestFetchArchiveParsesHourlySeries(t *testing.T) {
	var gotQuery atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query().Encode())
		fmt.Fprint(w, hourlyBody)
	}))
	defer server.Close()

	client := newClient(server.URL)
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

	f, err := client.FetchArchive(context.Background(), 59.3293, 18.0686, []string{"temperature_2m", "wind_speed_100m"}, start, end)
	require.NoError(t, err)

	// The 01:00 row carries a null temperature and must be dropped.
	require.Equal(t, 2, f.Len())
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), f.Time(0))
	assert.Equal(t, time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC), f.Time(1))
	temp, _ := f.Column("temperature_2m")
	assert.Equal(t, []float64{1.5, 3.5}, temp)

	query := gotQuery.Load().(string)
	assert.Contains(t, query, "timezone=UTC")
	assert.Contains(t, query, "start_date=2024-03-01")
	assert.Contains(t, query, "end_date=2024-03-02")
}

func TestFetchForecastRequestsConfiguredDays(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("forecast_days"))
		fmt.Fprint(w, hourlyBody)
	}))
	defer server.Close()

	client := newClient(server.URL)
	f, err := client.FetchForecast(context.Background(), 59.3, 18.0, []string{"temperature_2m", "wind_speed_100m"}, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())
}

func TestFetchRetriesOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, hourlyBody)
	}))
	defer server.Close()

	client := newClient(server.URL)
	f, err := client.FetchForecast(context.Background(), 59.3, 18.0, []string{"temperature_2m"}, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, 3, f.Len())
}

func TestFetchDoesNotRetryClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := newClient(server.URL)
	_, err := client.FetchForecast(context.Background(), 59.3, 18.0, []string{"temperature_2m"}, 1)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchMissingRequestedField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, hourlyBody)
	}))
	defer server.Close()

	client := newClient(server.URL)
	_, err := client.FetchForecast(context.Background(), 59.3, 18.0, []string{"cloud_cover"}, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrMissingField)
}

func TestFetchAllNullRowsIsNoData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"hourly": {"time": ["2024-03-01T00:00"], "temperature_2m": [null]}}`)
	}))
	defer server.Close()

	client := newClient(server.URL)
	_, err := client.FetchForecast(context.Background(), 59.3, 18.0, []string{"temperature_2m"}, 1)
	require.Error(t, err)
	assert.True(t, exception.IsNoData(err))
}
