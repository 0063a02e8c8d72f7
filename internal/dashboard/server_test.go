package dashboard_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/gridcast/internal/adapter/database"
	"github.com/tigerroll/gridcast/internal/config"
	"github.com/tigerroll/gridcast/internal/dashboard"
	"github.com/tigerroll/gridcast/internal/featurestore"
	"github.com/tigerroll/gridcast/internal/metrics"
)

func newTestServer(t *testing.T) (*dashboard.Server, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)
	conn, err := database.NewConnection(gormDB, database.Config{Type: "mysql"})
	require.NoError(t, err)

	cfg := config.NewSettings()
	server := dashboard.NewServer(cfg, featurestore.NewStore(conn), metrics.NewRecorder())
	return server, mock
}

func TestIndexServesEmbeddedPage(t *testing.T) {
	server, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "<html")
}

func TestUnknownPathIs404(t *testing.T) {
	server, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAreasEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/areas", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var areas []struct {
		Code      string  `json:"code"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &areas))
	require.Len(t, areas, 4)
	assert.Equal(t, "SE_1", areas[0].Code)
	assert.NotZero(t, areas[0].Latitude)
}

func TestSourcesEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sources", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var sources []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sources))
	assert.Equal(t, []string{"solar", "wind"}, sources)
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestSeriesStitchesActualsAndPredictions(t *testing.T) {
	server, mock := newTestServer(t)

	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	t2 := t0.Add(2 * time.Hour)

	genRows := sqlmock.NewRows([]string{"timestamp", "section", "solar", "wind", "collected_at"}).
		AddRow(t0, "SE_1", 5.0, 50.0, t0).
		AddRow(t1, "SE_1", 6.0, 60.0, t1)
	mock.ExpectQuery("SELECT \\* FROM `energy_production` WHERE section = \\?").
		WillReturnRows(genRows)

	// Two lead times for 01:00; the fresher one (hb=1) must win.
	predRows := sqlmock.NewRows([]string{
		"timestamp", "section", "energy_source", "hours_before_forecast",
		"predicted_energy", "run_id", "created_at",
	}).
		AddRow(t1, "SE_1", "solar", 2, 6.5, "run-1", t0).
		AddRow(t1, "SE_1", "solar", 1, 6.2, "run-2", t0).
		AddRow(t2, "SE_1", "solar", 1, 7.0, "run-2", t0)
	mock.ExpectQuery("SELECT \\* FROM `energy_predictions` WHERE section = \\?").
		WillReturnRows(predRows)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/series?area=SE_1&source=solar", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Area      string `json:"area"`
		Source    string `json:"source"`
		Bounds    *struct{ Start, End string }
		Confirmed struct {
			Times  []string   `json:"times"`
			Values []*float64 `json:"values"`
		} `json:"confirmed"`
		Projected struct {
			Times  []string   `json:"times"`
			Values []*float64 `json:"values"`
		} `json:"projected"`
		Actual struct {
			Times  []string   `json:"times"`
			Values []*float64 `json:"values"`
		} `json:"actual"`
		Predicted struct {
			Times  []string   `json:"times"`
			Values []*float64 `json:"values"`
		} `json:"predicted"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "SE_1", resp.Area)
	assert.Equal(t, "solar", resp.Source)

	// Confirmed covers the actual rows; projected continues from the last
	// actual hour into the prediction horizon.
	require.Len(t, resp.Confirmed.Values, 2)
	assert.Equal(t, 5.0, *resp.Confirmed.Values[0])
	assert.Equal(t, 6.0, *resp.Confirmed.Values[1])

	require.Len(t, resp.Projected.Values, 2)
	assert.Equal(t, 6.0, *resp.Projected.Values[0])
	assert.Equal(t, 7.0, *resp.Projected.Values[1])

	// The overlay keeps gaps as nulls and the freshest lead time per hour.
	require.Len(t, resp.Actual.Values, 3)
	assert.Nil(t, resp.Actual.Values[2])
	require.Len(t, resp.Predicted.Values, 3)
	assert.Nil(t, resp.Predicted.Values[0])
	assert.Equal(t, 6.2, *resp.Predicted.Values[1])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeriesClampsToRequestedWindow(t *testing.T) {
	server, mock := newTestServer(t)

	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	genRows := sqlmock.NewRows([]string{"timestamp", "section", "solar", "wind", "collected_at"}).
		AddRow(t0, "SE_1", 5.0, 50.0, t0).
		AddRow(t0.Add(time.Hour), "SE_1", 6.0, 60.0, t0).
		AddRow(t0.Add(2*time.Hour), "SE_1", 7.0, 70.0, t0)
	mock.ExpectQuery("SELECT \\* FROM `energy_production` WHERE section = \\?").
		WillReturnRows(genRows)
	mock.ExpectQuery("SELECT \\* FROM `energy_predictions` WHERE section = \\?").
		WillReturnRows(sqlmock.NewRows([]string{
			"timestamp", "section", "energy_source", "hours_before_forecast",
			"predicted_energy", "run_id", "created_at",
		}))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/series?area=SE_1&source=solar&start=2024-03-01T00:00&end=2024-03-01T01:00", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Bounds *struct {
			Start string `json:"start"`
			End   string `json:"end"`
		} `json:"bounds"`
		Window *struct {
			Start string `json:"start"`
			End   string `json:"end"`
		} `json:"window"`
		Confirmed struct {
			Times  []string   `json:"times"`
			Values []*float64 `json:"values"`
		} `json:"confirmed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	// Bounds report the full stored range; the served window honors the
	// request and the series is trimmed to it.
	require.NotNil(t, resp.Bounds)
	assert.Equal(t, "2024-03-01T02:00:00Z", resp.Bounds.End)
	require.NotNil(t, resp.Window)
	assert.Equal(t, "2024-03-01T00:00:00Z", resp.Window.Start)
	assert.Equal(t, "2024-03-01T01:00:00Z", resp.Window.End)

	require.Len(t, resp.Confirmed.Values, 2)
	assert.Equal(t, 5.0, *resp.Confirmed.Values[0])
	assert.Equal(t, 6.0, *resp.Confirmed.Values[1])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeriesWithoutDataReturnsEmptyResponse(t *testing.T) {
	server, mock := newTestServer(t)

	mock.ExpectQuery("SELECT \\* FROM `energy_production` WHERE section = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"timestamp", "section", "solar", "wind", "collected_at"}))
	mock.ExpectQuery("SELECT \\* FROM `energy_predictions` WHERE section = \\?").
		WillReturnRows(sqlmock.NewRows([]string{
			"timestamp", "section", "energy_source", "hours_before_forecast",
			"predicted_energy", "run_id", "created_at",
		}))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/series?area=SE_2&source=wind", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "SE_2", resp["area"])
	assert.Nil(t, resp["bounds"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
