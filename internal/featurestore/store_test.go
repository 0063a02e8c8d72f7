package featurestore_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/gridcast/internal/adapter/database"
	"github.com/tigerroll/gridcast/internal/domain/entity"
	"github.com/tigerroll/gridcast/internal/featurestore"
	"github.com/tigerroll/gridcast/internal/support/exception"
)

// newMockStore builds a Store over a sqlmock-backed GORM connection.
func newMockStore(t *testing.T) (*featurestore.Store, sqlmock.Sqlmock) {
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
	return featurestore.NewStore(conn), mock
}

func TestInsertWeatherUpserts(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO `weather`").
		WillReturnResult(sqlmock.NewResult(0, 2))

	records := []entity.WeatherRecord{
		{Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Section: "SE_1", Temperature2M: 1.5},
		{Timestamp: time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC), Section: "SE_1", Temperature2M: 2.0},
	}
	n, err := store.InsertWeather(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertWeatherEmptySliceSkipsSQL(t *testing.T) {
	store, mock := newMockStore(t)

	n, err := store.InsertWeather(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertPredictionsUpsertsOnLeadTimeKey(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO `energy_predictions`").
		WillReturnResult(sqlmock.NewResult(0, 1))

	records := []entity.PredictionRecord{
		{
			Timestamp:           time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			Section:             "SE_3",
			EnergySource:        entity.SourceSolar,
			HoursBeforeForecast: 1,
			PredictedEnergy:     123.4,
			RunID:               "run-1",
		},
	}
	n, err := store.InsertPredictions(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadPredictionsFiltersByLeadTime(t *testing.T) {
	store, mock := newMockStore(t)

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"timestamp", "section", "energy_source", "hours_before_forecast",
		"predicted_energy", "run_id", "created_at",
	}).AddRow(ts, "SE_3", "solar", 1, 123.4, "run-1", ts)

	mock.ExpectQuery("SELECT \\* FROM `energy_predictions` WHERE .*hours_before_forecast = \\?").
		WillReturnRows(rows)

	records, err := store.ReadPredictions(context.Background(), "SE_3", "solar", 1, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].HoursBeforeForecast)
	assert.Equal(t, 123.4, records[0].PredictedEnergy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadGenerationAppliesTimeWindow(t *testing.T) {
	store, mock := newMockStore(t)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"timestamp", "section", "solar", "wind", "collected_at"}).
		AddRow(from, "SE_1", 10.0, 100.0, from)

	mock.ExpectQuery("SELECT \\* FROM `energy_production` WHERE section = \\? AND timestamp >= \\? AND timestamp <= \\?").
		WithArgs("SE_1", from, to).
		WillReturnRows(rows)

	records, err := store.ReadGeneration(context.Background(), "SE_1", from, to)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 100.0, records[0].Wind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestWeatherTimestamp(t *testing.T) {
	store, mock := newMockStore(t)

	ts := time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"timestamp", "section"}).AddRow(ts, "SE_2")
	mock.ExpectQuery("SELECT \\* FROM `weather` WHERE section = \\?").
		WillReturnRows(rows)

	got, err := store.LatestWeatherTimestamp(context.Background(), "SE_2")
	require.NoError(t, err)
	assert.Equal(t, ts, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestWeatherTimestampEmptySectionIsNoData(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT \\* FROM `weather` WHERE section = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"timestamp", "section"}))

	_, err := store.LatestWeatherTimestamp(context.Background(), "SE_9")
	require.Error(t, err)
	assert.True(t, exception.IsNoData(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureGroupRegistersAndLoads(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO `feature_groups`").
		WillReturnResult(sqlmock.NewResult(1, 1))

	created := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "name", "version", "description", "created_at"}).
		AddRow(1, featurestore.GroupWeather, featurestore.GroupVersion, "hourly weather", created)
	mock.ExpectQuery("SELECT \\* FROM `feature_groups` WHERE name = \\? AND version = \\?").
		WithArgs(featurestore.GroupWeather, featurestore.GroupVersion, 1).
		WillReturnRows(rows)

	group, err := store.EnsureGroup(context.Background(), featurestore.GroupWeather, featurestore.GroupVersion, "hourly weather")
	require.NoError(t, err)
	assert.Equal(t, uint(1), group.ID)
	assert.Equal(t, featurestore.GroupWeather, group.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}
