// Package featurestore persists and serves the versioned time-series groups
// the pipelines read and write: raw weather, actual generation, and issued
// predictions. All writes are upserts on the natural key, which makes every
// ingestion idempotent under re-runs and lets corrected provider data
// overwrite earlier rows.
package featurestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tigerroll/gridcast/internal/adapter/database"
	"github.com/tigerroll/gridcast/internal/domain/entity"
	"github.com/tigerroll/gridcast/internal/support/exception"
	"github.com/tigerroll/gridcast/internal/support/logger"
)

const moduleName = "featurestore"

// Feature group names and versions registered at pipeline startup.
const (
	GroupWeather     = "weather"
	GroupGeneration  = "energy_production"
	GroupPredictions = "energy_predictions"

	GroupVersion = 1
)

var (
	weatherConflictColumns = []string{"timestamp", "section"}
	weatherUpdateColumns   = []string{
		"temperature_2m", "precipitation", "wind_speed_100m", "wind_direction_100m",
		"surface_pressure", "relative_humidity_2m", "cloud_cover", "sunshine_duration",
		"collected_at",
	}

	generationConflictColumns = []string{"timestamp", "section"}
	generationUpdateColumns   = []string{"solar", "wind", "collected_at"}

	predictionConflictColumns = []string{"timestamp", "section", "energy_source", "hours_before_forecast"}
	predictionUpdateColumns   = []string{"predicted_energy", "run_id", "created_at"}
)

// Store is the feature store facade over one database connection.
type Store struct {
	conn *database.Connection
}

// NewStore creates a Store over an open connection.
func NewStore(conn *database.Connection) *Store {
	return &Store{conn: conn}
}

// EnsureGroup registers the feature group (name, version) if it does not exist
// yet and returns its metadata row. Concurrent registration of the same group
// resolves to the existing row.
func (s *Store) EnsureGroup(ctx context.Context, name string, version int, description string) (entity.FeatureGroup, error) {
	group := entity.FeatureGroup{
		Name:        name,
		Version:     version,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := s.conn.ExecuteUpsert(ctx, &group, group.TableName(), []string{"name", "version"}, nil); err != nil {
		return entity.FeatureGroup{}, exception.NewPipelineError(moduleName,
			fmt.Sprintf("failed to register feature group '%s' v%d", name, version), err, false)
	}

	var existing entity.FeatureGroup
	err := s.conn.GormDB().WithContext(ctx).
		Where("name = ? AND version = ?", name, version).
		First(&existing).Error
	if err != nil {
		return entity.FeatureGroup{}, exception.NewPipelineError(moduleName,
			fmt.Sprintf("failed to load feature group '%s' v%d", name, version), err, false)
	}
	return existing, nil
}

// InsertWeather upserts weather rows on (timestamp, section).
func (s *Store) InsertWeather(ctx context.Context, records []entity.WeatherRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	n, err := s.conn.ExecuteUpsert(ctx, &records, entity.WeatherRecord{}.TableName(), weatherConflictColumns, weatherUpdateColumns)
	if err != nil {
		return 0, exception.NewPipelineError(moduleName, "failed to upsert weather rows", err, true)
	}
	logger.Debugf("Upserted %d weather rows.", n)
	return n, nil
}

// InsertGeneration upserts actual-generation rows on (timestamp, section).
func (s *Store) InsertGeneration(ctx context.Context, records []entity.GenerationRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	n, err := s.conn.ExecuteUpsert(ctx, &records, entity.GenerationRecord{}.TableName(), generationConflictColumns, generationUpdateColumns)
	if err != nil {
		return 0, exception.NewPipelineError(moduleName, "failed to upsert generation rows", err, true)
	}
	logger.Debugf("Upserted %d generation rows.", n)
	return n, nil
}

// InsertPredictions upserts prediction rows on
// (timestamp, section, energy_source, hours_before_forecast), so successive
// runs accumulate one row per lead time rather than overwrite each other.
func (s *Store) InsertPredictions(ctx context.Context, records []entity.PredictionRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	n, err := s.conn.ExecuteUpsert(ctx, &records, entity.PredictionRecord{}.TableName(), predictionConflictColumns, predictionUpdateColumns)
	if err != nil {
		return 0, exception.NewPipelineError(moduleName, "failed to upsert prediction rows", err, true)
	}
	logger.Debugf("Upserted %d prediction rows.", n)
	return n, nil
}

// ReadWeather returns the weather rows of one section ascending by timestamp,
// optionally bounded by the inclusive [from, to] window. Zero bounds are
// unbounded.
func (s *Store) ReadWeather(ctx context.Context, section string, from, to time.Time) ([]entity.WeatherRecord, error) {
	var records []entity.WeatherRecord
	q := s.timeWindowQuery(ctx, section, from, to)
	if err := q.Find(&records).Error; err != nil {
		return nil, exception.NewPipelineError(moduleName,
			fmt.Sprintf("failed to read weather rows for section '%s'", section), err, true)
	}
	return records, nil
}

// ReadGeneration returns the actual-generation rows of one section ascending
// by timestamp, optionally bounded by the inclusive [from, to] window.
func (s *Store) ReadGeneration(ctx context.Context, section string, from, to time.Time) ([]entity.GenerationRecord, error) {
	var records []entity.GenerationRecord
	q := s.timeWindowQuery(ctx, section, from, to)
	if err := q.Find(&records).Error; err != nil {
		return nil, exception.NewPipelineError(moduleName,
			fmt.Sprintf("failed to read generation rows for section '%s'", section), err, true)
	}
	return records, nil
}

// ReadPredictions returns the prediction rows of one section and source
// ascending by timestamp. hoursBefore > 0 restricts to that lead time; the
// hindcast view reads hoursBefore == 1 to get the freshest prediction per
// hour.
func (s *Store) ReadPredictions(ctx context.Context, section, source string, hoursBefore int, from, to time.Time) ([]entity.PredictionRecord, error) {
	q := s.timeWindowQuery(ctx, section, from, to).
		Where("energy_source = ?", source)
	if hoursBefore > 0 {
		q = q.Where("hours_before_forecast = ?", hoursBefore)
	}
	var records []entity.PredictionRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, exception.NewPipelineError(moduleName,
			fmt.Sprintf("failed to read prediction rows for section '%s' source '%s'", section, source), err, true)
	}
	return records, nil
}

// LatestWeatherTimestamp returns the newest weather timestamp stored for the
// section, or exception.ErrNoData when the section has no rows yet.
func (s *Store) LatestWeatherTimestamp(ctx context.Context, section string) (time.Time, error) {
	var record entity.WeatherRecord
	err := s.conn.GormDB().WithContext(ctx).
		Where("section = ?", section).
		Order("timestamp DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, exception.NewPipelineError(moduleName,
				fmt.Sprintf("no weather rows stored for section '%s'", section), exception.ErrNoData, false)
		}
		return time.Time{}, exception.NewPipelineError(moduleName,
			fmt.Sprintf("failed to read latest weather timestamp for section '%s'", section), err, true)
	}
	return record.Timestamp.UTC(), nil
}

func (s *Store) timeWindowQuery(ctx context.Context, section string, from, to time.Time) *gorm.DB {
	q := s.conn.GormDB().WithContext(ctx).
		Where("section = ?", section).
		Order("timestamp ASC")
	if !from.IsZero() {
		q = q.Where("timestamp >= ?", from.UTC())
	}
	if !to.IsZero() {
		q = q.Where("timestamp <= ?", to.UTC())
	}
	return q
}
