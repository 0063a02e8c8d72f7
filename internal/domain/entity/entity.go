// Package entity defines the persisted records of the feature store: raw
// weather observations, actual generation outcomes, issued predictions, and
// the feature-group metadata that names and versions each series.
package entity

import "time"

// Energy source identifiers of per-source generation series and models.
const (
	SourceSolar = "solar"
	SourceWind  = "wind"
)

// Sources lists every energy source the pipelines train and predict for.
var Sources = []string{SourceSolar, SourceWind}

// WeatherRecord is one hourly weather observation or forecast for one bidding
// area. The (timestamp, section) pair is the natural key; re-ingesting a
// window overwrites prior rows so corrected provider data wins.
type WeatherRecord struct {
	Timestamp          time.Time `gorm:"column:timestamp;primaryKey"`
	Section            string    `gorm:"column:section;primaryKey"`
	Temperature2M      float64   `gorm:"column:temperature_2m"`
	Precipitation      float64   `gorm:"column:precipitation"`
	WindSpeed100M      float64   `gorm:"column:wind_speed_100m"`
	WindDirection100M  float64   `gorm:"column:wind_direction_100m"`
	SurfacePressure    float64   `gorm:"column:surface_pressure"`
	RelativeHumidity2M float64   `gorm:"column:relative_humidity_2m"`
	CloudCover         float64   `gorm:"column:cloud_cover"`
	SunshineDuration   float64   `gorm:"column:sunshine_duration"`
	CollectedAt        time.Time `gorm:"column:collected_at"`
}

// TableName specifies the table name for WeatherRecord.
func (WeatherRecord) TableName() string {
	return "weather"
}

// GenerationRecord is one hourly actual-generation outcome for one bidding
// area, with one column per energy source.
type GenerationRecord struct {
	Timestamp   time.Time `gorm:"column:timestamp;primaryKey"`
	Section     string    `gorm:"column:section;primaryKey"`
	Solar       float64   `gorm:"column:solar"`
	Wind        float64   `gorm:"column:wind"`
	CollectedAt time.Time `gorm:"column:collected_at"`
}

// TableName specifies the table name for GenerationRecord.
func (GenerationRecord) TableName() string {
	return "energy_production"
}

// PredictionRecord is one issued prediction. HoursBeforeForecast records the
// lead time: 1 for the first future hour of a run, counting up. A timestamp
// accumulates one row per lead time across successive runs, so the freshest
// prediction for any hour is the HoursBeforeForecast == 1 row.
type PredictionRecord struct {
	Timestamp           time.Time `gorm:"column:timestamp;primaryKey"`
	Section             string    `gorm:"column:section;primaryKey"`
	EnergySource        string    `gorm:"column:energy_source;primaryKey"`
	HoursBeforeForecast int       `gorm:"column:hours_before_forecast;primaryKey"`
	PredictedEnergy     float64   `gorm:"column:predicted_energy"`
	RunID               string    `gorm:"column:run_id"`
	CreatedAt           time.Time `gorm:"column:created_at"`
}

// TableName specifies the table name for PredictionRecord.
func (PredictionRecord) TableName() string {
	return "energy_predictions"
}

// FeatureGroup is the metadata row naming one versioned series. Get-or-create
// on (name, version) makes pipeline startup idempotent.
type FeatureGroup struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Name        string    `gorm:"column:name;uniqueIndex:idx_feature_group_name_version"`
	Version     int       `gorm:"column:version;uniqueIndex:idx_feature_group_name_version"`
	Description string    `gorm:"column:description"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

// TableName specifies the table name for FeatureGroup.
func (FeatureGroup) TableName() string {
	return "feature_groups"
}
