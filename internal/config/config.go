// Package config defines the application settings and their loading order:
// compiled-in defaults, then the embedded YAML document, then environment
// variables (optionally via a .env file).
package config

import (
	"fmt"
	"strings"

	"github.com/tigerroll/gridcast/internal/adapter/database"
	"github.com/tigerroll/gridcast/internal/adapter/storage"
	"github.com/tigerroll/gridcast/internal/feature"
	"github.com/tigerroll/gridcast/internal/featurestore"
	"github.com/tigerroll/gridcast/internal/provider/entsoe"
	"github.com/tigerroll/gridcast/internal/provider/openmeteo"
	"github.com/tigerroll/gridcast/internal/regress"
	"github.com/tigerroll/gridcast/internal/support/configbinder"
	"github.com/tigerroll/gridcast/internal/telemetry"
)

// EnvPrefix is the prefix of overriding environment variables, e.g.
// GRIDCAST_ENTSOE_API_KEY overrides entsoe.api_key.
const EnvPrefix = "GRIDCAST_"

// AreaConfig identifies one bidding area: its section code, the ENTSO-E EIC
// domain of the zone, and the representative coordinates used for weather and
// solar geometry.
type AreaConfig struct {
	Code      string  `yaml:"code"`
	Domain    string  `yaml:"domain"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	// TrainingParams optionally overrides individual training hyperparameters
	// for this area, e.g. {num_trees: 200}. Unset keys keep the global value.
	TrainingParams map[string]interface{} `yaml:"training_params"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// FeatureConfig holds the feature derivation settings shared by all areas.
type FeatureConfig struct {
	Scheme string   `yaml:"scheme"`
	Fields []string `yaml:"fields"`
}

// TrainingConfig holds model training settings.
type TrainingConfig struct {
	Params regress.TrainConfig `yaml:"params"`
	// TestFraction is the trailing fraction of the series held out for
	// evaluation. The holdout is chronological, never shuffled.
	TestFraction float64 `yaml:"test_fraction"`
	// BackfillDays is the archive window ingested before training.
	BackfillDays int `yaml:"backfill_days"`
}

// PipelineConfig holds scheduling-related pipeline settings.
type PipelineConfig struct {
	// ForecastDays is the weather forecast span requested per inference run.
	ForecastDays int `yaml:"forecast_days"`
	// MaxHorizonHours caps how many future hours one run predicts.
	MaxHorizonHours int `yaml:"max_horizon_hours"`
	// HindcastWindow is the trailing feature-row window a hindcast backfill
	// covers.
	HindcastWindow int `yaml:"hindcast_window"`
}

// DashboardConfig holds the dashboard server settings.
type DashboardConfig struct {
	Addr string `yaml:"addr"`
}

// Settings is the root configuration document.
type Settings struct {
	Logging   LoggingConfig               `yaml:"logging"`
	Database  database.Config             `yaml:"database"`
	Storage   storage.Config              `yaml:"storage"`
	OpenMeteo openmeteo.Config            `yaml:"open_meteo"`
	Entsoe    entsoe.Config               `yaml:"entsoe"`
	Feature   FeatureConfig               `yaml:"feature"`
	Training  TrainingConfig              `yaml:"training"`
	Pipeline  PipelineConfig              `yaml:"pipeline"`
	Export    featurestore.ExporterConfig `yaml:"export"`
	Dashboard DashboardConfig             `yaml:"dashboard"`
	Telemetry telemetry.Config            `yaml:"telemetry"`
	Areas     []AreaConfig                `yaml:"areas"`
}

// NewSettings returns the compiled-in defaults: the four Swedish bidding
// areas, a local sqlite feature store, and local artifact storage.
func NewSettings() *Settings {
	return &Settings{
		Logging: LoggingConfig{Level: "info"},
		Database: database.Config{
			Type:     "sqlite",
			Database: "gridcast.db",
		},
		Storage: storage.Config{
			Type:    storage.TypeLocal,
			BaseDir: "artifacts",
		},
		OpenMeteo: openmeteo.DefaultConfig(),
		Entsoe:    entsoe.DefaultConfig(),
		Feature: FeatureConfig{
			Scheme: string(feature.SchemeCyclical),
			Fields: append([]string(nil), feature.DefaultFields...),
		},
		Training: TrainingConfig{
			Params:       regress.DefaultTrainConfig(),
			TestFraction: 0.2,
			BackfillDays: 90,
		},
		Pipeline: PipelineConfig{
			ForecastDays:    3,
			MaxHorizonHours: 24,
			HindcastWindow:  30,
		},
		Export: featurestore.ExporterConfig{
			OutputBaseDir:   "exports",
			CompressionType: "SNAPPY",
		},
		Dashboard: DashboardConfig{Addr: ":8080"},
		Telemetry: telemetry.Config{ServiceName: "gridcast"},
		Areas: []AreaConfig{
			{Code: "SE_1", Domain: "10Y1001A1001A44P", Latitude: 65.5848, Longitude: 22.1547},
			{Code: "SE_2", Domain: "10Y1001A1001A45N", Latitude: 62.3908, Longitude: 17.3069},
			{Code: "SE_3", Domain: "10Y1001A1001A46L", Latitude: 59.3293, Longitude: 18.0686},
			{Code: "SE_4", Domain: "10Y1001A1001A47J", Latitude: 55.6050, Longitude: 13.0038},
		},
	}
}

// Validate checks settings every command depends on. Commands that reach the
// generation provider additionally require the ENTSO-E API key via
// ValidateEntsoe.
func (s *Settings) Validate() error {
	if s.Database.Type == "" {
		return fmt.Errorf("database.type must be configured")
	}
	if s.Storage.Type == "" {
		return fmt.Errorf("storage.type must be configured")
	}
	if len(s.Areas) == 0 {
		return fmt.Errorf("at least one area must be configured")
	}
	for _, area := range s.Areas {
		if area.Code == "" {
			return fmt.Errorf("every area requires a code")
		}
		if area.Latitude == 0 && area.Longitude == 0 {
			return fmt.Errorf("area '%s' requires coordinates", area.Code)
		}
	}
	switch feature.Scheme(s.Feature.Scheme) {
	case feature.SchemeCalendar, feature.SchemeCyclical:
	default:
		return fmt.Errorf("feature.scheme must be 'calendar' or 'cyclical', got '%s'", s.Feature.Scheme)
	}
	if s.Training.TestFraction < 0 || s.Training.TestFraction >= 1 {
		return fmt.Errorf("training.test_fraction must be in [0, 1), got %g", s.Training.TestFraction)
	}
	return nil
}

// ValidateEntsoe checks the settings ingestion commands need on top of
// Validate: the ENTSO-E API key and a domain per area.
func (s *Settings) ValidateEntsoe() error {
	if s.Entsoe.APIKey == "" {
		return fmt.Errorf("entsoe.api_key must be configured (env %sENTSOE_API_KEY)", EnvPrefix)
	}
	for _, area := range s.Areas {
		if area.Domain == "" {
			return fmt.Errorf("area '%s' requires an ENTSO-E domain code", area.Code)
		}
	}
	return nil
}

// Area resolves an area by its section code, case-insensitively.
func (s *Settings) Area(code string) (AreaConfig, error) {
	for _, area := range s.Areas {
		if strings.EqualFold(area.Code, code) {
			return area, nil
		}
	}
	return AreaConfig{}, fmt.Errorf("unknown area code '%s'", code)
}

// TrainParamsFor resolves the training hyperparameters of one area: the
// global params with the area's overrides bound on top.
func (s *Settings) TrainParamsFor(area AreaConfig) (regress.TrainConfig, error) {
	params := s.Training.Params
	if err := configbinder.BindProperties(area.TrainingParams, &params); err != nil {
		return regress.TrainConfig{}, fmt.Errorf("invalid training_params for area '%s': %w", area.Code, err)
	}
	return params, nil
}

// FeatureConfigFor builds the per-area feature configuration shared by
// training and inference.
func (s *Settings) FeatureConfigFor(area AreaConfig) feature.Config {
	return feature.Config{
		Fields:    append([]string(nil), s.Feature.Fields...),
		Scheme:    feature.Scheme(s.Feature.Scheme),
		Latitude:  area.Latitude,
		Longitude: area.Longitude,
	}
}
