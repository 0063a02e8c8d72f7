// Package feature implements the deterministic transformation of raw
// timestamped weather records into model-ready feature vectors. The package is
// pure: no network or storage access, and output row order and count always
// match the input.
package feature

// Raw weather field names as requested from the weather provider and stored in
// the weather feature group.
const (
	FieldTemperature      = "temperature_2m"
	FieldPrecipitation    = "precipitation"
	FieldWindSpeed        = "wind_speed_100m"
	FieldWindDirection    = "wind_direction_100m"
	FieldSurfacePressure  = "surface_pressure"
	FieldRelativeHumidity = "relative_humidity_2m"
	FieldCloudCover       = "cloud_cover"
	FieldSunshineDuration = "sunshine_duration"
)

// Derived column names. Calendar scheme:
const (
	ColHour      = "hour"
	ColDayOfWeek = "day_of_week"
	ColMonth     = "month"
	ColDayOfYear = "day_of_year"
)

// Derived column names. Cyclical+physical scheme:
const (
	ColHourSin          = "hour_sin"
	ColHourCos          = "hour_cos"
	ColDayOfWeekSin     = "day_of_week_sin"
	ColDayOfWeekCos     = "day_of_week_cos"
	ColDayOfYearSin     = "day_of_year_sin"
	ColDayOfYearCos     = "day_of_year_cos"
	ColWindDirSin       = "wind_dir_sin"
	ColWindDirCos       = "wind_dir_cos"
	ColWindSpeedCubed   = "wind_speed_cubed"
	ColWindPowerDensity = "wind_power_density"
	ColSunElevation     = "sun_elevation"
	ColSunAzimuth       = "sun_azimuth"
)

// Scheme selects the derived feature family.
type Scheme string

const (
	// SchemeCalendar derives integer calendar columns (hour, day_of_week,
	// month, day_of_year). Kept for models trained by earlier pipeline
	// versions.
	SchemeCalendar Scheme = "calendar"
	// SchemeCyclical derives sine/cosine time encodings plus physical wind and
	// solar-geometry columns. Preferred for new models.
	SchemeCyclical Scheme = "cyclical"
)

// DefaultFields is the default raw weather field set requested from the
// provider. The exact subset is configuration, not a fixed schema.
var DefaultFields = []string{
	FieldTemperature,
	FieldPrecipitation,
	FieldWindSpeed,
	FieldWindDirection,
	FieldSurfacePressure,
	FieldRelativeHumidity,
	FieldCloudCover,
	FieldSunshineDuration,
}

// Config declares the transform inputs for one area: the raw field set and the
// derivation scheme, plus the coordinates used for solar geometry. Both the
// training and the inference pipeline receive the same Config instance, which
// is what guarantees train/inference schema parity.
type Config struct {
	Fields    []string `yaml:"fields"`
	Scheme    Scheme   `yaml:"scheme"`
	Latitude  float64  `yaml:"latitude"`
	Longitude float64  `yaml:"longitude"`
}

// ModelFeatures returns the exact, ordered feature-column list a model trained
// under this Config consumes. Training and inference must both derive their
// column selection from this single function; a drift between the two is a
// silent-corruption bug class this accessor exists to prevent.
func (c Config) ModelFeatures() []string {
	var out []string
	for _, f := range c.Fields {
		// The raw compass direction is circular and not linearly comparable;
		// under the cyclical scheme it is replaced by its sin/cos pair.
		if c.Scheme == SchemeCyclical && f == FieldWindDirection {
			continue
		}
		out = append(out, f)
	}
	switch c.Scheme {
	case SchemeCyclical:
		out = append(out,
			ColHourSin, ColHourCos,
			ColDayOfWeekSin, ColDayOfWeekCos,
			ColDayOfYearSin, ColDayOfYearCos,
			ColWindDirSin, ColWindDirCos,
			ColWindSpeedCubed, ColWindPowerDensity,
			ColSunElevation, ColSunAzimuth,
		)
	default:
		out = append(out, ColHour, ColDayOfWeek, ColMonth, ColDayOfYear)
	}
	return out
}
