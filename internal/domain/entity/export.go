package entity

import "time"

// WeatherExport represents one weather row for export.
// It includes parquet tags for serialization to Parquet format.
type WeatherExport struct {
	Timestamp          int64   `parquet:"name=timestamp,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
	Section            string  `parquet:"name=section,type=BYTE_ARRAY,convertedtype=UTF8"`
	Temperature2M      float64 `parquet:"name=temperature_2m,type=DOUBLE"`
	Precipitation      float64 `parquet:"name=precipitation,type=DOUBLE"`
	WindSpeed100M      float64 `parquet:"name=wind_speed_100m,type=DOUBLE"`
	WindDirection100M  float64 `parquet:"name=wind_direction_100m,type=DOUBLE"`
	SurfacePressure    float64 `parquet:"name=surface_pressure,type=DOUBLE"`
	RelativeHumidity2M float64 `parquet:"name=relative_humidity_2m,type=DOUBLE"`
	CloudCover         float64 `parquet:"name=cloud_cover,type=DOUBLE"`
	SunshineDuration   float64 `parquet:"name=sunshine_duration,type=DOUBLE"`
	CollectedAt        int64   `parquet:"name=collected_at,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
}

// GenerationExport represents one actual-generation row for export.
type GenerationExport struct {
	Timestamp   int64   `parquet:"name=timestamp,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
	Section     string  `parquet:"name=section,type=BYTE_ARRAY,convertedtype=UTF8"`
	Solar       float64 `parquet:"name=solar,type=DOUBLE"`
	Wind        float64 `parquet:"name=wind,type=DOUBLE"`
	CollectedAt int64   `parquet:"name=collected_at,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
}

// PredictionExport represents one issued prediction for export.
type PredictionExport struct {
	Timestamp           int64   `parquet:"name=timestamp,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
	Section             string  `parquet:"name=section,type=BYTE_ARRAY,convertedtype=UTF8"`
	EnergySource        string  `parquet:"name=energy_source,type=BYTE_ARRAY,convertedtype=UTF8"`
	HoursBeforeForecast int32   `parquet:"name=hours_before_forecast,type=INT32"`
	PredictedEnergy     float64 `parquet:"name=predicted_energy,type=DOUBLE"`
	RunID               string  `parquet:"name=run_id,type=BYTE_ARRAY,convertedtype=UTF8"`
	CreatedAt           int64   `parquet:"name=created_at,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
}

// ToExport maps a WeatherRecord to its parquet export twin.
func (r WeatherRecord) ToExport() WeatherExport {
	return WeatherExport{
		Timestamp:          r.Timestamp.UTC().UnixMilli(),
		Section:            r.Section,
		Temperature2M:      r.Temperature2M,
		Precipitation:      r.Precipitation,
		WindSpeed100M:      r.WindSpeed100M,
		WindDirection100M:  r.WindDirection100M,
		SurfacePressure:    r.SurfacePressure,
		RelativeHumidity2M: r.RelativeHumidity2M,
		CloudCover:         r.CloudCover,
		SunshineDuration:   r.SunshineDuration,
		CollectedAt:        exportMillis(r.CollectedAt),
	}
}

// ToExport maps a GenerationRecord to its parquet export twin.
func (r GenerationRecord) ToExport() GenerationExport {
	return GenerationExport{
		Timestamp:   r.Timestamp.UTC().UnixMilli(),
		Section:     r.Section,
		Solar:       r.Solar,
		Wind:        r.Wind,
		CollectedAt: exportMillis(r.CollectedAt),
	}
}

// ToExport maps a PredictionRecord to its parquet export twin.
func (r PredictionRecord) ToExport() PredictionExport {
	return PredictionExport{
		Timestamp:           r.Timestamp.UTC().UnixMilli(),
		Section:             r.Section,
		EnergySource:        r.EnergySource,
		HoursBeforeForecast: int32(r.HoursBeforeForecast),
		PredictedEnergy:     r.PredictedEnergy,
		RunID:               r.RunID,
		CreatedAt:           exportMillis(r.CreatedAt),
	}
}

func exportMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}
