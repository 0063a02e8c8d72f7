package entity

import (
	"time"

	"github.com/tigerroll/gridcast/internal/feature"
	"github.com/tigerroll/gridcast/internal/frame"
	"github.com/tigerroll/gridcast/internal/hindcast"
	"github.com/tigerroll/gridcast/internal/support/exception"
)

const moduleName = "entity"

// WeatherFrame converts weather rows of one section to a column-oriented
// frame keyed by the raw provider field names. Rows keep their given order;
// callers sort and deduplicate at the frame level.
func WeatherFrame(records []WeatherRecord) *frame.Frame {
	n := len(records)
	times := make([]time.Time, n)
	temp := make([]float64, n)
	precip := make([]float64, n)
	windSpeed := make([]float64, n)
	windDir := make([]float64, n)
	pressure := make([]float64, n)
	humidity := make([]float64, n)
	cloud := make([]float64, n)
	sunshine := make([]float64, n)
	for i, r := range records {
		times[i] = r.Timestamp.UTC()
		temp[i] = r.Temperature2M
		precip[i] = r.Precipitation
		windSpeed[i] = r.WindSpeed100M
		windDir[i] = r.WindDirection100M
		pressure[i] = r.SurfacePressure
		humidity[i] = r.RelativeHumidity2M
		cloud[i] = r.CloudCover
		sunshine[i] = r.SunshineDuration
	}
	f := frame.New(times)
	f.SetColumn(feature.FieldTemperature, temp)
	f.SetColumn(feature.FieldPrecipitation, precip)
	f.SetColumn(feature.FieldWindSpeed, windSpeed)
	f.SetColumn(feature.FieldWindDirection, windDir)
	f.SetColumn(feature.FieldSurfacePressure, pressure)
	f.SetColumn(feature.FieldRelativeHumidity, humidity)
	f.SetColumn(feature.FieldCloudCover, cloud)
	f.SetColumn(feature.FieldSunshineDuration, sunshine)
	return f
}

// WeatherRecordsFromFrame converts a raw weather frame back to rows of one
// section. fields names the configured provider fields; each must be present
// as a column, and fields left unconfigured store their zero value.
func WeatherRecordsFromFrame(f *frame.Frame, fields []string, section string, collectedAt time.Time) ([]WeatherRecord, error) {
	cols := make(map[string][]float64, len(fields))
	for _, field := range fields {
		if !knownWeatherField(field) {
			return nil, exception.NewPipelineError(
				moduleName,
				"unknown weather field '"+field+"'",
				exception.ErrMissingField,
				false,
			)
		}
		vals, ok := f.Column(field)
		if !ok {
			return nil, exception.NewPipelineError(
				moduleName,
				"weather frame is missing field '"+field+"'",
				exception.ErrMissingField,
				false,
			)
		}
		cols[field] = vals
	}
	records := make([]WeatherRecord, f.Len())
	for i := range records {
		rec := WeatherRecord{
			Timestamp:   f.Time(i).UTC(),
			Section:     section,
			CollectedAt: collectedAt.UTC(),
		}
		for field, vals := range cols {
			setWeatherField(&rec, field, vals[i])
		}
		records[i] = rec
	}
	return records, nil
}

func knownWeatherField(field string) bool {
	for _, known := range feature.DefaultFields {
		if field == known {
			return true
		}
	}
	return false
}

func setWeatherField(r *WeatherRecord, field string, v float64) {
	switch field {
	case feature.FieldTemperature:
		r.Temperature2M = v
	case feature.FieldPrecipitation:
		r.Precipitation = v
	case feature.FieldWindSpeed:
		r.WindSpeed100M = v
	case feature.FieldWindDirection:
		r.WindDirection100M = v
	case feature.FieldSurfacePressure:
		r.SurfacePressure = v
	case feature.FieldRelativeHumidity:
		r.RelativeHumidity2M = v
	case feature.FieldCloudCover:
		r.CloudCover = v
	case feature.FieldSunshineDuration:
		r.SunshineDuration = v
	}
}

// GenerationFrame converts actual-generation rows of one section to a frame
// with one column per energy source.
func GenerationFrame(records []GenerationRecord) *frame.Frame {
	n := len(records)
	times := make([]time.Time, n)
	solar := make([]float64, n)
	wind := make([]float64, n)
	for i, r := range records {
		times[i] = r.Timestamp.UTC()
		solar[i] = r.Solar
		wind[i] = r.Wind
	}
	f := frame.New(times)
	f.SetColumn(SourceSolar, solar)
	f.SetColumn(SourceWind, wind)
	return f
}

// GenerationRecordsFromFrame converts a generation frame back to rows of one
// section. Both source columns must be present.
func GenerationRecordsFromFrame(f *frame.Frame, section string, collectedAt time.Time) ([]GenerationRecord, error) {
	solar, ok := f.Column(SourceSolar)
	if !ok {
		return nil, exception.NewPipelineError(moduleName, "generation frame is missing column 'solar'", exception.ErrMissingField, false)
	}
	wind, ok := f.Column(SourceWind)
	if !ok {
		return nil, exception.NewPipelineError(moduleName, "generation frame is missing column 'wind'", exception.ErrMissingField, false)
	}
	records := make([]GenerationRecord, f.Len())
	for i := range records {
		records[i] = GenerationRecord{
			Timestamp:   f.Time(i).UTC(),
			Section:     section,
			Solar:       solar[i],
			Wind:        wind[i],
			CollectedAt: collectedAt.UTC(),
		}
	}
	return records, nil
}

// PredictionFrame converts prediction rows, already filtered to one section
// and source, to a frame carrying the predicted value and its lead time.
func PredictionFrame(records []PredictionRecord) *frame.Frame {
	n := len(records)
	times := make([]time.Time, n)
	predicted := make([]float64, n)
	horizon := make([]float64, n)
	for i, r := range records {
		times[i] = r.Timestamp.UTC()
		predicted[i] = r.PredictedEnergy
		horizon[i] = float64(r.HoursBeforeForecast)
	}
	f := frame.New(times)
	f.SetColumn(hindcast.ColPredictedEnergy, predicted)
	f.SetColumn(hindcast.ColHoursBeforeForecast, horizon)
	return f
}
