package pipeline

import (
	"context"
	"time"

	"github.com/tigerroll/gridcast/internal/config"
	"github.com/tigerroll/gridcast/internal/domain/entity"
	"github.com/tigerroll/gridcast/internal/featurestore"
	"github.com/tigerroll/gridcast/internal/frame"
	"github.com/tigerroll/gridcast/internal/support/exception"
	"github.com/tigerroll/gridcast/internal/support/logger"
)

// recentArchiveDays is the trailing archive window a scheduled ingestion
// re-fetches. Providers revise recent hours; upserts let the corrections win.
const recentArchiveDays = 2

// RunIngestion is the scheduled ingestion pipeline: per area it fetches the
// recent weather archive, the weather forecast and the actual generation
// outcomes, and upserts them into the feature store. Areas fail
// independently.
func (r *Runner) RunIngestion(ctx context.Context) *Result {
	result := newResult("ingestion")
	ctx, finish := r.startRun(ctx, result)
	defer finish()

	if err := r.ensureGroups(ctx); err != nil {
		result.Record(Outcome{Section: "*", Err: err})
		return result
	}

	now := time.Now().UTC().Truncate(time.Hour)
	for _, area := range r.cfg.Areas {
		areaCtx, span := r.startArea(ctx, "ingestion", area.Code)
		rows, err := r.ingestArea(areaCtx, area, now, recentArchiveDays)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		result.Record(Outcome{Section: area.Code, Rows: rows, Err: err})
	}
	return result
}

// ingestArea ingests one area: archiveDays of historical weather, the
// configured forecast span, and the generation actuals of the same window.
// It returns the number of upserted rows.
func (r *Runner) ingestArea(ctx context.Context, area config.AreaConfig, now time.Time, archiveDays int) (int64, error) {
	var total int64
	windowStart := now.AddDate(0, 0, -archiveDays)

	archive, err := r.weather.FetchArchive(ctx, area.Latitude, area.Longitude, r.cfg.Feature.Fields, windowStart, now)
	if err != nil && !exception.IsNoData(err) {
		r.recorder.RecordProviderFailure("openmeteo")
		return total, err
	}
	forecast, err := r.weather.FetchForecast(ctx, area.Latitude, area.Longitude, r.cfg.Feature.Fields, r.cfg.Pipeline.ForecastDays)
	if err != nil && !exception.IsNoData(err) {
		r.recorder.RecordProviderFailure("openmeteo")
		return total, err
	}

	n, err := r.upsertWeather(ctx, area.Code, archive, forecast)
	if err != nil {
		return total, err
	}
	total += n

	generation, err := r.grid.FetchGeneration(ctx, area.Domain, windowStart, now)
	if err != nil {
		if exception.IsNoData(err) {
			logger.Infof("Ingestion: no generation data for %s in window, skipping actuals.", area.Code)
			return total, nil
		}
		r.recorder.RecordProviderFailure("entsoe")
		return total, err
	}
	n, err = r.upsertGeneration(ctx, area.Code, generation)
	if err != nil {
		return total, err
	}
	total += n
	return total, nil
}

// upsertWeather merges the archive and forecast frames keep-last, so archive
// measurements win over forecasts of the same hour, and upserts the result.
func (r *Runner) upsertWeather(ctx context.Context, section string, archive, forecast *frame.Frame) (int64, error) {
	var combined *frame.Frame
	switch {
	case archive == nil && forecast == nil:
		return 0, nil
	case archive == nil:
		combined = forecast
	case forecast == nil:
		combined = archive
	default:
		// Forecast rows first so the keep-last dedup prefers archive rows for
		// overlapping hours.
		times := append(append([]time.Time(nil), forecast.Times()...), archive.Times()...)
		combined = frame.New(times)
		for _, col := range forecast.Columns() {
			fv, _ := forecast.Column(col)
			av, ok := archive.Column(col)
			if !ok {
				return 0, exception.NewPipelineError(moduleName,
					"archive and forecast series disagree on field '"+col+"'", exception.ErrMissingField, false)
			}
			combined.SetColumn(col, append(append([]float64(nil), fv...), av...))
		}
	}
	combined = frame.SortDedup(combined)

	records, err := entity.WeatherRecordsFromFrame(combined, r.cfg.Feature.Fields, section, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	n, err := r.store.InsertWeather(ctx, records)
	if err != nil {
		return 0, err
	}
	r.recorder.RecordRowsIngested(featurestore.GroupWeather, section, n)
	return n, nil
}

func (r *Runner) upsertGeneration(ctx context.Context, section string, generation *frame.Frame) (int64, error) {
	records, err := entity.GenerationRecordsFromFrame(frame.SortDedup(generation), section, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	n, err := r.store.InsertGeneration(ctx, records)
	if err != nil {
		return 0, err
	}
	r.recorder.RecordRowsIngested(featurestore.GroupGeneration, section, n)
	return n, nil
}
