package pipeline

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/tigerroll/gridcast/internal/chart"
	"github.com/tigerroll/gridcast/internal/config"
	"github.com/tigerroll/gridcast/internal/domain/entity"
	"github.com/tigerroll/gridcast/internal/featurestore"
	"github.com/tigerroll/gridcast/internal/frame"
	"github.com/tigerroll/gridcast/internal/hindcast"
	"github.com/tigerroll/gridcast/internal/regress"
	"github.com/tigerroll/gridcast/internal/support/exception"
	"github.com/tigerroll/gridcast/internal/support/logger"
)

// RunInference is the batch inference pipeline: per area it derives features
// from the stored weather forecast, predicts the coming hours with each
// source's newest registered model, upserts the predictions and exports them
// as parquet. Sources without a model are skipped, not failed.
func (r *Runner) RunInference(ctx context.Context) *Result {
	result := newResult("inference")
	ctx, finish := r.startRun(ctx, result)
	defer finish()

	if err := r.ensureGroups(ctx); err != nil {
		result.Record(Outcome{Section: "*", Err: err})
		return result
	}

	exporter, err := featurestore.NewExporter(r.cfg.Export, r.backend, &entity.PredictionExport{},
		func(p entity.PredictionExport) string { return featurestore.DailyPartition(p.Timestamp) })
	if err != nil {
		result.Record(Outcome{Section: "*", Err: err})
		return result
	}

	now := time.Now().UTC().Truncate(time.Hour)
	horizonEnd := now.Add(time.Duration(r.cfg.Pipeline.MaxHorizonHours) * time.Hour)

	for _, area := range r.cfg.Areas {
		areaCtx, span := r.startArea(ctx, "inference", area.Code)

		// Lead times start at one hour: the issue hour itself is already
		// observed, not forecast.
		features, err := r.featuresFor(areaCtx, area, now.Add(time.Hour), horizonEnd)
		if err != nil {
			span.RecordError(err)
			span.End()
			result.Record(Outcome{Section: area.Code, Err: err})
			continue
		}

		for _, source := range entity.Sources {
			n, err := r.inferSource(areaCtx, area, source, features, now, result.RunID, exporter)
			if err != nil && exception.IsModelNotFound(err) {
				logger.Infof("Inference: no model registered for %s/%s yet, skipping.", area.Code, source)
				continue
			}
			result.Record(Outcome{Section: area.Code, Source: source, Rows: n, Err: err})
			if err != nil {
				span.RecordError(err)
			}
		}
		span.End()
	}

	if err := exporter.Flush(ctx); err != nil {
		result.Record(Outcome{Section: "*", Err: err})
	}
	return result
}

// inferSource predicts the forecast horizon of one (area, source) pair,
// upserts the prediction rows, buffers them for export and uploads the
// forecast chart.
func (r *Runner) inferSource(
	ctx context.Context,
	area config.AreaConfig,
	source string,
	features *frame.Frame,
	issuedAt time.Time,
	runID string,
	exporter *featurestore.Exporter[entity.PredictionExport],
) (int64, error) {
	model, err := r.loadModel(ctx, source, area.Code)
	if err != nil {
		return 0, err
	}

	for _, col := range model.FeatureNames() {
		if !features.HasColumn(col) {
			return 0, exception.NewPipelineError(moduleName,
				"forecast features lack model column '"+col+"'", exception.ErrFeatureSchemaMismatch, false)
		}
	}
	ordered, err := features.Select(model.FeatureNames()...)
	if err != nil {
		return 0, exception.NewPipelineError(moduleName, "failed to order forecast features", err, false)
	}
	if err := regress.CheckSchema(model, ordered.Columns()); err != nil {
		return 0, err
	}
	X, err := ordered.Matrix(model.FeatureNames())
	if err != nil {
		return 0, exception.NewPipelineError(moduleName, "failed to build inference matrix", err, false)
	}
	predicted, err := model.Predict(X)
	if err != nil {
		return 0, exception.NewPipelineError(moduleName, "prediction failed", err, false)
	}

	createdAt := time.Now().UTC()
	records := make([]entity.PredictionRecord, len(predicted))
	for i := range predicted {
		ts := ordered.Time(i)
		records[i] = entity.PredictionRecord{
			Timestamp:           ts,
			Section:             area.Code,
			EnergySource:        source,
			HoursBeforeForecast: int(ts.Sub(issuedAt) / time.Hour),
			PredictedEnergy:     predicted[i],
			RunID:               runID,
			CreatedAt:           createdAt,
		}
	}

	n, err := r.store.InsertPredictions(ctx, records)
	if err != nil {
		return 0, err
	}
	r.recorder.RecordRowsIngested(featurestore.GroupPredictions, area.Code, n)
	r.recorder.RecordPredictions(area.Code, source, len(records))

	exports := make([]entity.PredictionExport, len(records))
	for i, rec := range records {
		exports[i] = rec.ToExport()
	}
	exporter.Add(exports)

	if err := r.uploadForecastChart(ctx, area.Code, source, ordered.Times(), predicted); err != nil {
		// Chart upload failures do not invalidate the stored predictions.
		logger.Warnf("Inference: failed to publish forecast chart for %s/%s: %v", area.Code, source, err)
	}
	if err := r.publishHindcast(ctx, area, source, model, issuedAt, runID); err != nil {
		logger.Warnf("Inference: failed to publish hindcast for %s/%s: %v", area.Code, source, err)
	}
	return n, nil
}

// publishHindcast renders the forecast-vs-actual view of one (area, source)
// pair from the monitoring history. When no lead-time-1 predictions exist yet
// it cold-starts the history with the reconciler before rendering.
func (r *Runner) publishHindcast(ctx context.Context, area config.AreaConfig, source string, model *regress.GBDT, now time.Time, runID string) error {
	actuals, err := r.actualsFor(ctx, area, time.Time{}, now)
	if err != nil {
		return err
	}
	rows, err := r.hindcastRows(ctx, area, source, actuals, now)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		features, err := r.featuresFor(ctx, area, time.Time{}, now)
		if err != nil {
			return err
		}
		reconciler := hindcast.NewReconciler()
		if r.cfg.Pipeline.HindcastWindow > 0 {
			reconciler.Window = r.cfg.Pipeline.HindcastWindow
		}
		rows, err = reconciler.Reconcile(features, actuals, model, source)
		if err != nil {
			return err
		}
		if err := r.storeHindcast(ctx, area.Code, source, rows, runID); err != nil {
			return err
		}
	}
	if len(rows) == 0 {
		logger.Infof("Inference: no hindcast rows for %s/%s yet.", area.Code, source)
		return nil
	}

	dir, err := os.MkdirTemp("", "gridcast-chart-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	local := filepath.Join(dir, chart.HindcastFileName(source))
	if err := chart.SaveHindcast(local, source, rows); err != nil {
		return err
	}
	f, err := os.Open(local)
	if err != nil {
		return err
	}
	defer f.Close()
	return r.backend.Upload(ctx, path.Join("charts", area.Code, chart.HindcastFileName(source)), f, "image/png")
}

// hindcastRows joins the stored lead-time-1 predictions with the actual
// outcomes of the same hours.
func (r *Runner) hindcastRows(ctx context.Context, area config.AreaConfig, source string, actuals *frame.Frame, now time.Time) ([]hindcast.Row, error) {
	records, err := r.store.ReadPredictions(ctx, area.Code, source, 1, time.Time{}, now)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 || actuals == nil || !actuals.HasColumn(source) {
		return nil, nil
	}
	predicted := entity.PredictionFrame(records)
	series, err := actuals.Select(source)
	if err != nil {
		return nil, err
	}
	joined := frame.InnerJoin(predicted, series)
	rows := make([]hindcast.Row, 0, joined.Len())
	for i := 0; i < joined.Len(); i++ {
		p, _ := joined.Value(hindcast.ColPredictedEnergy, i)
		a, _ := joined.Value(source, i)
		rows = append(rows, hindcast.Row{Timestamp: joined.Time(i), Predicted: p, Actual: a})
	}
	return rows, nil
}

// storeHindcast persists reconciler output as lead-time-1 monitoring rows.
func (r *Runner) storeHindcast(ctx context.Context, section, source string, rows []hindcast.Row, runID string) error {
	if len(rows) == 0 {
		return nil
	}
	createdAt := time.Now().UTC()
	records := make([]entity.PredictionRecord, len(rows))
	for i, row := range rows {
		records[i] = entity.PredictionRecord{
			Timestamp:           row.Timestamp,
			Section:             section,
			EnergySource:        source,
			HoursBeforeForecast: 1,
			PredictedEnergy:     row.Predicted,
			RunID:               runID,
			CreatedAt:           createdAt,
		}
	}
	n, err := r.store.InsertPredictions(ctx, records)
	if err != nil {
		return err
	}
	r.recorder.RecordRowsIngested(featurestore.GroupPredictions, section, n)
	return nil
}

// uploadForecastChart renders the forecast series and publishes it to the
// storage backend under charts/<section>/.
func (r *Runner) uploadForecastChart(ctx context.Context, section, source string, times []time.Time, values []float64) error {
	dir, err := os.MkdirTemp("", "gridcast-chart-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	local := filepath.Join(dir, source+"_forecast.png")
	if err := chart.SaveForecast(local, source, times, values); err != nil {
		return err
	}
	f, err := os.Open(local)
	if err != nil {
		return err
	}
	defer f.Close()

	objectName := path.Join("charts", section, source+"_forecast.png")
	return r.backend.Upload(ctx, objectName, f, "image/png")
}
