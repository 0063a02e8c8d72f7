package pipeline

import (
	"context"
	"time"

	"github.com/tigerroll/gridcast/internal/config"
	"github.com/tigerroll/gridcast/internal/domain/entity"
	"github.com/tigerroll/gridcast/internal/featurestore"
	"github.com/tigerroll/gridcast/internal/hindcast"
	"github.com/tigerroll/gridcast/internal/support/exception"
	"github.com/tigerroll/gridcast/internal/support/logger"
)

// RunBackfill is the historical backfill pipeline: per area it ingests the
// full training archive window, then regenerates hindcast predictions over
// the trailing feature window for every source that has a registered model.
// Sources without a model are skipped, not failed; a fresh deployment
// backfills data first and models later.
func (r *Runner) RunBackfill(ctx context.Context) *Result {
	result := newResult("backfill")
	ctx, finish := r.startRun(ctx, result)
	defer finish()

	if err := r.ensureGroups(ctx); err != nil {
		result.Record(Outcome{Section: "*", Err: err})
		return result
	}

	now := time.Now().UTC().Truncate(time.Hour)
	for _, area := range r.cfg.Areas {
		areaCtx, span := r.startArea(ctx, "backfill", area.Code)

		rows, err := r.ingestArea(areaCtx, area, now, r.cfg.Training.BackfillDays)
		result.Record(Outcome{Section: area.Code, Rows: rows, Err: err})
		if err != nil {
			span.RecordError(err)
			span.End()
			continue
		}

		for _, source := range entity.Sources {
			n, err := r.backfillHindcast(areaCtx, area, source, now, result.RunID)
			if err != nil && exception.IsModelNotFound(err) {
				logger.Infof("Backfill: no model registered for %s/%s yet, skipping hindcast.", area.Code, source)
				continue
			}
			result.Record(Outcome{Section: area.Code, Source: source, Rows: n, Err: err})
			if err != nil {
				span.RecordError(err)
			}
		}
		span.End()
	}
	return result
}

// backfillHindcast regenerates lead-time-1 predictions over the trailing
// feature window of one (area, source) pair and upserts them, seeding the
// monitoring history the dashboard reads.
func (r *Runner) backfillHindcast(ctx context.Context, area config.AreaConfig, source string, now time.Time, runID string) (int64, error) {
	model, err := r.loadModel(ctx, source, area.Code)
	if err != nil {
		return 0, err
	}

	features, err := r.featuresFor(ctx, area, time.Time{}, now)
	if err != nil {
		return 0, err
	}
	actuals, err := r.actualsFor(ctx, area, time.Time{}, now)
	if err != nil {
		return 0, err
	}

	reconciler := hindcast.NewReconciler()
	if r.cfg.Pipeline.HindcastWindow > 0 {
		reconciler.Window = r.cfg.Pipeline.HindcastWindow
	}
	rows, err := reconciler.Reconcile(features, actuals, model, source)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		logger.Infof("Backfill: no reconcilable hours for %s/%s.", area.Code, source)
		return 0, nil
	}

	createdAt := time.Now().UTC()
	records := make([]entity.PredictionRecord, len(rows))
	for i, row := range rows {
		records[i] = entity.PredictionRecord{
			Timestamp:           row.Timestamp,
			Section:             area.Code,
			EnergySource:        source,
			HoursBeforeForecast: 1,
			PredictedEnergy:     row.Predicted,
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
	return n, nil
}
