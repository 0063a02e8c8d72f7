package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tigerroll/gridcast/internal/chart"
	"github.com/tigerroll/gridcast/internal/config"
	"github.com/tigerroll/gridcast/internal/domain/entity"
	"github.com/tigerroll/gridcast/internal/frame"
	"github.com/tigerroll/gridcast/internal/hindcast"
	"github.com/tigerroll/gridcast/internal/regress"
	"github.com/tigerroll/gridcast/internal/registry"
	"github.com/tigerroll/gridcast/internal/support/exception"
	"github.com/tigerroll/gridcast/internal/support/logger"
)

// minTrainRows is the smallest joined series worth fitting. Below this the
// holdout evaluation is meaningless.
const minTrainRows = 48

// RunTraining is the model training pipeline: per area and source it joins
// historical features with actual generation, fits a gradient-boosted model
// on the chronological head of the series, evaluates on the held-out tail,
// and registers the model with its evaluation images. (Area, source) pairs
// fail independently.
func (r *Runner) RunTraining(ctx context.Context) *Result {
	result := newResult("training")
	ctx, finish := r.startRun(ctx, result)
	defer finish()

	if err := r.ensureGroups(ctx); err != nil {
		result.Record(Outcome{Section: "*", Err: err})
		return result
	}

	now := time.Now().UTC().Truncate(time.Hour)
	for _, area := range r.cfg.Areas {
		areaCtx, span := r.startArea(ctx, "training", area.Code)

		features, err := r.featuresFor(areaCtx, area, time.Time{}, now)
		if err != nil {
			span.RecordError(err)
			span.End()
			result.Record(Outcome{Section: area.Code, Err: err})
			continue
		}
		actuals, err := r.actualsFor(areaCtx, area, time.Time{}, now)
		if err != nil {
			span.RecordError(err)
			span.End()
			result.Record(Outcome{Section: area.Code, Err: err})
			continue
		}

		for _, source := range entity.Sources {
			version, rows, err := r.trainModel(areaCtx, area, source, features, actuals)
			status := "ok"
			if err != nil {
				status = "failed"
				span.RecordError(err)
			} else {
				logger.Infof("Training: registered %s v%d for %s.", registry.ModelName(source, area.Code), version, area.Code)
			}
			r.recorder.RecordTraining(area.Code, source, status)
			result.Record(Outcome{Section: area.Code, Source: source, Rows: rows, Err: err})
		}
		span.End()
	}
	return result
}

// trainModel fits and registers one (area, source) model. It returns the
// registered version and the number of joined training rows.
func (r *Runner) trainModel(ctx context.Context, area config.AreaConfig, source string, features, actuals *frame.Frame) (int, int64, error) {
	if !actuals.HasColumn(source) {
		return 0, 0, exception.NewPipelineErrorf(moduleName, "actuals series has no %q column", source)
	}
	outcome, err := actuals.Select(source)
	if err != nil {
		return 0, 0, exception.NewPipelineError(moduleName, "failed to select outcome column", err, false)
	}
	joined := frame.InnerJoin(features, outcome)
	if joined.Len() < minTrainRows {
		return 0, 0, exception.NewPipelineError(moduleName,
			fmt.Sprintf("only %d joined rows for %s/%s, need at least %d", joined.Len(), area.Code, source, minTrainRows),
			exception.ErrNoData, false)
	}

	params, err := r.cfg.TrainParamsFor(area)
	if err != nil {
		return 0, 0, exception.NewPipelineError(moduleName, "invalid training parameters", err, false)
	}
	cols := r.cfg.FeatureConfigFor(area).ModelFeatures()
	X, err := joined.Matrix(cols)
	if err != nil {
		return 0, 0, exception.NewPipelineError(moduleName, "failed to build training matrix", err, false)
	}
	y, _ := joined.Column(source)

	// Chronological holdout. Shuffling would leak adjacent-hour correlation
	// into the evaluation.
	nTest := int(r.cfg.Training.TestFraction * float64(len(y)))
	if r.cfg.Training.TestFraction > 0 && nTest == 0 {
		nTest = 1
	}
	nTrain := len(y) - nTest

	model := regress.NewGBDT(params, cols)
	if err := model.Fit(X[:nTrain], y[:nTrain]); err != nil {
		return 0, 0, exception.NewPipelineError(moduleName, "model fit failed", err, false)
	}

	metricsMap := map[string]float64{
		"train_rows": float64(nTrain),
		"test_rows":  float64(nTest),
	}
	var holdout []hindcast.Row
	if nTest > 0 {
		predicted, err := model.Predict(X[nTrain:])
		if err != nil {
			return 0, 0, exception.NewPipelineError(moduleName, "holdout prediction failed", err, false)
		}
		metricsMap["mse"] = regress.MeanSquaredError(predicted, y[nTrain:])
		metricsMap["r2"] = regress.RSquared(predicted, y[nTrain:])

		holdout = make([]hindcast.Row, nTest)
		for i := 0; i < nTest; i++ {
			holdout[i] = hindcast.Row{
				Timestamp: joined.Time(nTrain + i),
				Predicted: predicted[i],
				Actual:    y[nTrain+i],
			}
		}
	}

	dir, err := os.MkdirTemp("", "gridcast-train-*")
	if err != nil {
		return 0, 0, exception.NewPipelineError(moduleName, "failed to create artifact scratch directory", err, false)
	}
	defer os.RemoveAll(dir)

	if err := model.Save(dir); err != nil {
		return 0, 0, exception.NewPipelineError(moduleName, "failed to save model artifact", err, false)
	}
	imagesDir := filepath.Join(dir, "images")
	if len(holdout) > 0 {
		if err := chart.SaveHindcast(filepath.Join(imagesDir, chart.HindcastFileName(source)), source, holdout); err != nil {
			return 0, 0, exception.NewPipelineError(moduleName, "failed to render hindcast chart", err, false)
		}
	}
	if err := chart.SaveImportance(filepath.Join(imagesDir, chart.ImportanceFileName), model.Importance()); err != nil {
		return 0, 0, exception.NewPipelineError(moduleName, "failed to render importance chart", err, false)
	}

	meta := registry.Metadata{
		Description: fmt.Sprintf("Gradient-boosted %s generation model for bidding area %s", source, area.Code),
		Metrics:     metricsMap,
	}
	version, err := r.registry.Save(ctx, registry.ModelName(source, area.Code), meta, dir)
	if err != nil {
		return 0, 0, err
	}
	return version, int64(nTrain), nil
}
