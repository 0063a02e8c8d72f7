// Package hindcast regenerates "as-if-it-had-run" predictions over historical
// feature data and reconciles them against actual generation outcomes. It
// exists to cold-start monitoring history: on a first deployment (or after a
// gap) no monitored predictions exist yet, and without this backfill the
// dashboard would show an empty hindcast until enough scheduled runs had
// accumulated.
package hindcast

import (
	"time"

	"github.com/tigerroll/gridcast/internal/frame"
	"github.com/tigerroll/gridcast/internal/regress"
	"github.com/tigerroll/gridcast/internal/support/exception"
)

const moduleName = "hindcast"

// Shared column names of prediction series.
const (
	ColPredictedEnergy     = "predicted_energy"
	ColHoursBeforeForecast = "hours_before_forecast"
)

// DefaultWindow is the trailing feature-row window a backfill covers. The
// bounded window keeps memory and compute cost of ad hoc backfills fixed
// regardless of how much history the feature group holds.
const DefaultWindow = 30

// Row is one reconciled forecast-vs-actual point: the freshest
// (hours_before_forecast == 1) prediction for a timestamp joined with the
// measured generation for the same timestamp.
type Row struct {
	Timestamp time.Time `json:"timestamp"`
	Predicted float64   `json:"predicted_energy"`
	Actual    float64   `json:"actual_energy"`
}

// Reconciler runs model predictions over historical features and joins them
// with actuals.
type Reconciler struct {
	// Window is the number of most recent feature rows to backfill.
	Window int
}

// NewReconciler creates a Reconciler with the default trailing window.
func NewReconciler() *Reconciler {
	return &Reconciler{Window: DefaultWindow}
}

// Reconcile predicts over the most recent Window rows of weatherFeatures
// using the model's recorded feature schema, tags every prediction
// hours_before_forecast = 1, and inner-joins the predictions on timestamp
// against generationActuals restricted to the energySource column. Rows with
// no actual-data counterpart are dropped; an empty actuals series yields zero
// rows without error. Output is ascending by timestamp.
//
// weatherFeatures must already carry the derived feature columns (apply the
// feature transform first if not); a column set that does not match the
// model's schema fails fast with exception.ErrFeatureSchemaMismatch rather
// than silently passing mismatched columns positionally.
func (r *Reconciler) Reconcile(
	weatherFeatures *frame.Frame,
	generationActuals *frame.Frame,
	model regress.Regressor,
	energySource string,
) ([]Row, error) {
	window := r.Window
	if window <= 0 {
		window = DefaultWindow
	}

	features := frame.SortDedup(weatherFeatures)
	if features.Len() > window {
		from := features.Time(features.Len() - window)
		to := features.Time(features.Len() - 1)
		features = frame.FilterWindow(features, from, to)
	}

	names := model.FeatureNames()
	for _, name := range names {
		if !features.HasColumn(name) {
			return nil, exception.NewPipelineError(
				moduleName,
				"feature column '"+name+"' required by the model is absent",
				exception.ErrFeatureSchemaMismatch,
				false,
			)
		}
	}
	selected, err := features.Select(names...)
	if err != nil {
		return nil, exception.NewPipelineError(moduleName, "failed to select model feature columns", err, false)
	}
	if err := regress.CheckSchema(model, selected.Columns()); err != nil {
		return nil, err
	}

	X, err := selected.Matrix(names)
	if err != nil {
		return nil, exception.NewPipelineError(moduleName, "failed to build feature matrix", err, false)
	}
	predicted, err := model.Predict(X)
	if err != nil {
		return nil, exception.NewPipelineError(moduleName, "model prediction failed", err, false)
	}

	predictions := frame.New(features.Times())
	predictions.SetColumn(ColPredictedEnergy, predicted)
	horizon := make([]float64, predictions.Len())
	for i := range horizon {
		horizon[i] = 1
	}
	predictions.SetColumn(ColHoursBeforeForecast, horizon)

	if generationActuals == nil || generationActuals.Len() == 0 {
		return nil, nil
	}
	actuals := frame.SortDedup(generationActuals)
	if !actuals.HasColumn(energySource) {
		return nil, exception.NewPipelineErrorf(moduleName, "actuals series has no %q column", energySource)
	}
	outcome, err := actuals.Select(energySource)
	if err != nil {
		return nil, exception.NewPipelineError(moduleName, "failed to select outcome column", err, false)
	}

	joined := frame.InnerJoin(predictions, outcome)
	rows := make([]Row, 0, joined.Len())
	predVals, _ := joined.Column(ColPredictedEnergy)
	actVals, _ := joined.Column(energySource)
	for i := 0; i < joined.Len(); i++ {
		rows = append(rows, Row{
			Timestamp: joined.Time(i),
			Predicted: predVals[i],
			Actual:    actVals[i],
		})
	}
	return rows, nil
}
