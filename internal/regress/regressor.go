// Package regress provides the regression-model contract the pipelines train
// and invoke, plus a gradient-boosted regression tree implementation with a
// JSON artifact format.
package regress

import (
	"fmt"

	"github.com/tigerroll/gridcast/internal/support/exception"
)

const moduleName = "regress"

// Regressor is the model contract the training and inference pipelines rely
// on: fit on a feature matrix and label vector, predict over a feature matrix,
// and expose the exact ordered feature-name schema recorded at fit time.
type Regressor interface {
	Fit(X [][]float64, y []float64) error
	Predict(X [][]float64) ([]float64, error)
	FeatureNames() []string
}

// CheckSchema verifies that the columns about to be fed to a model are an
// exact, ordered match of the feature schema the model was trained with.
// A mismatch is fatal at the point of model invocation: passing mismatched
// columns positionally would feed the model statistically wrong inputs with
// no visible error.
func CheckSchema(model Regressor, columns []string) error {
	expected := model.FeatureNames()
	if len(expected) != len(columns) {
		return exception.NewPipelineError(
			moduleName,
			fmt.Sprintf("model expects %d feature columns, got %d", len(expected), len(columns)),
			exception.ErrFeatureSchemaMismatch,
			false,
		)
	}
	for i := range expected {
		if expected[i] != columns[i] {
			return exception.NewPipelineError(
				moduleName,
				fmt.Sprintf("feature column %d is %q, model expects %q", i, columns[i], expected[i]),
				exception.ErrFeatureSchemaMismatch,
				false,
			)
		}
	}
	return nil
}

// MeanSquaredError returns the mean squared error between predictions and
// actual values.
func MeanSquaredError(predicted, actual []float64) float64 {
	if len(predicted) == 0 || len(predicted) != len(actual) {
		return 0
	}
	var sum float64
	for i := range predicted {
		d := predicted[i] - actual[i]
		sum += d * d
	}
	return sum / float64(len(predicted))
}

// RSquared returns the coefficient of determination of predictions against
// actual values. A constant actual series yields 0.
func RSquared(predicted, actual []float64) float64 {
	if len(predicted) == 0 || len(predicted) != len(actual) {
		return 0
	}
	var mean float64
	for _, v := range actual {
		mean += v
	}
	mean /= float64(len(actual))

	var ssRes, ssTot float64
	for i := range actual {
		d := actual[i] - predicted[i]
		ssRes += d * d
		t := actual[i] - mean
		ssTot += t * t
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}
