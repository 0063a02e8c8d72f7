package hindcast_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/gridcast/internal/frame"
	"github.com/tigerroll/gridcast/internal/hindcast"
	"github.com/tigerroll/gridcast/internal/support/exception"
)

// stubModel predicts a fixed value per row and records an ordered feature
// schema.
type stubModel struct {
	features []string
	values   []float64
}

func (m *stubModel) Fit([][]float64, []float64) error { return nil }

func (m *stubModel) Predict(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i := range X {
		if i < len(m.values) {
			out[i] = m.values[i]
		}
	}
	return out, nil
}

func (m *stubModel) FeatureNames() []string { return m.features }

var base = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

func featureFrame(t *testing.T, n int) *frame.Frame {
	t.Helper()
	times := make([]time.Time, n)
	a := make([]float64, n)
	b := make([]float64, n)
	for i := range times {
		times[i] = base.Add(time.Duration(i) * time.Hour)
		a[i] = float64(i)
		b[i] = float64(i * 2)
	}
	f := frame.New(times)
	require.NoError(t, f.SetColumn("a", a))
	require.NoError(t, f.SetColumn("b", b))
	return f
}

func TestReconcileJoinScenario(t *testing.T) {
	// Predictions {t0:5, t1:7, t2:9} against actuals {t0:5.1, t2:8.8} keep
	// exactly t0 and t2; t1 has no join partner and is dropped.
	features := featureFrame(t, 3)
	model := &stubModel{features: []string{"a", "b"}, values: []float64{5, 7, 9}}

	actuals := frame.New([]time.Time{base, base.Add(2 * time.Hour)})
	require.NoError(t, actuals.SetColumn("solar", []float64{5.1, 8.8}))

	rows, err := hindcast.NewReconciler().Reconcile(features, actuals, model, "solar")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, base, rows[0].Timestamp)
	assert.Equal(t, 5.0, rows[0].Predicted)
	assert.Equal(t, 5.1, rows[0].Actual)
	assert.Equal(t, base.Add(2*time.Hour), rows[1].Timestamp)
	assert.Equal(t, 9.0, rows[1].Predicted)
	assert.Equal(t, 8.8, rows[1].Actual)
}

func TestReconcileEmptyActualsYieldsZeroRows(t *testing.T) {
	features := featureFrame(t, 3)
	model := &stubModel{features: []string{"a", "b"}, values: []float64{1, 2, 3}}

	rows, err := hindcast.NewReconciler().Reconcile(features, frame.New(nil), model, "solar")
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = hindcast.NewReconciler().Reconcile(features, nil, model, "solar")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReconcileSchemaMismatchFailsFast(t *testing.T) {
	features := featureFrame(t, 3)
	model := &stubModel{features: []string{"a", "missing"}}

	actuals := frame.New([]time.Time{base})
	require.NoError(t, actuals.SetColumn("solar", []float64{1}))

	_, err := hindcast.NewReconciler().Reconcile(features, actuals, model, "solar")
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrFeatureSchemaMismatch)
}

func TestReconcileBoundedTrailingWindow(t *testing.T) {
	// 50 feature rows with Window 10: only the 10 newest rows are predicted,
	// so older actuals cannot produce rows.
	features := featureFrame(t, 50)
	actualTimes := make([]time.Time, 50)
	actualVals := make([]float64, 50)
	for i := range actualTimes {
		actualTimes[i] = base.Add(time.Duration(i) * time.Hour)
		actualVals[i] = float64(i)
	}
	actuals := frame.New(actualTimes)
	require.NoError(t, actuals.SetColumn("wind", actualVals))

	reconciler := hindcast.NewReconciler()
	reconciler.Window = 10
	model := &stubModel{features: []string{"a", "b"}, values: make([]float64, 10)}

	rows, err := reconciler.Reconcile(features, actuals, model, "wind")
	require.NoError(t, err)
	require.Len(t, rows, 10)
	assert.Equal(t, base.Add(40*time.Hour), rows[0].Timestamp)
	assert.Equal(t, base.Add(49*time.Hour), rows[len(rows)-1].Timestamp)
}

func TestReconcileUnknownSourceColumn(t *testing.T) {
	features := featureFrame(t, 2)
	model := &stubModel{features: []string{"a", "b"}, values: []float64{1, 2}}

	actuals := frame.New([]time.Time{base})
	require.NoError(t, actuals.SetColumn("solar", []float64{1}))

	_, err := hindcast.NewReconciler().Reconcile(features, actuals, model, "hydro")
	assert.Error(t, err)
}
