package feature_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/gridcast/internal/feature"
	"github.com/tigerroll/gridcast/internal/frame"
	"github.com/tigerroll/gridcast/internal/support/exception"
)

func rawWeather(t *testing.T, times []time.Time) *frame.Frame {
	t.Helper()
	n := len(times)
	f := frame.New(times)
	fill := func(name string, v float64) {
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = v
		}
		require.NoError(t, f.SetColumn(name, vals))
	}
	fill(feature.FieldTemperature, 10)
	fill(feature.FieldPrecipitation, 0)
	fill(feature.FieldWindSpeed, 5)
	fill(feature.FieldWindDirection, 90)
	fill(feature.FieldSurfacePressure, 1013.25)
	fill(feature.FieldRelativeHumidity, 70)
	fill(feature.FieldCloudCover, 50)
	fill(feature.FieldSunshineDuration, 1800)
	return f
}

func hourlyTimes(n int) []time.Time {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = base.Add(time.Duration(i) * time.Hour)
	}
	return out
}

func TestTransformPreservesRowOrderAndCount(t *testing.T) {
	times := hourlyTimes(5)
	tr := feature.NewTransformer(feature.Config{Scheme: feature.SchemeCyclical, Latitude: 59.3, Longitude: 18.0})

	got, err := tr.Transform(rawWeather(t, times))
	require.NoError(t, err)
	assert.Equal(t, len(times), got.Len())
	assert.Equal(t, times, got.Times())
}

func TestTransformMissingDeclaredFieldFailsLoud(t *testing.T) {
	times := hourlyTimes(3)
	raw := rawWeather(t, times)
	raw.DropColumn(feature.FieldCloudCover)

	tr := feature.NewTransformer(feature.Config{Scheme: feature.SchemeCyclical})
	_, err := tr.Transform(raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrMissingField)
}

func TestCyclicalPairsSatisfyUnitIdentity(t *testing.T) {
	times := hourlyTimes(48)
	tr := feature.NewTransformer(feature.Config{Scheme: feature.SchemeCyclical, Latitude: 62.4, Longitude: 17.3})

	got, err := tr.Transform(rawWeather(t, times))
	require.NoError(t, err)

	pairs := [][2]string{
		{feature.ColHourSin, feature.ColHourCos},
		{feature.ColDayOfWeekSin, feature.ColDayOfWeekCos},
		{feature.ColDayOfYearSin, feature.ColDayOfYearCos},
		{feature.ColWindDirSin, feature.ColWindDirCos},
	}
	for _, pair := range pairs {
		sin, ok := got.Column(pair[0])
		require.True(t, ok, pair[0])
		cos, ok := got.Column(pair[1])
		require.True(t, ok, pair[1])
		for i := range sin {
			assert.InDelta(t, 1.0, sin[i]*sin[i]+cos[i]*cos[i], 1e-9)
		}
	}
}

func TestCyclicalSchemeDropsRawWindDirection(t *testing.T) {
	tr := feature.NewTransformer(feature.Config{Scheme: feature.SchemeCyclical})
	got, err := tr.Transform(rawWeather(t, hourlyTimes(3)))
	require.NoError(t, err)
	assert.False(t, got.HasColumn(feature.FieldWindDirection))
	assert.True(t, got.HasColumn(feature.ColWindDirSin))
	assert.True(t, got.HasColumn(feature.ColWindDirCos))
}

func TestWindSpeedCubed(t *testing.T) {
	times := hourlyTimes(3)
	raw := rawWeather(t, times)
	require.NoError(t, raw.SetColumn(feature.FieldWindSpeed, []float64{2, 3, 4}))

	tr := feature.NewTransformer(feature.Config{Scheme: feature.SchemeCyclical})
	got, err := tr.Transform(raw)
	require.NoError(t, err)

	cubed, ok := got.Column(feature.ColWindSpeedCubed)
	require.True(t, ok)
	assert.InDelta(t, 8, cubed[0], 1e-9)
	assert.InDelta(t, 27, cubed[1], 1e-9)
	assert.InDelta(t, 64, cubed[2], 1e-9)
}

func TestWindPowerDensityScenario(t *testing.T) {
	// Temperature [10,12,14] C, wind speed [2,3,4] m/s, constant standard
	// pressure: the 01:00 value is 1.225 * (288.15/285.15) * 1.0 * 27.
	times := hourlyTimes(3)
	raw := rawWeather(t, times)
	require.NoError(t, raw.SetColumn(feature.FieldTemperature, []float64{10, 12, 14}))
	require.NoError(t, raw.SetColumn(feature.FieldWindSpeed, []float64{2, 3, 4}))

	tr := feature.NewTransformer(feature.Config{Scheme: feature.SchemeCyclical})
	got, err := tr.Transform(raw)
	require.NoError(t, err)

	density, ok := got.Column(feature.ColWindPowerDensity)
	require.True(t, ok)
	expected := 1.225 * (288.15 / (12 + 273.15)) * 27
	assert.InDelta(t, expected, density[1], 1e-9)
	assert.InDelta(t, 33.46, density[1], 0.05)
}

func TestCalendarScheme(t *testing.T) {
	// 2024-06-01 is a Saturday; Monday-based weekday index is 5.
	times := []time.Time{time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)}
	tr := feature.NewTransformer(feature.Config{Scheme: feature.SchemeCalendar})

	got, err := tr.Transform(rawWeather(t, times))
	require.NoError(t, err)

	for col, want := range map[string]float64{
		feature.ColHour:      13,
		feature.ColDayOfWeek: 5,
		feature.ColMonth:     6,
		feature.ColDayOfYear: 153,
	} {
		vals, ok := got.Column(col)
		require.True(t, ok, col)
		assert.Equal(t, want, vals[0], col)
	}
	// The calendar scheme keeps the raw wind direction.
	assert.True(t, got.HasColumn(feature.FieldWindDirection))
}

func TestModelFeaturesOrderIsStable(t *testing.T) {
	cfg := feature.Config{Scheme: feature.SchemeCyclical, Fields: append([]string(nil), feature.DefaultFields...)}
	first := cfg.ModelFeatures()
	second := cfg.ModelFeatures()
	assert.Equal(t, first, second)
	assert.NotContains(t, first, feature.FieldWindDirection)
	assert.Contains(t, first, feature.ColSunElevation)
}

func TestTransformOutputCoversModelFeatures(t *testing.T) {
	cfg := feature.Config{Scheme: feature.SchemeCyclical, Fields: append([]string(nil), feature.DefaultFields...)}
	tr := feature.NewTransformer(cfg)
	got, err := tr.Transform(rawWeather(t, hourlyTimes(4)))
	require.NoError(t, err)
	for _, col := range cfg.ModelFeatures() {
		assert.True(t, got.HasColumn(col), col)
	}
}

func TestSolarPositionSanity(t *testing.T) {
	calc := feature.NewSolarCalculator()

	// Stockholm around summer-solstice noon: the sun is well above the horizon.
	noon := time.Date(2024, 6, 21, 11, 0, 0, 0, time.UTC)
	elNoon, az := calc.Position(noon, 59.3293, 18.0686)
	assert.Greater(t, elNoon, 40.0)
	assert.Greater(t, az, 0.0)
	assert.Less(t, az, 360.0)

	// Around local midnight it is below or near the horizon and lower than at
	// noon.
	midnight := time.Date(2024, 6, 21, 23, 0, 0, 0, time.UTC)
	elMidnight, _ := calc.Position(midnight, 59.3293, 18.0686)
	assert.Less(t, elMidnight, elNoon)

	// Memoized calls return identical values.
	elAgain, azAgain := calc.Position(noon, 59.3293, 18.0686)
	assert.Equal(t, elNoon, elAgain)
	assert.Equal(t, az, azAgain)
}

func TestSolarElevationBounded(t *testing.T) {
	calc := feature.NewSolarCalculator()
	for h := 0; h < 24; h++ {
		el, azm := calc.Position(time.Date(2024, 3, 20, h, 0, 0, 0, time.UTC), 55.605, 13.0038)
		assert.LessOrEqual(t, el, 90.0)
		assert.GreaterOrEqual(t, el, -90.0)
		assert.False(t, math.IsNaN(azm))
	}
}
