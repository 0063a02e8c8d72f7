package feature

import (
	"math"

	"github.com/tigerroll/gridcast/internal/frame"
	"github.com/tigerroll/gridcast/internal/support/exception"
)

const moduleName = "feature"

// Physical constants for the air-density-corrected wind power proxy.
const (
	airDensitySeaLevel  = 1.225   // kg/m³ at 15°C, 1013.25 hPa
	standardTempKelvin  = 288.15  // 15°C
	standardPressureHPa = 1013.25 // sea-level standard atmosphere
	celsiusOffset       = 273.15
)

// Transformer derives model-ready feature columns from raw weather frames.
type Transformer struct {
	cfg   Config
	solar *SolarCalculator
}

// NewTransformer creates a Transformer for one area's feature configuration.
func NewTransformer(cfg Config) *Transformer {
	if cfg.Scheme == "" {
		cfg.Scheme = SchemeCyclical
	}
	if len(cfg.Fields) == 0 {
		cfg.Fields = DefaultFields
	}
	return &Transformer{cfg: cfg, solar: NewSolarCalculator()}
}

// Config returns the transformer's feature configuration.
func (tr *Transformer) Config() Config {
	return tr.cfg
}

// Transform maps a raw weather frame to a feature frame. It preserves row
// order and count, appends the derived columns of the configured scheme, and
// under the cyclical scheme drops the raw wind direction column after deriving
// its sin/cos pair (the raw compass value is never fed to the model).
//
// A declared input field absent from the frame fails with
// exception.ErrMissingField: a missing field changes trained feature
// semantics, so it must be loud rather than silently NaN-filled.
func (tr *Transformer) Transform(raw *frame.Frame) (*frame.Frame, error) {
	for _, field := range tr.cfg.Fields {
		if !raw.HasColumn(field) {
			return nil, exception.NewPipelineError(
				moduleName,
				"declared input field '"+field+"' absent from weather series",
				exception.ErrMissingField,
				false,
			)
		}
	}

	out := raw.Copy()
	n := out.Len()

	switch tr.cfg.Scheme {
	case SchemeCalendar:
		hour := make([]float64, n)
		dow := make([]float64, n)
		month := make([]float64, n)
		doy := make([]float64, n)
		for i := 0; i < n; i++ {
			t := out.Time(i).UTC()
			hour[i] = float64(t.Hour())
			dow[i] = float64(int(t.Weekday()+6) % 7) // Monday = 0
			month[i] = float64(int(t.Month()))
			doy[i] = float64(t.YearDay())
		}
		out.SetColumn(ColHour, hour)
		out.SetColumn(ColDayOfWeek, dow)
		out.SetColumn(ColMonth, month)
		out.SetColumn(ColDayOfYear, doy)

	default: // SchemeCyclical
		if err := tr.appendCyclical(out); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func (tr *Transformer) appendCyclical(out *frame.Frame) error {
	n := out.Len()

	hourSin := make([]float64, n)
	hourCos := make([]float64, n)
	dowSin := make([]float64, n)
	dowCos := make([]float64, n)
	doySin := make([]float64, n)
	doyCos := make([]float64, n)
	sunEl := make([]float64, n)
	sunAz := make([]float64, n)

	for i := 0; i < n; i++ {
		t := out.Time(i).UTC()

		hourAngle := float64(t.Hour()) * 2 * math.Pi / 24
		hourSin[i] = math.Sin(hourAngle)
		hourCos[i] = math.Cos(hourAngle)

		dowAngle := float64(int(t.Weekday()+6)%7) * 2 * math.Pi / 7
		dowSin[i] = math.Sin(dowAngle)
		dowCos[i] = math.Cos(dowAngle)

		// Leap-year day 366 lands 1/365 past the wrap point; accepted
		// approximation, not corrected.
		doyAngle := float64(t.YearDay()) * 2 * math.Pi / 365
		doySin[i] = math.Sin(doyAngle)
		doyCos[i] = math.Cos(doyAngle)

		sunEl[i], sunAz[i] = tr.solar.Position(t, tr.cfg.Latitude, tr.cfg.Longitude)
	}

	out.SetColumn(ColHourSin, hourSin)
	out.SetColumn(ColHourCos, hourCos)
	out.SetColumn(ColDayOfWeekSin, dowSin)
	out.SetColumn(ColDayOfWeekCos, dowCos)
	out.SetColumn(ColDayOfYearSin, doySin)
	out.SetColumn(ColDayOfYearCos, doyCos)

	windDir, ok := out.Column(FieldWindDirection)
	if !ok {
		return exception.NewPipelineError(
			moduleName,
			"declared input field '"+FieldWindDirection+"' absent from weather series",
			exception.ErrMissingField,
			false,
		)
	}
	dirSin := make([]float64, n)
	dirCos := make([]float64, n)
	for i, deg := range windDir {
		rad := deg * math.Pi / 180
		dirSin[i] = math.Sin(rad)
		dirCos[i] = math.Cos(rad)
	}
	out.SetColumn(ColWindDirSin, dirSin)
	out.SetColumn(ColWindDirCos, dirCos)
	out.DropColumn(FieldWindDirection)

	windSpeed, temp, pressure, err := tr.windPowerInputs(out)
	if err != nil {
		return err
	}

	cubed := make([]float64, n)
	density := make([]float64, n)
	for i := 0; i < n; i++ {
		cubed[i] = windSpeed[i] * windSpeed[i] * windSpeed[i]
		density[i] = airDensitySeaLevel *
			(standardTempKelvin / (temp[i] + celsiusOffset)) *
			(pressure[i] / standardPressureHPa) *
			cubed[i]
	}
	out.SetColumn(ColWindSpeedCubed, cubed)
	out.SetColumn(ColWindPowerDensity, density)

	out.SetColumn(ColSunElevation, sunEl)
	out.SetColumn(ColSunAzimuth, sunAz)
	return nil
}

// windPowerInputs fetches the columns wind_power_density depends on. They must
// already be present; the derivation never substitutes defaults.
func (tr *Transformer) windPowerInputs(f *frame.Frame) (windSpeed, temp, pressure []float64, err error) {
	for _, dep := range []string{FieldWindSpeed, FieldTemperature, FieldSurfacePressure} {
		if !f.HasColumn(dep) {
			return nil, nil, nil, exception.NewPipelineError(
				moduleName,
				"declared input field '"+dep+"' absent from weather series",
				exception.ErrMissingField,
				false,
			)
		}
	}
	windSpeed, _ = f.Column(FieldWindSpeed)
	temp, _ = f.Column(FieldTemperature)
	pressure, _ = f.Column(FieldSurfacePressure)
	return windSpeed, temp, pressure, nil
}
