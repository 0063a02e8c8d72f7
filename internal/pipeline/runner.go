package pipeline

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tigerroll/gridcast/internal/adapter/storage"
	"github.com/tigerroll/gridcast/internal/config"
	"github.com/tigerroll/gridcast/internal/domain/entity"
	"github.com/tigerroll/gridcast/internal/feature"
	"github.com/tigerroll/gridcast/internal/featurestore"
	"github.com/tigerroll/gridcast/internal/frame"
	"github.com/tigerroll/gridcast/internal/metrics"
	"github.com/tigerroll/gridcast/internal/provider/entsoe"
	"github.com/tigerroll/gridcast/internal/provider/openmeteo"
	"github.com/tigerroll/gridcast/internal/regress"
	"github.com/tigerroll/gridcast/internal/registry"
	"github.com/tigerroll/gridcast/internal/support/exception"
	"github.com/tigerroll/gridcast/internal/telemetry"
)

const moduleName = "pipeline"

// Runner holds the collaborators shared by every pipeline.
type Runner struct {
	cfg      *config.Settings
	store    *featurestore.Store
	weather  *openmeteo.Client
	grid     *entsoe.Client
	registry *registry.Registry
	backend  storage.Backend
	recorder *metrics.Recorder
}

// NewRunner wires a Runner from its collaborators.
func NewRunner(
	cfg *config.Settings,
	store *featurestore.Store,
	weather *openmeteo.Client,
	grid *entsoe.Client,
	reg *registry.Registry,
	backend storage.Backend,
	recorder *metrics.Recorder,
) *Runner {
	return &Runner{
		cfg:      cfg,
		store:    store,
		weather:  weather,
		grid:     grid,
		registry: reg,
		backend:  backend,
		recorder: recorder,
	}
}

// newResult starts a Result with a fresh run ID.
func newResult(pipeline string) *Result {
	return &Result{RunID: uuid.NewString(), Pipeline: pipeline}
}

// startRun opens the run-level span and returns a finish callback recording
// run metrics and span status.
func (r *Runner) startRun(ctx context.Context, result *Result) (context.Context, func()) {
	started := time.Now()
	ctx, span := telemetry.Tracer().Start(ctx, result.Pipeline+" run",
		trace.WithAttributes(attribute.String("run.id", result.RunID)))
	return ctx, func() {
		status := result.Status()
		if err := result.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		}
		span.SetAttributes(attribute.Int("run.failed_units", result.Failed()))
		span.End()
		if r.recorder != nil {
			r.recorder.RecordRun(result.Pipeline, status, time.Since(started))
		}
	}
}

// startArea opens a per-area child span.
func (r *Runner) startArea(ctx context.Context, pipeline, section string) (context.Context, trace.Span) {
	return telemetry.Tracer().Start(ctx, pipeline+" area",
		trace.WithAttributes(attribute.String("area.section", section)))
}

// ensureGroups registers the feature group metadata rows. Idempotent; called
// at the start of every pipeline that writes.
func (r *Runner) ensureGroups(ctx context.Context) error {
	groups := []struct{ name, description string }{
		{featurestore.GroupWeather, "Hourly weather observations and forecasts per bidding area"},
		{featurestore.GroupGeneration, "Hourly actual generation per bidding area and source"},
		{featurestore.GroupPredictions, "Issued generation predictions per bidding area, source and lead time"},
	}
	for _, g := range groups {
		if _, err := r.store.EnsureGroup(ctx, g.name, featurestore.GroupVersion, g.description); err != nil {
			return err
		}
	}
	return nil
}

// featuresFor reads the stored weather of one area over [from, to] and
// derives its feature frame.
func (r *Runner) featuresFor(ctx context.Context, area config.AreaConfig, from, to time.Time) (*frame.Frame, error) {
	records, err := r.store.ReadWeather(ctx, area.Code, from, to)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, exception.NewPipelineError(moduleName,
			"no stored weather rows for area '"+area.Code+"'", exception.ErrNoData, false)
	}
	raw := frame.SortDedup(entity.WeatherFrame(records))
	transformer := feature.NewTransformer(r.cfg.FeatureConfigFor(area))
	return transformer.Transform(raw)
}

// actualsFor reads the stored generation of one area over [from, to] as a
// frame with one column per source.
func (r *Runner) actualsFor(ctx context.Context, area config.AreaConfig, from, to time.Time) (*frame.Frame, error) {
	records, err := r.store.ReadGeneration(ctx, area.Code, from, to)
	if err != nil {
		return nil, err
	}
	return frame.SortDedup(entity.GenerationFrame(records)), nil
}

// loadModel downloads the newest registered model of (source, section) into a
// scratch directory and deserializes it.
func (r *Runner) loadModel(ctx context.Context, source, section string) (*regress.GBDT, error) {
	dir, err := os.MkdirTemp("", "gridcast-model-*")
	if err != nil {
		return nil, exception.NewPipelineError(moduleName, "failed to create model scratch directory", err, false)
	}
	defer os.RemoveAll(dir)

	name := registry.ModelName(source, section)
	if _, err := r.registry.Download(ctx, name, 0, dir); err != nil {
		return nil, err
	}
	model, err := regress.Load(dir)
	if err != nil {
		return nil, exception.NewPipelineError(moduleName,
			"failed to load model artifact '"+name+"'", err, false)
	}
	return model, nil
}
