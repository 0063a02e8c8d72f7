// Package app wires the application container: configuration, database,
// storage, providers, metrics and the pipeline runner, plus the entry points
// the commands call.
package app

import (
	"context"
	"embed"
	"io/fs"
	"os"

	"go.uber.org/fx"

	"github.com/tigerroll/gridcast/internal/adapter/database"
	"github.com/tigerroll/gridcast/internal/adapter/database/migration"
	"github.com/tigerroll/gridcast/internal/adapter/storage"
	"github.com/tigerroll/gridcast/internal/config"
	"github.com/tigerroll/gridcast/internal/dashboard"
	"github.com/tigerroll/gridcast/internal/featurestore"
	"github.com/tigerroll/gridcast/internal/metrics"
	"github.com/tigerroll/gridcast/internal/pipeline"
	"github.com/tigerroll/gridcast/internal/provider/entsoe"
	"github.com/tigerroll/gridcast/internal/provider/openmeteo"
	"github.com/tigerroll/gridcast/internal/registry"
	"github.com/tigerroll/gridcast/internal/support/logger"
	"github.com/tigerroll/gridcast/internal/telemetry"

	// Database dialectors and storage backends register themselves.
	_ "github.com/tigerroll/gridcast/internal/adapter/database/mysql"
	_ "github.com/tigerroll/gridcast/internal/adapter/database/postgres"
	_ "github.com/tigerroll/gridcast/internal/adapter/database/sqlite"
	_ "github.com/tigerroll/gridcast/internal/adapter/storage/gcs"
	_ "github.com/tigerroll/gridcast/internal/adapter/storage/local"
)

//go:embed resources/application.yaml
var embeddedConfig []byte

//go:embed all:resources/migrations
var rawMigrationsFS embed.FS

func provideSettings() (*config.Settings, error) {
	cfg, err := config.LoadSettings(config.EmbeddedSettings(embeddedConfig), os.Getenv("ENV_FILE_PATH"))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideConnection(lc fx.Lifecycle, cfg *config.Settings) (*database.Connection, error) {
	conn, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return conn.Close() },
	})
	return conn, nil
}

func provideBackend(lc fx.Lifecycle, cfg *config.Settings) (storage.Backend, error) {
	backend, err := storage.NewBackend(context.Background(), cfg.Storage)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return backend.Close() },
	})
	return backend, nil
}

func provideOpenMeteo(cfg *config.Settings) *openmeteo.Client {
	return openmeteo.NewClient(cfg.OpenMeteo)
}

func provideEntsoe(cfg *config.Settings) *entsoe.Client {
	return entsoe.NewClient(cfg.Entsoe)
}

// runMigrations applies the embedded schema migrations of the configured
// database dialect before anything touches the feature store.
func runMigrations(conn *database.Connection) error {
	sub, err := fs.Sub(rawMigrationsFS, "resources/migrations")
	if err != nil {
		return err
	}
	dialect := conn.Type()
	if dialect == "redshift" {
		dialect = "postgres"
	}
	return migration.NewMigrator(conn).Up(context.Background(), sub, dialect)
}

func setupTelemetry(lc fx.Lifecycle, cfg *config.Settings) error {
	shutdown, err := telemetry.Setup(context.Background(), cfg.Telemetry)
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{OnStop: shutdown})
	return nil
}

// Module assembles every shared component of the application container.
var Module = fx.Options(
	fx.Provide(
		provideSettings,
		provideConnection,
		provideBackend,
		provideOpenMeteo,
		provideEntsoe,
		featurestore.NewStore,
		registry.NewRegistry,
		metrics.NewRecorder,
		pipeline.NewRunner,
		dashboard.NewServer,
	),
	fx.Invoke(setupTelemetry),
	fx.Invoke(runMigrations),
	fx.NopLogger,
)

// RunBackfill executes the historical backfill pipeline once.
func RunBackfill(ctx context.Context) int {
	return runBatch(ctx, true, (*pipeline.Runner).RunBackfill)
}

// RunHourly executes the scheduled ingestion pipeline once.
func RunHourly(ctx context.Context) int {
	return runBatch(ctx, true, (*pipeline.Runner).RunIngestion)
}

// RunTraining executes the model training pipeline once.
func RunTraining(ctx context.Context) int {
	return runBatch(ctx, false, (*pipeline.Runner).RunTraining)
}

// RunInference executes the batch inference pipeline once.
func RunInference(ctx context.Context) int {
	return runBatch(ctx, false, (*pipeline.Runner).RunInference)
}

// runBatch boots the container, runs one pipeline to completion and returns
// the process exit code: 0 when every unit succeeded, 1 otherwise.
func runBatch(ctx context.Context, needsEntsoe bool, run func(*pipeline.Runner, context.Context) *pipeline.Result) int {
	var (
		cfg    *config.Settings
		runner *pipeline.Runner
	)
	application := fx.New(Module, fx.Populate(&cfg, &runner))
	if err := application.Start(ctx); err != nil {
		logger.Errorf("Failed to start application: %v", err)
		return 1
	}
	defer func() {
		if err := application.Stop(context.Background()); err != nil {
			logger.Errorf("Failed to stop application cleanly: %v", err)
		}
	}()

	if needsEntsoe {
		if err := cfg.ValidateEntsoe(); err != nil {
			logger.Errorf("Configuration error: %v", err)
			return 1
		}
	}

	result := run(runner, ctx)
	logger.Infof("%s run %s finished: %s (%d/%d units failed).",
		result.Pipeline, result.RunID, result.Status(), result.Failed(), len(result.Outcomes))
	if result.Failed() > 0 {
		return 1
	}
	return 0
}

// RunDashboard boots the container and serves the dashboard until the process
// receives an interrupt.
func RunDashboard() {
	application := fx.New(
		Module,
		fx.Invoke(func(lc fx.Lifecycle, server *dashboard.Server) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error { server.Start(); return nil },
				OnStop:  server.Shutdown,
			})
		}),
	)
	application.Run()
}
