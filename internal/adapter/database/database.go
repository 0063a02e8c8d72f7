// Package database provides the GORM-backed feature store connection. The
// concrete SQL dialect is selected by configuration through a dialector
// registry; importing a driver subpackage registers its dialect.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tigerroll/gridcast/internal/support/logger"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gorm_logger "gorm.io/gorm/logger"
)

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// Config holds the connection settings of one database.
type Config struct {
	Type     string     `yaml:"type"`
	Host     string     `yaml:"host"`
	Port     int        `yaml:"port"`
	User     string     `yaml:"user"`
	Password string     `yaml:"password"`
	Database string     `yaml:"database"`
	Sslmode  string     `yaml:"sslmode"`
	Pool     PoolConfig `yaml:"pool"`
}

// DialectorFactory generates a gorm.Dialector from a Config.
type DialectorFactory func(cfg Config) (gorm.Dialector, error)

var (
	dialectorRegistry = make(map[string]DialectorFactory)
	dialectorMutex    sync.RWMutex
)

// RegisterDialector registers a DialectorFactory for the given database type.
func RegisterDialector(dbType string, factory DialectorFactory) {
	dialectorMutex.Lock()
	defer dialectorMutex.Unlock()
	if _, exists := dialectorRegistry[dbType]; exists {
		logger.Warnf("Dialector for type '%s' already registered. Overwriting.", dbType)
	}
	dialectorRegistry[dbType] = factory
}

// GetDialectorFactory retrieves the DialectorFactory for the specified DB type.
func GetDialectorFactory(dbType string) (DialectorFactory, error) {
	dialectorMutex.RLock()
	defer dialectorMutex.RUnlock()
	factory, ok := dialectorRegistry[dbType]
	if !ok {
		return nil, fmt.Errorf("no dialector registered for database type: %s", dbType)
	}
	return factory, nil
}

// Connection wraps a GORM connection to the feature store database.
type Connection struct {
	db    *gorm.DB
	sqlDB *sql.DB
	cfg   Config
}

// Open establishes a connection using the dialector registered for cfg.Type
// and applies the configured pool settings.
func Open(cfg Config) (*Connection, error) {
	factory, err := GetDialectorFactory(cfg.Type)
	if err != nil {
		return nil, err
	}
	dialector, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create dialector for %s: %w", cfg.Type, err)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: newGormLogger()})
	if err != nil {
		return nil, fmt.Errorf("failed to open GORM connection: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if cfg.Pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.Pool.MaxOpenConns)
	}
	if cfg.Pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.Pool.MaxIdleConns)
	}
	if cfg.Pool.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.Pool.ConnMaxLifetimeMinutes) * time.Minute)
	}

	logger.Infof("Established feature store connection (%s)", cfg.Type)
	return &Connection{db: db, sqlDB: sqlDB, cfg: cfg}, nil
}

// NewConnection wraps an already opened *gorm.DB. Used by tests that inject a
// sqlmock-backed connection.
func NewConnection(db *gorm.DB, cfg Config) (*Connection, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return &Connection{db: db, sqlDB: sqlDB, cfg: cfg}, nil
}

// GormDB returns the underlying *gorm.DB instance.
func (c *Connection) GormDB() *gorm.DB {
	return c.db
}

// GetSQLDB returns the underlying *sql.DB, used by the migration driver.
func (c *Connection) GetSQLDB() (*sql.DB, error) {
	if c.sqlDB == nil {
		return nil, fmt.Errorf("underlying sql.DB is nil")
	}
	return c.sqlDB, nil
}

// Type returns the database type.
func (c *Connection) Type() string {
	return c.cfg.Type
}

// Ping verifies the connection pool is still valid.
func (c *Connection) Ping(ctx context.Context) error {
	if c.sqlDB == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	return c.sqlDB.PingContext(ctx)
}

// Close closes the connection pool.
func (c *Connection) Close() error {
	if c.sqlDB != nil {
		logger.Infof("Closing feature store connection...")
		return c.sqlDB.Close()
	}
	return nil
}

// ExecuteUpsert inserts model (an entity or slice of entities) with an ON
// CONFLICT clause on conflictColumns. With updateColumns present the conflict
// resolves to DO UPDATE on those columns, otherwise DO NOTHING. This is what
// makes every ingestion idempotent: re-running a window updates rather than
// duplicates.
func (c *Connection) ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error) {
	db := c.db.WithContext(ctx)
	db = db.Session(&gorm.Session{SkipDefaultTransaction: true})

	if tableName != "" {
		db = db.Table(tableName)
	}

	var columns []clause.Column
	for _, col := range conflictColumns {
		columns = append(columns, clause.Column{Name: col})
	}
	onConflict := clause.OnConflict{Columns: columns}
	if len(updateColumns) > 0 {
		onConflict.DoUpdates = clause.AssignmentColumns(updateColumns)
	} else {
		onConflict.DoNothing = true
	}

	result := db.Clauses(onConflict).Create(model)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// newGormLogger builds a gorm logger that routes through the application
// logger at warn level, ignoring record-not-found noise.
func newGormLogger() gorm_logger.Interface {
	return gorm_logger.New(
		&gormWriter{},
		gorm_logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gorm_logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// gormWriter redirects GORM log output to the application logger. SQL trace
// lines go to debug, everything else to info.
type gormWriter struct{}

func (w *gormWriter) Printf(format string, v ...interface{}) {
	msg := strings.TrimSpace(fmt.Sprintf(format, v...))
	if strings.Contains(msg, "SELECT") || strings.Contains(msg, "INSERT") ||
		strings.Contains(msg, "UPDATE") || strings.Contains(msg, "DELETE") {
		logger.Debugf("[GORM] %s", msg)
	} else {
		logger.Infof("[GORM] %s", msg)
	}
}
