// Package sqlite registers the SQLite dialector with the database adapter.
package sqlite

import (
	"errors"

	"github.com/tigerroll/gridcast/internal/adapter/database"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func init() {
	database.RegisterDialector("sqlite", func(cfg database.Config) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("sqlite database path cannot be empty")
		}
		return sqlite.Open(cfg.Database), nil
	})
}
