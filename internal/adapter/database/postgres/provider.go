// Package postgres registers the PostgreSQL dialector with the database
// adapter. The "redshift" type is served by the same dialector.
package postgres

import (
	"fmt"

	"github.com/tigerroll/gridcast/internal/adapter/database"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func init() {
	factory := func(cfg database.Config) (gorm.Dialector, error) {
		return postgres.Open(connectionString(cfg)), nil
	}
	database.RegisterDialector("postgres", factory)
	database.RegisterDialector("redshift", factory)
}

func connectionString(c database.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.Sslmode)
}
