// Package mysql registers the MySQL dialector with the database adapter.
package mysql

import (
	"fmt"

	"github.com/tigerroll/gridcast/internal/adapter/database"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func init() {
	database.RegisterDialector("mysql", func(cfg database.Config) (gorm.Dialector, error) {
		return mysql.Open(connectionString(cfg)), nil
	})
}

// connectionString builds the DSN format expected by gorm.io/driver/mysql:
// user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local
func connectionString(c database.Config) string {
	var authPart string
	if c.User != "" {
		authPart = c.User
		if c.Password != "" {
			authPart = fmt.Sprintf("%s:%s", c.User, c.Password)
		}
		authPart += "@"
	}
	return fmt.Sprintf("%stcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		authPart, c.Host, c.Port, c.Database)
}
