package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported values for the DB_DRIVER setting
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DB wraps the GORM database connection
type DB struct {
	*gorm.DB
}

// Connect establishes a connection using the named driver.
// For sqlite the dsn is a file path or ":memory:".
func Connect(driver, dsn string) (*DB, error) {
	switch driver {
	case DriverPostgres:
		database, err := Open(postgres.Open(dsn))
		if err != nil {
			return nil, err
		}

		sqlDB, err := database.DB.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
		return database, nil

	case DriverSQLite:
		database, err := Open(sqlite.Open(SQLiteDSN(dsn)))
		if err != nil {
			return nil, err
		}

		// sqlite serialises writers; one connection also keeps :memory: databases whole
		sqlDB, err := database.DB.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return database, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Open opens a GORM connection with the settings shared by every driver.
// TranslateError lets callers match gorm.ErrDuplicatedKey regardless of dialect.
func Open(dialector gorm.Dialector) (*DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Warn),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, err
	}

	return &DB{DB: db}, nil
}

// SQLiteDSN enables foreign key enforcement and a busy timeout on a sqlite path
func SQLiteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=1&_busy_timeout=5000"
}

// Ping checks if the database connection is alive
func (db *DB) Ping() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
