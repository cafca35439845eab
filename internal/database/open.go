package database

import (
	"errors"
	"fmt"
	"strings"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/members"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var errUnsupportedDriver = errors.New("database: unsupported driver")

// Config selects and locates the relational store.
type Config struct {
	Driver string
	Path   string
	DSN    string
}

// Open connects to the configured database and brings the schema up to date.
func Open(cfg Config, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	gormConfig := &gorm.Config{Logger: gormlogger.Discard}

	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverSQLite, "":
		db, err = OpenSQLite(cfg.Path, gormConfig)
	case DriverPostgres:
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, fmt.Errorf("database dsn is required")
		}
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormConfig)
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedDriver, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := Migrate(db, logger); err != nil {
		return nil, err
	}

	logger.Info("database initialized", zap.String("driver", db.Dialector.Name()))
	return db, nil
}

// OpenSQLite opens a SQLite database with a single writer connection.
func OpenSQLite(path string, gormConfig *gorm.Config) (*gorm.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if gormConfig == nil {
		gormConfig = &gorm.Config{}
	}

	db, err := gorm.Open(sqlite.Open(path), gormConfig)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate applies the named migrations to any existing tables, then creates
// or completes the member schema. The schema pass runs last so indexes lost
// to a table rebuild are restored. SQLite rebuilds tables to drop
// constraints, so foreign keys are suspended on the connection meanwhile.
func Migrate(db *gorm.DB, logger *zap.Logger) (err error) {
	if db.Dialector.Name() == DriverSQLite {
		if err := db.Exec("PRAGMA foreign_keys = OFF").Error; err != nil {
			return err
		}
		defer func() {
			if restoreErr := db.Exec("PRAGMA foreign_keys = ON").Error; err == nil {
				err = restoreErr
			}
		}()
	}

	if err := db.AutoMigrate(&migrationRecord{}); err != nil {
		return err
	}
	if err := applyMigrations(db, logger); err != nil {
		return err
	}
	return db.AutoMigrate(members.Models()...)
}
