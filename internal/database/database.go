package database

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/stagetrack/internal/comments"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/orders"
	"github.com/MarcoPoloResearchLab/stagetrack/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and addresses the relational store.
type Options struct {
	Driver string
	Path   string
	DSN    string
}

// Open establishes a connection for the configured driver and performs schema migrations.
func Open(options Options, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dialector, target, err := dialectorFor(options)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	if options.Driver != DriverPostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	logger.Info("database initialized", zap.String("driver", driverName(options.Driver)), zap.String("target", target))
	return db, nil
}

// OpenSQLite opens a SQLite database file.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	return Open(Options{Driver: DriverSQLite, Path: path}, logger)
}

func dialectorFor(options Options) (gorm.Dialector, string, error) {
	switch driverName(options.Driver) {
	case DriverSQLite:
		if options.Path == "" {
			return nil, "", fmt.Errorf("database path is required")
		}
		return sqlite.Open(options.Path), options.Path, nil
	case DriverPostgres:
		if options.DSN == "" {
			return nil, "", fmt.Errorf("database dsn is required")
		}
		return postgres.Open(options.DSN), "postgres", nil
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", options.Driver)
	}
}

func driverName(driver string) string {
	if driver == "" {
		return DriverSQLite
	}
	return driver
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&users.Account{}, &orders.Order{}, &orders.Stage{}, &comments.Option{}, &migrationRecord{})
}
