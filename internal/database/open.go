package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/content"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/reputation"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/users"
	"github.com/MarcoPoloResearchLab/bugboard/backend/internal/votes"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	// DriverSQLite selects the embedded pure-Go SQLite driver.
	DriverSQLite = "sqlite"
	// DriverPostgres selects PostgreSQL through pgx.
	DriverPostgres = "postgres"

	slowQueryThreshold = 200 * time.Millisecond
)

// Options selects and addresses the backing store.
type Options struct {
	Driver string
	Path   string
	DSN    string
}

// Open connects to the configured store and brings the schema up to date.
func Open(options Options, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := connect(options, logger)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, logger); err != nil {
		return nil, err
	}
	logger.Info("database initialized", zap.String("driver", driverName(options)))
	return db, nil
}

func connect(options Options, logger *zap.Logger) (*gorm.DB, error) {
	switch driverName(options) {
	case DriverSQLite:
		return OpenSQLite(options.Path, logger)
	case DriverPostgres:
		return OpenPostgres(options.DSN, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", options.Driver)
	}
}

// OpenSQLite opens the SQLite file at path on a single connection.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	config, err := newGormConfig(logger)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(sqlite.Open(path), config)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// OpenPostgres connects to PostgreSQL using the given DSN.
func OpenPostgres(dsn string, logger *zap.Logger) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	config, err := newGormConfig(logger)
	if err != nil {
		return nil, err
	}
	return gorm.Open(postgres.Open(dsn), config)
}

// newGormConfig routes gorm's statement log through zap at warn level. Misses
// of First/Take are expected lookups and stay silent.
func newGormConfig(logger *zap.Logger) (*gorm.Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	writer, err := zap.NewStdLogAt(logger.Named("gorm"), zap.WarnLevel)
	if err != nil {
		return nil, err
	}
	return &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(writer, gormlogger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		}),
	}, nil
}

func driverName(options Options) string {
	driver := strings.ToLower(strings.TrimSpace(options.Driver))
	if driver == "" {
		return DriverSQLite
	}
	return driver
}

// Models lists every table of the service in migration order.
func Models() []interface{} {
	var models []interface{}
	models = append(models, users.Models()...)
	models = append(models, content.Models()...)
	models = append(models, votes.Models()...)
	models = append(models, reputation.Models()...)
	models = append(models, notifications.Models()...)
	return append(models, &migrationRecord{})
}

// Migrate creates missing tables and applies pending named migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}
