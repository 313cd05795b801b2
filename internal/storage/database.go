package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/model"
)

const (
	// DriverNameSQLite identifies the SQLite driver implementation.
	DriverNameSQLite = "sqlite"

	sqliteFilePrefix           = "file:"
	sqliteQuerySeparator       = "?"
	sqliteMemoryModeParameter  = "mode=memory"
	sqliteMemoryDataSourceName = ":memory:"
	dataDirectoryPermissions   = 0o755

	errorMessageMissingDatabaseDriverName = "storage: missing database driver name"
	errorMessageUnsupportedDatabaseDriver = "storage: unsupported database driver"
	errorMessageMissingDataSourceName     = "storage: missing database data source name"
	errorMessageOpenDatabase              = "storage: open database"
	errorMessageOpenSQLiteDatabase        = "storage: open sqlite database"
	errorMessageCreateDataDirectory       = "storage: create data directory"
)

var (
	// ErrMissingDatabaseDriverName indicates the database driver name configuration was omitted.
	ErrMissingDatabaseDriverName = errors.New(errorMessageMissingDatabaseDriverName)
	// ErrUnsupportedDatabaseDriver indicates the provided database driver is not supported.
	ErrUnsupportedDatabaseDriver = errors.New(errorMessageUnsupportedDatabaseDriver)
	// ErrMissingDataSourceName indicates the database data source name configuration was omitted.
	ErrMissingDataSourceName = errors.New(errorMessageMissingDataSourceName)
)

type databaseOpener func(Config) (*gorm.DB, error)

var databaseOpeners = map[string]databaseOpener{
	DriverNameSQLite: openSQLiteDatabase,
}

// Config captures database connection configuration.
type Config struct {
	DriverName     string
	DataSourceName string
	// Quiet silences gorm statement logging.
	Quiet bool
}

// OpenDatabase opens a database connection using the configured driver and data source name.
func OpenDatabase(configuration Config) (*gorm.DB, error) {
	trimmedDriverName := strings.TrimSpace(configuration.DriverName)
	if trimmedDriverName == "" {
		return nil, ErrMissingDatabaseDriverName
	}

	opener, driverSupported := databaseOpeners[trimmedDriverName]
	if !driverSupported {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDatabaseDriver, trimmedDriverName)
	}

	database, openErr := opener(Config{
		DriverName:     trimmedDriverName,
		DataSourceName: strings.TrimSpace(configuration.DataSourceName),
		Quiet:          configuration.Quiet,
	})
	if openErr != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageOpenDatabase, openErr)
	}

	return database, nil
}

func openSQLiteDatabase(configuration Config) (*gorm.DB, error) {
	if configuration.DataSourceName == "" {
		return nil, ErrMissingDataSourceName
	}

	gormConfig := &gorm.Config{}
	if configuration.Quiet {
		gormConfig.Logger = gormlogger.Default.LogMode(gormlogger.Silent)
	}
	database, openErr := gorm.Open(sqlite.Open(configuration.DataSourceName), gormConfig)
	if openErr != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageOpenSQLiteDatabase, openErr)
	}

	return database, nil
}

// EnsureDataDirectory creates the parent directory of a file backed SQLite data source.
func EnsureDataDirectory(dataSourceName string) error {
	path := SQLiteFilePath(dataSourceName)
	if path == "" {
		return nil
	}
	directory := filepath.Dir(path)
	if directory == "." || directory == "" {
		return nil
	}
	if mkdirErr := os.MkdirAll(directory, dataDirectoryPermissions); mkdirErr != nil {
		return fmt.Errorf("%s: %w", errorMessageCreateDataDirectory, mkdirErr)
	}
	return nil
}

// SQLiteFilePath returns the file path of a SQLite data source, or an empty
// string for in-memory databases.
func SQLiteFilePath(dataSourceName string) string {
	trimmed := strings.TrimSpace(dataSourceName)
	if trimmed == "" || trimmed == sqliteMemoryDataSourceName || strings.Contains(trimmed, sqliteMemoryModeParameter) {
		return ""
	}
	trimmed = strings.TrimPrefix(trimmed, sqliteFilePrefix)
	if separatorIndex := strings.Index(trimmed, sqliteQuerySeparator); separatorIndex >= 0 {
		trimmed = trimmed[:separatorIndex]
	}
	return trimmed
}

// AutoMigrate runs database migrations for the run ledger models.
func AutoMigrate(database *gorm.DB) error {
	return database.AutoMigrate(&model.Run{}, &model.CaseResult{})
}

// NewID generates a new globally unique identifier.
func NewID() string {
	return uuid.NewString()
}
