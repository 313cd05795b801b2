// Package report records run outcomes in a SQLite ledger and as JSON report files.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/model"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/storage"
)

const (
	defaultRecentRunsLimit = 20
	caseOrderClause        = "started_at ASC, name ASC"
	runOrderClause         = "started_at DESC"
)

// ErrRunNotFound is returned when a run id is not in the ledger.
var ErrRunNotFound = errors.New("report: run not found")

// Store persists runs and case results.
type Store struct {
	database *gorm.DB
}

// OpenStore opens the SQLite ledger at dataSourceName, creating its directory and tables.
func OpenStore(dataSourceName string) (*Store, error) {
	if ensureErr := storage.EnsureDataDirectory(dataSourceName); ensureErr != nil {
		return nil, ensureErr
	}
	database, openErr := storage.OpenDatabase(storage.Config{
		DriverName:     storage.DriverNameSQLite,
		DataSourceName: dataSourceName,
		Quiet:          true,
	})
	if openErr != nil {
		return nil, openErr
	}
	if migrateErr := storage.AutoMigrate(database); migrateErr != nil {
		return nil, fmt.Errorf("report: migrate ledger: %w", migrateErr)
	}
	return NewStore(database), nil
}

// NewStore wraps an already migrated database.
func NewStore(database *gorm.DB) *Store {
	return &Store{database: database}
}

// CreateRun inserts a new run.
func (store *Store) CreateRun(ctx context.Context, run *model.Run) error {
	if createErr := store.database.WithContext(ctx).Omit("Cases").Create(run).Error; createErr != nil {
		return fmt.Errorf("report: create run: %w", createErr)
	}
	return nil
}

// AddCase inserts a case result.
func (store *Store) AddCase(ctx context.Context, result *model.CaseResult) error {
	if createErr := store.database.WithContext(ctx).Create(result).Error; createErr != nil {
		return fmt.Errorf("report: add case %q: %w", result.Name, createErr)
	}
	return nil
}

// FinishRun stores the final counts and status of run.
func (store *Store) FinishRun(ctx context.Context, run *model.Run) error {
	updates := map[string]any{
		"status":      run.Status,
		"passed":      run.Passed,
		"failed":      run.Failed,
		"finished_at": run.FinishedAt,
	}
	result := store.database.WithContext(ctx).Model(&model.Run{}).Where("id = ?", run.ID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("report: finish run: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	return nil
}

// LoadRun returns a run with its cases in start order.
func (store *Store) LoadRun(ctx context.Context, runID string) (model.Run, error) {
	var run model.Run
	loadErr := store.database.WithContext(ctx).
		Preload("Cases", func(database *gorm.DB) *gorm.DB { return database.Order(caseOrderClause) }).
		First(&run, "id = ?", strings.TrimSpace(runID)).Error
	if errors.Is(loadErr, gorm.ErrRecordNotFound) {
		return model.Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if loadErr != nil {
		return model.Run{}, fmt.Errorf("report: load run: %w", loadErr)
	}
	return run, nil
}

// RecentRuns lists the newest runs without their cases.
func (store *Store) RecentRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = defaultRecentRunsLimit
	}
	var runs []model.Run
	if listErr := store.database.WithContext(ctx).Order(runOrderClause).Limit(limit).Find(&runs).Error; listErr != nil {
		return nil, fmt.Errorf("report: list runs: %w", listErr)
	}
	return runs, nil
}

// Close releases the database connection.
func (store *Store) Close() error {
	sqlDatabase, sqlErr := store.database.DB()
	if sqlErr != nil {
		return sqlErr
	}
	return sqlDatabase.Close()
}
