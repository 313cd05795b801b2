package report_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/config"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/model"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/report"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/scenario"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/testutil"
)

const testStoreURL = "https://example-store.myshopify.com"

func newTestStore(testingT *testing.T) *report.Store {
	testingT.Helper()
	return report.NewStore(testutil.NewSQLiteTestDatabase(testingT).OpenMigrated(testingT))
}

func runDetails(started time.Time) scenario.RunDetails {
	return scenario.RunDetails{
		Store:     testStoreURL,
		Suites:    []string{"Password Page", "Purchase Flow"},
		Backend:   "chromedp",
		Seed:      42,
		CaseCount: 2,
		Started:   started,
	}
}

func TestRecorderPersistsRunAndCases(testingT *testing.T) {
	store := newTestStore(testingT)
	directory := testingT.TempDir()
	recorder := report.NewRecorder(store, config.ReporterSettings{Directory: directory, JSON: true}, nil)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(testingT, recorder.BeforeRun(ctx, runDetails(started)))
	require.NoError(testingT, recorder.CaseFinished(ctx, scenario.CaseOutcome{
		Suite: "Password Page", Name: "Should redirect to password page", Seed: 42,
		Started: started, Duration: 1500 * time.Millisecond,
	}))
	require.NoError(testingT, recorder.CaseFinished(ctx, scenario.CaseOutcome{
		Suite: "Purchase Flow", Name: "Add product to cart", Seed: 43,
		Started: started.Add(time.Second), Duration: 3 * time.Second,
		Err:           errors.New("sidecart: expected visible, but got 0 elements"),
		ConsoleErrors: []string{"Failed to load resource"},
	}))
	require.NoError(testingT, recorder.AfterRun(ctx, scenario.Summary{Passed: 1, Failed: 1, Finished: started.Add(5 * time.Second)}))

	recorded, ok := recorder.Run()
	require.True(testingT, ok)
	require.Equal(testingT, model.RunStatusFailed, recorded.Status)

	loaded, loadErr := store.LoadRun(ctx, recorded.ID)
	require.NoError(testingT, loadErr)
	require.Equal(testingT, testStoreURL, loaded.Store)
	require.Equal(testingT, "Password Page,Purchase Flow", loaded.Suites)
	require.Equal(testingT, int64(42), loaded.Seed)
	require.Equal(testingT, model.RunStatusFailed, loaded.Status)
	require.Equal(testingT, 1, loaded.Passed)
	require.Equal(testingT, 1, loaded.Failed)
	require.NotNil(testingT, loaded.FinishedAt)
	require.Len(testingT, loaded.Cases, 2)
	require.Equal(testingT, "Should redirect to password page", loaded.Cases[0].Name)
	require.Equal(testingT, model.CaseStatusPassed, loaded.Cases[0].Status)
	require.Equal(testingT, model.CaseStatusFailed, loaded.Cases[1].Status)
	require.Equal(testingT, "Failed to load resource", loaded.Cases[1].ConsoleErrors)
	require.Equal(testingT, int64(3000), loaded.Cases[1].DurationMillis)

	reportPath := recorder.ReportPath()
	require.Equal(testingT, filepath.Join(directory, "run-"+recorded.ID+".json"), reportPath)
	payload, readErr := os.ReadFile(reportPath)
	require.NoError(testingT, readErr)
	var document model.Run
	require.NoError(testingT, json.Unmarshal(payload, &document))
	require.Equal(testingT, recorded.ID, document.ID)
	require.Len(testingT, document.Cases, 2)
}

func TestRecorderOverwritesSingleReport(testingT *testing.T) {
	directory := testingT.TempDir()
	recorder := report.NewRecorder(nil, config.ReporterSettings{Directory: directory, JSON: true, Overwrite: true}, nil)
	ctx := context.Background()

	for iteration := 0; iteration < 2; iteration++ {
		require.NoError(testingT, recorder.BeforeRun(ctx, runDetails(time.Now().UTC())))
		require.NoError(testingT, recorder.CaseFinished(ctx, scenario.CaseOutcome{Suite: "Password Page", Name: "Should show password field"}))
		require.NoError(testingT, recorder.AfterRun(ctx, scenario.Summary{Passed: 1}))
	}

	entries, readErr := os.ReadDir(directory)
	require.NoError(testingT, readErr)
	require.Len(testingT, entries, 1)
	require.Equal(testingT, "report.json", entries[0].Name())

	recorded, _ := recorder.Run()
	require.Equal(testingT, model.RunStatusPassed, recorded.Status)
	require.Len(testingT, recorded.Cases, 1)
}

func TestRecorderSkipsJSONWhenDisabled(testingT *testing.T) {
	directory := filepath.Join(testingT.TempDir(), "reports")
	recorder := report.NewRecorder(nil, config.ReporterSettings{Directory: directory}, nil)
	ctx := context.Background()

	require.NoError(testingT, recorder.BeforeRun(ctx, runDetails(time.Now().UTC())))
	require.NoError(testingT, recorder.AfterRun(ctx, scenario.Summary{}))
	require.Empty(testingT, recorder.ReportPath())
	_, statErr := os.Stat(directory)
	require.True(testingT, os.IsNotExist(statErr))
}

func TestRecorderRequiresStartedRun(testingT *testing.T) {
	recorder := report.NewRecorder(nil, config.ReporterSettings{}, nil)
	ctx := context.Background()

	require.ErrorIs(testingT, recorder.CaseFinished(ctx, scenario.CaseOutcome{Name: "orphan"}), report.ErrRunNotStarted)
	require.ErrorIs(testingT, recorder.AfterRun(ctx, scenario.Summary{}), report.ErrRunNotStarted)
}

func TestRecorderRejectsRunWithoutStore(testingT *testing.T) {
	recorder := report.NewRecorder(nil, config.ReporterSettings{}, nil)
	beforeErr := recorder.BeforeRun(context.Background(), scenario.RunDetails{Store: "  "})
	require.ErrorIs(testingT, beforeErr, model.ErrInvalidRunStore)
}

func TestStoreLoadRunNotFound(testingT *testing.T) {
	store := newTestStore(testingT)
	_, loadErr := store.LoadRun(context.Background(), "missing")
	require.ErrorIs(testingT, loadErr, report.ErrRunNotFound)

	run, runErr := model.NewRun(model.RunInput{Store: testStoreURL})
	require.NoError(testingT, runErr)
	require.ErrorIs(testingT, store.FinishRun(context.Background(), &run), report.ErrRunNotFound)
}

func TestStoreRecentRunsNewestFirst(testingT *testing.T) {
	store := newTestStore(testingT)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var identifiers []string
	for offset := 0; offset < 3; offset++ {
		run, runErr := model.NewRun(model.RunInput{Store: testStoreURL, Started: base.Add(time.Duration(offset) * time.Hour)})
		require.NoError(testingT, runErr)
		require.NoError(testingT, store.CreateRun(ctx, &run))
		identifiers = append(identifiers, run.ID)
	}

	runs, listErr := store.RecentRuns(ctx, 2)
	require.NoError(testingT, listErr)
	require.Len(testingT, runs, 2)
	require.Equal(testingT, identifiers[2], runs[0].ID)
	require.Equal(testingT, identifiers[1], runs[1].ID)
}

func TestOpenStoreCreatesLedgerFile(testingT *testing.T) {
	path := filepath.Join(testingT.TempDir(), "ledger", "runs.db")
	store, openErr := report.OpenStore("file:" + path + "?_foreign_keys=on")
	require.NoError(testingT, openErr)
	testingT.Cleanup(func() { _ = store.Close() })

	run, runErr := model.NewRun(model.RunInput{Store: testStoreURL})
	require.NoError(testingT, runErr)
	require.NoError(testingT, store.CreateRun(context.Background(), &run))
	_, statErr := os.Stat(path)
	require.NoError(testingT, statErr)
}
