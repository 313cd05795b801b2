package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/config"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/model"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/scenario"
)

const (
	overwrittenReportFileName = "report.json"
	runReportFileNamePattern  = "run-%s.json"
	reportDirectoryMode       = 0o755
	reportFileMode            = 0o644
	reportIndentPrefix        = ""
	reportIndent              = "  "
)

// ErrRunNotStarted is returned when case or run completion arrives before BeforeRun.
var ErrRunNotStarted = errors.New("report: run not started")

// Recorder implements scenario.Hooks. It writes to the ledger when a store
// is configured and to a JSON report when enabled.
type Recorder struct {
	store     *Store
	settings  config.ReporterSettings
	logger    *zap.Logger
	mutex     sync.Mutex
	run       *model.Run
	cases     []model.CaseResult
	writtenTo string
}

// NewRecorder builds a recorder. store may be nil.
func NewRecorder(store *Store, settings config.ReporterSettings, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, settings: settings, logger: logger}
}

func (recorder *Recorder) BeforeRun(ctx context.Context, details scenario.RunDetails) error {
	run, runErr := model.NewRun(model.RunInput{
		Store:   details.Store,
		Suites:  details.Suites,
		Backend: details.Backend,
		Seed:    details.Seed,
		Started: details.Started,
	})
	if runErr != nil {
		return fmt.Errorf("report: new run: %w", runErr)
	}
	if recorder.store != nil {
		if createErr := recorder.store.CreateRun(ctx, &run); createErr != nil {
			return createErr
		}
	}

	recorder.mutex.Lock()
	recorder.run = &run
	recorder.cases = nil
	recorder.writtenTo = ""
	recorder.mutex.Unlock()
	recorder.logger.Info("report_run_started", zap.String("run_id", run.ID))
	return nil
}

func (recorder *Recorder) CaseFinished(ctx context.Context, outcome scenario.CaseOutcome) error {
	recorder.mutex.Lock()
	run := recorder.run
	recorder.mutex.Unlock()
	if run == nil {
		return ErrRunNotStarted
	}

	result, resultErr := model.NewCaseResult(model.CaseResultInput{
		RunID:         run.ID,
		Suite:         outcome.Suite,
		Name:          outcome.Name,
		Err:           outcome.Err,
		ConsoleErrors: outcome.ConsoleErrors,
		Seed:          outcome.Seed,
		Started:       outcome.Started,
		Duration:      outcome.Duration,
	})
	if resultErr != nil {
		return fmt.Errorf("report: new case result: %w", resultErr)
	}
	if recorder.store != nil {
		if addErr := recorder.store.AddCase(ctx, &result); addErr != nil {
			return addErr
		}
	}

	recorder.mutex.Lock()
	recorder.cases = append(recorder.cases, result)
	recorder.mutex.Unlock()
	return nil
}

func (recorder *Recorder) AfterRun(ctx context.Context, summary scenario.Summary) error {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	if recorder.run == nil {
		return ErrRunNotStarted
	}

	recorder.run.Finish(summary.Passed, summary.Failed, summary.Finished)
	recorder.run.Cases = append([]model.CaseResult(nil), recorder.cases...)
	if recorder.store != nil {
		if finishErr := recorder.store.FinishRun(ctx, recorder.run); finishErr != nil {
			return finishErr
		}
	}
	if recorder.settings.JSON {
		path, writeErr := recorder.writeJSON(*recorder.run)
		if writeErr != nil {
			return writeErr
		}
		recorder.writtenTo = path
	}
	recorder.logger.Info("report_run_finished",
		zap.String("run_id", recorder.run.ID),
		zap.String("status", recorder.run.Status),
		zap.String("report", recorder.writtenTo),
	)
	return nil
}

// Run returns a copy of the current or last finished run.
func (recorder *Recorder) Run() (model.Run, bool) {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	if recorder.run == nil {
		return model.Run{}, false
	}
	return *recorder.run, true
}

// ReportPath is the JSON report written by the last AfterRun, if any.
func (recorder *Recorder) ReportPath() string {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	return recorder.writtenTo
}

func (recorder *Recorder) writeJSON(run model.Run) (string, error) {
	directory := recorder.settings.Directory
	if mkdirErr := os.MkdirAll(directory, reportDirectoryMode); mkdirErr != nil {
		return "", fmt.Errorf("report: create report directory: %w", mkdirErr)
	}
	fileName := fmt.Sprintf(runReportFileNamePattern, run.ID)
	if recorder.settings.Overwrite {
		fileName = overwrittenReportFileName
	}
	payload, encodeErr := json.MarshalIndent(run, reportIndentPrefix, reportIndent)
	if encodeErr != nil {
		return "", fmt.Errorf("report: encode run: %w", encodeErr)
	}
	path := filepath.Join(directory, fileName)
	if writeErr := os.WriteFile(path, payload, reportFileMode); writeErr != nil {
		return "", fmt.Errorf("report: write %s: %w", path, writeErr)
	}
	return path, nil
}

var _ scenario.Hooks = (*Recorder)(nil)
