package model

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RunStatusRunning = "running"
	RunStatusPassed  = "passed"
	RunStatusFailed  = "failed"

	CaseStatusPassed = "passed"
	CaseStatusFailed = "failed"

	runStoreMaxLength       = 500
	runLabelMaxLength       = 200
	caseNameMaxLength       = 300
	caseErrorMaxLength      = 4000
	caseConsoleLogMaxLength = 4000
	consoleLogSeparator     = "\n"
)

var (
	ErrInvalidRunID    = errors.New("invalid_run_id")
	ErrInvalidRunStore = errors.New("invalid_run_store")
	ErrInvalidCaseName = errors.New("invalid_case_name")
)

// Run is one execution of the selected suites against a store.
type Run struct {
	ID         string       `gorm:"primaryKey;size:36" json:"id"`
	Store      string       `gorm:"not null;size:500" json:"store"`
	Suites     string       `gorm:"size:200" json:"suites"`
	Backend    string       `gorm:"size:20" json:"backend"`
	Seed       int64        `json:"seed"`
	Status     string       `gorm:"not null;size:20;index" json:"status"`
	Passed     int          `json:"passed"`
	Failed     int          `json:"failed"`
	StartedAt  time.Time    `gorm:"not null;index" json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Cases      []CaseResult `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"cases"`
}

// RunInput holds the values known when a run starts.
type RunInput struct {
	Store   string
	Suites  []string
	Backend string
	Seed    int64
	Started time.Time
}

// NewRun constructs a validated running Run.
func NewRun(input RunInput) (Run, error) {
	store := strings.TrimSpace(input.Store)
	if store == "" {
		return Run{}, ErrInvalidRunStore
	}
	started := input.Started
	if started.IsZero() {
		started = time.Now().UTC()
	}
	return Run{
		ID:        uuid.NewString(),
		Store:     truncateString(store, runStoreMaxLength),
		Suites:    truncateString(strings.Join(input.Suites, ","), runLabelMaxLength),
		Backend:   strings.TrimSpace(input.Backend),
		Seed:      input.Seed,
		Status:    RunStatusRunning,
		StartedAt: started,
	}, nil
}

// Finish closes the run with the counted outcomes.
func (run *Run) Finish(passed int, failed int, finished time.Time) {
	if finished.IsZero() {
		finished = time.Now().UTC()
	}
	run.Passed = passed
	run.Failed = failed
	run.FinishedAt = &finished
	run.Status = RunStatusPassed
	if failed > 0 {
		run.Status = RunStatusFailed
	}
}

// CaseResult is the outcome of one scenario case within a run.
type CaseResult struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	RunID          string    `gorm:"not null;size:36;index" json:"run_id"`
	Suite          string    `gorm:"not null;size:200;index" json:"suite"`
	Name           string    `gorm:"not null;size:300" json:"name"`
	Status         string    `gorm:"not null;size:20" json:"status"`
	Error          string    `gorm:"size:4000" json:"error,omitempty"`
	ConsoleErrors  string    `gorm:"size:4000" json:"console_errors,omitempty"`
	Seed           int64     `json:"seed"`
	DurationMillis int64     `json:"duration_ms"`
	StartedAt      time.Time `gorm:"not null" json:"started_at"`
}

// CaseResultInput holds the observed outcome of a case.
type CaseResultInput struct {
	RunID         string
	Suite         string
	Name          string
	Err           error
	ConsoleErrors []string
	Seed          int64
	Started       time.Time
	Duration      time.Duration
}

// NewCaseResult constructs a validated CaseResult. A nil Err marks the case passed.
func NewCaseResult(input CaseResultInput) (CaseResult, error) {
	runID := strings.TrimSpace(input.RunID)
	if runID == "" {
		return CaseResult{}, ErrInvalidRunID
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return CaseResult{}, ErrInvalidCaseName
	}
	started := input.Started
	if started.IsZero() {
		started = time.Now().UTC()
	}

	result := CaseResult{
		ID:             uuid.NewString(),
		RunID:          runID,
		Suite:          truncateString(strings.TrimSpace(input.Suite), runLabelMaxLength),
		Name:           truncateString(name, caseNameMaxLength),
		Status:         CaseStatusPassed,
		ConsoleErrors:  truncateString(strings.Join(input.ConsoleErrors, consoleLogSeparator), caseConsoleLogMaxLength),
		Seed:           input.Seed,
		DurationMillis: input.Duration.Milliseconds(),
		StartedAt:      started,
	}
	if input.Err != nil {
		result.Status = CaseStatusFailed
		result.Error = truncateString(input.Err.Error(), caseErrorMaxLength)
	}
	return result, nil
}

func truncateString(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
