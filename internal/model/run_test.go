package model

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRunValidatesAndNormalizes(t *testing.T) {
	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	run, err := NewRun(RunInput{
		Store:   "  https://example-store.myshopify.com ",
		Suites:  []string{"password", "purchase"},
		Backend: " chromedp ",
		Seed:    42,
		Started: started,
	})
	require.NoError(t, err)
	require.Len(t, run.ID, 36)
	require.Equal(t, "https://example-store.myshopify.com", run.Store)
	require.Equal(t, "password,purchase", run.Suites)
	require.Equal(t, "chromedp", run.Backend)
	require.Equal(t, RunStatusRunning, run.Status)
	require.Equal(t, started, run.StartedAt)

	_, err = NewRun(RunInput{})
	require.ErrorIs(t, err, ErrInvalidRunStore)
}

func TestRunFinishDerivesStatus(t *testing.T) {
	finished := time.Date(2026, 3, 1, 9, 31, 0, 0, time.UTC)
	run := Run{Status: RunStatusRunning}
	run.Finish(3, 0, finished)
	require.Equal(t, RunStatusPassed, run.Status)
	require.Equal(t, finished, *run.FinishedAt)

	run.Finish(2, 1, finished)
	require.Equal(t, RunStatusFailed, run.Status)
	require.Equal(t, 1, run.Failed)
}

func TestNewCaseResultRecordsOutcome(t *testing.T) {
	passed, err := NewCaseResult(CaseResultInput{RunID: "run-1", Suite: "Password Page", Name: "url contains password", Duration: 1500 * time.Millisecond})
	require.NoError(t, err)
	require.Equal(t, CaseStatusPassed, passed.Status)
	require.Empty(t, passed.Error)
	require.Equal(t, int64(1500), passed.DurationMillis)

	failed, err := NewCaseResult(CaseResultInput{
		RunID:         "run-1",
		Name:          "sidecart opens",
		Err:           errors.New(strings.Repeat("x", caseErrorMaxLength+10)),
		ConsoleErrors: []string{"first", "second"},
	})
	require.NoError(t, err)
	require.Equal(t, CaseStatusFailed, failed.Status)
	require.Len(t, failed.Error, caseErrorMaxLength)
	require.Equal(t, "first\nsecond", failed.ConsoleErrors)
}

func TestNewCaseResultRequiresIdentity(t *testing.T) {
	_, err := NewCaseResult(CaseResultInput{Name: "case"})
	require.ErrorIs(t, err, ErrInvalidRunID)

	_, err = NewCaseResult(CaseResultInput{RunID: "run-1", Name: "  "})
	require.ErrorIs(t, err, ErrInvalidCaseName)
}
