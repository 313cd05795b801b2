package scenario_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/account"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/browser"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/browser/browsertest"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/config"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/scenario"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/storefront"
)

type recordingHooks struct {
	mutex    sync.Mutex
	events   []string
	outcomes []scenario.CaseOutcome
	summary  scenario.Summary
	details  scenario.RunDetails
	failWith error
}

func (hooks *recordingHooks) BeforeRun(ctx context.Context, details scenario.RunDetails) error {
	hooks.mutex.Lock()
	defer hooks.mutex.Unlock()
	hooks.events = append(hooks.events, "before")
	hooks.details = details
	return hooks.failWith
}

func (hooks *recordingHooks) CaseFinished(ctx context.Context, outcome scenario.CaseOutcome) error {
	hooks.mutex.Lock()
	defer hooks.mutex.Unlock()
	hooks.events = append(hooks.events, "case")
	hooks.outcomes = append(hooks.outcomes, outcome)
	return nil
}

func (hooks *recordingHooks) AfterRun(ctx context.Context, summary scenario.Summary) error {
	hooks.mutex.Lock()
	defer hooks.mutex.Unlock()
	hooks.events = append(hooks.events, "after")
	hooks.summary = summary
	return nil
}

func fastPageOptions() []storefront.Option {
	return []storefront.Option{
		storefront.WithPollInterval(5 * time.Millisecond),
		storefront.WithSubmitSettle(20 * time.Millisecond),
	}
}

func newTestRunner(factory browser.Factory, hooks ...scenario.Hooks) *scenario.Runner {
	snapshot := scriptedSnapshot()
	return scenario.NewRunner(scenario.RunnerConfig{
		Factory:     factory,
		Snapshot:    snapshot,
		Backend:     "scripted",
		Seed:        100,
		Parallelism: 3,
		Hooks:       hooks,
		PageOptions: fastPageOptions(),
		Login:       account.NewQuickLogin(snapshot, nil, account.WithTransport(&loginTransport{})),
		Credentials: func() (config.Credentials, error) {
			return config.Credentials{User: "shopper@example.com", Password: "secret"}, nil
		},
	})
}

func TestParseSuiteSelection(testingT *testing.T) {
	testCases := []struct {
		input    string
		expected []string
		err      error
	}{
		{input: "", expected: []string{"Password Page", "Purchase Flow"}},
		{input: "all", expected: []string{"Password Page", "Purchase Flow"}},
		{input: " Password ", expected: []string{"Password Page"}},
		{input: "purchase,password,purchase", expected: []string{"Purchase Flow", "Password Page"}},
		{input: "checkout", err: scenario.ErrInvalidSuiteSelection},
	}

	for _, testCase := range testCases {
		suites, parseErr := scenario.ParseSuiteSelection(testCase.input)
		if testCase.err != nil {
			require.ErrorIs(testingT, parseErr, testCase.err)
			continue
		}
		require.NoError(testingT, parseErr)
		names := make([]string, 0, len(suites))
		for _, suite := range suites {
			names = append(names, suite.Name)
		}
		require.Equal(testingT, testCase.expected, names)
	}
}

func TestRunnerReportsOutcomesAndHooks(testingT *testing.T) {
	caseErr := errors.New("sidecart stayed closed")
	var beforeEachCalls sync.Map
	suite := scenario.Suite{
		Name: "Synthetic",
		BeforeEach: func(ctx context.Context, scenarioContext *scenario.Context) error {
			beforeEachCalls.Store(scenarioContext.Seed, true)
			return scenarioContext.Visit(ctx, scenarioContext.Snapshot.PreviewURL())
		},
		Cases: []scenario.Case{
			{Name: "passes", Run: func(context.Context, *scenario.Context) error { return nil }},
			{Name: "fails", Run: func(context.Context, *scenario.Context) error { return caseErr }},
			{Name: "throws", Run: func(ctx context.Context, scenarioContext *scenario.Context) error {
				driver := scenarioContext.Driver.(*browsertest.Driver)
				driver.AddLog(browser.LogEntry{Kind: browser.LogKindUncaughtException, Text: "ReferenceError: Shopify is not defined"})
				driver.AddLog(browser.LogEntry{Kind: browser.LogKindConsoleError, Text: "Failed to load resource"})
				return nil
			}},
			{Name: "ignored exception", Run: func(ctx context.Context, scenarioContext *scenario.Context) error {
				driver := scenarioContext.Driver.(*browsertest.Driver)
				driver.AddLog(browser.LogEntry{Kind: browser.LogKindUncaughtException, Text: "TypeError: t.initialize is not a function"})
				return nil
			}},
		},
	}

	factory := &browsertest.Factory{}
	hooks := &recordingHooks{}
	summary, runErr := newTestRunner(factory, hooks).Run(context.Background(), []scenario.Suite{suite})
	require.NoError(testingT, runErr)

	require.Equal(testingT, 2, summary.Passed)
	require.Equal(testingT, 2, summary.Failed)
	require.ErrorIs(testingT, summary.Err(), scenario.ErrCasesFailed)
	require.ErrorIs(testingT, summary.Outcomes[1].Err, caseErr)
	require.ErrorIs(testingT, summary.Outcomes[2].Err, scenario.ErrUncaughtException)
	require.Equal(testingT, []string{"Failed to load resource"}, summary.Outcomes[2].ConsoleErrors)
	require.NoError(testingT, summary.Outcomes[3].Err)

	seeds := map[int64]bool{}
	for _, outcome := range summary.Outcomes {
		seeds[outcome.Seed] = true
	}
	require.Len(testingT, seeds, 4)

	require.Len(testingT, factory.Drivers(), 4)
	for _, driver := range factory.Drivers() {
		require.True(testingT, driver.Closed())
	}

	require.Equal(testingT, "before", hooks.events[0])
	require.Equal(testingT, "after", hooks.events[len(hooks.events)-1])
	require.Len(testingT, hooks.outcomes, 4)
	require.Equal(testingT, 4, hooks.details.CaseCount)
	require.Equal(testingT, []string{"Synthetic"}, hooks.details.Suites)
	require.Equal(testingT, 2, hooks.summary.Failed)
}

func TestRunnerStopsWhenBeforeRunFails(testingT *testing.T) {
	hookErr := errors.New("report directory not writable")
	factory := &browsertest.Factory{}
	hooks := &recordingHooks{failWith: hookErr}

	_, runErr := newTestRunner(factory, hooks).Run(context.Background(), []scenario.Suite{scenario.PasswordSuite()})
	require.ErrorIs(testingT, runErr, hookErr)
	require.Empty(testingT, factory.Drivers())
}

func TestPasswordSuiteAgainstScriptedStore(testingT *testing.T) {
	factory := &browsertest.Factory{Build: newScriptedStoreDriver}

	summary, runErr := newTestRunner(factory).Run(context.Background(), []scenario.Suite{scenario.PasswordSuite()})
	require.NoError(testingT, runErr)
	for _, outcome := range summary.Outcomes {
		require.NoError(testingT, outcome.Err, outcome.Name)
	}
	require.Equal(testingT, 4, summary.Passed)
}

func TestPurchaseSuiteAgainstScriptedStore(testingT *testing.T) {
	factory := &browsertest.Factory{Build: newScriptedStoreDriver}

	summary, runErr := newTestRunner(factory).Run(context.Background(), []scenario.Suite{scenario.PurchaseSuite()})
	require.NoError(testingT, runErr)
	for _, outcome := range summary.Outcomes {
		require.NoError(testingT, outcome.Err, outcome.Name)
	}
	require.Equal(testingT, 10, summary.Passed)

	unlockCount := 0
	for _, driver := range factory.Drivers() {
		for _, typed := range driver.Typed() {
			if typed == scriptedStorePassword {
				unlockCount++
			}
		}
	}
	require.Equal(testingT, 1, unlockCount)
}

func TestPurchaseSuiteFailsWithoutGatePassword(testingT *testing.T) {
	factory := &browsertest.Factory{Build: newScriptedStoreDriver}
	snapshot := scriptedSnapshot()
	snapshot.PasswordStore = "outdated"
	runner := scenario.NewRunner(scenario.RunnerConfig{
		Factory:     factory,
		Snapshot:    snapshot,
		Parallelism: 2,
		PageOptions: fastPageOptions(),
	})

	summary, runErr := runner.Run(context.Background(), []scenario.Suite{scenario.PurchaseSuite()})
	require.NoError(testingT, runErr)
	require.Zero(testingT, summary.Passed)
	var assertionErr *storefront.AssertionError
	require.ErrorAs(testingT, summary.Outcomes[0].Err, &assertionErr)
}
