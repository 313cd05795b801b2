package scenario

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/account"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/browser"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/config"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/session"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/storefront"
)

const (
	defaultCaseTimeout = 2 * time.Minute
	defaultParallelism = 1
)

// RunDetails describes a run before its first case starts.
type RunDetails struct {
	Store     string
	Suites    []string
	Backend   string
	Seed      int64
	CaseCount int
	Started   time.Time
}

// CaseOutcome is the result of one case.
type CaseOutcome struct {
	Suite         string
	Name          string
	Err           error
	ConsoleErrors []string
	Exceptions    []string
	Seed          int64
	Started       time.Time
	Duration      time.Duration
}

// Passed reports whether the case finished without error.
func (outcome CaseOutcome) Passed() bool {
	return outcome.Err == nil
}

// Summary aggregates a finished run.
type Summary struct {
	Details  RunDetails
	Outcomes []CaseOutcome
	Passed   int
	Failed   int
	Finished time.Time
}

// Err returns ErrCasesFailed with the failure count, or nil when all cases passed.
func (summary Summary) Err() error {
	if summary.Failed == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d", ErrCasesFailed, summary.Failed, len(summary.Outcomes))
}

// Hooks observe the run lifecycle. Implementations must be safe for
// concurrent CaseFinished calls.
type Hooks interface {
	BeforeRun(ctx context.Context, details RunDetails) error
	CaseFinished(ctx context.Context, outcome CaseOutcome) error
	AfterRun(ctx context.Context, summary Summary) error
}

// RunnerConfig wires a Runner.
type RunnerConfig struct {
	Factory     browser.Factory
	Snapshot    config.Snapshot
	Backend     string
	Seed        int64
	Parallelism int
	CaseTimeout time.Duration
	Hooks       []Hooks
	Sessions    *session.Cache
	Login       *account.QuickLogin
	Credentials CredentialsLoader
	PageOptions []storefront.Option
	Logger      *zap.Logger
}

// Runner executes suites case by case, each in its own browser context.
type Runner struct {
	configuration RunnerConfig
	logger        *zap.Logger
}

// NewRunner fills defaults for the optional parts of configuration.
func NewRunner(configuration RunnerConfig) *Runner {
	if configuration.Logger == nil {
		configuration.Logger = zap.NewNop()
	}
	if configuration.Parallelism <= 0 {
		configuration.Parallelism = defaultParallelism
	}
	if configuration.CaseTimeout <= 0 {
		configuration.CaseTimeout = defaultCaseTimeout
	}
	if configuration.Sessions == nil {
		configuration.Sessions = session.NewCache(configuration.Logger)
	}
	if configuration.Login == nil {
		configuration.Login = account.NewQuickLogin(configuration.Snapshot, configuration.Logger)
	}
	if configuration.Credentials == nil {
		fixturePath := configuration.Snapshot.AccountFixture
		configuration.Credentials = func() (config.Credentials, error) {
			return config.LoadAccountFixture(fixturePath)
		}
	}
	return &Runner{configuration: configuration, logger: configuration.Logger}
}

type caseJob struct {
	suite Suite
	test  Case
	index int
}

// Run executes every case of suites and returns the summary. Case failures
// are reported in the summary; the returned error covers hook failures and
// cancellation only.
func (runner *Runner) Run(ctx context.Context, suites []Suite) (Summary, error) {
	var jobs []caseJob
	suiteNames := make([]string, 0, len(suites))
	for _, suite := range suites {
		suiteNames = append(suiteNames, suite.Name)
		for _, test := range suite.Cases {
			jobs = append(jobs, caseJob{suite: suite, test: test, index: len(jobs)})
		}
	}

	details := RunDetails{
		Store:     runner.configuration.Snapshot.Store,
		Suites:    suiteNames,
		Backend:   runner.configuration.Backend,
		Seed:      runner.configuration.Seed,
		CaseCount: len(jobs),
		Started:   time.Now().UTC(),
	}
	runner.logger.Info("run_started",
		zap.String("store", details.Store),
		zap.Strings("suites", details.Suites),
		zap.Int("cases", details.CaseCount),
		zap.Int64("seed", details.Seed),
		zap.Int("parallelism", runner.configuration.Parallelism),
	)
	for _, hook := range runner.configuration.Hooks {
		if hookErr := hook.BeforeRun(ctx, details); hookErr != nil {
			return Summary{Details: details}, fmt.Errorf("before run hook: %w", hookErr)
		}
	}

	outcomes := make([]CaseOutcome, len(jobs))
	var hookMutex sync.Mutex
	var hookErrors []error

	var group errgroup.Group
	group.SetLimit(runner.configuration.Parallelism)
	for _, job := range jobs {
		job := job
		group.Go(func() error {
			outcome := runner.runCase(ctx, job)
			outcomes[job.index] = outcome
			for _, hook := range runner.configuration.Hooks {
				if hookErr := hook.CaseFinished(ctx, outcome); hookErr != nil {
					hookMutex.Lock()
					hookErrors = append(hookErrors, hookErr)
					hookMutex.Unlock()
				}
			}
			return nil
		})
	}
	_ = group.Wait()

	summary := Summary{Details: details, Outcomes: outcomes, Finished: time.Now().UTC()}
	for _, outcome := range outcomes {
		if outcome.Passed() {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}
	runner.logger.Info("run_finished",
		zap.Int("passed", summary.Passed),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Finished.Sub(details.Started)),
	)

	for _, hook := range runner.configuration.Hooks {
		if hookErr := hook.AfterRun(ctx, summary); hookErr != nil {
			hookErrors = append(hookErrors, fmt.Errorf("after run hook: %w", hookErr))
		}
	}
	if len(hookErrors) > 0 {
		return summary, errors.Join(hookErrors...)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return summary, ctxErr
	}
	return summary, nil
}

func (runner *Runner) runCase(parent context.Context, job caseJob) CaseOutcome {
	caseSeed := runner.configuration.Seed + int64(job.index)
	outcome := CaseOutcome{Suite: job.suite.Name, Name: job.test.Name, Seed: caseSeed, Started: time.Now().UTC()}
	caseLogger := runner.logger.With(zap.String("suite", job.suite.Name), zap.String("case", job.test.Name))

	ctx, cancel := context.WithTimeout(parent, runner.configuration.CaseTimeout)
	defer cancel()

	driver, driverErr := runner.configuration.Factory.NewDriver(ctx)
	if driverErr != nil {
		outcome.Err = fmt.Errorf("start browser: %w", driverErr)
		outcome.Duration = time.Since(outcome.Started)
		caseLogger.Error("case_failed", zap.Error(outcome.Err))
		return outcome
	}
	defer func() {
		if closeErr := driver.Close(); closeErr != nil {
			caseLogger.Warn("browser_close_failed", zap.Error(closeErr))
		}
	}()

	pageOptions := append([]storefront.Option{
		storefront.WithLogger(caseLogger),
		storefront.WithSeed(uint64(caseSeed)),
	}, runner.configuration.PageOptions...)
	scenarioContext := &Context{
		Driver:      driver,
		Pages:       storefront.New(driver, runner.configuration.Snapshot, pageOptions...),
		Snapshot:    runner.configuration.Snapshot,
		Sessions:    runner.configuration.Sessions,
		Login:       runner.configuration.Login,
		Credentials: runner.configuration.Credentials,
		Logger:      caseLogger,
		State:       &State{},
		Seed:        caseSeed,
	}

	var caseErr error
	if job.suite.BeforeEach != nil {
		if hookErr := job.suite.BeforeEach(ctx, scenarioContext); hookErr != nil {
			caseErr = fmt.Errorf("before each: %w", hookErr)
		}
	}
	if caseErr == nil && job.test.Run != nil {
		caseErr = job.test.Run(ctx, scenarioContext)
	}

	entries := driver.Logs()
	for _, entry := range browser.ConsoleErrors(entries) {
		outcome.ConsoleErrors = append(outcome.ConsoleErrors, entry.Text)
	}
	for _, entry := range browser.UncaughtExceptions(entries, runner.configuration.Snapshot.IgnoredExceptions) {
		outcome.Exceptions = append(outcome.Exceptions, entry.Text)
	}
	if caseErr == nil && len(outcome.Exceptions) > 0 {
		caseErr = fmt.Errorf("%w: %s", ErrUncaughtException, outcome.Exceptions[0])
	}

	outcome.Err = caseErr
	outcome.Duration = time.Since(outcome.Started)
	if caseErr != nil {
		caseLogger.Error("case_failed", zap.Error(caseErr), zap.Int64("seed", caseSeed), zap.Duration("duration", outcome.Duration))
		for _, consoleError := range outcome.ConsoleErrors {
			caseLogger.Warn("console_error", zap.String("text", consoleError))
		}
		return outcome
	}
	caseLogger.Info("case_passed", zap.Duration("duration", outcome.Duration))
	return outcome
}
