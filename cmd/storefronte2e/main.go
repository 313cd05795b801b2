package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/browser"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/config"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/report"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/scenario"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/task"
)

const (
	commandUseName               = "storefronte2e"
	commandShortDescription      = "Run the storefront end-to-end suites"
	commandLongDescription       = "Drive a headless browser through the password gate, sidecart and product pages of a Shopify storefront"
	flagNameConfig               = "config"
	flagNameEnvFile              = "env-file"
	flagNameSuite                = "suite"
	flagNameSeed                 = "seed"
	flagNameParallel             = "parallel"
	flagNameBackend              = "backend"
	flagNameRepeatEvery          = "repeat-every"
	flagNameRepeatCount          = "repeat-count"
	flagNameCaseTimeout          = "case-timeout"
	flagNameDebug                = "debug"
	flagUsageConfig              = "path to the suite configuration file"
	flagUsageEnvFile             = "dotenv files loaded before the configuration (repeatable)"
	flagUsageSuite               = "suites to run: password, purchase or all (comma separated)"
	flagUsageSeed                = "seed for random variant selection; 0 picks one from the clock"
	flagUsageParallel            = "number of cases run concurrently"
	flagUsageBackend             = "browser backend: chromedp, rod or playwright"
	flagUsageRepeatEvery         = "repeat the run on this interval until interrupted (0 runs once)"
	flagUsageRepeatCount         = "stop after this many repeated runs (0 repeats until interrupted)"
	flagUsageCaseTimeout         = "upper bound for a single case"
	flagUsageDebug               = "development logging"
	defaultConfigPath            = "config/storefront.yml"
	defaultEnvFile               = ".env"
	defaultSuiteSelection        = "all"
	defaultParallelism           = 1
	defaultCaseTimeout           = 2 * time.Minute
	seedStridePerIteration       = 1000
	loggerCreationErrorMessage   = "logger"
	unexpectedArgumentsMessage   = "unexpected command arguments"
	commandInitializationFailure = "failed to configure command"
	flagNotDefinedMessage        = "flag %s not defined"
	invalidParallelismMessage    = "parallel must be at least 1"
	logEventSeedSelected         = "seed_selected"
	logEventReportStoreOpen      = "report_store_open"
	logEventBrowserClose         = "browser_close"
	logEventRepeatStopped        = "repeat_stopped"
)

var (
	errInvalidParallelism = errors.New(invalidParallelismMessage)
	errRepeatedRunsFailed = errors.New("repeated runs failed")
)

// FactoryBuilder launches the browser for a run.
type FactoryBuilder func(ctx context.Context, settings config.BrowserSettings, logger *zap.Logger) (browser.Factory, error)

// RunOptions are the command line choices that are not part of the suite configuration.
type RunOptions struct {
	ConfigPath  string
	EnvFiles    []string
	Suite       string
	Parallelism int
	RepeatEvery time.Duration
	RepeatCount int
	CaseTimeout time.Duration
	Debug       bool
}

// Application constructs and executes the suite command.
type Application struct {
	configurationLoader *viper.Viper
	factoryBuilder      FactoryBuilder
	loggerBuilder       func(debug bool) (*zap.Logger, error)
	now                 func() time.Time
}

// NewApplication creates an Application with default dependencies.
func NewApplication() *Application {
	return &Application{
		configurationLoader: config.NewLoader(),
		factoryBuilder:      browser.NewFactory,
		loggerBuilder:       buildLogger,
		now:                 time.Now,
	}
}

// WithFactoryBuilder overrides how browsers are launched.
func (application *Application) WithFactoryBuilder(factoryBuilder FactoryBuilder) *Application {
	application.factoryBuilder = factoryBuilder
	return application
}

// WithLogger makes every run log to logger.
func (application *Application) WithLogger(logger *zap.Logger) *Application {
	application.loggerBuilder = func(bool) (*zap.Logger, error) { return logger, nil }
	return application
}

// Command builds the Cobra command.
func (application *Application) Command() (*cobra.Command, error) {
	rootCommand := &cobra.Command{
		Use:   commandUseName,
		Short: commandShortDescription,
		Long:  commandLongDescription,
		RunE:  application.runCommand,
	}

	if configurationErr := application.configureCommand(rootCommand); configurationErr != nil {
		return nil, configurationErr
	}

	return rootCommand, nil
}

func (application *Application) configureCommand(command *cobra.Command) error {
	commandFlags := command.Flags()
	commandFlags.String(flagNameConfig, defaultConfigPath, flagUsageConfig)
	commandFlags.StringSlice(flagNameEnvFile, []string{defaultEnvFile}, flagUsageEnvFile)
	commandFlags.String(flagNameSuite, defaultSuiteSelection, flagUsageSuite)
	commandFlags.Int64(flagNameSeed, 0, flagUsageSeed)
	commandFlags.Int(flagNameParallel, defaultParallelism, flagUsageParallel)
	commandFlags.String(flagNameBackend, "", flagUsageBackend)
	commandFlags.Duration(flagNameRepeatEvery, 0, flagUsageRepeatEvery)
	commandFlags.Int(flagNameRepeatCount, 0, flagUsageRepeatCount)
	commandFlags.Duration(flagNameCaseTimeout, defaultCaseTimeout, flagUsageCaseTimeout)
	commandFlags.Bool(flagNameDebug, false, flagUsageDebug)

	if bindErr := application.bindFlag(commandFlags, config.KeySeed, flagNameSeed); bindErr != nil {
		return bindErr
	}
	if bindErr := application.bindFlag(commandFlags, config.KeyBrowserBackend, flagNameBackend); bindErr != nil {
		return bindErr
	}
	return nil
}

func (application *Application) bindFlag(flagSet *pflag.FlagSet, configurationKey string, flagName string) error {
	flag := flagSet.Lookup(flagName)
	if flag == nil {
		return fmt.Errorf(flagNotDefinedMessage, flagName)
	}
	return application.configurationLoader.BindPFlag(configurationKey, flag)
}

func (application *Application) runCommand(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf("%s: %s", unexpectedArgumentsMessage, strings.Join(arguments, " "))
	}

	options, optionsErr := readRunOptions(command.Flags())
	if optionsErr != nil {
		return optionsErr
	}
	suites, suitesErr := scenario.ParseSuiteSelection(options.Suite)
	if suitesErr != nil {
		return suitesErr
	}
	if environmentErr := config.LoadEnvironmentFiles(options.EnvFiles...); environmentErr != nil {
		return environmentErr
	}
	if readErr := config.ReadFile(application.configurationLoader, options.ConfigPath); readErr != nil {
		return readErr
	}
	snapshot, snapshotErr := config.FromLoader(application.configurationLoader)
	if snapshotErr != nil {
		return snapshotErr
	}
	command.SilenceUsage = true

	logger, loggerErr := application.loggerBuilder(options.Debug)
	if loggerErr != nil {
		return fmt.Errorf("%s: %w", loggerCreationErrorMessage, loggerErr)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if snapshot.Seed == 0 {
		snapshot.Seed = application.now().UnixNano()
		logger.Info(logEventSeedSelected, zap.Int64("seed", snapshot.Seed))
	}

	ctx, stop := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return application.execute(ctx, snapshot, suites, options, logger)
}

func (application *Application) execute(ctx context.Context, snapshot config.Snapshot, suites []scenario.Suite, options RunOptions, logger *zap.Logger) error {
	var store *report.Store
	if snapshot.Reporter.DatabaseSource != "" {
		openedStore, storeErr := report.OpenStore(snapshot.Reporter.DatabaseSource)
		if storeErr != nil {
			logger.Warn(logEventReportStoreOpen, zap.Error(storeErr))
		} else {
			store = openedStore
			defer func() { _ = store.Close() }()
		}
	}
	recorder := report.NewRecorder(store, snapshot.Reporter, logger)

	factory, factoryErr := application.factoryBuilder(ctx, snapshot.Browser, logger)
	if factoryErr != nil {
		return factoryErr
	}
	defer func() {
		if closeErr := factory.Close(); closeErr != nil {
			logger.Warn(logEventBrowserClose, zap.Error(closeErr))
		}
	}()

	runOnce := func(ctx context.Context, iteration int) error {
		runner := scenario.NewRunner(scenario.RunnerConfig{
			Factory:     factory,
			Snapshot:    snapshot,
			Backend:     snapshot.Browser.Backend,
			Seed:        snapshot.Seed + int64(iteration-1)*seedStridePerIteration,
			Parallelism: options.Parallelism,
			CaseTimeout: options.CaseTimeout,
			Hooks:       []scenario.Hooks{recorder},
			Logger:      logger,
		})
		summary, runErr := runner.Run(ctx, suites)
		if runErr != nil {
			return runErr
		}
		return summary.Err()
	}

	if options.RepeatEvery <= 0 {
		return runOnce(ctx, 1)
	}

	repeater := task.NewRepeater(options.RepeatEvery, options.RepeatCount, runOnce, logger)
	repeater.Start(ctx)
	select {
	case <-ctx.Done():
	case <-repeater.Done():
	}
	repeater.Stop()

	completed, failed := repeater.Stats()
	logger.Info(logEventRepeatStopped, zap.Int("completed", completed), zap.Int("failed", failed))
	if failed > 0 && ctx.Err() == nil {
		return fmt.Errorf("%w: %d of %d", errRepeatedRunsFailed, failed, completed)
	}
	return nil
}

func readRunOptions(flagSet *pflag.FlagSet) (RunOptions, error) {
	var options RunOptions
	var flagErr error
	read := func(getter func() error) {
		if flagErr == nil {
			flagErr = getter()
		}
	}
	read(func() (err error) { options.ConfigPath, err = flagSet.GetString(flagNameConfig); return })
	read(func() (err error) { options.EnvFiles, err = flagSet.GetStringSlice(flagNameEnvFile); return })
	read(func() (err error) { options.Suite, err = flagSet.GetString(flagNameSuite); return })
	read(func() (err error) { options.Parallelism, err = flagSet.GetInt(flagNameParallel); return })
	read(func() (err error) { options.RepeatEvery, err = flagSet.GetDuration(flagNameRepeatEvery); return })
	read(func() (err error) { options.RepeatCount, err = flagSet.GetInt(flagNameRepeatCount); return })
	read(func() (err error) { options.CaseTimeout, err = flagSet.GetDuration(flagNameCaseTimeout); return })
	read(func() (err error) { options.Debug, err = flagSet.GetBool(flagNameDebug); return })
	if flagErr != nil {
		return RunOptions{}, flagErr
	}
	if options.Parallelism < 1 {
		return RunOptions{}, errInvalidParallelism
	}
	return options, nil
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	application := NewApplication()
	rootCommand, commandErr := application.Command()
	if commandErr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", commandInitializationFailure, commandErr)
		os.Exit(1)
	}

	if executeErr := rootCommand.Execute(); executeErr != nil {
		os.Exit(1)
	}
}
