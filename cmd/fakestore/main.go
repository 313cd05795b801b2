package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/fakestore"
)

const (
	commandUseName               = "fakestore"
	commandShortDescription      = "Serve a password protected storefront for local suite runs"
	environmentPrefix            = "FAKESTORE"
	flagNameAddress              = "addr"
	flagNamePassword             = "password"
	flagNameAccount              = "account"
	flagNameSessionSecret        = "session-secret"
	configKeyAddress             = "addr"
	configKeyPassword            = "password"
	configKeyAccounts            = "accounts"
	configKeySessionSecret       = "session_secret"
	flagUsageAddress             = "listen address"
	flagUsagePassword            = "storefront gate password"
	flagUsageAccount             = "customer account as email:password (repeatable)"
	flagUsageSessionSecret       = "session signing secret (random when empty)"
	defaultAddress               = "127.0.0.1:8090"
	accountSeparator             = ":"
	readHeaderTimeout            = 5 * time.Second
	shutdownTimeout              = 5 * time.Second
	commandInitializationFailure = "failed to configure command"
	flagNotDefinedMessage        = "flag %s not defined"
	logEventListening            = "listening"
	logEventShutdown             = "shutdown"
	logFieldAddress              = "address"
	logFieldAccounts             = "accounts"
)

var errInvalidAccount = errors.New("account must be email:password")

// Application constructs and executes the fake store command.
type Application struct {
	configurationLoader *viper.Viper
	logger              *zap.Logger
	listening           func(address string)
}

// NewApplication creates an Application reading FAKESTORE_* environment variables.
func NewApplication() *Application {
	loader := viper.New()
	loader.SetEnvPrefix(environmentPrefix)
	loader.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	loader.AutomaticEnv()
	return &Application{configurationLoader: loader}
}

// WithLogger replaces the production logger.
func (application *Application) WithLogger(logger *zap.Logger) *Application {
	application.logger = logger
	return application
}

// OnListening registers a callback receiving the bound address.
func (application *Application) OnListening(callback func(address string)) *Application {
	application.listening = callback
	return application
}

// Command builds the Cobra command.
func (application *Application) Command() (*cobra.Command, error) {
	rootCommand := &cobra.Command{
		Use:   commandUseName,
		Short: commandShortDescription,
		Args:  cobra.NoArgs,
		RunE:  application.runCommand,
	}
	commandFlags := rootCommand.Flags()
	commandFlags.String(flagNameAddress, defaultAddress, flagUsageAddress)
	commandFlags.String(flagNamePassword, fakestore.DefaultPassword, flagUsagePassword)
	commandFlags.StringArray(flagNameAccount, nil, flagUsageAccount)
	commandFlags.String(flagNameSessionSecret, "", flagUsageSessionSecret)

	bindings := map[string]string{
		configKeyAddress:       flagNameAddress,
		configKeyPassword:      flagNamePassword,
		configKeyAccounts:      flagNameAccount,
		configKeySessionSecret: flagNameSessionSecret,
	}
	for configurationKey, flagName := range bindings {
		if bindErr := application.bindFlag(commandFlags, configurationKey, flagName); bindErr != nil {
			return nil, bindErr
		}
	}
	return rootCommand, nil
}

func (application *Application) bindFlag(flagSet *pflag.FlagSet, configurationKey string, flagName string) error {
	flag := flagSet.Lookup(flagName)
	if flag == nil {
		return fmt.Errorf(flagNotDefinedMessage, flagName)
	}
	return application.configurationLoader.BindPFlag(configurationKey, flag)
}

func (application *Application) runCommand(command *cobra.Command, _ []string) error {
	accounts, accountsErr := parseAccounts(application.configurationLoader.GetStringSlice(configKeyAccounts))
	if accountsErr != nil {
		return accountsErr
	}
	command.SilenceUsage = true

	logger := application.logger
	if logger == nil {
		productionLogger, loggerErr := zap.NewProduction()
		if loggerErr != nil {
			return fmt.Errorf("logger: %w", loggerErr)
		}
		logger = productionLogger
		defer func() {
			_ = logger.Sync()
		}()
	}

	var sessionSecret []byte
	if secret := application.configurationLoader.GetString(configKeySessionSecret); secret != "" {
		sessionSecret = []byte(secret)
	}
	store := fakestore.NewServer(fakestore.Config{
		Password:      application.configurationLoader.GetString(configKeyPassword),
		Accounts:      accounts,
		SessionSecret: sessionSecret,
		Logger:        logger,
	})

	listener, listenErr := net.Listen("tcp", application.configurationLoader.GetString(configKeyAddress))
	if listenErr != nil {
		return fmt.Errorf("listen: %w", listenErr)
	}

	ctx, stop := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Handler:           store.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return serve(ctx, httpServer, listener, logger, application.listening, len(accounts))
}

func serve(ctx context.Context, httpServer *http.Server, listener net.Listener, logger *zap.Logger, listening func(string), accountCount int) error {
	address := listener.Addr().String()
	logger.Info(logEventListening, zap.String(logFieldAddress, address), zap.Int(logFieldAccounts, accountCount))
	if listening != nil {
		listening(address)
	}

	serveErrors := make(chan error, 1)
	go func() {
		serveErrors <- httpServer.Serve(listener)
	}()

	select {
	case serveErr := <-serveErrors:
		if errors.Is(serveErr, http.ErrServerClosed) {
			return nil
		}
		return serveErr
	case <-ctx.Done():
	}

	logger.Info(logEventShutdown, zap.String(logFieldAddress, address))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func parseAccounts(entries []string) (map[string]string, error) {
	accounts := make(map[string]string, len(entries))
	for _, entry := range entries {
		email, password, found := strings.Cut(strings.TrimSpace(entry), accountSeparator)
		email = strings.ToLower(strings.TrimSpace(email))
		if !found || email == "" || password == "" {
			return nil, fmt.Errorf("%w: %q", errInvalidAccount, entry)
		}
		accounts[email] = password
	}
	return accounts, nil
}

func main() {
	rootCommand, commandErr := NewApplication().Command()
	if commandErr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", commandInitializationFailure, commandErr)
		os.Exit(1)
	}
	if executeErr := rootCommand.Execute(); executeErr != nil {
		os.Exit(1)
	}
}
