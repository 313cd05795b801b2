// Package scenario composes page interactions into user journeys and runs
// them against a storefront, one isolated browser context per case.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/account"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/browser"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/config"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/session"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/storefront"
)

const (
	SuiteSelectionPassword = "password"
	SuiteSelectionPurchase = "purchase"
	SuiteSelectionAll      = "all"

	suiteSelectionSeparator = ","
)

var (
	// ErrInvalidSuiteSelection is returned for suite names other than password, purchase and all.
	ErrInvalidSuiteSelection = errors.New("scenario: invalid suite selection")
	// ErrUncaughtException fails a case whose page raised an exception outside the ignore list.
	ErrUncaughtException = errors.New("scenario: uncaught page exception")
	// ErrCasesFailed is returned by Summary.Err when at least one case failed.
	ErrCasesFailed = errors.New("scenario: cases failed")
)

// State holds values captured earlier in the same case.
type State struct {
	ProductTitle    string
	SelectedVariant storefront.Variant
}

// CredentialsLoader returns the customer credentials used by quick login.
type CredentialsLoader func() (config.Credentials, error)

// Context is everything a case step can reach. A new Context, with a fresh
// State and browser, is built for every case.
type Context struct {
	Driver      browser.Driver
	Pages       *storefront.Pages
	Snapshot    config.Snapshot
	Sessions    *session.Cache
	Login       *account.QuickLogin
	Credentials CredentialsLoader
	Logger      *zap.Logger
	State       *State
	Seed        int64
}

// Visit navigates the case browser to address.
func (scenarioContext *Context) Visit(ctx context.Context, address string) error {
	if navigateErr := scenarioContext.Driver.Navigate(ctx, address); navigateErr != nil {
		return fmt.Errorf("visit %s: %w", address, navigateErr)
	}
	return nil
}

// QuickLogin signs the fixture customer in without the login form.
func (scenarioContext *Context) QuickLogin(ctx context.Context) error {
	if scenarioContext.Credentials == nil {
		return fmt.Errorf("quick login: %w", config.ErrMissingCredentials)
	}
	credentials, credentialsErr := scenarioContext.Credentials()
	if credentialsErr != nil {
		return fmt.Errorf("quick login: %w", credentialsErr)
	}
	return scenarioContext.Login.Login(ctx, scenarioContext.Driver, credentials)
}

// Step is one case body or suite hook.
type Step func(ctx context.Context, scenarioContext *Context) error

// Case is a named, independent check.
type Case struct {
	Name string
	Run  Step
}

// Suite groups cases that share a BeforeEach hook.
type Suite struct {
	Name       string
	Selection  string
	BeforeEach Step
	Cases      []Case
}

// ParseSuiteSelection resolves a comma separated list of suite names.
func ParseSuiteSelection(value string) ([]Suite, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		trimmed = SuiteSelectionAll
	}
	var selected []Suite
	seen := make(map[string]bool)
	add := func(suite Suite) {
		if !seen[suite.Selection] {
			seen[suite.Selection] = true
			selected = append(selected, suite)
		}
	}
	for _, part := range strings.Split(trimmed, suiteSelectionSeparator) {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case SuiteSelectionPassword:
			add(PasswordSuite())
		case SuiteSelectionPurchase:
			add(PurchaseSuite())
		case SuiteSelectionAll:
			add(PasswordSuite())
			add(PurchaseSuite())
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidSuiteSelection, part)
		}
	}
	return selected, nil
}
