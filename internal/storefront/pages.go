// Package storefront holds the page objects for a Shopify theme: the
// password gate, the sidecart and the product page. Every check compares a
// fresh driver observation against configuration or a value captured
// earlier in the same scenario.
package storefront

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/browser"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/config"
)

const (
	defaultPollInterval   = 100 * time.Millisecond
	defaultSubmitSettle   = 750 * time.Millisecond
	errorMessageTimedOut  = "condition not met before timeout"
	primaryHeadingElement = "h1"
	pageBodyElement       = "body"
	headerElement         = "header"
	variantInputElement   = "input"
	valueAttributeName    = "value"
	activeAttributeName   = "data-active"
	activeAttributeTrue   = "true"
)

var errConditionTimedOut = errors.New(errorMessageTimedOut)

// Pages bundles the page objects that share one driver and configuration.
type Pages struct {
	Password *PasswordPage
	Sidecart *Sidecart
	Product  *ProductPage
}

type pageOptions struct {
	logger       *zap.Logger
	random       *rand.Rand
	pollInterval time.Duration
	submitSettle time.Duration
}

// Option customises page objects built by New.
type Option func(*pageOptions)

// WithLogger sets the structured logger for every page object.
func WithLogger(logger *zap.Logger) Option {
	return func(options *pageOptions) {
		if logger != nil {
			options.logger = logger
		}
	}
}

// WithSeed makes variant selection reproducible.
func WithSeed(seed uint64) Option {
	return func(options *pageOptions) {
		options.random = rand.New(rand.NewPCG(seed, seed))
	}
}

// WithPollInterval sets how often observations are repeated while waiting.
func WithPollInterval(interval time.Duration) Option {
	return func(options *pageOptions) {
		if interval > 0 {
			options.pollInterval = interval
		}
	}
}

// WithSubmitSettle sets how long the URL must keep the password path after a
// rejected password before the check passes.
func WithSubmitSettle(settle time.Duration) Option {
	return func(options *pageOptions) {
		if settle > 0 {
			options.submitSettle = settle
		}
	}
}

// New builds the page objects for driver.
func New(driver browser.Driver, snapshot config.Snapshot, options ...Option) *Pages {
	resolved := pageOptions{
		logger:       zap.NewNop(),
		random:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		pollInterval: defaultPollInterval,
		submitSettle: defaultSubmitSettle,
	}
	for _, option := range options {
		option(&resolved)
	}

	base := page{
		driver:       driver,
		snapshot:     snapshot,
		logger:       resolved.logger,
		pollInterval: resolved.pollInterval,
	}
	return &Pages{
		Password: &PasswordPage{page: base, submitSettle: resolved.submitSettle},
		Sidecart: &Sidecart{page: base},
		Product:  &ProductPage{page: base, random: resolved.random},
	}
}

type page struct {
	driver       browser.Driver
	snapshot     config.Snapshot
	logger       *zap.Logger
	pollInterval time.Duration
}

// waitFor repeats condition until it reports true or timeout elapses. Condition
// errors are treated as transient; the last one is returned on timeout.
func (p page) waitFor(ctx context.Context, timeout time.Duration, condition func(context.Context) (bool, error)) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		satisfied, conditionErr := condition(ctx)
		if conditionErr == nil && satisfied {
			return nil
		}
		lastErr = conditionErr
		if !time.Now().Before(deadline) {
			if lastErr != nil {
				return lastErr
			}
			return errConditionTimedOut
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// holdFor repeats condition for the whole duration and fails on the first false
// observation. Condition errors are skipped unless no observation succeeds.
func (p page) holdFor(ctx context.Context, duration time.Duration, condition func(context.Context) (bool, error)) error {
	deadline := time.Now().Add(duration)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	var lastErr error
	observed := false
	for {
		satisfied, conditionErr := condition(ctx)
		switch {
		case conditionErr != nil:
			lastErr = conditionErr
		case !satisfied:
			return errConditionTimedOut
		default:
			observed = true
		}
		if !time.Now().Before(deadline) {
			if !observed && lastErr != nil {
				return lastErr
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p page) commandTimeout() time.Duration {
	return p.snapshot.Browser.CommandTimeout
}

func (p page) countAtLeastOne(query browser.Query) func(context.Context) (bool, error) {
	return func(ctx context.Context) (bool, error) {
		count, countErr := p.driver.Count(ctx, query)
		return count > 0, countErr
	}
}

// wrapUnlessTimeout keeps condition errors as assertion causes and drops the plain timeout marker.
func wrapUnlessTimeout(err error) error {
	if errors.Is(err, errConditionTimedOut) {
		return nil
	}
	return err
}
