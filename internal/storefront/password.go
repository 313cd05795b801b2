package storefront

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/browser"
)

const (
	passwordPathMarker    = "password"
	wrongPasswordSuffix   = "Wrong"
	checkPasswordPath     = "password path in url"
	checkPasswordField    = "password input present"
	checkPasswordAccepted = "password accepted"
	checkPasswordRejected = "password rejected"
)

// PasswordPage checks the storefront password gate.
type PasswordPage struct {
	page
	submitSettle time.Duration
}

// VerifyPasswordPathInURL fails unless the current URL contains "password".
func (passwordPage *PasswordPage) VerifyPasswordPathInURL(ctx context.Context) error {
	currentURL, urlErr := passwordPage.driver.CurrentURL(ctx)
	if urlErr != nil {
		return fmt.Errorf("read current url: %w", urlErr)
	}
	if !strings.Contains(currentURL, passwordPathMarker) {
		return assertionFailure(checkPasswordPath, fmt.Sprintf("url containing %q", passwordPage.snapshot.PasswordURL()), currentURL)
	}
	passwordPage.logger.Debug("password_path_found", zap.String("url", currentURL))
	return nil
}

// VerifyPasswordField fails unless the configured password input is rendered in the page body.
func (passwordPage *PasswordPage) VerifyPasswordField(ctx context.Context) error {
	query := passwordPage.inputQuery()
	if waitErr := passwordPage.waitFor(ctx, passwordPage.commandTimeout(), passwordPage.countAtLeastOne(query)); waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		failure := assertionFailure(checkPasswordField, "element "+query.String(), "no matching element")
		failure.Err = wrapUnlessTimeout(waitErr)
		return failure
	}
	return nil
}

// EnterPassword submits the configured password, or a wrong one when correct
// is false, and checks where the gate sends the browser. A correct password
// must leave the password path; a wrong one must keep it. It returns
// ErrPasswordGateNotShown when the browser is not on the gate.
func (passwordPage *PasswordPage) EnterPassword(ctx context.Context, correct bool) error {
	startURL, urlErr := passwordPage.driver.CurrentURL(ctx)
	if urlErr != nil {
		return fmt.Errorf("read current url: %w", urlErr)
	}
	if !strings.Contains(startURL, passwordPathMarker) {
		return fmt.Errorf("%w: current url is %s", ErrPasswordGateNotShown, startURL)
	}

	password := passwordPage.snapshot.PasswordStore
	if !correct {
		password += wrongPasswordSuffix
	}
	if typeErr := passwordPage.driver.TypeText(ctx, passwordPage.inputQuery(), password, true); typeErr != nil {
		return fmt.Errorf("submit password: %w", typeErr)
	}

	var observedURL string
	observeURL := func(ctx context.Context) (bool, error) {
		currentURL, readErr := passwordPage.driver.CurrentURL(ctx)
		if readErr != nil {
			return false, readErr
		}
		observedURL = currentURL
		return strings.Contains(currentURL, passwordPathMarker) != correct, nil
	}

	if correct {
		if waitErr := passwordPage.waitFor(ctx, passwordPage.commandTimeout(), observeURL); waitErr != nil {
			return passwordPage.submissionFailure(ctx, checkPasswordAccepted, "url without \"password\"", observedURL, waitErr)
		}
		passwordPage.logger.Info("password_gate_unlocked", zap.String("url", observedURL))
		return nil
	}

	if holdErr := passwordPage.holdFor(ctx, passwordPage.submitSettle, observeURL); holdErr != nil {
		return passwordPage.submissionFailure(ctx, checkPasswordRejected, "url containing \"password\"", observedURL, holdErr)
	}
	passwordPage.logger.Debug("password_gate_rejected", zap.String("url", observedURL))
	return nil
}

// Unlock submits the correct password when the gate is shown and does nothing otherwise.
func (passwordPage *PasswordPage) Unlock(ctx context.Context) error {
	enterErr := passwordPage.EnterPassword(ctx, true)
	if errors.Is(enterErr, ErrPasswordGateNotShown) {
		passwordPage.logger.Debug("password_gate_absent")
		return nil
	}
	return enterErr
}

func (passwordPage *PasswordPage) inputQuery() browser.Query {
	return browser.Select(pageBodyElement).Find(passwordPage.snapshot.PasswordPage.PasswordInput)
}

func (passwordPage *PasswordPage) submissionFailure(ctx context.Context, check string, expected string, observedURL string, cause error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	actual := observedURL
	if actual == "" {
		actual = "no readable url"
	}
	failure := assertionFailure(check, expected, actual)
	failure.Err = wrapUnlessTimeout(cause)
	return failure
}
