package storefront

import (
	"errors"
	"fmt"
)

var (
	// ErrPasswordGateNotShown is returned when a password is about to be
	// submitted but the current page is not the password gate.
	ErrPasswordGateNotShown = errors.New("storefront: password gate not shown")
	// ErrNoVariants is wrapped by the assertion raised for a product page without variants.
	ErrNoVariants = errors.New("storefront: no variants found")
	// ErrInvalidSidecartAction is returned for actions outside open, closeIcon and closeOverlay.
	ErrInvalidSidecartAction = errors.New("storefront: invalid sidecart action")
)

// AssertionError reports an observed page state that differs from the expected one.
type AssertionError struct {
	Check    string
	Expected string
	Actual   string
	// Detail replaces the generated expected/actual sentence when set.
	Detail string
	Err    error
}

func (assertionError *AssertionError) Error() string {
	if assertionError.Detail != "" {
		return fmt.Sprintf("%s: %s", assertionError.Check, assertionError.Detail)
	}
	return fmt.Sprintf("%s: expected %s, but got %s", assertionError.Check, assertionError.Expected, assertionError.Actual)
}

func (assertionError *AssertionError) Unwrap() error {
	return assertionError.Err
}

func assertionFailure(check string, expected string, actual string) *AssertionError {
	return &AssertionError{Check: check, Expected: expected, Actual: actual}
}
