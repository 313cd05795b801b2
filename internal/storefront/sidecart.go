package storefront

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/browser"
)

// SidecartAction is a click sequence that drives the sidecart.
type SidecartAction string

const (
	// SidecartActionOpen clicks the header icon.
	SidecartActionOpen SidecartAction = "open"
	// SidecartActionCloseIcon opens the sidecart and clicks its close control.
	SidecartActionCloseIcon SidecartAction = "closeIcon"
	// SidecartActionCloseOverlay opens the sidecart and clicks the overlay.
	SidecartActionCloseOverlay SidecartAction = "closeOverlay"
)

// SidecartState is the observed state of the sidecart section.
type SidecartState string

const (
	SidecartOpen   SidecartState = "open"
	SidecartClosed SidecartState = "closed"
)

const (
	checkSidecartIcon         = "sidecart icon in header"
	checkSidecartState        = "sidecart state"
	checkEmptyCartMessage     = "empty cart message"
	checkCartItemVisible      = "cart item visible"
	checkCartItemTitle        = "cart item title"
	sidecartStateMismatchText = "expected the sidecart to be %s, but it was found %s"
)

// ParseSidecartAction validates a textual action.
func ParseSidecartAction(value string) (SidecartAction, error) {
	action := SidecartAction(strings.TrimSpace(value))
	switch action {
	case SidecartActionOpen, SidecartActionCloseIcon, SidecartActionCloseOverlay:
		return action, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSidecartAction, value)
	}
}

// ExpectedState is the state the sidecart must reach after the action.
func (action SidecartAction) ExpectedState() SidecartState {
	if action == SidecartActionOpen {
		return SidecartOpen
	}
	return SidecartClosed
}

// Sidecart drives and observes the slide-out cart panel.
type Sidecart struct {
	page
}

// ShouldDisplayIconInHeader fails unless the open icon is rendered inside the header.
func (sidecart *Sidecart) ShouldDisplayIconInHeader(ctx context.Context) error {
	query := sidecart.iconQuery()
	if waitErr := sidecart.waitFor(ctx, sidecart.commandTimeout(), sidecart.countAtLeastOne(query)); waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		failure := assertionFailure(checkSidecartIcon, "element "+query.String(), "no matching element")
		failure.Err = wrapUnlessTimeout(waitErr)
		return failure
	}
	return nil
}

// ShouldShowEmptyCartMessage requires the empty cart message to be visible
// when expected is true and absent from the page when it is false.
func (sidecart *Sidecart) ShouldShowEmptyCartMessage(ctx context.Context, expected bool) error {
	query := browser.Select(sidecart.snapshot.Sidecart.MessageCartEmpty)
	if expected {
		condition := func(ctx context.Context) (bool, error) {
			return sidecart.driver.Visible(ctx, query)
		}
		if waitErr := sidecart.waitFor(ctx, sidecart.commandTimeout(), condition); waitErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			failure := assertionFailure(checkEmptyCartMessage, "visible", "hidden or absent")
			failure.Err = wrapUnlessTimeout(waitErr)
			return failure
		}
		return nil
	}

	var matched int
	condition := func(ctx context.Context) (bool, error) {
		count, countErr := sidecart.driver.Count(ctx, query)
		matched = count
		return count == 0, countErr
	}
	if waitErr := sidecart.waitFor(ctx, sidecart.commandTimeout(), condition); waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		failure := assertionFailure(checkEmptyCartMessage, "absent", fmt.Sprintf("%d matching elements", matched))
		failure.Err = wrapUnlessTimeout(waitErr)
		return failure
	}
	return nil
}

// CheckState runs the click sequence for action and asserts the resulting
// data-active state of the sidecart section.
func (sidecart *Sidecart) CheckState(ctx context.Context, action SidecartAction) error {
	if _, parseErr := ParseSidecartAction(string(action)); parseErr != nil {
		return parseErr
	}
	if iconErr := sidecart.ShouldDisplayIconInHeader(ctx); iconErr != nil {
		return iconErr
	}
	if startState, stateErr := sidecart.State(ctx); stateErr == nil {
		sidecart.logger.Debug("sidecart_action", zap.String("action", string(action)), zap.String("start_state", string(startState)))
	}

	steps := []browser.Query{sidecart.iconQuery()}
	switch action {
	case SidecartActionCloseIcon:
		steps = append(steps, browser.Select(sidecart.snapshot.Sidecart.CloseIcon))
	case SidecartActionCloseOverlay:
		steps = append(steps, browser.Select(sidecart.snapshot.Sidecart.Overlay))
	}
	for _, step := range steps {
		if clickErr := sidecart.driver.Click(ctx, step); clickErr != nil {
			return fmt.Errorf("sidecart %s: click %s: %w", action, step, clickErr)
		}
	}

	expected := action.ExpectedState()
	var observed SidecartState
	condition := func(ctx context.Context) (bool, error) {
		state, stateErr := sidecart.State(ctx)
		if stateErr != nil {
			return false, stateErr
		}
		observed = state
		return state == expected, nil
	}
	if waitErr := sidecart.waitFor(ctx, sidecart.commandTimeout(), condition); waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		actual := string(observed)
		if actual == "" {
			actual = "unreadable"
		}
		return &AssertionError{
			Check:    checkSidecartState,
			Expected: string(expected),
			Actual:   actual,
			Detail:   fmt.Sprintf(sidecartStateMismatchText, expected, actual),
			Err:      wrapUnlessTimeout(waitErr),
		}
	}
	return nil
}

// State reads the data-active attribute of the sidecart section.
func (sidecart *Sidecart) State(ctx context.Context) (SidecartState, error) {
	value, _, attributeErr := sidecart.driver.Attribute(ctx, browser.Select(sidecart.snapshot.Sidecart.Section), activeAttributeName)
	if attributeErr != nil {
		return "", fmt.Errorf("read sidecart state: %w", attributeErr)
	}
	if strings.TrimSpace(value) == activeAttributeTrue {
		return SidecartOpen, nil
	}
	return SidecartClosed, nil
}

// ItemExists requires a visible cart item and no empty cart message.
func (sidecart *Sidecart) ItemExists(ctx context.Context) error {
	query := sidecart.itemQuery()
	condition := func(ctx context.Context) (bool, error) {
		return sidecart.driver.Visible(ctx, query)
	}
	if waitErr := sidecart.waitFor(ctx, sidecart.commandTimeout(), condition); waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		failure := assertionFailure(checkCartItemVisible, "visible element "+query.String(), "hidden or absent")
		failure.Err = wrapUnlessTimeout(waitErr)
		return failure
	}
	return sidecart.ShouldShowEmptyCartMessage(ctx, false)
}

// VerifyItemTitle requires the trimmed cart item text to contain title.
func (sidecart *Sidecart) VerifyItemTitle(ctx context.Context, title string) error {
	text, textErr := sidecart.driver.Text(ctx, sidecart.itemQuery())
	if textErr != nil {
		return fmt.Errorf("read cart item text: %w", textErr)
	}
	trimmed := strings.TrimSpace(text)
	if !strings.Contains(trimmed, title) {
		return assertionFailure(checkCartItemTitle, fmt.Sprintf("text containing %q", title), fmt.Sprintf("%q", trimmed))
	}
	return nil
}

// WaitForItemTitle waits until the cart item text contains title.
func (sidecart *Sidecart) WaitForItemTitle(ctx context.Context, title string) error {
	var observed string
	condition := func(ctx context.Context) (bool, error) {
		text, textErr := sidecart.driver.Text(ctx, sidecart.itemQuery())
		if textErr != nil {
			return false, textErr
		}
		observed = strings.TrimSpace(text)
		return strings.Contains(observed, title), nil
	}
	if waitErr := sidecart.waitFor(ctx, sidecart.commandTimeout(), condition); waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		failure := assertionFailure(checkCartItemTitle, fmt.Sprintf("text containing %q", title), fmt.Sprintf("%q", observed))
		failure.Err = wrapUnlessTimeout(waitErr)
		return failure
	}
	return nil
}

func (sidecart *Sidecart) iconQuery() browser.Query {
	return browser.Select(headerElement).Find(sidecart.snapshot.Sidecart.OpenIcon)
}

func (sidecart *Sidecart) itemQuery() browser.Query {
	return browser.Select(sidecart.snapshot.Sidecart.Section).Find(sidecart.snapshot.Sidecart.CartItem)
}
