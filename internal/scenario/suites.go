package scenario

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/browser"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/storefront"
)

// UnlockedSessionKey caches the cookies of a browser that passed the password gate.
const UnlockedSessionKey = "login_password_page"

const (
	passwordSuiteName = "Password Page"
	purchaseSuiteName = "Purchase Flow"
)

// PasswordSuite checks the password gate from a fresh browser.
func PasswordSuite() Suite {
	return Suite{
		Name:      passwordSuiteName,
		Selection: SuiteSelectionPassword,
		BeforeEach: func(ctx context.Context, scenarioContext *Context) error {
			return scenarioContext.Visit(ctx, scenarioContext.Snapshot.PreviewURL())
		},
		Cases: []Case{
			{
				Name: `Should verify that the URL contains the "password" path when visiting the page`,
				Run: func(ctx context.Context, scenarioContext *Context) error {
					return scenarioContext.Pages.Password.VerifyPasswordPathInURL(ctx)
				},
			},
			{
				Name: "Should ensure the password input field exists on the page",
				Run: func(ctx context.Context, scenarioContext *Context) error {
					return scenarioContext.Pages.Password.VerifyPasswordField(ctx)
				},
			},
			{
				Name: `Should maintain the "password" path in the URL when an incorrect password is entered`,
				Run: func(ctx context.Context, scenarioContext *Context) error {
					return scenarioContext.Pages.Password.EnterPassword(ctx, false)
				},
			},
			{
				Name: `Should remove the "password" path from the URL when a correct password is entered`,
				Run: func(ctx context.Context, scenarioContext *Context) error {
					return scenarioContext.Pages.Password.EnterPassword(ctx, true)
				},
			},
		},
	}
}

// PurchaseFlowBeforeEach restores the unlocked session and opens the configured product.
func PurchaseFlowBeforeEach(ctx context.Context, scenarioContext *Context) error {
	unlock := func(ctx context.Context, driver browser.Driver) error {
		if visitErr := scenarioContext.Visit(ctx, scenarioContext.Snapshot.PreviewURL()); visitErr != nil {
			return visitErr
		}
		return scenarioContext.Pages.Password.Unlock(ctx)
	}
	if sessionErr := scenarioContext.Sessions.Establish(ctx, UnlockedSessionKey, scenarioContext.Driver, unlock); sessionErr != nil {
		return sessionErr
	}
	return scenarioContext.Visit(ctx, scenarioContext.Snapshot.ProductURL())
}

// PurchaseSuite exercises the sidecart and adding products to the cart.
func PurchaseSuite() Suite {
	return Suite{
		Name:       purchaseSuiteName,
		Selection:  SuiteSelectionPurchase,
		BeforeEach: PurchaseFlowBeforeEach,
		Cases: []Case{
			{
				Name: "Sidecart: Should display the sidecart open icon in the header",
				Run: func(ctx context.Context, scenarioContext *Context) error {
					return scenarioContext.Pages.Sidecart.ShouldDisplayIconInHeader(ctx)
				},
			},
			{
				Name: `Sidecart: Sidecart should show "Empty Cart" message`,
				Run: func(ctx context.Context, scenarioContext *Context) error {
					if stateErr := scenarioContext.Pages.Sidecart.CheckState(ctx, storefront.SidecartActionOpen); stateErr != nil {
						return stateErr
					}
					return scenarioContext.Pages.Sidecart.ShouldShowEmptyCartMessage(ctx, true)
				},
			},
			{
				Name: "Sidecart: Should display the sidecart icon after login if it is initially hidden",
				Run: func(ctx context.Context, scenarioContext *Context) error {
					if loginErr := scenarioContext.QuickLogin(ctx); loginErr != nil {
						return loginErr
					}
					return scenarioContext.Pages.Sidecart.ShouldDisplayIconInHeader(ctx)
				},
			},
			{
				Name: "Sidecart: Sidecart should open correctly when clicking the open icon",
				Run: func(ctx context.Context, scenarioContext *Context) error {
					return scenarioContext.Pages.Sidecart.CheckState(ctx, storefront.SidecartActionOpen)
				},
			},
			{
				Name: "Sidecart: Should close the sidecart when clicking the close icon",
				Run: func(ctx context.Context, scenarioContext *Context) error {
					return scenarioContext.Pages.Sidecart.CheckState(ctx, storefront.SidecartActionCloseIcon)
				},
			},
			{
				Name: "Sidecart: Should close the sidecart when clicking outside the cart area",
				Run: func(ctx context.Context, scenarioContext *Context) error {
					return scenarioContext.Pages.Sidecart.CheckState(ctx, storefront.SidecartActionCloseOverlay)
				},
			},
			{
				Name: "Collection Page: Should link to the configured product from the collection page",
				Run: func(ctx context.Context, scenarioContext *Context) error {
					if visitErr := scenarioContext.Visit(ctx, scenarioContext.Snapshot.CollectionURL()); visitErr != nil {
						return visitErr
					}
					return scenarioContext.Pages.Product.ShouldBeListedInCollection(ctx)
				},
			},
			{
				Name: `Product Page: Should add a product without variants to the cart and verify the "Empty Cart" message is gone`,
				Run: func(ctx context.Context, scenarioContext *Context) error {
					title, addErr := scenarioContext.Pages.Product.AddToCart(ctx, scenarioContext.Pages.Sidecart)
					scenarioContext.State.ProductTitle = title
					return addErr
				},
			},
			{
				Name: "Product Page: The color variant component must match the selected color variant in the text",
				Run: func(ctx context.Context, scenarioContext *Context) error {
					variant, variantErr := scenarioContext.Pages.Product.SelectRandomVariant(ctx)
					if variantErr != nil {
						return variantErr
					}
					scenarioContext.State.SelectedVariant = variant
					scenarioContext.Logger.Debug("variant_matched", zap.String("value", variant.Value), zap.String("displayed", variant.DisplayedName))
					return nil
				},
			},
			{
				Name: "Product Page: Should add a product with color variants to the cart and verify the empty cart message is gone",
				Run: func(ctx context.Context, scenarioContext *Context) error {
					title, variant, addErr := scenarioContext.Pages.Product.AddWithColorVariantToCart(ctx, scenarioContext.Pages.Sidecart)
					scenarioContext.State.ProductTitle = title
					scenarioContext.State.SelectedVariant = variant
					if addErr != nil && variant.Value != "" {
						return fmt.Errorf("variant %q: %w", variant.Value, addErr)
					}
					return addErr
				},
			},
		},
	}
}
