package storefront

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/browser"
)

const (
	checkProductTitle    = "product title"
	checkProductVariants = "product variants"
	checkVariantVisible  = "variant visible"
	checkVariantValue    = "variant value"
	checkVariantName     = "selected variant name"
	checkCollectionLink  = "collection product link"
	productsPathSegment  = "/products/"
)

// Variant is the variant chosen on a product page.
type Variant struct {
	Index         int
	Value         string
	DisplayedName string
}

// ProductPage reads and drives a product detail page.
type ProductPage struct {
	page
	randomMutex sync.Mutex
	random      *rand.Rand
}

// CaptureTitle returns the trimmed text of the first primary heading.
func (productPage *ProductPage) CaptureTitle(ctx context.Context) (string, error) {
	query := browser.Select(primaryHeadingElement).Nth(0)
	if waitErr := productPage.waitFor(ctx, productPage.commandTimeout(), productPage.countAtLeastOne(query)); waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		failure := assertionFailure(checkProductTitle, "element "+primaryHeadingElement, "no matching element")
		failure.Err = wrapUnlessTimeout(waitErr)
		return "", failure
	}
	text, textErr := productPage.driver.Text(ctx, query)
	if textErr != nil {
		return "", fmt.Errorf("read product title: %w", textErr)
	}
	title := strings.TrimSpace(text)
	productPage.logger.Debug("product_title_captured", zap.String("title", title))
	return title, nil
}

// SelectRandomVariant waits for the variant list, clicks one variant chosen
// at random and checks that the displayed variant name contains the value of
// the chosen input.
func (productPage *ProductPage) SelectRandomVariant(ctx context.Context) (Variant, error) {
	variants := browser.Select(productPage.snapshot.ProductPage.VariantsItem)
	var variantCount int
	countVariants := func(ctx context.Context) (bool, error) {
		count, countErr := productPage.driver.Count(ctx, variants)
		variantCount = count
		return count > 0, countErr
	}
	if waitErr := productPage.waitFor(ctx, productPage.snapshot.Browser.VariantTimeout, countVariants); waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Variant{}, ctxErr
		}
		return Variant{}, &AssertionError{
			Check:    checkProductVariants,
			Expected: "at least one element " + variants.String(),
			Actual:   fmt.Sprintf("%d elements", variantCount),
			Err:      ErrNoVariants,
		}
	}

	index := productPage.pickIndex(variantCount)
	selected := variants.Nth(index)
	visible := func(ctx context.Context) (bool, error) {
		return productPage.driver.Visible(ctx, selected)
	}
	if waitErr := productPage.waitFor(ctx, productPage.commandTimeout(), visible); waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Variant{}, ctxErr
		}
		failure := assertionFailure(checkVariantVisible, "visible element "+selected.String(), "hidden or absent")
		failure.Err = wrapUnlessTimeout(waitErr)
		return Variant{}, failure
	}
	if clickErr := productPage.driver.Click(ctx, selected); clickErr != nil {
		return Variant{}, fmt.Errorf("click variant %d: %w", index, clickErr)
	}

	inputQuery := selected.Find(variantInputElement)
	value, present, attributeErr := productPage.driver.Attribute(ctx, inputQuery, valueAttributeName)
	if attributeErr != nil {
		return Variant{}, fmt.Errorf("read variant value: %w", attributeErr)
	}
	if !present {
		return Variant{}, assertionFailure(checkVariantValue, "value attribute on "+inputQuery.String(), "no value attribute")
	}

	nameQuery := browser.Select(productPage.snapshot.ProductPage.VariantName)
	var displayedName string
	nameMatches := func(ctx context.Context) (bool, error) {
		text, textErr := productPage.driver.Text(ctx, nameQuery)
		if textErr != nil {
			return false, textErr
		}
		displayedName = strings.TrimSpace(text)
		return strings.Contains(displayedName, value), nil
	}
	if waitErr := productPage.waitFor(ctx, productPage.commandTimeout(), nameMatches); waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Variant{}, ctxErr
		}
		failure := assertionFailure(checkVariantName, fmt.Sprintf("text containing %q", value), fmt.Sprintf("%q", displayedName))
		failure.Err = wrapUnlessTimeout(waitErr)
		return Variant{}, failure
	}

	variant := Variant{Index: index, Value: value, DisplayedName: displayedName}
	productPage.logger.Info("variant_selected",
		zap.Int("index", index),
		zap.Int("variant_count", variantCount),
		zap.String("value", value),
	)
	return variant, nil
}

// AddToCart captures the product title, clicks the add button and checks
// that the sidecart lists an item carrying that title. The item stays in the
// cart when a check fails.
func (productPage *ProductPage) AddToCart(ctx context.Context, sidecart *Sidecart) (string, error) {
	title, titleErr := productPage.CaptureTitle(ctx)
	if titleErr != nil {
		return "", titleErr
	}
	return title, productPage.addTitledToCart(ctx, sidecart, title)
}

// AddWithColorVariantToCart captures the product title, selects a random
// variant and adds the product to the cart under the captured title.
func (productPage *ProductPage) AddWithColorVariantToCart(ctx context.Context, sidecart *Sidecart) (string, Variant, error) {
	title, titleErr := productPage.CaptureTitle(ctx)
	if titleErr != nil {
		return "", Variant{}, titleErr
	}
	variant, variantErr := productPage.SelectRandomVariant(ctx)
	if variantErr != nil {
		return title, Variant{}, variantErr
	}
	return title, variant, productPage.addTitledToCart(ctx, sidecart, title)
}

func (productPage *ProductPage) addTitledToCart(ctx context.Context, sidecart *Sidecart, title string) error {
	buttonQuery := browser.Select(productPage.snapshot.ProductPage.Section).Find(productPage.snapshot.ProductPage.ButtonAdd)
	if clickErr := productPage.driver.Click(ctx, buttonQuery); clickErr != nil {
		return fmt.Errorf("click add to cart: %w", clickErr)
	}
	if waitErr := sidecart.WaitForItemTitle(ctx, title); waitErr != nil {
		return waitErr
	}
	if existsErr := sidecart.ItemExists(ctx); existsErr != nil {
		return existsErr
	}
	if verifyErr := sidecart.VerifyItemTitle(ctx, title); verifyErr != nil {
		return verifyErr
	}
	productPage.logger.Info("product_added_to_cart", zap.String("title", title))
	return nil
}

// ShouldBeListedInCollection checks that the current collection page links
// to the configured product.
func (productPage *ProductPage) ShouldBeListedInCollection(ctx context.Context) error {
	query := CollectionProductLink(productPage.snapshot.HandleProduct)
	if waitErr := productPage.waitFor(ctx, productPage.commandTimeout(), productPage.countAtLeastOne(query)); waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		failure := assertionFailure(checkCollectionLink, "element "+query.String(), "no matching element")
		failure.Err = wrapUnlessTimeout(waitErr)
		return failure
	}
	productPage.logger.Debug("collection_lists_product", zap.String("handle", productPage.snapshot.HandleProduct))
	return nil
}

// CollectionProductLink matches anchors on a collection page that lead to
// the product with handle.
func CollectionProductLink(handle string) browser.Query {
	return browser.Select(fmt.Sprintf("a[href*=%q]", productsPathSegment+handle))
}

func (productPage *ProductPage) pickIndex(count int) int {
	productPage.randomMutex.Lock()
	defer productPage.randomMutex.Unlock()
	return productPage.random.IntN(count)
}
