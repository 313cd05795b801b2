package scenario_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/browser"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/browser/browsertest"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/config"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/storefront"
)

const (
	scriptedStoreURL      = "https://example-store.myshopify.com"
	scriptedStorePassword = "letmein"
	scriptedProductTitle  = "Classic Tee"
	scriptedGateCookie    = "storefront_digest"
)

var scriptedVariantValues = []string{"Red", "Green", "Blue"}

func scriptedSnapshot() config.Snapshot {
	return config.Snapshot{
		Store:          scriptedStoreURL,
		PasswordStore:  scriptedStorePassword,
		PreviewThemeID: "1234",
		HandleProduct:  "classic-tee",
		PasswordPage:   config.PasswordPageSelectors{PasswordInput: "#password"},
		Sidecart: config.SidecartSelectors{
			OpenIcon:         ".header__cart-icon",
			CloseIcon:        ".sidecart__close",
			Overlay:          ".sidecart__overlay",
			Section:          "#sidecart",
			CartItem:         ".cart-item",
			MessageCartEmpty: ".cart-empty-message",
		},
		ProductPage: config.ProductPageSelectors{
			Section:      ".product",
			ButtonAdd:    ".product__add",
			VariantsItem: ".variant-item",
			VariantName:  ".variant-name",
		},
		Browser: config.BrowserSettings{
			CommandTimeout: 200 * time.Millisecond,
			VariantTimeout: 200 * time.Millisecond,
		},
		IgnoredExceptions: []string{"t.initialize is not a function"},
	}
}

// newScriptedStoreDriver models a gated storefront with one product page on
// top of the scripted driver.
func newScriptedStoreDriver() *browsertest.Driver {
	snapshot := scriptedSnapshot()
	driver := browsertest.New()
	passwordInput := browser.Select("body").Find(snapshot.PasswordPage.PasswordInput)

	driver.OnNavigate(func(driver *browsertest.Driver, address string) {
		if address == browser.BlankPageURL {
			return
		}
		if !hasGateCookie(driver) {
			driver.SetURL(scriptedStoreURL + "/password")
			driver.SetElements(passwordInput, &browsertest.Element{})
			return
		}
		driver.RemoveElements(passwordInput)
		if strings.Contains(address, "/products/") {
			renderProductPage(driver, snapshot)
		}
		if strings.Contains(address, "/collections/all") {
			driver.SetElements(storefront.CollectionProductLink(snapshot.HandleProduct), &browsertest.Element{Text: scriptedProductTitle})
		}
	})
	driver.OnType(passwordInput, func(driver *browsertest.Driver, text string, submit bool) {
		if !submit || text != scriptedStorePassword {
			return
		}
		_ = driver.SetCookies(context.Background(), []browser.Cookie{{Name: scriptedGateCookie, Value: "unlocked", URL: scriptedStoreURL, Path: "/"}})
		driver.RemoveElements(passwordInput)
		driver.SetURL(scriptedStoreURL + "/")
	})
	return driver
}

func hasGateCookie(driver *browsertest.Driver) bool {
	cookies, _ := driver.Cookies(context.Background())
	for _, cookie := range cookies {
		if cookie.Name == scriptedGateCookie {
			return true
		}
	}
	return false
}

func renderProductPage(driver *browsertest.Driver, snapshot config.Snapshot) {
	sidecart := snapshot.Sidecart
	product := snapshot.ProductPage
	iconQuery := browser.Select("header").Find(sidecart.OpenIcon)
	sectionQuery := browser.Select(sidecart.Section)
	emptyQuery := browser.Select(sidecart.MessageCartEmpty)
	buttonQuery := browser.Select(product.Section).Find(product.ButtonAdd)
	variants := browser.Select(product.VariantsItem)
	nameQuery := browser.Select(product.VariantName)

	driver.SetElements(browser.Select("h1").Nth(0), &browsertest.Element{Text: "\n  " + scriptedProductTitle + "  \n"})
	driver.SetElements(iconQuery, &browsertest.Element{})
	driver.SetElements(sectionQuery, &browsertest.Element{Attributes: map[string]string{"data-active": "false"}})
	driver.SetElements(browser.Select(sidecart.CloseIcon), &browsertest.Element{})
	driver.SetElements(browser.Select(sidecart.Overlay), &browsertest.Element{})
	driver.SetElements(emptyQuery, &browsertest.Element{Text: "Your cart is empty"})
	driver.SetElements(buttonQuery, &browsertest.Element{})
	driver.SetElements(nameQuery, &browsertest.Element{Text: "Color: " + scriptedVariantValues[0]})

	setActive := func(value string) browsertest.ClickHandler {
		return func(driver *browsertest.Driver) {
			driver.SetAttribute(sectionQuery, "data-active", value)
		}
	}
	driver.OnClick(iconQuery, setActive("true"))
	driver.OnClick(browser.Select(sidecart.CloseIcon), setActive("false"))
	driver.OnClick(browser.Select(sidecart.Overlay), setActive("false"))
	driver.OnClick(buttonQuery, func(driver *browsertest.Driver) {
		driver.RemoveElements(emptyQuery)
		driver.SetElements(sectionQuery.Find(sidecart.CartItem), &browsertest.Element{Text: scriptedProductTitle + " x1"})
		driver.SetAttribute(sectionQuery, "data-active", "true")
	})

	items := make([]*browsertest.Element, 0, len(scriptedVariantValues))
	for index, value := range scriptedVariantValues {
		value := value
		items = append(items, &browsertest.Element{})
		driver.SetElements(variants.Nth(index), &browsertest.Element{})
		driver.SetElements(variants.Nth(index).Find("input"), &browsertest.Element{Attributes: map[string]string{"value": value}})
		driver.OnClick(variants.Nth(index), func(driver *browsertest.Driver) {
			driver.SetElements(nameQuery, &browsertest.Element{Text: "Color: " + value})
		})
	}
	driver.SetElements(variants, items...)
}

// loginTransport answers the account login endpoint without a network.
type loginTransport struct {
	requests int
}

func (transport *loginTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	transport.requests++
	header := http.Header{}
	header.Add("Set-Cookie", "_secure_customer_sig=signed; Path=/")
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader("<h1>My account</h1>")),
		Request:    request,
	}, nil
}
