package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/config"
)

const (
	testConfigurationFileName = "storefront.yml"
	testConfigurationDocument = `store: https://example-store.myshopify.com/
password_store: letmein
handle_collection: frontpage
preview_theme_id: "123456"
handle_product: classic-tee
password_page:
  password_input: "#password"
sidecart:
  open_icon: ".header__cart-icon"
  close_icon: ".sidecart__close"
  overlay: ".sidecart__overlay"
  section: "#sidecart"
  cart_item: ".cart-item"
  message_cart_empty: ".cart-empty-message"
product_page:
  section: ".product"
  button_add: "button[name=add]"
  variants_item: ".variant-item"
  variant_name: ".variant-name"
browser:
  command_timeout: 2s
seed: 42
`
)

func writeConfigurationFile(testingT *testing.T, document string) string {
	testingT.Helper()
	path := filepath.Join(testingT.TempDir(), testConfigurationFileName)
	require.NoError(testingT, os.WriteFile(path, []byte(document), 0o600))
	return path
}

func TestLoadBuildsSnapshotFromFile(testingT *testing.T) {
	snapshot, loadErr := config.Load(writeConfigurationFile(testingT, testConfigurationDocument))
	require.NoError(testingT, loadErr)

	require.Equal(testingT, "https://example-store.myshopify.com", snapshot.Store)
	require.Equal(testingT, "letmein", snapshot.PasswordStore)
	require.Equal(testingT, "123456", snapshot.PreviewThemeID)
	require.Equal(testingT, "#sidecart", snapshot.Sidecart.Section)
	require.Equal(testingT, ".variant-item", snapshot.ProductPage.VariantsItem)
	require.Equal(testingT, 2*time.Second, snapshot.Browser.CommandTimeout)
	require.Equal(testingT, 10*time.Second, snapshot.Browser.VariantTimeout)
	require.Equal(testingT, "chromedp", snapshot.Browser.Backend)
	require.Equal(testingT, 1440, snapshot.Browser.ViewportWidth)
	require.Equal(testingT, 900, snapshot.Browser.ViewportHeight)
	require.True(testingT, snapshot.Browser.Headless)
	require.Equal(testingT, []string{"t.initialize is not a function"}, snapshot.IgnoredExceptions)
	require.Equal(testingT, int64(42), snapshot.Seed)
}

func TestLoadAppliesEnvironmentOverrides(testingT *testing.T) {
	testingT.Setenv("STOREFRONT_PASSWORD_STORE", "from-environment")
	testingT.Setenv("STOREFRONT_SIDECART_SECTION", "#cart-drawer")
	testingT.Setenv("STOREFRONT_BROWSER_REMOTE_URL", "ws://127.0.0.1:9222/devtools/browser/shared")

	snapshot, loadErr := config.Load(writeConfigurationFile(testingT, testConfigurationDocument))
	require.NoError(testingT, loadErr)
	require.Equal(testingT, "from-environment", snapshot.PasswordStore)
	require.Equal(testingT, "#cart-drawer", snapshot.Sidecart.Section)
	require.Equal(testingT, "ws://127.0.0.1:9222/devtools/browser/shared", snapshot.Browser.RemoteURL)
}

func TestLoadExpandsEnvironmentPlaceholders(testingT *testing.T) {
	testingT.Setenv("STORE_GATE_PASSWORD", "from-placeholder")
	document := strings.Replace(testConfigurationDocument, "password_store: letmein", "password_store: ${STORE_GATE_PASSWORD}", 1)

	snapshot, loadErr := config.Load(writeConfigurationFile(testingT, document))
	require.NoError(testingT, loadErr)
	require.Equal(testingT, "from-placeholder", snapshot.PasswordStore)
}

func TestLoadReportsEveryMissingKey(testingT *testing.T) {
	_, loadErr := config.Load(writeConfigurationFile(testingT, "store: https://example.com\n"))
	require.ErrorIs(testingT, loadErr, config.ErrMissingConfiguration)
	require.Contains(testingT, loadErr.Error(), config.KeyPasswordStore)
	require.Contains(testingT, loadErr.Error(), config.KeySidecartOpenIcon)
	require.Contains(testingT, loadErr.Error(), config.KeyProductVariantName)
	require.NotContains(testingT, loadErr.Error(), config.KeyPasswordInput)
}

func TestLoadRejectsInvalidValues(testingT *testing.T) {
	testCases := []struct {
		name     string
		override map[string]string
	}{
		{name: "relative store url", override: map[string]string{"STOREFRONT_STORE": "example.com"}},
		{name: "zero command timeout", override: map[string]string{"STOREFRONT_BROWSER_COMMAND_TIMEOUT": "0s"}},
		{name: "negative viewport", override: map[string]string{"STOREFRONT_BROWSER_VIEWPORT_WIDTH": "-1"}},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testingT.Run(testCase.name, func(testingT *testing.T) {
			for key, value := range testCase.override {
				testingT.Setenv(key, value)
			}
			_, loadErr := config.Load(writeConfigurationFile(testingT, testConfigurationDocument))
			require.ErrorIs(testingT, loadErr, config.ErrInvalidConfiguration)
		})
	}
}

func TestSnapshotURLsCarryPreviewTheme(testingT *testing.T) {
	snapshot, loadErr := config.Load(writeConfigurationFile(testingT, testConfigurationDocument))
	require.NoError(testingT, loadErr)

	require.Equal(testingT, "https://example-store.myshopify.com?preview_theme_id=123456", snapshot.PreviewURL())
	require.Equal(testingT, "https://example-store.myshopify.com/products/classic-tee?preview_theme_id=123456", snapshot.ProductURL())
	require.Equal(testingT, "https://example-store.myshopify.com/collections/frontpage?preview_theme_id=123456", snapshot.CollectionURL())
	require.Equal(testingT, "https://example-store.myshopify.com/password", snapshot.PasswordURL())
	require.Equal(testingT, "https://example-store.myshopify.com/account/login", snapshot.Endpoint("/account/login"))
}

func TestLoadEnvironmentFilesSkipsMissingFiles(testingT *testing.T) {
	environmentPath := filepath.Join(testingT.TempDir(), ".env")
	require.NoError(testingT, os.WriteFile(environmentPath, []byte("STOREFRONT_TEST_DOTENV_VALUE=loaded\n"), 0o600))
	testingT.Cleanup(func() { _ = os.Unsetenv("STOREFRONT_TEST_DOTENV_VALUE") })

	require.NoError(testingT, config.LoadEnvironmentFiles("", filepath.Join(testingT.TempDir(), "absent.env"), environmentPath))
	require.Equal(testingT, "loaded", os.Getenv("STOREFRONT_TEST_DOTENV_VALUE"))
}

func TestCollectionURLDefaultsToAllProducts(testingT *testing.T) {
	document := strings.Replace(testConfigurationDocument, "handle_collection: frontpage\n", "", 1)
	snapshot, loadErr := config.Load(writeConfigurationFile(testingT, document))
	require.NoError(testingT, loadErr)
	require.Equal(testingT, "all", snapshot.HandleCollection)
	require.Equal(testingT, "https://example-store.myshopify.com/collections/all?preview_theme_id=123456", snapshot.CollectionURL())

	bare := config.Snapshot{Store: "https://example-store.myshopify.com"}
	require.Equal(testingT, "https://example-store.myshopify.com/collections/all", bare.CollectionURL())
}
