package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// EnvironmentPrefix prefixes every environment override, e.g. STOREFRONT_STORE.
	EnvironmentPrefix = "STOREFRONT"

	KeyStore                 = "store"
	KeyPasswordStore         = "password_store"
	KeyHandleCollection      = "handle_collection"
	KeyPreviewThemeID        = "preview_theme_id"
	KeyHandleProduct         = "handle_product"
	KeyPasswordInput         = "password_page.password_input"
	KeySidecartOpenIcon      = "sidecart.open_icon"
	KeySidecartCloseIcon     = "sidecart.close_icon"
	KeySidecartOverlay       = "sidecart.overlay"
	KeySidecartSection       = "sidecart.section"
	KeySidecartCartItem      = "sidecart.cart_item"
	KeySidecartEmptyMessage  = "sidecart.message_cart_empty"
	KeyProductSection        = "product_page.section"
	KeyProductButtonAdd      = "product_page.button_add"
	KeyProductVariantsItem   = "product_page.variants_item"
	KeyProductVariantName    = "product_page.variant_name"
	KeyBrowserBackend        = "browser.backend"
	KeyBrowserHeadless       = "browser.headless"
	KeyBrowserExecutable     = "browser.executable"
	KeyBrowserRemoteURL      = "browser.remote_url"
	KeyBrowserViewportWidth  = "browser.viewport_width"
	KeyBrowserViewportHeight = "browser.viewport_height"
	KeyBrowserCommandTimeout = "browser.command_timeout"
	KeyBrowserVariantTimeout = "browser.variant_timeout"
	KeyReporterDirectory     = "reporter.report_dir"
	KeyReporterOverwrite     = "reporter.overwrite"
	KeyReporterJSON          = "reporter.json"
	KeyReporterDatabase      = "reporter.database"
	KeyFixtureAccount        = "fixtures.account"
	KeyIgnoredExceptions     = "ignored_exceptions"
	KeySeed                  = "seed"

	defaultHandleCollection      = "all"
	defaultBrowserBackend        = "chromedp"
	defaultViewportWidth         = 1440
	defaultViewportHeight        = 900
	defaultCommandTimeout        = 4 * time.Second
	defaultVariantTimeout        = 10 * time.Second
	defaultReportDirectory       = "reports"
	defaultReportDatabase        = "file:reports/runs.db?cache=shared&_foreign_keys=on"
	defaultFixtureAccountPath    = "fixtures/account.json"
	defaultPasswordInputSelector = "#password"

	errorMessageReadConfiguration  = "config: read configuration file"
	errorMessageLoadEnvironment    = "config: load environment file"
	errorMessageInvalidStoreURL    = "config: invalid store url"
	errorMessageInvalidTimeout     = "config: timeout must be positive"
	errorMessageInvalidViewport    = "config: viewport must be positive"
	errorMessageMissingKeysPrefix  = "missing required configuration"
	passwordPathMarker             = "password"
	previewThemeQueryParameterName = "preview_theme_id"
	productsPathSegment            = "products"
	collectionsPathSegment         = "collections"
	placeholderOpening             = "${"
)

var (
	// ErrMissingConfiguration reports required keys that were left empty.
	ErrMissingConfiguration = errors.New(errorMessageMissingKeysPrefix)
	// ErrInvalidConfiguration reports values that are present but unusable.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// RequiredKeys lists every key a suite run cannot do without.
	RequiredKeys = []string{
		KeyStore,
		KeyPasswordStore,
		KeyPreviewThemeID,
		KeyHandleProduct,
		KeyPasswordInput,
		KeySidecartOpenIcon,
		KeySidecartCloseIcon,
		KeySidecartOverlay,
		KeySidecartSection,
		KeySidecartCartItem,
		KeySidecartEmptyMessage,
		KeyProductSection,
		KeyProductButtonAdd,
		KeyProductVariantsItem,
		KeyProductVariantName,
	}

	// OptionalKeys lists the remaining recognised keys; they fall back to defaults.
	OptionalKeys = []string{
		KeyHandleCollection,
		KeyBrowserBackend,
		KeyBrowserHeadless,
		KeyBrowserExecutable,
		KeyBrowserRemoteURL,
		KeyBrowserViewportWidth,
		KeyBrowserViewportHeight,
		KeyBrowserCommandTimeout,
		KeyBrowserVariantTimeout,
		KeyReporterDirectory,
		KeyReporterOverwrite,
		KeyReporterJSON,
		KeyReporterDatabase,
		KeyFixtureAccount,
		KeyIgnoredExceptions,
		KeySeed,
	}

	defaultIgnoredExceptions = []string{"t.initialize is not a function"}
)

// PasswordPageSelectors locates elements on the storefront password gate.
type PasswordPageSelectors struct {
	PasswordInput string
}

// SidecartSelectors locates the slide-out cart and its controls.
type SidecartSelectors struct {
	OpenIcon         string
	CloseIcon        string
	Overlay          string
	Section          string
	CartItem         string
	MessageCartEmpty string
}

// ProductPageSelectors locates the product form and its variant picker.
type ProductPageSelectors struct {
	Section      string
	ButtonAdd    string
	VariantsItem string
	VariantName  string
}

// BrowserSettings configures the browser backend used for every case.
type BrowserSettings struct {
	Backend        string
	Headless       bool
	ExecutablePath string
	// RemoteURL points chromedp at an already running browser's DevTools
	// endpoint instead of launching one.
	RemoteURL      string
	ViewportWidth  int
	ViewportHeight int
	CommandTimeout time.Duration
	VariantTimeout time.Duration
}

// ReporterSettings configures where run results are written.
type ReporterSettings struct {
	Directory      string
	Overwrite      bool
	JSON           bool
	DatabaseSource string
}

// Snapshot is the immutable configuration for one test run.
type Snapshot struct {
	Store             string
	PasswordStore     string
	HandleCollection  string
	PreviewThemeID    string
	HandleProduct     string
	PasswordPage      PasswordPageSelectors
	Sidecart          SidecartSelectors
	ProductPage       ProductPageSelectors
	Browser           BrowserSettings
	Reporter          ReporterSettings
	AccountFixture    string
	IgnoredExceptions []string
	Seed              int64
}

// NewLoader returns a viper instance primed with defaults and environment binding.
func NewLoader() *viper.Viper {
	loader := viper.New()
	ApplyDefaults(loader)
	return loader
}

// ApplyDefaults registers default values and environment lookups on loader.
func ApplyDefaults(loader *viper.Viper) {
	loader.SetEnvPrefix(EnvironmentPrefix)
	loader.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	loader.AutomaticEnv()

	loader.SetDefault(KeyPasswordInput, defaultPasswordInputSelector)
	loader.SetDefault(KeyHandleCollection, defaultHandleCollection)
	loader.SetDefault(KeyBrowserBackend, defaultBrowserBackend)
	loader.SetDefault(KeyBrowserHeadless, true)
	loader.SetDefault(KeyBrowserViewportWidth, defaultViewportWidth)
	loader.SetDefault(KeyBrowserViewportHeight, defaultViewportHeight)
	loader.SetDefault(KeyBrowserCommandTimeout, defaultCommandTimeout)
	loader.SetDefault(KeyBrowserVariantTimeout, defaultVariantTimeout)
	loader.SetDefault(KeyReporterDirectory, defaultReportDirectory)
	loader.SetDefault(KeyReporterOverwrite, true)
	loader.SetDefault(KeyReporterJSON, true)
	loader.SetDefault(KeyReporterDatabase, defaultReportDatabase)
	loader.SetDefault(KeyFixtureAccount, defaultFixtureAccountPath)
	loader.SetDefault(KeyIgnoredExceptions, defaultIgnoredExceptions)
	loader.SetDefault(KeySeed, 0)
}

// LoadEnvironmentFiles loads KEY=VALUE files into the process environment
// without overriding variables that are already set. Missing files are skipped.
func LoadEnvironmentFiles(paths ...string) error {
	for _, path := range paths {
		trimmedPath := strings.TrimSpace(path)
		if trimmedPath == "" {
			continue
		}
		if loadErr := godotenv.Load(trimmedPath); loadErr != nil {
			if isNotExist(loadErr) {
				continue
			}
			return fmt.Errorf("%s %s: %w", errorMessageLoadEnvironment, trimmedPath, loadErr)
		}
	}
	return nil
}

// ReadFile merges the YAML configuration file at path into loader.
func ReadFile(loader *viper.Viper, path string) error {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return nil
	}
	loader.SetConfigFile(trimmedPath)
	if readErr := loader.ReadInConfig(); readErr != nil {
		return fmt.Errorf("%s %s: %w", errorMessageReadConfiguration, trimmedPath, readErr)
	}
	return nil
}

// Load reads the configuration file at path (optional) and builds a Snapshot.
func Load(path string) (Snapshot, error) {
	loader := NewLoader()
	if readErr := ReadFile(loader, path); readErr != nil {
		return Snapshot{}, readErr
	}
	return FromLoader(loader)
}

// FromLoader builds and validates a Snapshot from an already populated loader.
func FromLoader(loader *viper.Viper) (Snapshot, error) {
	snapshot := Snapshot{
		Store:            strings.TrimRight(strings.TrimSpace(expandedString(loader, KeyStore)), "/"),
		PasswordStore:    expandedString(loader, KeyPasswordStore),
		HandleCollection: strings.TrimSpace(expandedString(loader, KeyHandleCollection)),
		PreviewThemeID:   strings.TrimSpace(expandedString(loader, KeyPreviewThemeID)),
		HandleProduct:    strings.TrimSpace(expandedString(loader, KeyHandleProduct)),
		PasswordPage: PasswordPageSelectors{
			PasswordInput: strings.TrimSpace(expandedString(loader, KeyPasswordInput)),
		},
		Sidecart: SidecartSelectors{
			OpenIcon:         strings.TrimSpace(expandedString(loader, KeySidecartOpenIcon)),
			CloseIcon:        strings.TrimSpace(expandedString(loader, KeySidecartCloseIcon)),
			Overlay:          strings.TrimSpace(expandedString(loader, KeySidecartOverlay)),
			Section:          strings.TrimSpace(expandedString(loader, KeySidecartSection)),
			CartItem:         strings.TrimSpace(expandedString(loader, KeySidecartCartItem)),
			MessageCartEmpty: strings.TrimSpace(expandedString(loader, KeySidecartEmptyMessage)),
		},
		ProductPage: ProductPageSelectors{
			Section:      strings.TrimSpace(expandedString(loader, KeyProductSection)),
			ButtonAdd:    strings.TrimSpace(expandedString(loader, KeyProductButtonAdd)),
			VariantsItem: strings.TrimSpace(expandedString(loader, KeyProductVariantsItem)),
			VariantName:  strings.TrimSpace(expandedString(loader, KeyProductVariantName)),
		},
		Browser: BrowserSettings{
			Backend:        strings.ToLower(strings.TrimSpace(expandedString(loader, KeyBrowserBackend))),
			Headless:       loader.GetBool(KeyBrowserHeadless),
			ExecutablePath: strings.TrimSpace(expandedString(loader, KeyBrowserExecutable)),
			RemoteURL:      strings.TrimSpace(expandedString(loader, KeyBrowserRemoteURL)),
			ViewportWidth:  loader.GetInt(KeyBrowserViewportWidth),
			ViewportHeight: loader.GetInt(KeyBrowserViewportHeight),
			CommandTimeout: loader.GetDuration(KeyBrowserCommandTimeout),
			VariantTimeout: loader.GetDuration(KeyBrowserVariantTimeout),
		},
		Reporter: ReporterSettings{
			Directory:      strings.TrimSpace(expandedString(loader, KeyReporterDirectory)),
			Overwrite:      loader.GetBool(KeyReporterOverwrite),
			JSON:           loader.GetBool(KeyReporterJSON),
			DatabaseSource: strings.TrimSpace(expandedString(loader, KeyReporterDatabase)),
		},
		AccountFixture:    strings.TrimSpace(expandedString(loader, KeyFixtureAccount)),
		IgnoredExceptions: loader.GetStringSlice(KeyIgnoredExceptions),
		Seed:              loader.GetInt64(KeySeed),
	}

	if validationErr := snapshot.Validate(); validationErr != nil {
		return Snapshot{}, validationErr
	}
	return snapshot, nil
}

// Validate reports every missing required key at once, then checks value shapes.
func (snapshot Snapshot) Validate() error {
	values := snapshot.requiredValues()
	var missingKeys []string
	for _, key := range RequiredKeys {
		if strings.TrimSpace(values[key]) == "" {
			missingKeys = append(missingKeys, key)
		}
	}
	if len(missingKeys) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfiguration, strings.Join(missingKeys, ", "))
	}

	parsedStore, parseErr := url.Parse(snapshot.Store)
	if parseErr != nil || parsedStore.Scheme == "" || parsedStore.Host == "" {
		return fmt.Errorf("%w: %s: %q", ErrInvalidConfiguration, errorMessageInvalidStoreURL, snapshot.Store)
	}
	if snapshot.Browser.CommandTimeout <= 0 || snapshot.Browser.VariantTimeout <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfiguration, errorMessageInvalidTimeout)
	}
	if snapshot.Browser.ViewportWidth <= 0 || snapshot.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfiguration, errorMessageInvalidViewport)
	}
	return nil
}

func (snapshot Snapshot) requiredValues() map[string]string {
	return map[string]string{
		KeyStore:                snapshot.Store,
		KeyPasswordStore:        snapshot.PasswordStore,
		KeyPreviewThemeID:       snapshot.PreviewThemeID,
		KeyHandleProduct:        snapshot.HandleProduct,
		KeyPasswordInput:        snapshot.PasswordPage.PasswordInput,
		KeySidecartOpenIcon:     snapshot.Sidecart.OpenIcon,
		KeySidecartCloseIcon:    snapshot.Sidecart.CloseIcon,
		KeySidecartOverlay:      snapshot.Sidecart.Overlay,
		KeySidecartSection:      snapshot.Sidecart.Section,
		KeySidecartCartItem:     snapshot.Sidecart.CartItem,
		KeySidecartEmptyMessage: snapshot.Sidecart.MessageCartEmpty,
		KeyProductSection:       snapshot.ProductPage.Section,
		KeyProductButtonAdd:     snapshot.ProductPage.ButtonAdd,
		KeyProductVariantsItem:  snapshot.ProductPage.VariantsItem,
		KeyProductVariantName:   snapshot.ProductPage.VariantName,
	}
}

// PreviewURL is the storefront home page rendered with the preview theme.
func (snapshot Snapshot) PreviewURL() string {
	return snapshot.withPreviewTheme(snapshot.Store)
}

// ProductURL is the configured product page rendered with the preview theme.
func (snapshot Snapshot) ProductURL() string {
	return snapshot.withPreviewTheme(snapshot.Store + "/" + productsPathSegment + "/" + url.PathEscape(snapshot.HandleProduct))
}

// CollectionURL is the configured collection page rendered with the preview
// theme. Without a handle it points at the "all" collection every store has.
func (snapshot Snapshot) CollectionURL() string {
	handle := snapshot.HandleCollection
	if handle == "" {
		handle = defaultHandleCollection
	}
	return snapshot.withPreviewTheme(snapshot.Store + "/" + collectionsPathSegment + "/" + url.PathEscape(handle))
}

// PasswordURL is the address the storefront gate is expected to redirect to.
func (snapshot Snapshot) PasswordURL() string {
	return snapshot.Store + "/" + passwordPathMarker
}

// Endpoint resolves a store-relative path such as /account/login.
func (snapshot Snapshot) Endpoint(path string) string {
	return snapshot.Store + "/" + strings.TrimLeft(path, "/")
}

func (snapshot Snapshot) withPreviewTheme(address string) string {
	if snapshot.PreviewThemeID == "" {
		return address
	}
	query := url.Values{}
	query.Set(previewThemeQueryParameterName, snapshot.PreviewThemeID)
	return address + "?" + query.Encode()
}

// expandedString resolves ${NAME} placeholders in the value of key from the process environment.
func expandedString(loader *viper.Viper, key string) string {
	value := loader.GetString(key)
	if !strings.Contains(value, placeholderOpening) {
		return value
	}
	return os.Expand(value, os.Getenv)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
