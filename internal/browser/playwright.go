package browser

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/config"
)

const (
	playwrightConsoleTypeError = "error"
	playwrightEnterKey         = "Enter"
)

// startPlaywright launches the playwright driver process.
var startPlaywright = playwright.Run

// PlaywrightFactory owns a playwright driver process and one Chromium browser.
type PlaywrightFactory struct {
	settings   config.BrowserSettings
	logger     *zap.Logger
	playwright *playwright.Playwright
	browser    playwright.Browser
}

// NewPlaywrightFactory starts playwright and launches Chromium. The
// playwright driver and browsers must already be installed.
func NewPlaywrightFactory(settings config.BrowserSettings, logger *zap.Logger) (*PlaywrightFactory, error) {
	runtimeInstance, runErr := startPlaywright()
	if runErr != nil {
		return nil, fmt.Errorf("playwright: start driver: %w", runErr)
	}

	launchOptions := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(settings.Headless),
	}
	if settings.ExecutablePath != "" {
		launchOptions.ExecutablePath = playwright.String(settings.ExecutablePath)
	}
	browserInstance, launchErr := runtimeInstance.Chromium.Launch(launchOptions)
	if launchErr != nil {
		_ = runtimeInstance.Stop()
		return nil, fmt.Errorf("playwright: launch chromium: %w", launchErr)
	}

	return &PlaywrightFactory{
		settings:   settings,
		logger:     logger,
		playwright: runtimeInstance,
		browser:    browserInstance,
	}, nil
}

// NewDriver opens a page in a new browser context.
func (factory *PlaywrightFactory) NewDriver(ctx context.Context) (Driver, error) {
	browserContext, contextErr := factory.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  factory.settings.ViewportWidth,
			Height: factory.settings.ViewportHeight,
		},
	})
	if contextErr != nil {
		return nil, fmt.Errorf("playwright: new context: %w", contextErr)
	}
	page, pageErr := browserContext.NewPage()
	if pageErr != nil {
		_ = browserContext.Close()
		return nil, fmt.Errorf("playwright: new page: %w", pageErr)
	}

	driver := &PlaywrightDriver{
		browserContext: browserContext,
		page:           page,
		logs:           newLogRecorder(factory.logger),
	}
	page.OnConsole(func(message playwright.ConsoleMessage) {
		if message.Type() == playwrightConsoleTypeError {
			driver.logs.consoleError(message.Text())
		}
	})
	page.OnPageError(func(pageErr error) {
		driver.logs.exception(pageErr.Error())
	})
	return driver, nil
}

// Close closes Chromium and stops the playwright driver.
func (factory *PlaywrightFactory) Close() error {
	closeErr := factory.browser.Close()
	stopErr := factory.playwright.Stop()
	if closeErr != nil {
		return closeErr
	}
	return stopErr
}

// PlaywrightDriver implements Driver on one playwright page. Playwright
// calls carry their own timeouts, so ctx is only checked before each call.
type PlaywrightDriver struct {
	browserContext playwright.BrowserContext
	page           playwright.Page
	logs           *logRecorder
	closeOnce      sync.Once
	closeErr       error
}

func (driver *PlaywrightDriver) evaluate(ctx context.Context, script string, destination interface{}) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	result, evaluateErr := driver.page.Evaluate(script)
	if evaluateErr != nil {
		return evaluateErr
	}
	if destination == nil {
		return nil
	}
	return decodeEvaluation(result, destination)
}

func (driver *PlaywrightDriver) Navigate(ctx context.Context, address string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	_, gotoErr := driver.page.Goto(address, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	return gotoErr
}

func (driver *PlaywrightDriver) Reload(ctx context.Context) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	_, reloadErr := driver.page.Reload()
	return reloadErr
}

func (driver *PlaywrightDriver) CurrentURL(ctx context.Context) (string, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	return driver.page.URL(), nil
}

func (driver *PlaywrightDriver) Count(ctx context.Context, query Query) (int, error) {
	var count int
	if evaluateErr := driver.evaluate(ctx, countScript(query), &count); evaluateErr != nil {
		return 0, evaluateErr
	}
	return count, nil
}

func (driver *PlaywrightDriver) Visible(ctx context.Context, query Query) (bool, error) {
	var visible bool
	if evaluateErr := driver.evaluate(ctx, visibleScript(query), &visible); evaluateErr != nil {
		return false, evaluateErr
	}
	return visible, nil
}

func (driver *PlaywrightDriver) Text(ctx context.Context, query Query) (string, error) {
	var result textResult
	if evaluateErr := driver.evaluate(ctx, textScript(query), &result); evaluateErr != nil {
		return "", evaluateErr
	}
	if !result.Found {
		return "", fmt.Errorf("%w: %s", ErrElementNotFound, query)
	}
	return result.Text, nil
}

func (driver *PlaywrightDriver) Attribute(ctx context.Context, query Query, name string) (string, bool, error) {
	var result attributeResult
	if evaluateErr := driver.evaluate(ctx, attributeScript(query, name), &result); evaluateErr != nil {
		return "", false, evaluateErr
	}
	if !result.Found {
		return "", false, fmt.Errorf("%w: %s", ErrElementNotFound, query)
	}
	return result.Value, result.Present, nil
}

func (driver *PlaywrightDriver) Click(ctx context.Context, query Query) error {
	var clicked bool
	if evaluateErr := driver.evaluate(ctx, clickScript(query), &clicked); evaluateErr != nil {
		return evaluateErr
	}
	if !clicked {
		return fmt.Errorf("%w: %s", ErrElementNotFound, query)
	}
	return nil
}

func (driver *PlaywrightDriver) TypeText(ctx context.Context, query Query, text string, submit bool) error {
	token := uuid.NewString()
	var marked bool
	if evaluateErr := driver.evaluate(ctx, markScript(query, token), &marked); evaluateErr != nil {
		return evaluateErr
	}
	if !marked {
		return fmt.Errorf("%w: %s", ErrElementNotFound, query)
	}
	locator := driver.page.Locator(markedSelector(token))
	if fillErr := locator.Fill(text); fillErr != nil {
		return fillErr
	}
	if !submit {
		return nil
	}
	return locator.Press(playwrightEnterKey)
}

func (driver *PlaywrightDriver) Cookies(ctx context.Context) ([]Cookie, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	contextCookies, cookiesErr := driver.browserContext.Cookies(driver.page.URL())
	if cookiesErr != nil {
		return nil, cookiesErr
	}
	cookies := make([]Cookie, 0, len(contextCookies))
	for _, contextCookie := range contextCookies {
		cookies = append(cookies, Cookie{
			Name:     contextCookie.Name,
			Value:    contextCookie.Value,
			Domain:   contextCookie.Domain,
			Path:     contextCookie.Path,
			Expires:  epochSecondsToTime(contextCookie.Expires),
			HTTPOnly: contextCookie.HttpOnly,
			Secure:   contextCookie.Secure,
			SameSite: sameSiteFromPlaywright(contextCookie.SameSite),
		})
	}
	return cookies, nil
}

func (driver *PlaywrightDriver) SetCookies(ctx context.Context, cookies []Cookie) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if len(cookies) == 0 {
		return nil
	}
	optionalCookies := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, cookie := range cookies {
		optionalCookie := playwright.OptionalCookie{
			Name:     cookie.Name,
			Value:    cookie.Value,
			HttpOnly: playwright.Bool(cookie.HTTPOnly),
			Secure:   playwright.Bool(cookie.Secure),
			SameSite: sameSiteToPlaywright(cookie.SameSite),
		}
		if cookie.Domain != "" {
			optionalCookie.Domain = playwright.String(cookie.Domain)
			optionalCookie.Path = playwright.String(cookie.Path)
		} else {
			optionalCookie.URL = playwright.String(cookie.URL)
		}
		if !cookie.Expires.IsZero() {
			optionalCookie.Expires = playwright.Float(float64(cookie.Expires.UTC().Unix()))
		}
		optionalCookies = append(optionalCookies, optionalCookie)
	}
	return driver.browserContext.AddCookies(optionalCookies)
}

func (driver *PlaywrightDriver) ClearCookies(ctx context.Context) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return driver.browserContext.ClearCookies()
}

func (driver *PlaywrightDriver) Logs() []LogEntry {
	return driver.logs.snapshot()
}

// Close closes the browser context and its page.
func (driver *PlaywrightDriver) Close() error {
	driver.closeOnce.Do(func() {
		driver.closeErr = driver.browserContext.Close()
	})
	return driver.closeErr
}

func sameSiteFromPlaywright(mode *playwright.SameSiteAttribute) http.SameSite {
	if mode == nil {
		return http.SameSiteDefaultMode
	}
	switch *mode {
	case *playwright.SameSiteAttributeStrict:
		return http.SameSiteStrictMode
	case *playwright.SameSiteAttributeLax:
		return http.SameSiteLaxMode
	case *playwright.SameSiteAttributeNone:
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}

func sameSiteToPlaywright(mode http.SameSite) *playwright.SameSiteAttribute {
	switch mode {
	case http.SameSiteStrictMode:
		return playwright.SameSiteAttributeStrict
	case http.SameSiteLaxMode:
		return playwright.SameSiteAttributeLax
	case http.SameSiteNoneMode:
		return playwright.SameSiteAttributeNone
	default:
		return nil
	}
}
