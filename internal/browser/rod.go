package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/config"
)

const rodStartupTimeout = 30 * time.Second

// RodFactory owns one browser launched through the rod launcher.
type RodFactory struct {
	settings config.BrowserSettings
	logger   *zap.Logger
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewRodFactory launches and connects to a browser with go-rod.
func NewRodFactory(ctx context.Context, settings config.BrowserSettings, logger *zap.Logger) (*RodFactory, error) {
	executablePath, locateErr := LocateExecutable(settings.ExecutablePath)
	if locateErr != nil {
		return nil, locateErr
	}

	startupCtx, startupCancel := context.WithTimeout(ctx, rodStartupTimeout)
	defer startupCancel()
	launcherInstance := launcher.New().
		Bin(executablePath).
		Headless(settings.Headless).
		Context(startupCtx)
	controlURL, launchErr := launcherInstance.Launch()
	if launchErr != nil {
		return nil, fmt.Errorf("rod: launch browser: %w", launchErr)
	}

	browser := rod.New().ControlURL(controlURL)
	if connectErr := browser.Connect(); connectErr != nil {
		launcherInstance.Cleanup()
		return nil, fmt.Errorf("rod: connect browser: %w", connectErr)
	}

	return &RodFactory{
		settings: settings,
		logger:   logger,
		launcher: launcherInstance,
		browser:  browser,
	}, nil
}

// NewDriver opens a page in a new incognito context.
func (factory *RodFactory) NewDriver(ctx context.Context) (Driver, error) {
	incognito, incognitoErr := factory.browser.Incognito()
	if incognitoErr != nil {
		return nil, fmt.Errorf("rod: incognito context: %w", incognitoErr)
	}
	page, pageErr := incognito.Page(proto.TargetCreateTarget{URL: BlankPageURL})
	if pageErr != nil {
		_ = proto.TargetDisposeBrowserContext{BrowserContextID: incognito.BrowserContextID}.Call(factory.browser)
		return nil, fmt.Errorf("rod: open page: %w", pageErr)
	}

	if viewportErr := page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             factory.settings.ViewportWidth,
		Height:            factory.settings.ViewportHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}); viewportErr != nil {
		_ = page.Close()
		return nil, fmt.Errorf("rod: set viewport: %w", viewportErr)
	}

	listenCtx, listenCancel := context.WithCancel(context.Background())
	driver := &RodDriver{
		browser:      factory.browser,
		incognito:    incognito,
		page:         page,
		logs:         newLogRecorder(factory.logger),
		listenCancel: listenCancel,
	}
	waitEvents := page.Context(listenCtx).EachEvent(
		func(event *proto.RuntimeConsoleAPICalled) {
			if event.Type != proto.RuntimeConsoleAPICalledTypeError {
				return
			}
			parts := make([]string, 0, len(event.Args))
			for _, argument := range event.Args {
				if argument.Description != "" {
					parts = append(parts, argument.Description)
					continue
				}
				parts = append(parts, argument.Value.String())
			}
			driver.logs.consoleError(parts...)
		},
		func(event *proto.RuntimeExceptionThrown) {
			details := event.ExceptionDetails
			if details == nil {
				return
			}
			if details.Exception != nil && details.Exception.Description != "" {
				driver.logs.exception(details.Exception.Description)
				return
			}
			driver.logs.exception(details.Text)
		},
	)
	go waitEvents()
	return driver, nil
}

// Close disconnects and kills the launched browser.
func (factory *RodFactory) Close() error {
	closeErr := factory.browser.Close()
	factory.launcher.Cleanup()
	if closeErr != nil && !errors.Is(closeErr, context.Canceled) {
		return closeErr
	}
	return nil
}

// RodDriver implements Driver on one rod page.
type RodDriver struct {
	browser      *rod.Browser
	incognito    *rod.Browser
	page         *rod.Page
	logs         *logRecorder
	listenCancel context.CancelFunc
	closeOnce    sync.Once
	closeErr     error
}

func (driver *RodDriver) evaluate(ctx context.Context, script string, destination interface{}) error {
	result, evalErr := driver.page.Context(ctx).Eval(fmt.Sprintf("() => (%s)", script))
	if evalErr != nil {
		return evalErr
	}
	if destination == nil {
		return nil
	}
	return decodeEvaluation(result.Value, destination)
}

func (driver *RodDriver) Navigate(ctx context.Context, address string) error {
	page := driver.page.Context(ctx)
	if navigateErr := page.Navigate(address); navigateErr != nil {
		return navigateErr
	}
	return page.WaitLoad()
}

func (driver *RodDriver) Reload(ctx context.Context) error {
	page := driver.page.Context(ctx)
	if reloadErr := page.Reload(); reloadErr != nil {
		return reloadErr
	}
	return page.WaitLoad()
}

func (driver *RodDriver) CurrentURL(ctx context.Context) (string, error) {
	var location string
	if evaluateErr := driver.evaluate(ctx, currentURLScript, &location); evaluateErr != nil {
		return "", evaluateErr
	}
	return location, nil
}

func (driver *RodDriver) Count(ctx context.Context, query Query) (int, error) {
	var count int
	if evaluateErr := driver.evaluate(ctx, countScript(query), &count); evaluateErr != nil {
		return 0, evaluateErr
	}
	return count, nil
}

func (driver *RodDriver) Visible(ctx context.Context, query Query) (bool, error) {
	var visible bool
	if evaluateErr := driver.evaluate(ctx, visibleScript(query), &visible); evaluateErr != nil {
		return false, evaluateErr
	}
	return visible, nil
}

func (driver *RodDriver) Text(ctx context.Context, query Query) (string, error) {
	var result textResult
	if evaluateErr := driver.evaluate(ctx, textScript(query), &result); evaluateErr != nil {
		return "", evaluateErr
	}
	if !result.Found {
		return "", fmt.Errorf("%w: %s", ErrElementNotFound, query)
	}
	return result.Text, nil
}

func (driver *RodDriver) Attribute(ctx context.Context, query Query, name string) (string, bool, error) {
	var result attributeResult
	if evaluateErr := driver.evaluate(ctx, attributeScript(query, name), &result); evaluateErr != nil {
		return "", false, evaluateErr
	}
	if !result.Found {
		return "", false, fmt.Errorf("%w: %s", ErrElementNotFound, query)
	}
	return result.Value, result.Present, nil
}

func (driver *RodDriver) Click(ctx context.Context, query Query) error {
	var clicked bool
	if evaluateErr := driver.evaluate(ctx, clickScript(query), &clicked); evaluateErr != nil {
		return evaluateErr
	}
	if !clicked {
		return fmt.Errorf("%w: %s", ErrElementNotFound, query)
	}
	return nil
}

func (driver *RodDriver) TypeText(ctx context.Context, query Query, text string, submit bool) error {
	token := uuid.NewString()
	var marked bool
	if evaluateErr := driver.evaluate(ctx, markScript(query, token), &marked); evaluateErr != nil {
		return evaluateErr
	}
	if !marked {
		return fmt.Errorf("%w: %s", ErrElementNotFound, query)
	}
	page := driver.page.Context(ctx)
	element, elementErr := page.Element(markedSelector(token))
	if elementErr != nil {
		return elementErr
	}
	if inputErr := element.Input(text); inputErr != nil {
		return inputErr
	}
	if !submit {
		return nil
	}
	return page.Keyboard.Type(input.Enter)
}

func (driver *RodDriver) Cookies(ctx context.Context) ([]Cookie, error) {
	networkCookies, cookiesErr := driver.page.Context(ctx).Cookies(nil)
	if cookiesErr != nil {
		return nil, cookiesErr
	}
	cookies := make([]Cookie, 0, len(networkCookies))
	for _, networkCookie := range networkCookies {
		cookies = append(cookies, Cookie{
			Name:     networkCookie.Name,
			Value:    networkCookie.Value,
			Domain:   networkCookie.Domain,
			Path:     networkCookie.Path,
			Expires:  epochSecondsToTime(float64(networkCookie.Expires)),
			HTTPOnly: networkCookie.HTTPOnly,
			Secure:   networkCookie.Secure,
			SameSite: sameSiteFromRod(networkCookie.SameSite),
		})
	}
	return cookies, nil
}

func (driver *RodDriver) SetCookies(ctx context.Context, cookies []Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	cookieParameters := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, cookie := range cookies {
		cookieParameter := &proto.NetworkCookieParam{
			Name:     cookie.Name,
			Value:    cookie.Value,
			URL:      cookie.URL,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			Secure:   cookie.Secure,
			HTTPOnly: cookie.HTTPOnly,
			SameSite: sameSiteToRod(cookie.SameSite),
		}
		if !cookie.Expires.IsZero() {
			cookieParameter.Expires = proto.TimeSinceEpoch(float64(cookie.Expires.UTC().Unix()))
		}
		cookieParameters = append(cookieParameters, cookieParameter)
	}
	return driver.page.Context(ctx).SetCookies(cookieParameters)
}

func (driver *RodDriver) ClearCookies(ctx context.Context) error {
	return proto.NetworkClearBrowserCookies{}.Call(driver.page.Context(ctx))
}

func (driver *RodDriver) Logs() []LogEntry {
	return driver.logs.snapshot()
}

// Close closes the page and disposes its incognito context.
func (driver *RodDriver) Close() error {
	driver.closeOnce.Do(func() {
		driver.listenCancel()
		if closeErr := driver.page.Close(); closeErr != nil && !errors.Is(closeErr, context.Canceled) {
			driver.closeErr = closeErr
		}
		disposeErr := proto.TargetDisposeBrowserContext{BrowserContextID: driver.incognito.BrowserContextID}.Call(driver.browser)
		if driver.closeErr == nil && disposeErr != nil {
			driver.closeErr = disposeErr
		}
	})
	return driver.closeErr
}

func sameSiteFromRod(mode proto.NetworkCookieSameSite) http.SameSite {
	switch mode {
	case proto.NetworkCookieSameSiteStrict:
		return http.SameSiteStrictMode
	case proto.NetworkCookieSameSiteLax:
		return http.SameSiteLaxMode
	case proto.NetworkCookieSameSiteNone:
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}

func sameSiteToRod(mode http.SameSite) proto.NetworkCookieSameSite {
	switch mode {
	case http.SameSiteStrictMode:
		return proto.NetworkCookieSameSiteStrict
	case http.SameSiteLaxMode:
		return proto.NetworkCookieSameSiteLax
	case http.SameSiteNoneMode:
		return proto.NetworkCookieSameSiteNone
	default:
		return ""
	}
}
