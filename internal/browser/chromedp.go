package browser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/config"
)

// ChromedpFactory owns one Chrome process and hands out drivers that each
// live in a fresh browser context.
type ChromedpFactory struct {
	settings      config.BrowserSettings
	logger        *zap.Logger
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewChromedpFactory starts Chrome through a chromedp exec allocator, or
// connects to settings.RemoteURL when it is set.
func NewChromedpFactory(ctx context.Context, settings config.BrowserSettings, logger *zap.Logger) (*ChromedpFactory, error) {
	if remoteURL := strings.TrimSpace(settings.RemoteURL); remoteURL != "" {
		allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.WithoutCancel(ctx), remoteURL)
		return startChromedpFactory(allocCtx, allocCancel, settings, logger)
	}

	executablePath, locateErr := LocateExecutable(settings.ExecutablePath)
	if locateErr != nil {
		return nil, locateErr
	}

	allocatorOptions := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(executablePath),
		chromedp.Flag("headless", settings.Headless),
		chromedp.WindowSize(settings.ViewportWidth, settings.ViewportHeight),
		chromedp.NoSandbox,
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocatorOptions...)
	return startChromedpFactory(allocCtx, allocCancel, settings, logger)
}

func startChromedpFactory(allocCtx context.Context, allocCancel context.CancelFunc, settings config.BrowserSettings, logger *zap.Logger) (*ChromedpFactory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if startErr := chromedp.Run(browserCtx); startErr != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp: start browser: %w", startErr)
	}

	return &ChromedpFactory{
		settings:      settings,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// NewDriver opens a tab in a new incognito browser context.
func (factory *ChromedpFactory) NewDriver(ctx context.Context) (Driver, error) {
	tabCtx, tabCancel := chromedp.NewContext(factory.browserCtx, chromedp.WithNewBrowserContext())
	driver := &ChromedpDriver{
		tabCtx:    tabCtx,
		tabCancel: tabCancel,
		logs:      newLogRecorder(factory.logger),
	}

	chromedp.ListenTarget(tabCtx, func(event interface{}) {
		switch typedEvent := event.(type) {
		case *runtime.EventConsoleAPICalled:
			if typedEvent.Type != runtime.APITypeError {
				return
			}
			parts := make([]string, 0, len(typedEvent.Args))
			for _, argument := range typedEvent.Args {
				if argument.Description != "" {
					parts = append(parts, argument.Description)
					continue
				}
				var text string
				if argument.Type == runtime.TypeString && json.Unmarshal(argument.Value, &text) == nil {
					parts = append(parts, text)
					continue
				}
				parts = append(parts, string(argument.Value))
			}
			driver.logs.consoleError(parts...)
		case *runtime.EventExceptionThrown:
			details := typedEvent.ExceptionDetails
			if details == nil {
				return
			}
			if details.Exception != nil && details.Exception.Description != "" {
				driver.logs.exception(details.Exception.Description)
				return
			}
			driver.logs.exception(details.Text)
		}
	})

	// The first Run starts the tab's event loop on the context it receives,
	// so it must be tabCtx itself. ctx only bounds the setup.
	stopSetupDeadline := context.AfterFunc(ctx, tabCancel)
	setupErr := chromedp.Run(tabCtx,
		runtime.Enable(),
		chromedp.EmulateViewport(int64(factory.settings.ViewportWidth), int64(factory.settings.ViewportHeight)),
	)
	if !stopSetupDeadline() {
		setupErr = ctx.Err()
	}
	if setupErr != nil {
		tabCancel()
		return nil, fmt.Errorf("chromedp: open tab: %w", setupErr)
	}
	return driver, nil
}

// Close shuts Chrome down.
func (factory *ChromedpFactory) Close() error {
	factory.browserCancel()
	factory.allocCancel()
	return nil
}

// ChromedpDriver implements Driver on one chromedp target.
type ChromedpDriver struct {
	tabCtx    context.Context
	tabCancel context.CancelFunc
	logs      *logRecorder
	closeOnce sync.Once
}

// run executes actions on the tab while honouring cancellation of ctx.
func (driver *ChromedpDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	if driver.tabCtx.Err() != nil {
		return ErrDriverClosed
	}
	runCtx, cancel := context.WithCancel(driver.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (driver *ChromedpDriver) evaluate(ctx context.Context, script string, destination interface{}) error {
	return driver.run(ctx, chromedp.Evaluate(script, destination))
}

func (driver *ChromedpDriver) Navigate(ctx context.Context, address string) error {
	return driver.run(ctx, chromedp.Navigate(address))
}

func (driver *ChromedpDriver) Reload(ctx context.Context) error {
	return driver.run(ctx, chromedp.Reload())
}

func (driver *ChromedpDriver) CurrentURL(ctx context.Context) (string, error) {
	var location string
	if runErr := driver.run(ctx, chromedp.Location(&location)); runErr != nil {
		return "", runErr
	}
	return location, nil
}

func (driver *ChromedpDriver) Count(ctx context.Context, query Query) (int, error) {
	var count int
	if evaluateErr := driver.evaluate(ctx, countScript(query), &count); evaluateErr != nil {
		return 0, evaluateErr
	}
	return count, nil
}

func (driver *ChromedpDriver) Visible(ctx context.Context, query Query) (bool, error) {
	var visible bool
	if evaluateErr := driver.evaluate(ctx, visibleScript(query), &visible); evaluateErr != nil {
		return false, evaluateErr
	}
	return visible, nil
}

func (driver *ChromedpDriver) Text(ctx context.Context, query Query) (string, error) {
	var result textResult
	if evaluateErr := driver.evaluate(ctx, textScript(query), &result); evaluateErr != nil {
		return "", evaluateErr
	}
	if !result.Found {
		return "", fmt.Errorf("%w: %s", ErrElementNotFound, query)
	}
	return result.Text, nil
}

func (driver *ChromedpDriver) Attribute(ctx context.Context, query Query, name string) (string, bool, error) {
	var result attributeResult
	if evaluateErr := driver.evaluate(ctx, attributeScript(query, name), &result); evaluateErr != nil {
		return "", false, evaluateErr
	}
	if !result.Found {
		return "", false, fmt.Errorf("%w: %s", ErrElementNotFound, query)
	}
	return result.Value, result.Present, nil
}

func (driver *ChromedpDriver) Click(ctx context.Context, query Query) error {
	var clicked bool
	if evaluateErr := driver.evaluate(ctx, clickScript(query), &clicked); evaluateErr != nil {
		return evaluateErr
	}
	if !clicked {
		return fmt.Errorf("%w: %s", ErrElementNotFound, query)
	}
	return nil
}

func (driver *ChromedpDriver) TypeText(ctx context.Context, query Query, text string, submit bool) error {
	token := uuid.NewString()
	var marked bool
	if evaluateErr := driver.evaluate(ctx, markScript(query, token), &marked); evaluateErr != nil {
		return evaluateErr
	}
	if !marked {
		return fmt.Errorf("%w: %s", ErrElementNotFound, query)
	}
	selector := markedSelector(token)
	actions := []chromedp.Action{chromedp.SendKeys(selector, text, chromedp.ByQuery)}
	if submit {
		actions = append(actions, chromedp.SendKeys(selector, kb.Enter, chromedp.ByQuery))
	}
	return driver.run(ctx, actions...)
}

func (driver *ChromedpDriver) Cookies(ctx context.Context) ([]Cookie, error) {
	var networkCookies []*network.Cookie
	runErr := driver.run(ctx, chromedp.ActionFunc(func(actionCtx context.Context) error {
		var getErr error
		networkCookies, getErr = network.GetCookies().Do(actionCtx)
		return getErr
	}))
	if runErr != nil {
		return nil, runErr
	}
	cookies := make([]Cookie, 0, len(networkCookies))
	for _, networkCookie := range networkCookies {
		cookies = append(cookies, Cookie{
			Name:     networkCookie.Name,
			Value:    networkCookie.Value,
			Domain:   networkCookie.Domain,
			Path:     networkCookie.Path,
			Expires:  epochSecondsToTime(networkCookie.Expires),
			HTTPOnly: networkCookie.HTTPOnly,
			Secure:   networkCookie.Secure,
			SameSite: sameSiteFromNetwork(networkCookie.SameSite),
		})
	}
	return cookies, nil
}

func (driver *ChromedpDriver) SetCookies(ctx context.Context, cookies []Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	cookieParameters := make([]*network.CookieParam, 0, len(cookies))
	for _, cookie := range cookies {
		cookieParameter := &network.CookieParam{
			Name:     cookie.Name,
			Value:    cookie.Value,
			URL:      cookie.URL,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			Secure:   cookie.Secure,
			HTTPOnly: cookie.HTTPOnly,
			SameSite: sameSiteToNetwork(cookie.SameSite),
		}
		if !cookie.Expires.IsZero() {
			expires := cdp.TimeSinceEpoch(cookie.Expires.UTC())
			cookieParameter.Expires = &expires
		}
		cookieParameters = append(cookieParameters, cookieParameter)
	}
	return driver.run(ctx, network.SetCookies(cookieParameters))
}

func (driver *ChromedpDriver) ClearCookies(ctx context.Context) error {
	return driver.run(ctx, network.ClearBrowserCookies())
}

func (driver *ChromedpDriver) Logs() []LogEntry {
	return driver.logs.snapshot()
}

// Close disposes the tab and its browser context.
func (driver *ChromedpDriver) Close() error {
	driver.closeOnce.Do(driver.tabCancel)
	return nil
}

func epochSecondsToTime(seconds float64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(seconds), 0).UTC()
}

func sameSiteFromNetwork(mode network.CookieSameSite) http.SameSite {
	switch mode {
	case network.CookieSameSiteStrict:
		return http.SameSiteStrictMode
	case network.CookieSameSiteLax:
		return http.SameSiteLaxMode
	case network.CookieSameSiteNone:
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}

func sameSiteToNetwork(mode http.SameSite) network.CookieSameSite {
	switch mode {
	case http.SameSiteStrictMode:
		return network.CookieSameSiteStrict
	case http.SameSiteLaxMode:
		return network.CookieSameSiteLax
	case http.SameSiteNoneMode:
		return network.CookieSameSiteNone
	default:
		return ""
	}
}
