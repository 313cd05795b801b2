// Package account signs a customer into the storefront without driving the
// login form, by posting credentials directly and handing the resulting
// session cookies to the browser.
package account

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/browser"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/config"
)

const (
	// LoginPath is the storefront customer login endpoint.
	LoginPath = "/account/login"
	// FormFieldEmail carries the customer email.
	FormFieldEmail = "customer[email]"
	// FormFieldPassword carries the customer password.
	FormFieldPassword = "customer[password]"

	loginRedirectMarker     = "/login"
	defaultRequestTimeout   = 30 * time.Second
	maxResponseBodyBytes    = 4 << 20
	headerContentType       = "Content-Type"
	contentTypeFormEncoded  = "application/x-www-form-urlencoded"
	errorMessageLoginFailed = "the username or password provided is incorrect"
)

var (
	// ErrUnexpectedStatus is returned when the login endpoint answers with anything but 200.
	ErrUnexpectedStatus = errors.New("account: unexpected login response status")
	// ErrLoginRejected is returned when the login response points back at the login page.
	ErrLoginRejected = errors.New("account: login rejected")
)

// Option customises a QuickLogin helper.
type Option func(*QuickLogin)

// WithTransport routes login requests through transport.
func WithTransport(transport http.RoundTripper) Option {
	return func(quickLogin *QuickLogin) {
		if transport != nil {
			quickLogin.transport = transport
		}
	}
}

// WithRequestTimeout bounds the login request.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(quickLogin *QuickLogin) {
		if timeout > 0 {
			quickLogin.requestTimeout = timeout
		}
	}
}

// QuickLogin posts customer credentials to the storefront and moves the
// authenticated session into a browser.
type QuickLogin struct {
	snapshot       config.Snapshot
	logger         *zap.Logger
	transport      http.RoundTripper
	requestTimeout time.Duration
}

// NewQuickLogin builds a helper for the configured store.
func NewQuickLogin(snapshot config.Snapshot, logger *zap.Logger, options ...Option) *QuickLogin {
	if logger == nil {
		logger = zap.NewNop()
	}
	quickLogin := &QuickLogin{
		snapshot:       snapshot,
		logger:         logger,
		transport:      http.DefaultTransport,
		requestTimeout: defaultRequestTimeout,
	}
	for _, option := range options {
		option(quickLogin)
	}
	return quickLogin
}

// Login shares the browser cookies with a login request, requires a 200
// response that does not point back at the login page, copies the session
// cookies into the browser and reloads the current page.
func (quickLogin *QuickLogin) Login(ctx context.Context, driver browser.Driver, credentials config.Credentials) error {
	storeURL, parseErr := url.Parse(quickLogin.snapshot.Store)
	if parseErr != nil {
		return fmt.Errorf("parse store url: %w", parseErr)
	}

	jar, jarErr := cookiejar.New(nil)
	if jarErr != nil {
		return fmt.Errorf("create cookie jar: %w", jarErr)
	}
	browserCookies, cookiesErr := driver.Cookies(ctx)
	if cookiesErr != nil {
		return fmt.Errorf("read browser cookies: %w", cookiesErr)
	}
	jar.SetCookies(storeURL, toHTTPCookies(browserCookies))

	body, postErr := quickLogin.post(ctx, jar, credentials)
	if postErr != nil {
		return postErr
	}
	if strings.Contains(body, loginRedirectMarker) {
		quickLogin.logger.Warn("quick_login_rejected", zap.String("user", credentials.User))
		return fmt.Errorf("%w: %s", ErrLoginRejected, errorMessageLoginFailed)
	}

	sessionCookies := jar.Cookies(storeURL)
	converted := make([]browser.Cookie, 0, len(sessionCookies))
	for _, cookie := range sessionCookies {
		converted = append(converted, browser.CookieFromHTTP(cookie, storeURL))
	}
	if setErr := driver.SetCookies(ctx, converted); setErr != nil {
		return fmt.Errorf("store session cookies: %w", setErr)
	}
	if reloadErr := driver.Reload(ctx); reloadErr != nil {
		return fmt.Errorf("reload after login: %w", reloadErr)
	}
	quickLogin.logger.Info("quick_login_succeeded", zap.String("user", credentials.User), zap.Int("cookies", len(converted)))
	return nil
}

func (quickLogin *QuickLogin) post(ctx context.Context, jar http.CookieJar, credentials config.Credentials) (string, error) {
	requestCtx, cancel := context.WithTimeout(ctx, quickLogin.requestTimeout)
	defer cancel()

	form := url.Values{}
	form.Set(FormFieldEmail, credentials.User)
	form.Set(FormFieldPassword, credentials.Password)
	request, requestErr := http.NewRequestWithContext(requestCtx, http.MethodPost, quickLogin.snapshot.Endpoint(LoginPath), strings.NewReader(form.Encode()))
	if requestErr != nil {
		return "", fmt.Errorf("build login request: %w", requestErr)
	}
	request.Header.Set(headerContentType, contentTypeFormEncoded)

	client := &http.Client{Jar: jar, Transport: quickLogin.transport}
	response, responseErr := client.Do(request)
	if responseErr != nil {
		return "", fmt.Errorf("post login: %w", responseErr)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %d", ErrUnexpectedStatus, response.StatusCode)
	}
	payload, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseBodyBytes))
	if readErr != nil {
		return "", fmt.Errorf("read login response: %w", readErr)
	}
	return string(payload), nil
}

func toHTTPCookies(cookies []browser.Cookie) []*http.Cookie {
	converted := make([]*http.Cookie, 0, len(cookies))
	for _, cookie := range cookies {
		converted = append(converted, cookie.HTTP())
	}
	return converted
}
