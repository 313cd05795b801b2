// Package browser drives a real browser for storefront checks. Page objects
// talk to the Driver interface; chromedp, go-rod and playwright-go back it.
package browser

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// BlankPageURL is the neutral page a driver is parked on between sessions.
const BlankPageURL = "about:blank"

var (
	// ErrElementNotFound is returned when an interaction targets a query with no matches.
	ErrElementNotFound = errors.New("browser: element not found")
	// ErrDriverClosed is returned by drivers used after Close.
	ErrDriverClosed = errors.New("browser: driver closed")
)

// Driver issues navigation, DOM queries and input against one isolated
// browser context. Calls are sequential; a Driver is owned by a single case.
type Driver interface {
	Navigate(ctx context.Context, address string) error
	Reload(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)

	// Count returns the number of elements matched by query, without waiting.
	Count(ctx context.Context, query Query) (int, error)
	// Visible reports whether the first element matched by query is rendered.
	Visible(ctx context.Context, query Query) (bool, error)
	// Text returns the concatenated text content of every matched element.
	Text(ctx context.Context, query Query) (string, error)
	// Attribute returns the named attribute of the first matched element.
	Attribute(ctx context.Context, query Query, name string) (string, bool, error)

	// Click dispatches a click on the first matched element regardless of
	// overlapping elements or animations.
	Click(ctx context.Context, query Query) error
	// TypeText types text into the first matched element, pressing Enter when submit is set.
	TypeText(ctx context.Context, query Query, text string, submit bool) error

	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookies(ctx context.Context, cookies []Cookie) error
	ClearCookies(ctx context.Context) error

	// Logs returns console errors and uncaught exceptions seen since the driver opened.
	Logs() []LogEntry
	Close() error
}

// Factory opens isolated drivers against one launched browser.
type Factory interface {
	NewDriver(ctx context.Context) (Driver, error)
	Close() error
}

// Cookie is a backend neutral browser cookie.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	URL      string
	Expires  time.Time
	HTTPOnly bool
	Secure   bool
	SameSite http.SameSite
}

// CookieFromHTTP converts a cookie received for address into a browser cookie.
func CookieFromHTTP(cookie *http.Cookie, address *url.URL) Cookie {
	converted := Cookie{
		Name:     cookie.Name,
		Value:    cookie.Value,
		Domain:   cookie.Domain,
		Path:     cookie.Path,
		Expires:  cookie.Expires,
		HTTPOnly: cookie.HttpOnly,
		Secure:   cookie.Secure,
		SameSite: cookie.SameSite,
	}
	if address != nil && converted.Domain == "" {
		converted.URL = address.Scheme + "://" + address.Host
	}
	if converted.Path == "" {
		converted.Path = "/"
	}
	return converted
}

// HTTP converts the browser cookie for use in a net/http cookie jar.
func (cookie Cookie) HTTP() *http.Cookie {
	return &http.Cookie{
		Name:     cookie.Name,
		Value:    cookie.Value,
		Path:     cookie.Path,
		Expires:  cookie.Expires,
		HttpOnly: cookie.HTTPOnly,
		Secure:   cookie.Secure,
		SameSite: cookie.SameSite,
	}
}

// LogKind classifies captured page output.
type LogKind string

const (
	LogKindConsoleError      LogKind = "console_error"
	LogKindUncaughtException LogKind = "uncaught_exception"
)

// LogEntry is one captured console error or uncaught page exception.
type LogEntry struct {
	Kind LogKind
	Text string
	At   time.Time
}

// UncaughtExceptions returns exception entries whose text contains none of the ignored fragments.
func UncaughtExceptions(entries []LogEntry, ignoredFragments []string) []LogEntry {
	var unexpected []LogEntry
	for _, entry := range entries {
		if entry.Kind != LogKindUncaughtException {
			continue
		}
		if containsAny(entry.Text, ignoredFragments) {
			continue
		}
		unexpected = append(unexpected, entry)
	}
	return unexpected
}

// ConsoleErrors returns console error entries only.
func ConsoleErrors(entries []LogEntry) []LogEntry {
	var consoleErrors []LogEntry
	for _, entry := range entries {
		if entry.Kind == LogKindConsoleError {
			consoleErrors = append(consoleErrors, entry)
		}
	}
	return consoleErrors
}

func containsAny(text string, fragments []string) bool {
	for _, fragment := range fragments {
		if fragment != "" && strings.Contains(text, fragment) {
			return true
		}
	}
	return false
}
