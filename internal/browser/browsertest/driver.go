// Package browsertest provides a scripted browser.Driver for page object tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/browser"
)

// Element is a fake DOM node addressed by the exact query string that finds it.
type Element struct {
	Text       string
	Attributes map[string]string
	Hidden     bool
}

// ClickHandler runs when the first element of a query is clicked.
type ClickHandler func(driver *Driver)

// TypeHandler runs after text is typed into a query.
type TypeHandler func(driver *Driver, text string, submit bool)

// NavigateHandler runs after the driver navigates to an address.
type NavigateHandler func(driver *Driver, address string)

// Driver is an in-memory browser.Driver. Elements are registered under the
// String() form of the query used to reach them, e.g. "header >> .cart-icon".
type Driver struct {
	mutex            sync.Mutex
	url              string
	elements         map[string][]*Element
	clickHandlers    map[string]ClickHandler
	typeHandlers     map[string]TypeHandler
	navigateHandler  NavigateHandler
	cookies          []browser.Cookie
	logs             []browser.LogEntry
	clicked          []string
	typed            []string
	navigations      []string
	reloadCount      int
	closed           bool
	failNextURLReads int
}

// New returns an empty driver parked on about:blank.
func New() *Driver {
	return &Driver{
		url:           browser.BlankPageURL,
		elements:      make(map[string][]*Element),
		clickHandlers: make(map[string]ClickHandler),
		typeHandlers:  make(map[string]TypeHandler),
	}
}

// SetURL replaces the current URL.
func (driver *Driver) SetURL(address string) {
	driver.mutex.Lock()
	driver.url = address
	driver.mutex.Unlock()
}

// SetElements replaces the elements matched by query.
func (driver *Driver) SetElements(query browser.Query, elements ...*Element) {
	driver.mutex.Lock()
	driver.elements[query.String()] = elements
	driver.mutex.Unlock()
}

// RemoveElements drops every element matched by query.
func (driver *Driver) RemoveElements(query browser.Query) {
	driver.mutex.Lock()
	delete(driver.elements, query.String())
	driver.mutex.Unlock()
}

// SetAttribute sets name on the first element matched by query.
func (driver *Driver) SetAttribute(query browser.Query, name string, value string) {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	elements := driver.elements[query.String()]
	if len(elements) == 0 {
		return
	}
	if elements[0].Attributes == nil {
		elements[0].Attributes = make(map[string]string)
	}
	elements[0].Attributes[name] = value
}

// OnClick registers handler for clicks on query.
func (driver *Driver) OnClick(query browser.Query, handler ClickHandler) {
	driver.mutex.Lock()
	driver.clickHandlers[query.String()] = handler
	driver.mutex.Unlock()
}

// OnType registers handler for text typed into query.
func (driver *Driver) OnType(query browser.Query, handler TypeHandler) {
	driver.mutex.Lock()
	driver.typeHandlers[query.String()] = handler
	driver.mutex.Unlock()
}

// OnNavigate registers handler for every navigation.
func (driver *Driver) OnNavigate(handler NavigateHandler) {
	driver.mutex.Lock()
	driver.navigateHandler = handler
	driver.mutex.Unlock()
}

// AddLog records a captured page log entry.
func (driver *Driver) AddLog(entry browser.LogEntry) {
	driver.mutex.Lock()
	driver.logs = append(driver.logs, entry)
	driver.mutex.Unlock()
}

// FailURLReads makes the next count CurrentURL calls fail, as they do while a page unloads.
func (driver *Driver) FailURLReads(count int) {
	driver.mutex.Lock()
	driver.failNextURLReads = count
	driver.mutex.Unlock()
}

// Clicked lists every clicked query in order.
func (driver *Driver) Clicked() []string {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	return append([]string(nil), driver.clicked...)
}

// Typed lists every typed value in order.
func (driver *Driver) Typed() []string {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	return append([]string(nil), driver.typed...)
}

// Navigations lists every navigated address in order.
func (driver *Driver) Navigations() []string {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	return append([]string(nil), driver.navigations...)
}

// ReloadCount reports how many times Reload was called.
func (driver *Driver) ReloadCount() int {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	return driver.reloadCount
}

// Closed reports whether Close was called.
func (driver *Driver) Closed() bool {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	return driver.closed
}

func (driver *Driver) Navigate(ctx context.Context, address string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	driver.mutex.Lock()
	driver.url = address
	driver.navigations = append(driver.navigations, address)
	handler := driver.navigateHandler
	driver.mutex.Unlock()
	if handler != nil {
		handler(driver, address)
	}
	return nil
}

func (driver *Driver) Reload(ctx context.Context) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	driver.mutex.Lock()
	driver.reloadCount++
	driver.mutex.Unlock()
	return nil
}

func (driver *Driver) CurrentURL(ctx context.Context) (string, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	if driver.failNextURLReads > 0 {
		driver.failNextURLReads--
		return "", fmt.Errorf("browsertest: execution context was destroyed")
	}
	return driver.url, nil
}

func (driver *Driver) Count(ctx context.Context, query browser.Query) (int, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return 0, ctxErr
	}
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	return len(driver.elements[query.String()]), nil
}

func (driver *Driver) Visible(ctx context.Context, query browser.Query) (bool, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	elements := driver.elements[query.String()]
	return len(elements) > 0 && !elements[0].Hidden, nil
}

func (driver *Driver) Text(ctx context.Context, query browser.Query) (string, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	elements := driver.elements[query.String()]
	if len(elements) == 0 {
		return "", fmt.Errorf("%w: %s", browser.ErrElementNotFound, query)
	}
	var text string
	for _, element := range elements {
		text += element.Text
	}
	return text, nil
}

func (driver *Driver) Attribute(ctx context.Context, query browser.Query, name string) (string, bool, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", false, ctxErr
	}
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	elements := driver.elements[query.String()]
	if len(elements) == 0 {
		return "", false, fmt.Errorf("%w: %s", browser.ErrElementNotFound, query)
	}
	value, present := elements[0].Attributes[name]
	return value, present, nil
}

func (driver *Driver) Click(ctx context.Context, query browser.Query) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	key := query.String()
	driver.mutex.Lock()
	if len(driver.elements[key]) == 0 {
		driver.mutex.Unlock()
		return fmt.Errorf("%w: %s", browser.ErrElementNotFound, query)
	}
	driver.clicked = append(driver.clicked, key)
	handler := driver.clickHandlers[key]
	driver.mutex.Unlock()
	if handler != nil {
		handler(driver)
	}
	return nil
}

func (driver *Driver) TypeText(ctx context.Context, query browser.Query, text string, submit bool) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	key := query.String()
	driver.mutex.Lock()
	if len(driver.elements[key]) == 0 {
		driver.mutex.Unlock()
		return fmt.Errorf("%w: %s", browser.ErrElementNotFound, query)
	}
	driver.typed = append(driver.typed, text)
	handler := driver.typeHandlers[key]
	driver.mutex.Unlock()
	if handler != nil {
		handler(driver, text, submit)
	}
	return nil
}

func (driver *Driver) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	return append([]browser.Cookie(nil), driver.cookies...), nil
}

func (driver *Driver) SetCookies(ctx context.Context, cookies []browser.Cookie) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	for _, cookie := range cookies {
		replaced := false
		for index, existing := range driver.cookies {
			if existing.Name == cookie.Name {
				driver.cookies[index] = cookie
				replaced = true
				break
			}
		}
		if !replaced {
			driver.cookies = append(driver.cookies, cookie)
		}
	}
	return nil
}

func (driver *Driver) ClearCookies(ctx context.Context) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	driver.mutex.Lock()
	driver.cookies = nil
	driver.mutex.Unlock()
	return nil
}

func (driver *Driver) Logs() []browser.LogEntry {
	driver.mutex.Lock()
	defer driver.mutex.Unlock()
	return append([]browser.LogEntry(nil), driver.logs...)
}

func (driver *Driver) Close() error {
	driver.mutex.Lock()
	driver.closed = true
	driver.mutex.Unlock()
	return nil
}

// Factory hands out drivers built by Build, recording each one.
type Factory struct {
	mutex   sync.Mutex
	Build   func() *Driver
	drivers []*Driver
	closed  bool
}

// NewDriver builds a fresh scripted driver.
func (factory *Factory) NewDriver(ctx context.Context) (browser.Driver, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	driver := New()
	if factory.Build != nil {
		driver = factory.Build()
	}
	factory.mutex.Lock()
	factory.drivers = append(factory.drivers, driver)
	factory.mutex.Unlock()
	return driver, nil
}

// Drivers returns every driver handed out so far.
func (factory *Factory) Drivers() []*Driver {
	factory.mutex.Lock()
	defer factory.mutex.Unlock()
	return append([]*Driver(nil), factory.drivers...)
}

func (factory *Factory) Close() error {
	factory.mutex.Lock()
	factory.closed = true
	factory.mutex.Unlock()
	return nil
}

var (
	_ browser.Driver  = (*Driver)(nil)
	_ browser.Factory = (*Factory)(nil)
)
