// Package session caches authenticated browser sessions per key for the
// length of one run, so expensive setup such as unlocking the password gate
// happens once and later cases only restore its cookies.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/browser"
)

// ErrMissingKey is returned when Establish is called without a session key.
var ErrMissingKey = errors.New("session: key is required")

// Setup builds a session in a clean browser.
type Setup func(ctx context.Context, driver browser.Driver) error

type cachedSession struct {
	mutex   sync.Mutex
	ready   bool
	cookies []browser.Cookie
}

// Cache holds session cookies by key. It is safe for concurrent use; cases
// that share a key wait for the first setup to finish.
type Cache struct {
	mutex    sync.Mutex
	sessions map[string]*cachedSession
	logger   *zap.Logger
}

// NewCache returns an empty cache.
func NewCache(logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{sessions: make(map[string]*cachedSession), logger: logger}
}

// Establish restores the cookies cached under key into driver. On the first
// call for key it clears the browser, runs setup and caches the resulting
// cookies. A failed setup is not cached. Either way the driver is left on a
// blank page.
func (cache *Cache) Establish(ctx context.Context, key string, driver browser.Driver, setup Setup) error {
	normalizedKey := strings.TrimSpace(key)
	if normalizedKey == "" {
		return ErrMissingKey
	}
	cached := cache.session(normalizedKey)
	cached.mutex.Lock()
	defer cached.mutex.Unlock()

	if clearErr := driver.ClearCookies(ctx); clearErr != nil {
		return fmt.Errorf("session %s: clear cookies: %w", normalizedKey, clearErr)
	}

	if cached.ready {
		if setErr := driver.SetCookies(ctx, cached.cookies); setErr != nil {
			return fmt.Errorf("session %s: restore cookies: %w", normalizedKey, setErr)
		}
		cache.logger.Debug("session_restored", zap.String("key", normalizedKey), zap.Int("cookies", len(cached.cookies)))
		return cache.clearPage(ctx, normalizedKey, driver)
	}

	if blankErr := cache.clearPage(ctx, normalizedKey, driver); blankErr != nil {
		return blankErr
	}
	if setupErr := setup(ctx, driver); setupErr != nil {
		return fmt.Errorf("session %s: setup: %w", normalizedKey, setupErr)
	}
	cookies, cookiesErr := driver.Cookies(ctx)
	if cookiesErr != nil {
		return fmt.Errorf("session %s: capture cookies: %w", normalizedKey, cookiesErr)
	}
	cached.cookies = cookies
	cached.ready = true
	cache.logger.Info("session_created", zap.String("key", normalizedKey), zap.Int("cookies", len(cookies)))
	return cache.clearPage(ctx, normalizedKey, driver)
}

// Invalidate drops the session cached under key.
func (cache *Cache) Invalidate(key string) {
	cache.mutex.Lock()
	delete(cache.sessions, strings.TrimSpace(key))
	cache.mutex.Unlock()
}

func (cache *Cache) session(key string) *cachedSession {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	cached, exists := cache.sessions[key]
	if !exists {
		cached = &cachedSession{}
		cache.sessions[key] = cached
	}
	return cached
}

func (cache *Cache) clearPage(ctx context.Context, key string, driver browser.Driver) error {
	if navigateErr := driver.Navigate(ctx, browser.BlankPageURL); navigateErr != nil {
		return fmt.Errorf("session %s: clear page: %w", key, navigateErr)
	}
	return nil
}
