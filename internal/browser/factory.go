package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/config"
)

// Backend names a browser automation library.
type Backend string

const (
	BackendChromedp   Backend = "chromedp"
	BackendRod        Backend = "rod"
	BackendPlaywright Backend = "playwright"
)

// ErrUnsupportedBackend is returned for backend names outside the known set.
var ErrUnsupportedBackend = errors.New("unsupported browser backend")

// ParseBackend normalises rawInput; an empty value selects chromedp.
func ParseBackend(rawInput string) (Backend, error) {
	normalized := strings.ToLower(strings.TrimSpace(rawInput))
	if normalized == "" {
		return BackendChromedp, nil
	}

	backend := Backend(normalized)
	switch backend {
	case BackendChromedp, BackendRod, BackendPlaywright:
		return backend, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedBackend, rawInput)
	}
}

// NewFactory launches the browser selected by settings.Backend.
func NewFactory(ctx context.Context, settings config.BrowserSettings, logger *zap.Logger) (Factory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	backend, parseErr := ParseBackend(settings.Backend)
	if parseErr != nil {
		return nil, parseErr
	}

	logger.Info("browser_launch",
		zap.String("backend", string(backend)),
		zap.Bool("headless", settings.Headless),
		zap.Int("viewport_width", settings.ViewportWidth),
		zap.Int("viewport_height", settings.ViewportHeight),
	)

	switch backend {
	case BackendRod:
		rodFactory, launchErr := NewRodFactory(ctx, settings, logger)
		if launchErr != nil {
			return nil, launchErr
		}
		return rodFactory, nil
	case BackendPlaywright:
		playwrightFactory, launchErr := NewPlaywrightFactory(settings, logger)
		if launchErr != nil {
			return nil, launchErr
		}
		return playwrightFactory, nil
	default:
		chromedpFactory, launchErr := NewChromedpFactory(ctx, settings, logger)
		if launchErr != nil {
			return nil, launchErr
		}
		return chromedpFactory, nil
	}
}
