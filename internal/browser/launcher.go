package browser

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/go-rod/rod/lib/launcher"
)

const (
	environmentChromedpBrowser = "CHROMEDP_BROWSER"
	environmentChromePath      = "CHROME_PATH"
	locateErrorMessage         = "locate browser executable"
)

// ErrBrowserNotFound is returned when no Chromium build could be located or downloaded.
var ErrBrowserNotFound = errors.New("browser executable not found")

var executableNames = []string{
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"chrome",
	"headless-shell",
}

var executableLookupCache struct {
	once sync.Once
	path string
	err  error
}

// downloadExecutable is swapped in tests to keep lookups offline.
var downloadExecutable = func() (string, error) {
	browser := launcher.NewBrowser()
	path, err := browser.Get()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(path) == "" {
		return "", errors.New("launcher returned empty browser path")
	}
	return path, nil
}

// LocateExecutable returns configured when it is set, otherwise the first
// browser found through CHROMEDP_BROWSER, CHROME_PATH, PATH or a managed
// download. Discovery runs once per process.
func LocateExecutable(configured string) (string, error) {
	if trimmed := strings.TrimSpace(configured); trimmed != "" {
		return trimmed, nil
	}
	executableLookupCache.once.Do(func() {
		executableLookupCache.path, executableLookupCache.err = discoverExecutable()
	})
	return executableLookupCache.path, executableLookupCache.err
}

func discoverExecutable() (string, error) {
	for _, environmentVariableName := range []string{environmentChromedpBrowser, environmentChromePath} {
		environmentValue := strings.TrimSpace(os.Getenv(environmentVariableName))
		if environmentValue != "" {
			return environmentValue, nil
		}
	}

	for _, executableName := range executableNames {
		executablePath, lookupErr := exec.LookPath(executableName)
		if lookupErr == nil {
			return executablePath, nil
		}
	}

	downloadedPath, downloadErr := downloadExecutable()
	if downloadErr == nil {
		return downloadedPath, nil
	}
	return "", fmt.Errorf("%s: %w (auto download failed: %v)", locateErrorMessage, ErrBrowserNotFound, downloadErr)
}
