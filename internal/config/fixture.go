package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	fixturePathLoginUser     = "login.user"
	fixturePathLoginPassword = "login.password"

	errorMessageReadFixture    = "config: read fixture"
	errorMessageInvalidFixture = "config: fixture is not valid json"
)

// ErrMissingCredentials reports an account fixture without login.user or login.password.
var ErrMissingCredentials = errors.New("fixture: missing login credentials")

// Credentials is the customer account used by the quick login helper.
type Credentials struct {
	User     string
	Password string
}

// LoadAccountFixture reads the account fixture at path.
func LoadAccountFixture(path string) (Credentials, error) {
	document, readErr := os.ReadFile(path)
	if readErr != nil {
		return Credentials{}, fmt.Errorf("%s %s: %w", errorMessageReadFixture, path, readErr)
	}
	return ParseAccountFixture(document)
}

// ParseAccountFixture extracts credentials from a JSON document shaped like
// {"login": {"user": "...", "password": "..."}}.
func ParseAccountFixture(document []byte) (Credentials, error) {
	if !gjson.ValidBytes(document) {
		return Credentials{}, errors.New(errorMessageInvalidFixture)
	}
	results := gjson.GetManyBytes(document, fixturePathLoginUser, fixturePathLoginPassword)
	credentials := Credentials{
		User:     strings.TrimSpace(results[0].String()),
		Password: results[1].String(),
	}
	if credentials.User == "" || credentials.Password == "" {
		return Credentials{}, ErrMissingCredentials
	}
	return credentials, nil
}
