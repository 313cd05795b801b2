package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/config"
)

func TestParseAccountFixture(testingT *testing.T) {
	testCases := []struct {
		name          string
		document      string
		expected      config.Credentials
		expectedError error
	}{
		{
			name:     "complete fixture",
			document: `{"login": {"user": " shopper@example.com ", "password": "hunter2"}}`,
			expected: config.Credentials{User: "shopper@example.com", Password: "hunter2"},
		},
		{
			name:          "missing password",
			document:      `{"login": {"user": "shopper@example.com"}}`,
			expectedError: config.ErrMissingCredentials,
		},
		{
			name:          "missing login object",
			document:      `{"customer": {}}`,
			expectedError: config.ErrMissingCredentials,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testingT.Run(testCase.name, func(testingT *testing.T) {
			credentials, parseErr := config.ParseAccountFixture([]byte(testCase.document))
			if testCase.expectedError != nil {
				require.ErrorIs(testingT, parseErr, testCase.expectedError)
				return
			}
			require.NoError(testingT, parseErr)
			require.Equal(testingT, testCase.expected, credentials)
		})
	}
}

func TestParseAccountFixtureRejectsInvalidJSON(testingT *testing.T) {
	_, parseErr := config.ParseAccountFixture([]byte(`{"login":`))
	require.Error(testingT, parseErr)
}

func TestLoadAccountFixtureReadsFile(testingT *testing.T) {
	fixturePath := filepath.Join(testingT.TempDir(), "account.json")
	require.NoError(testingT, os.WriteFile(fixturePath, []byte(`{"login":{"user":"a@b.c","password":"pw"}}`), 0o600))

	credentials, loadErr := config.LoadAccountFixture(fixturePath)
	require.NoError(testingT, loadErr)
	require.Equal(testingT, "a@b.c", credentials.User)

	_, missingErr := config.LoadAccountFixture(filepath.Join(testingT.TempDir(), "missing.json"))
	require.ErrorIs(testingT, missingErr, os.ErrNotExist)
}
