package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseAccounts(testingT *testing.T) {
	testCases := []struct {
		name     string
		entries  []string
		expected map[string]string
		hasError bool
	}{
		{name: "empty", entries: nil, expected: map[string]string{}},
		{
			name:     "normalizes email",
			entries:  []string{" Shopper@Example.com:secret:with:colons "},
			expected: map[string]string{"shopper@example.com": "secret:with:colons"},
		},
		{name: "missing separator", entries: []string{"shopper@example.com"}, hasError: true},
		{name: "missing password", entries: []string{"shopper@example.com:"}, hasError: true},
		{name: "missing email", entries: []string{":secret"}, hasError: true},
	}

	for _, testCase := range testCases {
		testingT.Run(testCase.name, func(testingT *testing.T) {
			accounts, parseErr := parseAccounts(testCase.entries)
			if testCase.hasError {
				require.ErrorIs(testingT, parseErr, errInvalidAccount)
				return
			}
			require.NoError(testingT, parseErr)
			require.Equal(testingT, testCase.expected, accounts)
		})
	}
}

func TestCommandRejectsInvalidAccount(testingT *testing.T) {
	command, commandErr := NewApplication().WithLogger(zap.NewNop()).Command()
	require.NoError(testingT, commandErr)
	command.SetOut(&bytes.Buffer{})
	command.SetErr(&bytes.Buffer{})
	command.SetArgs([]string{"--addr", "127.0.0.1:0", "--account", "nobody"})

	require.ErrorIs(testingT, command.Execute(), errInvalidAccount)
}

func TestCommandServesGateUntilCancelled(testingT *testing.T) {
	addresses := make(chan string, 1)
	command, commandErr := NewApplication().
		WithLogger(zap.NewNop()).
		OnListening(func(address string) { addresses <- address }).
		Command()
	require.NoError(testingT, commandErr)
	command.SetOut(&bytes.Buffer{})
	command.SetErr(&bytes.Buffer{})
	command.SetArgs([]string{"--addr", "127.0.0.1:0", "--password", "open-sesame", "--account", "shopper@example.com:secret"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	executeErrors := make(chan error, 1)
	go func() {
		executeErrors <- command.ExecuteContext(ctx)
	}()

	var address string
	select {
	case address = <-addresses:
	case executeErr := <-executeErrors:
		testingT.Skipf("fake store did not start: %v", executeErr)
	case <-time.After(5 * time.Second):
		testingT.Fatal("fake store did not report its address")
	}

	client := &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	response, requestErr := client.Get("http://" + address + "/")
	require.NoError(testingT, requestErr)
	_, _ = io.Copy(io.Discard, response.Body)
	require.NoError(testingT, response.Body.Close())
	require.Equal(testingT, http.StatusFound, response.StatusCode)
	require.Equal(testingT, "/password", response.Header.Get("Location"))

	cancel()
	select {
	case executeErr := <-executeErrors:
		require.NoError(testingT, executeErr)
	case <-time.After(10 * time.Second):
		testingT.Fatal("fake store did not shut down")
	}
}
