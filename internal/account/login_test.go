package account_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/account"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/browser"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/browser/browsertest"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/config"
)

const (
	testCustomerEmail    = "shopper@example.com"
	testCustomerPassword = "correct-horse"
	testSessionCookie    = "_secure_customer_sig"
	testCartCookie       = "cart"
)

type loginServerOptions struct {
	status int
}

func newLoginServer(testingT *testing.T, options loginServerOptions) *httptest.Server {
	testingT.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(account.LoginPath, func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPost {
			writer.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if options.status != 0 {
			writer.WriteHeader(options.status)
			return
		}
		if parseErr := request.ParseForm(); parseErr != nil {
			writer.WriteHeader(http.StatusBadRequest)
			return
		}
		if _, cartErr := request.Cookie(testCartCookie); cartErr != nil {
			writer.WriteHeader(http.StatusBadRequest)
			return
		}
		if request.PostForm.Get(account.FormFieldEmail) != testCustomerEmail || request.PostForm.Get(account.FormFieldPassword) != testCustomerPassword {
			_, _ = writer.Write([]byte(`<form action="/account/login" method="post"></form>`))
			return
		}
		http.SetCookie(writer, &http.Cookie{Name: testSessionCookie, Value: "signed", Path: "/"})
		http.Redirect(writer, request, "/account", http.StatusFound)
	})
	mux.HandleFunc("/account", func(writer http.ResponseWriter, request *http.Request) {
		_, _ = writer.Write([]byte(`<h1>My account</h1>`))
	})
	server := httptest.NewServer(mux)
	testingT.Cleanup(server.Close)
	return server
}

func newBrowserWithCart(server *httptest.Server) *browsertest.Driver {
	driver := browsertest.New()
	driver.SetURL(server.URL + "/products/classic-tee")
	_ = driver.SetCookies(context.Background(), []browser.Cookie{{Name: testCartCookie, Value: "c1", URL: server.URL, Path: "/"}})
	return driver
}

func TestQuickLoginMovesSessionIntoBrowser(testingT *testing.T) {
	server := newLoginServer(testingT, loginServerOptions{})
	driver := newBrowserWithCart(server)
	quickLogin := account.NewQuickLogin(config.Snapshot{Store: server.URL}, zap.NewNop())

	loginErr := quickLogin.Login(context.Background(), driver, config.Credentials{User: testCustomerEmail, Password: testCustomerPassword})
	require.NoError(testingT, loginErr)

	cookies, cookiesErr := driver.Cookies(context.Background())
	require.NoError(testingT, cookiesErr)
	names := make([]string, 0, len(cookies))
	for _, cookie := range cookies {
		names = append(names, cookie.Name)
	}
	require.ElementsMatch(testingT, []string{testCartCookie, testSessionCookie}, names)
	require.Equal(testingT, 1, driver.ReloadCount())
}

func TestQuickLoginFailures(testingT *testing.T) {
	testCases := []struct {
		name        string
		status      int
		credentials config.Credentials
		expectedErr error
	}{
		{
			name:        "wrong password",
			credentials: config.Credentials{User: testCustomerEmail, Password: "wrong"},
			expectedErr: account.ErrLoginRejected,
		},
		{
			name:        "server error",
			status:      http.StatusInternalServerError,
			credentials: config.Credentials{User: testCustomerEmail, Password: testCustomerPassword},
			expectedErr: account.ErrUnexpectedStatus,
		},
		{
			name:        "throttled",
			status:      http.StatusTooManyRequests,
			credentials: config.Credentials{User: testCustomerEmail, Password: testCustomerPassword},
			expectedErr: account.ErrUnexpectedStatus,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testingT.Run(testCase.name, func(testingT *testing.T) {
			server := newLoginServer(testingT, loginServerOptions{status: testCase.status})
			driver := newBrowserWithCart(server)
			quickLogin := account.NewQuickLogin(config.Snapshot{Store: server.URL}, nil)

			loginErr := quickLogin.Login(context.Background(), driver, testCase.credentials)
			require.ErrorIs(testingT, loginErr, testCase.expectedErr)
			require.Zero(testingT, driver.ReloadCount())

			cookies, cookiesErr := driver.Cookies(context.Background())
			require.NoError(testingT, cookiesErr)
			require.Len(testingT, cookies, 1)
		})
	}
}

func TestQuickLoginUsesConfiguredTransport(testingT *testing.T) {
	server := newLoginServer(testingT, loginServerOptions{})
	driver := newBrowserWithCart(server)
	recorder := &recordingTransport{next: http.DefaultTransport}
	quickLogin := account.NewQuickLogin(config.Snapshot{Store: server.URL}, nil, account.WithTransport(recorder))

	require.NoError(testingT, quickLogin.Login(context.Background(), driver, config.Credentials{User: testCustomerEmail, Password: testCustomerPassword}))
	require.Equal(testingT, []string{"POST " + account.LoginPath, "GET /account"}, recorder.requests)
}

type recordingTransport struct {
	next     http.RoundTripper
	requests []string
}

func (transport *recordingTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	transport.requests = append(transport.requests, request.Method+" "+request.URL.Path)
	return transport.next.RoundTrip(request)
}
