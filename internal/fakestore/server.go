// Package fakestore serves a small password protected storefront with the
// markup the suites expect, for local runs and headless tests.
package fakestore

import (
	"embed"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const (
	RoutePassword     = "/password"
	RouteHome         = "/"
	RouteProduct      = "/products/:handle"
	RouteCollection   = "/collections/:handle"
	RouteCartAdd      = "/cart/add.js"
	RouteCart         = "/cart.js"
	RouteAccountLogin = "/account/login"
	RouteAccount      = "/account"

	// StorefrontSessionName holds the gate unlock and the signed in customer.
	StorefrontSessionName = "storefront_digest"
	// CartSessionName holds the cart lines.
	CartSessionName = "cart"

	DefaultPassword = "letmein"

	sessionKeyUnlocked = "unlocked"
	sessionKeyCustomer = "customer"
	sessionKeyCart     = "items"
	sessionMaxAge      = 24 * 60 * 60
	sessionSecretSize  = 32

	templatesPattern   = "templates/*.tmpl"
	corsMaxAge         = 12 * time.Hour
	corsOriginWildcard = "*"

	logEventLoadSession = "load_session"
	logEventSaveSession = "save_session"
	logEventRender      = "render_page"
)

var (
	//go:embed templates/*.tmpl
	templateFiles embed.FS

	corsAllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	corsAllowedHeaders = []string{"Content-Type", "Accept", "X-Requested-With"}
)

// Config configures a Server.
type Config struct {
	// Password unlocks the gate. Empty selects DefaultPassword.
	Password string
	// Accounts maps customer emails to passwords.
	Accounts map[string]string
	// SessionSecret signs session cookies. Empty generates a random key.
	SessionSecret []byte
	// Products seeds the catalog. Empty selects DefaultProducts.
	Products []Product
	Logger   *zap.Logger
}

// Server is the fake storefront.
type Server struct {
	password     string
	accounts     map[string]string
	catalog      *Catalog
	sessionStore *sessions.CookieStore
	templates    *template.Template
	logger       *zap.Logger
}

// NewServer builds a Server from configuration.
func NewServer(configuration Config) *Server {
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	password := configuration.Password
	if strings.TrimSpace(password) == "" {
		password = DefaultPassword
	}
	products := configuration.Products
	if len(products) == 0 {
		products = DefaultProducts()
	}
	secret := configuration.SessionSecret
	if len(secret) == 0 {
		secret = securecookie.GenerateRandomKey(sessionSecretSize)
	}
	accounts := make(map[string]string, len(configuration.Accounts))
	for email, accountPassword := range configuration.Accounts {
		accounts[strings.ToLower(strings.TrimSpace(email))] = accountPassword
	}

	sessionStore := sessions.NewCookieStore(secret)
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	return &Server{
		password:     password,
		accounts:     accounts,
		catalog:      NewCatalog(products),
		sessionStore: sessionStore,
		templates:    template.Must(template.New("storefront").ParseFS(templateFiles, templatesPattern)),
		logger:       logger,
	}
}

// Catalog exposes the products the server renders.
func (server *Server) Catalog() *Catalog {
	return server.catalog
}

// Handler returns the gin router serving every storefront route.
func (server *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(server.logger))

	router.GET(RoutePassword, server.RenderPassword)
	router.POST(RoutePassword, server.SubmitPassword)

	cartCORS := cors.New(cors.Config{
		AllowOrigins:     []string{corsOriginWildcard},
		AllowMethods:     corsAllowedMethods,
		AllowHeaders:     corsAllowedHeaders,
		AllowCredentials: false,
		MaxAge:           corsMaxAge,
	})
	router.OPTIONS(RouteCart, cartCORS)
	router.OPTIONS(RouteCartAdd, cartCORS)

	gated := router.Group("/")
	gated.Use(server.requireUnlocked())
	gated.GET(RouteHome, server.RenderHome)
	gated.GET(RouteProduct, server.RenderProduct)
	gated.GET(RouteCollection, server.RenderCollection)
	gated.GET(RouteCart, cartCORS, server.CartJSON)
	gated.POST(RouteCartAdd, cartCORS, server.AddToCart)
	gated.GET(RouteAccountLogin, server.RenderLogin)
	gated.POST(RouteAccountLogin, server.SubmitLogin)
	gated.GET(RouteAccount, server.RenderAccount)

	return router
}

func (server *Server) storefrontSession(context *gin.Context) *sessions.Session {
	return server.session(context, StorefrontSessionName)
}

// session returns the named session. A cookie signed with another secret yields a fresh session.
func (server *Server) session(context *gin.Context, name string) *sessions.Session {
	sessionInstance, sessionErr := server.sessionStore.Get(context.Request, name)
	if sessionErr != nil {
		server.logger.Warn(logEventLoadSession, zap.String("session", name), zap.Error(sessionErr))
	}
	return sessionInstance
}

func (server *Server) saveSession(context *gin.Context, sessionInstance *sessions.Session) bool {
	if saveErr := sessionInstance.Save(context.Request, context.Writer); saveErr != nil {
		server.logger.Error(logEventSaveSession, zap.String("session", sessionInstance.Name()), zap.Error(saveErr))
		context.AbortWithStatus(http.StatusInternalServerError)
		return false
	}
	return true
}
