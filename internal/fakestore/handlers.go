package fakestore

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	htmlContentType = "text/html; charset=utf-8"

	templatePassword   = "password"
	templateHome       = "home"
	templateProduct    = "product"
	templateCollection = "collection"
	templateLogin      = "login"
	templateAccount    = "account"
	templateNotFound   = "not_found"

	formFieldPassword         = "password"
	formFieldCustomerEmail    = "customer[email]"
	formFieldCustomerPassword = "customer[password]"

	messageWrongPassword     = "Wrong password. Please try again."
	messageInvalidLogin      = "Incorrect email or password."
	messageProductNotFound   = "Product not found"
	messageVariantNotFound   = "The selected variant is not available"
	messageCollectionMissing = "Collection not found"
	messageInvalidCartBody   = "Invalid cart request"

	jsonKeyStatus      = "status"
	jsonKeyMessage     = "message"
	jsonKeyDescription = "description"
)

type pageData struct {
	Title      string
	Error      string
	Customer   string
	Product    *Product
	Products   []Product
	Collection string
	Cart       []LineItem
	ItemCount  int
}

type addToCartRequest struct {
	Handle   string `json:"handle" form:"handle"`
	Variant  string `json:"variant" form:"variant"`
	Quantity int    `json:"quantity" form:"quantity"`
}

// RenderPassword renders the storefront password gate.
func (server *Server) RenderPassword(context *gin.Context) {
	server.render(context, http.StatusOK, templatePassword, pageData{Title: "Opening soon"})
}

// SubmitPassword unlocks the storefront for this browser when the password matches.
func (server *Server) SubmitPassword(context *gin.Context) {
	if context.PostForm(formFieldPassword) != server.password {
		server.render(context, http.StatusOK, templatePassword, pageData{Title: "Opening soon", Error: messageWrongPassword})
		return
	}
	storefrontSession := server.storefrontSession(context)
	storefrontSession.Values[sessionKeyUnlocked] = true
	if !server.saveSession(context, storefrontSession) {
		return
	}
	context.Redirect(http.StatusFound, RouteHome)
}

// RenderHome lists the catalog.
func (server *Server) RenderHome(context *gin.Context) {
	data := server.basePage(context, "Home")
	data.Products = server.catalog.Products()
	server.render(context, http.StatusOK, templateHome, data)
}

// RenderProduct renders the product form with its variant picker.
func (server *Server) RenderProduct(context *gin.Context) {
	product, productErr := server.catalog.Product(context.Param("handle"))
	if productErr != nil {
		server.render(context, http.StatusNotFound, templateNotFound, server.basePage(context, messageProductNotFound))
		return
	}
	data := server.basePage(context, product.Title)
	data.Product = &product
	server.render(context, http.StatusOK, templateProduct, data)
}

// RenderCollection lists the products of one collection.
func (server *Server) RenderCollection(context *gin.Context) {
	handle := context.Param("handle")
	products := server.catalog.Collection(handle)
	if len(products) == 0 {
		server.render(context, http.StatusNotFound, templateNotFound, server.basePage(context, messageCollectionMissing))
		return
	}
	data := server.basePage(context, handle)
	data.Collection = handle
	data.Products = products
	server.render(context, http.StatusOK, templateCollection, data)
}

// CartJSON serves the session cart.
func (server *Server) CartJSON(context *gin.Context) {
	cart := server.loadCart(context)
	context.JSON(http.StatusOK, cart.Document())
}

// AddToCart adds a product variant to the session cart and returns the line.
func (server *Server) AddToCart(context *gin.Context) {
	var request addToCartRequest
	if bindErr := context.ShouldBind(&request); bindErr != nil {
		context.JSON(http.StatusBadRequest, gin.H{jsonKeyStatus: http.StatusBadRequest, jsonKeyMessage: messageInvalidCartBody, jsonKeyDescription: bindErr.Error()})
		return
	}
	product, productErr := server.catalog.Product(request.Handle)
	if productErr != nil {
		context.JSON(http.StatusNotFound, gin.H{jsonKeyStatus: http.StatusNotFound, jsonKeyMessage: messageProductNotFound, jsonKeyDescription: request.Handle})
		return
	}
	variant, variantErr := product.ResolveVariant(request.Variant)
	if errors.Is(variantErr, ErrVariantNotFound) {
		context.JSON(http.StatusUnprocessableEntity, gin.H{jsonKeyStatus: http.StatusUnprocessableEntity, jsonKeyMessage: messageVariantNotFound, jsonKeyDescription: request.Variant})
		return
	}

	cartSession := server.session(context, CartSessionName)
	cart := server.cartFromSession(cartSession.Values[sessionKeyCart])
	item := cart.Add(product, variant, request.Quantity)
	encoded, encodeErr := encodeCart(cart)
	if encodeErr != nil {
		server.logger.Error(logEventSaveSession, zap.Error(encodeErr))
		context.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	cartSession.Values[sessionKeyCart] = encoded
	if !server.saveSession(context, cartSession) {
		return
	}
	context.JSON(http.StatusOK, item)
}

// RenderLogin renders the customer login form.
func (server *Server) RenderLogin(context *gin.Context) {
	server.render(context, http.StatusOK, templateLogin, server.basePage(context, "Login"))
}

// SubmitLogin signs the customer in and redirects to the account page.
// Rejected credentials render the login form again.
func (server *Server) SubmitLogin(context *gin.Context) {
	email := strings.ToLower(strings.TrimSpace(context.PostForm(formFieldCustomerEmail)))
	password := context.PostForm(formFieldCustomerPassword)
	expected, exists := server.accounts[email]
	if !exists || email == "" || expected != password {
		data := server.basePage(context, "Login")
		data.Error = messageInvalidLogin
		server.render(context, http.StatusOK, templateLogin, data)
		return
	}
	storefrontSession := server.storefrontSession(context)
	storefrontSession.Values[sessionKeyCustomer] = email
	if !server.saveSession(context, storefrontSession) {
		return
	}
	context.Redirect(http.StatusFound, RouteAccount)
}

// RenderAccount shows the signed in customer.
func (server *Server) RenderAccount(context *gin.Context) {
	data := server.basePage(context, "Account")
	if data.Customer == "" {
		context.Redirect(http.StatusFound, RouteAccountLogin)
		return
	}
	server.render(context, http.StatusOK, templateAccount, data)
}

func (server *Server) basePage(context *gin.Context, title string) pageData {
	cart := server.loadCart(context)
	document := cart.Document()
	customer, _ := server.storefrontSession(context).Values[sessionKeyCustomer].(string)
	return pageData{
		Title:     title,
		Customer:  customer,
		Cart:      cart.Items,
		ItemCount: document.ItemCount,
	}
}

func (server *Server) loadCart(context *gin.Context) Cart {
	return server.cartFromSession(server.session(context, CartSessionName).Values[sessionKeyCart])
}

func (server *Server) cartFromSession(value any) Cart {
	encoded, _ := value.(string)
	cart, decodeErr := decodeCart(encoded)
	if decodeErr != nil {
		server.logger.Warn(logEventLoadSession, zap.String("session", CartSessionName), zap.Error(decodeErr))
		return Cart{}
	}
	return cart
}

func (server *Server) render(context *gin.Context, status int, name string, data pageData) {
	var buffer bytes.Buffer
	if executeErr := server.templates.ExecuteTemplate(&buffer, name, data); executeErr != nil {
		server.logger.Error(logEventRender, zap.String("template", name), zap.Error(executeErr))
		context.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	context.Data(status, htmlContentType, buffer.Bytes())
}
