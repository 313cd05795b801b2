package fakestore

import (
	"fmt"

	"github.com/goccy/go-json"
)

// LineItem is one cart line as served by /cart.js.
type LineItem struct {
	Handle   string `json:"handle"`
	Title    string `json:"title"`
	Variant  string `json:"variant,omitempty"`
	Quantity int    `json:"quantity"`
	Price    int    `json:"price"`
}

// DisplayName is the text shown for the line inside the sidecart.
func (item LineItem) DisplayName() string {
	if item.Variant == "" {
		return item.Title
	}
	return item.Title + " - " + item.Variant
}

// Cart is the session cart.
type Cart struct {
	Items []LineItem `json:"items"`
}

// CartDocument is the /cart.js response body.
type CartDocument struct {
	ItemCount  int        `json:"item_count"`
	TotalPrice int        `json:"total_price"`
	Items      []LineItem `json:"items"`
}

// Add merges quantity of the product variant into the cart and returns the resulting line.
func (cart *Cart) Add(product Product, variant string, quantity int) LineItem {
	if quantity <= 0 {
		quantity = 1
	}
	for index := range cart.Items {
		if cart.Items[index].Handle == product.Handle && cart.Items[index].Variant == variant {
			cart.Items[index].Quantity += quantity
			return cart.Items[index]
		}
	}
	item := LineItem{
		Handle:   product.Handle,
		Title:    product.Title,
		Variant:  variant,
		Quantity: quantity,
		Price:    product.PriceCents,
	}
	cart.Items = append(cart.Items, item)
	return item
}

// Document summarises the cart for /cart.js.
func (cart Cart) Document() CartDocument {
	document := CartDocument{Items: cart.Items}
	if document.Items == nil {
		document.Items = []LineItem{}
	}
	for _, item := range cart.Items {
		document.ItemCount += item.Quantity
		document.TotalPrice += item.Quantity * item.Price
	}
	return document
}

func encodeCart(cart Cart) (string, error) {
	payload, encodeErr := json.Marshal(cart)
	if encodeErr != nil {
		return "", fmt.Errorf("fakestore: encode cart: %w", encodeErr)
	}
	return string(payload), nil
}

func decodeCart(value string) (Cart, error) {
	var cart Cart
	if value == "" {
		return cart, nil
	}
	if decodeErr := json.Unmarshal([]byte(value), &cart); decodeErr != nil {
		return Cart{}, fmt.Errorf("fakestore: decode cart: %w", decodeErr)
	}
	return cart, nil
}
