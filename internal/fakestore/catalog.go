package fakestore

import (
	"errors"
	"strings"
)

const colorOptionName = "Color"

var (
	// ErrProductNotFound is returned for handles outside the catalog.
	ErrProductNotFound = errors.New("fakestore: product not found")
	// ErrVariantNotFound is returned when a variant value does not belong to the product.
	ErrVariantNotFound = errors.New("fakestore: variant not found")
)

// Product is a catalog entry. Products without variants are added to the cart as is.
type Product struct {
	Handle     string
	Title      string
	PriceCents int
	OptionName string
	Variants   []string
	Collection string
}

// HasVariants reports whether the product renders a variant picker.
func (product Product) HasVariants() bool {
	return len(product.Variants) > 0
}

// DefaultVariant is the preselected variant, empty for products without variants.
func (product Product) DefaultVariant() string {
	if !product.HasVariants() {
		return ""
	}
	return product.Variants[0]
}

// ResolveVariant returns the variant matching value, the default variant when
// value is empty, or ErrVariantNotFound.
func (product Product) ResolveVariant(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !product.HasVariants() {
		if trimmed != "" {
			return "", ErrVariantNotFound
		}
		return "", nil
	}
	if trimmed == "" {
		return product.DefaultVariant(), nil
	}
	for _, variant := range product.Variants {
		if strings.EqualFold(variant, trimmed) {
			return variant, nil
		}
	}
	return "", ErrVariantNotFound
}

// Catalog is an ordered, read-only product list.
type Catalog struct {
	products []Product
	byHandle map[string]Product
}

// NewCatalog indexes products by handle. Later duplicates are ignored.
func NewCatalog(products []Product) *Catalog {
	catalog := &Catalog{byHandle: make(map[string]Product, len(products))}
	for _, product := range products {
		handle := strings.TrimSpace(product.Handle)
		if handle == "" {
			continue
		}
		if _, exists := catalog.byHandle[handle]; exists {
			continue
		}
		product.Handle = handle
		if product.HasVariants() && product.OptionName == "" {
			product.OptionName = colorOptionName
		}
		catalog.products = append(catalog.products, product)
		catalog.byHandle[handle] = product
	}
	return catalog
}

// DefaultProducts seeds a tee with colour variants and a gift card without variants.
func DefaultProducts() []Product {
	return []Product{
		{
			Handle:     "classic-tee",
			Title:      "Classic Tee",
			PriceCents: 2500,
			OptionName: colorOptionName,
			Variants:   []string{"Red", "Green", "Blue", "Black"},
			Collection: "apparel",
		},
		{
			Handle:     "gift-card",
			Title:      "Gift Card",
			PriceCents: 5000,
			Collection: "apparel",
		},
	}
}

// Product looks a product up by handle.
func (catalog *Catalog) Product(handle string) (Product, error) {
	product, exists := catalog.byHandle[strings.TrimSpace(handle)]
	if !exists {
		return Product{}, ErrProductNotFound
	}
	return product, nil
}

// Products returns every product in catalog order.
func (catalog *Catalog) Products() []Product {
	return append([]Product(nil), catalog.products...)
}

// Collection returns the products tagged with handle.
func (catalog *Catalog) Collection(handle string) []Product {
	trimmed := strings.TrimSpace(handle)
	var products []Product
	for _, product := range catalog.products {
		if product.Collection == trimmed {
			products = append(products, product)
		}
	}
	return products
}
