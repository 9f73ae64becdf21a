package models

import "io"

// Product mirrors the API product resource.
type Product struct {
	ID           ID      `json:"id"`
	Name         string  `json:"name"`
	Image        *string `json:"image"`
	CurrentStock int     `json:"current_stock"`
	Price        float64 `json:"price"`
}

// ImagePath returns the server-relative image path or an empty string.
func (p Product) ImagePath() string {
	if p.Image == nil {
		return ""
	}
	return *p.Image
}

// ProductRef is the nested product embedded in supply and stock-out rows.
type ProductRef struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// ProductImage is an optional file uploaded alongside a product.
type ProductImage struct {
	Filename string
	Content  io.Reader
}

// ProductInput is the multipart payload for product create and update.
type ProductInput struct {
	Name         string
	CurrentStock int
	Price        float64
	Image        *ProductImage
}

// FindProduct returns the product with the given id from a fetched list.
func FindProduct(products []Product, id ID) (Product, bool) {
	for _, p := range products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}
