package forms

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mamadbah2/stockapp/internal/domain/models"
)

// MaxQuantity bounds a single supply or stock-out.
const MaxQuantity = 1000000

// ProductForm is the create/edit product dialog. The image is read separately
// from the multipart body.
type ProductForm struct {
	Name         string  `form:"name" binding:"required,min=2"`
	CurrentStock int     `form:"current_stock" binding:"min=0"`
	Price        float64 `form:"price" binding:"min=0"`
}

func (ProductForm) numericFields() map[string]bool {
	return map[string]bool{"current_stock": true, "price": false}
}

func (ProductForm) messages() map[string]string {
	return map[string]string{
		"name":          "La désignation doit contenir au moins 2 caractères",
		"current_stock": "Le stock ne peut pas être négatif",
		"price":         "Le prix ne peut pas être négatif",
	}
}

// ProductFormFrom prefills the edit dialog.
func ProductFormFrom(p models.Product) ProductForm {
	return ProductForm{Name: p.Name, CurrentStock: p.CurrentStock, Price: p.Price}
}

// Input converts the form into the API payload.
func (f ProductForm) Input(image *models.ProductImage) models.ProductInput {
	return models.ProductInput{
		Name:         f.Name,
		CurrentStock: f.CurrentStock,
		Price:        f.Price,
		Image:        image,
	}
}

// SupplyForm is the new supply dialog.
type SupplyForm struct {
	ProductID    string `form:"product_id" binding:"required,numeric"`
	Quantity     int    `form:"quantity" binding:"min=1,max=1000000"`
	SupplierName string `form:"supplier_name" binding:"required,min=2"`
}

// NewSupplyForm returns the dialog defaults.
func NewSupplyForm() SupplyForm {
	return SupplyForm{Quantity: 1}
}

func (SupplyForm) numericFields() map[string]bool { return map[string]bool{"quantity": true} }

func (SupplyForm) messages() map[string]string {
	return map[string]string{
		"product_id":    "Veuillez sélectionner un produit",
		"quantity":      "La quantité doit être supérieure à 0",
		"quantity.max":  fmt.Sprintf("La quantité ne peut pas dépasser %d", MaxQuantity),
		"supplier_name": "Le nom du fournisseur est requis",
	}
}

// Input converts the form into the API payload.
func (f SupplyForm) Input() (models.SupplyInput, error) {
	id, err := strconv.Atoi(f.ProductID)
	if err != nil {
		return models.SupplyInput{}, FieldErrors{"product_id": "Veuillez sélectionner un produit"}
	}
	return models.SupplyInput{
		ProductID:    id,
		Quantity:     f.Quantity,
		SupplierName: f.SupplierName,
	}, nil
}

// StockOutForm is the new stock-out dialog.
type StockOutForm struct {
	ProductID string `form:"product_id" binding:"required,numeric"`
	Quantity  int    `form:"quantity" binding:"min=1,max=1000000"`
	Reason    string `form:"reason" binding:"required,min=2"`
}

// NewStockOutForm returns the dialog defaults.
func NewStockOutForm() StockOutForm {
	return StockOutForm{Quantity: 1}
}

func (StockOutForm) numericFields() map[string]bool { return map[string]bool{"quantity": true} }

func (StockOutForm) messages() map[string]string {
	return map[string]string{
		"product_id":   "Veuillez sélectionner un produit",
		"quantity":     "La quantité doit être supérieure à 0",
		"quantity.max": fmt.Sprintf("La quantité ne peut pas dépasser %d", MaxQuantity),
		"reason":       "La raison est requise",
	}
}

// Input converts the form into the API payload.
func (f StockOutForm) Input() (models.StockOutInput, error) {
	id, err := strconv.Atoi(f.ProductID)
	if err != nil {
		return models.StockOutInput{}, FieldErrors{"product_id": "Veuillez sélectionner un produit"}
	}
	return models.StockOutInput{
		ProductID: id,
		Quantity:  f.Quantity,
		Reason:    f.Reason,
	}, nil
}

// LoginForm is the sign-in page.
type LoginForm struct {
	Email    string `form:"email" binding:"required,email"`
	Password string `form:"password" binding:"required"`
}

func (LoginForm) numericFields() map[string]bool { return nil }

func (LoginForm) messages() map[string]string {
	return map[string]string{
		"email":    "Adresse e-mail invalide",
		"password": "Le mot de passe est requis",
	}
}

// Credentials converts the form into the API payload.
func (f LoginForm) Credentials() models.Credentials {
	return models.Credentials{Email: strings.TrimSpace(f.Email), Password: f.Password}
}

// RegisterForm is the sign-up page.
type RegisterForm struct {
	Name                 string `form:"name" binding:"required,min=2"`
	Email                string `form:"email" binding:"required,email"`
	Password             string `form:"password" binding:"required,min=8"`
	PasswordConfirmation string `form:"password_confirmation" binding:"required,eqfield=Password"`
}

func (RegisterForm) numericFields() map[string]bool { return nil }

func (RegisterForm) messages() map[string]string {
	return map[string]string{
		"name":                  "Le nom doit contenir au moins 2 caractères",
		"email":                 "Adresse e-mail invalide",
		"password":              "Le mot de passe doit contenir au moins 8 caractères",
		"password_confirmation": "Les mots de passe ne correspondent pas",
	}
}

// Registration converts the form into the API payload.
func (f RegisterForm) Registration() models.Registration {
	return models.Registration{
		Name:                 strings.TrimSpace(f.Name),
		Email:                strings.TrimSpace(f.Email),
		Password:             f.Password,
		PasswordConfirmation: f.PasswordConfirmation,
	}
}
