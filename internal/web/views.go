package web

import (
	"github.com/mamadbah2/stockapp/internal/domain/models"
	"github.com/mamadbah2/stockapp/internal/forms"
	"github.com/mamadbah2/stockapp/internal/session"
)

// Page is the data passed to every layout.
type Page struct {
	Title   string
	Active  string
	CSRF    string
	Flashes []session.Flash
	Nav     []NavItem
	Content any
}

// AuthView backs the login and register pages.
type AuthView struct {
	Form   any
	Errors forms.FieldErrors
}

// DashboardView backs the dashboard page.
type DashboardView struct {
	Stats *models.DashboardStats
}

// ProductsView backs the product list and its create/edit dialog.
type ProductsView struct {
	Products []models.Product
	Search   string
	Loading  bool

	DialogOpen bool
	// EditID is set when the dialog edits an existing product.
	EditID models.ID
	Form   forms.ProductForm
	Errors forms.FieldErrors
}

// SuppliesView backs the supply list and its dialog.
type SuppliesView struct {
	Supplies []models.Supply
	Products []models.Product

	DialogOpen bool
	Form       forms.SupplyForm
	Errors     forms.FieldErrors
}

// OutputsView backs the stock-out list and its dialog.
type OutputsView struct {
	StockOuts []models.StockOut
	Products  []models.Product

	DialogOpen bool
	Form       forms.StockOutForm
	Errors     forms.FieldErrors
}

// ErrorView backs the error page.
type ErrorView struct {
	Message string
}

// ProductOptions feeds the product select of the movement dialogs.
type ProductOptions struct {
	Products  []models.Product
	Selected  string
	WithStock bool
}
