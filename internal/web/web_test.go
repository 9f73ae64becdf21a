package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/stockapp/internal/domain/models"
	"github.com/mamadbah2/stockapp/internal/forms"
	"github.com/mamadbah2/stockapp/internal/session"
)

func renderPage(t *testing.T, r *Renderer, page string, data Page) string {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, r.Instance(page, data).Render(rec))
	return rec.Body.String()
}

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer("http://assets.test/")
	require.NoError(t, err)
	return r
}

func TestProductsPage(t *testing.T) {
	r := newRenderer(t)
	image := "storage/riz.png"
	body := renderPage(t, r, PageProducts, Page{
		Title:  "Produits",
		Active: "/products",
		CSRF:   "csrf-1",
		Nav:    Navigation,
		Content: ProductsView{
			Products: []models.Product{
				{ID: "1", Name: "Riz", CurrentStock: 4, Price: 1500, Image: &image},
				{ID: "2", Name: "Sucre", CurrentStock: 0, Price: 2.5},
			},
			DialogOpen: true,
			EditID:     "1",
			Form:       forms.ProductForm{Name: "Riz", CurrentStock: 4, Price: 1500},
			Errors:     forms.FieldErrors{"name": "La désignation doit contenir au moins 2 caractères"},
		},
	})

	assert.Contains(t, body, `src="http://assets.test/storage/riz.png"`)
	assert.Contains(t, body, "N/A")
	assert.Contains(t, body, "1500.00")
	assert.Contains(t, body, "Modifier le produit")
	assert.Contains(t, body, `action="/products/1"`)
	assert.Contains(t, body, "La désignation doit contenir au moins 2 caractères")
	assert.Contains(t, body, `value="csrf-1"`)
	assert.Contains(t, body, `class="nav-link nav-package active"`)
	assert.Equal(t, 2, strings.Count(body, "data-product-id="))
}

func TestEmptyListRendersNoRows(t *testing.T) {
	r := newRenderer(t)
	body := renderPage(t, r, PageOutputs, Page{Title: "Sorties", Nav: Navigation, Content: OutputsView{}})
	assert.NotContains(t, body, `class="qty-out"`)
	assert.NotContains(t, body, "<dialog")
}

func TestOutputsDialogShowsStockInOptions(t *testing.T) {
	r := newRenderer(t)
	body := renderPage(t, r, PageOutputs, Page{
		Title: "Sorties",
		Nav:   Navigation,
		Flashes: []session.Flash{
			{Kind: session.FlashError, Title: "Erreur", Message: "Stock insuffisant"},
		},
		Content: OutputsView{
			StockOuts: []models.StockOut{{ID: "1", Product: &models.ProductRef{Name: "Riz"}, Quantity: 2, Reason: "vente",
				CreatedAt: models.Timestamp{Time: time.Date(2024, 5, 10, 12, 0, 0, 0, time.Local)}}},
			Products:   []models.Product{{ID: "3", Name: "Riz", CurrentStock: 5}},
			DialogOpen: true,
			Form:       forms.StockOutForm{ProductID: "3", Quantity: 9},
		},
	})
	assert.Contains(t, body, `<option value="3" selected>Riz (Stock: 5)</option>`)
	assert.Contains(t, body, "-2")
	assert.Contains(t, body, "10/05/2024")
	assert.Contains(t, body, "toast-error")
	assert.Contains(t, body, "Stock insuffisant")
}

func TestSuppliesOptionsOmitStock(t *testing.T) {
	r := newRenderer(t)
	body := renderPage(t, r, PageSupplies, Page{
		Title: "Approvisionnements",
		Nav:   Navigation,
		Content: SuppliesView{
			Supplies:   []models.Supply{{ID: "1", ProductName: "Sucre", Quantity: 7, SupplierName: "Sodeci"}},
			Products:   []models.Product{{ID: "3", Name: "Riz", CurrentStock: 5}},
			DialogOpen: true,
			Form:       forms.NewSupplyForm(),
		},
	})
	assert.Contains(t, body, `<option value="3">Riz</option>`)
	assert.Contains(t, body, "+7")
	assert.Contains(t, body, "Sodeci")
}

func TestDashboardEmbedsChartData(t *testing.T) {
	r := newRenderer(t)
	body := renderPage(t, r, PageDashboard, Page{
		Title: "Tableau de bord",
		Nav:   Navigation,
		Content: DashboardView{Stats: &models.DashboardStats{
			TotalProducts:       3,
			StockEvolution:      []models.StockEvolutionPoint{{Date: "2024-05-10", Stock: 42}},
			ProductDistribution: []models.ProductStock{{Name: "Riz", Stock: 4}},
		}},
	})
	assert.Contains(t, body, `"date":"2024-05-10"`)
	assert.Contains(t, body, `"stock":42`)
	assert.Contains(t, body, "Aucune sortie")
}

func TestAuthPages(t *testing.T) {
	r := newRenderer(t)
	body := renderPage(t, r, PageLogin, Page{
		Title:   "Connexion",
		Content: AuthView{Form: forms.LoginForm{Email: "a@b.c"}, Errors: forms.FieldErrors{"password": "Le mot de passe est requis"}},
	})
	assert.Contains(t, body, `value="a@b.c"`)
	assert.Contains(t, body, "Le mot de passe est requis")
	assert.NotContains(t, body, "Déconnexion")

	body = renderPage(t, r, PageRegister, Page{Title: "Inscription", Content: AuthView{Form: forms.RegisterForm{}}})
	assert.Contains(t, body, "password_confirmation")
}

func TestUnknownPageFallsBackToError(t *testing.T) {
	r := newRenderer(t)
	body := renderPage(t, r, "missing", Page{})
	assert.Contains(t, body, "Page introuvable: missing")
}

func TestStaticAssets(t *testing.T) {
	srv := http.FileServer(Static())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app.css", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
