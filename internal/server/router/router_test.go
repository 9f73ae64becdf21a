package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/stockapp/internal/domain/models"
	"github.com/mamadbah2/stockapp/internal/export"
	"github.com/mamadbah2/stockapp/internal/metrics"
	"github.com/mamadbah2/stockapp/internal/querycache"
	"github.com/mamadbah2/stockapp/internal/server/handlers"
	"github.com/mamadbah2/stockapp/internal/server/middleware"
	"github.com/mamadbah2/stockapp/internal/service/stock"
	"github.com/mamadbah2/stockapp/internal/session"
	"github.com/mamadbah2/stockapp/internal/web"
	"github.com/mamadbah2/stockapp/pkg/clients/inventory"
)

const (
	cookieName = "sid"
	apiToken   = "tok-1"
)

type apiCall struct {
	Method   string
	Path     string
	Override string
	Form     url.Values
	HasImage bool
}

// fakeAPI is an in-memory inventory API.
type fakeAPI struct {
	mu        sync.Mutex
	token     string
	nextID    int
	products  []models.Product
	supplies  []models.Supply
	stockOuts []models.StockOut
	calls     []apiCall
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{token: apiToken, nextID: 1}
}

func (a *fakeAPI) count(method, path string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

func (a *fakeAPI) total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

func (a *fakeAPI) find(method, path string) []apiCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []apiCall
	for _, c := range a.calls {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func (a *fakeAPI) seed(name string, stockLevel int, price float64) models.ID {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := models.ID(strconv.Itoa(a.nextID))
	a.nextID++
	a.products = append(a.products, models.Product{ID: id, Name: name, CurrentStock: stockLevel, Price: price})
	return id
}

func (a *fakeAPI) revokeToken() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = "rotated"
}

func (a *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	call := apiCall{Method: r.Method, Path: r.URL.Path, Override: r.URL.Query().Get(inventory.MethodOverrideParam)}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			call.Form = r.MultipartForm.Value
			call.HasImage = len(r.MultipartForm.File["image"]) > 0
		}
	}
	a.calls = append(a.calls, call)

	if r.URL.Path == "/login" {
		var creds models.Credentials
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Password != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, models.AuthResponse{Token: a.token, User: &models.User{ID: "1", Name: "Awa"}})
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+a.token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthenticated."})
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/dashboard/stats":
		writeJSON(w, http.StatusOK, models.DashboardStats{TotalProducts: len(a.products), TotalSupplies: len(a.supplies), TotalStockOuts: len(a.stockOuts)})
	case r.Method == http.MethodGet && r.URL.Path == "/products":
		search := strings.ToLower(r.URL.Query().Get("search"))
		out := make([]models.Product, 0, len(a.products))
		for _, p := range a.products {
			if strings.Contains(strings.ToLower(p.Name), search) {
				out = append(out, p)
			}
		}
		writeJSON(w, http.StatusOK, out)
	case r.Method == http.MethodPost && r.URL.Path == "/products":
		p := productFromForm(call.Form)
		p.ID = models.ID(strconv.Itoa(a.nextID))
		a.nextID++
		a.products = append(a.products, p)
		writeJSON(w, http.StatusCreated, p)
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/products/"):
		id := models.ID(strings.TrimPrefix(r.URL.Path, "/products/"))
		for i := range a.products {
			if a.products[i].ID == id {
				p := productFromForm(call.Form)
				p.ID = id
				a.products[i] = p
				writeJSON(w, http.StatusOK, p)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not found"})
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/products/"):
		id := models.ID(strings.TrimPrefix(r.URL.Path, "/products/"))
		kept := a.products[:0]
		for _, p := range a.products {
			if p.ID != id {
				kept = append(kept, p)
			}
		}
		a.products = kept
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodGet && r.URL.Path == "/supplies":
		writeJSON(w, http.StatusOK, a.supplies)
	case r.Method == http.MethodPost && r.URL.Path == "/supplies":
		var in models.SupplyInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		s := models.Supply{ID: models.ID(strconv.Itoa(len(a.supplies) + 1)), ProductID: models.ID(strconv.Itoa(in.ProductID)), Quantity: in.Quantity, SupplierName: in.SupplierName}
		a.adjust(s.ProductID, in.Quantity)
		a.supplies = append(a.supplies, s)
		writeJSON(w, http.StatusCreated, s)
	case r.Method == http.MethodGet && r.URL.Path == "/stock-outs":
		writeJSON(w, http.StatusOK, a.stockOuts)
	case r.Method == http.MethodPost && r.URL.Path == "/stock-outs":
		var in models.StockOutInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		s := models.StockOut{ID: models.ID(strconv.Itoa(len(a.stockOuts) + 1)), ProductID: models.ID(strconv.Itoa(in.ProductID)), Quantity: in.Quantity, Reason: in.Reason}
		a.adjust(s.ProductID, -in.Quantity)
		a.stockOuts = append(a.stockOuts, s)
		writeJSON(w, http.StatusCreated, s)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not found"})
	}
}

func (a *fakeAPI) adjust(id models.ID, delta int) {
	for i := range a.products {
		if a.products[i].ID == id {
			a.products[i].CurrentStock += delta
		}
	}
}

func productFromForm(form url.Values) models.Product {
	stockLevel, _ := strconv.Atoi(form.Get("current_stock"))
	price, _ := strconv.ParseFloat(form.Get("price"), 64)
	return models.Product{Name: form.Get("name"), CurrentStock: stockLevel, Price: price}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type harness struct {
	t        *testing.T
	api      *fakeAPI
	sessions *session.Manager
	engine   *gin.Engine
	id       string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	api := newFakeAPI()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	sessions := session.NewManager(session.NewMemoryStore(time.Hour), nil)
	client := inventory.NewClient(inventory.Options{BaseURL: srv.URL, Tokens: inventory.TokenFunc(sessions.BearerToken)})
	cache := querycache.New(querycache.Options{})
	svc := stock.NewService(client, cache, nil, nil)

	renderer, err := web.NewRenderer("http://assets.test")
	require.NoError(t, err)

	engine := New(Handlers{
		Auth:      handlers.NewAuthHandler(client, sessions, nil),
		Dashboard: handlers.NewDashboardHandler(svc, sessions, nil),
		Products:  handlers.NewProductHandler(svc, sessions, nil),
		Movements: handlers.NewMovementHandler(svc, sessions, nil),
		Export:    handlers.NewExportHandler(svc, sessions, nil),
	}, Options{
		Sessions: sessions,
		Renderer: renderer,
		Cookie:   middleware.CookieOptions{Name: cookieName, TTL: time.Hour},
		Metrics:  metrics.New(),
	}, nil)

	return &harness{t: t, api: api, sessions: sessions, engine: engine, id: session.NewID()}
}

func (h *harness) signIn() {
	h.t.Helper()
	require.NoError(h.t, h.sessions.SetToken(context.Background(), h.id, apiToken))
}

func (h *harness) csrf() string {
	h.t.Helper()
	token, err := h.sessions.CSRFToken(context.Background(), h.id)
	require.NoError(h.t, err)
	return token
}

func (h *harness) token() string {
	h.t.Helper()
	token, err := h.sessions.Token(context.Background(), h.id)
	require.NoError(h.t, err)
	return token
}

func (h *harness) do(method, path, contentType string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.AddCookie(&http.Cookie{Name: cookieName, Value: h.id})
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	return rec
}

// follow switches the harness to the session cookie set by rec, if any.
func (h *harness) follow(rec *httptest.ResponseRecorder) {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == cookieName {
			h.id = ck.Value
		}
	}
}

func (h *harness) get(path string) *httptest.ResponseRecorder {
	return h.do(http.MethodGet, path, "", nil)
}

func (h *harness) post(path string, form url.Values) *httptest.ResponseRecorder {
	form.Set(middleware.CSRFField, h.csrf())
	return h.do(http.MethodPost, path, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

func (h *harness) postMultipart(path string, fields map[string]string, image []byte) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(h.t, mw.WriteField(middleware.CSRFField, h.csrf()))
	for k, v := range fields {
		require.NoError(h.t, mw.WriteField(k, v))
	}
	if image != nil {
		fw, err := mw.CreateFormFile("image", "photo.png")
		require.NoError(h.t, err)
		_, err = fw.Write(image)
		require.NoError(h.t, err)
	}
	require.NoError(h.t, mw.Close())
	return h.do(http.MethodPost, path, mw.FormDataContentType(), &buf)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	rec := h.get("/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRootRedirectsByToken(t *testing.T) {
	h := newHarness(t)

	rec := h.get("/")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, middleware.LoginPath, rec.Header().Get("Location"))

	h.signIn()
	rec = h.get("/")
	assert.Equal(t, middleware.HomePath, rec.Header().Get("Location"))
}

func TestProtectedPagesRedirectWithoutCallingAPI(t *testing.T) {
	h := newHarness(t)

	for _, path := range []string{"/dashboard", "/products", "/supplies", "/outputs", "/export/products"} {
		rec := h.get(path)
		assert.Equal(t, http.StatusSeeOther, rec.Code, path)
		assert.Equal(t, middleware.LoginPath, rec.Header().Get("Location"), path)
	}
	assert.Zero(t, h.api.total())
}

func TestLogin(t *testing.T) {
	h := newHarness(t)

	rec := h.get(middleware.LoginPath)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `action="/auth/login"`)

	rec = h.post(middleware.LoginPath, url.Values{"email": {"awa@example.com"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Email ou mot de passe incorrect")
	assert.Empty(t, h.token())

	anonymousID := h.id
	rec = h.post(middleware.LoginPath, url.Values{"email": {"awa@example.com"}, "password": {"secret"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, middleware.HomePath, rec.Header().Get("Location"))
	assert.Empty(t, h.token(), "the pre-login session ID is not signed in")

	h.follow(rec)
	assert.NotEqual(t, anonymousID, h.id)
	assert.Equal(t, apiToken, h.token())

	rec = h.get(middleware.LoginPath)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestLoginValidationSkipsAPI(t *testing.T) {
	h := newHarness(t)
	rec := h.post(middleware.LoginPath, url.Values{"email": {"not-an-email"}, "password": {""}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Zero(t, h.api.count(http.MethodPost, "/login"))
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.signIn()

	rec := h.post("/logout", url.Values{})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, middleware.LoginPath, rec.Header().Get("Location"))
	assert.Empty(t, h.token())
}

func TestMutationWithoutCSRFIsRejected(t *testing.T) {
	h := newHarness(t)
	h.signIn()

	form := url.Values{"product_id": {"1"}, "quantity": {"1"}, "supplier_name": {"Sodefitex"}}
	rec := h.do(http.MethodPost, "/supplies", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, h.api.count(http.MethodPost, "/supplies"))
}

func TestDashboard(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	h.api.seed("Riz", 10, 500)

	rec := h.get("/dashboard")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Total Produits")
	assert.Equal(t, 1, h.api.count(http.MethodGet, "/dashboard/stats"))
}

func TestUnauthorizedResponseSignsOut(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	h.api.revokeToken()

	rec := h.get("/dashboard")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, middleware.LoginPath, rec.Header().Get("Location"))
	assert.Empty(t, h.token())

	rec = h.get(middleware.LoginPath)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Session expirée")
}

func TestEmptyProductListRendersNoRows(t *testing.T) {
	h := newHarness(t)
	h.signIn()

	rec := h.get("/products")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, strings.Count(rec.Body.String(), "data-product-id"))
}

func TestProductListIsCachedPerSearch(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	h.api.seed("Riz", 10, 500)
	h.api.seed("Huile", 3, 1200)

	h.get("/products")
	h.get("/products")
	assert.Equal(t, 1, h.api.count(http.MethodGet, "/products"))

	rec := h.get("/products?search=riz")
	assert.Equal(t, 1, strings.Count(rec.Body.String(), "data-product-id"))
	assert.Equal(t, 2, h.api.count(http.MethodGet, "/products"))

	rec = h.get("/products")
	assert.Equal(t, 2, strings.Count(rec.Body.String(), "data-product-id"))
	assert.Equal(t, 2, h.api.count(http.MethodGet, "/products"), "clearing the search is served from cache")

	h.get("/products?refresh=1")
	assert.Equal(t, 3, h.api.count(http.MethodGet, "/products"))
}

func TestCreateProductThenListShowsIt(t *testing.T) {
	h := newHarness(t)
	h.signIn()

	rec := h.postMultipart("/products", map[string]string{"name": "Sucre", "current_stock": "12", "price": "750"}, []byte("png"))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/products", rec.Header().Get("Location"))

	created := h.api.find(http.MethodPost, "/products")
	require.Len(t, created, 1)
	assert.True(t, created[0].HasImage)
	assert.Equal(t, "Sucre", created[0].Form.Get("name"))

	rec = h.get("/products")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Sucre")
	assert.Contains(t, body, "Produit ajouté avec succès")
}

func TestInvalidProductFormSkipsAPI(t *testing.T) {
	h := newHarness(t)
	h.signIn()

	rec := h.postMultipart("/products", map[string]string{"name": "a", "current_stock": "-1", "price": "0"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "La désignation doit contenir au moins 2 caractères")
	assert.Contains(t, body, "<dialog open")
	assert.Zero(t, h.api.count(http.MethodPost, "/products"))
}

func TestBlankProductNameSkipsAPI(t *testing.T) {
	h := newHarness(t)
	h.signIn()

	rec := h.postMultipart("/products", map[string]string{"name": "   ", "current_stock": "3", "price": "10"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "La désignation doit contenir au moins 2 caractères")
	assert.Zero(t, h.api.count(http.MethodPost, "/products"))
}

func TestStockOutWithFractionalQuantityKeepsReason(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	id := h.api.seed("Riz", 5, 500)

	rec := h.post("/outputs", url.Values{"product_id": {id.String()}, "quantity": {"2.5"}, "reason": {"VenteMarche"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Veuillez saisir un nombre entier")
	assert.Contains(t, body, `name="reason" value="VenteMarche"`)
	assert.Zero(t, h.api.count(http.MethodPost, "/stock-outs"))
}

func TestUpdateProductSendsOneOverriddenMultipartRequest(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	id := h.api.seed("Riz", 10, 500)

	rec := h.get("/products?edit=" + id.String())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `action="/products/`+id.String()+`"`)

	rec = h.postMultipart("/products/"+id.String(), map[string]string{"name": "Riz parfumé", "current_stock": "10", "price": "650"}, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	updates := h.api.find(http.MethodPost, "/products/"+id.String())
	require.Len(t, updates, 1)
	assert.Equal(t, http.MethodPut, updates[0].Override)
	assert.Equal(t, "Riz parfumé", updates[0].Form.Get("name"))
	assert.Equal(t, "650", updates[0].Form.Get("price"))
	assert.False(t, updates[0].HasImage)

	rec = h.get("/products")
	assert.Contains(t, rec.Body.String(), "Produit modifié avec succès")
	assert.Contains(t, rec.Body.String(), "Riz parfumé")
}

func TestDeleteProduct(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	id := h.api.seed("Riz", 10, 500)

	rec := h.post("/products/"+id.String()+"/delete", url.Values{})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, 1, h.api.count(http.MethodDelete, "/products/"+id.String()))

	rec = h.get("/products")
	assert.Zero(t, strings.Count(rec.Body.String(), "data-product-id"))
	assert.Contains(t, rec.Body.String(), "Produit supprimé avec succès")
}

func TestCreateSupply(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	id := h.api.seed("Riz", 10, 500)

	rec := h.post("/supplies", url.Values{"product_id": {id.String()}, "quantity": {"5"}, "supplier_name": {"Sodefitex"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/supplies", rec.Header().Get("Location"))
	assert.Equal(t, 1, h.api.count(http.MethodPost, "/supplies"))

	rec = h.get("/supplies")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sodefitex")
	assert.Contains(t, rec.Body.String(), "Approvisionnement ajouté avec succès")

	rec = h.post("/supplies", url.Values{"product_id": {id.String()}, "quantity": {"0"}, "supplier_name": {"Sodefitex"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 1, h.api.count(http.MethodPost, "/supplies"))
}

func TestStockOutAboveStockIsRefusedLocally(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	id := h.api.seed("Riz", 5, 500)

	rec := h.get("/outputs?new=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Riz (Stock: 5)")

	rec = h.post("/outputs", url.Values{"product_id": {id.String()}, "quantity": {"6"}, "reason": {"Vente"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Stock insuffisant")
	assert.Zero(t, h.api.count(http.MethodPost, "/stock-outs"))

	rec = h.post("/outputs", url.Values{"product_id": {id.String()}, "quantity": {"5"}, "reason": {"Vente"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, 1, h.api.count(http.MethodPost, "/stock-outs"))

	rec = h.get("/outputs?new=1")
	assert.Contains(t, rec.Body.String(), "Riz (Stock: 0)", "stock levels are refetched after a movement")
}

func TestExport(t *testing.T) {
	h := newHarness(t)
	h.signIn()
	h.api.seed("Riz", 5, 500)

	rec := h.get("/export/products")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "produits_")
	assert.NotEmpty(t, rec.Body.Bytes())

	rec = h.get("/export/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownRouteRendersErrorPage(t *testing.T) {
	h := newHarness(t)
	rec := h.get("/nowhere")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Page introuvable")
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.get("/healthz")

	rec := h.get("/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stockapp_http_requests_total")
}
