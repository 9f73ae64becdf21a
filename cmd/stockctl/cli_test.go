package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/stockapp/internal/domain/models"
)

type fakeAPI struct {
	mu        sync.Mutex
	stockOuts int
	products  []models.Product
}

func (a *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if r.URL.Path == "/login" {
		var creds models.Credentials
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(models.AuthResponse{Token: "cli-token", User: &models.User{Name: "Awa"}})
		return
	}
	if r.Header.Get("Authorization") != "Bearer cli-token" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/products":
		_ = json.NewEncoder(w).Encode(a.products)
	case r.Method == http.MethodPost && r.URL.Path == "/stock-outs":
		a.stockOuts++
		_ = json.NewEncoder(w).Encode(models.StockOut{ID: "1"})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type testCLI struct {
	t           *testing.T
	api         *fakeAPI
	url         string
	sessionFile string
}

func newTestCLI(t *testing.T) *testCLI {
	api := &fakeAPI{products: []models.Product{{ID: "7", Name: "Riz", CurrentStock: 4, Price: 500}}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return &testCLI{t: t, api: api, url: srv.URL, sessionFile: filepath.Join(t.TempDir(), "session.json")}
}

func (c *testCLI) run(args ...string) (string, error) {
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--api", c.url, "--session-file", c.sessionFile}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestCommandsRequireLogin(t *testing.T) {
	c := newTestCLI(t)
	_, err := c.run("products")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestLoginPersistsTokenAcrossInvocations(t *testing.T) {
	c := newTestCLI(t)

	_, err := c.run("login", "--email", "awa@example.com", "--password", "wrong")
	require.Error(t, err)

	out, err := c.run("login", "--email", "awa@example.com", "--password", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "Connecté en tant que Awa")

	out, err = c.run("products")
	require.NoError(t, err)
	assert.Contains(t, out, "Riz")
	assert.Contains(t, out, "500.00")

	_, err = c.run("logout")
	require.NoError(t, err)
	_, err = c.run("products")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestStockOutAboveStockIsRefused(t *testing.T) {
	c := newTestCLI(t)
	_, err := c.run("login", "--email", "awa@example.com", "--password", "secret")
	require.NoError(t, err)

	_, err = c.run("outputs", "add", "--product", "7", "--quantity", "5", "--reason", "Vente")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stock insuffisant")
	assert.Zero(t, c.api.stockOuts)

	out, err := c.run("outputs", "add", "--product", "7", "--quantity", "4", "--reason", "Vente")
	require.NoError(t, err)
	assert.Contains(t, out, "Sortie de stock enregistrée")
	assert.Equal(t, 1, c.api.stockOuts)
}

func TestMovementFlagsAreValidatedLocally(t *testing.T) {
	c := newTestCLI(t)
	_, err := c.run("supplies", "add", "--quantity", "2", "--supplier", "Sodefitex")
	assert.Error(t, err)
	_, err = c.run("outputs", "add", "--product", "7", "--quantity", "0", "--reason", "Vente")
	assert.Error(t, err)
}

func TestExportWritesWorkbook(t *testing.T) {
	c := newTestCLI(t)
	_, err := c.run("login", "--email", "awa@example.com", "--password", "secret")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "produits.xlsx")
	out, err := c.run("export", "products", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	_, err = c.run("export", "nope")
	assert.Error(t, err)
}

func TestRejectedTokenIsForgotten(t *testing.T) {
	c := newTestCLI(t)
	_, err := c.run("login", "--email", "awa@example.com", "--password", "secret")
	require.NoError(t, err)

	c.api.mu.Lock()
	c.api.products = nil
	c.api.mu.Unlock()

	// Corrupt the stored token so the API rejects it.
	raw, err := os.ReadFile(c.sessionFile)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(c.sessionFile, bytes.ReplaceAll(raw, []byte("cli-token"), []byte("stale")), 0o600))

	_, err = c.run("stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session expirée")

	_, err = c.run("products")
	assert.ErrorIs(t, err, errNotLoggedIn)
}
