package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockapp/internal/domain/models"
	"github.com/mamadbah2/stockapp/internal/forms"
	"github.com/mamadbah2/stockapp/internal/service/stock"
	"github.com/mamadbah2/stockapp/internal/session"
	"github.com/mamadbah2/stockapp/internal/web"
)

const productsPath = "/products"

// ProductHandler serves the product list and its create/edit/delete actions.
type ProductHandler struct {
	base
	stock *stock.Service
}

// NewProductHandler constructs the products page handler.
func NewProductHandler(svc *stock.Service, sessions *session.Manager, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{base: newBase(sessions, logger), stock: svc}
}

// List renders the products matching ?search. ?refresh=1 forces a refetch,
// ?new=1 opens the create dialog and ?edit=<id> the edit dialog.
func (h *ProductHandler) List(c *gin.Context) {
	view := web.ProductsView{Search: strings.TrimSpace(c.Query("search"))}
	refresh := c.Query("refresh") == "1"

	if c.Query("new") == "1" {
		view.DialogOpen = true
	}
	if id := c.Query("edit"); id != "" {
		p, err := h.stock.Product(c.Request.Context(), models.ID(id))
		switch {
		case err == nil:
			view.DialogOpen = true
			view.EditID = p.ID
			view.Form = forms.ProductFormFrom(p)
		case h.unauthorized(c, err):
			return
		case errors.Is(err, stock.ErrProductNotFound):
			h.failure(c, "Produit introuvable")
		default:
			h.logger.Error("failed to look up product", zap.String("id", id), zap.Error(err))
		}
	}
	h.renderList(c, http.StatusOK, view, refresh)
}

// Create adds a product from the multipart dialog.
func (h *ProductHandler) Create(c *gin.Context) {
	h.save(c, "")
}

// Update edits the product named by :id.
func (h *ProductHandler) Update(c *gin.Context) {
	h.save(c, models.ID(c.Param("id")))
}

// Delete removes the product named by :id.
func (h *ProductHandler) Delete(c *gin.Context) {
	id := models.ID(c.Param("id"))
	if err := h.stock.DeleteProduct(c.Request.Context(), id); err != nil {
		if h.unauthorized(c, err) {
			return
		}
		h.logger.Error("failed to delete product", zap.String("id", id.String()), zap.Error(err))
		h.failure(c, msgGenericFail)
		h.redirect(c, productsPath)
		return
	}
	h.success(c, "Produit supprimé avec succès")
	h.redirect(c, productsPath)
}

func (h *ProductHandler) save(c *gin.Context, id models.ID) {
	view := web.ProductsView{DialogOpen: true, EditID: id}

	var form forms.ProductForm
	if err := forms.Bind(c, &form); err != nil {
		view.Form, view.Errors = form, h.bindFailure(err)
		h.renderList(c, http.StatusUnprocessableEntity, view, false)
		return
	}
	view.Form = form

	image, closeImage, err := formImage(c)
	if err != nil {
		h.logger.Warn("unreadable product image", zap.Error(err))
		view.Errors = forms.FieldErrors{forms.FormKey: "Image illisible"}
		h.renderList(c, http.StatusUnprocessableEntity, view, false)
		return
	}
	defer closeImage()

	if _, err := h.stock.SaveProduct(c.Request.Context(), id, form.Input(image)); err != nil {
		if h.unauthorized(c, err) {
			return
		}
		h.logger.Error("failed to save product", zap.String("id", id.String()), zap.Error(err))
		if fe := apiFieldErrors(err); fe != nil {
			view.Errors = fe
			h.renderList(c, http.StatusUnprocessableEntity, view, false)
			return
		}
		h.failure(c, msgGenericFail)
		h.renderList(c, http.StatusBadGateway, view, false)
		return
	}

	if id == "" {
		h.success(c, "Produit ajouté avec succès")
	} else {
		h.success(c, "Produit modifié avec succès")
	}
	h.redirect(c, productsPath)
}

// renderList fills view with the product list and renders the page. A
// failed fetch renders an empty table with an error notification.
func (h *ProductHandler) renderList(c *gin.Context, status int, view web.ProductsView, refresh bool) {
	ctx := c.Request.Context()
	products, err := h.stock.Products(ctx, view.Search, refresh)
	if err != nil {
		if h.unauthorized(c, err) {
			return
		}
		h.logger.Error("failed to list products", zap.String("search", view.Search), zap.Error(err))
		h.failure(c, msgGenericFail)
		if status == http.StatusOK {
			status = http.StatusBadGateway
		}
	}
	view.Products = products
	view.Loading = h.stock.ProductsLoading(ctx, view.Search)
	h.render(c, status, web.PageProducts, "Produits", view)
}

// formImage returns the optional uploaded image. The returned func closes it.
func formImage(c *gin.Context) (*models.ProductImage, func(), error) {
	fh, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, nil, err
	}
	return &models.ProductImage{Filename: fh.Filename, Content: f}, func() { _ = f.Close() }, nil
}
