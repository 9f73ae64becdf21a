package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockapp/internal/forms"
	"github.com/mamadbah2/stockapp/internal/service/stock"
	"github.com/mamadbah2/stockapp/internal/session"
	"github.com/mamadbah2/stockapp/internal/web"
)

const (
	suppliesPath = "/supplies"
	outputsPath  = "/outputs"
)

// MovementHandler serves the supply and stock-out pages.
type MovementHandler struct {
	base
	stock *stock.Service
}

// NewMovementHandler constructs the stock movement handler.
func NewMovementHandler(svc *stock.Service, sessions *session.Manager, logger *zap.Logger) *MovementHandler {
	return &MovementHandler{base: newBase(sessions, logger), stock: svc}
}

// ListSupplies renders the supply history. ?new=1 opens the dialog.
func (h *MovementHandler) ListSupplies(c *gin.Context) {
	view := web.SuppliesView{Form: forms.NewSupplyForm(), DialogOpen: c.Query("new") == "1"}
	h.renderSupplies(c, http.StatusOK, view)
}

// CreateSupply records a supply and returns to the history.
func (h *MovementHandler) CreateSupply(c *gin.Context) {
	view := web.SuppliesView{DialogOpen: true}

	var form forms.SupplyForm
	err := forms.Bind(c, &form)
	view.Form = form
	if err != nil {
		view.Errors = h.bindFailure(err)
		h.renderSupplies(c, http.StatusUnprocessableEntity, view)
		return
	}
	in, err := form.Input()
	if err != nil {
		view.Errors = h.bindFailure(err)
		h.renderSupplies(c, http.StatusUnprocessableEntity, view)
		return
	}

	if _, err := h.stock.CreateSupply(c.Request.Context(), in); err != nil {
		if h.unauthorized(c, err) {
			return
		}
		h.logger.Error("failed to create supply", zap.Int("product_id", in.ProductID), zap.Error(err))
		if fe := apiFieldErrors(err); fe != nil {
			view.Errors = fe
			h.renderSupplies(c, http.StatusUnprocessableEntity, view)
			return
		}
		h.failure(c, msgGenericFail)
		h.renderSupplies(c, http.StatusBadGateway, view)
		return
	}
	h.success(c, "Approvisionnement ajouté avec succès")
	h.redirect(c, suppliesPath)
}

// ListOutputs renders the stock-out history. ?new=1 opens the dialog.
func (h *MovementHandler) ListOutputs(c *gin.Context) {
	view := web.OutputsView{Form: forms.NewStockOutForm(), DialogOpen: c.Query("new") == "1"}
	h.renderOutputs(c, http.StatusOK, view)
}

// CreateOutput records a stock-out. A quantity above the cached stock level
// is refused without calling the API.
func (h *MovementHandler) CreateOutput(c *gin.Context) {
	view := web.OutputsView{DialogOpen: true}

	var form forms.StockOutForm
	err := forms.Bind(c, &form)
	view.Form = form
	if err != nil {
		view.Errors = h.bindFailure(err)
		h.renderOutputs(c, http.StatusUnprocessableEntity, view)
		return
	}
	in, err := form.Input()
	if err != nil {
		view.Errors = h.bindFailure(err)
		h.renderOutputs(c, http.StatusUnprocessableEntity, view)
		return
	}

	_, err = h.stock.CreateStockOut(c.Request.Context(), in)
	switch {
	case err == nil:
		h.success(c, "Sortie de stock enregistrée avec succès")
		h.redirect(c, outputsPath)
	case errors.Is(err, stock.ErrInsufficientStock):
		h.logger.Info("stock-out refused", zap.Error(err))
		h.failure(c, "Stock insuffisant")
		h.renderOutputs(c, http.StatusUnprocessableEntity, view)
	case h.unauthorized(c, err):
	default:
		h.logger.Error("failed to create stock-out", zap.Int("product_id", in.ProductID), zap.Error(err))
		if fe := apiFieldErrors(err); fe != nil {
			view.Errors = fe
			h.renderOutputs(c, http.StatusUnprocessableEntity, view)
			return
		}
		h.failure(c, msgGenericFail)
		h.renderOutputs(c, http.StatusBadGateway, view)
	}
}

func (h *MovementHandler) renderSupplies(c *gin.Context, status int, view web.SuppliesView) {
	supplies, products, err := h.stock.SuppliesPage(c.Request.Context())
	if err != nil {
		if h.unauthorized(c, err) {
			return
		}
		h.logger.Error("failed to load supplies", zap.Error(err))
		h.failure(c, msgGenericFail)
		if status == http.StatusOK {
			status = http.StatusBadGateway
		}
	}
	view.Supplies, view.Products = supplies, products
	h.render(c, status, web.PageSupplies, "Approvisionnements", view)
}

func (h *MovementHandler) renderOutputs(c *gin.Context, status int, view web.OutputsView) {
	stockOuts, products, err := h.stock.StockOutsPage(c.Request.Context())
	if err != nil {
		if h.unauthorized(c, err) {
			return
		}
		h.logger.Error("failed to load stock-outs", zap.Error(err))
		h.failure(c, msgGenericFail)
		if status == http.StatusOK {
			status = http.StatusBadGateway
		}
	}
	view.StockOuts, view.Products = stockOuts, products
	h.render(c, status, web.PageOutputs, "Sorties", view)
}
