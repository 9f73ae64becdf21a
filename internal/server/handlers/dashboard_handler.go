package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockapp/internal/domain/models"
	"github.com/mamadbah2/stockapp/internal/service/stock"
	"github.com/mamadbah2/stockapp/internal/session"
	"github.com/mamadbah2/stockapp/internal/web"
)

// DashboardHandler serves the statistics page.
type DashboardHandler struct {
	base
	stock *stock.Service
}

// NewDashboardHandler constructs the dashboard handler.
func NewDashboardHandler(svc *stock.Service, sessions *session.Manager, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{base: newBase(sessions, logger), stock: svc}
}

// Show renders the totals, the stock evolution and the stock distribution.
func (h *DashboardHandler) Show(c *gin.Context) {
	stats, err := h.stock.Dashboard(c.Request.Context())
	if err != nil {
		if h.unauthorized(c, err) {
			return
		}
		h.logger.Error("failed to load dashboard", zap.Error(err))
		h.failure(c, msgGenericFail)
		h.render(c, http.StatusBadGateway, web.PageDashboard, "Tableau de bord", web.DashboardView{Stats: &models.DashboardStats{}})
		return
	}
	h.render(c, http.StatusOK, web.PageDashboard, "Tableau de bord", web.DashboardView{Stats: stats})
}
