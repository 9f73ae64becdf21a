package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockapp/internal/export"
	"github.com/mamadbah2/stockapp/internal/service/stock"
	"github.com/mamadbah2/stockapp/internal/session"
	"github.com/mamadbah2/stockapp/internal/web"
)

// ExportHandler streams the cached lists as XLSX attachments.
type ExportHandler struct {
	base
	stock *stock.Service
	now   func() time.Time
}

// NewExportHandler constructs the export handler.
func NewExportHandler(svc *stock.Service, sessions *session.Manager, logger *zap.Logger) *ExportHandler {
	return &ExportHandler{base: newBase(sessions, logger), stock: svc, now: time.Now}
}

// Download writes the workbook for :resource.
func (h *ExportHandler) Download(c *gin.Context) {
	resource := c.Param("resource")
	ctx := c.Request.Context()

	var buf bytes.Buffer
	err := h.write(ctx, &buf, resource)
	if errors.Is(err, export.ErrUnknownResource) {
		h.render(c, http.StatusNotFound, web.PageError, "Page introuvable", web.ErrorView{Message: "Cet export n'existe pas."})
		return
	}
	if err != nil {
		if h.unauthorized(c, err) {
			return
		}
		h.logger.Error("export failed", zap.String("resource", resource), zap.Error(err))
		h.failure(c, msgGenericFail)
		h.redirect(c, backPath(resource))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename(resource, h.now())))
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}

func (h *ExportHandler) write(ctx context.Context, buf *bytes.Buffer, resource string) error {
	switch resource {
	case export.ResourceProducts:
		products, err := h.stock.Products(ctx, "", false)
		if err != nil {
			return err
		}
		return export.Products(buf, products)
	case export.ResourceSupplies:
		supplies, err := h.stock.Supplies(ctx)
		if err != nil {
			return err
		}
		return export.Supplies(buf, supplies)
	case export.ResourceStockOuts:
		stockOuts, err := h.stock.StockOuts(ctx)
		if err != nil {
			return err
		}
		return export.StockOuts(buf, stockOuts)
	}
	return fmt.Errorf("%w: %s", export.ErrUnknownResource, resource)
}

func backPath(resource string) string {
	switch resource {
	case export.ResourceSupplies:
		return suppliesPath
	case export.ResourceStockOuts:
		return outputsPath
	}
	return productsPath
}
