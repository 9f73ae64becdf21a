package reporting

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/stockapp/internal/domain/models"
	"github.com/mamadbah2/stockapp/internal/repository/sheets"
)

// ProductLister is the part of the inventory client the reports need.
type ProductLister interface {
	ListProducts(ctx context.Context, search string) ([]models.Product, error)
}

// Service builds stock snapshots and pushes them to the spreadsheet.
type Service struct {
	store     sheets.SnapshotStore
	products  ProductLister
	threshold int
	logger    *zap.Logger
}

// NewService wires a new reporting service instance. Products at or below
// lowStockThreshold are flagged.
func NewService(store sheets.SnapshotStore, products ProductLister, lowStockThreshold int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, products: products, threshold: lowStockThreshold, logger: logger}
}

// BuildSnapshot turns a product list into report rows sorted by product name.
func (s *Service) BuildSnapshot(products []models.Product, at time.Time) []models.StockSnapshotRow {
	rows := make([]models.StockSnapshotRow, 0, len(products))
	for _, p := range products {
		rows = append(rows, models.StockSnapshotRow{
			Date:         at,
			ProductID:    p.ID,
			ProductName:  p.Name,
			CurrentStock: p.CurrentStock,
			Price:        p.Price,
			Value:        math.Round(float64(p.CurrentStock)*p.Price*100) / 100,
			LowStock:     p.CurrentStock <= s.threshold,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return strings.ToLower(rows[i].ProductName) < strings.ToLower(rows[j].ProductName)
	})
	return rows
}

// ExportSnapshot appends today's stock levels to the sheet. A day already
// present in the sheet is not written twice. It returns the rows written.
func (s *Service) ExportSnapshot(ctx context.Context, at time.Time) ([]models.StockSnapshotRow, error) {
	exported, err := s.store.HasSnapshot(ctx, at)
	if err != nil {
		return nil, err
	}
	if exported {
		s.logger.Info("stock snapshot already exported", zap.String("date", at.Format(sheets.DateLayout)))
		return nil, nil
	}

	products, err := s.products.ListProducts(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	rows := s.BuildSnapshot(products, at)
	if len(rows) == 0 {
		return nil, nil
	}
	if err := s.store.AppendSnapshot(ctx, rows); err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}
	s.logger.Info("stock snapshot exported", zap.String("date", at.Format(sheets.DateLayout)), zap.Int("products", len(rows)))
	return rows, nil
}

// LowStockSummary produces the one-line French summary logged after an export.
func (s *Service) LowStockSummary(rows []models.StockSnapshotRow) string {
	var (
		low   []string
		total float64
	)
	for _, row := range rows {
		total += row.Value
		if row.LowStock {
			low = append(low, fmt.Sprintf("%s (%d)", row.ProductName, row.CurrentStock))
		}
	}
	if len(rows) == 0 {
		return "Aucun produit en stock."
	}
	summary := fmt.Sprintf("%d produits, valeur totale %.2f.", len(rows), total)
	if len(low) == 0 {
		return summary + " Aucun produit en stock faible."
	}
	return fmt.Sprintf("%s Stock faible: %s.", summary, strings.Join(low, ", "))
}
