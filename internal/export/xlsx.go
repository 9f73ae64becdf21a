// Package export renders the inventory lists as XLSX workbooks.
package export

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mamadbah2/stockapp/internal/domain/models"
)

// ContentType is the MIME type of the generated workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Exportable resources.
const (
	ResourceProducts  = "products"
	ResourceSupplies  = "supplies"
	ResourceStockOuts = "stock-outs"
)

// ErrUnknownResource is returned for a resource with no workbook layout.
var ErrUnknownResource = errors.New("unknown export resource")

// Filename builds the attachment name, e.g. "produits_20240510_200000.xlsx".
func Filename(resource string, at time.Time) string {
	label := map[string]string{
		ResourceProducts:  "produits",
		ResourceSupplies:  "approvisionnements",
		ResourceStockOuts: "sorties",
	}[resource]
	if label == "" {
		label = resource
	}
	return fmt.Sprintf("%s_%s.xlsx", label, at.Format("20060102_150405"))
}

// Products writes the product list.
func Products(w io.Writer, products []models.Product) error {
	header := []interface{}{"ID", "Désignation", "Stock actuel", "Prix", "Valeur", "Image"}
	rows := make([][]interface{}, 0, len(products))
	for _, p := range products {
		rows = append(rows, []interface{}{
			p.ID.String(),
			p.Name,
			p.CurrentStock,
			p.Price,
			float64(p.CurrentStock) * p.Price,
			p.ImagePath(),
		})
	}
	return writeWorkbook(w, "Produits", header, rows)
}

// Supplies writes the supply journal.
func Supplies(w io.Writer, supplies []models.Supply) error {
	header := []interface{}{"ID", "Produit", "Quantité", "Fournisseur", "Date"}
	rows := make([][]interface{}, 0, len(supplies))
	for _, s := range supplies {
		rows = append(rows, []interface{}{
			s.ID.String(),
			s.DisplayProductName(),
			s.Quantity,
			s.SupplierName,
			s.CreatedAt.DateLabel(),
		})
	}
	return writeWorkbook(w, "Approvisionnements", header, rows)
}

// StockOuts writes the stock-out journal.
func StockOuts(w io.Writer, stockOuts []models.StockOut) error {
	header := []interface{}{"ID", "Produit", "Quantité", "Raison", "Date"}
	rows := make([][]interface{}, 0, len(stockOuts))
	for _, s := range stockOuts {
		rows = append(rows, []interface{}{
			s.ID.String(),
			s.DisplayProductName(),
			s.Quantity,
			s.Reason,
			s.CreatedAt.DateLabel(),
		})
	}
	return writeWorkbook(w, "Sorties", header, rows)
}

func writeWorkbook(w io.Writer, sheet string, header []interface{}, rows [][]interface{}) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return fmt.Errorf("header range: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
