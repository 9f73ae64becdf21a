package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/mamadbah2/stockapp/internal/domain/models"
	"github.com/mamadbah2/stockapp/internal/forms"
	"github.com/mamadbah2/stockapp/internal/service/stock"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func renderTable(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.String()
}

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard totals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, err := c.authenticated(cmd)
			if err != nil {
				return err
			}
			stats, err := c.stock.Dashboard(ctx)
			if err != nil {
				return c.apiError(ctx, err)
			}
			fmt.Fprintln(c.out, renderTable(
				[]string{"Total Produits", "Approvisionnements", "Sorties"},
				[][]string{{strconv.Itoa(stats.TotalProducts), strconv.Itoa(stats.TotalSupplies), strconv.Itoa(stats.TotalStockOuts)}},
			))
			return nil
		},
	}
}

func (c *cli) productsCmd() *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "products",
		Short: "List products",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, err := c.authenticated(cmd)
			if err != nil {
				return err
			}
			products, err := c.stock.Products(ctx, strings.TrimSpace(search), false)
			if err != nil {
				return c.apiError(ctx, err)
			}
			rows := make([][]string, 0, len(products))
			for _, p := range products {
				rows = append(rows, []string{p.ID.String(), p.Name, strconv.Itoa(p.CurrentStock), strconv.FormatFloat(p.Price, 'f', 2, 64)})
			}
			fmt.Fprintln(c.out, renderTable([]string{"ID", "Désignation", "Stock actuel", "Prix"}, rows))
			return nil
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "Filter by name")
	return cmd
}

func (c *cli) suppliesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "supplies",
		Short: "List supplies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, err := c.authenticated(cmd)
			if err != nil {
				return err
			}
			supplies, err := c.stock.Supplies(ctx)
			if err != nil {
				return c.apiError(ctx, err)
			}
			rows := make([][]string, 0, len(supplies))
			for _, s := range supplies {
				rows = append(rows, []string{s.CreatedAt.DateLabel(), s.DisplayProductName(), "+" + strconv.Itoa(s.Quantity), s.SupplierName})
			}
			fmt.Fprintln(c.out, renderTable([]string{"Date", "Produit", "Quantité", "Fournisseur"}, rows))
			return nil
		},
	}

	var (
		productID int
		in        models.SupplyInput
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Record a supply",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in.ProductID = productID
			in.SupplierName = strings.TrimSpace(in.SupplierName)
			if err := checkMovement(in.ProductID, in.Quantity); err != nil {
				return err
			}
			if len(in.SupplierName) < 2 {
				return errors.New("le nom du fournisseur est requis")
			}
			ctx, err := c.authenticated(cmd)
			if err != nil {
				return err
			}
			if _, err := c.stock.CreateSupply(ctx, in); err != nil {
				return c.apiError(ctx, err)
			}
			fmt.Fprintln(c.out, "Approvisionnement ajouté avec succès")
			return nil
		},
	}
	add.Flags().IntVar(&productID, "product", 0, "Product ID")
	add.Flags().IntVarP(&in.Quantity, "quantity", "q", 1, "Quantity received")
	add.Flags().StringVar(&in.SupplierName, "supplier", "", "Supplier name")
	cmd.AddCommand(add)
	return cmd
}

func (c *cli) outputsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outputs",
		Short: "List stock-outs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, err := c.authenticated(cmd)
			if err != nil {
				return err
			}
			stockOuts, err := c.stock.StockOuts(ctx)
			if err != nil {
				return c.apiError(ctx, err)
			}
			rows := make([][]string, 0, len(stockOuts))
			for _, s := range stockOuts {
				rows = append(rows, []string{s.CreatedAt.DateLabel(), s.DisplayProductName(), "-" + strconv.Itoa(s.Quantity), s.Reason})
			}
			fmt.Fprintln(c.out, renderTable([]string{"Date", "Produit", "Quantité", "Raison"}, rows))
			return nil
		},
	}

	var (
		productID int
		in        models.StockOutInput
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Record a stock-out",
		Long:  `Record a stock-out. Quantities above the current stock level are refused before the API is called.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in.ProductID = productID
			in.Reason = strings.TrimSpace(in.Reason)
			if err := checkMovement(in.ProductID, in.Quantity); err != nil {
				return err
			}
			if len(in.Reason) < 2 {
				return errors.New("la raison est requise")
			}
			ctx, err := c.authenticated(cmd)
			if err != nil {
				return err
			}
			if _, err := c.stock.CreateStockOut(ctx, in); err != nil {
				var short *stock.InsufficientStockError
				if errors.As(err, &short) {
					return fmt.Errorf("stock insuffisant: %s (disponible %d, demandé %d)", short.Product, short.Available, short.Requested)
				}
				return c.apiError(ctx, err)
			}
			fmt.Fprintln(c.out, "Sortie de stock enregistrée avec succès")
			return nil
		},
	}
	add.Flags().IntVar(&productID, "product", 0, "Product ID")
	add.Flags().IntVarP(&in.Quantity, "quantity", "q", 1, "Quantity removed")
	add.Flags().StringVar(&in.Reason, "reason", "", "Reason for the removal")
	cmd.AddCommand(add)
	return cmd
}

func checkMovement(productID, quantity int) error {
	if productID <= 0 {
		return errors.New("veuillez sélectionner un produit (--product)")
	}
	if quantity < 1 || quantity > forms.MaxQuantity {
		return fmt.Errorf("la quantité doit être comprise entre 1 et %d", forms.MaxQuantity)
	}
	return nil
}
