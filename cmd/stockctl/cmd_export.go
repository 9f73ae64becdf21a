package main

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mamadbah2/stockapp/internal/export"
)

func (c *cli) exportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:       "export <products|supplies|stock-outs>",
		Short:     "Write a list to an XLSX workbook",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{export.ResourceProducts, export.ResourceSupplies, export.ResourceStockOuts},
		RunE: func(cmd *cobra.Command, args []string) error {
			resource := args[0]
			ctx, err := c.authenticated(cmd)
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			switch resource {
			case export.ResourceProducts:
				products, err := c.stock.Products(ctx, "", false)
				if err != nil {
					return c.apiError(ctx, err)
				}
				if err := export.Products(&buf, products); err != nil {
					return err
				}
			case export.ResourceSupplies:
				supplies, err := c.stock.Supplies(ctx)
				if err != nil {
					return c.apiError(ctx, err)
				}
				if err := export.Supplies(&buf, supplies); err != nil {
					return err
				}
			case export.ResourceStockOuts:
				stockOuts, err := c.stock.StockOuts(ctx)
				if err != nil {
					return c.apiError(ctx, err)
				}
				if err := export.StockOuts(&buf, stockOuts); err != nil {
					return err
				}
			default:
				return fmt.Errorf("%w: %s", export.ErrUnknownResource, resource)
			}

			path := output
			if path == "" {
				path = export.Filename(resource, time.Now())
			}
			if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Fprintf(c.out, "Export écrit dans %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (default: generated name in the current directory)")
	return cmd
}
