package main

import (
	"errors"
	"fmt"

	"github.com/hyperengineering/smartshop/internal/export"
	"github.com/hyperengineering/smartshop/internal/stats"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export [path]",
	Short: "Export products to CSV",
	Long:  "Write every cached product to a CSV file (default products.csv).",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExport,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show inventory totals",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func runExport(cmd *cobra.Command, args []string) error {
	path := "products.csv"
	if len(args) == 1 {
		path = args[0]
	}

	c, err := openClient()
	if err != nil {
		return err
	}
	defer c.Close()

	products, err := c.engine.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}

	if !export.ExportFile(path, products) {
		return errors.New("export failed")
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"path":     path,
			"products": len(products),
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d products to %s\n", len(products), path)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	c, err := openClient()
	if err != nil {
		return err
	}
	defer c.Close()

	products, err := c.engine.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}

	summary := stats.Compute(products)
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), summary)
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintf(w, "Total products:\t%d\n", summary.TotalProducts)
	fmt.Fprintf(w, "Total stock value:\t%s\n", formatPrice(summary.TotalStockValue))
	return w.Flush()
}
