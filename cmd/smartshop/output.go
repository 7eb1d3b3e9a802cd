package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/hyperengineering/smartshop/internal/types"
	"github.com/hyperengineering/smartshop/internal/validation"
)

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// formatPrice renders a price in its shortest form.
func formatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', -1, 64)
}

// printProducts writes products as JSON or as an aligned table.
func printProducts(w io.Writer, products []types.Product) error {
	if jsonOutput {
		return printJSON(w, map[string]any{
			"products": products,
			"total":    len(products),
		})
	}

	if len(products) == 0 {
		fmt.Fprintln(w, "No products found.")
		return nil
	}

	tw := newTabWriter(w)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE\tQUANTITY\tSYNCED\tIMAGE")
	for _, p := range products {
		image := "-"
		if p.ImageURL != nil {
			image = *p.ImageURL
		}
		synced := "no"
		if p.Linked() {
			synced = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
			p.ID, p.Name, formatPrice(p.Price), p.Quantity, synced, image)
	}
	return tw.Flush()
}

// printProduct writes one product as JSON or as key/value lines.
func printProduct(w io.Writer, p types.Product) error {
	if jsonOutput {
		return printJSON(w, p)
	}

	tw := newTabWriter(w)
	fmt.Fprintf(tw, "ID:\t%d\n", p.ID)
	fmt.Fprintf(tw, "Name:\t%s\n", p.Name)
	fmt.Fprintf(tw, "Price:\t%s\n", formatPrice(p.Price))
	fmt.Fprintf(tw, "Quantity:\t%d\n", p.Quantity)
	if p.RemoteID != nil {
		fmt.Fprintf(tw, "Remote ID:\t%s\n", *p.RemoteID)
	}
	if p.ImageURL != nil {
		fmt.Fprintf(tw, "Image:\t%s\n", *p.ImageURL)
	}
	return tw.Flush()
}

// invalidInput turns field errors into a single command error.
func invalidInput(errs []validation.ValidationError) error {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("invalid input: %s", strings.Join(msgs, "; "))
}
