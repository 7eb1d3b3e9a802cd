// Package export writes the product list as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hyperengineering/smartshop/internal/types"
)

// Header is the first CSV record.
var Header = []string{"ID", "Name", "Price", "Quantity"}

// WriteCSV writes the header and one row per product, in the given order.
// Prices use the shortest decimal form, so 2.5 is written as "2.5".
func WriteCSV(w io.Writer, products []types.Product) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, p := range products {
		record := []string{
			strconv.FormatInt(p.ID, 10),
			p.Name,
			strconv.FormatFloat(p.Price, 'f', -1, 64),
			strconv.Itoa(p.Quantity),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write product %d: %w", p.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportFile writes the CSV to path, replacing any existing file. It
// reports failure as false; the cause is logged.
func ExportFile(path string, products []types.Product) bool {
	if err := exportFile(path, products); err != nil {
		slog.Error("export failed",
			"component", "export",
			"action", "export_file",
			"path", path,
			"error", err,
		)
		return false
	}
	return true
}

func exportFile(path string, products []types.Product) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create export directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}

	if err := WriteCSV(f, products); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
