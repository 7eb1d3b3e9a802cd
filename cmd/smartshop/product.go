package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/hyperengineering/smartshop/internal/auth"
	"github.com/hyperengineering/smartshop/internal/store"
	"github.com/hyperengineering/smartshop/internal/types"
	"github.com/hyperengineering/smartshop/internal/validation"
	"github.com/spf13/cobra"
)

var (
	productName     string
	productPrice    string
	productQuantity string
	productImage    string
	listWatch       bool
)

var productCmd = &cobra.Command{
	Use:   "product",
	Short: "Manage products",
	Long:  "Add, list, inspect, update and delete products. Changes are written to the local cache and, when signed in, to the document service.",
}

var productAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a product",
	Args:  cobra.NoArgs,
	RunE:  runProductAdd,
}

var productListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached products",
	Args:  cobra.NoArgs,
	RunE:  runProductList,
}

var productGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one product",
	Args:  cobra.ExactArgs(1),
	RunE:  runProductGet,
}

var productUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a product",
	Long:  "Update a product. Only the fields given as flags change.",
	Args:  cobra.ExactArgs(1),
	RunE:  runProductUpdate,
}

var productDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a product and its image",
	Args:  cobra.ExactArgs(1),
	RunE:  runProductDelete,
}

func init() {
	for _, c := range []*cobra.Command{productAddCmd, productUpdateCmd} {
		c.Flags().StringVar(&productName, "name", "", "Product name")
		c.Flags().StringVar(&productPrice, "price", "", "Unit price")
		c.Flags().StringVar(&productQuantity, "quantity", "", "Quantity in stock")
		c.Flags().StringVar(&productImage, "image", "", "Path of an image to upload")
	}
	productAddCmd.MarkFlagRequired("name")
	productAddCmd.MarkFlagRequired("price")
	productAddCmd.MarkFlagRequired("quantity")

	productListCmd.Flags().BoolVar(&listWatch, "watch", false,
		"Keep running and print the list after every change")

	productCmd.AddCommand(productAddCmd)
	productCmd.AddCommand(productListCmd)
	productCmd.AddCommand(productGetCmd)
	productCmd.AddCommand(productUpdateCmd)
	productCmd.AddCommand(productDeleteCmd)
}

func runProductAdd(cmd *cobra.Command, args []string) error {
	fields, errs := validation.ParseProductInput(productName, productPrice, productQuantity)
	if len(errs) > 0 {
		return invalidInput(errs)
	}

	c, err := openClient()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := cmd.Context()
	if productImage != "" {
		url, err := uploadImage(cmd, c, productImage)
		if err != nil {
			return err
		}
		fields.ImageURL = &url
	}

	p, err := c.engine.Insert(ctx, types.Product{
		Name:     fields.Name,
		Price:    fields.Price,
		Quantity: fields.Quantity,
		ImageURL: fields.ImageURL,
	})
	if err != nil {
		return fmt.Errorf("add product: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), p)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added product %d (%s)\n", p.ID, syncState(*p))
	return nil
}

func runProductList(cmd *cobra.Command, args []string) error {
	c, err := openClient()
	if err != nil {
		return err
	}
	defer c.Close()

	if !listWatch {
		products, err := c.engine.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list products: %w", err)
		}
		return printProducts(cmd.OutOrStdout(), products)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	first := true
	for products := range c.engine.Products(ctx) {
		if !first && !jsonOutput {
			fmt.Fprintln(cmd.OutOrStdout())
		}
		first = false
		if err := printProducts(cmd.OutOrStdout(), products); err != nil {
			return err
		}
	}
	return nil
}

func runProductGet(cmd *cobra.Command, args []string) error {
	id, err := parseProductID(args[0])
	if err != nil {
		return err
	}

	c, err := openClient()
	if err != nil {
		return err
	}
	defer c.Close()

	p, err := getProduct(cmd, c, id)
	if err != nil {
		return err
	}
	return printProduct(cmd.OutOrStdout(), *p)
}

func runProductUpdate(cmd *cobra.Command, args []string) error {
	id, err := parseProductID(args[0])
	if err != nil {
		return err
	}

	c, err := openClient()
	if err != nil {
		return err
	}
	defer c.Close()

	p, err := getProduct(cmd, c, id)
	if err != nil {
		return err
	}

	name, price, quantity := p.Name, formatPrice(p.Price), strconv.Itoa(p.Quantity)
	flags := cmd.Flags()
	if flags.Changed("name") {
		name = productName
	}
	if flags.Changed("price") {
		price = productPrice
	}
	if flags.Changed("quantity") {
		quantity = productQuantity
	}
	fields, errs := validation.ParseProductInput(name, price, quantity)
	if len(errs) > 0 {
		return invalidInput(errs)
	}

	ctx := cmd.Context()
	oldImage := p.ImageURL
	if productImage != "" {
		url, err := uploadImage(cmd, c, productImage)
		if err != nil {
			return err
		}
		p.ImageURL = &url
	}

	p.Name, p.Price, p.Quantity = fields.Name, fields.Price, fields.Quantity
	if err := c.engine.Update(ctx, *p); err != nil {
		return fmt.Errorf("update product: %w", err)
	}

	if productImage != "" && oldImage != nil {
		deleteImage(cmd, c, *oldImage)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), p)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated product %d (%s)\n", p.ID, syncState(*p))
	return nil
}

func runProductDelete(cmd *cobra.Command, args []string) error {
	id, err := parseProductID(args[0])
	if err != nil {
		return err
	}

	c, err := openClient()
	if err != nil {
		return err
	}
	defer c.Close()

	p, err := getProduct(cmd, c, id)
	if err != nil {
		return err
	}

	if err := c.engine.Delete(cmd.Context(), *p); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if p.ImageURL != nil {
		deleteImage(cmd, c, *p.ImageURL)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"id":      p.ID,
			"deleted": true,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted product %d\n", p.ID)
	return nil
}

func parseProductID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid product id %q", s)
	}
	return id, nil
}

func getProduct(cmd *cobra.Command, c *client, id int64) (*types.Product, error) {
	p, err := c.engine.Get(cmd.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("product %d not found", id)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// uploadImage sends a local image to the document service. Uploading
// requires a session.
func uploadImage(cmd *cobra.Command, c *client, path string) (string, error) {
	if !c.state.SignedIn() {
		return "", fmt.Errorf("upload image: %w", auth.ErrNotSignedIn)
	}
	url, err := c.images.Upload(cmd.Context(), path)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return url, nil
}

// deleteImage removes an uploaded image. Failures only warn; the product
// change has already been made.
func deleteImage(cmd *cobra.Command, c *client, url string) {
	if !c.state.SignedIn() {
		slog.Warn("image not deleted while signed out",
			"component", "cli",
			"action", "delete_image",
			"url", url,
		)
		return
	}
	if !c.images.Delete(cmd.Context(), url) {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: image %s was not deleted\n", url)
	}
}

func syncState(p types.Product) string {
	if p.Linked() {
		return "synced"
	}
	return "local only"
}
