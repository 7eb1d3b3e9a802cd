package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/hyperengineering/smartshop/internal/auth"
	"github.com/spf13/cobra"
)

var syncOnce bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Keep the local cache in sync with the document service",
	Long: "Run until interrupted, reconciling the local cache with every snapshot of the remote collection " +
		"while signed in. Logging in or out from another shell is picked up from the session file. " +
		"With --once, fetch the collection, reconcile a single time and exit.",
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncOnce, "once", false,
		"Reconcile one snapshot and exit")
}

func runSync(cmd *cobra.Command, args []string) error {
	c, err := openClient()
	if err != nil {
		return err
	}
	defer c.Close()

	if syncOnce {
		return syncOnceCmd(cmd, c)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	go func() {
		if err := c.state.Watch(ctx); err != nil {
			slog.Error("session watch failed", "component", "cli", "path", c.state.Path(), "error", err)
			cancel()
		}
	}()

	if !c.state.SignedIn() {
		fmt.Fprintln(cmd.ErrOrStderr(), "Not signed in; waiting for login.")
	}
	return c.engine.Run(ctx)
}

func syncOnceCmd(cmd *cobra.Command, c *client) error {
	if !c.state.SignedIn() {
		return fmt.Errorf("sync: %w", auth.ErrNotSignedIn)
	}

	ctx := cmd.Context()
	docs, err := c.remote.List(ctx)
	if err != nil {
		return fmt.Errorf("fetch remote collection: %w", err)
	}

	result, err := c.engine.Reconcile(ctx, docs)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Synced %d documents: %d inserted, %d updated, %d deleted\n",
		len(docs), result.Inserted, result.Updated, result.Deleted)
	return nil
}
