package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/taskflow-dev/taskflowmcp/internal/config"
	"github.com/taskflow-dev/taskflowmcp/internal/logging"
	"github.com/taskflow-dev/taskflowmcp/internal/store"
)

// migrateCmd opens the store, which applies any pending schema
// migrations, then exits. serve does the same implicitly; this exists
// for operators who want to migrate ahead of a deploy.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending store schema migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger := logging.MustNew(cfg.Log.Level)
		defer logger.Sync() //nolint:errcheck

		if dir := filepath.Dir(cfg.Store.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("creating store directory: %w", err)
			}
		}
		db, err := store.Open(cfg.Store.Path, logger)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer db.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "store at %s is up to date\n", cfg.Store.Path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
