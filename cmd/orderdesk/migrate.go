package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jogardn/orderdesk/internal/circuitbreaker"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the orders schema",
	Long: `Migrate creates the orders table and its indexes for the sqlite,
postgres and mysql backends. Existing tables are left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		be, err := openBackend(ctx, cfg.Store.Backend, cfg.Store.DSN, circuitbreaker.NewManager(logger))
		if err != nil {
			return err
		}
		defer be.close()

		if be.schema == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "The %s backend has no schema to create\n", be.name)
			return nil
		}
		if err := be.schema(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Schema ready on the %s backend\n", be.name)
		return nil
	},
}
