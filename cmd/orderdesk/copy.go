package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/jogardn/orderdesk/internal/circuitbreaker"
	"github.com/jogardn/orderdesk/internal/migration"
)

var (
	copyConfig    = migration.DefaultConfig()
	copyToBackend string
	copyToDSN     string
	copyVerify    bool
)

var copyCmd = &cobra.Command{
	Use:   "copy",
	Short: "Copy every order from the configured backend into another",
	Example: `  orderdesk copy --to-backend sqlite --to-dsn file:orders.db
  STORE_BACKEND=sqlite STORE_DSN=file:orders.db orderdesk copy --to-backend rest --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		breakers := circuitbreaker.NewManager(logger)
		src, err := openBackend(ctx, cfg.Store.Backend, cfg.Store.DSN, breakers)
		if err != nil {
			return fmt.Errorf("open source: %w", err)
		}
		defer src.close()

		dst, err := openBackend(ctx, copyToBackend, copyToDSN, breakers)
		if err != nil {
			return fmt.Errorf("open destination: %w", err)
		}
		defer dst.close()

		result, err := migration.New(copyConfig, logger).Copy(ctx, src.table, dst.table)
		if err != nil {
			return err
		}

		report := map[string]interface{}{"copy": result}
		if copyVerify && !copyConfig.DryRun {
			v, err := migration.New(copyConfig, logger).Verify(ctx, src.table, dst.table)
			if err != nil {
				return err
			}
			report["verification"] = v
		}

		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		if result.Failed > 0 {
			return fmt.Errorf("%d of %d orders failed to copy", result.Failed, result.TotalOrders)
		}
		return nil
	},
}

func init() {
	f := copyCmd.Flags()
	f.StringVar(&copyToBackend, "to-backend", "", "destination backend: sqlite, postgres, mysql or rest")
	f.StringVar(&copyToDSN, "to-dsn", "", "destination DSN for the sql backends")
	f.IntVar(&copyConfig.BatchSize, "batch", copyConfig.BatchSize, "orders read per page")
	f.IntVar(&copyConfig.Concurrency, "concurrency", copyConfig.Concurrency, "parallel inserts")
	f.BoolVar(&copyConfig.DryRun, "dry-run", false, "read the source without writing")
	f.BoolVar(&copyVerify, "verify", false, "compare source and destination after copying")
	_ = copyCmd.MarkFlagRequired("to-backend")
}
