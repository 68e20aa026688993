package main

import (
	"context"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jogardn/orderdesk/internal/cache"
	"github.com/jogardn/orderdesk/internal/circuitbreaker"
	"github.com/jogardn/orderdesk/internal/presentation"
	"github.com/jogardn/orderdesk/internal/query"
	"github.com/jogardn/orderdesk/internal/store"
)

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Inspect orders",
}

var listParams = query.DefaultParams()
var listDir string

var ordersListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print one page of orders as a table",
	Example: `  orderdesk orders list
  orderdesk orders list --search ana --status SHIPPED
  orderdesk orders list --sort customer_name --dir asc --page 2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		be, err := openBackend(ctx, cfg.Store.Backend, cfg.Store.DSN, circuitbreaker.NewManager(logger))
		if err != nil {
			return err
		}
		defer be.close()

		p := listParams
		p.SortDirection = store.SortDirection(listDir)
		res, err := query.NewFetcher(be.table, cache.Nop{}, 0, logger).FetchPage(ctx, p)
		if err != nil {
			return fmt.Errorf("list orders: %w", err)
		}
		return renderOrders(cmd.OutOrStdout(), p, res)
	},
}

func init() {
	f := ordersListCmd.Flags()
	f.StringVar(&listParams.SearchTerm, "search", "", "match customer names containing this text")
	f.StringVar(&listParams.StatusFilter, "status", listParams.StatusFilter, "status filter, or ALL")
	f.StringVar(&listParams.SortField, "sort", "", "sort column (default created_at desc)")
	f.StringVar(&listDir, "dir", "", "sort direction: asc or desc")
	f.IntVar(&listParams.Page, "page", 0, "zero-based page")
	f.IntVar(&listParams.PageSize, "page-size", listParams.PageSize, "rows per page")

	ordersCmd.AddCommand(ordersListCmd)
}

func renderOrders(w io.Writer, p query.Params, res store.Result) error {
	table := tablewriter.NewWriter(w)

	headers := make([]any, 0, len(presentation.DataColumns()))
	for _, c := range presentation.DataColumns() {
		headers = append(headers, c.Header)
	}
	table.Header(headers...)

	rows := make([][]string, 0, len(res.Rows))
	for _, o := range res.Rows {
		rows = append(rows, presentation.Cells(o))
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "%s, %s\n", presentation.OrdersFound(res.TotalCount),
		presentation.PageOf(p.Page, query.PageCount(res.TotalCount, p.PageSize)))
	return err
}
