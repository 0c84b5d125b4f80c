package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/safar/warehouse-ops/internal/app"
	"github.com/safar/warehouse-ops/internal/config"
	"github.com/safar/warehouse-ops/internal/importer"
	"github.com/safar/warehouse-ops/internal/metrics"
	"github.com/safar/warehouse-ops/internal/picking"
	"github.com/safar/warehouse-ops/internal/report"
	"github.com/safar/warehouse-ops/internal/workflow"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type cli struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	// open is replaced in tests to run against an in-memory app.
	open func(cmd *cobra.Command) (*app.App, error)
	app  *app.App
}

func newRootCmd(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) *cobra.Command {
	c := &cli{cfg: cfg, logger: logger, metrics: m}
	c.open = func(cmd *cobra.Command) (*app.App, error) {
		return app.Open(cmd.Context(), c.cfg, c.logger, c.metrics)
	}
	return c.rootCmd()
}

func (c *cli) rootCmd() *cobra.Command {
	var backend string

	root := &cobra.Command{
		Use:          "wmsctl",
		Short:        "Warehouse order and inventory operations",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if backend != "" {
				c.cfg.Storage.Backend = strings.ToLower(backend)
			}
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			c.app = a
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.app == nil {
				return nil
			}
			return c.app.Close()
		},
	}
	root.PersistentFlags().StringVar(&backend, "backend", "", "storage backend (memory, postgres, redis)")

	root.AddCommand(
		c.importCmd(),
		c.exportCmd(),
		c.statsCmd(),
		c.lowStockCmd(),
		c.requirementsCmd(),
		c.restockCmd(),
		c.workflowCmd(),
	)
	return root
}

func (c *cli) importCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import orders from a CSV or Excel file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			rows, err := importer.ParseFile(args[0], f)
			if err != nil {
				return err
			}
			res, err := c.app.Importer.Import(cmd.Context(), rows, user)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "imported %d orders, created %d products\n", len(res.Imported), len(res.CreatedProducts))
			for _, w := range res.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "System", "user recorded on stock movements")
	return cmd
}

func (c *cli) exportCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export KIND FILE",
		Short: "Export orders, products, movements, audit or sag to a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Create(args[1])
			if err != nil {
				return err
			}
			if err := c.export(f, args[0], format); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "csv", "csv or xlsx")
	return cmd
}

func (c *cli) export(w io.Writer, kind, format string) error {
	if strings.EqualFold(kind, "sag") {
		return report.WriteSAGJSON(w, c.app.Orders.Orders())
	}

	table, err := report.Build(report.Kind(kind), c.app.Dataset())
	if err != nil {
		return err
	}
	switch format {
	case "csv":
		return report.WriteCSV(w, table)
	case "xlsx":
		return report.WriteXLSX(w, table)
	}
	return fmt.Errorf("unknown format %q", format)
}

func (c *cli) statsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show order counts and the dashboard summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			stats := c.app.Orders.GetOrderStats()
			sum := c.app.Summary()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"stats": stats, "summary": sum})
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "total\t%d\n", stats.Total)
			fmt.Fprintf(tw, "pending\t%d\n", stats.Pending)
			fmt.Fprintf(tw, "in picking\t%d\n", stats.InPicking)
			fmt.Fprintf(tw, "packed\t%d\n", stats.Packed)
			fmt.Fprintf(tw, "dispatched\t%d\n", stats.Dispatched)
			fmt.Fprintf(tw, "delivered\t%d\n", stats.Delivered)
			fmt.Fprintf(tw, "returned\t%d\n", stats.Returned)
			fmt.Fprintf(tw, "cancelled\t%d\n", stats.Cancelled)
			fmt.Fprintf(tw, "error\t%d\n", stats.Errored)
			fmt.Fprintf(tw, "completion rate\t%.1f%%\n", sum.CompletionRate*100)
			fmt.Fprintf(tw, "inventory value\t%s\n", sum.InventoryValue.StringFixed(2))
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func (c *cli) lowStockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "low-stock",
		Short: "List products at or below their minimum stock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SKU\tNAME\tSTOCK\tMIN")
			for _, p := range c.app.Inventory.GetLowStockProducts() {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", p.SKU, p.Name, p.Stock, p.MinStock)
			}
			return tw.Flush()
		},
	}
}

func (c *cli) requirementsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requirements",
		Short: "Print the purchase order for open demand that stock cannot cover",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs := c.app.Reconciler.StockRequirements()
			if len(reqs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "stock covers every open order")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), picking.PurchaseOrder(reqs))
			return nil
		},
	}
}

func (c *cli) restockCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "restock SKU QUANTITY",
		Short: "Add units to a product by SKU",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("quantity %q: %w", args[1], err)
			}
			change, err := c.app.Reconciler.QuickRestock(cmd.Context(), args[0], qty, user)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d -> %d\n", args[0], change.Before, change.After)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "System", "user recorded on the movement")
	return cmd
}

func (c *cli) workflowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Order submission workflow",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Submit every pending order to the order system",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			sum, err := c.app.Workflow.Run(cmd.Context(), func(p workflow.Progress) {
				fmt.Fprintf(out, "[%d/%d] %s %s\n", p.Done, p.Total, p.OrderID, p.Outcome)
			})
			fmt.Fprintf(out, "processed %d, succeeded %d, failed %d, skipped %d\n",
				sum.Processed, sum.Succeeded, sum.Failed, sum.Skipped)
			return err
		},
	})
	return cmd
}
