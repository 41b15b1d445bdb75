package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/razorpay-reconciliation/internal/review"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Reconciliation review queue",
}

var (
	reviewStatus string
	reviewOrder  string
	reviewLimit  int
)

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List state conflicts awaiting review",
	Run: func(cmd *cobra.Command, args []string) {
		if err := listConflicts(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "review list failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func listConflicts(ctx context.Context) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	deps, err := initializeDependencies(cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	conflicts, err := deps.Review.List(ctx, review.ListFilter{
		Status:         reviewStatus,
		GatewayOrderID: reviewOrder,
		Limit:          reviewLimit,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tORDER\tPAYMENT\tLOCAL\tREPORTED\tSOURCE\tSTATUS\tCREATED")
	for _, c := range conflicts {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID, c.GatewayOrderID, c.GatewayPaymentID, c.LocalStatus, c.ReportedStatus,
			c.Source, c.Status, c.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func init() {
	reviewListCmd.Flags().StringVar(&reviewStatus, "status", "open", "open or resolved")
	reviewListCmd.Flags().StringVar(&reviewOrder, "order", "", "only conflicts for this gateway order")
	reviewListCmd.Flags().IntVar(&reviewLimit, "limit", 50, "maximum rows")

	reviewCmd.AddCommand(reviewListCmd)
	rootCmd.AddCommand(reviewCmd)
}
