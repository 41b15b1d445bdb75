package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/razorpay-reconciliation/internal/core/events"
	"github.com/frahmantamala/razorpay-reconciliation/internal/payment"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Inspect and replay the events the reconciler hands to the commerce platform`,
}

var redeliverEventCmd = &cobra.Command{
	Use:   "redeliver [gateway-order-id]",
	Short: "Report a paid order to the platform again",
	Long: `Publishes the payment captured event for a paid gateway order so the platform
is told again. Use after the platform was unreachable when the payment was captured.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := redeliverCaptured(cmd.Context(), args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "redeliver failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func redeliverCaptured(ctx context.Context, gatewayOrderID string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	deps, err := initializeDependencies(cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	if deps.EventBus.HandlerCount(events.EventTypePaymentCaptured) == 0 {
		return errors.New("no platform configured to receive the event")
	}

	o, err := deps.Orders.Get(ctx, gatewayOrderID)
	if err != nil {
		return err
	}
	if !o.IsPaid() {
		return fmt.Errorf("gateway order %s is %s, not paid", o.GatewayOrderID, o.Status)
	}

	payments, err := deps.Payments.ListByOrder(ctx, gatewayOrderID)
	if err != nil {
		return err
	}

	var captured *payment.GatewayPayment
	for _, p := range payments {
		if p.Status == payment.StatusCaptured || p.Status == payment.StatusRefunded {
			captured = p
			break
		}
	}
	if captured == nil {
		return fmt.Errorf("gateway order %s has no captured payment", gatewayOrderID)
	}

	method := ""
	if captured.Method != nil {
		method = *captured.Method
	}
	event := events.NewPaymentCapturedEvent(o.GatewayOrderID, captured.GatewayPaymentID, o.LocalRef(),
		captured.Amount, captured.Currency, method, "redeliver")

	deps.Logger.Info("redelivering payment captured event",
		"event_id", event.EventID(),
		"gateway_order_id", o.GatewayOrderID,
		"gateway_payment_id", captured.GatewayPaymentID)

	if err := deps.EventBus.PublishSync(ctx, event); err != nil {
		return err
	}
	fmt.Println("redelivered", event.EventID())
	return nil
}

func init() {
	eventCmd.AddCommand(redeliverEventCmd)

	rootCmd.AddCommand(eventCmd)
}
