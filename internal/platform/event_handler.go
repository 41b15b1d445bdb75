package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/razorpay-reconciliation/internal/core/events"
)

type Options struct {
	// OrderStatus is the platform status a paid order is moved to.
	OrderStatus     string
	GenerateInvoice bool
	InvoiceStatus   string
}

// EventHandler carries reconciliation outcomes over to the host platform.
type EventHandler struct {
	orders  LocalOrders
	options Options
	logger  *slog.Logger
}

func NewEventHandler(orders LocalOrders, options Options, logger *slog.Logger) *EventHandler {
	if options.OrderStatus == "" {
		options.OrderStatus = "processing"
	}
	if options.InvoiceStatus == "" {
		options.InvoiceStatus = "paid"
	}
	return &EventHandler{orders: orders, options: options, logger: logger}
}

func (h *EventHandler) HandlePaymentCaptured(ctx context.Context, event events.Event) error {
	captured, ok := event.(*events.PaymentCapturedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment captured handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentCapturedEvent, got %T", event)
	}
	if captured.LocalOrderRef == "" {
		return nil
	}

	return h.markPaid(ctx, MarkPaidRequest{
		Ref:              captured.LocalOrderRef,
		OrderStatus:      h.options.OrderStatus,
		GatewayOrderID:   captured.GatewayOrderID,
		GatewayPaymentID: captured.GatewayPaymentID,
		Amount:           captured.Amount,
		Currency:         captured.Currency,
		Method:           captured.Method,
	}, captured.EventID())
}

// HandleLocalOrderLinked completes the side effect for an order that was paid
// before the platform attached its reference.
func (h *EventHandler) HandleLocalOrderLinked(ctx context.Context, event events.Event) error {
	linked, ok := event.(*events.LocalOrderLinkedEvent)
	if !ok {
		h.logger.Error("invalid event type for local order linked handler", "event_type", event.EventType())
		return fmt.Errorf("expected LocalOrderLinkedEvent, got %T", event)
	}
	if linked.OrderStatus != "paid" {
		return nil
	}
	return h.markPaid(ctx, MarkPaidRequest{
		Ref:            linked.LocalOrderRef,
		OrderStatus:    h.options.OrderStatus,
		GatewayOrderID: linked.GatewayOrderID,
	}, linked.EventID())
}

func (h *EventHandler) markPaid(ctx context.Context, req MarkPaidRequest, eventID string) error {
	current, err := h.orders.GetOrder(ctx, req.Ref)
	switch {
	case errors.Is(err, ErrLocalOrderNotFound):
		h.logger.Warn("paid gateway order references a missing local order",
			"local_order_ref", req.Ref,
			"gateway_order_id", req.GatewayOrderID,
			"event_id", eventID)
		return nil
	case err != nil:
		return fmt.Errorf("failed to load local order %s: %w", req.Ref, err)
	}

	if current.Status == req.OrderStatus {
		h.logger.Info("local order already marked paid", "local_order_ref", req.Ref, "event_id", eventID)
		return nil
	}
	if req.Amount > 0 && current.Total > 0 && current.Total != req.Amount {
		h.logger.Warn("captured amount differs from local order total",
			"local_order_ref", req.Ref,
			"order_total", current.Total,
			"captured_amount", req.Amount)
	}

	if err := h.orders.MarkPaid(ctx, req); err != nil {
		h.logger.Error("failed to mark local order paid",
			"local_order_ref", req.Ref,
			"gateway_order_id", req.GatewayOrderID,
			"event_id", eventID,
			"error", err)
		return fmt.Errorf("mark paid failed for local order %s: %w", req.Ref, err)
	}
	h.logger.Info("local order marked paid",
		"local_order_ref", req.Ref,
		"gateway_order_id", req.GatewayOrderID,
		"status", req.OrderStatus)

	if !h.options.GenerateInvoice {
		return nil
	}
	if err := h.orders.GenerateInvoice(ctx, req.Ref, h.options.InvoiceStatus); err != nil {
		h.logger.Error("failed to generate invoice", "local_order_ref", req.Ref, "error", err)
		return fmt.Errorf("invoice generation failed for local order %s: %w", req.Ref, err)
	}
	return nil
}

func (h *EventHandler) HandlePaymentFailed(ctx context.Context, event events.Event) error {
	failed, ok := event.(*events.PaymentFailedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment failed handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentFailedEvent, got %T", event)
	}
	if failed.LocalOrderRef == "" {
		return nil
	}

	reason := failed.ErrorDescription
	if reason == "" {
		reason = failed.ErrorCode
	}
	if err := h.orders.MarkFailed(ctx, failed.LocalOrderRef, reason); err != nil {
		if errors.Is(err, ErrLocalOrderNotFound) {
			return nil
		}
		return fmt.Errorf("mark failed failed for local order %s: %w", failed.LocalOrderRef, err)
	}
	h.logger.Info("local order marked failed", "local_order_ref", failed.LocalOrderRef, "reason", reason)
	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentCaptured, h.HandlePaymentCaptured)
	eventBus.Subscribe(events.EventTypePaymentFailed, h.HandlePaymentFailed)
	eventBus.Subscribe(events.EventTypeLocalOrderLinked, h.HandleLocalOrderLinked)

	h.logger.Info("platform event handlers registered",
		"handlers", []string{events.EventTypePaymentCaptured, events.EventTypePaymentFailed, events.EventTypeLocalOrderLinked})
}
