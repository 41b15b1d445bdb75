package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
)

const maxResponseBytes = 1 << 20

type Config struct {
	BaseURL         string
	KeyID           string
	KeySecret       string
	Timeout         time.Duration
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type Client struct {
	baseURL         string
	keyID           string
	keySecret       string
	maxRetries      int
	initialInterval time.Duration
	maxInterval     time.Duration
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewClient(config Config, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxRetries := config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	initial := config.InitialInterval
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	maxInterval := config.MaxInterval
	if maxInterval <= 0 {
		maxInterval = 5 * time.Second
	}

	return &Client{
		baseURL:         strings.TrimRight(config.BaseURL, "/"),
		keyID:           config.KeyID,
		keySecret:       config.KeySecret,
		maxRetries:      maxRetries,
		initialInterval: initial,
		maxInterval:     maxInterval,
		httpClient:      &http.Client{Timeout: timeout},
		logger:          logger,
	}
}

func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodPost, "/orders", req, &order); err != nil {
		return nil, err
	}
	c.logger.Info("razorpay order created",
		"gateway_order_id", order.ID,
		"amount", order.Amount,
		"currency", order.Currency)
	return &order, nil
}

func (c *Client) FetchOrder(ctx context.Context, gatewayOrderID string) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(gatewayOrderID), nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) FetchOrderPayments(ctx context.Context, gatewayOrderID string) ([]Payment, error) {
	var collection paymentCollection
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(gatewayOrderID)+"/payments", nil, &collection); err != nil {
		return nil, err
	}
	return collection.Items, nil
}

func (c *Client) FetchPayment(ctx context.Context, gatewayPaymentID string) (*Payment, error) {
	var payment Payment
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(gatewayPaymentID), nil, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (c *Client) FetchPaymentRefunds(ctx context.Context, gatewayPaymentID string) ([]Refund, error) {
	var collection refundCollection
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(gatewayPaymentID)+"/refunds", nil, &collection); err != nil {
		return nil, err
	}
	return collection.Items, nil
}

func (c *Client) RefundPayment(ctx context.Context, gatewayPaymentID string, req RefundRequest) (*Refund, error) {
	var refund Refund
	if err := c.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(gatewayPaymentID)+"/refund", req, &refund); err != nil {
		return nil, err
	}
	c.logger.Info("razorpay refund created",
		"gateway_payment_id", gatewayPaymentID,
		"gateway_refund_id", refund.ID,
		"amount", refund.Amount)
	return &refund, nil
}

// do performs one API call with bounded exponential backoff. Reads are
// retried on network errors, 429 and 5xx. Creating calls (orders, refunds)
// are only retried when the provider cannot have acted on them: a 429, or a
// network error before the request was written. Other 4xx responses fail
// immediately.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	replayable := method == http.MethodGet || method == http.MethodHead

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal razorpay request: %w", err)
		}
	}

	attempt := 0
	operation := func() error {
		attempt++

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		var sent atomic.Bool
		trace := &httptrace.ClientTrace{
			WroteRequest: func(info httptrace.WroteRequestInfo) {
				if info.Err == nil {
					sent.Store(true)
				}
			},
		}
		req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), method, c.baseURL+path, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		req.SetBasicAuth(c.keyID, c.keySecret)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("razorpay request failed",
				"method", method,
				"path", path,
				"attempt", attempt,
				"error", err)
			if !replayable && sent.Load() {
				c.logger.Warn("razorpay request may have been applied, not resending",
					"method", method,
					"path", path)
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			err = fmt.Errorf("failed to read razorpay response: %w", err)
			if !replayable {
				return backoff.Permanent(err)
			}
			return err
		}

		if resp.StatusCode >= http.StatusBadRequest {
			apiErr := parseAPIError(resp.StatusCode, data)
			if apiErr.Retryable() && (replayable || resp.StatusCode == http.StatusTooManyRequests) {
				c.logger.Warn("razorpay returned retryable status",
					"method", method,
					"path", path,
					"attempt", attempt,
					"status_code", resp.StatusCode)
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}

		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to decode razorpay response: %w", err))
			}
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialInterval
	policy.MaxInterval = c.maxInterval
	policy.MaxElapsedTime = 0

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxRetries)), ctx))
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && !apiErr.Retryable() {
		c.logger.Error("razorpay rejected request",
			"method", method,
			"path", path,
			"status_code", apiErr.StatusCode,
			"code", apiErr.Code)
		return internal.ErrProviderRejected.WithMessage("payment provider rejected the request: %s", apiErr.Description).WithCause(apiErr)
	}

	c.logger.Error("razorpay unavailable after retries",
		"method", method,
		"path", path,
		"attempts", attempt,
		"error", err)
	return internal.ErrProviderUnavailable.WithCause(err)
}
