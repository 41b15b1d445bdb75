package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
)

const maxResponseBytes = 1 << 20

var ErrLocalOrderNotFound = errors.New("local order not found")

type Config struct {
	BaseURL         string
	APIToken        string
	Timeout         time.Duration
	MaxRetries      int
	InitialInterval time.Duration
}

// StatusError is a non-retryable answer from the platform.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("platform returned status %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	baseURL         string
	token           string
	maxRetries      int
	initialInterval time.Duration
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewClient(config Config, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	initial := config.InitialInterval
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	maxRetries := config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		baseURL:         strings.TrimRight(config.BaseURL, "/"),
		token:           config.APIToken,
		maxRetries:      maxRetries,
		initialInterval: initial,
		httpClient:      &http.Client{Timeout: timeout},
		logger:          logger,
	}
}

func (c *Client) GetOrder(ctx context.Context, ref string) (*OrderSnapshot, error) {
	var snapshot OrderSnapshot
	if err := c.do(ctx, http.MethodGet, orderPath(ref, ""), nil, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (c *Client) MarkPaid(ctx context.Context, req MarkPaidRequest) error {
	return c.do(ctx, http.MethodPost, orderPath(req.Ref, "paid"), req, nil)
}

func (c *Client) MarkFailed(ctx context.Context, ref, reason string) error {
	return c.do(ctx, http.MethodPost, orderPath(ref, "failed"), map[string]string{"reason": reason}, nil)
}

func (c *Client) GenerateInvoice(ctx context.Context, ref, invoiceStatus string) error {
	return c.do(ctx, http.MethodPost, orderPath(ref, "invoice"), map[string]string{"status": invoiceStatus}, nil)
}

func orderPath(ref, action string) string {
	p := "/orders/" + url.PathEscape(ref)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to marshal platform request: %w", err)
		}
	}

	attempt := 0
	operation := func() error {
		attempt++
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("platform request failed", "method", method, "path", path, "attempt", attempt, "error", err)
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return fmt.Errorf("failed to read platform response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(ErrLocalOrderNotFound)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
			c.logger.Warn("platform returned retryable status", "method", method, "path", path, "attempt", attempt, "status_code", resp.StatusCode)
			return &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
		case resp.StatusCode >= http.StatusBadRequest:
			return backoff.Permanent(&StatusError{StatusCode: resp.StatusCode, Body: string(data)})
		}

		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to decode platform response: %w", err))
			}
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialInterval
	policy.MaxElapsedTime = 0

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxRetries)), ctx))
	if err == nil {
		return nil
	}

	var statusErr *StatusError
	if errors.Is(err, ErrLocalOrderNotFound) || (errors.As(err, &statusErr) && statusErr.StatusCode < http.StatusInternalServerError && statusErr.StatusCode != http.StatusTooManyRequests) {
		return err
	}
	c.logger.Error("platform unavailable after retries", "method", method, "path", path, "attempts", attempt, "error", err)
	return internal.ErrPlatformUnavailable.WithCause(err)
}
