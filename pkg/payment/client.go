package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jinhwansong/konnect-back-sub000/pkg/config"
)

const (
	confirmPath = "/v1/payments/confirm"
	cancelPath  = "/v1/payments/%s/cancel"

	// StatusDone is the processor status of an approved charge.
	StatusDone = "DONE"
	// StatusCanceled is the processor status of a cancelled charge.
	StatusCanceled = "CANCELED"
)

// ProcessorError is a non-2xx answer from the processor.
type ProcessorError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("payment processor %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// ConfirmRequest is the charge approval call.
type ConfirmRequest struct {
	PaymentKey string `json:"paymentKey"`
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"`
}

// ConfirmResult is the processor's answer to an approval.
type ConfirmResult struct {
	PaymentKey  string    `json:"paymentKey"`
	OrderID     string    `json:"orderId"`
	Status      string    `json:"status"`
	TotalAmount int64     `json:"totalAmount"`
	ApprovedAt  time.Time `json:"approvedAt"`
	ReceiptURL  string    `json:"-"`
}

// CancelResult is the processor's answer to a cancellation.
type CancelResult struct {
	PaymentKey string `json:"paymentKey"`
	Status     string `json:"status"`
}

type confirmEnvelope struct {
	ConfirmResult
	Receipt *struct {
		URL string `json:"url"`
	} `json:"receipt"`
}

// Client calls the external payment processor.
type Client struct {
	baseURL   string
	secretKey string
	timeout   time.Duration
	http      *http.Client
	limiter   *rate.Limiter
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient constructs a processor client from configuration.
func NewClient(cfg config.PaymentConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		timeout:   timeout,
		http:      &http.Client{},
		limiter:   rate.NewLimiter(limit, burst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Confirm approves a charge.
func (c *Client) Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	var env confirmEnvelope
	if err := c.do(ctx, confirmPath, req, &env); err != nil {
		return nil, err
	}
	result := env.ConfirmResult
	if env.Receipt != nil {
		result.ReceiptURL = env.Receipt.URL
	}
	if result.Status != "" && result.Status != StatusDone {
		return nil, &ProcessorError{StatusCode: http.StatusOK, Code: "NOT_APPROVED", Message: "charge status " + result.Status}
	}
	return &result, nil
}

// Cancel voids or refunds a charge.
func (c *Client) Cancel(ctx context.Context, paymentKey, reason string) (*CancelResult, error) {
	if paymentKey == "" {
		return nil, errors.New("payment key is required")
	}
	body := map[string]string{"cancelReason": reason}
	var result CancelResult
	if err := c.do(ctx, fmt.Sprintf(cancelPath, url.PathEscape(paymentKey)), body, &result); err != nil {
		return nil, err
	}
	if result.Status == "" {
		result.Status = StatusCanceled
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, path string, payload interface{}, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("payment rate limit: %w", err)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payment request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build payment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.secretKey+":")))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call payment processor: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read payment response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		perr := &ProcessorError{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(body, perr); jsonErr != nil || perr.Code == "" {
			perr.Code = http.StatusText(resp.StatusCode)
			perr.Message = strings.TrimSpace(string(body))
		}
		return perr
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode payment response: %w", err)
	}
	return nil
}
