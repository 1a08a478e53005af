package stripe

import (
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

	"github.com/sony/gobreaker/v2"
)

const defaultBaseURL = "https://api.stripe.com"

// APIError is an error response from the REST API.
type APIError struct {
	StatusCode int
	Type       string `json:"type"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stripe api %d %s: %s", e.StatusCode, e.Type, e.Message)
}

// Temporary reports errors worth retrying: rate limits and server faults.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ClientConfig configures the REST client.
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration

	// FailureThreshold consecutive transient failures open the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

// Client calls the processor's REST API behind a circuit breaker.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     *slog.Logger
}

// NewClient creates a REST client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		logger:     logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "stripe",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return !apiErr.Temporary()
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return c
}

// GetSubscription fetches the current subscription snapshot.
func (c *Client) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	if id == "" {
		return nil, fmt.Errorf("subscription id is required")
	}
	body, err := c.do(ctx, http.MethodGet, "/v1/subscriptions/"+url.PathEscape(id), nil, "")
	if err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", id, err)
	}

	var sub Subscription
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, fmt.Errorf("decode subscription %s: %w", id, err)
	}
	return &sub, nil
}

// InvoiceParams describes a bookkeeping invoice for a one-time purchase.
type InvoiceParams struct {
	Customer    string
	Description string
	Metadata    map[string]string
	// IdempotencyKey makes retried creates return the first invoice
	// instead of filing another one.
	IdempotencyKey string
}

// CreateInvoice creates an invoice and returns its id.
func (c *Client) CreateInvoice(ctx context.Context, params InvoiceParams) (string, error) {
	if params.Customer == "" {
		return "", fmt.Errorf("invoice customer is required")
	}

	form := url.Values{}
	form.Set("customer", params.Customer)
	if params.Description != "" {
		form.Set("description", params.Description)
	}
	for k, v := range params.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	body, err := c.do(ctx, http.MethodPost, "/v1/invoices", form, params.IdempotencyKey)
	if err != nil {
		return "", fmt.Errorf("create invoice: %w", err)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("decode invoice: %w", err)
	}
	return created.ID, nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, idempotencyKey string) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if form != nil {
			reader = strings.NewReader(form.Encode())
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		if idempotencyKey != "" {
			req.Header.Set("Idempotency-Key", idempotencyKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 300 {
			apiErr := &APIError{StatusCode: resp.StatusCode}
			var envelope struct {
				Error *APIError `json:"error"`
			}
			if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
				apiErr.Type = envelope.Error.Type
				apiErr.Code = envelope.Error.Code
				apiErr.Message = envelope.Error.Message
			}
			return nil, apiErr
		}
		return body, nil
	})
}
