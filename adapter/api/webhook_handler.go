package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/saffron/internal/billing/application"
	"github.com/felixgeelhaar/saffron/internal/billing/infrastructure/stripe"
	"github.com/felixgeelhaar/saffron/pkg/observability"
)

// MaxWebhookBytes caps the webhook request body.
const MaxWebhookBytes = stripe.MaxPayloadBytes

// DefaultWebhookTimeout bounds the whole verify, resolve and mutate pipeline.
const DefaultWebhookTimeout = 10 * time.Second

// SignatureVerifier authenticates raw webhook payloads.
type SignatureVerifier interface {
	Verify(payload []byte, header string) error
}

// EventProcessor applies verified events.
type EventProcessor interface {
	Process(ctx context.Context, evt *stripe.Event) (*application.Result, error)
}

// WebhookHandler is the ingress for processor webhooks.
type WebhookHandler struct {
	verifier  SignatureVerifier
	processor EventProcessor
	timeout   time.Duration
	metrics   observability.Metrics
	logger    *slog.Logger
}

// WebhookHandlerConfig holds dependencies for the webhook handler.
type WebhookHandlerConfig struct {
	Verifier  SignatureVerifier
	Processor EventProcessor
	Timeout   time.Duration
	Metrics   observability.Metrics
	Logger    *slog.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(cfg WebhookHandlerConfig) *WebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultWebhookTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}
	return &WebhookHandler{
		verifier:  cfg.Verifier,
		processor: cfg.Processor,
		timeout:   cfg.Timeout,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
}

type webhookResponse struct {
	Received  bool   `json:"received"`
	EventID   string `json:"event_id"`
	Outcome   string `json:"outcome"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

type pipelineResult struct {
	result *application.Result
	err    error
}

// HandleStripe handles POST /webhooks/stripe. Signature and payload
// failures answer 400, storage failures 500, timeouts 503.
func (h *WebhookHandler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.metrics.Counter(observability.MetricWebhookRejected, 1, observability.T("reason", "too_large"))
			writeAPIError(w, ErrPayloadTooLarge)
			return
		}
		writeAPIError(w, ErrBadRequest)
		return
	}
	signature := r.Header.Get(stripe.SignatureHeader)

	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	done := make(chan pipelineResult, 1)
	go func() {
		result, err := h.run(ctx, payload, signature)
		done <- pipelineResult{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		h.logger.ErrorContext(r.Context(), "webhook processing timed out", "timeout", h.timeout)
		h.metrics.Counter(observability.MetricWebhookRejected, 1, observability.T("reason", "timeout"))
		writeAPIError(w, ErrTimeout)
	case out := <-done:
		h.metrics.Timing(observability.MetricWebhookDuration, time.Since(start))
		h.respond(r.Context(), w, out)
	}
}

func (h *WebhookHandler) run(ctx context.Context, payload []byte, signature string) (*application.Result, error) {
	if err := h.verifier.Verify(payload, signature); err != nil {
		return nil, err
	}
	evt, err := stripe.ParseEvent(payload)
	if err != nil {
		return nil, err
	}
	return h.processor.Process(observability.WithEventID(ctx, evt.ID), evt)
}

func (h *WebhookHandler) respond(ctx context.Context, w http.ResponseWriter, out pipelineResult) {
	switch {
	case out.err == nil:
		h.metrics.Counter(observability.MetricWebhookEvents, 1,
			observability.T("type", out.result.EventType),
			observability.T("outcome", string(out.result.Outcome)),
		)
		writeJSON(w, http.StatusOK, webhookResponse{
			Received:  true,
			EventID:   out.result.EventID,
			Outcome:   string(out.result.Outcome),
			Duplicate: out.result.Duplicate,
		})
	case errors.Is(out.err, stripe.ErrInvalidSignature):
		h.logger.WarnContext(ctx, "webhook signature rejected", "error", out.err)
		h.metrics.Counter(observability.MetricWebhookRejected, 1, observability.T("reason", "signature"))
		writeAPIError(w, ErrInvalidSignature)
	case errors.Is(out.err, stripe.ErrMalformedEvent):
		h.logger.WarnContext(ctx, "webhook payload rejected", "error", out.err)
		h.metrics.Counter(observability.MetricWebhookRejected, 1, observability.T("reason", "malformed"))
		writeAPIError(w, ErrMalformedEvent)
	case errors.Is(out.err, context.DeadlineExceeded):
		h.logger.ErrorContext(ctx, "webhook processing timed out", "error", out.err)
		h.metrics.Counter(observability.MetricWebhookRejected, 1, observability.T("reason", "timeout"))
		writeAPIError(w, ErrTimeout)
	default:
		h.logger.ErrorContext(ctx, "webhook processing failed", "error", out.err)
		h.metrics.Counter(observability.MetricWebhookRejected, 1, observability.T("reason", "internal"))
		writeAPIError(w, ErrInternalServer)
	}
}
