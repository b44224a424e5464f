package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/forexcompass/compass/internal/log"
)

// webhookTimeout bounds the outbound delivery POST.
const webhookTimeout = 20 * time.Second

// WebhookClient delivers result envelopes to caller-supplied URLs.
// Delivery is best-effort: failures are logged, never retried.
type WebhookClient struct {
	client *http.Client
	logger log.Logger
}

// NewWebhookClient creates a webhook client. httpClient may be nil, in which
// case a client with the default delivery timeout is used.
func NewWebhookClient(httpClient *http.Client, logger log.Logger) *WebhookClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: webhookTimeout}
	}
	return &WebhookClient{client: httpClient, logger: logger}
}

// Deliver POSTs the envelope to the configured URL. An error is returned for
// the caller's log line only; the caller must not retry or fail the request
// because of it.
func (w *WebhookClient) Deliver(ctx context.Context, cfg *PushNotificationConfig, resp *Response) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Token)
	}

	httpResp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", httpResp.StatusCode)
	}

	w.logger.Info("webhook delivered", "url", cfg.URL, "status", httpResp.StatusCode)
	return nil
}
