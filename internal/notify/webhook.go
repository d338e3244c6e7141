package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"saxo-trader/pkg/utils"
)

// WebhookNotifier delivers notifications as Discord-compatible JSON
// posts.
type WebhookNotifier struct {
	url     string
	enabled bool
	client  *http.Client
	retry   utils.RetryConfig
}

// NewWebhookNotifier creates a webhook channel. An empty URL disables
// it.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:     url,
		enabled: url != "",
		client:  &http.Client{Timeout: 10 * time.Second},
		retry: utils.RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  500 * time.Millisecond,
			MaxDelay:      5 * time.Second,
			BackoffFactor: 2.0,
			Jitter:        true,
		},
	}
}

// Name returns the channel name.
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// IsEnabled reports whether the channel will deliver.
func (w *WebhookNotifier) IsEnabled() bool {
	return w.enabled
}

// Send posts the notification, retrying failed deliveries with backoff
// so an alert does not vanish on a webhook hiccup.
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	payload := map[string]interface{}{
		"content": fmt.Sprintf("**%s**\n%s", n.Title, n.Message),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}
	return utils.Retry(ctx, w.retry, func() error {
		return w.post(ctx, data)
	})
}

func (w *WebhookNotifier) post(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
