package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// WebhookSink posts alerts as JSON to an operator-supplied endpoint, for
// wiring into incident tooling. Delivery is single-shot; retry policy is
// left to the receiver.
type WebhookSink struct {
	url     string
	headers map[string]string
	client  *http.Client
	logger  zerolog.Logger
}

// NewWebhookSink builds a webhook channel. Extra headers are attached to
// every request, typically for bearer auth.
func NewWebhookSink(url string, headers map[string]string, timeout time.Duration, logger zerolog.Logger) *WebhookSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "alert_webhook").Logger(),
	}
}

func (s *WebhookSink) Name() string { return "webhook" }

type webhookEnvelope struct {
	Pool        string    `json:"pool"`
	Kind        Kind      `json:"kind"`
	Priority    Priority  `json:"priority"`
	Phase       string    `json:"phase"`
	Timestamp   time.Time `json:"timestamp"`
	BlockHeight uint64    `json:"block_height"`
	Message     string    `json:"message"`
	Payload     Payload   `json:"payload,omitempty"`
}

// Send delivers one alert. Non-2xx responses count as failure.
func (s *WebhookSink) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(webhookEnvelope{
		Pool:        alert.Pool,
		Kind:        alert.Kind,
		Priority:    alert.Priority,
		Phase:       alert.Phase.String(),
		Timestamp:   alert.Timestamp.UTC(),
		BlockHeight: alert.BlockHeight,
		Message:     alert.Message,
		Payload:     alert.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	s.logger.Debug().
		Str("pool", alert.Pool).
		Str("kind", string(alert.Kind)).
		Msg("alert delivered to webhook")
	return nil
}

var _ Sink = (*WebhookSink)(nil)
