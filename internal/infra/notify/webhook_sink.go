package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"pix-membership-platform/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

// WebhookSink posts notification events to the configured automation URL.
// Delivery is best-effort: the payment pipeline treats a failed publish as a
// log line, never as a rollback.
type WebhookSink struct {
	url    string
	client *http.Client
	log    *zerolog.Logger
}

var _ adapter.NotificationSink = (*WebhookSink)(nil)

// NewWebhookSink builds the sink. An empty url yields a working no-op sink.
func NewWebhookSink(url string, logger *zerolog.Logger) *WebhookSink {
	sinkLog := logger.With().Str("component", "WebhookSink").Logger()
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    &sinkLog,
	}
}

func (s *WebhookSink) Publish(ctx context.Context, ev adapter.NotificationEvent) error {
	if s.url == "" {
		return nil
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification sink returned status %d", resp.StatusCode)
	}
	s.log.Debug().Str("event", ev.Event).Str("payment_id", ev.PaymentID).Msg("notification delivered")
	return nil
}
