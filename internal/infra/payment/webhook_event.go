package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"pix-membership-platform/internal/domain"
)

// Webhook event types meaning "payment confirmed". The gateway has shipped
// two endpoint versions with different encodings; both normalize here.
const (
	eventPaymentConfirmedJSON = "billing.paid"
	eventPaymentConfirmedForm = "pagamento_confirmado"
)

// WebhookEvent is the normalized view of one gateway callback, produced by
// the per-encoding adapters below.
type WebhookEvent struct {
	Type                 string
	GatewayTransactionID string
	RawStatus            string
	EndToEndID           string
	AmountCents          int64
}

// PaymentConfirmed reports whether this delivery should trigger settlement.
// Every other event type is acknowledged and dropped.
func (e *WebhookEvent) PaymentConfirmed() bool {
	return e.Type == eventPaymentConfirmedJSON || e.Type == eventPaymentConfirmedForm
}

type jsonWebhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		EndToEndID string `json:"endToEndId"`
		Amount     int64  `json:"amount"`
	} `json:"data"`
}

// ParseWebhookPayload decodes a gateway callback body into a normalized
// event. JSON bodies carry an "event" field with a "data" object; the older
// form-encoded endpoint sends an "event" field plus a "transaction" field
// holding the JSON sub-payload.
func ParseWebhookPayload(contentType string, body []byte) (*WebhookEvent, error) {
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		return parseFormPayload(body)
	}
	return parseJSONPayload(body)
}

func parseJSONPayload(body []byte) (*WebhookEvent, error) {
	var p jsonWebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if p.Event == "" {
		return nil, fmt.Errorf("%w: missing event field", domain.ErrInvalidArgument)
	}
	ev := &WebhookEvent{
		Type:                 p.Event,
		GatewayTransactionID: p.Data.ID,
		RawStatus:            p.Data.Status,
		EndToEndID:           p.Data.EndToEndID,
		AmountCents:          p.Data.Amount,
	}
	if ev.PaymentConfirmed() && ev.GatewayTransactionID == "" {
		return nil, fmt.Errorf("%w: missing transaction id", domain.ErrInvalidArgument)
	}
	return ev, nil
}

func parseFormPayload(body []byte) (*WebhookEvent, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	event := values.Get("event")
	if event == "" {
		return nil, fmt.Errorf("%w: missing event field", domain.ErrInvalidArgument)
	}
	ev := &WebhookEvent{Type: event}
	if raw := values.Get("transaction"); raw != "" {
		var tx struct {
			ID         string `json:"id"`
			Status     string `json:"status"`
			EndToEndID string `json:"endToEndId"`
			Amount     int64  `json:"amount"`
		}
		if err := json.Unmarshal([]byte(raw), &tx); err != nil {
			return nil, fmt.Errorf("%w: bad transaction sub-payload: %v", domain.ErrInvalidArgument, err)
		}
		ev.GatewayTransactionID = tx.ID
		ev.RawStatus = tx.Status
		ev.EndToEndID = tx.EndToEndID
		ev.AmountCents = tx.Amount
	}
	if ev.PaymentConfirmed() && ev.GatewayTransactionID == "" {
		return nil, fmt.Errorf("%w: missing transaction id", domain.ErrInvalidArgument)
	}
	return ev, nil
}

// VerifyWebhookSignature checks the HMAC-SHA256 of the raw body against the
// signature header. An empty secret disables verification.
func VerifyWebhookSignature(secret string, body []byte, signature string) bool {
	if secret == "" {
		return true
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	expected := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected))
}
