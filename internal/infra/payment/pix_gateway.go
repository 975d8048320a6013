package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pix-membership-platform/internal/domain"
	"pix-membership-platform/internal/domain/ports/adapter"
)

// PixGatewayClient implements adapter.PixGateway against the provider's
// HTTP API using direct calls.
type PixGatewayClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ adapter.PixGateway = (*PixGatewayClient)(nil)

func NewPixGatewayClient(baseURL, apiKey string) *PixGatewayClient {
	return &PixGatewayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// pixChargeResponse represents the response from the charge creation API.
type pixChargeResponse struct {
	Data struct {
		ID           string    `json:"id"`
		Status       string    `json:"status"`
		BRCode       string    `json:"brCode"`
		BRCodeBase64 string    `json:"brCodeBase64"`
		ExpiresAt    time.Time `json:"expiresAt"`
	} `json:"data"`
	Error string `json:"error"`
}

// pixTransactionResponse represents the response from the transaction lookup API.
type pixTransactionResponse struct {
	Data struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		EndToEndID string `json:"endToEndId"`
		Amount     int64  `json:"amount"`
		Metadata   struct {
			UserID  string   `json:"userId"`
			PlanIDs []string `json:"planIds"`
		} `json:"metadata"`
		Description string `json:"description"`
	} `json:"data"`
	Error string `json:"error"`
}

func (g *PixGatewayClient) CreateCharge(ctx context.Context, req adapter.CreateChargeRequest) (*adapter.Charge, error) {
	description := req.Description
	if description == "" {
		// Keeps the plan list recoverable from the description alone, for
		// lookups where the gateway strips metadata.
		description = FormatLegacyDescription("Assinatura", req.Metadata.PlanIDs)
	}
	payload := map[string]interface{}{
		"amount":      req.AmountCents,
		"expiresAt":   req.ExpiresAt.UTC().Format(time.RFC3339),
		"callbackUrl": req.CallbackURL,
		"description": description,
		"customer": map[string]interface{}{
			"name":  req.Payer.Name,
			"email": req.Payer.Email,
			"phone": req.Payer.Phone,
		},
		"metadata": map[string]interface{}{
			"userId":  req.Metadata.UserID,
			"planIds": req.Metadata.PlanIDs,
		},
	}

	var response pixChargeResponse
	if err := g.post(ctx, "/v1/pix/charges", payload, &response); err != nil {
		return nil, err
	}
	if response.Error != "" {
		return nil, fmt.Errorf("pix gateway error: %s", response.Error)
	}
	if response.Data.ID == "" {
		return nil, fmt.Errorf("pix gateway returned no transaction id")
	}

	return &adapter.Charge{
		GatewayTransactionID: response.Data.ID,
		QRCodeText:           response.Data.BRCode,
		QRCodeImageBase64:    response.Data.BRCodeBase64,
		ExpiresAt:            response.Data.ExpiresAt,
	}, nil
}

func (g *PixGatewayClient) FetchTransaction(ctx context.Context, gatewayTxID string) (*adapter.Transaction, error) {
	url := fmt.Sprintf("%s/v1/pix/transactions/%s", g.baseURL, gatewayTxID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, adapter.ErrTransactionNotFound
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d, body: %s", domain.ErrGatewayUnavailable, resp.StatusCode, string(body))
	}

	var response pixTransactionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(body))
	}
	if response.Error != "" {
		return nil, fmt.Errorf("pix gateway error: %s", response.Error)
	}

	return &adapter.Transaction{
		ID:          response.Data.ID,
		Status:      response.Data.Status,
		EndToEndID:  response.Data.EndToEndID,
		AmountCents: response.Data.Amount,
		Metadata: adapter.ChargeMetadata{
			UserID:  response.Data.Metadata.UserID,
			PlanIDs: response.Data.Metadata.PlanIDs,
		},
		Description: response.Data.Description,
	}, nil
}

func (g *PixGatewayClient) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d, body: %s", domain.ErrGatewayUnavailable, resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(body))
	}
	return nil
}
