package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeclash/contest-engine/internal/config"
)

// ChargeResult is the opaque outcome returned by the payment gateway.
// The engine only consumes it; it never simulates gateway behavior.
type ChargeResult struct {
	Approved   bool   `json:"approved"`
	PaymentRef string `json:"payment_ref"`
	Reason     string `json:"reason,omitempty"`
}

// Gateway is the payment collaborator boundary. Implementations charge
// an entry fee and report success or failure.
type Gateway interface {
	AttemptCharge(ctx context.Context, userID string, amount decimal.Decimal) (*ChargeResult, error)
}

// HTTPGateway charges entry fees through an external payment service.
type HTTPGateway struct {
	httpClient *http.Client
	baseURL    string
}

type chargeRequest struct {
	UserID string          `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
}

// NewHTTPGateway creates a gateway client from configuration.
func NewHTTPGateway(cfg *config.PaymentConfig) *HTTPGateway {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 20 * time.Second
	}

	return &HTTPGateway{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(cfg.GatewayURL, "/"),
	}
}

// AttemptCharge posts a charge request and decodes the gateway's verdict.
// A declined charge is a normal result, not an error.
func (g *HTTPGateway) AttemptCharge(ctx context.Context, userID string, amount decimal.Decimal) (*ChargeResult, error) {
	body, err := json.Marshal(chargeRequest{UserID: userID, Amount: amount})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal charge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/charges", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create charge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("charge request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("payment gateway returned status %d", resp.StatusCode)
	}

	var result ChargeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode charge response: %w", err)
	}

	return &result, nil
}
