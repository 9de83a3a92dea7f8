package pricefeed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeclash/contest-engine/internal/config"
	"github.com/tradeclash/contest-engine/internal/models"
)

// Client is the HTTP client for the external price service.
type Client struct {
	HTTPClient *http.Client
	baseURL    string
	timeout    time.Duration
}

// HealthResponse is the price service health payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// RefreshResponse reports the outcome of a snapshot refresh.
type RefreshResponse struct {
	AssetClass string    `json:"asset_class"`
	Symbols    int       `json:"symbols"`
	AsOf       time.Time `json:"as_of"`
}

// PortfolioValueResponse carries a single portfolio's marked value.
type PortfolioValueResponse struct {
	PortfolioID string          `json:"portfolio_id"`
	Value       decimal.Decimal `json:"value"`
	AsOf        time.Time       `json:"as_of"`
}

// ErrorResponse is the price service error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewClient creates a price service client from configuration.
func NewClient(cfg *config.PriceFeedConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimSuffix(cfg.ServiceURL, "/"),
		timeout: timeout,
	}
}

// BaseURL returns the configured service URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HealthCheck checks if the price service is reachable and healthy.
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	var response HealthResponse
	err := c.makeRequest(ctx, "GET", "/health", nil, &response)
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// RefreshPrices asks the service to take a fresh price snapshot for an
// asset class.
func (c *Client) RefreshPrices(ctx context.Context, class models.AssetClass) (*RefreshResponse, error) {
	path := fmt.Sprintf("/api/refresh/%s", class)
	var response RefreshResponse
	err := c.makeRequest(ctx, "POST", path, nil, &response)
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// PortfolioValue retrieves the current marked value of a portfolio.
func (c *Client) PortfolioValue(ctx context.Context, portfolioID string) (*PortfolioValueResponse, error) {
	path := fmt.Sprintf("/api/portfolios/%s/value", portfolioID)
	var response PortfolioValueResponse
	err := c.makeRequest(ctx, "GET", path, nil, &response)
	if err != nil {
		return nil, err
	}
	return &response, nil
}

func (c *Client) makeRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Contest-Engine/1.0")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Error closing response body: %v", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errorResp ErrorResponse
		if err := json.Unmarshal(respBody, &errorResp); err == nil && errorResp.Error != "" {
			return fmt.Errorf("price service error (%d): %s", resp.StatusCode, errorResp.Error)
		}
		return fmt.Errorf("price service error (%d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}
