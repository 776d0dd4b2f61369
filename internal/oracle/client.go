package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	dErrors "github.com/knowton/marketplace/pkg/domain-errors"
)

// Client talks to the valuation oracle, an external service that prices IP
// assets from comparable sales and content features.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ValuationRequest asks the oracle to price one token.
type ValuationRequest struct {
	TokenID  string         `json:"token_id"`
	Metadata map[string]any `json:"metadata"`
}

// ValuationResponse is the oracle's estimate.
type ValuationResponse struct {
	EstimatedValue     float64   `json:"estimated_value"`
	ConfidenceInterval []float64 `json:"confidence_interval"`
	ModelUncertainty   float64   `json:"model_uncertainty"`
}

// EstimateValue requests a valuation for the token.
func (c *Client) EstimateValue(ctx context.Context, tokenID string, metadata map[string]any) (*ValuationResponse, error) {
	body, err := json.Marshal(ValuationRequest{TokenID: tokenID, Metadata: metadata})
	if err != nil {
		return nil, fmt.Errorf("marshal valuation request: %w", err)
	}

	url := c.baseURL + "/api/v1/oracle/valuation"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build valuation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call oracle: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read oracle response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, dErrors.New(dErrors.CodeInternal,
			fmt.Sprintf("oracle returned status %d", resp.StatusCode))
	}

	var valuation ValuationResponse
	if err := json.Unmarshal(payload, &valuation); err != nil {
		return nil, fmt.Errorf("decode oracle response: %w", err)
	}
	return &valuation, nil
}

// Health probes the oracle's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call oracle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("oracle unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
