// Package facilitatorclient calls a facilitator's verify and settle endpoints.
package facilitatorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/raid-guild/hive-x402-facilitator-go/types"
)

const (
	// DefaultFacilitatorURL is the address of a locally running facilitator.
	DefaultFacilitatorURL = "http://localhost:4020"

	// DefaultTimeout covers a synchronous broadcast through a slow node.
	DefaultTimeout = 30 * time.Second

	headerContentType   = "Content-Type"
	headerAPIKey        = "X-API-Key"
	mimeApplicationJSON = "application/json"
)

// FacilitatorClient represents a facilitator client for verifying and settling payments.
type FacilitatorClient struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

// NewFacilitatorClient creates a new facilitator client. An empty url uses
// DefaultFacilitatorURL.
func NewFacilitatorClient(url, apiKey string) *FacilitatorClient {
	if url == "" {
		url = DefaultFacilitatorURL
	}
	return &FacilitatorClient{
		URL:        strings.TrimRight(url, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// Verify sends a payment verification request to the facilitator.
func (c *FacilitatorClient) Verify(ctx context.Context, payload types.PaymentPayload, requirements types.PaymentRequirements) (types.VerifyResponse, error) {
	var verifyResp types.VerifyResponse
	if err := c.post(ctx, "verify", payload, requirements, &verifyResp); err != nil {
		return types.VerifyResponse{}, err
	}
	return verifyResp, nil
}

// Settle sends a payment settlement request to the facilitator.
func (c *FacilitatorClient) Settle(ctx context.Context, payload types.PaymentPayload, requirements types.PaymentRequirements) (types.SettleResponse, error) {
	var settleResp types.SettleResponse
	if err := c.post(ctx, "settle", payload, requirements, &settleResp); err != nil {
		return types.SettleResponse{}, err
	}
	return settleResp, nil
}

// SupportedNetworks lists the networks the facilitator settles on.
func (c *FacilitatorClient) SupportedNetworks(ctx context.Context) ([]types.Network, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL+"/supported-networks", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send supported networks request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get supported networks: %s", resp.Status)
	}

	var supported types.SupportedNetworksResponse
	if err := json.NewDecoder(resp.Body).Decode(&supported); err != nil {
		return nil, fmt.Errorf("failed to decode supported networks response: %w", err)
	}
	return supported.Networks, nil
}

func (c *FacilitatorClient) post(ctx context.Context, endpoint string, payload types.PaymentPayload, requirements types.PaymentRequirements, out any) error {
	reqBody := map[string]any{
		"x402Version":         types.X402Version1,
		"paymentPayload":      payload,
		"paymentRequirements": requirements,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/%s", c.URL, endpoint), bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(headerContentType, mimeApplicationJSON)
	if c.APIKey != "" {
		req.Header.Set(headerAPIKey, c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest:
		// A rejected request still carries a negative result with its reason
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil || !hasReason(out) {
			return fmt.Errorf("failed to %s payment: %s", endpoint, resp.Status)
		}
		return nil
	default:
		return fmt.Errorf("failed to %s payment: %s", endpoint, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

func hasReason(out any) bool {
	switch r := out.(type) {
	case *types.VerifyResponse:
		return !r.IsValid && r.InvalidReason != ""
	case *types.SettleResponse:
		return !r.Success && r.ErrorReason != ""
	}
	return false
}
