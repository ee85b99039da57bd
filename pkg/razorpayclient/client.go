/**
 * @description
 * This package provides a client for the Razorpay payouts API (RazorpayX).
 * It encapsulates the logic for making basic-auth HTTP requests to the
 * contacts, fund-accounts, and payouts endpoints, handling request body
 * construction and parsing responses.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, io, log, net/http, time: Standard Go libraries.
 * - internal/domain: For the contact payload shape.
 *
 * @notes
 * - Payout responses are returned as raw JSON: the gateway treats them as
 *   opaque provider objects and never inspects their fields.
 * - An idempotency key can be forwarded on payout creation via the
 *   X-Payout-Idempotency header; Razorpay replays the original response for
 *   a repeated key instead of moving money twice.
 */
package razorpayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/payctf/payout-service/internal/domain"
)

// Client is a client for the Razorpay API.
type Client struct {
	BaseURL    string
	KeyID      string
	KeySecret  string
	HTTPClient *http.Client
}

// NewClient creates a new Razorpay API client.
func NewClient(baseURL, keyID, keySecret string) *Client {
	return &Client{
		BaseURL:   baseURL,
		KeyID:     keyID,
		KeySecret: keySecret,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// contactResponse is the subset of Razorpay's contact object the gateway uses.
type contactResponse struct {
	ID string `json:"id"`
}

// fundAccountRequest is the payload for creating a VPA fund account.
type fundAccountRequest struct {
	ContactID   string `json:"contact_id"`
	AccountType string `json:"account_type"`
	VPA         struct {
		Address string `json:"address"`
	} `json:"vpa"`
}

// fundAccountResponse is the subset of Razorpay's fund-account object the gateway uses.
type fundAccountResponse struct {
	ID string `json:"id"`
}

// PayoutRequest is the payload for creating a payout.
type PayoutRequest struct {
	AccountNumber     string            `json:"account_number"`
	FundAccountID     string            `json:"fund_account_id"`
	Amount            int64             `json:"amount"`
	Currency          string            `json:"currency"`
	Mode              string            `json:"mode"`
	Purpose           string            `json:"purpose"`
	QueueIfLowBalance bool              `json:"queue_if_low_balance"`
	ReferenceID       string            `json:"reference_id,omitempty"`
	Narration         string            `json:"narration,omitempty"`
	Notes             map[string]string `json:"notes,omitempty"`
}

// ErrorResponse represents an error from the Razorpay API.
type ErrorResponse struct {
	Err struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (e *ErrorResponse) Error() string {
	if e.Err.Code != "" || e.Err.Description != "" {
		return fmt.Sprintf("razorpay api error: %s - %s", e.Err.Code, e.Err.Description)
	}
	return "unknown razorpay api error"
}

// CreateContact creates a Razorpay contact from the given contact info and
// returns the provider's contact id.
func (c *Client) CreateContact(ctx context.Context, contact domain.ContactInfo) (string, error) {
	bodyBytes, err := c.do(ctx, "POST", "/v1/contacts", contact, "")
	if err != nil {
		return "", err
	}

	var resp contactResponse
	if err := json.Unmarshal(bodyBytes, &resp); err != nil {
		return "", fmt.Errorf("failed to decode contact response: %w", err)
	}
	return resp.ID, nil
}

// CreateFundAccount creates a VPA fund account linked to an existing contact
// and returns the provider's fund-account id.
func (c *Client) CreateFundAccount(ctx context.Context, contactID, vpaAddress string) (string, error) {
	req := fundAccountRequest{
		ContactID:   contactID,
		AccountType: "vpa",
	}
	req.VPA.Address = vpaAddress

	bodyBytes, err := c.do(ctx, "POST", "/v1/fund_accounts", req, "")
	if err != nil {
		return "", err
	}

	var resp fundAccountResponse
	if err := json.Unmarshal(bodyBytes, &resp); err != nil {
		return "", fmt.Errorf("failed to decode fund account response: %w", err)
	}
	return resp.ID, nil
}

// CreatePayout submits one payout request and returns the provider's payout
// object verbatim.
func (c *Client) CreatePayout(ctx context.Context, req PayoutRequest, idempotencyKey string) (json.RawMessage, error) {
	bodyBytes, err := c.do(ctx, "POST", "/v1/payouts", req, idempotencyKey)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(bodyBytes), nil
}

// do executes one authenticated request and returns the response body, or a
// typed *ErrorResponse for non-2xx statuses.
func (c *Client) do(ctx context.Context, method, path string, payload interface{}, idempotencyKey string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("X-Payout-Idempotency", idempotencyKey)
	}
	req.SetBasicAuth(c.KeyID, c.KeySecret)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute razorpay request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read razorpay response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=razorpay_client path=%s status=%d msg=\"non-2xx response (unparsable error body)\"", path, resp.StatusCode)
			return nil, fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=razorpay_client path=%s status=%d code=%q description=%q", path, resp.StatusCode, errResp.Err.Code, errResp.Err.Description)
		return nil, &errResp
	}

	return bodyBytes, nil
}
