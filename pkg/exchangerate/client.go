/**
 * @description
 * This package provides a client for the exchangerate-api.com v6 pair
 * conversion endpoint. The gateway uses it to convert USD amounts into INR
 * before applying the tiered fee schedule.
 *
 * @dependencies
 * - context, encoding/json, fmt, io, net/http, strconv, time: Standard Go libraries.
 */
package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Client is a client for the exchange-rate API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new exchange-rate API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// PairConversion is the subset of the pair endpoint's response the gateway uses.
type PairConversion struct {
	Result           string  `json:"result"`
	ErrorType        string  `json:"error-type"`
	ConversionRate   float64 `json:"conversion_rate"`
	ConversionResult float64 `json:"conversion_result"`
}

// ConvertUSDToINR converts a USD amount to INR using the live pair rate and
// returns the conversion details.
func (c *Client) ConvertUSDToINR(ctx context.Context, amount float64) (*PairConversion, error) {
	url := fmt.Sprintf("%s/v6/%s/pair/USD/INR/%s", c.BaseURL, c.APIKey, strconv.FormatFloat(amount, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute rate request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read rate response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("rate lookup failed (status %d)", resp.StatusCode)
	}

	var conversion PairConversion
	if err := json.Unmarshal(bodyBytes, &conversion); err != nil {
		return nil, fmt.Errorf("failed to decode rate response: %w", err)
	}
	if conversion.Result == "error" {
		return nil, fmt.Errorf("rate lookup failed: %s", conversion.ErrorType)
	}

	return &conversion, nil
}
