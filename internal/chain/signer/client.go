// Package signer talks to the external signing service. The engine never
// holds key material; transfers are built, signed, and submitted by the
// sidecar, keyed by the payment request ID so resubmissions are safe.
package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL: baseURL,
		logger:  logger.With("component", "signer_client"),
	}
}

// TransferParams is the wire request for POST /v1/transfer.
type TransferParams struct {
	RequestID string `json:"request_id"`
	Chain     string `json:"chain"`
	Network   string `json:"network"`
	Token     string `json:"token"`
	Contract  string `json:"contract,omitempty"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Memo      string `json:"memo,omitempty"`
}

// TransferResult is the wire response for a submitted transfer.
type TransferResult struct {
	TxHash   string `json:"tx_hash"`
	Status   string `json:"status"`
	Sequence int64  `json:"sequence,omitempty"`
}

// APIError is a non-2xx signer response. StatusCode drives retry
// classification; Code carries the signer's machine-readable reason.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("signer status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("signer status %d: %s", e.StatusCode, e.Message)
}

// Signer reason codes.
const (
	CodeInvalidAddress    = "invalid_address"
	CodeInsufficientFunds = "insufficient_funds"
	CodeRejected          = "rejected"
	CodeRateLimited       = "rate_limited"
)

// Transfer submits a transfer and returns the signed submission receipt.
func (c *Client) Transfer(ctx context.Context, params TransferParams) (TransferResult, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return TransferResult{}, fmt.Errorf("marshal transfer: %w", err)
	}

	url := c.baseURL + "/v1/transfer"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return TransferResult{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return TransferResult{}, fmt.Errorf("signer request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return TransferResult{}, fmt.Errorf("read signer response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		// Structured bodies override the raw fallback.
		var decoded APIError
		if json.Unmarshal(respBody, &decoded) == nil && decoded.Code != "" {
			apiErr.Code = decoded.Code
			apiErr.Message = decoded.Message
		}
		return TransferResult{}, apiErr
	}

	var result TransferResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return TransferResult{}, fmt.Errorf("unmarshal signer response: %w", err)
	}
	if result.TxHash == "" {
		return TransferResult{}, fmt.Errorf("signer returned no tx hash")
	}

	c.logger.Info("transfer submitted",
		"request_id", params.RequestID,
		"chain", params.Chain,
		"token", params.Token,
		"tx_hash", result.TxHash,
		"status", result.Status,
	)
	return result, nil
}
