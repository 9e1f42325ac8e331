package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/soukly/soukly-backend/internal/domain"
)

// TransferClient executes disbursements against the external funds gateway.
// The payout id rides along as the idempotency reference, so re-submitting a
// transfer after a crash or timeout cannot double-pay a store.
type TransferClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewTransferClient creates a new TransferClient
func NewTransferClient(baseURL, apiKey string) *TransferClient {
	return &TransferClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type transferRequest struct {
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Reference   string `json:"reference"`
}

type transferResponse struct {
	Reference string `json:"reference"`
	Error     string `json:"error,omitempty"`
}

// Transfer submits one disbursement. Gateway rejections come back as
// *domain.TransferError carrying the gateway's reason.
func (c *TransferClient) Transfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	body, err := json.Marshal(transferRequest{
		Destination: req.Destination,
		Amount:      req.Amount.StringFixed(2),
		Currency:    req.Currency,
		Reference:   req.Reference,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.Reference)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &domain.TransferError{Reason: "transfer gateway unreachable", Err: err}
	}
	defer resp.Body.Close()

	var result transferResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &domain.TransferError{Reason: fmt.Sprintf("invalid gateway response (status %d)", resp.StatusCode), Err: err}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		reason := result.Error
		if reason == "" {
			reason = fmt.Sprintf("transfer rejected with status %d", resp.StatusCode)
		}
		return nil, &domain.TransferError{Reason: reason}
	}
	if result.Reference == "" {
		return nil, &domain.TransferError{Reason: "gateway returned no transfer reference"}
	}
	return &domain.TransferResult{Reference: result.Reference}, nil
}
